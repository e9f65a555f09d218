package campaign

// DefaultInlineLimit is the largest recipient count a campaign dispatches
// inline; anything bigger is deferred to the background queue.
const DefaultInlineLimit = 50

// DispatchPolicy decides whether a dispatch of a given size runs inline or
// on the background queue. Injected so the branch is testable without a real
// queue.
type DispatchPolicy struct {
	InlineLimit int
}

// NewDispatchPolicy creates a policy; non-positive limits fall back to the
// default.
func NewDispatchPolicy(inlineLimit int) DispatchPolicy {
	if inlineLimit <= 0 {
		inlineLimit = DefaultInlineLimit
	}
	return DispatchPolicy{InlineLimit: inlineLimit}
}

// Queue reports whether a dispatch of n recipients belongs on the queue.
func (p DispatchPolicy) Queue(n int) bool {
	return n > p.InlineLimit
}
