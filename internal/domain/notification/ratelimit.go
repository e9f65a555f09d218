package notification

import "context"

// RecipientRateLimiter caps how often a single recipient can be messaged.
// Implementations live in infra/ratelimit. Campaign sends bypass it; the
// campaign throttle owns that pacing.
type RecipientRateLimiter interface {
	// Allow reports whether another notification may go to the recipient.
	Allow(ctx context.Context, recipient string) (bool, error)
}
