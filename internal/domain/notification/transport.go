package notification

import "context"

// OutboundMessage is a rendered message ready for delivery. Attachment
// delivery is the transport's responsibility.
type OutboundMessage struct {
	To            string
	Subject       string
	Body          string
	AttachmentURL string
}

// Transport delivers a message over one channel and returns the provider's
// message id. Implementations live in infra/ (WhatsApp Cloud API, Resend).
type Transport interface {
	Send(ctx context.Context, msg *OutboundMessage) (string, error)
	Channel() Channel
}
