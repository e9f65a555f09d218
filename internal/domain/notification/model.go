package notification

import "time"

// Channel represents a notification delivery channel.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
	// ChannelBoth is valid on templates only; a log row is always bound to a
	// single concrete channel.
	ChannelBoth Channel = "both"
)

// IsDeliverable reports whether the channel can carry an actual send.
func (c Channel) IsDeliverable() bool {
	return c == ChannelWhatsApp || c == ChannelEmail
}

// Status is the canonical delivery status vocabulary. Every provider-specific
// status is mapped into it before touching a log.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// statusRank orders the progress statuses. A transition is applied only when
// it moves strictly forward; failed sits outside the ladder and is terminal
// except for an explicit retry.
var statusRank = map[Status]int{
	StatusPending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// RankOf returns the progress rank of a status, or -1 for failed/unknown.
func RankOf(s Status) int {
	r, ok := statusRank[s]
	if !ok {
		return -1
	}
	return r
}

// IsForward reports whether moving from one status to another makes progress.
// Anything can move to failed except a status that already progressed past
// sent; a failed log only leaves failed via retry, never via webhook.
func IsForward(from, to Status) bool {
	if from == StatusFailed {
		return false
	}
	if to == StatusFailed {
		return RankOf(from) <= statusRank[StatusSent]
	}
	return RankOf(to) > RankOf(from)
}

// MapProviderStatus translates provider vocabulary into the canonical one.
// Email providers report "opened" and "bounced"; both channels may report the
// canonical names directly.
func MapProviderStatus(raw string) (Status, bool) {
	switch raw {
	case "sent":
		return StatusSent, true
	case "delivered":
		return StatusDelivered, true
	case "read":
		return StatusRead, true
	case "opened":
		return StatusRead, true
	case "failed":
		return StatusFailed, true
	case "bounced":
		return StatusFailed, true
	}
	return "", false
}

// NotificationType classifies templates for filtering. Immutable reference data.
type NotificationType struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// Template is an operator-authored message body with {token} placeholders.
type Template struct {
	ID                 string    `json:"id"`
	NotificationTypeID string    `json:"notification_type_id"`
	Channel            Channel   `json:"channel"`
	Subject            string    `json:"subject,omitempty"`
	Body               string    `json:"body"`
	Variables          []string  `json:"variables,omitempty"`
	AttachmentURL      string    `json:"attachment_url,omitempty"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// SendRequest is the API payload for a single ad-hoc send.
type SendRequest struct {
	Channel     Channel `json:"channel" binding:"required,oneof=whatsapp email"`
	To          string  `json:"to" binding:"required"`
	Subject     string  `json:"subject"`
	Body        string  `json:"body" binding:"required"`
	CustomerID  string  `json:"customer_id"`
	InsuranceID string  `json:"insurance_id"`
	QuotationID string  `json:"quotation_id"`
	Attachment  string  `json:"attachment_url"`
}

// SendResult reports the outcome of one send attempt.
type SendResult struct {
	LogID     string `json:"log_id"`
	Recipient string `json:"recipient"`
	Status    Status `json:"status"`
	Error     string `json:"error,omitempty"`
}

// BulkSendRequest is the API payload for an ad-hoc multi-recipient send.
type BulkSendRequest struct {
	Channel    Channel      `json:"channel" binding:"required,oneof=whatsapp email"`
	Subject    string       `json:"subject"`
	Body       string       `json:"body" binding:"required"`
	Recipients []BulkTarget `json:"recipients" binding:"required,min=1,dive"`
	Attachment string       `json:"attachment_url"`
}

// BulkTarget is one recipient of a bulk send, optionally bound to a customer
// so templates can resolve customer variables per recipient.
type BulkTarget struct {
	To         string `json:"to" binding:"required"`
	CustomerID string `json:"customer_id"`
}

// BulkSendResponse is the outcome of a bulk send. Inline runs carry
// per-recipient results; queued runs report status "queued" only.
type BulkSendResponse struct {
	Status      string       `json:"status"`
	SentCount   int          `json:"sent_count"`
	FailedCount int          `json:"failed_count"`
	Results     []SendResult `json:"results,omitempty"`
}
