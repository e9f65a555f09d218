package notification

import "time"

// DefaultMaxAttempts bounds how many times a failed log may be re-sent.
const DefaultMaxAttempts = 3

// NotificationLog is the durable record of one send attempt and its delivery
// outcome. Created at send time with status pending; mutated only by the
// reconciler and the retry path.
type NotificationLog struct {
	ID                 string    `json:"id"`
	NotificationTypeID string    `json:"notification_type_id,omitempty"`
	TemplateID         string    `json:"template_id,omitempty"`
	CampaignID         string    `json:"campaign_id,omitempty"`
	Channel            Channel   `json:"channel"`
	Recipient          string    `json:"recipient"`
	Subject            string    `json:"subject,omitempty"`
	MessageContent     string    `json:"message_content"`
	AttachmentURL      string    `json:"attachment_url,omitempty"`
	Status             Status    `json:"status"`
	AttemptCount       int       `json:"attempt_count"`
	MaxAttempts        int       `json:"max_attempts"`
	ProviderMessageID  string    `json:"provider_message_id,omitempty"`
	ErrorReason        string    `json:"error_reason,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// CanRetry reports whether the log is eligible for another attempt.
func (l *NotificationLog) CanRetry() bool {
	max := l.MaxAttempts
	if max <= 0 {
		max = DefaultMaxAttempts
	}
	return l.Status == StatusFailed && l.AttemptCount < max
}

// ListFilter defines pagination and filtering options for listing logs.
type ListFilter struct {
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
	Status     string `form:"status"`
	Recipient  string `form:"recipient"`
	Channel    string `form:"channel"`
	CampaignID string `form:"campaign_id"`
	From       string `form:"from" time_format:"2006-01-02"`
	To         string `form:"to" time_format:"2006-01-02"`
}

// ListResponse wraps a paginated list of notification logs.
type ListResponse struct {
	Logs     []*NotificationLog `json:"logs"`
	Total    int                `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}
