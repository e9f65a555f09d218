package campaign

import (
	"time"

	"notivio/internal/domain/notification"
)

// Status is the campaign lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusExecuting Status = "executing"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Throttle bounds.
const (
	MinMessagesPerMinute = 1
	MaxMessagesPerMinute = 1000
)

// Campaign is a batch send job targeting many recipients from one template,
// with throttling and lifecycle control.
type Campaign struct {
	ID                string               `json:"id"`
	Name              string               `json:"name"`
	MessageTemplate   string               `json:"message_template"`
	Channel           notification.Channel `json:"channel"`
	Status            Status               `json:"status"`
	TargetCriteria    TargetCriteria       `json:"target_criteria"`
	ScheduledAt       *time.Time           `json:"scheduled_at,omitempty"`
	MessagesPerMinute int                  `json:"messages_per_minute"`
	AttachmentURL     string               `json:"attachment_url,omitempty"`
	TotalLeads        int                  `json:"total_leads"`
	SentCount         int                  `json:"sent_count"`
	DeliveredCount    int                  `json:"delivered_count"`
	ReadCount         int                  `json:"read_count"`
	FailedCount       int                  `json:"failed_count"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// CanExecute reports whether execution may start.
func (c *Campaign) CanExecute() bool {
	return c.Status == StatusDraft || c.Status == StatusScheduled
}

// CanPause reports whether the campaign can be paused.
func (c *Campaign) CanPause() bool {
	return c.Status == StatusExecuting
}

// IsTerminal reports whether the campaign reached a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == StatusCompleted || c.Status == StatusCancelled
}

// TargetCriteria describes how the recipient list is expanded. Either an
// explicit lead id list, a named segment, or both (union).
type TargetCriteria struct {
	LeadIDs []string `json:"lead_ids,omitempty"`
	Segment string   `json:"segment,omitempty"`
}

// IsEmpty reports whether the criteria would expand to nothing by definition.
func (tc TargetCriteria) IsEmpty() bool {
	return len(tc.LeadIDs) == 0 && tc.Segment == ""
}

// Target is one expanded recipient row, linked to the log its send produced.
type Target struct {
	ID                string `json:"id"`
	CampaignID        string `json:"campaign_id"`
	LeadID            string `json:"lead_id"`
	LeadName          string `json:"lead_name,omitempty"`
	Recipient         string `json:"recipient"`
	NotificationLogID string `json:"notification_log_id,omitempty"`
}

// CreateRequest is the API payload for creating a campaign.
type CreateRequest struct {
	Name              string               `json:"name" binding:"required"`
	MessageTemplate   string               `json:"message_template" binding:"required"`
	Channel           notification.Channel `json:"channel" binding:"required,oneof=whatsapp email"`
	TargetCriteria    TargetCriteria       `json:"target_criteria"`
	ScheduledAt       *time.Time           `json:"scheduled_at"`
	MessagesPerMinute int                  `json:"messages_per_minute"`
	AttachmentURL     string               `json:"attachment_url"`
}

// ExecuteResponse reports how an execution request was handled.
type ExecuteResponse struct {
	CampaignID  string `json:"campaign_id"`
	Status      string `json:"status"`
	TotalLeads  int    `json:"total_leads"`
	SentCount   int    `json:"sent_count,omitempty"`
	FailedCount int    `json:"failed_count,omitempty"`
}

// RetryFailedResponse aggregates a retry-failed run.
type RetryFailedResponse struct {
	CampaignID string `json:"campaign_id"`
	Retried    int    `json:"retried"`
	Skipped    int    `json:"skipped"`
}
