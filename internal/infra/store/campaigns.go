package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"notivio/internal/domain/campaign"
	"notivio/internal/domain/notification"

	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"
)

const (
	campaignsTable = "campaigns"
	targetsTable   = "campaign_targets"
)

var _ campaign.Store = (*SupabaseCampaignStore)(nil)

// SupabaseCampaignStore implements campaign.Store using the Supabase Go SDK.
// Counter mutations go through a server-side function so each one is a single
// atomic increment scoped by campaign id.
type SupabaseCampaignStore struct {
	client *supa.Client
}

// NewSupabaseCampaignStore creates a new Supabase-backed campaign store.
func NewSupabaseCampaignStore(client *supa.Client) *SupabaseCampaignStore {
	return &SupabaseCampaignStore{client: client}
}

// campaignRow is the internal representation for PostgREST insert/update.
type campaignRow struct {
	ID                string          `json:"id,omitempty"`
	Name              string          `json:"name"`
	MessageTemplate   string          `json:"message_template"`
	Channel           string          `json:"channel"`
	Status            string          `json:"status"`
	TargetCriteria    json.RawMessage `json:"target_criteria,omitempty"`
	ScheduledAt       *string         `json:"scheduled_at,omitempty"`
	MessagesPerMinute int             `json:"messages_per_minute"`
	AttachmentURL     *string         `json:"attachment_url,omitempty"`
	TotalLeads        int             `json:"total_leads"`
	SentCount         int             `json:"sent_count"`
	DeliveredCount    int             `json:"delivered_count"`
	ReadCount         int             `json:"read_count"`
	FailedCount       int             `json:"failed_count"`
	CreatedAt         string          `json:"created_at,omitempty"`
	UpdatedAt         string          `json:"updated_at,omitempty"`
}

// Create inserts a campaign and fills in its generated id and timestamps.
func (s *SupabaseCampaignStore) Create(ctx context.Context, c *campaign.Campaign) error {
	criteria, err := json.Marshal(c.TargetCriteria)
	if err != nil {
		return fmt.Errorf("marshaling target criteria: %w", err)
	}

	row := campaignRow{
		Name:              c.Name,
		MessageTemplate:   c.MessageTemplate,
		Channel:           string(c.Channel),
		Status:            string(c.Status),
		TargetCriteria:    criteria,
		MessagesPerMinute: c.MessagesPerMinute,
		AttachmentURL:     optional(c.AttachmentURL),
	}
	if c.ScheduledAt != nil {
		at := c.ScheduledAt.UTC().Format(time.RFC3339Nano)
		row.ScheduledAt = &at
	}

	data, _, err := s.client.From(campaignsTable).Insert(row, false, "", "representation", "").Execute()
	if err != nil {
		return fmt.Errorf("inserting campaign: %w", err)
	}

	var results []campaignRow
	if err := json.Unmarshal(data, &results); err != nil {
		return fmt.Errorf("parsing insert response: %w", err)
	}
	if len(results) > 0 {
		c.ID = results[0].ID
		c.CreatedAt = parseTime(results[0].CreatedAt)
		c.UpdatedAt = parseTime(results[0].UpdatedAt)
	}

	return nil
}

// GetByID retrieves a campaign. Returns nil, nil when absent.
func (s *SupabaseCampaignStore) GetByID(ctx context.Context, id string) (*campaign.Campaign, error) {
	data, _, err := s.client.From(campaignsTable).Select("*", "exact", false).Eq("id", id).Execute()
	if err != nil {
		return nil, fmt.Errorf("fetching campaign: %w", err)
	}

	var rows []campaignRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing campaign: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rowToCampaign(&rows[0])
}

// TransitionStatus moves a campaign between lifecycle states with a
// conditional update, so two racing callers cannot both claim it.
func (s *SupabaseCampaignStore) TransitionStatus(ctx context.Context, id string, from []campaign.Status, to campaign.Status) (bool, error) {
	states := make([]string, len(from))
	for i, st := range from {
		states[i] = string(st)
	}

	update := map[string]any{
		"status":     string(to),
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}

	data, _, err := s.client.From(campaignsTable).
		Update(update, "representation", "").
		Eq("id", id).
		In("status", states).
		Execute()
	if err != nil {
		return false, fmt.Errorf("transitioning campaign status: %w", err)
	}

	var rows []campaignRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return false, fmt.Errorf("parsing transition response: %w", err)
	}
	return len(rows) > 0, nil
}

// SetTotalLeads records the expanded recipient count.
func (s *SupabaseCampaignStore) SetTotalLeads(ctx context.Context, id string, total int) error {
	update := map[string]any{
		"total_leads": total,
		"updated_at":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	_, _, err := s.client.From(campaignsTable).Update(update, "", "").Eq("id", id).Execute()
	if err != nil {
		return fmt.Errorf("setting total leads: %w", err)
	}
	return nil
}

// targetRow is the internal representation for campaign targets.
type targetRow struct {
	ID                string  `json:"id,omitempty"`
	CampaignID        string  `json:"campaign_id"`
	LeadID            string  `json:"lead_id"`
	LeadName          *string `json:"lead_name,omitempty"`
	Recipient         string  `json:"recipient"`
	NotificationLogID *string `json:"notification_log_id,omitempty"`
}

// CreateTargets inserts the expanded recipient rows.
func (s *SupabaseCampaignStore) CreateTargets(ctx context.Context, targets []*campaign.Target) error {
	rows := make([]targetRow, len(targets))
	for i, t := range targets {
		rows[i] = targetRow{
			CampaignID: t.CampaignID,
			LeadID:     t.LeadID,
			LeadName:   optional(t.LeadName),
			Recipient:  t.Recipient,
		}
	}

	data, _, err := s.client.From(targetsTable).Insert(rows, false, "", "representation", "").Execute()
	if err != nil {
		return fmt.Errorf("inserting campaign targets: %w", err)
	}

	var results []targetRow
	if err := json.Unmarshal(data, &results); err != nil {
		return fmt.Errorf("parsing insert response: %w", err)
	}
	for i := range results {
		if i < len(targets) {
			targets[i].ID = results[i].ID
		}
	}

	return nil
}

// ListTargets returns all targets of a campaign in enumeration order.
func (s *SupabaseCampaignStore) ListTargets(ctx context.Context, campaignID string) ([]*campaign.Target, error) {
	data, _, err := s.client.From(targetsTable).
		Select("*", "exact", false).
		Eq("campaign_id", campaignID).
		Order("id", &postgrest.OrderOpts{Ascending: true}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("listing campaign targets: %w", err)
	}

	var rows []targetRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing campaign targets: %w", err)
	}

	targets := make([]*campaign.Target, len(rows))
	for i, row := range rows {
		t := &campaign.Target{
			ID:         row.ID,
			CampaignID: row.CampaignID,
			LeadID:     row.LeadID,
			Recipient:  row.Recipient,
		}
		if row.LeadName != nil {
			t.LeadName = *row.LeadName
		}
		if row.NotificationLogID != nil {
			t.NotificationLogID = *row.NotificationLogID
		}
		targets[i] = t
	}
	return targets, nil
}

// SetTargetLog links a target to the log its send produced.
func (s *SupabaseCampaignStore) SetTargetLog(ctx context.Context, targetID, logID string) error {
	update := map[string]any{"notification_log_id": logID}
	_, _, err := s.client.From(targetsTable).Update(update, "", "").Eq("id", targetID).Execute()
	if err != nil {
		return fmt.Errorf("linking log to target: %w", err)
	}
	return nil
}

// bump runs the server-side atomic counter adjustment. The function applies
// a single UPDATE ... SET <counter> = <counter> + delta WHERE id = ... and
// returns the new value, so there is no read-modify-write window.
func (s *SupabaseCampaignStore) bump(campaignID, counter string, delta int) error {
	result := s.client.Rpc("adjust_campaign_counter", "", map[string]any{
		"p_campaign_id": campaignID,
		"p_counter":     counter,
		"p_delta":       delta,
	})
	if result == "" {
		return fmt.Errorf("adjusting campaign counter %s: rpc returned no result", counter)
	}
	return nil
}

// IncrementSent bumps sent_count by one.
func (s *SupabaseCampaignStore) IncrementSent(ctx context.Context, campaignID string) error {
	return s.bump(campaignID, "sent_count", 1)
}

// DecrementFailed compensates a failed send that later succeeded via retry.
func (s *SupabaseCampaignStore) DecrementFailed(ctx context.Context, campaignID string) error {
	return s.bump(campaignID, "failed_count", -1)
}

// IncrementFailed bumps failed_count by one.
func (s *SupabaseCampaignStore) IncrementFailed(ctx context.Context, campaignID string) error {
	return s.bump(campaignID, "failed_count", 1)
}

// IncrementDelivered bumps delivered_count by one.
func (s *SupabaseCampaignStore) IncrementDelivered(ctx context.Context, campaignID string) error {
	return s.bump(campaignID, "delivered_count", 1)
}

// IncrementRead bumps read_count by one.
func (s *SupabaseCampaignStore) IncrementRead(ctx context.Context, campaignID string) error {
	return s.bump(campaignID, "read_count", 1)
}

func rowToCampaign(row *campaignRow) (*campaign.Campaign, error) {
	c := &campaign.Campaign{
		ID:                row.ID,
		Name:              row.Name,
		MessageTemplate:   row.MessageTemplate,
		Channel:           notification.Channel(row.Channel),
		Status:            campaign.Status(row.Status),
		MessagesPerMinute: row.MessagesPerMinute,
		TotalLeads:        row.TotalLeads,
		SentCount:         row.SentCount,
		DeliveredCount:    row.DeliveredCount,
		ReadCount:         row.ReadCount,
		FailedCount:       row.FailedCount,
		CreatedAt:         parseTime(row.CreatedAt),
		UpdatedAt:         parseTime(row.UpdatedAt),
	}

	if len(row.TargetCriteria) > 0 {
		if err := json.Unmarshal(row.TargetCriteria, &c.TargetCriteria); err != nil {
			return nil, fmt.Errorf("parsing target criteria: %w", err)
		}
	}
	if row.ScheduledAt != nil {
		at := parseTime(*row.ScheduledAt)
		c.ScheduledAt = &at
	}
	if row.AttachmentURL != nil {
		c.AttachmentURL = *row.AttachmentURL
	}

	return c, nil
}
