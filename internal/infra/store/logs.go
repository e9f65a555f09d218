package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"notivio/internal/domain/notification"

	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"
)

const (
	logsTable      = "notification_logs"
	templatesTable = "notification_templates"
	typesTable     = "notification_types"
)

var _ notification.Store = (*SupabaseStore)(nil)

// SupabaseStore implements notification.Store using the Supabase Go SDK.
type SupabaseStore struct {
	client *supa.Client
}

// NewSupabaseStore creates a new Supabase-backed notification store.
func NewSupabaseStore(client *supa.Client) *SupabaseStore {
	return &SupabaseStore{client: client}
}

// logRow is the internal representation for PostgREST insert/update.
type logRow struct {
	ID                 string  `json:"id,omitempty"`
	NotificationTypeID *string `json:"notification_type_id,omitempty"`
	TemplateID         *string `json:"template_id,omitempty"`
	CampaignID         *string `json:"campaign_id,omitempty"`
	Channel            string  `json:"channel"`
	Recipient          string  `json:"recipient"`
	Subject            *string `json:"subject,omitempty"`
	MessageContent     string  `json:"message_content"`
	AttachmentURL      *string `json:"attachment_url,omitempty"`
	Status             string  `json:"status"`
	AttemptCount       int     `json:"attempt_count"`
	MaxAttempts        int     `json:"max_attempts"`
	ProviderMessageID  *string `json:"provider_message_id,omitempty"`
	ErrorReason        *string `json:"error_reason,omitempty"`
	CreatedAt          string  `json:"created_at,omitempty"`
	UpdatedAt          string  `json:"updated_at,omitempty"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CreateLog inserts a new notification log record.
func (s *SupabaseStore) CreateLog(ctx context.Context, log *notification.NotificationLog) error {
	row := logRow{
		NotificationTypeID: optional(log.NotificationTypeID),
		TemplateID:         optional(log.TemplateID),
		CampaignID:         optional(log.CampaignID),
		Channel:            string(log.Channel),
		Recipient:          log.Recipient,
		Subject:            optional(log.Subject),
		MessageContent:     log.MessageContent,
		AttachmentURL:      optional(log.AttachmentURL),
		Status:             string(log.Status),
		AttemptCount:       log.AttemptCount,
		MaxAttempts:        log.MaxAttempts,
	}

	data, _, err := s.client.From(logsTable).Insert(row, false, "", "representation", "").Execute()
	if err != nil {
		return fmt.Errorf("inserting notification log: %w", err)
	}

	var results []logRow
	if err := json.Unmarshal(data, &results); err != nil {
		return fmt.Errorf("parsing insert response: %w", err)
	}

	if len(results) > 0 {
		log.ID = results[0].ID
		log.CreatedAt = parseTime(results[0].CreatedAt)
		log.UpdatedAt = parseTime(results[0].UpdatedAt)
	}

	return nil
}

// GetLog retrieves a notification log by id. Returns nil, nil when absent.
func (s *SupabaseStore) GetLog(ctx context.Context, id string) (*notification.NotificationLog, error) {
	data, _, err := s.client.From(logsTable).Select("*", "exact", false).Eq("id", id).Execute()
	if err != nil {
		return nil, fmt.Errorf("fetching notification log: %w", err)
	}

	var rows []logRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing notification log: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	return rowToLog(&rows[0]), nil
}

// UpdateLogStatus updates the status of a notification log.
func (s *SupabaseStore) UpdateLogStatus(ctx context.Context, id string, status notification.Status, providerMessageID, errorReason string) error {
	update := map[string]any{
		"status":     string(status),
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if providerMessageID != "" {
		update["provider_message_id"] = providerMessageID
	}
	if errorReason != "" {
		update["error_reason"] = errorReason
	}

	_, _, err := s.client.From(logsTable).Update(update, "", "").Eq("id", id).Execute()
	if err != nil {
		return fmt.Errorf("updating notification status: %w", err)
	}

	return nil
}

// AdvanceLogStatus moves a log to the target status only when it is still in
// the expected state. The status filter makes the update conditional server
// side, so concurrent webhook deliveries cannot both claim the transition;
// the representation echo tells us whether this write was the one that won.
func (s *SupabaseStore) AdvanceLogStatus(ctx context.Context, id string, from, to notification.Status, providerMessageID, errorReason string) (bool, error) {
	update := map[string]any{
		"status":     string(to),
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if providerMessageID != "" {
		update["provider_message_id"] = providerMessageID
	}
	if errorReason != "" {
		update["error_reason"] = errorReason
	}

	data, _, err := s.client.From(logsTable).
		Update(update, "representation", "").
		Eq("id", id).
		Eq("status", string(from)).
		Execute()
	if err != nil {
		return false, fmt.Errorf("advancing notification status: %w", err)
	}

	var rows []logRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return false, fmt.Errorf("parsing advance response: %w", err)
	}
	return len(rows) > 0, nil
}

// MarkRetry resets a failed log to pending and bumps its attempt count. The
// increment happens server-side so concurrent retries cannot lose an attempt.
func (s *SupabaseStore) MarkRetry(ctx context.Context, id string) error {
	result := s.client.Rpc("mark_notification_retry", "", map[string]any{"p_log_id": id})
	if result == "" {
		return fmt.Errorf("marking retry for log %s: rpc returned no result", id)
	}
	return nil
}

// ListLogs retrieves notification logs with pagination and filtering.
func (s *SupabaseStore) ListLogs(ctx context.Context, filter notification.ListFilter) ([]*notification.NotificationLog, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	offset := (filter.Page - 1) * filter.PageSize

	query := s.client.From(logsTable).Select("*", "exact", false)

	if filter.Status != "" {
		query = query.Eq("status", filter.Status)
	}
	if filter.Recipient != "" {
		query = query.Eq("recipient", filter.Recipient)
	}
	if filter.Channel != "" {
		query = query.Eq("channel", filter.Channel)
	}
	if filter.CampaignID != "" {
		query = query.Eq("campaign_id", filter.CampaignID)
	}
	if filter.From != "" {
		query = query.Gte("created_at", filter.From)
	}
	if filter.To != "" {
		if next, ok := nextDay(filter.To); ok {
			// A bare date means the whole day; the exclusive bound on the next
			// day keeps that day's own timestamped events in range.
			query = query.Lt("created_at", next)
		} else {
			query = query.Lte("created_at", filter.To)
		}
	}

	query = query.Order("created_at", &postgrest.OrderOpts{Ascending: false})
	query = query.Range(offset, offset+filter.PageSize-1, "")

	data, count, err := query.Execute()
	if err != nil {
		return nil, 0, fmt.Errorf("listing notification logs: %w", err)
	}

	var rows []logRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, 0, fmt.Errorf("parsing notification list: %w", err)
	}

	logs := make([]*notification.NotificationLog, len(rows))
	for i := range rows {
		logs[i] = rowToLog(&rows[i])
	}

	return logs, int(count), nil
}

// ListStaleLogs retrieves logs stuck in pending since before olderThan.
func (s *SupabaseStore) ListStaleLogs(ctx context.Context, olderThan time.Time, limit int) ([]*notification.NotificationLog, error) {
	if limit <= 0 {
		limit = 50
	}

	threshold := olderThan.UTC().Format(time.RFC3339Nano)

	query := s.client.From(logsTable).
		Select("*", "exact", false).
		Eq("status", string(notification.StatusPending)).
		Lt("updated_at", threshold).
		Order("updated_at", &postgrest.OrderOpts{Ascending: true}).
		Range(0, limit-1, "")

	data, _, err := query.Execute()
	if err != nil {
		return nil, fmt.Errorf("listing stale logs: %w", err)
	}

	var rows []logRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing stale logs: %w", err)
	}

	logs := make([]*notification.NotificationLog, len(rows))
	for i := range rows {
		logs[i] = rowToLog(&rows[i])
	}

	return logs, nil
}

// DeleteLogsOlderThan removes logs created before the cutoff. The exclusion
// of non-terminal campaign logs needs a join, so the whole delete runs as a
// server-side function and returns the removed count.
func (s *SupabaseStore) DeleteLogsOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	result := s.client.Rpc("archive_notification_logs", "", map[string]any{
		"p_cutoff": cutoff.UTC().Format(time.RFC3339Nano),
	})
	if result == "" {
		return 0, fmt.Errorf("archiving notification logs: rpc returned no result")
	}

	removed, err := strconv.Atoi(result)
	if err != nil {
		return 0, fmt.Errorf("parsing archive result %q: %w", result, err)
	}
	return removed, nil
}

// templateRow is the internal representation for templates.
type templateRow struct {
	ID                 string   `json:"id,omitempty"`
	NotificationTypeID *string  `json:"notification_type_id,omitempty"`
	Channel            string   `json:"channel"`
	Subject            *string  `json:"subject,omitempty"`
	Body               string   `json:"body"`
	Variables          []string `json:"variables,omitempty"`
	AttachmentURL      *string  `json:"attachment_url,omitempty"`
	IsActive           bool     `json:"is_active"`
	CreatedAt          string   `json:"created_at,omitempty"`
	UpdatedAt          string   `json:"updated_at,omitempty"`
}

// GetTemplate retrieves a template by id. Returns nil, nil when absent.
func (s *SupabaseStore) GetTemplate(ctx context.Context, id string) (*notification.Template, error) {
	data, _, err := s.client.From(templatesTable).Select("*", "exact", false).Eq("id", id).Execute()
	if err != nil {
		return nil, fmt.Errorf("fetching template: %w", err)
	}

	var rows []templateRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing template: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rowToTemplate(&rows[0]), nil
}

// ListTemplates retrieves templates, optionally filtered by notification type.
func (s *SupabaseStore) ListTemplates(ctx context.Context, notificationTypeID string) ([]*notification.Template, error) {
	query := s.client.From(templatesTable).Select("*", "exact", false)
	if notificationTypeID != "" {
		query = query.Eq("notification_type_id", notificationTypeID)
	}
	query = query.Order("created_at", &postgrest.OrderOpts{Ascending: false})

	data, _, err := query.Execute()
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}

	var rows []templateRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing template list: %w", err)
	}

	templates := make([]*notification.Template, len(rows))
	for i := range rows {
		templates[i] = rowToTemplate(&rows[i])
	}
	return templates, nil
}

// SaveTemplate inserts or updates a template.
func (s *SupabaseStore) SaveTemplate(ctx context.Context, t *notification.Template) error {
	row := templateRow{
		NotificationTypeID: optional(t.NotificationTypeID),
		Channel:            string(t.Channel),
		Subject:            optional(t.Subject),
		Body:               t.Body,
		Variables:          t.Variables,
		AttachmentURL:      optional(t.AttachmentURL),
		IsActive:           t.IsActive,
	}

	if t.ID != "" {
		_, _, err := s.client.From(templatesTable).Update(row, "", "").Eq("id", t.ID).Execute()
		if err != nil {
			return fmt.Errorf("updating template: %w", err)
		}
		return nil
	}

	data, _, err := s.client.From(templatesTable).Insert(row, false, "", "representation", "").Execute()
	if err != nil {
		return fmt.Errorf("inserting template: %w", err)
	}

	var results []templateRow
	if err := json.Unmarshal(data, &results); err != nil {
		return fmt.Errorf("parsing insert response: %w", err)
	}
	if len(results) > 0 {
		t.ID = results[0].ID
		t.CreatedAt = parseTime(results[0].CreatedAt)
		t.UpdatedAt = parseTime(results[0].UpdatedAt)
	}
	return nil
}

// DeactivateTemplate soft-invalidates a template.
func (s *SupabaseStore) DeactivateTemplate(ctx context.Context, id string) error {
	update := map[string]any{
		"is_active":  false,
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	_, _, err := s.client.From(templatesTable).Update(update, "", "").Eq("id", id).Execute()
	if err != nil {
		return fmt.Errorf("deactivating template: %w", err)
	}
	return nil
}

// ListNotificationTypes returns the notification type reference data.
func (s *SupabaseStore) ListNotificationTypes(ctx context.Context) ([]*notification.NotificationType, error) {
	data, _, err := s.client.From(typesTable).
		Select("*", "exact", false).
		Eq("is_active", "true").
		Order("category", &postgrest.OrderOpts{Ascending: true}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("listing notification types: %w", err)
	}

	var types []*notification.NotificationType
	if err := json.Unmarshal(data, &types); err != nil {
		return nil, fmt.Errorf("parsing notification types: %w", err)
	}
	return types, nil
}

func rowToLog(row *logRow) *notification.NotificationLog {
	log := &notification.NotificationLog{
		ID:             row.ID,
		Channel:        notification.Channel(row.Channel),
		Recipient:      row.Recipient,
		MessageContent: row.MessageContent,
		Status:         notification.Status(row.Status),
		AttemptCount:   row.AttemptCount,
		MaxAttempts:    row.MaxAttempts,
		CreatedAt:      parseTime(row.CreatedAt),
		UpdatedAt:      parseTime(row.UpdatedAt),
	}

	if row.NotificationTypeID != nil {
		log.NotificationTypeID = *row.NotificationTypeID
	}
	if row.TemplateID != nil {
		log.TemplateID = *row.TemplateID
	}
	if row.CampaignID != nil {
		log.CampaignID = *row.CampaignID
	}
	if row.Subject != nil {
		log.Subject = *row.Subject
	}
	if row.AttachmentURL != nil {
		log.AttachmentURL = *row.AttachmentURL
	}
	if row.ProviderMessageID != nil {
		log.ProviderMessageID = *row.ProviderMessageID
	}
	if row.ErrorReason != nil {
		log.ErrorReason = *row.ErrorReason
	}

	return log
}

func rowToTemplate(row *templateRow) *notification.Template {
	t := &notification.Template{
		ID:        row.ID,
		Channel:   notification.Channel(row.Channel),
		Body:      row.Body,
		Variables: row.Variables,
		IsActive:  row.IsActive,
		CreatedAt: parseTime(row.CreatedAt),
		UpdatedAt: parseTime(row.UpdatedAt),
	}
	if row.NotificationTypeID != nil {
		t.NotificationTypeID = *row.NotificationTypeID
	}
	if row.Subject != nil {
		t.Subject = *row.Subject
	}
	if row.AttachmentURL != nil {
		t.AttachmentURL = *row.AttachmentURL
	}
	return t
}

// nextDay returns the day after a bare YYYY-MM-DD date. Reports false for
// anything else; full timestamps bound the range as given.
func nextDay(s string) (string, bool) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return "", false
	}
	return t.AddDate(0, 0, 1).Format("2006-01-02"), true
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
