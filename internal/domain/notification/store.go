package notification

import (
	"context"
	"time"
)

// Store defines the contract for persisting notification logs and reading
// templates. Implementations live in infra/store (Supabase).
type Store interface {
	// CreateLog inserts a new log record and fills in its generated id and
	// timestamps.
	CreateLog(ctx context.Context, log *NotificationLog) error

	// GetLog retrieves a log by id. Returns nil, nil when absent.
	GetLog(ctx context.Context, id string) (*NotificationLog, error)

	// UpdateLogStatus sets the status plus provider message id / error reason
	// when non-empty.
	UpdateLogStatus(ctx context.Context, id string, status Status, providerMessageID, errorReason string) error

	// AdvanceLogStatus sets the status only when the row is still in the from
	// state, in one conditional write. Returns false when the row moved under
	// us, so two concurrent webhook deliveries cannot both apply the same
	// transition.
	AdvanceLogStatus(ctx context.Context, id string, from, to Status, providerMessageID, errorReason string) (bool, error)

	// MarkRetry resets a failed log to pending and increments its attempt
	// count in one write.
	MarkRetry(ctx context.Context, id string) error

	// ListLogs retrieves logs with pagination and filtering.
	ListLogs(ctx context.Context, filter ListFilter) ([]*NotificationLog, int, error)

	// ListStaleLogs retrieves logs stuck in pending since before olderThan.
	// Used by the reaper for queue reconciliation.
	ListStaleLogs(ctx context.Context, olderThan time.Time, limit int) ([]*NotificationLog, error)

	// DeleteLogsOlderThan removes logs created before the cutoff, skipping
	// logs attached to a non-terminal campaign. Returns the count removed.
	DeleteLogsOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// GetTemplate retrieves a template by id. Returns nil, nil when absent.
	GetTemplate(ctx context.Context, id string) (*Template, error)

	// ListTemplates retrieves templates, optionally filtered by notification
	// type. Inactive templates are included so admin UIs can re-activate them.
	ListTemplates(ctx context.Context, notificationTypeID string) ([]*Template, error)

	// SaveTemplate inserts or updates a template.
	SaveTemplate(ctx context.Context, t *Template) error

	// DeactivateTemplate soft-invalidates a template instead of deleting it
	// while campaigns may still reference it.
	DeactivateTemplate(ctx context.Context, id string) error

	// ListNotificationTypes returns the reference data used to classify
	// templates.
	ListNotificationTypes(ctx context.Context) ([]*NotificationType, error)
}

// CampaignCounters is the narrow slice of the campaign store the reconciler
// needs: atomic per-campaign counter increments, safe under concurrent
// webhook delivery.
type CampaignCounters interface {
	IncrementDelivered(ctx context.Context, campaignID string) error
	IncrementRead(ctx context.Context, campaignID string) error
}

// Enqueuer defers a unit of work to the background queue. Decouples the
// service from the queue implementation.
type Enqueuer interface {
	EnqueueDeliverLog(logID string) error
}
