package campaign

import (
	"context"

	"notivio/internal/domain/notification"
)

// Store defines the contract for persisting campaigns and their targets.
// Implementations live in infra/store (Supabase).
type Store interface {
	// Create inserts a campaign and fills in its generated id and timestamps.
	Create(ctx context.Context, c *Campaign) error

	// GetByID retrieves a campaign. Returns nil, nil when absent.
	GetByID(ctx context.Context, id string) (*Campaign, error)

	// TransitionStatus moves a campaign from one of the given states to the
	// target state in a single conditional write. Returns false when the
	// campaign was not in any of the from states, which callers treat as a
	// lost race rather than an error.
	TransitionStatus(ctx context.Context, id string, from []Status, to Status) (bool, error)

	// SetTotalLeads records the expanded recipient count.
	SetTotalLeads(ctx context.Context, id string, total int) error

	// CreateTargets inserts the expanded recipient rows.
	CreateTargets(ctx context.Context, targets []*Target) error

	// ListTargets returns all targets of a campaign in enumeration order.
	ListTargets(ctx context.Context, campaignID string) ([]*Target, error)

	// SetTargetLog links a target to the log its send produced.
	SetTargetLog(ctx context.Context, targetID, logID string) error

	// Counter increments. Each is a single atomic update scoped by campaign
	// id — never a read-modify-write — so a dispatch completion and a webhook
	// racing on the same campaign cannot lose updates.
	IncrementSent(ctx context.Context, campaignID string) error
	// DecrementFailed compensates a failed send that later succeeded via
	// retry. Applied before the matching IncrementSent so
	// sent_count+failed_count never exceeds total_leads in between.
	DecrementFailed(ctx context.Context, campaignID string) error
	IncrementFailed(ctx context.Context, campaignID string) error
	IncrementDelivered(ctx context.Context, campaignID string) error
	IncrementRead(ctx context.Context, campaignID string) error
}

// TargetExpander turns target criteria into concrete leads. The Supabase
// implementation lives in infra/entities.
type TargetExpander interface {
	Expand(ctx context.Context, criteria TargetCriteria) ([]notification.Lead, error)
}
