package notification

import (
	"context"
	"fmt"
	"log/slog"

	"notivio/internal/common"
	"notivio/internal/metrics"
)

// WebhookMeta carries the optional fields a provider webhook may report.
type WebhookMeta struct {
	Timestamp         string
	ProviderMessageID string
	ErrorReason       string
}

// ReconcileResult reports the outcome of applying one webhook event.
type ReconcileResult struct {
	LogID     string `json:"log_id"`
	OldStatus Status `json:"old_status"`
	NewStatus Status `json:"new_status"`
	Applied   bool   `json:"applied"`
}

// Reconciler applies provider-reported delivery events to logs and campaign
// counters. Transitions are forward-only, which makes webhook replay and
// out-of-order arrival harmless: a replayed or stale event is a no-op and
// never double-increments a counter.
type Reconciler struct {
	store    Store
	counters CampaignCounters
}

// NewReconciler creates a new Reconciler. counters may be nil when no
// campaign engine is wired (e.g. in isolated tests).
func NewReconciler(store Store, counters CampaignCounters) *Reconciler {
	return &Reconciler{store: store, counters: counters}
}

// ApplyWebhookStatus maps the provider vocabulary to the canonical one and
// applies it when it moves the log strictly forward.
func (r *Reconciler) ApplyWebhookStatus(ctx context.Context, logID, rawStatus string, meta WebhookMeta) (*ReconcileResult, error) {
	status, ok := MapProviderStatus(rawStatus)
	if !ok {
		return nil, common.NewValidationError(fmt.Sprintf("unknown delivery status: %s", rawStatus))
	}

	log, err := r.store.GetLog(ctx, logID)
	if err != nil {
		return nil, fmt.Errorf("fetching notification log %s: %w", logID, err)
	}
	if log == nil {
		return nil, common.NewNotFoundError("notification log", logID)
	}

	result := &ReconcileResult{LogID: logID, OldStatus: log.Status, NewStatus: log.Status}

	if !IsForward(log.Status, status) {
		slog.Info("ignoring non-forward webhook transition",
			"log_id", logID,
			"current", log.Status,
			"reported", status,
		)
		return result, nil
	}

	// The conditional write closes the window between the read above and the
	// update: when two deliveries of the same event race, only the one that
	// still sees the old status wins, so the counters below move once.
	applied, err := r.store.AdvanceLogStatus(ctx, logID, log.Status, status, meta.ProviderMessageID, meta.ErrorReason)
	if err != nil {
		return nil, fmt.Errorf("updating log status: %w", err)
	}
	if !applied {
		slog.Info("log status moved concurrently, ignoring webhook",
			"log_id", logID,
			"read", log.Status,
			"reported", status,
		)
		return result, nil
	}
	result.NewStatus = status
	result.Applied = true
	metrics.WebhookEvents.WithLabelValues(string(status)).Inc()

	if log.CampaignID != "" && r.counters != nil {
		if err := r.bumpCampaign(ctx, log.CampaignID, log.Status, status); err != nil {
			slog.Error("failed to update campaign counters",
				"campaign_id", log.CampaignID,
				"log_id", logID,
				"error", err,
			)
		}
	}

	slog.Info("delivery status reconciled",
		"log_id", logID,
		"from", result.OldStatus,
		"to", status,
	)
	return result, nil
}

// bumpCampaign increments the campaign counters the transition skipped over.
// A pending→read jump counts both delivered and read so the invariant
// read_count ≤ delivered_count always holds.
func (r *Reconciler) bumpCampaign(ctx context.Context, campaignID string, from, to Status) error {
	if RankOf(from) < statusRank[StatusDelivered] && RankOf(to) >= statusRank[StatusDelivered] {
		if err := r.counters.IncrementDelivered(ctx, campaignID); err != nil {
			return err
		}
	}
	if RankOf(from) < statusRank[StatusRead] && RankOf(to) >= statusRank[StatusRead] {
		if err := r.counters.IncrementRead(ctx, campaignID); err != nil {
			return err
		}
	}
	return nil
}
