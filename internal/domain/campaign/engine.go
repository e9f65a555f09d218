package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"notivio/internal/common"
	"notivio/internal/domain/notification"
	"notivio/internal/metrics"
)

// DefaultMessagesPerMinute applies when a campaign is created without an
// explicit throttle.
const DefaultMessagesPerMinute = 60

// Sender is the slice of the notification service the engine needs.
type Sender interface {
	RecordAttempt(ctx context.Context, spec notification.AttemptSpec) (*notification.NotificationLog, error)
	Retry(ctx context.Context, logID string) (*notification.NotificationLog, error)
}

// SettingsSource loads the settings snapshot once per dispatch run.
// notification.EntitySource satisfies it.
type SettingsSource interface {
	Settings(ctx context.Context) ([]notification.Setting, error)
}

// Enqueuer defers a dispatch run to the background queue.
type Enqueuer interface {
	EnqueueDispatch(campaignID string) error
}

// Engine expands campaign targets, throttles sends, chooses inline-vs-queued
// execution, keeps the counters, and drives the lifecycle.
type Engine struct {
	store    Store
	sender   Sender
	expander TargetExpander
	settings SettingsSource
	renderer *notification.Renderer
	clock    notification.Clock
	policy   DispatchPolicy
	enqueuer Enqueuer
}

// NewEngine creates a new dispatch engine.
func NewEngine(store Store, sender Sender, expander TargetExpander, settings SettingsSource, renderer *notification.Renderer, clock notification.Clock, policy DispatchPolicy, enqueuer Enqueuer) *Engine {
	return &Engine{
		store:    store,
		sender:   sender,
		expander: expander,
		settings: settings,
		renderer: renderer,
		clock:    clock,
		policy:   policy,
		enqueuer: enqueuer,
	}
}

// Create validates and persists a campaign in draft, or scheduled when a
// future schedule is given.
func (e *Engine) Create(ctx context.Context, req *CreateRequest) (*Campaign, error) {
	mpm := req.MessagesPerMinute
	if mpm == 0 {
		mpm = DefaultMessagesPerMinute
	}
	if mpm < MinMessagesPerMinute || mpm > MaxMessagesPerMinute {
		return nil, common.NewValidationError(fmt.Sprintf("messages_per_minute must be between %d and %d", MinMessagesPerMinute, MaxMessagesPerMinute))
	}
	if !req.Channel.IsDeliverable() {
		return nil, common.NewValidationError(fmt.Sprintf("unsupported channel: %s", req.Channel))
	}

	status := StatusDraft
	if req.ScheduledAt != nil {
		if !req.ScheduledAt.After(e.clock.Now()) {
			return nil, common.NewValidationError("scheduled_at must be in the future")
		}
		status = StatusScheduled
	}

	c := &Campaign{
		Name:              req.Name,
		MessageTemplate:   req.MessageTemplate,
		Channel:           req.Channel,
		Status:            status,
		TargetCriteria:    req.TargetCriteria,
		ScheduledAt:       req.ScheduledAt,
		MessagesPerMinute: mpm,
		AttachmentURL:     req.AttachmentURL,
	}

	if err := e.store.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("creating campaign: %w", err)
	}

	slog.Info("campaign created",
		"campaign_id", c.ID,
		"name", c.Name,
		"status", c.Status,
		"messages_per_minute", c.MessagesPerMinute,
	)
	return c, nil
}

// Get retrieves a campaign by id.
func (e *Engine) Get(ctx context.Context, id string) (*Campaign, error) {
	c, err := e.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching campaign: %w", err)
	}
	if c == nil {
		return nil, common.NewNotFoundError("campaign", id)
	}
	return c, nil
}

// Execute expands the target criteria, records targets and total_leads, then
// either runs the dispatch inline or hands it to the queue, per policy.
func (e *Engine) Execute(ctx context.Context, id string) (*ExecuteResponse, error) {
	c, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.CanExecute() {
		return nil, common.NewStateConflictError(fmt.Sprintf("campaign %s is %s, only draft or scheduled campaigns can execute", id, c.Status))
	}
	if c.TargetCriteria.IsEmpty() {
		return nil, common.NewValidationError("campaign has no target criteria")
	}

	leads, err := e.expander.Expand(ctx, c.TargetCriteria)
	if err != nil {
		return nil, fmt.Errorf("expanding target criteria: %w", err)
	}
	if len(leads) == 0 {
		return nil, common.NewValidationError("target criteria matched no leads")
	}

	targets := make([]*Target, 0, len(leads))
	for _, lead := range leads {
		recipient := lead.Phone
		if c.Channel == notification.ChannelEmail {
			recipient = lead.Email
		}
		targets = append(targets, &Target{
			CampaignID: c.ID,
			LeadID:     lead.ID,
			LeadName:   lead.Name,
			Recipient:  recipient,
		})
	}

	if err := e.store.CreateTargets(ctx, targets); err != nil {
		return nil, fmt.Errorf("creating campaign targets: %w", err)
	}
	if err := e.store.SetTotalLeads(ctx, c.ID, len(targets)); err != nil {
		return nil, fmt.Errorf("recording total leads: %w", err)
	}

	if e.policy.Queue(len(targets)) {
		if c.Status == StatusDraft {
			if _, err := e.store.TransitionStatus(ctx, c.ID, []Status{StatusDraft}, StatusScheduled); err != nil {
				return nil, fmt.Errorf("scheduling campaign: %w", err)
			}
		}
		if err := e.enqueuer.EnqueueDispatch(c.ID); err != nil {
			return nil, fmt.Errorf("enqueuing campaign dispatch: %w", err)
		}
		metrics.CampaignDispatches.WithLabelValues("queued").Inc()
		slog.Info("campaign dispatch queued", "campaign_id", c.ID, "total_leads", len(targets))
		return &ExecuteResponse{CampaignID: c.ID, Status: "queued", TotalLeads: len(targets)}, nil
	}

	ok, err := e.store.TransitionStatus(ctx, c.ID, []Status{StatusDraft, StatusScheduled}, StatusExecuting)
	if err != nil {
		return nil, fmt.Errorf("starting campaign: %w", err)
	}
	if !ok {
		return nil, common.NewStateConflictError(fmt.Sprintf("campaign %s changed state concurrently", id))
	}
	metrics.CampaignDispatches.WithLabelValues("inline").Inc()

	if err := e.runDispatch(ctx, c.ID); err != nil {
		return nil, err
	}

	final, err := e.Get(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return &ExecuteResponse{
		CampaignID:  final.ID,
		Status:      string(final.Status),
		TotalLeads:  final.TotalLeads,
		SentCount:   final.SentCount,
		FailedCount: final.FailedCount,
	}, nil
}

// Dispatch is the worker entry point for queued runs and queued resumes: it
// claims the campaign and runs the send loop.
func (e *Engine) Dispatch(ctx context.Context, id string) error {
	ok, err := e.store.TransitionStatus(ctx, id, []Status{StatusScheduled, StatusPaused}, StatusExecuting)
	if err != nil {
		return fmt.Errorf("claiming campaign %s: %w", id, err)
	}
	if !ok {
		// Cancelled, completed or already claimed; nothing to do.
		slog.Info("campaign not claimable, skipping dispatch", "campaign_id", id)
		return nil
	}
	return e.runDispatch(ctx, id)
}

// runDispatch sends to every unsent target in throttle-respecting chunks.
// The campaign must already be executing. Per-recipient failures are
// absorbed into the counters; only infrastructure errors propagate.
func (e *Engine) runDispatch(ctx context.Context, id string) error {
	c, err := e.Get(ctx, id)
	if err != nil {
		return err
	}

	targets, err := e.store.ListTargets(ctx, id)
	if err != nil {
		return fmt.Errorf("listing campaign targets: %w", err)
	}

	// Resume support: targets that already produced a log are done.
	var pending []*Target
	for _, t := range targets {
		if t.NotificationLogID == "" {
			pending = append(pending, t)
		}
	}

	rawSettings, err := e.settings.Settings(ctx)
	if err != nil {
		return fmt.Errorf("loading settings snapshot: %w", err)
	}
	settings := notification.FlattenSettings(rawSettings)

	chunkSize := c.MessagesPerMinute
	if chunkSize < 1 {
		chunkSize = 1
	}

	for start := 0; start < len(pending); start += chunkSize {
		if start > 0 {
			// The sole intentional sleep: it keeps any rolling 60-second
			// window at or under messages_per_minute and must stay
			// cancellable.
			if err := e.clock.Sleep(ctx, time.Minute); err != nil {
				return err
			}
		}

		// Cooperative pause/cancel check between chunks, never mid-chunk.
		cur, err := e.Get(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status != StatusExecuting {
			slog.Info("campaign dispatch stopped",
				"campaign_id", id,
				"status", cur.Status,
				"processed", start,
			)
			return nil
		}

		end := start + chunkSize
		if end > len(pending) {
			end = len(pending)
		}
		for _, target := range pending[start:end] {
			e.sendToTarget(ctx, c, target, settings)
		}
	}

	if _, err := e.store.TransitionStatus(ctx, id, []Status{StatusExecuting}, StatusCompleted); err != nil {
		return fmt.Errorf("completing campaign: %w", err)
	}

	slog.Info("campaign dispatch completed", "campaign_id", id, "targets", len(pending))
	return nil
}

// sendToTarget renders and sends one recipient, links the log to the target
// and bumps exactly one counter. A recipient failure never aborts the run.
func (e *Engine) sendToTarget(ctx context.Context, c *Campaign, target *Target, settings map[string]map[string]string) {
	renderCtx := &notification.Context{
		Customer: &notification.Customer{
			ID:    target.LeadID,
			Name:  target.LeadName,
			Phone: target.Recipient,
			Email: target.Recipient,
		},
		Settings: settings,
	}
	body := e.renderer.Render(c.MessageTemplate, renderCtx)

	log, err := e.sender.RecordAttempt(ctx, notification.AttemptSpec{
		Channel:       c.Channel,
		Recipient:     target.Recipient,
		Body:          body,
		AttachmentURL: c.AttachmentURL,
		CampaignID:    c.ID,
	})
	if err != nil {
		slog.Error("campaign send attempt could not be recorded",
			"campaign_id", c.ID,
			"lead_id", target.LeadID,
			"error", err,
		)
		if err := e.store.IncrementFailed(ctx, c.ID); err != nil {
			slog.Error("failed to increment failed_count", "campaign_id", c.ID, "error", err)
		}
		return
	}

	if err := e.store.SetTargetLog(ctx, target.ID, log.ID); err != nil {
		slog.Error("failed to link log to target",
			"campaign_id", c.ID,
			"target_id", target.ID,
			"log_id", log.ID,
			"error", err,
		)
	}
	target.NotificationLogID = log.ID

	if log.Status == notification.StatusSent {
		if err := e.store.IncrementSent(ctx, c.ID); err != nil {
			slog.Error("failed to increment sent_count", "campaign_id", c.ID, "error", err)
		}
	} else {
		if err := e.store.IncrementFailed(ctx, c.ID); err != nil {
			slog.Error("failed to increment failed_count", "campaign_id", c.ID, "error", err)
		}
	}
}

// Pause stops an executing campaign before its next chunk.
func (e *Engine) Pause(ctx context.Context, id string) error {
	c, err := e.Get(ctx, id)
	if err != nil {
		return err
	}
	if !c.CanPause() {
		return common.NewStateConflictError(fmt.Sprintf("campaign %s is %s, only executing campaigns can be paused", id, c.Status))
	}

	ok, err := e.store.TransitionStatus(ctx, id, []Status{StatusExecuting}, StatusPaused)
	if err != nil {
		return fmt.Errorf("pausing campaign: %w", err)
	}
	if !ok {
		return common.NewStateConflictError(fmt.Sprintf("campaign %s changed state concurrently", id))
	}

	slog.Info("campaign paused", "campaign_id", id)
	return nil
}

// Resume re-enters executing and continues with the unsent targets only.
// Large remainders go back to the queue.
func (e *Engine) Resume(ctx context.Context, id string) (*ExecuteResponse, error) {
	c, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusPaused {
		return nil, common.NewStateConflictError(fmt.Sprintf("campaign %s is %s, only paused campaigns can resume", id, c.Status))
	}

	targets, err := e.store.ListTargets(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listing campaign targets: %w", err)
	}
	remaining := 0
	for _, t := range targets {
		if t.NotificationLogID == "" {
			remaining++
		}
	}

	if e.policy.Queue(remaining) {
		if err := e.enqueuer.EnqueueDispatch(id); err != nil {
			return nil, fmt.Errorf("enqueuing campaign dispatch: %w", err)
		}
		slog.Info("campaign resume queued", "campaign_id", id, "remaining", remaining)
		return &ExecuteResponse{CampaignID: id, Status: "queued", TotalLeads: c.TotalLeads}, nil
	}

	ok, err := e.store.TransitionStatus(ctx, id, []Status{StatusPaused}, StatusExecuting)
	if err != nil {
		return nil, fmt.Errorf("resuming campaign: %w", err)
	}
	if !ok {
		return nil, common.NewStateConflictError(fmt.Sprintf("campaign %s changed state concurrently", id))
	}

	if err := e.runDispatch(ctx, id); err != nil {
		return nil, err
	}

	final, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ExecuteResponse{
		CampaignID:  final.ID,
		Status:      string(final.Status),
		TotalLeads:  final.TotalLeads,
		SentCount:   final.SentCount,
		FailedCount: final.FailedCount,
	}, nil
}

// Cancel moves any non-terminal campaign to cancelled.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	c, err := e.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.IsTerminal() {
		return common.NewStateConflictError(fmt.Sprintf("campaign %s is already %s", id, c.Status))
	}

	ok, err := e.store.TransitionStatus(ctx, id, []Status{StatusDraft, StatusScheduled, StatusExecuting, StatusPaused}, StatusCancelled)
	if err != nil {
		return fmt.Errorf("cancelling campaign: %w", err)
	}
	if !ok {
		return common.NewStateConflictError(fmt.Sprintf("campaign %s changed state concurrently", id))
	}

	slog.Info("campaign cancelled", "campaign_id", id)
	return nil
}

// RetryFailed re-attempts every target whose log is still retryable. Targets
// whose logs exhausted their attempts, or are not failed, are skipped.
func (e *Engine) RetryFailed(ctx context.Context, id string) (*RetryFailedResponse, error) {
	if _, err := e.Get(ctx, id); err != nil {
		return nil, err
	}

	targets, err := e.store.ListTargets(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listing campaign targets: %w", err)
	}

	resp := &RetryFailedResponse{CampaignID: id}
	for _, target := range targets {
		if target.NotificationLogID == "" {
			continue
		}

		log, err := e.sender.Retry(ctx, target.NotificationLogID)
		if err != nil {
			var retryNotAllowed *common.RetryNotAllowedError
			var notFound *common.NotFoundError
			if errors.As(err, &retryNotAllowed) || errors.As(err, &notFound) {
				resp.Skipped++
				continue
			}
			return nil, fmt.Errorf("retrying log %s: %w", target.NotificationLogID, err)
		}

		resp.Retried++
		if log.Status == notification.StatusSent {
			// The attempt had been counted as failed; move it over, failure
			// first so the counter invariants hold at every point.
			if err := e.store.DecrementFailed(ctx, id); err != nil {
				slog.Error("failed to decrement failed_count", "campaign_id", id, "error", err)
			}
			if err := e.store.IncrementSent(ctx, id); err != nil {
				slog.Error("failed to increment sent_count", "campaign_id", id, "error", err)
			}
		}
	}

	slog.Info("campaign retry-failed finished",
		"campaign_id", id,
		"retried", resp.Retried,
		"skipped", resp.Skipped,
	)
	return resp, nil
}
