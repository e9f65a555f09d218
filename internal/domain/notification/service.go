package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"notivio/internal/common"
	"notivio/internal/metrics"
)

// DefaultSendTimeout bounds a single transport call. A slow provider becomes
// a failed attempt, not an indefinite hang.
const DefaultSendTimeout = 15 * time.Second

// DefaultBulkInlineLimit is the largest ad-hoc bulk send executed inline;
// anything bigger is handed to the background queue.
const DefaultBulkInlineLimit = 10

// AttemptSpec describes one send attempt to record.
type AttemptSpec struct {
	Channel            Channel
	Recipient          string
	Subject            string
	Body               string
	AttachmentURL      string
	CampaignID         string
	TemplateID         string
	NotificationTypeID string
}

// Service orchestrates single and bulk sends: build context, render, record
// a log, invoke the transport, and absorb transport failures into the log.
type Service struct {
	store       Store
	transports  map[Channel]Transport
	builder     *ContextBuilder
	renderer    *Renderer
	enqueuer    Enqueuer
	rateLimiter RecipientRateLimiter
	clock       Clock

	sendTimeout     time.Duration
	bulkInlineLimit int
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithSendTimeout overrides the per-send transport timeout.
func WithSendTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.sendTimeout = d }
}

// WithBulkInlineLimit overrides the inline threshold for bulk sends.
func WithBulkInlineLimit(n int) ServiceOption {
	return func(s *Service) { s.bulkInlineLimit = n }
}

// WithClock overrides the wall clock used for archive cutoffs.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) { s.clock = clock }
}

// NewService creates a new notification service.
func NewService(store Store, builder *ContextBuilder, renderer *Renderer, enqueuer Enqueuer, rateLimiter RecipientRateLimiter, opts ...ServiceOption) *Service {
	s := &Service{
		store:           store,
		transports:      make(map[Channel]Transport),
		builder:         builder,
		renderer:        renderer,
		enqueuer:        enqueuer,
		rateLimiter:     rateLimiter,
		clock:           SystemClock(),
		sendTimeout:     DefaultSendTimeout,
		bulkInlineLimit: DefaultBulkInlineLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterTransport wires a channel transport into the service.
func (s *Service) RegisterTransport(t Transport) {
	s.transports[t.Channel()] = t
}

// RecordAttempt persists a pending log for the attempt and delivers it.
// Transport failures are recovered into the log (status failed), never
// returned; the error return covers persistence and validation only.
func (s *Service) RecordAttempt(ctx context.Context, spec AttemptSpec) (*NotificationLog, error) {
	if !spec.Channel.IsDeliverable() {
		return nil, common.NewValidationError(fmt.Sprintf("unsupported channel: %s", spec.Channel))
	}
	if spec.Recipient == "" {
		return nil, common.NewValidationError("recipient is required")
	}

	log := &NotificationLog{
		NotificationTypeID: spec.NotificationTypeID,
		TemplateID:         spec.TemplateID,
		CampaignID:         spec.CampaignID,
		Channel:            spec.Channel,
		Recipient:          spec.Recipient,
		Subject:            spec.Subject,
		MessageContent:     spec.Body,
		AttachmentURL:      spec.AttachmentURL,
		Status:             StatusPending,
		AttemptCount:       1,
		MaxAttempts:        DefaultMaxAttempts,
	}

	if err := s.store.CreateLog(ctx, log); err != nil {
		return nil, fmt.Errorf("creating notification log: %w", err)
	}

	s.deliver(ctx, log)
	return log, nil
}

// CreatePending persists a pending log without delivering it. Used by the
// queued bulk path; the worker delivers later via DeliverLog.
func (s *Service) CreatePending(ctx context.Context, spec AttemptSpec) (*NotificationLog, error) {
	if !spec.Channel.IsDeliverable() {
		return nil, common.NewValidationError(fmt.Sprintf("unsupported channel: %s", spec.Channel))
	}

	log := &NotificationLog{
		NotificationTypeID: spec.NotificationTypeID,
		TemplateID:         spec.TemplateID,
		CampaignID:         spec.CampaignID,
		Channel:            spec.Channel,
		Recipient:          spec.Recipient,
		Subject:            spec.Subject,
		MessageContent:     spec.Body,
		AttachmentURL:      spec.AttachmentURL,
		Status:             StatusPending,
		AttemptCount:       1,
		MaxAttempts:        DefaultMaxAttempts,
	}

	if err := s.store.CreateLog(ctx, log); err != nil {
		return nil, fmt.Errorf("creating notification log: %w", err)
	}
	return log, nil
}

// DeliverLog fetches a pending log and sends it. Used by the queue worker
// and the reaper's recovery path.
func (s *Service) DeliverLog(ctx context.Context, logID string) error {
	log, err := s.store.GetLog(ctx, logID)
	if err != nil {
		return fmt.Errorf("fetching notification log %s: %w", logID, err)
	}
	if log == nil {
		return common.NewNotFoundError("notification log", logID)
	}
	if log.Status != StatusPending {
		// Already handled; delivering again would duplicate the message.
		slog.Info("skipping non-pending log", "log_id", logID, "status", log.Status)
		return nil
	}

	s.deliver(ctx, log)
	return nil
}

// deliver invokes the transport and records the outcome on the log.
func (s *Service) deliver(ctx context.Context, log *NotificationLog) {
	transport, ok := s.transports[log.Channel]
	if !ok {
		reason := fmt.Sprintf("no transport registered for channel %s", log.Channel)
		s.markFailed(ctx, log, reason)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	providerID, err := transport.Send(sendCtx, &OutboundMessage{
		To:            log.Recipient,
		Subject:       log.Subject,
		Body:          log.MessageContent,
		AttachmentURL: log.AttachmentURL,
	})
	if err != nil {
		s.markFailed(ctx, log, err.Error())
		slog.Error("notification delivery failed",
			"log_id", log.ID,
			"channel", log.Channel,
			"to", log.Recipient,
			"error", err,
		)
		return
	}

	log.Status = StatusSent
	log.ProviderMessageID = providerID
	if err := s.store.UpdateLogStatus(ctx, log.ID, StatusSent, providerID, ""); err != nil {
		slog.Error("failed to update status to sent", "log_id", log.ID, "error", err)
	}
	metrics.SendsTotal.WithLabelValues(string(log.Channel), "sent").Inc()

	slog.Info("notification sent",
		"log_id", log.ID,
		"channel", log.Channel,
		"to", log.Recipient,
		"provider_message_id", providerID,
	)
}

func (s *Service) markFailed(ctx context.Context, log *NotificationLog, reason string) {
	log.Status = StatusFailed
	log.ErrorReason = reason
	if err := s.store.UpdateLogStatus(ctx, log.ID, StatusFailed, "", reason); err != nil {
		slog.Error("failed to update status to failed", "log_id", log.ID, "error", err)
	}
	metrics.SendsTotal.WithLabelValues(string(log.Channel), "failed").Inc()
}

// Retry re-attempts a failed log on the same recipient and body. The original
// outcome stays in attempt_count history; the status resets to pending before
// the new attempt.
func (s *Service) Retry(ctx context.Context, logID string) (*NotificationLog, error) {
	log, err := s.store.GetLog(ctx, logID)
	if err != nil {
		return nil, fmt.Errorf("fetching notification log %s: %w", logID, err)
	}
	if log == nil {
		return nil, common.NewNotFoundError("notification log", logID)
	}
	if !log.CanRetry() {
		if log.Status != StatusFailed {
			return nil, common.NewRetryNotAllowedError(fmt.Sprintf("log %s is %s, only failed logs can be retried", logID, log.Status))
		}
		return nil, common.NewRetryNotAllowedError(fmt.Sprintf("log %s exhausted its %d attempts", logID, log.MaxAttempts))
	}

	if err := s.store.MarkRetry(ctx, logID); err != nil {
		return nil, fmt.Errorf("marking retry: %w", err)
	}
	log.Status = StatusPending
	log.AttemptCount++
	log.ErrorReason = ""

	s.deliver(ctx, log)
	return log, nil
}

// Send renders and delivers one ad-hoc message. When entity ids are present
// the body is rendered against their context first.
func (s *Service) Send(ctx context.Context, req *SendRequest) (*SendResult, error) {
	body, subject, err := s.renderRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	if s.rateLimiter != nil {
		allowed, err := s.rateLimiter.Allow(ctx, req.To)
		if err != nil {
			slog.Error("rate limit check failed, proceeding without limit", "recipient", req.To, "error", err)
			// Fail open rather than blocking sends when Redis is down.
		} else if !allowed {
			return nil, common.NewValidationError(fmt.Sprintf("rate limit exceeded for recipient: %s", req.To))
		}
	}

	log, err := s.RecordAttempt(ctx, AttemptSpec{
		Channel:       req.Channel,
		Recipient:     req.To,
		Subject:       subject,
		Body:          body,
		AttachmentURL: req.Attachment,
	})
	if err != nil {
		return nil, err
	}

	return resultFromLog(log), nil
}

// SendBulk delivers to every recipient. Small batches run inline and report
// per-recipient results; batches above the inline limit are queued, one
// deferred delivery per pending log.
func (s *Service) SendBulk(ctx context.Context, req *BulkSendRequest) (*BulkSendResponse, error) {
	if len(req.Recipients) > s.bulkInlineLimit {
		return s.queueBulk(ctx, req)
	}

	resp := &BulkSendResponse{Status: "completed"}
	for _, target := range req.Recipients {
		body, err := s.renderForTarget(ctx, req.Body, target)
		if err != nil {
			// A single bad recipient never aborts the rest of the batch.
			resp.FailedCount++
			resp.Results = append(resp.Results, SendResult{
				Recipient: target.To,
				Status:    StatusFailed,
				Error:     err.Error(),
			})
			continue
		}

		log, err := s.RecordAttempt(ctx, AttemptSpec{
			Channel:       req.Channel,
			Recipient:     target.To,
			Subject:       req.Subject,
			Body:          body,
			AttachmentURL: req.Attachment,
		})
		if err != nil {
			resp.FailedCount++
			resp.Results = append(resp.Results, SendResult{
				Recipient: target.To,
				Status:    StatusFailed,
				Error:     err.Error(),
			})
			continue
		}

		if log.Status == StatusSent {
			resp.SentCount++
		} else {
			resp.FailedCount++
		}
		resp.Results = append(resp.Results, *resultFromLog(log))
	}

	return resp, nil
}

func (s *Service) queueBulk(ctx context.Context, req *BulkSendRequest) (*BulkSendResponse, error) {
	queued := 0
	for _, target := range req.Recipients {
		body, err := s.renderForTarget(ctx, req.Body, target)
		if err != nil {
			slog.Error("skipping bulk recipient", "to", target.To, "error", err)
			continue
		}

		log, err := s.CreatePending(ctx, AttemptSpec{
			Channel:       req.Channel,
			Recipient:     target.To,
			Subject:       req.Subject,
			Body:          body,
			AttachmentURL: req.Attachment,
		})
		if err != nil {
			slog.Error("failed to create pending log for bulk send", "to", target.To, "error", err)
			continue
		}

		if err := s.enqueuer.EnqueueDeliverLog(log.ID); err != nil {
			s.markFailed(ctx, log, "failed to enqueue: "+err.Error())
			continue
		}
		queued++
	}

	slog.Info("bulk send queued", "recipients", len(req.Recipients), "queued", queued)
	return &BulkSendResponse{Status: "queued"}, nil
}

// Preview renders a template body against a context source without
// persisting anything.
func (s *Service) Preview(ctx context.Context, body string, src ContextSource) (string, error) {
	renderCtx, err := s.builder.Build(ctx, src)
	if err != nil {
		return "", err
	}
	return s.renderer.Render(body, renderCtx), nil
}

func (s *Service) renderRequest(ctx context.Context, req *SendRequest) (body, subject string, err error) {
	src, ok := sourceFromIDs(req.CustomerID, req.InsuranceID, req.QuotationID)
	if !ok {
		// No entity references: resolve settings and system variables only.
		renderCtx, err := s.builder.SettingsOnly(ctx)
		if err != nil {
			return "", "", err
		}
		return s.renderer.Render(req.Body, renderCtx), req.Subject, nil
	}

	renderCtx, err := s.builder.Build(ctx, src)
	if err != nil {
		return "", "", err
	}
	return s.renderer.Render(req.Body, renderCtx), s.renderer.Render(req.Subject, renderCtx), nil
}

func (s *Service) renderForTarget(ctx context.Context, body string, target BulkTarget) (string, error) {
	if target.CustomerID == "" {
		renderCtx, err := s.builder.SettingsOnly(ctx)
		if err != nil {
			return "", err
		}
		return s.renderer.Render(body, renderCtx), nil
	}

	renderCtx, err := s.builder.Build(ctx, FromCustomer{CustomerID: target.CustomerID})
	if err != nil {
		return "", err
	}
	return s.renderer.Render(body, renderCtx), nil
}

// sourceFromIDs picks the context source for a send request. Insurance wins
// over quotation when both are supplied.
func sourceFromIDs(customerID, insuranceID, quotationID string) (ContextSource, bool) {
	switch {
	case insuranceID != "":
		return FromInsurance{InsuranceID: insuranceID}, true
	case quotationID != "":
		return FromQuotation{QuotationID: quotationID}, true
	case customerID != "":
		return FromCustomer{CustomerID: customerID}, true
	}
	return nil, false
}

// GetLog retrieves a log by id.
func (s *Service) GetLog(ctx context.Context, id string) (*NotificationLog, error) {
	log, err := s.store.GetLog(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching notification log: %w", err)
	}
	if log == nil {
		return nil, common.NewNotFoundError("notification log", id)
	}
	return log, nil
}

// ListLogs retrieves logs with pagination and filtering.
func (s *Service) ListLogs(ctx context.Context, filter ListFilter) (*ListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	logs, total, err := s.store.ListLogs(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing notification logs: %w", err)
	}

	return &ListResponse{
		Logs:     logs,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

// ArchiveOlderThan removes logs older than the given number of days, never
// touching logs attached to a non-terminal campaign. Returns count removed.
func (s *Service) ArchiveOlderThan(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		return 0, common.NewValidationError("days must be positive")
	}
	cutoff := s.clock.Now().AddDate(0, 0, -days)
	removed, err := s.store.DeleteLogsOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("archiving logs: %w", err)
	}
	slog.Info("archived notification logs", "days", days, "removed", removed)
	return removed, nil
}

func resultFromLog(log *NotificationLog) *SendResult {
	return &SendResult{
		LogID:     log.ID,
		Recipient: log.Recipient,
		Status:    log.Status,
		Error:     log.ErrorReason,
	}
}
