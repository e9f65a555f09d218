package notification

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeStore is an in-memory Store for tests.
type fakeStore struct {
	mu            sync.Mutex
	logs          map[string]*NotificationLog
	templates     map[string]*Template
	nextID        int
	createErr     error
	archiveCutoff time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		logs:      make(map[string]*NotificationLog),
		templates: make(map[string]*Template),
	}
}

func (f *fakeStore) CreateLog(ctx context.Context, log *NotificationLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	log.ID = fmt.Sprintf("log-%d", f.nextID)
	log.CreatedAt = time.Now()
	log.UpdatedAt = log.CreatedAt
	f.logs[log.ID] = log
	return nil
}

func (f *fakeStore) GetLog(ctx context.Context, id string) (*NotificationLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	log, ok := f.logs[id]
	if !ok {
		return nil, nil
	}
	// Return a copy, as a real store decodes a fresh value per read; callers
	// must not observe later in-place mutations of the stored record.
	cp := *log
	return &cp, nil
}

func (f *fakeStore) UpdateLogStatus(ctx context.Context, id string, status Status, providerMessageID, errorReason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	log, ok := f.logs[id]
	if !ok {
		return fmt.Errorf("log %s not found", id)
	}
	log.Status = status
	if providerMessageID != "" {
		log.ProviderMessageID = providerMessageID
	}
	log.ErrorReason = errorReason
	log.UpdatedAt = time.Now()
	return nil
}

func (f *fakeStore) AdvanceLogStatus(ctx context.Context, id string, from, to Status, providerMessageID, errorReason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	log, ok := f.logs[id]
	if !ok {
		return false, fmt.Errorf("log %s not found", id)
	}
	if log.Status != from {
		return false, nil
	}
	log.Status = to
	if providerMessageID != "" {
		log.ProviderMessageID = providerMessageID
	}
	if errorReason != "" {
		log.ErrorReason = errorReason
	}
	log.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeStore) MarkRetry(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	log, ok := f.logs[id]
	if !ok {
		return fmt.Errorf("log %s not found", id)
	}
	log.Status = StatusPending
	log.AttemptCount++
	log.ErrorReason = ""
	return nil
}

func (f *fakeStore) ListLogs(ctx context.Context, filter ListFilter) ([]*NotificationLog, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*NotificationLog
	for _, log := range f.logs {
		if filter.Status != "" && string(log.Status) != filter.Status {
			continue
		}
		if filter.CampaignID != "" && log.CampaignID != filter.CampaignID {
			continue
		}
		out = append(out, log)
	}
	return out, len(out), nil
}

func (f *fakeStore) ListStaleLogs(ctx context.Context, olderThan time.Time, limit int) ([]*NotificationLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*NotificationLog
	for _, log := range f.logs {
		if log.Status == StatusPending && log.CreatedAt.Before(olderThan) {
			out = append(out, log)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteLogsOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archiveCutoff = cutoff
	removed := 0
	for id, log := range f.logs {
		if log.CreatedAt.Before(cutoff) {
			delete(f.logs, id)
			removed++
		}
	}
	return removed, nil
}

func (f *fakeStore) GetTemplate(ctx context.Context, id string) (*Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.templates[id], nil
}

func (f *fakeStore) ListTemplates(ctx context.Context, notificationTypeID string) ([]*Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Template
	for _, t := range f.templates {
		if notificationTypeID != "" && t.NotificationTypeID != notificationTypeID {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeStore) SaveTemplate(ctx context.Context, t *Template) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ID == "" {
		f.nextID++
		t.ID = fmt.Sprintf("tpl-%d", f.nextID)
	}
	f.templates[t.ID] = t
	return nil
}

func (f *fakeStore) DeactivateTemplate(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.templates[id]; ok {
		t.IsActive = false
	}
	return nil
}

func (f *fakeStore) ListNotificationTypes(ctx context.Context) ([]*NotificationType, error) {
	return nil, nil
}

// fakeEntities is an in-memory EntitySource.
type fakeEntities struct {
	customers  map[string]*Customer
	insurances map[string]*Insurance
	quotations map[string]*Quotation
	settings   []Setting
	random     *Customer
}

func newFakeEntities() *fakeEntities {
	return &fakeEntities{
		customers:  make(map[string]*Customer),
		insurances: make(map[string]*Insurance),
		quotations: make(map[string]*Quotation),
	}
}

func (f *fakeEntities) CustomerByID(ctx context.Context, id string) (*Customer, error) {
	return f.customers[id], nil
}

func (f *fakeEntities) InsuranceByID(ctx context.Context, id string) (*Insurance, error) {
	return f.insurances[id], nil
}

func (f *fakeEntities) QuotationByID(ctx context.Context, id string) (*Quotation, error) {
	return f.quotations[id], nil
}

func (f *fakeEntities) RandomCustomer(ctx context.Context) (*Customer, error) {
	return f.random, nil
}

func (f *fakeEntities) Settings(ctx context.Context) ([]Setting, error) {
	return f.settings, nil
}

// fakeTransport records outbound messages and can fail selectively.
type fakeTransport struct {
	channel Channel
	failFor map[string]error
	sent    []*OutboundMessage
	nextID  int
}

func newFakeTransport(channel Channel) *fakeTransport {
	return &fakeTransport{channel: channel, failFor: make(map[string]error)}
}

func (f *fakeTransport) Channel() Channel { return f.channel }

func (f *fakeTransport) Send(ctx context.Context, msg *OutboundMessage) (string, error) {
	if err, ok := f.failFor[msg.To]; ok {
		return "", err
	}
	f.sent = append(f.sent, msg)
	f.nextID++
	return fmt.Sprintf("prov-%d", f.nextID), nil
}

// fakeEnqueuer records enqueued log ids.
type fakeEnqueuer struct {
	logIDs []string
	err    error
}

func (f *fakeEnqueuer) EnqueueDeliverLog(logID string) error {
	if f.err != nil {
		return f.err
	}
	f.logIDs = append(f.logIDs, logID)
	return nil
}

// fakeClock has a fixed now and records requested sleep time.
type fakeClock struct {
	now     time.Time
	slept   time.Duration
	onSleep func()
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.slept += d
	if f.onSleep != nil {
		f.onSleep()
	}
	return nil
}

// fakeLimiter is a switchable recipient rate limiter.
type fakeLimiter struct {
	allow bool
	err   error
	calls int
}

func (f *fakeLimiter) Allow(ctx context.Context, recipient string) (bool, error) {
	f.calls++
	return f.allow, f.err
}

// fakeCounters records campaign counter bumps.
type fakeCounters struct {
	delivered map[string]int
	read      map[string]int
}

func newFakeCounters() *fakeCounters {
	return &fakeCounters{delivered: make(map[string]int), read: make(map[string]int)}
}

func (f *fakeCounters) IncrementDelivered(ctx context.Context, campaignID string) error {
	f.delivered[campaignID]++
	return nil
}

func (f *fakeCounters) IncrementRead(ctx context.Context, campaignID string) error {
	f.read[campaignID]++
	return nil
}
