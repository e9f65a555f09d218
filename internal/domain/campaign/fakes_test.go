package campaign

import (
	"context"
	"fmt"
	"time"

	"notivio/internal/domain/notification"
)

// fakeStore is an in-memory campaign Store.
type fakeStore struct {
	campaigns map[string]*Campaign
	targets   map[string][]*Target
	nextID    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		campaigns: make(map[string]*Campaign),
		targets:   make(map[string][]*Target),
	}
}

func (f *fakeStore) Create(ctx context.Context, c *Campaign) error {
	f.nextID++
	c.ID = fmt.Sprintf("camp-%d", f.nextID)
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	f.campaigns[c.ID] = c
	return nil
}

func (f *fakeStore) GetByID(ctx context.Context, id string) (*Campaign, error) {
	c, ok := f.campaigns[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) TransitionStatus(ctx context.Context, id string, from []Status, to Status) (bool, error) {
	c, ok := f.campaigns[id]
	if !ok {
		return false, nil
	}
	for _, st := range from {
		if c.Status == st {
			c.Status = to
			c.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) SetTotalLeads(ctx context.Context, id string, total int) error {
	if c, ok := f.campaigns[id]; ok {
		c.TotalLeads = total
	}
	return nil
}

func (f *fakeStore) CreateTargets(ctx context.Context, targets []*Target) error {
	for _, t := range targets {
		f.nextID++
		t.ID = fmt.Sprintf("tgt-%d", f.nextID)
		f.targets[t.CampaignID] = append(f.targets[t.CampaignID], t)
	}
	return nil
}

func (f *fakeStore) ListTargets(ctx context.Context, campaignID string) ([]*Target, error) {
	return f.targets[campaignID], nil
}

func (f *fakeStore) SetTargetLog(ctx context.Context, targetID, logID string) error {
	for _, targets := range f.targets {
		for _, t := range targets {
			if t.ID == targetID {
				t.NotificationLogID = logID
				return nil
			}
		}
	}
	return fmt.Errorf("target %s not found", targetID)
}

func (f *fakeStore) IncrementSent(ctx context.Context, campaignID string) error {
	f.campaigns[campaignID].SentCount++
	return nil
}

func (f *fakeStore) IncrementFailed(ctx context.Context, campaignID string) error {
	f.campaigns[campaignID].FailedCount++
	return nil
}

func (f *fakeStore) DecrementFailed(ctx context.Context, campaignID string) error {
	f.campaigns[campaignID].FailedCount--
	return nil
}

func (f *fakeStore) IncrementDelivered(ctx context.Context, campaignID string) error {
	f.campaigns[campaignID].DeliveredCount++
	return nil
}

func (f *fakeStore) IncrementRead(ctx context.Context, campaignID string) error {
	f.campaigns[campaignID].ReadCount++
	return nil
}

// fakeSender records attempts and produces sent or failed logs per recipient.
type fakeSender struct {
	attempts     []notification.AttemptSpec
	failFor      map[string]bool
	retryResults map[string]retryResult
	nextID       int
}

type retryResult struct {
	log *notification.NotificationLog
	err error
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		failFor:      make(map[string]bool),
		retryResults: make(map[string]retryResult),
	}
}

func (f *fakeSender) RecordAttempt(ctx context.Context, spec notification.AttemptSpec) (*notification.NotificationLog, error) {
	f.attempts = append(f.attempts, spec)
	f.nextID++

	status := notification.StatusSent
	if f.failFor[spec.Recipient] {
		status = notification.StatusFailed
	}
	return &notification.NotificationLog{
		ID:         fmt.Sprintf("log-%d", f.nextID),
		CampaignID: spec.CampaignID,
		Channel:    spec.Channel,
		Recipient:  spec.Recipient,
		Status:     status,
	}, nil
}

func (f *fakeSender) Retry(ctx context.Context, logID string) (*notification.NotificationLog, error) {
	r, ok := f.retryResults[logID]
	if !ok {
		return nil, fmt.Errorf("unexpected retry for %s", logID)
	}
	return r.log, r.err
}

// fakeExpander returns a fixed lead list.
type fakeExpander struct {
	leads []notification.Lead
	err   error
}

func (f *fakeExpander) Expand(ctx context.Context, criteria TargetCriteria) ([]notification.Lead, error) {
	return f.leads, f.err
}

// fakeSettings returns a fixed settings snapshot and counts loads.
type fakeSettings struct {
	settings []notification.Setting
	loads    int
}

func (f *fakeSettings) Settings(ctx context.Context) ([]notification.Setting, error) {
	f.loads++
	return f.settings, nil
}

// fakeClock has a fixed now, records sleeps and can run a hook on each sleep.
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

// fakeEnqueuer records queued dispatches.
type fakeEnqueuer struct {
	dispatches []string
}

func (f *fakeEnqueuer) EnqueueDispatch(campaignID string) error {
	f.dispatches = append(f.dispatches, campaignID)
	return nil
}

func makeLeads(n int) []notification.Lead {
	leads := make([]notification.Lead, n)
	for i := range leads {
		leads[i] = notification.Lead{
			ID:    fmt.Sprintf("lead-%d", i+1),
			Name:  fmt.Sprintf("Lead %d", i+1),
			Phone: fmt.Sprintf("+39%04d", i+1),
			Email: fmt.Sprintf("lead%d@example.com", i+1),
		}
	}
	return leads
}
