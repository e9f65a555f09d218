package notification

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"notivio/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *fakeStore, *fakeTransport, *fakeEnqueuer, *fakeEntities) {
	t.Helper()

	store := newFakeStore()
	entities := newFakeEntities()
	transport := newFakeTransport(ChannelWhatsApp)
	enqueuer := &fakeEnqueuer{}
	clock := &fakeClock{now: time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)}

	opts = append([]ServiceOption{WithClock(clock)}, opts...)
	svc := NewService(store, NewContextBuilder(entities), NewRenderer(clock), enqueuer, nil, opts...)
	svc.RegisterTransport(transport)
	return svc, store, transport, enqueuer, entities
}

func TestRecordAttemptSuccess(t *testing.T) {
	svc, store, transport, _, _ := newTestService(t)

	log, err := svc.RecordAttempt(context.Background(), AttemptSpec{
		Channel:   ChannelWhatsApp,
		Recipient: "+393331234567",
		Body:      "hello",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusSent, log.Status)
	assert.Equal(t, "prov-1", log.ProviderMessageID)
	assert.Equal(t, 1, log.AttemptCount)
	assert.Len(t, transport.sent, 1)
	assert.Equal(t, StatusSent, store.logs[log.ID].Status)
}

func TestRecordAttemptTransportFailureIsAbsorbed(t *testing.T) {
	svc, store, transport, _, _ := newTestService(t)
	transport.failFor["+39000"] = errors.New("provider down")

	log, err := svc.RecordAttempt(context.Background(), AttemptSpec{
		Channel:   ChannelWhatsApp,
		Recipient: "+39000",
		Body:      "hello",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, log.Status)
	assert.Equal(t, "provider down", log.ErrorReason)
	assert.Equal(t, StatusFailed, store.logs[log.ID].Status)
}

func TestRecordAttemptNoTransport(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	log, err := svc.RecordAttempt(context.Background(), AttemptSpec{
		Channel:   ChannelEmail,
		Recipient: "a@b.com",
		Body:      "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, log.Status)
	assert.Contains(t, log.ErrorReason, "no transport registered")
}

func TestRecordAttemptValidation(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	var validation *common.ValidationError

	_, err := svc.RecordAttempt(context.Background(), AttemptSpec{Channel: ChannelBoth, Recipient: "x"})
	require.ErrorAs(t, err, &validation)

	_, err = svc.RecordAttempt(context.Background(), AttemptSpec{Channel: ChannelWhatsApp})
	require.ErrorAs(t, err, &validation)
}

func TestDeliverLogSkipsNonPending(t *testing.T) {
	svc, store, transport, _, _ := newTestService(t)

	log := &NotificationLog{Channel: ChannelWhatsApp, Recipient: "+391", Status: StatusSent}
	require.NoError(t, store.CreateLog(context.Background(), log))

	require.NoError(t, svc.DeliverLog(context.Background(), log.ID))
	assert.Empty(t, transport.sent)
}

func TestDeliverLogUnknownID(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	var notFound *common.NotFoundError
	err := svc.DeliverLog(context.Background(), "missing")
	require.ErrorAs(t, err, &notFound)
}

func TestRetrySucceedsOnSecondAttempt(t *testing.T) {
	svc, store, transport, _, _ := newTestService(t)
	transport.failFor["+391"] = errors.New("timeout")

	log, err := svc.RecordAttempt(context.Background(), AttemptSpec{
		Channel:   ChannelWhatsApp,
		Recipient: "+391",
		Body:      "hi",
	})
	require.NoError(t, err)
	require.Equal(t, StatusFailed, log.Status)

	delete(transport.failFor, "+391")

	retried, err := svc.Retry(context.Background(), log.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, retried.Status)
	assert.Equal(t, 2, retried.AttemptCount)
	assert.Empty(t, retried.ErrorReason)
	assert.Equal(t, StatusSent, store.logs[log.ID].Status)
}

func TestRetryRefusedForNonFailed(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	log, err := svc.RecordAttempt(context.Background(), AttemptSpec{
		Channel:   ChannelWhatsApp,
		Recipient: "+391",
		Body:      "hi",
	})
	require.NoError(t, err)
	require.Equal(t, StatusSent, log.Status)

	var refused *common.RetryNotAllowedError
	_, err = svc.Retry(context.Background(), log.ID)
	require.ErrorAs(t, err, &refused)
}

func TestRetryRefusedAfterMaxAttempts(t *testing.T) {
	svc, store, transport, _, _ := newTestService(t)
	transport.failFor["+391"] = errors.New("timeout")

	log, err := svc.RecordAttempt(context.Background(), AttemptSpec{
		Channel:   ChannelWhatsApp,
		Recipient: "+391",
		Body:      "hi",
	})
	require.NoError(t, err)

	// Burn through the remaining attempts; each one fails again.
	for log.AttemptCount < DefaultMaxAttempts {
		log, err = svc.Retry(context.Background(), log.ID)
		require.NoError(t, err)
		require.Equal(t, StatusFailed, log.Status)
	}

	var refused *common.RetryNotAllowedError
	_, err = svc.Retry(context.Background(), log.ID)
	require.ErrorAs(t, err, &refused)
	assert.Equal(t, DefaultMaxAttempts, store.logs[log.ID].AttemptCount)
}

func TestSendRendersEntityContext(t *testing.T) {
	svc, _, transport, _, entities := newTestService(t)
	entities.customers["cust-1"] = &Customer{ID: "cust-1", Name: "Maria Rossi"}

	result, err := svc.Send(context.Background(), &SendRequest{
		Channel:    ChannelWhatsApp,
		To:         "+391",
		Body:       "Ciao {customer_name}",
		CustomerID: "cust-1",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSent, result.Status)
	require.Len(t, transport.sent, 1)
	assert.Equal(t, "Ciao Maria Rossi", transport.sent[0].Body)
}

func TestSendWithoutEntitiesUsesSettings(t *testing.T) {
	svc, _, transport, _, entities := newTestService(t)
	entities.settings = []Setting{
		{Category: "company", Key: "company_advisor_name", Value: "Luca"},
	}

	_, err := svc.Send(context.Background(), &SendRequest{
		Channel: ChannelWhatsApp,
		To:      "+391",
		Body:    "Da {advisor_name}, oggi {current_date}",
	})
	require.NoError(t, err)
	require.Len(t, transport.sent, 1)
	assert.Equal(t, "Da Luca, oggi 2026-08-31", transport.sent[0].Body)
}

func TestSendRateLimited(t *testing.T) {
	store := newFakeStore()
	entities := newFakeEntities()
	limiter := &fakeLimiter{allow: false}
	clock := &fakeClock{now: time.Now()}

	svc := NewService(store, NewContextBuilder(entities), NewRenderer(clock), &fakeEnqueuer{}, limiter)
	svc.RegisterTransport(newFakeTransport(ChannelWhatsApp))

	var validation *common.ValidationError
	_, err := svc.Send(context.Background(), &SendRequest{
		Channel: ChannelWhatsApp,
		To:      "+391",
		Body:    "hi",
	})
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, 1, limiter.calls)
	assert.Empty(t, store.logs)
}

func TestSendRateLimiterFailsOpen(t *testing.T) {
	store := newFakeStore()
	entities := newFakeEntities()
	limiter := &fakeLimiter{err: errors.New("redis down")}
	clock := &fakeClock{now: time.Now()}

	svc := NewService(store, NewContextBuilder(entities), NewRenderer(clock), &fakeEnqueuer{}, limiter)
	svc.RegisterTransport(newFakeTransport(ChannelWhatsApp))

	result, err := svc.Send(context.Background(), &SendRequest{
		Channel: ChannelWhatsApp,
		To:      "+391",
		Body:    "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSent, result.Status)
}

func TestSendBulkInline(t *testing.T) {
	svc, _, transport, enqueuer, _ := newTestService(t)
	transport.failFor["+39-bad"] = errors.New("invalid number")

	recipients := []BulkTarget{
		{To: "+391"}, {To: "+392"}, {To: "+39-bad"},
	}

	resp, err := svc.SendBulk(context.Background(), &BulkSendRequest{
		Channel:    ChannelWhatsApp,
		Body:       "hello",
		Recipients: recipients,
	})
	require.NoError(t, err)

	assert.Equal(t, "completed", resp.Status)
	assert.Equal(t, 2, resp.SentCount)
	assert.Equal(t, 1, resp.FailedCount)
	assert.Len(t, resp.Results, 3)
	assert.Empty(t, enqueuer.logIDs)
}

func TestSendBulkAboveLimitIsQueued(t *testing.T) {
	svc, store, transport, enqueuer, _ := newTestService(t, WithBulkInlineLimit(10))

	var recipients []BulkTarget
	for i := 0; i < 15; i++ {
		recipients = append(recipients, BulkTarget{To: fmt.Sprintf("+39%d", i)})
	}

	resp, err := svc.SendBulk(context.Background(), &BulkSendRequest{
		Channel:    ChannelWhatsApp,
		Body:       "hello",
		Recipients: recipients,
	})
	require.NoError(t, err)

	assert.Equal(t, "queued", resp.Status)
	assert.Empty(t, resp.Results)
	assert.Len(t, enqueuer.logIDs, 15)
	// Nothing delivered inline; every log waits for the worker.
	assert.Empty(t, transport.sent)
	for _, log := range store.logs {
		assert.Equal(t, StatusPending, log.Status)
	}
}

func TestListLogsDefaultsPagination(t *testing.T) {
	svc, store, _, _, _ := newTestService(t)
	require.NoError(t, store.CreateLog(context.Background(), &NotificationLog{
		Channel: ChannelWhatsApp, Recipient: "+391", Status: StatusSent,
	}))

	resp, err := svc.ListLogs(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, 20, resp.PageSize)
	assert.Equal(t, 1, resp.Total)
}

func TestArchiveOlderThanValidatesDays(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	var validation *common.ValidationError
	_, err := svc.ArchiveOlderThan(context.Background(), 0)
	require.ErrorAs(t, err, &validation)
}

func TestArchiveOlderThanCutoffFollowsClock(t *testing.T) {
	svc, store, _, _, _ := newTestService(t)

	_, err := svc.ArchiveOlderThan(context.Background(), 90)
	require.NoError(t, err)

	want := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC).AddDate(0, 0, -90)
	assert.True(t, store.archiveCutoff.Equal(want), "cutoff %s, want %s", store.archiveCutoff, want)
}
