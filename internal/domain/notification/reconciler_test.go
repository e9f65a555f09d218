package notification

import (
	"context"
	"testing"

	"notivio/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedLog(t *testing.T, store *fakeStore, status Status, campaignID string) *NotificationLog {
	t.Helper()
	log := &NotificationLog{
		Channel:      ChannelWhatsApp,
		Recipient:    "+391",
		Status:       status,
		CampaignID:   campaignID,
		AttemptCount: 1,
		MaxAttempts:  DefaultMaxAttempts,
	}
	require.NoError(t, store.CreateLog(context.Background(), log))
	return log
}

func TestApplyWebhookForwardTransition(t *testing.T) {
	store := newFakeStore()
	r := NewReconciler(store, nil)
	log := seedLog(t, store, StatusSent, "")

	result, err := r.ApplyWebhookStatus(context.Background(), log.ID, "delivered", WebhookMeta{})
	require.NoError(t, err)

	assert.True(t, result.Applied)
	assert.Equal(t, StatusSent, result.OldStatus)
	assert.Equal(t, StatusDelivered, result.NewStatus)
	assert.Equal(t, StatusDelivered, store.logs[log.ID].Status)
}

func TestApplyWebhookReplayIsNoOp(t *testing.T) {
	store := newFakeStore()
	counters := newFakeCounters()
	r := NewReconciler(store, counters)
	log := seedLog(t, store, StatusSent, "camp-1")

	first, err := r.ApplyWebhookStatus(context.Background(), log.ID, "delivered", WebhookMeta{})
	require.NoError(t, err)
	require.True(t, first.Applied)

	second, err := r.ApplyWebhookStatus(context.Background(), log.ID, "delivered", WebhookMeta{})
	require.NoError(t, err)

	assert.False(t, second.Applied)
	assert.Equal(t, StatusDelivered, second.NewStatus)
	// The replay never reaches the counters.
	assert.Equal(t, 1, counters.delivered["camp-1"])
	assert.Equal(t, 0, counters.read["camp-1"])
}

// staleReadStore serves reads from a snapshot taken before a concurrent
// update landed, while writes hit the real store.
type staleReadStore struct {
	*fakeStore
	staleStatus Status
}

func (s *staleReadStore) GetLog(ctx context.Context, id string) (*NotificationLog, error) {
	log, err := s.fakeStore.GetLog(ctx, id)
	if err != nil || log == nil {
		return log, err
	}
	cp := *log
	cp.Status = s.staleStatus
	return &cp, nil
}

func TestApplyWebhookLostRaceDoesNotBumpCounters(t *testing.T) {
	store := newFakeStore()
	counters := newFakeCounters()
	log := seedLog(t, store, StatusDelivered, "camp-1")

	// Simulate a second delivery of the same event that read the log before
	// the first one moved it to delivered.
	r := NewReconciler(&staleReadStore{fakeStore: store, staleStatus: StatusSent}, counters)

	result, err := r.ApplyWebhookStatus(context.Background(), log.ID, "delivered", WebhookMeta{})
	require.NoError(t, err)

	assert.False(t, result.Applied)
	assert.Equal(t, StatusDelivered, store.logs[log.ID].Status)
	assert.Equal(t, 0, counters.delivered["camp-1"])
}

func TestApplyWebhookStaleEventIgnored(t *testing.T) {
	store := newFakeStore()
	r := NewReconciler(store, nil)
	log := seedLog(t, store, StatusRead, "")

	result, err := r.ApplyWebhookStatus(context.Background(), log.ID, "delivered", WebhookMeta{})
	require.NoError(t, err)

	assert.False(t, result.Applied)
	assert.Equal(t, StatusRead, store.logs[log.ID].Status)
}

func TestApplyWebhookOpenedMapsToRead(t *testing.T) {
	store := newFakeStore()
	counters := newFakeCounters()
	r := NewReconciler(store, counters)
	log := seedLog(t, store, StatusSent, "camp-1")

	result, err := r.ApplyWebhookStatus(context.Background(), log.ID, "opened", WebhookMeta{})
	require.NoError(t, err)

	assert.Equal(t, StatusRead, result.NewStatus)
	// The sent→read jump skips delivered; both counters move so
	// read_count ≤ delivered_count still holds.
	assert.Equal(t, 1, counters.delivered["camp-1"])
	assert.Equal(t, 1, counters.read["camp-1"])
}

func TestApplyWebhookBouncedMapsToFailed(t *testing.T) {
	store := newFakeStore()
	r := NewReconciler(store, nil)
	log := seedLog(t, store, StatusSent, "")

	result, err := r.ApplyWebhookStatus(context.Background(), log.ID, "bounced", WebhookMeta{ErrorReason: "mailbox full"})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, result.NewStatus)
	assert.Equal(t, "mailbox full", store.logs[log.ID].ErrorReason)
}

func TestApplyWebhookFailedIsTerminalForWebhooks(t *testing.T) {
	store := newFakeStore()
	r := NewReconciler(store, nil)
	log := seedLog(t, store, StatusFailed, "")

	result, err := r.ApplyWebhookStatus(context.Background(), log.ID, "delivered", WebhookMeta{})
	require.NoError(t, err)

	assert.False(t, result.Applied)
	assert.Equal(t, StatusFailed, store.logs[log.ID].Status)
}

func TestApplyWebhookUnknownStatus(t *testing.T) {
	store := newFakeStore()
	r := NewReconciler(store, nil)
	log := seedLog(t, store, StatusSent, "")

	var validation *common.ValidationError
	_, err := r.ApplyWebhookStatus(context.Background(), log.ID, "exploded", WebhookMeta{})
	require.ErrorAs(t, err, &validation)
}

func TestApplyWebhookUnknownLog(t *testing.T) {
	r := NewReconciler(newFakeStore(), nil)

	var notFound *common.NotFoundError
	_, err := r.ApplyWebhookStatus(context.Background(), "missing", "delivered", WebhookMeta{})
	require.ErrorAs(t, err, &notFound)
}
