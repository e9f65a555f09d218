package notification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaperRecoversStalePendingLogs(t *testing.T) {
	store := newFakeStore()
	enqueuer := &fakeEnqueuer{}
	reaper := NewReaper(store, enqueuer, ReaperConfig{StaleThreshold: 10 * time.Minute})

	stale := &NotificationLog{Channel: ChannelWhatsApp, Recipient: "+391", Status: StatusPending}
	require.NoError(t, store.CreateLog(context.Background(), stale))
	store.logs[stale.ID].CreatedAt = time.Now().Add(-time.Hour)

	fresh := &NotificationLog{Channel: ChannelWhatsApp, Recipient: "+392", Status: StatusPending}
	require.NoError(t, store.CreateLog(context.Background(), fresh))

	sent := &NotificationLog{Channel: ChannelWhatsApp, Recipient: "+393", Status: StatusSent}
	require.NoError(t, store.CreateLog(context.Background(), sent))
	store.logs[sent.ID].CreatedAt = time.Now().Add(-time.Hour)

	reaper.sweep(context.Background())

	assert.Equal(t, []string{stale.ID}, enqueuer.logIDs)
}

func TestReaperLeavesCampaignLogsAlone(t *testing.T) {
	store := newFakeStore()
	enqueuer := &fakeEnqueuer{}
	reaper := NewReaper(store, enqueuer, ReaperConfig{StaleThreshold: 10 * time.Minute})

	log := &NotificationLog{Channel: ChannelWhatsApp, Recipient: "+391", Status: StatusPending, CampaignID: "camp-1"}
	require.NoError(t, store.CreateLog(context.Background(), log))
	store.logs[log.ID].CreatedAt = time.Now().Add(-time.Hour)

	reaper.sweep(context.Background())

	assert.Empty(t, enqueuer.logIDs)
}

func TestReaperConfigDefaults(t *testing.T) {
	r := NewReaper(newFakeStore(), &fakeEnqueuer{}, ReaperConfig{})
	assert.Equal(t, 5*time.Minute, r.config.Interval)
	assert.Equal(t, 10*time.Minute, r.config.StaleThreshold)
	assert.Equal(t, 50, r.config.BatchSize)
}
