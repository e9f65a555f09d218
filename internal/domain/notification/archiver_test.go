package notification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiverSweepRemovesExpiredLogs(t *testing.T) {
	svc, store, _, _, _ := newTestService(t)
	now := svc.clock.Now()

	expired := &NotificationLog{Channel: ChannelWhatsApp, Recipient: "+391", Status: StatusRead}
	require.NoError(t, store.CreateLog(context.Background(), expired))
	store.logs[expired.ID].CreatedAt = now.AddDate(0, 0, -45)

	kept := &NotificationLog{Channel: ChannelWhatsApp, Recipient: "+392", Status: StatusRead}
	require.NoError(t, store.CreateLog(context.Background(), kept))
	store.logs[kept.ID].CreatedAt = now.AddDate(0, 0, -10)

	a := NewArchiver(svc, ArchiverConfig{RetentionDays: 30})
	a.sweep(context.Background())

	assert.NotContains(t, store.logs, expired.ID)
	assert.Contains(t, store.logs, kept.ID)
}

func TestArchiverConfigDefaults(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	a := NewArchiver(svc, ArchiverConfig{})
	assert.Equal(t, 24*time.Hour, a.config.Interval)
	assert.Equal(t, 90, a.config.RetentionDays)
}
