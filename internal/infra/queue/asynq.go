package queue

import (
	"fmt"
	"time"

	"notivio/internal/domain/campaign"
	"notivio/internal/domain/notification"

	"github.com/hibiken/asynq"
)

const (
	// QueueNotifications carries per-log delivery tasks.
	QueueNotifications = "notifications"
	// QueueCampaigns carries whole-campaign dispatch tasks.
	QueueCampaigns = "campaigns"
)

var (
	_ notification.Enqueuer = (*Enqueuer)(nil)
	_ campaign.Enqueuer     = (*Enqueuer)(nil)
)

// NewClient creates a new asynq client connected to Redis.
func NewClient(redisAddr, password string, db int) *asynq.Client {
	return asynq.NewClient(asynq.RedisClientOpt{
		Addr:     redisAddr,
		Password: password,
		DB:       db,
	})
}

// NewServer creates a new asynq server connected to Redis.
func NewServer(redisAddr, password string, db int, concurrency int) *asynq.Server {
	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     redisAddr,
			Password: password,
			DB:       db,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				QueueNotifications: 10, // priority weight
				QueueCampaigns:     5,
				"default":          1,
			},
			RetryDelayFunc: func(n int, e error, t *asynq.Task) time.Duration {
				// Exponential backoff: 30s, 60s, 120s, 240s, 480s
				return time.Duration(30*(1<<uint(n-1))) * time.Second
			},
		},
	)
}

// Enqueuer pushes delivery and dispatch tasks onto the asynq queues.
type Enqueuer struct {
	client   *asynq.Client
	maxRetry int
}

// NewEnqueuer creates a queue enqueuer backed by the given asynq client.
func NewEnqueuer(client *asynq.Client, maxRetry int) *Enqueuer {
	return &Enqueuer{client: client, maxRetry: maxRetry}
}

// EnqueueDeliverLog enqueues a delivery task for a single pending log.
func (e *Enqueuer) EnqueueDeliverLog(logID string) error {
	task, err := notification.NewDeliverLogTask(logID)
	if err != nil {
		return fmt.Errorf("creating task: %w", err)
	}

	_, err = e.client.Enqueue(task,
		asynq.MaxRetry(e.maxRetry),
		asynq.Queue(QueueNotifications),
	)
	if err != nil {
		return fmt.Errorf("enqueuing task: %w", err)
	}

	return nil
}

// EnqueueDispatch enqueues a campaign dispatch task. Campaign dispatch runs
// once per trigger; the engine itself resumes interrupted work, so asynq-level
// retries stay off.
func (e *Enqueuer) EnqueueDispatch(campaignID string) error {
	task, err := campaign.NewDispatchTask(campaignID)
	if err != nil {
		return fmt.Errorf("creating task: %w", err)
	}

	_, err = e.client.Enqueue(task,
		asynq.MaxRetry(0),
		asynq.Queue(QueueCampaigns),
		asynq.Timeout(0),
	)
	if err != nil {
		return fmt.Errorf("enqueuing task: %w", err)
	}

	return nil
}
