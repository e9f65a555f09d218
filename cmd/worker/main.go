package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"notivio/internal/config"
	"notivio/internal/domain/campaign"
	"notivio/internal/domain/notification"
	"notivio/internal/infra/email"
	"notivio/internal/infra/entities"
	"notivio/internal/infra/queue"
	"notivio/internal/infra/store"
	"notivio/internal/infra/whatsapp"
	"notivio/internal/metrics"

	"github.com/hibiken/asynq"
	supa "github.com/supabase-community/supabase-go"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("worker configuration loaded")

	metrics.Init()

	// ==========================================
	// Dependency Injection (Manual Wiring)
	// ==========================================

	supaClient, err := supa.NewClient(cfg.Supabase.URL, cfg.Supabase.ServiceKey, &supa.ClientOptions{})
	if err != nil {
		slog.Error("failed to initialize supabase client", "error", err)
		os.Exit(1)
	}
	slog.Info("supabase client initialized")

	notifStore := store.NewSupabaseStore(supaClient)
	campStore := store.NewSupabaseCampaignStore(supaClient)
	entitySource := entities.NewSupabaseEntities(supaClient)

	// Asynq Client (queued bulk sends and reaper re-enqueuing)
	asynqClient := queue.NewClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	defer asynqClient.Close()
	enqueuer := queue.NewEnqueuer(asynqClient, cfg.Queue.MaxRetry)

	clock := notification.SystemClock()
	renderer := notification.NewRenderer(clock)
	builder := notification.NewContextBuilder(entitySource)

	// The worker delivers logs the dispatch engine already admitted, so no
	// recipient limiter is wired here.
	notificationService := notification.NewService(
		notifStore,
		builder,
		renderer,
		enqueuer,
		nil,
		notification.WithClock(clock),
		notification.WithSendTimeout(time.Duration(cfg.Dispatch.SendTimeoutSec)*time.Second),
		notification.WithBulkInlineLimit(cfg.Dispatch.BulkInlineLimit),
	)
	notificationService.RegisterTransport(whatsapp.NewCloudTransport(
		cfg.WhatsApp.AccessToken,
		cfg.WhatsApp.PhoneNumberID,
	))
	notificationService.RegisterTransport(email.NewResendTransport(
		cfg.Email.APIKey,
		cfg.Email.FromAddress,
		cfg.Email.FromName,
	))

	campaignEngine := campaign.NewEngine(
		campStore,
		notificationService,
		entitySource,
		entitySource,
		renderer,
		clock,
		campaign.NewDispatchPolicy(cfg.Dispatch.CampaignInlineLimit),
		enqueuer,
	)

	// ==========================================
	// Asynq Server (task processing)
	// ==========================================

	asynqServer := queue.NewServer(
		cfg.Redis.Address,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Queue.Concurrency,
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(notification.TaskTypeDeliverLog, func(ctx context.Context, task *asynq.Task) error {
		payload, err := notification.ParseDeliverLogPayload(task.Payload())
		if err != nil {
			return err
		}
		return notificationService.DeliverLog(ctx, payload.LogID)
	})
	mux.HandleFunc(campaign.TaskTypeDispatch, func(ctx context.Context, task *asynq.Task) error {
		payload, err := campaign.ParseDispatchPayload(task.Payload())
		if err != nil {
			return err
		}
		return campaignEngine.Dispatch(ctx, payload.CampaignID)
	})

	go func() {
		slog.Info("worker starting",
			"concurrency", cfg.Queue.Concurrency,
			"redis", cfg.Redis.Address,
		)
		if err := asynqServer.Run(mux); err != nil {
			slog.Error("worker failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// ==========================================
	// Background Sweeps (reaper + archiver)
	// ==========================================

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()

	reaper := notification.NewReaper(notifStore, enqueuer, notification.ReaperConfig{
		Interval:       time.Duration(cfg.Reaper.IntervalSec) * time.Second,
		StaleThreshold: time.Duration(cfg.Reaper.StaleThresholdSec) * time.Second,
		BatchSize:      cfg.Reaper.BatchSize,
	})

	go reaper.Run(sweepCtx)

	archiver := notification.NewArchiver(notificationService, notification.ArchiverConfig{
		Interval:      time.Duration(cfg.Archive.IntervalSec) * time.Second,
		RetentionDays: cfg.Archive.RetentionDays,
	})

	go archiver.Run(sweepCtx)

	// ==========================================
	// Graceful Shutdown
	// ==========================================

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	sweepCancel() // Stop the background sweeps first
	asynqServer.Shutdown()
	slog.Info("worker exited gracefully")
}
