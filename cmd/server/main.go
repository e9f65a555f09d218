package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
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
	"notivio/internal/infra/ratelimit"
	"notivio/internal/infra/store"
	"notivio/internal/infra/whatsapp"
	"notivio/internal/metrics"
	"notivio/internal/router"

	"github.com/redis/go-redis/v9"
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

	slog.Info("configuration loaded", "port", cfg.Server.Port, "mode", cfg.Server.Mode)

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

	// Asynq Client (for enqueuing tasks)
	asynqClient := queue.NewClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	defer asynqClient.Close()
	enqueuer := queue.NewEnqueuer(asynqClient, cfg.Queue.MaxRetry)
	slog.Info("asynq client initialized", "redis", cfg.Redis.Address)

	// Recipient Rate Limiter
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	recipientLimiter := ratelimit.NewRedisRecipientLimiter(
		redisClient,
		cfg.RecipientRateLimit.MaxPerHour,
		time.Hour,
	)
	slog.Info("recipient rate limiter initialized", "max_per_hour", cfg.RecipientRateLimit.MaxPerHour)

	clock := notification.SystemClock()
	renderer := notification.NewRenderer(clock)
	builder := notification.NewContextBuilder(entitySource)

	// Notification Service
	notificationService := notification.NewService(
		notifStore,
		builder,
		renderer,
		enqueuer,
		recipientLimiter,
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

	// Webhook reconciler (campaign counters feed off delivery transitions)
	reconciler := notification.NewReconciler(notifStore, campStore)

	// Campaign Engine
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

	// Handlers and Router
	notificationHandler := notification.NewHandler(notificationService, reconciler, cfg.Webhook.Secret)
	campaignHandler := campaign.NewHandler(campaignEngine)
	r := router.New(cfg, notificationHandler, campaignHandler)

	// ==========================================
	// HTTP Server with Graceful Shutdown
	// ==========================================

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	// Give outstanding requests 10 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited gracefully")
}
