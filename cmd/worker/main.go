package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-notify/internal/application/delivery"
	"github.com/go-notify/internal/application/device"
	"github.com/go-notify/internal/application/notification"
	"github.com/go-notify/internal/application/outbox"
	"github.com/go-notify/internal/application/presence"
	"github.com/go-notify/internal/config"
	amqpinfra "github.com/go-notify/internal/infrastructure/amqp"
	"github.com/go-notify/internal/infrastructure/mail"
	"github.com/go-notify/internal/infrastructure/postgres"
	redisinfra "github.com/go-notify/internal/infrastructure/redis"
	"github.com/go-notify/internal/infrastructure/sns"
	"github.com/go-notify/internal/pkg/locale"
	"github.com/go-notify/internal/pkg/logger"
	transporthttp "github.com/go-notify/internal/transport/http"
	"github.com/go-notify/internal/transport/http/handler"
	"github.com/go-notify/internal/transport/worker"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	zl := logger.New(cfg)
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("worker stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewClient(cfg, zl)
	if err != nil {
		return err
	}
	if cfg.DBAutoMigrate {
		if err := postgres.Bootstrap(ctx, db); err != nil {
			return err
		}
	}
	repo := postgres.NewRepo(db)

	rdb, err := redisinfra.NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	conn, err := amqpinfra.Dial(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	events, err := amqpinfra.NewPublisher(conn, cfg.AMQPExchange)
	if err != nil {
		return err
	}
	defer events.Close()

	pushSender, err := sns.NewPushSender(cfg)
	if err != nil {
		return err
	}
	mailer := mail.NewClient(cfg, zl)

	presenceCache := redisinfra.NewPresence(rdb, cfg.PresenceTTL)

	relay := outbox.NewRelay(outbox.RelayDeps{
		Store:     repo,
		Publisher: events,
		BatchSize: cfg.OutboxBatchSize,
		Interval:  cfg.OutboxPollInterval,
		Logger:    zl,
	})
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		relay.Run(ctx)
	}()

	subs := worker.Subscriptions(worker.Deps{
		Assembler: notification.NewService(notification.ServiceDeps{
			Store:   worker.AssemblerStore{Repo: repo},
			Relay:   relay,
			Drafter: notification.NewDrafter(cfg.WebAppURL),
			Logger:  zl,
		}),
		Realtime: delivery.NewRealtime(delivery.RealtimeDeps{
			Recipients:  repo,
			Expander:    repo,
			Publisher:   redisinfra.NewPublisher(rdb),
			Concurrency: cfg.FanoutConcurrency,
			Logger:      zl,
		}),
		Push: delivery.NewPush(delivery.PushDeps{
			Recipients:  repo,
			Avatars:     repo,
			Users:       repo,
			Presence:    presenceCache,
			Gateway:     device.NewGateway(repo, pushSender, zl),
			BatchSize:   cfg.FanoutBatchSize,
			Concurrency: cfg.FanoutConcurrency,
			Logger:      zl,
		}),
		Email: delivery.NewEmail(delivery.EmailDeps{
			Recipients:  repo,
			Expander:    repo,
			Users:       repo,
			Preferences: repo,
			Mailer:      mailer,
			Locale:      locale.New(cfg.MailLocale),
			WebURL:      cfg.WebAppURL,
			BatchSize:   cfg.FanoutBatchSize,
			Concurrency: cfg.FanoutConcurrency,
			Logger:      zl,
		}),
		Presence: presence.NewService(presenceCache),
		Logger:   zl,
	})

	subscriber := amqpinfra.NewSubscriber(conn, cfg.AMQPExchange, cfg.AMQPPrefetch, zl)
	if err := worker.Register(ctx, subscriber, subs); err != nil {
		return err
	}

	redisCheck := handler.CheckerFunc(func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	router := transporthttp.NewRouter(&transporthttp.Deps{
		Checks: map[string]handler.Checker{"postgres": repo, "redis": redisCheck},
		Logger: zl,
	})
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		zl.Info("http listening", zap.String("port", cfg.HTTPPort), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("forced http shutdown", zap.Error(err))
	}
	// Consumers stop with ctx; in-flight handlers finish before Wait returns.
	<-relayDone
	if err := subscriber.Wait(); err != nil {
		return fmt.Errorf("subscriber: %w", err)
	}
	zl.Info("worker stopped")
	return nil
}
