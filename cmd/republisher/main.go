// Command republisher hosts the outbox republisher: it scans
// IntegrationEventLog for NotPublished and PublishedFailed rows and
// hands them to the broker, plus the reaper that recovers rows
// orphaned by a crashed republisher, and a small HTTP admin surface for
// health/metrics/manual retry. Its own scheduling policy (poll
// interval, batch size) is an operational concern left to this binary,
// not to the eventbus/outbox packages themselves.
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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/Haleralex/eventbus/eventbus"
	"github.com/Haleralex/eventbus/internal/httpapi"
	"github.com/Haleralex/eventbus/internal/logging"
	"github.com/Haleralex/eventbus/internal/metrics"
	"github.com/Haleralex/eventbus/outbox"
)

const republishPollInterval = 5 * time.Second

func main() {
	logger := logging.Setup(logging.DefaultConfig())

	if err := run(logger); err != nil {
		logger.Error("republisher exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	cfg, err := eventbus.LoadConfig(v)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	registry := eventbus.NewRegistry()
	// Application code registers its own event types/handlers here via
	// eventbus.RegisterSubscription before Start; this binary carries
	// none of its own, since the event catalog is the embedding
	// application's concern.

	pool, err := pgxpool.New(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	store := outbox.NewPgStore(pool, registry)
	store.EnsureSchema(ctx)

	dialURL := fmt.Sprintf("amqp://%s:%s@%s:%d/%s",
		cfg.UserName, cfg.Password, cfg.HostName, cfg.Port, cfg.VirtualHost)
	bus := eventbus.NewBus(cfg, registry, dialURL, logger)
	if err := bus.Start(ctx); err != nil {
		return fmt.Errorf("starting bus: %w", err)
	}
	defer bus.Stop(context.Background())

	rdb := redis.NewClient(&redis.Options{Addr: os.Getenv("REDIS_ADDR")})
	defer rdb.Close()

	reaper := outbox.NewReaper(store, rdb, cfg.ReaperInterval, cfg.ReaperStuckAfter, cfg.ReaperLockTTL, logger)
	reaper.Start(ctx)
	defer reaper.Stop()

	router := httpapi.NewRouter("eventbus-republisher", bus, store, logger)
	server := &http.Server{Addr: ":8080", Handler: router}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin server stopped", "error", err)
		}
	}()

	go republishLoop(ctx, store, bus, logger)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// republishLoop polls for NotPublished and PublishedFailed rows every
// republishPollInterval and publishes each one in order, marking it
// InProgress before the publish attempt and Published/PublishedFailed
// after — the same mark/publish/mark sequence httpapi's manual retry
// endpoint runs for a single row.
func republishLoop(ctx context.Context, store outbox.Store, bus *eventbus.Bus, logger *slog.Logger) {
	ticker := time.NewTicker(republishPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			republishOnce(ctx, store, bus, logger)
		}
	}
}

func republishOnce(ctx context.Context, store outbox.Store, bus *eventbus.Bus, logger *slog.Logger) {
	timer := prometheusTimer()
	defer timer()

	pending, err := store.RetrievePending(ctx)
	if err != nil {
		logger.Error("republisher: retrieving pending rows", "error", err)
		return
	}
	failed, err := store.RetrieveFailed(ctx)
	if err != nil {
		logger.Error("republisher: retrieving failed rows", "error", err)
		return
	}

	publishEntries(ctx, store, bus, logger, pending)
	publishEntries(ctx, store, bus, logger, failed)

	counts, err := store.CountsByState(ctx)
	if err != nil {
		logger.Error("republisher: counting rows by state", "error", err)
		return
	}
	for _, state := range []outbox.State{outbox.NotPublished, outbox.InProgress, outbox.Published, outbox.PublishedFailed} {
		metrics.OutboxRowsByState.WithLabelValues(state.String()).Set(float64(counts[state]))
	}
}

// publishEntries runs the mark-in-progress/publish/mark-outcome
// sequence for each entry, whether it came from RetrievePending or
// RetrieveFailed — a PublishedFailed row is retried exactly like a
// NotPublished one once the republisher picks it up.
func publishEntries(ctx context.Context, store outbox.Store, bus *eventbus.Bus, logger *slog.Logger, entries []outbox.Entry) {
	for _, entry := range entries {
		if entry.Event == nil {
			logger.Warn("republisher: skipping row with unregistered event type", "event_id", entry.EventID, "event_type", entry.EventTypeName)
			continue
		}

		if err := store.MarkInProgress(ctx, entry.EventID); err != nil {
			logger.Error("republisher: marking row in progress", "event_id", entry.EventID, "error", err)
			continue
		}

		if err := bus.Publish(ctx, entry.Event); err != nil {
			logger.Warn("republisher: publish failed", "event_id", entry.EventID, "error", err)
			if markErr := store.MarkFailed(ctx, entry.EventID); markErr != nil {
				logger.Error("republisher: marking row failed", "event_id", entry.EventID, "error", markErr)
			}
			continue
		}

		if err := store.MarkPublished(ctx, entry.EventID); err != nil {
			logger.Error("republisher: marking row published", "event_id", entry.EventID, "error", err)
		}
	}
}

func prometheusTimer() func() {
	start := time.Now()
	return func() {
		metrics.RepublishDuration.Observe(time.Since(start).Seconds())
	}
}
