package outbox_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Haleralex/eventbus/eventbus"
	"github.com/Haleralex/eventbus/outbox"
)

type orderPlacedEvent struct {
	eventbus.IntegrationEvent
	OrderID string `json:"orderId"`
}

// setupPgStore starts a throwaway Postgres container, applies the
// canonical migration, and returns a PgStore bound to a registry that
// knows orderPlacedEvent — the same shared-container pattern the
// teacher's repository tests use, scoped to one test instead of a
// package-level shared container since this suite is small.
func setupPgStore(t *testing.T) (*outbox.PgStore, *eventbus.Registry) {
	t.Helper()
	store, _, reg := setupPgStoreWithPool(t)
	return store, reg
}

// setupPgStoreWithPool is setupPgStore plus the underlying pgxpool.Pool,
// for tests that need to open their own caller-side transaction (e.g.
// the transactional co-commit test).
func setupPgStoreWithPool(t *testing.T) (*outbox.PgStore, *pgxpool.Pool, *eventbus.Registry) {
	t.Helper()
	ctx := context.Background()

	migrationsPath, err := filepath.Abs(filepath.Join("..", "migrations", "000001_create_integration_event_log.up.sql"))
	require.NoError(t, err)

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("outboxtest"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		tcpostgres.WithInitScripts(migrationsPath),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	reg := eventbus.NewRegistry()
	eventbus.RegisterSubscription[orderPlacedEvent](reg, func() eventbus.Handler {
		return eventbus.HandlerFunc(func(context.Context, eventbus.Event) error { return nil })
	})

	return outbox.NewPgStore(pool, reg), pool, reg
}

func TestPgStore_SaveAndRetrievePending(t *testing.T) {
	store, _ := setupPgStore(t)
	ctx := context.Background()

	event := orderPlacedEvent{IntegrationEvent: eventbus.NewIntegrationEvent(), OrderID: "o-1"}
	require.NoError(t, store.SaveEvent(ctx, event))

	pending, err := store.RetrievePending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].Event)

	decoded, ok := pending[0].Event.(*orderPlacedEvent)
	require.True(t, ok)
	require.Equal(t, "o-1", decoded.OrderID)
	require.Equal(t, outbox.NotPublished, pending[0].State)
	require.Equal(t, 0, pending[0].TimesSent)
}

func TestPgStore_MarkInProgressIncrementsTimesSent(t *testing.T) {
	store, _ := setupPgStore(t)
	ctx := context.Background()

	event := orderPlacedEvent{IntegrationEvent: eventbus.NewIntegrationEvent(), OrderID: "o-2"}
	require.NoError(t, store.SaveEvent(ctx, event))

	require.NoError(t, store.MarkInProgress(ctx, event.ID))
	require.NoError(t, store.MarkInProgress(ctx, event.ID))

	entry, found, err := store.FindByID(ctx, event.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, outbox.InProgress, entry.State)
	require.Equal(t, 2, entry.TimesSent)
}

func TestPgStore_MarkPublishedLeavesTimesSentUnchanged(t *testing.T) {
	store, _ := setupPgStore(t)
	ctx := context.Background()

	event := orderPlacedEvent{IntegrationEvent: eventbus.NewIntegrationEvent(), OrderID: "o-3"}
	require.NoError(t, store.SaveEvent(ctx, event))
	require.NoError(t, store.MarkInProgress(ctx, event.ID))
	require.NoError(t, store.MarkPublished(ctx, event.ID))

	entry, found, err := store.FindByID(ctx, event.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, outbox.Published, entry.State)
	require.Equal(t, 1, entry.TimesSent)

	pending, err := store.RetrievePending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestPgStore_MarkStuckInProgressFailsOldRows(t *testing.T) {
	store, _ := setupPgStore(t)
	ctx := context.Background()

	event := orderPlacedEvent{IntegrationEvent: eventbus.NewIntegrationEvent(), OrderID: "o-4"}
	require.NoError(t, store.SaveEvent(ctx, event))
	require.NoError(t, store.MarkInProgress(ctx, event.ID))

	reset, err := store.MarkStuckInProgress(ctx, -time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, reset)

	entry, found, err := store.FindByID(ctx, event.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, outbox.PublishedFailed, entry.State)

	failed, err := store.RetrieveFailed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, event.ID, failed[0].EventID)
}

func TestPgStore_RetrievePendingSkipsUnregisteredType(t *testing.T) {
	store, reg := setupPgStore(t)
	ctx := context.Background()

	type someUnregisteredEvent struct {
		eventbus.IntegrationEvent
	}
	_, ok := reg.EventType("someUnregisteredEvent")
	require.False(t, ok)

	// The row is still returned, but its payload is not decoded.
	require.NoError(t, store.SaveEvent(ctx, someUnregisteredEvent{IntegrationEvent: eventbus.NewIntegrationEvent()}))
	pending, err := store.RetrievePending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "someUnregisteredEvent", pending[0].EventTypeName)
	require.Nil(t, pending[0].Event)
}

func TestPgStore_CountsByState(t *testing.T) {
	store, _ := setupPgStore(t)
	ctx := context.Background()

	pending := orderPlacedEvent{IntegrationEvent: eventbus.NewIntegrationEvent(), OrderID: "o-5"}
	require.NoError(t, store.SaveEvent(ctx, pending))

	failed := orderPlacedEvent{IntegrationEvent: eventbus.NewIntegrationEvent(), OrderID: "o-6"}
	require.NoError(t, store.SaveEvent(ctx, failed))
	require.NoError(t, store.MarkInProgress(ctx, failed.ID))
	require.NoError(t, store.MarkFailed(ctx, failed.ID))

	counts, err := store.CountsByState(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts[outbox.NotPublished])
	require.Equal(t, 1, counts[outbox.PublishedFailed])
}

// TestPgStore_SaveEventRollsBackWithCallerTransaction exercises the
// transactional co-commit contract: an event saved via WithTx must
// disappear if the caller's own transaction rolls back, and must
// appear once the caller's transaction commits.
func TestPgStore_SaveEventRollsBackWithCallerTransaction(t *testing.T) {
	store, pool, _ := setupPgStoreWithPool(t)
	ctx := context.Background()

	rolledBack := orderPlacedEvent{IntegrationEvent: eventbus.NewIntegrationEvent(), OrderID: "rollback"}
	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	txCtx := outbox.WithTx(ctx, outbox.TxHandle{ID: uuid.New(), Querier: tx})
	require.NoError(t, store.SaveEvent(txCtx, rolledBack))
	require.NoError(t, tx.Rollback(ctx))

	_, found, err := store.FindByID(ctx, rolledBack.ID)
	require.NoError(t, err)
	require.False(t, found, "event saved under a rolled-back transaction must not persist")

	committed := orderPlacedEvent{IntegrationEvent: eventbus.NewIntegrationEvent(), OrderID: "commit"}
	tx2, err := pool.Begin(ctx)
	require.NoError(t, err)
	tx2Ctx := outbox.WithTx(ctx, outbox.TxHandle{ID: uuid.New(), Querier: tx2})
	require.NoError(t, store.SaveEvent(tx2Ctx, committed))
	require.NoError(t, tx2.Commit(ctx))

	entry, found, err := store.FindByID(ctx, committed.ID)
	require.NoError(t, err)
	require.True(t, found, "event saved under a committed transaction must persist")
	require.Equal(t, outbox.NotPublished, entry.State)
}
