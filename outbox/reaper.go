package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Haleralex/eventbus/internal/metrics"
)

// reaperLockKey is the single Redis key every Reaper instance across a
// fleet of republisher processes contends on, so only one of them
// sweeps per interval (resolves the "orphaned InProgress rows" open
// question with a distributed timeout lock rather than requiring a
// single designated reaper process).
const reaperLockKey = "eventbus:outbox:reaper:lock"

// Reaper periodically transitions InProgress outbox rows whose
// CreationTime is older than stuckAfter to PublishedFailed, the same
// state a publish
// failure leaves a row in — the republisher's RetrieveFailed pass picks
// them up for retry on its next run. A row gets stuck this way when a
// republisher process crashes or is killed between markInProgress and
// the publish+markPublished/markFailed that follows it.
type Reaper struct {
	store    Store
	redis    redis.Cmdable
	interval time.Duration
	stuckAfter time.Duration
	lockTTL  time.Duration
	logger   *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewReaper returns a Reaper that sweeps store every interval,
// resetting InProgress rows created more than stuckAfter ago, coordinated across
// processes via a Redis SET NX PX lock held for lockTTL.
func NewReaper(store Store, rdb redis.Cmdable, interval, stuckAfter, lockTTL time.Duration, logger *slog.Logger) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		store:      store,
		redis:      rdb,
		interval:   interval,
		stuckAfter: stuckAfter,
		lockTTL:    lockTTL,
		logger:     logger,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start runs the sweep loop in a background goroutine until Stop is
// called.
func (r *Reaper) Start(ctx context.Context) {
	go r.run(ctx)
}

// Stop signals the sweep loop to exit and waits for it to do so.
func (r *Reaper) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Reaper) run(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.sweepOnce(ctx)
		}
	}
}

// sweepOnce attempts to acquire the fleet-wide lock and, on success,
// resets stuck rows. Losing the race for the lock is the expected,
// silent common case: some other reaper instance is sweeping this
// interval instead.
func (r *Reaper) sweepOnce(ctx context.Context) {
	token := uuid.NewString()
	acquired, err := r.redis.SetNX(ctx, reaperLockKey, token, r.lockTTL).Result()
	if err != nil {
		r.logger.Warn("outbox reaper: lock acquisition failed", "error", err)
		return
	}
	if !acquired {
		return
	}
	defer r.releaseLock(ctx, token)

	reset, err := r.store.MarkStuckInProgress(ctx, r.stuckAfter)
	if err != nil {
		r.logger.Error("outbox reaper: sweep failed", "error", err)
		return
	}
	if reset > 0 {
		metrics.ReaperRowsReset.Add(float64(reset))
		r.logger.Info("outbox reaper: marked stuck rows failed", "count", reset)
	}
}

// releaseLock deletes the lock only if it still holds token, so a
// reaper whose lockTTL already expired doesn't delete a lock some
// other instance has since acquired.
func (r *Reaper) releaseLock(ctx context.Context, token string) {
	const releaseScript = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0`
	if err := r.redis.Eval(ctx, releaseScript, []string{reaperLockKey}, token).Err(); err != nil {
		r.logger.Warn("outbox reaper: lock release failed", "error", err)
	}
}
