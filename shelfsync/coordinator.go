package shelfsync

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/thetigeregg/game-shelf-sub002/shelfstore"
)

// Connectivity is the platform's network signal. A nil signal means the
// network is assumed reachable.
type Connectivity interface {
	Online() bool
}

// Coordinator schedules push-then-pull cycles. Cycles are single-flight:
// a trigger arriving while one runs is dropped, not queued; the next
// timer tick retries. Cycle outcomes surface only through the stored
// connectivity state, never as errors to the UI.
type Coordinator struct {
	syncer       *Syncer
	connectivity Connectivity
	interval     time.Duration
	inFlight     atomic.Bool
	wake         chan struct{}
}

// NewCoordinator builds a coordinator for the syncer. interval <= 0
// falls back to the default config interval.
func NewCoordinator(syncer *Syncer, connectivity Connectivity, interval time.Duration) *Coordinator {
	if interval <= 0 {
		interval = DefaultConfig("").SyncInterval
	}
	return &Coordinator{
		syncer:       syncer,
		connectivity: connectivity,
		interval:     interval,
		wake:         make(chan struct{}, 1),
	}
}

// RequestSync asks for a cycle soon. Callers invoke this after an outbox
// enqueue; the request is dropped when a cycle is already running or
// pending, and the next timer tick retries.
func (c *Coordinator) RequestSync() {
	if c.inFlight.Load() {
		return
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// NotifyOnline is the network "came back" transition hook.
func (c *Coordinator) NotifyOnline() {
	c.RequestSync()
}

// Run drives cycles from the timer and from RequestSync until ctx is
// cancelled. Cycle errors are absorbed into connectivity state.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-c.wake:
		}
		if err := c.SyncNow(ctx); err != nil {
			c.syncer.logger.Warn("sync cycle failed", "error", err)
		}
		// Discard any trigger that raced in while the cycle ran; it must
		// not start a back-to-back cycle.
		select {
		case <-c.wake:
		default:
		}
	}
}

func (c *Coordinator) online() bool {
	return c.connectivity == nil || c.connectivity.Online()
}

// SyncNow runs one push-then-pull cycle. With no configured endpoint the
// cycle is a permanent no-op; when offline it is skipped without
// touching connectivity state. Partial progress (acked outbox records,
// applied pulled changes) is kept on failure; nothing rolls back.
func (c *Coordinator) SyncNow(ctx context.Context) error {
	if !c.syncer.client.Configured() {
		return nil
	}
	if !c.online() {
		return nil
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		// Single-flight: a cycle is already running.
		return nil
	}
	defer c.inFlight.Store(false)

	store := c.syncer.store
	if err := c.runCycle(ctx); err != nil {
		if setErr := store.SetConnectivity(ctx, shelfstore.ConnectivityDegraded); setErr != nil {
			c.syncer.logger.Error("failed to record degraded connectivity", "error", setErr)
		}
		return err
	}

	if err := store.SetConnectivity(ctx, shelfstore.ConnectivityOnline); err != nil {
		return err
	}
	return store.SetLastSyncAt(ctx, time.Now())
}

// runCycle pushes before pulling so the pull observes the server's view
// after this client's own mutations are applied.
func (c *Coordinator) runCycle(ctx context.Context) error {
	if err := c.syncer.PushOnce(ctx); err != nil {
		return err
	}
	_, err := c.syncer.PullOnce(ctx)
	return err
}
