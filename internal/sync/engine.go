// Package sync runs the push/pull cycle between the local store and the
// remote backend.
package sync

import (
	"context"
	stdsync "sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/matheus3301/shiftsync/internal/bus"
	"github.com/matheus3301/shiftsync/internal/outbox"
	"github.com/matheus3301/shiftsync/internal/remote"
	"github.com/matheus3301/shiftsync/internal/status"
	"github.com/matheus3301/shiftsync/internal/store"
)

const flightKey = "sync"

// Remote is the backend as the engine sees it.
type Remote interface {
	Push(ctx context.Context, kind string, items []remote.PushItem) ([]remote.ItemResult, error)
	Pull(ctx context.Context, kind remote.EntityKind, since int64, limit int) (*remote.Page, error)
}

// Connectivity answers whether the backend is reachable.
type Connectivity interface {
	IsOnline() bool
	Check(ctx context.Context) bool
}

// Options tunes a sync cycle.
type Options struct {
	// Interval between periodic cycles; zero disables them.
	Interval       time.Duration
	PushBatchSize  int
	PullPageSize   int
	MaxPullPages   int
	RequestRetries int
	RetryBase      time.Duration
	RetryMax       time.Duration
}

func (o Options) withDefaults() Options {
	if o.PushBatchSize <= 0 {
		o.PushBatchSize = 50
	}
	if o.PullPageSize <= 0 {
		o.PullPageSize = 200
	}
	if o.MaxPullPages <= 0 {
		o.MaxPullPages = 20
	}
	if o.RequestRetries < 0 {
		o.RequestRetries = 0
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 500 * time.Millisecond
	}
	if o.RetryMax < o.RetryBase {
		o.RetryMax = o.RetryBase
	}
	return o
}

// Engine is the sync orchestrator and the status surface front ends read.
// At most one cycle runs at a time; concurrent requests share its result.
type Engine struct {
	db       *store.DB
	queue    *outbox.Queue
	remote   Remote
	conn     Connectivity
	resolver *Resolver
	machine  *status.Machine
	tracker  *status.Tracker
	bus      *bus.Bus
	logger   *zap.Logger
	opts     Options
	now      func() time.Time

	flight singleflight.Group

	// root bounds every cycle; Stop cancels it.
	root    context.Context
	cancel  context.CancelFunc
	mu      stdsync.Mutex
	stopped bool
	started bool
	wg      stdsync.WaitGroup
}

// NewEngine creates a sync engine.
func NewEngine(db *store.DB, q *outbox.Queue, r Remote, conn Connectivity, m *status.Machine, t *status.Tracker, b *bus.Bus, logger *zap.Logger, opts Options) *Engine {
	root, cancel := context.WithCancel(context.Background())
	return &Engine{
		db:       db,
		queue:    q,
		remote:   r,
		conn:     conn,
		resolver: NewResolver(logger),
		machine:  m,
		tracker:  t,
		bus:      b,
		logger:   logger,
		opts:     opts.withDefaults(),
		now:      time.Now,
		root:     root,
		cancel:   cancel,
	}
}

// IsOnline reports the last known connectivity.
func (e *Engine) IsOnline() bool {
	return e.tracker.Online()
}

// Syncing reports whether a cycle is in flight.
func (e *Engine) Syncing() bool {
	return e.tracker.Syncing()
}

// LastSyncResult returns the most recent published result, or nil before the
// first cycle.
func (e *Engine) LastSyncResult() *status.Result {
	return e.tracker.LastResult()
}

// Status returns the current status snapshot.
func (e *Engine) Status() status.Snapshot {
	return e.tracker.Snapshot()
}

// Subscribe delivers a status snapshot after every change.
func (e *Engine) Subscribe(bufSize int) (<-chan status.Snapshot, func()) {
	return e.tracker.Subscribe(bufSize)
}

// CheckOnlineStatus probes the backend now and returns the outcome.
func (e *Engine) CheckOnlineStatus(ctx context.Context) bool {
	return e.conn.Check(ctx)
}

// SyncData runs a cycle, or joins the one already running, and returns its
// result. ctx bounds only the wait: the cycle itself keeps going when the
// caller gives up, so other waiters still get a result.
func (e *Engine) SyncData(ctx context.Context) status.Result {
	ch := e.flight.DoChan(flightKey, func() (any, error) {
		return e.cycle(), nil
	})
	select {
	case res := <-ch:
		return res.Val.(status.Result)
	case <-ctx.Done():
		now := e.now()
		return status.Result{
			Error:      "sync wait cancelled: " + ctx.Err().Error(),
			StartedAt:  now,
			FinishedAt: now,
		}.Sealed()
	}
}

// Trigger starts a background cycle unless one is already running.
func (e *Engine) Trigger(reason string) {
	e.logger.Debug("sync triggered", zap.String("reason", reason))
	e.flight.DoChan(flightKey, func() (any, error) {
		return e.cycle(), nil
	})
}

// Start runs the automatic triggers: the periodic timer, connectivity coming
// back, local writes while online and remote change nudges.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.stopped {
		return
	}
	e.started = true

	connCh, unsubConn := e.bus.Subscribe(bus.ConnectivityChanged, 16)
	writeCh, unsubWrite := e.bus.Subscribe(bus.OutboxEnqueued, 64)
	remoteCh, unsubRemote := e.bus.Subscribe(bus.RemoteChanged, 16)

	var tick <-chan time.Time
	var ticker *time.Ticker
	if e.opts.Interval > 0 {
		ticker = time.NewTicker(e.opts.Interval)
		tick = ticker.C
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer unsubConn()
		defer unsubWrite()
		defer unsubRemote()
		if ticker != nil {
			defer ticker.Stop()
		}

		for {
			var reason string
			select {
			case <-e.root.Done():
				return
			case evt := <-connCh:
				if online, _ := evt.Payload.(bool); !online {
					continue
				}
				reason = "connectivity restored"
			case <-writeCh:
				if !e.conn.IsOnline() {
					continue
				}
				reason = "local write"
			case <-remoteCh:
				reason = "remote change"
			case <-tick:
				reason = "periodic"
			}
			// A burst of triggers becomes one cycle. Triggers that arrive
			// while it runs stay buffered and cause one follow-up.
			drain(connCh, writeCh, remoteCh)
			e.logger.Debug("sync triggered", zap.String("reason", reason))
			e.SyncData(e.root)
		}
	}()
	e.logger.Info("sync engine started", zap.Duration("interval", e.opts.Interval))
}

// Stop cancels the running cycle, if any, and waits for the engine to go quiet.
// Mutations not yet acknowledged stay in the outbox.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
	e.logger.Info("sync engine stopped")
}

// enter registers a cycle with the shutdown wait group. It fails once Stop
// has begun.
func (e *Engine) enter() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return false
	}
	e.wg.Add(1)
	return true
}

func drain(chs ...<-chan bus.Event) {
	for _, ch := range chs {
	next:
		for {
			select {
			case <-ch:
			default:
				break next
			}
		}
	}
}
