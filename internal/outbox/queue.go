// Package outbox holds local writes until the remote acknowledges them.
package outbox

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/shiftsync/internal/bus"
	"github.com/matheus3301/shiftsync/internal/store"
)

// Policy bounds how often a mutation is retried.
type Policy struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Backoff returns the wait after the given number of failed attempts:
// base doubled per attempt, capped at max.
func (p Policy) Backoff(attempts int) time.Duration {
	if attempts <= 0 || p.BackoffBase <= 0 {
		return 0
	}
	d := p.BackoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if p.BackoffMax > 0 && d >= p.BackoffMax {
			return p.BackoffMax
		}
	}
	if p.BackoffMax > 0 && d > p.BackoffMax {
		return p.BackoffMax
	}
	return d
}

// Queue is the ordered outbox. Entries leave it only through Ack; entries
// that run out of attempts stay behind as failed.
type Queue struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	policy Policy
	now    func() time.Time
}

// NewQueue creates a queue over the store's outbox table.
func NewQueue(db *store.DB, b *bus.Bus, logger *zap.Logger, policy Policy) *Queue {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Queue{db: db, bus: b, logger: logger, policy: policy, now: time.Now}
}

// Policy returns the retry policy in force.
func (q *Queue) Policy() Policy {
	return q.policy
}

// Enqueue appends a standalone mutation and returns its sequence number.
// Local writes that change cached rows go through Writer instead so the row
// and its mutation commit together.
func (q *Queue) Enqueue(ctx context.Context, kind store.MutationKind, payload any) (int64, error) {
	var seq int64
	err := q.db.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		seq, err = tx.Enqueue(ctx, kind, payload)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: %w", kind, err)
	}
	q.bus.Emit(bus.OutboxEnqueued, store.Mutation{Seq: seq, Kind: kind, Status: store.MutationQueued})
	return seq, nil
}

// PeekBatch returns up to limit due mutations in sequence order. It stops at
// the first mutation still in backoff so nothing overtakes it.
func (q *Queue) PeekBatch(ctx context.Context, limit int) ([]store.Mutation, error) {
	return q.PeekAfter(ctx, 0, limit)
}

// PeekAfter is PeekBatch restricted to sequence numbers above afterSeq.
func (q *Queue) PeekAfter(ctx context.Context, afterSeq int64, limit int) ([]store.Mutation, error) {
	return q.db.PeekOutbox(ctx, q.now().UnixMilli(), afterSeq, limit)
}

// Backlog counts queued mutations after afterSeq, including those in backoff.
func (q *Queue) Backlog(ctx context.Context, afterSeq int64) (int, error) {
	n, err := q.db.CountQueued(ctx, afterSeq)
	if err != nil {
		return 0, fmt.Errorf("count backlog: %w", err)
	}
	return n, nil
}

// Ack removes seq after the remote accepted it. Repeated acks are no-ops.
func (q *Queue) Ack(ctx context.Context, seq int64) error {
	acked, err := q.db.AckMutation(ctx, seq)
	if err != nil {
		return fmt.Errorf("ack %d: %w", seq, err)
	}
	if acked != nil {
		q.bus.Emit(bus.OutboxAcked, seq)
	}
	return nil
}

// BumpAttempts records a failed delivery of seq and schedules the next try.
// It reports whether the mutation has now given up.
func (q *Queue) BumpAttempts(ctx context.Context, seq int64, reason string) (bool, error) {
	now := q.now()
	m, err := q.db.RecordAttempt(ctx, seq, reason, func(attempts int) (int64, bool) {
		return now.Add(q.policy.Backoff(attempts)).UnixMilli(), attempts >= q.policy.MaxAttempts
	})
	if err != nil {
		return false, fmt.Errorf("bump attempts %d: %w", seq, err)
	}
	if m == nil || m.Status != store.MutationFailed {
		return false, nil
	}
	q.logger.Warn("mutation gave up",
		zap.Int64("seq", seq),
		zap.String("kind", string(m.Kind)),
		zap.Int("attempts", m.Attempts),
		zap.String("reason", reason))
	q.bus.Emit(bus.OutboxFailed, *m)
	return true, nil
}

// Reject fails seq at once. The remote judged it invalid, so retrying
// cannot help; it counts as having used its whole attempt budget.
func (q *Queue) Reject(ctx context.Context, seq int64, kind store.MutationKind, reason string) error {
	if err := q.db.FailMutation(ctx, seq, q.policy.MaxAttempts, reason); err != nil {
		return fmt.Errorf("reject %d: %w", seq, err)
	}
	q.logger.Warn("mutation rejected",
		zap.Int64("seq", seq),
		zap.String("kind", string(kind)),
		zap.String("reason", reason))
	q.bus.Emit(bus.OutboxFailed, store.Mutation{Seq: seq, Kind: kind, Status: store.MutationFailed, LastError: reason})
	return nil
}

// Stats counts queued and failed entries.
func (q *Queue) Stats(ctx context.Context) (store.OutboxStats, error) {
	return q.db.OutboxStats(ctx)
}

// Failed lists mutations that gave up.
func (q *Queue) Failed(ctx context.Context, limit int) ([]store.Mutation, error) {
	return q.db.FailedMutations(ctx, limit)
}

// RetryFailed gives every failed mutation a fresh attempt budget.
func (q *Queue) RetryFailed(ctx context.Context) (int, error) {
	n, err := q.db.RequeueFailed(ctx)
	if err != nil {
		return 0, fmt.Errorf("requeue failed: %w", err)
	}
	if n > 0 {
		q.logger.Info("failed mutations requeued", zap.Int64("count", n))
		q.bus.Emit(bus.OutboxEnqueued, nil)
	}
	return int(n), nil
}
