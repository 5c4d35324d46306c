package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/matheus3301/shiftsync/internal/bus"
	"github.com/matheus3301/shiftsync/internal/remote"
	"github.com/matheus3301/shiftsync/internal/status"
	"github.com/matheus3301/shiftsync/internal/store"
)

var (
	errOffline = errors.New(status.ErrOffline)
	errStopped = errors.New("sync aborted: engine stopping")
)

// report accumulates what one cycle did.
type report struct {
	res      status.Result
	rejected int
	gaveUp   int
	deferred int
	// failures are call-level problems that did not end the cycle.
	failures []string
	// abort ends the cycle early and makes it Failed.
	abort error
}

func (r *report) fail(format string, args ...any) {
	r.failures = append(r.failures, fmt.Sprintf(format, args...))
}

func (e *Engine) cycle() status.Result {
	if !e.enter() {
		now := e.now()
		return status.Result{Error: errStopped.Error(), StartedAt: now, FinishedAt: now}.Sealed()
	}
	defer e.wg.Done()

	ctx := e.root
	started := e.now()

	if !e.conn.IsOnline() && !e.conn.Check(ctx) {
		res := status.OfflineResult(started)
		e.logger.Info("sync skipped", zap.String("reason", status.ErrOffline))
		e.tracker.Publish(res)
		return res
	}

	e.transition(status.Syncing)
	e.tracker.SetSyncing(true)
	e.bus.Emit(bus.SyncStarted, nil)
	e.logger.Info("sync started")

	rep := &report{}
	rep.res.StartedAt = started
	e.push(ctx, rep)
	if rep.abort == nil {
		e.pull(ctx, rep)
	}
	res := e.seal(rep)

	e.transition(finalState(rep, res))
	e.tracker.Publish(res)
	e.tracker.SetSyncing(false)
	e.transition(status.Idle)

	fields := []zap.Field{
		zap.Bool("success", res.Success),
		zap.Int("messages_uploaded", res.MessagesUploaded),
		zap.Int("messages_downloaded", res.MessagesDownloaded),
		zap.Int("teams_uploaded", res.TeamsUploaded),
		zap.Int("teams_downloaded", res.TeamsDownloaded),
		zap.Int("chat_rooms_downloaded", res.ChatRoomsDownloaded),
		zap.Int("pending", res.Pending),
		zap.Int("failed", res.Failed),
		zap.Duration("took", res.FinishedAt.Sub(res.StartedAt)),
	}
	if res.Success {
		e.logger.Info("sync finished", fields...)
	} else {
		e.logger.Warn("sync finished", append(fields, zap.String("error", res.Error))...)
	}
	return res
}

func (e *Engine) transition(to status.State) {
	if err := e.machine.Transition(to); err != nil {
		e.logger.Error("sync state", zap.Error(err))
	}
}

// push sends the outbox in sequence order, one run of same-kind mutations per
// request. Every mutation is visited at most once per cycle. The phase ends
// at the first mutation still in backoff; it and everything queued behind it
// count as deferred.
func (e *Engine) push(ctx context.Context, rep *report) {
	var after int64
	for {
		if ctx.Err() != nil {
			rep.abort = errStopped
			return
		}
		batch, err := e.queue.PeekAfter(ctx, after, e.opts.PushBatchSize)
		if err != nil {
			rep.abort = fmt.Errorf("read outbox: %w", err)
			return
		}
		if len(batch) == 0 {
			e.deferRest(ctx, after, rep)
			return
		}
		run := leadingRun(batch)
		after = run[len(run)-1].Seq
		if !e.pushRun(ctx, run, rep) {
			return
		}
	}
}

// deferRest counts the queued mutations after afterSeq that this cycle will
// not send.
func (e *Engine) deferRest(ctx context.Context, afterSeq int64, rep *report) {
	n, err := e.queue.Backlog(context.WithoutCancel(ctx), afterSeq)
	if err != nil {
		e.logger.Warn("outbox backlog", zap.Error(err))
		return
	}
	rep.deferred += n
}

// leadingRun returns the longest prefix of batch sharing one kind.
func leadingRun(batch []store.Mutation) []store.Mutation {
	n := 1
	for n < len(batch) && batch[n].Kind == batch[0].Kind {
		n++
	}
	return batch[:n]
}

// pushRun sends one run and settles every item in it. It returns false when
// the push phase should stop.
func (e *Engine) pushRun(ctx context.Context, run []store.Mutation, rep *report) bool {
	kind := run[0].Kind
	// Outcomes are recorded even when Stop cancels ctx mid-run; an accepted
	// mutation that is not acked would be sent again.
	settle := context.WithoutCancel(ctx)
	items := make([]remote.PushItem, len(run))
	for i, m := range run {
		items[i] = remote.PushItem{Seq: m.Seq, Kind: string(m.Kind), Payload: m.Payload, CreatedAt: m.CreatedAt}
	}

	results, err := retry.DoValue(ctx, e.backoff(), func(ctx context.Context) ([]remote.ItemResult, error) {
		res, err := e.remote.Push(ctx, string(kind), items)
		return res, retryable(ctx, err)
	})
	if err != nil {
		if ctx.Err() != nil {
			rep.abort = errStopped
			return false
		}
		class := remote.Classify(err)
		e.logger.Warn("push failed",
			zap.String("kind", string(kind)),
			zap.Int("items", len(run)),
			zap.Stringer("class", class),
			zap.Error(err))
		switch class {
		case remote.KindFatal:
			rep.abort = err
			return false
		case remote.KindRejected:
			for _, m := range run {
				if !e.reject(settle, m, err.Error(), rep) {
					return false
				}
			}
			return true
		}
		// Losing the network is not the mutation's fault and costs no attempt.
		if class == remote.KindOffline && !e.conn.Check(ctx) {
			rep.abort = errOffline
			return false
		}
		for _, m := range run {
			if !e.bump(settle, m, err.Error(), rep) {
				return false
			}
		}
		e.deferRest(ctx, run[len(run)-1].Seq, rep)
		rep.fail("push %s: %s", kind, class)
		return false
	}

	bySeq := make(map[int64]remote.ItemResult, len(results))
	for _, r := range results {
		bySeq[r.Seq] = r
	}
	for _, m := range run {
		r, ok := bySeq[m.Seq]
		switch {
		case ok && r.Accepted:
			if err := e.queue.Ack(settle, m.Seq); err != nil {
				rep.abort = err
				return false
			}
			tallyUpload(&rep.res, m.Kind)
		case !ok || r.Retry:
			reason := r.Error
			if reason == "" {
				reason = "no result from remote"
			}
			if !e.bump(settle, m, reason, rep) {
				return false
			}
		default:
			if !e.reject(settle, m, r.Error, rep) {
				return false
			}
		}
	}
	return true
}

func (e *Engine) reject(ctx context.Context, m store.Mutation, reason string, rep *report) bool {
	if reason == "" {
		reason = "rejected by remote"
	}
	if err := e.queue.Reject(ctx, m.Seq, m.Kind, reason); err != nil {
		rep.abort = err
		return false
	}
	rep.rejected++
	return true
}

func (e *Engine) bump(ctx context.Context, m store.Mutation, reason string, rep *report) bool {
	gaveUp, err := e.queue.BumpAttempts(ctx, m.Seq, reason)
	if err != nil {
		rep.abort = err
		return false
	}
	if gaveUp {
		rep.gaveUp++
	} else {
		rep.deferred++
	}
	return true
}

// pull fetches every entity kind. A kind that fails keeps its watermark and
// the remaining kinds still pull.
func (e *Engine) pull(ctx context.Context, rep *report) {
	for _, kind := range remote.EntityKinds {
		err := e.pullKind(ctx, kind, rep)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			rep.abort = errStopped
			return
		}
		class := remote.Classify(err)
		e.logger.Warn("pull failed",
			zap.String("kind", string(kind)),
			zap.Stringer("class", class),
			zap.Error(err))
		switch class {
		case remote.KindFatal:
			rep.abort = err
			return
		case remote.KindOffline:
			if !e.conn.Check(ctx) {
				rep.abort = errOffline
				return
			}
		}
		rep.fail("pull %s: %s", kind, class)
	}
}

func (e *Engine) pullKind(ctx context.Context, kind remote.EntityKind, rep *report) error {
	since, err := e.db.Watermark(ctx, string(kind))
	if err != nil {
		return fmt.Errorf("read watermark %s: %w", kind, err)
	}

	for range e.opts.MaxPullPages {
		page, err := retry.DoValue(ctx, e.backoff(), func(ctx context.Context) (*remote.Page, error) {
			p, err := e.remote.Pull(ctx, kind, since, e.opts.PullPageSize)
			return p, retryable(ctx, err)
		})
		if err != nil {
			return err
		}

		var applied int
		err = e.db.WithTx(ctx, func(tx *store.Tx) error {
			n, err := e.resolver.Merge(ctx, tx, kind, page.Records)
			if err != nil {
				return err
			}
			applied = n
			return tx.AdvanceWatermark(ctx, string(kind), page.Watermark)
		})
		if err != nil {
			return fmt.Errorf("merge %s: %w", kind, err)
		}
		tallyDownload(&rep.res, kind, applied)

		if !page.HasMore || len(page.Records) == 0 || page.Watermark <= since {
			return nil
		}
		since = page.Watermark
	}
	e.logger.Info("pull page limit reached", zap.String("kind", string(kind)), zap.Int("pages", e.opts.MaxPullPages))
	return nil
}

func (e *Engine) backoff() retry.Backoff {
	b := retry.NewExponential(e.opts.RetryBase)
	b = retry.WithCappedDuration(e.opts.RetryMax, b)
	return retry.WithMaxRetries(uint64(e.opts.RequestRetries), b)
}

// retryable marks transient call failures for another in-cycle attempt.
func retryable(ctx context.Context, err error) error {
	if err != nil && ctx.Err() == nil && remote.Classify(err) == remote.KindTransient {
		return retry.RetryableError(err)
	}
	return err
}

func (e *Engine) seal(rep *report) status.Result {
	res := rep.res

	// The cycle context may already be cancelled; counting must still work.
	stats, err := e.queue.Stats(context.WithoutCancel(e.root))
	if err != nil {
		e.logger.Warn("outbox stats", zap.Error(err))
	}
	res.Pending = stats.Queued
	res.Failed = stats.Failed

	var parts []string
	if rep.abort != nil {
		parts = append(parts, rep.abort.Error())
	}
	if rep.rejected > 0 {
		parts = append(parts, plural(rep.rejected, "mutation")+" rejected")
	}
	if rep.gaveUp > 0 {
		parts = append(parts, fmt.Sprintf("%s failed after %d attempts",
			plural(rep.gaveUp, "mutation"), e.queue.Policy().MaxAttempts))
	}
	if rep.deferred > 0 {
		parts = append(parts, plural(rep.deferred, "mutation")+" deferred")
	}
	parts = append(parts, rep.failures...)

	res.Success = len(parts) == 0
	res.Error = strings.Join(parts, "; ")
	res.FinishedAt = e.now()
	return res.Sealed()
}

func finalState(rep *report, res status.Result) status.State {
	switch {
	case rep.abort != nil:
		return status.Failed
	case res.Success:
		return status.Succeeded
	case res.Transferred():
		return status.PartiallyFailed
	default:
		return status.Failed
	}
}

func tallyUpload(res *status.Result, kind store.MutationKind) {
	switch kind {
	case store.KindMessageCreate:
		res.MessagesUploaded++
	case store.KindMembershipUpdate, store.KindRoomMemberRemove:
		res.TeamsUploaded++
	}
}

func tallyDownload(res *status.Result, kind remote.EntityKind, n int) {
	switch kind {
	case remote.EntityMessages:
		res.MessagesDownloaded += n
	case remote.EntityMemberships:
		res.TeamsDownloaded += n
	case remote.EntityChatRooms:
		res.ChatRoomsDownloaded += n
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
