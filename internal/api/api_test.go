package api_test

import (
	"context"
	"net"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/matheus3301/shiftsync/internal/api"
	"github.com/matheus3301/shiftsync/internal/bus"
	"github.com/matheus3301/shiftsync/internal/client"
	"github.com/matheus3301/shiftsync/internal/outbox"
	"github.com/matheus3301/shiftsync/internal/status"
	"github.com/matheus3301/shiftsync/internal/store"
)

type fakeEngine struct {
	mu      stdsync.Mutex
	result  status.Result
	online  bool
	syncs   int
	tracker *status.Tracker
}

func (f *fakeEngine) SyncData(context.Context) status.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs++
	f.tracker.Publish(f.result)
	return f.result
}

func (f *fakeEngine) CheckOnlineStatus(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

func (f *fakeEngine) Status() status.Snapshot { return f.tracker.Snapshot() }

func (f *fakeEngine) Subscribe(n int) (<-chan status.Snapshot, func()) {
	return f.tracker.Subscribe(n)
}

type env struct {
	engine *fakeEngine
	client *client.Client
	db     *store.DB
}

func setup(t *testing.T) *env {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := zap.NewNop()
	b := bus.New()
	eng := &fakeEngine{tracker: status.NewTracker(b, status.NewMachine(b))}
	q := outbox.NewQueue(db, b, logger, outbox.Policy{MaxAttempts: 3})

	srv := grpc.NewServer()
	api.Register(srv,
		api.NewSyncService(eng, logger),
		api.NewLocalService(db, outbox.NewWriter(db, b, logger), q))

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	c := client.NewFromConn(conn)
	t.Cleanup(func() { _ = c.Close() })

	return &env{engine: eng, client: c, db: db}
}

func TestSyncDataRoundTrip(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	started := time.UnixMilli(1_700_000_000_000).UTC()
	e.engine.result = status.Result{
		Success:          false,
		MessagesUploaded: 5,
		Error:            "2 mutations rejected",
		Failed:           2,
		StartedAt:        started,
		FinishedAt:       started.Add(time.Second),
	}

	res, err := e.client.SyncData(ctx)
	require.NoError(t, err)
	require.Equal(t, e.engine.result, res)

	snap, err := e.client.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, status.Idle, snap.State)
	require.NotNil(t, snap.LastResult)
	require.Equal(t, 5, snap.LastResult.MessagesUploaded)
}

func TestCheckOnlineStatus(t *testing.T) {
	e := setup(t)
	online, err := e.client.CheckOnlineStatus(context.Background())
	require.NoError(t, err)
	require.False(t, online)

	e.engine.online = true
	online, err = e.client.CheckOnlineStatus(context.Background())
	require.NoError(t, err)
	require.True(t, online)
}

func TestWatchStatusStreamsChanges(t *testing.T) {
	e := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snaps := make(chan status.Snapshot, 8)
	done := make(chan error, 1)
	go func() {
		done <- e.client.WatchStatus(ctx, func(s status.Snapshot) { snaps <- s })
	}()

	first := <-snaps
	require.False(t, first.Online)

	// The initial snapshot is sent after the subscription exists.
	e.engine.tracker.SetOnline(true)
	select {
	case s := <-snaps:
		require.True(t, s.Online)
	case <-time.After(2 * time.Second):
		t.Fatal("no status change received")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestLocalWritesAndReads(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	m, err := e.client.SendMessage(ctx, "room-1", "alice", "swap my friday shift?")
	require.NoError(t, err)
	require.NotEmpty(t, m.ID)
	require.Equal(t, "pending", m.SyncState)

	msgs, err := e.client.ListMessages(ctx, "room-1", 0, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, m.ID, msgs[0].ID)
	require.Equal(t, "swap my friday shift?", msgs[0].Body)

	require.NoError(t, e.client.SetMembership(ctx, "alice", "team-a", "inactive"))
	require.NoError(t, e.client.RemoveRoomMember(ctx, "room-1", "alice"))

	stats, err := e.client.OutboxStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, stats.Queued)
	require.Equal(t, 1, stats.Messages["pending"])
}

func TestValidationIsInvalidArgument(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	_, err := e.client.SendMessage(ctx, "", "alice", "hi")
	require.Equal(t, codes.InvalidArgument, grpcstatus.Code(err))

	err = e.client.SetMembership(ctx, "alice", "team-a", "banned")
	require.Equal(t, codes.InvalidArgument, grpcstatus.Code(err))

	_, err = e.client.ListMessages(ctx, "", 0, 10)
	require.Equal(t, codes.InvalidArgument, grpcstatus.Code(err))
}

func TestRetryFailed(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	m, err := e.client.SendMessage(ctx, "room-1", "alice", "hi")
	require.NoError(t, err)
	require.NotEmpty(t, m.ID)

	pending, err := e.db.PeekOutbox(ctx, time.Now().UnixMilli(), 0, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, e.db.FailMutation(ctx, pending[0].Seq, 3, "room archived"))

	failed, err := e.client.FailedMutations(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, "room archived", failed[0].LastError)
	require.Equal(t, "message_create", failed[0].Kind)

	n, err := e.client.RetryFailed(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	stats, err := e.client.OutboxStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Queued)
	require.Zero(t, stats.Failed)
}
