package model

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/shiftsync/internal/api"
	"github.com/matheus3301/shiftsync/internal/status"
	"github.com/matheus3301/shiftsync/internal/store"
)

type fakeDaemon struct {
	mu       sync.Mutex
	result   status.Result
	syncErr  error
	online   bool
	sent     []string
	messages []api.MessageView
	outbox   api.OutboxView
	retried  int64
	snaps    []status.Snapshot
	listed   int
}

func (f *fakeDaemon) SyncData(context.Context) (status.Result, error) {
	return f.result, f.syncErr
}

func (f *fakeDaemon) CheckOnlineStatus(context.Context) (bool, error) {
	return f.online, nil
}

func (f *fakeDaemon) Status(context.Context) (status.Snapshot, error) {
	return status.Snapshot{}, nil
}

func (f *fakeDaemon) WatchStatus(ctx context.Context, fn func(status.Snapshot)) error {
	for _, s := range f.snaps {
		fn(s)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeDaemon) SendMessage(_ context.Context, roomID, senderID, body string) (*api.MessageView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, body)
	m := api.MessageView{Message: store.Message{ChatRoomID: roomID, SenderID: senderID, Body: body}, SyncState: "local"}
	f.messages = append([]api.MessageView{m}, f.messages...)
	f.outbox.Queued++
	return &m, nil
}

func (f *fakeDaemon) ListMessages(context.Context, string, int64, int) ([]api.MessageView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed++
	return append([]api.MessageView(nil), f.messages...), nil
}

func (f *fakeDaemon) OutboxStats(context.Context) (api.OutboxView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outbox, nil
}

func (f *fakeDaemon) RetryFailed(context.Context) (int64, error) {
	return f.retried, nil
}

func TestSendTextReloads(t *testing.T) {
	d := &fakeDaemon{}
	vm := NewViewModel(d, "room-1", "u1")

	if err := vm.SendText(context.Background(), "running late"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if got := vm.Messages(); len(got) != 1 || got[0].Body != "running late" {
		t.Fatalf("messages = %+v", got)
	}
	if vm.Outbox().Queued != 1 {
		t.Fatalf("outbox = %+v", vm.Outbox())
	}
}

func TestSendTextNeedsRoomAndUser(t *testing.T) {
	vm := NewViewModel(&fakeDaemon{}, "", "u1")
	if err := vm.SendText(context.Background(), "x"); err == nil {
		t.Fatal("expected error without a room")
	}
}

func TestSyncNowFlashesOutcome(t *testing.T) {
	tests := []struct {
		name    string
		result  status.Result
		err     error
		want    string
		wantErr bool
	}{
		{"success", status.Result{Success: true}, nil, "sync complete", false},
		{"partial", status.Result{Error: "1 mutation rejected"}, nil, "sync: 1 mutation rejected", true},
		{"transport", status.Result{}, errors.New("unavailable"), "sync: unavailable", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := NewViewModel(&fakeDaemon{result: tt.result, syncErr: tt.err}, "room-1", "u1")
			vm.SyncNow(context.Background())
			msg, level := vm.Flash.Get()
			if msg != tt.want || (level == Err) != tt.wantErr {
				t.Fatalf("flash = %q (%v), want %q", msg, level, tt.want)
			}
		})
	}
}

func TestRetryFailedFlashesCount(t *testing.T) {
	vm := NewViewModel(&fakeDaemon{retried: 2}, "room-1", "u1")
	vm.RetryFailed(context.Background())
	if msg, _ := vm.Flash.Get(); msg != "2 mutations re-queued" {
		t.Fatalf("flash = %q", msg)
	}
}

func TestWatchReloadsWhenCycleFinishes(t *testing.T) {
	now := time.Now()
	d := &fakeDaemon{snaps: []status.Snapshot{
		{Online: true},
		{Online: true, Syncing: true, State: status.Syncing},
		{Online: true, State: status.Succeeded, LastResult: &status.Result{Success: true, FinishedAt: now}},
		{Online: true, State: status.Idle, LastResult: &status.Result{Success: true, FinishedAt: now}},
	}}
	vm := NewViewModel(d, "room-1", "u1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		vm.Watch(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for vm.Snapshot().State != status.Idle || vm.Snapshot().LastResult == nil {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for snapshots")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listed != 1 {
		t.Fatalf("ListMessages called %d times, want 1", d.listed)
	}
}

func TestFlashExpires(t *testing.T) {
	now := time.Now()
	f := Flash{now: func() time.Time { return now }}
	f.Error("boom", time.Second)
	if msg, level := f.Get(); msg != "boom" || level != Err {
		t.Fatalf("Get = %q, %v", msg, level)
	}
	now = now.Add(2 * time.Second)
	if msg, _ := f.Get(); msg != "" {
		t.Fatalf("expired flash = %q", msg)
	}
}
