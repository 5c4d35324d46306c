package model

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/matheus3301/shiftsync/internal/api"
	"github.com/matheus3301/shiftsync/internal/status"
)

const flashTTL = 5 * time.Second

// Daemon is the part of the daemon client the view model drives.
type Daemon interface {
	SyncData(ctx context.Context) (status.Result, error)
	CheckOnlineStatus(ctx context.Context) (bool, error)
	Status(ctx context.Context) (status.Snapshot, error)
	WatchStatus(ctx context.Context, fn func(status.Snapshot)) error
	SendMessage(ctx context.Context, roomID, senderID, body string) (*api.MessageView, error)
	ListMessages(ctx context.Context, roomID string, before int64, limit int) ([]api.MessageView, error)
	OutboxStats(ctx context.Context) (api.OutboxView, error)
	RetryFailed(ctx context.Context) (int64, error)
}

// ViewModel caches daemon state and signals UI refreshes.
type ViewModel struct {
	mu sync.RWMutex

	daemon   Daemon
	snapshot status.Snapshot
	outbox   api.OutboxView
	messages []api.MessageView
	roomID   string
	userID   string
	Flash    Flash

	refreshCh chan struct{}
}

// NewViewModel creates a view model for the given room, posting as userID.
func NewViewModel(d Daemon, roomID, userID string) *ViewModel {
	return &ViewModel{
		daemon:    d,
		roomID:    roomID,
		userID:    userID,
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// Room returns the room the view model is bound to.
func (vm *ViewModel) Room() string {
	return vm.roomID
}

// Snapshot returns the last status snapshot seen.
func (vm *ViewModel) Snapshot() status.Snapshot {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.snapshot
}

// Outbox returns the last outbox summary loaded.
func (vm *ViewModel) Outbox() api.OutboxView {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.outbox
}

// Messages returns the loaded messages, newest first.
func (vm *ViewModel) Messages() []api.MessageView {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.messages
}

// Watch streams status snapshots until ctx ends, reconnecting after errors.
// Each snapshot that closes a cycle also reloads messages and the outbox.
func (vm *ViewModel) Watch(ctx context.Context) {
	for {
		err := vm.daemon.WatchStatus(ctx, func(s status.Snapshot) {
			vm.mu.Lock()
			prev := vm.snapshot
			vm.snapshot = s
			vm.mu.Unlock()
			if finished(prev, s) {
				vm.Reload(ctx)
			}
			vm.signalRefresh()
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			vm.Flash.Error("status stream: "+err.Error(), flashTTL)
			vm.signalRefresh()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

// finished reports whether next closes a cycle that prev had not seen.
func finished(prev, next status.Snapshot) bool {
	if next.LastResult == nil {
		return false
	}
	return prev.LastResult == nil || !prev.LastResult.FinishedAt.Equal(next.LastResult.FinishedAt)
}

// Reload fetches messages for the room and the outbox summary.
func (vm *ViewModel) Reload(ctx context.Context) {
	if err := vm.LoadMessages(ctx); err != nil {
		vm.Flash.Error("load messages: "+err.Error(), flashTTL)
	}
	if ob, err := vm.daemon.OutboxStats(ctx); err == nil {
		vm.mu.Lock()
		vm.outbox = ob
		vm.mu.Unlock()
	}
	vm.signalRefresh()
}

// LoadMessages fetches the newest page of messages in the room.
func (vm *ViewModel) LoadMessages(ctx context.Context) error {
	if vm.roomID == "" {
		return nil
	}
	msgs, err := vm.daemon.ListMessages(ctx, vm.roomID, 0, 100)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.messages = msgs
	vm.mu.Unlock()
	return nil
}

// SendText records a message locally; the daemon uploads it on its next cycle.
func (vm *ViewModel) SendText(ctx context.Context, body string) error {
	if vm.roomID == "" || vm.userID == "" {
		return errors.New("no room or user selected")
	}
	if _, err := vm.daemon.SendMessage(ctx, vm.roomID, vm.userID, body); err != nil {
		return err
	}
	vm.Reload(ctx)
	return nil
}

// SyncNow runs a cycle and flashes its outcome.
func (vm *ViewModel) SyncNow(ctx context.Context) {
	vm.Flash.Set("syncing...", flashTTL)
	vm.signalRefresh()
	res, err := vm.daemon.SyncData(ctx)
	switch {
	case err != nil:
		vm.Flash.Error("sync: "+err.Error(), flashTTL)
	case res.Success:
		vm.Flash.Set("sync complete", flashTTL)
	default:
		vm.Flash.Error("sync: "+res.Error, flashTTL)
	}
	vm.Reload(ctx)
}

// CheckOnline probes connectivity and flashes the answer.
func (vm *ViewModel) CheckOnline(ctx context.Context) {
	online, err := vm.daemon.CheckOnlineStatus(ctx)
	switch {
	case err != nil:
		vm.Flash.Error("check: "+err.Error(), flashTTL)
	case online:
		vm.Flash.Set("backend reachable", flashTTL)
	default:
		vm.Flash.Error("backend unreachable", flashTTL)
	}
	vm.signalRefresh()
}

// RetryFailed re-queues failed mutations.
func (vm *ViewModel) RetryFailed(ctx context.Context) {
	n, err := vm.daemon.RetryFailed(ctx)
	if err != nil {
		vm.Flash.Error("retry: "+err.Error(), flashTTL)
	} else {
		vm.Flash.Set(plural(n, "mutation")+" re-queued", flashTTL)
	}
	vm.Reload(ctx)
}

func plural(n int64, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.FormatInt(n, 10) + " " + noun + "s"
}
