package status

import (
	"sync"

	"github.com/matheus3301/shiftsync/internal/bus"
)

// Snapshot is the read-only view of sync status handed to front ends.
type Snapshot struct {
	Online     bool    `json:"isOnline"`
	Syncing    bool    `json:"syncing"`
	State      State   `json:"state"`
	LastResult *Result `json:"lastSyncResult"`
}

// Tracker holds the process-wide sync status and announces every change on
// the bus as a Snapshot.
type Tracker struct {
	mu      sync.RWMutex
	online  bool
	syncing bool
	last    *Result
	machine *Machine
	bus     *bus.Bus
}

// NewTracker creates a tracker that starts offline and idle.
func NewTracker(b *bus.Bus, m *Machine) *Tracker {
	return &Tracker{bus: b, machine: m}
}

// Online reports the last known connectivity.
func (t *Tracker) Online() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.online
}

// Syncing reports whether a cycle is in flight.
func (t *Tracker) Syncing() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.syncing
}

// LastResult returns a copy of the most recent published result, or nil.
func (t *Tracker) LastResult() *Result {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.last == nil {
		return nil
	}
	r := *t.last
	return &r
}

// SetOnline records connectivity and reports whether it changed.
func (t *Tracker) SetOnline(online bool) bool {
	t.mu.Lock()
	changed := t.online != online
	t.online = online
	t.mu.Unlock()
	if changed {
		t.announce()
	}
	return changed
}

// SetSyncing flips the in-flight flag.
func (t *Tracker) SetSyncing(syncing bool) {
	t.mu.Lock()
	t.syncing = syncing
	t.mu.Unlock()
	t.announce()
}

// Publish stores r as the last result and announces it.
func (t *Tracker) Publish(r Result) {
	t.mu.Lock()
	t.last = &r
	t.mu.Unlock()
	if t.bus != nil {
		t.bus.Emit(bus.SyncCompleted, r)
	}
	t.announce()
}

// Snapshot returns the current status.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := Snapshot{Online: t.online, Syncing: t.syncing, State: Idle}
	if t.machine != nil {
		s.State = t.machine.Current()
	}
	if t.last != nil {
		r := *t.last
		s.LastResult = &r
	}
	return s
}

// Subscribe delivers a Snapshot after every status change. Slow readers miss
// snapshots rather than stall the engine. The returned func unsubscribes and
// closes the channel.
func (t *Tracker) Subscribe(bufSize int) (<-chan Snapshot, func()) {
	events, unsub := t.bus.Subscribe(bus.StatusChanged, bufSize)
	out := make(chan Snapshot, bufSize)
	done := make(chan struct{})

	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case evt := <-events:
				snap, ok := evt.Payload.(Snapshot)
				if !ok {
					continue
				}
				select {
				case out <- snap:
				default:
				}
			}
		}
	}()

	var once sync.Once
	return out, func() {
		once.Do(func() {
			unsub()
			close(done)
		})
	}
}

func (t *Tracker) announce() {
	if t.bus != nil {
		t.bus.Emit(bus.StatusChanged, t.Snapshot())
	}
}
