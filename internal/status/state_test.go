package status

import (
	"testing"

	"github.com/matheus3301/shiftsync/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Idle {
		t.Errorf("initial state = %s, want IDLE", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Idle, Syncing},
		{Syncing, Succeeded},
		{Syncing, PartiallyFailed},
		{Syncing, Failed},
		{Succeeded, Idle},
		{PartiallyFailed, Idle},
		{Failed, Idle},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Idle, Succeeded},
		{Idle, Failed},
		{Syncing, Syncing},
		{Syncing, Idle},
		{Succeeded, Syncing},
		{Failed, Syncing},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err == nil {
				t.Errorf("Transition(%s -> %s) should fail", tt.from, tt.to)
			}
			if m.Current() != tt.from {
				t.Errorf("state = %s, want %s (unchanged)", m.Current(), tt.from)
			}
		})
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Syncing); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.SyncStateChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.SyncStateChanged)
	}
	change, ok := evt.Payload.(StateChange)
	if !ok {
		t.Fatalf("payload type = %T, want StateChange", evt.Payload)
	}
	if change.From != Idle || change.To != Syncing {
		t.Errorf("change = %v -> %v, want IDLE -> SYNCING", change.From, change.To)
	}
}

func TestFullCycle(t *testing.T) {
	m := NewMachine(nil)

	for _, end := range []State{Succeeded, PartiallyFailed, Failed} {
		for _, s := range []State{Syncing, end, Idle} {
			if err := m.Transition(s); err != nil {
				t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
			}
		}
	}
	if m.Current() != Idle {
		t.Errorf("final state = %s, want IDLE", m.Current())
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Idle:            {},
		Syncing:         {Syncing},
		Succeeded:       {Syncing, Succeeded},
		PartiallyFailed: {Syncing, PartiallyFailed},
		Failed:          {Syncing, Failed},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
