package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/shiftsync/internal/bus"
)

// State is the phase of the sync cycle.
type State string

const (
	Idle            State = "IDLE"
	Syncing         State = "SYNCING"
	Succeeded       State = "SUCCEEDED"
	PartiallyFailed State = "PARTIALLY_FAILED"
	Failed          State = "FAILED"
)

// validTransitions defines allowed state transitions. Every terminal state
// goes back to Idle before the next cycle may start.
var validTransitions = map[State][]State{
	Idle:            {Syncing},
	Syncing:         {Succeeded, PartiallyFailed, Failed},
	Succeeded:       {Idle},
	PartiallyFailed: {Idle},
	Failed:          {Idle},
}

// Machine tracks and enforces sync cycle state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Idle.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Idle,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Emit(bus.SyncStateChanged, StateChange{From: from, To: to})
	}
	return nil
}

// Terminal reports whether s ends a cycle.
func (s State) Terminal() bool {
	return s == Succeeded || s == PartiallyFailed || s == Failed
}

// StateChange is the payload for state change events.
type StateChange struct {
	From State
	To   State
}
