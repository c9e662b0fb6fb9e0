package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/crmsync/internal/bus"
)

// State is the daemon's sync mode as shown to clients.
type State string

const (
	Booting     State = "BOOTING"
	Connecting  State = "CONNECTING"
	Live        State = "LIVE"
	Polling     State = "POLLING"
	AuthExpired State = "AUTH_EXPIRED"
	Error       State = "ERROR"
)

// LIVE means push is connected; POLLING means the daemon is running on the
// timer fallback alone. AUTH_EXPIRED is terminal for the process.
var validTransitions = map[State][]State{
	Booting:     {Connecting, AuthExpired, Error},
	Connecting:  {Live, Polling, AuthExpired, Error},
	Live:        {Polling, AuthExpired, Error},
	Polling:     {Live, Connecting, AuthExpired, Error},
	AuthExpired: {},
	Error:       {Booting},
}

// Machine tracks and enforces daemon runtime state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a machine in Booting.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition moves to a new state or returns an error if the move is not allowed.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Emit(bus.KindStatusChanged, StatusChange{From: from, To: to})
	}
	return nil
}

// Ensure transitions to `to` unless already there. It is the form used by
// event handlers that may fire repeatedly, such as push reconnects.
func (m *Machine) Ensure(to State) error {
	if m.Current() == to {
		return nil
	}
	return m.Transition(to)
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
