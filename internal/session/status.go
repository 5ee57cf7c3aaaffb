package session

import (
	"errors"
	"sync"
)

// Status is the externally observable state of the conversation session.
type Status string

const (
	StatusInit       Status = "init"
	StatusReady      Status = "ready"
	StatusRecording  Status = "recording"
	StatusProcessing Status = "processing"
)

var ErrInvalidTransition = errors.New("invalid session status transition")

// TransitionError reports a compare-and-set transition that did not apply.
type TransitionError struct {
	From    Status
	To      Status
	Current Status
}

func (e *TransitionError) Error() string {
	return "session status " + string(e.Current) + ": cannot move from " + string(e.From) + " to " + string(e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

var validTransitions = map[Status][]Status{
	StatusInit:       {StatusReady},
	StatusReady:      {StatusRecording, StatusProcessing},
	StatusRecording:  {StatusProcessing, StatusReady},
	StatusProcessing: {StatusReady},
}

// Machine holds the session status. Transitions are compare-and-set so a
// caller can never move the session out of a state it did not observe.
type Machine struct {
	mu       sync.Mutex
	current  Status
	onChange func(from, to Status)
}

func NewMachine(onChange func(from, to Status)) *Machine {
	return &Machine{current: StatusInit, onChange: onChange}
}

func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Transition moves from -> to only when the current status is from.
func (m *Machine) Transition(from, to Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != from || !allowed(from, to) {
		return &TransitionError{From: from, To: to, Current: m.current}
	}
	m.set(to)
	return nil
}

// ForceInit re-enters Init from any state.
func (m *Machine) ForceInit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(StatusInit)
}

// set must be called with mu held; the hook runs under the lock so observers
// see transitions in order.
func (m *Machine) set(to Status) {
	from := m.current
	m.current = to
	if m.onChange != nil && from != to {
		m.onChange(from, to)
	}
}

func allowed(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
