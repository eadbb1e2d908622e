package bridge

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/madkoding/esp32-android-auto-wifi/pkg"
)

// State is the single process-wide bridge lifecycle value.
type State uint32

// Bridge states. Transitions follow the table in transition; Error is
// reachable from every state and recovers to ApStarting after backoff.
const (
	StateInit            State = iota // Not yet started
	StateApStarting                   // Bringing up the access point
	StateApReady                      // Listening, no client attached
	StateClientConnected              // Phone TCP connection accepted
	StateHandshaking                  // Hello done, AOA negotiation running
	StateForwarding                   // Both sides attached, forwarder active
	StateError                        // Failed; waiting out the backoff
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateApStarting:
		return "ap-starting"
	case StateApReady:
		return "ap-ready"
	case StateClientConnected:
		return "client-connected"
	case StateHandshaking:
		return "handshaking"
	case StateForwarding:
		return "forwarding"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a state machine input.
type Event uint8

// State machine events.
const (
	EventAPStartRequested  Event = iota // Init: begin AP bring-up
	EventAPStarted                      // ApStarting: socket bound
	EventAPStartFailed                  // ApStarting: bind failed
	EventClientAccepted                 // ApReady: phone connection accepted
	EventHelloExchanged                 // ClientConnected: hello/ack done
	EventAccessoryAttached              // Handshaking: AOA stream ready
	EventHandshakeTimeout               // Handshake stage exceeded its timeout
	EventHandshakeFailed                // Peer rejected or broke the handshake
	EventTransportLost                  // Either transport disconnected
	EventBackoffElapsed                 // Error: backoff deadline passed
	EventFault                          // Unrecoverable condition, any state
)

// String returns a human-readable event name.
func (e Event) String() string {
	switch e {
	case EventAPStartRequested:
		return "ap-start-requested"
	case EventAPStarted:
		return "ap-started"
	case EventAPStartFailed:
		return "ap-start-failed"
	case EventClientAccepted:
		return "client-accepted"
	case EventHelloExchanged:
		return "hello-exchanged"
	case EventAccessoryAttached:
		return "accessory-attached"
	case EventHandshakeTimeout:
		return "handshake-timeout"
	case EventHandshakeFailed:
		return "handshake-failed"
	case EventTransportLost:
		return "transport-lost"
	case EventBackoffElapsed:
		return "backoff-elapsed"
	case EventFault:
		return "fault"
	default:
		return "unknown"
	}
}

// DefaultBackoff is the delay before an Error state retries AP bring-up.
const DefaultBackoff = 5 * time.Second

// Machine is the bridge state machine. Apply is the single mutation
// point and must be called from one goroutine (the sequencer); State is
// an atomic read safe from the forwarding tasks and telemetry.
type Machine struct {
	state atomic.Uint32

	mu       sync.Mutex
	status   string    // human-readable detail, set on Error entry
	retryAt  time.Time // earliest permitted Error recovery
	backoff  time.Duration
	now      func() time.Time
	onChange func(State)
}

// NewMachine creates a machine in StateInit with the given Error
// recovery backoff. A non-positive backoff uses DefaultBackoff.
func NewMachine(backoff time.Duration) *Machine {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	return &Machine{
		backoff: backoff,
		now:     time.Now,
	}
}

// OnChange registers a callback invoked after every successful
// transition. Set before the machine is driven; the callback runs on
// the sequencer goroutine and must not call Apply.
func (m *Machine) OnChange(fn func(State)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// State returns the current state.
func (m *Machine) State() State {
	return State(m.state.Load())
}

// Status returns the human-readable detail for the current state.
// Empty outside of StateError.
func (m *Machine) Status() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// RetryAt returns the earliest time EventBackoffElapsed is accepted.
// Zero outside of StateError.
func (m *Machine) RetryAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retryAt
}

// Apply feeds an event through the transition table. The status string
// becomes the machine's status text when the event lands in StateError.
// Events not valid in the current state are rejected with
// pkg.ErrInvalidState and leave the machine untouched; in particular
// EventBackoffElapsed is rejected until the backoff deadline passes.
func (m *Machine) Apply(event Event, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := State(m.state.Load())
	to, ok := transition(from, event)
	if !ok {
		return fmt.Errorf("%w: %s in %s", pkg.ErrInvalidState, event, from)
	}
	if event == EventBackoffElapsed && m.now().Before(m.retryAt) {
		return fmt.Errorf("%w: backoff not elapsed", pkg.ErrInvalidState)
	}

	m.state.Store(uint32(to))
	if to == StateError {
		m.status = status
		m.retryAt = m.now().Add(m.backoff)
	} else {
		m.status = ""
		m.retryAt = time.Time{}
	}

	pkg.LogInfo(pkg.ComponentBridge, "state transition",
		"from", from.String(),
		"event", event.String(),
		"to", to.String())
	if m.onChange != nil {
		m.onChange(to)
	}
	return nil
}

// transition is the state machine table. It returns the target state
// and whether the event is valid in the given state.
func transition(from State, event Event) (State, bool) {
	if event == EventFault {
		return StateError, true
	}

	switch from {
	case StateInit:
		if event == EventAPStartRequested {
			return StateApStarting, true
		}
	case StateApStarting:
		switch event {
		case EventAPStarted:
			return StateApReady, true
		case EventAPStartFailed:
			return StateError, true
		}
	case StateApReady:
		if event == EventClientAccepted {
			return StateClientConnected, true
		}
	case StateClientConnected:
		switch event {
		case EventHelloExchanged:
			return StateHandshaking, true
		case EventHandshakeTimeout, EventHandshakeFailed:
			return StateError, true
		case EventTransportLost:
			return StateApReady, true
		}
	case StateHandshaking:
		switch event {
		case EventAccessoryAttached:
			return StateForwarding, true
		case EventHandshakeTimeout, EventHandshakeFailed:
			return StateError, true
		case EventTransportLost:
			return StateApReady, true
		}
	case StateForwarding:
		if event == EventTransportLost {
			return StateApReady, true
		}
	case StateError:
		if event == EventBackoffElapsed {
			return StateApStarting, true
		}
	}
	return from, false
}
