package bridge

import (
	"errors"
	"testing"
	"time"

	"github.com/madkoding/esp32-android-auto-wifi/pkg"
)

// drive applies a sequence of events, failing the test on any rejection.
func drive(t *testing.T, m *Machine, events ...Event) {
	t.Helper()
	for _, ev := range events {
		if err := m.Apply(ev, ""); err != nil {
			t.Fatalf("Apply(%s) in %s: %v", ev, m.State(), err)
		}
	}
}

// bringUp is the event sequence from Init to a given session state.
var bringUp = map[State][]Event{
	StateApReady:         {EventAPStartRequested, EventAPStarted},
	StateClientConnected: {EventAPStartRequested, EventAPStarted, EventClientAccepted},
	StateHandshaking:     {EventAPStartRequested, EventAPStarted, EventClientAccepted, EventHelloExchanged},
	StateForwarding:      {EventAPStartRequested, EventAPStarted, EventClientAccepted, EventHelloExchanged, EventAccessoryAttached},
}

func TestMachineHappyPath(t *testing.T) {
	m := NewMachine(0)
	if m.State() != StateInit {
		t.Fatalf("initial state = %s, want init", m.State())
	}

	steps := []struct {
		event Event
		want  State
	}{
		{EventAPStartRequested, StateApStarting},
		{EventAPStarted, StateApReady},
		{EventClientAccepted, StateClientConnected},
		{EventHelloExchanged, StateHandshaking},
		{EventAccessoryAttached, StateForwarding},
	}
	for _, step := range steps {
		if err := m.Apply(step.event, ""); err != nil {
			t.Fatalf("Apply(%s): %v", step.event, err)
		}
		if m.State() != step.want {
			t.Fatalf("after %s: state = %s, want %s", step.event, m.State(), step.want)
		}
	}
}

func TestMachineTransportLossLandsInApReady(t *testing.T) {
	for _, from := range []State{StateClientConnected, StateHandshaking, StateForwarding} {
		t.Run(from.String(), func(t *testing.T) {
			m := NewMachine(0)
			drive(t, m, bringUp[from]...)

			if err := m.Apply(EventTransportLost, ""); err != nil {
				t.Fatalf("Apply(transport-lost): %v", err)
			}
			if m.State() != StateApReady {
				t.Errorf("state = %s, want ap-ready", m.State())
			}
		})
	}
}

func TestMachineRejectsInvalidEvents(t *testing.T) {
	tests := []struct {
		name  string
		setup []Event
		event Event
	}{
		{"accept in init", nil, EventClientAccepted},
		{"forward before handshake", bringUp[StateClientConnected], EventAccessoryAttached},
		{"ap started twice", bringUp[StateApReady], EventAPStarted},
		{"loss in ap-ready", bringUp[StateApReady], EventTransportLost},
		{"backoff outside error", bringUp[StateForwarding], EventBackoffElapsed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(0)
			drive(t, m, tt.setup...)
			before := m.State()

			if err := m.Apply(tt.event, ""); !errors.Is(err, pkg.ErrInvalidState) {
				t.Errorf("Apply(%s) error = %v, want ErrInvalidState", tt.event, err)
			}
			if m.State() != before {
				t.Errorf("state changed to %s on rejected event", m.State())
			}
		})
	}
}

func TestMachineFaultFromAnyState(t *testing.T) {
	for _, from := range []State{StateApReady, StateClientConnected, StateHandshaking, StateForwarding} {
		t.Run(from.String(), func(t *testing.T) {
			m := NewMachine(0)
			drive(t, m, bringUp[from]...)

			if err := m.Apply(EventFault, "it broke"); err != nil {
				t.Fatalf("Apply(fault): %v", err)
			}
			if m.State() != StateError {
				t.Errorf("state = %s, want error", m.State())
			}
			if m.Status() != "it broke" {
				t.Errorf("Status() = %q, want %q", m.Status(), "it broke")
			}
		})
	}
}

func TestMachineBackoffNotBeforeDeadline(t *testing.T) {
	now := time.Unix(1000, 0)
	m := NewMachine(5 * time.Second)
	m.now = func() time.Time { return now }

	drive(t, m, EventAPStartRequested)
	if err := m.Apply(EventAPStartFailed, "bind failed"); err != nil {
		t.Fatalf("Apply(ap-start-failed): %v", err)
	}
	if got := m.RetryAt(); !got.Equal(now.Add(5 * time.Second)) {
		t.Fatalf("RetryAt() = %v, want %v", got, now.Add(5*time.Second))
	}

	// One tick short of the deadline: rejected.
	now = now.Add(5*time.Second - time.Nanosecond)
	if err := m.Apply(EventBackoffElapsed, ""); !errors.Is(err, pkg.ErrInvalidState) {
		t.Fatalf("early Apply(backoff-elapsed) error = %v, want ErrInvalidState", err)
	}
	if m.State() != StateError {
		t.Fatalf("state = %s, want error", m.State())
	}

	now = now.Add(time.Nanosecond)
	if err := m.Apply(EventBackoffElapsed, ""); err != nil {
		t.Fatalf("Apply(backoff-elapsed): %v", err)
	}
	if m.State() != StateApStarting {
		t.Errorf("state = %s, want ap-starting", m.State())
	}
	if m.Status() != "" {
		t.Errorf("Status() = %q after recovery, want empty", m.Status())
	}
}

func TestMachineOnChange(t *testing.T) {
	m := NewMachine(0)
	var seen []State
	m.OnChange(func(s State) { seen = append(seen, s) })

	drive(t, m, EventAPStartRequested, EventAPStarted)
	m.Apply(EventAPStarted, "") // rejected, must not fire

	want := []State{StateApStarting, StateApReady}
	if len(seen) != len(want) {
		t.Fatalf("OnChange fired %d times, want %d", len(seen), len(want))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("change[%d] = %s, want %s", i, seen[i], want[i])
		}
	}
}
