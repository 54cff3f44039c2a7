package status

import (
	"testing"

	"github.com/chirpsocial/chirp/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Disconnected {
		t.Errorf("initial state = %s, want DISCONNECTED", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Disconnected, Connecting},
		{Connecting, Connected},
		{Connecting, Reconnecting},
		{Connected, Reconnecting},
		{Connected, Disconnected},
		{Reconnecting, Connecting},
		{Reconnecting, Failed},
		{Failed, Connecting},
		{Failed, Disconnected},
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

func TestInvalidTransitionLeavesStateUnchanged(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Connected); err == nil {
		t.Error("Transition(DISCONNECTED -> CONNECTED) should fail")
	}
	if m.Current() != Disconnected {
		t.Errorf("state = %s, want DISCONNECTED (should not have changed)", m.Current())
	}
}

func TestSelfTransitionIsNoop(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Disconnected); err != nil {
		t.Errorf("self transition error = %v", err)
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("conn.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.KindStatusChanged {
		t.Errorf("event kind = %q, want %q", evt.Kind, bus.KindStatusChanged)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Disconnected || change.To != Connecting {
		t.Errorf("change = %v -> %v, want DISCONNECTED -> CONNECTING", change.From, change.To)
	}
}

// TestReconnectCycle walks the full flaky-network loop:
// CONNECTED → RECONNECTING → CONNECTING → CONNECTED.
func TestReconnectCycle(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Connected)

	steps := []State{Reconnecting, Connecting, Connected}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Connected {
		t.Errorf("final state = %s, want CONNECTED", m.Current())
	}
}

// TestFailedRequiresExplicitRetry verifies FAILED only leaves via an
// explicit new connect, never straight back to CONNECTED.
func TestFailedRequiresExplicitRetry(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Failed)

	if err := m.Transition(Connected); err == nil {
		t.Fatal("Transition(FAILED -> CONNECTED) should fail")
	}
	if err := m.Transition(Connecting); err != nil {
		t.Fatalf("FAILED -> CONNECTING: %v", err)
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Disconnected: {},
		Connecting:   {Connecting},
		Connected:    {Connecting, Connected},
		Reconnecting: {Connecting, Connected, Reconnecting},
		Failed:       {Connecting, Connected, Reconnecting, Failed},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
