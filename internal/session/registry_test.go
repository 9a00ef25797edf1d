package session

import (
	"errors"
	"math/rand/v2"
	"net"
	"testing"

	"github.com/1ureka/quickscreen/internal/protocol"
)

func testClient(id protocol.ClientID) Client {
	return Client{ID: id, Addr: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000 + int(id)}}
}

func TestRegistryAcceptFlow(t *testing.T) {
	r := NewRegistry()

	if !r.RegisterPending(testClient(42)) {
		t.Fatal("RegisterPending on unknown id returned false")
	}
	if got := r.State(42); got != StatePending {
		t.Fatalf("state after join: got %v, want pending", got)
	}

	c, err := r.Resolve(42, true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if c.ID != 42 {
		t.Errorf("resolved client id: got %v", c.ID)
	}
	if got := r.State(42); got != StateAccepted {
		t.Fatalf("state after accept: got %v, want accepted", got)
	}
	if acc := r.Accepted(); len(acc) != 1 || acc[0].ID != 42 {
		t.Errorf("Accepted: got %+v", acc)
	}

	if _, ok := r.Remove(42); !ok {
		t.Fatal("Remove of accepted client returned false")
	}
	if got := r.State(42); got != StateUnknown {
		t.Errorf("state after leave: got %v, want unknown", got)
	}
}

// TestRegistryRefusalIsTerminal documents that a refused id can never
// re-enter pending, even after it left.
func TestRegistryRefusalIsTerminal(t *testing.T) {
	r := NewRegistry()

	r.RegisterPending(testClient(7))
	if _, err := r.Resolve(7, false); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if r.RegisterPending(testClient(7)) {
		t.Error("refused id was registered again")
	}
	if _, ok := r.Remove(7); ok {
		t.Error("Remove dropped a refused id")
	}
	if r.RegisterPending(testClient(7)) {
		t.Error("refused id was registered again after Left")
	}
	if got := r.State(7); got != StateRefused {
		t.Errorf("state: got %v, want refused", got)
	}
}

func TestRegistryResolveNotPending(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Resolve(1, true); !errors.Is(err, ErrNotPending) {
		t.Errorf("unknown id: got %v, want ErrNotPending", err)
	}

	r.RegisterPending(testClient(1))
	r.Resolve(1, true)
	if _, err := r.Resolve(1, false); !errors.Is(err, ErrNotPending) {
		t.Errorf("accepted id: got %v, want ErrNotPending", err)
	}
	if got := r.State(1); got != StateAccepted {
		t.Errorf("state changed by a failed Resolve: %v", got)
	}
}

// TestRegistryNoRebind: a second join request for a known id keeps the
// original address.
func TestRegistryNoRebind(t *testing.T) {
	r := NewRegistry()
	first := testClient(5)
	r.RegisterPending(first)

	other := Client{ID: 5, Addr: &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1}}
	if r.RegisterPending(other) {
		t.Fatal("pending id was registered twice")
	}

	c, _ := r.Resolve(5, true)
	if c.Addr.String() != first.Addr.String() {
		t.Errorf("address rebound: got %v, want %v", c.Addr, first.Addr)
	}
	if r.RegisterPending(other) {
		t.Error("accepted id was registered again")
	}
}

func TestRegistryLeaveWhilePending(t *testing.T) {
	r := NewRegistry()
	r.RegisterPending(testClient(3))

	if _, ok := r.Remove(3); !ok {
		t.Fatal("Remove of pending client returned false")
	}
	if _, err := r.Resolve(3, true); !errors.Is(err, ErrNotPending) {
		t.Errorf("Resolve after leave: got %v, want ErrNotPending", err)
	}
}

// TestRegistryDisjointSets drives random operation sequences and checks that
// no id is ever in more than one set, and that refused ids stay refused.
func TestRegistryDisjointSets(t *testing.T) {
	const (
		rounds = 200
		steps  = 500
		ids    = 8
	)

	for round := range rounds {
		r := NewRegistry()
		refused := make(map[protocol.ClientID]bool)

		for step := range steps {
			id := protocol.ClientID(rand.IntN(ids))
			switch rand.IntN(4) {
			case 0:
				r.RegisterPending(testClient(id))
			case 1:
				r.Resolve(id, true)
			case 2:
				if _, err := r.Resolve(id, false); err == nil {
					refused[id] = true
				}
			case 3:
				r.Remove(id)
			}

			for i := protocol.ClientID(0); i < ids; i++ {
				_, p := r.pending[i]
				_, a := r.accepted[i]
				_, f := r.refused[i]
				n := 0
				for _, in := range []bool{p, a, f} {
					if in {
						n++
					}
				}
				if n > 1 {
					t.Fatalf("round %d step %d: id %v in %d sets", round, step, i, n)
				}
				if refused[i] && !f {
					t.Fatalf("round %d step %d: refused id %v left the refused set", round, step, i)
				}
			}
		}

		p, a, f := r.Counts()
		if p+a+f > ids {
			t.Fatalf("round %d: %d entries for %d ids", round, p+a+f, ids)
		}
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		StateUnknown:  "unknown",
		StatePending:  "pending",
		StateAccepted: "accepted",
		StateRefused:  "refused",
	} {
		if got := s.String(); got != want {
			t.Errorf("%d: got %q, want %q", s, got, want)
		}
	}
}
