package session

import (
	"errors"
	"net"
	"sort"

	"github.com/1ureka/quickscreen/internal/protocol"
)

// ErrNotPending is returned by Resolve for an id that is not awaiting a decision.
var ErrNotPending = errors.New("client is not pending")

// State is the admission state of a ClientID on the host.
type State uint8

const (
	StateUnknown State = iota
	StatePending
	StateAccepted
	StateRefused
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAccepted:
		return "accepted"
	case StateRefused:
		return "refused"
	}
	return "unknown"
}

// Client is a peer known to the host. It is immutable once created.
type Client struct {
	ID   protocol.ClientID
	Addr net.Addr
}

// Registry tracks the admission state of every client in one hosting session.
// A ClientID is in at most one of pending, accepted and refused. Refusal is
// terminal for the lifetime of the registry.
//
// It is owned by the host loop goroutine and needs no locking.
type Registry struct {
	pending  map[protocol.ClientID]Client
	accepted map[protocol.ClientID]Client
	refused  map[protocol.ClientID]Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		pending:  make(map[protocol.ClientID]Client),
		accepted: make(map[protocol.ClientID]Client),
		refused:  make(map[protocol.ClientID]Client),
	}
}

// RegisterPending records a join request. It returns false, leaving the
// registry untouched, when the id is already refused, pending or accepted.
func (r *Registry) RegisterPending(c Client) bool {
	if r.State(c.ID) != StateUnknown {
		return false
	}
	r.pending[c.ID] = c
	return true
}

// Resolve moves a pending client into accepted or refused.
func (r *Registry) Resolve(id protocol.ClientID, accepted bool) (Client, error) {
	c, ok := r.pending[id]
	if !ok {
		return Client{}, ErrNotPending
	}

	delete(r.pending, id)
	if accepted {
		r.accepted[id] = c
	} else {
		r.refused[id] = c
	}
	return c, nil
}

// Remove forgets a client that left. Refused ids are kept so they cannot
// rejoin. The bool reports whether an entry was removed.
func (r *Registry) Remove(id protocol.ClientID) (Client, bool) {
	if c, ok := r.accepted[id]; ok {
		delete(r.accepted, id)
		return c, true
	}
	if c, ok := r.pending[id]; ok {
		delete(r.pending, id)
		return c, true
	}
	return Client{}, false
}

// State returns the admission state of id.
func (r *Registry) State(id protocol.ClientID) State {
	if _, ok := r.pending[id]; ok {
		return StatePending
	}
	if _, ok := r.accepted[id]; ok {
		return StateAccepted
	}
	if _, ok := r.refused[id]; ok {
		return StateRefused
	}
	return StateUnknown
}

// Accepted returns the accepted clients ordered by id.
func (r *Registry) Accepted() []Client {
	clients := make([]Client, 0, len(r.accepted))
	for _, c := range r.accepted {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })
	return clients
}

// Counts returns the size of each set.
func (r *Registry) Counts() (pending, accepted, refused int) {
	return len(r.pending), len(r.accepted), len(r.refused)
}
