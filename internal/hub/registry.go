// Package hub tracks every live chat connection and the set of connections
// bound to each authenticated username.
package hub

import (
	"sort"
	"sync"

	"chat_terminal/internal/logger"
	"chat_terminal/internal/protocol"
)

// Conn is one live transport endpoint. Send must be bounded-effort: a slow
// peer returns an error instead of blocking the caller indefinitely.
type Conn interface {
	ID() string
	Send(m protocol.Message) error
	Close() error
}

// Registry is the shared connection table. A connection may be registered
// without being bound to a username (not yet authenticated); it can never be
// bound without being registered. One mutex covers both structures since
// bind/unbind touch them atomically.
type Registry struct {
	mu     sync.Mutex
	conns  map[string]Conn
	bound  map[string]string          // conn ID -> username
	byUser map[string]map[string]Conn // username -> conn ID -> conn
	log    *logger.Logger
}

func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]Conn),
		bound:  make(map[string]string),
		byUser: make(map[string]map[string]Conn),
		log:    log,
	}
}

// Register adds a connection to the active set.
func (r *Registry) Register(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID()] = c
}

// Unregister removes the connection from the active set and, if bound,
// from the username mapping. Safe to call more than once.
func (r *Registry) Unregister(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(c.ID())
}

// Bind associates a registered connection with an authenticated username.
// A connection that is not registered cannot be bound.
func (r *Registry) Bind(c Conn, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := c.ID()
	if _, ok := r.conns[id]; !ok {
		return
	}
	if prev, ok := r.bound[id]; ok {
		r.removeBinding(id, prev)
	}
	r.bound[id] = username
	set, ok := r.byUser[username]
	if !ok {
		set = make(map[string]Conn)
		r.byUser[username] = set
	}
	set[id] = c
}

// Unbind drops the connection's username association, if any. Removing the
// last connection for a username removes the mapping entry entirely.
func (r *Registry) Unbind(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := c.ID()
	if username, ok := r.bound[id]; ok {
		r.removeBinding(id, username)
	}
}

// Broadcast delivers m to every active connection except exclude (may be
// nil). A failed send marks that one connection dead and unregisters it;
// delivery to the remaining connections continues.
func (r *Registry) Broadcast(m protocol.Message, exclude Conn) {
	for _, c := range r.snapshot(exclude) {
		r.SendTo(c, m)
	}
}

// SendTo is a best-effort single delivery; on failure the connection is
// treated as dead and unregistered.
func (r *Registry) SendTo(c Conn, m protocol.Message) {
	if err := c.Send(m); err != nil {
		if r.log != nil {
			r.log.Infow("dropping dead connection", "conn", c.ID(), "err", err)
		}
		r.Unregister(c)
		_ = c.Close()
	}
}

// ConnectionsFor returns the live connections bound to username.
func (r *Registry) ConnectionsFor(username string) []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.byUser[username]
	conns := make([]Conn, 0, len(set))
	for _, c := range set {
		conns = append(conns, c)
	}
	return conns
}

// Usernames returns the sorted list of currently bound usernames.
func (r *Registry) Usernames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.byUser))
	for u := range r.byUser {
		names = append(names, u)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of active connections, bound or not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// snapshot copies the active set under the lock so sends happen outside it.
func (r *Registry) snapshot(exclude Conn) []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := make([]Conn, 0, len(r.conns))
	for id, c := range r.conns {
		if exclude != nil && id == exclude.ID() {
			continue
		}
		conns = append(conns, c)
	}
	return conns
}

// remove deletes the connection and its binding. Caller holds r.mu.
func (r *Registry) remove(id string) {
	delete(r.conns, id)
	if username, ok := r.bound[id]; ok {
		r.removeBinding(id, username)
	}
}

// removeBinding drops one conn from the username mapping, pruning empty
// sets. Caller holds r.mu.
func (r *Registry) removeBinding(id, username string) {
	delete(r.bound, id)
	if set, ok := r.byUser[username]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.byUser, username)
		}
	}
}
