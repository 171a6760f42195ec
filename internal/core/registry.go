package core

import "sort"

// Registry maps a user to the single connection that currently represents them.
// It is not safe for concurrent use; the Hub owns it and touches it only from its run loop.
type Registry struct {
	conns map[int64]*Client
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[int64]*Client)}
}

// Register maps the client's user to the client, replacing any earlier connection.
// Anonymous clients are never registered. Returns the superseded client, if any.
func (r *Registry) Register(c *Client) (replaced *Client) {
	if c == nil || c.Anonymous() {
		return nil
	}
	prev := r.conns[c.UserID()]
	r.conns[c.UserID()] = c
	if prev == c {
		return nil
	}
	return prev
}

// Unregister removes the mapping for userID if it still points at connID.
// A superseded connection going away leaves its replacement in place.
func (r *Registry) Unregister(userID int64, connID string) bool {
	c, ok := r.conns[userID]
	if !ok || c.ID != connID {
		return false
	}
	delete(r.conns, userID)
	return true
}

// Resolve returns the live connection for userID.
func (r *Registry) Resolve(userID int64) (*Client, bool) {
	c, ok := r.conns[userID]
	return c, ok
}

// Snapshot returns the presence entries of every registered user ordered by user id.
func (r *Registry) Snapshot() []PresenceEntry {
	entries := make([]PresenceEntry, 0, len(r.conns))
	for _, c := range r.conns {
		entries = append(entries, entryFromProfile(c.Profile))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	return entries
}

// Len returns the number of registered users.
func (r *Registry) Len() int {
	return len(r.conns)
}
