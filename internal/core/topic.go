package core

import "sort"

// Topic groups clients subscribed to the same channel name together with
// the presence entries they announced.
type Topic struct {
	Name     string
	clients  map[*Client]struct{}
	presence map[string]PresenceEntry
}

// NewTopic constructs a topic with no clients.
func NewTopic(name string) *Topic {
	return &Topic{
		Name:     name,
		clients:  make(map[*Client]struct{}),
		presence: make(map[string]PresenceEntry),
	}
}

// AddClient inserts a client into the topic. Returns true if newly added.
func (t *Topic) AddClient(c *Client) bool {
	if _, exists := t.clients[c]; exists {
		return false
	}
	t.clients[c] = struct{}{}
	return true
}

// RemoveClient deletes a client and its presence entry.
// Returns whether the client was subscribed and whether the roster changed.
func (t *Topic) RemoveClient(c *Client) (removed, rosterChanged bool) {
	if _, exists := t.clients[c]; !exists {
		return false, false
	}
	delete(t.clients, c)
	return true, t.Untrack(c)
}

// Has reports whether c is subscribed.
func (t *Topic) Has(c *Client) bool {
	_, ok := t.clients[c]
	return ok
}

// Track adds or replaces the presence entry of c.
func (t *Topic) Track(c *Client, p Presence) {
	t.presence[c.ID] = PresenceEntry{Key: c.ID, Presence: p}
}

// Untrack removes the presence entry of c. Returns true if one existed.
func (t *Topic) Untrack(c *Client) bool {
	if _, ok := t.presence[c.ID]; !ok {
		return false
	}
	delete(t.presence, c.ID)
	return true
}

// Roster returns the presence entries ordered by key.
func (t *Topic) Roster() []PresenceEntry {
	out := make([]PresenceEntry, 0, len(t.presence))
	for _, p := range t.presence {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Broadcast sends an event to all clients in the topic except one.
// A nil except reaches everyone.
func (t *Topic) Broadcast(event *Event, except *Client) {
	for client := range t.clients {
		if client == except {
			continue
		}
		// Drop if slow consumer.
		client.send(event)
	}
}

// Len returns the number of subscribers.
func (t *Topic) Len() int {
	return len(t.clients)
}

// Empty returns true if no clients are subscribed.
func (t *Topic) Empty() bool {
	return len(t.clients) == 0
}
