package core

import "encoding/json"

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandSubscribe subscribes the client to a topic.
	CommandSubscribe CommandKind = iota
	// CommandUnsubscribe removes the client from a topic.
	CommandUnsubscribe
	// CommandBroadcast sends a payload to the other subscribers of a topic.
	CommandBroadcast
	// CommandTrack adds or replaces the client's presence entry on a topic.
	CommandTrack
	// CommandUntrack removes the client's presence entry from a topic.
	CommandUntrack
)

// Command represents an action requested by a client.
type Command struct {
	Kind      CommandKind
	Topic     string
	Broadcast *Broadcast
	Presence  *Presence
}

// Broadcast is an application event relayed verbatim to subscribers.
type Broadcast struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Presence is what a participant announces about itself.
type Presence struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}
