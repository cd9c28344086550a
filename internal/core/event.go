package core

import "github.com/okultahta/tahta-server/internal/stroke"

// EventKind is a notification the hub emits to clients.
type EventKind int

const (
	// EventSubscribed acknowledges a subscribe command.
	EventSubscribed EventKind = iota
	// EventBroadcast delivers another participant's broadcast.
	EventBroadcast
	// EventPresenceSync delivers the full presence roster of a topic.
	EventPresenceSync
	// EventChange notifies subscribers that the persisted drawing changed.
	EventChange
	// EventError notifies a client about a domain error.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventSubscribed:
		return "subscribed"
	case EventBroadcast:
		return "broadcast"
	case EventPresenceSync:
		return "presence"
	case EventChange:
		return "change"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is sent to clients to describe what happened on a topic.
type Event struct {
	Kind      EventKind
	Topic     string
	From      string // client id of the sender, empty for relayed events
	Broadcast *Broadcast
	Presence  []PresenceEntry // For EventPresenceSync
	Strokes   []stroke.Stroke // For EventChange
	Error     *CoreError
}

// PresenceEntry is one participant of a topic roster, keyed by connection.
type PresenceEntry struct {
	Key string `json:"key"`
	Presence
}
