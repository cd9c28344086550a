package proto

import (
	"encoding/json"

	"github.com/okultahta/tahta-server/internal/stroke"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeSubscribe   = "subscribe"
	InboundTypeUnsubscribe = "unsubscribe"
	InboundTypeBroadcast   = "broadcast"
	InboundTypeTrack       = "track"
	InboundTypeUntrack     = "untrack"

	OutboundTypeSubscribed = "subscribed"
	OutboundTypeBroadcast  = "broadcast"
	OutboundTypePresence   = "presence"
	OutboundTypeChange     = "change"
	OutboundTypeError      = "error"
)

// Protocol error codes that are not hub domain errors.
const (
	ErrCodeInvalidMessage     = "invalid_message"
	ErrCodeUnsupportedVersion = "unsupported_version"
)

// Application events carried by broadcasts.
const (
	EventDraw  = "draw"
	EventClear = "clear"
	EventJoin  = "join"
)

// TopicData names the topic of subscribe, unsubscribe and untrack.
type TopicData struct {
	Topic string `json:"topic"`
}

// BroadcastData asks the server to relay an event to the other subscribers.
type BroadcastData struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TrackData announces the caller's presence on a topic.
type TrackData struct {
	Topic    string   `json:"topic"`
	Presence Presence `json:"presence"`
}

// Presence is a participant's public state.
type Presence struct {
	Key      string `json:"key,omitempty"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Topic string `json:"topic,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// OutboundFrame mirrors Outbound for decoding on the client side.
type OutboundFrame struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Topic string          `json:"topic,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// DrawPayload carries the committed stroke of a draw event.
type DrawPayload struct {
	Line stroke.Stroke `json:"line"`
}

// JoinPayload carries the human readable join announcement.
type JoinPayload struct {
	Message string `json:"message"`
}

// ChangeData carries the persisted strokes after a replace.
type ChangeData struct {
	Strokes []stroke.Stroke `json:"strokes"`
}

// PresenceData carries the full roster of a topic.
type PresenceData struct {
	Presences []Presence `json:"presences"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Msg
}
