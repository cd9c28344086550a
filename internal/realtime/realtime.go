// Package realtime defines the publish/subscribe channel a whiteboard
// session uses to exchange strokes and presence with other participants.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/okultahta/tahta-server/internal/proto"
	"github.com/okultahta/tahta-server/internal/stroke"
)

// ErrClosed is returned by a subscription after Close.
var ErrClosed = errors.New("realtime: subscription closed")

const topicPrefix = "drawing:"

// Topic returns the channel name of a drawing session.
func Topic(sessionID string) string {
	return topicPrefix + sessionID
}

// SessionID extracts the drawing id from a topic built by Topic.
func SessionID(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, topicPrefix)
	return id, ok && id != ""
}

// Event is an application event exchanged on a topic.
type Event struct {
	Name    string         // draw, clear or join
	Line    *stroke.Stroke // set for draw
	Message string         // set for join
}

// Draw builds a draw event carrying a copy of s.
func Draw(s stroke.Stroke) Event {
	c := s.Clone()
	return Event{Name: proto.EventDraw, Line: &c}
}

// Clear builds a clear event.
func Clear() Event {
	return Event{Name: proto.EventClear}
}

// Join builds the informational join announcement.
func Join(username string) Event {
	return Event{Name: proto.EventJoin, Message: username + " has joined"}
}

// Presence is one participant on a topic.
type Presence struct {
	Key      string
	UserID   string
	Username string
}

// Handler receives what arrives on a subscription. Nil callbacks are skipped.
type Handler struct {
	OnEvent    func(Event)
	OnPresence func([]Presence)
	OnChange   func([]stroke.Stroke)
}

func (h Handler) event(ev Event) {
	if h.OnEvent != nil {
		h.OnEvent(ev)
	}
}

func (h Handler) presence(p []Presence) {
	if h.OnPresence != nil {
		h.OnPresence(p)
	}
}

func (h Handler) change(s []stroke.Stroke) {
	if h.OnChange != nil {
		h.OnChange(s)
	}
}

// Channel opens subscriptions to topics.
type Channel interface {
	Subscribe(ctx context.Context, topic string, h Handler) (Subscription, error)
}

// Subscription is an open topic. Publish never echoes back to the sender.
type Subscription interface {
	Publish(ctx context.Context, ev Event) error
	Track(ctx context.Context, p Presence) error
	Close() error
}

// EncodeEvent turns ev into the wire event name and payload.
func EncodeEvent(ev Event) (string, json.RawMessage, error) {
	var payload any
	switch ev.Name {
	case proto.EventDraw:
		if ev.Line == nil {
			return "", nil, fmt.Errorf("draw event without line")
		}
		payload = proto.DrawPayload{Line: *ev.Line}
	case proto.EventJoin:
		payload = proto.JoinPayload{Message: ev.Message}
	case proto.EventClear:
		return ev.Name, nil, nil
	default:
		return "", nil, fmt.Errorf("unknown event %q", ev.Name)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s payload: %w", ev.Name, err)
	}
	return ev.Name, raw, nil
}

// DecodeEvent parses a wire event. Draw events with invalid strokes are rejected.
func DecodeEvent(name string, payload json.RawMessage) (Event, error) {
	switch name {
	case proto.EventDraw:
		var p proto.DrawPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return Event{}, fmt.Errorf("decode draw payload: %w", err)
		}
		if err := p.Line.Validate(); err != nil {
			return Event{}, err
		}
		return Event{Name: name, Line: &p.Line}, nil
	case proto.EventClear:
		return Event{Name: name}, nil
	case proto.EventJoin:
		var p proto.JoinPayload
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &p); err != nil {
				return Event{}, fmt.Errorf("decode join payload: %w", err)
			}
		}
		return Event{Name: name, Message: p.Message}, nil
	default:
		return Event{}, fmt.Errorf("unknown event %q", name)
	}
}
