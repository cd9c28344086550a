package core

import (
	"context"

	"github.com/okultahta/tahta-server/internal/stroke"
)

// RelayKind tells relayed messages apart.
type RelayKind string

const (
	RelayBroadcast RelayKind = "broadcast"
	RelayChange    RelayKind = "change"
)

// RelayMessage carries a topic event between hub instances.
type RelayMessage struct {
	Origin    string          `json:"origin"`
	Topic     string          `json:"topic"`
	Kind      RelayKind       `json:"kind"`
	Broadcast *Broadcast      `json:"broadcast,omitempty"`
	Strokes   []stroke.Stroke `json:"strokes,omitempty"`
}

// Relay fans topic events out to other hub instances.
// Presence stays local to each instance.
type Relay interface {
	Publish(ctx context.Context, msg RelayMessage) error
	Messages() <-chan RelayMessage
}
