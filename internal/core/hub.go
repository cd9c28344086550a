package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/okultahta/tahta-server/internal/stroke"
)

const relayPublishTimeout = 3 * time.Second

type clientCommand struct {
	client *Client
	cmd    *Command
}

type change struct {
	topic   string
	strokes []stroke.Stroke
}

// Hub owns topics and routes commands from clients. All state is mutated
// by the Run goroutine only.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	commands   chan clientCommand
	changes    chan change
	done       chan struct{}

	clients map[*Client]struct{}
	topics  map[string]*Topic

	relay      Relay
	instanceID string
	log        zerolog.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l.With().Str("component", "hub").Logger()
		}
	}
}

// WithRelay connects the hub to other instances.
func WithRelay(r Relay) Option {
	return func(h *Hub) { h.relay = r }
}

// WithInstanceID overrides the generated instance id used to drop relay echoes.
func WithInstanceID(id string) Option {
	return func(h *Hub) {
		if id != "" {
			h.instanceID = id
		}
	}
}

// NewHub creates a hub. Call Run before registering clients.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		commands:   make(chan clientCommand, 256),
		changes:    make(chan change, 64),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		topics:     make(map[string]*Topic),
		instanceID: uuid.NewString(),
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// InstanceID identifies this hub on the relay.
func (h *Hub) InstanceID() string {
	return h.instanceID
}

// RegisterClient adds a client and starts forwarding its commands.
// It is a no-op after the hub stopped.
func (h *Hub) RegisterClient(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// UnregisterClient removes a client from every topic and closes its Events.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// NotifyChange tells every subscriber of topic that the persisted strokes changed.
func (h *Hub) NotifyChange(topic string, strokes []stroke.Stroke) {
	select {
	case h.changes <- change{topic: topic, strokes: stroke.CloneAll(strokes)}:
	case <-h.done:
	}
}

// Run processes registrations and commands until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	var relayed <-chan RelayMessage
	if h.relay != nil {
		relayed = h.relay.Messages()
	}

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.dropClient(c)
			}
			return
		case c := <-h.register:
			if _, ok := h.clients[c]; ok {
				continue
			}
			h.clients[c] = struct{}{}
			go h.forward(ctx, c)
			h.log.Debug().Str("client", c.ID).Msg("client registered")
		case c := <-h.unregister:
			if _, ok := h.clients[c]; !ok {
				continue
			}
			h.dropClient(c)
			h.log.Debug().Str("client", c.ID).Msg("client unregistered")
		case cc := <-h.commands:
			if _, ok := h.clients[cc.client]; !ok {
				continue
			}
			h.handleCommand(ctx, cc.client, cc.cmd)
		case ch := <-h.changes:
			h.deliverChange(ch.topic, ch.strokes)
			h.publish(ctx, RelayMessage{Topic: ch.topic, Kind: RelayChange, Strokes: ch.strokes})
		case msg, ok := <-relayed:
			if !ok {
				relayed = nil
				continue
			}
			h.handleRelay(msg)
		}
	}
}

func (h *Hub) forward(ctx context.Context, c *Client) {
	for {
		select {
		case cmd := <-c.Commands:
			if cmd == nil {
				continue
			}
			select {
			case h.commands <- clientCommand{client: c, cmd: cmd}:
			case <-c.done:
				return
			case <-ctx.Done():
				return
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) dropClient(c *Client) {
	for name := range c.topics {
		h.leave(c, name)
	}
	delete(h.clients, c)
	close(c.done)
	close(c.Events)
}

func (h *Hub) handleCommand(ctx context.Context, c *Client, cmd *Command) {
	if cmd.Topic == "" {
		h.sendError(c, cmd.Topic, ErrCodeBadRequest, "topic is required")
		return
	}

	switch cmd.Kind {
	case CommandSubscribe:
		h.subscribe(c, cmd.Topic)
	case CommandUnsubscribe:
		if _, ok := h.topics[cmd.Topic]; !ok {
			h.sendError(c, cmd.Topic, ErrCodeTopicNotFound, "topic not found")
			return
		}
		if _, ok := c.topics[cmd.Topic]; !ok {
			h.sendError(c, cmd.Topic, ErrCodeNotSubscribed, "not subscribed to topic")
			return
		}
		h.leave(c, cmd.Topic)
	case CommandBroadcast:
		t := h.subscribedTopic(c, cmd.Topic)
		if t == nil {
			return
		}
		if cmd.Broadcast == nil || cmd.Broadcast.Event == "" {
			h.sendError(c, cmd.Topic, ErrCodeBadRequest, "event is required")
			return
		}
		b := *cmd.Broadcast
		t.Broadcast(&Event{Kind: EventBroadcast, Topic: t.Name, From: c.ID, Broadcast: &b}, c)
		h.publish(ctx, RelayMessage{Topic: t.Name, Kind: RelayBroadcast, Broadcast: &b})
	case CommandTrack:
		t := h.subscribedTopic(c, cmd.Topic)
		if t == nil {
			return
		}
		if cmd.Presence == nil {
			h.sendError(c, cmd.Topic, ErrCodeBadRequest, "presence is required")
			return
		}
		t.Track(c, *cmd.Presence)
		h.syncPresence(t)
	case CommandUntrack:
		t := h.subscribedTopic(c, cmd.Topic)
		if t == nil {
			return
		}
		if t.Untrack(c) {
			h.syncPresence(t)
		}
	default:
		h.sendError(c, cmd.Topic, ErrCodeBadRequest, "unknown command")
	}
}

func (h *Hub) subscribe(c *Client, name string) {
	t, ok := h.topics[name]
	if !ok {
		t = NewTopic(name)
		h.topics[name] = t
	}
	if !t.AddClient(c) {
		h.sendError(c, name, ErrCodeAlreadySubscribed, "already subscribed to topic")
		return
	}
	c.topics[name] = struct{}{}
	c.send(&Event{Kind: EventSubscribed, Topic: name})
	c.send(&Event{Kind: EventPresenceSync, Topic: name, Presence: t.Roster()})
}

func (h *Hub) leave(c *Client, name string) {
	delete(c.topics, name)
	t, ok := h.topics[name]
	if !ok {
		return
	}
	_, rosterChanged := t.RemoveClient(c)
	if t.Empty() {
		delete(h.topics, name)
		return
	}
	if rosterChanged {
		h.syncPresence(t)
	}
}

func (h *Hub) subscribedTopic(c *Client, name string) *Topic {
	t, ok := h.topics[name]
	if !ok || !t.Has(c) {
		h.sendError(c, name, ErrCodeNotSubscribed, "not subscribed to topic")
		return nil
	}
	return t
}

func (h *Hub) syncPresence(t *Topic) {
	t.Broadcast(&Event{Kind: EventPresenceSync, Topic: t.Name, Presence: t.Roster()}, nil)
}

func (h *Hub) deliverChange(name string, strokes []stroke.Stroke) {
	t, ok := h.topics[name]
	if !ok {
		return
	}
	t.Broadcast(&Event{Kind: EventChange, Topic: name, Strokes: strokes}, nil)
}

func (h *Hub) handleRelay(msg RelayMessage) {
	if msg.Origin == h.instanceID {
		return
	}
	switch msg.Kind {
	case RelayBroadcast:
		t, ok := h.topics[msg.Topic]
		if !ok || msg.Broadcast == nil {
			return
		}
		t.Broadcast(&Event{Kind: EventBroadcast, Topic: msg.Topic, Broadcast: msg.Broadcast}, nil)
	case RelayChange:
		h.deliverChange(msg.Topic, msg.Strokes)
	default:
		h.log.Warn().Str("kind", string(msg.Kind)).Msg("unknown relay message")
	}
}

func (h *Hub) publish(ctx context.Context, msg RelayMessage) {
	if h.relay == nil {
		return
	}
	msg.Origin = h.instanceID
	go func() {
		pctx, cancel := context.WithTimeout(ctx, relayPublishTimeout)
		defer cancel()
		if err := h.relay.Publish(pctx, msg); err != nil {
			h.log.Warn().Err(err).Str("topic", msg.Topic).Msg("relay publish failed")
		}
	}()
}

func (h *Hub) sendError(c *Client, topic, code, msg string) {
	c.send(&Event{Kind: EventError, Topic: topic, Error: coreError(code, msg)})
}
