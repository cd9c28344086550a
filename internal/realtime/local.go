package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/okultahta/tahta-server/internal/core"
)

// Local is a Channel backed by an in-process hub.
type Local struct {
	hub *core.Hub
	log zerolog.Logger
}

// NewLocal wraps hub. The hub must be running.
func NewLocal(hub *core.Hub, logger *zerolog.Logger) *Local {
	l := &Local{hub: hub, log: zerolog.Nop()}
	if logger != nil {
		l.log = logger.With().Str("component", "realtime_local").Logger()
	}
	return l
}

// Subscribe registers a hub client for topic and waits for the acknowledgment.
func (l *Local) Subscribe(ctx context.Context, topic string, h Handler) (Subscription, error) {
	client := core.NewClient(uuid.NewString(), "", "local")
	l.hub.RegisterClient(client)

	select {
	case client.Commands <- &core.Command{Kind: core.CommandSubscribe, Topic: topic}:
	case <-ctx.Done():
		l.hub.UnregisterClient(client)
		return nil, ctx.Err()
	}

	for {
		select {
		case ev, ok := <-client.Events:
			if !ok {
				return nil, ErrClosed
			}
			switch ev.Kind {
			case core.EventSubscribed:
				s := &localSub{
					client:  client,
					hub:     l.hub,
					topic:   topic,
					handler: h,
					log:     l.log.With().Str("topic", topic).Str("client_id", client.ID).Logger(),
					stopped: make(chan struct{}),
				}
				go s.dispatch()
				return s, nil
			case core.EventError:
				l.hub.UnregisterClient(client)
				return nil, fmt.Errorf("subscribe %s: %w", topic, ev.Error)
			}
		case <-ctx.Done():
			l.hub.UnregisterClient(client)
			return nil, ctx.Err()
		}
	}
}

type localSub struct {
	client  *core.Client
	hub     *core.Hub
	topic   string
	handler Handler
	log     zerolog.Logger

	once    sync.Once
	stopped chan struct{}
}

func (s *localSub) dispatch() {
	defer close(s.stopped)
	for ev := range s.client.Events {
		switch ev.Kind {
		case core.EventBroadcast:
			decoded, err := DecodeEvent(ev.Broadcast.Event, ev.Broadcast.Payload)
			if err != nil {
				s.log.Warn().Err(err).Msg("drop inbound event")
				continue
			}
			s.handler.event(decoded)
		case core.EventPresenceSync:
			s.handler.presence(fromCore(ev.Presence))
		case core.EventChange:
			s.handler.change(ev.Strokes)
		case core.EventError:
			s.log.Warn().Str("code", ev.Error.Code).Msg(ev.Error.Message)
		}
	}
}

func (s *localSub) send(ctx context.Context, cmd *core.Command) error {
	select {
	case s.client.Commands <- cmd:
		return nil
	case <-s.client.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *localSub) Publish(ctx context.Context, ev Event) error {
	name, payload, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	return s.send(ctx, &core.Command{
		Kind:      core.CommandBroadcast,
		Topic:     s.topic,
		Broadcast: &core.Broadcast{Event: name, Payload: payload},
	})
}

func (s *localSub) Track(ctx context.Context, p Presence) error {
	return s.send(ctx, &core.Command{
		Kind:     core.CommandTrack,
		Topic:    s.topic,
		Presence: &core.Presence{UserID: p.UserID, Username: p.Username},
	})
}

// Close unregisters the client, which also drops its presence entry.
func (s *localSub) Close() error {
	s.once.Do(func() {
		s.hub.UnregisterClient(s.client)
		<-s.stopped
	})
	return nil
}

func fromCore(entries []core.PresenceEntry) []Presence {
	out := make([]Presence, 0, len(entries))
	for _, e := range entries {
		out = append(out, Presence{Key: e.Key, UserID: e.UserID, Username: e.Username})
	}
	return out
}
