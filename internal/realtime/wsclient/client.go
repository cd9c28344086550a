// Package wsclient connects a whiteboard controller to a remote server: the
// realtime channel over WebSocket and the session store over the REST API.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/okultahta/tahta-server/internal/proto"
	"github.com/okultahta/tahta-server/internal/realtime"
)

// Client multiplexes topic subscriptions over one WebSocket connection.
type Client struct {
	conn *websocket.Conn
	log  zerolog.Logger

	mu      sync.Mutex
	subs    map[string]*subscription
	pending map[string]chan error
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Dial opens the realtime connection. serverURL is the ws:// or wss:// URL of
// the /ws endpoint.
func Dial(ctx context.Context, serverURL, token string, logger *zerolog.Logger) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	q := u.Query()
	if token != "" {
		q.Set("token", token)
	}
	q.Set("protocol", strconv.Itoa(proto.ProtocolVersion))
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:    conn,
		log:     zerolog.Nop(),
		subs:    make(map[string]*subscription),
		pending: make(map[string]chan error),
		ctx:     runCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	if logger != nil {
		c.log = logger.With().Str("component", "wsclient").Logger()
	}
	go c.readLoop()
	return c, nil
}

// Subscribe joins topic and waits for the server's acknowledgment.
func (c *Client) Subscribe(ctx context.Context, topic string, h realtime.Handler) (realtime.Subscription, error) {
	ack := make(chan error, 1)
	sub := &subscription{client: c, topic: topic, handler: h}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, realtime.ErrClosed
	}
	if _, ok := c.subs[topic]; ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("already subscribed to %s", topic)
	}
	c.subs[topic] = sub
	c.pending[topic] = ack
	c.mu.Unlock()

	if err := c.send(ctx, proto.InboundTypeSubscribe, proto.TopicData{Topic: topic}); err != nil {
		c.drop(topic)
		return nil, err
	}

	select {
	case err := <-ack:
		if err != nil {
			c.drop(topic)
			return nil, err
		}
		return sub, nil
	case <-c.done:
		return nil, realtime.ErrClosed
	case <-ctx.Done():
		c.drop(topic)
		return nil, ctx.Err()
	}
}

// Close shuts the connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.conn.Close(websocket.StatusNormalClosure, "closing")
	c.cancel()
	<-c.done
	return err
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) drop(topic string) {
	c.mu.Lock()
	delete(c.subs, topic)
	delete(c.pending, topic)
	c.mu.Unlock()
}

func (c *Client) send(ctx context.Context, typ string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, c.conn, proto.Inbound{Type: typ, Data: raw}); err != nil {
		return fmt.Errorf("write %s: %w", typ, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer func() {
		c.mu.Lock()
		c.closed = true
		for topic, ack := range c.pending {
			ack <- realtime.ErrClosed
			delete(c.pending, topic)
		}
		c.mu.Unlock()
	}()

	for {
		var frame proto.OutboundFrame
		if err := wsjson.Read(c.ctx, c.conn, &frame); err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && !errors.Is(err, context.Canceled) {
				c.log.Warn().Err(err).Msg("read frame")
			}
			return
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame proto.OutboundFrame) {
	c.mu.Lock()
	sub := c.subs[frame.Topic]
	ack := c.pending[frame.Topic]
	c.mu.Unlock()

	switch frame.Type {
	case proto.OutboundTypeSubscribed:
		if ack != nil {
			c.mu.Lock()
			delete(c.pending, frame.Topic)
			c.mu.Unlock()
			ack <- nil
		}
	case proto.OutboundTypeError:
		if ack != nil && frame.Error != nil {
			c.mu.Lock()
			delete(c.pending, frame.Topic)
			c.mu.Unlock()
			ack <- frame.Error
			return
		}
		if frame.Error != nil {
			c.log.Warn().Str("topic", frame.Topic).Str("code", frame.Error.Code).Msg(frame.Error.Msg)
		}
	case proto.OutboundTypeBroadcast:
		if sub == nil {
			return
		}
		ev, err := realtime.DecodeEvent(frame.Event, frame.Data)
		if err != nil {
			c.log.Warn().Err(err).Str("topic", frame.Topic).Msg("drop inbound event")
			return
		}
		if sub.handler.OnEvent != nil {
			sub.handler.OnEvent(ev)
		}
	case proto.OutboundTypePresence:
		if sub == nil || sub.handler.OnPresence == nil {
			return
		}
		var data proto.PresenceData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			c.log.Warn().Err(err).Msg("decode presence")
			return
		}
		roster := make([]realtime.Presence, 0, len(data.Presences))
		for _, p := range data.Presences {
			roster = append(roster, realtime.Presence{Key: p.Key, UserID: p.UserID, Username: p.Username})
		}
		sub.handler.OnPresence(roster)
	case proto.OutboundTypeChange:
		if sub == nil || sub.handler.OnChange == nil {
			return
		}
		var data proto.ChangeData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			c.log.Warn().Err(err).Msg("decode change")
			return
		}
		sub.handler.OnChange(data.Strokes)
	default:
		c.log.Debug().Str("type", frame.Type).Msg("ignoring frame")
	}
}

type subscription struct {
	client  *Client
	topic   string
	handler realtime.Handler
	once    sync.Once
}

func (s *subscription) Publish(ctx context.Context, ev realtime.Event) error {
	name, payload, err := realtime.EncodeEvent(ev)
	if err != nil {
		return err
	}
	return s.client.send(ctx, proto.InboundTypeBroadcast, proto.BroadcastData{
		Topic:   s.topic,
		Event:   name,
		Payload: payload,
	})
}

func (s *subscription) Track(ctx context.Context, p realtime.Presence) error {
	return s.client.send(ctx, proto.InboundTypeTrack, proto.TrackData{
		Topic:    s.topic,
		Presence: proto.Presence{UserID: p.UserID, Username: p.Username},
	})
}

// Close unsubscribes; the server drops the presence entry with it.
func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		s.client.drop(s.topic)
		select {
		case <-s.client.done:
			return
		default:
		}
		ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
		defer cancel()
		err = s.client.send(ctx, proto.InboundTypeUnsubscribe, proto.TopicData{Topic: s.topic})
	})
	return err
}
