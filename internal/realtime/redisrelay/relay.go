// Package redisrelay forwards hub broadcasts between server instances over
// Redis pub/sub.
package redisrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/okultahta/tahta-server/internal/core"
)

// DefaultChannel is the Redis channel carrying relay messages.
const DefaultChannel = "tahta:relay"

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Relay implements core.Relay.
type Relay struct {
	client  *redis.Client
	pubsub  *redis.PubSub
	channel string
	out     chan core.RelayMessage
	log     zerolog.Logger
	done    chan struct{}
}

// NewClient opens a Redis client and checks the connection.
func NewClient(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     20,
		MinIdleConns: 2,
		MaxConnAge:   30 * time.Minute,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}
	return client, nil
}

// New subscribes to channel and starts decoding inbound messages.
func New(ctx context.Context, client *redis.Client, channel string, logger *zerolog.Logger) (*Relay, error) {
	if channel == "" {
		channel = DefaultChannel
	}
	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	r := &Relay{
		client:  client,
		pubsub:  pubsub,
		channel: channel,
		out:     make(chan core.RelayMessage, 256),
		log:     zerolog.Nop(),
		done:    make(chan struct{}),
	}
	if logger != nil {
		r.log = logger.With().Str("component", "redis_relay").Str("channel", channel).Logger()
	}
	go r.loop(pubsub.Channel())
	return r, nil
}

func (r *Relay) loop(in <-chan *redis.Message) {
	defer close(r.done)
	defer close(r.out)
	for msg := range in {
		decoded, err := Decode([]byte(msg.Payload))
		if err != nil {
			r.log.Warn().Err(err).Msg("drop relay message")
			continue
		}
		select {
		case r.out <- decoded:
		default:
			r.log.Warn().Str("topic", decoded.Topic).Msg("relay backlog full, dropping message")
		}
	}
}

// Publish sends msg to every subscribed instance, including this one.
func (r *Relay) Publish(ctx context.Context, msg core.RelayMessage) error {
	payload, err := Encode(msg)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish to %s: %w", r.channel, err)
	}
	return nil
}

// Messages returns decoded inbound messages. Closed after Close.
func (r *Relay) Messages() <-chan core.RelayMessage {
	return r.out
}

// Close unsubscribes and waits for the decode loop to exit.
func (r *Relay) Close() error {
	err := r.pubsub.Close()
	<-r.done
	return err
}

// Encode serializes a relay message.
func Encode(msg core.RelayMessage) ([]byte, error) {
	if msg.Topic == "" {
		return nil, fmt.Errorf("redis: relay message without topic")
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("redis: encode relay message: %w", err)
	}
	return b, nil
}

// Decode parses a relay message.
func Decode(b []byte) (core.RelayMessage, error) {
	var msg core.RelayMessage
	if err := json.Unmarshal(b, &msg); err != nil {
		return core.RelayMessage{}, fmt.Errorf("redis: decode relay message: %w", err)
	}
	switch msg.Kind {
	case core.RelayBroadcast:
		if msg.Broadcast == nil {
			return core.RelayMessage{}, fmt.Errorf("redis: broadcast without body")
		}
	case core.RelayChange:
	default:
		return core.RelayMessage{}, fmt.Errorf("redis: unknown relay kind %q", msg.Kind)
	}
	return msg, nil
}
