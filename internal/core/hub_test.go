package core

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/okultahta/tahta-server/internal/stroke"
)

func subscribe(t *testing.T, c *Client, topic string) {
	t.Helper()
	c.Commands <- &Command{Kind: CommandSubscribe, Topic: topic}
	ev := mustEvent(t, c.Events, EventSubscribed)
	if ev.Topic != topic {
		t.Fatalf("subscribed to %q, want %q", ev.Topic, topic)
	}
}

func TestHubBroadcastExcludesSender(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	alice := NewClient("a", "u1", "alice")
	bob := NewClient("b", "u1", "alice")
	hub.RegisterClient(alice)
	hub.RegisterClient(bob)

	subscribe(t, alice, "drawing:d1")
	subscribe(t, bob, "drawing:d1")

	payload := json.RawMessage(`{"points":[{"x":1,"y":2}],"color":"#000000","size":3,"tool":"pen"}`)
	alice.Commands <- &Command{
		Kind:      CommandBroadcast,
		Topic:     "drawing:d1",
		Broadcast: &Broadcast{Event: "draw", Payload: payload},
	}

	ev := mustEvent(t, bob.Events, EventBroadcast)
	if ev.From != "a" || ev.Broadcast.Event != "draw" || string(ev.Broadcast.Payload) != string(payload) {
		t.Fatalf("unexpected broadcast: %+v", ev)
	}

	// Alice must not receive her own event.
	time.Sleep(50 * time.Millisecond)
	for {
		select {
		case ev := <-alice.Events:
			if ev.Kind == EventBroadcast {
				t.Fatalf("sender received own broadcast: %+v", ev)
			}
			continue
		default:
		}
		break
	}
}

func TestHubTopicsAreIsolated(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	alice := NewClient("a", "u1", "alice")
	carol := NewClient("c", "u2", "carol")
	hub.RegisterClient(alice)
	hub.RegisterClient(carol)

	subscribe(t, alice, "drawing:d1")
	subscribe(t, carol, "drawing:d2")

	alice.Commands <- &Command{Kind: CommandBroadcast, Topic: "drawing:d1", Broadcast: &Broadcast{Event: "clear"}}

	time.Sleep(50 * time.Millisecond)
	select {
	case ev := <-carol.Events:
		if ev.Kind == EventBroadcast {
			t.Fatalf("other topic received broadcast: %+v", ev)
		}
	default:
	}
}

func TestHubPresenceSync(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	alice := NewClient("a", "u1", "alice")
	bob := NewClient("b", "u1", "alice")
	hub.RegisterClient(alice)
	hub.RegisterClient(bob)

	subscribe(t, alice, "whiteboard-presence")
	alice.Commands <- &Command{Kind: CommandTrack, Topic: "whiteboard-presence", Presence: &Presence{UserID: "u1", Username: "alice"}}
	ev := waitRoster(t, alice.Events, 1)
	if ev.Presence[0].Key != "a" || ev.Presence[0].Username != "alice" {
		t.Fatalf("unexpected roster: %+v", ev.Presence)
	}

	subscribe(t, bob, "whiteboard-presence")
	bob.Commands <- &Command{Kind: CommandTrack, Topic: "whiteboard-presence", Presence: &Presence{UserID: "u1", Username: "alice"}}
	waitRoster(t, alice.Events, 2)

	// Disconnecting drops the presence entry for everyone else.
	hub.UnregisterClient(bob)
	waitRoster(t, alice.Events, 1)
}

func waitRoster(t *testing.T, ch <-chan *Event, size int) *Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ev := mustEvent(t, ch, EventPresenceSync)
		if len(ev.Presence) == size {
			return ev
		}
	}
	t.Fatalf("roster of size %d not received", size)
	return nil
}

func TestHubNotifyChangeReachesAllSubscribers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	alice := NewClient("a", "u1", "alice")
	hub.RegisterClient(alice)
	subscribe(t, alice, "drawing:d1")

	strokes := []stroke.Stroke{{Points: []stroke.Point{{X: 1, Y: 1}}, Color: "#000000", Size: 3, Tool: stroke.ToolPen}}
	hub.NotifyChange("drawing:d1", strokes)

	ev := mustEvent(t, alice.Events, EventChange)
	if !stroke.Equal(ev.Strokes, strokes) {
		t.Fatalf("unexpected strokes: %+v", ev.Strokes)
	}
}

func TestHubDoubleSubscribeProducesError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	alice := NewClient("a", "u1", "alice")
	hub.RegisterClient(alice)

	alice.Commands <- &Command{Kind: CommandSubscribe, Topic: "drawing:d1"}
	alice.Commands <- &Command{Kind: CommandSubscribe, Topic: "drawing:d1"}

	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeAlreadySubscribed {
		t.Fatalf("expected already_subscribed error, got %+v", ev)
	}
}

func TestHubBroadcastWithoutSubscribeProducesError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	alice := NewClient("a", "u1", "alice")
	hub.RegisterClient(alice)

	alice.Commands <- &Command{Kind: CommandBroadcast, Topic: "drawing:d1", Broadcast: &Broadcast{Event: "draw"}}

	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeNotSubscribed {
		t.Fatalf("expected not_subscribed error, got %+v", ev)
	}
}

func TestHubUnsubscribeUnknownTopicError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	alice := NewClient("a", "u1", "alice")
	hub.RegisterClient(alice)

	alice.Commands <- &Command{Kind: CommandUnsubscribe, Topic: "ghost"}

	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeTopicNotFound {
		t.Fatalf("expected topic_not_found error, got %+v", ev)
	}
}

func TestHubUnregisterClosesEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	alice := NewClient("a", "u1", "alice")
	hub.RegisterClient(alice)
	hub.UnregisterClient(alice)

	select {
	case <-alice.Done():
	case <-time.After(time.Second):
		t.Fatal("client not released")
	}
	if _, ok := <-alice.Events; ok {
		t.Fatal("expected events channel to be closed")
	}
}

type memRelay struct {
	mu        sync.Mutex
	published []RelayMessage
	in        chan RelayMessage
}

func (r *memRelay) Publish(_ context.Context, msg RelayMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, msg)
	return nil
}

func (r *memRelay) Messages() <-chan RelayMessage { return r.in }

func (r *memRelay) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.published)
}

func TestHubRelay(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	relay := &memRelay{in: make(chan RelayMessage, 4)}
	hub := NewHub(WithRelay(relay), WithInstanceID("self"))
	go hub.Run(ctx)

	alice := NewClient("a", "u1", "alice")
	bob := NewClient("b", "u1", "alice")
	hub.RegisterClient(alice)
	hub.RegisterClient(bob)
	subscribe(t, alice, "drawing:d1")
	subscribe(t, bob, "drawing:d1")

	alice.Commands <- &Command{Kind: CommandBroadcast, Topic: "drawing:d1", Broadcast: &Broadcast{Event: "clear"}}
	mustEvent(t, bob.Events, EventBroadcast)

	deadline := time.Now().Add(time.Second)
	for relay.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if relay.count() != 1 {
		t.Fatalf("expected one relayed message, got %d", relay.count())
	}

	// Own echo is ignored, foreign messages reach every subscriber.
	relay.in <- RelayMessage{Origin: "self", Topic: "drawing:d1", Kind: RelayBroadcast, Broadcast: &Broadcast{Event: "echo"}}
	relay.in <- RelayMessage{Origin: "other", Topic: "drawing:d1", Kind: RelayBroadcast, Broadcast: &Broadcast{Event: "join"}}

	ev := mustEvent(t, alice.Events, EventBroadcast)
	if ev.Broadcast.Event != "join" {
		t.Fatalf("expected relayed join, got %+v", ev.Broadcast)
	}
}
