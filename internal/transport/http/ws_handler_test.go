package http

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/okultahta/tahta-server/internal/config"
	"github.com/okultahta/tahta-server/internal/core"
	"github.com/okultahta/tahta-server/internal/proto"
	"github.com/okultahta/tahta-server/internal/realtime"
	"github.com/okultahta/tahta-server/internal/stroke"
)

func TestWebSocketRejectsMissingOrInvalidToken(t *testing.T) {
	env := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	for _, query := range []string{"", "?token=garbage"} {
		_, resp, err := websocket.Dial(ctx, env.wsURL(query), nil)
		if err == nil {
			t.Fatalf("dial %q: expected error", query)
		}
		if resp == nil || resp.StatusCode != stdhttp.StatusUnauthorized {
			t.Fatalf("dial %q: expected 401 response, got %+v", query, resp)
		}
	}
}

func TestWebSocketAcceptsBearerHeader(t *testing.T) {
	env := startTestServer(t, nil)
	token := env.register(t, "ayse@okul.edu.tr", "ayse")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, env.wsURL(""), &websocket.DialOptions{
		HTTPHeader: stdhttp.Header{"Authorization": []string{"Bearer " + token}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	subscribe(t, ctx, conn, env.drawingTopic(t, token))
}

func TestWebSocketBroadcastAndPresence(t *testing.T) {
	env := startTestServer(t, nil)
	token := env.register(t, "ayse@okul.edu.tr", "ayse")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := env.dial(t, ctx, token)
	connB := env.dial(t, ctx, token)
	topic := env.drawingTopic(t, token)
	subscribe(t, ctx, connA, topic)
	subscribe(t, ctx, connB, topic)

	// The user id in the presence is taken from the token.
	send(t, ctx, connA, proto.InboundTypeTrack, proto.TrackData{
		Topic:    topic,
		Presence: proto.Presence{UserID: "spoofed", Username: "Ayse"},
	})
	for _, conn := range []*websocket.Conn{connA, connB} {
		for {
			frame := readUntil(t, ctx, conn, proto.OutboundTypePresence)
			var data proto.PresenceData
			if err := json.Unmarshal(frame.Data, &data); err != nil {
				t.Fatalf("decode presence: %v", err)
			}
			if len(data.Presences) == 0 {
				continue
			}
			if len(data.Presences) != 1 || data.Presences[0].Username != "Ayse" || data.Presences[0].UserID == "spoofed" {
				t.Fatalf("unexpected roster: %+v", data.Presences)
			}
			break
		}
	}

	line := stroke.Stroke{Points: []stroke.Point{{X: 1, Y: 2}, {X: 3, Y: 4}}, Color: "#FF0000", Size: 3, Tool: stroke.ToolPen}
	name, payload, err := realtime.EncodeEvent(realtime.Draw(line))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	send(t, ctx, connA, proto.InboundTypeBroadcast, proto.BroadcastData{Topic: topic, Event: name, Payload: payload})

	frame := readUntil(t, ctx, connB, proto.OutboundTypeBroadcast)
	if frame.Event != proto.EventDraw || frame.Topic != topic {
		t.Fatalf("unexpected broadcast frame: %+v", frame)
	}
	ev, err := realtime.DecodeEvent(frame.Event, frame.Data)
	if err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Line == nil || !stroke.Equal([]stroke.Stroke{*ev.Line}, []stroke.Stroke{line}) {
		t.Fatalf("unexpected line: %+v", ev.Line)
	}
}

func TestWebSocketErrors(t *testing.T) {
	env := startTestServer(t, nil)
	token := env.register(t, "ayse@okul.edu.tr", "ayse")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := env.dial(t, ctx, token)

	send(t, ctx, conn, "shout", map[string]string{})
	frame := readUntil(t, ctx, conn, proto.OutboundTypeError)
	if frame.Error == nil || frame.Error.Code != proto.ErrCodeInvalidMessage {
		t.Fatalf("expected invalid_message, got %+v", frame.Error)
	}

	send(t, ctx, conn, proto.InboundTypeBroadcast, proto.BroadcastData{Topic: "drawing:nope", Event: proto.EventClear})
	frame = readUntil(t, ctx, conn, proto.OutboundTypeError)
	if frame.Error == nil || frame.Error.Code != core.ErrCodeNotSubscribed {
		t.Fatalf("expected not_subscribed, got %+v", frame.Error)
	}

	send(t, ctx, conn, proto.InboundTypeSubscribe, proto.TopicData{})
	frame = readUntil(t, ctx, conn, proto.OutboundTypeError)
	if frame.Error == nil || frame.Error.Code != core.ErrCodeBadRequest {
		t.Fatalf("expected bad_request, got %+v", frame.Error)
	}
}

func TestWebSocketSubscribeRequiresOwnership(t *testing.T) {
	env := startTestServer(t, nil)
	owner := env.register(t, "ayse@okul.edu.tr", "ayse")
	other := env.register(t, "mehmet@okul.edu.tr", "mehmet")
	topic := env.drawingTopic(t, owner)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := env.dial(t, ctx, other)

	for _, target := range []string{topic, realtime.Topic("missing"), "lobby"} {
		send(t, ctx, conn, proto.InboundTypeSubscribe, proto.TopicData{Topic: target})
		frame := readUntil(t, ctx, conn, proto.OutboundTypeError)
		if frame.Error == nil || frame.Error.Code != core.ErrCodeForbidden || frame.Topic != target {
			t.Fatalf("subscribe %q: expected forbidden, got %+v", target, frame)
		}
	}

	// Without a subscription the intruder cannot reach the owner's topic.
	send(t, ctx, conn, proto.InboundTypeBroadcast, proto.BroadcastData{Topic: topic, Event: proto.EventClear})
	frame := readUntil(t, ctx, conn, proto.OutboundTypeError)
	if frame.Error == nil || frame.Error.Code == core.ErrCodeForbidden {
		t.Fatalf("expected hub rejection, got %+v", frame.Error)
	}

	subscribe(t, ctx, env.dial(t, ctx, owner), topic)
}

func TestWebSocketRateLimit(t *testing.T) {
	env := startTestServer(t, func(cfg *config.Config) { cfg.RateLimitPerMinute = 2 })
	token := env.register(t, "ayse@okul.edu.tr", "ayse")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := env.dial(t, ctx, token)

	topic := env.drawingTopic(t, token)
	subscribe(t, ctx, conn, topic)
	send(t, ctx, conn, proto.InboundTypeSubscribe, proto.TopicData{Topic: topic})
	frame := readUntil(t, ctx, conn, proto.OutboundTypeError)
	if frame.Error == nil || frame.Error.Code != core.ErrCodeAlreadySubscribed {
		t.Fatalf("expected already_subscribed, got %+v", frame.Error)
	}

	send(t, ctx, conn, proto.InboundTypeSubscribe, proto.TopicData{Topic: topic})
	frame = readUntil(t, ctx, conn, proto.OutboundTypeError)
	if frame.Error == nil || frame.Error.Code != core.ErrCodeRateLimited {
		t.Fatalf("expected rate_limited, got %+v", frame.Error)
	}
}

func TestProtocolVersionMismatch(t *testing.T) {
	env := startTestServer(t, nil)
	token := env.register(t, "ayse@okul.edu.tr", "ayse")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, env.wsURL("?protocol=99&token="+token), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	var outbound proto.OutboundFrame
	if err := wsjson.Read(ctx, conn, &outbound); err != nil {
		t.Fatalf("read outbound: %v", err)
	}
	if outbound.Type != proto.OutboundTypeError || outbound.Error == nil || outbound.Error.Code != proto.ErrCodeUnsupportedVersion {
		t.Fatalf("expected unsupported_version error, got %+v", outbound)
	}
}
