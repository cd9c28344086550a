package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/okultahta/tahta-server/internal/auth"
	"github.com/okultahta/tahta-server/internal/config"
	"github.com/okultahta/tahta-server/internal/core"
	"github.com/okultahta/tahta-server/internal/proto"
	"github.com/okultahta/tahta-server/internal/realtime"
	"github.com/okultahta/tahta-server/internal/store"
	"github.com/okultahta/tahta-server/internal/store/sqlite"
)

type testEnv struct {
	ts    *httptest.Server
	hub   *core.Hub
	auth  *auth.Service
	store store.Store
}

// startTestServer runs a hub, an in-memory SQLite store and the HTTP server.
func startTestServer(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second
	cfg.JWT.Secret = "test-secret"
	cfg.Canvas = config.CanvasConfig{Width: 64, Height: 48}
	if mutate != nil {
		mutate(&cfg)
	}

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWT.Secret),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	})

	disabledLogger := zerolog.Nop()
	hub := core.NewHub(core.WithLogger(&disabledLogger))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	server := NewServer(hub, authService, st, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub, auth: authService, store: st}
}

func (e *testEnv) register(t *testing.T, email, username string) string {
	t.Helper()
	token, err := e.auth.Register(context.Background(), email, username, "password123")
	if err != nil {
		t.Fatalf("failed to register %s: %v", email, err)
	}
	return token
}

// do sends a JSON request and returns the status and raw body.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := stdhttp.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, raw
}

// drawingTopic creates the caller's drawing and returns its realtime topic.
func (e *testEnv) drawingTopic(t *testing.T, token string) string {
	t.Helper()
	status, raw := e.do(t, stdhttp.MethodPost, "/api/drawing", token, nil)
	if status != stdhttp.StatusCreated && status != stdhttp.StatusOK {
		t.Fatalf("create drawing: %d %s", status, raw)
	}
	return realtime.Topic(decodeDrawing(t, raw).ID)
}

func (e *testEnv) wsURL(query string) string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws" + query
}

func (e *testEnv) dial(t *testing.T, ctx context.Context, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, e.wsURL("?token="+token), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("encode %s: %v", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: raw}); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
}

// readUntil skips frames until one of type typ arrives.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string) proto.OutboundFrame {
	t.Helper()
	for {
		var frame proto.OutboundFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if frame.Type == typ {
			return frame
		}
	}
}

func subscribe(t *testing.T, ctx context.Context, conn *websocket.Conn, topic string) {
	t.Helper()
	send(t, ctx, conn, proto.InboundTypeSubscribe, proto.TopicData{Topic: topic})
	frame := readUntil(t, ctx, conn, proto.OutboundTypeSubscribed)
	if frame.Topic != topic {
		t.Fatalf("subscribed to %q, want %q", frame.Topic, topic)
	}
}
