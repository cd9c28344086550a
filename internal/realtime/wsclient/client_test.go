package wsclient

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okultahta/tahta-server/internal/auth"
	"github.com/okultahta/tahta-server/internal/config"
	"github.com/okultahta/tahta-server/internal/core"
	"github.com/okultahta/tahta-server/internal/realtime"
	"github.com/okultahta/tahta-server/internal/store/sqlite"
	"github.com/okultahta/tahta-server/internal/stroke"
	transporthttp "github.com/okultahta/tahta-server/internal/transport/http"
	"github.com/okultahta/tahta-server/internal/whiteboard"
)

type server struct {
	httpURL string
	wsURL   string
	token   string
}

func startServer(t *testing.T) server {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cfg.Canvas = config.CanvasConfig{Width: 32, Height: 32}
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret: []byte("test"), Issuer: "test", Audience: "test", TTL: time.Hour,
	})

	logger := zerolog.Nop()
	hub := core.NewHub(core.WithLogger(&logger))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := transporthttp.NewServer(hub, authService, st, &cfg, &logger)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)

	token, err := authService.Register(context.Background(), "ayse@okul.edu.tr", "ayse", "password123")
	require.NoError(t, err)

	return server{
		httpURL: ts.URL,
		wsURL:   strings.Replace(ts.URL, "http", "ws", 1) + "/ws",
		token:   token,
	}
}

func ctxTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func dial(t *testing.T, s server) *Client {
	t.Helper()
	c, err := Dial(ctxTimeout(t), s.wsURL, s.token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestStoreAgainstServer(t *testing.T) {
	s := startServer(t)
	ctx := ctxTimeout(t)
	st := NewStore(s.httpURL, s.token)

	_, err := st.Get(ctx, "ignored")
	assert.ErrorIs(t, err, whiteboard.ErrSessionNotFound)

	sess, err := st.Create(ctx, "ignored")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Empty(t, sess.Strokes)

	line := stroke.Stroke{Points: []stroke.Point{{X: 1, Y: 1}, {X: 2, Y: 2}}, Color: "#000000", Size: 2, Tool: stroke.ToolPen}
	require.NoError(t, st.Replace(ctx, sess.ID, []stroke.Stroke{line}))

	got, err := st.Get(ctx, "ignored")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.True(t, stroke.Equal([]stroke.Stroke{line}, got.Strokes))

	me, err := st.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ayse", me.Username)
	assert.Equal(t, got.UserID, me.ID)

	bad := NewStore(s.httpURL, "not-a-token")
	_, err = bad.Get(ctx, "ignored")
	require.Error(t, err)
	assert.NotErrorIs(t, err, whiteboard.ErrSessionNotFound)
}

func TestClientPublishAndPresence(t *testing.T) {
	s := startServer(t)
	a := dial(t, s)
	b := dial(t, s)
	sess, err := NewStore(s.httpURL, s.token).Create(ctxTimeout(t), "")
	require.NoError(t, err)
	topic := realtime.Topic(sess.ID)

	events := make(chan realtime.Event, 4)
	rosters := make(chan []realtime.Presence, 8)

	_, err = a.Subscribe(ctxTimeout(t), realtime.Topic("someone-else"), realtime.Handler{})
	require.Error(t, err)

	subA, err := a.Subscribe(ctxTimeout(t), topic, realtime.Handler{})
	require.NoError(t, err)
	_, err = b.Subscribe(ctxTimeout(t), topic, realtime.Handler{
		OnEvent:    func(ev realtime.Event) { events <- ev },
		OnPresence: func(p []realtime.Presence) { rosters <- p },
	})
	require.NoError(t, err)

	_, err = a.Subscribe(ctxTimeout(t), topic, realtime.Handler{})
	require.Error(t, err)

	require.NoError(t, subA.Track(ctxTimeout(t), realtime.Presence{Username: "ayse"}))
	require.Eventually(t, func() bool {
		select {
		case r := <-rosters:
			return len(r) == 1 && r[0].Username == "ayse"
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	line := stroke.Stroke{Points: []stroke.Point{{X: 3, Y: 4}}, Color: "#FF0000", Size: 5, Tool: stroke.ToolBrush}
	require.NoError(t, subA.Publish(ctxTimeout(t), realtime.Draw(line)))

	select {
	case ev := <-events:
		assert.Equal(t, realtime.Draw(line).Name, ev.Name)
		require.NotNil(t, ev.Line)
		assert.True(t, stroke.Equal([]stroke.Stroke{line}, []stroke.Stroke{*ev.Line}))
	case <-time.After(2 * time.Second):
		t.Fatal("no draw event received")
	}

	require.NoError(t, subA.Close())
	require.Eventually(t, func() bool {
		select {
		case r := <-rosters:
			return len(r) == 0
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClosedClientRejectsSubscribe(t *testing.T) {
	s := startServer(t)
	c := dial(t, s)
	require.NoError(t, c.Close())

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("done not closed")
	}
	_, err := c.Subscribe(ctxTimeout(t), "drawing:x", realtime.Handler{})
	assert.ErrorIs(t, err, realtime.ErrClosed)
}

func TestRemoteControllersConverge(t *testing.T) {
	s := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	newCtrl := func() (*whiteboard.Controller, chan error) {
		c := whiteboard.New(whiteboard.Config{
			Username:       "ayse",
			Store:          NewStore(s.httpURL, s.token),
			Channel:        dial(t, s),
			NoticeDuration: time.Minute,
		})
		done := make(chan error, 1)
		go func() { done <- c.Run(ctx) }()
		_, err := c.Snapshot(ctxTimeout(t))
		require.NoError(t, err)
		return c, done
	}
	a, doneA := newCtrl()
	b, doneB := newCtrl()

	a.PointerDown(stroke.Point{X: 1, Y: 1})
	a.PointerMove(stroke.Point{X: 6, Y: 6})
	a.PointerUp()
	require.NoError(t, a.Wait(ctxTimeout(t)))

	require.Eventually(t, func() bool {
		st, err := b.Snapshot(context.Background())
		return err == nil && len(st.Strokes) == 1
	}, 3*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		st, err := b.Snapshot(context.Background())
		return err == nil && st.MultiUser
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	<-doneA
	<-doneB
}
