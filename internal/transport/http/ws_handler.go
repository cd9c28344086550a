package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/okultahta/tahta-server/internal/auth"
	"github.com/okultahta/tahta-server/internal/config"
	"github.com/okultahta/tahta-server/internal/core"
	"github.com/okultahta/tahta-server/internal/proto"
	"github.com/okultahta/tahta-server/internal/realtime"
	"github.com/okultahta/tahta-server/internal/store"
)

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub      *core.Hub
	auth     *auth.Service
	drawings store.DrawingStore
	cfg      *config.Config
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. Subscriptions are limited to
// the topics of drawings the caller owns.
func NewWSHandler(hub *core.Hub, authService *auth.Service, drawings store.DrawingStore, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, auth: authService, drawings: drawings, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = bearerToken(r.Header.Get("Authorization"))
	}
	if token == "" {
		stdhttp.Error(w, "missing token", stdhttp.StatusUnauthorized)
		return
	}
	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws token rejected")
		stdhttp.Error(w, "invalid token", stdhttp.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if v := r.URL.Query().Get("protocol"); v != "" && v != strconv.Itoa(proto.ProtocolVersion) {
		_ = wsjson.Write(ctx, conn, proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: proto.ErrCodeUnsupportedVersion, Msg: "unsupported protocol version " + v},
		})
		conn.Close(websocket.StatusPolicyViolation, "unsupported protocol version")
		return
	}

	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	client := core.NewClient(uuid.NewString(), claims.UserID, claims.Username)
	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)

	limiter := newRateLimiter(h.cfg.RateLimitPerMinute)
	stopLimiter := make(chan struct{})
	limiter.startReset(stopLimiter)
	defer close(stopLimiter)

	log := h.log.With().Str("client_id", client.ID).Str("user_id", client.UserID).Logger()
	log.Debug().Msg("ws connected")

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, limiter, &log)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client, &log)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, limiter *rateLimiter, log *zerolog.Logger) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			log.Debug().Err(err).Msg("read ws inbound")
			return err
		}

		if !limiter.allow() {
			if err := writeError(ctx, conn, "", core.ErrCodeRateLimited, "rate limit exceeded"); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr, err := inboundToCommand(client, inbound)
		if err != nil {
			log.Debug().Err(err).Str("type", inbound.Type).Msg("failed to map inbound")
			if err := writeError(ctx, conn, "", core.ErrCodeBadRequest, "malformed data"); err != nil {
				return err
			}
			continue
		}
		if protoErr != nil {
			if err := wsjson.Write(ctx, conn, proto.Outbound{Type: proto.OutboundTypeError, Error: protoErr}); err != nil {
				return err
			}
			continue
		}

		if cmd.Kind == core.CommandSubscribe && cmd.Topic != "" {
			if code, msg := h.authorize(ctx, client, cmd.Topic); code != "" {
				log.Debug().Str("topic", cmd.Topic).Str("code", code).Msg("subscribe refused")
				if err := writeError(ctx, conn, cmd.Topic, code, msg); err != nil {
					return err
				}
				continue
			}
		}

		select {
		case client.Commands <- cmd:
		case <-client.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, log *zerolog.Logger) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				log.Debug().Err(err).Str("event", event.Kind.String()).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// authorize checks that the client owns the drawing behind topic.
// Broadcast and track need a subscription, so gating subscribe is enough.
func (h *WSHandler) authorize(ctx context.Context, client *core.Client, topic string) (code, msg string) {
	id, ok := realtime.SessionID(topic)
	if !ok {
		return core.ErrCodeForbidden, "unknown topic"
	}
	d, err := h.drawings.GetDrawing(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return core.ErrCodeForbidden, "drawing not accessible"
	case err != nil:
		h.log.Error().Err(err).Str("drawing_id", id).Msg("lookup drawing for subscribe")
		return core.ErrCodeBadRequest, "drawing lookup failed"
	case d.UserID != client.UserID:
		return core.ErrCodeForbidden, "drawing not accessible"
	}
	return "", ""
}

func writeError(ctx context.Context, conn *websocket.Conn, topic, code, msg string) error {
	return wsjson.Write(ctx, conn, proto.Outbound{
		Type:  proto.OutboundTypeError,
		Topic: topic,
		Error: &proto.Error{Code: code, Msg: msg},
	})
}
