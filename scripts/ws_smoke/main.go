package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/okultahta/tahta-server/internal/proto"
	"github.com/okultahta/tahta-server/internal/realtime"
	"github.com/okultahta/tahta-server/internal/stroke"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "JWT issued by /api/login")
	session := flag.String("session", "", "id of a drawing owned by the token's user")
	user := flag.String("user", "tester", "username to track with")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *token == "" {
		return errors.New("-token is required")
	}
	if *session == "" {
		return errors.New("-session is required")
	}
	u, err := url.Parse(*addr)
	if err != nil {
		return fmt.Errorf("parse addr: %w", err)
	}
	q := u.Query()
	q.Set("token", *token)
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	topic := realtime.Topic(*session)
	mustSend := func(typ string, data any) error {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", typ, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: raw}); err != nil {
			return fmt.Errorf("send %s: %w", typ, err)
		}
		return nil
	}

	if err := mustSend(proto.InboundTypeSubscribe, proto.TopicData{Topic: topic}); err != nil {
		return err
	}
	if err := mustSend(proto.InboundTypeTrack, proto.TrackData{Topic: topic, Presence: proto.Presence{Username: *user}}); err != nil {
		return err
	}

	line := stroke.Stroke{
		Points: []stroke.Point{{X: 10, Y: 10}, {X: 60, Y: 40}},
		Color:  "#000000",
		Size:   2,
		Tool:   stroke.ToolPen,
	}
	name, payload, err := realtime.EncodeEvent(realtime.Draw(line))
	if err != nil {
		return err
	}
	if err := mustSend(proto.InboundTypeBroadcast, proto.BroadcastData{Topic: topic, Event: name, Payload: payload}); err != nil {
		return err
	}

	for {
		var frame proto.OutboundFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		fmt.Printf("Received outbound: type=%s topic=%s", frame.Type, frame.Topic)
		if frame.Event != "" {
			fmt.Printf(" event=%s", frame.Event)
		}
		fmt.Println()

		switch frame.Type {
		case proto.OutboundTypeError:
			if frame.Error != nil {
				return frame.Error
			}
		case proto.OutboundTypePresence:
			var data proto.PresenceData
			if err := json.Unmarshal(frame.Data, &data); err == nil {
				for _, p := range data.Presences {
					fmt.Printf("  present: %s (%s)\n", p.Username, p.UserID)
				}
			}
		case proto.OutboundTypeBroadcast, proto.OutboundTypeChange:
			fmt.Printf("  data: %s\n", string(frame.Data))
		}
	}
}
