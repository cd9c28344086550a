package http

import (
	"encoding/json"
	"testing"

	"github.com/okultahta/tahta-server/internal/core"
	"github.com/okultahta/tahta-server/internal/proto"
)

func TestInboundToCommand(t *testing.T) {
	client := core.NewClient("c1", "u1", "ayse")

	raw, _ := json.Marshal(proto.BroadcastData{Topic: "drawing:1", Event: proto.EventClear})
	cmd, perr, err := inboundToCommand(client, proto.Inbound{Type: proto.InboundTypeBroadcast, Data: raw})
	if err != nil || perr != nil {
		t.Fatalf("unexpected error: %v %v", err, perr)
	}
	if cmd.Kind != core.CommandBroadcast || cmd.Broadcast.Event != proto.EventClear {
		t.Fatalf("unexpected command: %+v", cmd)
	}

	raw, _ = json.Marshal(proto.TopicData{Topic: "drawing:1"})
	cmd, _, _ = inboundToCommand(client, proto.Inbound{Type: proto.InboundTypeUntrack, Data: raw})
	if cmd.Kind != core.CommandUntrack {
		t.Fatalf("expected untrack, got %v", cmd.Kind)
	}

	raw, _ = json.Marshal(proto.TrackData{Topic: "drawing:1"})
	cmd, _, _ = inboundToCommand(client, proto.Inbound{Type: proto.InboundTypeTrack, Data: raw})
	if cmd.Presence.UserID != "u1" || cmd.Presence.Username != "ayse" {
		t.Fatalf("track must default to the connection identity: %+v", cmd.Presence)
	}

	if _, _, err := inboundToCommand(client, proto.Inbound{Type: proto.InboundTypeSubscribe, Data: json.RawMessage(`[`)}); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestOutboundFromEvent(t *testing.T) {
	out := outboundFromEvent(&core.Event{Kind: core.EventChange, Topic: "drawing:1"})
	data, ok := out.Data.(proto.ChangeData)
	if out.Type != proto.OutboundTypeChange || !ok || data.Strokes == nil {
		t.Fatalf("change must carry a non-nil stroke list: %+v", out)
	}

	out = outboundFromEvent(&core.Event{
		Kind:  core.EventError,
		Topic: "drawing:1",
		Error: &core.CoreError{Code: core.ErrCodeNotSubscribed, Message: "not subscribed to topic"},
	})
	if out.Type != proto.OutboundTypeError || out.Error.Code != core.ErrCodeNotSubscribed || out.Topic != "drawing:1" {
		t.Fatalf("unexpected error frame: %+v", out)
	}
}
