package http

import (
	"encoding/json"

	"github.com/okultahta/tahta-server/internal/core"
	"github.com/okultahta/tahta-server/internal/proto"
	"github.com/okultahta/tahta-server/internal/stroke"
)

func inboundToCommand(client *core.Client, inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeSubscribe, proto.InboundTypeUnsubscribe, proto.InboundTypeUntrack:
		var data proto.TopicData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.Topic == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "topic is required"}, nil
		}
		kind := core.CommandSubscribe
		switch inbound.Type {
		case proto.InboundTypeUnsubscribe:
			kind = core.CommandUnsubscribe
		case proto.InboundTypeUntrack:
			kind = core.CommandUntrack
		}
		return &core.Command{Kind: kind, Topic: data.Topic}, nil, nil
	case proto.InboundTypeBroadcast:
		var data proto.BroadcastData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.Topic == "" || data.Event == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "topic and event are required"}, nil
		}
		return &core.Command{
			Kind:      core.CommandBroadcast,
			Topic:     data.Topic,
			Broadcast: &core.Broadcast{Event: data.Event, Payload: data.Payload},
		}, nil, nil
	case proto.InboundTypeTrack:
		var data proto.TrackData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.Topic == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "topic is required"}, nil
		}
		// The user id always comes from the token.
		username := data.Presence.Username
		if username == "" {
			username = client.Name
		}
		return &core.Command{
			Kind:     core.CommandTrack,
			Topic:    data.Topic,
			Presence: &core.Presence{UserID: client.UserID, Username: username},
		}, nil, nil
	default:
		return nil, &proto.Error{Code: proto.ErrCodeInvalidMessage, Msg: "unknown message type"}, nil
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventSubscribed:
		return proto.Outbound{Type: proto.OutboundTypeSubscribed, Topic: event.Topic}
	case core.EventBroadcast:
		if event.Broadcast == nil {
			return proto.Outbound{Type: proto.OutboundTypeBroadcast, Topic: event.Topic}
		}
		out := proto.Outbound{
			Type:  proto.OutboundTypeBroadcast,
			Event: event.Broadcast.Event,
			Topic: event.Topic,
		}
		if len(event.Broadcast.Payload) > 0 {
			out.Data = event.Broadcast.Payload
		}
		return out
	case core.EventPresenceSync:
		presences := make([]proto.Presence, 0, len(event.Presence))
		for _, p := range event.Presence {
			presences = append(presences, proto.Presence{Key: p.Key, UserID: p.UserID, Username: p.Username})
		}
		return proto.Outbound{
			Type:  proto.OutboundTypePresence,
			Topic: event.Topic,
			Data:  proto.PresenceData{Presences: presences},
		}
	case core.EventChange:
		strokes := event.Strokes
		if strokes == nil {
			strokes = []stroke.Stroke{}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeChange,
			Topic: event.Topic,
			Data:  proto.ChangeData{Strokes: strokes},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Topic: event.Topic, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Topic: event.Topic,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown event " + event.Kind.String()}}
	}
}
