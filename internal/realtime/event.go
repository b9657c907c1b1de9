// Package realtime keeps a websocket connection to the upstream push
// channel and turns its frames into message events.
package realtime

import (
	"bytes"
	"encoding/json"

	"github.com/ashureev/castle-console/internal/domain"
)

// messageEvents are the event names that carry a newly created message.
var messageEvents = map[string]bool{
	"newMessage":  true,
	"message":     true,
	"message:new": true,
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Decode extracts a message from one frame. It accepts
// {"event": name, "data": msg}, the array form [name, msg], and a bare
// message object. Unknown events and messages without a client id are
// reported as not ok.
func Decode(frame []byte) (domain.Message, bool) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return domain.Message{}, false
	}

	var name string
	var data json.RawMessage

	switch frame[0] {
	case '[':
		var parts []json.RawMessage
		if err := json.Unmarshal(frame, &parts); err != nil || len(parts) < 2 {
			return domain.Message{}, false
		}
		if err := json.Unmarshal(parts[0], &name); err != nil {
			return domain.Message{}, false
		}
		data = parts[1]
	case '{':
		var env envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			return domain.Message{}, false
		}
		name, data = env.Event, env.Data
		if name == "" {
			data = frame
		}
	default:
		return domain.Message{}, false
	}

	if name != "" && !messageEvents[name] {
		return domain.Message{}, false
	}

	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.Message{}, false
	}
	if msg.ClientID == 0 {
		return domain.Message{}, false
	}
	return msg, true
}
