package domain

import (
	"strconv"
	"strings"
	"time"
)

// Direction tells whether a message came from or went to the client.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// SenderRole drives how a message is rendered.
type SenderRole string

const (
	RoleSystem SenderRole = "system"
	RoleMe     SenderRole = "me"
	RoleClient SenderRole = "client"
)

// Message is a single SMS-like message belonging to one client.
type Message struct {
	ID        ID        `json:"id,omitempty"`
	ClientID  ID        `json:"client_id"`
	Direction Direction `json:"direction,omitempty"`
	Sender    string    `json:"sender,omitempty"`
	Text      string    `json:"text"`
	Timestamp string    `json:"timestamp,omitempty"`
	ClientRef string    `json:"client_ref,omitempty"`
}

// IsInbound reports whether the client sent the message.
func (m *Message) IsInbound() bool {
	return m.Direction == DirectionInbound || strings.EqualFold(m.Sender, "client")
}

// Role classifies the message for display.
func (m *Message) Role() SenderRole {
	switch strings.ToLower(m.Sender) {
	case "system", "automated", "auto":
		return RoleSystem
	}
	if m.IsInbound() {
		return RoleClient
	}
	return RoleMe
}

// Time returns the parsed timestamp, or now when it is missing or
// unparseable.
func (m *Message) Time(now time.Time) time.Time {
	if t, ok := ParseTimestamp(m.Timestamp); ok {
		return t
	}
	return now
}

// SameAs reports whether two messages are known to be the same record.
// Messages with neither a server id nor a client ref are never equal.
func (m *Message) SameAs(other *Message) bool {
	if m.ID != 0 && m.ID == other.ID {
		return true
	}
	return m.ClientRef != "" && m.ClientRef == other.ClientRef
}

// Layouts without a zone are wall-clock times in the local zone, except
// bare dates which stay UTC.
var timestampLayouts = []struct {
	layout string
	local  bool
}{
	{time.RFC3339Nano, false},
	{time.RFC3339, false},
	{"2006-01-02T15:04:05", true},
	{"2006-01-02 15:04:05", true},
	{"2006-01-02 15:04:05Z07:00", false},
	{"2006-01-02", false},
}

// ParseTimestamp parses the timestamp formats the upstream emits,
// including unix seconds and milliseconds.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range timestampLayouts {
		loc := time.UTC
		if l.local {
			loc = time.Local
		}
		if t, err := time.ParseInLocation(l.layout, s, loc); err == nil {
			return t, true
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		if n > 1e12 {
			return time.UnixMilli(n), true
		}
		return time.Unix(n, 0), true
	}
	return time.Time{}, false
}
