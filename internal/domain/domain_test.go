package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestIDAcceptsNumbersAndStrings(t *testing.T) {
	var got struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
		D ID `json:"d"`
	}
	if err := json.Unmarshal([]byte(`{"a":42,"b":"7","c":null,"d":"3.0"}`), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.A != 42 || got.B != 7 || got.C != 0 || got.D != 3 {
		t.Errorf("unexpected ids: %+v", got)
	}
}

func TestFlagRoundTrip(t *testing.T) {
	var tpl Template
	if err := json.Unmarshal([]byte(`{"active":"1","delay_hours":"24"}`), &tpl); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !tpl.Active || tpl.DelayHours != 24 {
		t.Fatalf("expected active step with 24h delay, got %+v", tpl)
	}

	data, err := json.Marshal(Flag(false))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != "0" {
		t.Errorf("expected 0, got %s", data)
	}
}

func TestPhoneHelpers(t *testing.T) {
	if got := CanonicalPhone("+1 (602) 555-1234"); got != "6025551234" {
		t.Errorf("CanonicalPhone = %q", got)
	}
	if got := FormatPhoneUS("16025551234"); got != "602-555-1234" {
		t.Errorf("FormatPhoneUS = %q", got)
	}
	if got := FormatPhoneUS("555-12"); got != "555-12" {
		t.Errorf("expected short numbers unchanged, got %q", got)
	}
}

func TestMessageClassification(t *testing.T) {
	in := Message{Direction: DirectionInbound}
	if !in.IsInbound() || in.Role() != RoleClient {
		t.Errorf("inbound direction should classify as client")
	}

	bySender := Message{Sender: "client"}
	if !bySender.IsInbound() {
		t.Errorf("sender=client should be inbound")
	}

	sys := Message{Sender: "system", Direction: DirectionOutbound}
	if sys.Role() != RoleSystem {
		t.Errorf("expected system role, got %s", sys.Role())
	}

	me := Message{Sender: "me"}
	if me.IsInbound() || me.Role() != RoleMe {
		t.Errorf("expected outbound me role")
	}
}

func TestMessageTimeFallsBackToNow(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := Message{Timestamp: "not a date"}
	if got := m.Time(now); !got.Equal(now) {
		t.Errorf("expected fallback to now, got %v", got)
	}

	m.Timestamp = "2025-12-31 23:59:00"
	if got := m.Time(now); got.Year() != 2025 {
		t.Errorf("expected parsed sqlite timestamp, got %v", got)
	}

	m.Timestamp = "1767312000000"
	if got := m.Time(now); got.Year() != 2026 {
		t.Errorf("expected unix millis to parse, got %v", got)
	}
}

func TestParseTimestampZones(t *testing.T) {
	zone := time.FixedZone("MST", -7*60*60)
	orig := time.Local
	time.Local = zone
	t.Cleanup(func() { time.Local = orig })

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-03-05T20:30:00", time.Date(2024, 3, 5, 20, 30, 0, 0, zone)},
		{"2024-03-05 20:30:00", time.Date(2024, 3, 5, 20, 30, 0, 0, zone)},
		{"2024-03-05T20:30:00Z", time.Date(2024, 3, 5, 20, 30, 0, 0, time.UTC)},
		{"2024-03-05 20:30:00+02:00", time.Date(2024, 3, 5, 18, 30, 0, 0, time.UTC)},
		{"2024-03-05", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, ok := ParseTimestamp(tt.in)
		if !ok {
			t.Errorf("ParseTimestamp(%q) failed", tt.in)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, ok := ParseTimestamp("  "); ok {
		t.Error("expected blank timestamp to fail")
	}
}

func TestMessageSameAs(t *testing.T) {
	a := Message{ID: 5}
	b := Message{ID: 5, Text: "different copy"}
	if !a.SameAs(&b) {
		t.Errorf("expected equal server ids to match")
	}

	c := Message{ClientRef: "ref-1"}
	d := Message{ID: 9, ClientRef: "ref-1"}
	if !c.SameAs(&d) {
		t.Errorf("expected equal client refs to match")
	}

	if (&Message{}).SameAs(&Message{}) {
		t.Errorf("messages without ids must never match")
	}
}

func TestSessionExpiry(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now.Add(-time.Minute)}
	if !s.Expired(now) || s.TTL(now) != 0 {
		t.Errorf("expected expired session")
	}
	if (&Session{}).Expired(now) {
		t.Errorf("sessions without expiry never expire")
	}
	if !(&Session{Role: RoleAdmin}).IsAdmin() {
		t.Errorf("admin role should be admin")
	}
}
