package inbox

import (
	"time"

	"github.com/ashureev/castle-console/internal/domain"
)

// Conversation is the open message history.
type Conversation struct {
	ClientID domain.ID        `json:"client_id"`
	Messages []domain.Message `json:"messages"`
	Loading  bool             `json:"loading"`
	Error    string           `json:"error,omitempty"`
}

// appendMessage appends m unless a message with the same server id or
// client ref is already present. Messages carrying neither are always
// appended.
func appendMessage(msgs []domain.Message, m domain.Message) ([]domain.Message, bool) {
	for i := range msgs {
		if msgs[i].SameAs(&m) {
			return msgs, false
		}
	}
	return append(msgs, m), true
}

// RenderedMessage is a message prepared for display.
type RenderedMessage struct {
	domain.Message
	Role domain.SenderRole `json:"role"`
	At   time.Time         `json:"at"`
	// Clock is the local time of day, e.g. "3:04 PM".
	Clock string `json:"clock"`
}

// DayGroup is a run of messages sharing a local calendar day.
type DayGroup struct {
	Day      time.Time         `json:"day"`
	Label    string            `json:"label"`
	Messages []RenderedMessage `json:"messages"`
}

// GroupByDay splits msgs into calendar-day groups in loc, keeping
// delivery order. Unparseable timestamps count as now.
func GroupByDay(msgs []domain.Message, now time.Time, loc *time.Location) []DayGroup {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)

	groups := []DayGroup{}
	for _, m := range msgs {
		at := m.Time(now).In(loc)
		day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, loc)
		if n := len(groups); n == 0 || !groups[n-1].Day.Equal(day) {
			groups = append(groups, DayGroup{Day: day, Label: DayLabel(day, now)})
		}
		g := &groups[len(groups)-1]
		g.Messages = append(g.Messages, RenderedMessage{
			Message: m,
			Role:    m.Role(),
			At:      at,
			Clock:   at.Format("3:04 PM"),
		})
	}
	return groups
}

// DayLabel names a day relative to now.
func DayLabel(day, now time.Time) string {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	case day.Year() == today.Year():
		return day.Format("Mon, Jan 2")
	default:
		return day.Format("Mon, Jan 2, 2006")
	}
}
