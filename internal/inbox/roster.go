package inbox

import (
	"sort"

	"github.com/ashureev/castle-console/internal/domain"
)

// Merge combines a fresh server fetch with the locally tracked roster.
// Transient fields are carried over by id, clients new to the fetch start
// clean, and clients absent from the fetch are dropped. Clients with a
// local last-message time lead, most recent first; the rest keep server
// order.
func Merge(prev, fetched []domain.Client) []domain.Client {
	known := make(map[domain.ID]*domain.Client, len(prev))
	for i := range prev {
		known[prev[i].ID] = &prev[i]
	}

	var recent, rest []domain.Client
	for _, c := range fetched {
		if old, ok := known[c.ID]; ok {
			c.CarryTransient(old)
		} else {
			c.ResetTransient()
		}
		if c.LastMessageAt != nil {
			recent = append(recent, c)
		} else {
			rest = append(rest, c)
		}
	}

	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].LastMessageAt.After(*recent[j].LastMessageAt)
	})
	return append(recent, rest...)
}

// indexOf returns the position of id in list, or -1.
func indexOf(list []domain.Client, id domain.ID) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

// moveToFront moves list[idx] to position 0 in place, shifting the
// entries before it down by one.
func moveToFront(list []domain.Client, idx int) {
	if idx <= 0 || idx >= len(list) {
		return
	}
	c := list[idx]
	copy(list[1:idx+1], list[:idx])
	list[0] = c
}

// unreadTotal sums the unread counters.
func unreadTotal(list []domain.Client) int {
	n := 0
	for i := range list {
		n += list[i].UnreadCount
	}
	return n
}

func cloneClients(list []domain.Client) []domain.Client {
	out := make([]domain.Client, len(list))
	for i := range list {
		out[i] = list[i]
		if list[i].LastMessageAt != nil {
			t := *list[i].LastMessageAt
			out[i].LastMessageAt = &t
		}
	}
	return out
}
