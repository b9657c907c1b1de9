package inbox

import (
	"time"

	"github.com/ashureev/castle-console/internal/domain"
)

// Snapshot is a consistent copy of the inbox state.
type Snapshot struct {
	Roster       []domain.Client `json:"roster"`
	Statuses     domain.Statuses `json:"statuses"`
	Selected     domain.ID       `json:"selected,omitempty"`
	Pending      domain.ID       `json:"pending,omitempty"`
	Conversation Conversation    `json:"conversation"`
	Toast        *Toast          `json:"toast,omitempty"`
	Flashing     []domain.ID     `json:"flashing"`
	LastRefresh  time.Time       `json:"last_refresh,omitempty"`
	RefreshError string          `json:"refresh_error,omitempty"`
}

// Snapshot copies the whole state. Flashes that have run out are pruned.
func (ib *Inbox) Snapshot() Snapshot {
	now := ib.now()

	ib.mu.Lock()
	defer ib.mu.Unlock()

	flashing := []domain.ID{}
	for id, until := range ib.flashes {
		if now.Before(until) {
			flashing = append(flashing, id)
		} else {
			delete(ib.flashes, id)
		}
	}

	var toast *Toast
	if ib.toast != nil {
		t := *ib.toast
		toast = &t
	}

	return Snapshot{
		Roster:       cloneClients(ib.roster),
		Statuses:     append(domain.Statuses(nil), ib.statuses...),
		Selected:     ib.selected,
		Pending:      ib.pending,
		Conversation: ib.conversationLocked(),
		Toast:        toast,
		Flashing:     flashing,
		LastRefresh:  ib.lastRefresh,
		RefreshError: ib.refreshErr,
	}
}

// Roster returns the filtered, sorted roster view.
func (ib *Inbox) Roster(f Filter, key SortKey) []domain.Client {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	return View(ib.roster, ib.statuses, f, key)
}

// Facets returns the option lists for the current roster.
func (ib *Inbox) Facets() Facets {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	return BuildFacets(ib.roster, append(domain.Statuses(nil), ib.statuses...))
}

// Client returns a copy of the roster entry for id.
func (ib *Inbox) Client(id domain.ID) (domain.Client, bool) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	idx := indexOf(ib.roster, id)
	if idx < 0 {
		return domain.Client{}, false
	}
	return cloneClients(ib.roster[idx : idx+1])[0], true
}

// Selected returns the open client id, or 0.
func (ib *Inbox) Selected() domain.ID {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	return ib.selected
}

// Conversation returns a copy of the open conversation.
func (ib *Inbox) Conversation() Conversation {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	return ib.conversationLocked()
}

func (ib *Inbox) conversationLocked() Conversation {
	conv := ib.conv
	conv.Messages = append([]domain.Message(nil), ib.conv.Messages...)
	return conv
}

// Flashing reports whether the roster row for id is highlighted.
func (ib *Inbox) Flashing(id domain.ID) bool {
	now := ib.now()
	ib.mu.Lock()
	defer ib.mu.Unlock()
	until, ok := ib.flashes[id]
	return ok && now.Before(until)
}

// Statuses returns the status reference set.
func (ib *Inbox) Statuses() domain.Statuses {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	return append(domain.Statuses(nil), ib.statuses...)
}
