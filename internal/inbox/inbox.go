// Package inbox holds the console's inbox state: the client roster with
// its transient unread bookkeeping, the open conversation, and the
// reconciliation of pushed message events into both.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/castle-console/internal/backend"
	"github.com/ashureev/castle-console/internal/domain"
	"github.com/ashureev/castle-console/internal/metrics"
	"github.com/google/uuid"
)

const (
	defaultFlashDuration = 1400 * time.Millisecond
	subscriberBuffer     = 64
)

// ErrNotInRoster is returned by Select when the id is not loaded yet.
// The selection is remembered and applied by a later refresh.
var ErrNotInRoster = errors.New("client not in roster")

// ErrReset is returned by Refresh when Reset ran while the fetch was in
// flight. The fetched roster is dropped.
var ErrReset = errors.New("inbox reset during refresh")

// Upstream is the part of the backend API the inbox consumes.
type Upstream interface {
	ListClients(ctx context.Context) ([]domain.Client, error)
	ListStatuses(ctx context.Context) (domain.Statuses, error)
	Conversation(ctx context.Context, clientID domain.ID) ([]domain.Message, error)
	SendMessage(ctx context.Context, req backend.SendRequest) error
}

// ChangeKind names what changed.
type ChangeKind string

const (
	ChangeRoster       ChangeKind = "roster"
	ChangeConversation ChangeKind = "conversation"
	ChangeToast        ChangeKind = "toast"
	ChangeFlash        ChangeKind = "flash"
	ChangeBeep         ChangeKind = "beep"
	ChangeLogout       ChangeKind = "logout"
)

// Toast is a transient banner for an inbound message on a closed
// conversation.
type Toast struct {
	ClientID domain.ID `json:"client_id"`
	Name     string    `json:"name"`
	Text     string    `json:"text"`
	At       time.Time `json:"at"`
}

// Change is a notification sent to subscribers. Subscribers re-read the
// state they render; a Change only says what to re-read or which cue to
// play.
type Change struct {
	Kind     ChangeKind    `json:"type"`
	ClientID domain.ID     `json:"client_id,omitempty"`
	Toast    *Toast        `json:"toast,omitempty"`
	Duration time.Duration `json:"-"`
}

// Options configures an Inbox.
type Options struct {
	FlashDuration time.Duration
	Metrics       *metrics.Metrics
	Now           func() time.Time
	NewRef        func() string
}

// Inbox is the shared inbox engine. All state sits behind one mutex;
// upstream calls run without it and their results are applied under it.
type Inbox struct {
	api     Upstream
	metrics *metrics.Metrics
	flash   time.Duration
	now     func() time.Time
	newRef  func() string

	mu          sync.Mutex
	roster      []domain.Client
	statuses    domain.Statuses
	selected    domain.ID
	pending     domain.ID
	conv        Conversation
	loadSeq     uint64
	gen         uint64
	toast       *Toast
	flashes     map[domain.ID]time.Time
	lastRefresh time.Time
	refreshErr  string

	subMu  sync.Mutex
	nextID int
	subs   map[int]chan Change
}

// New creates an empty Inbox.
func New(api Upstream, opts Options) *Inbox {
	if opts.FlashDuration <= 0 {
		opts.FlashDuration = defaultFlashDuration
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRef == nil {
		opts.NewRef = func() string { return uuid.NewString() }
	}
	return &Inbox{
		api:     api,
		metrics: opts.Metrics,
		flash:   opts.FlashDuration,
		now:     opts.Now,
		newRef:  opts.NewRef,
		flashes: make(map[domain.ID]time.Time),
		subs:    make(map[int]chan Change),
	}
}

// Subscribe returns a channel of changes and a function that cancels the
// subscription. Changes are dropped for a subscriber whose buffer is
// full.
func (ib *Inbox) Subscribe() (<-chan Change, func()) {
	ib.subMu.Lock()
	defer ib.subMu.Unlock()
	id := ib.nextID
	ib.nextID++
	ch := make(chan Change, subscriberBuffer)
	ib.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			ib.subMu.Lock()
			defer ib.subMu.Unlock()
			delete(ib.subs, id)
			close(ch)
		})
	}
}

func (ib *Inbox) publish(changes ...Change) {
	ib.subMu.Lock()
	defer ib.subMu.Unlock()
	for _, c := range changes {
		for id, ch := range ib.subs {
			select {
			case ch <- c:
			default:
				slog.Debug("Inbox subscriber lagging, change dropped", "subscriber", id, "kind", c.Kind)
			}
		}
	}
}

// Refresh refetches clients and statuses and merges them into the
// roster. A failed status fetch keeps the previous statuses unless the
// session was rejected. Results that arrive after Reset are discarded.
func (ib *Inbox) Refresh(ctx context.Context) error {
	start := time.Now()
	ib.mu.Lock()
	gen := ib.gen
	ib.mu.Unlock()

	var (
		wg          sync.WaitGroup
		clients     []domain.Client
		statuses    domain.Statuses
		clientsErr  error
		statusesErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		clients, clientsErr = ib.api.ListClients(ctx)
	}()
	go func() {
		defer wg.Done()
		statuses, statusesErr = ib.api.ListStatuses(ctx)
	}()
	wg.Wait()

	if clientsErr == nil && errors.Is(statusesErr, backend.ErrUnauthorized) {
		clientsErr = statusesErr
	}
	if clientsErr != nil {
		ib.mu.Lock()
		if ib.gen == gen {
			ib.refreshErr = clientsErr.Error()
		}
		ib.mu.Unlock()
		ib.metrics.ObserveRefresh(time.Since(start), clientsErr)
		return fmt.Errorf("refresh roster: %w", clientsErr)
	}
	if statusesErr != nil {
		slog.Warn("Status fetch failed, keeping previous statuses", "error", statusesErr)
	}

	ib.mu.Lock()
	if ib.gen != gen {
		ib.mu.Unlock()
		slog.Info("Inbox was reset during refresh, discarding result")
		return ErrReset
	}
	ib.roster = Merge(ib.roster, clients)
	if statusesErr == nil {
		ib.statuses = statuses
	}
	ib.lastRefresh = ib.now()
	ib.refreshErr = ""

	changes := []Change{{Kind: ChangeRoster}}
	if ib.selected != 0 && indexOf(ib.roster, ib.selected) < 0 {
		slog.Info("Selected client left the roster, clearing selection", "client_id", ib.selected)
		ib.selected = 0
		ib.loadSeq++
		ib.conv = Conversation{}
		changes = append(changes, Change{Kind: ChangeConversation})
	}
	pending := ib.pending
	applyPending := pending != 0 && indexOf(ib.roster, pending) >= 0
	unread := unreadTotal(ib.roster)
	ib.mu.Unlock()

	ib.metrics.ObserveRefresh(time.Since(start), nil)
	ib.metrics.SetUnread(unread)
	ib.publish(changes...)

	if applyPending {
		slog.Info("Applying pending selection", "client_id", pending)
		if err := ib.Select(ctx, pending); err != nil {
			slog.Warn("Pending selection failed", "client_id", pending, "error", err)
		}
	}
	return nil
}

// StartRefresher runs Refresh immediately and then every interval until
// ctx is done.
func (ib *Inbox) StartRefresher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Roster refresher started", "interval", interval)

		ib.refreshLogged(ctx)
		for {
			select {
			case <-ticker.C:
				ib.refreshLogged(ctx)
			case <-ctx.Done():
				slog.Info("Roster refresher shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func (ib *Inbox) refreshLogged(ctx context.Context) {
	if err := ib.Refresh(ctx); err != nil {
		if ctx.Err() != nil || errors.Is(err, ErrReset) {
			return
		}
		if errors.Is(err, backend.ErrUnauthorized) {
			slog.Warn("Roster refresh unauthorized", "error", err)
			return
		}
		slog.Error("Roster refresh failed", "error", err)
	}
}

// HandleEvent reconciles a pushed message. The message is appended when
// its client's conversation is open; the roster entry moves to the front
// with its preview updated; an inbound message for a closed conversation
// bumps the unread counter and fires the cues. Events for clients absent
// from the roster change nothing beyond the open conversation.
func (ib *Inbox) HandleEvent(msg domain.Message) {
	if msg.ClientID == 0 {
		return
	}
	now := ib.now()

	ib.mu.Lock()
	open := ib.selected != 0 && ib.selected == msg.ClientID
	var changes []Change
	if open {
		var appended bool
		ib.conv.Messages, appended = appendMessage(ib.conv.Messages, msg)
		if appended {
			changes = append(changes, Change{Kind: ChangeConversation, ClientID: msg.ClientID})
		}
	}

	idx := indexOf(ib.roster, msg.ClientID)
	if idx < 0 {
		ib.mu.Unlock()
		slog.Debug("Event for client not in roster", "client_id", msg.ClientID)
		ib.publish(changes...)
		return
	}

	c := &ib.roster[idx]
	at := msg.Time(now)
	c.LastMessageAt = &at
	c.LastMessageText = msg.Text
	inbound := msg.IsInbound()
	notify := inbound && !open
	if notify {
		c.UnreadCount++
	}
	name := c.Name
	moveToFront(ib.roster, idx)
	changes = append(changes, Change{Kind: ChangeRoster, ClientID: msg.ClientID})

	if notify {
		toast := &Toast{ClientID: msg.ClientID, Name: name, Text: msg.Text, At: now}
		ib.toast = toast
		ib.flashes[msg.ClientID] = now.Add(ib.flash)
		changes = append(changes,
			Change{Kind: ChangeBeep, ClientID: msg.ClientID},
			Change{Kind: ChangeToast, ClientID: msg.ClientID, Toast: toast},
			Change{Kind: ChangeFlash, ClientID: msg.ClientID, Duration: ib.flash},
		)
	}
	unread := unreadTotal(ib.roster)
	ib.mu.Unlock()

	ib.metrics.SetUnread(unread)
	ib.publish(changes...)
}

// Select opens a client's conversation: its unread counter resets and
// the history is fetched. A result arriving after the selection moved on
// is discarded. Selecting an id not yet in the roster records it as
// pending and returns ErrNotInRoster.
func (ib *Inbox) Select(ctx context.Context, id domain.ID) error {
	ib.mu.Lock()
	idx := indexOf(ib.roster, id)
	if idx < 0 {
		ib.pending = id
		ib.mu.Unlock()
		return fmt.Errorf("select %s: %w", id, ErrNotInRoster)
	}
	ib.pending = 0
	ib.selected = id
	ib.roster[idx].UnreadCount = 0
	ib.conv = Conversation{ClientID: id, Loading: true}
	if ib.toast != nil && ib.toast.ClientID == id {
		ib.toast = nil
	}
	ib.loadSeq++
	seq := ib.loadSeq
	unread := unreadTotal(ib.roster)
	ib.mu.Unlock()

	ib.metrics.SetUnread(unread)
	ib.publish(Change{Kind: ChangeRoster, ClientID: id}, Change{Kind: ChangeConversation, ClientID: id})
	return ib.load(ctx, id, seq, 0)
}

// Deselect closes the open conversation.
func (ib *Inbox) Deselect() {
	ib.mu.Lock()
	ib.selected = 0
	ib.pending = 0
	ib.loadSeq++
	ib.conv = Conversation{}
	ib.mu.Unlock()
	ib.publish(Change{Kind: ChangeConversation})
}

// Reload refetches the open conversation.
func (ib *Inbox) Reload(ctx context.Context) error {
	ib.mu.Lock()
	id := ib.selected
	if id == 0 {
		ib.mu.Unlock()
		return nil
	}
	ib.loadSeq++
	seq := ib.loadSeq
	base := len(ib.conv.Messages)
	ib.mu.Unlock()
	return ib.load(ctx, id, seq, base)
}

// load fetches the history of id and replaces the open conversation with
// it. Messages appended past index base while the fetch was in flight
// are kept.
func (ib *Inbox) load(ctx context.Context, id domain.ID, seq uint64, base int) error {
	msgs, err := ib.api.Conversation(ctx, id)

	ib.mu.Lock()
	if ib.loadSeq != seq || ib.selected != id {
		ib.mu.Unlock()
		slog.Debug("Discarding stale conversation response", "client_id", id)
		return nil
	}
	ib.conv.Loading = false
	if err != nil {
		ib.conv.Error = err.Error()
	} else {
		merged := msgs
		if base < len(ib.conv.Messages) {
			for _, m := range ib.conv.Messages[base:] {
				merged, _ = appendMessage(merged, m)
			}
		}
		ib.conv.Messages = merged
		ib.conv.Error = ""
	}
	ib.mu.Unlock()

	ib.publish(Change{Kind: ChangeConversation, ClientID: id})
	if err != nil {
		return fmt.Errorf("load conversation %s: %w", id, err)
	}
	return nil
}

// Send posts text to the selected client. The client moves to the top of
// the roster before the request and is not moved back on failure. On
// success the conversation is refetched.
func (ib *Inbox) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: message text is required", backend.ErrValidation)
	}

	ib.mu.Lock()
	id := ib.selected
	idx := indexOf(ib.roster, id)
	if id == 0 || idx < 0 {
		ib.mu.Unlock()
		return fmt.Errorf("%w: no client selected", backend.ErrValidation)
	}
	c := &ib.roster[idx]
	phone := c.Phone
	now := ib.now()
	c.LastMessageAt = &now
	c.LastMessageText = text
	moveToFront(ib.roster, idx)
	ib.mu.Unlock()
	ib.publish(Change{Kind: ChangeRoster, ClientID: id})

	req := backend.SendRequest{To: phone, Text: text, ClientID: id, ClientRef: ib.newRef()}
	err := ib.api.SendMessage(ctx, req)
	ib.metrics.ObserveSend(err)
	if err != nil {
		return fmt.Errorf("send to %s: %w", id, err)
	}
	slog.Info("Message sent", "client_id", id, "client_ref", req.ClientRef)

	if err := ib.Reload(ctx); err != nil {
		slog.Warn("Conversation refetch after send failed", "client_id", id, "error", err)
	}
	return nil
}

// DismissToast clears the current toast.
func (ib *Inbox) DismissToast() {
	ib.mu.Lock()
	had := ib.toast != nil
	ib.toast = nil
	ib.mu.Unlock()
	if had {
		ib.publish(Change{Kind: ChangeToast})
	}
}

// Reset drops all state, as on logout.
func (ib *Inbox) Reset() {
	ib.mu.Lock()
	ib.gen++
	ib.roster = nil
	ib.statuses = nil
	ib.selected = 0
	ib.pending = 0
	ib.loadSeq++
	ib.conv = Conversation{}
	ib.toast = nil
	ib.flashes = make(map[domain.ID]time.Time)
	ib.lastRefresh = time.Time{}
	ib.refreshErr = ""
	ib.mu.Unlock()

	ib.metrics.SetUnread(0)
	ib.publish(Change{Kind: ChangeLogout})
}
