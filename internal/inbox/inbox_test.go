package inbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/castle-console/internal/backend"
	"github.com/ashureev/castle-console/internal/domain"
)

type fakeUpstream struct {
	mu            sync.Mutex
	clients       []domain.Client
	statuses      domain.Statuses
	conversations map[domain.ID][]domain.Message
	convErr       error
	statusesErr   error
	// onStatuses, when set, runs inside ListStatuses before it returns.
	onStatuses func()
	sendErr       error
	sent          []backend.SendRequest
	convCalls     map[domain.ID]int
	// gate, when set for an id, blocks Conversation until it is closed.
	gate map[domain.ID]chan struct{}
}

func newFakeUpstream(clients ...domain.Client) *fakeUpstream {
	return &fakeUpstream{
		clients:       clients,
		statuses:      domain.Statuses{{ID: 1, Name: "New Lead"}, {ID: 2, Name: "Retained"}},
		conversations: make(map[domain.ID][]domain.Message),
		convCalls:     make(map[domain.ID]int),
		gate:          make(map[domain.ID]chan struct{}),
	}
}

func (f *fakeUpstream) ListClients(context.Context) ([]domain.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Client(nil), f.clients...), nil
}

func (f *fakeUpstream) ListStatuses(context.Context) (domain.Statuses, error) {
	f.mu.Lock()
	hook := f.onStatuses
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusesErr != nil {
		return nil, f.statusesErr
	}
	return f.statuses, nil
}

func (f *fakeUpstream) Conversation(_ context.Context, id domain.ID) ([]domain.Message, error) {
	f.mu.Lock()
	gate := f.gate[id]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convCalls[id]++
	if f.convErr != nil {
		return nil, f.convErr
	}
	return append([]domain.Message(nil), f.conversations[id]...), nil
}

func (f *fakeUpstream) SendMessage(_ context.Context, req backend.SendRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, req)
	f.conversations[req.ClientID] = append(f.conversations[req.ClientID], domain.Message{
		ID: domain.ID(100 + len(f.sent)), ClientID: req.ClientID, Direction: domain.DirectionOutbound,
		Text: req.Text, ClientRef: req.ClientRef,
	})
	return nil
}

var fixedNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func newTestInbox(t *testing.T, api Upstream) *Inbox {
	t.Helper()
	ib := New(api, Options{
		Now:    func() time.Time { return fixedNow },
		NewRef: func() string { return "ref-1" },
	})
	if err := ib.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	return ib
}

func rosterIDs(ib *Inbox) []domain.ID {
	snap := ib.Snapshot()
	ids := make([]domain.ID, len(snap.Roster))
	for i, c := range snap.Roster {
		ids[i] = c.ID
	}
	return ids
}

func drain(ch <-chan Change) []ChangeKind {
	var kinds []ChangeKind
	for {
		select {
		case c := <-ch:
			kinds = append(kinds, c.Kind)
		default:
			return kinds
		}
	}
}

func hasKind(kinds []ChangeKind, want ChangeKind) bool {
	for _, k := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

func TestInboundEventOnClosedConversation(t *testing.T) {
	api := newFakeUpstream(
		domain.Client{ID: 3, Name: "Cara", Phone: "6025550003"},
		domain.Client{ID: 7, Name: "Gus", Phone: "6025550007"},
	)
	ib := newTestInbox(t, api)
	if err := ib.Select(context.Background(), 3); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	changes, cancel := ib.Subscribe()
	defer cancel()

	ib.HandleEvent(domain.Message{ClientID: 7, Direction: domain.DirectionInbound, Text: "Hi"})

	gus, _ := ib.Client(7)
	if gus.UnreadCount != 1 || gus.LastMessageText != "Hi" {
		t.Errorf("expected #7 unread=1 with preview, got %+v", gus)
	}
	if ids := rosterIDs(ib); ids[0] != 7 {
		t.Errorf("expected #7 first, got %v", ids)
	}
	cara, _ := ib.Client(3)
	if cara.UnreadCount != 0 || cara.LastMessageText != "" {
		t.Errorf("expected #3 untouched, got %+v", cara)
	}
	if len(ib.Conversation().Messages) != 0 {
		t.Error("message for another client must not enter the open conversation")
	}
	toast := ib.Snapshot().Toast
	if toast == nil || toast.ClientID != 7 || toast.Name != "Gus" {
		t.Errorf("expected toast for #7, got %+v", toast)
	}
	if !ib.Flashing(7) {
		t.Error("expected #7 row to flash")
	}

	kinds := drain(changes)
	for _, want := range []ChangeKind{ChangeRoster, ChangeBeep, ChangeToast, ChangeFlash} {
		if !hasKind(kinds, want) {
			t.Errorf("expected %s change, got %v", want, kinds)
		}
	}
}

func TestInboundEventOnOpenConversation(t *testing.T) {
	api := newFakeUpstream(domain.Client{ID: 3, Name: "Cara"}, domain.Client{ID: 7, Name: "Gus"})
	ib := newTestInbox(t, api)
	if err := ib.Select(context.Background(), 7); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	changes, cancel := ib.Subscribe()
	defer cancel()

	ib.HandleEvent(domain.Message{ClientID: 7, Sender: "client", Text: "Still there?"})

	gus, _ := ib.Client(7)
	if gus.UnreadCount != 0 {
		t.Errorf("open conversation must not count unread, got %d", gus.UnreadCount)
	}
	msgs := ib.Conversation().Messages
	if len(msgs) != 1 || msgs[0].Text != "Still there?" {
		t.Errorf("expected message appended, got %+v", msgs)
	}
	if ib.Snapshot().Toast != nil {
		t.Error("no toast expected for the open conversation")
	}
	kinds := drain(changes)
	if hasKind(kinds, ChangeBeep) {
		t.Errorf("no beep expected, got %v", kinds)
	}
	if !hasKind(kinds, ChangeConversation) {
		t.Errorf("expected conversation change, got %v", kinds)
	}
}

func TestOutboundEventDoesNotCountUnread(t *testing.T) {
	api := newFakeUpstream(domain.Client{ID: 1, Name: "Ana"}, domain.Client{ID: 2, Name: "Ben"})
	ib := newTestInbox(t, api)

	ib.HandleEvent(domain.Message{ClientID: 2, Direction: domain.DirectionOutbound, Text: "Reminder", Timestamp: "2026-03-09T10:00:00Z"})

	ben, _ := ib.Client(2)
	if ben.UnreadCount != 0 {
		t.Errorf("outbound must not count unread, got %d", ben.UnreadCount)
	}
	if ben.LastMessageAt == nil || !ben.LastMessageAt.Equal(time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("expected event timestamp recorded, got %v", ben.LastMessageAt)
	}
	if ids := rosterIDs(ib); ids[0] != 2 {
		t.Errorf("expected #2 moved to front, got %v", ids)
	}
}

func TestUnknownClientEventIsNoop(t *testing.T) {
	api := newFakeUpstream(domain.Client{ID: 1, Name: "Ana"}, domain.Client{ID: 2, Name: "Ben"})
	ib := newTestInbox(t, api)
	before := rosterIDs(ib)
	changes, cancel := ib.Subscribe()
	defer cancel()

	ib.HandleEvent(domain.Message{ClientID: 99, Direction: domain.DirectionInbound, Text: "who?"})

	after := rosterIDs(ib)
	if len(after) != len(before) || after[0] != before[0] || after[1] != before[1] {
		t.Errorf("roster changed: %v -> %v", before, after)
	}
	if kinds := drain(changes); len(kinds) != 0 {
		t.Errorf("expected no changes, got %v", kinds)
	}
	if ib.Snapshot().Toast != nil {
		t.Error("unexpected toast")
	}
}

func TestSelectResetsUnreadAndLoads(t *testing.T) {
	api := newFakeUpstream(domain.Client{ID: 5, Name: "Eve"})
	api.conversations[5] = []domain.Message{{ID: 1, ClientID: 5, Text: "hello", Direction: domain.DirectionInbound}}
	ib := newTestInbox(t, api)

	ib.HandleEvent(domain.Message{ClientID: 5, Direction: domain.DirectionInbound, Text: "a"})
	ib.HandleEvent(domain.Message{ClientID: 5, Direction: domain.DirectionInbound, Text: "b"})
	if c, _ := ib.Client(5); c.UnreadCount != 2 {
		t.Fatalf("expected unread 2 before select, got %d", c.UnreadCount)
	}

	if err := ib.Select(context.Background(), 5); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if c, _ := ib.Client(5); c.UnreadCount != 0 {
		t.Errorf("expected unread reset, got %d", c.UnreadCount)
	}
	conv := ib.Conversation()
	if conv.Loading || len(conv.Messages) != 1 || conv.Messages[0].Text != "hello" {
		t.Errorf("unexpected conversation %+v", conv)
	}
	if ib.Snapshot().Toast != nil {
		t.Error("selecting the toasted client should clear the toast")
	}
}

func TestStaleConversationIsDiscarded(t *testing.T) {
	api := newFakeUpstream(domain.Client{ID: 1, Name: "Ana"}, domain.Client{ID: 2, Name: "Ben"})
	api.conversations[1] = []domain.Message{{ID: 10, ClientID: 1, Text: "from ana"}}
	api.conversations[2] = []domain.Message{{ID: 20, ClientID: 2, Text: "from ben"}}
	gate := make(chan struct{})
	api.gate[1] = gate
	ib := newTestInbox(t, api)

	done := make(chan error, 1)
	go func() { done <- ib.Select(context.Background(), 1) }()

	// Wait until the first selection is in flight.
	deadline := time.After(2 * time.Second)
	for ib.Selected() != 1 {
		select {
		case <-deadline:
			t.Fatal("first selection never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if err := ib.Select(context.Background(), 2); err != nil {
		t.Fatalf("Select(2) failed: %v", err)
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("Select(1) failed: %v", err)
	}

	conv := ib.Conversation()
	if conv.ClientID != 2 || len(conv.Messages) != 1 || conv.Messages[0].Text != "from ben" {
		t.Errorf("stale response leaked into conversation: %+v", conv)
	}
}

func TestSendMovesToTopAndRefetches(t *testing.T) {
	api := newFakeUpstream(
		domain.Client{ID: 1, Name: "Ana", Phone: "6025550001"},
		domain.Client{ID: 42, Name: "Zed", Phone: "6025551234"},
	)
	ib := newTestInbox(t, api)
	if err := ib.Select(context.Background(), 42); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	if err := ib.Send(context.Background(), "  Hello "); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if len(api.sent) != 1 {
		t.Fatalf("expected one send, got %d", len(api.sent))
	}
	req := api.sent[0]
	if req.To != "6025551234" || req.Text != "Hello" || req.ClientID != 42 || req.ClientRef != "ref-1" {
		t.Errorf("unexpected send request %+v", req)
	}
	if ids := rosterIDs(ib); ids[0] != 42 {
		t.Errorf("expected #42 first, got %v", ids)
	}
	if api.convCalls[42] != 2 {
		t.Errorf("expected conversation refetched after send, calls=%d", api.convCalls[42])
	}
	msgs := ib.Conversation().Messages
	if len(msgs) != 1 || msgs[0].Text != "Hello" {
		t.Errorf("expected refetched history, got %+v", msgs)
	}

	// The echo of our own send over the channel is not duplicated.
	ib.HandleEvent(domain.Message{ClientID: 42, Direction: domain.DirectionOutbound, Text: "Hello", ClientRef: "ref-1"})
	if n := len(ib.Conversation().Messages); n != 1 {
		t.Errorf("expected echo deduplicated, got %d messages", n)
	}
}

func TestSendValidation(t *testing.T) {
	api := newFakeUpstream(domain.Client{ID: 1, Name: "Ana"})
	ib := newTestInbox(t, api)

	if err := ib.Send(context.Background(), "hi"); !errors.Is(err, backend.ErrValidation) {
		t.Errorf("expected validation error without selection, got %v", err)
	}
	if err := ib.Select(context.Background(), 1); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if err := ib.Send(context.Background(), "   "); !errors.Is(err, backend.ErrValidation) {
		t.Errorf("expected validation error for blank text, got %v", err)
	}
	if len(api.sent) != 0 {
		t.Errorf("no request expected, got %d", len(api.sent))
	}
}

func TestSendFailureKeepsOrder(t *testing.T) {
	api := newFakeUpstream(domain.Client{ID: 1, Name: "Ana"}, domain.Client{ID: 2, Name: "Ben"})
	api.sendErr = errors.New("upstream down")
	ib := newTestInbox(t, api)
	if err := ib.Select(context.Background(), 2); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	if err := ib.Send(context.Background(), "hello"); err == nil {
		t.Fatal("expected send error")
	}
	if ids := rosterIDs(ib); ids[0] != 2 {
		t.Errorf("optimistic move should stay after failure, got %v", ids)
	}
	if api.convCalls[2] != 1 {
		t.Errorf("no refetch expected after failure, calls=%d", api.convCalls[2])
	}
}

func TestRefreshPreservesTransientAndClearsMissingSelection(t *testing.T) {
	api := newFakeUpstream(
		domain.Client{ID: 1, Name: "Ana"},
		domain.Client{ID: 2, Name: "Ben"},
		domain.Client{ID: 3, Name: "Cy"},
	)
	ib := newTestInbox(t, api)
	ib.HandleEvent(domain.Message{ClientID: 3, Direction: domain.DirectionInbound, Text: "ping"})
	if err := ib.Select(context.Background(), 1); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	api.mu.Lock()
	api.clients = []domain.Client{{ID: 2, Name: "Ben"}, {ID: 3, Name: "Cy Updated"}, {ID: 4, Name: "Dee"}}
	api.mu.Unlock()
	if err := ib.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	cy, ok := ib.Client(3)
	if !ok || cy.Name != "Cy Updated" || cy.UnreadCount != 1 || cy.LastMessageText != "ping" {
		t.Errorf("expected transient fields carried, got %+v", cy)
	}
	if ids := rosterIDs(ib); len(ids) != 3 || ids[0] != 3 || ids[1] != 2 || ids[2] != 4 {
		t.Errorf("unexpected merged order %v", ids)
	}
	if ib.Selected() != 0 || ib.Conversation().ClientID != 0 {
		t.Error("expected selection cleared when the client disappears")
	}
}

func TestPendingSelectionAppliedOnRefresh(t *testing.T) {
	api := newFakeUpstream(domain.Client{ID: 1, Name: "Ana"})
	ib := newTestInbox(t, api)

	if err := ib.Select(context.Background(), 9); !errors.Is(err, ErrNotInRoster) {
		t.Fatalf("expected ErrNotInRoster, got %v", err)
	}
	if snap := ib.Snapshot(); snap.Pending != 9 {
		t.Fatalf("expected pending 9, got %d", snap.Pending)
	}

	api.mu.Lock()
	api.clients = append(api.clients, domain.Client{ID: 9, Name: "Ivy"})
	api.mu.Unlock()
	if err := ib.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if ib.Selected() != 9 {
		t.Errorf("expected pending selection applied, selected=%d", ib.Selected())
	}
}

func TestResetClearsState(t *testing.T) {
	api := newFakeUpstream(domain.Client{ID: 1, Name: "Ana"})
	ib := newTestInbox(t, api)
	ib.HandleEvent(domain.Message{ClientID: 1, Direction: domain.DirectionInbound, Text: "x"})
	changes, cancel := ib.Subscribe()
	defer cancel()

	ib.Reset()

	snap := ib.Snapshot()
	if len(snap.Roster) != 0 || snap.Toast != nil || len(snap.Flashing) != 0 {
		t.Errorf("expected empty state, got %+v", snap)
	}
	if kinds := drain(changes); !hasKind(kinds, ChangeLogout) {
		t.Errorf("expected logout change, got %v", kinds)
	}
}

func TestRefreshAfterResetIsDiscarded(t *testing.T) {
	api := newFakeUpstream(domain.Client{ID: 1, Name: "Ana"})
	ib := New(api, Options{Now: func() time.Time { return fixedNow }})

	// Logout lands while the fetch is in flight, and the rejected token
	// shows up on the status call only.
	api.onStatuses = ib.Reset
	api.statusesErr = backend.ErrUnauthorized

	err := ib.Refresh(context.Background())
	if !errors.Is(err, backend.ErrUnauthorized) {
		t.Fatalf("expected unauthorized refresh error, got %v", err)
	}
	if snap := ib.Snapshot(); len(snap.Roster) != 0 || snap.RefreshError != "" {
		t.Errorf("expected empty state after logout, got %+v", snap)
	}

	api.statusesErr = nil
	err = ib.Refresh(context.Background())
	if !errors.Is(err, ErrReset) {
		t.Fatalf("expected ErrReset, got %v", err)
	}
	if ids := rosterIDs(ib); len(ids) != 0 {
		t.Errorf("roster restored after reset: %v", ids)
	}

	api.onStatuses = nil
	if err := ib.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh after reset failed: %v", err)
	}
	if ids := rosterIDs(ib); len(ids) != 1 {
		t.Errorf("expected roster reloaded, got %v", ids)
	}
}

func TestStatusFailureKeepsPreviousStatuses(t *testing.T) {
	api := newFakeUpstream(domain.Client{ID: 1, Name: "Ana"})
	ib := newTestInbox(t, api)
	api.statusesErr = errors.New("statuses down")
	api.clients = append(api.clients, domain.Client{ID: 2, Name: "Ben"})

	if err := ib.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if len(ib.Statuses()) != 2 {
		t.Errorf("expected previous statuses kept, got %+v", ib.Statuses())
	}
	if ids := rosterIDs(ib); len(ids) != 2 {
		t.Errorf("expected roster updated, got %v", ids)
	}
}

func TestFlashExpires(t *testing.T) {
	api := newFakeUpstream(domain.Client{ID: 7, Name: "Gus"})
	var mu sync.Mutex
	now := fixedNow
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}
	ib := New(api, Options{Now: clock})
	if err := ib.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	ib.HandleEvent(domain.Message{ClientID: 7, Direction: domain.DirectionInbound, Text: "Hi"})

	advance(1399 * time.Millisecond)
	if !ib.Flashing(7) {
		t.Error("expected #7 to flash before the duration runs out")
	}
	if snap := ib.Snapshot(); len(snap.Flashing) != 1 || snap.Flashing[0] != 7 {
		t.Errorf("expected snapshot flashing [7], got %v", snap.Flashing)
	}

	advance(time.Millisecond)
	if ib.Flashing(7) {
		t.Error("expected flash to end at the duration")
	}
	if snap := ib.Snapshot(); len(snap.Flashing) != 0 {
		t.Errorf("expected no flashing rows, got %v", snap.Flashing)
	}
	ib.mu.Lock()
	left := len(ib.flashes)
	ib.mu.Unlock()
	if left != 0 {
		t.Errorf("expected expired flash pruned, %d left", left)
	}
}

func TestSubscriberCancelIsIdempotent(t *testing.T) {
	ib := New(newFakeUpstream(), Options{})
	_, cancel := ib.Subscribe()
	cancel()
	cancel()
	ib.publish(Change{Kind: ChangeRoster})
}
