package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/castle-console/internal/domain"
	"github.com/ashureev/castle-console/internal/inbox"
	"github.com/ashureev/castle-console/internal/session"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

const writeTimeout = 5 * time.Second

// Frame is one message pushed to the browser.
type Frame struct {
	Type       string       `json:"type"`
	ClientID   domain.ID    `json:"client_id,omitempty"`
	Toast      *inbox.Toast `json:"toast,omitempty"`
	DurationMS int64        `json:"duration_ms,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// FrameFor converts an inbox change into its wire frame.
func FrameFor(c inbox.Change) Frame {
	return Frame{
		Type:       string(c.Kind),
		ClientID:   c.ClientID,
		Toast:      c.Toast,
		DurationMS: c.Duration.Milliseconds(),
	}
}

// clientMessage is sent by the browser.
type clientMessage struct {
	Type     string    `json:"type"`
	ClientID domain.ID `json:"client_id,omitempty"`
}

// Handler upgrades /ws/inbox requests and streams inbox changes.
type Handler struct {
	inbox         *inbox.Inbox
	hub           *Hub
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a websocket handler.
func NewHandler(ib *inbox.Inbox, hub *Hub, allowedOrigin string, isDev bool) *Handler {
	return &Handler{inbox: ib, hub: hub, allowedOrigin: allowedOrigin, isDev: isDev}
}

// ServeHTTP implements http.Handler for the websocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	username := ""
	if s := session.FromContext(r.Context()); s != nil {
		username = s.Username
	}
	tabID := strings.TrimSpace(r.URL.Query().Get("tab"))
	if tabID == "" {
		tabID = uuid.NewString()
	}
	slog.Info("Inbox socket request", "username", username, "tab_id", tabID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept inbox socket", "error", err, "username", username)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close inbox socket", "error", closeErr, "username", username)
		}
	}()

	h.hub.Register(username, tabID, ws)
	defer h.hub.Unregister(username, tabID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	changes, unsubscribe := h.inbox.Subscribe()
	defer unsubscribe()

	// Initial frames so the page renders without waiting for a change.
	h.write(ctx, ws, Frame{Type: string(inbox.ChangeRoster)})
	h.write(ctx, ws, Frame{Type: string(inbox.ChangeConversation)})

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer cancel()
		h.inputLoop(ctx, ws, username)
	}()

	go func() {
		defer wg.Done()
		defer cancel()
		h.outputLoop(ctx, ws, changes)
	}()

	wg.Wait()
	slog.Info("Inbox socket ended", "username", username, "tab_id", tabID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("Inbox socket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) inputLoop(ctx context.Context, ws *websocket.Conn, username string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				slog.Debug("Inbox socket closed by client", "username", username)
			} else {
				slog.Warn("Inbox socket read error", "error", err, "username", username)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("Ignoring malformed inbox socket message", "error", err)
			continue
		}

		switch msg.Type {
		case "ping":
			h.write(ctx, ws, Frame{Type: "pong"})
		case "select":
			err := h.inbox.Select(ctx, msg.ClientID)
			switch {
			case errors.Is(err, inbox.ErrNotInRoster):
				h.write(ctx, ws, Frame{Type: "pending", ClientID: msg.ClientID})
			case err != nil:
				h.write(ctx, ws, Frame{Type: "error", ClientID: msg.ClientID, Error: err.Error()})
			}
		case "dismiss":
			h.inbox.DismissToast()
		}
	}
}

func (h *Handler) outputLoop(ctx context.Context, ws *websocket.Conn, changes <-chan inbox.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			if !h.write(ctx, ws, FrameFor(c)) {
				return
			}
			if c.Kind == inbox.ChangeLogout {
				return
			}
		}
	}
}

func (h *Handler) write(ctx context.Context, ws *websocket.Conn, f Frame) bool {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(writeCtx, ws, f); err != nil {
		if ctx.Err() == nil {
			slog.Debug("Inbox socket write error", "error", err, "type", f.Type)
		}
		return false
	}
	return true
}
