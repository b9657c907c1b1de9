package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/castle-console/internal/domain"
	"github.com/ashureev/castle-console/internal/inbox"
	"github.com/go-chi/chi/v5"
)

// sendLocks rejects a second concurrent send for the same client.
var sendLocks sync.Map

var viewParams = []string{"q", "status_id", "office", "case_type", "language", "ic", "appt_setter", "unread", "sort"}

// RegisterInboxRoutes registers the inbox endpoints. Callers mount them
// behind the session middleware.
func (h *Handler) RegisterInboxRoutes(r chi.Router) {
	r.Route("/api/inbox", func(r chi.Router) {
		r.Get("/clients", h.ListClients)
		r.Post("/clients", h.CreateClient)
		r.Patch("/clients/{id}", h.UpdateClient)
		r.Delete("/clients/{id}", h.DeleteClient)
		r.Get("/facets", h.Facets)
		r.Get("/state", h.State)
		r.Post("/select/{id}", h.Select)
		r.Delete("/select", h.Deselect)
		r.Get("/conversation", h.GetConversation)
		r.Post("/send", h.Send)
		r.Post("/toast/dismiss", h.DismissToast)
	})
}

// parseView reads the filter and sort key from the query. ok is false
// when the query carries no view parameter at all.
func parseView(q url.Values) (f inbox.Filter, key inbox.SortKey, ok bool) {
	for _, p := range viewParams {
		if q.Has(p) {
			ok = true
			break
		}
	}
	f = inbox.Filter{
		Query:      strings.TrimSpace(q.Get("q")),
		Office:     q.Get("office"),
		CaseType:   q.Get("case_type"),
		Language:   q.Get("language"),
		IC:         q.Get("ic"),
		ApptSetter: q.Get("appt_setter"),
	}
	if id, err := domain.ParseID(q.Get("status_id")); err == nil {
		f.StatusID = id
	}
	if unread, err := strconv.ParseBool(q.Get("unread")); err == nil {
		f.UnreadOnly = unread
	}
	key, _ = inbox.ParseSortKey(q.Get("sort"))
	return f, key, ok
}

type clientRow struct {
	domain.Client
	StatusName  string `json:"status_name,omitempty"`
	StatusColor string `json:"status_color"`
	PhoneUS     string `json:"phone_display"`
	Appointment string `json:"appointment,omitempty"`
	Flashing    bool   `json:"flashing"`
	Selected    bool   `json:"selected"`
}

// ListClients returns the filtered, sorted roster. A request without view
// parameters uses the last saved view; one with parameters saves them.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	f, key, explicit := parseView(r.URL.Query())
	if explicit {
		if err := inbox.SaveView(r.Context(), h.repo, f, key); err != nil {
			slog.Warn("Failed to save roster view", "error", err)
		}
	} else {
		saved, savedKey, err := inbox.LoadView(r.Context(), h.repo)
		if err != nil {
			slog.Warn("Failed to load roster view", "error", err)
		} else {
			f, key = saved, savedKey
		}
	}

	list := h.inbox.Roster(f, key)
	statuses := h.inbox.Statuses()
	selected := h.inbox.Selected()
	rows := make([]clientRow, 0, len(list))
	for _, c := range list {
		rows = append(rows, clientRow{
			Client:      c,
			StatusName:  statuses.Name(c.StatusID),
			StatusColor: domain.StatusColor(c.StatusID),
			PhoneUS:     domain.FormatPhoneUS(c.Phone),
			Appointment: c.Appointment(),
			Flashing:    h.inbox.Flashing(c.ID),
			Selected:    c.ID == selected,
		})
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"clients": rows,
		"filter":  f,
		"sort":    key,
	})
}

// CreateClient adds a client upstream and refreshes the roster.
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var in domain.ClientInput
	if !decode(w, r, &in) {
		return
	}
	c, err := h.clients.CreateClient(r.Context(), in)
	if err != nil {
		upstreamError(w, r, err)
		return
	}
	slog.Info("Client created", "client_id", c.ID)
	h.refreshRoster(r)
	JSON(w, http.StatusCreated, c)
}

// UpdateClient replaces a client's editable fields and refreshes the
// roster.
func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseID(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		Error(w, http.StatusBadRequest, "invalid client id")
		return
	}
	var in domain.ClientInput
	if !decode(w, r, &in) {
		return
	}
	c, err := h.clients.UpdateClient(r.Context(), id, in)
	if err != nil {
		upstreamError(w, r, err)
		return
	}
	slog.Info("Client updated", "client_id", id)
	h.refreshRoster(r)
	JSON(w, http.StatusOK, c)
}

// DeleteClient removes a client upstream. A selection of that client is
// cleared by the following refresh.
func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseID(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		Error(w, http.StatusBadRequest, "invalid client id")
		return
	}
	if err := h.clients.DeleteClient(r.Context(), id); err != nil {
		upstreamError(w, r, err)
		return
	}
	slog.Info("Client deleted", "client_id", id)
	h.refreshRoster(r)
	w.WriteHeader(http.StatusNoContent)
}

// refreshRoster pulls the roster after a write. The write already
// succeeded, so a failed refresh is only logged.
func (h *Handler) refreshRoster(r *http.Request) {
	if err := h.inbox.Refresh(r.Context()); err != nil {
		slog.Warn("Roster refresh after client write failed", "error", err)
	}
}

// Facets returns the filter option lists.
func (h *Handler) Facets(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.inbox.Facets())
}

// State returns the full inbox snapshot.
func (h *Handler) State(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.inbox.Snapshot())
}

// Select opens a client's conversation. An id not yet in the roster is
// remembered and answered with 202.
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseID(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		Error(w, http.StatusBadRequest, "invalid client id")
		return
	}
	err = h.inbox.Select(r.Context(), id)
	switch {
	case errors.Is(err, inbox.ErrNotInRoster):
		JSON(w, http.StatusAccepted, map[string]interface{}{"status": "pending", "client_id": id})
	case err != nil:
		upstreamError(w, r, err)
	default:
		h.writeConversation(w)
	}
}

// Deselect closes the open conversation.
func (h *Handler) Deselect(w http.ResponseWriter, _ *http.Request) {
	h.inbox.Deselect()
	w.WriteHeader(http.StatusNoContent)
}

// GetConversation returns the open conversation grouped by day.
func (h *Handler) GetConversation(w http.ResponseWriter, _ *http.Request) {
	h.writeConversation(w)
}

func (h *Handler) writeConversation(w http.ResponseWriter) {
	conv := h.inbox.Conversation()
	body := map[string]interface{}{
		"client_id": conv.ClientID,
		"loading":   conv.Loading,
		"days":      inbox.GroupByDay(conv.Messages, time.Now(), time.Local),
	}
	if conv.Error != "" {
		body["error"] = conv.Error
	}
	if c, ok := h.inbox.Client(conv.ClientID); ok {
		body["client"] = c
	}
	JSON(w, http.StatusOK, body)
}

type sendRequest struct {
	Text string `json:"text"`
}

// Send posts a message to the selected client.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !decode(w, r, &req) {
		return
	}

	id := h.inbox.Selected()
	if _, busy := sendLocks.LoadOrStore(id, struct{}{}); busy {
		Error(w, http.StatusConflict, "send already in progress")
		return
	}
	defer sendLocks.Delete(id)

	if err := h.inbox.Send(r.Context(), req.Text); err != nil {
		upstreamError(w, r, err)
		return
	}
	h.writeConversation(w)
}

// DismissToast clears the toast banner.
func (h *Handler) DismissToast(w http.ResponseWriter, _ *http.Request) {
	h.inbox.DismissToast()
	w.WriteHeader(http.StatusNoContent)
}
