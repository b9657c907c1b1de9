package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ashureev/castle-console/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Options{BaseURL: srv.URL, Tokens: StaticToken("tok-123")})
}

func TestSendMessageBody(t *testing.T) {
	var got map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/messages/send" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok-123" {
			t.Errorf("unexpected Authorization header %q", auth)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	})

	err := client.SendMessage(context.Background(), SendRequest{
		To:       "6025551234",
		Text:     "Hello",
		ClientID: 42,
	})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if got["to"] != "6025551234" || got["text"] != "Hello" || got["client_id"] != float64(42) {
		t.Errorf("unexpected body %v", got)
	}
}

func TestSendMessageValidatesLocally(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	err := client.SendMessage(context.Background(), SendRequest{To: "1", Text: "   ", ClientID: 1})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	err = client.SendMessage(context.Background(), SendRequest{Text: "hi"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for missing client, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("expected no upstream calls, got %d", calls)
	}
}

func TestUnauthorizedFiresHook(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"token expired"}`))
	})
	var fired int32
	client.OnUnauthorized(func() { atomic.AddInt32(&fired, 1) })

	_, err := client.ListClients(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "token expired" {
		t.Errorf("expected upstream message in error, got %v", err)
	}
	if atomic.LoadInt32(&fired) != 1 {
		t.Errorf("expected hook to fire once, fired %d", fired)
	}
}

func TestLoginFailureDoesNotFireHook(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Invalid credentials"}`))
	})
	var fired int32
	client.OnUnauthorized(func() { atomic.AddInt32(&fired, 1) })

	_, err := client.Login(context.Background(), "cass", "wrong")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if atomic.LoadInt32(&fired) != 0 {
		t.Error("login failures must not force a logout")
	}
}

func TestListDecodesBareAndWrappedArrays(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/clients":
			_, _ = w.Write([]byte(`{"clients":[{"id":1,"name":"Ana"},{"id":"2","name":"Ben"}]}`))
		case "/api/statuses":
			_, _ = w.Write([]byte(`[{"id":1,"name":"New Lead"}]`))
		case "/api/messages/conversation/9":
			_, _ = w.Write([]byte(`{"messages":[{"text":"hi","direction":"inbound"}]}`))
		case "/api/templates":
			_, _ = w.Write([]byte(`{"unexpected":true}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	clients, err := client.ListClients(ctx)
	if err != nil || len(clients) != 2 || clients[1].ID != 2 {
		t.Fatalf("unexpected clients %+v, err %v", clients, err)
	}

	statuses, err := client.ListStatuses(ctx)
	if err != nil || statuses.Name(1) != "New Lead" {
		t.Fatalf("unexpected statuses %+v, err %v", statuses, err)
	}

	msgs, err := client.Conversation(ctx, 9)
	if err != nil || len(msgs) != 1 || msgs[0].ClientID != 9 {
		t.Fatalf("expected client id backfilled, got %+v, err %v", msgs, err)
	}

	templates, err := client.ListTemplates(ctx)
	if err != nil || len(templates) != 0 {
		t.Fatalf("expected empty list for unknown wrapper, got %+v, err %v", templates, err)
	}

	if err := client.DeleteClient(ctx, 77); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateClientRequiresIntakeFields(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.CreateClient(context.Background(), domain.ClientInput{Name: "Ana"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	for _, field := range []string{"phone", "office", "case_type"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("expected %s to be reported in %q", field, err.Error())
		}
	}
}

func TestTemplateMutations(t *testing.T) {
	var lastMethod, lastPath string
	var lastBody domain.Template
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		lastMethod, lastPath = r.Method, r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&lastBody)
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"id":31}`))
		}
	})
	ctx := context.Background()

	if _, err := client.CreateTemplate(ctx, domain.Template{Body: "  "}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty body, got %v", err)
	}

	id, err := client.CreateTemplate(ctx, domain.Template{Status: " New ", Body: "Hi {name}", DelayHours: 24, Active: true})
	if err != nil || id != 31 {
		t.Fatalf("CreateTemplate: id=%d err=%v", id, err)
	}
	if lastBody.Status != "New" {
		t.Errorf("expected trimmed status, got %q", lastBody.Status)
	}

	if err := client.UpdateTemplate(ctx, domain.Template{ID: 31, Body: "x", Active: false}); err != nil {
		t.Fatalf("UpdateTemplate: %v", err)
	}
	if lastMethod != http.MethodPut || lastPath != "/api/templates/31" {
		t.Errorf("unexpected update request %s %s", lastMethod, lastPath)
	}
}
