package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/ashureev/castle-console/internal/domain"
)

// LoginResponse is the upstream answer to a successful login.
type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login exchanges credentials for a token. It is the only call made
// without a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	req := loginRequest{Username: strings.TrimSpace(username), Password: strings.TrimSpace(password)}
	if err := c.check(req); err != nil {
		return nil, err
	}
	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", req, &resp, false); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("login: upstream returned no token")
	}
	if resp.Username == "" {
		resp.Username = req.Username
	}
	return &resp, nil
}

// ListClients fetches the full roster.
func (c *Client) ListClients(ctx context.Context) ([]domain.Client, error) {
	list := listEnvelope[domain.Client]{key: "clients"}
	if err := c.do(ctx, http.MethodGet, "/api/clients", nil, &list, true); err != nil {
		return nil, err
	}
	return list.items, nil
}

// CreateClient validates and creates a client.
func (c *Client) CreateClient(ctx context.Context, in domain.ClientInput) (*domain.Client, error) {
	in.Normalize()
	if err := c.check(in); err != nil {
		return nil, err
	}
	var out domain.Client
	if err := c.do(ctx, http.MethodPost, "/api/clients", in, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateClient validates and patches a client.
func (c *Client) UpdateClient(ctx context.Context, id domain.ID, in domain.ClientInput) (*domain.Client, error) {
	in.Normalize()
	if err := c.check(in); err != nil {
		return nil, err
	}
	var out domain.Client
	if err := c.do(ctx, http.MethodPatch, "/api/clients/"+id.String(), in, &out, true); err != nil {
		return nil, err
	}
	if out.ID == 0 {
		out.ID = id
	}
	return &out, nil
}

// DeleteClient removes a client.
func (c *Client) DeleteClient(ctx context.Context, id domain.ID) error {
	return c.do(ctx, http.MethodDelete, "/api/clients/"+id.String(), nil, nil, true)
}

// ListStatuses fetches the status reference set.
func (c *Client) ListStatuses(ctx context.Context) (domain.Statuses, error) {
	list := listEnvelope[domain.Status]{key: "statuses"}
	if err := c.do(ctx, http.MethodGet, "/api/statuses", nil, &list, true); err != nil {
		return nil, err
	}
	return domain.Statuses(list.items), nil
}

// Conversation fetches the full message history of a client.
func (c *Client) Conversation(ctx context.Context, clientID domain.ID) ([]domain.Message, error) {
	list := listEnvelope[domain.Message]{key: "messages"}
	if err := c.do(ctx, http.MethodGet, "/api/messages/conversation/"+clientID.String(), nil, &list, true); err != nil {
		return nil, err
	}
	for i := range list.items {
		if list.items[i].ClientID == 0 {
			list.items[i].ClientID = clientID
		}
	}
	return list.items, nil
}

// SendRequest is the body of an outbound message.
type SendRequest struct {
	To        string    `json:"to"`
	Text      string    `json:"text" validate:"required"`
	ClientID  domain.ID `json:"client_id" validate:"gt=0"`
	ClientRef string    `json:"client_ref,omitempty"`
}

// SendMessage posts an outbound message. There is no retry; a failure
// is terminal for the user action.
func (c *Client) SendMessage(ctx context.Context, req SendRequest) error {
	req.Text = strings.TrimSpace(req.Text)
	if err := c.check(req); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/api/messages/send", req, nil, true)
}

// ListTemplates fetches every template step.
func (c *Client) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	list := listEnvelope[domain.Template]{key: "templates"}
	if err := c.do(ctx, http.MethodGet, "/api/templates", nil, &list, true); err != nil {
		return nil, err
	}
	return list.items, nil
}

// CreateTemplate creates a step and returns its id. A missing id in the
// response yields 0.
func (c *Client) CreateTemplate(ctx context.Context, t domain.Template) (domain.ID, error) {
	t.Normalize()
	t.ID = 0
	if err := c.checkTemplate(t); err != nil {
		return 0, err
	}
	var out struct {
		ID domain.ID `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/templates", t, &out, true); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// UpdateTemplate replaces a step.
func (c *Client) UpdateTemplate(ctx context.Context, t domain.Template) error {
	t.Normalize()
	if t.ID == 0 {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	if err := c.checkTemplate(t); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, "/api/templates/"+t.ID.String(), t, nil, true)
}

// DeleteTemplate removes a step.
func (c *Client) DeleteTemplate(ctx context.Context, id domain.ID) error {
	return c.do(ctx, http.MethodDelete, "/api/templates/"+id.String(), nil, nil, true)
}

func (c *Client) checkTemplate(t domain.Template) error {
	if t.Body == "" {
		return fmt.Errorf("%w: template message required", ErrValidation)
	}
	return nil
}
