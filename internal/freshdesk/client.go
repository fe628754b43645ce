package freshdesk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bookleaf/tracker/internal/models"
)

const PerPage = 100

var ErrAuth = errors.New("freshdesk credentials missing or rejected")

type RateLimitError struct {
	RetryAfter time.Duration
}

func (r RateLimitError) Error() string {
	if r.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", r.RetryAfter)
	}
	return "rate limited"
}

// Client talks to the Freshdesk v2 REST API with basic auth.
type Client struct {
	Domain string
	APIKey string
	Client *http.Client
}

func NewClient(domain, apiKey string) *Client {
	return &Client{
		Domain: strings.TrimSpace(domain),
		APIKey: strings.TrimSpace(apiKey),
		Client: &http.Client{Timeout: 20 * time.Second},
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.Domain != "" && c.APIKey != ""
}

type ticketBody struct {
	ID          int64  `json:"id"`
	Subject     string `json:"subject"`
	ResponderID *int64 `json:"responder_id"`
	Status      int    `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	Requester   *struct {
		Email string `json:"email"`
	} `json:"requester"`
}

func (t ticketBody) fact() models.TicketFact {
	f := models.TicketFact{
		ID:          t.ID,
		Subject:     t.Subject,
		ResponderID: t.ResponderID,
		StatusCode:  models.TicketStatusCode(t.Status),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if t.Requester != nil {
		f.RequesterEmail = strings.ToLower(strings.TrimSpace(t.Requester.Email))
	}
	return f
}

type agentBody struct {
	ID      int64 `json:"id"`
	Contact struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"contact"`
}

// ListTickets returns one page, newest first, with the requester embedded.
func (c *Client) ListTickets(ctx context.Context, page, perPage int) ([]models.TicketFact, error) {
	if perPage <= 0 {
		perPage = PerPage
	}
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))
	q.Set("order_by", "created_at")
	q.Set("order_type", "desc")
	q.Set("include", "requester")

	var body []ticketBody
	if err := c.do(ctx, http.MethodGet, "tickets?"+q.Encode(), nil, &body); err != nil {
		return nil, err
	}
	out := make([]models.TicketFact, 0, len(body))
	for _, t := range body {
		out = append(out, t.fact())
	}
	return out, nil
}

func (c *Client) Agents(ctx context.Context) ([]models.Agent, error) {
	var body []agentBody
	if err := c.do(ctx, http.MethodGet, "agents?per_page=100", nil, &body); err != nil {
		return nil, err
	}
	out := make([]models.Agent, 0, len(body))
	for _, a := range body {
		out = append(out, models.Agent{
			ID:    a.ID,
			Email: strings.ToLower(strings.TrimSpace(a.Contact.Email)),
			Name:  a.Contact.Name,
		})
	}
	return out, nil
}

func (c *Client) UpdateResponder(ctx context.Context, ticketID, responderID int64) error {
	payload := map[string]int64{"responder_id": responderID}
	return c.do(ctx, http.MethodPut, "tickets/"+strconv.FormatInt(ticketID, 10), payload, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if !c.Configured() {
		return ErrAuth
	}
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}

	var reader *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL()+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.APIKey, "X")
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("freshdesk request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrAuth
	case resp.StatusCode >= 400:
		return fmt.Errorf("freshdesk http error: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// baseURL accepts either "acme" or a full host such as "acme.freshdesk.com".
func (c *Client) baseURL() string {
	d := strings.TrimRight(c.Domain, "/")
	if strings.HasPrefix(d, "http://") || strings.HasPrefix(d, "https://") {
		return d + "/api/v2/"
	}
	if !strings.Contains(d, ".") {
		d += ".freshdesk.com"
	}
	return "https://" + d + "/api/v2/"
}

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
