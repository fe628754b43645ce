package freshdesk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListTicketsDecodesRequester(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "X", pass)
		assert.Equal(t, "/api/v2/tickets", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "desc", r.URL.Query().Get("order_type"))
		_, _ = w.Write([]byte(`[{"id":7,"subject":"Hi","responder_id":42,"status":4,"requester":{"email":"A@X.com"}}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key")
	facts, err := c.ListTickets(context.Background(), 2, PerPage)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, int64(7), facts[0].ID)
	assert.Equal(t, "a@x.com", facts[0].RequesterEmail)
	require.NotNil(t, facts[0].ResponderID)
	assert.Equal(t, int64(42), *facts[0].ResponderID)
	assert.True(t, facts[0].StatusCode.Terminal())
}

func TestRateLimitCarriesRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "key").ListTickets(context.Background(), 1, PerPage)
	var rl RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, 30*time.Second, rl.RetryAfter)
}

func TestAuthFailures(t *testing.T) {
	_, err := NewClient("", "").Agents(context.Background())
	assert.ErrorIs(t, err, ErrAuth)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	_, err = NewClient(srv.URL, "bad").Agents(context.Background())
	assert.ErrorIs(t, err, ErrAuth)
}

func TestUpdateResponderSendsBody(t *testing.T) {
	var got map[string]int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v2/tickets/9", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	require.NoError(t, NewClient(srv.URL, "key").UpdateResponder(context.Background(), 9, 55))
	assert.Equal(t, int64(55), got["responder_id"])
}

func TestAgentsLowercasesEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1,"contact":{"email":"Vandana@Bookleaf.in","name":"Vandana"}}]`))
	}))
	defer srv.Close()

	agents, err := NewClient(srv.URL, "key").Agents(context.Background())
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "vandana@bookleaf.in", agents[0].Email)
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, "https://acme.freshdesk.com/api/v2/", (&Client{Domain: "acme"}).baseURL())
	assert.Equal(t, "https://help.acme.io/api/v2/", (&Client{Domain: "help.acme.io/"}).baseURL())
}
