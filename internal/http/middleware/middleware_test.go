package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func newEngine(logs *bytes.Buffer, key string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.Use(Logger(zerolog.New(logs)))
	r.GET("/open", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/admin", AdminKey(key), func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func TestRequestIDEchoedOrMinted(t *testing.T) {
	var logs bytes.Buffer
	r := newEngine(&logs, "")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/open", nil)
	req.Header.Set(RequestIDHeader, "req_fixed")
	r.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "req_fixed" {
		t.Fatalf("expected echoed id, got %q", got)
	}
	if !strings.Contains(logs.String(), `"request_id":"req_fixed"`) {
		t.Fatalf("expected request id in access log, got %s", logs.String())
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/open", nil)
	r.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); !strings.HasPrefix(got, "req_") || len(got) < 10 {
		t.Fatalf("expected minted id, got %q", got)
	}
}

func TestAdminKey(t *testing.T) {
	var logs bytes.Buffer
	r := newEngine(&logs, "k3y")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/admin", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if !strings.Contains(logs.String(), `"level":"warn"`) {
		t.Fatalf("expected 4xx logged at warn, got %s", logs.String())
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("X-Admin-Key", "k3y")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAdminKeyOpenWhenUnset(t *testing.T) {
	var logs bytes.Buffer
	r := newEngine(&logs, "")
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/admin", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
