package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/bookleaf/tracker/internal/db"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(ctx context.Context) error { return s.err }

func TestHealthzIntegration(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	store, err := db.New(context.Background(), url)
	if err != nil {
		t.Fatalf("db connect: %v", err)
	}
	defer store.Close()

	h := &Handler{Store: store, Logger: zerolog.Nop()}

	r := gin.New()
	r.GET("/healthz", h.Healthz)

	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestHealthzReportsStoreAndCache(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name   string
		h      *Handler
		status int
	}{
		{"no backends", &Handler{}, http.StatusOK},
		{"store down", &Handler{Store: stubPinger{err: errors.New("refused")}}, http.StatusServiceUnavailable},
		{"cache down stays healthy", &Handler{Store: stubPinger{}, Cache: stubPinger{err: errors.New("refused")}}, http.StatusOK},
	}
	for _, tc := range cases {
		r := gin.New()
		r.GET("/healthz", tc.h.Healthz)
		req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.status, w.Code)
		}
	}
}
