package handlers

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/bookleaf/tracker/internal/db"
	"github.com/bookleaf/tracker/internal/normalize"
	"github.com/bookleaf/tracker/internal/service"
)

// Pinger is anything Healthz can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	Tracker   *service.Tracker
	Tickets   *service.TicketService
	Bookings  *service.BookingService
	Store     Pinger
	Cache     Pinger
	Validator *validator.Validate
	Logger    zerolog.Logger
	AdminKey  string

	PaymentWebhookSecret string
	TicketWebhookSecret  string
}

// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 503 {object} map[string]any
// @Router /healthz [get]
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if h.Store != nil {
		if err := h.Store.Ping(ctx); err != nil {
			writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
			return
		}
	}
	cache := "ok"
	if h.Cache == nil {
		cache = "memory"
	} else if err := h.Cache.Ping(ctx); err != nil {
		// the ticket cache is optional; report but stay healthy
		cache = "unavailable"
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "cache": cache})
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// writeServiceError maps the service error taxonomy onto the JSON envelope.
func writeServiceError(c *gin.Context, err error) {
	var rl *service.RateLimitedError
	switch {
	case errors.As(err, &rl):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": gin.H{
				"code":                "RATE_LIMITED",
				"message":             "Ticket provider rate limit reached; auto-refresh paused",
				"details":             err.Error(),
				"retry_after_seconds": int64(rl.RetryAfter / time.Second),
			},
		})
	case errors.Is(err, service.ErrAuthFailure):
		writeError(c, http.StatusBadGateway, "AUTH_FAILURE", "Ticket provider credentials missing or rejected", err.Error())
	case errors.Is(err, service.ErrSyncInFlight):
		writeError(c, http.StatusConflict, "SYNC_IN_FLIGHT", "A ticket sync is already running", nil)
	case errors.Is(err, service.ErrNoActiveConsultants):
		writeError(c, http.StatusConflict, "NO_ACTIVE_CONSULTANTS", "No active consultants to assign to", nil)
	case errors.Is(err, service.ErrInvalidLink):
		writeError(c, http.StatusForbidden, "INVALID_LINK", "This booking link is invalid", nil)
	case errors.Is(err, service.ErrCacheUnavailable):
		writeError(c, http.StatusServiceUnavailable, "CACHE_UNAVAILABLE", "Ticket cache unavailable", err.Error())
	case errors.Is(err, service.ErrAuthorNotFound),
		errors.Is(err, service.ErrBookingNotFound),
		errors.Is(err, service.ErrTicketNotFound),
		errors.Is(err, db.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, service.ErrActiveBooking),
		errors.Is(err, db.ErrActiveBooking):
		writeError(c, http.StatusConflict, "ACTIVE_BOOKING", "Complete or cancel the current booking first", nil)
	case errors.Is(err, service.ErrInvalidSlot),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrUnknownConsultant),
		errors.Is(err, service.ErrUnknownStage),
		errors.Is(err, service.ErrInvalidStatus):
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	default:
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Operation failed", err.Error())
	}
}

// readCSV reads an uploaded CSV into header-keyed rows. Rows the reader
// cannot split are reported, not fatal.
func readCSV(file *multipart.FileHeader) ([]normalize.Row, []string, error) {
	f, err := file.Open()
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	headers, err := reader.Read()
	if err != nil {
		return nil, nil, errors.New("failed to read header")
	}

	var rows []normalize.Row
	var problems []string
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if blankRecord(rec) {
			continue
		}
		rows = append(rows, normalize.NewRow(headers, rec))
	}
	return rows, problems, nil
}

func blankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func validateExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".csv"
}

// boolParam reads a form or query flag, falling back to def when absent.
func boolParam(c *gin.Context, name string, def bool) bool {
	v, ok := c.GetPostForm(name)
	if !ok {
		v, ok = c.GetQuery(name)
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if !ok || err != nil {
		return def
	}
	return b
}
