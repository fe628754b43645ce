package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bookleaf/tracker/internal/freshdesk"
	"github.com/bookleaf/tracker/internal/metrics"
	"github.com/bookleaf/tracker/internal/normalize"
	"github.com/bookleaf/tracker/internal/service"
)

const (
	SignatureHeader     = "X-Razorpay-Signature"
	WebhookSecretHeader = "X-Webhook-Secret"

	maxWebhookBody = 1 << 20
)

// SignPayload is the hex HMAC-SHA256 the payment gateway sends with each event.
func SignPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// @Summary Payment gateway webhook
// @Description Adds the payer of a captured payment as a new author
// @Tags webhooks
// @Accept json
// @Produce json
// @Success 200 {object} service.WebhookOutcome
// @Failure 401 {object} map[string]any
// @Router /api/webhooks/payments [post]
func (h *Handler) PaymentWebhook(c *gin.Context) {
	if h.PaymentWebhookSecret == "" {
		writeError(c, http.StatusServiceUnavailable, "WEBHOOK_NOT_CONFIGURED", "Payment webhook secret not configured", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Could not read body", err.Error())
		return
	}
	sig := strings.TrimSpace(c.GetHeader(SignatureHeader))
	if sig == "" {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Missing "+SignatureHeader, nil)
		return
	}
	if !hmac.Equal([]byte(SignPayload(body, h.PaymentWebhookSecret)), []byte(sig)) {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid webhook signature", nil)
		return
	}

	var ev normalize.WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		// signed but unreadable; acknowledge so the gateway stops retrying
		metrics.RecordWebhook(service.WebhookMalformed)
		h.Logger.Warn().Err(err).Msg("payment webhook body unreadable")
		c.JSON(http.StatusOK, service.WebhookOutcome{Result: service.WebhookMalformed})
		return
	}

	outcome, err := h.Tracker.ProcessWebhook(c.Request.Context(), ev)
	metrics.RecordWebhook(outcome.Result)
	if err != nil && !errors.Is(err, service.ErrNoActiveConsultants) {
		h.Logger.Error().Err(err).Str("payment_id", outcome.PaymentID).Msg("payment webhook failed")
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// @Summary Recent payment webhook outcomes
// @Tags webhooks
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/webhooks/payments/recent [get]
func (h *Handler) RecentWebhooks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": h.Tracker.RecentWebhooks()})
}

// @Summary Help desk ticket webhook
// @Description Merges one pushed ticket into the ticket cache
// @Tags webhooks
// @Accept json
// @Produce json
// @Param token query string false "shared secret"
// @Success 200 {object} map[string]any
// @Failure 401 {object} map[string]any
// @Router /api/webhooks/tickets [post]
func (h *Handler) TicketWebhook(c *gin.Context) {
	if h.TicketWebhookSecret == "" {
		writeError(c, http.StatusServiceUnavailable, "WEBHOOK_NOT_CONFIGURED", "Ticket webhook secret not configured", nil)
		return
	}
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token = strings.TrimSpace(c.GetHeader(WebhookSecretHeader))
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.TicketWebhookSecret)) != 1 {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing webhook secret", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil || len(body) == 0 {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Empty request body", nil)
		return
	}
	fact, err := freshdesk.ParseWebhook(body)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Could not extract ticket data from payload", err.Error())
		return
	}
	t, err := h.Tickets.UpsertTicket(c.Request.Context(), fact)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "merged", "ticket": t})
}
