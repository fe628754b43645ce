package freshdesk

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bookleaf/tracker/internal/models"
)

var ErrNoTicket = errors.New("no ticket in webhook payload")

var statusNames = map[string]models.TicketStatusCode{
	"open":     models.TicketOpen,
	"pending":  models.TicketPending,
	"resolved": models.TicketResolved,
	"closed":   models.TicketClosed,
}

// ParseWebhook extracts a ticket from an automation-rule payload. Three
// shapes are accepted: a raw ticket object, a "freshdesk_webhook" wrapper
// with ticket_* placeholders, and a flat object carrying ticket_id.
func ParseWebhook(body []byte) (models.TicketFact, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return models.TicketFact{}, fmt.Errorf("invalid json: %w", err)
	}
	if fw, ok := raw["freshdesk_webhook"].(map[string]any); ok {
		raw = fw
	}

	id, ok := intOf(first(raw, "ticket_id", "id"))
	if !ok || id <= 0 {
		return models.TicketFact{}, ErrNoTicket
	}
	fact := models.TicketFact{
		ID:         id,
		Subject:    strOf(first(raw, "ticket_subject", "subject")),
		StatusCode: statusOf(first(raw, "ticket_status", "status")),
		CreatedAt:  strOf(first(raw, "ticket_created_at", "created_at")),
		UpdatedAt:  strOf(first(raw, "ticket_updated_at", "updated_at")),
	}
	if fact.Subject == "" {
		fact.Subject = "(No subject)"
	}

	email := strOf(first(raw, "ticket_requester_email", "requester_email", "email"))
	if req, ok := raw["requester"].(map[string]any); ok && email == "" {
		email = strOf(req["email"])
	}
	fact.RequesterEmail = strings.ToLower(strings.TrimSpace(email))

	if rid, ok := intOf(first(raw, "ticket_agent_id", "responder_id")); ok && rid > 0 {
		fact.ResponderID = &rid
	}
	return fact, nil
}

func first(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil && v != "" {
			return v
		}
	}
	return nil
}

func strOf(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}

func intOf(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}

func statusOf(v any) models.TicketStatusCode {
	if s, ok := v.(string); ok {
		if code, ok := statusNames[strings.ToLower(strings.TrimSpace(s))]; ok {
			return code
		}
	}
	n, _ := intOf(v)
	return models.TicketStatusCode(n)
}
