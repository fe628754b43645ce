package freshdesk

import (
	"errors"
	"testing"

	"github.com/bookleaf/tracker/internal/models"
)

func TestParseWebhookWrapped(t *testing.T) {
	body := `{"freshdesk_webhook":{"ticket_id":"42","ticket_subject":"Cover","ticket_status":"Resolved","ticket_requester_email":"A@X.com","ticket_agent_id":"100"}}`
	f, err := ParseWebhook([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.ID != 42 || f.Subject != "Cover" || f.RequesterEmail != "a@x.com" {
		t.Fatalf("unexpected fact: %+v", f)
	}
	if f.StatusCode != models.TicketResolved {
		t.Fatalf("expected resolved, got %d", f.StatusCode)
	}
	if f.ResponderID == nil || *f.ResponderID != 100 {
		t.Fatalf("expected responder 100, got %v", f.ResponderID)
	}
}

func TestParseWebhookDirectTicket(t *testing.T) {
	body := `{"id":7,"subject":"Hi","status":2,"requester":{"email":"b@x.com"},"responder_id":null}`
	f, err := ParseWebhook([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.ID != 7 || f.StatusCode != models.TicketOpen || f.RequesterEmail != "b@x.com" {
		t.Fatalf("unexpected fact: %+v", f)
	}
	if f.ResponderID != nil {
		t.Fatalf("expected no responder, got %d", *f.ResponderID)
	}
}

func TestParseWebhookDefaultsSubject(t *testing.T) {
	f, err := ParseWebhook([]byte(`{"ticket_id":9,"email":"c@x.com"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Subject != "(No subject)" || f.StatusCode != 0 {
		t.Fatalf("unexpected fact: %+v", f)
	}
}

func TestParseWebhookRejects(t *testing.T) {
	if _, err := ParseWebhook([]byte(`{"subject":"no id"}`)); !errors.Is(err, ErrNoTicket) {
		t.Fatalf("expected ErrNoTicket, got %v", err)
	}
	if _, err := ParseWebhook([]byte(`not json`)); err == nil {
		t.Fatalf("expected json error")
	}
}
