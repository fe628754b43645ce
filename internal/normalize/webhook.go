package normalize

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/bookleaf/tracker/internal/models"
)

const EventPaymentCaptured = "payment.captured"

type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity *PaymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// PaymentEntity is the payment object of a webhook. Amount is in paise.
type PaymentEntity struct {
	ID        string          `json:"id"`
	Amount    int64           `json:"amount"`
	Email     string          `json:"email"`
	Contact   string          `json:"contact"`
	Status    string          `json:"status"`
	Notes     json.RawMessage `json:"notes"`
	Card      json.RawMessage `json:"card"`
	CreatedAt int64           `json:"created_at"`
}

// WebhookToCandidate accepts only captured payments of a known package.
func WebhookToCandidate(ev WebhookEvent, packages PackageTable) (models.Candidate, error) {
	if ev.Event != EventPaymentCaptured {
		return models.Candidate{}, ErrIgnoredEvent
	}
	entity := ev.Payload.Payment.Entity
	if entity == nil {
		return models.Candidate{}, ErrMalformedRow
	}

	row := PaymentRow{
		ID:      entity.ID,
		Email:   entity.Email,
		Amount:  strconv.FormatFloat(float64(entity.Amount)/100, 'f', -1, 64),
		Status:  StatusCaptured,
		Contact: entity.Contact,
		Notes:   strings.TrimSpace(string(entity.Notes)),
		Card:    strings.TrimSpace(string(entity.Card)),
	}
	if entity.CreatedAt > 0 {
		row.CreatedAt = strconv.FormatInt(entity.CreatedAt, 10)
	}

	c, err := RowToCandidate(row, SourceWebhook, packages)
	if err != nil {
		return models.Candidate{}, err
	}
	if c.PackageKey == models.PackageOther {
		return c, ErrUnknownPackage
	}
	return c, nil
}
