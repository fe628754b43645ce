package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bookleaf/tracker/internal/models"
)

const (
	ExchangeName       = "ex.authors"
	AssignedQueue      = "q.author_assigned"
	RoutingKeyAssigned = "author.assigned"
)

// AssignedEvent is published whenever an author gains or changes consultant.
type AssignedEvent struct {
	Email       string            `json:"email"`
	Name        string            `json:"name"`
	Consultant  string            `json:"consultant"`
	PackageKey  models.PackageKey `json:"package_key"`
	Status      models.Status     `json:"status"`
	PaymentDate time.Time         `json:"payment_date"`
	At          time.Time         `json:"at"`
}

func NewAssignedEvent(a models.Author) AssignedEvent {
	return AssignedEvent{
		Email:       a.Email,
		Name:        a.Name,
		Consultant:  a.Consultant,
		PackageKey:  a.PackageKey,
		Status:      a.Status,
		PaymentDate: a.PaymentDate,
		At:          time.Now().UTC(),
	}
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Publisher struct {
	conn *amqp.Connection
	ch   channel
}

func Dial(url string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := setupTopology(ch); err != nil {
		conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch}, nil
}

func setupTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(AssignedQueue, true, false, false, false, nil); err != nil {
		return err
	}
	return ch.QueueBind(AssignedQueue, RoutingKeyAssigned, ExchangeName, false, nil)
}

func (p *Publisher) PublishAuthorAssigned(ctx context.Context, a models.Author) error {
	body, err := json.Marshal(NewAssignedEvent(a))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	err = p.ch.PublishWithContext(ctx,
		ExchangeName,
		RoutingKeyAssigned,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", RoutingKeyAssigned, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
