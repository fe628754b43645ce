package queue

import (
	"context"
	"encoding/json"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookleaf/tracker/internal/models"
)

type captureChannel struct {
	exchange, key string
	msg           amqp.Publishing
}

func (c *captureChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.exchange, c.key, c.msg = exchange, key, msg
	return nil
}

func TestPublishAuthorAssigned(t *testing.T) {
	ch := &captureChannel{}
	p := &Publisher{ch: ch}

	err := p.PublishAuthorAssigned(context.Background(), models.Author{Email: "a@x.com", Consultant: "Vandana", Status: models.StatusAssigned})
	require.NoError(t, err)
	assert.Equal(t, ExchangeName, ch.exchange)
	assert.Equal(t, RoutingKeyAssigned, ch.key)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)

	var ev AssignedEvent
	require.NoError(t, json.Unmarshal(ch.msg.Body, &ev))
	assert.Equal(t, "a@x.com", ev.Email)
	assert.Equal(t, "Vandana", ev.Consultant)
}
