// Package events publishes cart domain events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Routing keys for cart events.
const (
	CartItemAdded       = "cart.item.added"
	CartItemRemoved     = "cart.item.removed"
	CartItemDecremented = "cart.item.decremented"
	CartQuantitySet     = "cart.item.quantity_set"
	CartCleared         = "cart.cleared"
)

// CartChanged is the body of every cart event.
type CartChanged struct {
	VariantID   string    `json:"variant_id,omitempty"`
	Quantity    int       `json:"quantity,omitempty"`
	Count       int       `json:"count"`
	UniqueCount int       `json:"unique_count"`
	Total       string    `json:"total"`
	At          time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, v any) error
}

// Noop drops every event; used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, any) error { return nil }

// Rabbit publishes JSON events to a topic exchange.
type Rabbit struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewRabbit(url, exchange string) (*Rabbit, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbit: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Rabbit{conn: conn, ch: ch, exchange: exchange}, nil
}

func (r *Rabbit) Close() {
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		_ = r.conn.Close()
	}
}

func (r *Rabbit) Publish(ctx context.Context, routingKey string, v any) error {
	msg, err := newMessage(v)
	if err != nil {
		return err
	}
	return r.ch.PublishWithContext(ctx, r.exchange, routingKey, false, false, msg)
}

func newMessage(v any) (amqp.Publishing, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}, nil
}
