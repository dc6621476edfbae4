package rabbit

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

type Publisher struct {
	mu       sync.Mutex
	ch       *amqp.Channel
	exchange string
}

// NewPublisher declares exchange as a durable topic exchange on a fresh
// channel of conn.
func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "open channel")
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, errors.Wrapf(err, "declare exchange %s", exchange)
	}
	return &Publisher{ch: ch, exchange: exchange}, nil
}

// Publish sends msg with routing key key. Channels are not safe for
// concurrent publishing, so calls are serialised.
func (p *Publisher) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if msg.DeliveryMode == 0 {
		msg.DeliveryMode = amqp.Persistent
	}
	return p.ch.PublishWithContext(ctx, p.exchange, key, false, false, msg)
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
