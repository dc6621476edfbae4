package rabbit

import (
	"context"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

type Consumer struct {
	ch    *amqp.Channel
	queue string
}

// NewConsumer declares a durable queue and binds it to exchange for every
// routing key in keys. Topic wildcards such as "booking.#" are allowed.
func NewConsumer(conn *amqp.Connection, exchange, queue string, keys ...string) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "open channel")
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, errors.Wrapf(err, "declare exchange %s", exchange)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, errors.Wrapf(err, "declare queue %s", queue)
	}
	for _, key := range keys {
		if err := ch.QueueBind(queue, key, exchange, false, nil); err != nil {
			_ = ch.Close()
			return nil, errors.Wrapf(err, "bind %s to %s", queue, key)
		}
	}
	if err := ch.Qos(32, 0, false); err != nil {
		_ = ch.Close()
		return nil, errors.Wrap(err, "set prefetch")
	}
	return &Consumer{ch: ch, queue: queue}, nil
}

// Consume starts delivery with manual acknowledgement. The channel closes
// when ctx is cancelled.
func (c *Consumer) Consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	return c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
}

func (c *Consumer) Close() error {
	return c.ch.Close()
}
