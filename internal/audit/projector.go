// Package audit projects booking events from the broker into the audit log.
package audit

import (
	"context"
	"encoding/json"

	"github.com/abhayrajpersonal/Turfex-sub001/internal/domain"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/observability"
	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

type Sink interface {
	LogBooking(ctx context.Context, id, action string, b domain.Booking) error
}

type Projector struct {
	sink   Sink
	logger observability.Logger
}

func NewProjector(sink Sink, logger observability.Logger) *Projector {
	return &Projector{sink: sink, logger: logger.WithField("component", "audit")}
}

// Run handles deliveries until the channel closes or ctx is done.
func (p *Projector) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			p.handleDelivery(ctx, d)
		}
	}
}

func (p *Projector) handleDelivery(ctx context.Context, d amqp.Delivery) {
	log := p.logger.WithFields(map[string]interface{}{
		"message_id":  d.MessageId,
		"routing_key": d.RoutingKey,
	})
	err := p.Handle(ctx, d.MessageId, d.RoutingKey, d.Body)
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			log.WithError(ackErr).Warn("ack audit message")
		}
	case errors.Is(err, domain.ErrInvalidArgument):
		log.WithError(err).Error("dropping malformed booking event")
		_ = d.Nack(false, false)
	default:
		log.WithError(err).Warn("audit write failed, requeueing")
		_ = d.Nack(false, true)
	}
}

// Handle records one booking event. The message id keys the audit entry so a
// redelivery overwrites rather than duplicates.
func (p *Projector) Handle(ctx context.Context, messageID, eventType string, body []byte) error {
	var b domain.Booking
	if err := json.Unmarshal(body, &b); err != nil {
		return errors.Mark(errors.Wrap(err, "decode booking event"), domain.ErrInvalidArgument)
	}
	if eventType == "" {
		return domain.InvalidArgument("event type is required")
	}
	return p.sink.LogBooking(ctx, messageID, eventType, b)
}
