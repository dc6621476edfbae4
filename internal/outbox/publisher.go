// Package outbox relays events written alongside booking changes to the
// message broker.
package outbox

import (
	"context"
	"time"

	"github.com/abhayrajpersonal/Turfex-sub001/internal/observability"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

type Record struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string // NEW, PUBLISHED, FAILED
	DedupeKey     string
}

type Store interface {
	GetUnpublishedOutbox(ctx context.Context, limit int) ([]Record, error)
	MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error
}

type Broker interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

type Publisher struct {
	repo      Store
	rabbitPub Broker
	logger    observability.Logger
	batch     int
	now       func() time.Time
}

func NewPublisher(repo Store, rabbitPub Broker, logger observability.Logger) *Publisher {
	return &Publisher{
		repo:      repo,
		rabbitPub: rabbitPub,
		logger:    logger.WithField("component", "outbox"),
		batch:     50,
		now:       time.Now,
	}
}

func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PublishOnce(ctx); err != nil {
				p.logger.WithError(err).Error("outbox relay failed")
			}
		}
	}
}

// PublishOnce relays one batch and returns how many records were published.
// A record that fails to publish stays NEW and is retried on the next call.
func (p *Publisher) PublishOnce(ctx context.Context) (int, error) {
	records, err := p.repo.GetUnpublishedOutbox(ctx, p.batch)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		observability.OutboxLag.Set(0)
		return 0, nil
	}
	observability.OutboxLag.Set(p.now().Sub(records[0].CreatedAt).Seconds())

	published := 0
	for _, rec := range records {
		msg := amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Timestamp:   rec.CreatedAt,
			Type:        rec.EventType,
			Body:        rec.Payload,
		}
		if err := p.rabbitPub.Publish(ctx, rec.EventType, msg); err != nil {
			observability.RabbitPublishRetries.Inc()
			p.logger.WithError(err).WithField("outbox_id", rec.ID.String()).Warn("publish outbox record")
			continue
		}
		if err := p.repo.MarkPublished(ctx, rec.ID, p.now()); err != nil {
			p.logger.WithError(err).WithField("outbox_id", rec.ID.String()).Error("mark outbox record published")
			continue
		}
		published++
	}
	return published, nil
}
