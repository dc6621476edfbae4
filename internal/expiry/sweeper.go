// Package expiry reclaims slots held by bookings whose online payment never
// arrived.
package expiry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/abhayrajpersonal/Turfex-sub001/internal/domain"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/observability"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

type Store interface {
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Booking, error)
}

type Expirer interface {
	Expire(ctx context.Context, b domain.Booking) (domain.Booking, error)
}

type Sweeper struct {
	store      Store
	expirer    Expirer
	logger     observability.Logger
	ttl        time.Duration
	batch      int
	workers    int
	maxRetries int
	backoff    time.Duration
}

func NewSweeper(store Store, expirer Expirer, ttl time.Duration, logger observability.Logger) *Sweeper {
	return &Sweeper{
		store:      store,
		expirer:    expirer,
		logger:     logger.WithField("component", "expiry"),
		ttl:        ttl,
		batch:      100,
		workers:    8,
		maxRetries: 3,
		backoff:    time.Second,
	}
}

// WithBackoff sets the base delay between retries of a failed expiry.
func (s *Sweeper) WithBackoff(d time.Duration) *Sweeper {
	s.backoff = d
	return s
}

func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := s.SweepOnce(ctx, now)
			if err != nil {
				s.logger.WithError(err).Error("expiry sweep failed")
				continue
			}
			if n > 0 {
				s.logger.WithField("expired", n).Info("expired stale pending bookings")
			}
		}
	}
}

// SweepOnce cancels one batch of PENDING_PAYMENT bookings created at or before
// now minus the hold window and returns how many it expired. Bookings that
// moved on since they were listed are skipped.
func (s *Sweeper) SweepOnce(ctx context.Context, now time.Time) (int, error) {
	stale, err := s.store.ListStalePending(ctx, now.Add(-s.ttl), s.batch)
	if err != nil {
		return 0, err
	}

	var expired atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, b := range stale {
		g.Go(func() error {
			ok, err := s.expireWithRetry(gctx, b)
			if err != nil {
				return err
			}
			if ok {
				expired.Add(1)
				observability.BookingsExpired.Inc()
			}
			return nil
		})
	}
	err = g.Wait()
	return int(expired.Load()), err
}

func (s *Sweeper) expireWithRetry(ctx context.Context, b domain.Booking) (bool, error) {
	log := s.logger.WithField("booking_id", b.ID.String())
	var err error
	for i := 0; i < s.maxRetries; i++ {
		_, err = s.expirer.Expire(ctx, b)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, domain.ErrInvalidStateTransition), errors.Is(err, domain.ErrNotFound):
			log.Debug("booking no longer pending, skipping")
			return false, nil
		case !errors.Is(err, domain.ErrStorageUnavailable):
			return false, err
		}
		select {
		case <-ctx.Done():
			return false, domain.Unavailable(ctx.Err(), "expire booking")
		case <-time.After(time.Duration(1<<i) * s.backoff):
		}
	}
	return false, errors.Wrapf(err, "expire booking %s after %d attempts", b.ID, s.maxRetries)
}
