package slotindex

import (
	"context"
	"strings"
	"time"

	"github.com/abhayrajpersonal/Turfex-sub001/internal/domain"
	"github.com/cockroachdb/errors"
)

const DateLayout = "2006-01-02"

type Store interface {
	ListActiveBetween(ctx context.Context, venueID string, from, to time.Time) ([]domain.Booking, error)
}

// Locator resolves the timezone a venue's calendar dates are expressed in.
type Locator interface {
	Location(ctx context.Context, venueID string) (*time.Location, error)
}

type Index struct {
	store    Store
	locator  Locator
	fallback *time.Location
}

// NewIndex builds an index over store. locator may be nil, in which case every
// venue uses fallback.
func NewIndex(store Store, locator Locator, fallback *time.Location) *Index {
	if fallback == nil {
		fallback = time.UTC
	}
	return &Index{store: store, locator: locator, fallback: fallback}
}

// Query returns the non-cancelled bookings of venueID starting on date, a
// YYYY-MM-DD calendar day in the venue's timezone.
func (i *Index) Query(ctx context.Context, venueID, date string) (domain.Availability, error) {
	venueID = strings.TrimSpace(venueID)
	if venueID == "" {
		return domain.Availability{}, domain.InvalidArgument("venue_id is required")
	}
	if strings.TrimSpace(date) == "" {
		return domain.Availability{}, domain.InvalidArgument("date is required")
	}

	loc, err := i.location(ctx, venueID)
	if err != nil {
		return domain.Availability{}, err
	}
	day, err := time.ParseInLocation(DateLayout, strings.TrimSpace(date), loc)
	if err != nil {
		return domain.Availability{}, domain.InvalidArgument("date must be formatted as YYYY-MM-DD")
	}
	from, to := DayBounds(day)

	bookings, err := i.store.ListActiveBetween(ctx, venueID, from, to)
	if err != nil {
		if errors.Is(err, domain.ErrStorageUnavailable) {
			return domain.Availability{}, err
		}
		return domain.Availability{}, domain.Unavailable(err, "query availability")
	}
	return domain.NewAvailability(venueID, day.Format(DateLayout), bookings), nil
}

func (i *Index) location(ctx context.Context, venueID string) (*time.Location, error) {
	if i.locator == nil {
		return i.fallback, nil
	}
	loc, err := i.locator.Location(ctx, venueID)
	switch {
	case err == nil && loc != nil:
		return loc, nil
	case err == nil, errors.Is(err, domain.ErrNotFound):
		return i.fallback, nil
	case errors.Is(err, domain.ErrStorageUnavailable):
		return nil, err
	default:
		return nil, domain.Unavailable(err, "resolve venue timezone")
	}
}

// DayBounds returns [midnight, next midnight) of day in day's location, as UTC.
// Using AddDate keeps days that are 23 or 25 hours long correct.
func DayBounds(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}
