package mongo

import (
	"context"
	"sync"
	"time"

	"github.com/abhayrajpersonal/Turfex-sub001/internal/domain"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/observability"
	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// VenueDirectory reads venue documents maintained by the venue management
// service. Only the timezone is used here.
type VenueDirectory struct {
	coll   *mongo.Collection
	logger observability.Logger

	mu    sync.RWMutex
	zones map[string]*time.Location
}

func NewVenueDirectory(db *mongo.Database, logger observability.Logger) *VenueDirectory {
	return &VenueDirectory{
		coll:   db.Collection("venues"),
		logger: logger.WithField("component", "venues"),
		zones:  make(map[string]*time.Location),
	}
}

type VenueDoc struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Timezone  string    `bson:"timezone"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (v *VenueDirectory) GetVenue(ctx context.Context, id string) (*VenueDoc, error) {
	var venue VenueDoc
	err := v.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&venue)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrapf(domain.ErrNotFound, "venue %s", id)
	}
	if err != nil {
		return nil, domain.Unavailable(err, "get venue")
	}
	return &venue, nil
}

// UpsertVenue creates or replaces a venue document.
func (v *VenueDirectory) UpsertVenue(ctx context.Context, venue VenueDoc) error {
	if _, err := time.LoadLocation(venue.Timezone); err != nil {
		return domain.InvalidArgument("unknown timezone " + venue.Timezone)
	}
	venue.UpdatedAt = time.Now().UTC()
	_, err := v.coll.ReplaceOne(ctx, bson.M{"_id": venue.ID}, venue, options.Replace().SetUpsert(true))
	if err != nil {
		return domain.Unavailable(err, "upsert venue")
	}
	v.mu.Lock()
	delete(v.zones, venue.ID)
	v.mu.Unlock()
	return nil
}

// Location returns the venue's timezone. Results are cached for the life of
// the process.
func (v *VenueDirectory) Location(ctx context.Context, venueID string) (*time.Location, error) {
	v.mu.RLock()
	loc, ok := v.zones[venueID]
	v.mu.RUnlock()
	if ok {
		return loc, nil
	}

	venue, err := v.GetVenue(ctx, venueID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			v.logger.WithError(err).WithField("venue_id", venueID).Warn("venue lookup failed")
		}
		return nil, err
	}
	loc, err = time.LoadLocation(venue.Timezone)
	if err != nil {
		v.logger.WithField("venue_id", venueID).WithField("timezone", venue.Timezone).Warn("venue has an unknown timezone")
		return nil, domain.InvalidArgument("unknown timezone " + venue.Timezone)
	}

	v.mu.Lock()
	v.zones[venueID] = loc
	v.mu.Unlock()
	return loc, nil
}
