// Package idempotency replays stored responses for repeated requests that
// carry the same Idempotency-Key.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	redisadapter "github.com/abhayrajpersonal/Turfex-sub001/internal/adapters/redis"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/domain"
	"github.com/cockroachdb/errors"
)

const MinKeyLength = 16

var (
	// ErrInFlight means a request with the same key is still being processed.
	ErrInFlight = errors.Mark(errors.New("request with this idempotency key is in progress"), domain.ErrConflict)
	// ErrKeyReused means the key was first used for a different request body.
	ErrKeyReused = errors.Mark(errors.New("idempotency key reused with a different request"), domain.ErrInvalidArgument)
)

type Store interface {
	Get(ctx context.Context, key string) (*redisadapter.IdempResponse, error)
	Set(ctx context.Context, key string, resp redisadapter.IdempResponse, ttl time.Duration) error
	Lock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type Idempotency struct {
	store   Store
	ttl     time.Duration
	lockTTL time.Duration
}

func NewIdempotency(store Store, ttl time.Duration) *Idempotency {
	return &Idempotency{store: store, ttl: ttl, lockTTL: 30 * time.Second}
}

type Response struct {
	Status int
	Result []byte
}

// ValidateKey rejects missing or short keys.
func ValidateKey(key string) error {
	if len(strings.TrimSpace(key)) < MinKeyLength {
		return domain.InvalidArgument("Idempotency-Key header of at least 16 characters is required")
	}
	return nil
}

// Fingerprint identifies a request body so a key cannot be replayed for a
// different payload.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Begin looks key up. A stored response for the same fingerprint is returned
// for replay. Otherwise the key is locked and nil is returned; the caller must
// then call Finish or Abandon.
func (i *Idempotency) Begin(ctx context.Context, key, fingerprint string) (*Response, error) {
	if resp, err := i.lookup(ctx, key, fingerprint); resp != nil || err != nil {
		return resp, err
	}
	ok, err := i.store.Lock(ctx, key, i.lockTTL)
	if err != nil {
		return nil, domain.Unavailable(err, "lock idempotency key")
	}
	if !ok {
		return nil, ErrInFlight
	}
	// A holder may have finished between the lookup and the lock.
	resp, err := i.lookup(ctx, key, fingerprint)
	if resp != nil || err != nil {
		_ = i.store.Unlock(ctx, key)
		return resp, err
	}
	return nil, nil
}

func (i *Idempotency) lookup(ctx context.Context, key, fingerprint string) (*Response, error) {
	stored, err := i.store.Get(ctx, key)
	if err != nil {
		return nil, domain.Unavailable(err, "read idempotency key")
	}
	if stored == nil {
		return nil, nil
	}
	if stored.Fingerprint != fingerprint {
		return nil, ErrKeyReused
	}
	return &Response{Status: stored.Status, Result: stored.Result}, nil
}

// Finish stores resp under key and releases the lock.
func (i *Idempotency) Finish(ctx context.Context, key, fingerprint string, resp Response) error {
	defer func() { _ = i.store.Unlock(ctx, key) }()
	err := i.store.Set(ctx, key, redisadapter.IdempResponse{
		Status:      resp.Status,
		Fingerprint: fingerprint,
		Result:      resp.Result,
	}, i.ttl)
	if err != nil {
		return domain.Unavailable(err, "store idempotent response")
	}
	return nil
}

// Abandon releases the lock without storing anything, so the request can be
// retried under the same key.
func (i *Idempotency) Abandon(ctx context.Context, key string) error {
	if err := i.store.Unlock(ctx, key); err != nil {
		return domain.Unavailable(err, "unlock idempotency key")
	}
	return nil
}
