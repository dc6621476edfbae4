package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempPrefix = "idemp:"
	lockPrefix  = "idemp:lock:"
)

type Idempotency struct {
	client *redis.Client
}

func NewIdempotency(client *redis.Client) *Idempotency {
	return &Idempotency{client: client}
}

type IdempResponse struct {
	Status      int    `json:"status"`
	Fingerprint string `json:"fingerprint"`
	Result      []byte `json:"result"`
}

// Get returns nil, nil when nothing is stored under key.
func (i *Idempotency) Get(ctx context.Context, key string) (*IdempResponse, error) {
	val, err := i.client.Get(ctx, idempPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var resp IdempResponse
	if err := json.Unmarshal(val, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp IdempResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return i.client.Set(ctx, idempPrefix+key, data, ttl).Err()
}

// Lock marks key as in flight. It reports false if another request holds it.
func (i *Idempotency) Lock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return i.client.SetNX(ctx, lockPrefix+key, 1, ttl).Result()
}

func (i *Idempotency) Unlock(ctx context.Context, key string) error {
	return i.client.Del(ctx, lockPrefix+key).Err()
}
