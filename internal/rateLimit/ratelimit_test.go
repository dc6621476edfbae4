package rateLimit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	"github.com/abhayrajpersonal/Turfex-sub001/internal/observability"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/rateLimit"
)

type fakeCounter struct {
	counts map[string]int64
	err    error
}

func (f *fakeCounter) IncrWindow(_ context.Context, key string, _ time.Duration) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.counts[key]++
	return f.counts[key], nil
}

func TestAllow_BlocksAfterRate(t *testing.T) {
	base, _ := test.NewNullLogger()
	counter := &fakeCounter{counts: map[string]int64{}}
	rl := rateLimit.NewRateLimiter(counter, observability.NewLogrusLogger(base))

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(context.Background(), "ip:1.2.3.4", 3, time.Minute))
	}
	assert.False(t, rl.Allow(context.Background(), "ip:1.2.3.4", 3, time.Minute))
	assert.True(t, rl.Allow(context.Background(), "ip:5.6.7.8", 3, time.Minute))
	assert.Equal(t, int64(4), counter.counts["rl:ip:1.2.3.4"])
}

func TestAllow_FailsOpen(t *testing.T) {
	base, hook := test.NewNullLogger()
	rl := rateLimit.NewRateLimiter(&fakeCounter{err: errors.New("connection refused")}, observability.NewLogrusLogger(base))

	assert.True(t, rl.Allow(context.Background(), "ip:1.2.3.4", 1, time.Minute))
	if assert.NotNil(t, hook.LastEntry()) {
		assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	}
}

func TestAllow_NilLimiter(t *testing.T) {
	var rl *rateLimit.RateLimiter
	assert.True(t, rl.Allow(context.Background(), "anything", 1, time.Minute))
}
