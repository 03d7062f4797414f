// Package netsim wraps the ordering API with bounded artificial latency.
// It models the network as an opaque async boundary for demos and
// interleaving experiments; correctness never depends on it.
package netsim

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/iudanet/docsync/internal/client"
	"github.com/iudanet/docsync/pkg/api"
)

// Latency delays every server call by a uniformly random interval in
// [min, max] before delegating to the wrapped Ordering.
type Latency struct {
	inner client.Ordering
	rng   *rand.Rand
	min   time.Duration
	max   time.Duration
	mu    sync.Mutex
}

// Wrap creates a latency wrapper with a seeded source, so a demo run is
// reproducible for a given seed.
func Wrap(inner client.Ordering, minDelay, maxDelay time.Duration, seed int64) *Latency {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Latency{
		inner: inner,
		min:   minDelay,
		max:   maxDelay,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// FetchSince delays, then delegates.
func (l *Latency) FetchSince(ctx context.Context, version int64) ([]api.LogEntry, error) {
	if err := l.delay(ctx); err != nil {
		return nil, err
	}
	return l.inner.FetchSince(ctx, version)
}

// Commit delays, then delegates.
func (l *Latency) Commit(ctx context.Context, req api.CommitRequest) (int64, error) {
	if err := l.delay(ctx); err != nil {
		return 0, err
	}
	return l.inner.Commit(ctx, req)
}

func (l *Latency) delay(ctx context.Context) error {
	l.mu.Lock()
	d := l.min
	if span := l.max - l.min; span > 0 {
		d += time.Duration(l.rng.Int63n(int64(span) + 1))
	}
	l.mu.Unlock()

	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
