// Package clock implements domain/service.Clock and domain/service.Random
// against stdlib time and math/rand (spec §2 "Clock & Random"), the same
// math/rand-for-jitter idiom used by the teacher's retry/backoff code in
// internal/jobs/orchestrator/engine.go.
package clock

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/Pimboto/DarkStackBackend/internal/domain/service"
)

// System is a real-time Clock: Now is wall-clock time, Sleep blocks for the
// requested duration or returns early with ctx.Err() if ctx is cancelled —
// the one cancellable suspension point pacing/post code relies on (spec §5
// "Sleeps must be cancellable, not fixed").
type System struct{}

// New returns a System clock.
func New() System { return System{} }

func (System) Now() time.Time { return time.Now() }

func (System) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ service.Clock = System{}

// Rand is a concurrency-safe uniform integer source backed by math/rand,
// seeded once at process start (spec §4.5 "Determinism: both strategies
// draw from an injected random source" — production draws from this, tests
// inject a seeded/sequence fake instead).
type Rand struct {
	mu  sync.Mutex
	src *rand.Rand
}

// NewRand returns a Rand seeded from seed. Two Rands built from the same
// seed and driven with the same call sequence produce identical draws,
// which is what lets PacingPlanner be replayed in tests with a fixed seed.
func NewRand(seed int64) *Rand {
	return &Rand{src: rand.New(rand.NewSource(seed))}
}

// IntRange returns a uniform draw in [min, max] inclusive. If min > max the
// arguments are swapped rather than panicking, since PacingPlanner's ranges
// are caller-supplied and not otherwise validated.
func (r *Rand) IntRange(min, max int) int {
	if min > max {
		min, max = max, min
	}
	if min == max {
		return min
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return min + r.src.Intn(max-min+1)
}

var _ service.Random = (*Rand)(nil)
