package navigation

import (
	"math"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// preloadGate admits preloads under a rate and a concurrency bound.
// Excess preloads are dropped, never queued. A nil limiter or slots
// disables that bound.
type preloadGate struct {
	limiter *rate.Limiter
	slots   *semaphore.Weighted
	now     func() time.Time
}

func newPreloadGate(ratePerSecond float64, concurrency int, now func() time.Time) *preloadGate {
	g := &preloadGate{now: now}
	if ratePerSecond > 0 {
		// The bucket holds one second of budget and starts full.
		burst := int(math.Max(1, math.Floor(ratePerSecond)))
		g.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
	}
	if concurrency > 0 {
		g.slots = semaphore.NewWeighted(int64(concurrency))
	}
	return g
}

// enter reports whether a preload may start. A true result must be paired
// with leave.
func (g *preloadGate) enter() bool {
	if g.slots != nil && !g.slots.TryAcquire(1) {
		return false
	}
	if g.limiter != nil && !g.limiter.AllowN(g.now(), 1) {
		g.leave()
		return false
	}
	return true
}

func (g *preloadGate) leave() {
	if g.slots != nil {
		g.slots.Release(1)
	}
}
