package worker

import (
	"time"

	"github.com/sethvargo/go-retry"
)

// maxEscalations bounds the doubling steps; the cap is reached long before.
const maxEscalations = 32

// Policy decides a worker's wake interval from its consecutive failures.
// Below Threshold the worker sleeps Base. From Threshold on it backs off
// exponentially starting at 2×Base, never exceeding Cap. A Cap below Base
// is raised to Base, so backing off never shortens the interval.
type Policy struct {
	Base      time.Duration
	Cap       time.Duration
	Threshold int
}

// Backoff reports whether failures put the worker in the backoff state.
func (p Policy) Backoff(failures int) bool {
	return p.Threshold > 0 && failures >= p.Threshold
}

// Interval returns the wake interval after the given consecutive failures.
func (p Policy) Interval(failures int) time.Duration {
	if p.Base <= 0 {
		return time.Second
	}
	if !p.Backoff(failures) {
		return p.Base
	}

	var b retry.Backoff = retry.NewExponential(2 * p.Base)
	if p.Cap > 0 {
		b = retry.WithCappedDuration(max(p.Cap, p.Base), b)
	}

	steps := failures - p.Threshold
	if steps > maxEscalations {
		steps = maxEscalations
	}

	var d time.Duration
	for i := 0; i <= steps; i++ {
		d, _ = b.Next()
	}
	return d
}
