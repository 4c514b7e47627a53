package dupefy

import (
	"fmt"
	"math"
	"time"
)

// Params are the caller-supplied knobs of one analysis run.
type Params struct {
	Threshold       float64 // minimum similarity, (0,1]
	TimeWindowHours float64 // maximum capture-time gap, > 0
}

// maxTimeWindowHours is the largest window a time.Duration can hold.
var maxTimeWindowHours = float64(math.MaxInt64) / float64(time.Hour)

// DefaultParams returns the thresholds used when a caller supplies none.
func DefaultParams() Params {
	return Params{Threshold: DefaultThreshold, TimeWindowHours: DefaultTimeWindowHours}
}

// Validate rejects out-of-range values with *InvalidParameterError.
func (p Params) Validate() error {
	if math.IsNaN(p.Threshold) || p.Threshold <= 0 || p.Threshold > 1 {
		return invalidFloat("threshold", p.Threshold, "must be in (0,1]")
	}
	if math.IsNaN(p.TimeWindowHours) || math.IsInf(p.TimeWindowHours, 0) || p.TimeWindowHours <= 0 {
		return invalidFloat("time_window_hours", p.TimeWindowHours, "must be a positive number of hours")
	}
	if p.TimeWindowHours >= maxTimeWindowHours {
		return invalidFloat("time_window_hours", p.TimeWindowHours,
			fmt.Sprintf("must be below %.0f hours", maxTimeWindowHours))
	}
	return nil
}

// Window converts TimeWindowHours to a duration, saturating at the largest
// representable one.
func (p Params) Window() time.Duration {
	if p.TimeWindowHours >= maxTimeWindowHours {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(p.TimeWindowHours * float64(time.Hour))
}

// withinWindow reports whether two capture times are at most window apart.
// Unknown (zero) times never qualify.
func withinWindow(a, b time.Time, window time.Duration) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= window
}

// matcher decides whether two extracted images belong to the same subject.
type matcher struct {
	threshold float64
	window    time.Duration
}

func newMatcher(p Params) matcher {
	return matcher{threshold: p.Threshold, window: p.Window()}
}

// match requires both visual similarity and capture-time proximity.
func (m matcher) match(a, b *Features) bool {
	if !withinWindow(a.CapturedAt, b.CapturedAt, m.window) {
		return false
	}
	return Similarity(a.Fingerprint, b.Fingerprint) >= m.threshold
}
