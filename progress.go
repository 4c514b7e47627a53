package dupefy

import "sync"

// Phase boundaries of a run, in percent.
const (
	progressStart     = 0
	progressExtracted = 30
	progressClustered = 90
	progressDone      = 100
)

// ProgressReporter receives progress notifications from a run. Percent is
// in [0,100] and never decreases within one run. Implementations must not
// assume they can influence the run.
type ProgressReporter interface {
	Report(percent int, message string)
}

// ReporterFunc adapts a plain function to ProgressReporter.
type ReporterFunc func(percent int, message string)

// Report calls f.
func (f ReporterFunc) Report(percent int, message string) { f(percent, message) }

// NopReporter discards every notification.
type NopReporter struct{}

// Report does nothing.
func (NopReporter) Report(int, string) {}

// ScaleReporter maps a 0..100 progress stream onto [from,to] of r.
// Transports use it to put the engine's progress after their own phases.
func ScaleReporter(r ProgressReporter, from, to int) ProgressReporter {
	if r == nil {
		return NopReporter{}
	}
	return ReporterFunc(func(percent int, message string) {
		r.Report(from+(to-from)*clampPercent(percent)/100, message)
	})
}

// MonotonicReporter wraps r so that percent is clamped to [0,100] and calls
// that would move backwards are raised to the last reported value. It is
// safe for concurrent use.
func MonotonicReporter(r ProgressReporter) ProgressReporter {
	if r == nil {
		r = NopReporter{}
	}
	if m, ok := r.(*monotonic); ok {
		return m
	}
	return &monotonic{next: r, last: -1}
}

type monotonic struct {
	mu   sync.Mutex
	next ProgressReporter
	last int
}

func (m *monotonic) Report(percent int, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	percent = clampPercent(percent)
	if percent < m.last {
		percent = m.last
	}
	m.last = percent
	m.next.Report(percent, message)
}

func clampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// phaseProgress maps done/total of a phase onto [from,to].
func phaseProgress(from, to, done, total int) int {
	if total <= 0 {
		return to
	}
	return from + (to-from)*done/total
}
