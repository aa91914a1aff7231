// Package progress turns discrete units of work into a monotonic integer percentage and
// rescales nested stages into sub-ranges of their parent.
package progress

import "sync"

// Func receives a progress percentage in [0,100].
type Func func(percent int)

// Nop discards progress reports.
func Nop(int) {}

// Tracker forwards reports to a sink, clamped to [0,100] and never lower than the
// previous report. Reports that would not advance the value are dropped.
type Tracker struct {
	mu   sync.Mutex
	sink Func
	last int
	sent bool
}

// NewTracker returns a Tracker that forwards to sink. A nil sink is allowed.
func NewTracker(sink Func) *Tracker {
	if sink == nil {
		sink = Nop
	}
	return &Tracker{sink: sink}
}

// Report forwards percent if it advances the tracker.
func (t *Tracker) Report(percent int) {
	percent = clamp(percent)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sent && percent <= t.last {
		return
	}
	t.last = percent
	t.sent = true
	t.sink(percent)
}

// Last returns the most recent value reported.
func (t *Tracker) Last() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Func exposes the tracker as a Func.
func (t *Tracker) Func() Func { return t.Report }

// Stage returns a Func that maps a sub-stage's own [0,100] onto [lo,hi] of the tracker.
func (t *Tracker) Stage(lo, hi int) Func {
	return Scale(t.Report, lo, hi)
}

// Scale maps [0,100] reports onto [lo,hi] of next.
func Scale(next Func, lo, hi int) Func {
	lo, hi = clamp(lo), clamp(hi)
	if hi < lo {
		hi = lo
	}
	return func(p int) {
		next(lo + clamp(p)*(hi-lo)/100)
	}
}

// Percent converts done out of total units into a percentage.
func Percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return clamp(done * 100 / total)
}

// Slot returns the sub-range owned by item i of n equally weighted items.
func Slot(i, n int) (lo, hi int) {
	if n <= 0 {
		return 0, 100
	}
	return i * 100 / n, (i + 1) * 100 / n
}

func clamp(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
