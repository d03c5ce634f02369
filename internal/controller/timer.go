package controller

import "time"

// Timer is the scheduler's re-armable tick source.
type Timer interface {
	C() <-chan time.Time
	Reset(d time.Duration)
	Stop()
}

type realTimer struct {
	t *time.Timer
}

// NewTimer returns a Timer backed by time.Timer, first firing after d.
func NewTimer(d time.Duration) Timer {
	return &realTimer{t: time.NewTimer(d)}
}

func (r *realTimer) C() <-chan time.Time { return r.t.C }

// Reset is only called after C has been drained, so no stale tick can leak.
func (r *realTimer) Reset(d time.Duration) { r.t.Reset(d) }

func (r *realTimer) Stop() { r.t.Stop() }
