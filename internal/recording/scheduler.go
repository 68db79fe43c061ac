package recording

import (
	"time"

	"k8s.io/utils/clock"
)

// DefaultMinInterval is the minimum spacing between accepted frames.
const DefaultMinInterval = 20 * time.Millisecond

// Decision is the outcome of evaluating one capture.
type Decision struct {
	Accepted bool
	// Delay is the time since the previously accepted frame, on the session clock.
	Delay time.Duration
	// Timestamp is the session timestamp the capture was evaluated at.
	Timestamp time.Duration
}

// Scheduler decides which captures become frames.
//
// Session timestamps are durations on the remote session's clock. Captures
// without a native timestamp are projected onto that clock from the local
// wall clock, so both trigger kinds produce comparable delays.
//
// Scheduler is not safe for concurrent use.
type Scheduler struct {
	clock       clock.PassiveClock
	minInterval time.Duration

	started     bool
	lastSession time.Duration
	lastWall    time.Time
}

// NewScheduler creates a Scheduler. A non-positive minInterval selects
// DefaultMinInterval; a nil clock selects the real clock.
func NewScheduler(minInterval time.Duration, clk clock.PassiveClock) *Scheduler {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Scheduler{clock: clk, minInterval: minInterval}
}

// MinInterval returns the configured minimum frame spacing.
func (s *Scheduler) MinInterval() time.Duration {
	return s.minInterval
}

// Evaluate decides on a capture that carries a native session timestamp.
func (s *Scheduler) Evaluate(ts time.Duration) Decision {
	return s.evaluate(ts, true)
}

// EvaluateProjected decides on a capture with no session timestamp of its
// own; the timestamp is projected from the wall clock.
func (s *Scheduler) EvaluateProjected() Decision {
	return s.evaluate(0, false)
}

func (s *Scheduler) evaluate(ts time.Duration, native bool) Decision {
	now := s.clock.Now()

	if !s.started {
		if !native {
			ts = time.Duration(now.UnixNano())
		}
		s.accept(ts, now)
		return Decision{Accepted: true, Timestamp: ts}
	}

	if !native {
		ts = ProjectTimestamp(now, s.lastWall, s.lastSession)
	}

	// Out-of-order timestamps give a zero or negative delay and fall
	// through here as well.
	delay := ts - s.lastSession
	if delay < s.minInterval {
		return Decision{Delay: delay, Timestamp: ts}
	}

	s.accept(ts, now)
	return Decision{Accepted: true, Delay: delay, Timestamp: ts}
}

func (s *Scheduler) accept(ts time.Duration, now time.Time) {
	s.started = true
	s.lastSession = ts
	s.lastWall = now
}

// ProjectTimestamp maps a wall-clock instant onto the session clock, using
// the last accepted frame as the reference point for both domains.
func ProjectTimestamp(now, lastWall time.Time, lastSession time.Duration) time.Duration {
	return lastSession + now.Sub(lastWall)
}
