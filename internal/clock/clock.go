// Package clock abstracts time for components that poll hardware or cache
// health checks, so their timing behavior is testable without real sleeps.
package clock

import "time"

// Clock supplies the current time and sleeping.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time        { return time.Now() }
func (Real) Sleep(d time.Duration) { time.Sleep(d) }

// Poll calls fn every interval until it reports done, or until timeout
// elapses. It returns true if fn reported done within the deadline and
// false if the deadline passed first. fn runs at least once.
func Poll(c Clock, interval, timeout time.Duration, fn func() bool) bool {
	deadline := c.Now().Add(timeout)
	for {
		if fn() {
			return true
		}
		if !c.Now().Add(interval).Before(deadline) {
			return false
		}
		c.Sleep(interval)
	}
}

// Fake is a manually advanced clock for tests. Sleep advances the clock
// immediately instead of blocking.
type Fake struct {
	Current time.Time
	Slept   []time.Duration
}

// NewFake returns a fake clock starting at a fixed, arbitrary instant.
func NewFake() *Fake {
	return &Fake{Current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *Fake) Now() time.Time { return f.Current }

func (f *Fake) Sleep(d time.Duration) {
	f.Current = f.Current.Add(d)
	f.Slept = append(f.Slept, d)
}

// Advance moves the clock forward without recording a sleep.
func (f *Fake) Advance(d time.Duration) {
	f.Current = f.Current.Add(d)
}
