// Package clock provides an injectable source of the current time, so that
// base expiration logic can be exercised deterministically in tests.
package clock

import "time"

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Real returns the system clock.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed is a Clock that always returns the same instant. Useful for tests
// that need deterministic base ages.
type Fixed time.Time

func (f Fixed) Now() time.Time {
	return time.Time(f)
}
