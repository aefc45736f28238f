package service

import "time"

// Clock supplies "now" to the engine and the scheduler. Transitions and
// deadline checks all read through it so tests can drive time explicitly and
// a single tick observes one consistent instant.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// SystemClock returns a Clock backed by the wall clock.
func SystemClock() Clock {
	return systemClock{}
}
