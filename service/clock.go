package service

import "time"

// Timer is the cancellable handle a Clock hands back. Stop reports
// whether the timer was still pending.
type Timer interface {
	Stop() bool
}

// Clock abstracts wall time so deadline behavior is testable without
// real delays.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type realClock struct{}

// NewClock returns the wall clock.
func NewClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
