package loadstate

import "time"

// Timer is a stoppable one-shot timer.
type Timer interface {
	Stop() bool
}

// Clock schedules the watchdog.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock schedules on real time.
var SystemClock Clock = systemClock{}
