package ports

import "time"

type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
