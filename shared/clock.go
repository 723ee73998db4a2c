package shared

import "time"

// Clock abstracts the wall clock so TTL logic can be tested with a
// controlled time source.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real wall clock.
func SystemClock() Clock { return systemClock{} }
