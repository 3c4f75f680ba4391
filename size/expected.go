package size

import (
	"sync"
	"sync/atomic"
)

// Expected holds the artifact's total byte size once it is known.
// The value is published at most once and never changes afterwards.
// The zero value is ready to use.
type Expected struct {
	once     sync.Once
	value    atomic.Int64
	known    atomic.Bool
	initOnce sync.Once
	resolved chan struct{}
}

func (e *Expected) init() {
	e.initOnce.Do(func() {
		e.resolved = make(chan struct{})
	})
}

// Set publishes n. Only the first call has an effect; it reports whether
// this call set the value. Negative sizes are rejected.
func (e *Expected) Set(n int64) bool {
	if n < 0 {
		return false
	}
	e.init()
	set := false
	e.once.Do(func() {
		e.value.Store(n)
		e.known.Store(true)
		close(e.resolved)
		set = true
	})
	return set
}

// Get returns the size and whether it has been resolved.
func (e *Expected) Get() (int64, bool) {
	if !e.known.Load() {
		return 0, false
	}
	return e.value.Load(), true
}

// Resolved returns a channel closed once the size is known.
// It never closes if resolution fails.
func (e *Expected) Resolved() <-chan struct{} {
	e.init()
	return e.resolved
}
