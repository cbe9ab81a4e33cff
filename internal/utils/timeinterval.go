package utils

import (
	"sync"
	"time"
)

// IntervalTimer runs a function on a fixed period until stopped.
type IntervalTimer interface {
	// Stop halts the timer. Safe to call more than once.
	Stop()
}

type intervalTimer struct {
	quit chan struct{}
	once sync.Once
}

func (t *intervalTimer) Stop() {
	t.once.Do(func() { close(t.quit) })
}

// SetIntervalTimer invokes fn every interval on its own goroutine. The
// goroutine exits when Stop is called.
func SetIntervalTimer(interval time.Duration, fn func()) IntervalTimer {
	t := &intervalTimer{quit: make(chan struct{})}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-t.quit:
				return
			}
		}
	}()
	return t
}
