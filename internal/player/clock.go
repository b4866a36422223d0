package player

import (
	"fmt"
	"sync"
	"time"
)

// Clock schedules the periodic countdown callback.
type Clock interface {
	// Every calls fn once per interval until stop is called. stop is idempotent and
	// may be called from inside fn.
	Every(interval time.Duration, fn func()) (stop func())
}

// SystemClock runs callbacks on a time.Ticker in its own goroutine.
type SystemClock struct{}

func (SystemClock) Every(interval time.Duration, fn func()) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

// FormatClock renders whole seconds as m:ss.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
