package timer

import (
	"sync/atomic"
	"time"
)

// clock contains the unix-time in milliseconds updated every Resolution.
var clock = new(atomic.Int64)

// Resolution is the frequency at which time is updated. 500ms are precise enough for
// setting I/O deadlines, which is the only purpose of the package.
const Resolution = 500 * time.Millisecond

// Now returns the coarse current time.
func Now() time.Time {
	millis := clock.Load()
	return time.Unix(millis/1000, (millis%1000)*1e6)
}

// Deadline returns the coarse time after d from now. Zero d means no deadline.
func Deadline(d time.Duration) time.Time {
	if d == 0 {
		return time.Time{}
	}

	return Now().Add(d)
}

func init() {
	// there is no guarantee that the goroutine will be started immediately, so the clock
	// is set synchronously first.
	clock.Store(time.Now().UnixMilli())

	go func() {
		for {
			time.Sleep(Resolution)
			clock.Store(time.Now().UnixMilli())
		}
	}()
}
