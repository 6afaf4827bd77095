package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTime(t *testing.T) {
	const (
		threshold = 200 * time.Millisecond
		// 1.5*Resolution avoids flaky failures caused by the scheduler being a bit late
		resolution = Resolution + Resolution/2
	)

	for range 2 * time.Second / threshold {
		now := Now()
		if time.Since(now) > resolution {
			require.Fail(t, "the timer is too slow")
		}

		time.Sleep(threshold)
	}
}

func TestDeadline(t *testing.T) {
	require.True(t, Deadline(0).IsZero())
	require.WithinDuration(t, time.Now().Add(time.Minute), Deadline(time.Minute), 2*Resolution)
}

func BenchmarkTimeNow(b *testing.B) {
	b.Run("time.Now()", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			time.Now().Add(5 * time.Second)
		}
	})

	b.Run("timer.Now()", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			Now().Add(5 * time.Second)
		}
	})
}
