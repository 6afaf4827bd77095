package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func pushSegment(t *testing.T, buff *Buffer, text string) {
	require.True(t, buff.Append([]byte(text)))
	require.Equal(t, text, string(buff.Finish()))
}

func TestBuffer(t *testing.T) {
	t.Run("no overflow", func(t *testing.T) {
		buff := New(10, 20)
		pushSegment(t, buff, "Hello")
		pushSegment(t, buff, "Here")
		require.Equal(t, 9, buff.Len())
	})

	t.Run("growth keeps old segments intact", func(t *testing.T) {
		buff := New(4, 20)
		require.True(t, buff.Append([]byte("Hello, ")))
		first := buff.Finish()
		pushSegment(t, buff, "World!")
		require.Equal(t, "Hello, ", string(first))
	})

	t.Run("streaming segment", func(t *testing.T) {
		buff := New(4, 20)
		require.True(t, buff.Append([]byte("Hel")))
		require.True(t, buff.Append([]byte("lo")))
		require.Equal(t, 5, buff.SegmentLength())
		require.Equal(t, "Hello", string(buff.Finish()))
		require.Zero(t, buff.SegmentLength())
	})

	t.Run("limit", func(t *testing.T) {
		buff := New(4, 8)
		require.True(t, buff.Append([]byte("12345678")))
		require.False(t, buff.Append([]byte("9")))
		buff.Clear()
		require.True(t, buff.Append([]byte("9")))
	})
}
