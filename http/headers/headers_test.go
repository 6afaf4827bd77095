package headers

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaders(t *testing.T) {
	getHeaders := func() *Headers {
		return New().
			Add("Foo", "bar").
			Add("Hello", "World").
			Add("Lorem", "ipsum").
			Add("hello", "Pavlo")
	}

	t.Run("case-insensitive lookup", func(t *testing.T) {
		h := getHeaders()
		require.Equal(t, "World", h.Value("HELLO"))
		require.Equal(t, "bar", h.Value("foo"))
		value, found := h.Get("nope")
		require.False(t, found)
		require.Empty(t, value)
	})

	t.Run("duplicates preserved", func(t *testing.T) {
		h := getHeaders()
		require.Equal(t, []string{"World", "Pavlo"}, slices.Collect(h.Values("hello")))
	})

	t.Run("order and verbatim keys", func(t *testing.T) {
		var keys []string
		for key := range getHeaders().Pairs() {
			keys = append(keys, key)
		}

		require.Equal(t, []string{"Foo", "Hello", "Lorem", "hello"}, keys)
	})

	t.Run("clone outlives clear", func(t *testing.T) {
		h := getHeaders()
		clone := h.Clone()
		h.Clear()
		require.Zero(t, h.Len())
		require.Equal(t, 4, clone.Len())
		require.Equal(t, "ipsum", clone.Value("lorem"))
	})
}
