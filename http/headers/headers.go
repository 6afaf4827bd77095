package headers

import (
	"iter"
	"strings"

	"github.com/indigo-web/utils/strcomp"
)

type Header struct {
	Key, Value string
}

// Headers is an ordered storage of header fields. Keys are kept verbatim, lookups are
// case-insensitive. Duplicates are preserved in their original order. Linear search is
// used instead of a map, as a request rarely carries more than a couple dozens of fields.
type Headers struct {
	pairs []Header
}

func New() *Headers {
	return new(Headers)
}

// NewPrealloc returns an instance with pre-allocated underlying storage.
func NewPrealloc(n int) *Headers {
	return &Headers{
		pairs: make([]Header, 0, n),
	}
}

// Add appends a new pair, never overriding existing ones.
func (h *Headers) Add(key, value string) *Headers {
	h.pairs = append(h.pairs, Header{
		Key:   key,
		Value: value,
	})
	return h
}

// Value returns the first value corresponding to the key. Otherwise, empty string is returned.
func (h *Headers) Value(key string) string {
	value, _ := h.Get(key)
	return value
}

// Get returns the first value and a bool, indicating whether the value was found.
func (h *Headers) Get(key string) (value string, found bool) {
	for _, pair := range h.pairs {
		if strcomp.EqualFold(key, pair.Key) {
			return pair.Value, true
		}
	}

	return "", false
}

// Values returns an iterator over all values of the key.
func (h *Headers) Values(key string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, pair := range h.pairs {
			if strcomp.EqualFold(key, pair.Key) && !yield(pair.Value) {
				return
			}
		}
	}
}

// Pairs returns an iterator over all the pairs in their original order.
func (h *Headers) Pairs() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, pair := range h.pairs {
			if !yield(pair.Key, pair.Value) {
				return
			}
		}
	}
}

// Len returns a number of stored pairs.
func (h *Headers) Len() int {
	return len(h.pairs)
}

// Clear all the entries. The allocated space isn't freed.
func (h *Headers) Clear() {
	h.pairs = h.pairs[:0]
}

// Clone returns a deep copy that outlives the request the headers belong to.
func (h *Headers) Clone() *Headers {
	pairs := make([]Header, len(h.pairs))
	for i, pair := range h.pairs {
		pairs[i] = Header{strings.Clone(pair.Key), strings.Clone(pair.Value)}
	}

	return &Headers{pairs: pairs}
}
