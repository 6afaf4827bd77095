package uridecode

import (
	"bytes"

	"github.com/indigo-web/fastwsgi/http/status"
	"github.com/indigo-web/fastwsgi/internal/hexconv"
)

// Decode normalizes the URI by translating escaped characters into their true form,
// appending the result to buff. Passing src[:0] as buff decodes in place.
func Decode(src, buff []byte) ([]byte, error) {
	if bytes.IndexByte(src, '%') == -1 {
		return src, nil
	}

	for i := bytes.IndexByte(src, '%'); i != -1; i = bytes.IndexByte(src, '%') {
		if i+2 >= len(src) {
			return nil, status.ErrURIDecoding
		}

		hi, ok1 := hexconv.Parse(src[i+1])
		lo, ok2 := hexconv.Parse(src[i+2])
		if !ok1 || !ok2 {
			return nil, status.ErrURIDecoding
		}

		buff = append(buff, src[:i]...)
		buff = append(buff, hi<<4|lo)
		src = src[i+3:]
	}

	return append(buff, src...), nil
}
