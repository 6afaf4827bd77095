package wsgi

import "io"

// Body is the response body. Next returns the body piece by piece, io.EOF marks the end
// and may come along with the last piece. If the body implements io.Closer, the server
// always closes it once the response is done, whether it was sent or not.
type Body interface {
	Next() ([]byte, error)
}

// Close closes the body if it implements io.Closer.
func Close(body Body) error {
	if closer, ok := body.(io.Closer); ok {
		return closer.Close()
	}

	return nil
}

type chunks struct {
	pieces [][]byte
}

// Chunks returns a body consisting of the passed pieces.
func Chunks(pieces ...[]byte) Body {
	return &chunks{pieces: pieces}
}

func (c *chunks) Next() ([]byte, error) {
	if len(c.pieces) == 0 {
		return nil, io.EOF
	}

	piece := c.pieces[0]
	c.pieces = c.pieces[1:]
	if len(c.pieces) == 0 {
		return piece, io.EOF
	}

	return piece, nil
}

// String returns a body consisting of a single piece.
func String(s string) Body {
	return Chunks([]byte(s))
}

// Empty returns a body with no data.
func Empty() Body {
	return Chunks()
}

const readerBodyBufferSize = 32 * 1024

type readerBody struct {
	reader io.Reader
	buff   []byte
	err    error
}

// ReaderBody streams the body from the reader. The reader is closed along with the body,
// if it implements io.Closer.
func ReaderBody(r io.Reader) Body {
	return &readerBody{reader: r}
}

func (r *readerBody) Next() ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}

	if r.buff == nil {
		r.buff = make([]byte, readerBodyBufferSize)
	}

	for {
		n, err := r.reader.Read(r.buff)
		switch {
		case err == nil && n == 0:
			continue
		case err == nil:
			return r.buff[:n], nil
		case err == io.EOF:
			r.err = err
			return r.buff[:n], err
		default:
			// the data goes first, the error is returned by the next call
			r.err = err
			if n > 0 {
				return r.buff[:n], nil
			}

			return nil, err
		}
	}
}

func (r *readerBody) Close() error {
	if closer, ok := r.reader.(io.Closer); ok {
		return closer.Close()
	}

	return nil
}
