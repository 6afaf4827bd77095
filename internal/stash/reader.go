package stash

// Retriever hands out the data piece by piece. The last piece may come along with io.EOF.
type Retriever interface {
	Retrieve() ([]byte, error)
}

// RetrieverFunc adapts a function to the Retriever.
type RetrieverFunc func() ([]byte, error)

func (r RetrieverFunc) Retrieve() ([]byte, error) {
	return r()
}

// Reader covers Retriever in the manner, so it implements the io.Reader
type Reader struct {
	source  Retriever
	pending []byte
	error   error
}

func New(src Retriever) *Reader {
	return &Reader{source: src}
}

func (r *Reader) Read(b []byte) (n int, err error) {
	if len(b) == 0 {
		return 0, nil
	}

	for len(r.pending) == 0 && r.error == nil {
		r.refill()
	}

	n = copy(b, r.pending)
	r.pending = r.pending[n:]

	if len(r.pending) == 0 && r.error != nil {
		err = r.error
	}

	return n, err
}

func (r *Reader) refill() {
	r.pending, r.error = r.source.Retrieve()
}

func (r *Reader) Reset(src Retriever) {
	r.source = src
	r.pending = nil
	r.error = nil
}
