package protocol

type Parser interface {
	Parse(b []byte) (state RequestState, extra []byte, err error)
}

// RequestState represents the state of the request's parsing
type RequestState uint8

const (
	Pending RequestState = iota + 1
	HeadersCompleted
	Error
)

func (r RequestState) String() string {
	switch r {
	case Pending:
		return "Pending"
	case HeadersCompleted:
		return "HeadersCompleted"
	case Error:
		return "Error"
	default:
		return "RequestState(?)"
	}
}

// Writer is the sink the responses are serialized into.
type Writer interface {
	Write([]byte) error
}
