package server

type connState uint8

const (
	eReadingHeaders connState = iota + 1
	eReadingBody
	eDispatching
	eWritingResponse
	eKeepAlive
	eClose
)

func (s connState) String() string {
	switch s {
	case eReadingHeaders:
		return "reading headers"
	case eReadingBody:
		return "reading body"
	case eDispatching:
		return "dispatching"
	case eWritingResponse:
		return "writing response"
	case eKeepAlive:
		return "keep-alive"
	case eClose:
		return "close"
	default:
		return "unknown"
	}
}
