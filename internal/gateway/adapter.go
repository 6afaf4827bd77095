// Package gateway adapts parsed requests to the wsgi calling convention and renders what
// the application returns back into the wire format.
package gateway

import (
	"errors"
	"fmt"
	"io"

	"github.com/indigo-web/fastwsgi/config"
	"github.com/indigo-web/fastwsgi/http/headers"
	"github.com/indigo-web/fastwsgi/http/method"
	"github.com/indigo-web/fastwsgi/http/proto"
	"github.com/indigo-web/fastwsgi/http/status"
	"github.com/indigo-web/fastwsgi/internal/httpchars"
	"github.com/indigo-web/fastwsgi/internal/protocol/http1"
	"github.com/indigo-web/fastwsgi/internal/stash"
	"github.com/indigo-web/fastwsgi/internal/tcp"
	"github.com/indigo-web/fastwsgi/logging"
	"github.com/indigo-web/fastwsgi/wsgi"
	"github.com/indigo-web/utils/strcomp"
)

// Adapter serves requests of a single connection, one at a time.
type Adapter struct {
	app          wsgi.Application
	serializer   *http1.Serializer
	logger       *logging.Logger
	errors       *logging.LineWriter
	input        *stash.Reader
	retriever    stash.Retriever
	multiprocess bool
	maxDiscard   uint64
	serverName   string
	serverPort   string
	remoteAddr   string
	remotePort   string

	request  *http1.Request
	body     *http1.Body
	inputErr error
	persist  bool
	response response
}

// response is the state of the response to the current request.
type response struct {
	started   bool
	committed bool
	done      bool
	// failure is the first violation of the calling convention. It's sticky: the app may
	// ignore the error it was given, but the response is failed anyway.
	failure       error
	code          status.Code
	head          http1.ResponseHead
	headers       []headers.Header
	contentLength int64
	// held is the first piece of the body, buffered in order to find out whether the body
	// consists of a single piece, so its length can be sent.
	held    []byte
	holding bool
	sent    int64
}

func New(
	app wsgi.Application, client tcp.Client, serializer *http1.Serializer,
	cfg *config.Config, logger *logging.Logger,
) *Adapter {
	a := &Adapter{
		app:          app,
		serializer:   serializer,
		logger:       logger,
		errors:       logger.Writer(logging.Error),
		multiprocess: cfg.Workers.Count > 1,
		maxDiscard:   cfg.Body.MaxDiscard,
	}
	a.retriever = stash.RetrieverFunc(a.retrieve)
	a.input = stash.New(a.retriever)
	a.serverName, a.serverPort = serverAddr(cfg.Address.Host, client.Local())
	a.remoteAddr, a.remotePort = splitAddr(client.Remote())

	return a
}

// Serve calls the application and writes its response. persist tells whether the caller is
// ready to keep the connection alive after the response; the returned keepAlive is the final
// decision, which the client was also told about via the Connection header.
//
// When err is not nil, the connection must be closed. An application failing before anything
// was sent is answered with 500 Internal Server Error. Otherwise the response is left
// incomplete, so the client can tell it was aborted.
func (a *Adapter) Serve(
	request *http1.Request, body *http1.Body, persist bool,
) (keepAlive bool, err error) {
	a.reset(request, body, persist)

	if request.Expect100 {
		body.BeforeRead(func() error {
			// an interim response can't follow the final one
			if a.response.committed {
				return nil
			}

			return a.serializer.WriteContinue(request.Proto)
		})
	}

	env := a.environ(request)
	appBody, err := a.call(env)
	if err == nil {
		err = a.protect("body", func() error {
			return a.respond(appBody)
		})
	}

	a.errors.Flush()
	if closeErr := wsgi.Close(appBody); closeErr != nil {
		a.logger.WithError(closeErr).Warning("closing response body")
	}

	a.response.done = true
	if err == nil {
		return a.response.head.KeepAlive, nil
	}

	if errors.Is(err, ErrApplication) {
		a.logger.
			With("method", env.Get("REQUEST_METHOD")).
			With("path", env.Get("PATH_INFO")).
			WithError(err).
			Error("application failed")
	}

	if !a.response.committed {
		_ = a.serializer.WriteError(request.Proto, a.errorResponse(err))
	}

	return false, err
}

func (a *Adapter) reset(request *http1.Request, body *http1.Body, persist bool) {
	a.request = request
	a.body = body
	a.inputErr = nil
	a.persist = persist
	a.input.Reset(a.retriever)

	headersBuff := a.response.headers[:0]
	heldBuff := a.response.held[:0]
	a.response = response{
		headers:       headersBuff,
		held:          heldBuff,
		contentLength: -1,
	}
}

func (a *Adapter) retrieve() ([]byte, error) {
	piece, err := a.body.Retrieve()
	if err != nil && err != io.EOF {
		a.inputErr = err
	}

	return piece, err
}

// errorResponse picks the status of the error response. The request body failing to be
// read is reported as is, e.g. 413 for a chunked body crossing the limit, as the app most
// probably failed because of it.
func (a *Adapter) errorResponse(err error) error {
	var httpErr status.HTTPError
	if errors.As(a.inputErr, &httpErr) {
		return httpErr
	}

	if errors.As(err, &httpErr) {
		return httpErr
	}

	return status.ErrInternalServerError
}

func (a *Adapter) call(env *wsgi.Environ) (body wsgi.Body, err error) {
	err = a.protect("call", func() (err error) {
		body, err = a.app.Call(env, a.startResponse)
		var appErr *AppError
		if err != nil && !errors.As(err, &appErr) {
			err = &AppError{Op: "call", Err: err}
		}

		return err
	})
	if err == nil && body == nil {
		body = wsgi.Empty()
	}

	if err == nil {
		err = a.response.failure
	}

	return body, err
}

// protect recovers the application panics, turning them into errors.
func (a *Adapter) protect(op string, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &AppError{Op: op, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	return fn()
}

func (a *Adapter) fail(op string, err error) error {
	if a.response.failure == nil {
		a.response.failure = &AppError{Op: op, Err: err}
	}

	return a.response.failure
}

func (a *Adapter) startResponse(statusLine string, hdrs []wsgi.Header) (wsgi.WriteFunc, error) {
	r := &a.response
	if r.started {
		return nil, a.fail("start_response", errStartedTwice)
	}

	r.started = true

	code, ok := parseStatus(statusLine)
	if !ok {
		return nil, a.fail("start_response", fmt.Errorf("%w: %q", errBadStatus, statusLine))
	}

	r.code = code
	r.head.Status = statusLine

	for _, header := range hdrs {
		if !httpchars.IsToken(header.Key) {
			return nil, a.fail("start_response", fmt.Errorf("%w: %q", errBadHeaderName, header.Key))
		}

		if !httpchars.IsFieldValue(header.Value) {
			return nil, a.fail("start_response", fmt.Errorf("%w: %q", errBadHeaderValue, header.Key))
		}

		switch {
		case strcomp.EqualFold(header.Key, "content-length"):
			length, ok := parseLength(header.Value)
			if !ok || (r.contentLength != -1 && r.contentLength != length) {
				return nil, a.fail("start_response", fmt.Errorf("%w: %q", errBadLength, header.Value))
			}

			// rendered by the serializer according to the framing
			r.contentLength = length
			continue
		case isHopByHop(header.Key):
			a.logger.With("header", header.Key).Warning("dropping hop-by-hop header set by the application")
			continue
		}

		r.headers = append(r.headers, header)
	}

	return a.write, nil
}

// write is the legacy write() callable.
func (a *Adapter) write(data []byte) error {
	r := &a.response

	switch {
	case r.failure != nil:
		return r.failure
	case r.done:
		return a.fail("write", errResponseDone)
	case !r.committed:
		if err := a.commit(data, false); err != nil {
			return err
		}

		return nil
	default:
		return a.sendBody(data)
	}
}

// respond consumes the body returned by the application, committing the head as late as
// possible: with the first non-empty piece of a body of declared length, with the second
// one otherwise, or at the end of the body.
func (a *Adapter) respond(body wsgi.Body) error {
	r := &a.response

	for {
		if r.failure != nil {
			return r.failure
		}

		piece, err := body.Next()
		switch err {
		case nil, io.EOF:
		default:
			return a.fail("body", err)
		}

		last := err == io.EOF

		if r.committed {
			if err = a.sendBody(piece); err != nil {
				return err
			}
		} else {
			switch {
			case last:
				err = a.commit(a.withHeld(piece), true)
			case len(piece) == 0:
			case !r.started:
				err = a.fail("body", errNotStarted)
			case !r.holding && r.contentLength == -1:
				r.held = append(r.held[:0], piece...)
				r.holding = true
			default:
				err = a.commit(a.withHeld(piece), false)
			}

			if err != nil {
				return err
			}
		}

		if last {
			return a.finish()
		}
	}
}

func (a *Adapter) withHeld(piece []byte) []byte {
	r := &a.response
	if !r.holding {
		return piece
	}

	r.holding = false
	r.held = append(r.held, piece...)
	return r.held
}

// commit decides on the framing and writes the response head along with the first piece of
// the body. complete means the body consists of that piece only.
func (a *Adapter) commit(first []byte, complete bool) error {
	r := &a.response
	if !r.started {
		return a.fail("body", errNotStarted)
	}

	request := a.request
	head := &r.head
	head.Proto = request.Proto
	head.Headers = r.headers
	head.ContentLength = r.contentLength

	switch {
	case !status.AllowsBody(r.code):
		head.Framing = http1.FramingNone
		head.ContentLength = -1
	case request.Method == method.HEAD:
		// the length of the would-be body is kept, if the app told it
		head.Framing = http1.FramingNone
	case r.contentLength != -1:
		head.Framing = http1.FramingLength
	case complete:
		head.Framing = http1.FramingLength
		head.ContentLength = int64(len(first))
	case request.Proto == proto.HTTP11:
		head.Framing = http1.FramingChunked
	default:
		head.Framing = http1.FramingClose
	}

	head.KeepAlive = a.persist &&
		request.WantsKeepAlive() &&
		head.Framing.Unambiguous() &&
		a.body.Discardable(a.maxDiscard)

	var overflow bool
	if head.Framing == http1.FramingLength && int64(len(first)) > head.ContentLength {
		first, overflow = first[:head.ContentLength], true
	}

	r.committed = true
	if head.Framing != http1.FramingNone {
		r.sent = int64(len(first))
	}

	if err := a.serializer.WriteHead(*head, first); err != nil {
		return err
	}

	if overflow {
		return a.fail("body", errBodyTooLong)
	}

	return nil
}

func (a *Adapter) sendBody(data []byte) error {
	r := &a.response
	framing := r.head.Framing

	if len(data) == 0 || framing == http1.FramingNone {
		return nil
	}

	if framing == http1.FramingLength {
		if left := r.head.ContentLength - r.sent; int64(len(data)) > left {
			return a.fail("body", errBodyTooLong)
		}
	}

	r.sent += int64(len(data))
	return a.serializer.WriteBody(framing, data)
}

func (a *Adapter) finish() error {
	r := &a.response
	if r.head.Framing == http1.FramingLength && r.sent < r.head.ContentLength {
		return a.fail("body", errBodyTooShort)
	}

	return a.serializer.WriteEnd(r.head.Framing)
}

// parseStatus extracts the code of a status line like "200 OK". The reason phrase may be
// empty, but the space after the code may not be omitted. Codes below 200 are rejected.
func parseStatus(line string) (code status.Code, ok bool) {
	if len(line) < len("200 ") || line[3] != ' ' {
		return 0, false
	}

	for i := 0; i < 3; i++ {
		if line[i] < '0' || line[i] > '9' {
			return 0, false
		}

		code = code*10 + status.Code(line[i]-'0')
	}

	// informational responses are interim, the application must send a final one
	if code < 200 || !httpchars.IsFieldValue(line) {
		return 0, false
	}

	return code, true
}

func parseLength(value string) (length int64, ok bool) {
	const maxDigits = 18

	if len(value) == 0 || len(value) > maxDigits {
		return 0, false
	}

	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return 0, false
		}

		length = length*10 + int64(value[i]-'0')
	}

	return length, true
}

func isHopByHop(key string) bool {
	return strcomp.EqualFold(key, "connection") ||
		strcomp.EqualFold(key, "keep-alive") ||
		strcomp.EqualFold(key, "transfer-encoding")
}
