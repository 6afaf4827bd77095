package http1

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/indigo-web/chunkedbody"
	"github.com/indigo-web/fastwsgi/config"
	"github.com/indigo-web/fastwsgi/http/status"
	"github.com/indigo-web/fastwsgi/internal/tcp/dummy"
	"github.com/stretchr/testify/require"
)

func getBody(client *dummy.Client, cfg config.Body) *Body {
	return NewBody(client, chunkedbody.NewParser(chunkedbody.DefaultSettings()), cfg)
}

func plainRequest(length int64) *Request {
	request := NewRequest(nil)
	request.ContentLength = length
	return request
}

func chunkedRequest() *Request {
	request := NewRequest(nil)
	request.Chunked = true
	return request
}

func readAll(body *Body) ([]byte, error) {
	var result []byte

	for {
		piece, err := body.Retrieve()
		result = append(result, piece...)
		switch err {
		case nil:
		case io.EOF:
			return result, nil
		default:
			return result, err
		}
	}
}

func TestBody_Plain(t *testing.T) {
	t.Run("single piece", func(t *testing.T) {
		client := dummy.NewMockClientString("Hello, world!").Once()
		body := getBody(client, config.Default().Body)
		body.Init(plainRequest(13))

		data, err := readAll(body)
		require.NoError(t, err)
		require.Equal(t, "Hello, world!", string(data))
		require.True(t, body.Done())
	})

	t.Run("many pieces", func(t *testing.T) {
		client := dummy.NewMockClientString("Hel", "lo, ", "world!").Once()
		body := getBody(client, config.Default().Body)
		body.Init(plainRequest(13))

		data, err := readAll(body)
		require.NoError(t, err)
		require.Equal(t, "Hello, world!", string(data))
	})

	t.Run("pipelined request stays in the client", func(t *testing.T) {
		next := "GET / HTTP/1.1\r\n\r\n"
		client := dummy.NewMockClientString("Hello" + next).Once()
		body := getBody(client, config.Default().Body)
		body.Init(plainRequest(5))

		data, err := readAll(body)
		require.NoError(t, err)
		require.Equal(t, "Hello", string(data))

		rest, err := client.Read()
		require.NoError(t, err)
		require.Equal(t, next, string(rest))
	})

	t.Run("no body", func(t *testing.T) {
		client := dummy.NewMockClientString("GET / HTTP/1.1\r\n\r\n").Once()
		body := getBody(client, config.Default().Body)
		body.Init(plainRequest(-1))

		require.True(t, body.Done())
		piece, err := body.Retrieve()
		require.Empty(t, piece)
		require.ErrorIs(t, err, io.EOF)
		require.False(t, client.Closed())
	})

	t.Run("client gone", func(t *testing.T) {
		client := dummy.NewMockClientString("Hello").Once()
		body := getBody(client, config.Default().Body)
		body.Init(plainRequest(13))

		data, err := readAll(body)
		require.ErrorIs(t, err, io.ErrUnexpectedEOF)
		require.Equal(t, "Hello", string(data))

		// the failure is final
		_, err = body.Retrieve()
		require.ErrorIs(t, err, io.EOF)
	})
}

func TestBody_Chunked(t *testing.T) {
	t.Run("single piece", func(t *testing.T) {
		client := dummy.NewMockClientString("5\r\nHello\r\n7\r\n, World\r\n0\r\n\r\n").Once()
		body := getBody(client, config.Default().Body)
		body.Init(chunkedRequest())

		data, err := readAll(body)
		require.NoError(t, err)
		require.Equal(t, "Hello, World", string(data))
	})

	t.Run("byte by byte", func(t *testing.T) {
		raw := "5\r\nHello\r\n7\r\n, World\r\n0\r\n\r\n"
		pieces := make([]string, len(raw))
		for i := range raw {
			pieces[i] = raw[i : i+1]
		}

		client := dummy.NewMockClientString(pieces...).Once()
		body := getBody(client, config.Default().Body)
		body.Init(chunkedRequest())

		data, err := readAll(body)
		require.NoError(t, err)
		require.Equal(t, "Hello, World", string(data))
	})

	t.Run("pipelined request stays in the client", func(t *testing.T) {
		next := "GET / HTTP/1.1\r\n\r\n"
		client := dummy.NewMockClientString("5\r\nHello\r\n0\r\n\r\n" + next).Once()
		body := getBody(client, config.Default().Body)
		body.Init(chunkedRequest())

		data, err := readAll(body)
		require.NoError(t, err)
		require.Equal(t, "Hello", string(data))

		rest, err := client.Read()
		require.NoError(t, err)
		require.Equal(t, next, string(rest))
	})

	t.Run("trailer", func(t *testing.T) {
		for _, announced := range []bool{true, false} {
			next := "GET / HTTP/1.1\r\n\r\n"
			client := dummy.NewMockClientString("5\r\nHello\r\n0\r\nX-Sum: 1\r\n\r\n" + next).Once()
			body := getBody(client, config.Default().Body)
			request := chunkedRequest()
			request.HasTrailer = announced
			body.Init(request)

			data, err := readAll(body)
			require.NoError(t, err, "announced: %t", announced)
			require.Equal(t, "Hello", string(data))

			rest, err := client.Read()
			require.NoError(t, err)
			require.Equal(t, next, string(rest))
		}
	})

	t.Run("malformed", func(t *testing.T) {
		client := dummy.NewMockClientString("5\r\nHello\r\nzz\r\n").Once()
		body := getBody(client, config.Default().Body)
		body.Init(chunkedRequest())

		_, err := readAll(body)
		require.ErrorIs(t, err, status.ErrBadChunk)
	})

	t.Run("too large", func(t *testing.T) {
		cfg := config.Default().Body
		cfg.MaxSize = 8
		client := dummy.NewMockClientString("5\r\nHello\r\n5\r\nWorld\r\n0\r\n\r\n").Once()
		body := getBody(client, cfg)
		body.Init(chunkedRequest())

		_, err := readAll(body)
		require.ErrorIs(t, err, status.ErrBodyTooLarge)
	})

	t.Run("client gone", func(t *testing.T) {
		client := dummy.NewMockClientString("5\r\nHel").Once()
		body := getBody(client, config.Default().Body)
		body.Init(chunkedRequest())

		_, err := readAll(body)
		require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}

func TestBody_BeforeRead(t *testing.T) {
	t.Run("called once before the first read", func(t *testing.T) {
		client := dummy.NewMockClientString("Hel", "lo").Once()
		body := getBody(client, config.Default().Body)
		body.Init(plainRequest(5))

		var calls int
		body.BeforeRead(func() error {
			calls++
			return nil
		})
		require.Zero(t, calls)

		data, err := readAll(body)
		require.NoError(t, err)
		require.Equal(t, "Hello", string(data))
		require.Equal(t, 1, calls)
	})

	t.Run("not called without body", func(t *testing.T) {
		body := getBody(dummy.NewMockClient().Once(), config.Default().Body)
		body.Init(plainRequest(0))

		var called bool
		body.BeforeRead(func() error {
			called = true
			return nil
		})

		_, err := body.Retrieve()
		require.ErrorIs(t, err, io.EOF)
		require.False(t, called)
	})

	t.Run("error is propagated", func(t *testing.T) {
		hookErr := errors.New("write failed")
		body := getBody(dummy.NewMockClientString("Hello").Once(), config.Default().Body)
		body.Init(plainRequest(5))
		body.BeforeRead(func() error {
			return hookErr
		})

		_, err := body.Retrieve()
		require.ErrorIs(t, err, hookErr)
	})

	t.Run("reset by init", func(t *testing.T) {
		body := getBody(dummy.NewMockClientString("Hello").Once(), config.Default().Body)
		body.Init(plainRequest(5))
		body.BeforeRead(func() error {
			t.Fatal("must not be called")
			return nil
		})

		body.Init(plainRequest(5))
		data, err := readAll(body)
		require.NoError(t, err)
		require.Equal(t, "Hello", string(data))
	})
}

func TestBody_Discard(t *testing.T) {
	t.Run("within limit", func(t *testing.T) {
		next := "GET / HTTP/1.1\r\n\r\n"
		client := dummy.NewMockClientString("Hello, ", "world!"+next).Once()
		body := getBody(client, config.Default().Body)
		body.Init(plainRequest(13))

		require.NoError(t, body.Discard(1024))
		require.True(t, body.Done())

		rest, err := client.Read()
		require.NoError(t, err)
		require.Equal(t, next, string(rest))
	})

	t.Run("partially read", func(t *testing.T) {
		client := dummy.NewMockClientString("Hello, ", "world!").Once()
		body := getBody(client, config.Default().Body)
		body.Init(plainRequest(13))

		piece, err := body.Retrieve()
		require.NoError(t, err)
		require.Equal(t, "Hello, ", string(piece))
		require.NoError(t, body.Discard(6))
	})

	t.Run("declared length above limit", func(t *testing.T) {
		client := dummy.NewMockClientString(strings.Repeat("a", 100)).Once()
		body := getBody(client, config.Default().Body)
		body.Init(plainRequest(100))

		require.ErrorIs(t, body.Discard(99), ErrDiscardLimit)
	})

	t.Run("chunked above limit", func(t *testing.T) {
		client := dummy.NewMockClientString("5\r\nHello\r\n5\r\nWorld\r\n0\r\n\r\n").Once()
		body := getBody(client, config.Default().Body)
		body.Init(chunkedRequest())

		require.ErrorIs(t, body.Discard(7), ErrDiscardLimit)
	})

	t.Run("continue never sent", func(t *testing.T) {
		client := dummy.NewMockClientString("Hello").Once()
		body := getBody(client, config.Default().Body)
		body.Init(plainRequest(5))
		body.BeforeRead(func() error { return nil })

		require.ErrorIs(t, body.Discard(1024), ErrDiscardLimit)
	})

	t.Run("nothing to discard", func(t *testing.T) {
		body := getBody(dummy.NewMockClient().Once(), config.Default().Body)
		body.Init(plainRequest(-1))
		require.NoError(t, body.Discard(0))
	})
}

func TestBody_Discardable(t *testing.T) {
	client := dummy.NewMockClientString("Hello").Once()
	body := getBody(client, config.Default().Body)

	body.Init(plainRequest(-1))
	require.True(t, body.Discardable(0))

	body.Init(plainRequest(5))
	require.True(t, body.Discardable(5))
	require.False(t, body.Discardable(4))

	body.BeforeRead(func() error { return nil })
	require.False(t, body.Discardable(1024))

	body.Init(chunkedRequest())
	require.True(t, body.Discardable(0))
}
