package http1

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/indigo-web/chunkedbody"
	"github.com/indigo-web/fastwsgi/http/headers"
	"github.com/indigo-web/fastwsgi/http/proto"
	"github.com/indigo-web/fastwsgi/http/status"
	"github.com/stretchr/testify/require"
)

type writerMock struct {
	writes []string
}

func (w *writerMock) Write(b []byte) error {
	w.writes = append(w.writes, string(b))
	return nil
}

func (w *writerMock) String() string {
	return strings.Join(w.writes, "")
}

func getSerializer(defaultHeaders map[string]string) (*Serializer, *writerMock) {
	writer := new(writerMock)
	return NewSerializer(make([]byte, 0, 128), defaultHeaders, writer), writer
}

func TestSerializer_WriteHead(t *testing.T) {
	t.Run("content length", func(t *testing.T) {
		serializer, writer := getSerializer(nil)
		err := serializer.WriteHead(ResponseHead{
			Proto:         proto.HTTP11,
			Status:        "200 OK",
			Headers:       []headers.Header{{Key: "Content-Type", Value: "text/plain"}},
			Framing:       FramingLength,
			ContentLength: 13,
			KeepAlive:     true,
		}, []byte("Hello, world!"))
		require.NoError(t, err)

		// the head and the first piece of the body go in a single write
		require.Equal(t, []string{
			"HTTP/1.1 200 OK\r\n" +
				"Content-Type: text/plain\r\n" +
				"Content-Length: 13\r\n" +
				"Connection: keep-alive\r\n" +
				"\r\n" +
				"Hello, world!",
		}, writer.writes)
	})

	t.Run("close-delimited", func(t *testing.T) {
		serializer, writer := getSerializer(nil)
		head := ResponseHead{
			Proto:         proto.HTTP10,
			Status:        "200 OK",
			Framing:       FramingClose,
			ContentLength: -1,
		}
		require.NoError(t, serializer.WriteHead(head, []byte("Hello, ")))
		require.NoError(t, serializer.WriteBody(head.Framing, []byte("world!")))
		require.NoError(t, serializer.WriteEnd(head.Framing))

		require.Equal(t,
			"HTTP/1.0 200 OK\r\nConnection: close\r\n\r\nHello, world!",
			writer.String(),
		)
	})

	t.Run("chunked", func(t *testing.T) {
		serializer, writer := getSerializer(nil)
		head := ResponseHead{
			Proto:         proto.HTTP11,
			Status:        "200 OK",
			Framing:       FramingChunked,
			ContentLength: -1,
			KeepAlive:     true,
		}
		require.NoError(t, serializer.WriteHead(head, []byte("Hello")))
		require.NoError(t, serializer.WriteBody(head.Framing, nil))
		require.NoError(t, serializer.WriteBody(head.Framing, []byte(", World")))
		require.NoError(t, serializer.WriteEnd(head.Framing))

		response := writer.String()
		const expectedHead = "HTTP/1.1 200 OK\r\n" +
			"Transfer-Encoding: chunked\r\n" +
			"Connection: keep-alive\r\n" +
			"\r\n"
		require.True(t, strings.HasPrefix(response, expectedHead))

		parser := chunkedbody.NewParser(chunkedbody.DefaultSettings())
		body := []byte(response[len(expectedHead):])
		var decoded []byte
		for {
			chunk, extra, err := parser.Parse(body, false)
			decoded = append(decoded, chunk...)
			if err == io.EOF {
				require.Empty(t, extra)
				break
			}

			require.NoError(t, err)
			body = extra
		}

		require.Equal(t, "Hello, World", string(decoded))
	})

	t.Run("head request", func(t *testing.T) {
		serializer, writer := getSerializer(nil)
		err := serializer.WriteHead(ResponseHead{
			Proto:         proto.HTTP11,
			Status:        "200 OK",
			Framing:       FramingNone,
			ContentLength: 13,
			KeepAlive:     true,
		}, []byte("Hello, world!"))
		require.NoError(t, err)
		require.NoError(t, serializer.WriteBody(FramingNone, []byte("more")))

		require.Equal(t,
			"HTTP/1.1 200 OK\r\nContent-Length: 13\r\nConnection: keep-alive\r\n\r\n",
			writer.String(),
		)
	})

	t.Run("no content", func(t *testing.T) {
		serializer, writer := getSerializer(nil)
		err := serializer.WriteHead(ResponseHead{
			Proto:         proto.HTTP11,
			Status:        "204 No Content",
			Framing:       FramingNone,
			ContentLength: -1,
			KeepAlive:     true,
		}, nil)
		require.NoError(t, err)
		require.Equal(t,
			"HTTP/1.1 204 No Content\r\nConnection: keep-alive\r\n\r\n",
			writer.String(),
		)
	})
}

func TestSerializer_DefaultHeaders(t *testing.T) {
	serializer, writer := getSerializer(map[string]string{
		"Server": "fastwsgi",
		"Vary":   "Accept",
	})

	head := ResponseHead{
		Proto:         proto.HTTP11,
		Status:        "200 OK",
		Headers:       []headers.Header{{Key: "server", Value: "custom"}},
		Framing:       FramingLength,
		ContentLength: 0,
		KeepAlive:     true,
	}
	require.NoError(t, serializer.WriteHead(head, nil))
	require.Equal(t,
		"HTTP/1.1 200 OK\r\n"+
			"server: custom\r\n"+
			"Vary: Accept\r\n"+
			"Content-Length: 0\r\n"+
			"Connection: keep-alive\r\n\r\n",
		writer.writes[0],
	)

	// exclusions must not leak into the next response
	head.Headers = nil
	require.NoError(t, serializer.WriteHead(head, nil))
	require.Equal(t,
		"HTTP/1.1 200 OK\r\n"+
			"Server: fastwsgi\r\n"+
			"Vary: Accept\r\n"+
			"Content-Length: 0\r\n"+
			"Connection: keep-alive\r\n\r\n",
		writer.writes[1],
	)
}

func TestSerializer_WriteContinue(t *testing.T) {
	serializer, writer := getSerializer(map[string]string{"Server": "fastwsgi"})
	require.NoError(t, serializer.WriteContinue(proto.HTTP11))
	require.Equal(t, "HTTP/1.1 100 Continue\r\n\r\n", writer.String())
}

func TestSerializer_WriteError(t *testing.T) {
	t.Run("http error", func(t *testing.T) {
		serializer, writer := getSerializer(map[string]string{"Server": "fastwsgi"})
		require.NoError(t, serializer.WriteError(proto.HTTP10, status.ErrHeaderFieldsTooLarge))

		message := status.ErrHeaderFieldsTooLarge.(status.HTTPError).Message
		require.Equal(t,
			"HTTP/1.0 431 Request Header Fields Too Large\r\n"+
				"Server: fastwsgi\r\n"+
				"Content-Type: text/plain; charset=utf-8\r\n"+
				"Content-Length: "+strconv.Itoa(len(message))+"\r\n"+
				"Connection: close\r\n\r\n"+
				message,
			writer.String(),
		)
	})

	t.Run("unknown protocol", func(t *testing.T) {
		serializer, writer := getSerializer(nil)
		require.NoError(t, serializer.WriteError(proto.Unknown, status.ErrHTTPVersionNotSupported))
		require.True(t, strings.HasPrefix(writer.String(), "HTTP/1.1 505 HTTP Version Not Supported\r\n"))
	})

	t.Run("arbitrary error", func(t *testing.T) {
		serializer, writer := getSerializer(nil)
		require.NoError(t, serializer.WriteError(proto.HTTP11, errors.New("boom")))
		response := writer.String()
		require.True(t, strings.HasPrefix(response, "HTTP/1.1 500 Internal Server Error\r\n"))
		require.NotContains(t, response, "boom")
	})
}
