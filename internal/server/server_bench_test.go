package server

import (
	"testing"

	"github.com/indigo-web/fastwsgi/config"
	"github.com/indigo-web/fastwsgi/internal/tcp/dummy"
	"github.com/indigo-web/fastwsgi/logging"
	"github.com/indigo-web/fastwsgi/wsgi"
)

var (
	simpleGETRequest      = "GET / HTTP/1.1\r\n\r\n"
	fiveHeadersGETRequest = "GET / HTTP/1.1\r\n" +
		"Hello: world\r\n" +
		"One: ok\r\n" +
		"Content-Type: nothing but true;q=0.9\r\n" +
		"Four: lorem ipsum\r\n" +
		"Mistake: is made here\r\n" +
		"\r\n"
	tenHeadersGETRequest = "GET / HTTP/1.1\r\n" +
		"Hello: world\r\n" +
		"One: ok\r\n" +
		"Content-Type: nothing but true;q=0.9\r\n" +
		"Four: lorem ipsum\r\n" +
		"Mistake: is made here\r\n" +
		"Lorem: upsum\r\n" +
		"Seven: of all this\r\n" +
		"Eight: finally only two left\r\n" +
		"My-Brain: is not so creative\r\n" +
		"To-Create: ten random headers from scratch\r\n" +
		"\r\n"
	simplePOST = "POST / HTTP/1.1\r\nContent-Length: 13\r\n\r\nHello, world!"
)

func BenchmarkServer(b *testing.B) {
	app := wsgi.AppFunc(func(_ *wsgi.Environ, startResponse wsgi.StartResponse) (wsgi.Body, error) {
		if _, err := startResponse("200 OK", nil); err != nil {
			return nil, err
		}

		return wsgi.String("Hello, world!"), nil
	})

	bench := func(request string) func(b *testing.B) {
		return func(b *testing.B) {
			client := dummy.NewMockClientString(request)
			c := New(config.Default(), app, logging.Nop()).newConn(client, nil)
			c.toIdle()
			b.SetBytes(int64(len(request)))
			b.ReportAllocs()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				if !c.HandleRequest() {
					b.Fatal("connection was closed")
				}

				client.Reset()
			}
		}
	}

	b.Run("simple GET", bench(simpleGETRequest))
	b.Run("5 headers", bench(fiveHeadersGETRequest))
	b.Run("10 headers", bench(tenHeadersGETRequest))
	b.Run("simple POST", bench(simplePOST))
}
