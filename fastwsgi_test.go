package fastwsgi

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/indigo-web/fastwsgi/config"
	"github.com/indigo-web/fastwsgi/logging"
	"github.com/indigo-web/fastwsgi/wsgi"
	"github.com/stretchr/testify/require"
)

const (
	testHeaderKey   = "hello"
	testHeaderValue = "World!"

	testRequestBody = "Hello, world!"
)

func freePort(t *testing.T) uint16 {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	return uint16(l.Addr().(*net.TCPAddr).Port)
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Address.Host = "127.0.0.1"
	cfg.Address.Port = freePort(t)
	cfg.NET.AcceptLoopInterruptPeriod = 10 * time.Millisecond
	cfg.NET.ShutdownGrace = time.Second
	return cfg
}

func getApp(t *testing.T) wsgi.AppFunc {
	return func(env *wsgi.Environ, startResponse wsgi.StartResponse) (wsgi.Body, error) {
		switch env.Get("PATH_INFO") {
		case "/simple-get":
			require.Equal(t, "GET", env.Get("REQUEST_METHOD"))
			require.Equal(t, "HTTP/1.1", env.Get("SERVER_PROTOCOL"))
			require.Equal(t, "127.0.0.1", env.Get("SERVER_NAME"))
		case "/with-header":
			require.Equal(t, testHeaderValue, env.Get("HTTP_HELLO"))
		case "/with-query":
			if _, err := startResponse("200 OK", nil); err != nil {
				return nil, err
			}

			return wsgi.String(env.Get("QUERY_STRING")), nil
		case "/read-body":
			body, err := io.ReadAll(env.Input)
			require.NoError(t, err)

			if _, err = startResponse("200 OK", nil); err != nil {
				return nil, err
			}

			return wsgi.String(string(body)), nil
		case "/stream":
			if _, err := startResponse("200 OK", nil); err != nil {
				return nil, err
			}

			return wsgi.Chunks([]byte("Hello, "), []byte("world"), []byte("!")), nil
		case "/fail":
			panic("failed on purpose")
		}

		if _, err := startResponse("200 OK", nil); err != nil {
			return nil, err
		}

		return wsgi.Empty(), nil
	}
}

type runningServer struct {
	URL     string
	banner  *bytes.Buffer
	stopped chan struct{}
	cancel  context.CancelFunc
	result  chan error
}

func startServer(t *testing.T, cfg *config.Config, app wsgi.Application) *runningServer {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &runningServer{
		URL:     "http://" + cfg.Address.String(),
		banner:  new(bytes.Buffer),
		stopped: make(chan struct{}),
		cancel:  cancel,
		result:  make(chan error, 1),
	}

	started := make(chan struct{})
	fastwsgi := New(cfg, app).
		Logger(logging.Nop()).
		Output(srv.banner).
		NotifyOnStart(func() { close(started) }).
		NotifyOnStop(func() { close(srv.stopped) })

	go func() {
		srv.result <- fastwsgi.Run(ctx)
	}()

	select {
	case <-started:
	case err := <-srv.result:
		require.FailNow(t, "server failed to start", "%v", err)
	case <-time.After(time.Second):
		require.FailNow(t, "server did not start in time")
	}

	return srv
}

func (s *runningServer) stop(t *testing.T) {
	s.cancel()

	select {
	case err := <-s.result:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		require.Fail(t, "server did not stop in time")
	}

	select {
	case <-s.stopped:
	default:
		require.Fail(t, "stop hook was not called")
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestServer(t *testing.T) {
	cfg := testConfig(t)
	srv := startServer(t, cfg, getApp(t))
	defer srv.stop(t)

	client := &http.Client{Timeout: time.Second}

	t.Run("banner", func(t *testing.T) {
		banner := srv.banner.String()
		require.Contains(t, banner, "==== FastWSGI ====")
		require.Contains(t, banner, "Host: 127.0.0.1\n")
		require.Contains(t, banner, "Port: "+strconv.Itoa(int(cfg.Address.Port))+"\n")
		require.Contains(t, banner, "Server listening at "+srv.URL+"\n")
		require.Contains(t, banner, "Running on PID:")
	})

	t.Run("simple get", func(t *testing.T) {
		resp, err := client.Get(srv.URL + "/simple-get")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Empty(t, readBody(t, resp))
	})

	t.Run("with header", func(t *testing.T) {
		request, err := http.NewRequest(http.MethodGet, srv.URL+"/with-header", nil)
		require.NoError(t, err)
		request.Header.Set(testHeaderKey, testHeaderValue)

		resp, err := client.Do(request)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		_ = readBody(t, resp)
	})

	t.Run("with query", func(t *testing.T) {
		resp, err := client.Get(srv.URL + "/with-query?hel%20lo=wor%20ld")
		require.NoError(t, err)
		require.Equal(t, "hel%20lo=wor%20ld", readBody(t, resp))
	})

	t.Run("read body", func(t *testing.T) {
		resp, err := client.Post(srv.URL+"/read-body", "text/plain", strings.NewReader(testRequestBody))
		require.NoError(t, err)
		require.Equal(t, testRequestBody, readBody(t, resp))
	})

	t.Run("chunked request body", func(t *testing.T) {
		// hiding the length makes the client stream the body
		body := io.MultiReader(strings.NewReader("Hello, "), strings.NewReader("world!"))
		resp, err := client.Post(srv.URL+"/read-body", "text/plain", body)
		require.NoError(t, err)
		require.Equal(t, testRequestBody, readBody(t, resp))
	})

	t.Run("streamed response", func(t *testing.T) {
		resp, err := client.Get(srv.URL + "/stream")
		require.NoError(t, err)
		require.Equal(t, []string{"chunked"}, resp.TransferEncoding)
		require.Equal(t, testRequestBody, readBody(t, resp))
	})

	t.Run("application failure", func(t *testing.T) {
		resp, err := client.Get(srv.URL + "/fail")
		require.NoError(t, err)
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		require.True(t, resp.Close)
		_ = readBody(t, resp)
	})

	t.Run("concurrent clients", func(t *testing.T) {
		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 10 {
					resp, err := client.Post(srv.URL+"/read-body", "text/plain", strings.NewReader(testRequestBody))
					if !assertNoError(t, err) {
						return
					}

					body, _ := io.ReadAll(resp.Body)
					_ = resp.Body.Close()
					if string(body) != testRequestBody {
						t.Errorf("unexpected body: %q", body)
					}
				}
			}()
		}

		wg.Wait()
	})

	t.Run("slow client does not block others", func(t *testing.T) {
		conn, err := net.Dial("tcp", cfg.Address.String())
		require.NoError(t, err)
		defer conn.Close()
		_, err = conn.Write([]byte("GET /simple-get HTTP/1.1\r\nHo"))
		require.NoError(t, err)

		resp, err := client.Get(srv.URL + "/simple-get")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		_ = readBody(t, resp)
	})
}

// assertNoError is safe to call from non-test goroutines, unlike require.
func assertNoError(t *testing.T, err error) bool {
	if err != nil {
		t.Errorf("unexpected error: %s", err)
		return false
	}

	return true
}

func TestGracefulShutdown(t *testing.T) {
	cfg := testConfig(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	app := wsgi.AppFunc(func(env *wsgi.Environ, startResponse wsgi.StartResponse) (wsgi.Body, error) {
		if env.Get("PATH_INFO") == "/slow" {
			close(entered)
			<-release
		}

		if _, err := startResponse("200 OK", nil); err != nil {
			return nil, err
		}

		return wsgi.String("done"), nil
	})

	srv := startServer(t, cfg, app)

	type result struct {
		resp *http.Response
		err  error
	}
	inflight := make(chan result, 1)
	go func() {
		resp, err := http.Get(srv.URL + "/slow")
		inflight <- result{resp, err}
	}()

	<-entered
	srv.cancel()
	// new connections are refused as soon as the accept loop stops
	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", cfg.Address.String(), 100*time.Millisecond)
		if err == nil {
			_ = conn.Close()
		}

		return err != nil
	}, time.Second, 10*time.Millisecond)

	close(release)
	r := <-inflight
	require.NoError(t, r.err)
	require.Equal(t, "done", readBody(t, r.resp))

	select {
	case err := <-srv.result:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		require.Fail(t, "server did not stop in time")
	}
}

func TestBindFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	cfg := config.Default()
	cfg.Address.Host = "127.0.0.1"
	cfg.Address.Port = uint16(l.Addr().(*net.TCPAddr).Port)

	err = New(cfg, getApp(t)).Logger(logging.Nop()).Output(io.Discard).Run(context.Background())
	require.Error(t, err)
	require.True(t, IsBindFailure(err))
}
