package tcp

import (
	"net"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClient(t *testing.T) {
	t.Run("read and unread", func(t *testing.T) {
		serverConn, clientConn := net.Pipe()
		defer clientConn.Close()
		client := NewClient(serverConn, time.Second, time.Second, make([]byte, 64), nil)

		go func() {
			_, _ = clientConn.Write([]byte("Hello"))
		}()

		data, err := client.Read()
		require.NoError(t, err)
		require.Equal(t, "Hello", string(data))
		require.False(t, client.Buffered())

		client.Unread(data[1:])
		require.True(t, client.Buffered())
		data, err = client.Read()
		require.NoError(t, err)
		require.Equal(t, "ello", string(data))
	})

	t.Run("interrupted", func(t *testing.T) {
		serverConn, clientConn := net.Pipe()
		defer clientConn.Close()

		var interrupted atomic.Bool
		client := NewClient(serverConn, time.Minute, time.Second, make([]byte, 64), interrupted.Load)
		interrupted.Store(true)

		_, err := client.Read()
		require.ErrorIs(t, err, os.ErrDeadlineExceeded)
	})

	t.Run("unread data wins over interruption", func(t *testing.T) {
		serverConn, clientConn := net.Pipe()
		defer clientConn.Close()
		client := NewClient(serverConn, time.Minute, time.Second, make([]byte, 64), func() bool { return true })

		client.Unread([]byte("pending"))
		data, err := client.Read()
		require.NoError(t, err)
		require.Equal(t, "pending", string(data))
	})
}
