//go:build unix && !linux

package transport

import (
	"context"
	"net"
	"syscall"

	"github.com/indigo-web/fastwsgi/config"
	"golang.org/x/sys/unix"
)

// listen binds through the standard library, so the backlog is left to the system default.
func listen(addr config.Address, reusePort bool) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, conn syscall.RawConn) error {
			var sockErr error
			err := conn.Control(func(fd uintptr) {
				if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); sockErr != nil {
					return
				}

				if reusePort {
					sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
				}
			})
			if err != nil {
				return err
			}

			return sockErr
		},
	}

	return lc.Listen(context.Background(), "tcp", addr.String())
}
