package transport

import (
	"net"
	"os"

	"github.com/indigo-web/fastwsgi/config"
	"golang.org/x/sys/unix"
)

// listen opens the socket by hand, as the standard library gives no control over the
// backlog.
func listen(addr config.Address, reusePort bool) (net.Listener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr.String())
	if err != nil {
		return nil, err
	}

	family, sockaddr := toSockaddr(tcpAddr)
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}

	// the listener made of the file dups the descriptor, so this one is closed in any case
	file := os.NewFile(uintptr(fd), "tcp:"+addr.String())
	defer file.Close()

	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return nil, os.NewSyscallError("setsockopt", err)
	}

	if reusePort {
		if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
			return nil, os.NewSyscallError("setsockopt", err)
		}
	}

	if err = unix.Bind(fd, sockaddr); err != nil {
		return nil, os.NewSyscallError("bind", err)
	}

	if err = unix.Listen(fd, addr.Backlog); err != nil {
		return nil, os.NewSyscallError("listen", err)
	}

	return net.FileListener(file)
}

func toSockaddr(addr *net.TCPAddr) (family int, sockaddr unix.Sockaddr) {
	if ip4 := addr.IP.To4(); ip4 != nil || len(addr.IP) == 0 {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return unix.AF_INET, sa
	}

	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], addr.IP.To16())
	return unix.AF_INET6, sa
}
