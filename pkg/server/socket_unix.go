//go:build unix

package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// Socket errors.
var (
	errInvalidAddr = errors.New("server: cannot resolve bind address")

	// errSendDropped means the peer's receive buffer was full and the
	// message was skipped for that client.
	errSendDropped = errors.New("server: socket buffer full, message dropped")

	// errPartialWrite means a frame was cut off mid-way. The peer can no
	// longer find frame boundaries, so the client must be dropped.
	errPartialWrite = errors.New("server: frame partially written")
)

const readyEvents = unix.POLLIN | unix.POLLHUP | unix.POLLERR

// listenTCP opens a non-blocking listening socket with SO_REUSEADDR set.
func listenTCP(address string, port, backlog int) (int, error) {
	ip := net.ParseIP(address)
	if address == "" {
		ip = net.IPv4zero
	}
	if ip == nil {
		ips, err := net.LookupIP(address)
		if err != nil || len(ips) == 0 {
			return -1, fmt.Errorf("%w: %s", errInvalidAddr, address)
		}
		ip = ips[0]
	}

	family, sa := sockaddrFor(ip, port)
	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, os.NewSyscallError("socket", err)
	}
	unix.CloseOnExec(fd)

	fail := func(op string, err error) (int, error) {
		unix.Close(fd)
		return -1, os.NewSyscallError(op, err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fail("setsockopt", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		return fail("bind", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		return fail("listen", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return fail("setnonblock", err)
	}
	return fd, nil
}

func sockaddrFor(ip net.IP, port int) (int, unix.Sockaddr) {
	if ip4 := ip.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], ip4)
		return unix.AF_INET, sa
	}
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], ip.To16())
	return unix.AF_INET6, sa
}

func addrOf(sa unix.Sockaddr) (string, int) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(a.Addr[:]).String(), a.Port
	case *unix.SockaddrInet6:
		return net.IP(a.Addr[:]).String(), a.Port
	default:
		return "", 0
	}
}

// boundPort returns the local port of a bound socket.
func boundPort(fd int) (int, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, os.NewSyscallError("getsockname", err)
	}
	_, port := addrOf(sa)
	return port, nil
}

// acceptConn accepts one pending connection and makes it non-blocking.
func acceptConn(listener int) (fd int, addr string, port int, err error) {
	for {
		fd, sa, err := unix.Accept(listener)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return -1, "", 0, err
		}
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fd)
			return -1, "", 0, os.NewSyscallError("setnonblock", err)
		}
		addr, port := addrOf(sa)
		return fd, addr, port, nil
	}
}

// pollReadable returns the descriptors that are readable, closed or in
// error, in the order given. It never waits.
func pollReadable(fds []int) ([]int, error) {
	pfds := make([]unix.PollFd, len(fds))
	for i, fd := range fds {
		pfds[i] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	}

	n, err := unix.Poll(pfds, 0)
	if err == unix.EINTR {
		return nil, nil
	}
	if err != nil {
		return nil, os.NewSyscallError("poll", err)
	}

	ready := make([]int, 0, n)
	for _, p := range pfds {
		if p.Revents&(readyEvents|unix.POLLNVAL) != 0 {
			ready = append(ready, int(p.Fd))
		}
	}
	return ready, nil
}

// readChunk reads whatever is available, up to len(buf).
// It returns io.EOF when the peer closed the connection.
func readChunk(fd int, buf []byte) (int, error) {
	for {
		n, err := unix.Read(fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, io.EOF
		}
		return n, nil
	}
}

// writeNonblock writes data without waiting for buffer space. It returns
// errSendDropped when nothing could be written and errPartialWrite when
// the buffer filled part way through.
func writeNonblock(fd int, data []byte) error {
	written := 0
	for written < len(data) {
		n, err := unix.Write(fd, data[written:])
		if err == unix.EINTR {
			continue
		}
		if wouldBlock(err) {
			if written == 0 {
				return errSendDropped
			}
			return errPartialWrite
		}
		if err != nil {
			return os.NewSyscallError("write", err)
		}
		written += n
	}
	return nil
}

func wouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

func closeFd(fd int) error {
	if err := unix.Close(fd); err != nil {
		return os.NewSyscallError("close", err)
	}
	return nil
}
