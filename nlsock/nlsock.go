// Package nlsock owns the raw AF_NETLINK datagram endpoint: socket
// creation, a single send, a single receive parsed into framed messages, and
// the bound PID the transaction driver filters replies against.
package nlsock

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/m-lab/rtnl/nlmsg"
)

// RecvBufSize is the fixed receive buffer size: one page above the largest
// datagram the kernel is expected to emit for a single rtnetlink reply.
const RecvBufSize = 65536

// Socket is one bound AF_NETLINK/NETLINK_ROUTE endpoint. It is not safe for
// concurrent use; a transaction driver owns it exclusively.
type Socket struct {
	fd         int
	recvBufLen int
}

// New creates and binds a socket for protocol (typically unix.NETLINK_ROUTE)
// with SOCK_CLOEXEC set, letting the kernel auto-assign the PID and joining
// no multicast groups. A recvBufLen of 0 selects RecvBufSize.
func New(protocol, recvBufLen int) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, protocol)
	if err != nil {
		return nil, fmt.Errorf("nlsock: socket: %w", err)
	}

	if recvBufLen == 0 {
		recvBufLen = RecvBufSize
	}

	s := &Socket{fd: fd, recvBufLen: recvBufLen}
	addr := &unix.SockaddrNetlink{Family: unix.AF_NETLINK}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("nlsock: bind: %w", err)
	}
	return s, nil
}

// Send writes buf in a single sendto to the kernel.
func (s *Socket) Send(buf []byte) error {
	addr := &unix.SockaddrNetlink{Family: unix.AF_NETLINK}
	if err := unix.Sendto(s.fd, buf, 0, addr); err != nil {
		return fmt.Errorf("nlsock: sendto: %w", err)
	}
	return nil
}

// Recv reads a single datagram into a buffer of the length chosen at New
// (RecvBufSize unless overridden) and parses it
// into framed messages. Netlink preserves datagram boundaries, so one
// recvfrom is exactly one batch of messages. It also returns the sender's
// PID so the caller can reject replies that didn't come from the kernel.
func (s *Socket) Recv() ([]nlmsg.Message, uint32, error) {
	buf := make([]byte, s.recvBufLen)
	n, from, err := unix.Recvfrom(s.fd, buf, 0)
	if err != nil {
		return nil, 0, fmt.Errorf("nlsock: recvfrom: %w", err)
	}

	nl, ok := from.(*unix.SockaddrNetlink)
	if !ok {
		return nil, 0, fmt.Errorf("nlsock: unexpected sockaddr type %T", from)
	}

	msgs, err := nlmsg.ParseMessages(buf[:n])
	if err != nil {
		return nil, 0, err
	}
	return msgs, nl.Pid, nil
}

// PID returns the PID the kernel assigned this socket at bind time.
func (s *Socket) PID() (uint32, error) {
	addr, err := unix.Getsockname(s.fd)
	if err != nil {
		return 0, fmt.Errorf("nlsock: getsockname: %w", err)
	}
	nl, ok := addr.(*unix.SockaddrNetlink)
	if !ok {
		return 0, fmt.Errorf("nlsock: unexpected sockaddr type %T", addr)
	}
	return nl.Pid, nil
}

// Close releases the underlying file descriptor.
func (s *Socket) Close() error {
	return unix.Close(s.fd)
}
