// Package sockettune applies OS-level socket buffer tuning to a UDP
// connection's underlying file descriptor, grounded on
// runZeroInc-sockstats/runZeroInc-conniver's use of netfd.GetFdFromConn to
// reach into a net.Conn for raw syscalls.
package sockettune

import (
	"fmt"
	"net"

	"github.com/higebu/netfd"
	"golang.org/x/sys/unix"
)

// Buffers widens a UDP socket's kernel send/receive buffers beyond the OS
// default, which otherwise causes silent packet drops under the bursty
// retransmission load a full peer table can generate.
func Buffers(conn *net.UDPConn, bytes int) error {
	fd := netfd.GetFdFromConn(conn)
	if fd < 0 {
		return fmt.Errorf("sockettune: could not obtain fd from connection")
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, bytes); err != nil {
		return fmt.Errorf("sockettune: set SO_RCVBUF: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, bytes); err != nil {
		return fmt.Errorf("sockettune: set SO_SNDBUF: %w", err)
	}
	return nil
}
