/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package reactor

import (
	"net"

	"golang.org/x/sys/unix"
)

// Bind creates, binds and listens on a non-blocking TCP fd for addr
// ("host:port"), ready to be registered with a Listener's epoll instance.
func Bind(addr string, backlog int) (fd int, err error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return 0, err
	}

	domain := unix.AF_INET
	sa := &unix.SockaddrInet4{Port: tcpAddr.Port}
	if tcpAddr.IP != nil {
		if ip4 := tcpAddr.IP.To4(); ip4 != nil {
			copy(sa.Addr[:], ip4)
		} else if ip6 := tcpAddr.IP.To16(); ip6 != nil {
			domain = unix.AF_INET6
			sa6 := &unix.SockaddrInet6{Port: tcpAddr.Port}
			copy(sa6.Addr[:], ip6)
			return bindListen(domain, sa6, backlog)
		}
	}
	return bindListen(domain, sa, backlog)
}

// PeerAddr reports the remote address of an already-connected fd (spec §3
// "Connection record ... the peer address").
func PeerAddr(fd int) net.Addr {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return nil
	}
	return sockaddrToTCPAddr(sa)
}

// LocalAddr reports the local address an already-connected fd is bound to.
func LocalAddr(fd int) net.Addr {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil
	}
	return sockaddrToTCPAddr(sa)
}

func sockaddrToTCPAddr(sa unix.Sockaddr) net.Addr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: append([]byte(nil), a.Addr[:]...), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: append([]byte(nil), a.Addr[:]...), Port: a.Port}
	default:
		return nil
	}
}

func bindListen(domain int, sa unix.Sockaddr, backlog int) (int, error) {
	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return 0, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return 0, err
	}
	if backlog <= 0 {
		backlog = 128
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return 0, err
	}
	return fd, nil
}
