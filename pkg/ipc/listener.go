// Package ipc implements the controller side of the engine connection: a
// unix-socket or TCP listener, and a per-connection session that pumps
// newline-delimited protocol records between the wire and the controller's
// channels.
package ipc

import (
	"fmt"
	"net"
	"os"
)

type network int

const (
	unixNetwork network = iota
	tcpNetwork
)

// Listener accepts engine connections over either a filesystem socket or a
// TCP address. The variant set is closed; dispatch is by switch, not an
// interface.
type Listener struct {
	network    network
	unix       *net.UnixListener
	tcp        *net.TCPListener
	socketPath string
}

// Bind opens the listener. A non-empty bindAddr selects TCP; otherwise a
// unix socket at socketPath is created, removing a stale socket file first.
func Bind(socketPath, bindAddr string) (*Listener, error) {
	if bindAddr != "" {
		addr, err := net.ResolveTCPAddr("tcp", bindAddr)
		if err != nil {
			return nil, fmt.Errorf("bind %s: %w", bindAddr, err)
		}
		l, err := net.ListenTCP("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("bind %s: %w", bindAddr, err)
		}
		return &Listener{network: tcpNetwork, tcp: l}, nil
	}

	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale socket %s: %w", socketPath, err)
	}
	addr, err := net.ResolveUnixAddr("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", socketPath, err)
	}
	l, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", socketPath, err)
	}
	return &Listener{network: unixNetwork, unix: l, socketPath: socketPath}, nil
}

// Accept blocks until a peer connects.
func (l *Listener) Accept() (net.Conn, error) {
	switch l.network {
	case unixNetwork:
		return l.unix.AcceptUnix()
	case tcpNetwork:
		return l.tcp.AcceptTCP()
	}
	return nil, fmt.Errorf("accept: unknown listener network")
}

// Addr describes the bound endpoint for logs.
func (l *Listener) Addr() string {
	switch l.network {
	case unixNetwork:
		return l.socketPath
	case tcpNetwork:
		return l.tcp.Addr().String()
	}
	return ""
}

// Close shuts the listener down and removes the socket file if one was
// created.
func (l *Listener) Close() error {
	switch l.network {
	case unixNetwork:
		err := l.unix.Close()
		if rmErr := os.Remove(l.socketPath); err == nil && rmErr != nil && !os.IsNotExist(rmErr) {
			err = rmErr
		}
		return err
	case tcpNetwork:
		return l.tcp.Close()
	}
	return nil
}
