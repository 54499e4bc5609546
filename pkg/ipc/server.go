package ipc

import (
	"context"
	"crypto/subtle"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/playctl/playctl/pkg/protocol"
)

// acceptRetryDelay is how long the accept loop waits after an accept error
// before trying again.
const acceptRetryDelay = time.Second

// Server owns the listener and services one engine connection at a time.
// Decoded inbound records go to Inbound in wire order; records queued on
// Outbound are written to the active connection.
type Server struct {
	Listener *Listener
	Secret   string // empty accepts any handshake

	Inbound  chan<- protocol.Message
	Outbound <-chan protocol.Message

	Logger *slog.Logger
}

// Serve accepts connections until ctx is cancelled or Outbound is closed by
// the controller. A new connection starts a fresh logical session; the
// previous session's pump has always fully exited before the next accept.
func (s *Server) Serve(ctx context.Context) {
	log := s.logger()
	log.Info("listening for engine connections", "addr", s.Listener.Addr())

	go func() {
		<-ctx.Done()
		s.Listener.Close()
	}()

	for {
		conn, err := s.Listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("accept failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(acceptRetryDelay):
			}
			continue
		}
		s.serveConn(ctx, conn)
	}
}

type readResult struct {
	msg protocol.Message
	err error
}

// serveConn runs one connection session to completion. It enforces the
// handshake gate, forwards inbound records, drains the outbound queue, and
// synthesizes exactly one ClientDisconnected per real read/write failure or
// EOF.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	log := s.logger()
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)

	readCh := make(chan readResult)
	go func() {
		r := protocol.NewReader(conn)
		for {
			msg, err := r.Read()
			select {
			case readCh <- readResult{msg: msg, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	authed := false
	for {
		select {
		case <-ctx.Done():
			return

		case r := <-readCh:
			if r.err != nil {
				if r.err != io.EOF {
					log.Warn("read failed", "error", r.err)
				}
				s.forward(ctx, protocol.ClientDisconnected{})
				return
			}
			if hs, ok := r.msg.(protocol.Handshake); ok {
				if !s.tokenValid(hs.Token) {
					log.Error("authentication failed: invalid token")
					return
				}
				authed = true
				s.forward(ctx, hs)
				continue
			}
			if !authed {
				log.Error("record before handshake, closing connection",
					"kind", protocol.Kind(r.msg))
				return
			}
			s.forward(ctx, r.msg)

		case msg, ok := <-s.Outbound:
			if !ok {
				return
			}
			line, err := protocol.Encode(msg)
			if err != nil {
				log.Error("encode failed", "kind", protocol.Kind(msg), "error", err)
				continue
			}
			if _, err := conn.Write(line); err != nil {
				log.Warn("write failed", "error", err)
				s.forward(ctx, protocol.ClientDisconnected{})
				return
			}
		}
	}
}

func (s *Server) forward(ctx context.Context, msg protocol.Message) {
	select {
	case s.Inbound <- msg:
	case <-ctx.Done():
	}
}

func (s *Server) tokenValid(token string) bool {
	if s.Secret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.Secret)) == 1
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
