// Package transport serves the debug protocol over TCP. One client is
// served at a time; session state lives in the agent and survives a
// reconnect.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/remora-mesh/remora/internal/ipc/remoteapi"
	"github.com/remora-mesh/remora/internal/retry"
	"github.com/remora-mesh/remora/internal/streambuf"
)

// Session is the server's view of the agent: the request handlers plus
// connection lifecycle hooks.
type Session interface {
	remoteapi.Handler

	// Connect binds the sink for replies and notifications.
	Connect(sender remoteapi.Sender)

	// Disconnect unbinds the sink after the connection drops.
	Disconnect()
}

// Server accepts debug clients on a TCP listener.
type Server struct {
	addr    string
	session Session
	logger  zerolog.Logger

	acceptRetry retry.Config

	listener net.Listener
}

// New creates a server for the given listen address.
func New(addr string, session Session, acceptBackoff time.Duration, logger zerolog.Logger) *Server {
	if acceptBackoff <= 0 {
		acceptBackoff = time.Second
	}
	return &Server{
		addr:    addr,
		session: session,
		logger:  logger.With().Str("component", "transport").Logger(),
		acceptRetry: retry.Config{
			MaxRetries:     5,
			InitialBackoff: acceptBackoff / 10,
			MaxBackoff:     acceptBackoff,
		},
	}
}

// ListenAndServe binds the listener and serves clients until the
// context is canceled or the listener fails permanently. Clients are
// served one at a time; a new connection is handled once the current
// one drops.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	s.logger.Info().Str("addr", listener.Addr().String()).Msg("Listening for debug clients")

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := s.accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept on %s: %w", s.addr, err)
		}
		s.serveConn(ctx, conn)
	}
}

// Addr returns the bound listener address, for tests using port 0.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// accept retries transient accept failures with backoff so a blip in
// the host's file-descriptor budget does not take the agent down.
func (s *Server) accept(ctx context.Context) (net.Conn, error) {
	var conn net.Conn
	err := retry.Do(ctx, s.acceptRetry, func() error {
		c, err := s.listener.Accept()
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, func(err error) bool {
		var netErr net.Error
		return errors.As(err, &netErr) && netErr.Timeout()
	})
	return conn, err
}

// serveConn runs one client session to completion. Cancellation closes
// the connection so the read loop unblocks; the listener alone closing
// would leave an active client holding the agent open.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	s.logger.Info().Str("remote", remote).Msg("Client connected")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	stream := streambuf.New(streambuf.WriterFunc(conn.Write))
	adapter := remoteapi.NewAdapter(stream, s.session, s.logger)
	s.session.Connect(adapter)

	buf := make([]byte, 64<<10)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			stream.AddReadData(chunk)
			if dispatchErr := adapter.OnStreamReadable(); dispatchErr != nil {
				s.logger.Error().Err(dispatchErr).Str("remote", remote).Msg("Closing connection on framing error")
				break
			}
		}
		if err != nil {
			break
		}
	}

	s.session.Disconnect()
	conn.Close()
	s.logger.Info().Str("remote", remote).Msg("Client disconnected")
}
