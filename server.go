package pixeltree

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/typ.v4/sync2"
)

// FrameHandler consumes frames received by a Server. It may be called from
// several connections at once.
type FrameHandler interface {
	// HandleFrame displays frame. The buffer is reused once HandleFrame
	// returns.
	HandleFrame(frame PixelBuffer) error
}

// FrameHandlerFunc is a function that implements FrameHandler.
type FrameHandlerFunc func(frame PixelBuffer) error

// HandleFrame implements FrameHandler.
func (f FrameHandlerFunc) HandleFrame(frame PixelBuffer) error {
	return f(frame)
}

// ServerOpts are options for a server.
type ServerOpts struct {
	// PixelCount is the number of pixels in every frame. Clients must agree
	// on it; it is never sent over the wire.
	PixelCount int
	// Ack makes the server reply with AckToken after each frame.
	Ack bool
	// Handler receives every frame.
	Handler FrameHandler
	// Logger is the logger to use for the server.
	Logger *slog.Logger
}

// Server is the receiving end of a FrameSink. It reads fixed-size frames
// from each connection and hands them to a FrameHandler.
type Server struct {
	opts        ServerOpts
	connections sync2.Map[*Session, sessionControl]
}

type sessionControl struct {
	cancel context.CancelCauseFunc
}

// NewServer creates a new server.
func NewServer(opts ServerOpts) (*Server, error) {
	if opts.PixelCount <= 0 {
		return nil, fmt.Errorf("invalid pixel count %d", opts.PixelCount)
	}
	if opts.Handler == nil {
		return nil, errors.New("missing frame handler")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		opts: opts,
	}, nil
}

// ClientStatus describes one connected client.
type ClientStatus struct {
	Addr        string    `json:"addr"`
	ConnectedAt time.Time `json:"connected_at"`
	Frames      uint64    `json:"frames"`
	// LastFrame is the zero time until the first frame arrives.
	LastFrame time.Time `json:"last_frame"`
}

// Clients returns the connected clients, oldest first.
func (s *Server) Clients() []ClientStatus {
	var clients []ClientStatus
	s.connections.Range(func(session *Session, _ sessionControl) bool {
		clients = append(clients, session.Status())
		return true
	})
	slices.SortFunc(clients, func(a, b ClientStatus) int {
		return a.ConnectedAt.Compare(b.ConnectedAt)
	})
	return clients
}

// KickAllConnections kicks all connections from the server.
// Optionally, a reason can be provided.
func (s *Server) KickAllConnections(reason string) {
	var err error
	if reason != "" {
		err = fmt.Errorf("kicked: %s", reason)
	} else {
		err = fmt.Errorf("kicked")
	}

	s.connections.Range(func(s *Session, ctrl sessionControl) bool {
		ctrl.cancel(err)
		return true
	})
}

// Serve accepts connections on l until ctx is done. The listener is closed
// when Serve returns.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	errg, ctx := errgroup.WithContext(ctx)

	errg.Go(func() error {
		<-ctx.Done()
		l.Close()
		return nil
	})

	errg.Go(func() error {
		for {
			conn, err := l.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("failed to accept connection: %w", err)
			}

			session := newSession(conn, s.opts)
			session.logger.Info("client connected")

			ctx, cancel := context.WithCancelCause(ctx)
			s.connections.Store(session, sessionControl{cancel: cancel})

			errg.Go(func() error {
				defer s.connections.Delete(session)
				defer cancel(nil)

				// A broken client must not take the server down.
				if err := session.Start(ctx); err != nil {
					session.logger.Warn(
						"client session ended with error",
						"error", err)
				} else {
					session.logger.Info("client disconnected")
				}
				return nil
			})
		}
	})

	return errg.Wait()
}

// Session serves a single client connection.
type Session struct {
	conn   net.Conn
	logger *slog.Logger
	opts   ServerOpts

	connectedAt time.Time
	frames      atomic.Uint64
	lastFrame   atomic.Int64 // unix nanoseconds
}

func newSession(conn net.Conn, opts ServerOpts) *Session {
	return &Session{
		conn:        conn,
		logger:      opts.Logger.With("addr", conn.RemoteAddr()),
		opts:        opts,
		connectedAt: time.Now(),
	}
}

// Status returns a snapshot of the session's counters. It is safe to call
// while the session is running.
func (s *Session) Status() ClientStatus {
	status := ClientStatus{
		Addr:        s.conn.RemoteAddr().String(),
		ConnectedAt: s.connectedAt,
		Frames:      s.frames.Load(),
	}
	if ns := s.lastFrame.Load(); ns != 0 {
		status.LastFrame = time.Unix(0, ns)
	}
	return status
}

// Start serves the connection until the client disconnects or ctx is done.
// The connection is closed when Start returns.
func (s *Session) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errg, ctx := errgroup.WithContext(ctx)

	errg.Go(func() error {
		<-ctx.Done()

		s.logger.DebugContext(ctx,
			"closing connection",
			"cause", context.Cause(ctx))

		if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.WarnContext(ctx,
				"failed to close connection",
				"error", err)

			return fmt.Errorf("failed to close connection: %w", err)
		}

		return nil
	})

	errg.Go(func() error {
		defer cancel()
		return s.mainLoop(ctx)
	})

	return errg.Wait()
}

func (s *Session) mainLoop(ctx context.Context) error {
	frame := NewPixelBuffer(s.opts.PixelCount)

	// Turn the lights off once the client is gone.
	defer func() {
		frame.Clear()
		if err := s.opts.Handler.HandleFrame(frame); err != nil {
			s.logger.Warn(
				"failed to blank pixels",
				"error", err)
		}
	}()

	for {
		if _, err := io.ReadFull(s.conn, frame); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read frame: %w", err)
		}

		if err := s.opts.Handler.HandleFrame(frame); err != nil {
			return fmt.Errorf("failed to handle frame: %w", err)
		}

		s.frames.Add(1)
		s.lastFrame.Store(time.Now().UnixNano())

		if s.opts.Ack {
			if _, err := s.conn.Write(AckToken[:]); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("failed to write acknowledgment: %w", err)
			}
		}
	}
}
