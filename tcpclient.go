package pixeltree

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

// TCPClientOpts are options for a TCPClient.
type TCPClientOpts struct {
	// SkipAck makes SendFrame return as soon as the frame is written.
	// Acknowledgments are then consumed in the background and only a broken
	// connection is reported.
	SkipAck bool
	// Timeout bounds each SendFrame, including the wait for the
	// acknowledgment. Zero means no timeout.
	Timeout time.Duration
}

// TCPClient sends frames over a stream connection and waits for the sink to
// acknowledge each one. Waiting for the acknowledgment throttles the caller
// to the rate at which the sink actually displays frames.
type TCPClient struct {
	conn net.Conn
	opts TCPClientOpts
	ack  [AckSize]byte

	readErr  chan error
	readDone chan struct{}
	close    sync.Once
}

// DialTCP connects to the sink at addr.
func DialTCP(ctx context.Context, addr string, opts TCPClientOpts) (*TCPClient, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &TransportError{Op: "dial", Addr: addr, Err: err}
	}
	return NewTCPClient(conn, opts), nil
}

// NewTCPClient creates a client over an established connection. The client
// takes ownership of conn.
func NewTCPClient(conn net.Conn, opts TCPClientOpts) *TCPClient {
	c := &TCPClient{
		conn: conn,
		opts: opts,
	}
	if opts.SkipAck {
		c.readErr = make(chan error, 1)
		c.readDone = make(chan struct{})
		go c.discardAcks()
	}
	return c
}

func (c *TCPClient) discardAcks() {
	defer close(c.readDone)

	_, err := io.Copy(io.Discard, c.conn)
	if err == nil {
		err = io.EOF
	}
	c.readErr <- err
}

// SendFrame writes frame and, unless SkipAck is set, blocks until the
// acknowledgment has been read.
func (c *TCPClient) SendFrame(frame PixelBuffer) error {
	if c.opts.SkipAck {
		select {
		case err := <-c.readErr:
			// Keep reporting the failure on every later call.
			c.readErr <- err
			return transportError(c.conn, "read acknowledgment", err)
		default:
		}
	}

	if c.opts.Timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.opts.Timeout)); err != nil {
			return transportError(c.conn, "set deadline", err)
		}
	}

	if err := writeFrame(c.conn, frame); err != nil {
		return transportError(c.conn, "write frame", err)
	}

	if c.opts.SkipAck {
		return nil
	}

	if _, err := io.ReadFull(c.conn, c.ack[:]); err != nil {
		return transportError(c.conn, "read acknowledgment", err)
	}

	return nil
}

// Close closes the connection.
func (c *TCPClient) Close() error {
	var err error
	c.close.Do(func() {
		err = c.conn.Close()
		if c.readDone != nil {
			<-c.readDone
		}
	})
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
