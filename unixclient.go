package pixeltree

import (
	"context"
	"net"
	"time"
)

// UnixClient sends frames over a local socket without waiting for any
// acknowledgment. It is meant for sinks running on the same machine, such as
// the simulator.
type UnixClient struct {
	conn    net.Conn
	timeout time.Duration
}

// DialUnix connects to the sink listening on the socket at path. A non-zero
// timeout bounds each write.
func DialUnix(ctx context.Context, path string, timeout time.Duration) (*UnixClient, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, &TransportError{Op: "dial", Addr: path, Err: err}
	}
	return NewUnixClient(conn, timeout), nil
}

// NewUnixClient creates a client over an established connection. The client
// takes ownership of conn.
func NewUnixClient(conn net.Conn, timeout time.Duration) *UnixClient {
	return &UnixClient{conn: conn, timeout: timeout}
}

// SendFrame writes frame and returns immediately.
func (c *UnixClient) SendFrame(frame PixelBuffer) error {
	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return transportError(c.conn, "set deadline", err)
		}
	}
	if err := writeFrame(c.conn, frame); err != nil {
		return transportError(c.conn, "write frame", err)
	}
	return nil
}

// Close closes the connection.
func (c *UnixClient) Close() error {
	return c.conn.Close()
}
