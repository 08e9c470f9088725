package pixeltree

import (
	"fmt"
	"io"
	"net"
)

// AckSize is the size of the acknowledgment a sink sends after consuming a
// frame.
const AckSize = 4

// AckToken is the acknowledgment sent by Server.
var AckToken = [AckSize]byte{'t', 'r', 'u', 'e'}

// FrameSink sends frames to a remote consumer. Frames are written as raw
// bytes with no header or delimiter.
type FrameSink interface {
	// SendFrame sends one frame. It returns a *TransportError on failure.
	SendFrame(frame PixelBuffer) error
	// Close closes the connection.
	Close() error
}

var (
	_ FrameSink = (*TCPClient)(nil)
	_ FrameSink = (*UnixClient)(nil)
)

// TransportError is a failure to deliver frames to a sink. There is no
// reconnection; a TransportError means the connection is unusable.
type TransportError struct {
	// Op is the operation that failed.
	Op string
	// Addr is the address of the sink.
	Addr string
	// Err is the underlying error.
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to %s (%s): %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func transportError(conn net.Conn, op string, err error) error {
	addr := "unknown"
	if ra := conn.RemoteAddr(); ra != nil {
		addr = ra.String()
	}
	return &TransportError{Op: op, Addr: addr, Err: err}
}

// writeFrame writes the whole frame or fails.
func writeFrame(w io.Writer, frame PixelBuffer) error {
	n, err := w.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return io.ErrShortWrite
	}
	return nil
}
