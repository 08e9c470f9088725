package pixeltree

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
)

func TestTCPClient(t *testing.T) {
	tests := []struct {
		name string
		opts TCPClientOpts
		// sink plays the receiving end of the connection.
		sink    func(t *testing.T, conn net.Conn)
		wantErr string
		wantIs  error
	}{
		{
			name: "acknowledged",
			sink: func(t *testing.T, conn net.Conn) {
				frame := NewPixelBuffer(testPixelCount)
				if _, err := io.ReadFull(conn, frame); err != nil {
					t.Error("failed to read frame:", err)
					return
				}
				assertEq(t, solidFrame(0xFF), frame)
				conn.Write(AckToken[:])
			},
		},
		{
			name: "severed mid-frame",
			sink: func(t *testing.T, conn net.Conn) {
				var partial [5]byte
				io.ReadFull(conn, partial[:])
				conn.Close()
			},
			wantErr: "write frame",
		},
		{
			name: "closed before acknowledging",
			sink: func(t *testing.T, conn net.Conn) {
				frame := NewPixelBuffer(testPixelCount)
				io.ReadFull(conn, frame)
				conn.Close()
			},
			wantErr: "read acknowledgment",
			wantIs:  io.EOF,
		},
		{
			name: "acknowledgment timeout",
			opts: TCPClientOpts{Timeout: 50 * time.Millisecond},
			sink: func(t *testing.T, conn net.Conn) {
				frame := NewPixelBuffer(testPixelCount)
				io.ReadFull(conn, frame)
			},
			wantErr: "read acknowledgment",
			wantIs:  os.ErrDeadlineExceeded,
		},
		{
			name: "skip acknowledgment",
			opts: TCPClientOpts{SkipAck: true},
			sink: func(t *testing.T, conn net.Conn) {
				frame := NewPixelBuffer(testPixelCount)
				io.ReadFull(conn, frame)
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			conn1, conn2 := net.Pipe()
			t.Cleanup(func() { conn2.Close() })

			done := make(chan struct{})
			go func() {
				defer close(done)
				test.sink(t, conn2)
			}()

			client := NewTCPClient(conn1, test.opts)
			err := client.SendFrame(solidFrame(0xFF))

			<-done
			if closeErr := client.Close(); closeErr != nil {
				t.Error("failed to close client:", closeErr)
			}

			if test.wantErr == "" {
				if err != nil {
					t.Fatal("unexpected error:", err)
				}
				return
			}

			var transportErr *TransportError
			if !errors.As(err, &transportErr) {
				t.Fatalf("expected *TransportError, got %v", err)
			}
			assertEq(t, test.wantErr, transportErr.Op)

			if test.wantIs != nil && !errors.Is(err, test.wantIs) {
				t.Fatalf("expected error to wrap %v, got %v", test.wantIs, err)
			}
		})
	}
}

func TestTCPClientSkipAckReportsBrokenConnection(t *testing.T) {
	conn1, conn2 := net.Pipe()

	client := NewTCPClient(conn1, TCPClientOpts{SkipAck: true})
	defer client.Close()

	go func() {
		frame := NewPixelBuffer(testPixelCount)
		io.ReadFull(conn2, frame)
		conn2.Write(AckToken[:])
		conn2.Close()
	}()

	if err := client.SendFrame(solidFrame(1)); err != nil {
		t.Fatal("first frame failed:", err)
	}

	// The broken connection surfaces on a later send, and keeps surfacing.
	deadline := time.Now().Add(5 * time.Second)
	for {
		err := client.SendFrame(solidFrame(2))
		if err != nil {
			var transportErr *TransportError
			if !errors.As(err, &transportErr) {
				t.Fatalf("expected *TransportError, got %v", err)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("broken connection was never reported")
		}
	}

	if err := client.SendFrame(solidFrame(3)); err == nil {
		t.Fatal("expected the failure to be reported again")
	}
}

func TestDialTCPError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	_, err = DialTCP(context.Background(), addr, TCPClientOpts{})

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected *TransportError, got %v", err)
	}
	assertEq(t, "dial", transportErr.Op)
	assertEq(t, addr, transportErr.Addr)
}

func TestUnixClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "sim.sock")

	l, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal("failed to listen:", err)
	}

	handler := newRecordHandler()
	server, err := NewServer(ServerOpts{
		PixelCount: testPixelCount,
		Handler:    handler,
		Logger:     slogt.New(t),
	})
	if err != nil {
		t.Fatal("failed to create server:", err)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(ctx, l) }()

	client, err := DialUnix(ctx, path, time.Second)
	if err != nil {
		t.Fatal("failed to dial:", err)
	}

	for i := byte(1); i <= 3; i++ {
		if err := client.SendFrame(solidFrame(i)); err != nil {
			t.Fatal("failed to send frame:", err)
		}
	}
	for i := byte(1); i <= 3; i++ {
		assertFrame(t, handler.frames, solidFrame(i))
	}

	if err := client.Close(); err != nil {
		t.Fatal("failed to close client:", err)
	}
	assertFrame(t, handler.frames, NewPixelBuffer(testPixelCount))

	cancel()
	if err := <-serveErr; err != nil {
		t.Fatal("serve failed:", err)
	}
}

func TestUnixClientSevered(t *testing.T) {
	conn1, conn2 := net.Pipe()
	conn2.Close()

	client := NewUnixClient(conn1, 0)
	defer client.Close()

	err := client.SendFrame(solidFrame(1))

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected *TransportError, got %v", err)
	}
	assertEq(t, "write frame", transportErr.Op)
}

func TestTransportErrorMessage(t *testing.T) {
	err := &TransportError{Op: "write frame", Addr: "10.0.0.2:7689", Err: io.ErrClosedPipe}
	assertEq(t, "failed to write frame (10.0.0.2:7689): io: read/write on closed pipe", err.Error())
}
