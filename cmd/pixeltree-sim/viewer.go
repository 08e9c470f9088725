package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"dev.acmcsuf.com/pixeltree"
	"dev.acmcsuf.com/pixeltree/pixelmap"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/gofrs/uuid/v5"
	"golang.org/x/sync/errgroup"
	"gopkg.in/typ.v4/sync2"
)

// viewerHub fans frames out to every connected browser viewer. It is the
// FrameHandler of the simulator's frame servers.
type viewerHub struct {
	ctx      context.Context
	pixelMap *pixelmap.Map
	upgrader ws.HTTPUpgrader
	logger   *slog.Logger

	viewers sync2.Map[string, *viewer]

	lastMu sync.Mutex
	last   pixeltree.PixelBuffer
}

var _ pixeltree.FrameHandler = (*viewerHub)(nil)

func newViewerHub(ctx context.Context, pixelMap *pixelmap.Map, logger *slog.Logger) *viewerHub {
	return &viewerHub{
		ctx:      ctx,
		pixelMap: pixelMap,
		logger:   logger,
		last:     pixeltree.NewPixelBuffer(pixelMap.Len()),
	}
}

// HandleFrame implements pixeltree.FrameHandler.
func (h *viewerHub) HandleFrame(frame pixeltree.PixelBuffer) error {
	h.lastMu.Lock()
	copy(h.last, frame)
	h.lastMu.Unlock()

	h.viewers.Range(func(_ string, v *viewer) bool {
		v.setFrame(frame)
		return true
	})

	return nil
}

func (h *viewerHub) handleWS(w http.ResponseWriter, r *http.Request) {
	wsconn, _, _, err := h.upgrader.Upgrade(r, w)
	if err != nil {
		h.logger.Debug(
			"failed to upgrade viewer",
			"error", err)
		return
	}

	v := &viewer{
		frame:  make(chan struct{}, 1),
		buffer: pixeltree.NewPixelBuffer(h.pixelMap.Len()),
		wsconn: wsconn,
	}

	h.lastMu.Lock()
	v.setFrame(h.last)
	h.lastMu.Unlock()

	id := h.addViewer(v)
	defer h.viewers.Delete(id)

	v.logger = h.logger.With("viewer", id)
	v.logger.Info("viewer connected")

	init := ViewerInit{
		ViewerID: id,
		Points:   h.pixelMap.Points(),
	}

	if err := v.start(r.Context(), h.ctx.Done(), init); err != nil {
		v.logger.Warn(
			"viewer ended with error",
			"error", err)
		return
	}

	v.logger.Info("viewer disconnected")
}

func (h *viewerHub) addViewer(v *viewer) string {
	for {
		uuid, err := uuid.NewV7()
		if err != nil {
			panic(err)
		}

		id := uuid.String()
		if _, collided := h.viewers.LoadOrStore(id, v); !collided {
			return id
		}
	}
}

type viewer struct {
	frame    chan struct{}
	bufferMu sync.Mutex
	buffer   pixeltree.PixelBuffer

	wsconn io.ReadWriteCloser
	logger *slog.Logger
}

// setFrame replaces the pending frame. A slow viewer only ever sees the
// latest frame.
func (v *viewer) setFrame(frame pixeltree.PixelBuffer) {
	v.bufferMu.Lock()
	copy(v.buffer, frame)
	v.bufferMu.Unlock()

	select {
	case v.frame <- struct{}{}:
	default:
	}
}

func (v *viewer) start(ctx context.Context, shutdown <-chan struct{}, init ViewerInit) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errg, ctx := errgroup.WithContext(ctx)

	errg.Go(func() error {
		<-ctx.Done()

		v.logger.DebugContext(ctx,
			"closing websocket",
			"error", ctx.Err().Error())

		if closeErr := v.wsconn.Close(); closeErr != nil {
			return fmt.Errorf("failed to close websocket: %w", closeErr)
		}

		return nil
	})

	// Viewers never send anything meaningful, but control frames still have
	// to be answered and a close frame ends the session.
	errg.Go(func() error {
		defer cancel()

		var buf bytes.Buffer
		for {
			_, err := wsReadData(&buf, v.wsconn, ws.StateServerSide, ws.OpBinary|ws.OpText)
			if err != nil {
				var closedErr wsutil.ClosedError
				if errors.As(err, &closedErr) {
					v.logger.DebugContext(ctx,
						"received close frame from viewer")

					return nil
				}

				if ctx.Err() != nil {
					return nil
				}

				return fmt.Errorf("failed to read from websocket: %w", err)
			}
		}
	})

	errg.Go(func() error {
		defer cancel()

		if err := wsutil.WriteServerText(v.wsconn, marshalViewerEvent(init)); err != nil {
			return fmt.Errorf("failed to write init event: %w", err)
		}

		frame := pixeltree.NewPixelBuffer(len(init.Points))
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-shutdown:
				v.sayGoodbye(ctx, "simulator is shutting down")

				// Give the viewer 2 seconds to answer the close frame.
				timer := time.NewTimer(2 * time.Second)
				defer timer.Stop()

				select {
				case <-timer.C:
				case <-ctx.Done():
				}
				return nil
			case <-v.frame:
			}

			v.bufferMu.Lock()
			copy(frame, v.buffer)
			v.bufferMu.Unlock()

			if err := wsutil.WriteServerBinary(v.wsconn, frame); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("failed to write frame: %w", err)
			}
		}
	})

	return errg.Wait()
}

func (v *viewer) sayGoodbye(ctx context.Context, reason string) {
	msg := marshalViewerEvent(ViewerError{Message: reason})
	if err := wsutil.WriteServerText(v.wsconn, msg); err != nil {
		v.logger.DebugContext(ctx,
			"failed to write error event",
			"error", err)
		return
	}

	body := ws.NewCloseFrameBody(ws.StatusGoingAway, reason)
	if err := ws.WriteFrame(v.wsconn, ws.NewCloseFrame(body)); err != nil {
		v.logger.DebugContext(ctx,
			"failed to write close frame",
			"error", err)
	}
}

func wsReadData(dst *bytes.Buffer, src io.ReadWriter, s ws.State, want ws.OpCode) (ws.OpCode, error) {
	controlHandler := wsutil.ControlFrameHandler(src, s)
	rd := wsutil.Reader{
		Source:          src,
		State:           s,
		SkipHeaderCheck: false,
		OnIntermediate:  controlHandler,
	}
	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			return 0, err
		}
		if hdr.OpCode.IsControl() {
			if err := controlHandler(hdr, &rd); err != nil {
				return 0, err
			}
			continue
		}
		if hdr.OpCode&want == 0 {
			if err := rd.Discard(); err != nil {
				return 0, err
			}
			continue
		}

		dst.Reset()
		_, err = io.Copy(dst, &rd)
		return hdr.OpCode, err
	}
}
