package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dev.acmcsuf.com/christmas/lib/xcolor"
	"dev.acmcsuf.com/pixeltree"
	"libdb.so/ledctl"
)

// RGBController is a controller for RGB LEDs.
type RGBController interface {
	SetRGBAt(i int, color ledctl.RGB)
	Flush() error
}

type ledController struct {
	logger *slog.Logger

	drawCh chan struct{}
	ctrl   RGBController
	ctrlMu sync.Mutex

	cfg ledControlConfig
}

var _ pixeltree.FrameHandler = (*ledController)(nil)

type ledControlConfig struct {
	Controller RGBController
	PixelCount int
	// MaxFrameRate caps how often the strip is flushed. If zero, every frame
	// is flushed before it is acknowledged.
	MaxFrameRate int

	Logger *slog.Logger
}

func newLEDController(cfg ledControlConfig) *ledController {
	return &ledController{
		logger: cfg.Logger,
		drawCh: make(chan struct{}, 1),
		ctrl:   cfg.Controller,
		cfg:    cfg,
	}
}

func (c *ledController) start(ctx context.Context) {
	if c.cfg.MaxFrameRate <= 0 {
		return
	}

	drawCh := c.drawCh

	frameTicker := time.NewTicker(time.Second / time.Duration(c.cfg.MaxFrameRate))
	defer frameTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-frameTicker.C:
			drawCh = c.drawCh
			continue
		case <-drawCh:
			drawCh = nil
		}

		c.ctrlMu.Lock()
		if err := c.ctrl.Flush(); err != nil {
			c.logger.Error(
				"error writing LED strip",
				"error", err)
		}
		c.ctrlMu.Unlock()
	}
}

// HandleFrame implements pixeltree.FrameHandler.
func (c *ledController) HandleFrame(frame pixeltree.PixelBuffer) error {
	if frame.Len() != c.cfg.PixelCount {
		return fmt.Errorf("frame has %d pixels, strip has %d", frame.Len(), c.cfg.PixelCount)
	}

	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()

	for i := 0; i < frame.Len(); i++ {
		r, g, b := frame.At(i)
		color := xcolor.RGBFromUint(uint32(r)<<16 | uint32(g)<<8 | uint32(b))
		c.ctrl.SetRGBAt(i, ledctl.RGB(color))
	}

	if c.cfg.MaxFrameRate <= 0 {
		if err := c.ctrl.Flush(); err != nil {
			return fmt.Errorf("failed to write LED strip: %w", err)
		}
		return nil
	}

	c.queueDraw()
	return nil
}

func (c *ledController) queueDraw() {
	select {
	case c.drawCh <- struct{}{}:
	default:
	}
}
