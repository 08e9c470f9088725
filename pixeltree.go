// Package pixeltree drives an array of individually addressable pixels. It
// renders frames from rotating effects at a fixed rate and streams them to a
// remote sink over a socket.
package pixeltree

import (
	"errors"
	"fmt"
	"time"
)

// BytesPerPixel is the number of bytes each pixel occupies in a frame.
const BytesPerPixel = 3

// ErrFrameSize is returned when a frame does not have exactly the configured
// number of bytes.
var ErrFrameSize = errors.New("frame has the wrong size")

// Effect produces one frame per tick. An effect owns its animation state,
// which persists across ticks until Reset is called.
type Effect interface {
	// Reset reinitializes the animation state. It is called every time the
	// effect becomes active.
	Reset()
	// Animate advances the animation by elapsed and returns the frame to
	// display. The returned buffer must hold exactly one RGB triple per pixel.
	Animate(elapsed time.Duration) PixelBuffer
}

// PixelBuffer is a frame of RGB triples, one per pixel, in pixel index order.
// Pixel i occupies bytes 3i, 3i+1 and 3i+2.
type PixelBuffer []byte

// NewPixelBuffer allocates an all-black frame for pixelCount pixels.
func NewPixelBuffer(pixelCount int) PixelBuffer {
	return make(PixelBuffer, pixelCount*BytesPerPixel)
}

// Len returns the number of pixels in the buffer.
func (b PixelBuffer) Len() int {
	return len(b) / BytesPerPixel
}

// Set sets pixel i.
func (b PixelBuffer) Set(i int, r, g, bl uint8) {
	o := i * BytesPerPixel
	b[o] = r
	b[o+1] = g
	b[o+2] = bl
}

// At returns pixel i.
func (b PixelBuffer) At(i int) (r, g, bl uint8) {
	o := i * BytesPerPixel
	return b[o], b[o+1], b[o+2]
}

// Fill sets every pixel to the same color.
func (b PixelBuffer) Fill(r, g, bl uint8) {
	for i := 0; i < b.Len(); i++ {
		b.Set(i, r, g, bl)
	}
}

// Clear sets every byte to zero.
func (b PixelBuffer) Clear() {
	clear(b)
}

// Scale multiplies every channel by percent, truncating to an integer.
// Percent is clamped to [0, 1].
func (b PixelBuffer) Scale(percent float64) {
	percent = max(0, min(1, percent))
	if percent == 1 {
		return
	}
	for i, v := range b {
		b[i] = uint8(float64(v) * percent)
	}
}

func checkFrameSize(b PixelBuffer, pixelCount int) error {
	if len(b) != pixelCount*BytesPerPixel {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(b), pixelCount*BytesPerPixel)
	}
	return nil
}
