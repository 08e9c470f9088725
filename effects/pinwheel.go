package effects

import (
	"math"
	"time"

	"dev.acmcsuf.com/pixeltree"
	"dev.acmcsuf.com/pixeltree/pixelmap"
	"github.com/lucasb-eyer/go-colorful"
)

const (
	pinwheelSpeed     = 1.0
	pinwheelSharpness = 100
)

// Pinwheel spins a band of light around the horizontal axis, switching hue
// every half turn.
type Pinwheel struct {
	points []pixelmap.Point
	buf    pixeltree.PixelBuffer

	angle float64
	color colorful.Color
}

// NewPinwheel creates a pinwheel effect.
func NewPinwheel(m *pixelmap.Map) *Pinwheel {
	e := &Pinwheel{
		points: m.Points(),
		buf:    pixeltree.NewPixelBuffer(m.Len()),
	}
	e.Reset()
	return e
}

// Reset implements pixeltree.Effect.
func (e *Pinwheel) Reset() {
	e.angle = 0
	e.color = colorful.Color{R: 1, G: 1, B: 1}
}

// Animate implements pixeltree.Effect.
func (e *Pinwheel) Animate(elapsed time.Duration) pixeltree.PixelBuffer {
	e.angle += pinwheelSpeed * elapsed.Seconds()
	if e.angle > math.Pi/2 {
		e.angle = -math.Pi / 2
		e.color = randomHue()
	}

	sin, cos := math.Sincos(e.angle)
	for i, p := range e.points {
		// Height of the pixel once the structure is rotated about X.
		z := p.Y*sin + p.Z*cos
		setPixel(e.buf, i, e.color, gaussian(z, pinwheelSharpness))
	}
	return e.buf
}
