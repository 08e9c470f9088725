package effects

import (
	"math"
	"time"

	"dev.acmcsuf.com/pixeltree"
	"dev.acmcsuf.com/pixeltree/pixelmap"
	"github.com/lucasb-eyer/go-colorful"
)

const beachballSpeed = 2.0

// Beachball paints the structure with a rainbow wrapped around its vertical
// axis and spins it.
type Beachball struct {
	angles []float64
	buf    pixeltree.PixelBuffer

	progress float64
}

// NewBeachball creates a beachball effect.
func NewBeachball(m *pixelmap.Map) *Beachball {
	angles := make([]float64, m.Len())
	for i, p := range m.Points() {
		angles[i] = math.Atan2(p.Y, p.X) + math.Pi
	}

	e := &Beachball{
		angles: angles,
		buf:    pixeltree.NewPixelBuffer(m.Len()),
	}
	e.Reset()
	return e
}

// Reset implements pixeltree.Effect.
func (e *Beachball) Reset() {
	e.progress = 0
}

// Animate implements pixeltree.Effect.
func (e *Beachball) Animate(elapsed time.Duration) pixeltree.PixelBuffer {
	e.progress += beachballSpeed * elapsed.Seconds()
	if e.progress > 2*math.Pi {
		e.progress = 0
	}

	for i, angle := range e.angles {
		hue := math.Mod((angle+e.progress)*180/math.Pi, 360)
		setPixel(e.buf, i, colorful.Hsv(hue, 1, 1), 1)
	}
	return e.buf
}
