package effects

import (
	"math/rand"
	"time"

	"dev.acmcsuf.com/pixeltree"
	"dev.acmcsuf.com/pixeltree/pixelmap"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/ojrac/opensimplex-go"
)

const (
	noiseSpeed = 0.15
	noiseScale = 1.5
)

// Noise drifts a 3D simplex noise field through the structure and colors it
// with a gradient between two random hues.
type Noise struct {
	points []pixelmap.Point
	buf    pixeltree.PixelBuffer

	noise  opensimplex.Noise
	time   float64
	colorA colorful.Color
	colorB colorful.Color
}

// NewNoise creates a noise effect.
func NewNoise(m *pixelmap.Map) *Noise {
	e := &Noise{
		points: m.Points(),
		buf:    pixeltree.NewPixelBuffer(m.Len()),
	}
	e.Reset()
	return e
}

// Reset implements pixeltree.Effect.
func (e *Noise) Reset() {
	e.noise = opensimplex.NewNormalized(rand.Int63())
	e.time = 0
	e.colorA = randomHue()
	e.colorB = randomHue()
}

// Animate implements pixeltree.Effect.
func (e *Noise) Animate(elapsed time.Duration) pixeltree.PixelBuffer {
	e.time += noiseSpeed * elapsed.Seconds()

	for i, p := range e.points {
		v := e.noise.Eval4(p.X*noiseScale, p.Y*noiseScale, p.Z*noiseScale, e.time)
		c := e.colorA.BlendLab(e.colorB, v)
		setPixel(e.buf, i, c, v*v)
	}
	return e.buf
}
