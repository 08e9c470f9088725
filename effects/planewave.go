package effects

import (
	"math/rand"
	"time"

	"dev.acmcsuf.com/pixeltree"
	"dev.acmcsuf.com/pixeltree/pixelmap"
	"github.com/golang/geo/r3"
	"github.com/lucasb-eyer/go-colorful"
)

const (
	planeWaveSpeed     = 0.75
	planeWaveSharpness = 250
	planeWaveStart     = -2.0
	planeWaveEnd       = 2.0
)

// PlaneWave sweeps a thin band of light through the structure. Every pass
// picks a new direction and hue.
type PlaneWave struct {
	points []r3.Vector
	buf    pixeltree.PixelBuffer

	normal   r3.Vector
	progress float64
	color    colorful.Color
}

// NewPlaneWave creates a plane wave effect.
func NewPlaneWave(m *pixelmap.Map) *PlaneWave {
	e := &PlaneWave{
		points: vectors(m),
		buf:    pixeltree.NewPixelBuffer(m.Len()),
	}
	e.Reset()
	return e
}

// Reset implements pixeltree.Effect.
func (e *PlaneWave) Reset() {
	e.normal = r3.Vector{X: 0, Y: 0, Z: 1}
	e.progress = planeWaveStart
	e.color = colorful.Color{R: 1, G: 1, B: 1}
}

// Animate implements pixeltree.Effect.
func (e *PlaneWave) Animate(elapsed time.Duration) pixeltree.PixelBuffer {
	e.progress += planeWaveSpeed * elapsed.Seconds()
	if e.progress > planeWaveEnd {
		e.progress = planeWaveStart
		e.normal = randomDirection()
		e.color = randomHue()
	}

	for i, p := range e.points {
		intensity := gaussian(p.Dot(e.normal)+e.progress, planeWaveSharpness)
		setPixel(e.buf, i, e.color, intensity)
	}
	return e.buf
}

func randomDirection() r3.Vector {
	for {
		v := r3.Vector{X: rand.NormFloat64(), Y: rand.NormFloat64(), Z: rand.NormFloat64()}
		if v.Norm() > 1e-9 {
			return v.Normalize()
		}
	}
}

func vectors(m *pixelmap.Map) []r3.Vector {
	vs := make([]r3.Vector, m.Len())
	for i, p := range m.Points() {
		vs[i] = r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
	}
	return vs
}
