package effects

import (
	"math"
	"math/rand"
	"time"

	"dev.acmcsuf.com/pixeltree"
	"dev.acmcsuf.com/pixeltree/pixelmap"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/lucasb-eyer/go-colorful"
)

const (
	spotlightRadius     = 50 * s1.Degree
	spotlightOrbitSpeed = 60.0 // degrees of longitude per second
	spotlightBobSpeed   = 0.5  // radians per second
	spotlightHueSpeed   = 20.0 // degrees of hue per second
)

// Spotlight projects every pixel onto a sphere around the center of the
// structure and sweeps a soft spot of light across it.
type Spotlight struct {
	points []s2.Point
	buf    pixeltree.PixelBuffer

	time float64
	hue  float64
}

// NewSpotlight creates a spotlight effect.
func NewSpotlight(m *pixelmap.Map) *Spotlight {
	points := make([]s2.Point, m.Len())
	for i, p := range m.Points() {
		points[i] = s2.PointFromCoords(p.X, p.Y, p.Z)
	}

	e := &Spotlight{
		points: points,
		buf:    pixeltree.NewPixelBuffer(m.Len()),
	}
	e.Reset()
	return e
}

// Reset implements pixeltree.Effect.
func (e *Spotlight) Reset() {
	e.time = 0
	e.hue = rand.Float64() * 360
}

// Animate implements pixeltree.Effect.
func (e *Spotlight) Animate(elapsed time.Duration) pixeltree.PixelBuffer {
	e.time += elapsed.Seconds()
	hue := math.Mod(e.hue+spotlightHueSpeed*e.time, 360)
	color := colorful.Hsv(hue, 1, 1)

	lat := 45 * math.Sin(spotlightBobSpeed*e.time)
	lng := math.Mod(spotlightOrbitSpeed*e.time, 360) - 180
	center := s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lng))

	for i, p := range e.points {
		var intensity float64
		if d := p.Distance(center); d < spotlightRadius {
			intensity = 1 - float64(d/spotlightRadius)
		}
		setPixel(e.buf, i, color, intensity)
	}
	return e.buf
}
