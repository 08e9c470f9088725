// Package effects contains the visual effects rotated by the coordinator.
// Every effect is positioned in normalized pixel space, where the largest
// extent of the structure spans [-1, 1].
package effects

import (
	"math"
	"math/rand"
	"slices"

	"dev.acmcsuf.com/pixeltree"
	"dev.acmcsuf.com/pixeltree/pixelmap"
	"github.com/lucasb-eyer/go-colorful"
)

// Constructor creates an effect for a normalized pixel map.
type Constructor func(m *pixelmap.Map) pixeltree.Effect

var registry = map[string]Constructor{
	"plane-wave": func(m *pixelmap.Map) pixeltree.Effect { return NewPlaneWave(m) },
	"pinwheel":   func(m *pixelmap.Map) pixeltree.Effect { return NewPinwheel(m) },
	"beachball":  func(m *pixelmap.Map) pixeltree.Effect { return NewBeachball(m) },
	"noise":      func(m *pixelmap.Map) pixeltree.Effect { return NewNoise(m) },
	"spotlight":  func(m *pixelmap.Map) pixeltree.Effect { return NewSpotlight(m) },
	"life":       func(m *pixelmap.Map) pixeltree.Effect { return NewLife(m) },
}

// Names returns the names of all known effects, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// New creates the named effects for m. The map is normalized first. If no
// names are given, every known effect is created.
func New(m *pixelmap.Map, names ...string) (map[string]pixeltree.Effect, error) {
	if len(names) == 0 {
		names = Names()
	}

	norm := m.Normalize()
	pool := make(map[string]pixeltree.Effect, len(names))
	for _, name := range names {
		ctor, ok := registry[name]
		if !ok {
			return nil, &UnknownEffectError{Name: name}
		}
		pool[name] = ctor(norm)
	}
	return pool, nil
}

// UnknownEffectError is returned by New for a name that is not registered.
type UnknownEffectError struct {
	Name string
}

// Error implements error.
func (e *UnknownEffectError) Error() string {
	return "unknown effect " + e.Name
}

func gaussian(v, sharpness float64) float64 {
	return math.Exp(-v * v * sharpness)
}

func randomHue() colorful.Color {
	return colorful.Hsv(rand.Float64()*360, 1, 1)
}

// setPixel writes c dimmed by intensity into pixel i.
func setPixel(buf pixeltree.PixelBuffer, i int, c colorful.Color, intensity float64) {
	c = colorful.Color{R: c.R * intensity, G: c.G * intensity, B: c.B * intensity}.Clamped()
	r, g, b := c.RGB255()
	buf.Set(i, r, g, b)
}
