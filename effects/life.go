package effects

import (
	"bytes"
	"math"
	"math/rand"
	"time"

	"dev.acmcsuf.com/pixeltree"
	"dev.acmcsuf.com/pixeltree/pixelmap"
	"github.com/lucasb-eyer/go-colorful"
)

const (
	lifeCellSize   = 0.25
	lifeDensity    = 0.2
	lifeStepPeriod = time.Second
	// A game that shows nothing new for this many generations is reseeded,
	// since it may only be alive outside the structure.
	lifeStaleSteps = 5

	// Rule 4555: a live cell survives with 4 or 5 live neighbors and a dead
	// cell comes alive with exactly 5.
	lifeSurviveMin = 4
	lifeSurviveMax = 5
	lifeBorn       = 5
)

// Life plays Conway's Game of Life on a 3D grid of cells laid over the
// structure. A pixel is lit while the cell containing it is alive.
type Life struct {
	cells []int // cell index of every pixel
	dims  [3]int
	buf   pixeltree.PixelBuffer
	prev  pixeltree.PixelBuffer

	board []bool
	next  []bool
	color colorful.Color
	timer time.Duration
	dark  int
	still int
}

// NewLife creates a game of life effect.
func NewLife(m *pixelmap.Map) *Life {
	lo, hi := m.Bounds()
	lo = pixelmap.Point{X: lo.X - lifeCellSize, Y: lo.Y - lifeCellSize, Z: lo.Z - lifeCellSize}
	hi = pixelmap.Point{X: hi.X + lifeCellSize, Y: hi.Y + lifeCellSize, Z: hi.Z + lifeCellSize}

	e := &Life{
		dims: [3]int{
			int(math.Ceil((hi.X - lo.X) / lifeCellSize)),
			int(math.Ceil((hi.Y - lo.Y) / lifeCellSize)),
			int(math.Ceil((hi.Z - lo.Z) / lifeCellSize)),
		},
		cells: make([]int, m.Len()),
		buf:   pixeltree.NewPixelBuffer(m.Len()),
		prev:  pixeltree.NewPixelBuffer(m.Len()),
	}

	for i, p := range m.Points() {
		e.cells[i] = e.index(
			int((p.X-lo.X)/lifeCellSize),
			int((p.Y-lo.Y)/lifeCellSize),
			int((p.Z-lo.Z)/lifeCellSize))
	}

	size := e.dims[0] * e.dims[1] * e.dims[2]
	e.board = make([]bool, size)
	e.next = make([]bool, size)

	e.Reset()
	return e
}

// Reset implements pixeltree.Effect.
func (e *Life) Reset() {
	e.timer = 0
	e.seed()
}

// Animate implements pixeltree.Effect.
func (e *Life) Animate(elapsed time.Duration) pixeltree.PixelBuffer {
	e.timer += elapsed
	if e.timer >= lifeStepPeriod {
		e.timer = 0
		e.advance()
	}
	return e.buf
}

func (e *Life) seed() {
	for i := range e.board {
		e.board[i] = rand.Float64() < lifeDensity
	}
	e.color = randomHue()
	e.dark = 0
	e.still = 0
	e.render()
}

// advance steps the game one generation and reseeds it once it has died
// out or gone stale.
func (e *Life) advance() {
	alive := e.step()

	copy(e.prev, e.buf)
	lit := e.render()

	switch {
	case lit == 0:
		e.dark++
		e.still = 0
	case bytes.Equal(e.buf, e.prev):
		e.dark = 0
		e.still++
	default:
		e.dark = 0
		e.still = 0
	}

	if alive == 0 || e.dark >= lifeStaleSteps || e.still >= lifeStaleSteps {
		e.seed()
	}
}

// step computes the next generation on a board that wraps around at its
// edges. It returns the number of live cells.
func (e *Life) step() int {
	alive := 0
	for x := 0; x < e.dims[0]; x++ {
		for y := 0; y < e.dims[1]; y++ {
			for z := 0; z < e.dims[2]; z++ {
				i := e.index(x, y, z)
				n := e.neighbors(x, y, z)

				if e.board[i] {
					e.next[i] = n >= lifeSurviveMin && n <= lifeSurviveMax
				} else {
					e.next[i] = n == lifeBorn
				}
				if e.next[i] {
					alive++
				}
			}
		}
	}
	e.board, e.next = e.next, e.board
	return alive
}

func (e *Life) neighbors(x, y, z int) int {
	n := 0
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			for dz := -1; dz <= 1; dz++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				i := e.index(
					wrap(x+dx, e.dims[0]),
					wrap(y+dy, e.dims[1]),
					wrap(z+dz, e.dims[2]))
				if e.board[i] {
					n++
				}
			}
		}
	}
	return n
}

// render draws the board and returns the number of lit pixels.
func (e *Life) render() int {
	lit := 0
	for i, cell := range e.cells {
		if e.board[cell] {
			setPixel(e.buf, i, e.color, 1)
			lit++
		} else {
			e.buf.Set(i, 0, 0, 0)
		}
	}
	return lit
}

func (e *Life) index(x, y, z int) int {
	return (x*e.dims[1]+y)*e.dims[2] + z
}

func wrap(v, n int) int {
	return (v%n + n) % n
}
