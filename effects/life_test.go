package effects

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLife(t *testing.T) *Life {
	t.Helper()

	e := NewLife(testCone(300).Normalize())
	for _, d := range e.dims {
		require.GreaterOrEqual(t, d, 3, "grid too small for distinct neighbors: %v", e.dims)
	}
	return e
}

func TestLifeRules(t *testing.T) {
	tests := []struct {
		name      string
		alive     bool
		neighbors int
		want      bool
	}{
		{"dead with 4 stays dead", false, 4, false},
		{"dead with 5 is born", false, 5, true},
		{"dead with 6 stays dead", false, 6, false},
		{"live with 3 dies", true, 3, false},
		{"live with 4 survives", true, 4, true},
		{"live with 5 survives", true, 5, true},
		{"live with 6 dies", true, 6, false},
	}

	offsets := [][3]int{
		{-1, -1, -1}, {-1, 0, 0}, {0, 1, 0}, {1, 1, 1},
		{0, 0, -1}, {1, -1, 0}, {-1, 1, 1}, {0, -1, 1},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			e := newTestLife(t)
			clear(e.board)

			x, y, z := 1, 1, 1
			e.board[e.index(x, y, z)] = test.alive
			for _, o := range offsets[:test.neighbors] {
				e.board[e.index(x+o[0], y+o[1], z+o[2])] = true
			}
			require.Equal(t, test.neighbors, e.neighbors(x, y, z))

			e.step()
			assert.Equal(t, test.want, e.board[e.index(x, y, z)])
		})
	}
}

func TestLifeNeighborsWrap(t *testing.T) {
	e := newTestLife(t)
	clear(e.board)

	last := [3]int{e.dims[0] - 1, e.dims[1] - 1, e.dims[2] - 1}
	e.board[e.index(last[0], last[1], last[2])] = true

	assert.Equal(t, 1, e.neighbors(0, 0, 0))
}

func TestLifeRendersLiveCells(t *testing.T) {
	e := newTestLife(t)

	for i := range e.board {
		e.board[i] = true
	}
	assert.Equal(t, len(e.cells), e.render())

	clear(e.board)
	assert.Equal(t, 0, e.render())
	for _, v := range e.buf {
		require.Zero(t, v)
	}
}

func TestLifeReseedsDeadGame(t *testing.T) {
	e := newTestLife(t)
	clear(e.board)
	e.render()

	// Nothing happens until a generation has passed.
	e.Animate(lifeStepPeriod / 2)
	assert.NotContains(t, e.board, true)

	e.Animate(lifeStepPeriod / 2)
	assert.Contains(t, e.board, true)
	assert.Equal(t, time.Duration(0), e.timer)
}
