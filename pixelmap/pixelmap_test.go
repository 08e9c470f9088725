package pixelmap

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	m, err := Parse(strings.NewReader(`index,x,y,z
1, 1.5, -2, 3
0, 0, 0, 0
2, 4, 4, 10, extra
`))
	require.NoError(t, err)

	assert.Equal(t, 3, m.Len())
	assert.Equal(t, Point{0, 0, 0}, m.At(0))
	assert.Equal(t, Point{1.5, -2, 3}, m.At(1))
	assert.Equal(t, Point{4, 4, 10}, m.At(2))
}

func TestParseNoHeader(t *testing.T) {
	m, err := Parse(strings.NewReader("0,1,2,3\n1,4,5,6\n"))
	require.NoError(t, err)
	assert.Equal(t, []Point{{1, 2, 3}, {4, 5, 6}}, m.Points())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", "no pixels"},
		{"header only", "index,x,y,z\n", "no pixels"},
		{"short record", "0,1,2\n", "at least 4 columns"},
		{"bad index", "zero,1,2,3\n", "invalid index"},
		{"bad coordinate", "0,1,two,3\n", "invalid coordinate"},
		{"duplicate", "0,1,2,3\n0,1,2,3\n", "duplicate index 0"},
		{"gap", "0,1,2,3\n2,1,2,3\n", "missing index 1"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(test.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.want)
		})
	}
}

func TestWriteCSVRoundTrip(t *testing.T) {
	m := New([]Point{{0.25, -1, 2}, {3, 4.125, -5}})

	var buf bytes.Buffer
	require.NoError(t, m.WriteCSV(&buf))
	assert.True(t, strings.HasPrefix(buf.String(), "index,x,y,z\n"))

	parsed, err := Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, m.Points(), parsed.Points())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pixel-map.csv")
	require.NoError(t, os.WriteFile(path, []byte("index,x,y,z\n0,1,1,1\n"), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNormalize(t *testing.T) {
	m := New([]Point{
		{10, 0, 0},
		{30, 10, 100},
		{20, 5, 50},
	})

	norm := m.Normalize()

	lo, hi := norm.Bounds()
	assert.InDelta(t, -1, lo.Z, 1e-9)
	assert.InDelta(t, 1, hi.Z, 1e-9)
	assert.InDelta(t, -0.2, lo.X, 1e-9)
	assert.InDelta(t, 0.2, hi.X, 1e-9)
	assert.InDelta(t, 0, norm.At(2).Z, 1e-9)

	// Normalize returns a copy.
	assert.Equal(t, Point{10, 0, 0}, m.At(0))
}

func TestNormalizeSinglePoint(t *testing.T) {
	norm := New([]Point{{5, 5, 5}}).Normalize()
	assert.Equal(t, Point{0, 0, 0}, norm.At(0))
}
