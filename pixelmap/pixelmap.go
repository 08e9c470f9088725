// Package pixelmap holds the calibrated 3D position of every pixel.
package pixelmap

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
)

// Point is the position of a pixel.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Map is an immutable table of pixel positions indexed by pixel number.
type Map struct {
	points []Point
}

// New creates a map from points. Point i is the position of pixel i.
func New(points []Point) *Map {
	return &Map{points: slices.Clone(points)}
}

// Load reads a map from the CSV file at path.
func Load(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %q: %w", path, err)
	}
	return m, nil
}

// Parse reads a map from CSV records of the form
//
//	index,x,y,z[,...]
//
// Extra columns are ignored, as are header lines (any record whose first
// column is "index"). Every index from 0 to n-1 must appear exactly once.
func Parse(r io.Reader) (*Map, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	byIndex := map[int]Point{}
	for line := 1; ; line++ {
		record, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if strings.Contains(record[0], "index") {
			continue
		}
		if len(record) < 4 {
			return nil, fmt.Errorf("line %d: want at least 4 columns, got %d", line, len(record))
		}

		index, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid index: %w", line, err)
		}

		var coords [3]float64
		for i := range coords {
			coords[i], err = strconv.ParseFloat(strings.TrimSpace(record[i+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid coordinate: %w", line, err)
			}
		}

		if _, dup := byIndex[index]; dup {
			return nil, fmt.Errorf("line %d: duplicate index %d", line, index)
		}
		byIndex[index] = Point{coords[0], coords[1], coords[2]}
	}

	if len(byIndex) == 0 {
		return nil, errors.New("no pixels")
	}

	points := make([]Point, len(byIndex))
	for i := range points {
		p, ok := byIndex[i]
		if !ok {
			return nil, fmt.Errorf("missing index %d", i)
		}
		points[i] = p
	}

	return &Map{points: points}, nil
}

// WriteCSV writes the map in the format read by Parse.
func (m *Map) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"index", "x", "y", "z"})
	for i, p := range m.points {
		cw.Write([]string{
			strconv.Itoa(i),
			strconv.FormatFloat(p.X, 'f', -1, 64),
			strconv.FormatFloat(p.Y, 'f', -1, 64),
			strconv.FormatFloat(p.Z, 'f', -1, 64),
		})
	}
	cw.Flush()
	return cw.Error()
}

// Len returns the number of pixels.
func (m *Map) Len() int {
	return len(m.points)
}

// At returns the position of pixel i.
func (m *Map) At(i int) Point {
	return m.points[i]
}

// Points returns the positions of all pixels in index order. The returned
// slice must not be modified.
func (m *Map) Points() []Point {
	return m.points
}

// Bounds returns the smallest box containing every pixel.
func (m *Map) Bounds() (lo, hi Point) {
	lo, hi = m.points[0], m.points[0]
	for _, p := range m.points[1:] {
		lo = Point{min(lo.X, p.X), min(lo.Y, p.Y), min(lo.Z, p.Z)}
		hi = Point{max(hi.X, p.X), max(hi.Y, p.Y), max(hi.Z, p.Z)}
	}
	return lo, hi
}

// Normalize returns a copy of the map centered on its bounding box and
// uniformly scaled so that its largest extent spans [-1, 1].
func (m *Map) Normalize() *Map {
	lo, hi := m.Bounds()
	center := Point{(lo.X + hi.X) / 2, (lo.Y + hi.Y) / 2, (lo.Z + hi.Z) / 2}

	extent := max(hi.X-lo.X, hi.Y-lo.Y, hi.Z-lo.Z) / 2
	if extent == 0 {
		extent = 1
	}

	points := make([]Point, len(m.points))
	for i, p := range m.points {
		points[i] = Point{
			X: (p.X - center.X) / extent,
			Y: (p.Y - center.Y) / extent,
			Z: (p.Z - center.Z) / extent,
		}
	}
	return &Map{points: points}
}
