//
// scanline filters
//
// PNG Second Edition, filter method 0
// https://www.w3.org/TR/2003/REC-PNG-20031110/#9Filters
//

package pngstream

import (
	"math"
)

// FilterType is the per-row filter byte.
type FilterType int

const (
	FilterNone FilterType = iota
	FilterSub
	FilterUp
	FilterAverage
	FilterPaeth

	nFilterTypes = 5
)

var filterNames = [nFilterTypes]string{"none", "sub", "up", "average", "paeth"}

func (f FilterType) String() string {
	if f < 0 || f >= nFilterTypes {
		return "unknown"
	}
	return filterNames[f]
}

// filterRow writes the filtered form of cur into out. prev is the previous
// unfiltered row, all zero for the first row of an image or pass.
func filterRow(ft FilterType, cur, prev, out []byte, bpp int) {
	n := len(cur)
	switch ft {
	case FilterNone:
		copy(out, cur)
	case FilterSub:
		copy(out[:bpp], cur[:bpp])
		for i := bpp; i < n; i++ {
			out[i] = cur[i] - cur[i-bpp]
		}
	case FilterUp:
		for i := 0; i < n; i++ {
			out[i] = cur[i] - prev[i]
		}
	case FilterAverage:
		for i := 0; i < bpp; i++ {
			out[i] = cur[i] - prev[i]/2
		}
		for i := bpp; i < n; i++ {
			out[i] = cur[i] - byte((int(cur[i-bpp])+int(prev[i]))/2)
		}
	case FilterPaeth:
		for i := 0; i < bpp; i++ {
			out[i] = cur[i] - prev[i] // paeth(0, b, 0) == b
		}
		for i := bpp; i < n; i++ {
			out[i] = cur[i] - paeth(cur[i-bpp], prev[i], prev[i-bpp])
		}
	}
}

// unfilterRow reverses filterRow in place.
func unfilterRow(ft FilterType, cur, prev []byte, bpp int) {
	n := len(cur)
	switch ft {
	case FilterNone:
	case FilterSub:
		for i := bpp; i < n; i++ {
			cur[i] += cur[i-bpp]
		}
	case FilterUp:
		for i := 0; i < n; i++ {
			cur[i] += prev[i]
		}
	case FilterAverage:
		for i := 0; i < bpp; i++ {
			cur[i] += prev[i] / 2
		}
		for i := bpp; i < n; i++ {
			cur[i] += byte((int(cur[i-bpp]) + int(prev[i])) / 2)
		}
	case FilterPaeth:
		for i := 0; i < bpp; i++ {
			cur[i] += prev[i]
		}
		for i := bpp; i < n; i++ {
			cur[i] += paeth(cur[i-bpp], prev[i], prev[i-bpp])
		}
	}
}

// paeth returns whichever of a (left), b (above), c (upper left) is closest
// to a+b-c; ties go to a, then b.
func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa := abs(p - int(a))
	pb := abs(p - int(b))
	pc := abs(p - int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// FilterStrategy chooses the filter for each row written.
//
// try computes the filtered row for a type and returns it; a strategy may
// call it for as many types as it wants. The returned slice is owned by the
// writer and stays valid until the next row.
type FilterStrategy interface {
	SelectFilter(row int, try func(FilterType) []byte) FilterType
}

type fixedFilter FilterType

func (f fixedFilter) SelectFilter(int, func(FilterType) []byte) FilterType {
	return FilterType(f)
}

// FilterFixed applies the same filter to every row.
func FilterFixed(ft FilterType) FilterStrategy {
	return fixedFilter(ft)
}

// costFunc scores a filtered row; lower is better.
type costFunc func([]byte) int64

type minCost struct {
	name string
	cost costFunc
}

func (m minCost) SelectFilter(_ int, try func(FilterType) []byte) FilterType {
	best := FilterNone
	var bestCost int64 = math.MaxInt64
	for ft := FilterNone; ft < nFilterTypes; ft++ {
		if c := m.cost(try(ft)); c < bestCost {
			best, bestCost = ft, c
		}
	}
	return best
}

var (
	// FilterAdaptive tries every filter on every row and keeps the one with
	// the smallest sum of absolute signed byte values.
	FilterAdaptive FilterStrategy = minCost{"adaptive", sumAbsSigned}
	// FilterAggressive tries every filter and keeps the one whose byte
	// histogram has the lowest entropy.
	FilterAggressive FilterStrategy = minCost{"aggressive", histogramEntropy}
)

func sumAbsSigned(row []byte) int64 {
	var s int64
	for _, b := range row {
		s += int64(abs(int(int8(b))))
	}
	return s
}

// histogramEntropy is the Shannon entropy of row in bits, times 1024.
func histogramEntropy(row []byte) int64 {
	if len(row) == 0 {
		return 0
	}
	var hist [256]int
	for _, b := range row {
		hist[b]++
	}
	n := float64(len(row))
	var bits float64
	for _, c := range hist {
		if c > 0 {
			p := float64(c) / n
			bits -= float64(c) * math.Log2(p)
		}
	}
	return int64(bits * 1024)
}

// ParseFilterStrategy accepts a filter name or "adaptive" / "aggressive".
func ParseFilterStrategy(s string) (FilterStrategy, bool) {
	switch s {
	case "adaptive":
		return FilterAdaptive, true
	case "aggressive":
		return FilterAggressive, true
	}
	for i, name := range filterNames {
		if name == s {
			return FilterFixed(FilterType(i)), true
		}
	}
	return nil, false
}
