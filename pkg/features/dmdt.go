package features

import (
	"fmt"
)

// Default dmdt histogram shape (magnitude bins x time-difference bins)
const (
	dmdtRows = 26
	dmdtCols = 26
)

// Cube is the stacked dmdt array: one 2D histogram per table row, aligned
// row-for-row with the fetched table.
type Cube [][][]float64

// Len returns the leading-dimension count
func (c Cube) Len() int {
	return len(c)
}

// Stack appends another cube's slabs in order
func (c Cube) Stack(other Cube) Cube {
	return append(c, other...)
}

// PlaceholderSlab returns an all-zero cube for n rows, used when dmdt
// extraction fails for a page but the rest of the row data is kept.
func PlaceholderSlab(n int) Cube {
	cube := make(Cube, n)
	for i := range cube {
		hist := make([][]float64, dmdtRows)
		for j := range hist {
			hist[j] = make([]float64, dmdtCols)
		}
		cube[i] = hist
	}
	return cube
}

// extractCube pulls the dmdt field out of each row and stacks the page
// into a cube. Every row must carry a rectangular 2D numeric array.
func extractCube(table *Table) (Cube, error) {
	cube := make(Cube, 0, table.NumRows())
	for i, row := range table.Rows {
		raw, ok := row[DMDTColumn]
		if !ok || raw == nil {
			return nil, fmt.Errorf("row %d: dmdt field missing", i)
		}
		hist, err := toHistogram(raw)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		cube = append(cube, hist)
	}
	// Keep the typed histograms in the rows for persistence, but only once
	// the whole page converted; a mid-page failure must leave the table as
	// it arrived so it matches the placeholder cube
	for i, row := range table.Rows {
		row[DMDTColumn] = cube[i]
	}
	return cube, nil
}

// toHistogram converts a decoded JSON nested array into a [][]float64
func toHistogram(value interface{}) ([][]float64, error) {
	if hist, ok := value.([][]float64); ok {
		return hist, nil
	}

	outer, ok := value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("dmdt is not an array, got %T", value)
	}
	if len(outer) == 0 {
		return nil, fmt.Errorf("dmdt array is empty")
	}

	hist := make([][]float64, len(outer))
	width := -1
	for i, rawRow := range outer {
		inner, ok := rawRow.([]interface{})
		if !ok {
			return nil, fmt.Errorf("dmdt row %d is not an array, got %T", i, rawRow)
		}
		if width == -1 {
			width = len(inner)
		} else if len(inner) != width {
			return nil, fmt.Errorf("dmdt row %d has ragged width %d != %d", i, len(inner), width)
		}
		histRow := make([]float64, len(inner))
		for j, cell := range inner {
			f, err := toFloat64(cell)
			if err != nil {
				return nil, fmt.Errorf("dmdt cell [%d][%d]: %w", i, j, err)
			}
			histRow[j] = f
		}
		hist[i] = histRow
	}
	return hist, nil
}

// FlattenHistogram flattens a 2D histogram row-major for columnar storage
func FlattenHistogram(hist [][]float64) []float64 {
	if len(hist) == 0 {
		return nil
	}
	flat := make([]float64, 0, len(hist)*len(hist[0]))
	for _, row := range hist {
		flat = append(flat, row...)
	}
	return flat
}
