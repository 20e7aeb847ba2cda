// Package ids resolves sky-survey regions (field / CCD / quadrant) to
// identifier-list files and loads them.
package ids

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Default selector ranges: a field has 16 CCDs with 4 quadrants each
var (
	DefaultCCDRange  = Range{Lo: 1, Hi: 16}
	DefaultQuadRange = Range{Lo: 1, Hi: 4}
)

// Range is an inclusive selector over CCDs or quadrants
type Range struct {
	Lo int
	Hi int
}

// ParseRange accepts a single value ("3") or a two-element inclusive range
// ("1-16")
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Range{}, fmt.Errorf("empty range")
	}

	if lo, hi, found := strings.Cut(s, "-"); found {
		loVal, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return Range{}, fmt.Errorf("bad range start %q: %w", lo, err)
		}
		hiVal, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return Range{}, fmt.Errorf("bad range end %q: %w", hi, err)
		}
		if hiVal < loVal {
			return Range{}, fmt.Errorf("range end %d before start %d", hiVal, loVal)
		}
		return Range{Lo: loVal, Hi: hiVal}, nil
	}

	val, err := strconv.Atoi(s)
	if err != nil {
		return Range{}, fmt.Errorf("bad range value %q: %w", s, err)
	}
	return Range{Lo: val, Hi: val}, nil
}

// Region selects one identifier list: either a whole field or one
// (ccd, quad) cell within it
type Region struct {
	Field      int
	CCD        int
	Quad       int
	WholeField bool
}

// Key names the region for logs and output files
func (r Region) Key() string {
	if r.WholeField {
		return fmt.Sprintf("field_%d", r.Field)
	}
	return fmt.Sprintf("ccd_%02d_quad_%d", r.CCD, r.Quad)
}

// OutputPrefix is the segment path prefix relative to the features
// directory, with an optional filename suffix
func (r Region) OutputPrefix(suffix string) string {
	prefix := filepath.Join(fmt.Sprintf("field_%d", r.Field), r.Key())
	if suffix != "" {
		prefix += "_" + suffix
	}
	return prefix
}

// IDsFile is the identifier-list path relative to the ids directory
func (r Region) IDsFile() string {
	dir := fmt.Sprintf("field_%d", r.Field)
	if r.WholeField {
		return filepath.Join(dir, fmt.Sprintf("field_%d.json", r.Field))
	}
	return filepath.Join(dir, fmt.Sprintf("data_ccd_%02d_quad_%d.json", r.CCD, r.Quad))
}

// Regions enumerates the regions to process for a field. With wholeField a
// single region covers everything; otherwise one region per (ccd, quad)
// cell in the inclusive ranges.
func Regions(field int, ccdRange, quadRange Range, wholeField bool) []Region {
	if wholeField {
		return []Region{{Field: field, WholeField: true}}
	}

	var regions []Region
	for ccd := ccdRange.Lo; ccd <= ccdRange.Hi; ccd++ {
		for quad := quadRange.Lo; quad <= quadRange.Hi; quad++ {
			regions = append(regions, Region{Field: field, CCD: ccd, Quad: quad})
		}
	}
	return regions
}
