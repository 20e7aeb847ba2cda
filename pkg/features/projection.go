package features

import "lcfetch/pkg/config"

// DMDTColumn is the derived 2D histogram feature
const DMDTColumn = "dmdt"

// ExpandProjection resolves an empty projection to the full configured
// feature set. A non-empty projection is returned unchanged.
func ExpandProjection(projection map[string]int, featuresCfg *config.FeaturesConfig) map[string]int {
	if len(projection) > 0 {
		return projection
	}
	return featuresCfg.DefaultProjection()
}

// ProjectionFromColumns builds a projection from an explicit column list
func ProjectionFromColumns(columns []string) map[string]int {
	if len(columns) == 0 {
		return map[string]int{}
	}
	projection := make(map[string]int, len(columns))
	for _, name := range columns {
		projection[name] = 1
	}
	return projection
}

// dmdtRequired reports whether the user's projection implies the dmdt
// column must be present: either the default (empty) projection, or an
// explicit request for it.
func dmdtRequired(projection map[string]int) bool {
	if len(projection) == 0 {
		return true
	}
	_, ok := projection[DMDTColumn]
	return ok
}
