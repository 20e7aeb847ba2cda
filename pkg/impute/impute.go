// Package impute fills missing feature values in fetched tables.
//
// Each feature declares a strategy in the config ontology (median by
// default). Self-impute derives the fill value from the table's own
// non-missing rows; global imputation prefers configured reference values
// and falls back to the table statistics when none are provided.
package impute

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"lcfetch/pkg/features"
	"lcfetch/pkg/logger"
)

// Imputer fills missing values column by column
type Imputer struct {
	strategies map[string]string
	reference  map[string]float64
	logger     logger.Logger
}

// New creates an imputer. strategies maps feature name to "median", "mean"
// or "zero"; reference optionally supplies global fill values.
func New(strategies map[string]string, reference map[string]float64, log logger.Logger) *Imputer {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Imputer{
		strategies: strategies,
		reference:  reference,
		logger:     log,
	}
}

// Impute fills missing numeric values in place. With selfImpute the fill is
// computed from the table's own rows; otherwise configured reference values
// take precedence.
func (im *Imputer) Impute(table *features.Table, selfImpute bool) error {
	for _, column := range table.Columns {
		if column == features.IDColumn || column == features.DMDTColumn {
			continue
		}

		values, isInt := numericColumn(table, column)
		missing := missingRows(table, column)
		if len(missing) == 0 {
			continue
		}

		var fill float64
		var ok bool
		if !selfImpute {
			fill, ok = im.reference[column]
		}
		if !ok {
			fill, ok = im.fillFromValues(column, values)
		}
		if !ok {
			im.logger.WarnWithFields("no values available to impute column", map[string]interface{}{
				"column":  column,
				"missing": len(missing),
			})
			continue
		}

		for _, i := range missing {
			if isInt {
				table.Rows[i][column] = int64(math.Round(fill))
			} else {
				table.Rows[i][column] = fill
			}
		}

		im.logger.DebugWithFields("imputed column", map[string]interface{}{
			"column":  column,
			"missing": len(missing),
			"fill":    fill,
		})
	}
	return nil
}

// fillFromValues computes the configured statistic over non-missing values
func (im *Imputer) fillFromValues(column string, values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}

	switch im.strategies[column] {
	case "zero":
		return 0, true
	case "mean":
		return stat.Mean(values, nil), true
	default: // median
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		return stat.Quantile(0.5, stat.Empirical, sorted, nil), true
	}
}

// numericColumn collects the non-missing numeric values of a column and
// reports whether the column holds integers
func numericColumn(table *features.Table, column string) ([]float64, bool) {
	var values []float64
	isInt := false
	for _, row := range table.Rows {
		switch v := row[column].(type) {
		case float64:
			if !math.IsNaN(v) {
				values = append(values, v)
			}
		case int64:
			isInt = true
			values = append(values, float64(v))
		}
	}
	return values, isInt
}

// missingRows returns the indices of rows whose value is absent, nil or NaN
func missingRows(table *features.Table, column string) []int {
	var missing []int
	for i, row := range table.Rows {
		value, ok := row[column]
		if !ok || value == nil {
			missing = append(missing, i)
			continue
		}
		if f, isFloat := value.(float64); isFloat && math.IsNaN(f) {
			missing = append(missing, i)
		}
	}
	return missing
}
