package features

import (
	"fmt"
	"math"
	"sort"

	"lcfetch/pkg/catalog"
)

// IDColumn is the identifier column present in every catalog record
const IDColumn = "_id"

// Table is a tabular collection of feature values: rows are sources,
// columns are named features. Attrs carries provenance metadata that the
// storage layer persists alongside the data.
type Table struct {
	Columns []string
	Rows    []map[string]interface{}
	Attrs   map[string]string
}

// NewTable creates an empty table with the given column order
func NewTable(columns []string) *Table {
	return &Table{
		Columns: columns,
		Attrs:   make(map[string]string),
	}
}

// tableFromRecords converts one page of catalog records into a table.
// Column order is the identifier first, then the projected names sorted.
func tableFromRecords(records []catalog.Record, projection map[string]int) *Table {
	names := make([]string, 0, len(projection))
	for name := range projection {
		if name != IDColumn {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	table := NewTable(append([]string{IDColumn}, names...))
	for _, record := range records {
		row := make(map[string]interface{}, len(record))
		for key, value := range record {
			row[key] = value
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

// NumRows returns the number of rows in the table
func (t *Table) NumRows() int {
	return len(t.Rows)
}

// SetAttr records one provenance attribute
func (t *Table) SetAttr(key, value string) {
	if t.Attrs == nil {
		t.Attrs = make(map[string]string)
	}
	t.Attrs[key] = value
}

// Append concatenates another table's rows onto this one, preserving row
// order. Column order follows the receiver.
func (t *Table) Append(other *Table) {
	t.Rows = append(t.Rows, other.Rows...)
}

// IDs returns the identifier column as int64 values
func (t *Table) IDs() ([]int64, error) {
	ids := make([]int64, 0, len(t.Rows))
	for i, row := range t.Rows {
		id, err := toInt64(row[IDColumn])
		if err != nil {
			return nil, fmt.Errorf("row %d: bad identifier: %w", i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ApplyDTypes coerces row values to their declared scalar types. Unknown
// columns are left untouched; missing values stay missing.
func (t *Table) ApplyDTypes(dtypes map[string]string) error {
	for i, row := range t.Rows {
		for name, value := range row {
			if value == nil {
				continue
			}
			dtype, ok := dtypes[name]
			if !ok && name != IDColumn {
				continue
			}
			if name == IDColumn {
				dtype = "int64"
			}
			cast, err := castValue(value, dtype)
			if err != nil {
				return fmt.Errorf("row %d column %q: %w", i, name, err)
			}
			row[name] = cast
		}
	}
	return nil
}

// castValue converts a decoded JSON value to the declared scalar type
func castValue(value interface{}, dtype string) (interface{}, error) {
	switch dtype {
	case "float64", "float32":
		f, err := toFloat64(value)
		if err != nil {
			return nil, err
		}
		return f, nil
	case "int64", "int32":
		n, err := toInt64(value)
		if err != nil {
			return nil, err
		}
		return n, nil
	case "bool":
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", value)
		}
		return b, nil
	case "str":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", value)
		}
		return s, nil
	case "object":
		// Nested values (dmdt) are handled by the cube extraction
		return value, nil
	default:
		return nil, fmt.Errorf("unknown dtype %q", dtype)
	}
}

func toFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", value)
	}
}

func toInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("expected integer, got %v", v)
		}
		return int64(v), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", value)
	}
}
