package storage

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/parquet-go/parquet-go"

	"lcfetch/pkg/features"
)

// buildSchema derives a parquet schema from the table columns and the
// declared dtypes. The identifier is a required int64; scalar features are
// optional leaves; dmdt is an optional list of doubles (the histogram
// flattened row-major).
func buildSchema(table *features.Table, dtypes map[string]string) *parquet.Schema {
	group := parquet.Group{}
	for _, column := range table.Columns {
		switch column {
		case features.IDColumn:
			group[column] = parquet.Leaf(parquet.Int64Type)
		case features.DMDTColumn:
			group[column] = parquet.Optional(parquet.List(parquet.Leaf(parquet.DoubleType)))
		default:
			group[column] = parquet.Optional(leafFor(dtypes[column]))
		}
	}
	return parquet.NewSchema("features", group)
}

// leafFor maps a declared dtype to a parquet node
func leafFor(dtype string) parquet.Node {
	switch dtype {
	case "float32":
		return parquet.Leaf(parquet.FloatType)
	case "int64":
		return parquet.Leaf(parquet.Int64Type)
	case "int32":
		return parquet.Leaf(parquet.Int32Type)
	case "bool":
		return parquet.Leaf(parquet.BooleanType)
	case "str":
		return parquet.String()
	default:
		// float64 and anything undeclared
		return parquet.Leaf(parquet.DoubleType)
	}
}

// writeParquet writes the table to path, carrying provenance attrs as
// footer key-value metadata
func writeParquet(path string, table *features.Table, dtypes map[string]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create segment file: %w", err)
	}

	options := []parquet.WriterOption{buildSchema(table, dtypes)}

	attrKeys := make([]string, 0, len(table.Attrs))
	for key := range table.Attrs {
		attrKeys = append(attrKeys, key)
	}
	sort.Strings(attrKeys)
	for _, key := range attrKeys {
		options = append(options, parquet.KeyValueMetadata(key, table.Attrs[key]))
	}

	writer := parquet.NewGenericWriter[map[string]interface{}](file, options...)

	rows := make([]map[string]interface{}, 0, table.NumRows())
	for _, row := range table.Rows {
		rows = append(rows, storageRow(row, table.Columns))
	}

	if len(rows) > 0 {
		if _, err := writer.Write(rows); err != nil {
			writer.Close()
			file.Close()
			return fmt.Errorf("failed to write segment rows: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		file.Close()
		return fmt.Errorf("failed to finalize segment: %w", err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close segment file: %w", err)
	}

	return nil
}

// storageRow converts a table row into the shape the parquet writer
// expects: only declared columns, histograms flattened, missing values
// left out so they encode as nulls
func storageRow(row map[string]interface{}, columns []string) map[string]interface{} {
	out := make(map[string]interface{}, len(columns))
	for _, column := range columns {
		value, ok := row[column]
		if !ok || value == nil {
			continue
		}
		if column == features.DMDTColumn {
			if hist, isHist := value.([][]float64); isHist {
				out[column] = features.FlattenHistogram(hist)
			}
			continue
		}
		// The schema declares the identifier as int64; a table that skipped
		// dtype coercion still carries JSON float64 values here
		if column == features.IDColumn {
			if f, isFloat := value.(float64); isFloat {
				out[column] = int64(f)
				continue
			}
		}
		out[column] = value
	}
	return out
}

// ReadSegmentIDs scans the identifier column of one segment file
func ReadSegmentIDs(path string) ([]int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat segment: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}

	column, ok := pf.Schema().Lookup(features.IDColumn)
	if !ok {
		return nil, fmt.Errorf("segment has no %s column", features.IDColumn)
	}

	var ids []int64
	for _, rowGroup := range pf.RowGroups() {
		pages := rowGroup.ColumnChunks()[column.ColumnIndex].Pages()
		for {
			page, err := pages.ReadPage()
			if err == io.EOF {
				break
			}
			if err != nil {
				pages.Close()
				return nil, fmt.Errorf("failed to read page: %w", err)
			}

			values := make([]parquet.Value, page.NumValues())
			if _, err := page.Values().ReadValues(values); err != nil && err != io.EOF {
				pages.Close()
				return nil, fmt.Errorf("failed to read values: %w", err)
			}
			for _, value := range values {
				ids = append(ids, value.Int64())
			}
		}
		pages.Close()
	}

	return ids, nil
}
