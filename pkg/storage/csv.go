package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"lcfetch/pkg/features"
)

// WriteCSV writes a row-oriented text duplicate of the table for human
// inspection. Histogram cells are flattened and semicolon-separated.
func (m *Manager) WriteCSV(table *features.Table, prefix string, iteration int) (string, error) {
	path := m.CSVPath(prefix, iteration)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create csv file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(table.Columns); err != nil {
		return "", fmt.Errorf("failed to write csv header: %w", err)
	}

	record := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i, column := range table.Columns {
			record[i] = formatCell(row[column])
		}
		if err := writer.Write(record); err != nil {
			return "", fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("failed to flush csv: %w", err)
	}

	m.logger.DebugWithFields("csv duplicate written", map[string]interface{}{
		"path": path,
		"rows": table.NumRows(),
	})

	return path, nil
}

// formatCell renders one table value as text
func formatCell(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case [][]float64:
		flat := features.FlattenHistogram(v)
		parts := make([]string, len(flat))
		for i, f := range flat {
			parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return strings.Join(parts, ";")
	default:
		return fmt.Sprint(v)
	}
}
