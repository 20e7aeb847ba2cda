package ids

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"lcfetch/pkg/logger"
)

// Loader reads identifier lists from per-region files. Each file is a JSON
// document holding a single named integer array.
type Loader struct {
	baseDir     string
	measureTime bool
	logger      logger.Logger
}

// NewLoader creates a loader rooted at the ids directory. measureTime
// reports load durations; it has no effect on results.
func NewLoader(baseDir string, measureTime bool, log logger.Logger) *Loader {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Loader{
		baseDir:     baseDir,
		measureTime: measureTime,
		logger:      log,
	}
}

// Load reads the identifier list for a region, preserving file order
func (l *Loader) Load(region Region) ([]int64, error) {
	return l.LoadFile(filepath.Join(l.baseDir, region.IDsFile()))
}

// LoadFile reads an identifier list from an explicit path
func (l *Loader) LoadFile(path string) ([]int64, error) {
	start := time.Now()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ids file: %w", err)
	}

	var arrays map[string][]int64
	if err := json.Unmarshal(data, &arrays); err != nil {
		return nil, fmt.Errorf("failed to parse ids file %s: %w", path, err)
	}
	if len(arrays) == 0 {
		return nil, fmt.Errorf("ids file %s holds no array", path)
	}

	// A single named array is expected; take the first key for stability
	keys := make([]string, 0, len(arrays))
	for key := range arrays {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	ids := arrays[keys[0]]

	if l.measureTime {
		l.logger.InfoWithFields("read source ids", map[string]interface{}{
			"path":     path,
			"count":    len(ids),
			"duration": time.Since(start),
		})
	}

	return ids, nil
}

// Slice applies optional start/end bounds to an identifier list. Negative
// or out-of-range bounds are clamped; end of 0 means "to the end".
func Slice(ids []int64, start, end int) []int64 {
	if start < 0 {
		start = 0
	}
	if end <= 0 || end > len(ids) {
		end = len(ids)
	}
	if start >= end {
		return nil
	}
	return ids[start:end]
}
