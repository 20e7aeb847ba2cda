// Package storage persists fetched feature tables as columnar segment
// files, one per iteration, and reads them back for resume detection.
//
// Segments are parquet files named <prefix>_iter_<n>.parquet. A completed
// segment is never rewritten; resume reads the identifier column of every
// existing segment to decide what is left to fetch.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"lcfetch/pkg/features"
	"lcfetch/pkg/logger"
)

// Manager handles segment file operations under a base output directory
type Manager struct {
	baseDir string
	logger  logger.Logger
}

// NewManager creates a storage manager rooted at baseDir
func NewManager(baseDir string, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Manager{
		baseDir: baseDir,
		logger:  log,
	}, nil
}

// BaseDir returns the output base directory
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// SegmentPath returns the parquet path for one iteration of a prefix
func (m *Manager) SegmentPath(prefix string, iteration int) string {
	return filepath.Join(m.baseDir, fmt.Sprintf("%s_iter_%d.parquet", prefix, iteration))
}

// CSVPath returns the row-oriented duplicate path for one iteration
func (m *Manager) CSVPath(prefix string, iteration int) string {
	return filepath.Join(m.baseDir, fmt.Sprintf("%s_iter_%d.csv", prefix, iteration))
}

// WriteSegment persists a table as one parquet segment, atomically
func (m *Manager) WriteSegment(table *features.Table, dtypes map[string]string, prefix string, iteration int) (string, error) {
	path := m.SegmentPath(prefix, iteration)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create segment directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := writeParquet(tempPath, table, dtypes); err != nil {
		os.Remove(tempPath)
		return "", err
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to rename temporary segment: %w", err)
	}

	m.logger.InfoWithFields("segment written", map[string]interface{}{
		"path": path,
		"rows": table.NumRows(),
	})

	return path, nil
}

// ListSegments returns the existing parquet segments for a prefix, sorted
// by iteration index
func (m *Manager) ListSegments(prefix string) ([]string, error) {
	pattern := filepath.Join(m.baseDir, prefix+"_iter_*.parquet")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		return segmentIteration(matches[i]) < segmentIteration(matches[j])
	})
	return matches, nil
}

// ExistingIDs reads back the identifier column of every existing segment
// for the prefix. It returns the union of identifiers and the highest
// iteration index seen (-1 when no segments exist).
func (m *Manager) ExistingIDs(prefix string) (map[int64]bool, int, error) {
	segments, err := m.ListSegments(prefix)
	if err != nil {
		return nil, -1, err
	}

	seen := make(map[int64]bool)
	maxIteration := -1
	for _, segment := range segments {
		ids, err := ReadSegmentIDs(segment)
		if err != nil {
			return nil, -1, fmt.Errorf("failed to read segment %s: %w", segment, err)
		}
		for _, id := range ids {
			seen[id] = true
		}
		if iter := segmentIteration(segment); iter > maxIteration {
			maxIteration = iter
		}
	}

	return seen, maxIteration, nil
}

// segmentIteration parses the iteration index from a segment filename.
// Malformed names sort first.
func segmentIteration(path string) int {
	base := strings.TrimSuffix(filepath.Base(path), ".parquet")
	idx := strings.LastIndex(base, "_iter_")
	if idx < 0 {
		return -1
	}
	n, err := strconv.Atoi(base[idx+len("_iter_"):])
	if err != nil {
		return -1
	}
	return n
}
