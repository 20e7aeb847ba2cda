package download

import (
	"context"
	"fmt"

	"lcfetch/pkg/features"
	"lcfetch/pkg/ids"
	"lcfetch/pkg/logger"
	"lcfetch/pkg/storage"
)

// Job describes one region's download
type Job struct {
	Region        ids.Region
	IDs           []int64
	Catalog       string
	PageSize      int
	ChunkSize     int
	Projection    map[string]int
	Suffix        string
	Restart       bool
	WriteResults  bool
	WriteCSV      bool
	ImputeMissing bool
	SelfImpute    bool
	Verbose       bool
}

// Result reports what a job did
type Result struct {
	// Table is the last chunk's table (nil when nothing was fetched)
	Table *features.Table
	// Prefix is the output path prefix used for segment files
	Prefix string
	// Segments is the number of new segment files written
	Segments int
	// Fetched is the number of identifiers fetched in this run
	Fetched int
}

// Downloader runs checkpointed download jobs against the fetch stage
type Downloader struct {
	fetcher *features.Fetcher
	storage *storage.Manager
	dtypes  map[string]string
	logger  logger.Logger
}

// New creates a downloader
func New(fetcher *features.Fetcher, storageMgr *storage.Manager, dtypes map[string]string, log logger.Logger) *Downloader {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Downloader{
		fetcher: fetcher,
		storage: storageMgr,
		dtypes:  dtypes,
		logger:  log,
	}
}

// Chunk splits ids into ceil(len/size) fixed-size chunks; the last chunk
// may be shorter. A non-positive size yields a single chunk.
func Chunk(idList []int64, size int) [][]int64 {
	if len(idList) == 0 {
		return nil
	}
	if size <= 0 || size >= len(idList) {
		return [][]int64{idList}
	}
	chunks := make([][]int64, 0, (len(idList)+size-1)/size)
	for start := 0; start < len(idList); start += size {
		end := start + size
		if end > len(idList) {
			end = len(idList)
		}
		chunks = append(chunks, idList[start:end])
	}
	return chunks
}

// Run downloads one region's features chunk by chunk. With resume enabled
// (Restart false) identifiers already present in existing segments are
// skipped and segment numbering continues where the prior run stopped.
func (d *Downloader) Run(ctx context.Context, job Job) (*Result, error) {
	prefix := job.Region.OutputPrefix(job.Suffix)
	result := &Result{Prefix: prefix}

	todo := job.IDs
	startIteration := 0

	if !job.Restart {
		seen, maxIteration, err := d.storage.ExistingIDs(prefix)
		if err != nil {
			return nil, fmt.Errorf("failed to scan existing segments: %w", err)
		}
		if len(seen) > 0 {
			todo = remaining(job.IDs, seen)
			startIteration = maxIteration + 1
			d.logger.InfoWithFields("resuming from existing segments", map[string]interface{}{
				"prefix":    prefix,
				"seen":      len(seen),
				"remaining": len(todo),
			})
			if len(todo) == 0 {
				d.logger.InfoWithFields("dataset is already complete", map[string]interface{}{
					"prefix": prefix,
				})
				return result, nil
			}
		}
	}

	if len(todo) == 0 {
		d.logger.InfoWithFields("no identifiers to fetch", map[string]interface{}{
			"prefix": prefix,
		})
		return result, nil
	}

	chunks := Chunk(todo, job.ChunkSize)
	for i, chunk := range chunks {
		iteration := startIteration + i
		d.logger.InfoWithFields("starting iteration", map[string]interface{}{
			"iteration": i + 1,
			"of":        len(chunks),
			"segment":   iteration,
			"ids":       len(chunk),
		})

		table, cube, err := d.fetcher.Fetch(ctx, features.Request{
			IDs:           chunk,
			Catalog:       job.Catalog,
			PageSize:      job.PageSize,
			Projection:    job.Projection,
			ImputeMissing: job.ImputeMissing,
			SelfImpute:    job.SelfImpute,
			Verbose:       job.Verbose,
		})
		if err != nil {
			return nil, fmt.Errorf("iteration %d failed: %w", iteration, err)
		}

		if job.Verbose {
			d.logger.InfoWithFields("chunk fetched", map[string]interface{}{
				"rows":       table.NumRows(),
				"dmdt_slabs": cube.Len(),
			})
		}

		if job.WriteResults {
			if _, err := d.storage.WriteSegment(table, d.dtypes, prefix, iteration); err != nil {
				return nil, fmt.Errorf("failed to write segment %d: %w", iteration, err)
			}
			result.Segments++
			if job.WriteCSV {
				if _, err := d.storage.WriteCSV(table, prefix, iteration); err != nil {
					return nil, fmt.Errorf("failed to write csv duplicate %d: %w", iteration, err)
				}
			}
		}

		result.Table = table
		result.Fetched += len(chunk)
	}

	d.logger.InfoWithFields("download complete", map[string]interface{}{
		"prefix":   prefix,
		"segments": result.Segments,
		"fetched":  result.Fetched,
	})

	return result, nil
}

// remaining filters idList down to identifiers not yet seen, preserving
// input order
func remaining(idList []int64, seen map[int64]bool) []int64 {
	var todo []int64
	for _, id := range idList {
		if !seen[id] {
			todo = append(todo, id)
		}
	}
	return todo
}
