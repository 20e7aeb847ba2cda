package features

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lcfetch/pkg/catalog"
	"lcfetch/pkg/config"
	"lcfetch/pkg/errors"
	"lcfetch/pkg/logger"
)

// Provenance attribute keys persisted with every fetched table
const (
	AttrDownloadTime = "features_download_dateTime_utc"
	AttrDataRelease  = "features_dataRelease"
	AttrImputed      = "features_imputed"
)

// Imputer fills missing feature values in a fetched table. Implemented by
// pkg/impute; injected so the fetch stage stays free of statistics.
type Imputer interface {
	Impute(table *Table, selfImpute bool) error
}

// Request describes one batch retrieval
type Request struct {
	IDs           []int64
	Catalog       string
	PageSize      int
	Projection    map[string]int
	ImputeMissing bool
	SelfImpute    bool
	Verbose       bool
}

// Fetcher retrieves feature tables from the catalog service one page at a
// time and assembles them into a single table plus a stacked dmdt cube.
type Fetcher struct {
	querier  catalog.Querier
	features *config.FeaturesConfig
	imputer  Imputer
	logger   logger.Logger
}

// NewFetcher creates a fetch stage bound to a catalog querier
func NewFetcher(querier catalog.Querier, featuresCfg *config.FeaturesConfig, imputer Imputer, log logger.Logger) *Fetcher {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Fetcher{
		querier:  querier,
		features: featuresCfg,
		imputer:  imputer,
		logger:   log,
	}
}

// Paginate slices ids into non-overlapping pages of at most limit entries.
// A non-positive limit yields a single page covering everything.
func Paginate(ids []int64, limit int) [][]int64 {
	if len(ids) == 0 {
		return nil
	}
	if limit <= 0 || limit >= len(ids) {
		return [][]int64{ids}
	}
	pages := make([][]int64, 0, (len(ids)+limit-1)/limit)
	for start := 0; start < len(ids); start += limit {
		end := start + limit
		if end > len(ids) {
			end = len(ids)
		}
		pages = append(pages, ids[start:end])
	}
	return pages
}

// Fetch retrieves features for every identifier in the request. Rows arrive
// in page order; a page whose query fails aborts the whole batch with no
// partial result.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*Table, Cube, error) {
	projection := ExpandProjection(req.Projection, f.features)
	needDMDT := dmdtRequired(req.Projection)
	dtypes := f.features.DTypes()

	var result *Table
	var cube Cube

	pages := Paginate(req.IDs, req.PageSize)
	done := 0

	for pageNum, page := range pages {
		query := catalog.NewFindQuery(req.Catalog, page, projection)

		response, err := f.querier.Query(ctx, query)
		if err != nil {
			f.logger.ErrorWithFields("page query failed", map[string]interface{}{
				"page":      pageNum,
				"page_size": len(page),
				"error":     err.Error(),
			})
			return nil, nil, fmt.Errorf("no data for page %d (%d ids): %w", pageNum, len(page), err)
		}

		pageTable := tableFromRecords(response.Data, projection)

		// JSON-decoded values carry no types; every page gets the declared
		// dtypes so identifiers and integer columns come out as int64
		if err := pageTable.ApplyDTypes(dtypes); err != nil {
			return nil, nil, &errors.Error{
				Type:    errors.ErrorTypeParsing,
				Message: fmt.Sprintf("page %d: %v", pageNum, err),
			}
		}

		pageCube, err := extractCube(pageTable)
		if err != nil {
			if needDMDT {
				return nil, nil, &errors.Error{
					Type:    errors.ErrorTypeDMDT,
					Message: fmt.Sprintf("page %d: dmdt extraction failed: %v", pageNum, err),
				}
			}
			f.logger.WarnWithFields("dmdt extraction failed, using placeholder", map[string]interface{}{
				"page":  pageNum,
				"rows":  pageTable.NumRows(),
				"error": err.Error(),
			})
			pageCube = PlaceholderSlab(pageTable.NumRows())
		}

		if result == nil {
			result = pageTable
		} else {
			result.Append(pageTable)
		}
		cube = cube.Stack(pageCube)

		done += len(page)
		f.logger.DebugWithFields("page fetched", map[string]interface{}{
			"page": pageNum,
			"rows": pageTable.NumRows(),
			"done": done,
		})
	}

	if result == nil {
		result = NewTable([]string{IDColumn})
	}

	if req.ImputeMissing && f.imputer != nil {
		if err := f.imputer.Impute(result, req.SelfImpute); err != nil {
			return nil, nil, fmt.Errorf("imputation failed: %w", err)
		}
	}

	result.SetAttr(AttrDownloadTime, time.Now().UTC().Format("2006-01-02 15:04:05"))
	result.SetAttr(AttrDataRelease, releaseTag(req.Catalog))
	result.SetAttr(AttrImputed, fmt.Sprintf("%t", req.ImputeMissing))

	if req.Verbose {
		f.logger.InfoWithFields("fetch complete", map[string]interface{}{
			"rows":       result.NumRows(),
			"dmdt_slabs": cube.Len(),
			"columns":    len(result.Columns),
		})
	}

	return result, cube, nil
}

// releaseTag parses the catalog release from the trailing segment of the
// catalog name (e.g. ZTF_source_features_DR5 -> DR5)
func releaseTag(catalogName string) string {
	parts := strings.Split(catalogName, "_")
	return parts[len(parts)-1]
}
