package features

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"lcfetch/pkg/catalog"
	"lcfetch/pkg/config"
	errs "lcfetch/pkg/errors"
)

// fakeQuerier answers find queries from a canned record set keyed by id
type fakeQuerier struct {
	records map[int64]catalog.Record
	failOn  int // fail the nth query (1-based), 0 means never
	queries int
	pages   [][]int64
}

func (f *fakeQuerier) Query(ctx context.Context, q catalog.Query) (*catalog.Response, error) {
	f.queries++
	f.pages = append(f.pages, q.Query.Filter.ID.In)
	if f.failOn > 0 && f.queries == f.failOn {
		return nil, &errs.Error{
			Type:    errs.ErrorTypeQueryFailed,
			Message: "canned failure",
		}
	}

	response := &catalog.Response{Status: "success", Data: []catalog.Record{}}
	for _, id := range q.Query.Filter.ID.In {
		if record, ok := f.records[id]; ok {
			response.Data = append(response.Data, record)
		}
	}
	return response, nil
}

func TestPaginate(t *testing.T) {
	ids := []int64{1, 2, 3, 4, 5}

	tests := []struct {
		name  string
		limit int
		sizes []int
	}{
		{"even split with remainder", 2, []int{2, 2, 1}},
		{"exact split", 5, []int{5}},
		{"limit larger than input", 10, []int{5}},
		{"no limit", 0, []int{5}},
		{"negative limit", -1, []int{5}},
		{"single element pages", 1, []int{1, 1, 1, 1, 1}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			pages := Paginate(ids, test.limit)
			if len(pages) != len(test.sizes) {
				t.Fatalf("expected %d pages, got %d", len(test.sizes), len(pages))
			}

			var flat []int64
			for i, page := range pages {
				if len(page) != test.sizes[i] {
					t.Errorf("page %d: expected %d ids, got %d", i, test.sizes[i], len(page))
				}
				flat = append(flat, page...)
			}

			// Pages must cover the input exactly, in order
			if len(flat) != len(ids) {
				t.Fatalf("pages cover %d ids, want %d", len(flat), len(ids))
			}
			for i, id := range flat {
				if id != ids[i] {
					t.Errorf("position %d: expected id %d, got %d", i, ids[i], id)
				}
			}
		})
	}
}

func TestPaginateEmpty(t *testing.T) {
	if pages := Paginate(nil, 10); pages != nil {
		t.Errorf("expected no pages for empty input, got %d", len(pages))
	}
}

func testRecord(id int64, withDMDT bool) catalog.Record {
	record := catalog.Record{
		"_id":    float64(id), // as a JSON decoder would deliver it
		"period": 1.5,
		"n":      float64(42),
	}
	if withDMDT {
		hist := make([]interface{}, dmdtRows)
		for i := range hist {
			row := make([]interface{}, dmdtCols)
			for j := range row {
				row[j] = float64(i + j)
			}
			hist[i] = row
		}
		record["dmdt"] = hist
	}
	return record
}

func testFeaturesConfig() *config.FeaturesConfig {
	return &config.FeaturesConfig{
		Ontological: map[string]config.FeatureConfig{
			"period": {DType: "float64", Periodic: true},
			"n":      {DType: "int64"},
			"dmdt":   {DType: "object"},
		},
	}
}

func newTestFetcher(querier catalog.Querier) *Fetcher {
	return NewFetcher(querier, testFeaturesConfig(), nil, nil)
}

// querierFunc adapts a function to the catalog.Querier interface
type querierFunc func(ctx context.Context, q catalog.Query) (*catalog.Response, error)

func (f querierFunc) Query(ctx context.Context, q catalog.Query) (*catalog.Response, error) {
	return f(ctx, q)
}

func TestFetchAssemblesPagesInOrder(t *testing.T) {
	fake := &fakeQuerier{records: map[int64]catalog.Record{}}
	for id := int64(1); id <= 5; id++ {
		fake.records[id] = testRecord(id, true)
	}

	fetcher := newTestFetcher(fake)
	table, cube, err := fetcher.Fetch(context.Background(), Request{
		IDs:      []int64{1, 2, 3, 4, 5},
		Catalog:  "ZTF_source_features_DR5",
		PageSize: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fake.queries != 3 {
		t.Errorf("expected 3 page queries, got %d", fake.queries)
	}
	if table.NumRows() != 5 {
		t.Fatalf("expected 5 rows, got %d", table.NumRows())
	}
	if cube.Len() != 5 {
		t.Fatalf("expected 5 dmdt slabs, got %d", cube.Len())
	}

	ids, err := table.IDs()
	if err != nil {
		t.Fatalf("failed to read ids: %v", err)
	}
	for i, id := range ids {
		if id != int64(i+1) {
			t.Errorf("row %d: expected id %d, got %d", i, i+1, id)
		}
	}

	// Declared dtypes applied: n is an integer column
	if _, ok := table.Rows[0]["n"].(int64); !ok {
		t.Errorf("expected n to be int64, got %T", table.Rows[0]["n"])
	}
	// dmdt replaced with the typed histogram
	if _, ok := table.Rows[0]["dmdt"].([][]float64); !ok {
		t.Errorf("expected dmdt to be [][]float64, got %T", table.Rows[0]["dmdt"])
	}

	if table.Attrs[AttrDataRelease] != "DR5" {
		t.Errorf("expected data release DR5, got %q", table.Attrs[AttrDataRelease])
	}
	if table.Attrs[AttrImputed] != "false" {
		t.Errorf("expected imputed=false, got %q", table.Attrs[AttrImputed])
	}
	if table.Attrs[AttrDownloadTime] == "" {
		t.Error("expected download timestamp to be set")
	}
}

func TestFetchFailsOnPageError(t *testing.T) {
	fake := &fakeQuerier{records: map[int64]catalog.Record{}, failOn: 2}
	for id := int64(1); id <= 4; id++ {
		fake.records[id] = testRecord(id, true)
	}

	fetcher := newTestFetcher(fake)
	table, _, err := fetcher.Fetch(context.Background(), Request{
		IDs:      []int64{1, 2, 3, 4},
		Catalog:  "ZTF_source_features_DR5",
		PageSize: 2,
	})

	if err == nil {
		t.Fatal("expected error when a page query fails")
	}
	if table != nil {
		t.Error("expected no partial result on page failure")
	}
}

func TestFetchDMDTRequiredHardFailure(t *testing.T) {
	// Default projection requires dmdt; records without it must fail
	fake := &fakeQuerier{records: map[int64]catalog.Record{
		1: testRecord(1, false),
	}}

	fetcher := newTestFetcher(fake)
	_, _, err := fetcher.Fetch(context.Background(), Request{
		IDs:     []int64{1},
		Catalog: "ZTF_source_features_DR5",
	})

	if err == nil {
		t.Fatal("expected error when dmdt is missing from a required projection")
	}
	var apiErr *errs.Error
	if !errors.As(err, &apiErr) || apiErr.Type != errs.ErrorTypeDMDT {
		t.Errorf("expected dmdt error, got %v", err)
	}
}

func TestFetchDMDTPlaceholderWhenNotRequested(t *testing.T) {
	fake := &fakeQuerier{records: map[int64]catalog.Record{
		1: testRecord(1, false),
		2: testRecord(2, false),
	}}

	fetcher := newTestFetcher(fake)
	table, cube, err := fetcher.Fetch(context.Background(), Request{
		IDs:        []int64{1, 2},
		Catalog:    "ZTF_source_features_DR5",
		Projection: map[string]int{"period": 1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if table.NumRows() != 2 {
		t.Fatalf("expected 2 rows, got %d", table.NumRows())
	}
	if cube.Len() != 2 {
		t.Fatalf("expected a placeholder slab per row, got %d", cube.Len())
	}
	for i, hist := range cube {
		for _, row := range hist {
			for _, cell := range row {
				if cell != 0 {
					t.Fatalf("slab %d: expected all-zero placeholder, got %v", i, cell)
				}
			}
		}
	}
}

func TestFetchScalarProjectionCoercesIdentifiers(t *testing.T) {
	fake := &fakeQuerier{records: map[int64]catalog.Record{
		1: testRecord(1, false),
		2: testRecord(2, false),
	}}

	fetcher := newTestFetcher(fake)
	table, _, err := fetcher.Fetch(context.Background(), Request{
		IDs:        []int64{1, 2},
		Catalog:    "ZTF_source_features_DR5",
		Projection: map[string]int{"period": 1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Declared dtypes apply even without dmdt in the projection, so the
	// storage schema can rely on integer identifiers
	for i, row := range table.Rows {
		if _, ok := row[IDColumn].(int64); !ok {
			t.Errorf("row %d: expected int64 identifier, got %T", i, row[IDColumn])
		}
		if _, ok := row["n"].(int64); !ok {
			t.Errorf("row %d: expected int64 n, got %T", i, row["n"])
		}
	}
}

func TestFetchEmptyInput(t *testing.T) {
	fetcher := newTestFetcher(querierFunc(func(ctx context.Context, q catalog.Query) (*catalog.Response, error) {
		return nil, fmt.Errorf("should not be called")
	}))

	table, cube, err := fetcher.Fetch(context.Background(), Request{
		Catalog: "ZTF_source_features_DR5",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.NumRows() != 0 {
		t.Errorf("expected empty table, got %d rows", table.NumRows())
	}
	if cube.Len() != 0 {
		t.Errorf("expected empty cube, got %d slabs", cube.Len())
	}
}

func TestReleaseTag(t *testing.T) {
	tests := []struct {
		catalog string
		want    string
	}{
		{"ZTF_source_features_DR5", "DR5"},
		{"ZTF_source_features_DR16", "DR16"},
		{"plain", "plain"},
	}

	for _, test := range tests {
		if got := releaseTag(test.catalog); got != test.want {
			t.Errorf("releaseTag(%q) = %q, want %q", test.catalog, got, test.want)
		}
	}
}
