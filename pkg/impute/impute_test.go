package impute

import (
	"math"
	"testing"

	"lcfetch/pkg/features"
)

func testTable() *features.Table {
	table := features.NewTable([]string{features.IDColumn, "period", "n"})
	table.Rows = []map[string]interface{}{
		{features.IDColumn: int64(1), "period": 1.0, "n": int64(10)},
		{features.IDColumn: int64(2), "period": 3.0, "n": int64(20)},
		{features.IDColumn: int64(3), "period": nil, "n": nil},
		{features.IDColumn: int64(4), "period": 5.0, "n": int64(30)},
	}
	return table
}

func TestImputeMedian(t *testing.T) {
	table := testTable()
	imputer := New(map[string]string{"period": "median"}, nil, nil)

	if err := imputer.Impute(table, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Median of [1, 3, 5]
	if got := table.Rows[2]["period"]; got != 3.0 {
		t.Errorf("expected median fill 3.0, got %v", got)
	}
}

func TestImputeMean(t *testing.T) {
	table := testTable()
	imputer := New(map[string]string{"period": "mean"}, nil, nil)

	if err := imputer.Impute(table, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := table.Rows[2]["period"]; got != 3.0 {
		t.Errorf("expected mean fill 3.0, got %v", got)
	}
}

func TestImputeZero(t *testing.T) {
	table := testTable()
	imputer := New(map[string]string{"period": "zero"}, nil, nil)

	if err := imputer.Impute(table, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := table.Rows[2]["period"]; got != 0.0 {
		t.Errorf("expected zero fill, got %v", got)
	}
}

func TestImputeIntegerColumnRounds(t *testing.T) {
	table := testTable()
	imputer := New(map[string]string{"n": "mean"}, nil, nil)

	if err := imputer.Impute(table, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Mean of [10, 20, 30] is 20; integer columns stay integers
	got, ok := table.Rows[2]["n"].(int64)
	if !ok {
		t.Fatalf("expected int64 fill, got %T", table.Rows[2]["n"])
	}
	if got != 20 {
		t.Errorf("expected fill 20, got %d", got)
	}
}

func TestImputeReferenceValues(t *testing.T) {
	table := testTable()
	imputer := New(map[string]string{"period": "median"}, map[string]float64{"period": 9.5}, nil)

	if err := imputer.Impute(table, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Global imputation prefers the configured reference over table stats
	if got := table.Rows[2]["period"]; got != 9.5 {
		t.Errorf("expected reference fill 9.5, got %v", got)
	}
}

func TestImputeSelfIgnoresReference(t *testing.T) {
	table := testTable()
	imputer := New(map[string]string{"period": "median"}, map[string]float64{"period": 9.5}, nil)

	if err := imputer.Impute(table, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := table.Rows[2]["period"]; got != 3.0 {
		t.Errorf("expected self-imputed median 3.0, got %v", got)
	}
}

func TestImputeGlobalAndSelfDiverge(t *testing.T) {
	reference := map[string]float64{"period": 9.5}
	strategies := map[string]string{"period": "median"}

	global := testTable()
	if err := New(strategies, reference, nil).Impute(global, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	self := testTable()
	if err := New(strategies, reference, nil).Impute(self, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if global.Rows[2]["period"] == self.Rows[2]["period"] {
		t.Errorf("expected global and self fills to diverge, both got %v", self.Rows[2]["period"])
	}
}

func TestImputeTreatsNaNAsMissing(t *testing.T) {
	table := features.NewTable([]string{features.IDColumn, "period"})
	table.Rows = []map[string]interface{}{
		{features.IDColumn: int64(1), "period": 2.0},
		{features.IDColumn: int64(2), "period": math.NaN()},
	}

	imputer := New(map[string]string{"period": "median"}, nil, nil)
	if err := imputer.Impute(table, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := table.Rows[1]["period"]; got != 2.0 {
		t.Errorf("expected NaN replaced with 2.0, got %v", got)
	}
}

func TestImputeSkipsIdentifierAndHistogram(t *testing.T) {
	table := features.NewTable([]string{features.IDColumn, features.DMDTColumn})
	table.Rows = []map[string]interface{}{
		{features.IDColumn: int64(1), features.DMDTColumn: nil},
	}

	imputer := New(nil, nil, nil)
	if err := imputer.Impute(table, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if table.Rows[0][features.DMDTColumn] != nil {
		t.Error("dmdt column must not be imputed")
	}
}

func TestImputeAllMissingColumnLeftAlone(t *testing.T) {
	table := features.NewTable([]string{features.IDColumn, "period"})
	table.Rows = []map[string]interface{}{
		{features.IDColumn: int64(1), "period": nil},
		{features.IDColumn: int64(2), "period": nil},
	}

	imputer := New(map[string]string{"period": "median"}, nil, nil)
	if err := imputer.Impute(table, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// No values to derive a fill from; the column stays missing
	for i, row := range table.Rows {
		if row["period"] != nil {
			t.Errorf("row %d: expected period to stay missing, got %v", i, row["period"])
		}
	}
}
