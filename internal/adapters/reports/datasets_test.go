package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"pcx/internal/core"
	"pcx/pkg/domain"
)

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func seededService(t *testing.T) *core.Service {
	t.Helper()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(domain.DefaultPolicy()),
		core.WithClock(core.ClockFunc(func() time.Time { return fixedNow })))
	if _, err := svc.SeedDemoData(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return svc
}

func TestParseFormat(t *testing.T) {
	for _, in := range []string{"json", "csv", "xlsx"} {
		if _, err := ParseFormat(in); err != nil {
			t.Fatalf("%s: %v", in, err)
		}
	}
	if _, err := ParseFormat("pdf"); err == nil {
		t.Fatalf("expected pdf to be rejected")
	}
	if FormatXLSX.ContentType() == FormatCSV.ContentType() {
		t.Fatalf("content types must differ")
	}
}

func TestLoadTableBatchesCSV(t *testing.T) {
	svc := seededService(t)
	tbl, err := loadTable(context.Background(), svc, DatasetBatches, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(tbl.rows) != 3 {
		t.Fatalf("expected 3 demo batches, got %d", len(tbl.rows))
	}
	out, err := render(tbl, FormatCSV)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 4 || records[0][0] != "id" {
		t.Fatalf("unexpected csv %v", records)
	}
	for _, rec := range records {
		if len(rec) != len(tbl.columns) {
			t.Fatalf("ragged row %v", rec)
		}
	}

	scoped, err := loadTable(context.Background(), svc, DatasetBatches, "BATCH-2026-001")
	if err != nil || len(scoped.rows) != 1 {
		t.Fatalf("scoped load: %v %d", err, len(scoped.rows))
	}
	raw, err := render(scoped, FormatJSON)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil || len(decoded) != 1 {
		t.Fatalf("expected one batch in json, got %s", raw)
	}
}

func TestRenderXLSXReadsBack(t *testing.T) {
	svc := seededService(t)
	tbl, err := loadTable(context.Background(), svc, DatasetMassBalance, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	out, err := render(tbl, FormatXLSX)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 2 || rows[0][0] != "inputs" {
		t.Fatalf("unexpected sheet %v", rows)
	}
}

func TestLoadTableUnknownBatchMassBalance(t *testing.T) {
	svc := seededService(t)
	if _, err := loadTable(context.Background(), svc, DatasetMassBalance, "BATCH-2026-404"); err == nil {
		t.Fatalf("expected not found")
	}
	if _, err := loadTable(context.Background(), svc, Dataset("nope"), ""); err == nil {
		t.Fatalf("expected unknown dataset error")
	}
}

func TestFormatValue(t *testing.T) {
	v := 1.5
	var nilF *float64
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	cases := map[string]any{
		"1.5":                  &v,
		"":                     nilF,
		"2026-01-02T03:04:05Z": ts,
		"true":                 true,
	}
	for want, in := range cases {
		if got := formatValue(in); got != want {
			t.Fatalf("formatValue(%v) = %q, want %q", in, got, want)
		}
	}
}
