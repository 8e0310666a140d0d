package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"pcx/internal/core"
	"pcx/pkg/domain"
)

// Dataset names an exportable report.
type Dataset string

const (
	DatasetBatches        Dataset = "batches"
	DatasetMeasurements   Dataset = "measurements"
	DatasetDiscrepancies  Dataset = "discrepancies"
	DatasetReconciliation Dataset = "reconciliation"
	DatasetMassBalance    Dataset = "mass_balance"
)

// Valid reports whether d is a known dataset.
func (d Dataset) Valid() bool {
	switch d {
	case DatasetBatches, DatasetMeasurements, DatasetDiscrepancies, DatasetReconciliation, DatasetMassBalance:
		return true
	}
	return false
}

// Format is an artifact encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ContentType returns the MIME type of the encoding.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/octet-stream"
}

// ParseFormat accepts the lowercase format names.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatJSON, FormatCSV, FormatXLSX:
		return f, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// Source is the read side of the service that exports draw from.
type Source interface {
	ListBatches(ctx context.Context, filter core.BatchFilter) ([]core.Batch, error)
	ListMeasurements(ctx context.Context, filter core.MeasurementFilter) ([]core.Measurement, error)
	ListDiscrepancies(ctx context.Context, filter core.DiscrepancyFilter) ([]core.Discrepancy, error)
	ReconciliationRows(ctx context.Context, filter core.DiscrepancyFilter) ([]core.ReconciliationRow, error)
	MassBalance(ctx context.Context, scope core.MassBalanceScope) (domain.MassBalance, error)
}

// table is the tabular rendering shared by CSV and XLSX. raw keeps the
// original records for JSON.
type table struct {
	title   string
	columns []string
	rows    [][]any
	raw     any
}

func loadTable(ctx context.Context, src Source, dataset Dataset, batchID string) (table, error) {
	switch dataset {
	case DatasetBatches:
		batches, err := src.ListBatches(ctx, core.BatchFilter{})
		if err != nil {
			return table{}, err
		}
		if batchID != "" {
			scoped := batches[:0:0]
			for _, b := range batches {
				if b.ID == batchID {
					scoped = append(scoped, b)
				}
			}
			batches = scoped
		}
		t := table{title: "Batches", raw: batches, columns: []string{
			"id", "status", "productName", "productType", "expected", "received", "consumed", "yielded", "waste", "unit", "recycledContent", "yieldPct", "startDate", "completionDate",
		}}
		for _, b := range batches {
			t.rows = append(t.rows, []any{
				b.ID, string(b.Status), b.ProductName, string(b.ProductType),
				b.Quantities.Expected, b.Quantities.Received, b.Quantities.Consumed, b.Quantities.Yielded, b.Quantities.Waste, string(b.Quantities.Unit),
				domain.RecycledContentPercentage(b), domain.CalculateEfficiency(b).YieldPct, b.StartDate, b.CompletionDate,
			})
		}
		return t, nil
	case DatasetMeasurements:
		measurements, err := src.ListMeasurements(ctx, core.MeasurementFilter{BatchID: batchID})
		if err != nil {
			return table{}, err
		}
		t := table{title: "Measurements", raw: measurements, columns: []string{
			"id", "timestamp", "source", "stationId", "processStep", "batchId", "value", "unit", "classification", "materialTypeCode", "validationStatus", "supersededBy",
		}}
		for _, m := range measurements {
			t.rows = append(t.rows, []any{
				m.ID, m.Timestamp, string(m.Source), m.Location.StationID, m.Location.ProcessStep, m.BatchID,
				m.Value, string(m.Unit), string(m.MaterialClassification), m.MaterialTypeCode, string(m.ValidationStatus), m.Metadata.SupersededBy,
			})
		}
		return t, nil
	case DatasetDiscrepancies:
		list, err := src.ListDiscrepancies(ctx, core.DiscrepancyFilter{BatchID: batchID})
		if err != nil {
			return table{}, err
		}
		t := table{title: "Discrepancies", raw: list, columns: []string{
			"id", "type", "severity", "status", "batchId", "expected", "actual", "difference", "detected", "slaDeadline", "resolution",
		}}
		for _, d := range list {
			t.rows = append(t.rows, []any{
				d.ID, d.Type, string(d.Severity), string(d.Status), d.BatchID, d.ExpectedValue, d.ActualValue, d.Difference, d.Detected, d.SLADeadline, d.Resolution,
			})
		}
		return t, nil
	case DatasetReconciliation:
		rows, err := src.ReconciliationRows(ctx, core.DiscrepancyFilter{BatchID: batchID})
		if err != nil {
			return table{}, err
		}
		t := table{title: "Reconciliation", raw: rows, columns: []string{
			"id", "batchId", "processStep", "expected", "actual", "difference", "variancePercent", "band", "status", "overdue",
		}}
		for _, r := range rows {
			t.rows = append(t.rows, []any{
				r.ID, r.BatchID, r.ProcessStep, r.ExpectedValue, r.ActualValue, r.Difference, r.Variance, string(r.Band), string(r.Status), r.Overdue,
			})
		}
		return t, nil
	case DatasetMassBalance:
		mb, err := src.MassBalance(ctx, core.MassBalanceScope{BatchID: batchID})
		if err != nil {
			return table{}, err
		}
		return table{
			title:   "Mass balance",
			raw:     mb,
			columns: []string{"inputs", "virgin", "losses", "lossesModeled", "output", "production", "deviation", "status", "computedAt"},
			rows:    [][]any{{mb.Inputs, mb.Virgin, mb.Losses, mb.LossesModeled, mb.Output, mb.Production, mb.Deviation, string(mb.Status), mb.ComputedAt}},
		}, nil
	}
	return table{}, fmt.Errorf("unknown dataset %q", dataset)
}

func render(t table, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		payload, err := json.Marshal(t.raw)
		if err != nil {
			return nil, fmt.Errorf("marshal json: %w", err)
		}
		return payload, nil
	case FormatCSV:
		return renderCSV(t)
	case FormatXLSX:
		return renderXLSX(t)
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}

func renderCSV(t table) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(t.columns); err != nil {
		return nil, err
	}
	for _, row := range t.rows {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = formatValue(v)
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const sheetName = "Report"

func renderXLSX(t table) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}
	for col, name := range t.columns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheetName, cell, name); err != nil {
			return nil, err
		}
	}
	for r, row := range t.rows {
		for col, v := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, r+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheetName, cell, cellValue(v)); err != nil {
				return nil, err
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

// cellValue keeps numbers numeric in the sheet and flattens pointers.
func cellValue(v any) any {
	switch x := v.(type) {
	case float64, bool, int:
		return x
	case *float64:
		if x == nil {
			return ""
		}
		return *x
	default:
		return formatValue(v)
	}
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case *string:
		if v == nil {
			return ""
		}
		return *v
	case time.Time:
		if v.IsZero() {
			return ""
		}
		return v.UTC().Format(time.RFC3339)
	case *time.Time:
		if v == nil {
			return ""
		}
		return v.UTC().Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case *float64:
		if v == nil {
			return ""
		}
		return strconv.FormatFloat(*v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
