package integration

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"pcx/internal/adapters/reports"
	"pcx/internal/blob"
	"pcx/internal/core"
	"pcx/internal/infra/blob/s3"
	"pcx/pkg/domain"
)

// TestIntegrationSmoke runs a certification cycle against each in-process
// store and blob backend: seed, record a correction, reconcile, compute the
// mass balance and export a report.
func TestIntegrationSmoke(t *testing.T) {
	ctx := context.Background()

	stores := []struct {
		name string
		opts func(t *testing.T) core.StorageOptions
	}{
		{"memory-store", func(*testing.T) core.StorageOptions { return core.StorageOptions{Driver: core.StorageMemory} }},
		{"sqlite-store", func(t *testing.T) core.StorageOptions {
			return core.StorageOptions{Driver: core.StorageSQLite, SQLitePath: filepath.Join(t.TempDir(), "pcx.db")}
		}},
	}
	blobs := []struct {
		name string
		open func(t *testing.T) blob.Store
	}{
		{"memory-blob", func(t *testing.T) blob.Store {
			s, err := blob.Open(ctx, blob.Options{Driver: blob.DriverMemory})
			if err != nil {
				t.Fatalf("open memory blob: %v", err)
			}
			return s
		}},
		{"fs-blob", func(t *testing.T) blob.Store {
			s, err := blob.Open(ctx, blob.Options{FSRoot: t.TempDir()})
			if err != nil {
				t.Fatalf("open fs blob: %v", err)
			}
			return s
		}},
		{"mock-s3-blob", func(*testing.T) blob.Store { return s3.NewMockForTests("pcx") }},
	}

	for _, sv := range stores {
		for _, bv := range blobs {
			t.Run(sv.name+"/"+bv.name, func(t *testing.T) {
				policy := domain.DefaultPolicy()
				store, err := core.OpenPersistentStore(ctx, sv.opts(t), core.NewDefaultRulesEngine(policy))
				if err != nil {
					t.Fatalf("open store: %v", err)
				}
				if c, ok := store.(io.Closer); ok {
					t.Cleanup(func() { _ = c.Close() })
				}
				metrics := core.NewExpvarMetricsRecorder("")
				var traces bytes.Buffer
				svc := core.NewService(store,
					core.WithMetricsRecorder(metrics),
					core.WithTracer(core.NewJSONTracer(&traces)),
					core.WithPolicy(policy))

				if _, err := svc.SeedDemoData(ctx); err != nil {
					t.Fatalf("seed: %v", err)
				}
				batchID := "BATCH-2026-002"
				automated, _, err := svc.CreateMeasurement(ctx, core.CreateMeasurementInput{
					Source: domain.SourceMES, StationID: "EXTRUSION-02", ProcessStep: "After Extrusion",
					BatchID: &batchID, Value: 800, MaterialClassification: domain.ClassificationMixed, MaterialTypeCode: "MAT-R03",
				}, core.SystemActor)
				if err != nil {
					t.Fatalf("automated reading: %v", err)
				}
				manual, _, err := svc.CreateMeasurement(ctx, core.CreateMeasurementInput{
					Source: domain.SourceManual, StationID: "EXTRUSION-02", ProcessStep: "After Extrusion",
					BatchID: &batchID, Value: 880, MaterialClassification: domain.ClassificationMixed, MaterialTypeCode: "MAT-R03",
				}, core.Actor{ID: "OP-002"})
				if err != nil {
					t.Fatalf("manual reading: %v", err)
				}
				if _, _, err := svc.LinkMeasurement(ctx, batchID, automated.ID, core.SystemActor); err != nil {
					t.Fatalf("link: %v", err)
				}

				created, _, err := svc.RunReconciliationCheck(ctx, core.SystemActor)
				if err != nil {
					t.Fatalf("reconcile: %v", err)
				}
				if len(created) != 1 || created[0].Severity != domain.SeverityHigh {
					t.Fatalf("expected one HIGH finding for a 10%% gap, got %+v", created)
				}

				fix := core.CreateMeasurementInput{
					Source: domain.SourceManual, StationID: "EXTRUSION-02", ProcessStep: "After Extrusion",
					Value: 805, MaterialClassification: domain.ClassificationMixed, MaterialTypeCode: "MAT-R03",
					EntryJustification: "re-weighed",
				}
				if _, _, err := svc.SupersedeMeasurement(ctx, manual.ID, fix, core.Actor{ID: "SUP-001"}); err != nil {
					t.Fatalf("supersede: %v", err)
				}
				if _, _, err := svc.ResolveDiscrepancy(ctx, created[0].ID, "manual entry corrected", core.Actor{ID: "SUP-001"}); err != nil {
					t.Fatalf("resolve: %v", err)
				}
				again, _, err := svc.RunReconciliationCheck(ctx, core.SystemActor)
				if err != nil || len(again) != 0 {
					t.Fatalf("corrected reading must reconcile: %v %+v", err, again)
				}

				mb, err := svc.MassBalance(ctx, core.MassBalanceScope{})
				if err != nil {
					t.Fatalf("mass balance: %v", err)
				}
				if mb.Output <= 0 {
					t.Fatalf("expected positive output, got %+v", mb)
				}

				artifacts := bv.open(t)
				worker := reports.NewWorker(svc, artifacts)
				worker.Start()
				defer func() { _ = worker.Stop(context.Background()) }()
				rec, err := worker.EnqueueExport(ctx, reports.ExportInput{Dataset: reports.DatasetReconciliation, Formats: []reports.Format{reports.FormatCSV, reports.FormatXLSX}})
				if err != nil {
					t.Fatalf("enqueue: %v", err)
				}
				deadline := time.Now().Add(5 * time.Second)
				for {
					got, _ := worker.GetExport(rec.ID)
					if got.Status == reports.ExportStatusSucceeded {
						if len(got.Artifacts) != 2 {
							t.Fatalf("expected two artifacts, got %+v", got.Artifacts)
						}
						if _, err := artifacts.Head(ctx, got.Artifacts[1].Key); err != nil {
							t.Fatalf("head xlsx: %v", err)
						}
						break
					}
					if got.Status == reports.ExportStatusFailed || time.Now().After(deadline) {
						t.Fatalf("export did not succeed: %+v", got)
					}
					time.Sleep(5 * time.Millisecond)
				}

				snap := metrics.Snapshot()
				if snap.Results["run_reconciliation_check"]["success"] != 2 {
					t.Fatalf("expected reconciliation metrics, got %+v", snap.Results)
				}
				if traces.Len() == 0 {
					t.Fatalf("expected trace output")
				}
			})
		}
	}
}
