package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"expvar"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"pcx/internal/config"
	"pcx/internal/core"
)

func TestBuildAppWiresObservabilitySinks(t *testing.T) {
	obs, logs := observer.New(zapcore.InfoLevel)
	var traces bytes.Buffer
	opts := &rootOptions{
		cfg:      config.DefaultConfig(),
		logger:   zap.New(obs),
		trace:    true,
		traceOut: &traces,
	}
	a, err := buildApp(context.Background(), opts)
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	ctx := context.Background()
	if _, err := a.svc.SeedDemoData(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, _, err := a.svc.RunReconciliationCheck(ctx, core.Actor{ID: "SUP-001", Role: core.RoleOperator}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	snap := a.expvar.Snapshot()
	if got := snap.Results["run_reconciliation_check"]["success"]; got != 1 {
		t.Fatalf("expected one expvar success, got %v", snap.Results)
	}
	if expvar.Get(a.expvar.Name()) == nil {
		t.Fatalf("expvar %q not published", a.expvar.Name())
	}

	trail, err := a.svc.AuditTrail(ctx, 10)
	if err != nil || len(trail) == 0 {
		t.Fatalf("expected in-memory audit trail, got %v (%v)", trail, err)
	}
	audited := logs.FilterLoggerName("audit").FilterField(zap.String("operation", "run_reconciliation_check"))
	if audited.Len() == 0 {
		t.Fatalf("expected an audit log line for reconcile, got %d", audited.Len())
	}

	var spans []core.JSONTraceEntry
	sc := bufio.NewScanner(&traces)
	for sc.Scan() {
		var e core.JSONTraceEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("decode trace line %q: %v", sc.Text(), err)
		}
		spans = append(spans, e)
	}
	found := false
	for _, s := range spans {
		if s.Operation == "run_reconciliation_check" && s.Status == string(core.AuditStatusSuccess) {
			found = true
		}
	}
	if !found {
		t.Fatalf("reconcile span missing from %+v", spans)
	}
}

func TestTraceFlagWritesToStderr(t *testing.T) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "--trace", "reconcile", "--actor", "SUP-001"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !strings.Contains(errOut.String(), `"operation":"run_reconciliation_check"`) {
		t.Fatalf("expected reconcile span on stderr, got %q", errOut.String())
	}
	if strings.Contains(out.String(), "run_reconciliation_check") {
		t.Fatalf("spans leaked into stdout: %q", out.String())
	}
}

func TestNoTraceByDefault(t *testing.T) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "reconcile", "--actor", "SUP-001"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if strings.Contains(errOut.String(), "run_reconciliation_check") {
		t.Fatalf("unexpected trace output %q", errOut.String())
	}
}
