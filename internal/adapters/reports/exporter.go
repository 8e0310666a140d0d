// Package reports renders certification datasets to files in the blob store
// on a background worker.
package reports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"pcx/internal/blob"
	"pcx/internal/core"
	"pcx/pkg/domain"
)

// ExportStatus is the lifecycle stage of an export job.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

// ErrQueueFull is returned when the worker cannot accept more jobs.
var ErrQueueFull = errors.New("export queue full")

// ExportArtifact is one stored file of an export.
type ExportArtifact struct {
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	Rows        int       `json:"rows"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ExportRecord tracks a job and its artifacts.
type ExportRecord struct {
	ID          string           `json:"id"`
	Dataset     Dataset          `json:"dataset"`
	BatchID     string           `json:"batchId,omitempty"`
	Formats     []Format         `json:"formats"`
	Status      ExportStatus     `json:"status"`
	Error       string           `json:"error,omitempty"`
	Artifacts   []ExportArtifact `json:"artifacts,omitempty"`
	RequestedBy string           `json:"requestedBy"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
}

// ExportInput is an enqueue request.
type ExportInput struct {
	Dataset     Dataset
	BatchID     string
	Formats     []Format
	RequestedBy string
}

// Scheduler queues exports and reports their state.
type Scheduler interface {
	EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error)
	GetExport(id string) (ExportRecord, bool)
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger routes worker logs through l.
func WithLogger(l core.Logger) Option { return func(w *Worker) { w.logger = l } }

// WithAudit records job transitions on a.
func WithAudit(a core.AuditRecorder) Option { return func(w *Worker) { w.audit = a } }

// WithClock overrides the time source.
func WithClock(c core.Clock) Option { return func(w *Worker) { w.clock = c } }

// WithQueueSize sets the job buffer (default 32).
func WithQueueSize(n int) Option { return func(w *Worker) { w.queueSize = n } }

// Worker executes exports asynchronously, one at a time.
type Worker struct {
	source    Source
	store     blob.Store
	logger    core.Logger
	audit     core.AuditRecorder
	clock     core.Clock
	queueSize int

	queue chan string
	mu    sync.RWMutex
	jobs  map[string]*ExportRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Scheduler = (*Worker)(nil)

// NewWorker builds a worker reading from src and writing to store.
func NewWorker(src Source, store blob.Store, opts ...Option) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		source:    src,
		store:     store,
		clock:     core.ClockFunc(time.Now),
		queueSize: 32,
		jobs:      make(map[string]*ExportRecord),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.queueSize <= 0 {
		w.queueSize = 1
	}
	w.queue = make(chan string, w.queueSize)
	return w
}

// Start launches the processing loop.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop cancels the loop and waits for it, bounded by ctx.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case id := <-w.queue:
			w.process(id)
		}
	}
}

func (w *Worker) now() time.Time { return w.clock.Now().UTC() }

// EnqueueExport validates the request and queues it. Formats default to JSON
// and CSV; duplicates are dropped.
func (w *Worker) EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error) {
	if !input.Dataset.Valid() {
		return ExportRecord{}, domain.Invalid("dataset", "unknown dataset %q", input.Dataset)
	}
	formats := input.Formats
	if len(formats) == 0 {
		formats = []Format{FormatJSON, FormatCSV}
	}
	unique := make([]Format, 0, len(formats))
	seen := make(map[Format]struct{}, len(formats))
	for _, f := range formats {
		if _, err := ParseFormat(string(f)); err != nil {
			return ExportRecord{}, domain.Invalid("formats", "%s", err.Error())
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		unique = append(unique, f)
	}

	now := w.now()
	record := &ExportRecord{
		ID:          uuid.NewString(),
		Dataset:     input.Dataset,
		BatchID:     input.BatchID,
		Formats:     unique,
		Status:      ExportStatusQueued,
		RequestedBy: input.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[record.ID] = record
	snapshot := record.copy()
	w.mu.Unlock()
	w.record(ctx, snapshot, "")

	select {
	case w.queue <- record.ID:
		return snapshot, nil
	default:
	}
	w.mu.Lock()
	delete(w.jobs, record.ID)
	w.mu.Unlock()
	snapshot.Status = ExportStatusFailed
	w.record(ctx, snapshot, ErrQueueFull.Error())
	return ExportRecord{}, ErrQueueFull
}

// GetExport returns a copy of the job record.
func (w *Worker) GetExport(id string) (ExportRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return ExportRecord{}, false
	}
	return record.copy(), true
}

func (w *Worker) process(id string) {
	record, ok := w.transition(id, ExportStatusRunning, "", nil)
	if !ok {
		return
	}
	tbl, err := loadTable(w.ctx, w.source, record.Dataset, record.BatchID)
	if err != nil {
		w.transition(id, ExportStatusFailed, fmt.Sprintf("load %s: %v", record.Dataset, err), nil)
		return
	}
	artifacts := make([]ExportArtifact, 0, len(record.Formats))
	for _, format := range record.Formats {
		payload, err := render(tbl, format)
		if err != nil {
			w.transition(id, ExportStatusFailed, err.Error(), nil)
			return
		}
		key := fmt.Sprintf("exports/%s/%s.%s", id, record.Dataset, format)
		info, err := w.store.Put(w.ctx, key, bytes.NewReader(payload), blob.PutOptions{
			ContentType: format.ContentType(),
			Metadata: map[string]string{
				"dataset": string(record.Dataset),
				"rows":    strconv.Itoa(len(tbl.rows)),
			},
		})
		if err != nil {
			w.transition(id, ExportStatusFailed, fmt.Sprintf("store artifact failed: %v", err), nil)
			return
		}
		url := info.URL
		if signed, err := w.store.PresignURL(w.ctx, key, blob.SignedURLOptions{}); err == nil {
			url = signed
		}
		artifacts = append(artifacts, ExportArtifact{
			Key:         key,
			Format:      format,
			ContentType: format.ContentType(),
			SizeBytes:   int64(len(payload)),
			Rows:        len(tbl.rows),
			URL:         url,
			CreatedAt:   w.now(),
		})
	}
	w.transition(id, ExportStatusSucceeded, "", artifacts)
}

// transition updates the job and emits log and audit signals. It returns the
// updated snapshot.
func (w *Worker) transition(id string, status ExportStatus, reason string, artifacts []ExportArtifact) (ExportRecord, bool) {
	now := w.now()
	w.mu.Lock()
	record, ok := w.jobs[id]
	if !ok {
		w.mu.Unlock()
		return ExportRecord{}, false
	}
	record.Status = status
	record.Error = reason
	record.UpdatedAt = now
	if status == ExportStatusSucceeded || status == ExportStatusFailed {
		record.CompletedAt = &now
		record.Artifacts = artifacts
	}
	snapshot := record.copy()
	w.mu.Unlock()
	w.record(w.ctx, snapshot, reason)
	return snapshot, true
}

func (w *Worker) record(ctx context.Context, rec ExportRecord, reason string) {
	if w.logger != nil {
		if rec.Status == ExportStatusFailed {
			w.logger.Error("export failed", "export_id", rec.ID, "dataset", string(rec.Dataset), "error", reason)
		} else {
			w.logger.Info("export "+string(rec.Status), "export_id", rec.ID, "dataset", string(rec.Dataset))
		}
	}
	if w.audit == nil {
		return
	}
	entry := core.AuditEntry{
		Operation: "export_report",
		Entity:    domain.EntityType("export"),
		Action:    domain.ActionUpdate,
		EntityID:  rec.ID,
		Actor:     rec.RequestedBy,
		Status:    core.AuditStatusSuccess,
		Note:      string(rec.Dataset) + ":" + string(rec.Status),
		Timestamp: rec.UpdatedAt,
	}
	if rec.Status == ExportStatusQueued {
		entry.Action = domain.ActionCreate
	}
	if rec.Status == ExportStatusFailed {
		entry.Status = core.AuditStatusError
		entry.Error = reason
	}
	w.audit.Record(ctx, entry)
}

func (r ExportRecord) copy() ExportRecord {
	dup := r
	dup.Formats = append([]Format(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]ExportArtifact(nil), r.Artifacts...)
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		dup.CompletedAt = &t
	}
	return dup
}
