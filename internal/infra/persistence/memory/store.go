// Package memory provides an in-memory implementation of the core persistence
// store used for tests, ephemeral environments, and as the transactional
// engine behind the durable snapshot stores.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pcx/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Batch aliases domain.Batch for in-memory persistence operations.
	Batch = domain.Batch
	// Measurement aliases domain.Measurement.
	Measurement = domain.Measurement
	// Discrepancy aliases domain.Discrepancy.
	Discrepancy = domain.Discrepancy
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// Sequence keys used for id generation.
const (
	seqBatch       = "batch"
	seqMeasurement = "measurement"
	seqDiscrepancy = "discrepancy"
)

type memoryState struct {
	batches       map[string]Batch
	measurements  map[string]Measurement
	discrepancies map[string]Discrepancy
	sequences     map[string]int
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Batches       map[string]Batch       `json:"batches"`
	Measurements  map[string]Measurement `json:"measurements"`
	Discrepancies map[string]Discrepancy `json:"discrepancies"`
	Sequences     map[string]int         `json:"sequences"`
}

func newMemoryState() memoryState {
	return memoryState{
		batches:       make(map[string]Batch),
		measurements:  make(map[string]Measurement),
		discrepancies: make(map[string]Discrepancy),
		sequences:     make(map[string]int),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.batches {
		cloned.batches[k] = cloneBatch(v)
	}
	for k, v := range s.measurements {
		cloned.measurements[k] = cloneMeasurement(v)
	}
	for k, v := range s.discrepancies {
		cloned.discrepancies[k] = cloneDiscrepancy(v)
	}
	for k, v := range s.sequences {
		cloned.sequences[k] = v
	}
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	c := state.clone()
	return Snapshot{
		Batches:       c.batches,
		Measurements:  c.measurements,
		Discrepancies: c.discrepancies,
		Sequences:     c.sequences,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Batches {
		state.batches[k] = cloneBatch(v)
	}
	for k, v := range s.Measurements {
		state.measurements[k] = cloneMeasurement(v)
	}
	for k, v := range s.Discrepancies {
		state.discrepancies[k] = cloneDiscrepancy(v)
	}
	for k, v := range s.Sequences {
		state.sequences[k] = v
	}
	return state
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneFloatPtr(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// cloneSlice copies s and never returns nil, so collections encode as [].
func cloneSlice[T any](s []T) []T {
	return append(make([]T, 0, len(s)), s...)
}

func cloneBatch(b Batch) Batch {
	cp := b
	cp.Composition = cloneSlice(b.Composition)
	cp.LinkedMeasurementIDs = cloneSlice(b.LinkedMeasurementIDs)
	cp.CompletionDate = cloneTimePtr(b.CompletionDate)
	cp.SourceDocumentID = cloneStringPtr(b.SourceDocumentID)
	return cp
}

func cloneMeasurement(m Measurement) Measurement {
	cp := m
	cp.BatchID = cloneStringPtr(m.BatchID)
	cp.EvidenceLinks = cloneSlice(m.EvidenceLinks)
	cp.Metadata.Supersedes = cloneStringPtr(m.Metadata.Supersedes)
	cp.Metadata.SupersededBy = cloneStringPtr(m.Metadata.SupersededBy)
	return cp
}

func cloneDiscrepancy(d Discrepancy) Discrepancy {
	cp := d
	cp.ExpectedValue = cloneFloatPtr(d.ExpectedValue)
	cp.ActualValue = cloneFloatPtr(d.ActualValue)
	cp.Difference = cloneFloatPtr(d.Difference)
	cp.SLADeadline = cloneTimePtr(d.SLADeadline)
	cp.ResolvedAt = cloneTimePtr(d.ResolvedAt)
	return cp
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func mustPayload[T any](label string, value T) domain.ChangePayload {
	payload, err := domain.NewChangePayloadFromValue(value)
	if err != nil {
		panic(fmt.Errorf("memory store %s: %w", label, err))
	}
	return payload
}

// Store provides an in-memory transactional store. Each transaction works on a
// cloned copy of the state which replaces the committed state only when the
// rules engine reports no blocking violations.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an empty in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// ExportState returns a deep copy of the current state for persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the current state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured rules engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// SetNowFunc overrides the transaction clock.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) ListBatches() []Batch {
	out := make([]Batch, 0, len(v.state.batches))
	for _, b := range v.state.batches {
		out = append(out, cloneBatch(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) ListMeasurements() []Measurement {
	out := make([]Measurement, 0, len(v.state.measurements))
	for _, m := range v.state.measurements {
		out = append(out, cloneMeasurement(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) ListDiscrepancies() []Discrepancy {
	out := make([]Discrepancy, 0, len(v.state.discrepancies))
	for _, d := range v.state.discrepancies {
		out = append(out, cloneDiscrepancy(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) FindBatch(id string) (Batch, bool) {
	b, ok := v.state.batches[id]
	if !ok {
		return Batch{}, false
	}
	return cloneBatch(b), true
}

func (v transactionView) FindMeasurement(id string) (Measurement, bool) {
	m, ok := v.state.measurements[id]
	if !ok {
		return Measurement{}, false
	}
	return cloneMeasurement(m), true
}

func (v transactionView) FindDiscrepancy(id string) (Discrepancy, bool) {
	d, ok := v.state.discrepancies[id]
	if !ok {
		return Discrepancy{}, false
	}
	return cloneDiscrepancy(d), true
}

// RunInTransaction executes fn within a transactional snapshot.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil && len(tx.changes) > 0 {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

func (tx *transaction) Now() time.Time {
	return tx.now
}

// nextID allocates the next free identifier in a sequence, skipping ids that
// were imported verbatim.
func (tx *transaction) nextID(seq, prefix string, width int, taken func(string) bool) string {
	for {
		tx.state.sequences[seq]++
		id := fmt.Sprintf("%s-%d-%0*d", prefix, tx.now.Year(), width, tx.state.sequences[seq])
		if !taken(id) {
			return id
		}
	}
}

func (tx *transaction) FindBatch(id string) (Batch, bool) {
	b, ok := tx.state.batches[id]
	if !ok {
		return Batch{}, false
	}
	return cloneBatch(b), true
}

func (tx *transaction) FindMeasurement(id string) (Measurement, bool) {
	m, ok := tx.state.measurements[id]
	if !ok {
		return Measurement{}, false
	}
	return cloneMeasurement(m), true
}

func (tx *transaction) FindDiscrepancy(id string) (Discrepancy, bool) {
	d, ok := tx.state.discrepancies[id]
	if !ok {
		return Discrepancy{}, false
	}
	return cloneDiscrepancy(d), true
}

func (tx *transaction) CreateBatch(b Batch) (Batch, error) {
	if b.ID == "" {
		b.ID = tx.nextID(seqBatch, "BATCH", 3, func(id string) bool { _, ok := tx.state.batches[id]; return ok })
	}
	if _, exists := tx.state.batches[b.ID]; exists {
		return Batch{}, fmt.Errorf("batch %q already exists", b.ID)
	}
	b.LinkedMeasurementIDs = dedupeStrings(b.LinkedMeasurementIDs)
	if b.Audit.CreatedAt.IsZero() {
		b.Audit.CreatedAt = tx.now
	}
	if b.Audit.LastModifiedAt.IsZero() {
		b.Audit.LastModifiedAt = b.Audit.CreatedAt
	}
	if b.Audit.Version == 0 {
		b.Audit.Version = 1
	}
	tx.state.batches[b.ID] = cloneBatch(b)
	tx.recordChange(Change{Entity: domain.EntityBatch, Action: domain.ActionCreate, After: mustPayload("create batch", b)})
	return cloneBatch(b), nil
}

func (tx *transaction) UpdateBatch(id string, mutator func(*Batch) error) (Batch, error) {
	current, ok := tx.state.batches[id]
	if !ok {
		return Batch{}, domain.NotFoundError{Entity: domain.EntityBatch, ID: id}
	}
	before := cloneBatch(current)
	if err := mutator(&current); err != nil {
		return Batch{}, err
	}
	current.ID = id
	current.LinkedMeasurementIDs = dedupeStrings(current.LinkedMeasurementIDs)
	tx.state.batches[id] = cloneBatch(current)
	tx.recordChange(Change{
		Entity: domain.EntityBatch,
		Action: domain.ActionUpdate,
		Before: mustPayload("update batch", before),
		After:  mustPayload("update batch", current),
	})
	return cloneBatch(current), nil
}

func (tx *transaction) CreateMeasurement(m Measurement) (Measurement, error) {
	if m.ID == "" {
		m.ID = tx.nextID(seqMeasurement, "MR", 6, func(id string) bool { _, ok := tx.state.measurements[id]; return ok })
	}
	if _, exists := tx.state.measurements[m.ID]; exists {
		return Measurement{}, fmt.Errorf("measurement %q already exists", m.ID)
	}
	if m.RecordedAt.IsZero() {
		m.RecordedAt = tx.now
	}
	if m.Audit.CreatedAt.IsZero() {
		m.Audit.CreatedAt = m.RecordedAt
	}
	if m.Audit.Version == 0 {
		m.Audit.Version = 1
	}
	tx.state.measurements[m.ID] = cloneMeasurement(m)
	tx.recordChange(Change{Entity: domain.EntityMeasurement, Action: domain.ActionCreate, After: mustPayload("create measurement", m)})
	return cloneMeasurement(m), nil
}

func (tx *transaction) UpdateMeasurement(id string, mutator func(*Measurement) error) (Measurement, error) {
	current, ok := tx.state.measurements[id]
	if !ok {
		return Measurement{}, domain.NotFoundError{Entity: domain.EntityMeasurement, ID: id}
	}
	before := cloneMeasurement(current)
	if err := mutator(&current); err != nil {
		return Measurement{}, err
	}
	current.ID = id
	tx.state.measurements[id] = cloneMeasurement(current)
	tx.recordChange(Change{
		Entity: domain.EntityMeasurement,
		Action: domain.ActionUpdate,
		Before: mustPayload("update measurement", before),
		After:  mustPayload("update measurement", current),
	})
	return cloneMeasurement(current), nil
}

func (tx *transaction) CreateDiscrepancy(d Discrepancy) (Discrepancy, error) {
	if d.ID == "" {
		d.ID = tx.nextID(seqDiscrepancy, "DSC", 3, func(id string) bool { _, ok := tx.state.discrepancies[id]; return ok })
	}
	if _, exists := tx.state.discrepancies[d.ID]; exists {
		return Discrepancy{}, fmt.Errorf("discrepancy %q already exists", d.ID)
	}
	if d.Detected.IsZero() {
		d.Detected = tx.now
	}
	tx.state.discrepancies[d.ID] = cloneDiscrepancy(d)
	tx.recordChange(Change{Entity: domain.EntityDiscrepancy, Action: domain.ActionCreate, After: mustPayload("create discrepancy", d)})
	return cloneDiscrepancy(d), nil
}

func (tx *transaction) UpdateDiscrepancy(id string, mutator func(*Discrepancy) error) (Discrepancy, error) {
	current, ok := tx.state.discrepancies[id]
	if !ok {
		return Discrepancy{}, domain.NotFoundError{Entity: domain.EntityDiscrepancy, ID: id}
	}
	before := cloneDiscrepancy(current)
	if err := mutator(&current); err != nil {
		return Discrepancy{}, err
	}
	current.ID = id
	tx.state.discrepancies[id] = cloneDiscrepancy(current)
	tx.recordChange(Change{
		Entity: domain.EntityDiscrepancy,
		Action: domain.ActionUpdate,
		Before: mustPayload("update discrepancy", before),
		After:  mustPayload("update discrepancy", current),
	})
	return cloneDiscrepancy(current), nil
}

// GetBatch retrieves a batch by ID.
func (s *Store) GetBatch(id string) (Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.state.batches[id]
	if !ok {
		return Batch{}, false
	}
	return cloneBatch(b), true
}

// ListBatches returns all batches ordered by id.
func (s *Store) ListBatches() []Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListBatches()
}

// GetMeasurement retrieves a measurement by ID.
func (s *Store) GetMeasurement(id string) (Measurement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.state.measurements[id]
	if !ok {
		return Measurement{}, false
	}
	return cloneMeasurement(m), true
}

// ListMeasurements returns all measurements ordered by id.
func (s *Store) ListMeasurements() []Measurement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListMeasurements()
}

// GetDiscrepancy retrieves a discrepancy by ID.
func (s *Store) GetDiscrepancy(id string) (Discrepancy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.state.discrepancies[id]
	if !ok {
		return Discrepancy{}, false
	}
	return cloneDiscrepancy(d), true
}

// ListDiscrepancies returns all discrepancies ordered by id.
func (s *Store) ListDiscrepancies() []Discrepancy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListDiscrepancies()
}
