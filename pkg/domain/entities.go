// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by the PCX certification service.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityBatch identifies a production batch record.
	EntityBatch EntityType = "batch"
	// EntityMeasurement identifies a process measurement record.
	EntityMeasurement EntityType = "measurement"
	// EntityDiscrepancy identifies a reconciliation discrepancy record.
	EntityDiscrepancy EntityType = "discrepancy"
)

// BatchStatus enumerates the production batch lifecycle.
type BatchStatus string

// Canonical batch statuses.
const (
	BatchStatusReceived   BatchStatus = "RECEIVED"
	BatchStatusInProgress BatchStatus = "IN_PROGRESS"
	BatchStatusCompleted  BatchStatus = "COMPLETED"
	BatchStatusCancelled  BatchStatus = "CANCELLED"
)

// Valid reports whether the status is one of the canonical values.
func (s BatchStatus) Valid() bool {
	switch s {
	case BatchStatusReceived, BatchStatusInProgress, BatchStatusCompleted, BatchStatusCancelled:
		return true
	}
	return false
}

// ProductType enumerates the output forms a batch can produce.
type ProductType string

const (
	ProductPellets  ProductType = "PELLETS"
	ProductFlakes   ProductType = "FLAKES"
	ProductGranules ProductType = "GRANULES"
	ProductRegrind  ProductType = "REGRIND"
)

// Valid reports whether the product type is known.
func (p ProductType) Valid() bool {
	switch p {
	case ProductPellets, ProductFlakes, ProductGranules, ProductRegrind:
		return true
	}
	return false
}

// Classification describes the provenance of a material.
type Classification string

// Material classifications. WASTE is only meaningful on measurements, where
// it marks explicitly tracked loss streams.
const (
	ClassificationRecycled Classification = "RECYCLED"
	ClassificationVirgin   Classification = "VIRGIN"
	ClassificationMixed    Classification = "MIXED"
	ClassificationWaste    Classification = "WASTE"
)

// ValidForComposition reports whether the classification may appear in a batch composition.
func (c Classification) ValidForComposition() bool {
	switch c {
	case ClassificationRecycled, ClassificationVirgin, ClassificationMixed:
		return true
	}
	return false
}

// ValidForMeasurement reports whether the classification may be recorded on a measurement.
func (c Classification) ValidForMeasurement() bool {
	return c.ValidForComposition() || c == ClassificationWaste
}

// Unit is a mass unit.
type Unit string

const (
	UnitKilogram Unit = "kg"
	UnitPound    Unit = "lbs"
	UnitTon      Unit = "ton"
)

// Valid reports whether the unit is supported.
func (u Unit) Valid() bool {
	switch u {
	case UnitKilogram, UnitPound, UnitTon:
		return true
	}
	return false
}

// MeasurementSource identifies how a measurement was captured.
type MeasurementSource string

const (
	SourceMES          MeasurementSource = "MES"
	SourceScale        MeasurementSource = "SCALE"
	SourceManual       MeasurementSource = "MANUAL"
	SourceDocumentScan MeasurementSource = "DOCUMENT_SCAN"
)

// Valid reports whether the source is known.
func (s MeasurementSource) Valid() bool {
	switch s {
	case SourceMES, SourceScale, SourceManual, SourceDocumentScan:
		return true
	}
	return false
}

// Automated reports whether the source is machine-captured.
func (s MeasurementSource) Automated() bool {
	return s == SourceMES || s == SourceScale
}

// ValidationStatus is the review state of a measurement.
type ValidationStatus string

const (
	ValidationPending   ValidationStatus = "PENDING"
	ValidationValidated ValidationStatus = "VALIDATED"
	ValidationFlagged   ValidationStatus = "FLAGGED"
)

// Valid reports whether the validation status is known.
func (v ValidationStatus) Valid() bool {
	switch v {
	case ValidationPending, ValidationValidated, ValidationFlagged:
		return true
	}
	return false
}

// DefaultValidationStatus returns the initial review state for a source:
// manual entries wait for review, everything else is trusted.
func DefaultValidationStatus(source MeasurementSource) ValidationStatus {
	if source == SourceManual {
		return ValidationPending
	}
	return ValidationValidated
}

var validationTransitions = map[ValidationStatus][]ValidationStatus{
	ValidationPending: {ValidationValidated, ValidationFlagged},
	ValidationFlagged: {ValidationValidated},
}

// ValidationTransitionAllowed reports whether from -> to is a legal review step
// without a privileged override. Same-state transitions are allowed.
func ValidationTransitionAllowed(from, to ValidationStatus) bool {
	if from == to {
		return true
	}
	for _, next := range validationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// EvidenceType enumerates evidence attachment kinds.
type EvidenceType string

const (
	EvidencePhoto           EvidenceType = "PHOTO"
	EvidenceScannedDocument EvidenceType = "SCANNED_DOCUMENT"
)

// Valid reports whether the evidence type is known.
func (e EvidenceType) Valid() bool {
	return e == EvidencePhoto || e == EvidenceScannedDocument
}

// DiscrepancySeverity ranks reconciliation findings.
type DiscrepancySeverity string

const (
	SeverityHigh   DiscrepancySeverity = "HIGH"
	SeverityMedium DiscrepancySeverity = "MEDIUM"
	SeverityLow    DiscrepancySeverity = "LOW"
)

// Valid reports whether the severity is known.
func (s DiscrepancySeverity) Valid() bool {
	switch s {
	case SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// DiscrepancyStatus is the workflow state of a discrepancy.
type DiscrepancyStatus string

// Discrepancies start OPEN; RESOLVED and IGNORED are terminal.
const (
	DiscrepancyOpen     DiscrepancyStatus = "OPEN"
	DiscrepancyResolved DiscrepancyStatus = "RESOLVED"
	DiscrepancyIgnored  DiscrepancyStatus = "IGNORED"
)

// Valid reports whether the status is known.
func (s DiscrepancyStatus) Valid() bool {
	switch s {
	case DiscrepancyOpen, DiscrepancyResolved, DiscrepancyIgnored:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s DiscrepancyStatus) Terminal() bool {
	return s == DiscrepancyResolved || s == DiscrepancyIgnored
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// MaterialComposition is one ingredient line of a batch recipe.
type MaterialComposition struct {
	MaterialTypeCode string         `json:"materialTypeCode"`
	MaterialTypeName string         `json:"materialTypeName"`
	Classification   Classification `json:"classification"`
	Percentage       float64        `json:"percentage"`
}

// BatchQuantities tracks the mass flow of a batch.
type BatchQuantities struct {
	Expected float64 `json:"expected"`
	Received float64 `json:"received"`
	Consumed float64 `json:"consumed"`
	Yielded  float64 `json:"yielded"`
	Waste    float64 `json:"waste"`
	Unit     Unit    `json:"unit"`
}

// BatchMetadata carries supplier provenance.
type BatchMetadata struct {
	Supplier     string `json:"supplier,omitempty"`
	LotNumber    string `json:"lotNumber,omitempty"`
	QualityGrade string `json:"qualityGrade,omitempty"`
}

// BatchAudit records authorship and optimistic version of a batch.
type BatchAudit struct {
	CreatedAt      time.Time `json:"createdAt"`
	CreatedBy      string    `json:"createdBy"`
	LastModifiedAt time.Time `json:"lastModifiedAt"`
	LastModifiedBy string    `json:"lastModifiedBy"`
	Version        int       `json:"version"`
}

// Batch is a production run tracked for certification.
type Batch struct {
	ID                   string                `json:"id"`
	Status               BatchStatus           `json:"status"`
	ProductName          string                `json:"productName"`
	ProductType          ProductType           `json:"productType"`
	Composition          []MaterialComposition `json:"composition"`
	Quantities           BatchQuantities       `json:"quantities"`
	StartDate            time.Time             `json:"startDate"`
	CompletionDate       *time.Time            `json:"completionDate"`
	SourceDocumentID     *string               `json:"sourceDocumentId"`
	LinkedMeasurementIDs []string              `json:"linkedMeasurementIds"`
	Notes                string                `json:"notes,omitempty"`
	Metadata             BatchMetadata         `json:"metadata"`
	Audit                BatchAudit            `json:"audit"`
}

// HasMeasurement reports whether the measurement is already linked.
func (b Batch) HasMeasurement(id string) bool {
	for _, linked := range b.LinkedMeasurementIDs {
		if linked == id {
			return true
		}
	}
	return false
}

// HasClassification reports whether any composition line carries the classification.
func (b Batch) HasClassification(c Classification) bool {
	for _, line := range b.Composition {
		if line.Classification == c {
			return true
		}
	}
	return false
}

// Location pins a measurement to a station and process step.
type Location struct {
	StationID   string `json:"stationId"`
	StationName string `json:"stationName"`
	ProcessStep string `json:"processStep"`
}

// Evidence is a reference to a photo or scanned document backing a measurement.
type Evidence struct {
	EvidenceID string       `json:"evidenceId"`
	Type       EvidenceType `json:"type"`
	URL        string       `json:"url"`
	Filename   string       `json:"filename"`
	UploadedAt time.Time    `json:"uploadedAt"`
}

// MeasurementMetadata holds justification and the correction chain pointers.
type MeasurementMetadata struct {
	EntryJustification string  `json:"entryJustification,omitempty"`
	Supersedes         *string `json:"supersedes"`
	SupersededBy       *string `json:"supersededBy"`
	Notes              string  `json:"notes,omitempty"`
}

// MeasurementAudit records authorship of a measurement.
type MeasurementAudit struct {
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy"`
	Version   int       `json:"version"`
}

// Measurement is a single mass reading. Value, timestamp, source and location
// are immutable once recorded; corrections create a superseding record.
type Measurement struct {
	ID                     string              `json:"id"`
	Source                 MeasurementSource   `json:"source"`
	Timestamp              time.Time           `json:"timestamp"`
	RecordedAt             time.Time           `json:"recordedAt"`
	Location               Location            `json:"location"`
	BatchID                *string             `json:"batchId"`
	OperatorID             string              `json:"operatorId"`
	OperatorName           string              `json:"operatorName"`
	Value                  float64             `json:"value"`
	Unit                   Unit                `json:"unit"`
	MaterialClassification Classification      `json:"materialClassification"`
	MaterialTypeCode       string              `json:"materialTypeCode"`
	EvidenceLinks          []Evidence          `json:"evidenceLinks"`
	ValidationStatus       ValidationStatus    `json:"validationStatus"`
	Metadata               MeasurementMetadata `json:"metadata"`
	Audit                  MeasurementAudit    `json:"audit"`
}

// Superseded reports whether a newer record replaced this one.
func (m Measurement) Superseded() bool {
	return m.Metadata.SupersededBy != nil && *m.Metadata.SupersededBy != ""
}

// Discrepancy is a reconciliation finding between expected and actual mass.
type Discrepancy struct {
	ID            string              `json:"id"`
	Type          string              `json:"type"`
	Severity      DiscrepancySeverity `json:"severity"`
	Status        DiscrepancyStatus   `json:"status"`
	Description   string              `json:"description"`
	BatchID       string              `json:"batchId"`
	ProcessStep   string              `json:"processStep,omitempty"`
	ExpectedValue *float64            `json:"expectedValue,omitempty"`
	ActualValue   *float64            `json:"actualValue,omitempty"`
	Difference    *float64            `json:"difference,omitempty"`
	Unit          string              `json:"unit,omitempty"`
	Detected      time.Time           `json:"detected"`
	SLADeadline   *time.Time          `json:"slaDeadline,omitempty"`
	ResolvedAt    *time.Time          `json:"resolvedAt,omitempty"`
	ResolvedBy    string              `json:"resolvedBy,omitempty"`
	Resolution    string              `json:"resolution,omitempty"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before ChangePayload
	After  ChangePayload
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string     `json:"rule"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
	Entity   EntityType `json:"entity"`
	EntityID string     `json:"entityId"`
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation `json:"violations"`
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
