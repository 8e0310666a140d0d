package core

import (
	"context"

	"github.com/shopspring/decimal"

	"pcx/pkg/domain"
)

// MassBalanceScope limits the mass balance to one batch when BatchID is set.
type MassBalanceScope struct {
	BatchID string
}

// MassBalance computes the VRCQ breakdown from the current store contents.
func (s *Service) MassBalance(ctx context.Context, scope MassBalanceScope) (domain.MassBalance, error) {
	var mb domain.MassBalance
	err := s.read(ctx, "mass_balance", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			measurements := view.ListMeasurements()
			batches := view.ListBatches()
			if scope.BatchID != "" {
				batch, ok := view.FindBatch(scope.BatchID)
				if !ok {
					return domain.NotFoundError{Entity: domain.EntityBatch, ID: scope.BatchID}
				}
				batches = []Batch{batch}
				scoped := measurements[:0:0]
				for _, m := range measurements {
					if (m.BatchID != nil && *m.BatchID == scope.BatchID) || batch.HasMeasurement(m.ID) {
						scoped = append(scoped, m)
					}
				}
				measurements = scoped
			}
			mb = domain.ComputeMassBalance(measurements, batches, s.policy)
			mb.BatchID = scope.BatchID
			mb.ComputedAt = s.now()
			return nil
		})
	})
	return mb, err
}

// Summary is the dashboard headline for the reports page.
type Summary struct {
	TotalProduction        float64                    `json:"totalProduction"`
	AverageRecycledContent float64                    `json:"averageRecycledContent"`
	BatchesByStatus        map[domain.BatchStatus]int `json:"batchesByStatus"`
	MeasurementCount       int                        `json:"measurementCount"`
	PendingValidation      int                        `json:"pendingValidation"`
	FlaggedMeasurements    int                        `json:"flaggedMeasurements"`
	OpenDiscrepancies      int                        `json:"openDiscrepancies"`
	MassBalanceStatus      domain.BalanceStatus       `json:"massBalanceStatus"`
}

// Summary aggregates production and review counters across the store.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	var out Summary
	err := s.read(ctx, "summary", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			out.BatchesByStatus = map[domain.BatchStatus]int{
				domain.BatchStatusReceived:   0,
				domain.BatchStatusInProgress: 0,
				domain.BatchStatusCompleted:  0,
				domain.BatchStatusCancelled:  0,
			}
			production := decimal.Zero
			recycled := decimal.Zero
			completed := 0
			batches := view.ListBatches()
			for _, b := range batches {
				out.BatchesByStatus[b.Status]++
				if b.Status != domain.BatchStatusCompleted {
					continue
				}
				completed++
				production = production.Add(decimal.NewFromFloat(b.Quantities.Yielded))
				recycled = recycled.Add(decimal.NewFromFloat(domain.RecycledContentPercentage(b)))
			}
			out.TotalProduction = production.Round(2).InexactFloat64()
			if completed > 0 {
				out.AverageRecycledContent = recycled.Div(decimal.NewFromInt(int64(completed))).Round(2).InexactFloat64()
			}
			measurements := view.ListMeasurements()
			out.MeasurementCount = len(measurements)
			for _, m := range measurements {
				switch m.ValidationStatus {
				case domain.ValidationPending:
					out.PendingValidation++
				case domain.ValidationFlagged:
					out.FlaggedMeasurements++
				}
			}
			for _, d := range view.ListDiscrepancies() {
				if d.Status == domain.DiscrepancyOpen {
					out.OpenDiscrepancies++
				}
			}
			out.MassBalanceStatus = domain.ComputeMassBalance(measurements, batches, s.policy).Status
			return nil
		})
	})
	return out, err
}

// AuditTrail returns the most recent audit entries when the configured audit
// recorder can be read back.
func (s *Service) AuditTrail(ctx context.Context, limit int) ([]AuditEntry, error) {
	var out []AuditEntry
	err := s.read(ctx, "audit_trail", func(context.Context) error {
		reader, ok := s.audit.(AuditReader)
		if !ok {
			out = []AuditEntry{}
			return nil
		}
		out = reader.Entries(limit)
		return nil
	})
	return out, err
}
