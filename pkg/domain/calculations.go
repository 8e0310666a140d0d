package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// CompositionTotal sums composition percentages with decimal arithmetic so
// that 33.33+33.33+33.34 lands exactly on 100.
func CompositionTotal(lines []MaterialComposition) float64 {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(decimal.NewFromFloat(line.Percentage))
	}
	return total.InexactFloat64()
}

// CompositionBalanced reports whether percentages sum to 100 within tolerance.
func CompositionBalanced(lines []MaterialComposition, tolerance float64) bool {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(decimal.NewFromFloat(line.Percentage))
	}
	diff := total.Sub(decimal.NewFromInt(100)).Abs()
	return diff.LessThanOrEqual(decimal.NewFromFloat(tolerance))
}

// Efficiency summarises batch yield ratios as percentages of received mass.
type Efficiency struct {
	YieldPct       float64 `json:"yieldPct"`
	WastePct       float64 `json:"wastePct"`
	UtilizationPct float64 `json:"utilizationPct"`
}

// CalculateEfficiency derives yield, waste and utilization. All values are
// zero when nothing has been received.
func CalculateEfficiency(b Batch) Efficiency {
	q := b.Quantities
	if q.Received <= 0 {
		return Efficiency{}
	}
	received := decimal.NewFromFloat(q.Received)
	yielded := decimal.NewFromFloat(q.Yielded)
	waste := decimal.NewFromFloat(q.Waste)
	pct := func(v decimal.Decimal) float64 {
		return v.Div(received).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}
	return Efficiency{
		YieldPct:       pct(yielded),
		WastePct:       pct(waste),
		UtilizationPct: pct(yielded.Add(waste)),
	}
}

// RecycledContentPercentage sums the RECYCLED composition lines.
func RecycledContentPercentage(b Batch) float64 {
	total := decimal.Zero
	for _, line := range b.Composition {
		if line.Classification == ClassificationRecycled {
			total = total.Add(decimal.NewFromFloat(line.Percentage))
		}
	}
	return total.Round(2).InexactFloat64()
}

// Variance expresses difference as a percentage of expected. A zero expected
// value divides by one.
func Variance(expected, difference float64) float64 {
	denominator := decimal.NewFromFloat(expected)
	if denominator.IsZero() {
		denominator = decimal.NewFromInt(1)
	}
	return decimal.NewFromFloat(difference).Div(denominator).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
}

// BalanceStatus is the verdict of a mass balance check.
type BalanceStatus string

const (
	BalanceBalanced       BalanceStatus = "BALANCED"
	BalanceRequiresReview BalanceStatus = "REQUIRES_REVIEW"
)

// MassBalance is the VRCQ breakdown of material flow.
type MassBalance struct {
	Inputs        float64       `json:"inputs"`
	Virgin        float64       `json:"virgin"`
	Losses        float64       `json:"losses"`
	LossesModeled bool          `json:"lossesModeled"`
	Output        float64       `json:"output"`
	Production    float64       `json:"production"`
	Deviation     float64       `json:"deviation"`
	Status        BalanceStatus `json:"status"`
	BatchID       string        `json:"batchId,omitempty"`
	ComputedAt    time.Time     `json:"computedAt"`
}

var kilogramsPer = map[Unit]decimal.Decimal{
	UnitPound: decimal.RequireFromString("0.45359237"),
	UnitTon:   decimal.NewFromInt(1000),
}

func kilograms(v float64, u Unit) decimal.Decimal {
	d := decimal.NewFromFloat(v)
	if f, ok := kilogramsPer[u]; ok {
		return d.Mul(f)
	}
	return d
}

// ToKilograms converts v from u to kilograms. A ton is a metric tonne. Empty
// or unknown units are taken as kilograms.
func (u Unit) ToKilograms(v float64) float64 {
	return kilograms(v, u).InexactFloat64()
}

// ComputeMassBalance applies the VRCQ formula:
//
//	Output = Inputs + Virgin - Losses
//
// Losses fall back to policy.LossFallbackRate of Inputs when no WASTE readings
// exist. Superseded readings are ignored. Production is the yielded mass of
// completed batches. Every figure is summed and reported in kilograms. An
// Output of zero always requires review.
func ComputeMassBalance(measurements []Measurement, batches []Batch, policy Policy) MassBalance {
	inputs, virgin, waste := decimal.Zero, decimal.Zero, decimal.Zero
	for _, m := range measurements {
		if m.Superseded() {
			continue
		}
		v := kilograms(m.Value, m.Unit)
		if policy.IsIntakeStation(m.Location) {
			inputs = inputs.Add(v)
		}
		switch m.MaterialClassification {
		case ClassificationVirgin:
			virgin = virgin.Add(v)
		case ClassificationWaste:
			waste = waste.Add(v)
		}
	}
	losses := waste
	modeled := false
	if !waste.IsPositive() {
		losses = inputs.Mul(decimal.NewFromFloat(policy.LossFallbackRate))
		modeled = true
	}
	output := inputs.Add(virgin).Sub(losses)

	production := decimal.Zero
	for _, b := range batches {
		if b.Status == BatchStatusCompleted {
			production = production.Add(kilograms(b.Quantities.Yielded, b.Quantities.Unit))
		}
	}

	mb := MassBalance{
		Inputs:        inputs.Round(2).InexactFloat64(),
		Virgin:        virgin.Round(2).InexactFloat64(),
		Losses:        losses.Round(2).InexactFloat64(),
		LossesModeled: modeled,
		Output:        output.Round(2).InexactFloat64(),
		Production:    production.Round(2).InexactFloat64(),
		Status:        BalanceRequiresReview,
	}
	if output.IsZero() {
		return mb
	}
	deviation := output.Sub(production).Abs().Div(output.Abs())
	mb.Deviation = deviation.Round(4).InexactFloat64()
	if output.IsPositive() && deviation.LessThan(decimal.NewFromFloat(policy.BalanceTolerance)) {
		mb.Status = BalanceBalanced
	}
	return mb
}
