package split

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Terms are a merchant's configured revenue-split parameters.
type Terms struct {
	ClinicSplitPercent  float64
	PlatformFeeBps      int64
	TransactionFeeCents int64
}

// Shares is the computed division of a gross amount.
type Shares struct {
	ClinicAmountCents   int64
	PlatformAmountCents int64
	PlatformFeeCents    int64
}

// Compute divides grossCents between clinic and platform. The clinic
// share is the configured percentage of gross; the platform fee is the
// basis-point fee plus the flat per-transaction fee, taken out of the
// clinic share. Rounding is half-up at each step, and the platform
// amount is derived as the remainder so the two shares always sum to
// gross exactly.
func Compute(grossCents int64, terms Terms) (Shares, error) {
	if grossCents <= 0 {
		return Shares{}, fmt.Errorf("gross amount must be positive, got %d", grossCents)
	}
	if terms.ClinicSplitPercent < 0 || terms.ClinicSplitPercent > 100 {
		return Shares{}, fmt.Errorf("clinic split percent out of range: %v", terms.ClinicSplitPercent)
	}
	if terms.PlatformFeeBps < 0 {
		return Shares{}, fmt.Errorf("platform fee bps must not be negative: %d", terms.PlatformFeeBps)
	}
	if terms.TransactionFeeCents < 0 {
		return Shares{}, fmt.Errorf("transaction fee must not be negative: %d", terms.TransactionFeeCents)
	}

	gross := decimal.NewFromInt(grossCents)

	clinicShare := gross.
		Mul(decimal.NewFromFloat(terms.ClinicSplitPercent)).
		Div(decimal.NewFromInt(100)).
		Round(0).IntPart()

	bpsFee := gross.
		Mul(decimal.NewFromInt(terms.PlatformFeeBps)).
		Div(decimal.NewFromInt(10000)).
		Round(0).IntPart()

	feeTotal := bpsFee + terms.TransactionFeeCents

	clinicAmount := clinicShare - feeTotal
	if clinicAmount < 0 {
		clinicAmount = 0
	}
	platformAmount := grossCents - clinicAmount

	return Shares{
		ClinicAmountCents:   clinicAmount,
		PlatformAmountCents: platformAmount,
		PlatformFeeCents:    feeTotal,
	}, nil
}
