package driverpay

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	WarningConfigurationMissing = "configuration_missing"
	WarningUnknownPayType       = "unknown_pay_type"
)

var hundred = decimal.NewFromInt(100)

// ComputeJobPay returns base and pass-through accessorial pay for one job.
// A missing profile or a rate that resolves to zero yields zero base pay and
// a warning; no fallback rate is ever substituted.
func ComputeJobPay(job Job, profile *PayProfile) JobPay {
	pay := JobPay{
		JobID:          job.ID,
		BasePay:        decimal.Zero,
		AccessorialPay: AccessorialTotal(job.Accessorials),
	}

	if profile == nil {
		pay.Warnings = append(pay.Warnings, Warning{
			Code:    WarningConfigurationMissing,
			JobID:   job.ID,
			Message: fmt.Sprintf("payee %s has no pay profile", job.PayeeID),
		})
		return pay
	}

	var base decimal.Decimal
	rate := profile.Rate
	switch profile.Type {
	case PayTypePercentage:
		rate = NormalizePercentage(rate)
		base = job.LinehaulRate.Mul(rate)
	case PayTypePerDistance:
		base = job.Distance.Mul(rate)
	case PayTypeFlat:
		base = rate
	default:
		pay.Warnings = append(pay.Warnings, Warning{
			Code:    WarningUnknownPayType,
			JobID:   job.ID,
			Message: fmt.Sprintf("pay type %q is not supported", profile.Type),
		})
		return pay
	}

	if !rate.IsPositive() {
		pay.Warnings = append(pay.Warnings, Warning{
			Code:    WarningConfigurationMissing,
			JobID:   job.ID,
			Message: fmt.Sprintf("payee %s has no usable %s rate", profile.PayeeID, profile.Type),
		})
		return pay
	}

	pay.BasePay = base.Round(2)
	return pay
}

// NormalizePercentage turns a whole-number percentage (65) into a fraction
// (0.65). Values in (0,1] are already fractions and are returned unchanged,
// so a stored 1 means the full linehaul while 2 means 2%. Rates between 1
// and 100 are always read as whole percentages.
func NormalizePercentage(rate decimal.Decimal) decimal.Decimal {
	if rate.GreaterThan(decimal.NewFromInt(1)) {
		return rate.Div(hundred)
	}
	return rate
}

// AccessorialTotal sums the detention, layover and lumper charges present on
// a job, each rounded to cents. Non-positive amounts are ignored.
func AccessorialTotal(acc Accessorials) decimal.Decimal {
	total := decimal.Zero
	for _, charge := range []decimal.NullDecimal{acc.Detention, acc.Layover, acc.Lumper} {
		if charge.Valid && charge.Decimal.IsPositive() {
			total = total.Add(charge.Decimal.Round(2))
		}
	}
	return total
}

// Totals sums a batch of job pay results.
func Totals(pays []JobPay) (base, accessorial decimal.Decimal) {
	base, accessorial = decimal.Zero, decimal.Zero
	for _, p := range pays {
		base = base.Add(p.BasePay)
		accessorial = accessorial.Add(p.AccessorialPay)
	}
	return base, accessorial
}
