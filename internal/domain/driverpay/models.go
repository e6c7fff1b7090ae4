package driverpay

import (
	"time"

	"github.com/shopspring/decimal"
)

type PayType string

const (
	PayTypePercentage  PayType = "percentage"
	PayTypePerDistance PayType = "per_distance"
	PayTypeFlat        PayType = "flat"
)

type PayProfile struct {
	PayeeID string          `json:"payeeId"`
	Type    PayType         `json:"type"`
	Rate    decimal.Decimal `json:"rate"`
}

// Accessorials are compensation for time or equipment; an invalid entry
// means the charge is absent on the job.
type Accessorials struct {
	Detention decimal.NullDecimal `json:"detention"`
	Layover   decimal.NullDecimal `json:"layover"`
	Lumper    decimal.NullDecimal `json:"lumper"`
}

type Job struct {
	ID           string          `json:"id"`
	PayeeID      string          `json:"payeeId"`
	LinehaulRate decimal.Decimal `json:"linehaulRate"`
	Accessorials Accessorials    `json:"accessorials"`
	Distance     decimal.Decimal `json:"distance"`
	CompletedAt  time.Time       `json:"completedAt"`
}

type Warning struct {
	Code    string `json:"code"`
	JobID   string `json:"jobId,omitempty"`
	Message string `json:"message"`
}

type JobPay struct {
	JobID          string          `json:"jobId"`
	BasePay        decimal.Decimal `json:"basePay"`
	AccessorialPay decimal.Decimal `json:"accessorialPay"`
	Warnings       []Warning       `json:"warnings,omitempty"`
}

func (p JobPay) Total() decimal.Decimal {
	return p.BasePay.Add(p.AccessorialPay)
}
