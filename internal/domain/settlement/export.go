package settlement

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const registerSheet = "Settlements"

var registerHeaders = []string{
	"Settlement ID", "Payee ID", "Payee", "Classification", "Status", "Finalized",
	"Jobs", "Base Pay", "Accessorial Pay", "Gross Pay", "Advances", "Third-Party Fees",
	"Obligation Recovery", "Withholding", "Total Deductions", "Net Payable", "Carried Debt",
}

// RenderRegister writes one row per settlement. Money cells are written as
// fixed two-decimal strings so the sheet never holds binary floats.
func RenderRegister(settlements []Settlement) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(registerSheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	for i, header := range registerHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(registerSheet, cell, header); err != nil {
			return nil, err
		}
	}

	for i, s := range settlements {
		row := i + 2
		finalized := ""
		if s.FinalizedAt != nil {
			finalized = s.FinalizedAt.Format("2006-01-02")
		}
		d := s.Deductions
		values := []any{
			s.ID, s.PayeeID, s.PayeeName, string(s.Classification), string(s.Status), finalized,
			len(s.JobIDs),
			s.BasePay.StringFixed(2), s.AccessorialPay.StringFixed(2), s.GrossPay.StringFixed(2),
			d.Advances.StringFixed(2), d.ThirdPartyFees.StringFixed(2),
			d.ObligationTotal.StringFixed(2), d.WithholdingTotal.StringFixed(2), d.Total.StringFixed(2),
			s.NetPayable.StringFixed(2), s.CarriedDebt.StringFixed(2),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(registerSheet, cell, value); err != nil {
				return nil, fmt.Errorf("register row %d: %w", row, err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
