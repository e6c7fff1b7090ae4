package settlement

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/taxonomy"
)

// Cipher encrypts statements at rest. It is satisfied by platform/crypto.
type Cipher interface {
	Configured() bool
	Encrypt(plain []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// RenderStatement produces the payee-facing PDF for a settlement.
func RenderStatement(s Settlement) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Settlement Statement")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, fmt.Sprintf("Payee: %s (%s)", s.PayeeName, s.PayeeID))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Settlement: %s", s.ID))
	pdf.Ln(6)
	status := string(s.Status)
	if s.FinalizedAt != nil {
		status += " " + s.FinalizedAt.Format("2006-01-02")
	}
	pdf.Cell(0, 7, fmt.Sprintf("Status: %s", status))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Jobs")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	for _, pay := range s.JobPay {
		line(pdf, pay.JobID, pay.Total())
	}
	line(pdf, "Base pay", s.BasePay)
	line(pdf, "Accessorial pay", s.AccessorialPay)
	pdf.SetFont("Helvetica", "B", 10)
	line(pdf, "Gross pay", s.GrossPay)
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Deductions")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	d := s.Deductions
	if d.Advances.IsPositive() {
		line(pdf, "Advances", d.Advances)
	}
	if d.ThirdPartyFees.IsPositive() {
		line(pdf, "Third-party fees", d.ThirdPartyFees)
	}
	for _, category := range sortedKeys(d.Obligations) {
		line(pdf, "Recovered: "+strings.ReplaceAll(category, "_", " "), d.Obligations[taxonomy.Category(category)])
	}
	for _, name := range sortedKeys(d.Withholding) {
		line(pdf, "Withholding: "+name, d.Withholding[name])
	}
	pdf.SetFont("Helvetica", "B", 10)
	line(pdf, "Total deductions", d.Total)
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	line(pdf, "Net payable", s.NetPayable)
	if s.CarriedDebt.IsPositive() {
		line(pdf, "Carried debt", s.CarriedDebt)
	}

	if len(s.Warnings) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "I", 9)
		for _, w := range s.Warnings {
			pdf.MultiCell(0, 5, w.Message, "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func line(pdf *gofpdf.Fpdf, label string, amount decimal.Decimal) {
	pdf.CellFormat(120, 6, label, "", 0, "L", false, 0, "")
	pdf.CellFormat(40, 6, amount.StringFixed(2), "", 1, "R", false, 0, "")
}

func sortedKeys[K ~string, V any](m map[K]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	return keys
}

// writeStatement stores the PDF under dir, encrypted when a key is set.
func writeStatement(dir, settlementID string, pdf []byte, cipher Cipher) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, settlementID+".pdf")
	data := pdf
	if cipher != nil && cipher.Configured() {
		encrypted, err := cipher.Encrypt(pdf)
		if err != nil {
			return "", err
		}
		data = encrypted
		path += ".enc"
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func readStatement(path string, cipher Cipher) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".enc") {
		if cipher == nil || !cipher.Configured() {
			return nil, fmt.Errorf("statement %s is encrypted but no key is configured", filepath.Base(path))
		}
		return cipher.Decrypt(data)
	}
	return data, nil
}
