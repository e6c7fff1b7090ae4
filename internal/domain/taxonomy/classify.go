package taxonomy

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// CostRecord is a raw expense as captured by dispatch or accounting.
type CostRecord struct {
	Type        string          `json:"type"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	PaidBy      Payer           `json:"paidBy"`
}

type rule struct {
	category Category
	keywords []string
}

// Order matters: the first matching rule wins.
var rules = []rule{
	{category: CategoryFuel, keywords: []string{"fuel", "diesel", "gasoline", "def fluid"}},
	{category: CategoryInsurance, keywords: []string{"insurance", "occupational accident", "cargo coverage", "liability coverage"}},
	{category: CategoryMaintenance, keywords: []string{"maintenance", "repair", "tire", "oil change", "service call"}},
}

// employer aliases seen in imported cost records.
var employerAliases = map[string]bool{
	string(PayerEmployer): true,
	"company":             true,
	"carrier_paid":        true,
}

// Classify maps a cost record to its deduction category and reports whether
// the payee owes the amount back. It never fails; unmatched types are "other".
func Classify(record CostRecord) (Category, bool) {
	return categoryFor(record.Type), IsEmployerPaid(record.PaidBy)
}

// categoryFor matches keywords against whole words, so "tire" does not hit
// "retirement". A trailing plural "s" on the last word is accepted.
func categoryFor(costType string) Category {
	words := splitWords(costType)
	if len(words) == 0 {
		return CategoryOther
	}
	for _, r := range rules {
		for _, keyword := range r.keywords {
			if containsPhrase(words, strings.Fields(keyword)) {
				return r.category
			}
		}
	}
	return CategoryOther
}

func splitWords(value string) []string {
	return strings.FieldsFunc(strings.ToLower(value), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsPhrase(words, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(words) {
		return false
	}
	last := len(phrase) - 1
	for start := 0; start+len(phrase) <= len(words); start++ {
		matched := true
		for i, want := range phrase {
			got := words[start+i]
			if got == want || (i == last && got == want+"s") {
				continue
			}
			matched = false
			break
		}
		if matched {
			return true
		}
	}
	return false
}

// IsEmployerPaid is true only when the employer fronted the cost.
func IsEmployerPaid(payer Payer) bool {
	return employerAliases[strings.ToLower(strings.TrimSpace(string(payer)))]
}

// ParseCategory normalises a stored category value.
func ParseCategory(value string) Category {
	switch Category(strings.ToLower(strings.TrimSpace(value))) {
	case CategoryFuel:
		return CategoryFuel
	case CategoryInsurance:
		return CategoryInsurance
	case CategoryMaintenance:
		return CategoryMaintenance
	case CategoryCarriedDebt:
		return CategoryCarriedDebt
	default:
		return CategoryOther
	}
}
