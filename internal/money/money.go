// Package money handles bid amounts: VAT included in a price, ru-RU
// formatting and the amount-in-words line required on price proposals.
package money

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Kopecks is an amount of rubles expressed in kopecks.
type Kopecks int64

// FromRubles rounds a ruble amount to the nearest kopeck.
func FromRubles(rubles float64) Kopecks {
	return Kopecks(math.Round(rubles * 100))
}

// Rubles returns the amount as a float for JSON payloads.
func (k Kopecks) Rubles() float64 {
	return float64(k) / 100
}

// VATRate is a VAT rate as stored on a company profile: a percentage
// ("22", "10", "7", "5", "0") or "none" for companies not paying VAT.
type VATRate string

const (
	NoVAT VATRate = "none"
	// DefaultRate is the general rate.
	DefaultRate VATRate = "22"
)

// Rates lists the rates offered in the profile form.
var Rates = []VATRate{"22", "10", "7", "5", "0", NoVAT}

// Percent returns the numeric rate and whether VAT applies at all.
func (r VATRate) Percent() (int64, bool) {
	s := strings.TrimSuffix(strings.TrimSpace(string(r)), "%")
	if s == "" || s == string(NoVAT) {
		return 0, false
	}
	p, err := strconv.ParseInt(s, 10, 64)
	if err != nil || p < 0 {
		return 0, false
	}
	return p, true
}

// Valid reports whether r is "none" or a non-negative percentage.
func (r VATRate) Valid() bool {
	_, ok := r.Percent()
	return ok || strings.TrimSpace(string(r)) == string(NoVAT)
}

// Label is the human-readable rate shown on documents.
func (r VATRate) Label() string {
	if p, ok := r.Percent(); ok {
		return fmt.Sprintf("%d%%", p)
	}
	return "Без НДС"
}

// VAT returns the VAT contained in a gross amount:
// amount * rate / (100 + rate), rounded half up to the kopeck.
func VAT(amount Kopecks, rate VATRate) Kopecks {
	p, ok := rate.Percent()
	if !ok || p == 0 || amount <= 0 {
		return 0
	}
	num := int64(amount) * p * 2
	den := (100 + p) * 2
	return Kopecks((num + den/2) / den)
}

// Breakdown is the full set of figures printed on a price proposal.
type Breakdown struct {
	Amount         Kopecks
	Rate           VATRate
	VAT            Kopecks
	WithoutVAT     Kopecks
	AmountWords    string
	VATAmountWords string
}

// Compute derives the VAT split and the words lines for a gross amount.
func Compute(amount Kopecks, rate VATRate) Breakdown {
	if rate == "" {
		rate = NoVAT
	}
	vat := VAT(amount, rate)
	b := Breakdown{
		Amount:      amount,
		Rate:        rate,
		VAT:         vat,
		WithoutVAT:  amount - vat,
		AmountWords: RublesInWords(amount),
	}
	if vat > 0 {
		b.VATAmountWords = RublesInWords(vat)
	}
	return b
}

var printer = message.NewPrinter(language.Russian)

// Format renders an amount the way Russian documents print it,
// e.g. "1 234 567,89 ₽" with locale digit grouping.
func Format(k Kopecks) string {
	return printer.Sprintf("%.2f ₽", k.Rubles())
}
