// Package currency formats amounts and computes document totals.
package currency

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"github.com/nurpe/billdesk/internal/model"
)

const DefaultPrefix = "LKR"

type Totals struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	TaxAmount decimal.Decimal `json:"taxAmount"`
	Total     decimal.Decimal `json:"total"`
}

// Format renders an amount as "<prefix> 1,234.50". Anything that is not a number formats as zero.
func Format(prefix string, amount any) string {
	value := Coerce(amount).StringFixed(2)

	sign := ""
	if strings.HasPrefix(value, "-") {
		sign = "-"
		value = value[1:]
	}
	whole, frac, _ := strings.Cut(value, ".")

	grouped := groupThousands(whole)
	if prefix == "" {
		return sign + grouped + "." + frac
	}
	return prefix + " " + sign + grouped + "." + frac
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// Coerce converts loosely typed input (numbers, numeric strings, decimals) to a decimal.
// nil, empty and non-numeric input become zero.
func Coerce(v any) decimal.Decimal {
	parsed, err := Parse(v)
	if err != nil {
		return decimal.Zero
	}
	return parsed
}

// Parse is the strict form of Coerce: input that is not a number is an error.
func Parse(v any) (decimal.Decimal, error) {
	switch value := v.(type) {
	case nil:
		return decimal.Zero, errors.New("missing amount")
	case decimal.Decimal:
		return value, nil
	case *decimal.Decimal:
		if value == nil {
			return decimal.Zero, errors.New("missing amount")
		}
		return *value, nil
	case json.Number:
		return decimal.NewFromString(value.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(value))
	case float64:
		return decimal.NewFromFloat(value), nil
	case float32:
		return decimal.NewFromFloat32(value), nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(f), nil
}

// NonNegative floors negative amounts at zero.
func NonNegative(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// ComputeTotals sums quantity × rate over items and applies the tax rate.
// Negative quantities and rates count as zero.
func ComputeTotals(items []model.LineItem, taxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(NonNegative(item.Quantity).Mul(NonNegative(item.Rate)))
	}
	tax := subtotal.Mul(taxRate)
	return Totals{
		Subtotal:  subtotal,
		TaxAmount: tax,
		Total:     subtotal.Add(tax),
	}
}

// DisplayTotal is the dashboard's total column. Quotations show "Estimate" instead of an amount.
func DisplayTotal(prefix string, doc model.Document) string {
	if doc.DocumentType == model.DocumentTypeQuotation {
		return "Estimate"
	}
	return Format(prefix, doc.Total)
}
