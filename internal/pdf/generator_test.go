package pdf

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/nurpe/billdesk/internal/model"
)

func TestGenerateProducesPDF(t *testing.T) {
	doc := model.Document{
		DocumentNumber: "QUO-12",
		DocumentType:   model.DocumentTypeQuotation,
		ClientName:     "Café Lanka",
		Date:           "2026-03-15",
		ValidUntil:     "2026-04-14",
		InvoiceItems: []model.LineItem{
			{ID: 1, Description: "WordPress: Basic Package", Quantity: decimal.NewFromInt(1), Rate: decimal.NewFromInt(15000)},
		},
		Subtotal:  decimal.NewFromInt(15000),
		TaxAmount: decimal.NewFromInt(2250),
		Total:     decimal.NewFromInt(17250),
	}

	out, err := NewGenerator("").Generate(doc, model.DefaultCompanyProfile())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Fatalf("output is not a PDF: %q", out[:min(len(out), 16)])
	}
}

func TestTaxLabel(t *testing.T) {
	if got := taxLabel(decimal.NewFromInt(200), decimal.NewFromInt(30)); got != "Tax (15.00%):" {
		t.Fatalf("label = %q", got)
	}
	if got := taxLabel(decimal.Zero, decimal.Zero); got != "Tax:" {
		t.Fatalf("label = %q", got)
	}
}
