package excel

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/nurpe/billdesk/internal/model"
)

func TestGenerateWorkbook(t *testing.T) {
	docs := []model.Document{
		{DocumentNumber: "INV-1", DocumentType: model.DocumentTypeInvoice, ClientName: "A", Total: decimal.RequireFromString("287.5")},
		{DocumentNumber: "QUO-2", DocumentType: model.DocumentTypeQuotation, ClientName: "B", Total: decimal.NewFromInt(10)},
	}
	metrics := model.Metrics{InvoiceCount: 1, QuotationCount: 1, MonthlyRevenue: decimal.RequireFromString("287.5")}

	out, err := NewGenerator("LKR").Generate(docs, metrics)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	file, err := excelize.OpenReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	if got, _ := file.GetCellValue("Summary", "B1"); got != "1" {
		t.Fatalf("invoice count = %q", got)
	}
	if got, _ := file.GetCellValue("Summary", "C3"); got != "LKR 287.50" {
		t.Fatalf("revenue = %q", got)
	}
	rows, err := file.GetRows("Documents")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 || rows[1][0] != "INV-1" || rows[2][9] != "Estimate" {
		t.Fatalf("rows = %v", rows)
	}
}
