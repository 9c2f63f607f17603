package excel

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/nurpe/billdesk/internal/currency"
	"github.com/nurpe/billdesk/internal/model"
)

const (
	summarySheet   = "Summary"
	documentsSheet = "Documents"
	amountFormat   = "#,##0.00"
)

type Generator struct {
	prefix string
}

func NewGenerator(currencyPrefix string) *Generator {
	if currencyPrefix == "" {
		currencyPrefix = currency.DefaultPrefix
	}
	return &Generator{prefix: currencyPrefix}
}

// Generate builds a workbook with the dashboard metrics and one row per saved document.
func (g *Generator) Generate(docs []model.Document, metrics model.Metrics) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if err := g.writeSummary(file, metrics); err != nil {
		return nil, err
	}
	if _, err := file.NewSheet(documentsSheet); err != nil {
		return nil, err
	}
	if err := g.writeDocuments(file, docs); err != nil {
		return nil, err
	}

	file.SetActiveSheet(0)
	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *Generator) writeSummary(file *excelize.File, metrics model.Metrics) error {
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(summarySheet, cell, value)
	}

	set("A1", "Invoices")
	set("B1", metrics.InvoiceCount)
	set("A2", "Quotations")
	set("B2", metrics.QuotationCount)
	set("A3", "Revenue this month")
	set("B3", metrics.MonthlyRevenue.InexactFloat64())
	set("C3", currency.Format(g.prefix, metrics.MonthlyRevenue))

	style, err := file.NewStyle(&excelize.Style{CustomNumFmt: stringPtr(amountFormat)})
	if err != nil {
		return err
	}
	_ = file.SetCellStyle(summarySheet, "B3", "B3", style)
	_ = file.SetColWidth(summarySheet, "A", "A", 24)
	_ = file.SetColWidth(summarySheet, "B", "C", 20)
	return nil
}

func (g *Generator) writeDocuments(file *excelize.File, docs []model.Document) error {
	headers := []string{"Document No", "Type", "Client", "Date", "Valid Until", "Items", "Subtotal", "Tax", "Total", "Display Total"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = file.SetCellValue(documentsSheet, cell, header)
	}

	for i, doc := range docs {
		row := i + 2
		values := []interface{}{
			doc.DocumentNumber,
			string(doc.DocumentType),
			doc.ClientName,
			doc.Date,
			doc.ValidUntil,
			len(doc.InvoiceItems),
			doc.Subtotal.InexactFloat64(),
			doc.TaxAmount.InexactFloat64(),
			doc.Total.InexactFloat64(),
			currency.DisplayTotal(g.prefix, doc),
		}
		if err := file.SetSheetRow(documentsSheet, fmt.Sprintf("A%d", row), &values); err != nil {
			return err
		}
	}

	if len(docs) > 0 {
		style, err := file.NewStyle(&excelize.Style{CustomNumFmt: stringPtr(amountFormat)})
		if err != nil {
			return err
		}
		_ = file.SetCellStyle(documentsSheet, "G2", fmt.Sprintf("I%d", len(docs)+1), style)
	}

	_ = file.SetColWidth(documentsSheet, "A", "B", 14)
	_ = file.SetColWidth(documentsSheet, "C", "C", 32)
	_ = file.SetColWidth(documentsSheet, "D", "F", 12)
	_ = file.SetColWidth(documentsSheet, "G", "J", 16)
	return nil
}

func stringPtr(s string) *string {
	return &s
}
