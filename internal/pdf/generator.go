package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"github.com/nurpe/billdesk/internal/currency"
	"github.com/nurpe/billdesk/internal/model"
)

const fontName = "Helvetica"

type Generator struct {
	prefix string
}

func NewGenerator(currencyPrefix string) *Generator {
	if currencyPrefix == "" {
		currencyPrefix = currency.DefaultPrefix
	}
	return &Generator{prefix: currencyPrefix}
}

// Generate renders doc as an A4 page headed by the company profile.
func (g *Generator) Generate(doc model.Document, profile model.CompanyProfile) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont(fontName, "B", 16)
	pdf.CellFormat(110, 8, tr(profile.Name), "", 0, "L", false, 0, "")
	pdf.SetFont(fontName, "B", 20)
	pdf.CellFormat(0, 8, strings.ToUpper(string(doc.DocumentType)), "", 1, "R", false, 0, "")

	pdf.SetFont(fontName, "", 10)
	companyLines := []string{profile.Tagline, profile.ContactMail, profile.ContactMobile, profile.Website}
	headerLines := []string{
		fmt.Sprintf("No: %s", safeValue(doc.DocumentNumber)),
		fmt.Sprintf("Date: %s", safeValue(doc.Date)),
	}
	if doc.DocumentType == model.DocumentTypeQuotation {
		headerLines = append(headerLines, fmt.Sprintf("Valid Until: %s", safeValue(doc.ValidUntil)))
	}
	for i := 0; i < max(len(companyLines), len(headerLines)); i++ {
		left, right := "", ""
		if i < len(companyLines) {
			left = companyLines[i]
		}
		if i < len(headerLines) {
			right = headerLines[i]
		}
		pdf.CellFormat(110, 5, tr(left), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 5, tr(right), "", 1, "R", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont(fontName, "B", 11)
	pdf.CellFormat(0, 6, "Bill To", "", 1, "L", false, 0, "")
	pdf.SetFont(fontName, "", 10)
	pdf.MultiCell(0, 5, tr(safeValue(doc.ClientName)), "", "L", false)
	if strings.TrimSpace(doc.ClientAddress) != "" {
		pdf.MultiCell(0, 5, tr(doc.ClientAddress), "", "L", false)
	}
	pdf.Ln(4)

	colWidths := []float64{90, 20, 35, 35}
	drawTableRow(pdf, tr, []string{"Description", "Qty", "Rate", "Amount"}, colWidths, true)
	for _, item := range doc.InvoiceItems {
		drawTableRow(pdf, tr, []string{
			item.Description,
			item.Quantity.String(),
			currency.Format("", item.Rate),
			currency.Format("", item.Amount()),
		}, colWidths, false)
	}
	pdf.Ln(2)

	pdf.SetFont(fontName, "", 10)
	totalsRow(pdf, "Subtotal:", currency.Format(g.prefix, doc.Subtotal))
	totalsRow(pdf, taxLabel(doc.Subtotal, doc.TaxAmount), currency.Format(g.prefix, doc.TaxAmount))
	pdf.SetFont(fontName, "B", 11)
	totalLabel := "TOTAL:"
	if doc.DocumentType == model.DocumentTypeQuotation {
		totalLabel = "ESTIMATED TOTAL:"
	}
	totalsRow(pdf, totalLabel, currency.Format(g.prefix, doc.Total))

	pdf.Ln(8)
	pdf.SetFont(fontName, "I", 9)
	footer := "Thank you for your business. Please remit payment within 30 days."
	if doc.DocumentType == model.DocumentTypeQuotation {
		footer = fmt.Sprintf("This quotation is valid until %s.", safeValue(doc.ValidUntil))
	}
	pdf.MultiCell(0, 5, footer, "", "C", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawTableRow(pdf *gofpdf.Fpdf, tr func(string) string, cols []string, widths []float64, header bool) {
	style := ""
	if header {
		style = "B"
	}
	pdf.SetFont(fontName, style, 10)
	for i, col := range cols {
		align := "L"
		if i > 0 {
			align = "R"
		}
		pdf.CellFormat(widths[i], 8, tr(col), "1", 0, align, header, 0, "")
	}
	pdf.Ln(-1)
}

func totalsRow(pdf *gofpdf.Fpdf, label, value string) {
	pdf.CellFormat(145, 6, label, "", 0, "R", false, 0, "")
	pdf.CellFormat(0, 6, value, "", 1, "R", false, 0, "")
}

// taxLabel shows the effective rate, which the document only carries implicitly.
func taxLabel(subtotal, tax decimal.Decimal) string {
	if subtotal.IsZero() {
		return "Tax:"
	}
	rate := tax.Div(subtotal).Mul(decimal.NewFromInt(100))
	return fmt.Sprintf("Tax (%s%%):", rate.StringFixed(2))
}

func safeValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
