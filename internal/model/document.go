package model

import "github.com/shopspring/decimal"

func init() {
	// Amounts are persisted as JSON numbers, matching records written by earlier clients.
	decimal.MarshalJSONWithoutQuotes = true
}

type DocumentType string

const (
	DocumentTypeInvoice   DocumentType = "Invoice"
	DocumentTypeQuotation DocumentType = "Quotation"
)

func (t DocumentType) Valid() bool {
	return t == DocumentTypeInvoice || t == DocumentTypeQuotation
}

// Prefix returns the document number prefix for the type.
func (t DocumentType) Prefix() string {
	if t == DocumentTypeQuotation {
		return "QUO"
	}
	return "INV"
}

type LineItem struct {
	ID          int64           `json:"id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
}

func (i LineItem) Amount() decimal.Decimal {
	return i.Quantity.Mul(i.Rate)
}

type DocumentHeader struct {
	ClientName     string `json:"clientName"`
	ClientAddress  string `json:"clientAddress"`
	DocumentNumber string `json:"documentNumber"`
	Date           string `json:"date"`
	ValidUntil     string `json:"validUntil"`
}

// Document is the archived form of a draft. Items are a snapshot, never shared with the draft.
type Document struct {
	DocumentNumber string          `json:"documentNumber"`
	DocumentType   DocumentType    `json:"documentType"`
	ClientName     string          `json:"clientName"`
	ClientAddress  string          `json:"clientAddress"`
	Date           string          `json:"date"`
	ValidUntil     string          `json:"validUntil"`
	InvoiceItems   []LineItem      `json:"invoiceItems"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxAmount      decimal.Decimal `json:"taxAmount"`
	Total          decimal.Decimal `json:"total"`
}

func (d Document) Header() DocumentHeader {
	return DocumentHeader{
		ClientName:     d.ClientName,
		ClientAddress:  d.ClientAddress,
		DocumentNumber: d.DocumentNumber,
		Date:           d.Date,
		ValidUntil:     d.ValidUntil,
	}
}

func (d Document) Clone() Document {
	out := d
	out.InvoiceItems = CloneItems(d.InvoiceItems)
	return out
}

func CloneItems(items []LineItem) []LineItem {
	if items == nil {
		return []LineItem{}
	}
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}

type Metrics struct {
	InvoiceCount   int             `json:"invoiceCount"`
	QuotationCount int             `json:"quotationCount"`
	MonthlyRevenue decimal.Decimal `json:"monthlyRevenue"`
}
