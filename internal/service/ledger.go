package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nurpe/billdesk/internal/currency"
	"github.com/nurpe/billdesk/internal/model"
	"github.com/nurpe/billdesk/internal/notify"
)

const (
	dateLayout                   = "2006-01-02"
	defaultQuotationValidityDays = 30
	documentNumberSpace          = 100000
)

// TaxRateSource provides the tax rate in effect. Totals read it on every call.
type TaxRateSource interface {
	TaxRate() decimal.Decimal
}

type LedgerState string

const (
	LedgerEmpty    LedgerState = "empty"
	LedgerDrafting LedgerState = "drafting"
)

type LedgerOptions struct {
	QuotationValidityDays int
	Now                   func() time.Time
	// Intn returns a number in [0, n). Used for document numbers.
	Intn func(n int) int
}

// Ledger holds the draft being edited. Totals are derived from the items on every read.
type Ledger struct {
	mu       sync.RWMutex
	rates    TaxRateSource
	notifier notify.Notifier
	opts     LedgerOptions
	docType  model.DocumentType
	header   model.DocumentHeader
	items    []model.LineItem
	lastID   int64
}

func NewLedger(rates TaxRateSource, notifier notify.Notifier, opts LedgerOptions) *Ledger {
	if opts.QuotationValidityDays <= 0 {
		opts.QuotationValidityDays = defaultQuotationValidityDays
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Intn == nil {
		opts.Intn = rand.IntN
	}
	l := &Ledger{
		rates:    rates,
		notifier: notifier,
		opts:     opts,
		docType:  model.DocumentTypeInvoice,
		items:    []model.LineItem{},
	}
	l.header = l.newHeader(l.docType)
	return l
}

func (l *Ledger) newHeader(docType model.DocumentType) model.DocumentHeader {
	now := l.opts.Now()
	header := model.DocumentHeader{
		DocumentNumber: fmt.Sprintf("%s-%d", docType.Prefix(), l.opts.Intn(documentNumberSpace)),
		Date:           now.Format(dateLayout),
	}
	if docType == model.DocumentTypeQuotation {
		header.ValidUntil = now.AddDate(0, 0, l.opts.QuotationValidityDays).Format(dateLayout)
	}
	return header
}

// nextID hands out a timestamp based id that is unique within the draft. Callers hold l.mu.
func (l *Ledger) nextID() int64 {
	id := l.opts.Now().UnixNano()
	if id <= l.lastID {
		id = l.lastID + 1
	}
	l.lastID = id
	return id
}

func (l *Ledger) hasID(id int64) bool {
	for _, item := range l.items {
		if item.ID == id {
			return true
		}
	}
	return false
}

// AddLineItem appends item. Items without an id, or with one already in the draft, get a fresh id.
func (l *Ledger) AddLineItem(item model.LineItem) model.LineItem {
	l.mu.Lock()
	defer l.mu.Unlock()

	if item.ID == 0 || l.hasID(item.ID) {
		item.ID = l.nextID()
	} else if item.ID > l.lastID {
		l.lastID = item.ID
	}
	item.Quantity = currency.NonNegative(item.Quantity)
	item.Rate = currency.NonNegative(item.Rate)
	l.items = append(l.items, item)
	return item
}

func (l *Ledger) AddPackage(category string, pkg model.ServicePackage) model.LineItem {
	item := l.AddLineItem(model.LineItem{
		Description: fmt.Sprintf("%s: %s Package", category, pkg.Name),
		Quantity:    decimal.NewFromInt(1),
		Rate:        pkg.Rate,
	})
	l.notifier.Notify(notify.SeveritySuccess, fmt.Sprintf("Added %s to %s.", pkg.Name, strings.ToLower(string(l.Type()))))
	return item
}

// UpdateLineItem replaces the item at index. Negative quantity or rate floors to zero.
// It reports false and changes nothing when index is out of range.
func (l *Ledger) UpdateLineItem(index int, item model.LineItem) (model.LineItem, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index < 0 || index >= len(l.items) {
		return model.LineItem{}, false
	}
	if item.ID == 0 {
		item.ID = l.items[index].ID
	}
	item.Quantity = currency.NonNegative(item.Quantity)
	item.Rate = currency.NonNegative(item.Rate)
	l.items[index] = item
	return item, true
}

// RemoveLineItem drops the item at index. Out of range is a no-op.
func (l *Ledger) RemoveLineItem(index int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index < 0 || index >= len(l.items) {
		return false
	}
	l.items = append(l.items[:index:index], l.items[index+1:]...)
	return true
}

// SetHeader replaces the header fields. The document type only changes through Clear.
func (l *Ledger) SetHeader(header model.DocumentHeader) {
	header.DocumentNumber = strings.TrimSpace(header.DocumentNumber)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.header = header
}

// Clear asks for confirmation, then empties the draft and starts a new header of newType.
// An empty newType keeps whatever type the draft has when the clear is confirmed.
func (l *Ledger) Clear(gate *ConfirmationGate, newType model.DocumentType) (PendingConfirmation, error) {
	if newType != "" && !newType.Valid() {
		return PendingConfirmation{}, validationError("unknown document type %q", newType)
	}
	description := fmt.Sprintf("Are you sure you want to clear all items from the current %s?", strings.ToLower(string(l.Type())))
	return gate.Request("clear-draft", description, func(context.Context) error {
		target := newType
		if target == "" {
			target = l.Type()
		}
		l.Reset(target)
		l.notifier.Notify(notify.SeveritySuccess, fmt.Sprintf("Draft cleared. Starting a new %s.", strings.ToLower(string(target))))
		return nil
	}), nil
}

// Reset empties the draft and generates a header for docType.
func (l *Ledger) Reset(docType model.DocumentType) {
	if !docType.Valid() {
		docType = model.DocumentTypeInvoice
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.docType = docType
	l.items = []model.LineItem{}
	l.header = l.newHeader(docType)
}

// ResetIfCurrent resets the draft only while it still carries number.
// Edits made to another draft while a save was in flight are left alone.
func (l *Ledger) ResetIfCurrent(number string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if strings.TrimSpace(l.header.DocumentNumber) != strings.TrimSpace(number) {
		return false
	}
	l.items = []model.LineItem{}
	l.header = l.newHeader(l.docType)
	return true
}

// LoadForEdit replaces the draft with a copy of doc.
func (l *Ledger) LoadForEdit(doc model.Document) {
	docType := doc.DocumentType
	if !docType.Valid() {
		docType = model.DocumentTypeInvoice
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.docType = docType
	l.header = doc.Header()
	l.items = model.CloneItems(doc.InvoiceItems)
	for _, item := range l.items {
		if item.ID > l.lastID {
			l.lastID = item.ID
		}
	}
}

func (l *Ledger) Totals() currency.Totals {
	items := l.Items()
	return currency.ComputeTotals(items, l.rates.TaxRate())
}

// Snapshot copies the draft into a Document with totals computed at the current tax rate.
func (l *Ledger) Snapshot() model.Document {
	l.mu.RLock()
	header := l.header
	docType := l.docType
	items := model.CloneItems(l.items)
	l.mu.RUnlock()

	totals := currency.ComputeTotals(items, l.rates.TaxRate())
	doc := model.Document{
		DocumentNumber: strings.TrimSpace(header.DocumentNumber),
		DocumentType:   docType,
		ClientName:     header.ClientName,
		ClientAddress:  header.ClientAddress,
		Date:           header.Date,
		InvoiceItems:   items,
		Subtotal:       totals.Subtotal,
		TaxAmount:      totals.TaxAmount,
		Total:          totals.Total,
	}
	if docType == model.DocumentTypeQuotation {
		doc.ValidUntil = header.ValidUntil
	}
	return doc
}

func (l *Ledger) Items() []model.LineItem {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return model.CloneItems(l.items)
}

func (l *Ledger) Header() model.DocumentHeader {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.header
}

func (l *Ledger) Type() model.DocumentType {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.docType
}

func (l *Ledger) State() LedgerState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.items) == 0 {
		return LedgerEmpty
	}
	return LedgerDrafting
}
