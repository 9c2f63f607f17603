package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nurpe/billdesk/internal/model"
	"github.com/nurpe/billdesk/internal/notify"
)

type DocumentStore interface {
	List(ctx context.Context, userID string) ([]model.Document, error)
	Upsert(ctx context.Context, userID string, doc model.Document) error
	Delete(ctx context.Context, userID, number string) error
}

// documentDateLayouts are tried in order when reading a saved document's date.
var documentDateLayouts = []string{
	dateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"1/2/2006",
}

// Archive keeps the last fetched list of saved documents. A failed fetch leaves the list as it was.
type Archive struct {
	mu       sync.RWMutex
	repo     DocumentStore
	notifier notify.Notifier
	log      zerolog.Logger
	docs     []model.Document
	seq      sequence
	now      func() time.Time
}

func NewArchive(repo DocumentStore, notifier notify.Notifier, log zerolog.Logger) *Archive {
	return &Archive{
		repo:     repo,
		notifier: notifier,
		log:      log.With().Str("component", "archive").Logger(),
		docs:     []model.Document{},
		now:      time.Now,
	}
}

// List refetches the user's documents and reports the outcome.
func (a *Archive) List(ctx context.Context, userID string) ([]model.Document, error) {
	if err := a.refresh(ctx, userID); err != nil {
		if isPermissionDenied(err) {
			a.notifier.Notify(notify.SeverityError, "Security Error: check store permissions for user_documents.")
		} else {
			a.notifier.Notify(notify.SeverityError, "Failed to load saved documents.")
		}
		return a.Documents(), err
	}
	docs := a.Documents()
	a.notifier.Notify(notify.SeveritySuccess, fmt.Sprintf("Found %d saved documents.", len(docs)))
	return docs, nil
}

// Refresh refetches without notifying.
func (a *Archive) Refresh(ctx context.Context, userID string) error {
	return a.refresh(ctx, userID)
}

func (a *Archive) refresh(ctx context.Context, userID string) error {
	a.mu.Lock()
	ticket := a.seq.next()
	a.mu.Unlock()

	docs, err := a.repo.List(ctx, userID)
	if err != nil {
		a.log.Error().Err(err).Str("user_id", userID).Msg("list documents")
		return remoteError(ErrFetch, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.seq.apply(ticket) {
		a.log.Debug().Uint64("ticket", ticket).Msg("discarding stale document list")
		return nil
	}
	a.docs = make([]model.Document, 0, len(docs))
	for _, doc := range docs {
		a.docs = append(a.docs, doc.Clone())
	}
	return nil
}

// Upsert writes doc under its document number, replacing any record with that number,
// then refetches the list.
func (a *Archive) Upsert(ctx context.Context, userID string, doc model.Document) error {
	if strings.TrimSpace(doc.DocumentNumber) == "" {
		a.notifier.Notify(notify.SeverityError, "Cannot save document: missing document number.")
		return validationError("document number is required")
	}
	if _, exists := a.Get(doc.DocumentNumber); exists {
		a.log.Info().Str("document_number", doc.DocumentNumber).Msg("overwriting saved document")
	}

	if err := a.repo.Upsert(ctx, userID, doc.Clone()); err != nil {
		a.log.Error().Err(err).Str("document_number", doc.DocumentNumber).Msg("save document")
		a.notifier.Notify(notify.SeverityError, fmt.Sprintf("Failed to save %s.", doc.DocumentType))
		return remoteError(ErrSave, err)
	}

	if err := a.refresh(ctx, userID); err != nil {
		a.log.Warn().Err(err).Msg("refresh after save")
	}
	a.notifier.Notify(notify.SeveritySuccess, fmt.Sprintf("%s %s saved successfully!", doc.DocumentType, doc.DocumentNumber))
	return nil
}

// Remove asks for confirmation, then deletes the document remotely and from the local list.
func (a *Archive) Remove(gate *ConfirmationGate, userID, number string, docType model.DocumentType) PendingConfirmation {
	description := fmt.Sprintf("Are you sure you want to delete %s %s? This cannot be undone.", docType, number)
	return gate.Request("delete-document", description, func(ctx context.Context) error {
		if err := a.repo.Delete(ctx, userID, number); err != nil {
			a.log.Error().Err(err).Str("document_number", number).Msg("delete document")
			a.notifier.Notify(notify.SeverityError, fmt.Sprintf("Failed to delete %s.", docType))
			return remoteError(ErrDelete, err)
		}

		a.mu.Lock()
		a.docs = slices.DeleteFunc(a.docs, func(doc model.Document) bool {
			return doc.DocumentNumber == number
		})
		// Lists fetched before the delete may still contain the record.
		a.seq.invalidate()
		a.mu.Unlock()

		a.notifier.Notify(notify.SeveritySuccess, fmt.Sprintf("%s %s deleted.", docType, number))
		return nil
	})
}

func (a *Archive) Documents() []model.Document {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]model.Document, len(a.docs))
	for i, doc := range a.docs {
		out[i] = doc.Clone()
	}
	return out
}

func (a *Archive) Get(number string) (model.Document, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, doc := range a.docs {
		if doc.DocumentNumber == number {
			return doc.Clone(), true
		}
	}
	return model.Document{}, false
}

// Metrics derives the dashboard figures from the current list at the current time.
func (a *Archive) Metrics() model.Metrics {
	return DeriveMetrics(a.Documents(), a.now())
}

func (a *Archive) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.docs = []model.Document{}
	a.seq.invalidate()
}

// DeriveMetrics counts documents by type and sums invoice totals dated in now's month.
// Documents whose date cannot be parsed never count toward revenue.
func DeriveMetrics(docs []model.Document, now time.Time) model.Metrics {
	metrics := model.Metrics{MonthlyRevenue: decimal.Zero}
	year, month, _ := now.Date()
	for _, doc := range docs {
		switch doc.DocumentType {
		case model.DocumentTypeInvoice:
			metrics.InvoiceCount++
			date, ok := parseDocumentDate(doc.Date, now.Location())
			if !ok {
				continue
			}
			if y, m, _ := date.Date(); y == year && m == month {
				metrics.MonthlyRevenue = metrics.MonthlyRevenue.Add(doc.Total)
			}
		case model.DocumentTypeQuotation:
			metrics.QuotationCount++
		}
	}
	return metrics
}

func parseDocumentDate(value string, loc *time.Location) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range documentDateLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t.In(loc), true
		}
	}
	return time.Time{}, false
}
