package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/nurpe/billdesk/internal/model"
	"github.com/nurpe/billdesk/internal/store"
)

// DocumentRepository keeps saved documents in a per-user collection keyed by document number.
type DocumentRepository struct {
	store store.RemoteStore
}

func NewDocumentRepository(s store.RemoteStore) *DocumentRepository {
	return &DocumentRepository{store: s}
}

func DocumentsCollection(userID string) string {
	return "user_documents/" + userID + "/documents"
}

func (r *DocumentRepository) List(ctx context.Context, userID string) ([]model.Document, error) {
	recs, err := r.store.List(ctx, DocumentsCollection(userID))
	if err != nil {
		return nil, err
	}
	docs := make([]model.Document, 0, len(recs))
	for _, rec := range recs {
		var doc model.Document
		if err := store.Decode(rec, &doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (r *DocumentRepository) Get(ctx context.Context, userID, number string) (*model.Document, error) {
	rec, err := r.store.Get(ctx, DocumentsCollection(userID), number)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var doc model.Document
	if err := store.Decode(rec, &doc); err != nil {
		return nil, fmt.Errorf("document %s: %w", number, err)
	}
	return &doc, nil
}

// Upsert merges doc into the record stored under its document number.
func (r *DocumentRepository) Upsert(ctx context.Context, userID string, doc model.Document) error {
	rec, err := store.Encode(doc)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, DocumentsCollection(userID), doc.DocumentNumber, rec, store.ModeMerge)
}

func (r *DocumentRepository) Delete(ctx context.Context, userID, number string) error {
	return r.store.Delete(ctx, DocumentsCollection(userID), number)
}
