package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nurpe/billdesk/internal/model"
	"github.com/nurpe/billdesk/internal/store"
)

const SettingsCollection = "admin_data"

var ErrNotFound = errors.New("not found")

// SettingsRepository stores one settings record per user id.
type SettingsRepository struct {
	store store.RemoteStore
}

func NewSettingsRepository(s store.RemoteStore) *SettingsRepository {
	return &SettingsRepository{store: s}
}

func (r *SettingsRepository) Get(ctx context.Context, userID string) (*model.Settings, error) {
	rec, err := r.store.Get(ctx, SettingsCollection, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var settings model.Settings
	if err := store.Decode(rec, &settings); err != nil {
		return nil, fmt.Errorf("settings for %s: %w", userID, err)
	}
	return &settings, nil
}

// CreateIfMissing writes settings only when the user has no record yet.
func (r *SettingsRepository) CreateIfMissing(ctx context.Context, userID string, settings model.Settings) (bool, error) {
	rec, err := store.Encode(settings)
	if err != nil {
		return false, err
	}
	return r.store.Create(ctx, SettingsCollection, userID, rec)
}

func (r *SettingsRepository) SaveServices(ctx context.Context, userID string, services model.Catalog) error {
	return r.mergeField(ctx, userID, "services", services)
}

func (r *SettingsRepository) SaveTaxRate(ctx context.Context, userID string, rate decimal.Decimal) error {
	return r.mergeField(ctx, userID, "taxRate", rate)
}

func (r *SettingsRepository) SaveCompanyProfile(ctx context.Context, userID string, profile model.CompanyProfile) error {
	return r.mergeField(ctx, userID, "companyProfile", profile)
}

func (r *SettingsRepository) mergeField(ctx context.Context, userID, field string, value any) error {
	rec, err := store.Encode(map[string]any{field: value})
	if err != nil {
		return err
	}
	return r.store.Set(ctx, SettingsCollection, userID, rec, store.ModeMerge)
}
