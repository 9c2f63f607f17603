package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nurpe/billdesk/internal/model"
	"github.com/nurpe/billdesk/internal/notify"
	"github.com/nurpe/billdesk/internal/repository"
)

type SettingsStore interface {
	Get(ctx context.Context, userID string) (*model.Settings, error)
	CreateIfMissing(ctx context.Context, userID string, settings model.Settings) (bool, error)
	SaveServices(ctx context.Context, userID string, services model.Catalog) error
	SaveTaxRate(ctx context.Context, userID string, rate decimal.Decimal) error
	SaveCompanyProfile(ctx context.Context, userID string, profile model.CompanyProfile) error
}

const (
	msgSettingsSynced  = "Latest data synchronized from cloud."
	msgSettingsCreated = "Welcome! Initial data configured in cloud."
	msgSettingsFetch   = "Error reading data from cloud. Check the server logs for details."
	msgSettingsDenied  = "Security Error: check store permissions for admin_data."
	msgSettingsSave    = "Failed to save data. Check store permissions."
	msgSettingsStale   = "Services are not synchronized with the cloud yet. Reload the settings before editing them."
)

var errSettingsNotLoaded = errors.New("settings not loaded")

var maxTaxRate = decimal.NewFromInt(1)

// Catalog owns the service packages, tax rate and company profile of the signed-in user.
// Setters apply locally first and then write the changed field to the settings record.
type Catalog struct {
	mu       sync.RWMutex
	repo     SettingsStore
	notifier notify.Notifier
	log      zerolog.Logger
	settings model.Settings
	loaded   bool
	seq      sequence
	now      func() time.Time
}

func NewCatalog(repo SettingsStore, notifier notify.Notifier, log zerolog.Logger) *Catalog {
	return &Catalog{
		repo:     repo,
		notifier: notifier,
		log:      log.With().Str("component", "catalog").Logger(),
		settings: model.DefaultSettings(),
		now:      time.Now,
	}
}

// Load reads the user's settings, creating them from defaults on first use.
// Existing records are never overwritten by the defaults.
func (c *Catalog) Load(ctx context.Context, userID string) error {
	c.mu.Lock()
	ticket := c.seq.next()
	c.mu.Unlock()

	settings, created, err := c.fetch(ctx, userID)
	if err != nil {
		c.log.Error().Err(err).Str("user_id", userID).Msg("load settings")
		if isPermissionDenied(err) {
			c.notifier.Notify(notify.SeverityError, msgSettingsDenied)
		} else {
			c.notifier.Notify(notify.SeverityError, msgSettingsFetch)
		}
		return remoteError(ErrFetch, err)
	}

	c.mu.Lock()
	if !c.seq.apply(ticket) {
		c.mu.Unlock()
		c.log.Debug().Uint64("ticket", ticket).Msg("discarding stale settings load")
		return nil
	}
	c.settings = withDefaults(settings)
	c.loaded = true
	c.mu.Unlock()

	if created {
		c.notifier.Notify(notify.SeverityInfo, msgSettingsCreated)
	} else {
		c.notifier.Notify(notify.SeverityInfo, msgSettingsSynced)
	}
	return nil
}

func (c *Catalog) fetch(ctx context.Context, userID string) (model.Settings, bool, error) {
	settings, err := c.repo.Get(ctx, userID)
	if err == nil {
		return *settings, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.Settings{}, false, err
	}

	defaults := model.DefaultSettings()
	created, err := c.repo.CreateIfMissing(ctx, userID, defaults)
	if err != nil {
		return model.Settings{}, false, err
	}
	if created {
		return defaults, true, nil
	}
	// Another client created the record between the read and the create.
	settings, err = c.repo.Get(ctx, userID)
	if err != nil {
		return model.Settings{}, false, err
	}
	return *settings, false, nil
}

// withDefaults fills missing subtrees. A zero tax rate is a valid setting and is kept.
func withDefaults(s model.Settings) model.Settings {
	defaults := model.DefaultSettings()
	if s.Services == nil {
		s.Services = defaults.Services
	}
	if s.CompanyProfile == (model.CompanyProfile{}) {
		s.CompanyProfile = defaults.CompanyProfile
	}
	return s
}

func (c *Catalog) SetCatalog(ctx context.Context, userID string, catalog model.Catalog) error {
	return c.saveServices(ctx, userID, catalog, "Services updated and saved.")
}

func (c *Catalog) saveServices(ctx context.Context, userID string, catalog model.Catalog, success string) error {
	normalized, err := normalizeCatalog(catalog)
	if err != nil {
		c.notifier.Notify(notify.SeverityError, err.Error())
		return err
	}
	if err := c.requireLoaded(); err != nil {
		return err
	}

	c.mu.Lock()
	c.settings.Services = normalized.Clone()
	c.mu.Unlock()

	return c.persist(c.repo.SaveServices(ctx, userID, normalized), "services", success)
}

// SetTaxRate accepts rates in [0, 1]. Anything else leaves the current rate untouched.
func (c *Catalog) SetTaxRate(ctx context.Context, userID string, rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(maxTaxRate) {
		c.notifier.Notify(notify.SeverityError, "Tax rate must be between 0 and 100.")
		return validationError("tax rate %s is outside [0, 1]", rate)
	}

	c.mu.Lock()
	c.settings.TaxRate = rate
	c.mu.Unlock()

	return c.persist(c.repo.SaveTaxRate(ctx, userID, rate), "tax rate", "Tax rate updated and saved.")
}

func (c *Catalog) SetCompanyProfile(ctx context.Context, userID string, profile model.CompanyProfile) error {
	c.mu.Lock()
	c.settings.CompanyProfile = profile
	c.mu.Unlock()

	return c.persist(c.repo.SaveCompanyProfile(ctx, userID, profile), "company profile", "Company Profile updated and saved.")
}

// requireLoaded refuses whole-catalog writes until the user's record has been read.
func (c *Catalog) requireLoaded() error {
	if c.Loaded() {
		return nil
	}
	c.notifier.Notify(notify.SeverityError, msgSettingsStale)
	return remoteError(ErrFetch, errSettingsNotLoaded)
}

func (c *Catalog) persist(err error, what, success string) error {
	if err != nil {
		c.log.Error().Err(err).Str("field", what).Msg("save settings")
		c.notifier.Notify(notify.SeverityError, msgSettingsSave)
		return remoteError(ErrSave, err)
	}
	c.notifier.Notify(notify.SeveritySuccess, success)
	return nil
}

// SavePackage adds pkg to category, or replaces the package with the same id.
func (c *Catalog) SavePackage(ctx context.Context, userID, category string, pkg model.ServicePackage) (model.ServicePackage, error) {
	pkg.Name = strings.TrimSpace(pkg.Name)
	if pkg.Name == "" {
		c.notifier.Notify(notify.SeverityError, "Package name and rate are required.")
		return model.ServicePackage{}, validationError("package name is required")
	}
	if pkg.Rate.IsNegative() {
		c.notifier.Notify(notify.SeverityError, "Package rate cannot be negative.")
		return model.ServicePackage{}, validationError("package rate %s is negative", pkg.Rate)
	}
	if err := c.requireLoaded(); err != nil {
		return model.ServicePackage{}, err
	}
	pkg.Details = model.NormalizeDetails(pkg.Details)

	c.mu.RLock()
	services := c.settings.Services.Clone()
	c.mu.RUnlock()

	packages, ok := services[category]
	if !ok {
		c.notifier.Notify(notify.SeverityError, fmt.Sprintf("Unknown category %s.", category))
		return model.ServicePackage{}, validationError("unknown category %q", category)
	}

	var message string
	if pkg.ID == "" || pkg.ID == "new" {
		pkg.ID = newPackageID(category, c.now(), packages)
		packages = append(packages, pkg)
		message = fmt.Sprintf("Added new package: %s.", pkg.Name)
	} else {
		idx := packageIndex(packages, pkg.ID)
		if idx < 0 {
			c.notifier.Notify(notify.SeverityError, fmt.Sprintf("Package %s not found.", pkg.ID))
			return model.ServicePackage{}, fmt.Errorf("package %s/%s: %w", category, pkg.ID, ErrNotFound)
		}
		packages[idx] = pkg
		message = fmt.Sprintf("Updated %s.", pkg.Name)
	}
	services[category] = packages

	if err := c.saveServices(ctx, userID, services, message); err != nil {
		return model.ServicePackage{}, err
	}
	return pkg.Clone(), nil
}

// DeletePackage asks for confirmation before removing a package from the catalog.
func (c *Catalog) DeletePackage(gate *ConfirmationGate, userID, category, id string) (PendingConfirmation, error) {
	if err := c.requireLoaded(); err != nil {
		return PendingConfirmation{}, err
	}
	pkg, ok := c.Package(category, id)
	if !ok {
		return PendingConfirmation{}, fmt.Errorf("package %s/%s: %w", category, id, ErrNotFound)
	}
	description := fmt.Sprintf("Are you sure you want to delete the %s package? This cannot be undone.", pkg.Name)
	return gate.Request("delete-package", description, func(ctx context.Context) error {
		c.mu.RLock()
		services := c.settings.Services.Clone()
		c.mu.RUnlock()

		packages := services[category]
		idx := packageIndex(packages, id)
		if idx < 0 {
			return fmt.Errorf("package %s/%s: %w", category, id, ErrNotFound)
		}
		services[category] = append(packages[:idx], packages[idx+1:]...)
		return c.saveServices(ctx, userID, services, fmt.Sprintf("Deleted %s package.", pkg.Name))
	}), nil
}

func (c *Catalog) TaxRate() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings.TaxRate
}

func (c *Catalog) CompanyProfile() model.CompanyProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings.CompanyProfile
}

func (c *Catalog) Snapshot() model.Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings.Clone()
}

func (c *Catalog) Package(category, id string) (model.ServicePackage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings.Services.Find(category, id)
}

func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Reset restores the built-in defaults and discards in-flight loads.
func (c *Catalog) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = model.DefaultSettings()
	c.loaded = false
	c.seq.invalidate()
}

func normalizeCatalog(catalog model.Catalog) (model.Catalog, error) {
	out := make(model.Catalog, len(catalog))
	for category, packages := range catalog {
		if strings.TrimSpace(category) == "" {
			return nil, validationError("category name is required")
		}
		seen := make(map[string]struct{}, len(packages))
		list := make([]model.ServicePackage, 0, len(packages))
		for _, pkg := range packages {
			if pkg.ID == "" {
				return nil, validationError("package in %s has no id", category)
			}
			if _, dup := seen[pkg.ID]; dup {
				return nil, validationError("duplicate package id %s in %s", pkg.ID, category)
			}
			if pkg.Rate.IsNegative() {
				return nil, validationError("package %s has a negative rate", pkg.ID)
			}
			seen[pkg.ID] = struct{}{}
			pkg = pkg.Clone()
			pkg.Details = model.NormalizeDetails(pkg.Details)
			list = append(list, pkg)
		}
		out[category] = list
	}
	return out, nil
}

func newPackageID(category string, now time.Time, existing []model.ServicePackage) string {
	prefix := strings.ToLower(category) + "-"
	millis := now.UnixMilli()
	for {
		id := prefix + strconv.FormatInt(millis, 10)
		if packageIndex(existing, id) < 0 {
			return id
		}
		millis++
	}
}

func packageIndex(packages []model.ServicePackage, id string) int {
	for i, pkg := range packages {
		if pkg.ID == id {
			return i
		}
	}
	return -1
}
