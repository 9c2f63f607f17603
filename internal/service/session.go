package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/nurpe/billdesk/internal/model"
	"github.com/nurpe/billdesk/internal/notify"
)

type Options struct {
	Settings              SettingsStore
	Documents             DocumentStore
	Log                   zerolog.Logger
	QuotationValidityDays int
	Now                   func() time.Time
	Intn                  func(n int) int
}

// Session is the explicit handle for one signed-in operator. Every operation runs
// against the user id captured at sign in.
type Session struct {
	mu       sync.RWMutex
	userID   string
	log      zerolog.Logger
	notifier notify.Notifier
	catalog  *Catalog
	ledger   *Ledger
	archive  *Archive
	gate     *ConfirmationGate
}

func NewSession(opts Options, notifier notify.Notifier) *Session {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	catalog := NewCatalog(opts.Settings, notifier, opts.Log)
	archive := NewArchive(opts.Documents, notifier, opts.Log)
	gate := NewConfirmationGate()
	if opts.Now != nil {
		catalog.now = opts.Now
		archive.now = opts.Now
		gate.now = opts.Now
	}
	return &Session{
		log:      opts.Log.With().Str("component", "session").Logger(),
		notifier: notifier,
		catalog:  catalog,
		ledger: NewLedger(catalog, notifier, LedgerOptions{
			QuotationValidityDays: opts.QuotationValidityDays,
			Now:                   opts.Now,
			Intn:                  opts.Intn,
		}),
		archive: archive,
		gate:    gate,
	}
}

func (s *Session) Catalog() *Catalog { return s.catalog }
func (s *Session) Ledger() *Ledger   { return s.ledger }
func (s *Session) Archive() *Archive { return s.archive }

func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// SignIn loads the user's settings and documents. Switching to another user first
// discards everything held for the previous one. Fetch failures leave defaults in place.
func (s *Session) SignIn(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	s.mu.Lock()
	previous := s.userID
	s.userID = userID
	s.mu.Unlock()

	if previous != "" && previous != userID {
		s.reset()
	}

	s.log.Info().Str("user_id", userID).Msg("signing in")
	catalogErr := s.catalog.Load(ctx, userID)
	_, archiveErr := s.archive.List(ctx, userID)
	return errors.Join(catalogErr, archiveErr)
}

// SignOut forgets the user and returns every component to its initial state.
func (s *Session) SignOut() {
	s.mu.Lock()
	userID := s.userID
	s.userID = ""
	s.mu.Unlock()

	s.reset()
	s.log.Info().Str("user_id", userID).Msg("signed out")
}

// ReloadSettings reads the user's settings again, replacing whatever is held locally.
func (s *Session) ReloadSettings(ctx context.Context) error {
	userID, err := s.requireUser()
	if err != nil {
		return err
	}
	return s.catalog.Load(ctx, userID)
}

func (s *Session) reset() {
	s.gate.Reset()
	s.catalog.Reset()
	s.archive.Reset()
	s.ledger.Reset(model.DocumentTypeInvoice)
}

func (s *Session) requireUser() (string, error) {
	userID := s.UserID()
	if userID == "" {
		return "", ErrUnauthenticated
	}
	return userID, nil
}

func (s *Session) SetCatalog(ctx context.Context, catalog model.Catalog) error {
	userID, err := s.requireUser()
	if err != nil {
		return err
	}
	return s.catalog.SetCatalog(ctx, userID, catalog)
}

func (s *Session) SetTaxRate(ctx context.Context, rate decimal.Decimal) error {
	userID, err := s.requireUser()
	if err != nil {
		return err
	}
	return s.catalog.SetTaxRate(ctx, userID, rate)
}

func (s *Session) SetCompanyProfile(ctx context.Context, profile model.CompanyProfile) error {
	userID, err := s.requireUser()
	if err != nil {
		return err
	}
	return s.catalog.SetCompanyProfile(ctx, userID, profile)
}

func (s *Session) SavePackage(ctx context.Context, category string, pkg model.ServicePackage) (model.ServicePackage, error) {
	userID, err := s.requireUser()
	if err != nil {
		return model.ServicePackage{}, err
	}
	return s.catalog.SavePackage(ctx, userID, category, pkg)
}

func (s *Session) RequestDeletePackage(category, id string) (PendingConfirmation, error) {
	userID, err := s.requireUser()
	if err != nil {
		return PendingConfirmation{}, err
	}
	return s.catalog.DeletePackage(s.gate, userID, category, id)
}

// AddPackage appends a catalog package to the draft as a single line item.
func (s *Session) AddPackage(_ context.Context, category, packageID string) (model.LineItem, error) {
	if _, err := s.requireUser(); err != nil {
		return model.LineItem{}, err
	}
	pkg, ok := s.catalog.Package(category, packageID)
	if !ok {
		s.notifier.Notify(notify.SeverityError, fmt.Sprintf("Package %s not found in %s.", packageID, category))
		return model.LineItem{}, fmt.Errorf("package %s/%s: %w", category, packageID, ErrNotFound)
	}
	return s.ledger.AddPackage(category, pkg), nil
}

// SaveDocument snapshots the draft into the archive. On success the draft starts over,
// unless it was already switched to another document while the save was in flight.
func (s *Session) SaveDocument(ctx context.Context) (model.Document, error) {
	userID, err := s.requireUser()
	if err != nil {
		return model.Document{}, err
	}
	doc := s.ledger.Snapshot()
	if len(doc.InvoiceItems) == 0 {
		s.notifier.Notify(notify.SeverityError, "Add at least one line item before saving.")
		return model.Document{}, validationError("document has no line items")
	}
	if err := s.archive.Upsert(ctx, userID, doc); err != nil {
		return model.Document{}, err
	}
	s.ledger.ResetIfCurrent(doc.DocumentNumber)
	return doc, nil
}

// LoadForEdit copies an archived document into the draft.
func (s *Session) LoadForEdit(_ context.Context, number string) (model.Document, error) {
	if _, err := s.requireUser(); err != nil {
		return model.Document{}, err
	}
	doc, ok := s.archive.Get(number)
	if !ok {
		s.notifier.Notify(notify.SeverityError, fmt.Sprintf("Document %s not found.", number))
		return model.Document{}, fmt.Errorf("document %s: %w", number, ErrNotFound)
	}
	s.ledger.LoadForEdit(doc)
	s.notifier.Notify(notify.SeverityInfo, fmt.Sprintf("Loaded %s %s for editing.", doc.DocumentType, doc.DocumentNumber))
	return doc, nil
}

func (s *Session) ListDocuments(ctx context.Context) ([]model.Document, error) {
	userID, err := s.requireUser()
	if err != nil {
		return nil, err
	}
	return s.archive.List(ctx, userID)
}

func (s *Session) RequestClear(newType model.DocumentType) (PendingConfirmation, error) {
	if _, err := s.requireUser(); err != nil {
		return PendingConfirmation{}, err
	}
	return s.ledger.Clear(s.gate, newType)
}

func (s *Session) RequestRemove(number string) (PendingConfirmation, error) {
	userID, err := s.requireUser()
	if err != nil {
		return PendingConfirmation{}, err
	}
	doc, ok := s.archive.Get(number)
	if !ok {
		return PendingConfirmation{}, fmt.Errorf("document %s: %w", number, ErrNotFound)
	}
	return s.archive.Remove(s.gate, userID, number, doc.DocumentType), nil
}

func (s *Session) Confirm(ctx context.Context, id uuid.UUID) error {
	if _, err := s.requireUser(); err != nil {
		return err
	}
	return s.gate.Confirm(ctx, id)
}

func (s *Session) Cancel(id uuid.UUID) error {
	if _, err := s.requireUser(); err != nil {
		return err
	}
	return s.gate.Cancel(id)
}

func (s *Session) PendingConfirmations() []PendingConfirmation {
	return s.gate.Pending()
}

// Sessions maps user ids to their session. Each session gets its own notification feed.
type Sessions struct {
	mu       sync.Mutex
	opts     Options
	sessions map[string]*sessionEntry
	group    singleflight.Group
	now      func() time.Time
}

type sessionEntry struct {
	session  *Session
	feed     *notify.Feed
	lastSeen time.Time
}

func NewSessions(opts Options) *Sessions {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Sessions{
		opts:     opts,
		sessions: make(map[string]*sessionEntry),
		now:      now,
	}
}

// Get returns the user's session, signing in on first use. Concurrent first requests
// share one sign in, which ignores the cancellation of ctx. A failed initial fetch is
// reported through the feed, not returned; ReloadSettings retries it.
func (s *Sessions) Get(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if entry := s.touch(userID); entry != nil {
		return entry.session, nil
	}
	detached := context.WithoutCancel(ctx)

	v, err, _ := s.group.Do(userID, func() (any, error) {
		if entry := s.touch(userID); entry != nil {
			return entry, nil
		}
		feed := notify.NewFeed(s.opts.Log.With().Str("user_id", userID).Logger())
		entry := &sessionEntry{session: NewSession(s.opts, feed), feed: feed}
		if err := entry.session.SignIn(detached, userID); err != nil {
			s.opts.Log.Warn().Err(err).Str("user_id", userID).Msg("initial sync failed")
		}
		s.mu.Lock()
		entry.lastSeen = s.now()
		s.sessions[userID] = entry
		s.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*sessionEntry).session, nil
}

// ReloadSettings reads the user's settings again. Concurrent reloads for one user share
// a single read, which ignores the cancellation of ctx.
func (s *Sessions) ReloadSettings(ctx context.Context, userID string) error {
	entry := s.touch(userID)
	if entry == nil {
		return ErrUnauthenticated
	}
	_, err, _ := s.group.Do("settings:"+userID, func() (any, error) {
		return nil, entry.session.ReloadSettings(context.WithoutCancel(ctx))
	})
	return err
}

// Feed returns the user's notification feed, or nil when no session exists.
func (s *Sessions) Feed(userID string) *notify.Feed {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.sessions[userID]; ok {
		return entry.feed
	}
	return nil
}

// Logout signs the user out and forgets the session.
func (s *Sessions) Logout(userID string) bool {
	s.mu.Lock()
	entry, ok := s.sessions[userID]
	delete(s.sessions, userID)
	s.mu.Unlock()
	if !ok {
		return false
	}
	entry.session.SignOut()
	return true
}

// EvictIdle signs out every session unused for longer than idle and returns their user ids.
func (s *Sessions) EvictIdle(idle time.Duration) []string {
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	var evicted []*sessionEntry
	var userIDs []string
	for userID, entry := range s.sessions {
		if entry.lastSeen.Before(cutoff) {
			evicted = append(evicted, entry)
			userIDs = append(userIDs, userID)
			delete(s.sessions, userID)
		}
	}
	s.mu.Unlock()

	for i, entry := range evicted {
		entry.session.SignOut()
		s.opts.Log.Info().Str("user_id", userIDs[i]).Dur("idle", idle).Msg("evicted idle session")
	}
	return userIDs
}

// RunEviction calls EvictIdle every interval until ctx is done.
func (s *Sessions) RunEviction(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.EvictIdle(idle)
		}
	}
}

func (s *Sessions) touch(userID string) *sessionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[userID]
	if !ok {
		return nil
	}
	entry.lastSeen = s.now()
	return entry
}
