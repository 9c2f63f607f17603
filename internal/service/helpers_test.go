package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nurpe/billdesk/internal/model"
	"github.com/nurpe/billdesk/internal/notify"
	"github.com/nurpe/billdesk/internal/repository"
	"github.com/nurpe/billdesk/internal/store"
)

var (
	testNow    = time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)
	errOffline = errors.New("store offline")
)

// faultyStore wraps a memory store and fails selected operations on demand.
type faultyStore struct {
	store.RemoteStore
	mu         sync.Mutex
	failGet    error
	failSet    error
	failList   error
	failDelete error
}

func newFaultyStore() *faultyStore {
	return &faultyStore{RemoteStore: store.NewMemoryStore()}
}

func (f *faultyStore) fail(get, set, list, del error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failGet, f.failSet, f.failList, f.failDelete = get, set, list, del
}

func (f *faultyStore) Get(ctx context.Context, collection, key string) (store.Record, error) {
	f.mu.Lock()
	err := f.failGet
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.RemoteStore.Get(ctx, collection, key)
}

func (f *faultyStore) Set(ctx context.Context, collection, key string, rec store.Record, mode store.Mode) error {
	f.mu.Lock()
	err := f.failSet
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.RemoteStore.Set(ctx, collection, key, rec, mode)
}

func (f *faultyStore) List(ctx context.Context, collection string) ([]store.Record, error) {
	f.mu.Lock()
	err := f.failList
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.RemoteStore.List(ctx, collection)
}

func (f *faultyStore) Delete(ctx context.Context, collection, key string) error {
	f.mu.Lock()
	err := f.failDelete
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.RemoteStore.Delete(ctx, collection, key)
}

// cancelAwareStore fails reads once the caller's context is done.
type cancelAwareStore struct {
	store.RemoteStore
}

func (c cancelAwareStore) Get(ctx context.Context, collection, key string) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.RemoteStore.Get(ctx, collection, key)
}

func (c cancelAwareStore) List(ctx context.Context, collection string) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.RemoteStore.List(ctx, collection)
}

func testOptions(s store.RemoteStore) Options {
	return Options{
		Settings:              repository.NewSettingsRepository(s),
		Documents:             repository.NewDocumentRepository(s),
		Log:                   zerolog.Nop(),
		QuotationValidityDays: 30,
		Now:                   func() time.Time { return testNow },
		Intn:                  func(int) int { return 42 },
	}
}

func signedInSession(t *testing.T, s store.RemoteStore) (*Session, *notify.Feed) {
	t.Helper()
	feed := notify.NewFeed(zerolog.Nop())
	sess := NewSession(testOptions(s), feed)
	if err := sess.SignIn(context.Background(), "user-1"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	feed.Drain()
	return sess, feed
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func item(desc, qty, rate string) model.LineItem {
	return model.LineItem{Description: desc, Quantity: dec(qty), Rate: dec(rate)}
}

func expectOneMessage(t *testing.T, feed *notify.Feed, severity notify.Severity) notify.Message {
	t.Helper()
	msgs := feed.Drain()
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one notification, got %+v", msgs)
	}
	if msgs[0].Severity != severity {
		t.Fatalf("expected %s notification, got %+v", severity, msgs[0])
	}
	return msgs[0]
}
