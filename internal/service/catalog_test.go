package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nurpe/billdesk/internal/model"
	"github.com/nurpe/billdesk/internal/notify"
	"github.com/nurpe/billdesk/internal/repository"
	"github.com/nurpe/billdesk/internal/store"
)

func newTestCatalog(s store.RemoteStore) (*Catalog, *notify.Feed) {
	feed := notify.NewFeed(zerolog.Nop())
	c := NewCatalog(repository.NewSettingsRepository(s), feed, zerolog.Nop())
	c.now = func() time.Time { return testNow }
	return c, feed
}

func TestCatalogLoadCreatesDefaultsOnce(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	c, feed := newTestCatalog(mem)

	if err := c.Load(ctx, "u1"); err != nil {
		t.Fatalf("first load: %v", err)
	}
	if msg := expectOneMessage(t, feed, notify.SeverityInfo); msg.Text != msgSettingsCreated {
		t.Fatalf("message = %q", msg.Text)
	}
	if err := c.SetTaxRate(ctx, "u1", dec("0.08")); err != nil {
		t.Fatalf("set tax rate: %v", err)
	}
	feed.Drain()

	other, otherFeed := newTestCatalog(mem)
	if err := other.Load(ctx, "u1"); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if msg := expectOneMessage(t, otherFeed, notify.SeverityInfo); msg.Text != msgSettingsSynced {
		t.Fatalf("message = %q", msg.Text)
	}
	if !other.TaxRate().Equal(dec("0.08")) {
		t.Fatalf("existing settings clobbered, tax rate = %s", other.TaxRate())
	}
}

func TestCatalogTaxRateBounds(t *testing.T) {
	ctx := context.Background()
	c, feed := newTestCatalog(store.NewMemoryStore())
	_ = c.Load(ctx, "u1")
	feed.Drain()

	for _, bad := range []string{"-0.01", "1.01"} {
		err := c.SetTaxRate(ctx, "u1", dec(bad))
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("rate %s: expected validation error, got %v", bad, err)
		}
		if !c.TaxRate().Equal(model.DefaultTaxRate) {
			t.Fatalf("rate %s changed state to %s", bad, c.TaxRate())
		}
		expectOneMessage(t, feed, notify.SeverityError)
	}
	for _, good := range []string{"0", "1", "0.2"} {
		if err := c.SetTaxRate(ctx, "u1", dec(good)); err != nil {
			t.Fatalf("rate %s: %v", good, err)
		}
		if !c.TaxRate().Equal(dec(good)) {
			t.Fatalf("rate %s not applied", good)
		}
		expectOneMessage(t, feed, notify.SeveritySuccess)
	}
}

func TestCatalogSaveFailureKeepsLocalValue(t *testing.T) {
	ctx := context.Background()
	fs := newFaultyStore()
	c, feed := newTestCatalog(fs)
	_ = c.Load(ctx, "u1")
	feed.Drain()

	fs.fail(nil, errOffline, nil, nil)
	profile := model.CompanyProfile{Name: "Acme"}
	if err := c.SetCompanyProfile(ctx, "u1", profile); !errors.Is(err, ErrSave) {
		t.Fatalf("expected save error, got %v", err)
	}
	if c.CompanyProfile() != profile {
		t.Fatal("optimistic write should keep the local value")
	}
	expectOneMessage(t, feed, notify.SeverityError)
}

func TestCatalogLoadFailureKeepsDefaults(t *testing.T) {
	fs := newFaultyStore()
	fs.fail(store.ErrPermissionDenied, nil, nil, nil)
	c, feed := newTestCatalog(fs)

	err := c.Load(context.Background(), "u1")
	if !errors.Is(err, ErrFetch) || !errors.Is(err, store.ErrPermissionDenied) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if c.Loaded() || len(c.Snapshot().Services) != len(model.DefaultCatalog()) {
		t.Fatal("defaults should stay in place")
	}
	if msg := expectOneMessage(t, feed, notify.SeverityError); msg.Text != msgSettingsDenied {
		t.Fatalf("message = %q", msg.Text)
	}
}

func TestCatalogSavePackage(t *testing.T) {
	ctx := context.Background()
	c, feed := newTestCatalog(store.NewMemoryStore())
	_ = c.Load(ctx, "u1")
	feed.Drain()

	added, err := c.SavePackage(ctx, "u1", "UIUX", model.ServicePackage{
		ID:      "new",
		Name:    " Audit ",
		Rate:    dec("5000"),
		Details: []string{" one ", "", "  "},
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added.ID != "uiux-"+strconv.FormatInt(testNow.UnixMilli(), 10) || added.Name != "Audit" {
		t.Fatalf("unexpected package %+v", added)
	}
	if len(added.Details) != 1 || added.Details[0] != "one" {
		t.Fatalf("details = %q", added.Details)
	}
	if msg := expectOneMessage(t, feed, notify.SeveritySuccess); !strings.Contains(msg.Text, "Added new package") {
		t.Fatalf("message = %q", msg.Text)
	}

	added.Rate = dec("6000")
	if _, err := c.SavePackage(ctx, "u1", "UIUX", added); err != nil {
		t.Fatalf("edit: %v", err)
	}
	got, ok := c.Package("UIUX", added.ID)
	if !ok || !got.Rate.Equal(dec("6000")) || len(c.Snapshot().Services["UIUX"]) != 2 {
		t.Fatalf("edit not applied: %+v", c.Snapshot().Services["UIUX"])
	}
	feed.Drain()

	if _, err := c.SavePackage(ctx, "u1", "UIUX", model.ServicePackage{Name: ""}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := c.SavePackage(ctx, "u1", "UIUX", model.ServicePackage{Name: "X", Rate: dec("-1")}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := c.SavePackage(ctx, "u1", "Hosting", model.ServicePackage{Name: "X"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for unknown category, got %v", err)
	}
	if _, err := c.SavePackage(ctx, "u1", "UIUX", model.ServicePackage{ID: "missing", Name: "X"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCatalogDeletePackageNeedsConfirmation(t *testing.T) {
	ctx := context.Background()
	c, feed := newTestCatalog(store.NewMemoryStore())
	_ = c.Load(ctx, "u1")
	feed.Drain()
	gate := NewConfirmationGate()

	pending, err := c.DeletePackage(gate, "u1", "WordPress", "wp-basic")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, ok := c.Package("WordPress", "wp-basic"); !ok {
		t.Fatal("package removed before confirmation")
	}
	if err := gate.Confirm(ctx, pending.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, ok := c.Package("WordPress", "wp-basic"); ok {
		t.Fatal("package still present after confirmation")
	}
	expectOneMessage(t, feed, notify.SeveritySuccess)

	if _, err := c.DeletePackage(gate, "u1", "WordPress", "wp-basic"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCatalogRejectsDuplicateIDs(t *testing.T) {
	c, _ := newTestCatalog(store.NewMemoryStore())
	catalog := model.Catalog{"UIUX": {{ID: "a", Name: "A"}, {ID: "a", Name: "B"}}}
	if err := c.SetCatalog(context.Background(), "u1", catalog); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
