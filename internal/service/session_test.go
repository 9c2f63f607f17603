package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nurpe/billdesk/internal/model"
	"github.com/nurpe/billdesk/internal/notify"
	"github.com/nurpe/billdesk/internal/repository"
	"github.com/nurpe/billdesk/internal/store"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	sess, feed := signedInSession(t, store.NewMemoryStore())

	sess.Ledger().SetHeader(model.DocumentHeader{
		ClientName:     "Client",
		ClientAddress:  "Colombo",
		DocumentNumber: "INV-100",
		Date:           "2026-03-15",
	})
	sess.Ledger().AddLineItem(item("A", "2", "100"))
	sess.Ledger().AddLineItem(item("B", "1", "50"))
	draftItems := sess.Ledger().Items()

	saved, err := sess.SaveDocument(ctx)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !saved.Subtotal.Equal(dec("250")) || !saved.TaxAmount.Equal(dec("37.5")) || !saved.Total.Equal(dec("287.5")) {
		t.Fatalf("unexpected totals %s %s %s", saved.Subtotal, saved.TaxAmount, saved.Total)
	}
	if msg := expectOneMessage(t, feed, notify.SeveritySuccess); msg.Text != "Invoice INV-100 saved successfully!" {
		t.Fatalf("message = %q", msg.Text)
	}
	if sess.Ledger().State() != LedgerEmpty || sess.Ledger().Header().DocumentNumber == "INV-100" {
		t.Fatal("draft should start over after a successful save")
	}

	stored, ok := sess.Archive().Get("INV-100")
	if !ok || !stored.Total.Equal(dec("287.5")) {
		t.Fatalf("archive = %+v", sess.Archive().Documents())
	}

	if _, err := sess.LoadForEdit(ctx, "INV-100"); err != nil {
		t.Fatalf("load: %v", err)
	}
	items := sess.Ledger().Items()
	if len(items) != len(draftItems) {
		t.Fatalf("items = %+v", items)
	}
	for i := range items {
		if items[i].ID != draftItems[i].ID || items[i].Description != draftItems[i].Description ||
			!items[i].Quantity.Equal(draftItems[i].Quantity) || !items[i].Rate.Equal(draftItems[i].Rate) {
			t.Fatalf("item %d = %+v, want %+v", i, items[i], draftItems[i])
		}
	}
	header := sess.Ledger().Header()
	if header.ClientName != "Client" || header.ClientAddress != "Colombo" || header.DocumentNumber != "INV-100" || header.Date != "2026-03-15" {
		t.Fatalf("header = %+v", header)
	}

	sess.Ledger().AddLineItem(item("C", "1", "1"))
	if stored, _ := sess.Archive().Get("INV-100"); len(stored.InvoiceItems) != 2 {
		t.Fatal("editing the draft must not change the archive before saving")
	}
}

func TestSaveTwiceKeepsOneRecord(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	sess, _ := signedInSession(t, mem)

	for _, client := range []string{"First", "Second"} {
		sess.Ledger().SetHeader(model.DocumentHeader{ClientName: client, DocumentNumber: "INV-5", Date: "2026-03-15"})
		sess.Ledger().AddLineItem(item(client, "1", "10"))
		if _, err := sess.SaveDocument(ctx); err != nil {
			t.Fatalf("save %s: %v", client, err)
		}
	}

	docs := sess.Archive().Documents()
	if len(docs) != 1 || docs[0].ClientName != "Second" {
		t.Fatalf("expected one record with the second save, got %+v", docs)
	}
	if len(docs[0].InvoiceItems) != 1 || docs[0].InvoiceItems[0].Description != "Second" {
		t.Fatalf("items = %+v", docs[0].InvoiceItems)
	}
}

func TestSaveRejectsEmptyDraft(t *testing.T) {
	sess, feed := signedInSession(t, store.NewMemoryStore())
	if _, err := sess.SaveDocument(context.Background()); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	expectOneMessage(t, feed, notify.SeverityError)

	sess.Ledger().AddLineItem(item("A", "1", "1"))
	sess.Ledger().SetHeader(model.DocumentHeader{DocumentNumber: ""})
	if _, err := sess.SaveDocument(context.Background()); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty number, got %v", err)
	}
	expectOneMessage(t, feed, notify.SeverityError)
	if len(sess.Archive().Documents()) != 0 {
		t.Fatal("nothing should be archived")
	}
}

func TestSaveFailureKeepsDraft(t *testing.T) {
	fs := newFaultyStore()
	sess, feed := signedInSession(t, fs)
	sess.Ledger().AddLineItem(item("A", "1", "1"))

	fs.fail(nil, errOffline, nil, nil)
	if _, err := sess.SaveDocument(context.Background()); !errors.Is(err, ErrSave) {
		t.Fatalf("expected save error, got %v", err)
	}
	if sess.Ledger().State() != LedgerDrafting {
		t.Fatal("failed save must keep the draft")
	}
	expectOneMessage(t, feed, notify.SeverityError)
}

func TestClearToQuotation(t *testing.T) {
	ctx := context.Background()
	sess, _ := signedInSession(t, store.NewMemoryStore())
	for _, name := range []string{"A", "B", "C"} {
		sess.Ledger().AddLineItem(item(name, "1", "1"))
	}

	pending, err := sess.RequestClear(model.DocumentTypeQuotation)
	if err != nil {
		t.Fatalf("request clear: %v", err)
	}
	if err := sess.Confirm(ctx, pending.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	header := sess.Ledger().Header()
	if sess.Ledger().State() != LedgerEmpty || sess.Ledger().Type() != model.DocumentTypeQuotation ||
		!strings.HasPrefix(header.DocumentNumber, "QUO-") || header.ValidUntil == "" {
		t.Fatalf("type=%s header=%+v", sess.Ledger().Type(), header)
	}
}

func TestRemoveDeletesFromBothLayers(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	sess, feed := signedInSession(t, mem)
	for _, number := range []string{"INV-1", "INV-2"} {
		sess.Ledger().SetHeader(model.DocumentHeader{DocumentNumber: number})
		sess.Ledger().AddLineItem(item("A", "1", "1"))
		if _, err := sess.SaveDocument(ctx); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	feed.Drain()

	pending, err := sess.RequestRemove("INV-1")
	if err != nil {
		t.Fatalf("request remove: %v", err)
	}
	if _, ok := sess.Archive().Get("INV-1"); !ok {
		t.Fatal("removed before confirmation")
	}
	if err := sess.Confirm(ctx, pending.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if msg := expectOneMessage(t, feed, notify.SeveritySuccess); msg.Text != "Invoice INV-1 deleted." {
		t.Fatalf("message = %q", msg.Text)
	}
	if _, ok := sess.Archive().Get("INV-1"); ok {
		t.Fatal("document still in the local list")
	}

	other, _ := signedInSession(t, mem)
	docs := other.Archive().Documents()
	if len(docs) != 1 || docs[0].DocumentNumber != "INV-2" {
		t.Fatalf("fresh list = %+v", docs)
	}
}

func TestSignOutResetsEverything(t *testing.T) {
	ctx := context.Background()
	sess, _ := signedInSession(t, store.NewMemoryStore())
	_ = sess.SetTaxRate(ctx, dec("0.2"))
	sess.Ledger().AddLineItem(item("A", "1", "1"))
	if _, err := sess.SaveDocument(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	sess.Ledger().AddLineItem(item("B", "1", "1"))
	pending, _ := sess.RequestClear("")

	sess.SignOut()

	if sess.UserID() != "" || sess.Ledger().State() != LedgerEmpty || len(sess.Archive().Documents()) != 0 {
		t.Fatal("state survived sign out")
	}
	if !sess.Catalog().TaxRate().Equal(model.DefaultTaxRate) {
		t.Fatalf("tax rate = %s", sess.Catalog().TaxRate())
	}
	if len(sess.PendingConfirmations()) != 0 {
		t.Fatal("pending confirmations survived sign out")
	}
	if err := sess.Confirm(ctx, pending.ID); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if _, err := sess.SaveDocument(ctx); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestSwitchingUserDropsPreviousData(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	sess, _ := signedInSession(t, mem)
	sess.Ledger().AddLineItem(item("A", "1", "1"))
	_, _ = sess.SaveDocument(ctx)
	sess.Ledger().AddLineItem(item("B", "1", "1"))

	if err := sess.SignIn(ctx, "user-2"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if len(sess.Archive().Documents()) != 0 || sess.Ledger().State() != LedgerEmpty {
		t.Fatal("previous user's data leaked into the new session")
	}
}

func TestAddPackageFromCatalog(t *testing.T) {
	sess, feed := signedInSession(t, store.NewMemoryStore())
	got, err := sess.AddPackage(context.Background(), "WordPress", "wp-basic")
	if err != nil {
		t.Fatalf("add package: %v", err)
	}
	if !strings.HasPrefix(got.Description, "WordPress: ") || !got.Rate.Equal(dec("15000")) {
		t.Fatalf("item = %+v", got)
	}
	expectOneMessage(t, feed, notify.SeveritySuccess)

	if _, err := sess.AddPackage(context.Background(), "WordPress", "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSessionsRegistry(t *testing.T) {
	ctx := context.Background()
	sessions := NewSessions(testOptions(store.NewMemoryStore()))

	first, err := sessions.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	again, _ := sessions.Get(ctx, "user-1")
	if first != again || first.UserID() != "user-1" {
		t.Fatal("registry should reuse the signed-in session")
	}
	if feed := sessions.Feed("user-1"); feed == nil || len(feed.Drain()) == 0 {
		t.Fatal("sign in should report through the user's feed")
	}

	if !sessions.Logout("user-1") || first.UserID() != "" {
		t.Fatal("logout should sign the session out")
	}
	if sessions.Feed("user-1") != nil {
		t.Fatal("logout should forget the session")
	}
	if _, err := sessions.Get(ctx, ""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestSavePaddedNumberResetsDraft(t *testing.T) {
	sess, feed := signedInSession(t, store.NewMemoryStore())
	sess.Ledger().SetHeader(model.DocumentHeader{DocumentNumber: " INV-9 ", Date: "2026-03-15"})
	sess.Ledger().AddLineItem(item("A", "1", "10"))

	saved, err := sess.SaveDocument(context.Background())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.DocumentNumber != "INV-9" {
		t.Fatalf("saved number = %q", saved.DocumentNumber)
	}
	if sess.Ledger().State() != LedgerEmpty || len(sess.Ledger().Items()) != 0 {
		t.Fatalf("draft not reset: state=%s items=%d", sess.Ledger().State(), len(sess.Ledger().Items()))
	}
	expectOneMessage(t, feed, notify.SeveritySuccess)
}

func TestFailedSignInKeepsRemoteCatalog(t *testing.T) {
	ctx := context.Background()
	fs := newFaultyStore()
	settings := repository.NewSettingsRepository(fs)
	mine := model.Catalog{"UIUX": {{ID: "mine", Name: "Mine", Rate: dec("100")}}}
	if _, err := settings.CreateIfMissing(ctx, "user-1", model.Settings{
		Services:       mine,
		TaxRate:        dec("0.08"),
		CompanyProfile: model.DefaultCompanyProfile(),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	fs.fail(errOffline, nil, nil, nil)
	sessions := NewSessions(testOptions(fs))
	sess, err := sessions.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.Catalog().Loaded() {
		t.Fatal("catalog should not be loaded after a failed fetch")
	}
	sessions.Feed("user-1").Drain()

	fs.fail(nil, nil, nil, nil)
	_, err = sess.SavePackage(ctx, "WordPress", model.ServicePackage{ID: "new", Name: "X", Rate: dec("1")})
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("expected fetch error for an unsynced catalog, got %v", err)
	}
	expectOneMessage(t, sessions.Feed("user-1"), notify.SeverityError)
	if _, err := sess.RequestDeletePackage("WordPress", "wp-basic"); !errors.Is(err, ErrFetch) {
		t.Fatalf("expected fetch error for delete, got %v", err)
	}
	sessions.Feed("user-1").Drain()

	remote, err := settings.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("read remote: %v", err)
	}
	if _, ok := remote.Services.Find("UIUX", "mine"); !ok || len(remote.Services) != 1 {
		t.Fatalf("remote catalog overwritten: %+v", remote.Services)
	}

	if err := sessions.ReloadSettings(ctx, "user-1"); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !sess.Catalog().Loaded() || !sess.Catalog().TaxRate().Equal(dec("0.08")) {
		t.Fatalf("reload did not apply remote settings: loaded=%v tax=%s", sess.Catalog().Loaded(), sess.Catalog().TaxRate())
	}
	if _, ok := sess.Catalog().Package("UIUX", "mine"); !ok {
		t.Fatal("reloaded catalog should hold the user's package")
	}
	if msg := expectOneMessage(t, sessions.Feed("user-1"), notify.SeverityInfo); msg.Text != msgSettingsSynced {
		t.Fatalf("message = %q", msg.Text)
	}

	if _, err := sess.SavePackage(ctx, "UIUX", model.ServicePackage{ID: "new", Name: "Audit", Rate: dec("5")}); err != nil {
		t.Fatalf("save after reload: %v", err)
	}
	remote, _ = settings.Get(ctx, "user-1")
	if _, ok := remote.Services.Find("UIUX", "mine"); !ok || len(remote.Services["UIUX"]) != 2 {
		t.Fatalf("remote catalog = %+v", remote.Services)
	}
}

func TestSignInIgnoresRequestCancellation(t *testing.T) {
	sessions := NewSessions(testOptions(cancelAwareStore{store.NewMemoryStore()}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sess, err := sessions.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !sess.Catalog().Loaded() {
		t.Fatal("a cancelled request must not leave the session unsynced")
	}
}

func TestSessionsEvictIdle(t *testing.T) {
	ctx := context.Background()
	sessions := NewSessions(testOptions(store.NewMemoryStore()))
	clock := testNow
	sessions.now = func() time.Time { return clock }

	idle, _ := sessions.Get(ctx, "idle")
	clock = clock.Add(2 * time.Hour)
	active, _ := sessions.Get(ctx, "active")
	clock = clock.Add(30 * time.Minute)

	evicted := sessions.EvictIdle(time.Hour)
	if len(evicted) != 1 || evicted[0] != "idle" {
		t.Fatalf("evicted = %v", evicted)
	}
	if idle.UserID() != "" || sessions.Feed("idle") != nil {
		t.Fatal("evicted session should be signed out and forgotten")
	}
	if active.UserID() != "active" || sessions.Feed("active") == nil {
		t.Fatal("active session should be kept")
	}

	again, _ := sessions.Get(ctx, "idle")
	if again == idle {
		t.Fatal("a new request after eviction should sign in afresh")
	}
}
