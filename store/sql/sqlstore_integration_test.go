package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-autopost/core"
	autopostmigrations "github.com/goliatone/go-autopost/migrations"
	sqlstore "github.com/goliatone/go-autopost/store/sql"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-autopost-tests"
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:autopost-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = autopostmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != autopostmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, autopostmigrations.WithValidationTargets(autopostmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func newAccountStore(t *testing.T) (core.AccountStore, func()) {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		cleanup()
		t.Fatalf("new repository factory: %v", err)
	}
	return factory.AccountStore(), cleanup
}

func upsertInput(email string) core.UpsertAccountInput {
	now := time.Now().UTC().Truncate(time.Second)
	return core.UpsertAccountInput{
		Email:                email,
		MetaUserID:           "meta-user-1",
		UserName:             "Dana Example",
		EncryptedAccessToken: "sealed-user-token",
		TokenExpiry:          now.Add(60 * 24 * time.Hour),
		TokenRefreshedAt:     now,
		Permissions:          []string{"pages_show_list", "pages_manage_posts"},
		Pages: []core.Page{
			{PageID: "page-1", PageName: "First Page", EncryptedPageToken: "sealed-page-1"},
			{PageID: "page-2", PageName: "Second Page", EncryptedPageToken: "sealed-page-2", IGBusinessID: "ig-1"},
		},
		LastActivity: now,
	}
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"autopost_accounts",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "autopost_accounts" {
		t.Fatalf("expected autopost_accounts table, got %q", tableName)
	}
}

func TestAccountStore_UpsertCreatesAndNormalizesEmail(t *testing.T) {
	store, cleanup := newAccountStore(t)
	defer cleanup()
	ctx := context.Background()

	created, err := store.Upsert(ctx, upsertInput("  Dana@Example.COM "))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if created.Email != "dana@example.com" {
		t.Fatalf("expected normalized email, got %q", created.Email)
	}
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}
	if !created.IsActive {
		t.Fatalf("expected active record")
	}
	if len(created.Pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(created.Pages))
	}

	loaded, err := store.GetByEmail(ctx, "DANA@example.com", true)
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if loaded.ID != created.ID {
		t.Fatalf("expected same record across email spellings")
	}
	if loaded.EncryptedAccessToken != "sealed-user-token" {
		t.Fatalf("expected sealed token on secret read")
	}
}

func TestAccountStore_UpsertRejectsZeroTokenExpiry(t *testing.T) {
	store, cleanup := newAccountStore(t)
	defer cleanup()
	ctx := context.Background()

	in := upsertInput("dana@example.com")
	in.TokenExpiry = time.Time{}
	if _, err := store.Upsert(ctx, in); !errors.Is(err, core.ErrMissingTokenExpiry) {
		t.Fatalf("expected missing token expiry error, got %v", err)
	}

	if _, err := store.GetByEmail(ctx, "dana@example.com", false); !errors.Is(err, core.ErrAccountNotFound) {
		t.Fatalf("expected no record written, got %v", err)
	}
}

func TestAccountStore_DefaultReadStripsSecrets(t *testing.T) {
	store, cleanup := newAccountStore(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := store.Upsert(ctx, upsertInput("dana@example.com")); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	loaded, err := store.GetByEmail(ctx, "dana@example.com", false)
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if loaded.EncryptedAccessToken != "" {
		t.Fatalf("expected user token stripped from default read")
	}
	for _, page := range loaded.Pages {
		if page.EncryptedPageToken != "" {
			t.Fatalf("expected page token stripped from default read")
		}
	}
	if loaded.MetaUserID != "meta-user-1" {
		t.Fatalf("expected non-secret fields intact")
	}
}

func TestAccountStore_UpsertMergesPagesAndKeepsOrder(t *testing.T) {
	store, cleanup := newAccountStore(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := store.Upsert(ctx, upsertInput("dana@example.com")); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// Reconnect returns the listing reordered, one page renamed, one new.
	second := upsertInput("dana@example.com")
	second.Pages = []core.Page{
		{PageID: "page-3", PageName: "Third Page", EncryptedPageToken: "sealed-page-3"},
		{PageID: "page-1", PageName: "First Page Renamed", EncryptedPageToken: "sealed-page-1b"},
	}
	updated, err := store.Upsert(ctx, second)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if len(updated.Pages) != 3 {
		t.Fatalf("expected 3 merged pages, got %d", len(updated.Pages))
	}
	if updated.Pages[0].PageID != "page-1" || updated.Pages[1].PageID != "page-2" || updated.Pages[2].PageID != "page-3" {
		t.Fatalf("expected stable insertion order, got %+v", updated.Pages)
	}
	if updated.Pages[0].PageName != "First Page Renamed" {
		t.Fatalf("expected in-place update of known page")
	}
	if updated.Pages[0].EncryptedPageToken != "sealed-page-1b" {
		t.Fatalf("expected refreshed page token")
	}
}

func TestAccountStore_UpsertReactivatesAndKeepsSelection(t *testing.T) {
	store, cleanup := newAccountStore(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := store.Upsert(ctx, upsertInput("dana@example.com")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.SetActivePage(ctx, "dana@example.com", "page-2"); err != nil {
		t.Fatalf("set active page: %v", err)
	}
	if err := store.SetActive(ctx, "dana@example.com", false, "user requested"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	updated, err := store.Upsert(ctx, upsertInput("dana@example.com"))
	if err != nil {
		t.Fatalf("reconnect upsert: %v", err)
	}
	if !updated.IsActive {
		t.Fatalf("expected reconnect to reactivate")
	}
	if updated.ActivePageID != "page-2" {
		t.Fatalf("expected active page selection to survive reconnect, got %q", updated.ActivePageID)
	}
}

func TestAccountStore_GetByEmailNotFound(t *testing.T) {
	store, cleanup := newAccountStore(t)
	defer cleanup()

	_, err := store.GetByEmail(context.Background(), "missing@example.com", false)
	if err == nil {
		t.Fatalf("expected not found error")
	}
	if !errors.Is(err, core.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestAccountStore_SetActivePageUnknownEmail(t *testing.T) {
	store, cleanup := newAccountStore(t)
	defer cleanup()

	err := store.SetActivePage(context.Background(), "missing@example.com", "page-1")
	if !errors.Is(err, core.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestAccountStore_ListExpiring(t *testing.T) {
	store, cleanup := newAccountStore(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now().UTC()

	soon := upsertInput("soon@example.com")
	soon.TokenExpiry = now.Add(24 * time.Hour)
	later := upsertInput("later@example.com")
	later.TokenExpiry = now.Add(90 * 24 * time.Hour)
	gone := upsertInput("gone@example.com")
	gone.TokenExpiry = now.Add(12 * time.Hour)

	for _, in := range []core.UpsertAccountInput{soon, later, gone} {
		if _, err := store.Upsert(ctx, in); err != nil {
			t.Fatalf("upsert %s: %v", in.Email, err)
		}
	}
	if err := store.SetActive(ctx, "gone@example.com", false, "disabled"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	expiring, err := store.ListExpiring(ctx, now.Add(7*24*time.Hour), 10)
	if err != nil {
		t.Fatalf("list expiring: %v", err)
	}
	if len(expiring) != 1 {
		t.Fatalf("expected 1 expiring account, got %d", len(expiring))
	}
	if expiring[0].Email != "soon@example.com" {
		t.Fatalf("unexpected expiring account %q", expiring[0].Email)
	}
	if expiring[0].EncryptedAccessToken != "" {
		t.Fatalf("expected audit read without sealed material")
	}
}
