package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DariyDar/astra/internal/credential"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadMissing(t *testing.T) {
	s := testStore(t)
	cred, err := s.Load(context.Background(), "a@example.com")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cred != nil {
		t.Fatalf("expected nil, got %+v", cred)
	}
}

func TestSaveAndLoad(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	exp := time.Date(2026, 3, 15, 13, 0, 0, 0, time.UTC)

	cred := &credential.Credential{
		AccessToken:  "tok-1",
		RefreshToken: "ref-1",
		TokenURI:     "https://oauth2.example.com/token",
		ClientID:     "cid",
		ClientSecret: "secret",
		Expiry:       exp,
	}
	if err := s.Save(ctx, "a@example.com", cred); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := s.Load(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.AccessToken != "tok-1" || loaded.RefreshToken != "ref-1" {
		t.Fatalf("unexpected record %+v", loaded)
	}
	if !loaded.Expiry.Equal(exp) {
		t.Fatalf("expiry = %s, want %s", loaded.Expiry, exp)
	}

	// Save should replace existing
	loaded.AccessToken = "tok-2"
	if err := s.Save(ctx, "a@example.com", loaded); err != nil {
		t.Fatalf("Save update: %v", err)
	}
	again, _ := s.Load(ctx, "a@example.com")
	if again.AccessToken != "tok-2" {
		t.Fatalf("save did not replace record, token %q", again.AccessToken)
	}

	accounts, err := s.Accounts(ctx)
	if err != nil {
		t.Fatalf("Accounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0] != "a@example.com" {
		t.Fatalf("accounts = %v", accounts)
	}
}

func TestImportFilePreservesUnknownKeys(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "b@example.com.json")
	raw := `{"token":"t","refresh_token":"r","token_uri":"u","client_id":"c","client_secret":"s","universe_domain":"googleapis.com"}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := s.ImportFile(ctx, "b@example.com", path); err != nil {
		t.Fatalf("ImportFile: %v", err)
	}

	cred, _ := s.Load(ctx, "b@example.com")
	cred.AccessToken = "t2"
	if err := s.Save(ctx, "b@example.com", cred); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var rec string
	if err := s.db.QueryRow("SELECT record FROM credentials WHERE account = ?", "b@example.com").Scan(&rec); err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(rec), &m); err != nil {
		t.Fatal(err)
	}
	if m["token"] != "t2" || m["universe_domain"] != "googleapis.com" {
		t.Fatalf("record = %v", m)
	}
}

func TestSaveOverCorruptRecord(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	for _, rec := range []string{"null", "{broken"} {
		if _, err := s.db.Exec(`INSERT INTO credentials (account, record, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(account) DO UPDATE SET record = excluded.record`, "c@example.com", rec, "2026-01-01T00:00:00Z"); err != nil {
			t.Fatal(err)
		}
		if err := s.Save(ctx, "c@example.com", &credential.Credential{AccessToken: "fresh"}); err != nil {
			t.Fatalf("%s: Save: %v", rec, err)
		}
		cred, err := s.Load(ctx, "c@example.com")
		if err != nil {
			t.Fatalf("%s: Load: %v", rec, err)
		}
		if cred.AccessToken != "fresh" {
			t.Fatalf("%s: token = %q", rec, cred.AccessToken)
		}
	}
}

func TestImportFileRejectsNull(t *testing.T) {
	s := testStore(t)
	path := filepath.Join(t.TempDir(), "null.json")
	if err := os.WriteFile(path, []byte("null"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := s.ImportFile(context.Background(), "d@example.com", path); err == nil {
		t.Fatal("expected error")
	}
}

func TestRejectsBadAccount(t *testing.T) {
	s := testStore(t)
	if err := s.Save(context.Background(), "nope", &credential.Credential{}); err == nil {
		t.Fatal("expected error")
	}
}

// The manager works unchanged over the SQLite backend.
func TestManagerOverSQLite(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	s.Save(ctx, "a@example.com", &credential.Credential{AccessToken: "cached", Expiry: now.Add(time.Hour)})

	m := credential.NewManager(s, credential.ManagerConfig{Now: func() time.Time { return now }})
	tok, err := m.ResolveToken(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("ResolveToken: %v", err)
	}
	if tok != "cached" {
		t.Fatalf("token = %q", tok)
	}
}
