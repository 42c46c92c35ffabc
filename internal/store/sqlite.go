package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/DariyDar/astra/internal/credential"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements credential.Store backed by a local SQLite database.
// Each account is one row holding the same JSON record FileStore writes.
type SQLiteStore struct {
	db *sql.DB
}

var _ credential.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at the given path and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets a reader in one process see the last committed record while
	// another process replaces it.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	account    TEXT PRIMARY KEY,
	record     TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT ''
);
`
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context, account string) (*credential.Credential, error) {
	if err := credential.ValidateAccount(account); err != nil {
		return nil, err
	}
	var rec string
	err := s.db.QueryRowContext(ctx, "SELECT record FROM credentials WHERE account = ?", account).Scan(&rec)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credential: %w", err)
	}
	var cred credential.Credential
	if err := json.Unmarshal([]byte(rec), &cred); err != nil {
		return nil, fmt.Errorf("parse credential for %s: %w", account, err)
	}
	return &cred, nil
}

// Save replaces the account's row inside one transaction. Keys of the
// previous record that Credential does not model are carried over.
func (s *SQLiteStore) Save(ctx context.Context, account string, cred *credential.Credential) error {
	if err := credential.ValidateAccount(account); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	merged := map[string]json.RawMessage{}
	var old string
	err = tx.QueryRowContext(ctx, "SELECT record FROM credentials WHERE account = ?", account).Scan(&old)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("read credential: %w", err)
	default:
		merged = credential.ExistingFields([]byte(old))
	}

	fresh, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(fresh, &fields); err != nil {
		return err
	}
	for k, v := range fields {
		merged[k] = v
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO credentials (account, record, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(account) DO UPDATE SET
			record     = excluded.record,
			updated_at = excluded.updated_at
	`, account, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("write credential: %w", err)
	}
	return tx.Commit()
}

// Accounts lists the accounts that have a stored record.
func (s *SQLiteStore) Accounts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT account FROM credentials ORDER BY account")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// ImportFile copies the JSON record at path into the store, as written by
// FileStore or by other tools sharing the credentials directory layout.
func (s *SQLiteStore) ImportFile(ctx context.Context, account, path string) error {
	if err := credential.ValidateAccount(account); err != nil {
		return err
	}
	b, err := credential.ReadRecordFile(path)
	if err != nil {
		return err
	}
	var compact map[string]json.RawMessage
	if err := json.Unmarshal(b, &compact); err != nil {
		return err
	}
	data, err := json.Marshal(compact)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO credentials (account, record, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(account) DO UPDATE SET
			record     = excluded.record,
			updated_at = excluded.updated_at
	`, account, string(data), time.Now().UTC().Format(time.RFC3339))
	return err
}
