package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists credentials per account. Load returns (nil, nil) when the
// account has no record. Save must replace the record atomically.
type Store interface {
	Load(ctx context.Context, account string) (*Credential, error)
	Save(ctx context.Context, account string, cred *Credential) error
}

// FileStore keeps one JSON file per account in Dir.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (s *FileStore) path(account string) string {
	return filepath.Join(s.Dir, account+".json")
}

func (s *FileStore) Load(_ context.Context, account string) (*Credential, error) {
	if err := ValidateAccount(account); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.path(account))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credential: %w", err)
	}
	var cred Credential
	if err := json.Unmarshal(b, &cred); err != nil {
		return nil, fmt.Errorf("parse credential %s: %w", s.path(account), err)
	}
	return &cred, nil
}

// Save rewrites the account's file via a temp file in the same directory
// and a rename. Keys in the existing file that Credential does not model
// are carried over.
func (s *FileStore) Save(_ context.Context, account string, cred *Credential) error {
	if err := ValidateAccount(account); err != nil {
		return err
	}
	path := s.path(account)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}

	merged := map[string]json.RawMessage{}
	if old, err := os.ReadFile(path); err == nil {
		merged = ExistingFields(old)
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
	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// ImportFile copies the JSON record at path into the account's file,
// keeping keys Credential does not model.
func (s *FileStore) ImportFile(_ context.Context, account, path string) error {
	if err := ValidateAccount(account); err != nil {
		return err
	}
	b, err := ReadRecordFile(path)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(ExistingFields(b), "", "  ")
	if err != nil {
		return err
	}
	dst := s.path(account)
	if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	return writeFileAtomic(dst, data)
}

// ReadRecordFile reads a credential record and checks that it is a JSON
// object a Credential can be read from.
func ReadRecordFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credential file: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, fmt.Errorf("parse credential file %s: %w", path, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("parse credential file %s: not a JSON object", path)
	}
	var probe Credential
	if err := json.Unmarshal(b, &probe); err != nil {
		return nil, fmt.Errorf("parse credential file %s: %w", path, err)
	}
	return b, nil
}

// ExistingFields decodes a stored record for merging. A corrupt record,
// including the JSON literal null, yields an empty map so it is replaced.
func ExistingFields(data []byte) map[string]json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return map[string]json.RawMessage{}
	}
	return fields
}

func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	cleanup := func() { _ = os.Remove(tmp) }

	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmp, 0o600); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		cleanup()
		return fmt.Errorf("replace credential: %w", err)
	}
	return nil
}
