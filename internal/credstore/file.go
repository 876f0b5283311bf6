package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps credentials in a JSON object on disk readable only by the
// owner. Writes go through a temp file and rename.
type FileStore struct {
	path string
	mu   sync.Mutex
}

type fileState struct {
	Token string          `json:"token"`
	User  json.RawMessage `json:"user,omitempty"`
}

// NewFileStore returns a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (f *FileStore) Path() string { return f.path }

// Load implements Store. A missing file yields empty credentials.
func (f *FileStore) Load(_ context.Context) (Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Credentials{}, nil
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("credstore: read %s: %w", f.path, err)
	}
	var state fileState
	if err := json.Unmarshal(raw, &state); err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return Credentials{Token: state.Token, User: decodeUser(state.User)}, nil
}

// Save implements Store.
func (f *FileStore) Save(_ context.Context, creds Credentials) error {
	user, err := encodeUser(creds.User)
	if err != nil {
		return fmt.Errorf("credstore: encode user: %w", err)
	}
	payload, err := json.Marshal(fileState{Token: creds.Token, User: user})
	if err != nil {
		return fmt.Errorf("credstore: encode: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("credstore: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("credstore: temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("credstore: chmod: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("credstore: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("credstore: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credstore: close: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("credstore: rename: %w", err)
	}
	return nil
}

// Clear implements Store. Clearing a missing file is not an error.
func (f *FileStore) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("credstore: remove: %w", err)
	}
	return nil
}
