package credstore

import (
	"context"
	"sync"
)

// MemoryStore keeps credentials in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	token string
	user  []byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context) (Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Credentials{Token: m.token, User: decodeUser(m.user)}, nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, creds Credentials) error {
	raw, err := encodeUser(creds.User)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = creds.Token
	m.user = raw
	return nil
}

// Clear implements Store.
func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.user = nil
	return nil
}

// SetRaw seeds the raw persisted values, bypassing encoding.
func (m *MemoryStore) SetRaw(token string, user []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.user = append([]byte(nil), user...)
}
