// Package credstore persists the console's bearer token and cached principal.
// The session controller is the only writer.
package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/odyssey-erp/odyssey-cafe/internal/shared"
)

// Well-known keys.
const (
	KeyToken = "token"
	KeyUser  = "user"
)

// ErrCorrupt indicates persisted state could not be decoded.
var ErrCorrupt = errors.New("credstore: corrupt state")

// Credentials is the persisted session state.
type Credentials struct {
	Token string
	User  *shared.Principal
}

// Complete reports whether both token and user are present.
func (c Credentials) Complete() bool {
	return strings.TrimSpace(c.Token) != "" && c.User != nil
}

// Store loads and persists credentials.
type Store interface {
	Load(ctx context.Context) (Credentials, error)
	Save(ctx context.Context, creds Credentials) error
	Clear(ctx context.Context) error
}

func encodeUser(p *shared.Principal) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

// decodeUser returns nil for empty or unreadable payloads; a corrupt cached
// user counts as absent.
func decodeUser(raw []byte) *shared.Principal {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var p shared.Principal
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil
	}
	if p.IsZero() {
		return nil
	}
	return &p
}
