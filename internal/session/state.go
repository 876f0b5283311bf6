package session

import (
	"time"

	"github.com/odyssey-erp/odyssey-cafe/internal/shared"
)

// State enumerates the session lifecycle.
type State int

const (
	// StateUnknown is the initial state before the credential store was read.
	StateUnknown State = iota
	// StateAnonymous means no principal is signed in.
	StateAnonymous
	// StateAuthenticated means a token and principal are held.
	StateAuthenticated
	// StateExpiring is Authenticated with expiry inside the warning window.
	StateExpiring
	// StateInvalidating is the transient state while signing out.
	StateInvalidating
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	case StateExpiring:
		return "expiring"
	case StateInvalidating:
		return "invalidating"
	default:
		return "invalid"
	}
}

// Snapshot is an immutable view of the session.
type Snapshot struct {
	State           State
	User            *shared.Principal
	Token           string
	IsAuthenticated bool
	IsLoading       bool
	IsTokenExpiring bool
	// Optimistic is set while a rehydrated session awaits server confirmation.
	Optimistic bool
	// ExpiresAt is zero when the token carries no expiry.
	ExpiresAt time.Time
}

// Role returns the principal role or "" when anonymous.
func (s Snapshot) Role() string {
	if s.User == nil {
		return ""
	}
	return s.User.Role
}

// LoginResult reports the outcome of Login. User is the zero principal on
// failure so callers can read fields without nil checks.
type LoginResult struct {
	Success bool
	Message string
	User    shared.Principal
	Err     error
}
