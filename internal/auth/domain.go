package auth

import (
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-cafe/internal/shared"
)

// User represents a back-office account.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Role         string
	FirstName    string
	LastName     string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal converts the account into the identity shared with clients.
func (u User) Principal() shared.Principal {
	return shared.Principal{
		ID:        shared.PrincipalID(strconv.FormatInt(u.ID, 10)),
		Username:  u.Username,
		Role:      u.Role,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
	}
}

// NewUser carries the fields needed to create an account.
type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
	Role         string
	FirstName    string
	LastName     string
}

// Session is an issued bearer token together with its owner.
type Session struct {
	Token     string
	User      User
	ExpiresAt time.Time
}

// RequestMeta describes the caller for audit purposes.
type RequestMeta struct {
	RemoteAddr string
	UserAgent  string
}

// Audit event kinds.
const (
	EventLoginSucceeded = "login_succeeded"
	EventLoginFailed    = "login_failed"
	EventRefreshed      = "token_refreshed"
	EventLoggedOut      = "logged_out"
)

// Event is an audit record of an authentication action.
type Event struct {
	Kind       string
	UserID     int64
	Username   string
	RemoteAddr string
	At         time.Time
}
