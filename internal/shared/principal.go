package shared

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// PrincipalID is the identifier of a user. The backend may encode it as a
// JSON number or a string; both decode to the same value.
type PrincipalID string

// UnmarshalJSON accepts numbers and strings.
func (id *PrincipalID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = PrincipalID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = PrincipalID(n.String())
	return nil
}

// Int64 returns the numeric form of the identifier when it has one.
func (id PrincipalID) Int64() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Principal describes the signed-in actor.
type Principal struct {
	ID        PrincipalID `json:"id"`
	Username  string      `json:"username"`
	Role      string      `json:"role"`
	FirstName string      `json:"firstName,omitempty"`
	LastName  string      `json:"lastName,omitempty"`
	Email     string      `json:"email,omitempty"`
}

// DisplayName prefers the full name and falls back to the username.
func (p Principal) DisplayName() string {
	full := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if full != "" {
		return full
	}
	return p.Username
}

// IsZero reports whether the principal carries no identity.
func (p Principal) IsZero() bool {
	return p.ID == "" && p.Username == ""
}
