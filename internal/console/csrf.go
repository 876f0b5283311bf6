package console

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-cafe/internal/shared"
)

const (
	// CSRFCookieName is the cookie carrying the signed CSRF token.
	CSRFCookieName = "csrf_token"
	// CSRFFormField is the form field name carrying the CSRF token.
	CSRFFormField = "csrf_token"
	// CSRFHeader is accepted in place of the form field.
	CSRFHeader = "X-CSRF-Token"
)

// CSRFManager issues and verifies double-submit CSRF tokens. A token is a
// random nonce plus its HMAC, so the cookie cannot be forged without the
// secret.
type CSRFManager struct {
	secret []byte
	secure bool
}

// NewCSRFManager returns a CSRFManager using the provided secret key.
func NewCSRFManager(secret string, secureCookie bool) *CSRFManager {
	return &CSRFManager{secret: []byte(secret), secure: secureCookie}
}

// EnsureToken returns the request's token, issuing a cookie when missing
// or invalid.
func (m *CSRFManager) EnsureToken(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(CSRFCookieName); err == nil && m.valid(c.Value) {
		return c.Value
	}
	token := m.generateToken()
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	})
	return token
}

// VerifyToken compares the submitted token with the cookie token.
func (m *CSRFManager) VerifyToken(r *http.Request) error {
	c, err := r.Cookie(CSRFCookieName)
	if err != nil || c.Value == "" {
		return shared.ErrCSRFTokenMissing
	}
	token := r.Header.Get(CSRFHeader)
	if token == "" {
		token = r.PostFormValue(CSRFFormField)
	}
	if token == "" {
		return shared.ErrCSRFTokenMissing
	}
	if !m.valid(c.Value) || !hmac.Equal([]byte(c.Value), []byte(token)) {
		return shared.ErrCSRFTokenMismatch
	}
	return nil
}

// Middleware rejects unsafe requests without a matching token.
func (m *CSRFManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		if err := m.VerifyToken(r); err != nil {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *CSRFManager) generateToken() string {
	nonce := uuid.NewString()
	return nonce + "." + m.sign(nonce)
}

func (m *CSRFManager) sign(nonce string) string {
	mac := hmac.New(sha256.New, m.secret)
	_, _ = mac.Write([]byte(nonce))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (m *CSRFManager) valid(token string) bool {
	nonce, sig, ok := strings.Cut(token, ".")
	if !ok || nonce == "" {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(m.sign(nonce)))
}
