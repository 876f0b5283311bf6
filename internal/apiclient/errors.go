package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-cafe/internal/shared"
)

// ErrMalformedResponse indicates a 2xx response whose payload could not be used.
var ErrMalformedResponse = errors.New("malformed response")

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	Op      string
	Status  int
	Message string
	kind    error
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("apiclient: %s: status %d: %s", e.Op, e.Status, e.Message)
}

// Unwrap exposes the taxonomy error matching the status, if any.
func (e *HTTPError) Unwrap() error {
	return e.kind
}

type errorBody struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Error   string `json:"error"`
	Title   string `json:"title"`
}

func newHTTPError(op string, resp *http.Response, body []byte) *HTTPError {
	herr := &HTTPError{Op: op, Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, body)}
	switch op {
	case opLogin:
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			herr.kind = shared.ErrInvalidCredentials
		}
	default:
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			herr.kind = shared.ErrTokenInvalid
		}
	}
	return herr
}

func errorMessage(status int, body []byte) string {
	var payload errorBody
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, candidate := range []string{payload.Message, payload.Detail, payload.Error, payload.Title} {
			if s := strings.TrimSpace(candidate); s != "" {
				return s
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 200 && !strings.HasPrefix(text, "{") {
		return text
	}
	return http.StatusText(status)
}

func transportError(op string, err error) error {
	return fmt.Errorf("apiclient: %s: %w: %w", op, shared.ErrTransport, err)
}

func readBody(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, 1<<20))
}
