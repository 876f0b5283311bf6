package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-cafe/internal/auth"
	"github.com/odyssey-erp/odyssey-cafe/internal/shared"
	_ "github.com/odyssey-erp/odyssey-cafe/testing"
)

type memoryRepo struct {
	user auth.User
}

func (m *memoryRepo) FindByIdentifier(ctx context.Context, identifier string) (*auth.User, error) {
	if !strings.EqualFold(identifier, m.user.Username) {
		return nil, shared.ErrNotFound
	}
	u := m.user
	return &u, nil
}

func (m *memoryRepo) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	if id != m.user.ID {
		return nil, shared.ErrNotFound
	}
	u := m.user
	return &u, nil
}

func (m *memoryRepo) CreateUser(ctx context.Context, u auth.NewUser) (*auth.User, error) {
	return nil, shared.ErrDuplicate
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("croissant"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &memoryRepo{user: auth.User{ID: 7, Username: "claire", Email: "claire@cafe.test", PasswordHash: string(hashed), Role: "director", IsActive: true}}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tokens, err := auth.NewTokenIssuer("handler-secret", "", time.Hour)
	require.NoError(t, err)
	svc := auth.NewService(repo, tokens, auth.NewRedisRevocationStore(client, ""), auth.ServiceConfig{})

	r := chi.NewRouter()
	r.Route("/api/auth", auth.NewHandler(nil, svc, 0).MountRoutes)
	r.With(auth.Authenticator{Service: svc}.Middleware).Get("/api/whoami", func(w http.ResponseWriter, r *http.Request) {
		p, _ := shared.PrincipalFromContext(r.Context())
		_ = json.NewEncoder(w).Encode(p)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	payload := map[string]any{}
	_ = json.NewDecoder(res.Body).Decode(&payload)
	return res, payload
}

func TestLoginValidateRefreshLogout(t *testing.T) {
	srv := newServer(t)

	res, body := do(t, http.MethodPost, srv.URL+"/api/auth/login", "", `{"identifier":"claire","secret":"croissant"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	user := body["user"].(map[string]any)
	require.Equal(t, "claire", user["username"])
	require.Equal(t, "director", user["role"])
	require.NotEmpty(t, body["message"])

	res, body = do(t, http.MethodGet, srv.URL+"/api/auth/validate", token, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, true, body["valid"])

	res, body = do(t, http.MethodGet, srv.URL+"/api/whoami", token, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "7", body["id"])

	res, body = do(t, http.MethodPost, srv.URL+"/api/auth/refresh", token, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	rotated, _ := body["token"].(string)
	require.NotEmpty(t, rotated)
	require.NotEqual(t, token, rotated)

	res, body = do(t, http.MethodGet, srv.URL+"/api/auth/validate", token, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, false, body["valid"])

	res, _ = do(t, http.MethodPost, srv.URL+"/api/auth/logout", rotated, "")
	require.Equal(t, http.StatusNoContent, res.StatusCode)

	res, _ = do(t, http.MethodGet, srv.URL+"/api/whoami", rotated, "")
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	srv := newServer(t)

	res, body := do(t, http.MethodPost, srv.URL+"/api/auth/login", "", `{"identifier":"claire","secret":"nope"}`)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	require.Equal(t, "invalid username or password", body["detail"])

	res, _ = do(t, http.MethodPost, srv.URL+"/api/auth/login", "", `{"identifier":""}`)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestValidateRequiresBearer(t *testing.T) {
	srv := newServer(t)
	res, _ := do(t, http.MethodGet, srv.URL+"/api/auth/validate", "", "")
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, body := do(t, http.MethodGet, srv.URL+"/api/auth/validate", "forged.token.value", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, false, body["valid"])
}
