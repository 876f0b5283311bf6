package console

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-cafe/internal/apiclient"
	"github.com/odyssey-erp/odyssey-cafe/internal/app"
	"github.com/odyssey-erp/odyssey-cafe/internal/rbac"
	"github.com/odyssey-erp/odyssey-cafe/internal/session"
	"github.com/odyssey-erp/odyssey-cafe/internal/shared"
	"github.com/odyssey-erp/odyssey-cafe/internal/view"
)

type fakeSession struct {
	mu        sync.Mutex
	snap      session.Snapshot
	loginOK   bool
	refreshOK bool
	logins    int
	logouts   int
}

func anonymous() session.Snapshot {
	return session.Snapshot{State: session.StateAnonymous}
}

func signedIn(role string) session.Snapshot {
	return session.Snapshot{
		State:           session.StateAuthenticated,
		User:            &shared.Principal{ID: "7", Username: "claire", Role: role, FirstName: "Claire"},
		Token:           "tok-1",
		IsAuthenticated: true,
	}
}

func (f *fakeSession) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSession) set(s session.Snapshot) {
	f.mu.Lock()
	f.snap = s
	f.mu.Unlock()
}

func (f *fakeSession) Login(_ context.Context, identifier, secret string) session.LoginResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	if !f.loginOK || secret == "" {
		return session.LoginResult{Message: "Invalid username or password."}
	}
	f.snap = signedIn("director")
	f.snap.User.Username = identifier
	return session.LoginResult{Success: true, User: *f.snap.User}
}

func (f *fakeSession) Logout(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	f.snap = anonymous()
}

func (f *fakeSession) RefreshToken(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshOK
}

type fixture struct {
	sess    *fakeSession
	nav     *Navigator
	notices *Notices
	csrf    *CSRFManager
	handler http.Handler
}

func newFixture(t *testing.T, backend http.Handler) *fixture {
	t.Helper()
	t.Setenv("ODYSSEY_TEST_MODE", "1")
	app.RefreshTestMode()

	views, err := view.NewEngine()
	require.NoError(t, err)
	f := &fixture{
		sess:    &fakeSession{snap: anonymous()},
		nav:     &Navigator{},
		notices: NewNotices(0),
		csrf:    NewCSRFManager("test-secret", false),
	}
	f.handler = NewHandler(Config{
		App:       &app.Config{AppEnv: "development"},
		Session:   f.sess,
		Views:     views,
		CSRF:      f.csrf,
		Notices:   f.notices,
		Navigator: f.nav,
		Backend:   backend,
	}).Routes()
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

// csrfCookie issues a signed token the way a page render would.
func (f *fixture) csrfCookie(t *testing.T) *http.Cookie {
	t.Helper()
	token := f.csrf.EnsureToken(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, token)
	return &http.Cookie{Name: CSRFCookieName, Value: token}
}

func (f *fixture) post(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	cookie := f.csrfCookie(t)
	if form == nil {
		form = url.Values{}
	}
	form.Set(CSRFFormField, cookie.Value)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	return f.do(req)
}

func TestLoginRequiresCSRFToken(t *testing.T) {
	f := newFixture(t, nil)
	f.sess.loginOK = true

	form := url.Values{"identifier": {"claire"}, "secret": {"pw"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := f.do(req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Zero(t, f.sess.logins)
}

func TestLoginSuccessRedirectsToNext(t *testing.T) {
	f := newFixture(t, nil)
	f.sess.loginOK = true

	rr := f.post(t, "/login", url.Values{"identifier": {"claire"}, "secret": {"pw"}, "next": {"/modules/orders"}})

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/modules/orders", rr.Header().Get("Location"))
	assert.True(t, f.sess.Snapshot().IsAuthenticated)
}

func TestLoginIgnoresForeignNext(t *testing.T) {
	f := newFixture(t, nil)
	f.sess.loginOK = true

	rr := f.post(t, "/login", url.Values{"identifier": {"claire"}, "secret": {"pw"}, "next": {"//evil.example"}})

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))
}

func TestLoginFailureRendersForm(t *testing.T) {
	f := newFixture(t, nil)

	rr := f.post(t, "/login", url.Values{"identifier": {"claire"}, "secret": {"bad"}})

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), `value="claire"`)
	assert.False(t, f.sess.Snapshot().IsAuthenticated)
}

func TestLoginFormRedirectsWhenSignedIn(t *testing.T) {
	f := newFixture(t, nil)
	f.sess.set(signedIn("employee"))

	rr := f.do(httptest.NewRequest(http.MethodGet, "/login?next=/modules/menu", nil))

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/modules/menu", rr.Header().Get("Location"))
}

func TestDashboardRedirectsAnonymous(t *testing.T) {
	f := newFixture(t, nil)

	rr := f.do(httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login?next=%2F", rr.Header().Get("Location"))
}

func TestGuardedPageRendersLoading(t *testing.T) {
	f := newFixture(t, nil)
	f.sess.set(session.Snapshot{State: session.StateUnknown, IsLoading: true})

	rr := f.do(httptest.NewRequest(http.MethodGet, "/modules/orders", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	assert.Contains(t, rr.Body.String(), "Checking your session")
}

func TestDashboardListsAccessibleModules(t *testing.T) {
	f := newFixture(t, nil)
	f.sess.set(signedIn("employee"))

	rr := f.do(httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `href="/modules/orders"`)
	assert.NotContains(t, body, `href="/modules/accounting"`)
	assert.NotContains(t, body, `href="/employees"`)
}

func TestEmployeesPageIsDirectorOnly(t *testing.T) {
	f := newFixture(t, nil)
	f.sess.set(signedIn("employee"))

	rr := f.do(httptest.NewRequest(http.MethodGet, "/employees", nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "director")

	f.sess.set(signedIn("Directeur"))
	rr = f.do(httptest.NewRequest(http.MethodGet, "/employees", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestUnknownModuleIsNotFound(t *testing.T) {
	f := newFixture(t, nil)
	f.sess.set(signedIn("director"))

	rr := f.do(httptest.NewRequest(http.MethodGet, "/modules/spaceships", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCustomerDeniedModule(t *testing.T) {
	f := newFixture(t, nil)
	f.sess.set(signedIn("customer"))

	rr := f.do(httptest.NewRequest(http.MethodGet, "/modules/orders", nil))

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestNavigatorRedirectIsFollowedOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.sess.set(signedIn("director"))
	f.nav.RedirectToLogin()

	rr := f.do(httptest.NewRequest(http.MethodGet, "/modules/menu", nil))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login?next=%2Fmodules%2Fmenu", rr.Header().Get("Location"))

	rr = f.do(httptest.NewRequest(http.MethodGet, "/modules/menu", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestLogoutSignsOutAndRedirects(t *testing.T) {
	f := newFixture(t, nil)
	f.sess.set(signedIn("director"))

	rr := f.post(t, "/logout", nil)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
	assert.Equal(t, 1, f.sess.logouts)
}

func TestRefreshQueuesNotice(t *testing.T) {
	f := newFixture(t, nil)
	f.sess.set(signedIn("director"))
	f.sess.refreshOK = true

	rr := f.post(t, "/session/refresh", nil)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))

	notes := f.notices.Drain()
	require.Len(t, notes, 1)
	assert.Equal(t, shared.NoticeSuccess, notes[0].Kind)
}

func TestRefreshFailureSendsToLogin(t *testing.T) {
	f := newFixture(t, nil)
	f.sess.set(signedIn("director"))

	rr := f.post(t, "/session/refresh", nil)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
}

func TestSessionStateReportsPermissionsAndRedirect(t *testing.T) {
	f := newFixture(t, nil)
	f.sess.set(signedIn("employee"))
	f.nav.RedirectToLogin()
	f.notices.Notify(shared.Notification{Kind: shared.NoticeInfo, Message: "hello"})

	rr := f.do(httptest.NewRequest(http.MethodGet, "/api/session", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		State           string `json:"state"`
		IsAuthenticated bool   `json:"isAuthenticated"`
		User            struct {
			Username string `json:"username"`
		} `json:"user"`
		Permissions map[string]map[string]bool `json:"permissions"`
		Redirect    string                     `json:"redirect"`
		Notices     []shared.Notification      `json:"notices"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "authenticated", body.State)
	assert.True(t, body.IsAuthenticated)
	assert.Equal(t, "claire", body.User.Username)
	assert.True(t, body.Permissions["orders"]["view"])
	assert.False(t, body.Permissions["orders"]["delete"])
	assert.Len(t, body.Permissions["orders"], len(rbac.Actions()))
	assert.Equal(t, "/login", body.Redirect)
	assert.Len(t, body.Notices, 1)
	assert.False(t, f.nav.Pending())
}

func TestBackendProxyAttachesCurrentToken(t *testing.T) {
	var (
		mu   sync.Mutex
		auth string
		path string
	)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(backend.Close)

	var f *fixture
	client, err := apiclient.New(apiclient.Config{
		BaseURL: backend.URL + "/api",
		Tokens:  apiclient.TokenSourceFunc(func() string { return f.sess.Snapshot().Token }),
	})
	require.NoError(t, err)
	proxy := NewBackendProxy(client.BaseURL(), client.Transport(nil), nil)
	f = newFixture(t, proxy)
	f.sess.set(signedIn("director"))

	req := httptest.NewRequest(http.MethodGet, "/backend/orders", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rr := f.do(req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer tok-1", auth)
	assert.Equal(t, "/api/orders", path)
}

func TestBackendProxyRequiresSession(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("backend reached without session")
	}))

	rr := f.do(httptest.NewRequest(http.MethodGet, "/backend/orders", nil))

	assert.Equal(t, http.StatusSeeOther, rr.Code)
}
