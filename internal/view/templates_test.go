package view

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-cafe/internal/shared"
)

func TestRenderLoginWithNotices(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	err = engine.RenderStatus(rr, http.StatusUnauthorized, "pages/login.html", TemplateData{
		Title:     "Sign in",
		CSRFToken: "csrf-123",
		Notices:   []shared.Notification{{Kind: shared.NoticeError, Message: "Invalid username or password."}},
		Data: struct {
			Next       string
			Identifier string
		}{Next: "/orders", Identifier: "claire"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
	body := rr.Body.String()
	assert.Contains(t, body, `value="csrf-123"`)
	assert.Contains(t, body, "Invalid username or password.")
	assert.Contains(t, body, `value="/orders"`)
	assert.NotContains(t, body, "Sign out")
}

func TestRenderUnknownTemplateWritesNothing(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	require.Error(t, engine.Render(rr, "pages/missing.html", TemplateData{}))
	assert.Empty(t, rr.Body.String())
}

func TestNilEngine(t *testing.T) {
	var engine *Engine
	require.Error(t, engine.Render(httptest.NewRecorder(), "pages/login.html", TemplateData{}))
}
