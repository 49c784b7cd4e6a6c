package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func runMiddleware(mw gin.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	mw(c)
	return w
}

func TestAuthMiddlewareAllowsWhenKeyEmpty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	w := runMiddleware(AuthMiddleware(""), req)
	if w.Code == http.StatusUnauthorized {
		t.Errorf("status = %d, want no rejection when apiKey is empty", w.Code)
	}
}

func TestAuthMiddlewareRejectsMissingKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	w := runMiddleware(AuthMiddleware("secret"), req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for a missing key", w.Code)
	}
}

func TestAuthMiddlewareAcceptsXApiKeyHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("x-api-key", "secret")
	w := runMiddleware(AuthMiddleware("secret"), req)
	if w.Code == http.StatusUnauthorized {
		t.Errorf("status = %d, want the x-api-key header to authenticate", w.Code)
	}
}

func TestAuthMiddlewareAcceptsBearerAuthorizationHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := runMiddleware(AuthMiddleware("secret"), req)
	if w.Code == http.StatusUnauthorized {
		t.Errorf("status = %d, want a Bearer Authorization header to authenticate", w.Code)
	}
}

func TestAuthMiddlewareRejectsWrongKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("x-api-key", "wrong")
	w := runMiddleware(AuthMiddleware("secret"), req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for a wrong key", w.Code)
	}
}

func TestCorsMiddlewareHandlesPreflightOptions(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/v1/models", nil)
	w := runMiddleware(corsMiddleware(), req)
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204 for an OPTIONS preflight", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected permissive CORS origin header")
	}
}
