package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newRouterWithGate() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhook", RequireFormURLEncoded(), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func TestRequireFormURLEncoded_Accepts(t *testing.T) {
	r := newRouterWithGate()
	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRequireFormURLEncoded_CaseInsensitive(t *testing.T) {
	r := newRouterWithGate()
	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	req.Header.Set("Content-Type", "Application/X-WWW-Form-Urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRequireFormURLEncoded_RejectsJSON(t *testing.T) {
	r := newRouterWithGate()
	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", w.Code)
	}
}

func TestRequireFormURLEncoded_RejectsMissing(t *testing.T) {
	r := newRouterWithGate()
	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", w.Code)
	}
}
