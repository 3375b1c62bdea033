package utils

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	token, err := tm.GenerateToken(7, "alice", "sess-1")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	claims, err := tm.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
	if claims.UserId != 7 || claims.Username != "alice" || claims.SessionToken != "sess-1" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	other := NewTokenManager("other", time.Hour)
	if _, err := other.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expect ErrInvalidToken for wrong secret, got %v", err)
	}
	if _, err := tm.VerifyToken("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expect ErrInvalidToken for garbage, got %v", err)
	}
}

func TestPassword(t *testing.T) {
	hash := GetPwd("123456")
	if !CheckPwd("123456", hash) {
		t.Fatal("password should match")
	}
	if CheckPwd("654321", hash) {
		t.Fatal("wrong password should not match")
	}
	if CheckPwd("", "") {
		t.Fatal("empty hash must never match")
	}
}

func newAuthRouter(tm *TokenManager, optional bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	mw := AuthMiddleware(tm, nil)
	if optional {
		mw = OptionalAuthMiddleware(tm, nil)
	}
	r.GET("/x", mw, func(c *gin.Context) {
		id, ok := CurrentUserID(c)
		c.JSON(http.StatusOK, gin.H{"id": id, "auth": ok})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	token, _ := tm.GenerateToken(3, "bob", "s")

	cases := []struct {
		optional bool
		header   string
		status   int
		body     string
	}{
		{false, "", http.StatusUnauthorized, "unauthorized"},
		{false, "Bearer " + token, http.StatusOK, `"id":3`},
		{false, "Token " + token, http.StatusUnauthorized, "unauthorized"},
		{true, "", http.StatusOK, `"auth":false`},
		{true, "Bearer " + token, http.StatusOK, `"auth":true`},
		{true, "Bearer nope", http.StatusUnauthorized, "unauthorized"},
	}
	for _, tc := range cases {
		r := newAuthRouter(tm, tc.optional)
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.status || !strings.Contains(w.Body.String(), tc.body) {
			t.Fatalf("optional=%v header=%q: got %d %s", tc.optional, tc.header, w.Code, w.Body.String())
		}
	}
}

func TestContentDisposition(t *testing.T) {
	got := ContentDisposition("résumé \"v2\".pdf")
	if !strings.Contains(got, `filename="r_sum_ v2.pdf"`) {
		t.Fatalf("unexpected ascii fallback: %s", got)
	}
	if !strings.Contains(got, "filename*=UTF-8''r%C3%A9sum%C3%A9%20v2.pdf") {
		t.Fatalf("unexpected utf-8 name: %s", got)
	}
	if SanitizeHeaderFilename("  ") != "download" {
		t.Fatal("blank names should fall back to download")
	}
}
