package service

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/cocdeshijie/MikaniroBytes/internal/dto"
	"github.com/cocdeshijie/MikaniroBytes/model"
)

func TestRegisterLoginLogout(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	uid := e.register(t, "henry")

	if _, err := e.auth.Register(ctx, dto.RegisterRequest{Username: "henry", Password: "x"}); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("duplicate username should fail, got %v", err)
	}
	me, err := e.auth.Me(ctx, uid)
	if err != nil || me.Group == nil || me.Group.Name != model.GroupUsers {
		t.Fatalf("new user should join USERS: %+v %v", me, err)
	}

	if _, err := e.auth.Login(ctx, "henry", "wrong", "", ""); err != ErrInvalidLogin {
		t.Fatalf("expect invalid login, got %v", err)
	}
	resp, err := e.auth.Login(ctx, "henry", "pw-henry", "127.0.0.1", strings.Repeat("a", 200))
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.TokenType != "bearer" || !e.auth.CheckToken(ctx, resp.AccessToken) {
		t.Fatalf("token should be valid: %+v", resp)
	}

	sessions, err := e.auth.Sessions(ctx, uid)
	if err != nil || len(sessions) != 1 || len(sessions[0].ClientName) != maxClientNameLen {
		t.Fatalf("unexpected sessions %+v %v", sessions, err)
	}
	claims, err := e.auth.tokens.VerifyToken(resp.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.auth.Logout(ctx, claims.SessionToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if e.auth.CheckToken(ctx, resp.AccessToken) {
		t.Fatal("token must be rejected after logout")
	}
}

func TestRevokeForeignSession(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.register(t, "ivy")
	b := e.register(t, "jack")
	if _, err := e.auth.Login(ctx, "ivy", "pw-ivy", "", ""); err != nil {
		t.Fatal(err)
	}
	sessions, _ := e.auth.Sessions(ctx, a)
	if err := e.auth.RevokeSession(ctx, b, sessions[0].ID); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expect 403, got %v", err)
	}
	if err := e.auth.RevokeSession(ctx, a, sessions[0].ID); err != nil {
		t.Fatal(err)
	}
	if left, _ := e.auth.Sessions(ctx, a); len(left) != 0 {
		t.Fatalf("session should be gone: %+v", left)
	}
}

func TestRegistrationDisabled(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	off := false
	if _, err := e.admin.UpdateSettings(ctx, dto.SettingsUpdateRequest{RegistrationEnabled: &off}); err != nil {
		t.Fatal(err)
	}
	if ok, _ := e.auth.RegistrationEnabled(ctx); ok {
		t.Fatal("registration should be reported closed")
	}
	if _, err := e.auth.Register(ctx, dto.RegisterRequest{Username: "kim", Password: "x"}); statusOf(err) != http.StatusForbidden {
		t.Fatalf("expect 403, got %v", err)
	}
}

func TestChangeCredentials(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	uid := e.register(t, "leo")

	for _, name := range []string{"", "leo", "Guest", "admin"} {
		if _, err := e.auth.ChangeUsername(ctx, uid, name); statusOf(err) != http.StatusBadRequest {
			t.Fatalf("rename to %q should fail, got %v", name, err)
		}
	}
	got, err := e.auth.ChangeUsername(ctx, uid, "leon")
	if err != nil || got != "leon" {
		t.Fatalf("rename failed: %s %v", got, err)
	}
	if ident := e.identity(t, uid); ident.Username != "leon" {
		t.Fatalf("identity cache not refreshed: %+v", ident)
	}

	if err := e.auth.ChangePassword(ctx, uid, "bad", "new"); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("expect old password check, got %v", err)
	}
	if err := e.auth.ChangePassword(ctx, uid, "pw-leo", "new-secret"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.auth.Login(ctx, "leon", "new-secret", "", ""); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}
