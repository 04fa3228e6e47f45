package auth

import (
	"context"
	"testing"
)

func TestWithAuthAndFromContext(t *testing.T) {
	ac := AuthContext{
		AccountID: 1,
		Email:     "alice@example.com",
		IsAdmin:   true,
		SessionID: 3,
	}

	ctx := WithAuth(context.Background(), ac)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got.AccountID != 1 {
		t.Errorf("AccountID = %d, want 1", got.AccountID)
	}
	if got.Email != "alice@example.com" {
		t.Errorf("Email = %q, want %q", got.Email, "alice@example.com")
	}
	if !got.IsAdmin {
		t.Error("IsAdmin = false, want true")
	}
	if got.SessionID != 3 {
		t.Errorf("SessionID = %d, want 3", got.SessionID)
	}
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("expected false for missing AuthContext")
	}
}

func TestAccountID(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{AccountID: 7})
	if AccountID(ctx) != 7 {
		t.Errorf("AccountID = %d, want 7", AccountID(ctx))
	}
}

func TestAccountIDMissing(t *testing.T) {
	if AccountID(context.Background()) != 0 {
		t.Error("expected 0 for missing context")
	}
}

func TestIsAdmin(t *testing.T) {
	if !IsAdmin(WithAuth(context.Background(), AuthContext{IsAdmin: true})) {
		t.Error("expected IsAdmin = true")
	}
	if IsAdmin(WithAuth(context.Background(), AuthContext{})) {
		t.Error("expected IsAdmin = false for regular account")
	}
	if IsAdmin(context.Background()) {
		t.Error("expected IsAdmin = false for missing context")
	}
}
