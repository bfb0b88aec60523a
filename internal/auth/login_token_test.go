package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"giteelink/internal/ephemeral"
)

func newTestLoginTokens(t *testing.T) (*LoginTokens, *ephemeral.MemoryStore) {
	t.Helper()
	st := ephemeral.NewMemoryStore()
	lt, err := NewLoginTokens(LoginTokenConfig{Secret: "test-secret", ExpireMinutes: 30}, st)
	if err != nil {
		t.Fatalf("NewLoginTokens: %v", err)
	}
	return lt, st
}

func TestLoginTokens_IssueRedeemOnce(t *testing.T) {
	lt, _ := newTestLoginTokens(t)
	ctx := context.Background()

	tok, err := lt.Issue(ctx, 42, "alice")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	sess, err := lt.Redeem(ctx, tok)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if sess.UserID != 42 || sess.Username != "alice" {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if _, err := lt.Redeem(ctx, tok); !errors.Is(err, ErrLoginTokenInvalid) {
		t.Fatalf("second redeem should fail, got %v", err)
	}
}

func TestLoginTokens_UsesHS512AndLoginKey(t *testing.T) {
	lt, st := newTestLoginTokens(t)
	ctx := context.Background()

	tok, err := lt.Issue(ctx, 7, "bob")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(tok, &loginClaims{})
	if err != nil {
		t.Fatalf("ParseUnverified: %v", err)
	}
	if parsed.Method.Alg() != "HS512" {
		t.Fatalf("alg = %s", parsed.Method.Alg())
	}
	claims := parsed.Claims.(*loginClaims)
	if claims.Subject != "7" || claims.Username != "bob" || claims.LoginUserKey == "" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if _, ok, _ := st.Get(ctx, ephemeral.LoginTokenKey(claims.LoginUserKey)); !ok {
		t.Fatalf("expected login key in store")
	}
}

func TestLoginTokens_RejectsExpired(t *testing.T) {
	lt, _ := newTestLoginTokens(t)
	ctx := context.Background()

	tok, err := lt.Issue(ctx, 1, "a")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	lt.now = func() time.Time { return time.Now().Add(31 * time.Minute) }
	if _, err := lt.Redeem(ctx, tok); !errors.Is(err, ErrLoginTokenInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
}

func TestLoginTokens_RejectsForeignSignature(t *testing.T) {
	lt, _ := newTestLoginTokens(t)
	ctx := context.Background()

	tok, err := lt.Issue(ctx, 1, "a")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(tok, &loginClaims{})
	if err != nil {
		t.Fatalf("ParseUnverified: %v", err)
	}

	for name, method := range map[string]jwt.SigningMethod{"hs256": jwt.SigningMethodHS256, "hs512": jwt.SigningMethodHS512} {
		secret := []byte("test-secret")
		if name == "hs512" {
			secret = []byte("other-secret")
		}
		forged, err := jwt.NewWithClaims(method, parsed.Claims).SignedString(secret)
		if err != nil {
			t.Fatalf("SignedString(%s): %v", name, err)
		}
		if _, err := lt.Redeem(ctx, forged); !errors.Is(err, ErrLoginTokenInvalid) {
			t.Fatalf("%s: expected invalid, got %v", name, err)
		}
	}

	// 原凭证未被伪造请求消费。
	if _, err := lt.Redeem(ctx, tok); err != nil {
		t.Fatalf("Redeem original: %v", err)
	}
}

func TestLoginTokens_RejectsBlankAndMissingSecret(t *testing.T) {
	lt, _ := newTestLoginTokens(t)
	if _, err := lt.Redeem(context.Background(), "  "); !errors.Is(err, ErrLoginTokenInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
	if _, err := NewLoginTokens(LoginTokenConfig{}, ephemeral.NewMemoryStore()); err == nil {
		t.Fatalf("expected error for blank secret")
	}
	if _, err := lt.Issue(context.Background(), 0, "x"); err == nil {
		t.Fatalf("expected error for zero user id")
	}
}

func TestLoginTokens_DefaultExpiry(t *testing.T) {
	lt, err := NewLoginTokens(LoginTokenConfig{Secret: "s"}, ephemeral.NewMemoryStore())
	if err != nil {
		t.Fatalf("NewLoginTokens: %v", err)
	}
	if lt.ttl != 30*time.Minute {
		t.Fatalf("ttl = %v", lt.ttl)
	}
}
