package auth

import (
	"strings"
	"testing"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	if _, err := HashPassword("short"); err == nil {
		t.Fatalf("expected error for short password")
	}
	h, err := HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(h, "correct-horse") {
		t.Fatalf("expected match")
	}
	if CheckPassword(h, "wrong-horse") {
		t.Fatalf("expected mismatch")
	}
}

func TestNewTempPassword(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		pw, err := NewTempPassword(12)
		if err != nil {
			t.Fatalf("NewTempPassword: %v", err)
		}
		if len(pw) != 12 {
			t.Fatalf("len = %d", len(pw))
		}
		for _, r := range pw {
			if !strings.ContainsRune(tempPasswordAlphabet, r) {
				t.Fatalf("unexpected rune %q in %q", r, pw)
			}
		}
		seen[pw] = true
	}
	if len(seen) < 19 {
		t.Fatalf("passwords should be random, got %d distinct", len(seen))
	}
}

func TestNewCompactUUID(t *testing.T) {
	v := NewCompactUUID()
	if len(v) != 32 || strings.Contains(v, "-") {
		t.Fatalf("unexpected compact uuid %q", v)
	}
}
