package security

import (
	"crypto/tls"
	"net/http/httptest"
	"net/netip"
	"testing"
)

var trusted10 = ProxyTrust{Enabled: true, Prefixes: []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}}

func TestDeriveBaseURL_IgnoresForwardedHostWhenUntrusted(t *testing.T) {
	r := httptest.NewRequest("GET", "http://example.com/", nil)
	r.RemoteAddr = "203.0.113.10:1234"
	r.Header.Set("X-Forwarded-Proto", "https")
	r.Header.Set("X-Forwarded-Host", "evil.example.com")

	if got := DeriveBaseURL(r, trusted10); got != "https://example.com" {
		t.Fatalf("expected forwarded host to be ignored, got %q", got)
	}
}

func TestDeriveBaseURL_UsesForwardedWhenTrusted(t *testing.T) {
	r := httptest.NewRequest("GET", "http://internal.local/", nil)
	r.RemoteAddr = "10.1.2.3:1234"
	r.Header.Set("X-Forwarded-Proto", "https, http")
	r.Header.Set("X-Forwarded-Host", "git.example.com, internal.local")

	if got := DeriveBaseURL(r, trusted10); got != "https://git.example.com" {
		t.Fatalf("expected forwarded headers to be used, got %q", got)
	}
	if got := DeriveBaseURL(r, ProxyTrust{Prefixes: trusted10.Prefixes}); got != "https://internal.local" {
		t.Fatalf("disabled trust should ignore forwarded host, got %q", got)
	}
}

func TestDeriveBaseURL_RejectsInvalidForwardedValues(t *testing.T) {
	r := httptest.NewRequest("GET", "http://example.com/", nil)
	r.RemoteAddr = "10.1.2.3:1234"
	r.Header.Set("X-Forwarded-Proto", "ftp")
	r.Header.Set("X-Forwarded-Host", "evil.example.com/path")

	if got := DeriveBaseURL(r, trusted10); got != "http://example.com" {
		t.Fatalf("expected invalid forwarded values to be ignored, got %q", got)
	}
}

func TestDeriveBaseURL_TLS(t *testing.T) {
	r := httptest.NewRequest("GET", "http://example.com/", nil)
	r.TLS = &tls.ConnectionState{}
	if got := DeriveBaseURL(r, ProxyTrust{}); got != "https://example.com" {
		t.Fatalf("got %q", got)
	}
}

func TestCallbackURL(t *testing.T) {
	r := httptest.NewRequest("GET", "http://example.com/gitlogin", nil)
	if got := CallbackURL(" https://cfg.example.com/auth ", r, ProxyTrust{}); got != "https://cfg.example.com/auth" {
		t.Fatalf("configured value should win, got %q", got)
	}
	if got := CallbackURL("", r, ProxyTrust{}); got != "http://example.com/auth" {
		t.Fatalf("derived callback = %q", got)
	}
}
