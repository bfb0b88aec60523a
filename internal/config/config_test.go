package config

import (
	"strings"
	"testing"
)

func TestNormalizeHTTPBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		in         string
		label      string
		want       string
		wantErrSub string
	}{
		{name: "empty ok", in: "", label: "gitee.frontend_url", want: ""},
		{name: "trim ok", in: " https://example.com/ ", label: "gitee.frontend_url", want: "https://example.com"},
		{name: "path ok", in: "https://example.com/auth/", label: "gitee.callback_url", want: "https://example.com/auth"},
		{name: "invalid scheme", in: "ftp://example.com", label: "gitee.frontend_url", wantErrSub: "gitee.frontend_url 仅支持 http/https"},
		{name: "missing host", in: "https://", label: "gitee.frontend_url", wantErrSub: "gitee.frontend_url host 不能为空"},
		{name: "parse error", in: "://bad", label: "gitee.frontend_url", wantErrSub: "解析 gitee.frontend_url 失败"},
		{name: "no label scheme", in: "ftp://example.com", label: "", wantErrSub: "base_url 仅支持 http/https"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := NormalizeHTTPBaseURL(tc.in, tc.label)
			if tc.wantErrSub != "" {
				if err == nil {
					t.Fatalf("NormalizeHTTPBaseURL(%q, %q) expected error, got nil", tc.in, tc.label)
				}
				if !strings.Contains(err.Error(), tc.wantErrSub) {
					t.Fatalf("NormalizeHTTPBaseURL(%q, %q) error = %q, want contains %q", tc.in, tc.label, err.Error(), tc.wantErrSub)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeHTTPBaseURL(%q, %q) unexpected error: %v", tc.in, tc.label, err)
			}
			if got != tc.want {
				t.Fatalf("NormalizeHTTPBaseURL(%q, %q) = %q, want %q", tc.in, tc.label, got, tc.want)
			}
		})
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := normalizeAndValidate(defaultConfig())
	if err != nil {
		t.Fatalf("normalizeAndValidate: %v", err)
	}
	if cfg.DB.Driver != "sqlite" || cfg.DB.SQLitePath == "" {
		t.Fatalf("unexpected db config: %+v", cfg.DB)
	}
	if cfg.Usage.Location == nil || cfg.Usage.Location.String() != "Asia/Shanghai" {
		t.Fatalf("unexpected usage location: %v", cfg.Usage.Location)
	}
	if cfg.Usage.Cron != "0 5 0 * * ?" || !cfg.Usage.Enable {
		t.Fatalf("unexpected usage config: %+v", cfg.Usage)
	}
	if cfg.LoginToken.ExpireMinutes != 30 {
		t.Fatalf("unexpected login token expiry: %d", cfg.LoginToken.ExpireMinutes)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("GITEELINK_DB_DSN", "u:p@tcp(127.0.0.1:3306)/giteelink")
	t.Setenv("GITEELINK_GITEE_CLIENT_ID", " cid ")
	t.Setenv("GITEELINK_GITEE_CALLBACK_URL", "https://example.com/auth/")
	t.Setenv("GITEELINK_TRUSTED_PROXY_CIDRS", "10.0.0.0/8, 127.0.0.1")
	t.Setenv("GITEELINK_REDIS_DB", "2")
	t.Setenv("GITEELINK_USAGE_REPORT_ENABLE", "false")
	t.Setenv("GITEELINK_LOGIN_TOKEN_EXPIRE_MINUTES", "not-a-number")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.DB.Driver != "mysql" {
		t.Fatalf("driver should be inferred from dsn, got %q", cfg.DB.Driver)
	}
	if cfg.Gitee.ClientID != "cid" || cfg.Gitee.CallbackURL != "https://example.com/auth" {
		t.Fatalf("unexpected gitee config: %+v", cfg.Gitee)
	}
	if len(cfg.Security.TrustedProxies) != 2 || cfg.Security.TrustedProxies[1].Bits() != 32 {
		t.Fatalf("unexpected trusted proxies: %v", cfg.Security.TrustedProxies)
	}
	if cfg.Redis.DB != 2 || cfg.Usage.Enable {
		t.Fatalf("unexpected overrides: redis=%+v usage=%+v", cfg.Redis, cfg.Usage)
	}
	if cfg.LoginToken.ExpireMinutes != 30 {
		t.Fatalf("invalid number should be ignored, got %d", cfg.LoginToken.ExpireMinutes)
	}
}

func TestNormalizeAndValidate_Rejects(t *testing.T) {
	cases := []struct {
		name       string
		mutate     func(*Config)
		wantErrSub string
	}{
		{name: "driver", mutate: func(c *Config) { c.DB.Driver = "postgres" }, wantErrSub: "db.driver 不支持"},
		{name: "mysql without dsn", mutate: func(c *Config) { c.DB.Driver = "mysql" }, wantErrSub: "db.dsn 不能为空"},
		{name: "cidr", mutate: func(c *Config) { c.Security.TrustedProxyCIDRs = []string{"10.0.0.0/99"} }, wantErrSub: "trusted_proxy_cidrs"},
		{name: "time zone", mutate: func(c *Config) { c.Usage.TimeZone = "Mars/Base" }, wantErrSub: "usage.time_zone"},
		{name: "root password", mutate: func(c *Config) { c.Security.BootstrapRootUsername = "root"; c.Security.BootstrapRootPassword = "123" }, wantErrSub: "bootstrap_root_password"},
		{name: "callback", mutate: func(c *Config) { c.Gitee.CallbackURL = "ftp://x" }, wantErrSub: "gitee.callback_url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(&cfg)
			_, err := normalizeAndValidate(cfg)
			if err == nil || !strings.Contains(err.Error(), tc.wantErrSub) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErrSub, err)
			}
		})
	}
}
