// Package config 负责读取服务配置（以环境变量为准），避免在业务代码里散落解析逻辑。
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "GITEELINK_"

type Config struct {
	Env        string
	Server     ServerConfig
	DB         DBConfig
	Security   SecurityConfig
	Redis      RedisConfig
	Gitee      GiteeConfig
	LoginToken LoginTokenConfig
	Analysis   AnalysisConfig
	Usage      UsageConfig
}

type ServerConfig struct {
	Addr          string
	PublicBaseURL string

	ReadHeaderTimeoutSeconds int
	ReadTimeoutSeconds       int
	WriteTimeoutSeconds      int
	IdleTimeoutSeconds       int
	MaxHeaderBytes           int

	// 公开 JSON API 的请求体上限，<= 0 表示不限制。
	MaxBodyBytes int64
}

type DBConfig struct {
	// Driver 支持 mysql/sqlite；为空时 DSN 非空推断为 mysql，否则 sqlite。
	Driver string
	// DSN 仅用于 MySQL（示例：user:pass@tcp(127.0.0.1:3306)/giteelink?charset=utf8mb4）。
	DSN        string
	SQLitePath string
}

type SecurityConfig struct {
	SessionSecret        string
	DisableSecureCookies bool

	TrustProxyHeaders bool
	TrustedProxyCIDRs []string
	TrustedProxies    []netip.Prefix

	// 首次启动且没有任何用户时创建 root 账号。
	BootstrapRootUsername string
	BootstrapRootPassword string
}

type RedisConfig struct {
	// Addr 为空时使用进程内存存储临时状态（仅适合单实例）。
	Addr     string
	Password string
	DB       int
}

type GiteeConfig struct {
	ClientID        string
	ClientSecret    string
	CallbackURL     string
	FrontendURL     string
	ProfileRedirect string

	AuthorizeURL string
	TokenURL     string
	APIBaseURL   string

	ConnectTimeoutSeconds int
	ReadTimeoutSeconds    int

	StateTTLMinutes     int
	BindTokenTTLMinutes int
}

type LoginTokenConfig struct {
	Secret        string
	ExpireMinutes int
}

type AnalysisConfig struct {
	Endpoint    string
	APIKey      string
	AssistantID string

	ConnectTimeoutSeconds int
	ReadTimeoutSeconds    int
}

type UsageConfig struct {
	Enable   bool
	Cron     string
	TimeZone string

	Location *time.Location
}

// LoadFromEnv 仅从环境变量加载配置（.env 由 main 预先载入进程环境）。
func LoadFromEnv() (Config, error) {
	cfg := defaultConfig()
	applyEnvOverrides(&cfg)
	return normalizeAndValidate(cfg)
}

func normalizeAndValidate(cfg Config) (Config, error) {
	cfg.Env = strings.TrimSpace(cfg.Env)
	if cfg.Env == "" {
		cfg.Env = "dev"
	}

	publicBaseURL, err := NormalizeHTTPBaseURL(cfg.Server.PublicBaseURL, "server.public_base_url")
	if err != nil {
		return Config{}, err
	}
	cfg.Server.PublicBaseURL = publicBaseURL
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return Config{}, errors.New("server.addr 不能为空")
	}

	cfg.DB.Driver = strings.ToLower(strings.TrimSpace(cfg.DB.Driver))
	cfg.DB.DSN = strings.TrimSpace(cfg.DB.DSN)
	cfg.DB.SQLitePath = strings.TrimSpace(cfg.DB.SQLitePath)
	if cfg.DB.Driver == "" {
		if cfg.DB.DSN != "" {
			cfg.DB.Driver = "mysql"
		} else {
			cfg.DB.Driver = "sqlite"
		}
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if cfg.DB.SQLitePath == "" {
			cfg.DB.SQLitePath = "./data/giteelink.db?_busy_timeout=30000"
		}
	case "mysql":
		if cfg.DB.DSN == "" {
			return Config{}, errors.New("db.dsn 不能为空（db.driver=mysql）")
		}
	default:
		return Config{}, fmt.Errorf("db.driver 不支持：%s（仅支持 mysql/sqlite）", cfg.DB.Driver)
	}

	cfg.Security.TrustedProxies = nil
	for _, raw := range cfg.Security.TrustedProxyCIDRs {
		pfx, err := parsePrefix(raw)
		if err != nil {
			return Config{}, fmt.Errorf("security.trusted_proxy_cidrs 不合法（%s）: %w", raw, err)
		}
		cfg.Security.TrustedProxies = append(cfg.Security.TrustedProxies, pfx)
	}
	cfg.Security.BootstrapRootUsername = strings.TrimSpace(cfg.Security.BootstrapRootUsername)
	if cfg.Security.BootstrapRootUsername != "" && len(cfg.Security.BootstrapRootPassword) < 8 {
		return Config{}, errors.New("security.bootstrap_root_password 至少 8 位")
	}

	cfg.Redis.Addr = strings.TrimSpace(cfg.Redis.Addr)
	if cfg.Redis.DB < 0 {
		return Config{}, errors.New("redis.db 不能为负数")
	}

	cfg.Gitee.ClientID = strings.TrimSpace(cfg.Gitee.ClientID)
	cfg.Gitee.ClientSecret = strings.TrimSpace(cfg.Gitee.ClientSecret)
	if cfg.Gitee.CallbackURL, err = NormalizeHTTPBaseURL(cfg.Gitee.CallbackURL, "gitee.callback_url"); err != nil {
		return Config{}, err
	}
	if cfg.Gitee.FrontendURL, err = NormalizeHTTPBaseURL(cfg.Gitee.FrontendURL, "gitee.frontend_url"); err != nil {
		return Config{}, err
	}
	for _, p := range []struct {
		v     *string
		label string
	}{
		{&cfg.Gitee.AuthorizeURL, "gitee.authorize_url"},
		{&cfg.Gitee.TokenURL, "gitee.token_url"},
		{&cfg.Gitee.APIBaseURL, "gitee.api_base_url"},
		{&cfg.Analysis.Endpoint, "analysis.endpoint"},
	} {
		if *p.v, err = NormalizeHTTPBaseURL(*p.v, p.label); err != nil {
			return Config{}, err
		}
	}

	if cfg.LoginToken.ExpireMinutes <= 0 {
		cfg.LoginToken.ExpireMinutes = 30
	}

	cfg.Usage.Cron = strings.TrimSpace(cfg.Usage.Cron)
	cfg.Usage.TimeZone = strings.TrimSpace(cfg.Usage.TimeZone)
	if cfg.Usage.TimeZone == "" {
		cfg.Usage.TimeZone = "Asia/Shanghai"
	}
	loc, err := time.LoadLocation(cfg.Usage.TimeZone)
	if err != nil {
		return Config{}, fmt.Errorf("usage.time_zone 不合法: %w", err)
	}
	cfg.Usage.Location = loc

	return cfg, nil
}

func NormalizeHTTPBaseURL(raw string, label string) (string, error) {
	v := strings.TrimRight(strings.TrimSpace(raw), "/")
	if v == "" {
		return "", nil
	}
	u, err := url.Parse(v)
	if err != nil {
		if strings.TrimSpace(label) == "" {
			return "", fmt.Errorf("解析 base_url 失败: %w", err)
		}
		return "", fmt.Errorf("解析 %s 失败: %w", label, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		if strings.TrimSpace(label) == "" {
			return "", errors.New("base_url 仅支持 http/https")
		}
		return "", fmt.Errorf("%s 仅支持 http/https", label)
	}
	if u.Host == "" {
		if strings.TrimSpace(label) == "" {
			return "", errors.New("base_url host 不能为空")
		}
		return "", fmt.Errorf("%s host 不能为空", label)
	}
	return v, nil
}

// parsePrefix 接受 CIDR 或单个 IP。
func parsePrefix(raw string) (netip.Prefix, error) {
	s := strings.TrimSpace(raw)
	if strings.Contains(s, "/") {
		return netip.ParsePrefix(s)
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func defaultConfig() Config {
	return Config{
		Env: "dev",
		Server: ServerConfig{
			Addr: ":8080",

			ReadHeaderTimeoutSeconds: 5,
			ReadTimeoutSeconds:       30,
			WriteTimeoutSeconds:      240,
			IdleTimeoutSeconds:       120,
			MaxHeaderBytes:           1 << 20,

			MaxBodyBytes: 1 << 20,
		},
		DB: DBConfig{
			SQLitePath: "./data/giteelink.db?_busy_timeout=30000",
		},
		Gitee: GiteeConfig{
			ConnectTimeoutSeconds: 3,
			ReadTimeoutSeconds:    8,
			StateTTLMinutes:       10,
			BindTokenTTLMinutes:   10,
		},
		LoginToken: LoginTokenConfig{
			ExpireMinutes: 30,
		},
		Analysis: AnalysisConfig{
			ConnectTimeoutSeconds: 30,
			ReadTimeoutSeconds:    180,
		},
		Usage: UsageConfig{
			Enable:   true,
			Cron:     "0 5 0 * * ?",
			TimeZone: "Asia/Shanghai",
		},
	}
}

func env(name string) string {
	return os.Getenv(envPrefix + name)
}

func envString(name string, dst *string) {
	if v := env(name); v != "" {
		*dst = v
	}
}

func envBool(name string, dst *bool) {
	if v := env(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envInt(name string, dst *int) {
	if v := env(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			*dst = n
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	envString("ENV", &cfg.Env)

	envString("ADDR", &cfg.Server.Addr)
	envString("PUBLIC_BASE_URL", &cfg.Server.PublicBaseURL)
	envInt("SERVER_READ_HEADER_TIMEOUT_SECONDS", &cfg.Server.ReadHeaderTimeoutSeconds)
	envInt("SERVER_READ_TIMEOUT_SECONDS", &cfg.Server.ReadTimeoutSeconds)
	envInt("SERVER_WRITE_TIMEOUT_SECONDS", &cfg.Server.WriteTimeoutSeconds)
	envInt("SERVER_IDLE_TIMEOUT_SECONDS", &cfg.Server.IdleTimeoutSeconds)
	envInt("SERVER_MAX_HEADER_BYTES", &cfg.Server.MaxHeaderBytes)
	if v := env("MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Server.MaxBodyBytes = n
		}
	}

	envString("DB_DRIVER", &cfg.DB.Driver)
	envString("DB_DSN", &cfg.DB.DSN)
	envString("SQLITE_PATH", &cfg.DB.SQLitePath)

	envString("SESSION_SECRET", &cfg.Security.SessionSecret)
	envBool("DISABLE_SECURE_COOKIES", &cfg.Security.DisableSecureCookies)
	envBool("TRUST_PROXY_HEADERS", &cfg.Security.TrustProxyHeaders)
	if v := env("TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.Security.TrustedProxyCIDRs = splitCSV(v)
	}
	envString("BOOTSTRAP_ROOT_USERNAME", &cfg.Security.BootstrapRootUsername)
	envString("BOOTSTRAP_ROOT_PASSWORD", &cfg.Security.BootstrapRootPassword)

	envString("REDIS_ADDR", &cfg.Redis.Addr)
	envString("REDIS_PASSWORD", &cfg.Redis.Password)
	envInt("REDIS_DB", &cfg.Redis.DB)

	envString("GITEE_CLIENT_ID", &cfg.Gitee.ClientID)
	envString("GITEE_CLIENT_SECRET", &cfg.Gitee.ClientSecret)
	envString("GITEE_CALLBACK_URL", &cfg.Gitee.CallbackURL)
	envString("GITEE_FRONTEND_URL", &cfg.Gitee.FrontendURL)
	envString("GITEE_PROFILE_REDIRECT", &cfg.Gitee.ProfileRedirect)
	envString("GITEE_AUTHORIZE_URL", &cfg.Gitee.AuthorizeURL)
	envString("GITEE_TOKEN_URL", &cfg.Gitee.TokenURL)
	envString("GITEE_API_BASE_URL", &cfg.Gitee.APIBaseURL)
	envInt("GITEE_CONNECT_TIMEOUT_SECONDS", &cfg.Gitee.ConnectTimeoutSeconds)
	envInt("GITEE_READ_TIMEOUT_SECONDS", &cfg.Gitee.ReadTimeoutSeconds)
	envInt("GITEE_STATE_TTL_MINUTES", &cfg.Gitee.StateTTLMinutes)
	envInt("GITEE_BIND_TOKEN_TTL_MINUTES", &cfg.Gitee.BindTokenTTLMinutes)

	envString("LOGIN_TOKEN_SECRET", &cfg.LoginToken.Secret)
	envInt("LOGIN_TOKEN_EXPIRE_MINUTES", &cfg.LoginToken.ExpireMinutes)

	envString("ANALYSIS_ENDPOINT", &cfg.Analysis.Endpoint)
	envString("ANALYSIS_API_KEY", &cfg.Analysis.APIKey)
	envString("ANALYSIS_ASSISTANT_ID", &cfg.Analysis.AssistantID)
	envInt("ANALYSIS_CONNECT_TIMEOUT_SECONDS", &cfg.Analysis.ConnectTimeoutSeconds)
	envInt("ANALYSIS_READ_TIMEOUT_SECONDS", &cfg.Analysis.ReadTimeoutSeconds)

	envBool("USAGE_REPORT_ENABLE", &cfg.Usage.Enable)
	envString("USAGE_REPORT_CRON", &cfg.Usage.Cron)
	envString("USAGE_REPORT_TIME_ZONE", &cfg.Usage.TimeZone)
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
