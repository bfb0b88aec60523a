// Package server 组装依赖、中间件与 HTTP 路由，使 main 保持简单可读。
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"giteelink/internal/analysis"
	"giteelink/internal/auth"
	"giteelink/internal/config"
	"giteelink/internal/ephemeral"
	"giteelink/internal/gitee"
	"giteelink/internal/giteeoauth"
	"giteelink/internal/limits"
	"giteelink/internal/middleware"
	"giteelink/internal/security"
	"giteelink/internal/store"
	"giteelink/internal/usage"
	"giteelink/internal/version"
	"giteelink/router"
)

// requestTimeoutSlack 在评测接口读超时之外预留的处理时间。
const requestTimeoutSlack = 30 * time.Second

type AppOptions struct {
	Config  config.Config
	DB      *sql.DB
	Version version.BuildInfo
}

type App struct {
	cfg     config.Config
	db      *sql.DB
	store   *store.Store
	kv      ephemeral.Store
	closeKV func() error
	usage   *usage.Aggregator
	sched   *usage.Scheduler
	version version.BuildInfo
	handler http.Handler
}

func NewApp(opts AppOptions) (*App, error) {
	cfg := opts.Config
	st := store.New(opts.DB)
	st.SetDialect(store.Dialect(cfg.DB.Driver))

	kv, closeKV, err := newEphemeralStore(cfg.Redis)
	if err != nil {
		return nil, err
	}

	loginSecret := strings.TrimSpace(cfg.LoginToken.Secret)
	if loginSecret == "" {
		loginSecret = randomSecret(32)
		slog.Warn("未配置登录凭证密钥，已随机生成；多实例部署需显式配置", "env", envName("LOGIN_TOKEN_SECRET"))
	}
	tokens, err := auth.NewLoginTokens(auth.LoginTokenConfig{Secret: loginSecret, ExpireMinutes: cfg.LoginToken.ExpireMinutes}, kv)
	if err != nil {
		_ = closeKV()
		return nil, err
	}

	client := gitee.NewClient(gitee.Config{
		AuthorizeURL:   cfg.Gitee.AuthorizeURL,
		TokenURL:       cfg.Gitee.TokenURL,
		APIBaseURL:     cfg.Gitee.APIBaseURL,
		ConnectTimeout: seconds(cfg.Gitee.ConnectTimeoutSeconds),
		ReadTimeout:    seconds(cfg.Gitee.ReadTimeoutSeconds),
	})
	flow := giteeoauth.NewFlow(giteeoauth.Config{
		ClientID:        cfg.Gitee.ClientID,
		ClientSecret:    cfg.Gitee.ClientSecret,
		CallbackURL:     cfg.Gitee.CallbackURL,
		FrontendURL:     cfg.Gitee.FrontendURL,
		ProfileRedirect: cfg.Gitee.ProfileRedirect,
		StateTTL:        minutes(cfg.Gitee.StateTTLMinutes),
		BindTokenTTL:    minutes(cfg.Gitee.BindTokenTTLMinutes),
	}, client, st, kv, tokens)

	engine := analysis.NewEngine(analysis.EngineConfig{
		Endpoint:       cfg.Analysis.Endpoint,
		APIKey:         cfg.Analysis.APIKey,
		AssistantID:    cfg.Analysis.AssistantID,
		ConnectTimeout: seconds(cfg.Analysis.ConnectTimeoutSeconds),
		ReadTimeout:    seconds(cfg.Analysis.ReadTimeoutSeconds),
	})
	if !engine.Configured() {
		slog.Warn("评测智能体未配置，重新评测接口将返回错误")
	}
	agg := usage.NewAggregator(st, cfg.Usage.Location)

	app := &App{
		cfg:     cfg,
		db:      opts.DB,
		store:   st,
		kv:      kv,
		closeKV: closeKV,
		usage:   agg,
		version: opts.Version,
	}
	if err := app.bootstrapRoot(context.Background()); err != nil {
		_ = closeKV()
		return nil, err
	}

	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())
	if err := ginEngine.SetTrustedProxies(trustedProxies(cfg.Security)); err != nil {
		_ = closeKV()
		return nil, fmt.Errorf("设置可信代理失败: %w", err)
	}

	sessionSecret := strings.TrimSpace(cfg.Security.SessionSecret)
	if sessionSecret == "" {
		sessionSecret = randomSecret(32)
		slog.Warn("未配置会话密钥，已随机生成；重启后已有会话失效", "env", envName("SESSION_SECRET"))
	}
	sessionStore := cookie.NewStore([]byte(sessionSecret))
	sessionStore.Options(sessionOptions(cfg))
	ginEngine.Use(sessions.Sessions(SessionCookieName, sessionStore))

	router.SetRouter(ginEngine, router.Options{
		Store:         st,
		Flow:          flow,
		Analysis:      analysis.NewService(flow, engine, st),
		Usage:         agg,
		LoginTokens:   tokens,
		Reevaluations: limits.NewUserLimits(1),
		CallbackURL:   cfg.Gitee.CallbackURL,
		ProxyTrust: security.ProxyTrust{
			Enabled:  cfg.Security.TrustProxyHeaders,
			Prefixes: cfg.Security.TrustedProxies,
		},
		Healthz:   app.handleHealthz,
		DebugVars: cfg.Env == "dev",
	})

	requestTimeout := seconds(cfg.Analysis.ReadTimeoutSeconds) + requestTimeoutSlack
	app.handler = middleware.Chain(ginEngine,
		middleware.RequestID,
		middleware.AccessLog,
		middleware.MaxBytes(cfg.Server.MaxBodyBytes),
		middleware.RequestTimeout(requestTimeout),
	)
	return app, nil
}

func newEphemeralStore(cfg config.RedisConfig) (ephemeral.Store, func() error, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		slog.Warn("未配置 Redis，授权状态与绑定令牌保存在进程内存中")
		return ephemeral.NewMemoryStore(), func() error { return nil }, nil
	}
	rs, err := ephemeral.NewRedisStore(ephemeral.RedisOptions{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err != nil {
		return nil, nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return rs, rs.Close, nil
}

// trustedProxies 只在显式开启时让 gin 解析 X-Forwarded-For 得到客户端 IP。
func trustedProxies(sec config.SecurityConfig) []string {
	if !sec.TrustProxyHeaders {
		return nil
	}
	out := make([]string, 0, len(sec.TrustedProxies))
	for _, p := range sec.TrustedProxies {
		out = append(out, p.String())
	}
	return out
}

func (a *App) bootstrapRoot(ctx context.Context) error {
	username := strings.TrimSpace(a.cfg.Security.BootstrapRootUsername)
	if username == "" {
		return nil
	}
	n, err := a.store.CountUsers(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	hash, err := auth.HashPassword(a.cfg.Security.BootstrapRootPassword)
	if err != nil {
		return fmt.Errorf("生成 root 密码哈希失败: %w", err)
	}
	id, err := a.store.CreateUser(ctx, store.NewUser{
		Username:     username,
		Nickname:     username,
		PasswordHash: hash,
		Role:         store.UserRoleRoot,
		Remark:       "bootstrap",
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil
		}
		return err
	}
	slog.Info("已创建初始 root 账号", "user_id", id, "username", username)
	return nil
}

// Start 启动后台任务；HTTP 监听由调用方负责。
func (a *App) Start() error {
	if !a.cfg.Usage.Enable {
		return nil
	}
	sched := usage.NewScheduler(a.usage, a.cfg.Usage.Cron)
	if err := sched.Start(); err != nil {
		return err
	}
	a.sched = sched
	return nil
}

func (a *App) Close() error {
	if a.sched != nil {
		a.sched.Stop()
		a.sched = nil
	}
	if a.closeKV != nil {
		return a.closeKV()
	}
	return nil
}

func (a *App) Handler() http.Handler {
	return a.handler
}

func (a *App) HTTPServer() *http.Server {
	s := a.cfg.Server
	return &http.Server{
		Addr:              s.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: seconds(s.ReadHeaderTimeoutSeconds),
		ReadTimeout:       seconds(s.ReadTimeoutSeconds),
		WriteTimeout:      seconds(s.WriteTimeoutSeconds),
		IdleTimeout:       seconds(s.IdleTimeoutSeconds),
		MaxHeaderBytes:    s.MaxHeaderBytes,
	}
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	type resp struct {
		OK      bool   `json:"ok"`
		Env     string `json:"env"`
		Version string `json:"version"`
		Date    string `json:"date"`

		DBOK bool `json:"db_ok"`
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	dbOK := a.db != nil && a.db.PingContext(ctx) == nil

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if !dbOK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp{
		OK:      dbOK,
		Env:     a.cfg.Env,
		Version: a.version.Version,
		Date:    a.version.Date,
		DBOK:    dbOK,
	})
}

func randomSecret(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func minutes(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Minute
}

func envName(key string) string {
	return "GITEELINK_" + key
}
