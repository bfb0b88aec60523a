package router

import (
	"net/http"

	"giteelink/internal/analysis"
	"giteelink/internal/auth"
	"giteelink/internal/giteeoauth"
	"giteelink/internal/limits"
	"giteelink/internal/security"
	"giteelink/internal/store"
	"giteelink/internal/usage"
)

type Options struct {
	Store       *store.Store
	Flow        *giteeoauth.Flow
	Analysis    *analysis.Service
	Usage       *usage.Aggregator
	LoginTokens *auth.LoginTokens

	// Reevaluations 限制同一用户同时进行的评测数，为 nil 时不限制。
	Reevaluations *limits.UserLimits

	// CallbackURL 为配置的固定回调地址；为空时按请求推断 <scheme>://<host>/auth。
	CallbackURL string
	ProxyTrust  security.ProxyTrust

	Healthz http.HandlerFunc
	// DebugVars 为 true 时在 /debug/vars 暴露 expvar（仅允许本机访问）。
	DebugVars bool
}
