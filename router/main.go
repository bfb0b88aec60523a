// Package router 把 Gitee 账号关联相关的 HTTP 路由挂到 gin 上。
package router

import (
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

var timeNow = time.Now

func SetRouter(r *gin.Engine, opts Options) {
	setSystemRoutes(r, opts)
	setGiteeOAuthRoutes(r, opts)

	api := r.Group("/api")
	api.Use(gzip.Gzip(gzip.DefaultCompression))
	setUserAPIRoutes(api, opts)
	setGiteeAPIRoutes(api, opts)
	setAnalysisRoutes(api, opts)
	setAdminRoutes(api, opts)
}
