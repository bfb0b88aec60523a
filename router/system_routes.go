package router

import (
	"expvar"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"giteelink/internal/version"
)

func setSystemRoutes(r gin.IRoutes, opts Options) {
	if opts.Healthz != nil {
		r.GET("/healthz", wrapHTTPFunc(opts.Healthz))
	} else {
		r.GET("/healthz", healthzHandler)
	}
	if opts.DebugVars {
		r.GET("/debug/vars", loopbackOnly(), wrapHTTP(expvar.Handler()))
	}
}

func healthzHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "version": version.Info()})
}

// loopbackOnly 只看 TCP 对端地址，不信任任何转发头。
func loopbackOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
		if err != nil {
			host = c.Request.RemoteAddr
		}
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		c.Next()
	}
}
