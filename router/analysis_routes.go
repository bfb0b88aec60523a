package router

import (
	"io"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
)

func setAnalysisRoutes(r gin.IRoutes, opts Options) {
	userSession := requireUserSession(opts)

	r.POST("/gitee/analysis/reevaluate", userSession, analysisReevaluateHandler(opts))
	r.POST("/gitee/analysis/report", userSession, analysisReportHandler(opts))
}

func analysisReevaluateHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, _ := principalFromContext(c)
		if opts.Reevaluations != nil {
			if !opts.Reevaluations.Acquire(p.UserID) {
				respondMessage(c, "评测进行中，请稍后再试")
				return
			}
			defer opts.Reevaluations.Release(p.UserID)
		}
		out, err := opts.Analysis.Reevaluate(c.Request.Context(), p.UserID)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, out)
	}
}

// analysisReportHandler 接收前端已拿到的评测结果；body 可以是结果本身，也可以包在 analysis 字段里。
func analysisReportHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			respondMessage(c, "参数错误")
			return
		}
		raw := body
		if inner := gjson.GetBytes(body, "analysis"); inner.IsObject() {
			raw = []byte(inner.Raw)
		}
		p, _ := principalFromContext(c)
		id, err := opts.Analysis.SaveRawReport(c.Request.Context(), p.UserID, raw)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, gin.H{"reportId": id})
	}
}
