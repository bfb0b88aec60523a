package router

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"giteelink/internal/gitee"
	"giteelink/internal/store"
	"giteelink/internal/usage"
)

func setAdminRoutes(r gin.IRoutes, opts Options) {
	rootSession := requireRootSession(opts)

	r.POST("/gitee/admin/user-summary", rootSession, adminUserSummaryHandler(opts))
	r.GET("/gitee/admin/usage-report/list", rootSession, adminUsageReportListHandler(opts))
	r.POST("/gitee/admin/usage-report/generate", rootSession, adminUsageReportGenerateHandler(opts))
}

type userSummaryRequest struct {
	UserIDs []int64 `json:"userIds"`
}

type userSummaryItem struct {
	UserID        int64      `json:"userId"`
	GiteeBound    bool       `json:"giteeBound"`
	GiteeUsername string     `json:"giteeUsername,omitempty"`
	GiteeUserID   string     `json:"giteeUserId,omitempty"`
	TotalScore    *int       `json:"totalScore"`
	TotalLevel    string     `json:"totalLevel,omitempty"`
	ReportTime    *time.Time `json:"reportTime"`
}

// buildUserSummaries 按请求顺序输出去重后的正整数 id；无绑定、无报告的用户也返回一行。
func buildUserSummaries(ids []int64, binds []store.GiteeBind, reports []store.AnalysisReport) []userSummaryItem {
	bindByUser := make(map[int64]store.GiteeBind, len(binds))
	for _, b := range binds {
		bindByUser[b.UserID] = b
	}
	reportByUser := make(map[int64]store.AnalysisReport, len(reports))
	for _, r := range reports {
		reportByUser[r.UserID] = r
	}

	seen := make(map[int64]struct{}, len(ids))
	out := make([]userSummaryItem, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		item := userSummaryItem{UserID: id}
		if b, ok := bindByUser[id]; ok {
			item.GiteeBound = true
			item.GiteeUsername = b.GiteeUsername
			item.GiteeUserID = b.GiteeUserID
		}
		if r, ok := reportByUser[id]; ok {
			item.TotalScore = r.TotalScore
			item.TotalLevel = r.TotalLevel
			t := r.ReportTime
			item.ReportTime = &t
		}
		out = append(out, item)
	}
	return out
}

func adminUserSummaryHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req userSummaryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondMessage(c, "参数错误")
			return
		}
		if len(req.UserIDs) == 0 {
			respondOK(c, []userSummaryItem{})
			return
		}
		ctx := c.Request.Context()
		binds, err := opts.Store.ListGiteeBindsByUserIDs(ctx, req.UserIDs)
		if err != nil {
			respondError(c, gitee.WrapMessage(gitee.ErrStoreFailed, "查询绑定信息失败", err))
			return
		}
		reports, err := opts.Store.LatestAnalysisReportsByUserIDs(ctx, req.UserIDs)
		if err != nil {
			respondError(c, gitee.WrapMessage(gitee.ErrStoreFailed, "查询评测报告失败", err))
			return
		}
		respondOK(c, buildUserSummaries(req.UserIDs, binds, reports))
	}
}

type usageReportView struct {
	ID                   int64           `json:"id"`
	ReportDate           string          `json:"reportDate"`
	NewBindCount         int64           `json:"newBindCount"`
	DailyEvaluationCount int64           `json:"dailyEvaluationCount"`
	DailyActiveUserCount int64           `json:"dailyActiveUserCount"`
	TotalBindCount       int64           `json:"totalBindCount"`
	ScoreDistribution    json.RawMessage `json:"scoreDistribution"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

func toUsageReportView(r store.UsageReport) usageReportView {
	dist := json.RawMessage(r.ScoreDistribution)
	if !json.Valid(dist) {
		dist = json.RawMessage("[]")
	}
	return usageReportView{
		ID:                   r.ID,
		ReportDate:           r.ReportDate,
		NewBindCount:         r.NewBindCount,
		DailyEvaluationCount: r.DailyEvaluationCount,
		DailyActiveUserCount: r.DailyActiveUserCount,
		TotalBindCount:       r.TotalBindCount,
		ScoreDistribution:    dist,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

func adminUsageReportListHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := opts.Usage.ListReports(c.Request.Context(), usage.Filter{
			ReportDate: c.Query("reportDate"),
			BeginTime:  c.Query("beginTime"),
			EndTime:    c.Query("endTime"),
		})
		if err != nil {
			respondError(c, gitee.WrapMessage(gitee.ErrStoreFailed, "查询使用报告失败", err))
			return
		}
		out := make([]usageReportView, 0, len(list))
		for _, r := range list {
			out = append(out, toUsageReportView(r))
		}
		respondOK(c, out)
	}
}

func adminUsageReportGenerateHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		date := opts.Usage.Today().AddDate(0, 0, -1)
		if raw := c.Query("reportDate"); raw != "" {
			d, ok := usage.ParseDate(raw, opts.Usage.Location())
			if !ok {
				respondMessage(c, "日期格式错误，应为 yyyy-MM-dd")
				return
			}
			date = d
		}
		r, err := opts.Usage.GenerateDailyReport(c.Request.Context(), date)
		if err != nil {
			respondError(c, gitee.WrapMessage(gitee.ErrStoreFailed, "生成使用报告失败", err))
			return
		}
		respondOK(c, toUsageReportView(r))
	}
}
