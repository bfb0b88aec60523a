// Package usage 汇总 Gitee 绑定与评测的每日使用统计。
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"giteelink/internal/store"
)

const dateLayout = "2006-01-02"

// Source 是统计所需的存储依赖，*store.Store 满足该接口。
type Source interface {
	CountGiteeBinds(ctx context.Context) (int64, error)
	CountGiteeBindsCreatedBetween(ctx context.Context, start time.Time, end time.Time) (int64, error)
	CountAnalysisReportsBetween(ctx context.Context, start time.Time, end time.Time) (int64, error)
	CountDistinctAnalysisUsersBetween(ctx context.Context, start time.Time, end time.Time) (int64, error)
	ScoreDistributionBetween(ctx context.Context, start time.Time, end time.Time) ([]store.ScoreRangeCount, error)
	UpsertUsageReport(ctx context.Context, r store.UsageReport) error
	GetUsageReportByDate(ctx context.Context, date string) (store.UsageReport, bool, error)
	ListUsageReports(ctx context.Context, f store.UsageReportFilter) ([]store.UsageReport, error)
}

// Filter 的日期为 YYYY-MM-DD，超过 10 个字符的部分被截断，无法解析视为未填写。
type Filter struct {
	ReportDate string
	BeginTime  string
	EndTime    string
}

type Aggregator struct {
	src Source
	loc *time.Location
	now func() time.Time
}

func NewAggregator(src Source, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	return &Aggregator{src: src, loc: loc, now: time.Now}
}

func (a *Aggregator) Location() *time.Location {
	return a.loc
}

// Today 返回当前时区下今天的零点。
func (a *Aggregator) Today() time.Time {
	return startOfDay(a.now(), a.loc)
}

// GenerateDailyReport 只依赖 date 的年月日；同一天重复执行覆盖已有统计。
func (a *Aggregator) GenerateDailyReport(ctx context.Context, date time.Time) (store.UsageReport, error) {
	start := startOfDay(date, a.loc)
	end := start.AddDate(0, 0, 1)
	day := start.Format(dateLayout)

	newBinds, err := a.src.CountGiteeBindsCreatedBetween(ctx, start, end)
	if err != nil {
		return store.UsageReport{}, err
	}
	totalBinds, err := a.src.CountGiteeBinds(ctx)
	if err != nil {
		return store.UsageReport{}, err
	}
	evaluations, err := a.src.CountAnalysisReportsBetween(ctx, start, end)
	if err != nil {
		return store.UsageReport{}, err
	}
	activeUsers, err := a.src.CountDistinctAnalysisUsersBetween(ctx, start, end)
	if err != nil {
		return store.UsageReport{}, err
	}
	ranges, err := a.src.ScoreDistributionBetween(ctx, start, end)
	if err != nil {
		return store.UsageReport{}, err
	}
	if ranges == nil {
		ranges = []store.ScoreRangeCount{}
	}
	dist, err := json.Marshal(ranges)
	if err != nil {
		return store.UsageReport{}, fmt.Errorf("序列化评分分布失败: %w", err)
	}

	if err := a.src.UpsertUsageReport(ctx, store.UsageReport{
		ReportDate:           day,
		NewBindCount:         newBinds,
		DailyEvaluationCount: evaluations,
		DailyActiveUserCount: activeUsers,
		TotalBindCount:       totalBinds,
		ScoreDistribution:    string(dist),
	}); err != nil {
		return store.UsageReport{}, err
	}
	r, ok, err := a.src.GetUsageReportByDate(ctx, day)
	if err != nil {
		return store.UsageReport{}, err
	}
	if !ok {
		return store.UsageReport{}, fmt.Errorf("使用统计 %s 写入后未找到", day)
	}
	return r, nil
}

// ListReports 在查询范围覆盖今天时先重算今天的统计，避免返回当天的过期快照。
func (a *Aggregator) ListReports(ctx context.Context, f Filter) ([]store.UsageReport, error) {
	exact, hasExact := ParseDate(f.ReportDate, a.loc)
	begin, hasBegin := ParseDate(f.BeginTime, a.loc)
	end, hasEnd := ParseDate(f.EndTime, a.loc)

	if a.shouldRefreshToday(exact, hasExact, begin, hasBegin, end, hasEnd) {
		if _, err := a.GenerateDailyReport(ctx, a.Today()); err != nil {
			return nil, err
		}
	}

	var sf store.UsageReportFilter
	if hasExact {
		sf.ReportDate = exact.Format(dateLayout)
	}
	if hasBegin {
		sf.BeginDate = begin.Format(dateLayout)
	}
	if hasEnd {
		sf.EndDate = end.Format(dateLayout)
	}
	return a.src.ListUsageReports(ctx, sf)
}

func (a *Aggregator) shouldRefreshToday(exact time.Time, hasExact bool, begin time.Time, hasBegin bool, end time.Time, hasEnd bool) bool {
	today := a.Today()
	if hasExact {
		return exact.Equal(today)
	}
	if hasBegin && hasEnd {
		return !today.Before(begin) && !today.After(end)
	}
	return true
}

// ParseDate 解析 YYYY-MM-DD（允许带时间后缀），返回 loc 下当天零点。
func ParseDate(raw string, loc *time.Location) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
