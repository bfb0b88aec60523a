package usage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron"

	"giteelink/internal/obs"
)

// DefaultSpec 为每天 00:05:00（秒 分 时 日 月 周）。
const DefaultSpec = "0 5 0 * * ?"

const runTimeout = 5 * time.Minute

// Scheduler 每天凌晨统计前一天的数据；失败只记录日志，下一次调度自然重试。
type Scheduler struct {
	agg  *Aggregator
	spec string
	cron *cron.Cron
}

func NewScheduler(agg *Aggregator, spec string) *Scheduler {
	if spec == "" {
		spec = DefaultSpec
	}
	return &Scheduler{agg: agg, spec: spec}
}

func (s *Scheduler) Start() error {
	c := cron.NewWithLocation(s.agg.Location())
	if err := c.AddFunc(s.spec, s.tick); err != nil {
		return fmt.Errorf("注册使用统计定时任务失败: %w", err)
	}
	c.Start()
	s.cron = c
	slog.Info("使用统计定时任务已启动", "spec", s.spec, "location", s.agg.Location().String())
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	_ = s.RunOnce(ctx)
}

// RunOnce 统计昨天的数据。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	day := s.agg.Today().AddDate(0, 0, -1)
	r, err := s.agg.GenerateDailyReport(ctx, day)
	obs.RecordUsageReportRun(err == nil)
	if err != nil {
		slog.Error("生成使用统计失败", "report_date", day.Format(dateLayout), "err", err)
		return err
	}
	slog.Info("使用统计已生成", "report_date", r.ReportDate, "new_bind_count", r.NewBindCount, "daily_evaluation_count", r.DailyEvaluationCount)
	return nil
}
