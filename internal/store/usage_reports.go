package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const usageReportColumns = `report_id, report_date, new_bind_count, daily_evaluation_count, daily_active_user_count, total_bind_count, score_distribution, created_at, updated_at`

func scanUsageReport(row interface{ Scan(dest ...any) error }) (UsageReport, error) {
	var r UsageReport
	err := row.Scan(&r.ID, &r.ReportDate, &r.NewBindCount, &r.DailyEvaluationCount, &r.DailyActiveUserCount, &r.TotalBindCount, &r.ScoreDistribution, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

// UpsertUsageReport 以 report_date 为键写入；重复执行覆盖统计值而不是累加。
func (s *Store) UpsertUsageReport(ctx context.Context, r UsageReport) error {
	date := strings.TrimSpace(r.ReportDate)
	if date == "" {
		return errors.New("report_date 不能为空")
	}
	now := s.timestamp()
	stmt := `
INSERT INTO gitee_usage_reports(report_date, new_bind_count, daily_evaluation_count, daily_active_user_count, total_bind_count, score_distribution, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  new_bind_count=VALUES(new_bind_count),
  daily_evaluation_count=VALUES(daily_evaluation_count),
  daily_active_user_count=VALUES(daily_active_user_count),
  total_bind_count=VALUES(total_bind_count),
  score_distribution=VALUES(score_distribution),
  updated_at=VALUES(updated_at)
`
	if s.dialect == DialectSQLite {
		stmt = `
INSERT INTO gitee_usage_reports(report_date, new_bind_count, daily_evaluation_count, daily_active_user_count, total_bind_count, score_distribution, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(report_date) DO UPDATE SET
  new_bind_count=excluded.new_bind_count,
  daily_evaluation_count=excluded.daily_evaluation_count,
  daily_active_user_count=excluded.daily_active_user_count,
  total_bind_count=excluded.total_bind_count,
  score_distribution=excluded.score_distribution,
  updated_at=excluded.updated_at
`
	}
	if _, err := s.db.ExecContext(ctx, stmt, date, r.NewBindCount, r.DailyEvaluationCount, r.DailyActiveUserCount, r.TotalBindCount, r.ScoreDistribution, now, now); err != nil {
		return fmt.Errorf("写入使用统计失败: %w", err)
	}
	return nil
}

func (s *Store) GetUsageReportByDate(ctx context.Context, date string) (UsageReport, bool, error) {
	r, err := scanUsageReport(s.db.QueryRowContext(ctx, `SELECT `+usageReportColumns+` FROM gitee_usage_reports WHERE report_date=?`, strings.TrimSpace(date)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UsageReport{}, false, nil
		}
		return UsageReport{}, false, fmt.Errorf("查询使用统计失败: %w", err)
	}
	return r, true, nil
}

func (s *Store) ListUsageReports(ctx context.Context, f UsageReportFilter) ([]UsageReport, error) {
	var where []string
	var args []any
	if v := strings.TrimSpace(f.ReportDate); v != "" {
		where = append(where, "report_date=?")
		args = append(args, v)
	}
	if v := strings.TrimSpace(f.BeginDate); v != "" {
		where = append(where, "report_date>=?")
		args = append(args, v)
	}
	if v := strings.TrimSpace(f.EndDate); v != "" {
		where = append(where, "report_date<=?")
		args = append(args, v)
	}
	q := `SELECT ` + usageReportColumns + ` FROM gitee_usage_reports`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY report_date DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("查询使用统计列表失败: %w", err)
	}
	defer rows.Close()

	var out []UsageReport
	for rows.Next() {
		r, err := scanUsageReport(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描使用统计失败: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历使用统计失败: %w", err)
	}
	return out, nil
}
