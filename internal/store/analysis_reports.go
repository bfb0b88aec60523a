package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// scoreRanges 为评分分布的固定区间，按升序输出。
var scoreRanges = []string{"0-59", "60-69", "70-79", "80-89", "90-100"}

const analysisReportColumns = `report_id, user_id, profile_score, profile_level, community_score, community_level, tech_score, tech_level, total_score, total_level, report_time`

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func scanAnalysisReport(row interface{ Scan(dest ...any) error }) (AnalysisReport, error) {
	var r AnalysisReport
	var profile, community, tech, total sql.NullInt64
	err := row.Scan(&r.ID, &r.UserID, &profile, &r.ProfileLevel, &community, &r.CommunityLevel, &tech, &r.TechLevel, &total, &r.TotalLevel, &r.ReportTime)
	if err != nil {
		return AnalysisReport{}, err
	}
	r.ProfileScore = intPtr(profile)
	r.CommunityScore = intPtr(community)
	r.TechScore = intPtr(tech)
	r.TotalScore = intPtr(total)
	return r, nil
}

func (s *Store) InsertAnalysisReport(ctx context.Context, r AnalysisReport) (int64, error) {
	if r.UserID <= 0 {
		return 0, fmt.Errorf("user_id 不能为空")
	}
	reportTime := s.timestamp()
	if !r.ReportTime.IsZero() {
		reportTime = dbTime(r.ReportTime)
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO gitee_analysis_reports(user_id, profile_score, profile_level, community_score, community_level, tech_score, tech_level, total_score, total_level, report_time)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, r.UserID, nullableInt(r.ProfileScore), r.ProfileLevel, nullableInt(r.CommunityScore), r.CommunityLevel, nullableInt(r.TechScore), r.TechLevel, nullableInt(r.TotalScore), r.TotalLevel, reportTime)
	if err != nil {
		return 0, fmt.Errorf("写入评测报告失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("获取评测报告 id 失败: %w", err)
	}
	return id, nil
}

// LatestAnalysisReportsByUserIDs 返回每个用户最近一次的评测报告。
func (s *Store) LatestAnalysisReportsByUserIDs(ctx context.Context, userIDs []int64) ([]AnalysisReport, error) {
	ids := uniquePositiveIDs(userIDs)
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+analysisReportColumns+`
FROM gitee_analysis_reports r
WHERE r.user_id IN (`+placeholders(len(ids))+`)
  AND r.report_id = (SELECT MAX(r2.report_id) FROM gitee_analysis_reports r2 WHERE r2.user_id = r.user_id)
`, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("查询最新评测报告失败: %w", err)
	}
	defer rows.Close()

	var out []AnalysisReport
	for rows.Next() {
		r, err := scanAnalysisReport(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描评测报告失败: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历评测报告失败: %w", err)
	}
	return out, nil
}

func (s *Store) CountAnalysisReportsBetween(ctx context.Context, start time.Time, end time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(1) FROM gitee_analysis_reports WHERE report_time >= ? AND report_time < ?
`, dbTime(start), dbTime(end)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("统计评测次数失败: %w", err)
	}
	return n, nil
}

func (s *Store) CountDistinctAnalysisUsersBetween(ctx context.Context, start time.Time, end time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(DISTINCT user_id) FROM gitee_analysis_reports WHERE report_time >= ? AND report_time < ?
`, dbTime(start), dbTime(end)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("统计评测活跃用户失败: %w", err)
	}
	return n, nil
}

// ScoreDistributionBetween 按总分区间统计去重用户数；无总分的报告不计入，空区间不输出。
func (s *Store) ScoreDistributionBetween(ctx context.Context, start time.Time, end time.Time) ([]ScoreRangeCount, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT bucket, COUNT(DISTINCT user_id)
FROM (
  SELECT user_id,
    CASE
      WHEN total_score < 60 THEN '0-59'
      WHEN total_score < 70 THEN '60-69'
      WHEN total_score < 80 THEN '70-79'
      WHEN total_score < 90 THEN '80-89'
      ELSE '90-100'
    END AS bucket
  FROM gitee_analysis_reports
  WHERE report_time >= ? AND report_time < ? AND total_score IS NOT NULL
) t
GROUP BY bucket
`, dbTime(start), dbTime(end))
	if err != nil {
		return nil, fmt.Errorf("统计评分分布失败: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64, len(scoreRanges))
	for rows.Next() {
		var bucket string
		var n int64
		if err := rows.Scan(&bucket, &n); err != nil {
			return nil, fmt.Errorf("扫描评分分布失败: %w", err)
		}
		counts[bucket] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历评分分布失败: %w", err)
	}

	out := make([]ScoreRangeCount, 0, len(counts))
	for _, r := range scoreRanges {
		if n := counts[r]; n > 0 {
			out = append(out, ScoreRangeCount{ScoreRange: r, UserCount: n})
		}
	}
	return out, nil
}
