package usage

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"giteelink/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()

	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "usage.db") + "?_busy_timeout=1000")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.EnsureSQLiteSchema(db); err != nil {
		t.Fatalf("EnsureSQLiteSchema: %v", err)
	}
	st := store.New(db)
	st.SetDialect(store.DialectSQLite)
	return st
}

func intp(v int) *int { return &v }

func TestGenerateDailyReport_CountsAndDistribution(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	agg := NewAggregator(st, time.UTC)
	today := agg.Today()

	var users []int64
	for i := 0; i < 4; i++ {
		id, err := st.CreateUser(ctx, store.NewUser{Username: "u" + strconv.Itoa(i), PasswordHash: []byte("x")})
		if err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
		users = append(users, id)
	}
	for i := 0; i < 3; i++ {
		if _, err := st.InsertGiteeBind(ctx, store.GiteeBind{UserID: users[i], GiteeUserID: "g" + strconv.Itoa(i), GiteeUsername: "g"}); err != nil {
			t.Fatalf("InsertGiteeBind: %v", err)
		}
	}

	scores := map[int][]int{
		0: {55, 65},
		1: {72, 85},
		2: {95, 91},
		3: {58, 88, 77, 60},
	}
	n := 0
	for idx, list := range scores {
		for _, s := range list {
			n++
			at := today.Add(time.Duration(n) * time.Minute)
			if _, err := st.InsertAnalysisReport(ctx, store.AnalysisReport{UserID: users[idx], TotalScore: intp(s), ReportTime: at}); err != nil {
				t.Fatalf("InsertAnalysisReport: %v", err)
			}
		}
	}
	// 前一天的评测不计入。
	if _, err := st.InsertAnalysisReport(ctx, store.AnalysisReport{UserID: users[0], TotalScore: intp(10), ReportTime: today.Add(-time.Hour)}); err != nil {
		t.Fatalf("InsertAnalysisReport: %v", err)
	}

	r, err := agg.GenerateDailyReport(ctx, today.Add(15*time.Hour))
	if err != nil {
		t.Fatalf("GenerateDailyReport: %v", err)
	}
	if r.ReportDate != today.Format(dateLayout) {
		t.Fatalf("report_date=%q", r.ReportDate)
	}
	if r.NewBindCount != 3 || r.TotalBindCount != 3 {
		t.Fatalf("bind counts: new=%d total=%d", r.NewBindCount, r.TotalBindCount)
	}
	if r.DailyEvaluationCount != 10 || r.DailyActiveUserCount != 4 {
		t.Fatalf("evaluation counts: evals=%d active=%d", r.DailyEvaluationCount, r.DailyActiveUserCount)
	}
	want := `[{"scoreRange":"0-59","userCount":2},{"scoreRange":"60-69","userCount":2},{"scoreRange":"70-79","userCount":2},{"scoreRange":"80-89","userCount":2},{"scoreRange":"90-100","userCount":1}]`
	if r.ScoreDistribution != want {
		t.Fatalf("score_distribution=%s", r.ScoreDistribution)
	}

	// 重复执行覆盖而不是新增一行。
	if _, err := st.InsertAnalysisReport(ctx, store.AnalysisReport{UserID: users[0], TotalScore: intp(99), ReportTime: today.Add(2 * time.Hour)}); err != nil {
		t.Fatalf("InsertAnalysisReport: %v", err)
	}
	r2, err := agg.GenerateDailyReport(ctx, today)
	if err != nil {
		t.Fatalf("GenerateDailyReport (2): %v", err)
	}
	if r2.ID != r.ID || r2.DailyEvaluationCount != 11 {
		t.Fatalf("unexpected overwrite: first=%+v second=%+v", r, r2)
	}
	list, err := st.ListUsageReports(ctx, store.UsageReportFilter{})
	if err != nil {
		t.Fatalf("ListUsageReports: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 row, got %d", len(list))
	}
}

func TestGenerateDailyReport_EmptyDay(t *testing.T) {
	st := openTestStore(t)
	agg := NewAggregator(st, time.UTC)

	r, err := agg.GenerateDailyReport(context.Background(), time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("GenerateDailyReport: %v", err)
	}
	if r.ReportDate != "2024-01-02" || r.ScoreDistribution != "[]" || r.DailyEvaluationCount != 0 {
		t.Fatalf("unexpected report: %+v", r)
	}
}

func TestListReports_RefreshesTodayOnlyWhenCovered(t *testing.T) {
	fixed := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		filter  Filter
		refresh bool
	}{
		{name: "no filter", filter: Filter{}, refresh: true},
		{name: "exact today", filter: Filter{ReportDate: "2024-05-20"}, refresh: true},
		{name: "exact today with time", filter: Filter{ReportDate: "2024-05-20 08:00:00"}, refresh: true},
		{name: "exact other day", filter: Filter{ReportDate: "2024-05-19"}, refresh: false},
		{name: "range covers today", filter: Filter{BeginTime: "2024-05-01", EndTime: "2024-05-20"}, refresh: true},
		{name: "range in past", filter: Filter{BeginTime: "2024-05-01", EndTime: "2024-05-10"}, refresh: false},
		{name: "only begin", filter: Filter{BeginTime: "2024-05-01"}, refresh: true},
		{name: "unparseable exact", filter: Filter{ReportDate: "yesterday"}, refresh: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := openTestStore(t)
			agg := NewAggregator(st, time.UTC)
			agg.now = func() time.Time { return fixed }

			if _, err := agg.ListReports(context.Background(), tc.filter); err != nil {
				t.Fatalf("ListReports: %v", err)
			}
			_, ok, err := st.GetUsageReportByDate(context.Background(), "2024-05-20")
			if err != nil {
				t.Fatalf("GetUsageReportByDate: %v", err)
			}
			if ok != tc.refresh {
				t.Fatalf("refresh=%v want %v", ok, tc.refresh)
			}
		})
	}
}

func TestListReports_FiltersByParsedDates(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	for _, d := range []string{"2024-05-01", "2024-05-02", "2024-05-03"} {
		if err := st.UpsertUsageReport(ctx, store.UsageReport{ReportDate: d, ScoreDistribution: "[]"}); err != nil {
			t.Fatalf("UpsertUsageReport: %v", err)
		}
	}
	agg := NewAggregator(st, time.UTC)
	agg.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

	got, err := agg.ListReports(ctx, Filter{BeginTime: "2024-05-02T00:00:00", EndTime: "2024-05-03"})
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(got) != 2 || got[0].ReportDate != "2024-05-03" || got[1].ReportDate != "2024-05-02" {
		t.Fatalf("unexpected list: %+v", got)
	}
}

func TestParseDate(t *testing.T) {
	if _, ok := ParseDate("", time.UTC); ok {
		t.Fatalf("empty should not parse")
	}
	if _, ok := ParseDate("2024-13-01", time.UTC); ok {
		t.Fatalf("invalid month should not parse")
	}
	d, ok := ParseDate(" 2024-02-29 23:59:59 ", time.UTC)
	if !ok || !d.Equal(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("ParseDate=%v ok=%v", d, ok)
	}
}

func TestScheduler_RunOnceBuildsYesterday(t *testing.T) {
	st := openTestStore(t)
	agg := NewAggregator(st, time.UTC)
	agg.now = func() time.Time { return time.Date(2024, 3, 1, 0, 5, 0, 0, time.UTC) }

	s := NewScheduler(agg, "")
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if _, ok, _ := st.GetUsageReportByDate(context.Background(), "2024-02-29"); !ok {
		t.Fatalf("expected report for 2024-02-29")
	}
}

func TestScheduler_StartRejectsBadSpec(t *testing.T) {
	agg := NewAggregator(openTestStore(t), time.UTC)
	s := NewScheduler(agg, "not a cron")
	if err := s.Start(); err == nil {
		s.Stop()
		t.Fatalf("expected error for bad spec")
	}
	ok := NewScheduler(agg, DefaultSpec)
	if err := ok.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ok.Stop()
}
