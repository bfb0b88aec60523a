package analysis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"giteelink/internal/gitee"
	"giteelink/internal/store"
)

// Source 提供当前用户的 Gitee 数据，*giteeoauth.Flow 满足该接口。
type Source interface {
	AccessToken(ctx context.Context, userID int64) (string, error)
	Profile(ctx context.Context, userID int64) ([]byte, error)
	Repos(ctx context.Context, userID int64, params map[string]string) ([]byte, error)
	Issues(ctx context.Context, userID int64, params map[string]string) ([]byte, error)
	Notifications(ctx context.Context, userID int64, params map[string]string) ([]byte, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, userID int64, summary []byte) (Result, error)
}

type ReportStore interface {
	InsertAnalysisReport(ctx context.Context, r store.AnalysisReport) (int64, error)
}

type Service struct {
	src     Source
	engine  Evaluator
	reports ReportStore
	now     func() time.Time
}

func NewService(src Source, engine Evaluator, reports ReportStore) *Service {
	return &Service{src: src, engine: engine, reports: reports, now: time.Now}
}

type Outcome struct {
	Analysis    json.RawMessage `json:"analysis"`
	GeneratedAt int64           `json:"generatedAt"`
	ReportID    int64           `json:"reportId"`
}

// Reevaluate 拉取当前用户的 Gitee 数据，交给评测智能体打分并保存报告。
func (s *Service) Reevaluate(ctx context.Context, userID int64) (Outcome, error) {
	if _, err := s.src.AccessToken(ctx, userID); err != nil {
		return Outcome{}, err
	}

	profile, err := s.src.Profile(ctx, userID)
	if err != nil {
		return Outcome{}, fetchFailed("获取Gitee用户资料失败", userID, err)
	}
	repos, err := s.src.Repos(ctx, userID, map[string]string{"per_page": "100"})
	if err != nil {
		return Outcome{}, fetchFailed("获取Gitee仓库失败", userID, err)
	}
	issues, err := s.src.Issues(ctx, userID, map[string]string{"per_page": "100", "filter": "all", "state": "all"})
	if err != nil {
		return Outcome{}, fetchFailed("获取Gitee Issues失败", userID, err)
	}
	notifications, err := s.src.Notifications(ctx, userID, map[string]string{"per_page": "50"})
	if err != nil {
		return Outcome{}, fetchFailed("获取Gitee通知失败", userID, err)
	}

	summary, err := BuildSummary(profile, repos, issues, notifications)
	if err != nil {
		return Outcome{}, gitee.WrapMessage(gitee.ErrMalformedResponse, "构建Gitee数据摘要失败", err)
	}
	res, err := s.engine.Evaluate(ctx, userID, summary)
	if err != nil {
		slog.Error("评测智能体调用失败", "user_id", userID, "err", err)
		return Outcome{}, err
	}
	id, err := s.SaveReport(ctx, userID, res)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Analysis: res.Raw, GeneratedAt: s.now().UnixMilli(), ReportID: id}, nil
}

// SaveReport 保存一次评测结果；也用于前端直接提交的评测数据。
func (s *Service) SaveReport(ctx context.Context, userID int64, res Result) (int64, error) {
	if userID <= 0 {
		return 0, gitee.NewError(gitee.ErrInvalidParams, "未获取到用户信息")
	}
	r := res.report(userID)
	r.ReportTime = s.now()
	id, err := s.reports.InsertAnalysisReport(ctx, r)
	if err != nil {
		return 0, gitee.WrapMessage(gitee.ErrStoreFailed, "保存评测报告失败", err)
	}
	return id, nil
}

// SaveRawReport 校验并保存前端提交的评测 JSON。
func (s *Service) SaveRawReport(ctx context.Context, userID int64, raw []byte) (int64, error) {
	res, ok := ParseResult(raw)
	if !ok {
		return 0, gitee.NewError(gitee.ErrInvalidParams, "评测结果为空")
	}
	return s.SaveReport(ctx, userID, res)
}

func fetchFailed(msg string, userID int64, err error) error {
	slog.Error(msg, "user_id", userID, "err", err)
	code, ok := gitee.CodeOf(err)
	if !ok {
		code = gitee.ErrUpstreamUnavailable
	}
	return gitee.WrapMessage(code, msg+": "+gitee.UserMessage(err), err)
}
