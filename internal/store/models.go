// Package store 定义数据库层的核心数据结构，避免在 handler/service 中散落 SQL 字段细节。
package store

import "time"

const (
	UserStatusDisabled = 0
	UserStatusEnabled  = 1
)

type User struct {
	ID           int64
	Username     string
	Nickname     string
	Email        string
	PasswordHash []byte
	Role         string
	Status       int
	Deleted      bool
	Remark       string
	LoginIP      string
	LoginAt      *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Usable 表示账号未被软删除且处于启用状态。
func (u User) Usable() bool {
	return !u.Deleted && u.Status == UserStatusEnabled
}

type NewUser struct {
	Username     string
	Nickname     string
	Email        string
	PasswordHash []byte
	Role         string
	Remark       string
}

type GiteeBind struct {
	ID            int64
	UserID        int64
	GiteeUserID   string
	GiteeUsername string
	GiteeAvatar   string
	BindTime      time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type AnalysisReport struct {
	ID             int64
	UserID         int64
	ProfileScore   *int
	ProfileLevel   string
	CommunityScore *int
	CommunityLevel string
	TechScore      *int
	TechLevel      string
	TotalScore     *int
	TotalLevel     string
	ReportTime     time.Time
}

type ScoreRangeCount struct {
	ScoreRange string `json:"scoreRange"`
	UserCount  int64  `json:"userCount"`
}

type UsageReport struct {
	ID                   int64
	ReportDate           string
	NewBindCount         int64
	DailyEvaluationCount int64
	DailyActiveUserCount int64
	TotalBindCount       int64
	ScoreDistribution    string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// UsageReportFilter 的日期均为 YYYY-MM-DD，空值表示不限制。
type UsageReportFilter struct {
	ReportDate string
	BeginDate  string
	EndDate    string
}
