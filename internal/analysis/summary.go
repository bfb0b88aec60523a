// Package analysis 汇总 Gitee 数据并调用评测智能体生成研发能力评分。
package analysis

import (
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	maxTopRepos     = 8
	maxRecentIssues = 6
)

type field struct {
	key string
	src string
}

var profileTextFields = []field{
	{"login", "login"},
	{"name", "name"},
	{"bio", "bio"},
	{"blog", "blog"},
	{"weibo", "weibo"},
	{"email", "email"},
}

var profileNumberFields = []field{
	{"publicRepos", "public_repos"},
	{"followers", "followers"},
	{"following", "following"},
	{"stared", "stared"},
	{"watched", "watched"},
}

// BuildSummary 把 Gitee 原始响应压缩成评测所需的摘要，避免把大量原始数据交给智能体。
// 任一输入不是预期的 JSON 结构时，对应节点输出为空对象。
func BuildSummary(profile, repos, issues, notifications []byte) ([]byte, error) {
	out := []byte(`{}`)
	parts := []struct {
		key string
		fn  func([]byte) ([]byte, error)
		raw []byte
	}{
		{"profile", summarizeProfile, profile},
		{"repoStats", summarizeRepos, repos},
		{"issueStats", summarizeIssues, issues},
		{"notificationStats", summarizeNotifications, notifications},
	}
	for _, p := range parts {
		node, err := p.fn(p.raw)
		if err != nil {
			return nil, err
		}
		out, err = sjson.SetRawBytes(out, p.key, node)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func summarizeProfile(raw []byte) ([]byte, error) {
	doc := []byte(`{}`)
	p := gjson.ParseBytes(raw)
	if !p.IsObject() {
		return doc, nil
	}
	var err error
	for _, f := range profileTextFields {
		if doc, err = sjson.SetBytes(doc, f.key, text(p, f.src)); err != nil {
			return nil, err
		}
	}
	for _, f := range profileNumberFields {
		if doc, err = sjson.SetBytes(doc, f.key, number(p, f.src)); err != nil {
			return nil, err
		}
	}
	if doc, err = sjson.SetBytes(doc, "createdAt", text(p, "created_at")); err != nil {
		return nil, err
	}
	return sjson.SetBytes(doc, "updatedAt", text(p, "updated_at"))
}

type repoItem struct {
	Name        any   `json:"name"`
	Description any   `json:"description"`
	Stars       int64 `json:"stars"`
	Forks       int64 `json:"forks"`
	Watchers    int64 `json:"watchers"`
	UpdatedAt   any   `json:"updatedAt"`
}

func summarizeRepos(raw []byte) ([]byte, error) {
	doc := []byte(`{}`)
	list := gjson.ParseBytes(raw)
	if !list.IsArray() {
		return doc, nil
	}
	var stars, forks, watchers int64
	var items []repoItem
	arr := list.Array()
	for _, r := range arr {
		it := repoItem{
			Name:        text(r, "full_name"),
			Description: text(r, "description"),
			Stars:       number(r, "stargazers_count"),
			Forks:       number(r, "forks_count"),
			Watchers:    number(r, "watchers_count"),
			UpdatedAt:   text(r, "updated_at"),
		}
		stars += it.Stars
		forks += it.Forks
		watchers += it.Watchers
		items = append(items, it)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Stars > items[j].Stars })
	if len(items) > maxTopRepos {
		items = items[:maxTopRepos]
	}
	if items == nil {
		items = []repoItem{}
	}

	var err error
	for _, kv := range []struct {
		key string
		v   any
	}{
		{"totalRepos", len(arr)},
		{"totalStars", stars},
		{"totalForks", forks},
		{"totalWatchers", watchers},
		{"topRepos", items},
	} {
		if doc, err = sjson.SetBytes(doc, kv.key, kv.v); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

type issueItem struct {
	Title     any   `json:"title"`
	State     any   `json:"state"`
	CreatedAt any   `json:"createdAt"`
	Comments  int64 `json:"comments"`
}

func summarizeIssues(raw []byte) ([]byte, error) {
	doc := []byte(`{}`)
	list := gjson.ParseBytes(raw)
	if !list.IsArray() {
		return doc, nil
	}
	arr := list.Array()
	var open, closed int
	recent := make([]issueItem, 0, maxRecentIssues)
	for _, is := range arr {
		state := text(is, "state")
		s, _ := state.(string)
		switch {
		case strings.EqualFold(s, "open"):
			open++
		case strings.EqualFold(s, "closed"):
			closed++
		}
		if len(recent) < maxRecentIssues {
			recent = append(recent, issueItem{
				Title:     text(is, "title"),
				State:     state,
				CreatedAt: text(is, "created_at"),
				Comments:  number(is, "comments"),
			})
		}
	}

	var err error
	for _, kv := range []struct {
		key string
		v   any
	}{
		{"totalIssues", len(arr)},
		{"openIssues", open},
		{"closedIssues", closed},
		{"recentIssues", recent},
	} {
		if doc, err = sjson.SetBytes(doc, kv.key, kv.v); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func summarizeNotifications(raw []byte) ([]byte, error) {
	doc := []byte(`{}`)
	node := gjson.ParseBytes(raw)
	if node.IsObject() && node.Get("list").Exists() {
		node = node.Get("list")
	}
	if !node.IsArray() {
		return doc, nil
	}
	arr := node.Array()
	unread := 0
	for _, n := range arr {
		if n.Get("unread").Bool() {
			unread++
		}
	}
	doc, err := sjson.SetBytes(doc, "totalNotifications", len(arr))
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(doc, "unreadNotifications", unread)
}

// text 对缺失或 null 字段返回 nil，序列化为 JSON null。
func text(r gjson.Result, path string) any {
	v := r.Get(path)
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}
	return v.String()
}

func number(r gjson.Result, path string) int64 {
	v := r.Get(path)
	if v.Type != gjson.Number {
		return 0
	}
	return v.Int()
}
