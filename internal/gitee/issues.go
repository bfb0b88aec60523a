package gitee

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	issueFilterAssigned = "assigned"
	issueFilterCreated  = "created"
	issueFilterAll      = "all"
)

// FetchIssues 拉取当前用户的 Issue。上游 filter 不支持 all：此时分别拉取 assigned 与 created 后合并、去重、排序、截断。
func (c *Client) FetchIssues(ctx context.Context, accessToken string, params map[string]string) ([]byte, error) {
	query := copyParams(params)
	filter := strings.TrimSpace(query["filter"])
	if filter == "" {
		filter = issueFilterAssigned
	}
	if strings.TrimSpace(query["state"]) == "" {
		query["state"] = "open"
	}
	if !strings.EqualFold(filter, issueFilterAll) {
		query["filter"] = filter
		return c.FetchPaged(ctx, ResourceIssues, accessToken, query)
	}

	assignedQuery := copyParams(query)
	assignedQuery["filter"] = issueFilterAssigned
	assigned, err := c.FetchPaged(ctx, ResourceIssues, accessToken, assignedQuery)
	if err != nil {
		return nil, err
	}
	createdQuery := copyParams(query)
	createdQuery["filter"] = issueFilterCreated
	created, err := c.FetchPaged(ctx, ResourceIssues, accessToken, createdQuery)
	if err != nil {
		return nil, err
	}

	limit := 0
	if n, err := strconv.Atoi(strings.TrimSpace(query["per_page"])); err == nil && n > 0 {
		limit = n
	}
	return MergeIssues(assigned, created, query["sort"], query["direction"], limit)
}

// MergeIssues 合并两个 Issue 数组：按 id 去重（无 id 的条目始终保留），可选按时间字段排序，limit>0 时截断。
// 任一输入不是数组时原样返回 first。
func MergeIssues(first []byte, second []byte, sortBy string, direction string, limit int) ([]byte, error) {
	a := gjson.ParseBytes(first)
	b := gjson.ParseBytes(second)
	if !a.IsArray() || !b.IsArray() {
		return first, nil
	}

	seen := make(map[string]struct{})
	items := make([]gjson.Result, 0, len(a.Array())+len(b.Array()))
	for _, list := range []gjson.Result{a, b} {
		for _, item := range list.Array() {
			if key, ok := issueKey(item); ok {
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
			}
			items = append(items, item)
		}
	}

	if field := issueSortField(sortBy); field != "" {
		asc := strings.EqualFold(strings.TrimSpace(direction), "asc")
		sort.SliceStable(items, func(i, j int) bool {
			ti := issueTimestamp(items[i], field)
			tj := issueTimestamp(items[j], field)
			if asc {
				return ti < tj
			}
			return ti > tj
		})
	}

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	out := []byte("[]")
	for _, item := range items {
		var err error
		out, err = sjson.SetRawBytes(out, "-1", []byte(item.Raw))
		if err != nil {
			return nil, Wrap(ErrMalformedResponse, err)
		}
	}
	return out, nil
}

func issueKey(item gjson.Result) (string, bool) {
	id := item.Get("id")
	if !id.Exists() || id.Type == gjson.Null {
		return "", false
	}
	key := strings.TrimSpace(id.String())
	if key == "" {
		return "", false
	}
	return key, true
}

func issueSortField(sortBy string) string {
	switch strings.ToLower(strings.TrimSpace(sortBy)) {
	case "created", "created_at":
		return "created_at"
	case "updated", "updated_at":
		return "updated_at"
	default:
		return ""
	}
}

// issueTimestamp 解析失败或缺失时按 epoch 0 处理。
func issueTimestamp(item gjson.Result, field string) int64 {
	raw := strings.TrimSpace(item.Get(field).String())
	if raw == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}

func copyParams(params map[string]string) map[string]string {
	out := make(map[string]string, len(params)+2)
	for k, v := range params {
		out[k] = v
	}
	return out
}
