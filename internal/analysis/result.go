package analysis

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"giteelink/internal/store"
)

// Result 是评测智能体输出中落库与展示所需的字段；Raw 保留完整的原始 JSON。
type Result struct {
	ProfileScore   *int     `json:"profileScore"`
	ProfileLevel   string   `json:"profileLevel,omitempty"`
	CommunityScore *int     `json:"communityScore"`
	CommunityLevel string   `json:"communityLevel,omitempty"`
	TechScore      *int     `json:"techScore"`
	TechLevel      string   `json:"techLevel,omitempty"`
	TotalScore     *int     `json:"totalScore"`
	TotalLevel     string   `json:"totalLevel,omitempty"`
	Highlights     []string `json:"highlights,omitempty"`
	Risks          []string `json:"risks,omitempty"`
	Suggestions    []string `json:"suggestions,omitempty"`

	Raw []byte `json:"-"`
}

// ParseResult 解析评测 JSON 对象；空对象或非对象返回 ok=false。
func ParseResult(raw []byte) (Result, bool) {
	doc := gjson.ParseBytes(raw)
	if !gjson.ValidBytes(raw) || !doc.IsObject() || len(doc.Map()) == 0 {
		return Result{}, false
	}
	return Result{
		ProfileScore:   score(doc.Get("profileScore")),
		ProfileLevel:   level(doc.Get("profileLevel")),
		CommunityScore: score(doc.Get("communityScore")),
		CommunityLevel: level(doc.Get("communityLevel")),
		TechScore:      score(doc.Get("techScore")),
		TechLevel:      level(doc.Get("techLevel")),
		TotalScore:     score(doc.Get("totalScore")),
		TotalLevel:     level(doc.Get("totalLevel")),
		Highlights:     stringList(doc.Get("highlights")),
		Risks:          stringList(doc.Get("risks")),
		Suggestions:    stringList(doc.Get("suggestions")),
		Raw:            append([]byte(nil), raw...),
	}, true
}

func (r Result) report(userID int64) store.AnalysisReport {
	return store.AnalysisReport{
		UserID:         userID,
		ProfileScore:   r.ProfileScore,
		ProfileLevel:   r.ProfileLevel,
		CommunityScore: r.CommunityScore,
		CommunityLevel: r.CommunityLevel,
		TechScore:      r.TechScore,
		TechLevel:      r.TechLevel,
		TotalScore:     r.TotalScore,
		TotalLevel:     r.TotalLevel,
	}
}

// score 接受数字或数字字符串，小数部分截断；无法识别时为 nil。
func score(v gjson.Result) *int {
	var s string
	switch v.Type {
	case gjson.Number:
		s = v.Raw
	case gjson.String:
		s = strings.TrimSpace(v.Str)
	default:
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	n := int(d.IntPart())
	return &n
}

func level(v gjson.Result) string {
	if !v.Exists() || v.Type == gjson.Null {
		return ""
	}
	return strings.TrimSpace(v.String())
}

func stringList(v gjson.Result) []string {
	if !v.IsArray() {
		return nil
	}
	var out []string
	for _, it := range v.Array() {
		if s := strings.TrimSpace(it.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}
