package gitee

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorCode string

const (
	ErrConfigurationMissing ErrorCode = "configuration_missing"
	ErrUpstreamAuth         ErrorCode = "upstream_auth_error"
	ErrUpstreamEmpty        ErrorCode = "upstream_empty_response"
	ErrUpstreamUnavailable  ErrorCode = "upstream_unavailable"
	ErrUpstreamStatus       ErrorCode = "upstream_status"
	ErrMalformedResponse    ErrorCode = "malformed_response"

	ErrBindConflict    ErrorCode = "bind_conflict"
	ErrAccountUnusable ErrorCode = "account_unusable"
	ErrTokenExpired    ErrorCode = "token_expired"
	ErrNotFound        ErrorCode = "not_found"
	ErrInvalidParams   ErrorCode = "invalid_params"

	ErrAnalysisUpstream ErrorCode = "analysis_upstream_error"
	ErrStoreFailed      ErrorCode = "store_failed"
)

// Error 携带错误分类；Message 为面向用户的提示，优先于按分类生成的默认文案。
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch {
	case e.Message != "" && e.Cause != nil:
		return fmt.Sprintf("gitee: %s: %s: %v", e.Code, e.Message, e.Cause)
	case e.Message != "":
		return fmt.Sprintf("gitee: %s: %s", e.Code, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("gitee: %s: %v", e.Code, e.Cause)
	default:
		return fmt.Sprintf("gitee: %s", e.Code)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func NewError(code ErrorCode, message string) error {
	return &Error{Code: code, Message: message}
}

func Errorf(code ErrorCode, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code ErrorCode, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Cause: err}
}

func WrapMessage(code ErrorCode, message string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

func Is(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return "发生未知错误"
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return msg
	}
	switch e.Code {
	case ErrConfigurationMissing:
		return "Gitee OAuth 未配置"
	case ErrUpstreamAuth:
		return "Gitee 授权失败，请重新授权"
	case ErrUpstreamEmpty:
		return "Gitee 响应为空"
	case ErrUpstreamUnavailable:
		return "Gitee 服务暂时不可用，请稍后重试"
	case ErrUpstreamStatus:
		var se *StatusError
		if errors.As(err, &se) && se != nil {
			return fmt.Sprintf("Gitee 请求失败（%d）", se.StatusCode)
		}
		return "Gitee 请求失败"
	case ErrMalformedResponse:
		return "Gitee 响应格式错误"
	case ErrBindConflict:
		return "绑定关系冲突"
	case ErrAccountUnusable:
		return "绑定账号已不可用，请联系管理员"
	case ErrTokenExpired:
		return "请先完成Gitee授权"
	case ErrNotFound:
		return "记录不存在"
	case ErrInvalidParams:
		return "无效的参数"
	case ErrAnalysisUpstream:
		return "分析服务调用失败，请稍后重试"
	case ErrStoreFailed:
		return "保存失败，请重试"
	default:
		return "发生未知错误"
	}
}

// StatusError 表示上游返回了非 2xx 状态码。
type StatusError struct {
	StatusCode  int
	Message     string
	BodySnippet string
}

func (e *StatusError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message != "" {
		return fmt.Sprintf("gitee status %d: %s", e.StatusCode, e.Message)
	}
	if e.BodySnippet != "" {
		return fmt.Sprintf("gitee status %d: %s", e.StatusCode, e.BodySnippet)
	}
	return fmt.Sprintf("gitee status %d", e.StatusCode)
}
