package provider

import (
	"errors"
	"fmt"
	"strings"
)

// HTTPStatusError 表示上游返回了非 2xx 的 HTTP 状态码（归类为 fetch_failed）。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d url=%s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("HTTP %d url=%s location=%s", e.StatusCode, e.URL, loc)
}

// ErrExtractionFailed 表示页面已成功抓取，但预期的结构标记不存在。
// 调用方必须把它转换为 not_found，而不是当作异常向上抛。
var ErrExtractionFailed = errors.New("extraction failed")

// ExtractionError 携带失败页面的 URL 与原始内容（用于诊断转储）。
type ExtractionError struct {
	URL    string
	Marker string
	Body   []byte
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("详情页缺少 %s：%s", e.Marker, e.URL)
}

func (e *ExtractionError) Unwrap() error { return ErrExtractionFailed }

// Error 是 source 阶段的可追溯错误；Stage 为 "search" 或 "extract"。
// 只有网络/HTTP 失败会被包装成 Error，上层据此归类为 fetch_failed。
type Error struct {
	Source string
	Stage  string
	URL    string
	Err    error
}

func (e *Error) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("source=%s stage=%s: %v", e.Source, e.Stage, e.Err)
	}
	return fmt.Sprintf("source=%s stage=%s url=%s: %v", e.Source, e.Stage, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsFetchFailed 判断 err 是否为抓取失败（而不是结构缺失）。
func IsFetchFailed(err error) bool {
	if err == nil || errors.Is(err, ErrExtractionFailed) {
		return false
	}
	var e *Error
	return errors.As(err, &e)
}
