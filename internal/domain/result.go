package domain

import (
	"encoding/json"
	"time"
)

const (
	StatusResolved    = "resolved"
	StatusNotFound    = "not_found"
	StatusFetchFailed = "fetch_failed"
)

const (
	ErrCodeFetchFailed      = "fetch_failed"
	ErrCodeNoCandidates     = "no_candidates"
	ErrCodeNoMatch          = "no_match"
	ErrCodeExtractionFailed = "extraction_failed"
	ErrCodePageLimit        = "page_limit"
	ErrCodePagination       = "pagination_regression"
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeConfigNotFound   = "config_not_found"
	ErrCodeConfigInvalid    = "config_invalid"
)

// ResolutionResult 是交给宿主的终态结果（stdout JSON 也直接输出它）。
//
// 约束：Status 只能是 resolved / not_found / fetch_failed 三者之一；
// resolved 时 StreamURL 非空（剧集列表模式下至少一个 Episode）。
type ResolutionResult struct {
	Attempt string `json:"attempt"`
	Source  string `json:"source"`

	Title  string `json:"title"`
	Year   int    `json:"year,omitempty"`
	Kind   Kind   `json:"kind"`
	Region Region `json:"region"`

	Status    string `json:"status"`
	StreamURL string `json:"stream_url,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`

	MatchedTitle  string `json:"matched_title,omitempty"`
	DetailURL     string `json:"detail_url,omitempty"`
	PagesSearched int    `json:"pages_searched"`
	// NextPage 仅剧集列表模式：上游还有下一页时给出页码，供宿主生成“下一页”入口。
	NextPage int       `json:"next_page,omitempty"`
	Episodes []Episode `json:"episodes,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

type Episode struct {
	Title     string `json:"title"`
	Season    string `json:"season"`
	Episode   string `json:"episode"`
	DetailURL string `json:"detail_url"`
	StreamURL string `json:"stream_url"`
}

// Label 是宿主展示用的条目名（原样拼接标题/季/集）。
func (e Episode) Label() string {
	out := e.Title
	if e.Season != "" {
		out += " " + e.Season
	}
	if e.Episode != "" {
		out += " " + e.Episode
	}
	return out
}

func (r ResolutionResult) Resolved() bool { return r.Status == StatusResolved }

// Finalize 把时间统一为 UTC，并在 StreamURL/Episodes 都为空时把 resolved 降级为 not_found。
func (r *ResolutionResult) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	if r.Status == StatusResolved && r.StreamURL == "" && len(r.Episodes) == 0 {
		r.Status = StatusNotFound
		if r.ErrorCode == "" {
			r.ErrorCode = ErrCodeExtractionFailed
		}
	}
	if r.Status == "" {
		r.Status = StatusNotFound
	}
}

// MarshalJSON 集中约束输出：当前只是透传 encoding/json 的默认行为。
func (r ResolutionResult) MarshalJSON() ([]byte, error) {
	type Alias ResolutionResult
	return json.Marshal(Alias(r))
}
