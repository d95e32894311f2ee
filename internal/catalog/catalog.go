// Package catalog 是 TMDB 目录客户端：搜索/发现条目，为解析提供标题与年份。
//
// 解析核心只消费 Title 与 Year，其余字段原样透传给展示层。
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/John-Robertt/streamres/internal/domain"
)

const (
	DefaultBaseURL  = "https://api.themoviedb.org/3"
	DefaultLanguage = "en-US"
	ImageBaseURL    = "https://image.tmdb.org/t/p/"

	// 发现列表只收录有一定票数的条目，过滤掉几乎无人知晓的冷门条目。
	minVoteCount = 50
)

var ErrMissingAPIKey = errors.New("tmdb api_key 未配置（配置文件 [tmdb] api_key 或环境变量 TMDB_API_KEY）")

// StatusError 表示 TMDB 返回了非 2xx 状态码。
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("TMDB 返回 HTTP %d：%s", e.StatusCode, redact(e.URL))
}

// Client 访问 TMDB v3 API。零值不可用：APIKey 与 HTTP 必须设置。
type Client struct {
	APIKey   string
	BaseURL  string
	Language string
	HTTP     *http.Client
}

// Entry 是一个目录条目（电影或剧集）。
type Entry struct {
	ID           int         `json:"id"`
	Kind         domain.Kind `json:"kind"`
	Title        string      `json:"title"`
	Year         int         `json:"year,omitempty"`
	ReleaseDate  string      `json:"release_date,omitempty"`
	Overview     string      `json:"overview,omitempty"`
	PosterPath   string      `json:"poster_path,omitempty"`
	BackdropPath string      `json:"backdrop_path,omitempty"`
	GenreIDs     []int       `json:"genre_ids,omitempty"`
	Genres       []string    `json:"genres,omitempty"`
	VoteAverage  float64     `json:"vote_average"`
	VoteCount    int         `json:"vote_count"`
}

// Request 把条目转换为解析请求。
func (e Entry) Request(region domain.Region, page int) (domain.ResolutionRequest, error) {
	return domain.NewRequest(e.Title, e.Year, e.Kind, region, page)
}

// Page 是一页目录结果。
type Page struct {
	Page       int     `json:"page"`
	TotalPages int     `json:"total_pages"`
	Entries    []Entry `json:"entries"`
}

// HasNext 报告是否还有下一页。
func (p Page) HasNext() bool { return p.Page > 0 && p.Page < p.TotalPages }

// Sort 是发现列表的排序方式。
type Sort string

const (
	SortPopularity  Sort = "popularity"
	SortReleaseDate Sort = "release_date"
	SortVoteCount   Sort = "vote_count"
)

func ParseSort(s string) (Sort, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "popularity", "popular":
		return SortPopularity, nil
	case "release_date", "release", "latest":
		return SortReleaseDate, nil
	case "vote_count", "rating", "votes":
		return SortVoteCount, nil
	default:
		return "", fmt.Errorf("sort 只能是 popularity、release_date 或 vote_count，实际是 %q", s)
	}
}

// sortParam 返回 TMDB 的 sort_by 参数；剧集没有 primary_release_date，用首播日期代替。
func (s Sort) sortParam(kind domain.Kind) string {
	switch s {
	case SortReleaseDate:
		if kind == domain.KindTV {
			return "first_air_date.desc"
		}
		return "primary_release_date.desc"
	case SortVoteCount:
		return "vote_count.desc"
	default:
		return "popularity.desc"
	}
}

// DiscoverQuery 描述一次发现请求。Region=indian 时只列出印度出品的条目。
type DiscoverQuery struct {
	Kind   domain.Kind
	Region domain.Region
	Sort   Sort
	Page   int
}

// Search 按标题搜索；year>0 时按年份过滤（剧集按首播年份）。
func (c *Client) Search(ctx context.Context, kind domain.Kind, query string, year int) (Page, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Page{}, errors.New("搜索关键字不能为空")
	}
	path, err := endpoint("search", kind)
	if err != nil {
		return Page{}, err
	}
	v := url.Values{}
	v.Set("include_adult", "false")
	v.Set("query", query)
	v.Set("page", "1")
	if year > 0 {
		if kind == domain.KindTV {
			v.Set("first_air_date_year", strconv.Itoa(year))
		} else {
			v.Set("year", strconv.Itoa(year))
		}
	}
	return c.list(ctx, kind, path, v)
}

// Discover 列出按 Sort 排序的条目。
func (c *Client) Discover(ctx context.Context, q DiscoverQuery) (Page, error) {
	path, err := endpoint("discover", q.Kind)
	if err != nil {
		return Page{}, err
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	v := url.Values{}
	v.Set("include_adult", "false")
	v.Set("vote_count.gte", strconv.Itoa(minVoteCount))
	v.Set("sort_by", q.Sort.sortParam(q.Kind))
	v.Set("page", strconv.Itoa(page))
	if q.Kind == domain.KindTV {
		v.Set("include_null_first_air_dates", "false")
	} else {
		v.Set("include_video", "false")
	}
	if q.Region == domain.RegionIndian {
		v.Set("with_origin_country", "IN")
	}
	return c.list(ctx, q.Kind, path, v)
}

func endpoint(op string, kind domain.Kind) (string, error) {
	switch kind {
	case domain.KindMovie:
		return "/" + op + "/movie", nil
	case domain.KindTV:
		return "/" + op + "/tv", nil
	default:
		return "", fmt.Errorf("未知 kind：%q", kind)
	}
}

// rawResult 同时覆盖电影（title/release_date）与剧集（name/first_air_date）两种字段。
type rawResult struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	Overview     string  `json:"overview"`
	PosterPath   string  `json:"poster_path"`
	BackdropPath string  `json:"backdrop_path"`
	GenreIDs     []int   `json:"genre_ids"`
	VoteAverage  float64 `json:"vote_average"`
	VoteCount    int     `json:"vote_count"`
}

type rawPage struct {
	Page       int         `json:"page"`
	TotalPages int         `json:"total_pages"`
	Results    []rawResult `json:"results"`
}

func (c *Client) list(ctx context.Context, kind domain.Kind, path string, v url.Values) (Page, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return Page{}, ErrMissingAPIKey
	}
	if c.HTTP == nil {
		return Page{}, errors.New("http client 不能为空")
	}
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	lang := strings.TrimSpace(c.Language)
	if lang == "" {
		lang = DefaultLanguage
	}
	v.Set("api_key", c.APIKey)
	v.Set("language", lang)
	u := base + path + "?" + v.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Page{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		// *url.Error 会带上完整 URL（含 api_key）。
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = redact(ue.URL)
		}
		return Page{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Page{}, &StatusError{URL: u, StatusCode: resp.StatusCode}
	}

	var raw rawPage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Page{}, fmt.Errorf("decoding response: %w", err)
	}
	out := Page{Page: raw.Page, TotalPages: raw.TotalPages, Entries: make([]Entry, 0, len(raw.Results))}
	for _, r := range raw.Results {
		out.Entries = append(out.Entries, toEntry(kind, r))
	}
	return out, nil
}

func toEntry(kind domain.Kind, r rawResult) Entry {
	e := Entry{
		ID:           r.ID,
		Kind:         kind,
		Title:        r.Title,
		ReleaseDate:  r.ReleaseDate,
		Overview:     r.Overview,
		PosterPath:   r.PosterPath,
		BackdropPath: r.BackdropPath,
		GenreIDs:     r.GenreIDs,
		Genres:       GenreNames(r.GenreIDs),
		VoteAverage:  r.VoteAverage,
		VoteCount:    r.VoteCount,
	}
	if kind == domain.KindTV {
		e.Title = r.Name
		e.ReleaseDate = r.FirstAirDate
	}
	e.Year = yearOf(e.ReleaseDate)
	return e
}

// yearOf 取日期前四位；日期缺失或格式不对时返回 0（未知年份）。
func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return y
}

var queryYearRE = regexp.MustCompile(`^(.*?)\s*\((\d{4})\)\s*$`)

// ParseQuery 拆分 "Avengers (2019)" 形式的搜索输入；没有括号年份时 year=0。
func ParseQuery(s string) (title string, year int) {
	s = strings.TrimSpace(s)
	m := queryYearRE.FindStringSubmatch(s)
	if m == nil {
		return s, 0
	}
	y, _ := strconv.Atoi(m[2])
	return strings.TrimSpace(m[1]), y
}

// ImageURL 拼出海报/背景图地址；size 为空时取原图。
func ImageURL(path, size string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	if size == "" {
		size = "original"
	}
	return ImageBaseURL + size + path
}

func redact(u string) string {
	pu, err := url.Parse(u)
	if err != nil {
		return u
	}
	q := pu.Query()
	if q.Has("api_key") {
		q.Set("api_key", "REDACTED")
		pu.RawQuery = q.Encode()
	}
	return pu.String()
}
