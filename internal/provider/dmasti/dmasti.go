package dmasti

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/John-Robertt/streamres/internal/domain"
	providerx "github.com/John-Robertt/streamres/internal/provider"
)

const (
	// DefaultBaseURL 是上游站点的默认地址（站点只提供 http）。
	DefaultBaseURL = "http://www.dmasti.pk"

	// ShortTitleMax：规范化标题不超过该长度时，关键字搜索几乎不可用，改走“首字母 + 年份”浏览。
	ShortTitleMax = 3

	// 浏览页每页 48 条；第一页引用了 /movies/index/48 时说明还有溢出结果。
	browseOverflowOffset = 48
	// 剧集搜索每页 24 条，页码换算成偏移量。
	showPageSize = 24
)

// Source 实现 dmasti 的搜索/详情页抓取与 HTML 解析。
//
// 约束：
//   - 电影：一次搜索（短标题浏览时最多两次抓取），不翻页
//   - 剧集：一次只抓一页，分页状态通过 SearchPage.State 报告
//   - 页面结构变化时解析为空结果，不报错
type Source struct {
	// BaseURL 允许切换到镜像域名；为空时使用 DefaultBaseURL。
	BaseURL string
}

func (Source) Name() string { return "dmasti" }

func (s Source) baseURL() string {
	u := strings.TrimSpace(s.BaseURL)
	if u == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(u, "/")
}

// Search 按媒体类型与标题长度选择查询方式，并把结果页解析为候选列表。
func (s Source) Search(ctx context.Context, q providerx.SearchQuery, c *http.Client) (providerx.SearchPage, error) {
	if c == nil {
		return providerx.SearchPage{}, errors.New("http client 不能为空")
	}
	keyword := strings.TrimSpace(q.Query)
	if keyword == "" {
		keyword = strings.TrimSpace(q.Title)
	}
	if keyword == "" {
		return providerx.SearchPage{}, errors.New("搜索关键字不能为空")
	}

	switch {
	case q.Kind == domain.KindTV:
		return s.searchShows(ctx, c, keyword, q.Page)
	case utf8.RuneCountInString(q.Title) <= ShortTitleMax && q.Year > 0:
		return s.browse(ctx, c, q)
	default:
		return s.searchMovies(ctx, c, keyword)
	}
}

// Extract 进入详情页，取“下载”按钮的 href 作为最终播放地址。
func (s Source) Extract(ctx context.Context, detailLink string, c *http.Client) (string, error) {
	if c == nil {
		return "", errors.New("http client 不能为空")
	}
	detailLink = strings.TrimSpace(detailLink)
	if detailLink == "" {
		return "", errors.New("detailLink 不能为空")
	}
	pageURL := resolveURL(s.baseURL()+"/", detailLink)

	b, err := fetchURL(ctx, c, pageURL)
	if err != nil {
		return "", &providerx.Error{Source: s.Name(), Stage: "extract", URL: pageURL, Err: err}
	}
	// 详情页按 latin-1 输出（没有可靠的 charset 声明）。
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		decoded = b
	}

	href, ok := ExtractDownloadHref(decoded)
	if !ok {
		return "", &providerx.ExtractionError{URL: pageURL, Marker: downloadSelector, Body: b}
	}
	return resolveURL(pageURL, fixupStreamURL(href)), nil
}

func (s Source) searchMovies(ctx context.Context, c *http.Client, keyword string) (providerx.SearchPage, error) {
	u := s.baseURL() + "/search?keyword=" + queryEscape(keyword)
	b, err := fetchURL(ctx, c, u)
	if err != nil {
		return providerx.SearchPage{}, &providerx.Error{Source: s.Name(), Stage: "search", URL: u, Err: err}
	}
	res, err := parseResults(b)
	if err != nil {
		return providerx.SearchPage{URL: u, Body: b, State: domain.StartPage(1)}, nil
	}
	cands, dropped := res.zip(s.baseURL())
	return providerx.SearchPage{
		URL:        u,
		Candidates: cands,
		Dropped:    dropped,
		State:      domain.StartPage(1),
		Body:       b,
	}, nil
}

func (s Source) searchShows(ctx context.Context, c *http.Client, keyword string, page int) (providerx.SearchPage, error) {
	if page < 1 {
		page = 1
	}
	u := s.baseURL() + "/search/index/" + strconv.Itoa(showPageSize*(page-1)) + "?keyword=" + queryEscape(keyword)
	b, err := fetchURL(ctx, c, u)
	if err != nil {
		return providerx.SearchPage{}, &providerx.Error{Source: s.Name(), Stage: "search", URL: u, Err: err}
	}

	out := providerx.SearchPage{URL: u, State: domain.StartPage(page), Body: b}
	res, err := parseResults(b)
	if err != nil {
		return out, nil
	}
	out.Candidates, out.Dropped = res.zip(s.baseURL())
	out.State = pageState(res.doc, page)
	return out, nil
}

// browse 走“首字母 + 年份”的列表页。该列表页不带年份/类型徽标：年份就是查询年份，
// 类型徽标按地区过滤条件补齐（上游浏览页只收录本地片）。
func (s Source) browse(ctx context.Context, c *http.Client, q providerx.SearchQuery) (providerx.SearchPage, error) {
	first, _ := utf8.DecodeRuneInString(q.Title)
	params := "?c=" + url.QueryEscape(string(first)) + "&y=" + strconv.Itoa(q.Year)
	u := s.baseURL() + "/movies" + params

	b, err := fetchURL(ctx, c, u)
	if err != nil {
		return providerx.SearchPage{}, &providerx.Error{Source: s.Name(), Stage: "search", URL: u, Err: err}
	}
	anchors := parseAnchors(b)

	overflow := "/movies/index/" + strconv.Itoa(browseOverflowOffset)
	if bytes.Contains(b, []byte(overflow)) {
		u2 := s.baseURL() + overflow + params
		b2, err := fetchURL(ctx, c, u2)
		if err != nil {
			return providerx.SearchPage{}, &providerx.Error{Source: s.Name(), Stage: "search", URL: u2, Err: err}
		}
		anchors = append(anchors, parseAnchors(b2)...)
	}

	typeBadge := "Indian"
	if q.Region == domain.RegionInternational {
		typeBadge = ""
	}
	year := strconv.Itoa(q.Year)
	cands := make([]domain.RawCandidate, 0, len(anchors))
	for _, a := range anchors {
		cands = append(cands, domain.RawCandidate{
			DetailLink:   resolveURL(s.baseURL()+"/", a.href),
			DisplayTitle: a.label,
			BadgeText:    year,
			TypeBadge:    typeBadge,
		})
	}
	return providerx.SearchPage{URL: u, Candidates: cands, State: domain.StartPage(1), Body: b}, nil
}

// queryEscape 按表单编码转义关键字：空格变 '+'，其余保留字符（'&'、单引号、':'）与非 ASCII 一律百分号编码。
// 上游只要求空格与 '&' 正确转义，多转义的字符在服务端解码后含义不变。
func queryEscape(s string) string { return url.QueryEscape(s) }

// fixupStreamURL 修正上游已知的编码问题：下载地址里的 'N' 被错误地输出为大写；空格未转义。
func fixupStreamURL(href string) string {
	href = strings.TrimSpace(href)
	href = strings.ReplaceAll(href, "N", "n")
	return strings.ReplaceAll(href, " ", "%20")
}

func fetchURL(ctx context.Context, c *http.Client, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &providerx.HTTPStatusError{URL: u, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	}
	return io.ReadAll(resp.Body)
}

func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		return "http:" + href
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	bu, err := url.Parse(base)
	if err != nil {
		return href
	}
	ru, err := url.Parse(href)
	if err != nil {
		return href
	}
	return bu.ResolveReference(ru).String()
}
