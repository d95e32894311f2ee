// Package resolve 编排一次解析：搜索 → 匹配 → 提取，产出唯一的终态结果。
//
// 每次解析都以 resolved / not_found / fetch_failed 三者之一结束；
// 只有抓取失败会以 fetch_failed 结束，其余异常（空结果、结构缺失、分页异常）都降级为 not_found。
package resolve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/streamres/internal/domain"
	"github.com/John-Robertt/streamres/internal/infra/dump"
	"github.com/John-Robertt/streamres/internal/match"
	"github.com/John-Robertt/streamres/internal/normalize"
	"github.com/John-Robertt/streamres/internal/provider"
)

// DefaultMaxPages 是剧集翻页的上限。上游的“下一页”标记可能永远不消失，必须有界。
const DefaultMaxPages = 10

// Resolver 持有解析所需的依赖，不持有任何单次解析的可变状态，可以被并发调用。
type Resolver struct {
	Source provider.Source
	Client *http.Client

	// MaxPages <= 0 时使用 DefaultMaxPages。
	MaxPages int

	Logger *slog.Logger
	// Dump 非空且启用时，解析为空的搜索页与缺少下载控件的详情页会被落盘。
	Dump *dump.Store

	newID func() string
	now   func() time.Time
}

func (r *Resolver) maxPages() int {
	if r.MaxPages <= 0 {
		return DefaultMaxPages
	}
	return r.MaxPages
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r.Logger
}

func (r *Resolver) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// Resolve 解析单个标题，返回唯一的播放地址。
func (r *Resolver) Resolve(ctx context.Context, req domain.ResolutionRequest) domain.ResolutionResult {
	return r.ResolveWithObserver(ctx, req, nil)
}

// ResolveWithObserver 与 Resolve 相同，但允许传入 Observer 观察状态迁移。
func (r *Resolver) ResolveWithObserver(ctx context.Context, req domain.ResolutionRequest, obs Observer) domain.ResolutionResult {
	a := r.begin(req, obs)
	if a.res.Status != "" {
		return a.finish()
	}

	q := searchQuery(req)
	st := domain.StartPage(req.Page)
	sawCandidates := false

	for n := 0; n < r.maxPages(); n++ {
		a.enter(StateSearching, "page", st.Current)
		q.Page = st.Current
		page, err := r.Source.Search(ctx, q, r.Client)
		if err != nil {
			return a.failSearch(err)
		}
		a.res.PagesSearched++
		a.log.Debug("搜索页已解析", "page", st.Current, "url", page.URL, "candidates", len(page.Candidates), "dropped", page.Dropped)
		if len(page.Candidates) == 0 {
			a.dump("search", page.Body)
		} else {
			sawCandidates = true
		}

		a.enter(StateMatching, "page", st.Current, "candidates", len(page.Candidates))
		if out := match.Match(page.Candidates, req); out.Found() {
			return r.extract(ctx, a, out.Candidate)
		}

		if !page.State.HasNext {
			if sawCandidates {
				return a.notFound(domain.ErrCodeNoMatch, "没有符合条件的候选")
			}
			return a.notFound(domain.ErrCodeNoCandidates, "上游没有返回任何候选")
		}
		next, err := page.State.Advance()
		if err != nil {
			return a.notFound(domain.ErrCodePagination, err.Error())
		}
		st = next
	}
	return a.notFound(domain.ErrCodePageLimit, fmt.Sprintf("已搜索 %d 页仍未匹配", a.res.PagesSearched))
}

func (r *Resolver) extract(ctx context.Context, a *attempt, c *domain.NormalizedCandidate) domain.ResolutionResult {
	a.res.MatchedTitle = c.Raw.DisplayTitle
	a.res.DetailURL = c.Raw.DetailLink
	a.enter(StateExtracting, "detail_url", c.Raw.DetailLink)

	link, err := r.Source.Extract(ctx, c.Raw.DetailLink, r.Client)
	if err != nil {
		return a.failExtract(err)
	}
	a.res.Status = domain.StatusResolved
	a.res.StreamURL = link
	return a.finish()
}

// ResolveEpisodes 列出 req.Page 这一页上所有匹配的分集及其播放地址（剧集浏览模式）。
//
// 只抓一页：上游还有下一页时通过 NextPage 告诉宿主，由宿主决定是否继续。
// 单个分集缺少下载控件时跳过该分集；任何抓取失败都使整次解析以 fetch_failed 结束。
func (r *Resolver) ResolveEpisodes(ctx context.Context, req domain.ResolutionRequest, obs Observer) domain.ResolutionResult {
	a := r.begin(req, obs)
	if a.res.Status != "" {
		return a.finish()
	}
	if req.Kind != domain.KindTV {
		return a.notFound(domain.ErrCodeInvalidRequest, "分集列表只支持 tv")
	}

	q := searchQuery(req)
	q.Page = req.Page
	a.enter(StateSearching, "page", req.Page)
	page, err := r.Source.Search(ctx, q, r.Client)
	if err != nil {
		return a.failSearch(err)
	}
	a.res.PagesSearched = 1
	if page.State.HasNext {
		if page.State.Next > page.State.Current {
			a.res.NextPage = page.State.Next
		} else {
			a.log.Warn("上游分页回退，不提供下一页", "current", page.State.Current, "next", page.State.Next)
		}
	}
	if len(page.Candidates) == 0 {
		a.dump("search", page.Body)
		return a.notFound(domain.ErrCodeNoCandidates, "上游没有返回任何候选")
	}

	a.enter(StateMatching, "page", req.Page, "candidates", len(page.Candidates))
	eps := match.MatchAll(page.Candidates, req)
	if len(eps) == 0 {
		return a.notFound(domain.ErrCodeNoMatch, "没有符合条件的分集")
	}

	a.enter(StateExtracting, "episodes", len(eps))
	for _, c := range eps {
		link, err := r.Source.Extract(ctx, c.Raw.DetailLink, r.Client)
		if err != nil {
			if provider.IsFetchFailed(err) {
				return a.fail(err)
			}
			a.dumpExtraction(err)
			a.log.Warn("分集缺少下载控件，已跳过", "detail_url", c.Raw.DetailLink, "error", err)
			continue
		}
		a.res.Episodes = append(a.res.Episodes, domain.Episode{
			Title:     c.Raw.DisplayTitle,
			Season:    c.Raw.TypeBadge,
			Episode:   c.Raw.BadgeText,
			DetailURL: c.Raw.DetailLink,
			StreamURL: link,
		})
	}
	if len(a.res.Episodes) == 0 {
		return a.notFound(domain.ErrCodeExtractionFailed, "所有分集都缺少下载控件")
	}
	a.res.Status = domain.StatusResolved
	return a.finish()
}

// searchQuery 把请求标题交给与候选相同的规范化管线：Title 用于判断查询方式，Query 发给上游。
func searchQuery(req domain.ResolutionRequest) provider.SearchQuery {
	q := provider.SearchQuery{Year: req.Year, Kind: req.Kind, Region: req.Region, Page: req.Page}
	if req.Kind == domain.KindTV {
		q.Title = normalize.ShowTitle(req.Title)
		q.Query = q.Title
		return q
	}
	q.Title = normalize.Title(req.Title, req.Year)
	q.Query = normalize.QueryTitle(req.Title, req.Year)
	return q
}

// attempt 是单次解析的私有状态，不在 goroutine 之间共享。
type attempt struct {
	r       *Resolver
	obs     Observer
	log     *slog.Logger
	started time.Time
	res     domain.ResolutionResult
}

func (r *Resolver) begin(req domain.ResolutionRequest, obs Observer) *attempt {
	id := uuid.NewString()
	if r.newID != nil {
		id = r.newID()
	}
	started := r.clock()
	a := &attempt{
		r:       r,
		obs:     obs,
		started: started,
		res: domain.ResolutionResult{
			Attempt:   id,
			Title:     req.Title,
			Year:      req.Year,
			Kind:      req.Kind,
			Region:    req.Region,
			StartedAt: started,
		},
	}
	a.log = r.logger().With("attempt", id)

	if r.Source == nil || r.Client == nil {
		a.res.Status = domain.StatusNotFound
		a.res.ErrorCode = domain.ErrCodeInvalidRequest
		a.res.ErrorMsg = "source 与 http client 不能为空"
		return a
	}
	a.res.Source = r.Source.Name()
	a.log = a.log.With("source", a.res.Source)
	a.enter(StateStart, "title", req.Title, "year", req.Year, "kind", string(req.Kind), "region", string(req.Region), "page", req.Page)
	return a
}

func (a *attempt) enter(st State, kv ...any) {
	a.log.Debug("进入状态", append([]any{"state", string(st)}, kv...)...)
	if a.obs == nil {
		return
	}
	fields := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			fields[k] = kv[i+1]
		}
	}
	a.obs.OnState(a.res.Attempt, st, fields)
}

func (a *attempt) notFound(code, msg string) domain.ResolutionResult {
	a.res.Status = domain.StatusNotFound
	a.res.ErrorCode = code
	a.res.ErrorMsg = msg
	return a.finish()
}

func (a *attempt) fail(err error) domain.ResolutionResult {
	a.res.Status = domain.StatusFetchFailed
	a.res.ErrorCode = domain.ErrCodeFetchFailed
	a.res.ErrorMsg = err.Error()
	return a.finish()
}

// failSearch：抓取失败以 fetch_failed 结束；其余错误（查询本身无效）降级为 not_found。
func (a *attempt) failSearch(err error) domain.ResolutionResult {
	if provider.IsFetchFailed(err) {
		return a.fail(err)
	}
	return a.notFound(domain.ErrCodeInvalidRequest, err.Error())
}

func (a *attempt) failExtract(err error) domain.ResolutionResult {
	if provider.IsFetchFailed(err) {
		return a.fail(err)
	}
	a.dumpExtraction(err)
	if errors.Is(err, provider.ErrExtractionFailed) {
		return a.notFound(domain.ErrCodeExtractionFailed, err.Error())
	}
	return a.notFound(domain.ErrCodeInvalidRequest, err.Error())
}

func (a *attempt) dumpExtraction(err error) {
	var ee *provider.ExtractionError
	if errors.As(err, &ee) {
		a.dump("extract", ee.Body)
	}
}

// dump 失败只记日志，不影响解析结果。
func (a *attempt) dump(stage string, body []byte) {
	if !a.r.Dump.Enabled() || len(body) == 0 {
		return
	}
	p, err := a.r.Dump.WritePage(a.res.Source, stage, a.res.Attempt, body)
	if err != nil {
		a.log.Warn("诊断页面落盘失败", "stage", stage, "error", err)
		return
	}
	a.log.Info("诊断页面已落盘", "stage", stage, "path", p)
}

func (a *attempt) finish() domain.ResolutionResult {
	a.res.FinishedAt = a.r.clock()
	a.res.Finalize()

	st := State(a.res.Status)
	a.log.Info("解析结束",
		"status", a.res.Status,
		"error_code", a.res.ErrorCode,
		"pages", a.res.PagesSearched,
		"duration", a.res.FinishedAt.Sub(a.started),
	)
	if a.obs != nil {
		a.obs.OnState(a.res.Attempt, st, map[string]any{"error_code": a.res.ErrorCode})
		a.obs.OnDone(a.res, a.res.FinishedAt.Sub(a.started))
	}
	return a.res
}
