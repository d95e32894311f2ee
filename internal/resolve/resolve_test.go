package resolve

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/streamres/internal/domain"
	"github.com/John-Robertt/streamres/internal/infra/dump"
	"github.com/John-Robertt/streamres/internal/provider"
)

// stubSource 按页码返回预设结果，并记录每次调用。
type stubSource struct {
	mu sync.Mutex

	pages     map[int]provider.SearchPage
	pageFn    func(q provider.SearchQuery) (provider.SearchPage, error)
	searchErr error
	links     map[string]string
	linkErrs  map[string]error

	searches []provider.SearchQuery
	extracts []string
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Search(_ context.Context, q provider.SearchQuery, _ *http.Client) (provider.SearchPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searches = append(s.searches, q)
	if s.searchErr != nil {
		return provider.SearchPage{}, s.searchErr
	}
	if s.pageFn != nil {
		return s.pageFn(q)
	}
	p, ok := s.pages[q.Page]
	if !ok {
		return provider.SearchPage{State: domain.StartPage(q.Page), Body: []byte("<html></html>")}, nil
	}
	if p.State.Current == 0 {
		p.State.Current = q.Page
	}
	return p, nil
}

func (s *stubSource) Extract(_ context.Context, link string, _ *http.Client) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extracts = append(s.extracts, link)
	if err, ok := s.linkErrs[link]; ok {
		return "", err
	}
	if u, ok := s.links[link]; ok {
		return u, nil
	}
	return "", &provider.ExtractionError{URL: link, Marker: "download", Body: []byte("<html>no button</html>")}
}

func newResolver(src provider.Source) *Resolver {
	return &Resolver{
		Source: src,
		Client: &http.Client{},
		newID:  func() string { return "attempt-1" },
		now:    func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("x", 3600)) },
	}
}

func mustReq(t *testing.T, title string, year int, kind domain.Kind, region domain.Region, page int) domain.ResolutionRequest {
	t.Helper()
	req, err := domain.NewRequest(title, year, kind, region, page)
	require.NoError(t, err)
	return req
}

func fetchErr(stage string) error {
	return &provider.Error{Source: "stub", Stage: stage, URL: "http://up.test", Err: errors.New("connection refused")}
}

func TestResolve_AvengersScenario(t *testing.T) {
	src := &stubSource{
		pages: map[int]provider.SearchPage{1: {Candidates: []domain.RawCandidate{
			{DetailLink: "/m/1", DisplayTitle: "Avengers (2012)", BadgeText: "2012", TypeBadge: "Indian"},
		}}},
		links: map[string]string{"/m/1": "http://cdn.test/avengers.mp4"},
	}

	res := newResolver(src).Resolve(context.Background(), mustReq(t, "Avengers", 2012, domain.KindMovie, domain.RegionAny, 1))

	assert.Equal(t, domain.StatusResolved, res.Status)
	assert.Equal(t, "http://cdn.test/avengers.mp4", res.StreamURL)
	assert.Equal(t, "Avengers (2012)", res.MatchedTitle)
	assert.Equal(t, "/m/1", res.DetailURL)
	assert.Equal(t, "stub", res.Source)
	assert.Equal(t, "attempt-1", res.Attempt)
	assert.Equal(t, 1, res.PagesSearched)
	assert.Empty(t, res.ErrorCode)
	assert.Equal(t, time.UTC, res.FinishedAt.Location())

	require.Len(t, src.searches, 1)
	assert.Equal(t, "Avengers", src.searches[0].Title)
	assert.Equal(t, []string{"/m/1"}, src.extracts)
}

func TestResolve_RequestTitleNormalizedBeforeSearch(t *testing.T) {
	src := &stubSource{
		pages: map[int]provider.SearchPage{1: {Candidates: []domain.RawCandidate{
			{DetailLink: "/m/hp", DisplayTitle: "Harry Potter and the Sorcerer's Stone (2001)", BadgeText: "2001", TypeBadge: "English"},
		}}},
		links: map[string]string{"/m/hp": "http://cdn.test/hp.mp4"},
	}

	res := newResolver(src).Resolve(context.Background(), mustReq(t, "Harry Potter and the Philosopher's Stone", 2001, domain.KindMovie, domain.RegionAny, 1))

	assert.Equal(t, domain.StatusResolved, res.Status)
	require.Len(t, src.searches, 1)
	assert.Equal(t, "Harry Potter and the Sorcerer's Stone", src.searches[0].Title)
	assert.Equal(t, "Harry Potter and the Philosopher's Stone", res.Title, "结果保留宿主给出的原始标题")
}

func TestResolve_DualAudioOnlyAffectsQuery(t *testing.T) {
	src := &stubSource{}
	_ = newResolver(src).Resolve(context.Background(), mustReq(t, "Iron Man", 2008, domain.KindMovie, domain.RegionAny, 1))

	require.Len(t, src.searches, 1)
	assert.Equal(t, "Iron Man", src.searches[0].Title)
	assert.Equal(t, "Iron Man (Dual Audio)", src.searches[0].Query)
}

func TestResolve_EmptyResultNoNextPage(t *testing.T) {
	src := &stubSource{}
	res := newResolver(src).Resolve(context.Background(), mustReq(t, "Avengers", 2012, domain.KindMovie, domain.RegionAny, 1))

	assert.Equal(t, domain.StatusNotFound, res.Status)
	assert.Equal(t, domain.ErrCodeNoCandidates, res.ErrorCode)
	assert.Empty(t, src.extracts, "空结果不应进入提取")
	assert.Equal(t, 1, res.PagesSearched)
}

func TestResolve_NoEligibleCandidate(t *testing.T) {
	src := &stubSource{
		pages: map[int]provider.SearchPage{1: {Candidates: []domain.RawCandidate{
			{DetailLink: "/m/1", DisplayTitle: "Avengers (2013)", BadgeText: "2013", TypeBadge: "Indian"},
		}}},
	}
	res := newResolver(src).Resolve(context.Background(), mustReq(t, "Avengers", 2012, domain.KindMovie, domain.RegionAny, 1))

	assert.Equal(t, domain.StatusNotFound, res.Status)
	assert.Equal(t, domain.ErrCodeNoMatch, res.ErrorCode)
	assert.Empty(t, src.extracts)
}

func TestResolve_MissingDownloadControlIsNotFound(t *testing.T) {
	dir := t.TempDir()
	src := &stubSource{
		pages: map[int]provider.SearchPage{1: {Candidates: []domain.RawCandidate{
			{DetailLink: "/m/1", DisplayTitle: "Avengers", BadgeText: "2012", TypeBadge: "English"},
		}}},
	}
	r := newResolver(src)
	r.Dump = dump.New(dir)

	res := r.Resolve(context.Background(), mustReq(t, "Avengers", 2012, domain.KindMovie, domain.RegionAny, 1))

	assert.Equal(t, domain.StatusNotFound, res.Status)
	assert.Equal(t, domain.ErrCodeExtractionFailed, res.ErrorCode)
	assert.Empty(t, res.StreamURL)
	assert.Equal(t, "/m/1", res.DetailURL)

	entries, err := os.ReadDir(filepath.Join(dir, "stub", "extract"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "缺少下载控件的详情页应落盘")
}

func TestResolve_SearchFetchFailure(t *testing.T) {
	src := &stubSource{searchErr: fetchErr("search")}
	res := newResolver(src).Resolve(context.Background(), mustReq(t, "Avengers", 2012, domain.KindMovie, domain.RegionAny, 1))

	assert.Equal(t, domain.StatusFetchFailed, res.Status)
	assert.Equal(t, domain.ErrCodeFetchFailed, res.ErrorCode)
	assert.Contains(t, res.ErrorMsg, "connection refused")
	assert.Zero(t, res.PagesSearched)
}

func TestResolve_ExtractFetchFailure(t *testing.T) {
	src := &stubSource{
		pages: map[int]provider.SearchPage{1: {Candidates: []domain.RawCandidate{
			{DetailLink: "/m/1", DisplayTitle: "Avengers", BadgeText: "2012", TypeBadge: "English"},
		}}},
		linkErrs: map[string]error{"/m/1": fetchErr("extract")},
	}
	res := newResolver(src).Resolve(context.Background(), mustReq(t, "Avengers", 2012, domain.KindMovie, domain.RegionAny, 1))
	assert.Equal(t, domain.StatusFetchFailed, res.Status)
}

func TestResolve_InvalidQueryIsNotFound(t *testing.T) {
	src := &stubSource{searchErr: errors.New("搜索关键字不能为空")}
	res := newResolver(src).Resolve(context.Background(), mustReq(t, "x", 0, domain.KindMovie, domain.RegionAny, 1))
	assert.Equal(t, domain.StatusNotFound, res.Status)
	assert.Equal(t, domain.ErrCodeInvalidRequest, res.ErrorCode)
}

func TestResolve_MissingDependencies(t *testing.T) {
	res := (&Resolver{}).Resolve(context.Background(), mustReq(t, "Avengers", 2012, domain.KindMovie, domain.RegionAny, 1))
	assert.Equal(t, domain.StatusNotFound, res.Status)
	assert.Equal(t, domain.ErrCodeInvalidRequest, res.ErrorCode)
	assert.NotEmpty(t, res.Attempt)
}

func alwaysNext(q provider.SearchQuery) (provider.SearchPage, error) {
	return provider.SearchPage{
		State: domain.PageState{Current: q.Page, HasNext: true, Next: q.Page + 1},
		Candidates: []domain.RawCandidate{
			{DetailLink: "/tvshow/other", DisplayTitle: "Other Show", BadgeText: "Episode 1", TypeBadge: "Season 1"},
		},
	}, nil
}

func TestResolve_PageLimitBoundsSearches(t *testing.T) {
	for _, n := range []int{1, 2, 5, 10} {
		src := &stubSource{pageFn: alwaysNext}
		r := newResolver(src)
		r.MaxPages = n

		res := r.Resolve(context.Background(), mustReq(t, "Scam 1992", 0, domain.KindTV, domain.RegionAny, 1))

		assert.Equal(t, domain.StatusNotFound, res.Status, "n=%d", n)
		assert.Equal(t, domain.ErrCodePageLimit, res.ErrorCode, "n=%d", n)
		assert.Len(t, src.searches, n, "n=%d", n)
		assert.Equal(t, n, res.PagesSearched, "n=%d", n)
	}
}

func TestResolve_DefaultPageLimit(t *testing.T) {
	src := &stubSource{pageFn: alwaysNext}
	res := newResolver(src).Resolve(context.Background(), mustReq(t, "Scam 1992", 0, domain.KindTV, domain.RegionAny, 1))
	assert.Equal(t, domain.ErrCodePageLimit, res.ErrorCode)
	assert.Len(t, src.searches, DefaultMaxPages)
}

func TestResolve_ShowMatchOnLaterPage(t *testing.T) {
	src := &stubSource{
		pages: map[int]provider.SearchPage{
			3: {State: domain.PageState{HasNext: true, Next: 4}, Candidates: []domain.RawCandidate{
				{DetailLink: "/tvshow/x", DisplayTitle: "Other", BadgeText: "Episode 1", TypeBadge: "Season 1"},
			}},
			4: {Candidates: []domain.RawCandidate{
				{DetailLink: "/tvshow/scam-e1", DisplayTitle: "Scam 1992: The Harshad Mehta Story", BadgeText: "Episode 1", TypeBadge: "Season 1"},
			}},
		},
		links: map[string]string{"/tvshow/scam-e1": "http://cdn.test/scam-e1.mp4"},
	}

	res := newResolver(src).Resolve(context.Background(), mustReq(t, "Scam 1992 - The Harshad Mehta Story", 2020, domain.KindTV, domain.RegionAny, 3))

	require.Equal(t, domain.StatusResolved, res.Status)
	assert.Equal(t, "http://cdn.test/scam-e1.mp4", res.StreamURL)
	assert.Equal(t, 2, res.PagesSearched)
	require.Len(t, src.searches, 2)
	assert.Equal(t, 3, src.searches[0].Page)
	assert.Equal(t, 4, src.searches[1].Page)
	assert.Equal(t, "Scam 1992: The Harshad Mehta Story", src.searches[0].Query)
}

func TestResolve_PaginationRegressionStops(t *testing.T) {
	src := &stubSource{pageFn: func(q provider.SearchQuery) (provider.SearchPage, error) {
		return provider.SearchPage{State: domain.PageState{Current: q.Page, HasNext: true, Next: q.Page}}, nil
	}}
	res := newResolver(src).Resolve(context.Background(), mustReq(t, "Scam 1992", 0, domain.KindTV, domain.RegionAny, 2))

	assert.Equal(t, domain.StatusNotFound, res.Status)
	assert.Equal(t, domain.ErrCodePagination, res.ErrorCode)
	assert.Len(t, src.searches, 1)
}

func TestResolve_ConcurrentAttemptsAreIndependent(t *testing.T) {
	src := &stubSource{
		pages: map[int]provider.SearchPage{1: {Candidates: []domain.RawCandidate{
			{DetailLink: "/m/1", DisplayTitle: "Avengers", BadgeText: "2012", TypeBadge: "English"},
			{DetailLink: "/m/2", DisplayTitle: "Thor", BadgeText: "2011", TypeBadge: "English"},
		}}},
		links: map[string]string{"/m/1": "http://cdn.test/1.mp4", "/m/2": "http://cdn.test/2.mp4"},
	}
	r := &Resolver{Source: src, Client: &http.Client{}}

	reqs := []domain.ResolutionRequest{
		mustReq(t, "Avengers", 2012, domain.KindMovie, domain.RegionAny, 1),
		mustReq(t, "Thor", 2011, domain.KindMovie, domain.RegionAny, 1),
	}

	var wg sync.WaitGroup
	out := make([]domain.ResolutionResult, 20)
	for i := range out {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out[i] = r.Resolve(context.Background(), reqs[i%2])
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i, res := range out {
		want := "http://cdn.test/1.mp4"
		if i%2 == 1 {
			want = "http://cdn.test/2.mp4"
		}
		assert.Equal(t, want, res.StreamURL, "i=%d", i)
		assert.False(t, seen[res.Attempt], "attempt id 重复：%s", res.Attempt)
		seen[res.Attempt] = true
	}
}

func TestResolveEpisodes_ListsPageAndSkipsBrokenEpisodes(t *testing.T) {
	src := &stubSource{
		pages: map[int]provider.SearchPage{1: {
			State: domain.PageState{HasNext: true, Next: 2},
			Candidates: []domain.RawCandidate{
				{DetailLink: "/tvshow/e1", DisplayTitle: "Asur: Welcome to Your Dark Side", BadgeText: "Episode 1", TypeBadge: "Season 2"},
				{DetailLink: "/tvshow/e2", DisplayTitle: "Asur: Welcome to Your Dark Side", BadgeText: "Episode 2", TypeBadge: "Season 2"},
				{DetailLink: "/movie/asur", DisplayTitle: "Asur: Welcome to Your Dark Side", BadgeText: "2020", TypeBadge: "Indian"},
			},
		}},
		links: map[string]string{"/tvshow/e1": "http://cdn.test/e1.mp4"},
	}

	res := newResolver(src).ResolveEpisodes(context.Background(), mustReq(t, "Asur", 2020, domain.KindTV, domain.RegionAny, 1), nil)

	require.Equal(t, domain.StatusResolved, res.Status)
	assert.Equal(t, 2, res.NextPage)
	require.Len(t, res.Episodes, 1)
	assert.Equal(t, domain.Episode{
		Title:     "Asur: Welcome to Your Dark Side",
		Season:    "Season 2",
		Episode:   "Episode 1",
		DetailURL: "/tvshow/e1",
		StreamURL: "http://cdn.test/e1.mp4",
	}, res.Episodes[0])
	assert.Equal(t, []string{"/tvshow/e1", "/tvshow/e2"}, src.extracts)
}

func TestResolveEpisodes_PaginationRegressionIsLogged(t *testing.T) {
	src := &stubSource{
		pages: map[int]provider.SearchPage{2: {
			State: domain.PageState{HasNext: true, Next: 2},
			Candidates: []domain.RawCandidate{
				{DetailLink: "/tvshow/e1", DisplayTitle: "Asur: Welcome to Your Dark Side", BadgeText: "Episode 1", TypeBadge: "Season 2"},
			},
		}},
		links: map[string]string{"/tvshow/e1": "http://cdn.test/e1.mp4"},
	}
	var logs bytes.Buffer
	r := newResolver(src)
	r.Logger = slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))

	res := r.ResolveEpisodes(context.Background(), mustReq(t, "Asur", 0, domain.KindTV, domain.RegionAny, 2), nil)

	require.Equal(t, domain.StatusResolved, res.Status)
	assert.Zero(t, res.NextPage)
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "上游分页回退")
	assert.Contains(t, logs.String(), "next=2")
}

func TestResolveEpisodes_Errors(t *testing.T) {
	res := newResolver(&stubSource{}).ResolveEpisodes(context.Background(), mustReq(t, "Avengers", 2012, domain.KindMovie, domain.RegionAny, 1), nil)
	assert.Equal(t, domain.ErrCodeInvalidRequest, res.ErrorCode)

	res = newResolver(&stubSource{}).ResolveEpisodes(context.Background(), mustReq(t, "Asur", 0, domain.KindTV, domain.RegionAny, 1), nil)
	assert.Equal(t, domain.ErrCodeNoCandidates, res.ErrorCode)
	assert.Zero(t, res.NextPage)

	src := &stubSource{
		pages: map[int]provider.SearchPage{1: {Candidates: []domain.RawCandidate{
			{DetailLink: "/tvshow/e1", DisplayTitle: "Asur: Welcome to Your Dark Side", BadgeText: "Episode 1", TypeBadge: "Season 2"},
		}}},
		linkErrs: map[string]error{"/tvshow/e1": fetchErr("extract")},
	}
	res = newResolver(src).ResolveEpisodes(context.Background(), mustReq(t, "Asur", 0, domain.KindTV, domain.RegionAny, 1), nil)
	assert.Equal(t, domain.StatusFetchFailed, res.Status)
}
