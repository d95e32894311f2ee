package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/streamres/internal/catalog"
	"github.com/John-Robertt/streamres/internal/domain"
)

const upstreamSearch = `<html><body>
<a class="name" href="/movie/avengers-2012">Avengers (2012)</a><div class="quality">2012</div><div class="quality2">Indian</div>
</body></html>`

const upstreamDetail = `<html><body><a href="http://cdn.test/NewMovies/Avengers 2012.mp4" class="vh_button red icon-down">Download</a></body></html>`

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			_, _ = w.Write([]byte(upstreamSearch))
		case "/movie/avengers-2012":
			_, _ = w.Write([]byte(upstreamDetail))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, env map[string]string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	getenv := func(k string) string { return env[k] }
	cmd := newRootCommand(getenv)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 2
}

func decodeResult(t *testing.T, stdout string) domain.ResolutionResult {
	t.Helper()
	var res domain.ResolutionResult
	dec := json.NewDecoder(strings.NewReader(stdout))
	require.NoError(t, dec.Decode(&res), "stdout=%q", stdout)
	assert.False(t, dec.More(), "stdout 只能有一个 JSON 文档")
	return res
}

func TestCLI_ResolveMovie_StdoutIsSingleJSON(t *testing.T) {
	srv := newUpstream(t)

	stdout, stderr, err := execute(t, nil, "resolve", "movie", "Avengers (2012)", "--base-url", srv.URL)
	require.NoError(t, err, "stderr=%s", stderr)

	res := decodeResult(t, stdout)
	assert.Equal(t, domain.StatusResolved, res.Status)
	assert.Equal(t, 2012, res.Year)
	assert.Equal(t, "http://cdn.test/newMovies/Avengers%202012.mp4", res.StreamURL)
	assert.Contains(t, stderr, "status=resolved")
}

func TestCLI_ResolveMovie_NotFoundExitsOne(t *testing.T) {
	srv := newUpstream(t)

	stdout, _, err := execute(t, nil, "resolve", "movie", "Avengers", "--year", "1999", "--base-url", srv.URL)
	assert.Equal(t, 1, exitCode(err))

	res := decodeResult(t, stdout)
	assert.Equal(t, domain.StatusNotFound, res.Status)
	assert.Equal(t, domain.ErrCodeNoMatch, res.ErrorCode)
}

func TestCLI_ResolveMovie_UpstreamDownIsFetchFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	stdout, _, err := execute(t, nil, "resolve", "movie", "Avengers (2012)", "--base-url", srv.URL)
	assert.Equal(t, 1, exitCode(err))
	assert.Equal(t, domain.StatusFetchFailed, decodeResult(t, stdout).Status)
}

func TestCLI_MissingConfigExitsTwo(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.toml")

	stdout, _, err := execute(t, nil, "resolve", "movie", "Avengers (2012)", "--config", missing)
	assert.Equal(t, 2, exitCode(err))

	res := decodeResult(t, stdout)
	assert.Equal(t, domain.StatusNotFound, res.Status)
	assert.Equal(t, domain.ErrCodeConfigNotFound, res.ErrorCode)
}

func TestCLI_InvalidRequestExitsTwo(t *testing.T) {
	stdout, _, err := execute(t, nil, "resolve", "movie", "Avengers", "--year", "-3")
	assert.Equal(t, 2, exitCode(err))
	assert.Equal(t, domain.ErrCodeInvalidRequest, decodeResult(t, stdout).ErrorCode)
}

func TestCLI_SearchUsesConfiguredCatalog(t *testing.T) {
	var gotQuery string
	tmdb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/movie" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"page":1,"total_pages":1,"results":[{"id":24428,"title":"The Avengers","release_date":"2012-04-25","genre_ids":[28]}]}`))
	}))
	defer tmdb.Close()

	cfg := filepath.Join(t.TempDir(), "streamres.toml")
	require.NoError(t, os.WriteFile(cfg, []byte("[tmdb]\nbase_url = \""+tmdb.URL+"\"\n"), 0o644))

	stdout, stderr, err := execute(t, map[string]string{"TMDB_API_KEY": "k"}, "search", "movie", "Avengers (2012)", "--config", cfg)
	require.NoError(t, err, "stderr=%s", stderr)

	var p catalog.Page
	require.NoError(t, json.Unmarshal([]byte(stdout), &p))
	require.Len(t, p.Entries, 1)
	assert.Equal(t, "The Avengers", p.Entries[0].Title)
	assert.Equal(t, 2012, p.Entries[0].Year)
	assert.Contains(t, gotQuery, "year=2012")
	assert.Contains(t, gotQuery, "query=Avengers")
}

func TestCLI_SearchWithoutKeyFails(t *testing.T) {
	_, _, err := execute(t, nil, "search", "movie", "Avengers")
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrMissingAPIKey)
}

func TestCLI_DiscoverRejectsUnknownSort(t *testing.T) {
	_, _, err := execute(t, nil, "discover", "movie", "--sort", "random")
	assert.Error(t, err)
}
