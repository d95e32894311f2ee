package httpx

import (
	"errors"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Options 描述抓取上游页面用的 HTTP client。
//
// 约束：
//   - Timeout=0 表示不设置总超时（沿用宿主环境的默认 socket 超时）
//   - RetryMax 默认 0：解析核心不在内部重试，抓取失败直接上报 fetch_failed
type Options struct {
	ProxyURL string
	Timeout  time.Duration
	RetryMax int
}

// Transport 把“UA 池 + 代理 + keep-alive 策略 + 有界重试”固化为统一策略。
// source 只负责“拼 URL + 解析 HTML”，不关心网络细节。
type Transport struct {
	Base *http.Transport

	ua *uaPool

	// RetryMax 是最大重试次数（不含首次尝试）。
	RetryMax int

	// DisableKeepAlives 为 true 时对每个请求设置 Close=true。
	DisableKeepAlives bool
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// 只有 GET/HEAD 且无 body 的请求可以安全重放。
	max := t.RetryMax
	if max < 0 || !(req.Method == http.MethodGet || req.Method == http.MethodHead) || req.Body != nil {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		r := req.Clone(req.Context())
		if r.Header.Get("User-Agent") == "" && t.ua != nil {
			r.Header.Set("User-Agent", t.ua.random())
		}
		if t.DisableKeepAlives {
			r.Close = true
		}

		resp, err := t.Base.RoundTrip(r)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// NewClient 构造抓取上游用的 client。
// 配置了代理时强制每请求新连接（代理池轮换依赖该行为）。
func NewClient(opts Options) (*http.Client, error) {
	base := &http.Transport{
		TLSHandshakeTimeout: 10 * time.Second,
	}

	disableKeepAlives := false
	if proxyURL := strings.TrimSpace(opts.ProxyURL); proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, errors.New("proxy url 缺少 scheme 或 host")
		}
		base.Proxy = http.ProxyURL(u)
		base.DisableKeepAlives = true
		disableKeepAlives = true
	}

	retry := opts.RetryMax
	if retry < 0 {
		retry = 0
	}
	return &http.Client{
		Transport: &Transport{
			Base:              base,
			ua:                globalUA,
			RetryMax:          retry,
			DisableKeepAlives: disableKeepAlives,
		},
		Timeout: opts.Timeout,
	}, nil
}

type uaPool struct {
	mu  sync.Mutex
	rnd *rand.Rand
	uas []string
}

func (p *uaPool) random() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uas[p.rnd.Intn(len(p.uas))]
}

var globalUA = &uaPool{
	rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	uas: []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Linux; Android 13; SM-S918B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Mobile Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64; rv:123.0) Gecko/20100101 Firefox/123.0",
	},
}
