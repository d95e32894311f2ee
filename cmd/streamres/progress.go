package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/John-Robertt/streamres/internal/domain"
	"github.com/John-Robertt/streamres/internal/resolve"
)

var _ resolve.Observer = (*progressUI)(nil)

// progressUI 把状态迁移逐行打印到交互终端（stderr），不影响 stdout 的结果输出。
type progressUI struct {
	w io.Writer

	mu  sync.Mutex
	now func() time.Time
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{w: w, now: time.Now}
}

func (p *progressUI) OnState(attempt string, st resolve.State, fields map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if st == resolve.StateStart {
		fmt.Fprintf(p.w, "[%s] 解析 %v%s (%v, region=%v) attempt=%s\n",
			p.now().Format("15:04:05"), fields["title"], yearSuffix(intField(fields, "year")), fields["kind"], fields["region"], shortID(attempt),
		)
		return
	}

	switch st {
	case resolve.StateSearching:
		fmt.Fprintf(p.w, "  搜索: page=%d\n", intField(fields, "page"))
	case resolve.StateMatching:
		fmt.Fprintf(p.w, "  匹配: candidates=%d\n", intField(fields, "candidates"))
	case resolve.StateExtracting:
		if n := intField(fields, "episodes"); n > 0 {
			fmt.Fprintf(p.w, "  提取: episodes=%d\n", n)
		} else {
			fmt.Fprintf(p.w, "  提取: %s\n", truncate(fmt.Sprint(fields["detail_url"]), 120))
		}
	default:
		// 终态由 OnDone 统一打印。
	}
}

func (p *progressUI) OnDone(res domain.ResolutionResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := "OK"
	switch res.Status {
	case domain.StatusNotFound:
		status = "NOT FOUND"
	case domain.StatusFetchFailed:
		status = "FAIL"
	}
	if res.ErrorCode != "" {
		fmt.Fprintf(p.w, "  %s %s: %s (%s)\n", status, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur))
		return
	}
	fmt.Fprintf(p.w, "  %s pages=%d (%s)\n", status, res.PagesSearched, formatShortDuration(dur))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	switch x := fields[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}
