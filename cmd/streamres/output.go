package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/streamres/internal/catalog"
	"github.com/John-Robertt/streamres/internal/domain"
)

// output 决定结果写到哪里、以什么格式写。
//
// 契约：stdout 非终端（或 --json）时，stdout 必须且仅输出一个 JSON 文档；摘要/进度一律走 stderr。
type output struct {
	stdout io.Writer
	stderr io.Writer
	json   bool

	// progress 仅在 stderr 是终端时启用。
	progress io.Writer
}

func newOutput(cmd *cobra.Command, forceJSON bool) output {
	o := output{
		stdout: cmd.OutOrStdout(),
		stderr: cmd.ErrOrStderr(),
	}
	o.json = forceJSON || !isTerminal(o.stdout)
	if isTerminal(o.stderr) {
		o.progress = o.stderr
	}
	return o
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (o output) writeJSON(v any) error {
	enc := json.NewEncoder(o.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (o output) result(res domain.ResolutionResult) {
	summary := fmt.Sprintf("完成：status=%s pages=%d", res.Status, res.PagesSearched)
	if res.ErrorCode != "" {
		summary += " error_code=" + res.ErrorCode
	}

	if o.json {
		_ = o.writeJSON(res)
		fmt.Fprintln(o.stderr, summary)
		return
	}

	switch {
	case res.Resolved() && len(res.Episodes) > 0:
		for _, ep := range res.Episodes {
			fmt.Fprintf(o.stdout, "%s\t%s\n", ep.Label(), ep.StreamURL)
		}
		if res.NextPage > 0 {
			fmt.Fprintf(o.stdout, "下一页：--page %d\n", res.NextPage)
		}
	case res.Resolved():
		fmt.Fprintln(o.stdout, res.StreamURL)
	default:
		fmt.Fprintf(o.stdout, "未找到：%s%s\n", res.Title, yearSuffix(res.Year))
		if res.ErrorMsg != "" {
			fmt.Fprintf(o.stderr, "%s: %s\n", res.ErrorCode, truncate(res.ErrorMsg, 200))
		}
	}
	fmt.Fprintln(o.stderr, summary)
}

func (o output) catalogPage(p catalog.Page) error {
	if o.json {
		return o.writeJSON(p)
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "标题", "年份", "评分", "类型"})
	for _, e := range p.Entries {
		year := ""
		if e.Year > 0 {
			year = strconv.Itoa(e.Year)
		}
		tw.AppendRow(table.Row{
			e.ID,
			truncate(e.Title, 60),
			year,
			fmt.Sprintf("%.1f (%d)", e.VoteAverage, e.VoteCount),
			strings.Join(e.Genres, ", "),
		})
	}
	fmt.Fprintln(o.stdout, tw.Render())
	if p.HasNext() {
		fmt.Fprintf(o.stdout, "第 %d/%d 页，下一页：--page %d\n", p.Page, p.TotalPages, p.Page+1)
	}
	return nil
}

func yearSuffix(year int) string {
	if year <= 0 {
		return ""
	}
	return " (" + strconv.Itoa(year) + ")"
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
