package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/streamres/internal/catalog"
	"github.com/John-Robertt/streamres/internal/config"
	"github.com/John-Robertt/streamres/internal/domain"
	"github.com/John-Robertt/streamres/internal/resolve"
)

func newResolveCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "解析标题为播放地址",
	}
	cmd.AddCommand(newResolveKindCommand(ctx, domain.KindMovie))
	cmd.AddCommand(newResolveKindCommand(ctx, domain.KindTV))
	return cmd
}

func newResolveKindCommand(ctx *commandContext, kind domain.Kind) *cobra.Command {
	var (
		year     int
		page     int
		episodes bool
	)

	short := "解析电影标题"
	if kind == domain.KindTV {
		short = "解析剧集标题（按页搜索，最多 max-pages 页）"
	}

	cmd := &cobra.Command{
		Use:   string(kind) + " <title>",
		Short: short,
		Long: `标题可以写成 "Avengers (2012)"，此时括号里的年份等同于 --year。

stdout 非终端时输出一个 ResolutionResult JSON；退出码 0 表示 resolved，1 表示 not_found/fetch_failed，2 表示配置或参数错误。`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newOutput(cmd, ctx.flags.json)

			title := strings.Join(args, " ")
			if !cmd.Flags().Changed("year") {
				title, year = catalog.ParseQuery(title)
			}

			if err := ctx.ensure(cmd); err != nil {
				if config.Code(err) == "" {
					return err
				}
				out.result(rejected(title, year, kind, config.Code(err), err.Error()))
				return &exitError{code: 2}
			}

			req, err := domain.NewRequest(title, year, kind, ctx.eff.Region, page)
			if err != nil {
				out.result(rejected(title, year, kind, domain.ErrCodeInvalidRequest, err.Error()))
				return &exitError{code: 2}
			}
			r, err := ctx.resolver()
			if err != nil {
				return err
			}

			var obs resolve.Observer
			if out.progress != nil {
				obs = newProgressUI(out.progress)
			}

			var res domain.ResolutionResult
			if episodes {
				res = r.ResolveEpisodes(cmd.Context(), req, obs)
			} else {
				res = r.ResolveWithObserver(cmd.Context(), req, obs)
			}
			out.result(res)
			if !res.Resolved() {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&year, "year", 0, "上映/首播年份")
	cmd.Flags().IntVar(&page, "page", 1, "起始页（仅剧集）")
	if kind == domain.KindTV {
		cmd.Flags().BoolVar(&episodes, "episodes", false, "列出该页所有匹配的分集（不自动翻页）")
	}
	return cmd
}

// rejected 为尚未开始解析就失败的请求构造结果，保持 stdout JSON 契约。
func rejected(title string, year int, kind domain.Kind, code, msg string) domain.ResolutionResult {
	now := time.Now().UTC()
	res := domain.ResolutionResult{
		Title:      title,
		Year:       year,
		Kind:       kind,
		Status:     domain.StatusNotFound,
		ErrorCode:  code,
		ErrorMsg:   msg,
		StartedAt:  now,
		FinishedAt: now,
	}
	res.Finalize()
	return res
}
