package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/streamres/internal/catalog"
	"github.com/John-Robertt/streamres/internal/domain"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "search movie|tv <query>",
		Short: "在 TMDB 目录中搜索（结果可直接用于 resolve）",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseKind(args[0])
			if err != nil {
				return err
			}
			query := strings.Join(args[1:], " ")
			if !cmd.Flags().Changed("year") {
				query, year = catalog.ParseQuery(query)
			}
			if err := ctx.ensure(cmd); err != nil {
				return err
			}

			p, err := ctx.catalog().Search(cmd.Context(), kind, query, year)
			if err != nil {
				return fmt.Errorf("tmdb search: %w", err)
			}
			ctx.logger.Debug("目录搜索完成", "kind", string(kind), "query", query, "year", year, "results", len(p.Entries))
			return newOutput(cmd, ctx.flags.json).catalogPage(p)
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "按年份过滤")
	return cmd
}

func newDiscoverCommand(ctx *commandContext) *cobra.Command {
	var (
		sortFlag string
		page     int
	)
	cmd := &cobra.Command{
		Use:   "discover movie|tv",
		Short: "按热度/上映日期/票数浏览 TMDB 目录（--region indian 只列印度出品）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseKind(args[0])
			if err != nil {
				return err
			}
			sort, err := catalog.ParseSort(sortFlag)
			if err != nil {
				return err
			}
			if err := ctx.ensure(cmd); err != nil {
				return err
			}

			p, err := ctx.catalog().Discover(cmd.Context(), catalog.DiscoverQuery{
				Kind:   kind,
				Region: ctx.eff.Region,
				Sort:   sort,
				Page:   page,
			})
			if err != nil {
				return fmt.Errorf("tmdb discover: %w", err)
			}
			return newOutput(cmd, ctx.flags.json).catalogPage(p)
		},
	}
	cmd.Flags().StringVar(&sortFlag, "sort", "popularity", "排序：popularity|release_date|vote_count")
	cmd.Flags().IntVar(&page, "page", 1, "页码")
	return cmd
}
