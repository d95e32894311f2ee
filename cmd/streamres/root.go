package main

import (
	"github.com/spf13/cobra"
)

// rootFlags 是所有子命令共享的覆盖项；是否显式指定通过 Flags().Changed 判断。
type rootFlags struct {
	config    string
	source    string
	baseURL   string
	maxPages  int
	region    string
	proxy     string
	dumpDir   string
	logLevel  string
	logFormat string
	json      bool
}

func newRootCommand(getenv func(string) string) *cobra.Command {
	flags := &rootFlags{}
	ctx := newCommandContext(flags, getenv)

	rootCmd := &cobra.Command{
		Use:           "streamres",
		Short:         "把目录站的标题解析为可直接播放的地址",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "配置文件路径（默认读取当前目录下的 streamres.toml，可选）")
	pf.StringVar(&flags.source, "source", "", "上游站点（目前只有 dmasti）")
	pf.StringVar(&flags.baseURL, "base-url", "", "上游镜像地址")
	pf.IntVar(&flags.maxPages, "max-pages", 0, "剧集最多翻页数（0 表示默认 10）")
	pf.StringVar(&flags.region, "region", "", "地区过滤：indian|international|any")
	pf.StringVar(&flags.proxy, "proxy", "", "HTTP 代理地址")
	pf.StringVar(&flags.dumpDir, "dump-dir", "", "解析失败时把上游页面落盘到该目录")
	pf.StringVar(&flags.logLevel, "log-level", "", "日志级别：debug|info|warn|error")
	pf.StringVar(&flags.logFormat, "log-format", "", "日志格式：console|json")
	pf.BoolVar(&flags.json, "json", false, "即使 stdout 是终端也输出 JSON")

	rootCmd.AddCommand(newResolveCommand(ctx))
	rootCmd.AddCommand(newSearchCommand(ctx))
	rootCmd.AddCommand(newDiscoverCommand(ctx))

	return rootCmd
}
