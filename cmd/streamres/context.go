package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/streamres/internal/catalog"
	"github.com/John-Robertt/streamres/internal/config"
	"github.com/John-Robertt/streamres/internal/infra/dump"
	"github.com/John-Robertt/streamres/internal/infra/httpx"
	"github.com/John-Robertt/streamres/internal/logging"
	"github.com/John-Robertt/streamres/internal/provider"
	"github.com/John-Robertt/streamres/internal/provider/dmasti"
	"github.com/John-Robertt/streamres/internal/resolve"
)

// commandContext 惰性构造配置、logger 与 HTTP client，同一进程只构造一次。
type commandContext struct {
	flags  *rootFlags
	getenv func(string) string

	once   sync.Once
	eff    config.EffectiveConfig
	logger *slog.Logger
	closer io.Closer
	client *http.Client
	reg    provider.Registry
	err    error
}

func newCommandContext(flags *rootFlags, getenv func(string) string) *commandContext {
	if getenv == nil {
		getenv = os.Getenv
	}
	return &commandContext{flags: flags, getenv: getenv}
}

func (c *commandContext) cliArgs(cmd *cobra.Command) config.CLIArgs {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
	return config.CLIArgs{
		ConfigPath:   c.flags.config,
		Source:       c.flags.source,
		SourceSet:    changed("source"),
		BaseURL:      c.flags.baseURL,
		BaseURLSet:   changed("base-url"),
		MaxPages:     c.flags.maxPages,
		MaxPagesSet:  changed("max-pages"),
		Region:       c.flags.region,
		RegionSet:    changed("region"),
		ProxyURL:     c.flags.proxy,
		ProxyURLSet:  changed("proxy"),
		DumpDir:      c.flags.dumpDir,
		DumpDirSet:   changed("dump-dir"),
		LogLevel:     c.flags.logLevel,
		LogLevelSet:  changed("log-level"),
		LogFormat:    c.flags.logFormat,
		LogFormatSet: changed("log-format"),
	}
}

func (c *commandContext) ensure(cmd *cobra.Command) error {
	c.once.Do(func() {
		cwd, err := os.Getwd()
		if err != nil {
			c.err = fmt.Errorf("读取当前目录失败：%w", err)
			return
		}
		eff, err := config.LoadEffective(cwd, c.cliArgs(cmd), c.getenv)
		if err != nil {
			c.err = err
			return
		}
		c.eff = eff

		logger, closer, err := logging.New(logging.Options{
			Level:      eff.Log.Level,
			Format:     eff.Log.Format,
			File:       eff.Log.File,
			MaxSizeMB:  eff.Log.MaxSizeMB,
			MaxBackups: eff.Log.MaxBackups,
			Stderr:     cmd.ErrOrStderr(),
		})
		if err != nil {
			c.err = &config.Error{Code: config.ErrCodeInvalid, Path: eff.ConfigPath, Err: err}
			return
		}
		c.logger, c.closer = logger, closer

		client, err := httpx.NewClient(httpx.Options{ProxyURL: eff.ProxyURL, Timeout: eff.Timeout, RetryMax: eff.RetryMax})
		if err != nil {
			c.err = &config.Error{Code: config.ErrCodeInvalid, Path: eff.ConfigPath, Err: fmt.Errorf("proxy.url 无效：%w", err)}
			return
		}
		c.client = client

		reg, err := provider.NewRegistry(dmasti.Source{BaseURL: eff.BaseURL})
		if err != nil {
			c.err = err
			return
		}
		c.reg = reg

		logger.Debug("配置已生效",
			"config", eff.ConfigPath,
			"source", eff.Source,
			"max_pages", eff.MaxPages,
			"region", string(eff.Region),
			"proxy", eff.ProxyURL != "",
			"dump_dir", eff.DumpDir,
		)
	})
	return c.err
}

func (c *commandContext) resolver() (*resolve.Resolver, error) {
	src, ok := c.reg.Get(c.eff.Source)
	if !ok {
		return nil, fmt.Errorf("未注册的 source：%q（可用：%v）", c.eff.Source, c.reg.Names())
	}
	return &resolve.Resolver{
		Source:   src,
		Client:   c.client,
		MaxPages: c.eff.MaxPages,
		Logger:   c.logger,
		Dump:     dump.New(c.eff.DumpDir),
	}, nil
}

func (c *commandContext) catalog() *catalog.Client {
	return &catalog.Client{
		APIKey:   c.eff.TMDB.APIKey,
		BaseURL:  c.eff.TMDB.BaseURL,
		Language: c.eff.TMDB.Language,
		HTTP:     c.client,
	}
}

func (c *commandContext) close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
