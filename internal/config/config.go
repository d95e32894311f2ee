package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/John-Robertt/streamres/internal/domain"
)

const (
	// ErrCodeNotFound 表示 --config 显式指定的文件不存在。
	ErrCodeNotFound = domain.ErrCodeConfigNotFound
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfigInvalid
)

const (
	// FileName 是 cwd 下自动发现的配置文件名（可选）。
	FileName = "streamres.toml"

	DefaultSource   = "dmasti"
	DefaultMaxPages = 10
	// MaxPagesLimit 是 max_pages 的上限；超出截断。
	MaxPagesLimit = 100
	// RetryMaxLimit 是 retry_max 的上限；超出截断。
	RetryMaxLimit = 5

	DefaultLogLevel   = "info"
	DefaultLogFormat  = "console"
	DefaultLogMaxSize = 10
	DefaultLogBackups = 3

	DefaultTMDBBaseURL  = "https://api.themoviedb.org/3"
	DefaultTMDBLanguage = "en-US"

	// EnvTMDBKey 在配置文件未给出 tmdb.api_key 时作为兜底。
	EnvTMDBKey = "TMDB_API_KEY"
)

// CLIArgs 是 CLI 暴露的覆盖项，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --max-pages=0 能覆盖配置里的值并回到默认。
type CLIArgs struct {
	// ConfigPath 非空时该文件必须存在。
	ConfigPath string

	Source    string
	SourceSet bool

	BaseURL    string
	BaseURLSet bool

	MaxPages    int
	MaxPagesSet bool

	Region    string
	RegionSet bool

	ProxyURL    string
	ProxyURLSet bool

	DumpDir    string
	DumpDirSet bool

	LogLevel    string
	LogLevelSet bool

	LogFormat    string
	LogFormatSet bool
}

// FileConfig 对应 streamres.toml 的解析结构。
type FileConfig struct {
	Source         string `toml:"source"`
	BaseURL        string `toml:"base_url"`
	MaxPages       int    `toml:"max_pages"`
	Region         string `toml:"region"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	RetryMax       int    `toml:"retry_max"`
	DumpDir        string `toml:"dump_dir"`

	Proxy ProxyConfig `toml:"proxy"`
	Log   LogConfig   `toml:"log"`
	TMDB  TMDBConfig  `toml:"tmdb"`
}

type ProxyConfig struct {
	URL string `toml:"url"`
}

type LogConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

type TMDBConfig struct {
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
	Language string `toml:"language"`
}

// EffectiveConfig 是合并并规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// ConfigPath 是实际读取的配置文件；没有读取任何文件时为空。
	ConfigPath string

	Source   string
	BaseURL  string
	MaxPages int
	Region   domain.Region

	// Timeout=0 表示不设置总超时。
	Timeout  time.Duration
	RetryMax int
	ProxyURL string
	DumpDir  string

	Log  LogConfig
	TMDB TMDBConfig
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Path == "" {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数、环境变量合并为最终配置。
//
// 发现规则：
//  1. CLI 提供 --config：读取该文件（必须存在）
//  2. 否则尝试 <cwd>/streamres.toml（可选，不存在则全部使用默认值）
//
// 覆盖优先级：CLI > 配置文件 > 默认值；tmdb.api_key 额外以环境变量 TMDB_API_KEY 兜底。
func LoadEffective(cwd string, cli CLIArgs, getenv func(string) string) (EffectiveConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	var (
		cfgPath string
		fc      FileConfig
		exists  bool
	)
	if p := strings.TrimSpace(cli.ConfigPath); p != "" {
		cfgPath = absCleanFrom(cwdAbs, p)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
	} else {
		cfgPath = filepath.Join(cwdAbs, FileName)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
	}
	if !exists {
		cfgPath = ""
	}

	eff, err := merge(cwdAbs, cli, fc, getenv)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	eff.ConfigPath = cfgPath
	return eff, nil
}

func merge(cwd string, cli CLIArgs, fc FileConfig, getenv func(string) string) (EffectiveConfig, error) {
	pick := func(set bool, cliVal, fileVal, def string) string {
		if set {
			return strings.TrimSpace(cliVal)
		}
		if v := strings.TrimSpace(fileVal); v != "" {
			return v
		}
		return def
	}

	eff := EffectiveConfig{
		Source:   strings.ToLower(pick(cli.SourceSet, cli.Source, fc.Source, DefaultSource)),
		BaseURL:  pick(cli.BaseURLSet, cli.BaseURL, fc.BaseURL, ""),
		ProxyURL: pick(cli.ProxyURLSet, cli.ProxyURL, fc.Proxy.URL, ""),
		DumpDir:  pick(cli.DumpDirSet, cli.DumpDir, fc.DumpDir, ""),
	}
	if err := validateSource(eff.Source); err != nil {
		return EffectiveConfig{}, err
	}
	if eff.BaseURL != "" {
		if err := validateHTTPURL("base_url", eff.BaseURL); err != nil {
			return EffectiveConfig{}, err
		}
	}
	if eff.ProxyURL != "" {
		u, err := url.Parse(eff.ProxyURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return EffectiveConfig{}, fmt.Errorf("proxy.url 无效：%q", eff.ProxyURL)
		}
	}
	if eff.DumpDir != "" {
		eff.DumpDir = absCleanFrom(cwd, eff.DumpDir)
	}

	region, err := domain.ParseRegion(pick(cli.RegionSet, cli.Region, fc.Region, string(domain.RegionAny)))
	if err != nil {
		return EffectiveConfig{}, err
	}
	eff.Region = region

	// max_pages：0 表示默认；负数非法；超出上限截断。
	maxPages := fc.MaxPages
	if cli.MaxPagesSet {
		maxPages = cli.MaxPages
	}
	switch {
	case maxPages < 0:
		return EffectiveConfig{}, fmt.Errorf("max_pages 不能为负数：%d", maxPages)
	case maxPages == 0:
		maxPages = DefaultMaxPages
	case maxPages > MaxPagesLimit:
		maxPages = MaxPagesLimit
	}
	eff.MaxPages = maxPages

	if fc.TimeoutSeconds < 0 {
		return EffectiveConfig{}, fmt.Errorf("timeout_seconds 不能为负数：%d", fc.TimeoutSeconds)
	}
	eff.Timeout = time.Duration(fc.TimeoutSeconds) * time.Second

	if fc.RetryMax < 0 {
		return EffectiveConfig{}, fmt.Errorf("retry_max 不能为负数：%d", fc.RetryMax)
	}
	eff.RetryMax = min(fc.RetryMax, RetryMaxLimit)

	eff.Log, err = mergeLog(cwd, cli, fc.Log)
	if err != nil {
		return EffectiveConfig{}, err
	}

	eff.TMDB = TMDBConfig{
		APIKey:   strings.TrimSpace(fc.TMDB.APIKey),
		BaseURL:  pick(false, "", fc.TMDB.BaseURL, DefaultTMDBBaseURL),
		Language: pick(false, "", fc.TMDB.Language, DefaultTMDBLanguage),
	}
	if eff.TMDB.APIKey == "" {
		eff.TMDB.APIKey = strings.TrimSpace(getenv(EnvTMDBKey))
	}
	if err := validateHTTPURL("tmdb.base_url", eff.TMDB.BaseURL); err != nil {
		return EffectiveConfig{}, err
	}
	return eff, nil
}

func mergeLog(cwd string, cli CLIArgs, lc LogConfig) (LogConfig, error) {
	out := LogConfig{
		Level:      strings.ToLower(strings.TrimSpace(lc.Level)),
		Format:     strings.ToLower(strings.TrimSpace(lc.Format)),
		File:       strings.TrimSpace(lc.File),
		MaxSizeMB:  lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
	}
	if cli.LogLevelSet {
		out.Level = strings.ToLower(strings.TrimSpace(cli.LogLevel))
	}
	if cli.LogFormatSet {
		out.Format = strings.ToLower(strings.TrimSpace(cli.LogFormat))
	}
	if out.Level == "" {
		out.Level = DefaultLogLevel
	}
	if out.Format == "" {
		out.Format = DefaultLogFormat
	}
	switch out.Level {
	case "debug", "info", "warn", "error":
	default:
		return LogConfig{}, fmt.Errorf("log.level 只能是 debug/info/warn/error，实际是 %q", out.Level)
	}
	switch out.Format {
	case "console", "json":
	default:
		return LogConfig{}, fmt.Errorf("log.format 只能是 console 或 json，实际是 %q", out.Format)
	}
	if out.MaxSizeMB < 0 || out.MaxBackups < 0 {
		return LogConfig{}, fmt.Errorf("log.max_size_mb/max_backups 不能为负数")
	}
	if out.MaxSizeMB == 0 {
		out.MaxSizeMB = DefaultLogMaxSize
	}
	if out.MaxBackups == 0 {
		out.MaxBackups = DefaultLogBackups
	}
	if out.File != "" {
		out.File = absCleanFrom(cwd, out.File)
	}
	return out, nil
}

func validateSource(s string) error {
	switch s {
	case "dmasti":
		return nil
	case "":
		return fmt.Errorf("source 不能为空")
	default:
		return fmt.Errorf("source 只能是 dmasti，实际是 %q", s)
	}
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s 无效：%q", field, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s 必须是 http/https：%q", field, raw)
	}
	return nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 TOML 配置文件；未知字段视为错误（通常是拼写错误）。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	defer f.Close()

	if fi, err := f.Stat(); err == nil && fi.IsDir() {
		return FileConfig{}, true, fmt.Errorf("%q 是目录", path)
	}
	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
