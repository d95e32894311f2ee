// Package logging 构造进程级 slog.Logger。
//
// 日志只写 stderr（以及可选的滚动文件），stdout 留给结果 JSON。
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options 描述 logger 的构造参数。
type Options struct {
	Level  string
	Format string // console | json

	// File 非空时额外写入滚动日志文件（始终为 JSON 行）。
	File       string
	MaxSizeMB  int
	MaxBackups int

	// Stderr 为 nil 时使用 os.Stderr。
	Stderr io.Writer
}

// New 按 Options 构造 logger。返回的 closer 负责关闭日志文件，没有文件时为 no-op。
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	hopts := &slog.HandlerOptions{Level: level, AddSource: level <= slog.LevelDebug}

	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	var console slog.Handler
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "console":
		console = slog.NewTextHandler(stderr, hopts)
	case "json":
		console = slog.NewJSONHandler(stderr, hopts)
	default:
		return nil, nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	if strings.TrimSpace(opts.File) == "" {
		return slog.New(console), nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure log directory: %w", err)
	}
	lj := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
	}
	file := slog.NewJSONHandler(lj, hopts)
	return slog.New(fanout{console, file}), lj, nil
}

// ParseLevel 解析日志级别；空串视为 info。
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log level: unsupported value %q", level)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
