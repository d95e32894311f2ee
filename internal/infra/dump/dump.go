// Package dump 把解析失败时的上游页面落盘，便于排查页面结构变化。
//
// 只写不读：落盘内容不会被当作缓存回放，解析结果始终来自实时抓取。
package dump

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/John-Robertt/streamres/internal/infra/fsx"
)

// Store 管理 <Root>/<source>/<stage>/ 下的页面快照。Root 为空表示禁用。
type Store struct {
	Root string

	now func() time.Time
}

func New(root string) *Store {
	return &Store{Root: filepath.Clean(strings.TrimSpace(root))}
}

// Enabled 报告是否配置了落盘目录。nil 也视为禁用。
func (s *Store) Enabled() bool {
	return s != nil && s.Root != "" && s.Root != "."
}

var (
	segmentRE = regexp.MustCompile(`^[a-z0-9_]+$`)
	unsafeRE  = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// WritePage 写入一份快照并返回其路径。禁用时返回 ("", nil)。
//
// key 通常是 attempt id，会被清洗为安全文件名；文件名带时间戳，同一 key 多次写入互不覆盖。
func (s *Store) WritePage(source, stage, key string, html []byte) (string, error) {
	if !s.Enabled() {
		return "", nil
	}
	src, err := cleanSegment("source", source)
	if err != nil {
		return "", err
	}
	st, err := cleanSegment("stage", stage)
	if err != nil {
		return "", err
	}
	k := strings.Trim(unsafeRE.ReplaceAllString(strings.TrimSpace(key), "_"), "._")
	if k == "" {
		return "", fmt.Errorf("dump key 不能为空")
	}

	now := time.Now
	if s.now != nil {
		now = s.now
	}
	dir := filepath.Join(s.Root, src, st)
	name := fmt.Sprintf("%s-%s.html", now().UTC().Format("20060102T150405.000000000"), k)
	if err := fsx.WriteFileAtomic(dir, name, html); err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func cleanSegment(what, v string) (string, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "", fmt.Errorf("%s 不能为空", what)
	}
	// 只允许枚举式名称，避免路径穿越。
	if !segmentRE.MatchString(v) {
		return "", fmt.Errorf("非法 %s：%q", what, v)
	}
	return v, nil
}
