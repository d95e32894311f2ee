// Package match 决定一页候选里哪一条是请求的目标。
//
// 策略是“第一个精确匹配胜出”：不打分、不做二次排序。上游对同一标题+年份通常只有一条，
// 宁可 not_found，也不要选错。
package match

import (
	"regexp"
	"strings"

	"github.com/John-Robertt/streamres/internal/domain"
	"github.com/John-Robertt/streamres/internal/normalize"
)

var (
	parenRE  = regexp.MustCompile(`\([^()]*\)`)
	yearRE   = regexp.MustCompile(`^\d{4}$`)
	seasonRE = regexp.MustCompile(` Season \d+$`)
	suffixes = []string{" - Voleuses"}
)

// StripAnnotations 去掉候选标题中的括号注释（年份、"Dual Audio" 等）与已知尾缀。
func StripAnnotations(display string) string {
	s := parenRE.ReplaceAllString(display, " ")
	s = strings.Join(strings.Fields(s), " ")
	for _, suf := range suffixes {
		s = strings.ReplaceAll(s, suf, "")
	}
	return strings.TrimSpace(s)
}

// TargetTitle 是请求标题在匹配时使用的形态（与候选走同一套规则）。
func TargetTitle(req domain.ResolutionRequest) string {
	if req.Kind == domain.KindTV {
		return normalize.ShowTitle(req.Title)
	}
	return normalize.Title(req.Title, req.Year)
}

// Normalize 把原始候选转换为规范化视图。3D 版本不参与匹配（ok=false）。
func Normalize(raw domain.RawCandidate, req domain.ResolutionRequest) (domain.NormalizedCandidate, bool) {
	if strings.Contains(raw.DisplayTitle, "3D") {
		return domain.NormalizedCandidate{}, false
	}
	stripped := StripAnnotations(raw.DisplayTitle)
	if stripped == "" {
		return domain.NormalizedCandidate{}, false
	}

	nc := domain.NormalizedCandidate{Raw: raw, Region: regionOf(raw.TypeBadge)}
	if req.Kind == domain.KindTV {
		// 上游有时把季信息拼在剧名后面（"Grey's Anatomy Season 19"）。
		nc.Title = normalize.ShowTitle(seasonRE.ReplaceAllString(stripped, ""))
		return nc, true
	}
	nc.Title = normalize.Title(stripped, req.Year)
	if y := strings.TrimSpace(raw.BadgeText); yearRE.MatchString(y) {
		nc.BadgeYear = y
	}
	return nc, true
}

// regionOf 从类型徽标推断地区：含 Indian/Dub 视为本地，其余非空视为国际。
func regionOf(typeBadge string) domain.Region {
	t := strings.TrimSpace(typeBadge)
	switch {
	case t == "":
		return domain.RegionUnknown
	case strings.Contains(t, "Indian") || strings.Contains(t, "Dub"):
		return domain.RegionIndian
	default:
		return domain.RegionInternational
	}
}

// Eligible 判断规范化候选是否满足请求。
//
// 电影：地区过滤 + 标题完全相等（区分大小写）+ 徽标年份与请求年份字符串相等。
// 剧集：链接必须指向剧集、徽标必须是分集；标题完全相等（季信息已在 Normalize 中剥掉）。
func Eligible(c domain.NormalizedCandidate, target string, req domain.ResolutionRequest) bool {
	if req.Kind == domain.KindTV {
		if !strings.Contains(c.Raw.DetailLink, "tvshow") || !strings.Contains(c.Raw.BadgeText, "Episode") {
			return false
		}
		return c.Title == target
	}

	switch req.Region {
	case domain.RegionIndian:
		if c.Region != domain.RegionIndian {
			return false
		}
	case domain.RegionInternational:
		if c.Region == domain.RegionIndian {
			return false
		}
	}
	if c.Title != target {
		return false
	}
	return c.BadgeYear != "" && c.BadgeYear == req.YearString()
}

// Match 返回第一个满足条件的候选（按输入顺序）。
func Match(cands []domain.RawCandidate, req domain.ResolutionRequest) domain.MatchOutcome {
	target := TargetTitle(req)
	for _, raw := range cands {
		nc, ok := Normalize(raw, req)
		if !ok {
			continue
		}
		if Eligible(nc, target, req) {
			return domain.Matched(nc)
		}
	}
	return domain.NoMatch()
}

// MatchAll 返回所有满足条件的候选（保持输入顺序），用于剧集分集列表。
func MatchAll(cands []domain.RawCandidate, req domain.ResolutionRequest) []domain.NormalizedCandidate {
	target := TargetTitle(req)
	var out []domain.NormalizedCandidate
	for _, raw := range cands {
		nc, ok := Normalize(raw, req)
		if !ok {
			continue
		}
		if Eligible(nc, target, req) {
			out = append(out, nc)
		}
	}
	return out
}
