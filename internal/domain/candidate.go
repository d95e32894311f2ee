package domain

// RawCandidate 是搜索结果页上的一条原始候选（按位置把链接与徽标拼起来）。
// 每次解析页面都重新生成；匹配结束后即丢弃。
type RawCandidate struct {
	DetailLink   string
	DisplayTitle string
	// BadgeText 电影路径下是年份；剧集路径下是 "Episode N" 之类的文本。
	BadgeText string
	// TypeBadge 电影路径下是地区/配音标记；剧集路径下是季数文本。
	TypeBadge string
}

// NormalizedCandidate 是 RawCandidate 的派生视图：标题已经过与请求标题相同的规范化。
type NormalizedCandidate struct {
	Raw       RawCandidate
	Title     string
	BadgeYear string // 空串表示徽标里没有可用年份
	Region    Region // indian / international / unknown
}

type MatchStatus string

const (
	MatchMatched  MatchStatus = "matched"
	MatchNotFound MatchStatus = "not_found"
)

// MatchOutcome 要么恰好一个候选，要么没有。
type MatchOutcome struct {
	Status    MatchStatus
	Candidate *NormalizedCandidate
}

func Matched(c NormalizedCandidate) MatchOutcome {
	return MatchOutcome{Status: MatchMatched, Candidate: &c}
}

func NoMatch() MatchOutcome {
	return MatchOutcome{Status: MatchNotFound}
}

func (o MatchOutcome) Found() bool { return o.Status == MatchMatched && o.Candidate != nil }
