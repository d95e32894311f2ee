// Package normalize 把目录站（catalog）给出的标题改写成上游站点自己的拼写习惯。
//
// 规则是声明式的有序表：每条规则 = 触发条件 + 改写函数。新出现的上游拼写怪癖只需追加一条规则，
// 不需要在调用方增加分支。
//
// 约束：
//   - 规则按表中顺序无条件执行，后面的规则看到的是前面规则的输出
//   - 改写结果不得再次满足自身的触发条件（保证一次执行后即为不动点）
//   - 纯函数：无副作用，无匹配规则时原样返回
package normalize

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Rule 是一条标题改写规则。Trigger 为 nil 表示无条件执行。
type Rule struct {
	Name    string
	Trigger func(title string, year int) bool
	Rewrite func(title string) string
}

func (r Rule) applies(title string, year int) bool {
	if r.Trigger == nil {
		return true
	}
	return r.Trigger(title, year)
}

// Apply 依次执行 rules。
func Apply(rules []Rule, title string, year int) string {
	for _, r := range rules {
		if r.applies(title, year) {
			title = r.Rewrite(title)
		}
	}
	return title
}

// Title 规范化电影标题（请求标题与候选标题都必须走这里）。
func Title(title string, year int) string { return Apply(MovieRules, title, year) }

// ShowTitle 规范化剧集标题。剧集没有年份相关规则。
func ShowTitle(title string) string { return Apply(ShowRules, title, 0) }

// QueryTitle 返回发给上游搜索的关键字。
//
// 少数标题在同一年份有多个同名条目，上游只在 "(Dual Audio)" 版本里收录正确那一部；
// 这个后缀只用于搜索，匹配时仍使用 Title 的结果（候选标题的括号注释会被剥掉）。
func QueryTitle(title string, year int) string {
	t := Title(title, year)
	for _, d := range dualAudio {
		if d.Year == year && strings.Contains(t, d.Contains) {
			return t + dualAudioSuffix
		}
	}
	return t
}

const dualAudioSuffix = " (Dual Audio)"

var dualAudio = []struct {
	Contains string
	Year     int
}{
	{"Iron Man", 2008},
	{"Spider-Man", 2002},
	{"Twilight", 2008},
}

func contains(sub string) func(string, int) bool {
	return func(title string, _ int) bool { return strings.Contains(title, sub) }
}

func containsAny(subs ...string) func(string, int) bool {
	return func(title string, _ int) bool {
		for _, s := range subs {
			if strings.Contains(title, s) {
				return true
			}
		}
		return false
	}
}

func replace(old, new string) func(string) string {
	return func(title string) string { return strings.ReplaceAll(title, old, new) }
}

// drop 删除字符后立即收拢空白，避免后面的多词触发条件（"Bang Bang"、"2 -"）被残留的双空格挡住。
func drop(old string) func(string) string {
	return func(title string) string { return normSpace(strings.ReplaceAll(title, old, "")) }
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }

// 分解形式的变音符（a + U+0304）组合成单个码点，后续规则才能按 "ā" 触发。
var composeRule = Rule{Name: "nfc", Rewrite: norm.NFC.String}

// 规则表首尾各收拢一次空白：开头保证多词触发条件看到的是规整输入，结尾处理改写留下的首尾空白。
var spaceRule = Rule{Name: "space", Rewrite: normSpace}

// MovieRules 是电影标题规则表（顺序即执行顺序）。
var MovieRules = []Rule{
	composeRule,
	spaceRule,
	{Name: "godzilla-dot", Trigger: contains("Godzilla"), Rewrite: drop(".")},
	{Name: "bang-exclaim", Trigger: containsAny("Wednesday", "Bang Bang"), Rewrite: drop("!")},
	{Name: "bali-macron", Trigger: contains("bali"), Rewrite: replace("ā", "aa")},
	{Name: "brahm-macron", Trigger: contains("Brahm"), Rewrite: replace("ā", "a")},
	{Name: "sorcerer", Trigger: contains("Philosopher's"), Rewrite: replace("Philosopher's", "Sorcerer's")},
	{Name: "middle-dot", Rewrite: replace("·", "-")},
	spaceRule,
}

const asurFull = "Asur: Welcome to Your Dark Side"

// ShowRules 是剧集标题规则表。
var ShowRules = []Rule{
	composeRule,
	spaceRule,
	{Name: "greys", Trigger: contains("Grey's"), Rewrite: replace("Grey's", "Grey")},
	{
		Name: "asur",
		Trigger: func(title string, _ int) bool {
			return strings.Contains(title, "Asur") && !strings.Contains(title, asurFull)
		},
		Rewrite: replace("Asur", asurFull),
	},
	{Name: "scam-colon", Trigger: contains("Scam"), Rewrite: replace("2 -", "2:")},
	spaceRule,
}
