package dmasti

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/streamres/internal/domain"
)

const (
	anchorSelector   = "a.name"
	badgeSelector    = "div.quality"
	badge2Selector   = "div.quality2"
	downloadSelector = "a.vh_button.red.icon-down"
	// 剧集搜索页的分页容器里，每个页码链接都指向 /search/index/<offset>。
	paginationSelector = "a[href*='/search/index/']"
)

type anchor struct {
	href  string
	label string
}

// results 是一页结果的三路结构化捕获，按出现顺序排列。
type results struct {
	doc     *goquery.Document
	anchors []anchor
	badges  []string
	badges2 []string
}

func parseResults(html []byte) (results, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return results{}, err
	}
	r := results{doc: doc, anchors: anchorsOf(doc)}
	doc.Find(badgeSelector).Each(func(_ int, s *goquery.Selection) {
		r.badges = append(r.badges, normSpace(s.Text()))
	})
	doc.Find(badge2Selector).Each(func(_ int, s *goquery.Selection) {
		r.badges2 = append(r.badges2, normSpace(s.Text()))
	})
	return r, nil
}

func parseAnchors(html []byte) []anchor {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil
	}
	return anchorsOf(doc)
}

func anchorsOf(doc *goquery.Document) []anchor {
	var out []anchor
	doc.Find(anchorSelector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		out = append(out, anchor{href: strings.TrimSpace(href), label: normSpace(s.Text())})
	})
	return out
}

// zip 按位置把锚点与两路徽标拼成候选。任一路徽标缺位的锚点直接丢弃，不影响其余候选。
func (r results) zip(base string) ([]domain.RawCandidate, int) {
	out := make([]domain.RawCandidate, 0, len(r.anchors))
	dropped := 0
	for i, a := range r.anchors {
		if i >= len(r.badges) || i >= len(r.badges2) {
			dropped++
			continue
		}
		out = append(out, domain.RawCandidate{
			DetailLink:   resolveURL(base+"/", a.href),
			DisplayTitle: a.label,
			BadgeText:    r.badges[i],
			TypeBadge:    r.badges2[i],
		})
	}
	return out, dropped
}

// ParseCandidates 把搜索结果页解析为候选列表（链接保持页面上的原值）。
// 返回的 dropped 是因徽标缺位而丢弃的数量。
func ParseCandidates(html []byte) (cands []domain.RawCandidate, dropped int) {
	r, err := parseResults(html)
	if err != nil {
		return nil, 0
	}
	return r.zip("")
}

// HasNext 判断剧集搜索页是否还有下一页。
func HasNext(html []byte) bool {
	_, ok := NextPageIndex(html)
	return ok
}

// NextPageIndex 读取分页容器中当前激活的页码，返回其 +1。
// 页面没有分页容器、激活项后面没有其它页码、或页码不是数字时返回 ok=false。
func NextPageIndex(html []byte) (int, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return 0, false
	}
	return nextPage(doc)
}

func nextPage(doc *goquery.Document) (int, bool) {
	if doc.Find(paginationSelector).Length() == 0 {
		return 0, false
	}
	active := doc.Find("li.active").First()
	if active.Length() == 0 || active.NextFiltered("li").Length() == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(active.Find("a").First().Text()))
	if err != nil {
		return 0, false
	}
	return n + 1, true
}

func pageState(doc *goquery.Document, current int) domain.PageState {
	st := domain.StartPage(current)
	if next, ok := nextPage(doc); ok {
		st.HasNext = true
		st.Next = next
	}
	return st
}

// ExtractDownloadHref 从详情页中取“下载”按钮的 href（未做任何修正）。
func ExtractDownloadHref(html []byte) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", false
	}
	href, ok := doc.Find(downloadSelector).First().Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return "", false
	}
	return href, true
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }
