package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind 是媒体类型：电影走“一次搜索 + 精确匹配”，剧集走“分页搜索”。
type Kind string

const (
	KindMovie Kind = "movie"
	KindTV    Kind = "tv"
)

// Region 是地区过滤条件（同时也用于描述候选的地区标记）。
type Region string

const (
	RegionIndian        Region = "indian"
	RegionInternational Region = "international"
	RegionAny           Region = "any"
	// RegionUnknown 只出现在候选上：类型徽标为空，无法判断。
	RegionUnknown Region = "unknown"
)

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie", "movies":
		return KindMovie, nil
	case "tv", "show", "shows":
		return KindTV, nil
	default:
		return "", fmt.Errorf("kind 只能是 movie 或 tv，实际是 %q", s)
	}
}

func ParseRegion(s string) (Region, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any":
		return RegionAny, nil
	case "indian", "in":
		return RegionIndian, nil
	case "international", "english", "intl":
		return RegionInternational, nil
	default:
		return "", fmt.Errorf("region 只能是 indian、international 或 any，实际是 %q", s)
	}
}

// ResolutionRequest 是一次解析的输入（在边界处构造，之后只按值传递，不再修改）。
//
// Year==0 表示“未知年份”；Page 从 1 开始，仅剧集路径使用。
type ResolutionRequest struct {
	Title  string
	Year   int
	Kind   Kind
	Region Region
	Page   int
}

// NewRequest 校验并构造请求。region 为空时视为 any；page<1 时视为 1。
func NewRequest(title string, year int, kind Kind, region Region, page int) (ResolutionRequest, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return ResolutionRequest{}, fmt.Errorf("title 不能为空")
	}
	if year < 0 || year > 9999 {
		return ResolutionRequest{}, fmt.Errorf("year 无效：%d", year)
	}
	switch kind {
	case KindMovie, KindTV:
	default:
		return ResolutionRequest{}, fmt.Errorf("未知 kind：%q", kind)
	}
	switch region {
	case "":
		region = RegionAny
	case RegionIndian, RegionInternational, RegionAny:
	default:
		return ResolutionRequest{}, fmt.Errorf("未知 region：%q", region)
	}
	if page < 1 {
		page = 1
	}
	return ResolutionRequest{Title: title, Year: year, Kind: kind, Region: region, Page: page}, nil
}

func (r ResolutionRequest) HasYear() bool { return r.Year > 0 }

// YearString 返回与徽标比较用的年份文本；未知年份返回空串。
func (r ResolutionRequest) YearString() string {
	if !r.HasYear() {
		return ""
	}
	return strconv.Itoa(r.Year)
}
