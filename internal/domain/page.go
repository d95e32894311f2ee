package domain

import "fmt"

// PageState 描述剧集搜索的分页位置，只属于一次解析过程。
//
// 不变量：Current 单调不减，已经访问过的页不会再访问。
type PageState struct {
	Current int
	HasNext bool
	Next    int // HasNext=false 时无意义
}

func StartPage(page int) PageState {
	if page < 1 {
		page = 1
	}
	return PageState{Current: page}
}

// Advance 移动到 Next 指向的页；上游给出的下一页不大于当前页时拒绝前进。
func (s PageState) Advance() (PageState, error) {
	if !s.HasNext {
		return s, fmt.Errorf("没有下一页")
	}
	if s.Next <= s.Current {
		return s, fmt.Errorf("下一页 %d 不大于当前页 %d", s.Next, s.Current)
	}
	return PageState{Current: s.Next}, nil
}
