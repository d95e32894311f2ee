package resolve

import (
	"time"

	"github.com/John-Robertt/streamres/internal/domain"
)

// Observer 把“状态迁移/最终结果”从解析流程中解耦出来。
//
// 约束：
//   - resolve 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）
//   - 同一 Resolver 可能被并发调用，Observer 的实现必须并发安全
type Observer interface {
	// OnState 在进入每个状态时调用；fields 是该状态的附加信息（页码、候选数等）。
	OnState(attempt string, st State, fields map[string]any)
	// OnDone 在产生终态结果后调用一次。
	OnDone(res domain.ResolutionResult, dur time.Duration)
}

// State 是一次解析所处的阶段。
type State string

const (
	StateStart       State = "start"
	StateSearching   State = "searching"
	StateMatching    State = "matching"
	StateExtracting  State = "extracting"
	StateResolved    State = "resolved"
	StateNotFound    State = "not_found"
	StateFetchFailed State = "fetch_failed"
)

// Terminal 报告 st 是否为终态。
func (st State) Terminal() bool {
	switch st {
	case StateResolved, StateNotFound, StateFetchFailed:
		return true
	default:
		return false
	}
}
