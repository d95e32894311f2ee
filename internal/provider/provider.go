package provider

import (
	"context"
	"net/http"

	"github.com/John-Robertt/streamres/internal/domain"
)

// Source 把“上游站点格式变化”限制在 provider 包内部；解析流程只依赖统一接口与稳定的 domain 类型。
//
// 约束：
//   - Search/Extract 不做缓存、不做重试（网络策略由 httpx 统一实现）
//   - 页面结构不符合预期时按“空结果”处理，而不是报错；只有网络/HTTP 失败才返回 error
//   - Source 自己不翻页：SearchPage.State 只报告分页状态，由调用方决定是否继续
type Source interface {
	Name() string
	Search(ctx context.Context, q SearchQuery, c *http.Client) (SearchPage, error)
	// Extract 进入详情页并返回最终可播放的 URL；控件缺失时返回 *ExtractionError。
	Extract(ctx context.Context, detailLink string, c *http.Client) (string, error)
}

// SearchQuery 是一次搜索请求。Title 是规范化后的匹配标题，Query 是发给上游的关键字（可能带后缀）。
type SearchQuery struct {
	Title  string
	Query  string
	Year   int
	Kind   domain.Kind
	Region domain.Region
	Page   int
}

// SearchPage 是一页搜索结果。
type SearchPage struct {
	URL        string
	Candidates []domain.RawCandidate
	// Dropped 是因为徽标缺失而丢弃的锚点数量（不影响其余候选）。
	Dropped int
	State   domain.PageState
	// Body 是原始 HTML，仅用于诊断转储。
	Body []byte
}
