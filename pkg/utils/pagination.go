package utils

// MaxPage 页码上限，offset = (page-1)*limit 不会溢出
const MaxPage = 100000

// Pagination 分页请求参数
type Pagination struct {
	Page  int `json:"page" form:"page" binding:"omitempty,min=0,max=100000"`
	Limit int `json:"limit" form:"limit" binding:"omitempty,min=0"`
}

// PageResult 分页响应结果
type PageResult struct {
	List  interface{} `json:"list"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

// GetPageOffset 计算分页偏移量 (默认每页 10 条，最多 100 条)
func (p *Pagination) GetPageOffset() (int, int) {
	return p.Bound(10, 100)
}

// Bound 按给定的默认值与上限修正分页参数并返回 offset, limit
func (p *Pagination) Bound(defaultLimit, maxLimit int) (int, int) {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return (p.Page - 1) * p.Limit, p.Limit
}
