package shared

import "math"

const (
	defaultPageLimit = 20
	maxPageLimit     = 200
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page      int  `json:"page"`
	Limit     int  `json:"limit"`
	Total     int  `json:"total"`
	TotalPage int  `json:"total_page"`
	Next      *int `json:"next"`
	Previous  *int `json:"previous"`
}

// PageRequest is the normalised page/limit pair used by list queries.
type PageRequest struct {
	Page  int
	Limit int
}

// NormalizePage clamps page and limit into sane bounds.
func NormalizePage(page, limit int) PageRequest {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if page <= 0 {
		page = 1
	}
	return PageRequest{Page: page, Limit: limit}
}

// Offset returns the row offset for the page.
func (p PageRequest) Offset() int {
	if p.Page <= 1 || p.Limit <= 0 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// NewPagination computes pagination metadata.
func NewPagination(page, limit, total int) Pagination {
	req := NormalizePage(page, limit)
	totalPage := int(math.Ceil(float64(total) / float64(req.Limit)))
	p := Pagination{Page: req.Page, Limit: req.Limit, Total: total, TotalPage: totalPage}
	if req.Page < totalPage {
		next := req.Page + 1
		p.Next = &next
	}
	if req.Page > 1 {
		prev := req.Page - 1
		p.Previous = &prev
	}
	return p
}
