package api

import (
	"net/http"
	"strconv"
)

const (
	defaultPage    = 1
	defaultPerPage = 100
	maxPerPage     = 500
)

// PaginationParams holds parsed pagination query parameters.
type PaginationParams struct {
	Page    int
	PerPage int
}

// ParsePagination extracts pagination parameters from the request.
// Defaults: page=1, per_page=100. Maximum per_page is 500.
func ParsePagination(r *http.Request) PaginationParams {
	p := PaginationParams{
		Page:    defaultPage,
		PerPage: defaultPerPage,
	}

	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Page = n
		}
	}

	if v := r.URL.Query().Get("per_page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.PerPage = min(n, maxPerPage)
		}
	}

	return p
}

// Offset returns the offset of the first item on the current page.
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// TotalPages calculates the total number of pages for a given total count.
func (p PaginationParams) TotalPages(total int64) int {
	if p.PerPage <= 0 {
		return 0
	}
	pages := int(total) / p.PerPage
	if int(total)%p.PerPage > 0 {
		pages++
	}
	return pages
}

// Paginate slices an in-memory list to the requested page.
func Paginate[T any](items []T, p PaginationParams) PaginatedResponse {
	total := len(items)
	start := min(p.Offset(), total)
	end := min(start+p.PerPage, total)
	page := items[start:end]
	if page == nil {
		page = []T{}
	}
	return PaginatedResponse{
		Data: page,
		Pagination: PaginationMeta{
			Page:       p.Page,
			PerPage:    p.PerPage,
			Total:      int64(total),
			TotalPages: p.TotalPages(int64(total)),
		},
	}
}
