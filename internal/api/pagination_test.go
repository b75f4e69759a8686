package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query       string
		wantPage    int
		wantPerPage int
	}{
		{"", 1, 100},
		{"page=3&per_page=20", 3, 20},
		{"page=0&per_page=-1", 1, 100},
		{"per_page=9999", 1, 500},
		{"page=abc", 1, 100},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
			p := ParsePagination(r)
			if p.Page != tt.wantPage || p.PerPage != tt.wantPerPage {
				t.Errorf("got page=%d per_page=%d, want %d %d", p.Page, p.PerPage, tt.wantPage, tt.wantPerPage)
			}
		})
	}
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	resp := Paginate(items, PaginationParams{Page: 2, PerPage: 2})
	page, ok := resp.Data.([]int)
	if !ok || len(page) != 2 || page[0] != 3 {
		t.Errorf("page 2 = %v", resp.Data)
	}
	if resp.Pagination.Total != 5 || resp.Pagination.TotalPages != 3 {
		t.Errorf("meta = %+v", resp.Pagination)
	}

	resp = Paginate(items, PaginationParams{Page: 9, PerPage: 2})
	if page := resp.Data.([]int); len(page) != 0 {
		t.Errorf("past the end should be empty, got %v", page)
	}

	resp = Paginate([]int(nil), PaginationParams{Page: 1, PerPage: 10})
	if page := resp.Data.([]int); page == nil {
		t.Error("empty page should encode as [] not null")
	}
}
