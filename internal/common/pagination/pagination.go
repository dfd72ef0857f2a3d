// Package pagination pages in-memory listings for the admin API
package pagination

import (
	"net/http"
	"strconv"
)

const (
	DefaultPerPage = 50
	MaxPerPage     = 500
)

// Params is a 1-based page request
type Params struct {
	Page    int
	PerPage int
}

// Page is one slice of a listing plus the totals a client needs to walk it
type Page[T any] struct {
	Page         int `json:"page"`
	PerPage      int `json:"per_page"`
	TotalPages   int `json:"total_pages"`
	TotalResults int `json:"total_results"`
	Results      []T `json:"results"`
}

// ParseParams reads page and per_page, clamping bad values to the defaults
func ParseParams(r *http.Request) Params {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return Params{Page: page, PerPage: perPage}
}

// Slice returns the requested page of items. A page past the end is empty.
func Slice[T any](items []T, p Params) Page[T] {
	total := len(items)
	start := (p.Page - 1) * p.PerPage
	if start > total {
		start = total
	}
	end := start + p.PerPage
	if end > total {
		end = total
	}

	results := make([]T, end-start)
	copy(results, items[start:end])
	return Page[T]{
		Page:         p.Page,
		PerPage:      p.PerPage,
		TotalPages:   totalPages(total, p.PerPage),
		TotalResults: total,
		Results:      results,
	}
}

func totalPages(total, perPage int) int {
	if perPage <= 0 || total == 0 {
		return 1
	}
	return (total + perPage - 1) / perPage
}
