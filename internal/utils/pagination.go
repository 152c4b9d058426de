package utils

import (
	"strconv"
	"strings"
)

const (
	MinPageLimit = 1
	MaxPageLimit = 200
)

// Pagination is the paging envelope returned with every listing response.
// Skip is query-internal and never serialized to clients.
type Pagination struct {
	Limit    int   `json:"limit"`
	Page     int   `json:"page"`
	Pages    int64 `json:"pages"`
	Total    int64 `json:"total"`
	PrevPage *int  `json:"prevPage"`
	NextPage *int  `json:"nextPage"`
	Skip     int64 `json:"-"`
}

// ParseIntOr parses s as a base-10 integer, falling back to def on any
// failure. This is the single numeric-coercion rule applied to client
// supplied paging values throughout the system.
func ParseIntOr(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

// CalculatePagination normalizes a requested page/limit against a total
// count. It never fails: malformed numerics fall back toward the lower
// clamp bound, limit is clamped into [1, 200] and page to >= 1.
func CalculatePagination(total int64, pageStr, limitStr string) Pagination {
	limit := ParseIntOr(limitStr, MinPageLimit)
	if limit < MinPageLimit {
		limit = MinPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	page := ParseIntOr(pageStr, 1)
	if page < 1 {
		page = 1
	}

	if total < 0 {
		total = 0
	}

	// ceil(total/limit) without floats
	pages := (total + int64(limit) - 1) / int64(limit)

	p := Pagination{
		Limit: limit,
		Page:  page,
		Pages: pages,
		Total: total,
		Skip:  int64(page-1) * int64(limit),
	}
	if p.Skip < 0 {
		p.Skip = 0
	}
	if page > 1 {
		prev := page - 1
		p.PrevPage = &prev
	}
	if int64(page) < pages {
		next := page + 1
		p.NextPage = &next
	}
	return p
}
