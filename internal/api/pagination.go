package api

import (
	"net/http"
	"strconv"

	v1 "github.com/jdholdren/hnews/api/items/v1"
)

const (
	defaultPageSize = 30
	maxPageSize     = 100

	// Deepest offset served; anything past it is clamped.
	maxOffset = 10_000
)

// parsePaginationParams reads ?offset=20&limit=10 off the request.
//
// A missing or out of range limit falls back to the default. A negative offset
// becomes 0 and one past maxOffset becomes maxOffset.
func parsePaginationParams(r *http.Request) (int, int) {
	query := r.URL.Query()

	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}

	offset, _ := strconv.Atoi(query.Get("offset"))
	if offset < 0 {
		offset = 0
	}
	if offset > maxOffset {
		offset = maxOffset
	}

	return limit, offset
}

func pagination(limit, offset, total int) *v1.Pagination {
	return &v1.Pagination{
		Limit:  limit,
		Offset: offset,
		Total:  total,
	}
}
