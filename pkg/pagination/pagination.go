package pagination

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 200
)

// Params holds paging, ordering and search parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
	Sort   string
	Query  string
}

// FromContext reads limit, offset (or page), sort and q from the query string.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if page, _ := strconv.Atoi(c.QueryParam("page")); page > 1 && offset == 0 {
		offset = (page - 1) * limit
	}
	if offset < 0 {
		offset = 0
	}

	return Params{
		Limit:  limit,
		Offset: offset,
		Sort:   strings.TrimSpace(c.QueryParam("sort")),
		Query:  strings.TrimSpace(c.QueryParam("q")),
	}
}

// Response is the list envelope returned to the dashboard tables. Offsets
// for adjacent pages are omitted at either end.
type Response struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Limit      int         `json:"limit"`
	Offset     int         `json:"offset"`
	Page       int         `json:"page"`
	Pages      int         `json:"pages"`
	NextOffset *int        `json:"next_offset,omitempty"`
	PrevOffset *int        `json:"prev_offset,omitempty"`
}

func NewResponse(data interface{}, total int, p Params) *Response {
	r := &Response{
		Data:   data,
		Total:  total,
		Limit:  p.Limit,
		Offset: p.Offset,
		Page:   1,
	}
	if p.Limit > 0 {
		r.Page = p.Offset/p.Limit + 1
		r.Pages = (total + p.Limit - 1) / p.Limit
	}
	if p.Offset+p.Limit < total {
		next := p.Offset + p.Limit
		r.NextOffset = &next
	}
	if p.Offset > 0 {
		prev := p.Offset - p.Limit
		if prev < 0 {
			prev = 0
		}
		r.PrevOffset = &prev
	}
	return r
}
