package common

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// Page is a page request taken from ?page=&perPage=.
type Page struct {
	Number  int
	PerPage int
}

// PageMeta is echoed back next to list results.
type PageMeta struct {
	Page    int `json:"page"`
	PerPage int `json:"perPage"`
	Count   int `json:"count"`
}

// Offset is the number of rows to skip for this page.
func (p Page) Offset() int { return (p.Number - 1) * p.PerPage }

// Meta builds the metadata for a page holding count rows.
func (p Page) Meta(count int) PageMeta {
	return PageMeta{Page: p.Number, PerPage: p.PerPage, Count: count}
}

// ParsePage reads page and perPage from the query string. Missing or invalid
// values fall back to page 1 and def; perPage is clamped to max.
func ParsePage(r *http.Request, def, max int) Page {
	q := r.URL.Query()
	p := Page{Number: 1, PerPage: def}
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		p.Number = n
	}
	size := q.Get("perPage")
	if size == "" {
		size = q.Get("limit")
	}
	if n, err := strconv.Atoi(size); err == nil && n > 0 {
		p.PerPage = n
	}
	if max > 0 && p.PerPage > max {
		p.PerPage = max
	}
	return p
}

// PositiveID parses a path or query identifier. An empty string yields 0 with
// no error so optional filters can share the helper.
func PositiveID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("id %d is not positive", id)
	}
	return id, nil
}

// ClientIP returns the host part of RemoteAddr. chi's RealIP middleware runs
// first on the router, so forwarded headers are already applied.
func ClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
