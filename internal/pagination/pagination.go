package pagination

import (
	"net/http"
	"strconv"
)

// Default pagination values
const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params represents pagination query parameters
type Params struct {
	Page  int `json:"page"`  // Current page number (1-based)
	Limit int `json:"limit"` // Number of items per page
}

// Meta describes the returned page. Searches are not counted, so the next
// page is detected by fetching one row past the limit.
type Meta struct {
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

// ParseParams extracts pagination parameters from the query string.
// Invalid values fall back to the defaults; limit is capped at MaxLimit.
func ParseParams(r *http.Request) Params {
	p := Params{Page: DefaultPage, Limit: DefaultLimit}

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if v, err := strconv.Atoi(pageStr); err == nil {
			p.Page = v
		}
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if v, err := strconv.Atoi(limitStr); err == nil {
			p.Limit = v
		}
	}

	p.Validate()
	return p
}

// Validate ensures pagination parameters are valid and sets defaults if needed
func (p *Params) Validate() {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
}

// CalculateOffset returns the SQL OFFSET value based on page and limit
func (p Params) CalculateOffset() int {
	return (p.Page - 1) * p.Limit
}

// FetchLimit is the row count to request: one past Limit.
func (p Params) FetchLimit() int {
	return p.Limit + 1
}

// MetaFor builds the page metadata from the number of rows fetched with
// FetchLimit and returns how many of them belong on the page.
func (p Params) MetaFor(fetched int) (Meta, int) {
	keep := fetched
	if keep > p.Limit {
		keep = p.Limit
	}
	return Meta{
		Page:        p.Page,
		Limit:       p.Limit,
		HasNext:     fetched > p.Limit,
		HasPrevious: p.Page > 1,
	}, keep
}
