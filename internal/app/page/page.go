// Package page parses page/limit query parameters and builds the pagination
// block returned with every list response.
package page

import (
	"strconv"

	"agent-marketplace/internal/validation"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is a 1-based page request.
type Params struct {
	Page  int
	Limit int
}

func (p Params) Offset() int { return (p.Page - 1) * p.Limit }

// Parse reads page and limit. Empty values take the defaults; anything that
// is not an integer in range is a validation error.
func Parse(pageStr, limitStr string) (Params, error) {
	p := Params{Page: 1, Limit: DefaultLimit}
	var errs []error
	if pageStr != "" {
		n, err := strconv.Atoi(pageStr)
		if err != nil || n < 1 {
			errs = append(errs, &validation.Error{Fields: []validation.FieldError{{Field: "page", Rule: "min"}}})
		} else {
			p.Page = n
		}
	}
	if limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 || n > MaxLimit {
			errs = append(errs, &validation.Error{Fields: []validation.FieldError{{Field: "limit", Rule: "max"}}})
		} else {
			p.Limit = n
		}
	}
	if err := validation.Join(errs...); err != nil {
		return Params{}, err
	}
	return p, nil
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

func New(p Params, total int) Pagination {
	pages := 0
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return Pagination{Page: p.Page, Limit: p.Limit, Total: total, Pages: pages}
}
