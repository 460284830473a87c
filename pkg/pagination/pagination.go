package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 15
	MaxLimit     = 100
)

// Sort keys accepted by the list endpoints.
const (
	SortByCreatedAt = "createdAt"
	SortByPatientID = "patient_id"
)

// Params holds list parameters extracted from a request: a zero-based page,
// page size, free-text filter and sort key/direction.
type Params struct {
	Page      int
	Limit     int
	Filter    string
	SortBy    string
	SortOrder string
}

// FromContext extracts list parameters from the echo context, applying
// defaults and clamping out-of-range values.
func FromContext(c echo.Context) Params {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 0 {
		page = 0
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	sortBy := c.QueryParam("sortBy")
	if sortBy != SortByPatientID {
		sortBy = SortByCreatedAt
	}

	sortOrder := c.QueryParam("sortOrder")
	if sortOrder != "asc" {
		sortOrder = "desc"
	}

	return Params{
		Page:      page,
		Limit:     limit,
		Filter:    c.QueryParam("filter"),
		SortBy:    sortBy,
		SortOrder: sortOrder,
	}
}

// Offset returns the row offset for the current page.
func (p Params) Offset() int {
	return p.Page * p.Limit
}

// LastPage returns the zero-based index of the last page for the given total.
// An empty result set still has page 0.
func (p Params) LastPage(total int) int {
	if total <= 0 || p.Limit <= 0 {
		return 0
	}
	last := (total + p.Limit - 1) / p.Limit
	return last - 1
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Page < p.LastPage(total)
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Page > 0
}

// Response wraps a paginated patient list response.
type Response struct {
	Patients   interface{} `json:"patients"`
	TotalCount int         `json:"totalCount"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	HasMore    bool        `json:"has_more"`
}

func NewResponse(patients interface{}, total int, p Params) *Response {
	return &Response{
		Patients:   patients,
		TotalCount: total,
		Page:       p.Page,
		Limit:      p.Limit,
		HasMore:    p.HasNext(total),
	}
}
