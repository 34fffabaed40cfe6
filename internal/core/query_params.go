// internal/core/query_params.go
package core

import (
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Default and limit constants for pagination
const (
	DefaultPerPage = 15
	MaxPerPage     = 100
	// MaxPage keeps the row offset within an int32.
	MaxPage = math.MaxInt32 / MaxPerPage
)

// ReservedParams contains query parameter names reserved for pagination, sorting, search and includes.
// These should not be treated as column filters.
var ReservedParams = map[string]bool{
	"filter":    true,
	"search":    true,
	"sort":      true,
	"direction": true,
	"order":     true,
	"page":      true,
	"per_page":  true,
	"include":   true,
	"nocache":   true,
	"force":     true,
}

// ListQueryOptions holds parsed query parameters for list requests
type ListQueryOptions struct {
	// Pagination
	Page    int
	PerPage int

	// Sorting. SortField is empty when the request did not ask for one.
	SortField string
	SortDesc  bool

	Search  string
	Filters map[string]string
	Include []string
}

// Offset returns the row offset of the requested page.
func (o *ListQueryOptions) Offset() int {
	return (o.Page - 1) * o.PerPage
}

// FilterKeys returns the filter field names in sorted order.
func (o *ListQueryOptions) FilterKeys() []string {
	keys := make([]string, 0, len(o.Filters))
	for k := range o.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseListQueryOptions extracts pagination, sorting, search, filters and includes from query parameters.
// Invalid values fall back to defaults instead of failing the request.
func ParseListQueryOptions(queryParams url.Values) *ListQueryOptions {
	opts := &ListQueryOptions{
		Page:    1,
		PerPage: DefaultPerPage,
		Filters: make(map[string]string),
	}

	// Parse page
	if page, err := strconv.Atoi(queryParams.Get("page")); err == nil && page > 1 {
		opts.Page = min(page, MaxPage)
	}

	// Parse per_page
	if perPageStr := queryParams.Get("per_page"); perPageStr != "" {
		if perPage, err := strconv.Atoi(perPageStr); err == nil {
			opts.PerPage = min(max(perPage, 1), MaxPerPage)
		}
	}

	// Parse sort, "-field" means descending
	if sortBy := strings.TrimSpace(queryParams.Get("sort")); sortBy != "" {
		if strings.HasPrefix(sortBy, "-") {
			opts.SortDesc = true
			sortBy = sortBy[1:]
		}
		if IsValidIdentifier(sortBy) {
			opts.SortField = sortBy
		} else {
			opts.SortDesc = false
		}
	}

	// Explicit direction overrides the sort prefix
	direction := queryParams.Get("direction")
	if direction == "" {
		direction = queryParams.Get("order")
	}
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "asc":
		opts.SortDesc = false
	case "desc":
		opts.SortDesc = true
	}

	opts.Search = strings.TrimSpace(queryParams.Get("search"))

	// Parse include
	if includeStr := queryParams.Get("include"); includeStr != "" {
		for _, name := range strings.Split(includeStr, ",") {
			if name = strings.TrimSpace(name); name != "" {
				opts.Include = append(opts.Include, name)
			}
		}
	}

	// Parse filters, filter[field] wins over a bare field of the same name
	for key, values := range queryParams {
		if len(values) == 0 {
			continue
		}
		if field, ok := filterKey(key); ok {
			opts.Filters[field] = values[0]
		}
	}
	for key, values := range queryParams {
		if len(values) == 0 || IsReservedParam(key) || strings.Contains(key, "[") {
			continue
		}
		if _, exists := opts.Filters[key]; !exists {
			opts.Filters[key] = values[0]
		}
	}

	return opts
}

func filterKey(key string) (string, bool) {
	if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
		return "", false
	}
	field := key[len("filter[") : len(key)-1]
	return field, field != ""
}

// IsReservedParam checks if a query parameter name is reserved and never a bare filter.
func IsReservedParam(key string) bool {
	return ReservedParams[strings.ToLower(key)]
}
