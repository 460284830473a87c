package client

import (
	"context"
	"errors"
	"sync"
)

// ErrStaleFetch is returned by Fetch when the list parameters changed while
// the request was in flight. The response is discarded, not applied.
var ErrStaleFetch = errors.New("list parameters changed during fetch")

// ListController drives one paginated patient collection. Each collection
// gets its own controller, so page, filter and sort state never bleed
// between lists.
type ListController struct {
	client     *Client
	cache      Cache
	collection string

	mu     sync.Mutex
	params ListParams
	total  int // -1 until the first page resolves
}

func NewListController(c *Client, cache Cache, collection string) *ListController {
	return &ListController{
		client:     c,
		cache:      cache,
		collection: collection,
		params:     ListParams{}.WithDefaults(),
		total:      -1,
	}
}

// Params returns the current parameter tuple.
func (l *ListController) Params() ListParams {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.params
}

// TotalCount returns the last known collection size, or -1 before the first
// fetch resolves.
func (l *ListController) TotalCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// SetFilter replaces the filter and rewinds to the first page.
func (l *ListController) SetFilter(filter string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.params.Filter == filter {
		return
	}
	l.params.Filter = filter
	l.params.Page = 0
}

// SetSort replaces the sort key and direction and rewinds to the first page.
func (l *ListController) SetSort(sortBy, sortOrder string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.params.SortBy == sortBy && l.params.SortOrder == sortOrder {
		return
	}
	l.params.SortBy = sortBy
	l.params.SortOrder = sortOrder
	l.params = l.params.WithDefaults()
	l.params.Page = 0
}

// SetLimit replaces the page size and rewinds to the first page.
func (l *ListController) SetLimit(limit int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || l.params.Limit == limit {
		return
	}
	l.params.Limit = limit
	l.params.Page = 0
}

// Next advances one page. At the last page, or before the collection size is
// known, it is a no-op.
func (l *ListController) Next() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.total < 0 {
		return
	}
	last := lastPage(l.total, l.params.Limit)
	if l.params.Page < last {
		l.params.Page++
	}
}

// Previous rewinds one page. At page zero it is a no-op.
func (l *ListController) Previous() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.params.Page > 0 {
		l.params.Page--
	}
}

// Fetch resolves the current page, consulting the cache first. A response
// that arrives after the parameters moved on is dropped and reported as
// ErrStaleFetch.
func (l *ListController) Fetch(ctx context.Context) (*PatientPage, error) {
	l.mu.Lock()
	params := l.params
	l.mu.Unlock()
	key := CacheKey(l.collection, params)

	if l.cache != nil {
		if v, ok := l.cache.Get(key); ok {
			if page, ok := v.(*PatientPage); ok {
				l.applyTotal(params, page.TotalCount)
				return page, nil
			}
		}
	}

	page, err := l.client.Patients(ctx, l.collection, params)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	current := l.params
	l.mu.Unlock()
	if CacheKey(l.collection, current) != key {
		l.client.log.Debug().Str("key", key).Msg("stale list response discarded")
		return nil, ErrStaleFetch
	}

	if l.cache != nil {
		l.cache.Set(key, page)
	}
	l.applyTotal(params, page.TotalCount)
	return page, nil
}

func (l *ListController) applyTotal(params ListParams, total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	// Only apply if the tuple is still current.
	if l.params == params {
		l.total = total
	}
}

// lastPage is the zero-based index of the final page.
func lastPage(total, limit int) int {
	if total <= 0 || limit <= 0 {
		return 0
	}
	return (total+limit-1)/limit - 1
}
