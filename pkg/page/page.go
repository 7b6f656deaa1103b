package page

import "sync"

// DefaultPageSize is used when a page size is missing or not positive
const DefaultPageSize = 20

// Result is one page of items plus the numbers a pager needs
type Result[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
	TotalItems int `json:"totalItems"`
}

// HasPager is false when there is nothing to page through
func (r Result[T]) HasPager() bool {
	return r.TotalPages > 0
}

// Paginate returns the requested page. Page numbers below 1 become 1 and
// numbers past the end are clamped to the last page. The returned Items
// share the backing array of items.
func Paginate[T any](items []T, pageNumber, pageSize int) Result[T] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	total := len(items)
	totalPages := total / pageSize
	if total%pageSize != 0 {
		totalPages++
	}

	if pageNumber < 1 {
		pageNumber = 1
	}
	if pageNumber > totalPages {
		pageNumber = max(totalPages, 1)
	}

	r := Result[T]{
		Items:      []T{},
		Page:       pageNumber,
		PageSize:   pageSize,
		TotalPages: totalPages,
		TotalItems: total,
	}
	if total == 0 {
		return r
	}

	start := (pageNumber - 1) * pageSize
	end := start + min(pageSize, total-start)
	r.Items = items[start:end]
	return r
}

// Cursor holds the current page and page size of a view.
// Any change to the page size or filters sends it back to page 1.
type Cursor struct {
	mu   sync.Mutex
	page int
	size int
}

// NewCursor starts at page 1
func NewCursor(pageSize int) *Cursor {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Cursor{page: 1, size: pageSize}
}

// Page returns the current page number
func (c *Cursor) Page() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

// PageSize returns the current page size
func (c *Cursor) PageSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// SetPage moves to page n; values below 1 become 1
func (c *Cursor) SetPage(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.page = max(n, 1)
}

// SetPageSize changes the page size and resets to page 1
func (c *Cursor) SetPageSize(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 {
		n = DefaultPageSize
	}
	c.size = n
	c.page = 1
}

// Reset goes back to page 1
func (c *Cursor) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.page = 1
}
