// Package pagination computes page metadata for list responses.
package pagination

const (
	// DefaultPage is used when the client omits page.
	DefaultPage = 1

	// DefaultPageSize is used when the client omits page_size.
	DefaultPageSize = 10

	// MaxPageSize is the largest accepted page_size.
	MaxPageSize = 100
)

// Meta describes where a page sits in the full collection.
// PreviousPage and NextPage are nil at the edges.
type Meta struct {
	Total        int  `json:"total"`
	TotalPages   int  `json:"total_pages"`
	FirstPage    int  `json:"first_page"`
	LastPage     int  `json:"last_page"`
	Page         int  `json:"page"`
	PreviousPage *int `json:"previous_page"`
	NextPage     *int `json:"next_page"`
}

// Compute returns the metadata for page of size pageSize over total items.
// TotalPages is never below 1, so an empty collection is page 1 of 1.
func Compute(total, page, pageSize int) Meta {
	totalPages := 1
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	if totalPages < 1 {
		totalPages = 1
	}

	meta := Meta{
		Total:      total,
		TotalPages: totalPages,
		FirstPage:  1,
		LastPage:   totalPages,
		Page:       page,
	}
	if page > 1 {
		prev := page - 1
		meta.PreviousPage = &prev
	}
	if page < totalPages {
		next := page + 1
		meta.NextPage = &next
	}
	return meta
}
