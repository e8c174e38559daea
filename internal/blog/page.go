package blog

// MaxPageSize caps every paginated listing
const MaxPageSize = 100

// Page selects a 1-based page of a listing
type Page struct {
	Number int
	Size   int
}

func (p Page) normalize(defaultSize int) Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = defaultSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset returns the number of rows skipped before the page
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// Paginated is one page of a listing plus totals
type Paginated[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PerPage  int   `json:"per_page"`
	LastPage int   `json:"last_page"`
}

func paginate[T any](items []T, total int64, p Page) *Paginated[T] {
	if items == nil {
		items = []T{}
	}
	last := int((total + int64(p.Size) - 1) / int64(p.Size))
	if last < 1 {
		last = 1
	}
	return &Paginated[T]{
		Items:    items,
		Total:    total,
		Page:     p.Number,
		PerPage:  p.Size,
		LastPage: last,
	}
}
