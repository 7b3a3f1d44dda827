package pagination

import "fmt"

// MaxPageSize is the BitMEX hard cap on rows per REST request.
const MaxPageSize = 500

// Page describes one bounded slice of a larger result set.
// Count is in [1, page size] and Offset is the zero-based start row.
type Page struct {
	Count  int
	Offset int
}

// String renders the page for logs and error messages.
func (p Page) String() string {
	return fmt.Sprintf("count=%d offset=%d", p.Count, p.Offset)
}

// Paginate partitions totalResults rows into pages of at most maxPageSize rows,
// ordered by ascending offset. Full pages come first, followed by a single
// partial page holding the remainder, if any.
//
// A zero total yields no pages. maxPageSize must be positive.
func Paginate(totalResults, maxPageSize int) []Page {
	if maxPageSize <= 0 {
		panic(fmt.Sprintf("pagination: max page size must be positive (got %d)", maxPageSize))
	}
	if totalResults <= 0 {
		return nil
	}

	fullPages := totalResults / maxPageSize
	remainder := totalResults % maxPageSize

	pages := make([]Page, 0, fullPages+1)
	for i := 0; i < fullPages; i++ {
		pages = append(pages, Page{
			Count:  maxPageSize,
			Offset: i * maxPageSize,
		})
	}

	if remainder > 0 {
		pages = append(pages, Page{
			Count:  remainder,
			Offset: fullPages * maxPageSize,
		})
	}

	return pages
}
