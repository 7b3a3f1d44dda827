// Package pagination splits a result set into pages that respect an API's
// per-request size cap, and walks those pages sequentially.
//
// BitMEX caps every REST response at 500 rows and addresses pages with the
// count/start query parameters. This package turns "give me N rows" into an
// ordered list of (count, offset) pages without gaps or overlaps.
//
// Example usage:
//
//	pages := pagination.Paginate(1200, pagination.MaxPageSize)
//	// [{500 0} {500 500} {200 1000}]
//
//	err := pagination.Walk(ctx, pages, func(ctx context.Context, p pagination.Page) error {
//		quotes, err := client.FetchPage(ctx, idx, granularity, p)
//		...
//	})
//
// Walk:
//   - Visits pages in ascending offset order
//   - Issues one callback at a time (no parallel fetching)
//   - Stops on the first error and returns it with the failing page
package pagination
