// Package pagination drives page-by-page iteration over an export range.
//
// The Iterator is the lazy form: rows are pulled one page at a time, a page
// flagged partial fails the iteration before any of its rows are yielded,
// and the MaxPages cap is applied client-side. Each call to a
// client's FetchAll produces a fresh Iterator, so an abandoned or failed
// iteration can simply be restarted.
//
// The BatchFetcher is the parallel form for offset-based pagination: once
// the first page reports a total row count, the remaining offsets are known
// up front and can be fetched by a worker pool.
//
// The MonthIterator splits a large range into calendar months and runs one
// iteration per month, so no single request spans more than a month.
package pagination
