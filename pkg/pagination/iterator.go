package pagination

import (
	"context"
	"fmt"

	"github.com/dashmarketing/export-client/pkg/export"
)

// Page identifies one page position within an export.
type Page struct {
	// Offset is the row offset for offset-based pagination.
	Offset int

	// Token is the continuation token, when the service returned one.
	// A non-empty token takes precedence over Offset.
	Token string

	// Size is the page size.
	Size int
}

// PageFetcher fetches a single export page. The client implements this.
type PageFetcher interface {
	FetchPage(ctx context.Context, req export.Request, page Page) (*export.Response, error)
}

// Iterator is a lazy row sequence over a paginated export.
//
// Usage:
//
//	it, err := client.FetchAll(req)
//	if err != nil { ... }
//	for it.Next(ctx) {
//		row := it.Row()
//		...
//	}
//	if err := it.Err(); err != nil { ... }
//	result := it.Result()
type Iterator struct {
	fetcher PageFetcher
	req     export.Request

	buf []export.Row
	cur export.Row

	page     Page
	pages    int
	rows     int64
	rowCount *int64
	capped   bool
	done     bool
	err      error
}

// NewIterator creates an iterator over the given range. The request must
// already be validated.
func NewIterator(fetcher PageFetcher, req export.Request) *Iterator {
	return &Iterator{
		fetcher: fetcher,
		req:     req,
		page:    Page{Size: req.PageSize},
	}
}

// Next advances to the next row, fetching pages on demand. It returns false
// when the export is exhausted, capped, or failed; check Err afterwards.
func (it *Iterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}

	for {
		if len(it.buf) > 0 {
			it.cur = it.buf[0]
			it.buf = it.buf[1:]
			it.rows++
			return true
		}

		if it.done {
			return false
		}

		if it.req.MaxPages > 0 && it.pages >= it.req.MaxPages {
			// Deliberate client-side cap: incomplete by choice, not a
			// partial-response failure.
			it.done = true
			it.capped = true
			return false
		}

		resp, err := it.fetcher.FetchPage(ctx, it.req, it.page)
		if err != nil {
			it.err = fmt.Errorf("fetch page %d: %w", it.pages+1, err)
			return false
		}
		it.pages++

		if it.rowCount == nil {
			it.rowCount = resp.RowCount
		}

		// Fail fast on partial data, before yielding anything from this
		// page. Retrying later is the caller's responsibility.
		if resp.Partial {
			msg := fmt.Sprintf("page %d returned partial data", it.pages)
			if resp.Reason != "" {
				msg = fmt.Sprintf("%s (reason %q)", msg, resp.Reason)
			}
			it.err = &export.Error{Kind: export.KindPartialResponse, Message: msg}
			return false
		}

		if len(resp.Rows) == 0 {
			// End of data.
			it.done = true
			return false
		}

		it.buf = resp.Rows
		it.advance(resp)
	}
}

// advance moves the page position past resp: by token when the service
// supplied one, otherwise by offset.
func (it *Iterator) advance(resp *export.Response) {
	if resp.NextPageToken != "" {
		it.page.Token = resp.NextPageToken
		it.page.Offset = 0
		return
	}

	it.page.Token = ""
	it.page.Offset += len(resp.Rows)

	if it.rowCount != nil && int64(it.page.Offset) >= *it.rowCount {
		it.done = true
	}
}

// Row returns the current row. Only valid after Next returned true.
func (it *Iterator) Row() export.Row {
	return it.cur
}

// Err returns the error that stopped iteration, or nil on clean termination
// (including a MaxPages cap).
func (it *Iterator) Err() error {
	return it.err
}

// Result summarizes the iteration so far. After Next has returned false with
// a nil Err, Capped distinguishes a MaxPages stop from true exhaustion.
func (it *Iterator) Result() export.Result {
	return export.Result{
		Pages:    it.pages,
		Rows:     it.rows,
		RowCount: it.rowCount,
		Capped:   it.capped,
	}
}
