package pagination

import (
	"context"
	"time"

	"github.com/dashmarketing/export-client/pkg/export"
)

// SplitMonths splits a request into consecutive calendar-month sub-requests.
// The first and last months are truncated to the request boundaries; page
// size and the MaxPages cap carry over to each month. The request must
// already be validated.
func SplitMonths(req export.Request) []export.Request {
	var out []export.Request

	cur := req.From
	for !cur.After(req.To) {
		monthEnd := endOfMonth(cur)
		if monthEnd.After(req.To) {
			monthEnd = req.To
		}

		sub := req
		sub.From = cur
		sub.To = monthEnd
		out = append(out, sub)

		cur = monthEnd.AddDate(0, 0, 1)
	}

	return out
}

func endOfMonth(t time.Time) time.Time {
	firstOfMonth := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return firstOfMonth.AddDate(0, 1, -1)
}

// MonthIterator exports a large range one calendar month at a time. Each
// month runs as its own independent iteration, so the service never sees a
// range wider than one month and per-request limits stay out of reach. Rows
// stream in month order without being accumulated.
type MonthIterator struct {
	fetcher PageFetcher
	months  []export.Request

	idx    int
	inner  *Iterator
	result export.Result
	err    error
}

// NewMonthIterator creates an iterator that walks the range month by month.
// The request must already be validated.
func NewMonthIterator(fetcher PageFetcher, req export.Request) *MonthIterator {
	return &MonthIterator{
		fetcher: fetcher,
		months:  SplitMonths(req),
	}
}

// Next advances to the next row, moving on to the following month when the
// current one is exhausted. A partial page fails the whole export, exactly
// as in the single-range Iterator.
func (it *MonthIterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}

	for {
		if it.inner == nil {
			if it.idx >= len(it.months) {
				return false
			}
			it.inner = NewIterator(it.fetcher, it.months[it.idx])
			it.idx++
		}

		if it.inner.Next(ctx) {
			return true
		}

		it.accumulate(it.inner.Result())
		if err := it.inner.Err(); err != nil {
			it.err = err
			it.inner = nil
			return false
		}
		it.inner = nil
	}
}

// Row returns the current row. Only valid after Next returned true.
func (it *MonthIterator) Row() export.Row {
	return it.inner.Row()
}

// Err returns the error that stopped iteration, or nil on clean termination.
func (it *MonthIterator) Err() error {
	return it.err
}

// Result sums the per-month iterations: total page requests, total rows, and
// whether any month hit the MaxPages cap. RowCount stays nil because the
// service reports totals per month, not for the whole range.
func (it *MonthIterator) Result() export.Result {
	r := it.result
	if it.inner != nil {
		inner := it.inner.Result()
		r.Pages += inner.Pages
		r.Rows += inner.Rows
		if inner.Capped {
			r.Capped = true
		}
	}
	return r
}

func (it *MonthIterator) accumulate(r export.Result) {
	it.result.Pages += r.Pages
	it.result.Rows += r.Rows
	if r.Capped {
		it.result.Capped = true
	}
}
