package pagination

import (
	"context"
	"sync"
	"testing"

	"github.com/dashmarketing/export-client/pkg/export"
)

// offsetFetcher serves a fixed dataset by offset, like a stateless
// offset-paginated export service.
type offsetFetcher struct {
	mu       sync.Mutex
	data     []export.Row
	calls    int
	partials map[int]bool // offsets that answer partial
	errs     map[int]error
}

func newOffsetFetcher(total int) *offsetFetcher {
	data := make([]export.Row, total)
	for i := range data {
		data[i] = export.Row{"id": float64(i)}
	}
	return &offsetFetcher{data: data, partials: map[int]bool{}, errs: map[int]error{}}
}

func (f *offsetFetcher) FetchPage(ctx context.Context, req export.Request, page Page) (*export.Response, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.errs[page.Offset]; err != nil {
		return nil, err
	}

	end := page.Offset + page.Size
	if end > len(f.data) {
		end = len(f.data)
	}
	rows := []export.Row{}
	if page.Offset < len(f.data) {
		rows = f.data[page.Offset:end]
	}

	total := int64(len(f.data))
	return &export.Response{
		Rows:     rows,
		Partial:  f.partials[page.Offset],
		RowCount: &total,
	}, nil
}

func (f *offsetFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestBatchFetcher_FetchAll(t *testing.T) {
	fetcher := newOffsetFetcher(25)
	bf := NewBatchFetcher(fetcher, Config{MaxConcurrency: 3})

	rows, result, err := bf.FetchAll(context.Background(), baseRequest(10, 0))
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}

	if len(rows) != 25 {
		t.Fatalf("Rows = %d, want 25", len(rows))
	}
	// Order must be preserved across parallel workers.
	for i, row := range rows {
		if row["id"] != float64(i) {
			t.Fatalf("rows[%d] = %v, want id %d", i, row, i)
		}
	}
	if result.Pages != 3 {
		t.Errorf("Pages = %d, want 3", result.Pages)
	}
	if result.Capped {
		t.Error("Result should not be capped")
	}
}

func TestBatchFetcher_SinglePage(t *testing.T) {
	fetcher := newOffsetFetcher(5)
	bf := NewBatchFetcher(fetcher, DefaultConfig())

	rows, result, err := bf.FetchAll(context.Background(), baseRequest(10, 0))
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if len(rows) != 5 {
		t.Errorf("Rows = %d, want 5", len(rows))
	}
	if result.Pages != 1 {
		t.Errorf("Pages = %d, want 1", result.Pages)
	}
	if fetcher.callCount() != 1 {
		t.Errorf("Requests = %d, want 1", fetcher.callCount())
	}
}

func TestBatchFetcher_EmptyRange(t *testing.T) {
	fetcher := newOffsetFetcher(0)
	bf := NewBatchFetcher(fetcher, DefaultConfig())

	rows, _, err := bf.FetchAll(context.Background(), baseRequest(10, 0))
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Rows = %d, want 0", len(rows))
	}
}

func TestBatchFetcher_PartialFirstPage(t *testing.T) {
	fetcher := newOffsetFetcher(25)
	fetcher.partials[0] = true
	bf := NewBatchFetcher(fetcher, DefaultConfig())

	_, _, err := bf.FetchAll(context.Background(), baseRequest(10, 0))
	if !export.IsPartial(err) {
		t.Errorf("Error = %v, want partial_response", err)
	}
	if fetcher.callCount() != 1 {
		t.Errorf("Requests = %d, want 1 (fail before fanning out)", fetcher.callCount())
	}
}

func TestBatchFetcher_PartialLaterPage(t *testing.T) {
	fetcher := newOffsetFetcher(25)
	fetcher.partials[10] = true
	bf := NewBatchFetcher(fetcher, Config{MaxConcurrency: 2})

	_, _, err := bf.FetchAll(context.Background(), baseRequest(10, 0))
	if !export.IsPartial(err) {
		t.Errorf("Error = %v, want partial_response", err)
	}
}

func TestBatchFetcher_MaxPagesCap(t *testing.T) {
	fetcher := newOffsetFetcher(100)
	bf := NewBatchFetcher(fetcher, Config{MaxConcurrency: 2})

	rows, result, err := bf.FetchAll(context.Background(), baseRequest(10, 3))
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if len(rows) != 30 {
		t.Errorf("Rows = %d, want 30", len(rows))
	}
	if !result.Capped {
		t.Error("Result.Capped = false, want true")
	}
	if fetcher.callCount() != 3 {
		t.Errorf("Requests = %d, want 3", fetcher.callCount())
	}
}

func TestBatchFetcher_UpstreamError(t *testing.T) {
	fetcher := newOffsetFetcher(30)
	fetcher.errs[20] = &export.Error{Kind: export.KindUpstreamError, StatusCode: 500, Message: "boom"}
	bf := NewBatchFetcher(fetcher, Config{MaxConcurrency: 2})

	_, _, err := bf.FetchAll(context.Background(), baseRequest(10, 0))
	if !export.IsUpstream(err) {
		t.Errorf("Error = %v, want upstream_error", err)
	}
}

func TestBatchFetcher_SequentialFallbackOnTokens(t *testing.T) {
	// Cursor pagination: row count present but tokens drive paging, so
	// the batch fetcher must fall back to sequential iteration.
	fetcher := &scriptedFetcher{
		responses: []*export.Response{
			{Rows: rowsN(2, 0), Partial: false, NextPageToken: "tok-2"},
			// Sequential fallback restarts from the beginning.
			{Rows: rowsN(2, 0), Partial: false, NextPageToken: "tok-2"},
			{Rows: rowsN(2, 2), Partial: false},
			{Rows: []export.Row{}, Partial: false},
		},
	}
	bf := NewBatchFetcher(fetcher, DefaultConfig())

	rows, _, err := bf.FetchAll(context.Background(), baseRequest(2, 0))
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if len(rows) != 4 {
		t.Errorf("Rows = %d, want 4", len(rows))
	}
}
