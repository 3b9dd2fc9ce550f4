package pagination

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dashmarketing/export-client/pkg/export"
)

func TestSplitMonths(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want [][2]string
	}{
		{
			name: "single month",
			from: "2024-03-01",
			to:   "2024-03-31",
			want: [][2]string{{"2024-03-01", "2024-03-31"}},
		},
		{
			name: "single day",
			from: "2024-03-15",
			to:   "2024-03-15",
			want: [][2]string{{"2024-03-15", "2024-03-15"}},
		},
		{
			name: "mid-month boundaries",
			from: "2024-02-15",
			to:   "2024-04-10",
			want: [][2]string{
				{"2024-02-15", "2024-02-29"},
				{"2024-03-01", "2024-03-31"},
				{"2024-04-01", "2024-04-10"},
			},
		},
		{
			name: "cross year",
			from: "2023-12-20",
			to:   "2024-01-05",
			want: [][2]string{
				{"2023-12-20", "2023-12-31"},
				{"2024-01-01", "2024-01-05"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := export.Request{From: date(t, tt.from), To: date(t, tt.to), PageSize: 100, MaxPages: 7}

			months := SplitMonths(req)
			if len(months) != len(tt.want) {
				t.Fatalf("Months = %d, want %d", len(months), len(tt.want))
			}
			for i, want := range tt.want {
				got := [2]string{export.FormatDate(months[i].From), export.FormatDate(months[i].To)}
				if got != want {
					t.Errorf("Month %d = %v, want %v", i, got, want)
				}
				if months[i].PageSize != 100 || months[i].MaxPages != 7 {
					t.Errorf("Month %d dropped pagination settings: %+v", i, months[i])
				}
			}
		})
	}
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := export.ParseDate(s)
	if err != nil {
		t.Fatalf("bad date %q: %v", s, err)
	}
	return d
}

// rangeFetcher serves scripted responses per date range, so month-split
// iteration can be observed range by range.
type rangeFetcher struct {
	mu        sync.Mutex
	responses map[string][]*export.Response
	served    map[string]int
	ranges    []string
}

func newRangeFetcher() *rangeFetcher {
	return &rangeFetcher{
		responses: map[string][]*export.Response{},
		served:    map[string]int{},
	}
}

func rangeKey(req export.Request) string {
	return export.FormatDate(req.From) + ".." + export.FormatDate(req.To)
}

func (f *rangeFetcher) script(from, to string, responses ...*export.Response) {
	f.responses[from+".."+to] = responses
}

func (f *rangeFetcher) FetchPage(ctx context.Context, req export.Request, page Page) (*export.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := rangeKey(req)
	i := f.served[key]
	f.served[key]++
	f.ranges = append(f.ranges, key)

	scripts := f.responses[key]
	if i >= len(scripts) {
		return &export.Response{Rows: []export.Row{}, Partial: false}, nil
	}
	return scripts[i], nil
}

func (f *rangeFetcher) seenRanges() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ranges...)
}

func TestMonthIterator_ConcatenatesMonths(t *testing.T) {
	fetcher := newRangeFetcher()
	fetcher.script("2024-02-15", "2024-02-29",
		&export.Response{Rows: rowsN(2, 0), Partial: false},
	)
	fetcher.script("2024-03-01", "2024-03-31",
		&export.Response{Rows: rowsN(3, 2), Partial: false},
	)

	req := export.Request{From: date(t, "2024-02-15"), To: date(t, "2024-03-31"), PageSize: 10}
	it := NewMonthIterator(fetcher, req)

	var rows []export.Row
	for it.Next(context.Background()) {
		rows = append(rows, it.Row())
	}
	if err := it.Err(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// Rows arrive in month order.
	if len(rows) != 5 {
		t.Fatalf("Rows = %d, want 5", len(rows))
	}
	for i, row := range rows {
		if row["id"] != float64(i) {
			t.Errorf("rows[%d] = %v, want id %d", i, row, i)
		}
	}

	// Each month was queried only for its own sub-range.
	for _, seen := range fetcher.seenRanges() {
		if seen != "2024-02-15..2024-02-29" && seen != "2024-03-01..2024-03-31" {
			t.Errorf("Unexpected range queried: %s", seen)
		}
	}

	// Two pages plus the trailing empty page of each month.
	if got := it.Result().Pages; got != 4 {
		t.Errorf("Result.Pages = %d, want 4", got)
	}
	if it.Result().Rows != 5 {
		t.Errorf("Result.Rows = %d, want 5", it.Result().Rows)
	}
}

func TestMonthIterator_PartialMonthFailsFast(t *testing.T) {
	fetcher := newRangeFetcher()
	fetcher.script("2024-01-01", "2024-01-31",
		&export.Response{Rows: rowsN(2, 0), Partial: false},
	)
	fetcher.script("2024-02-01", "2024-02-29",
		&export.Response{Rows: rowsN(2, 2), Partial: true, Reason: "ga4_limit"},
	)

	req := export.Request{From: date(t, "2024-01-01"), To: date(t, "2024-03-31"), PageSize: 10}
	it := NewMonthIterator(fetcher, req)

	var rows []export.Row
	for it.Next(context.Background()) {
		rows = append(rows, it.Row())
	}

	// January's complete rows were yielded; nothing from the partial
	// February page, and March was never touched.
	if len(rows) != 2 {
		t.Errorf("Rows = %d, want 2", len(rows))
	}
	if !export.IsPartial(it.Err()) {
		t.Errorf("Err = %v, want partial_response", it.Err())
	}
	for _, seen := range fetcher.seenRanges() {
		if seen == "2024-03-01..2024-03-31" {
			t.Error("March must not be fetched after a partial February")
		}
	}
}

func TestMonthIterator_CapAppliesPerMonth(t *testing.T) {
	fetcher := newRangeFetcher()
	// January keeps serving full pages; the per-month cap stops it.
	fetcher.script("2024-01-01", "2024-01-31",
		&export.Response{Rows: rowsN(2, 0), Partial: false},
		&export.Response{Rows: rowsN(2, 2), Partial: false},
		&export.Response{Rows: rowsN(2, 4), Partial: false},
	)
	fetcher.script("2024-02-01", "2024-02-29",
		&export.Response{Rows: rowsN(1, 4), Partial: false},
	)

	req := export.Request{From: date(t, "2024-01-01"), To: date(t, "2024-02-29"), PageSize: 2, MaxPages: 2}
	it := NewMonthIterator(fetcher, req)

	count := 0
	for it.Next(context.Background()) {
		count++
	}
	if err := it.Err(); err != nil {
		t.Fatalf("Cap is not an error, got: %v", err)
	}

	// 4 capped January rows plus February's single row.
	if count != 5 {
		t.Errorf("Rows = %d, want 5", count)
	}
	if !it.Result().Capped {
		t.Error("Result.Capped = false, want true")
	}
}

func TestMonthIterator_EmptyRange(t *testing.T) {
	fetcher := newRangeFetcher()

	req := export.Request{From: date(t, "2024-01-01"), To: date(t, "2024-02-29"), PageSize: 10}
	it := NewMonthIterator(fetcher, req)

	for it.Next(context.Background()) {
		t.Fatal("Empty months must yield no rows")
	}
	if err := it.Err(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := fmt.Sprint(fetcher.seenRanges()); got != "[2024-01-01..2024-01-31 2024-02-01..2024-02-29]" {
		t.Errorf("Ranges = %s, want both months probed once", got)
	}
}
