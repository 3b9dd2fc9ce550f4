package pagination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dashmarketing/export-client/pkg/export"
	"github.com/rs/zerolog/log"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel page requests
	MaxConcurrency int
	// Timeout per page fetch
	Timeout time.Duration
}

// DefaultConfig returns safe defaults for the export service
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        2 * time.Minute,
	}
}

// BatchFetcher fetches the pages of an export in parallel. It only applies
// to offset-based pagination: once the first page reports the total row
// count, every remaining offset is known and the pages can be fetched
// independently. Cursor-paginated exports fall back to sequential
// iteration.
type BatchFetcher struct {
	fetcher PageFetcher
	config  Config
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(fetcher PageFetcher, config Config) *BatchFetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
	}
}

type pageResult struct {
	index int
	rows  []export.Row
	err   error
}

// FetchAll fetches every page of the range and returns the rows in offset
// order. Any partial page fails the whole batch. The MaxPages cap bounds
// the number of page requests; a capped batch is reported via the result.
func (bf *BatchFetcher) FetchAll(ctx context.Context, req export.Request) ([]export.Row, export.Result, error) {
	start := time.Now()

	if err := req.Validate(); err != nil {
		return nil, export.Result{}, err
	}

	// First page determines the total and whether offsets are usable.
	first, err := bf.fetchOne(ctx, req, Page{Size: req.PageSize})
	if err != nil {
		return nil, export.Result{}, fmt.Errorf("fetch first page: %w", err)
	}

	result := export.Result{Pages: 1, Rows: int64(len(first.Rows)), RowCount: first.RowCount}

	if len(first.Rows) == 0 {
		return []export.Row{}, result, nil
	}

	if first.RowCount == nil || first.NextPageToken != "" {
		// No known total, or cursor pagination: parallel offsets would
		// not be sound. Drain sequentially instead.
		return bf.fetchSequential(ctx, req, first, start)
	}

	totalPages := int((*first.RowCount + int64(req.PageSize) - 1) / int64(req.PageSize))
	if req.MaxPages > 0 && totalPages > req.MaxPages {
		totalPages = req.MaxPages
		result.Capped = true
	}

	log.Info().
		Str("from", export.FormatDate(req.From)).
		Str("to", export.FormatDate(req.To)).
		Int("total_pages", totalPages).
		Int64("row_count", *first.RowCount).
		Msg("Starting parallel page fetch")

	if totalPages == 1 {
		log.Info().
			Int("pages", 1).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete (single page)")
		return first.Rows, result, nil
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pageQueue := make(chan int, totalPages)
	pageResults := make(chan pageResult, totalPages)

	// Fill page queue (page 0 already fetched)
	for page := 1; page < totalPages; page++ {
		pageQueue <- page
	}
	close(pageQueue)

	var wg sync.WaitGroup
	for i := 0; i < bf.config.MaxConcurrency; i++ {
		wg.Add(1)
		go bf.worker(fetchCtx, req, pageQueue, pageResults, &wg, i)
	}

	go func() {
		wg.Wait()
		close(pageResults)
	}()

	pages := make([][]export.Row, totalPages)
	pages[0] = first.Rows

	var firstErr error
	for res := range pageResults {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
				cancel() // stop remaining workers
			}
			continue
		}
		pages[res.index] = res.rows
		result.Pages++
	}

	if firstErr != nil {
		return nil, result, firstErr
	}

	rows := make([]export.Row, 0, *first.RowCount)
	for _, p := range pages {
		rows = append(rows, p...)
	}
	result.Rows = int64(len(rows))

	log.Info().
		Int("pages", result.Pages).
		Int64("rows", result.Rows).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return rows, result, nil
}

// worker fetches pages from the queue until it is drained or the context is
// cancelled.
func (bf *BatchFetcher) worker(ctx context.Context, req export.Request, pageQueue <-chan int, results chan<- pageResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	for index := range pageQueue {
		select {
		case <-ctx.Done():
			log.Debug().
				Int("worker_id", workerID).
				Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		page := Page{Offset: index * req.PageSize, Size: req.PageSize}
		resp, err := bf.fetchOne(ctx, req, page)
		if err != nil {
			results <- pageResult{index: index, err: fmt.Errorf("fetch page %d: %w", index+1, err)}
			continue
		}

		results <- pageResult{index: index, rows: resp.Rows}
	}
}

// fetchOne fetches a single page with the per-page timeout and rejects
// partial pages.
func (bf *BatchFetcher) fetchOne(ctx context.Context, req export.Request, page Page) (*export.Response, error) {
	pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	defer cancel()

	resp, err := bf.fetcher.FetchPage(pageCtx, req, page)
	if err != nil {
		return nil, err
	}
	if resp.Partial {
		msg := fmt.Sprintf("page at offset %d returned partial data", page.Offset)
		if resp.Reason != "" {
			msg = fmt.Sprintf("%s (reason %q)", msg, resp.Reason)
		}
		return nil, &export.Error{Kind: export.KindPartialResponse, Message: msg}
	}
	return resp, nil
}

// fetchSequential drains the remaining pages through the iterator, seeding
// nothing from the first response beyond its rows (the iterator refetches
// from the start; exports are read-only so this is just extra requests, not
// extra state).
func (bf *BatchFetcher) fetchSequential(ctx context.Context, req export.Request, first *export.Response, start time.Time) ([]export.Row, export.Result, error) {
	log.Info().
		Str("from", export.FormatDate(req.From)).
		Str("to", export.FormatDate(req.To)).
		Msg("Row count unknown or cursor pagination - fetching sequentially")

	it := NewIterator(bf.fetcher, req)
	rows := make([]export.Row, 0, len(first.Rows))
	for it.Next(ctx) {
		rows = append(rows, it.Row())
	}
	if err := it.Err(); err != nil {
		return nil, it.Result(), err
	}

	result := it.Result()
	log.Info().
		Int("pages", result.Pages).
		Int64("rows", result.Rows).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete (sequential)")

	return rows, result, nil
}
