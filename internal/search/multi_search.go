package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gcbaptista/go-search-gateway/services"
)

// multiSearchConcurrency bounds the searches one multi-search runs at once.
const multiSearchConcurrency = 8

// MultiSearch executes multiple named searches in parallel. A failing query
// only produces an entry in Errors; the call itself fails on invalid input
// or when the caller gives up.
func (s *Service) MultiSearch(ctx context.Context, multiQuery services.MultiSearchQuery) (*services.MultiSearchResult, error) {
	startTime := time.Now()

	if len(multiQuery.Queries) == 0 {
		return nil, fmt.Errorf("at least one query is required")
	}
	names := make(map[string]bool, len(multiQuery.Queries))
	for _, q := range multiQuery.Queries {
		if q.Name == "" {
			return nil, fmt.Errorf("each query must have a non-empty name")
		}
		if names[q.Name] {
			return nil, fmt.Errorf("duplicate query name '%s'", q.Name)
		}
		names[q.Name] = true
	}

	var mu sync.Mutex
	results := make(map[string]*services.SearchResponse, len(multiQuery.Queries))
	queryErrors := make(map[string]string)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(multiSearchConcurrency)
	for _, nq := range multiQuery.Queries {
		nq := nq
		g.Go(func() error {
			resp, err := s.Search(gctx, nq.SearchContext)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				queryErrors[nq.Name] = err.Error()
				return nil
			}
			results[nq.Name] = resp
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("multi-search cancelled: %w", err)
	}

	result := &services.MultiSearchResult{
		Results:          results,
		TotalQueries:     len(multiQuery.Queries),
		ProcessingTimeMs: float64(time.Since(startTime).Nanoseconds()) / 1e6,
	}
	if len(queryErrors) > 0 {
		result.Errors = queryErrors
	}
	return result, nil
}
