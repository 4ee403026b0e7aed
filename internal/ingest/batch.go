package ingest

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BatchItem is the outcome of one element of a batch flush.
type BatchItem struct {
	Result Result
	Err    error
}

// SubmitBatch processes submissions with bounded concurrency. Items are
// independent; the returned slice is in input order.
func (s *Service) SubmitBatch(ctx context.Context, policy KindPolicy, subs []Submission) []BatchItem {
	items := make([]BatchItem, len(subs))
	var g errgroup.Group
	g.SetLimit(s.batchConcurrency)
	for i := range subs {
		g.Go(func() error {
			res, err := s.Submit(ctx, policy, subs[i])
			items[i] = BatchItem{Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return items
}

// Accepted counts the items that were persisted or deduplicated.
func Accepted(items []BatchItem) int {
	n := 0
	for _, item := range items {
		if item.Err == nil {
			n++
		}
	}
	return n
}
