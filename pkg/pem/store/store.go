package store

import (
	"context"
	"sort"
)

// Store accumulates mention/entity counts. Implementations are not safe
// for concurrent writers; one process owns a store for a whole run.
type Store interface {
	Close() error

	// Accumulate adds n to the (mention, entity) count and to the
	// mention's total frequency.
	Accumulate(ctx context.Context, mention, entity string, n int64) error
	// AddMentionFreq adds n to the mention's total frequency only.
	AddMentionFreq(ctx context.Context, mention string, n int64) error

	// Flush persists buffered writes. Finalize flushes and prepares the
	// store for the lookup phase.
	Flush(ctx context.Context) error
	Finalize(ctx context.Context) error

	// EachMention visits every mention with at least one entity count.
	EachMention(ctx context.Context, fn func(mention string) error) error
	// EntityCounts returns the counts of a mention, highest first; equal
	// counts keep the order in which the entities were first seen.
	EntityCounts(ctx context.Context, mention string) ([]EntityCount, error)
	MentionFreq(ctx context.Context, mention string) (int64, error)
	Stats(ctx context.Context) (Stats, error)
}

// EntityCount is one accumulated (entity, count) pair of a mention.
type EntityCount struct {
	Entity string
	Count  int64
}

// Stats summarises a store's contents.
type Stats struct {
	Mentions int64
	Pairs    int64
	Total    int64 // sum of all pair counts
}

// SortCounts orders counts by count descending, keeping the existing
// order among equal counts.
func SortCounts(counts []EntityCount) {
	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})
}
