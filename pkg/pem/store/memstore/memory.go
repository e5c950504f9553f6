package memstore

import (
	"context"
	"sync"

	"github.com/cognicore/pem/pkg/pem/store"
)

// Store is an in-memory implementation of store.Store. Mentions and the
// entities of each mention iterate in first-seen order.
type Store struct {
	mu       sync.RWMutex
	order    []string
	mentions map[string]*mentionCounts
	freq     map[string]int64
}

type mentionCounts struct {
	entities []string
	counts   map[string]int64
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		mentions: make(map[string]*mentionCounts),
		freq:     make(map[string]int64),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// Accumulate implements store.Store.
func (s *Store) Accumulate(ctx context.Context, mention, entity string, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mc, ok := s.mentions[mention]
	if !ok {
		mc = &mentionCounts{counts: make(map[string]int64)}
		s.mentions[mention] = mc
		s.order = append(s.order, mention)
	}
	if _, seen := mc.counts[entity]; !seen {
		mc.entities = append(mc.entities, entity)
	}
	mc.counts[entity] += n
	s.freq[mention] += n
	return nil
}

// AddMentionFreq implements store.Store.
func (s *Store) AddMentionFreq(ctx context.Context, mention string, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freq[mention] += n
	return nil
}

// Flush implements store.Store; writes are applied immediately.
func (s *Store) Flush(ctx context.Context) error { return nil }

// Finalize implements store.Store.
func (s *Store) Finalize(ctx context.Context) error { return nil }

// EachMention implements store.Store.
func (s *Store) EachMention(ctx context.Context, fn func(mention string) error) error {
	s.mu.RLock()
	order := make([]string, len(s.order))
	copy(order, s.order)
	s.mu.RUnlock()

	for _, m := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(m); err != nil {
			return err
		}
	}
	return nil
}

// EntityCounts implements store.Store.
func (s *Store) EntityCounts(ctx context.Context, mention string) ([]store.EntityCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mc, ok := s.mentions[mention]
	if !ok {
		return nil, nil
	}
	out := make([]store.EntityCount, len(mc.entities))
	for i, e := range mc.entities {
		out[i] = store.EntityCount{Entity: e, Count: mc.counts[e]}
	}
	store.SortCounts(out)
	return out, nil
}

// MentionFreq implements store.Store.
func (s *Store) MentionFreq(ctx context.Context, mention string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.freq[mention], nil
}

// Stats implements store.Store.
func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := store.Stats{Mentions: int64(len(s.mentions))}
	for _, mc := range s.mentions {
		st.Pairs += int64(len(mc.entities))
		for _, c := range mc.counts {
			st.Total += c
		}
	}
	return st, nil
}
