package prior

import (
	"context"
	"fmt"

	"github.com/cognicore/pem/pkg/pem/store"
)

// Table maps mentions to distributions and remembers insertion order so
// exports are deterministic.
type Table struct {
	order []string
	dists map[string]Distribution
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{dists: make(map[string]Distribution)}
}

// Set stores d for mention, replacing any previous distribution in place.
func (t *Table) Set(mention string, d Distribution) {
	if _, ok := t.dists[mention]; !ok {
		t.order = append(t.order, mention)
	}
	t.dists[mention] = d
}

// Get returns the distribution of mention.
func (t *Table) Get(mention string) (Distribution, bool) {
	d, ok := t.dists[mention]
	return d, ok
}

// Len returns the number of mentions.
func (t *Table) Len() int { return len(t.order) }

// Each visits mentions in insertion order.
func (t *Table) Each(fn func(mention string, d Distribution) error) error {
	for _, m := range t.order {
		if err := fn(m, t.dists[m]); err != nil {
			return err
		}
	}
	return nil
}

// ComputeFunc derives one mention's distribution from its counts.
type ComputeFunc func(mention string, counts []store.EntityCount) (Distribution, bool)

// BuildTable computes a distribution for every mention in st. Mentions
// whose counts yield no distribution are left out.
func BuildTable(ctx context.Context, st store.Store, compute ComputeFunc) (*Table, error) {
	table := NewTable()
	err := st.EachMention(ctx, func(mention string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		counts, err := st.EntityCounts(ctx, mention)
		if err != nil {
			return fmt.Errorf("entity counts for %q: %w", mention, err)
		}
		if d, ok := compute(mention, counts); ok {
			table.Set(mention, d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}
