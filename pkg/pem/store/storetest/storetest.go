// Package storetest holds behaviour checks shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/pem/pkg/pem/store"
)

// Opener returns a fresh, empty store.
type Opener func(t *testing.T) store.Store

// Run exercises the accumulation contract against open.
func Run(t *testing.T, open Opener) {
	t.Run("accumulates counts and frequency", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		require.NoError(t, st.Accumulate(ctx, "Paris", "Paris", 1))
		require.NoError(t, st.Accumulate(ctx, "Paris", "Paris_Hilton", 1))
		require.NoError(t, st.Accumulate(ctx, "Paris", "Paris", 1))
		require.NoError(t, st.Flush(ctx))
		require.NoError(t, st.Accumulate(ctx, "Paris", "Paris", 2))
		require.NoError(t, st.Finalize(ctx))

		counts, err := st.EntityCounts(ctx, "Paris")
		require.NoError(t, err)
		assert.Equal(t, []store.EntityCount{
			{Entity: "Paris", Count: 4},
			{Entity: "Paris_Hilton", Count: 1},
		}, counts)

		freq, err := st.MentionFreq(ctx, "Paris")
		require.NoError(t, err)
		assert.Equal(t, int64(5), freq)
	})

	t.Run("ties keep first-seen order", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		for _, e := range []string{"C", "A", "B"} {
			require.NoError(t, st.Accumulate(ctx, "m", e, 2))
		}
		require.NoError(t, st.Accumulate(ctx, "m", "D", 3))
		require.NoError(t, st.Finalize(ctx))

		counts, err := st.EntityCounts(ctx, "m")
		require.NoError(t, err)
		var order []string
		for _, c := range counts {
			order = append(order, c.Entity)
		}
		assert.Equal(t, []string{"D", "C", "A", "B"}, order)
	})

	t.Run("frequency only increments", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		require.NoError(t, st.Accumulate(ctx, "Obama", "Barack_Obama", 3))
		require.NoError(t, st.AddMentionFreq(ctx, "Obama", 1))
		require.NoError(t, st.AddMentionFreq(ctx, "nobody", 1))
		require.NoError(t, st.Finalize(ctx))

		freq, err := st.MentionFreq(ctx, "Obama")
		require.NoError(t, err)
		assert.Equal(t, int64(4), freq)

		freq, err = st.MentionFreq(ctx, "nobody")
		require.NoError(t, err)
		assert.Equal(t, int64(1), freq)

		// A mention without entity counts is not visited.
		var seen []string
		require.NoError(t, st.EachMention(ctx, func(m string) error {
			seen = append(seen, m)
			return nil
		}))
		assert.Equal(t, []string{"Obama"}, seen)
	})

	t.Run("unknown mention", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		counts, err := st.EntityCounts(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, counts)

		freq, err := st.MentionFreq(ctx, "missing")
		require.NoError(t, err)
		assert.Zero(t, freq)
	})

	t.Run("visits every mention and reports stats", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		require.NoError(t, st.Accumulate(ctx, "b", "B", 1))
		require.NoError(t, st.Accumulate(ctx, "a", "A", 2))
		require.NoError(t, st.Accumulate(ctx, "a", "A2", 1))
		require.NoError(t, st.Accumulate(ctx, "", "Empty", 1))
		require.NoError(t, st.Finalize(ctx))

		var seen []string
		require.NoError(t, st.EachMention(ctx, func(m string) error {
			seen = append(seen, m)
			return nil
		}))
		sort.Strings(seen)
		assert.Equal(t, []string{"", "a", "b"}, seen)

		stats, err := st.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, store.Stats{Mentions: 3, Pairs: 4, Total: 5}, stats)
	})

	t.Run("visit stops on error", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		require.NoError(t, st.Accumulate(ctx, "a", "A", 1))
		require.NoError(t, st.Accumulate(ctx, "b", "B", 1))
		require.NoError(t, st.Finalize(ctx))

		calls := 0
		err := st.EachMention(ctx, func(string) error {
			calls++
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, 1, calls)
	})
}
