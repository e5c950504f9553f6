package analytics

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/pem/pkg/pem/prior"
	"github.com/cognicore/pem/pkg/pem/store/memstore"
)

func uniform(n int) prior.Distribution {
	d := make(prior.Distribution, n)
	for i := range d {
		d[i] = prior.Candidate{Entity: fmt.Sprintf("E%d", i), Prob: 1 / float64(n)}
	}
	return d
}

func TestAnalyzerHistogram(t *testing.T) {
	a := NewAnalyzer()
	a.Process("one", uniform(1), 10)
	a.Process("three", uniform(3), 5)
	a.Process("five", uniform(5), 5)
	a.Process("twenty", uniform(20), 1)
	a.Process("hundred", uniform(100), 2)
	a.Process("merged", uniform(101), 0)
	a.Process("empty", nil, 100)

	s := a.Snapshot()
	assert.Equal(t, int64(6), s.Mentions)
	assert.Equal(t, int64(230), s.Candidates)
	assert.Equal(t, int64(5), s.Ambiguous)

	var counts []int64
	for _, b := range s.Histogram {
		counts = append(counts, b.Mentions)
	}
	assert.Equal(t, []int64{1, 2, 1, 1, 1}, counts)
	assert.InDelta(t, 230.0/6, s.MeanCandidates, 1e-9)
}

func TestAnalyzerEntropy(t *testing.T) {
	a := NewAnalyzer()
	a.Process("certain", uniform(1), 1)
	a.Process("coin", uniform(2), 1)

	s := a.Snapshot()
	assert.InDelta(t, math.Log(2)/2, s.MeanEntropy, 1e-9)
}

func TestTopMentions(t *testing.T) {
	a := NewAnalyzer()
	a.Process("b", uniform(2), 5)
	a.Process("a", uniform(1), 5)
	a.Process("c", uniform(3), 9)

	top := a.Snapshot().TopMentions(2)
	assert.Equal(t, []MentionStat{
		{Mention: "c", Freq: 9, Candidates: 3},
		{Mention: "a", Freq: 5, Candidates: 1},
	}, top)
}

func TestAnalyzeTable(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	require.NoError(t, st.Accumulate(ctx, "Paris", "Paris", 3))
	require.NoError(t, st.Accumulate(ctx, "Paris", "Paris_Hilton", 1))

	table := prior.NewTable()
	table.Set("Paris", prior.Distribution{{Entity: "Paris", Prob: 0.75}, {Entity: "Paris_Hilton", Prob: 0.25}})

	s, err := AnalyzeTable(ctx, table, st)
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Ambiguous)
	require.Len(t, s.TopMentions(0), 1)
	assert.Equal(t, int64(4), s.TopMentions(0)[0].Freq)

	s, err = AnalyzeTable(ctx, table, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.TopMentions(1)[0].Freq)
}
