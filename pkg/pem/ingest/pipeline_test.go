package ingest

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/pem/pkg/pem/metrics"
	"github.com/cognicore/pem/pkg/pem/store"
	"github.com/cognicore/pem/pkg/pem/store/memstore"
)

// staticParser emits a fixed list of triples.
type staticParser struct {
	name    string
	triples []Triple
	stats   Stats
}

func (p staticParser) Name() string { return p.name }

func (p staticParser) Parse(_ context.Context, emit EmitFunc) (Stats, error) {
	for _, t := range p.triples {
		if err := emit(t); err != nil {
			return p.stats, err
		}
	}
	return p.stats, nil
}

func TestPipelineRun(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "wiki_00",
		`<doc id="1">`,
		`<a href="Paris">the capital</a> <a href="Paris">the capital</a> <a href="Nowhere">x</a>`,
	)

	m, err := metrics.NewBuildMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	st := memstore.New()

	stats, err := NewPipeline(st, m, nil).Run(ctx, NewAnchorParser(dir, testCatalog(), Options{}))
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Triples)

	counts, err := st.EntityCounts(ctx, "the capital")
	require.NoError(t, err)
	assert.Equal(t, []store.EntityCount{{Entity: "Paris", Count: 2}}, counts)

	assert.Equal(t, 3, testutil.CollectAndCount(m, "pem_lines_total", "pem_triples_total", "pem_dropped_total"))
}

func TestPipelineRun_RejectsInvalidTriple(t *testing.T) {
	p := staticParser{name: "bad", triples: []Triple{{Mention: "m", Entity: "E", Count: 0}}}

	_, err := NewPipeline(memstore.New(), nil, nil).Run(context.Background(), p)
	assert.ErrorContains(t, err, "count must be positive")
}

func TestPipelineRun_OrderIndependent(t *testing.T) {
	ctx := context.Background()
	a := staticParser{name: "a", triples: []Triple{
		{Mention: "m", Entity: "X", Count: 3},
		{Mention: "m", Entity: "Y", Count: 1},
		{Mention: "n", Entity: "X", Count: 2},
	}}
	b := staticParser{name: "b", triples: []Triple{
		{Mention: "m", Entity: "Y", Count: 4},
		{Mention: "n", Entity: "X", Count: 1},
	}}

	totals := func(parsers ...Parser) map[string]int64 {
		st := memstore.New()
		pipe := NewPipeline(st, nil, nil)
		for _, p := range parsers {
			_, err := pipe.Run(ctx, p)
			require.NoError(t, err)
		}
		out := make(map[string]int64)
		for _, mention := range []string{"m", "n"} {
			counts, err := st.EntityCounts(ctx, mention)
			require.NoError(t, err)
			for _, c := range counts {
				out[mention+"/"+c.Entity] = c.Count
			}
			freq, err := st.MentionFreq(ctx, mention)
			require.NoError(t, err)
			out[mention] = freq
		}
		return out
	}

	ab := totals(a, b)
	assert.Equal(t, ab, totals(b, a))
	assert.Equal(t, int64(5), ab["m/Y"])
	assert.Equal(t, int64(8), ab["m"])
}
