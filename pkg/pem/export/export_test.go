package export

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/pem/pkg/pem/internalerr"
	"github.com/cognicore/pem/pkg/pem/prior"
	"github.com/cognicore/pem/pkg/pem/store/memstore"
)

func openTestSink(t *testing.T, opts Options) *GormSink {
	t.Helper()
	if opts.DSN == "" {
		opts.DSN = filepath.Join(t.TempDir(), "generated", "entity_word_embedding.db")
	}
	opts.Driver = DriverSQLite
	sink, err := Open(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })
	return sink
}

func sampleTable() *prior.Table {
	table := prior.NewTable()
	table.Set("Paris", prior.Distribution{
		{Entity: "Paris", Prob: 0.75},
		{Entity: "Paris_Hilton", Prob: 0.25},
	})
	table.Set("Obama", prior.Distribution{{Entity: "Barack_Obama", Prob: 1}})
	table.Set("paris", prior.Distribution{{Entity: "Paris", Prob: 1}})
	return table
}

func TestEncodeDistribution(t *testing.T) {
	got, err := EncodeDistribution(prior.Distribution{
		{Entity: "A", Prob: 0.3},
		{Entity: "B", Prob: 0.6},
		{Entity: "C", Prob: 0.3},
	})
	require.NoError(t, err)
	assert.Equal(t, `[["B",0.6],["A",0.3],["C",0.3]]`, got)
}

func TestLoadAndLookup(t *testing.T) {
	ctx := context.Background()
	var batches []int
	sink := openTestSink(t, Options{OnRows: func(n int) { batches = append(batches, n) }})

	freq := memstore.New()
	require.NoError(t, freq.Accumulate(ctx, "Paris", "Paris", 3))
	require.NoError(t, freq.Accumulate(ctx, "Paris", "Paris_Hilton", 1))
	require.NoError(t, freq.AddMentionFreq(ctx, "Paris", 1))

	n, err := sink.Load(ctx, sampleTable(), freq, LoadOptions{BatchSize: 2, Reset: true})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{2, 1}, batches)

	e, ok, err := sink.Lookup(ctx, "Paris")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "paris", e.Lower)
	assert.Equal(t, int64(5), e.Freq)
	assert.Equal(t, `[["Paris",0.75],["Paris_Hilton",0.25]]`, e.PEM)

	dist, err := e.Distribution()
	require.NoError(t, err)
	assert.Equal(t, prior.Distribution{{Entity: "Paris", Prob: 0.75}, {Entity: "Paris_Hilton", Prob: 0.25}}, dist)

	_, ok, err = sink.Lookup(ctx, "Nowhere")
	require.NoError(t, err)
	assert.False(t, ok)

	lower, err := sink.LookupLower(ctx, "PARIS")
	require.NoError(t, err)
	require.Len(t, lower, 2)
	assert.Equal(t, "Paris", lower[0].Word, "most frequent first")
}

func TestLoad_UpsertWithoutReset(t *testing.T) {
	ctx := context.Background()
	sink := openTestSink(t, Options{})

	_, err := sink.Load(ctx, sampleTable(), nil, LoadOptions{Reset: true})
	require.NoError(t, err)

	update := prior.NewTable()
	update.Set("Obama", prior.Distribution{{Entity: "Barack_Obama", Prob: 0.5}, {Entity: "Michelle_Obama", Prob: 0.5}})
	update.Set("Hilton", prior.Distribution{{Entity: "Paris_Hilton", Prob: 1}})
	n, err := sink.Load(ctx, update, nil, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := sink.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	e, ok, err := sink.Lookup(ctx, "Obama")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[["Barack_Obama",0.5],["Michelle_Obama",0.5]]`, e.PEM)

	// Reset replaces the table.
	_, err = sink.Load(ctx, update, nil, LoadOptions{Reset: true})
	require.NoError(t, err)
	count, err = sink.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestLoad_CaseDistinctMentions(t *testing.T) {
	ctx := context.Background()
	sink := openTestSink(t, Options{})

	table := prior.NewTable()
	table.Set("US", prior.Distribution{{Entity: "United_States", Prob: 1}})
	table.Set("us", prior.Distribution{{Entity: "Us_(film)", Prob: 1}})
	table.Set("Café", prior.Distribution{{Entity: "Café", Prob: 1}})
	table.Set("Cafe", prior.Distribution{{Entity: "Coffeehouse", Prob: 1}})

	n, err := sink.Load(ctx, table, nil, LoadOptions{Reset: true})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	_, err = sink.Load(ctx, table, nil, LoadOptions{})
	require.NoError(t, err, "upserting keeps one row per mention")

	for word, entity := range map[string]string{
		"US":   "United_States",
		"us":   "Us_(film)",
		"Café": "Café",
		"Cafe": "Coffeehouse",
	} {
		e, ok, err := sink.Lookup(ctx, word)
		require.NoError(t, err)
		require.True(t, ok, word)
		assert.Equal(t, `[["`+entity+`",1]]`, e.PEM, word)
	}
}

func TestLoad_SkipsOverlongMentions(t *testing.T) {
	ctx := context.Background()
	var skipped []int
	sink := openTestSink(t, Options{OnSkip: func(n int) { skipped = append(skipped, n) }})

	fits := strings.Repeat("é", MaxWordLength)
	table := prior.NewTable()
	table.Set(fits, prior.Distribution{{Entity: "A", Prob: 1}})
	table.Set(fits+"x", prior.Distribution{{Entity: "B", Prob: 1}})
	table.Set("Paris", prior.Distribution{{Entity: "Paris", Prob: 1}})

	n, err := sink.Load(ctx, table, nil, LoadOptions{Reset: true})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int{1}, skipped)

	_, ok, err := sink.Lookup(ctx, fits)
	require.NoError(t, err)
	assert.True(t, ok, "length is counted in characters, not bytes")
	_, ok, err = sink.Lookup(ctx, fits+"x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMySQLWordCollation(t *testing.T) {
	assert.Equal(t, "DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin", tableOptions(DriverMySQL))
	assert.Empty(t, tableOptions(DriverSQLite))
	assert.Equal(t,
		"ALTER TABLE `wiki` MODIFY `word` VARCHAR(512) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL",
		binaryWordDDL("wiki"))
}

func TestEach(t *testing.T) {
	ctx := context.Background()
	sink := openTestSink(t, Options{Table: "wiki_test"})
	_, err := sink.Load(ctx, sampleTable(), nil, LoadOptions{Reset: true})
	require.NoError(t, err)

	var words []string
	require.NoError(t, sink.Each(ctx, 2, func(e Entry) error {
		words = append(words, e.Word)
		return nil
	}))
	assert.ElementsMatch(t, []string{"Paris", "Obama", "paris"}, words)
}

func TestRecordRun(t *testing.T) {
	ctx := context.Background()
	sink := openTestSink(t, Options{})

	first := NewRun(time.Now().Add(-time.Minute), "yago")
	first.FinishedAt = time.Now()
	first.Mentions = 3
	first.Stats = `{"wikipedia":{"Triples":4}}`
	require.NoError(t, sink.RecordRun(ctx, first))
	assert.Len(t, first.ID, 26)

	second := &Run{StartedAt: time.Now(), Source: "none"}
	require.NoError(t, sink.RecordRun(ctx, second))
	assert.NotEmpty(t, second.ID)

	runs, err := sink.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, 3, runs[1].Mentions)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "postgres", DSN: "x"})
	assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)
}
