package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/pem/pkg/pem/catalog"
)

func TestCrossWikiParser_Example(t *testing.T) {
	cat := catalog.NewMemory()
	cat.AddEntity("Barack Obama", 42)
	cat.AddEntity("Obama, Fukui", 99)
	path := writeFile(t, t.TempDir(), "crosswikis.txt", "Obama\t5\t42,100\t99,5")

	var got []Triple
	stats, err := NewCrossWikiParser(path, cat, Options{}).Parse(context.Background(), collect(&got))
	require.NoError(t, err)

	assert.Equal(t, []Triple{
		{Mention: "Obama", EntityID: 42, Entity: "Barack_Obama", Count: 100},
		{Mention: "Obama", EntityID: 99, Entity: "Obama,_Fukui", Count: 5},
	}, got)
	assert.Equal(t, int64(2), stats.Triples)
}

func TestCrossWikiParser_ResolvesAndDrops(t *testing.T) {
	path := writeFile(t, t.TempDir(), "crosswikis.txt",
		"Barack%20Obama\t9\t500,4,Barack_Obama\t501,2\t777,1\tjunk\t42,0",
		"Wikipedia%20help\t3\t42,3",
		"lonely",
	)

	var got []Triple
	stats, err := NewCrossWikiParser(path, testCatalog(), Options{}).Parse(context.Background(), collect(&got))
	require.NoError(t, err)

	assert.Equal(t, []Triple{
		{Mention: "Barack Obama", EntityID: 99, Entity: "Barack_Obama", Count: 4},
	}, got)
	assert.Equal(t, int64(3), stats.Lines)
	assert.Equal(t, int64(2), stats.Unresolved, "dangling redirect and unknown id")
	assert.Equal(t, int64(1), stats.Malformed)
	assert.Equal(t, int64(2), stats.Filtered, "zero count and wikipedia mention")
}

func TestParseCandidate(t *testing.T) {
	id, count, ok := parseCandidate("42,100,Barack_Obama")
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, int64(100), count)

	for _, col := range []string{"", "42", "x,1", "42,y"} {
		_, _, ok := parseCandidate(col)
		assert.False(t, ok, col)
	}
}
