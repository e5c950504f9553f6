package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYagoParser(t *testing.T) {
	path := writeFile(t, t.TempDir(), "aida_means.tsv",
		`"Paris"	Paris`,
		`"Paris"	Paris`,
		`"Paris"	Paris_Hilton   `,
		`"AT&T"	AT&amp;T`,
		`"cafe"	Café`,
		`"x"`,
		`"Nobody"	No_Such_Entity`,
	)

	var got []Triple
	stats, err := NewYagoParser(path, testCatalog(), Options{}).Parse(context.Background(), collect(&got))
	require.NoError(t, err)

	assert.Equal(t, []Triple{
		{Mention: "Paris", Entity: "Paris", Count: 1},
		{Mention: "Paris", Entity: "Paris_Hilton", Count: 1},
		{Mention: "AT&T", Entity: "AT&T", Count: 1},
		{Mention: "cafe", Entity: "Café", Count: 1},
	}, got)
	assert.Equal(t, int64(7), stats.Lines)
	assert.Equal(t, int64(4), stats.Triples)
	assert.Equal(t, int64(1), stats.Malformed)
	assert.Equal(t, int64(1), stats.Unresolved)
}

func TestCleanYagoTitle(t *testing.T) {
	assert.Equal(t, `AT&T "Mobility"`, CleanYagoTitle(` AT&amp;T &quot;Mobility&quot; `))
	assert.Equal(t, "100%%_Pure", CleanYagoTitle(`100%_Pure`))
}
