package ingest

import (
	"archive/tar"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver map[string][]string

func (f fakeResolver) TitlesForMID(_ context.Context, mid string) ([]string, error) {
	if mid == "/m/fail" {
		return nil, errors.New("mapping unavailable")
	}
	return f[mid], nil
}

func writeTGZ(t *testing.T, path string, members map[string]string, dirs ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for _, d := range dirs {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: d, Typeflag: tar.TypeDir, Mode: 0o755}))
	}
	for name, body := range members {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
}

func annotation(mention, mid string) string {
	return strings.Join([]string{"clueweb09-en0000-00-00000", "UTF-8", mention, "10", "15", "0.99", "0.0001", mid}, "\t")
}

func TestClueWebParser(t *testing.T) {
	dir := t.TempDir()
	writeTGZ(t, filepath.Join(dir, "ClueWeb09_English_1", "en0000.tgz"), map[string]string{
		"en0000/00.tsv": strings.Join([]string{
			annotation("Obama", "/m/02mjmr"),
			annotation("Obama", "/m/02mjmr"),
			annotation("City%20of%20Light", "/m/05qtj"),
			annotation("ghost", "/m/unknown"),
			"too\tshort",
		}, "\n") + "\n",
		"en0000/README": annotation("ignored", "/m/02mjmr") + "\n",
	}, "en0000/")

	resolver := fakeResolver{
		"/m/02mjmr": {"Barack_Obama", "Obama"},
		"/m/05qtj":  {"Paris"},
	}

	var got []Triple
	stats, err := NewClueWebParser(dir, testCatalog(), resolver, Options{}).Parse(context.Background(), collect(&got))
	require.NoError(t, err)

	assert.Equal(t, []Triple{
		{Mention: "Obama", Entity: "Barack_Obama", Count: 1},
		{Mention: "Obama", Entity: "Barack_Obama", Count: 1},
		{Mention: "City of Light", Entity: "Paris", Count: 1},
	}, got)
	assert.Equal(t, int64(1), stats.Files)
	assert.Equal(t, int64(5), stats.Lines)
	assert.Equal(t, int64(1), stats.Unresolved)
	assert.Equal(t, int64(1), stats.Malformed)
}

func TestClueWebParser_ResolverError(t *testing.T) {
	dir := t.TempDir()
	writeTGZ(t, filepath.Join(dir, "a.tgz"), map[string]string{
		"a.tsv": annotation("Obama", "/m/fail") + "\n",
	})

	_, err := NewClueWebParser(dir, testCatalog(), fakeResolver{}, Options{}).Parse(context.Background(), collect(new([]Triple)))
	assert.ErrorContains(t, err, "mapping unavailable")
}

func TestClueWebParser_NotGzip(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.tgz", "not a gzip stream")

	_, err := NewClueWebParser(dir, testCatalog(), fakeResolver{}, Options{}).Parse(context.Background(), collect(new([]Triple)))
	assert.Error(t, err)
}
