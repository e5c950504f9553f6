package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/pem/pkg/pem/internalerr"
)

// writeFixture lays out a small corpus below a base directory and
// returns the path of a config file pointing at it.
func writeFixture(t *testing.T, backend, source string) string {
	t.Helper()
	base := t.TempDir()
	write := func(name string, lines ...string) {
		path := filepath.Join(base, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	}

	write("names.txt", "Paris\t42", "Paris Hilton\t7", "Barack Obama\t99")
	write("redirects.txt", "500\tBarack_Obama")
	write("anchors/wiki_00",
		`<doc id="1" title="Paris">`,
		`<a href="Paris">Paris</a> <a href="Paris">Paris</a> <a href="Paris">Paris</a>`,
		`<a href="Paris_Hilton">Paris</a>`,
		`</doc>`,
	)
	write("crosswikis.txt", "Obama\t4\t500,4")
	write("aida_means.tsv", "\"Paris\"\tParis_Hilton", "\"Hilton\"\tParis_Hilton")

	cfg := fmt.Sprintf(`base_dir: %s
wiki:
  anchor_dir: anchors
  crosswiki_path: crosswikis.txt
custom:
  source: %s
  yago_path: aida_means.tsv
catalog:
  names_path: names.txt
  redirects_path: redirects.txt
accumulator:
  backend: %s
  path: temp/wiki.db
export:
  dsn: out/wiki.db
log:
  level: error
`, base, source, backend)
	path := filepath.Join(base, "pem.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCommand(context.Background())
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunThenLookup(t *testing.T) {
	for _, backend := range []string{"memory", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			cfg := writeFixture(t, backend, "yago")

			out, err := execute(t, "--config", cfg, "run")
			require.NoError(t, err)
			assert.Contains(t, out, "mentions (source yago)")

			out, err = execute(t, "--config", cfg, "lookup", "Paris")
			require.NoError(t, err)
			assert.Contains(t, out, "Paris_Hilton")
			assert.Contains(t, out, "1.000")
			assert.Contains(t, out, "0.750")

			out, err = execute(t, "--config", cfg, "lookup", "Obama")
			require.NoError(t, err)
			assert.Contains(t, out, "Barack_Obama")
		})
	}
}

func TestWikiSkipsSecondaryCorpus(t *testing.T) {
	cfg := writeFixture(t, "memory", "yago")

	out, err := execute(t, "--config", cfg, "wiki")
	require.NoError(t, err)
	assert.Contains(t, out, "exported 2 mentions")

	// Hilton only occurs in the secondary corpus.
	_, err = execute(t, "--config", cfg, "lookup", "Hilton")
	assert.ErrorIs(t, err, internalerr.ErrNotFound)
}

func TestCustomMergesSecondaryCorpus(t *testing.T) {
	cfg := writeFixture(t, "memory", "yago")

	out, err := execute(t, "--config", cfg, "custom")
	require.NoError(t, err)
	assert.Contains(t, out, "exported 3 mentions")

	out, err = execute(t, "--config", cfg, "lookup", "--lower", "hilton")
	require.NoError(t, err)
	assert.Contains(t, out, "Paris_Hilton")
}

func TestCustomSourceOverride(t *testing.T) {
	cfg := writeFixture(t, "memory", "yago")

	out, err := execute(t, "--config", cfg, "--custom-source", "none", "custom")
	require.NoError(t, err)
	assert.Contains(t, out, "exported 2 mentions")
}

func TestStatsReadsExportedTable(t *testing.T) {
	cfg := writeFixture(t, "memory", "yago")
	_, err := execute(t, "--config", cfg, "run")
	require.NoError(t, err)

	out, err := execute(t, "--config", cfg, "stats", "--top", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "mentions")
	assert.Contains(t, out, "candidates per mention")
	assert.Contains(t, out, "most frequent mentions")
	assert.Contains(t, out, "Paris")
}

func TestLookupRequiresMention(t *testing.T) {
	cfg := writeFixture(t, "memory", "none")
	_, err := execute(t, "--config", cfg, "lookup")
	assert.Error(t, err)
}

func TestMissingConfigFile(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "wiki")
	assert.Error(t, err)
}
