package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/pem/pkg/pem/catalog"
	"github.com/cognicore/pem/pkg/pem/internalerr"
)

func writeCatalog(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "basic"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "basic", "names.txt"), []byte("Paris\t42\nBarack Obama\t99\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "basic", "redirects.txt"), []byte("500\tBarack_Obama\n"), 0o644))
}

func TestLoader(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir)

	cfg := Default()
	cfg.BaseDir = dir
	cfg.Catalog.NamesPath = "basic/names.txt"
	cfg.Catalog.RedirectsPath = "basic/redirects.txt"

	comp, err := (&Loader{Config: &cfg}).Load(context.Background())
	require.NoError(t, err)
	defer comp.Close()

	assert.Equal(t, 2, comp.Catalog.Len())
	id, ok := comp.Catalog.RedirectTarget(500)
	assert.True(t, ok)
	assert.Equal(t, int64(99), id)
	assert.Nil(t, comp.Freebase, "freebase is only opened for clueweb")
}

func TestLoader_ClueWebOpensFreebase(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir)

	cfg := Default()
	cfg.BaseDir = dir
	cfg.Catalog.NamesPath = "basic/names.txt"
	cfg.Catalog.RedirectsPath = ""
	cfg.Catalog.FreebaseDB = "fb2wp.db"
	cfg.Custom.Source = SourceClueWeb

	fb, err := catalog.CreateFreebase(context.Background(), filepath.Join(dir, "fb2wp.db"))
	require.NoError(t, err)
	require.NoError(t, fb.Close())

	comp, err := (&Loader{Config: &cfg}).Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, comp.Freebase)
	assert.NoError(t, comp.Close())
}

func TestLoader_ClueWebMissingFreebase(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir)

	cfg := Default()
	cfg.BaseDir = dir
	cfg.Catalog.NamesPath = "basic/names.txt"
	cfg.Catalog.RedirectsPath = ""
	cfg.Catalog.FreebaseDB = "mapping/missing.db"
	cfg.Custom.Source = SourceClueWeb

	_, err := (&Loader{Config: &cfg}).Load(context.Background())
	assert.ErrorIs(t, err, internalerr.ErrStoreUnavailable)
}

func TestLoader_MissingCatalog(t *testing.T) {
	cfg := Default()
	cfg.BaseDir = t.TempDir()

	_, err := (&Loader{Config: &cfg}).Load(context.Background())
	assert.Error(t, err)

	_, err = (&Loader{}).Load(context.Background())
	assert.Error(t, err)
}
