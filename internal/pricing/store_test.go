package pricing

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"house-price-workers/internal/common/logger"
	"house-price-workers/pkg/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLoadsModelsInManifestOrder(t *testing.T) {
	store := NewStore(StoreOptions{ManifestPath: writeModelDir(t, nil), Logger: logger.NewTestLogger(t)})

	models, err := store.Models()
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "small-linear", models[0].Entry.ID)
	assert.Equal(t, "small-tree", models[1].Entry.ID)
	assert.Equal(t, "small-tree", models[1].Model.Name())

	again, err := store.Models()
	require.NoError(t, err)
	assert.Same(t, models[0].Model, again[0].Model)
}

func TestStoreCallersCannotChangeLoadedHandles(t *testing.T) {
	store := NewStore(StoreOptions{ManifestPath: writeModelDir(t, nil), Logger: logger.NewTestLogger(t)})

	models, err := store.Models()
	require.NoError(t, err)
	models[0], models[1] = models[1], models[0]
	_ = append(models[:1], LoadedModel{Entry: registry.ModelEntry{ID: "intruder"}})

	schema, err := store.Schema()
	require.NoError(t, err)
	first := schema[0]
	schema[0] = "intruder"

	again, err := store.Models()
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.Equal(t, "small-linear", again[0].Entry.ID)
	assert.Equal(t, "small-tree", again[1].Entry.ID)

	schemaAgain, err := store.Schema()
	require.NoError(t, err)
	assert.Equal(t, first, schemaAgain[0])
}

func TestStoreSchemaPrecedence(t *testing.T) {
	// without columns the first model's feature names are used
	store := NewStore(StoreOptions{ManifestPath: writeModelDir(t, nil)})
	s, err := store.Schema()
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchema{"sqft", "citi"}, s)

	// manifest columns win over feature names
	store = NewStore(StoreOptions{ManifestPath: writeModelDir(t, []string{"citi", "sqft"})})
	s, err = store.Schema()
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchema{"citi", "sqft"}, s)

	// a column manifest file wins over both
	manifest := writeModelDir(t, []string{"citi", "sqft"})
	schemaPath := writeJSON(t, filepath.Dir(manifest), "columns.json", map[string][]string{"columns": {"sqft", "citi", "bed"}})
	store = NewStore(StoreOptions{ManifestPath: manifest, SchemaPath: schemaPath})
	s, err = store.Schema()
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchema{"sqft", "citi", "bed"}, s)
}

func TestStoreMissingArtifactIsNotRemembered(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "manifest.json")
	store := NewStore(StoreOptions{ManifestPath: manifestPath, Logger: logger.NewTestLogger(t)})

	_, err := store.Models()
	assert.ErrorIs(t, err, ErrArtifactMissing)
	_, err = store.Schema()
	assert.ErrorIs(t, err, ErrArtifactMissing)
	assert.False(t, store.Ready())

	// supply the files; the same store now succeeds without a restart
	writeJSON(t, dir, "linear.json", smallLinear())
	writeJSON(t, dir, "manifest.json", registry.ModelManifest{
		Models: []registry.ModelEntry{{ID: "small-linear", Kind: registry.KindLinear, Path: "linear.json"}},
	})

	require.NoError(t, store.Warm(context.Background()))
	assert.True(t, store.Ready())
}

func TestStoreMissingModelFile(t *testing.T) {
	manifest := writeModelDir(t, nil)
	require.NoError(t, os.Remove(filepath.Join(filepath.Dir(manifest), "tree.json")))

	store := NewStore(StoreOptions{ManifestPath: manifest})
	_, err := store.Models()
	assert.ErrorIs(t, err, ErrArtifactMissing)
}

func TestStoreInvalidManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"models": [`), 0o644))

	store := NewStore(StoreOptions{ManifestPath: path})
	_, err := store.Models()
	assert.ErrorIs(t, err, ErrArtifactInvalid)

	writeJSON(t, dir, "manifest.json", registry.ModelManifest{})
	store.Reset()
	_, err = store.Models()
	assert.ErrorIs(t, err, ErrArtifactInvalid)
}

func TestStoreKindMismatch(t *testing.T) {
	dir := t.TempDir()
	writeJSON(t, dir, "linear.json", smallLinear())
	path := writeJSON(t, dir, "manifest.json", registry.ModelManifest{
		Models: []registry.ModelEntry{{ID: "mislabelled", Kind: registry.KindTree, Path: "linear.json"}},
	})

	_, err := NewStore(StoreOptions{ManifestPath: path}).Models()
	require.ErrorIs(t, err, ErrArtifactInvalid)
	assert.Contains(t, err.Error(), "mislabelled")
}

func TestStoreResetReloads(t *testing.T) {
	manifest := writeModelDir(t, []string{"sqft", "citi"})
	store := NewStore(StoreOptions{ManifestPath: manifest})
	require.NoError(t, store.Warm(context.Background()))
	require.True(t, store.Ready())

	store.Reset()
	assert.False(t, store.Ready())

	m, err := store.Manifest()
	require.NoError(t, err)
	assert.Len(t, m.Models, 2)
}

func TestStoreWarmHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewStore(StoreOptions{ManifestPath: writeModelDir(t, nil)}).Warm(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStoreBundledManifest(t *testing.T) {
	store := NewStore(StoreOptions{ManifestPath: sampleManifest})

	s, err := store.Schema()
	require.NoError(t, err)
	assert.Equal(t, canonicalSchema(), s)

	models, err := store.Models()
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "linear-regression", models[0].Entry.ID)
	assert.Equal(t, "decision-tree", models[1].Entry.ID)
}
