package pricing

import (
	"os"
	"path/filepath"
	"testing"

	"house-price-workers/pkg/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameOf(t *testing.T, rec FeatureRecord, s ExpectedSchema) Frame {
	t.Helper()
	aligned, err := Align(rec, s)
	require.NoError(t, err)
	return NewFrame(aligned)
}

func TestLinearPredict(t *testing.T) {
	m, err := NewArtifactModel(smallLinear())
	require.NoError(t, err)

	schema := ExpectedSchema{"sqft", "citi"}
	got, err := m.Predict(frameOf(t, FeatureRecord{"sqft": Number(10), "citi": Text("B")}, schema))
	require.NoError(t, err)
	assert.Equal(t, []float64{1000 + 100*10 + 5000}, got)

	got, err = m.Predict(frameOf(t, FeatureRecord{"sqft": Number(10), "citi": Text("A")}, schema))
	require.NoError(t, err)
	assert.Equal(t, []float64{2000}, got)
}

func TestLinearRejectsUnknownCategory(t *testing.T) {
	m, err := NewArtifactModel(smallLinear())
	require.NoError(t, err)

	_, err = m.Predict(frameOf(t, FeatureRecord{"sqft": Number(10), "citi": Text("Atlantis")}, ExpectedSchema{"sqft", "citi"}))
	require.ErrorIs(t, err, ErrInference)
	assert.Contains(t, err.Error(), `unknown category "Atlantis" in column "citi"`)
}

func TestTreePredict(t *testing.T) {
	m, err := NewArtifactModel(smallTree())
	require.NoError(t, err)
	schema := ExpectedSchema{"sqft", "citi"}

	tests := []struct {
		rec  FeatureRecord
		want float64
	}{
		{FeatureRecord{"sqft": Number(1000), "citi": Text("B")}, 100000},
		{FeatureRecord{"sqft": Number(1001), "citi": Text("A")}, 200000},
		{FeatureRecord{"sqft": Number(1001), "citi": Text("B")}, 300000},
		{FeatureRecord{"sqft": Number(5000), "citi": Text("Atlantis")}, 200000},
	}
	for _, tt := range tests {
		got, err := m.Predict(frameOf(t, tt.rec, schema))
		require.NoError(t, err)
		assert.Equal(t, []float64{tt.want}, got)
	}
}

func TestPredictRejectsTextInNumericColumn(t *testing.T) {
	m, err := NewArtifactModel(smallLinear())
	require.NoError(t, err)

	_, err = m.Predict(frameOf(t, FeatureRecord{"sqft": Text("large"), "citi": Text("A")}, ExpectedSchema{"sqft", "citi"}))
	require.ErrorIs(t, err, ErrInference)
	assert.Contains(t, err.Error(), `column "sqft" expects a number`)
}

func TestPredictRejectsFeatureNameMismatch(t *testing.T) {
	m, err := NewArtifactModel(smallLinear())
	require.NoError(t, err)

	_, err = m.Predict(frameOf(t, FeatureRecord{"sqft": Number(1)}, ExpectedSchema{"sqft", "City"}))
	require.ErrorIs(t, err, ErrInference)
	assert.Contains(t, err.Error(), "missing [citi]")
	assert.Contains(t, err.Error(), "unexpected [City]")
}

func TestPredictRejectsRaggedRow(t *testing.T) {
	m, err := NewArtifactModel(smallLinear())
	require.NoError(t, err)

	_, err = m.Predict(Frame{Columns: []string{"sqft", "citi"}, Rows: [][]Value{{Number(1)}}})
	assert.ErrorIs(t, err, ErrInference)
}

func TestNewArtifactModelValidation(t *testing.T) {
	tests := map[string]func(a *Artifact){
		"no features":       func(a *Artifact) { a.FeatureNames = nil },
		"duplicate feature": func(a *Artifact) { a.FeatureNames = []string{"sqft", "sqft", "citi"} },
		"bad kind":          func(a *Artifact) { a.Kind = "forest" },
		"no params":         func(a *Artifact) { a.Linear = nil },
		"stray coefficient": func(a *Artifact) { a.Linear.Coefficients["citi=C"] = 1 },
		"stray encoder":     func(a *Artifact) { a.Encoders["street"] = OneHotEncoder{} },
		"bad policy":        func(a *Artifact) { a.Encoders["citi"] = OneHotEncoder{HandleUnknown: "drop"} },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			a := smallLinear()
			mutate(&a)
			_, err := NewArtifactModel(a)
			assert.ErrorIs(t, err, ErrArtifactInvalid)
		})
	}
}

func TestNewArtifactModelTreeValidation(t *testing.T) {
	a := smallTree()
	a.Tree.Nodes[0].Left = 0
	_, err := NewArtifactModel(a)
	assert.ErrorIs(t, err, ErrArtifactInvalid)

	a = smallTree()
	a.Tree.Nodes[2].Right = 9
	_, err = NewArtifactModel(a)
	assert.ErrorIs(t, err, ErrArtifactInvalid)

	a = smallTree()
	a.Tree.Nodes[2].Feature = "citi=C"
	_, err = NewArtifactModel(a)
	assert.ErrorIs(t, err, ErrArtifactInvalid)

	a = smallTree()
	a.Tree.Nodes = nil
	_, err = NewArtifactModel(a)
	assert.ErrorIs(t, err, ErrArtifactInvalid)
}

func TestLoadArtifact(t *testing.T) {
	dir := t.TempDir()

	m, err := LoadArtifact(writeJSON(t, dir, "tree.json", smallTree()))
	require.NoError(t, err)
	assert.Equal(t, "small-tree", m.Name())
	assert.Equal(t, registry.KindTree, m.Kind())
	assert.Equal(t, []string{"sqft", "citi"}, m.FeatureNames())

	_, err = LoadArtifact(filepath.Join(dir, "absent.json"))
	assert.ErrorIs(t, err, ErrArtifactMissing)

	garbled := filepath.Join(dir, "garbled.json")
	require.NoError(t, os.WriteFile(garbled, []byte(`{"kind":`), 0o644))
	_, err = LoadArtifact(garbled)
	assert.ErrorIs(t, err, ErrArtifactInvalid)
}

func TestFeatureNamesReturnsCopy(t *testing.T) {
	m, err := NewArtifactModel(smallLinear())
	require.NoError(t, err)

	names := m.FeatureNames()
	names[0] = "changed"
	assert.Equal(t, "sqft", m.FeatureNames()[0])
}

func TestBundledModels(t *testing.T) {
	dir := filepath.Dir(sampleManifest)
	rec := BuildRecord(workedExample())

	linear, err := LoadArtifact(filepath.Join(dir, "linear.json"))
	require.NoError(t, err)
	got, err := linear.Predict(frameOf(t, rec, canonicalSchema()))
	require.NoError(t, err)
	assert.InDelta(t, 379750, got[0], 1e-6)

	tree, err := LoadArtifact(filepath.Join(dir, "tree.json"))
	require.NoError(t, err)
	got, err = tree.Predict(frameOf(t, rec, canonicalSchema()))
	require.NoError(t, err)
	assert.Equal(t, 356500.0, got[0])
}
