package pricing

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"house-price-workers/pkg/registry"

	"github.com/stretchr/testify/require"
)

func canonicalSchema() ExpectedSchema {
	return ExpectedSchema{"sqft", "bed", "bath", "n_citi", "citi", "street", "mainroad", "basement"}
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }
func togglePtr(v bool) *Toggle    { t := Toggle(v); return &t }

// workedExample is the house used throughout the tests; n_citi is not supplied.
func workedExample() HouseFeatures {
	return HouseFeatures{
		Sqft:     floatPtr(1500),
		Bed:      intPtr(3),
		Bath:     intPtr(2),
		Citi:     strPtr("Imperial, CA"),
		Street:   strPtr("2304 Clark Road"),
		Mainroad: togglePtr(true),
		Basement: togglePtr(false),
	}
}

func smallLinear() Artifact {
	return Artifact{
		Name:         "small-linear",
		Kind:         registry.KindLinear,
		FeatureNames: []string{"sqft", "citi"},
		Encoders: map[string]OneHotEncoder{
			"citi": {Categories: []string{"A", "B"}},
		},
		Linear: &LinearParams{
			Intercept:    1000,
			Coefficients: map[string]float64{"sqft": 100, "citi=B": 5000},
		},
	}
}

func smallTree() Artifact {
	return Artifact{
		Name:         "small-tree",
		Kind:         registry.KindTree,
		FeatureNames: []string{"sqft", "citi"},
		Encoders: map[string]OneHotEncoder{
			"citi": {Categories: []string{"A", "B"}, HandleUnknown: HandleUnknownIgnore},
		},
		Tree: &TreeParams{Nodes: []TreeNode{
			{Feature: "sqft", Threshold: 1000, Left: 1, Right: 2},
			{Leaf: true, Value: 100000},
			{Feature: "citi=B", Threshold: 0.5, Left: 3, Right: 4},
			{Leaf: true, Value: 200000},
			{Leaf: true, Value: 300000},
		}},
	}
}

func writeJSON(t *testing.T, dir, name string, v interface{}) string {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// writeModelDir lays out a manifest with the small linear and tree models.
func writeModelDir(t *testing.T, columns []string) string {
	t.Helper()
	dir := t.TempDir()
	writeJSON(t, dir, "linear.json", smallLinear())
	writeJSON(t, dir, "tree.json", smallTree())
	return writeJSON(t, dir, "manifest.json", registry.ModelManifest{
		Version: "1",
		Columns: columns,
		Models: []registry.ModelEntry{
			{ID: "small-linear", DisplayName: "Linear", Kind: registry.KindLinear, Path: "linear.json", Note: "linear note"},
			{ID: "small-tree", Kind: registry.KindTree, Path: "tree.json"},
		},
	})
}

const sampleManifest = "../../configs/models/manifest.json"

// stubModel counts calls and delegates to predict.
type stubModel struct {
	name     string
	features []string
	calls    atomic.Int32
	predict  func(Frame) ([]float64, error)
}

func (m *stubModel) Name() string           { return m.name }
func (m *stubModel) FeatureNames() []string { return m.features }
func (m *stubModel) Predict(f Frame) ([]float64, error) {
	m.calls.Add(1)
	return m.predict(f)
}

func constantModel(name string, price float64) *stubModel {
	return &stubModel{name: name, predict: func(Frame) ([]float64, error) { return []float64{price}, nil }}
}

type stubSource struct {
	schema    ExpectedSchema
	schemaErr error
	models    []LoadedModel
	modelsErr error
}

func (s *stubSource) Schema() (ExpectedSchema, error) { return s.schema, s.schemaErr }
func (s *stubSource) Models() ([]LoadedModel, error)  { return s.models, s.modelsErr }
