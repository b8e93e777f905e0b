package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"sort"
	"strings"

	"house-price-workers/pkg/registry"
)

// Unknown-category policies of a one-hot encoder.
const (
	HandleUnknownError  = "error"
	HandleUnknownIgnore = "ignore"
)

// Artifact is the on-disk JSON form of a trained regression model.
// Categorical input columns are one-hot encoded to "column=category" before evaluation.
type Artifact struct {
	Name         string                   `json:"name"`
	Kind         string                   `json:"kind"`
	Version      string                   `json:"version,omitempty"`
	FeatureNames []string                 `json:"feature_names"`
	Encoders     map[string]OneHotEncoder `json:"encoders,omitempty"`
	Linear       *LinearParams            `json:"linear,omitempty"`
	Tree         *TreeParams              `json:"tree,omitempty"`
}

type OneHotEncoder struct {
	Categories    []string `json:"categories"`
	HandleUnknown string   `json:"handle_unknown,omitempty"`
}

// LinearParams: price = intercept + sum(coefficient * encoded column).
type LinearParams struct {
	Intercept    float64            `json:"intercept"`
	Coefficients map[string]float64 `json:"coefficients"`
}

// TreeParams is a regression tree stored as a flat node array; node 0 is the root.
type TreeParams struct {
	Nodes []TreeNode `json:"nodes"`
}

// TreeNode goes left when x[feature] <= threshold.
type TreeNode struct {
	Feature   string  `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"value,omitempty"`
}

// Model is a loaded, immutable predictor.
type Model interface {
	Name() string
	FeatureNames() []string
	Predict(frame Frame) ([]float64, error)
}

// Frame is a small table handed to Model.Predict.
type Frame struct {
	Columns []string
	Rows    [][]Value
}

// NewFrame wraps an aligned record as a single-row frame.
func NewFrame(rec AlignedRecord) Frame {
	row := make([]Value, len(rec.Values))
	copy(row, rec.Values)
	cols := make([]string, len(rec.Columns))
	copy(cols, rec.Columns)
	return Frame{Columns: cols, Rows: [][]Value{row}}
}

// ArtifactModel evaluates a decoded Artifact.
type ArtifactModel struct {
	artifact Artifact
	encoded  map[string]bool // every column name the evaluator may reference
	coefs    []string        // sorted so sums are reproducible
}

// LoadArtifact reads and validates a model file.
func LoadArtifact(path string) (*ArtifactModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: model file %s", ErrArtifactMissing, path)
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrArtifactInvalid, path, err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrArtifactInvalid, path, err)
	}

	m, err := NewArtifactModel(a)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// NewArtifactModel validates an artifact and prepares it for evaluation.
func NewArtifactModel(a Artifact) (*ArtifactModel, error) {
	if len(a.FeatureNames) == 0 {
		return nil, fmt.Errorf("%w: model %q has no feature_names", ErrArtifactInvalid, a.Name)
	}

	encoded := make(map[string]bool)
	seen := make(map[string]bool, len(a.FeatureNames))
	for _, f := range a.FeatureNames {
		if seen[f] {
			return nil, fmt.Errorf("%w: model %q lists feature %q twice", ErrArtifactInvalid, a.Name, f)
		}
		seen[f] = true

		enc, categorical := a.Encoders[f]
		if !categorical {
			encoded[f] = true
			continue
		}
		switch enc.HandleUnknown {
		case "", HandleUnknownError, HandleUnknownIgnore:
		default:
			return nil, fmt.Errorf("%w: encoder %q has unknown handle_unknown %q", ErrArtifactInvalid, f, enc.HandleUnknown)
		}
		for _, c := range enc.Categories {
			encoded[oneHotColumn(f, c)] = true
		}
	}
	for name := range a.Encoders {
		if !seen[name] {
			return nil, fmt.Errorf("%w: encoder for unknown feature %q", ErrArtifactInvalid, name)
		}
	}

	switch a.Kind {
	case registry.KindLinear:
		if a.Linear == nil {
			return nil, fmt.Errorf("%w: linear model %q has no parameters", ErrArtifactInvalid, a.Name)
		}
		for col := range a.Linear.Coefficients {
			if !encoded[col] {
				return nil, fmt.Errorf("%w: coefficient for unknown column %q", ErrArtifactInvalid, col)
			}
		}
	case registry.KindTree:
		if a.Tree == nil {
			return nil, fmt.Errorf("%w: tree model %q has no nodes", ErrArtifactInvalid, a.Name)
		}
		if err := validateTree(a.Tree.Nodes, encoded); err != nil {
			return nil, fmt.Errorf("%w: tree model %q: %v", ErrArtifactInvalid, a.Name, err)
		}
	default:
		return nil, fmt.Errorf("%w: model %q has unsupported kind %q", ErrArtifactInvalid, a.Name, a.Kind)
	}

	m := &ArtifactModel{artifact: a, encoded: encoded}
	if a.Linear != nil {
		for col := range a.Linear.Coefficients {
			m.coefs = append(m.coefs, col)
		}
		sort.Strings(m.coefs)
	}
	return m, nil
}

// validateTree requires children to sit after their parent, which rules out cycles.
func validateTree(nodes []TreeNode, encoded map[string]bool) error {
	if len(nodes) == 0 {
		return fmt.Errorf("no nodes")
	}
	for i, n := range nodes {
		if n.Leaf {
			continue
		}
		if !encoded[n.Feature] {
			return fmt.Errorf("node %d splits on unknown column %q", i, n.Feature)
		}
		if n.Left <= i || n.Left >= len(nodes) || n.Right <= i || n.Right >= len(nodes) {
			return fmt.Errorf("node %d has invalid children %d/%d", i, n.Left, n.Right)
		}
	}
	return nil
}

func oneHotColumn(feature, category string) string {
	return feature + "=" + category
}

func (m *ArtifactModel) Name() string { return m.artifact.Name }

func (m *ArtifactModel) Kind() string { return m.artifact.Kind }

func (m *ArtifactModel) Version() string { return m.artifact.Version }

func (m *ArtifactModel) FeatureNames() []string {
	out := make([]string, len(m.artifact.FeatureNames))
	copy(out, m.artifact.FeatureNames)
	return out
}

// Predict evaluates every row of the frame. The frame must carry exactly the
// model's feature names; unseen categories and text in numeric columns are rejected.
func (m *ArtifactModel) Predict(frame Frame) ([]float64, error) {
	index, err := m.columnIndex(frame.Columns)
	if err != nil {
		return nil, err
	}

	out := make([]float64, 0, len(frame.Rows))
	for r, row := range frame.Rows {
		if len(row) != len(frame.Columns) {
			return nil, fmt.Errorf("%w: row %d has %d values for %d columns", ErrInference, r, len(row), len(frame.Columns))
		}
		x, err := m.vectorize(row, index)
		if err != nil {
			return nil, err
		}

		var y float64
		if m.artifact.Kind == registry.KindLinear {
			y = m.evalLinear(x)
		} else {
			y = m.evalTree(x)
		}
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return nil, fmt.Errorf("%w: model %q produced a non-finite prediction", ErrInference, m.artifact.Name)
		}
		out = append(out, y)
	}
	return out, nil
}

func (m *ArtifactModel) columnIndex(columns []string) (map[string]int, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}

	var missing, unexpected []string
	expected := make(map[string]bool, len(m.artifact.FeatureNames))
	for _, f := range m.artifact.FeatureNames {
		expected[f] = true
		if _, ok := index[f]; !ok {
			missing = append(missing, f)
		}
	}
	for _, c := range columns {
		if !expected[c] {
			unexpected = append(unexpected, c)
		}
	}
	if len(missing) > 0 || len(unexpected) > 0 {
		return nil, fmt.Errorf("%w: feature names do not match model %q: missing [%s], unexpected [%s]",
			ErrInference, m.artifact.Name, strings.Join(missing, ", "), strings.Join(unexpected, ", "))
	}
	return index, nil
}

func (m *ArtifactModel) vectorize(row []Value, index map[string]int) (map[string]float64, error) {
	x := make(map[string]float64, len(m.encoded))
	for _, f := range m.artifact.FeatureNames {
		v := row[index[f]]

		enc, categorical := m.artifact.Encoders[f]
		if !categorical {
			if !v.IsNumber() {
				return nil, fmt.Errorf("%w: column %q expects a number, got %q", ErrInference, f, v.Str)
			}
			x[f] = v.Num
			continue
		}

		category := v.String()
		found := false
		for _, c := range enc.Categories {
			if c == category {
				x[oneHotColumn(f, c)] = 1
				found = true
			} else {
				x[oneHotColumn(f, c)] = 0
			}
		}
		if !found && enc.HandleUnknown != HandleUnknownIgnore {
			return nil, fmt.Errorf("%w: found unknown category %q in column %q during transform", ErrInference, category, f)
		}
	}
	return x, nil
}

func (m *ArtifactModel) evalLinear(x map[string]float64) float64 {
	y := m.artifact.Linear.Intercept
	for _, col := range m.coefs {
		y += m.artifact.Linear.Coefficients[col] * x[col]
	}
	return y
}

func (m *ArtifactModel) evalTree(x map[string]float64) float64 {
	nodes := m.artifact.Tree.Nodes
	i := 0
	for !nodes[i].Leaf {
		if x[nodes[i].Feature] <= nodes[i].Threshold {
			i = nodes[i].Left
		} else {
			i = nodes[i].Right
		}
	}
	return nodes[i].Value
}
