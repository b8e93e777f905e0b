package pricing

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"house-price-workers/internal/common/logger"
	"house-price-workers/internal/common/metrics"
	"house-price-workers/pkg/registry"
)

// LoadedModel pairs a manifest entry with its evaluator.
type LoadedModel struct {
	Entry registry.ModelEntry
	Model Model
}

// Source supplies the expected schema and the models to run.
type Source interface {
	Schema() (ExpectedSchema, error)
	Models() ([]LoadedModel, error)
}

// Store loads the manifest, model artifacts and column schema on first use
// and serves the same read-only handles afterwards. Failed loads are not
// remembered, so a request after the files appear succeeds without a restart.
type Store struct {
	manifestPath string
	schemaPath   string
	logger       logger.Logger

	mu       sync.Mutex
	manifest *registry.ModelManifest
	models   []LoadedModel
	schema   ExpectedSchema
}

type StoreOptions struct {
	ManifestPath string
	SchemaPath   string // optional column manifest; overrides the manifest's columns
	Logger       logger.Logger
}

func NewStore(opts StoreOptions) *Store {
	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Store{
		manifestPath: opts.ManifestPath,
		schemaPath:   opts.SchemaPath,
		logger:       log.WithFields(map[string]interface{}{"component": "model-store"}),
	}
}

// Models returns every model of the manifest, in manifest order. The slice is
// the caller's own; the evaluators in it are shared and read-only.
func (s *Store) Models() ([]LoadedModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	models, err := s.modelsLocked()
	if err != nil {
		return nil, err
	}
	return append([]LoadedModel(nil), models...), nil
}

func (s *Store) modelsLocked() ([]LoadedModel, error) {
	if s.models != nil {
		return s.models, nil
	}

	manifest, err := s.loadManifestLocked()
	if err != nil {
		return nil, err
	}

	models := make([]LoadedModel, 0, len(manifest.Models))
	for _, entry := range manifest.Models {
		path := registry.ResolvePath(s.manifestPath, entry)
		m, err := LoadArtifact(path)
		if err != nil {
			s.reportLoadFailure("model", err, map[string]interface{}{"modelId": entry.ID, "path": path})
			return nil, err
		}
		if entry.Kind != "" && entry.Kind != m.Kind() {
			err := fmt.Errorf("%w: manifest says %s is %q but artifact is %q", ErrArtifactInvalid, entry.ID, entry.Kind, m.Kind())
			s.reportLoadFailure("model", err, map[string]interface{}{"modelId": entry.ID, "path": path})
			return nil, err
		}
		models = append(models, LoadedModel{Entry: entry, Model: m})
	}

	s.models = models
	s.logger.Info("model artifacts loaded", map[string]interface{}{"count": len(models)})
	return s.models, nil
}

// Schema returns the expected input columns. Sources, in order: the column
// manifest file, the manifest's columns list, the first model's feature names.
// Like Models, the returned slice is a copy.
func (s *Store) Schema() (ExpectedSchema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	schema, err := s.schemaLocked()
	if err != nil {
		return nil, err
	}
	return append(ExpectedSchema(nil), schema...), nil
}

func (s *Store) schemaLocked() (ExpectedSchema, error) {
	if s.schema != nil {
		return s.schema, nil
	}

	if s.schemaPath != "" {
		schema, err := LoadSchema(s.schemaPath)
		if err != nil {
			s.reportLoadFailure("schema", err, map[string]interface{}{"path": s.schemaPath})
			return nil, err
		}
		s.schema = schema
		return s.schema, nil
	}

	manifest, err := s.loadManifestLocked()
	if err != nil {
		return nil, err
	}
	if len(manifest.Columns) > 0 {
		schema := ExpectedSchema(manifest.Columns)
		if err := schema.Validate(); err != nil {
			s.reportLoadFailure("schema", err, map[string]interface{}{"path": s.manifestPath})
			return nil, err
		}
		s.schema = schema
		return s.schema, nil
	}
	if len(manifest.Models) == 0 {
		return nil, fmt.Errorf("%w: manifest %s lists no models", ErrSchemaUnavailable, s.manifestPath)
	}

	first := manifest.Models[0]
	m, err := LoadArtifact(registry.ResolvePath(s.manifestPath, first))
	if err != nil {
		s.reportLoadFailure("schema", err, map[string]interface{}{"modelId": first.ID})
		return nil, err
	}
	s.schema = ExpectedSchema(m.FeatureNames())
	return s.schema, nil
}

func (s *Store) loadManifestLocked() (*registry.ModelManifest, error) {
	if s.manifest != nil {
		return s.manifest, nil
	}

	manifest, err := registry.LoadManifest(s.manifestPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w: manifest %s", ErrArtifactMissing, s.manifestPath)
		} else {
			err = fmt.Errorf("%w: %v", ErrArtifactInvalid, err)
		}
		s.reportLoadFailure("manifest", err, map[string]interface{}{"path": s.manifestPath})
		return nil, err
	}
	if err := manifest.Validate(); err != nil {
		err = fmt.Errorf("%w: manifest %s: %v", ErrArtifactInvalid, s.manifestPath, err)
		s.reportLoadFailure("manifest", err, map[string]interface{}{"path": s.manifestPath})
		return nil, err
	}

	s.manifest = manifest
	return s.manifest, nil
}

// reportLoadFailure logs every failed load; a missing artifact keeps warning
// on each request until it is supplied.
func (s *Store) reportLoadFailure(what string, err error, fields map[string]interface{}) {
	reason := "invalid"
	if errors.Is(err, ErrArtifactMissing) {
		reason = "missing"
	}
	metrics.ArtifactLoadFailures.WithLabelValues(reason).Inc()

	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["artifact"] = what
	fields["error"] = err.Error()
	if reason == "missing" {
		s.logger.Warn("model artifact missing, valuations disabled until it is supplied", fields)
		return
	}
	s.logger.Error("model artifact could not be loaded", fields)
}

// Warm loads everything up front. Failures are logged and returned but
// the caller is expected to keep running.
func (s *Store) Warm(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.Schema(); err != nil {
		return err
	}
	_, err := s.Models()
	return err
}

// Ready reports whether the schema and all models are loaded.
func (s *Store) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.models != nil && s.schema != nil
}

// Manifest returns the loaded manifest, loading it if needed.
func (s *Store) Manifest() (*registry.ModelManifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadManifestLocked()
}

// Reset drops all handles; the next call reloads from disk.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifest = nil
	s.models = nil
	s.schema = nil
}
