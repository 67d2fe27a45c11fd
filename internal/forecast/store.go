// internal/forecast/store.go
package forecast

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apparelworks/demandplan/internal/domain"
	"github.com/apparelworks/demandplan/internal/storage"
)

func init() {
	// Concrete regressor types travel through the Regressor interface in gob.
	gob.Register(&RidgeRegressor{})
	gob.Register(&LassoRegressor{})
	gob.Register(&RandomForestRegressor{})
	gob.Register(&GradientBoostRegressor{})
}

// ModelStore persists trained models keyed by (entity_type, entity_id).
// Saving overwrites any previous model for the same key: last writer wins.
type ModelStore interface {
	Save(ctx context.Context, m *TrainedModel) error
	Load(ctx context.Context, entityType domain.EntityType, entityID string) (*TrainedModel, error)
	List(ctx context.Context, entityType domain.EntityType) ([]domain.TrainedModelMeta, error)
	Delete(ctx context.Context, entityType domain.EntityType, entityID string) error
}

type storedModel struct {
	Meta  domain.TrainedModelMeta
	Model Regressor
}

func encodeModel(m *TrainedModel) ([]byte, []byte, error) {
	metaBytes, err := json.MarshalIndent(m.Meta, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encode model metadata: %w", err)
	}
	var blob bytes.Buffer
	if err := gob.NewEncoder(&blob).Encode(storedModel{Meta: m.Meta, Model: m.Model}); err != nil {
		return nil, nil, fmt.Errorf("encode model blob: %w", err)
	}
	return metaBytes, blob.Bytes(), nil
}

func decodeModel(blob []byte) (*TrainedModel, error) {
	var sm storedModel
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&sm); err != nil {
		return nil, fmt.Errorf("decode model blob: %w", err)
	}
	return &TrainedModel{Meta: sm.Meta, Model: sm.Model}, nil
}

func modelKey(entityType domain.EntityType, entityID string) string {
	sanitized := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ' ' {
			return '_'
		}
		return r
	}, entityID)
	return filepath.Join(string(entityType), sanitized)
}

// FileModelStore keeps models under a base directory: one <key>.json with the
// metadata next to a <key>.bin with the gob-encoded model.
type FileModelStore struct {
	baseDir string
}

func NewFileModelStore(baseDir string) (*FileModelStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create model store dir: %w", err)
	}
	return &FileModelStore{baseDir: baseDir}, nil
}

func (s *FileModelStore) paths(entityType domain.EntityType, entityID string) (string, string) {
	base := filepath.Join(s.baseDir, modelKey(entityType, entityID))
	return base + ".json", base + ".bin"
}

func (s *FileModelStore) Save(_ context.Context, m *TrainedModel) error {
	metaBytes, blob, err := encodeModel(m)
	if err != nil {
		return err
	}
	metaPath, blobPath := s.paths(m.Meta.EntityType, m.Meta.EntityID)
	if err := os.MkdirAll(filepath.Dir(metaPath), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	if err := os.WriteFile(blobPath, blob, 0o644); err != nil {
		return fmt.Errorf("write model blob: %w", err)
	}
	if err := os.WriteFile(metaPath, metaBytes, 0o644); err != nil {
		return fmt.Errorf("write model metadata: %w", err)
	}
	return nil
}

func (s *FileModelStore) Load(_ context.Context, entityType domain.EntityType, entityID string) (*TrainedModel, error) {
	_, blobPath := s.paths(entityType, entityID)
	blob, err := os.ReadFile(blobPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: model for %s %s", domain.ErrNotFound, entityType, entityID)
		}
		return nil, fmt.Errorf("read model blob: %w", err)
	}
	return decodeModel(blob)
}

func (s *FileModelStore) List(_ context.Context, entityType domain.EntityType) ([]domain.TrainedModelMeta, error) {
	dir := filepath.Join(s.baseDir, string(entityType))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list model store: %w", err)
	}

	metas := make([]domain.TrainedModelMeta, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read model metadata: %w", err)
		}
		var meta domain.TrainedModelMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("parse model metadata %s: %w", entry.Name(), err)
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

func (s *FileModelStore) Delete(_ context.Context, entityType domain.EntityType, entityID string) error {
	metaPath, blobPath := s.paths(entityType, entityID)
	for _, p := range []string{blobPath, metaPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("delete model file: %w", err)
		}
	}
	return nil
}

var _ ModelStore = (*FileModelStore)(nil)

// ObjectModelStore keeps models in S3-compatible object storage under a key
// prefix, mirroring the file layout of FileModelStore.
type ObjectModelStore struct {
	backend storage.ObjectStorage
	prefix  string
}

func NewObjectModelStore(backend storage.ObjectStorage, prefix string) *ObjectModelStore {
	return &ObjectModelStore{backend: backend, prefix: strings.TrimSuffix(prefix, "/")}
}

func (s *ObjectModelStore) keys(entityType domain.EntityType, entityID string) (string, string) {
	base := s.prefix + "/" + modelKey(entityType, entityID)
	return base + ".json", base + ".bin"
}

func (s *ObjectModelStore) Save(ctx context.Context, m *TrainedModel) error {
	metaBytes, blob, err := encodeModel(m)
	if err != nil {
		return err
	}
	metaKey, blobKey := s.keys(m.Meta.EntityType, m.Meta.EntityID)
	if err := s.backend.PutObject(ctx, blobKey, blob); err != nil {
		return err
	}
	return s.backend.PutObject(ctx, metaKey, metaBytes)
}

func (s *ObjectModelStore) Load(ctx context.Context, entityType domain.EntityType, entityID string) (*TrainedModel, error) {
	_, blobKey := s.keys(entityType, entityID)
	blob, err := s.backend.GetObject(ctx, blobKey)
	if err != nil {
		return nil, fmt.Errorf("%w: model for %s %s", domain.ErrNotFound, entityType, entityID)
	}
	return decodeModel(blob)
}

func (s *ObjectModelStore) List(ctx context.Context, entityType domain.EntityType) ([]domain.TrainedModelMeta, error) {
	prefix := s.prefix + "/" + string(entityType) + "/"
	objects, err := s.backend.ListObjects(ctx, prefix)
	if err != nil {
		return nil, err
	}

	metas := make([]domain.TrainedModelMeta, 0, len(objects))
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Key, ".json") {
			continue
		}
		raw, err := s.backend.GetObject(ctx, obj.Key)
		if err != nil {
			return nil, err
		}
		var meta domain.TrainedModelMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("parse model metadata %s: %w", obj.Key, err)
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

func (s *ObjectModelStore) Delete(ctx context.Context, entityType domain.EntityType, entityID string) error {
	metaKey, blobKey := s.keys(entityType, entityID)
	if err := s.backend.DeleteObject(ctx, blobKey); err != nil {
		return err
	}
	return s.backend.DeleteObject(ctx, metaKey)
}

var _ ModelStore = (*ObjectModelStore)(nil)
