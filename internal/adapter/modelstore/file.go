// Package modelstore provides domain.ModelStore implementations: a directory
// of JSON artifacts plus caching and circuit-breaking decorators.
package modelstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/couchcryptid/air-quality-forecast/internal/domain"
	"github.com/couchcryptid/air-quality-forecast/internal/model"
	"github.com/couchcryptid/air-quality-forecast/internal/observability"
)

const artifactExt = ".json"

var errInvalidKey = errors.New("invalid model key")

// FileStore reads model artifacts from <dir>/<key>.json.
type FileStore struct {
	dir     string
	metrics *observability.Metrics
}

// NewFileStore creates a store rooted at dir. The directory does not need to exist.
func NewFileStore(dir string, metrics *observability.Metrics) *FileStore {
	return &FileStore{dir: dir, metrics: metrics}
}

func (s *FileStore) path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("%w: %q", errInvalidKey, key)
	}
	return filepath.Join(s.dir, key+artifactExt), nil
}

// Exists reports whether a regular artifact file exists for key.
func (s *FileStore) Exists(key string) bool {
	p, err := s.path(key)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Load decodes the artifact for key. Every failure is a *domain.ModelLoadError.
func (s *FileStore) Load(key string) (domain.Model, error) {
	m, err := s.load(key)
	if err != nil {
		s.metrics.ModelLoads.WithLabelValues("error").Inc()
		return nil, &domain.ModelLoadError{Key: key, Err: err}
	}
	s.metrics.ModelLoads.WithLabelValues("success").Inc()
	return m, nil
}

func (s *FileStore) load(key string) (*model.LinearModel, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := model.Decode(f)
	if err != nil {
		return nil, err
	}
	if m.Key != key {
		return nil, fmt.Errorf("artifact %s holds model for %q", filepath.Base(p), m.Key)
	}
	return m, nil
}

// Save writes m atomically, replacing any existing artifact for its key.
func (s *FileStore) Save(m *model.LinearModel) error {
	p, err := s.path(m.Key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+m.Key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if err := m.Save(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("install artifact: %w", err)
	}
	return nil
}

// Keys lists the keys with an artifact in the directory, sorted.
func (s *FileStore) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read model dir: %w", err)
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, artifactExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, artifactExt))
	}
	sort.Strings(keys)
	return keys, nil
}
