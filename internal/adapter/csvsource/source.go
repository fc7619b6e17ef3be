package csvsource

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/couchcryptid/air-quality-forecast/internal/domain"
)

// Load parses the CSV file at path.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csvsource: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Source serves series from a CSV file and can swap in a fresh snapshot with
// Reload. Readers never block on a reload.
type Source struct {
	path    string
	logger  *slog.Logger
	current atomic.Pointer[Dataset]
}

// Open loads path and returns a Source serving it.
func Open(path string, logger *slog.Logger) (*Source, error) {
	s := &Source{path: path, logger: logger}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the file. On failure the previous snapshot keeps serving.
func (s *Source) Reload() error {
	ds, err := Load(s.path)
	if err != nil {
		return err
	}
	st := ds.Stats()
	if st.SkippedRows > 0 || st.InvalidCells > 0 {
		s.logger.Warn("dataset contains unusable data",
			"path", s.path,
			"skipped_rows", st.SkippedRows,
			"invalid_cells", st.InvalidCells,
		)
	}
	s.current.Store(ds)
	s.logger.Info("dataset loaded",
		"path", s.path,
		"rows", st.Rows,
		"cities", len(ds.ordered),
		"columns", len(ds.columns),
	)
	return nil
}

// Dataset returns the snapshot currently served.
func (s *Source) Dataset() *Dataset {
	return s.current.Load()
}

func (s *Source) Series(_ context.Context, loc domain.Location, key string) (domain.Series, error) {
	return s.Dataset().Series(loc, key)
}

func (s *Source) Latest(_ context.Context, key string) ([]domain.Reading, error) {
	return s.Dataset().Latest(key)
}

func (s *Source) Columns(_ context.Context) ([]string, error) {
	return s.Dataset().Columns(), nil
}

func (s *Source) Cities(_ context.Context) ([]domain.Location, error) {
	return s.Dataset().Cities(), nil
}
