// Package filestore persists phase artifacts as JSON files in the work
// directory.  Artifacts are the durable contract between pipeline phases:
// every phase reads its input from and writes its output into the store,
// so a batch can restart from any phase boundary.
package filestore

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FoodSafety-MS-KB/pkg/errors"
)

// Store reads and writes JSON artifacts under a single directory.
type Store struct {
	dir    string
	logger logging.Logger
}

// NewStore creates the work directory if needed and returns a Store.
func NewStore(dir string, logger logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeArtifactWrite, "creating work directory").
			WithDetail("dir=" + dir)
	}
	return &Store{dir: dir, logger: logger.Named("filestore")}, nil
}

// Path returns the absolute location of a named artifact.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Exists reports whether a named artifact has been written.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// SaveJSON writes an artifact atomically: a temp file in the same
// directory, then rename.  A crashed run never leaves a half-written
// artifact behind under the final name.
func (s *Store) SaveJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "encoding artifact").
			WithDetail("name=" + name)
	}

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeArtifactWrite, "creating temp artifact")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.ErrCodeArtifactWrite, "writing artifact").
			WithDetail("name=" + name)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeArtifactWrite, "closing temp artifact")
	}
	if err := os.Rename(tmp.Name(), s.Path(name)); err != nil {
		return errors.Wrap(err, errors.ErrCodeArtifactWrite, "publishing artifact").
			WithDetail("name=" + name)
	}

	s.logger.Debug("artifact written",
		logging.String("name", name), logging.Int("bytes", len(data)))
	return nil
}

// LoadJSON reads a named artifact into dest.  Returns ErrCodeNotFound
// when the artifact has never been written.
func (s *Store) LoadJSON(name string, dest interface{}) error {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return errors.New(errors.ErrCodeNotFound, "artifact not found").
				WithDetail("name=" + name)
		}
		return errors.Wrap(err, errors.ErrCodeArtifactRead, "reading artifact").
			WithDetail("name=" + name)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return errors.Wrap(err, errors.ErrCodeArtifactRead, "decoding artifact").
			WithDetail("name=" + name)
	}
	return nil
}

// ReadRaw returns the raw bytes of a named artifact.
func (s *Store) ReadRaw(name string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeNotFound, "artifact not found").
				WithDetail("name=" + name)
		}
		return nil, errors.Wrap(err, errors.ErrCodeArtifactRead, "reading artifact").
			WithDetail("name=" + name)
	}
	return data, nil
}
