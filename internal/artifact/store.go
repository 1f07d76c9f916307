// Package artifact stages uniquely named temp files for the audio pipeline.
// Every file created here must be removed before the pipeline run that
// created it reports its outcome.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// File is a staged on-disk artifact with a guaranteed cleanup action.
type File struct {
	Name string
	Path string

	once sync.Once
}

// Remove deletes the underlying file. It is safe to call more than once
// and from deferred cleanup paths.
func (f *File) Remove() {
	f.once.Do(func() {
		_ = os.Remove(f.Path)
	})
}

// Store hands out uniquely named files under a scoped directory.
type Store struct {
	dir string
}

// NewStore creates the staging directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact store: create dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the staging directory.
func (s *Store) Dir() string { return s.dir }

// Create reserves a unique path without writing data. The file itself is
// produced by whoever consumes the path (e.g. the transcoder).
func (s *Store) Create(prefix, ext string) *File {
	name := fmt.Sprintf("%s-%s%s", prefix, uuid.NewString(), ext)
	return &File{Name: name, Path: filepath.Join(s.dir, name)}
}

// Write stages data under a unique name and returns the artifact.
func (s *Store) Write(prefix, ext string, data []byte) (*File, error) {
	f := s.Create(prefix, ext)
	if err := os.WriteFile(f.Path, data, 0o644); err != nil {
		return nil, fmt.Errorf("artifact store: write %s: %w", f.Name, err)
	}
	return f, nil
}
