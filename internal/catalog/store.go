package catalog

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/corpeningc/catsync/internal/errors"
)

// Store reads and writes catalog files in a working directory.
type Store struct {
	fs   afero.Fs
	root string
}

// NewStore returns a store rooted at dir on fs.
func NewStore(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, root: dir}
}

// NewOsStore returns a store on the real file system.
func NewOsStore(dir string) *Store {
	return NewStore(afero.NewOsFs(), dir)
}

func (s *Store) full(path string) string {
	return filepath.Join(s.root, filepath.FromSlash(path))
}

// ReadRaw returns the working-tree bytes of path, or nil when absent.
func (s *Store) ReadRaw(path string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.full(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.IO("read "+path, err)
	}
	return data, nil
}

// Load parses the working-tree version of path. An absent file is empty.
func (s *Store) Load(path string) (*File, error) {
	data, err := s.ReadRaw(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(data)
	if err != nil {
		return nil, errors.IO("parse "+path, err)
	}
	return f, nil
}

// Save writes f to path through a temp file and rename so readers never
// observe a partially written catalog.
func (s *Store) Save(path string, f *File) error {
	data, err := f.Encode()
	if err != nil {
		return errors.IO("encode "+path, err)
	}
	return s.WriteRaw(path, data)
}

// WriteRaw replaces path with data atomically.
func (s *Store) WriteRaw(path string, data []byte) error {
	full := s.full(path)
	if err := s.fs.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errors.IO("write "+path, err)
	}
	tmp, err := afero.TempFile(s.fs, filepath.Dir(full), ".catsync-*")
	if err != nil {
		return errors.IO("write "+path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return errors.IO("write "+path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return errors.IO("write "+path, err)
	}
	if err := s.fs.Chmod(tmpName, 0o644); err != nil {
		_ = s.fs.Remove(tmpName)
		return errors.IO("write "+path, err)
	}
	if err := s.fs.Rename(tmpName, full); err != nil {
		_ = s.fs.Remove(tmpName)
		return errors.IO("write "+path, err)
	}
	return nil
}

// Delete removes path; a missing file is not an error.
func (s *Store) Delete(path string) error {
	if err := s.fs.Remove(s.full(path)); err != nil && !os.IsNotExist(err) {
		return errors.IO("delete "+path, err)
	}
	return nil
}
