package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// File names inside a dataset directory.
const (
	OriginalFile  = "original.csv"
	ProcessedFile = "processed.csv"
)

// Files lays out uploaded datasets on disk as <root>/datasets/<id>/<name>.
type Files struct {
	Root string
}

func NewFiles(dataDir string) *Files {
	return &Files{Root: dataDir}
}

// Dir returns the directory holding the files of dataset id.
func (f *Files) Dir(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid dataset id %q", id)
	}
	return filepath.Join(f.Root, "datasets", id), nil
}

func (f *Files) Path(id, name string) (string, error) {
	dir, err := f.Dir(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.Base(name)), nil
}

// Save writes r to the named file of dataset id, creating the directory as
// needed. The file is written to a temp name and renamed into place.
func (f *Files) Save(id, name string, r io.Reader) (string, int64, error) {
	path, err := f.Path(id, name)
	if err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", 0, fmt.Errorf("creating dataset directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return "", 0, fmt.Errorf("creating temp file: %w", err)
	}
	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("writing %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("renaming %s: %w", name, err)
	}
	return path, n, nil
}

func (f *Files) Open(id, name string) (*os.File, error) {
	path, err := f.Path(id, name)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return file, err
}

func (f *Files) Exists(id, name string) bool {
	path, err := f.Path(id, name)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Remove deletes every file of dataset id.
func (f *Files) Remove(id string) error {
	dir, err := f.Dir(id)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}
