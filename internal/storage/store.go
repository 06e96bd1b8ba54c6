// Package storage keeps uploaded files in a single flat directory. The directory listing
// is the only catalog: nothing about stored files is kept in memory.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sir_venger/mediarelay/internal/models"
)

const (
	partialDirName = ".partial"
	partialSuffix  = ".part"
)

// Store resolves stored names to paths under root and stages new uploads.
type Store struct {
	root    string
	partial string
}

// NewStore creates root (with parents) and its staging directory when absent.
func NewStore(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}

	partial := filepath.Join(abs, partialDirName)
	if err = os.MkdirAll(partial, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}

	return &Store{root: abs, partial: partial}, nil
}

// Root returns the absolute storage directory.
func (s *Store) Root() string { return s.root }

// Resolve maps a stored name to its absolute path, refusing anything that could
// point outside the root.
func (s *Store) Resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." || name == partialDirName {
		return "", models.ErrInvalidName
	}
	if strings.ContainsAny(name, "/\\\x00") || filepath.IsAbs(name) || !filepath.IsLocal(name) {
		return "", models.ErrInvalidName
	}

	p := filepath.Join(s.root, name)
	if filepath.Dir(p) != s.root {
		return "", models.ErrInvalidName
	}

	return p, nil
}

// Stat returns the stored file for name, or models.ErrNotFound.
func (s *Store) Stat(name string) (models.StoredFile, error) {
	p, err := s.Resolve(name)
	if err != nil {
		return models.StoredFile{}, fmt.Errorf("%w: %w", models.ErrNotFound, err)
	}

	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.StoredFile{}, models.ErrNotFound
		}
		return models.StoredFile{}, err
	}
	if !info.Mode().IsRegular() {
		return models.StoredFile{}, models.ErrNotFound
	}

	return models.StoredFile{
		Name:    name,
		Size:    info.Size(),
		Path:    p,
		ModTime: info.ModTime(),
	}, nil
}

// Open opens a stored file for reading.
func (s *Store) Open(name string) (*os.File, models.StoredFile, error) {
	sf, err := s.Stat(name)
	if err != nil {
		return nil, models.StoredFile{}, err
	}

	f, err := os.Open(sf.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, models.StoredFile{}, models.ErrNotFound
		}
		return nil, models.StoredFile{}, err
	}

	return f, sf, nil
}

// Pending is an upload being written to the staging directory. It becomes visible
// under its stored name only after Commit.
type Pending struct {
	*os.File
	store *Store
	done  bool
}

// Create opens a new staging file.
func (s *Store) Create() (*Pending, error) {
	f, err := os.OpenFile(
		filepath.Join(s.partial, uuid.NewString()+partialSuffix),
		os.O_CREATE|os.O_EXCL|os.O_WRONLY,
		0o644,
	)
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}

	return &Pending{File: f, store: s}, nil
}

// Commit closes the staging file and moves it to name. It returns
// models.ErrNameTaken without touching the existing file if name is in use;
// the staging file is kept so the caller may retry with another name.
func (p *Pending) Commit(name string) (models.StoredFile, error) {
	dst, err := p.store.Resolve(name)
	if err != nil {
		return models.StoredFile{}, err
	}

	if !p.done {
		p.done = true
		if err = p.File.Sync(); err != nil {
			_ = p.File.Close()
			return models.StoredFile{}, fmt.Errorf("sync staging file: %w", err)
		}
		if err = p.File.Close(); err != nil {
			return models.StoredFile{}, fmt.Errorf("close staging file: %w", err)
		}
	}

	if err = publish(p.Name(), dst); err != nil {
		if errors.Is(err, models.ErrNameTaken) {
			return models.StoredFile{}, err
		}
		return models.StoredFile{}, fmt.Errorf("commit %s: %w", name, err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return models.StoredFile{}, err
	}

	return models.StoredFile{
		Name:    name,
		Size:    info.Size(),
		Path:    dst,
		ModTime: info.ModTime(),
	}, nil
}

// publish moves src to dst without replacing an existing dst. A hard link makes the
// check and the move a single step; filesystems without links fall back to rename.
func publish(src, dst string) error {
	err := os.Link(src, dst)
	switch {
	case err == nil:
		// dst is already published; a leftover src is collected by the sweeper.
		_ = os.Remove(src)
		return nil
	case errors.Is(err, fs.ErrExist):
		return models.ErrNameTaken
	}

	if _, err = os.Lstat(dst); err == nil {
		return models.ErrNameTaken
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Rename(src, dst)
}

// Abort discards the staging file. Safe to call after a failed Commit.
func (p *Pending) Abort() error {
	if !p.done {
		p.done = true
		_ = p.File.Close()
	}

	err := os.Remove(p.Name())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return nil
}
