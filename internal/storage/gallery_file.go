package storage

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/your-org/doorguard/internal/models"
)

// persistedGallery is the on-disk shape: two index-aligned sequences.
type persistedGallery struct {
	Encodings [][]float32
	Names     []string
}

// FileGallery persists the gallery as a gob file. Writes go to a temporary
// file in the same directory which then replaces the target, so a crash
// leaves either the old or the new gallery on disk.
type FileGallery struct {
	path string
}

func NewFileGallery(path string) *FileGallery {
	return &FileGallery{path: path}
}

func (f *FileGallery) Path() string { return f.path }

// Load returns an empty gallery when nothing has been saved yet, creating the
// parent directory.
func (f *FileGallery) Load(_ context.Context) (models.Gallery, error) {
	file, err := os.Open(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
			return models.Gallery{}, fmt.Errorf("create gallery directory: %w", err)
		}
		return models.Gallery{}, nil
	}
	if err != nil {
		return models.Gallery{}, fmt.Errorf("open gallery file: %w", err)
	}
	defer file.Close()

	var p persistedGallery
	if err := gob.NewDecoder(file).Decode(&p); err != nil {
		return models.Gallery{}, fmt.Errorf("decode gallery: %w", err)
	}

	gal := models.Gallery{Encodings: p.Encodings, Names: p.Names}
	if err := gal.Validate(); err != nil {
		return models.Gallery{}, fmt.Errorf("load gallery: %w", err)
	}
	return gal, nil
}

func (f *FileGallery) Save(_ context.Context, gal models.Gallery) error {
	if err := gal.Validate(); err != nil {
		return fmt.Errorf("save gallery: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create gallery directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp gallery file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if err := gob.NewEncoder(tmp).Encode(persistedGallery{Encodings: gal.Encodings, Names: gal.Names}); err != nil {
		return fmt.Errorf("encode gallery: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync gallery file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close gallery file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace gallery file: %w", err)
	}
	committed = true
	return nil
}
