// Package fsarchive provides an archive backend that writes published files
// under a local directory, one subdirectory per job.
package fsarchive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/dungeonjob/internal/archive"
	"github.com/specialistvlad/dungeonjob/internal/ctxlog"
	"github.com/specialistvlad/dungeonjob/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the body of an `archive "fs"` block.
type Input struct {
	Dir string `hcl:"dir"`
}

// Store writes objects as files below a root directory.
type Store struct {
	root string
}

var _ archive.Store = (*Store)(nil)

// New creates the root directory if needed and returns a Store over it.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("fs archive: dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory '%s': %w", dir, err)
	}
	return &Store{root: dir}, nil
}

// Put implements archive.Store. The write goes to a temporary file first and
// is renamed into place, so readers never see a half-written object.
func (s *Store) Put(ctx context.Context, key string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for '%s': %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for '%s': %w", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write '%s': %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close '%s': %w", key, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("failed to move '%s' into place: %w", key, err)
	}
	ctxlog.FromContext(ctx).Debug("Archived file.", "key", key, "path", target, "size", len(data))
	return nil
}

func (s *Store) path(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid archive key '%s'", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "" {
			return "", fmt.Errorf("invalid archive key '%s'", key)
		}
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

// Register registers the backend with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterArchive("fs", &registry.ArchiveFactory{
		NewInput: func() any { return new(Input) },
		Create: func(ctx context.Context, input any) (archive.Store, error) {
			return New(input.(*Input).Dir)
		},
	})
	r.RegisterArchive("memory", &registry.ArchiveFactory{
		NewInput: func() any { return new(struct{}) },
		Create: func(context.Context, any) (archive.Store, error) {
			return archive.NewMemoryStore(), nil
		},
	})
}
