package plugin

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalSource is the `kind: local` source plugin: it stages a path taken
// directly from the project tree, relative to the element file that
// declares it (the same baseDir convention the loader uses for `(@)`
// includes). It has no upstream to track or fetch, so it is always
// Cached once configured and its Track/Fetch are no-ops.
type LocalSource struct {
	path string
}

// NewLocalSource constructs an unconfigured LocalSource.
func NewLocalSource() Source { return &LocalSource{} }

var _ Source = (*LocalSource)(nil)

func (s *LocalSource) Configure(node Node) error {
	path, _ := node.Data["path"].(string)
	if path == "" {
		return fmt.Errorf("plugin: local source: missing required 'path' key")
	}
	if filepath.IsAbs(path) {
		s.path = path
	} else {
		s.path = filepath.Join(filepath.Dir(node.File), path)
	}
	return nil
}

func (s *LocalSource) Preflight(ctx context.Context) error {
	if _, err := os.Stat(s.path); err != nil {
		return fmt.Errorf("plugin: local source: %w", err)
	}
	return nil
}

func (s *LocalSource) UniqueKey() (any, error) {
	return map[string]string{"path": s.path}, nil
}

// Consistency is always Cached: a local source's content is the project
// tree itself, never fetched or tracked.
func (s *LocalSource) Consistency() Consistency { return Cached }

func (s *LocalSource) LoadRef(node Node) error      { return nil }
func (s *LocalSource) GetRef() (string, bool)       { return "", false }
func (s *LocalSource) SetRef(ref string, node Node) error {
	return fmt.Errorf("plugin: local source: does not support refs")
}

func (s *LocalSource) Track(ctx context.Context) (string, error) { return "", nil }
func (s *LocalSource) Fetch(ctx context.Context) error           { return nil }

// Stage copies s.path into dir, recursing through subdirectories and
// preserving regular-file permissions.
func (s *LocalSource) Stage(ctx context.Context, dir string) error {
	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("plugin: local source: %w", err)
	}
	if !info.IsDir() {
		return copyFile(s.path, filepath.Join(dir, filepath.Base(s.path)), info.Mode())
	}
	return filepath.WalkDir(s.path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.path, p)
		if err != nil {
			return err
		}
		dest := filepath.Join(dir, rel)
		if d.IsDir() {
			return os.MkdirAll(dest, 0o755)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(p, dest, info.Mode())
	})
}

// InitWorkspace is identical to Stage: a local source has no separate VCS
// metadata to retain.
func (s *LocalSource) InitWorkspace(ctx context.Context, dir string) error {
	return s.Stage(ctx, dir)
}

func copyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
