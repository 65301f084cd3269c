package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

func init() {
	Register("local", func(ctx context.Context, cfg Config) (Store, error) {
		return NewLocal(cfg.Location)
	})
}

// Local is a Store rooted at a directory on the local filesystem.
type Local struct {
	root string
}

// NewLocal opens a local store. location may be a bare path or a file:// URL.
// The root does not have to exist yet; writes create it.
func NewLocal(location string) (*Local, error) {
	p := location
	if strings.HasPrefix(strings.ToLower(p), "file://") {
		p = p[len("file://"):]
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, fmt.Errorf("objstore: resolve %q: %w", location, err)
	}
	return &Local{root: abs}, nil
}

// Root returns the absolute directory backing the store.
func (l *Local) Root() string { return l.root }

func (l *Local) path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

func (l *Local) Glob(ctx context.Context, pattern string) ([]string, error) {
	if _, err := os.Stat(l.root); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	matches, err := doublestar.Glob(os.DirFS(l.root), strings.TrimPrefix(pattern, "/"), doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("objstore: glob %q under %s: %w", pattern, l.root, err)
	}
	sort.Strings(matches)
	return matches, nil
}

func (l *Local) List(ctx context.Context, prefix string) ([]string, error) {
	base := l.path(prefix)
	var keys []string
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("objstore: list %s: %w", base, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (l *Local) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(l.path(key))
	if err != nil {
		return nil, fmt.Errorf("objstore: open %s: %w", key, err)
	}
	return f, nil
}

func (l *Local) Put(ctx context.Context, key string, r io.Reader) error {
	dst := l.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("objstore: mkdir for %s: %w", key, err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("objstore: create %s: %w", key, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("objstore: write %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("objstore: close %s: %w", key, err)
	}
	return nil
}

func (l *Local) RemoveAll(ctx context.Context, prefix string) error {
	target := l.path(prefix)
	if filepath.Clean(target) == filepath.Clean(l.root) {
		return fmt.Errorf("objstore: refusing to remove store root %s", l.root)
	}
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("objstore: remove %s: %w", prefix, err)
	}
	return nil
}

func (l *Local) URI(key string) string {
	if key == "" {
		return l.root
	}
	return l.path(key)
}

func (l *Local) Close() error { return nil }
