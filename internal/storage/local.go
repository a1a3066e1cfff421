package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// LocalBackend stores objects as files below a root directory.
type LocalBackend struct {
	root string
}

func NewLocalBackend(root string) (*LocalBackend, error) {
	if root == "" {
		return nil, errors.New("storage: empty root directory")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalBackend{root: root}, nil
}

// Root returns the directory objects are stored under.
func (l *LocalBackend) Root() string { return l.root }

func (l *LocalBackend) path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return filepath.Join(l.root, filepath.FromSlash(clean[1:])), nil
}

func (l *LocalBackend) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := l.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotExist)
	}
	return f, err
}

func (l *LocalBackend) Create(ctx context.Context, key string) (Writer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := l.path(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), "."+filepath.Base(full)+".tmp-*")
	if err != nil {
		return nil, err
	}
	return &localWriter{File: tmp, dst: full}, nil
}

func (l *LocalBackend) Has(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	full, err := l.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (l *LocalBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", key, ErrNotExist)
	} else if err != nil {
		return err
	}
	return nil
}

func (l *LocalBackend) List(ctx context.Context, prefix string) ([]string, error) {
	dir := l.root
	if p := strings.Trim(prefix, "/"); p != "" {
		dir = filepath.Join(l.root, filepath.FromSlash(p))
	}
	var keys []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	slices.Sort(keys)
	return keys, nil
}

type localWriter struct {
	*os.File
	dst  string
	done bool
}

func (w *localWriter) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	if err := w.File.Sync(); err != nil {
		w.File.Close()
		os.Remove(w.File.Name())
		return err
	}
	if err := w.File.Close(); err != nil {
		os.Remove(w.File.Name())
		return err
	}
	if err := os.Rename(w.File.Name(), w.dst); err != nil {
		os.Remove(w.File.Name())
		return err
	}
	return nil
}

func (w *localWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.File.Close()
	return os.Remove(w.File.Name())
}

var _ Backend = (*LocalBackend)(nil)
