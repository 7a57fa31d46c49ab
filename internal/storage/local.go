package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/giselles-ai/giselle-sub007/internal/giselle"
)

// LocalDriver stores objects as files under a base directory.
type LocalDriver struct {
	baseDir string
	// appends to one file must not interleave with a rewrite of it
	mu sync.Mutex
}

func NewLocalDriver(baseDir string) (*LocalDriver, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalDriver{baseDir: baseDir}, nil
}

func (l *LocalDriver) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object path %q", path)
	}
	return filepath.Join(l.baseDir, clean), nil
}

func notFound(path string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return giselle.NotFound("object", path)
	}
	return err
}

func (l *LocalDriver) Get(_ context.Context, path string, r *Range) ([]byte, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	if r == nil {
		data, err := os.ReadFile(full)
		if err != nil {
			return nil, notFound(path, err)
		}
		return data, nil
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, notFound(path, err)
	}
	defer f.Close()

	if _, err := f.Seek(max(r.Offset, 0), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s: %w", path, err)
	}
	var reader io.Reader = f
	if r.Length >= 0 {
		reader = io.LimitReader(f, r.Length)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func (l *LocalDriver) Put(_ context.Context, path string, data []byte) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", path, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func (l *LocalDriver) Append(_ context.Context, path string, data []byte) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(full, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("append %s: %w", path, err)
	}
	return f.Close()
}

func (l *LocalDriver) Exists(_ context.Context, path string) (bool, error) {
	full, err := l.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (l *LocalDriver) Size(_ context.Context, path string) (int64, error) {
	full, err := l.resolve(path)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return 0, notFound(path, err)
	}
	return info.Size(), nil
}

func (l *LocalDriver) Delete(_ context.Context, path string) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
