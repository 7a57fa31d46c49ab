package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/giselles-ai/giselle-sub007/internal/datamod"
	"github.com/giselles-ai/giselle-sub007/internal/giselle"
)

// Range selects Length bytes starting at Offset. A negative Length reads to
// the end of the object.
type Range struct {
	Offset int64
	Length int64
}

// From reads everything after offset.
func From(offset int64) *Range { return &Range{Offset: offset, Length: -1} }

// Driver is a path-keyed byte store. Missing paths are reported with an
// error wrapping giselle.ErrNotFound.
type Driver interface {
	Get(ctx context.Context, path string, r *Range) ([]byte, error)
	Put(ctx context.Context, path string, data []byte) error
	Append(ctx context.Context, path string, data []byte) error
	Exists(ctx context.Context, path string) (bool, error)
	Size(ctx context.Context, path string) (int64, error)
	Delete(ctx context.Context, path string) error
}

// Storage is the persistence contract the core depends on.
type Storage interface {
	GetJSON(ctx context.Context, path string, schema *datamod.Schema, out any) error
	SetJSON(ctx context.Context, path string, value any, schema *datamod.Schema) error
	Exists(ctx context.Context, path string) (bool, error)
	ContentLength(ctx context.Context, path string) (int64, error)
	GetBlob(ctx context.Context, path string, r *Range) ([]byte, error)
	SetBlob(ctx context.Context, path string, data []byte) error
	AppendBlob(ctx context.Context, path string, data []byte) error
	Remove(ctx context.Context, path string) error
}

// TransientError is a driver I/O failure. The operation may succeed if
// retried.
type TransientError struct {
	Op   string
	Path string
	Err  error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

var _ Storage = (*Store)(nil)

// Store adds JSON schema handling on top of a Driver.
type Store struct {
	driver Driver
}

func New(driver Driver) *Store {
	return &Store{driver: driver}
}

func wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, giselle.ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &TransientError{Op: op, Path: path, Err: err}
}

// GetJSON loads the document at path into out, running the schema's repair
// loop when the stored document has drifted. The stored bytes are left as
// they are.
func (s *Store) GetJSON(ctx context.Context, path string, schema *datamod.Schema, out any) error {
	data, err := s.driver.Get(ctx, path, nil)
	if err != nil {
		return wrap("get", path, err)
	}
	if schema == nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		return nil
	}
	report, err := schema.ParseAndRepair(data, out)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	if report.Passes > 0 {
		slog.Debug("storage: repaired document on read", "path", path, "repairs", report.Applied)
	}
	return nil
}

// SetJSON validates value against schema and writes it to path.
func (s *Store) SetJSON(ctx context.Context, path string, value any, schema *datamod.Schema) error {
	if schema != nil {
		if err := schema.Validate(value); err != nil {
			return fmt.Errorf("store %s: %w", path, err)
		}
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return wrap("put", path, s.driver.Put(ctx, path, data))
}

func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	ok, err := s.driver.Exists(ctx, path)
	return ok, wrap("exists", path, err)
}

func (s *Store) ContentLength(ctx context.Context, path string) (int64, error) {
	n, err := s.driver.Size(ctx, path)
	return n, wrap("size", path, err)
}

func (s *Store) GetBlob(ctx context.Context, path string, r *Range) ([]byte, error) {
	data, err := s.driver.Get(ctx, path, r)
	return data, wrap("get", path, err)
}

func (s *Store) SetBlob(ctx context.Context, path string, data []byte) error {
	return wrap("put", path, s.driver.Put(ctx, path, data))
}

func (s *Store) AppendBlob(ctx context.Context, path string, data []byte) error {
	return wrap("append", path, s.driver.Append(ctx, path, data))
}

func (s *Store) Remove(ctx context.Context, path string) error {
	return wrap("delete", path, s.driver.Delete(ctx, path))
}

// slice applies r to a whole object.
func slice(data []byte, r *Range) []byte {
	if r == nil {
		return data
	}
	size := int64(len(data))
	start := min(max(r.Offset, 0), size)
	end := size
	if r.Length >= 0 && start+r.Length < size {
		end = start + r.Length
	}
	return data[start:end]
}
