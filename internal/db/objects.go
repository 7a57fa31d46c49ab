package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNoObject is returned when no row exists for a path.
var ErrNoObject = errors.New("object not found")

// GetObject reads length bytes of the object at path starting at offset.
// A negative length reads to the end.
func (d *DB) GetObject(ctx context.Context, path string, offset, length int64) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	// substring on bytea is 1-based.
	if length < 0 {
		err = d.Pool.QueryRowContext(ctx,
			`SELECT substring(data FROM $2::int) FROM objects WHERE path = $1`,
			path, offset+1,
		).Scan(&data)
	} else {
		err = d.Pool.QueryRowContext(ctx,
			`SELECT substring(data FROM $2::int FOR $3::int) FROM objects WHERE path = $1`,
			path, offset+1, length,
		).Scan(&data)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", path, ErrNoObject)
	}
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", path, err)
	}
	return data, nil
}

// PutObject creates or replaces the object at path.
func (d *DB) PutObject(ctx context.Context, path string, data []byte) error {
	_, err := d.Pool.ExecContext(ctx,
		`INSERT INTO objects (path, data) VALUES ($1, $2)
		 ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
		path, data,
	)
	if err != nil {
		return fmt.Errorf("put object %s: %w", path, err)
	}
	return nil
}

// AppendObject appends data, creating the object if needed.
func (d *DB) AppendObject(ctx context.Context, path string, data []byte) error {
	_, err := d.Pool.ExecContext(ctx,
		`INSERT INTO objects (path, data) VALUES ($1, $2)
		 ON CONFLICT (path) DO UPDATE SET data = objects.data || EXCLUDED.data, updated_at = NOW()`,
		path, data,
	)
	if err != nil {
		return fmt.Errorf("append object %s: %w", path, err)
	}
	return nil
}

// ObjectSize returns the byte length of the object at path.
func (d *DB) ObjectSize(ctx context.Context, path string) (int64, error) {
	var size int64
	err := d.Pool.QueryRowContext(ctx,
		`SELECT octet_length(data) FROM objects WHERE path = $1`, path,
	).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s: %w", path, ErrNoObject)
	}
	if err != nil {
		return 0, fmt.Errorf("object size %s: %w", path, err)
	}
	return size, nil
}

// DeleteObject removes the object at path. Deleting a missing object is
// not an error.
func (d *DB) DeleteObject(ctx context.Context, path string) error {
	if _, err := d.Pool.ExecContext(ctx, `DELETE FROM objects WHERE path = $1`, path); err != nil {
		return fmt.Errorf("delete object %s: %w", path, err)
	}
	return nil
}
