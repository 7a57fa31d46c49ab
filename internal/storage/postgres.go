package storage

import (
	"context"
	"errors"

	"github.com/giselles-ai/giselle-sub007/internal/db"
	"github.com/giselles-ai/giselle-sub007/internal/giselle"
)

// PostgresDriver keeps objects in the objects table.
type PostgresDriver struct {
	db *db.DB
}

func NewPostgresDriver(database *db.DB) *PostgresDriver {
	return &PostgresDriver{db: database}
}

func pgNotFound(path string, err error) error {
	if errors.Is(err, db.ErrNoObject) {
		return giselle.NotFound("object", path)
	}
	return err
}

func (d *PostgresDriver) Get(ctx context.Context, path string, r *Range) ([]byte, error) {
	offset, length := int64(0), int64(-1)
	if r != nil {
		offset, length = max(r.Offset, 0), r.Length
	}
	data, err := d.db.GetObject(ctx, path, offset, length)
	if err != nil {
		return nil, pgNotFound(path, err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

func (d *PostgresDriver) Put(ctx context.Context, path string, data []byte) error {
	return d.db.PutObject(ctx, path, data)
}

func (d *PostgresDriver) Append(ctx context.Context, path string, data []byte) error {
	return d.db.AppendObject(ctx, path, data)
}

func (d *PostgresDriver) Exists(ctx context.Context, path string) (bool, error) {
	_, err := d.db.ObjectSize(ctx, path)
	if errors.Is(err, db.ErrNoObject) {
		return false, nil
	}
	return err == nil, err
}

func (d *PostgresDriver) Size(ctx context.Context, path string) (int64, error) {
	n, err := d.db.ObjectSize(ctx, path)
	return n, pgNotFound(path, err)
}

func (d *PostgresDriver) Delete(ctx context.Context, path string) error {
	return d.db.DeleteObject(ctx, path)
}
