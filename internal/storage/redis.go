package storage

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/giselles-ai/giselle-sub007/internal/giselle"
)

// RedisDriver stores each object as a redis string under prefix+path.
type RedisDriver struct {
	client *redis.Client
	prefix string
}

func NewRedisDriver(client *redis.Client, prefix string) *RedisDriver {
	return &RedisDriver{client: client, prefix: prefix}
}

func (d *RedisDriver) key(path string) string { return d.prefix + path }

func (d *RedisDriver) Get(ctx context.Context, path string, r *Range) ([]byte, error) {
	if r == nil {
		data, err := d.client.Get(ctx, d.key(path)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, giselle.NotFound("object", path)
		}
		return data, err
	}

	// GETRANGE answers "" for a missing key, so check first.
	ok, err := d.Exists(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, giselle.NotFound("object", path)
	}
	if r.Length == 0 {
		return []byte{}, nil
	}
	end := int64(-1)
	if r.Length > 0 {
		end = r.Offset + r.Length - 1
	}
	return d.client.GetRange(ctx, d.key(path), max(r.Offset, 0), end).Bytes()
}

func (d *RedisDriver) Put(ctx context.Context, path string, data []byte) error {
	return d.client.Set(ctx, d.key(path), data, 0).Err()
}

func (d *RedisDriver) Append(ctx context.Context, path string, data []byte) error {
	return d.client.Append(ctx, d.key(path), string(data)).Err()
}

func (d *RedisDriver) Exists(ctx context.Context, path string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(path)).Result()
	return n > 0, err
}

func (d *RedisDriver) Size(ctx context.Context, path string) (int64, error) {
	ok, err := d.Exists(ctx, path)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, giselle.NotFound("object", path)
	}
	return d.client.StrLen(ctx, d.key(path)).Result()
}

func (d *RedisDriver) Delete(ctx context.Context, path string) error {
	return d.client.Del(ctx, d.key(path)).Err()
}
