package store

import (
	"context"
	"fmt"
	"log/slog"
)

// Collection is a typed view over every KV entry sharing a key prefix.
type Collection[T any] struct {
	kv     KV
	prefix string
	logger *slog.Logger
}

// NewCollection creates a collection storing records under prefix+id.
func NewCollection[T any](kv KV, prefix string, logger *slog.Logger) *Collection[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collection[T]{kv: kv, prefix: prefix, logger: logger}
}

// Key returns the storage key for id.
func (c *Collection[T]) Key(id string) string {
	return c.prefix + id
}

// Get loads and decodes the record stored under id.
func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	data, err := c.kv.Get(ctx, c.Key(id))
	if err != nil {
		return nil, err
	}
	var v T
	if err := Decode(data, &v); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", c.Key(id), err)
	}
	return &v, nil
}

// Put encodes v and stores it under id, replacing any previous record.
func (c *Collection[T]) Put(ctx context.Context, id string, v *T) error {
	data, err := Encode(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", c.Key(id), err)
	}
	return c.kv.Set(ctx, c.Key(id), data)
}

// Delete removes the record stored under id.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	return c.kv.Delete(ctx, c.Key(id))
}

// All decodes every record in the collection. Entries that fail to decode are
// logged and skipped so one corrupt row cannot hide the rest.
func (c *Collection[T]) All(ctx context.Context) ([]T, error) {
	entries, err := c.kv.Scan(ctx, c.prefix)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		var v T
		if err := Decode(e.Value, &v); err != nil {
			c.logger.Warn("store: skipping undecodable record",
				slog.String("key", e.Key),
				slog.String("error", err.Error()))
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
