// Package records keeps ordered JSON collections (tokens, pages, the publish
// registry) under single KV keys. Collections are newest-first and are
// replaced wholesale on every write; readers never see a partial list.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/pewpi-infinity/spark/internal/storage"
)

// Collection is an ordered list of T stored as a JSON array under one key.
type Collection[T any] struct {
	kv        storage.KV
	key       string
	id        func(T) string
	normalize func(T) T
	logger    *slog.Logger

	mu   sync.Mutex
	last []T
}

// Option configures a Collection.
type Option[T any] func(*Collection[T])

// WithNormalize applies fn to every record read from storage.
func WithNormalize[T any](fn func(T) T) Option[T] {
	return func(c *Collection[T]) { c.normalize = fn }
}

// WithLogger sets the logger used to report storage failures.
func WithLogger[T any](l *slog.Logger) Option[T] {
	return func(c *Collection[T]) {
		if l != nil {
			c.logger = l
		}
	}
}

// New returns a collection stored under key. id extracts the record identity.
func New[T any](kv storage.KV, key string, id func(T) string, opts ...Option[T]) *Collection[T] {
	c := &Collection[T]{kv: kv, key: key, id: id, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Key is the KV key the collection lives under.
func (c *Collection[T]) Key() string { return c.key }

// load reads the stored list. A missing key is an empty list.
func (c *Collection[T]) load(ctx context.Context) ([]T, error) {
	var items []T
	err := storage.GetJSON(ctx, c.kv, c.key, &items)
	if errors.Is(err, storage.ErrNotFound) {
		return []T{}, nil
	}
	if err != nil {
		return nil, err
	}
	if c.normalize != nil {
		for i := range items {
			items[i] = c.normalize(items[i])
		}
	}
	c.remember(items)
	return items, nil
}

func (c *Collection[T]) remember(items []T) {
	c.mu.Lock()
	c.last = slices.Clone(items)
	c.mu.Unlock()
}

// List returns all records, newest first. When storage cannot be read the
// last successfully read list is returned (empty if none) and the failure
// is logged.
func (c *Collection[T]) List(ctx context.Context) []T {
	items, err := c.load(ctx)
	if err != nil {
		c.logger.Warn("reading collection failed, using last known state", "key", c.key, "error", err)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.last == nil {
			return []T{}
		}
		return slices.Clone(c.last)
	}
	return items
}

// Get returns the record with id or storage.ErrNotFound.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	for _, item := range c.List(ctx) {
		if c.id(item) == id {
			return item, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%s %s: %w", c.key, id, storage.ErrNotFound)
}

// Change is one pending KV write produced by Stage or Value.
type Change struct {
	Key   string
	Value []byte
	done  func()
}

// Stage computes the list with recs upserted without writing it. An
// existing record with the same id is replaced in place; new ones go to the
// head, the last of recs ending up first.
func (c *Collection[T]) Stage(ctx context.Context, recs ...T) (Change, error) {
	items, err := c.load(ctx)
	if err != nil {
		return Change{}, fmt.Errorf("reading %s: %w", c.key, err)
	}

	for _, rec := range recs {
		id := c.id(rec)
		idx := slices.IndexFunc(items, func(item T) bool { return c.id(item) == id })
		if idx >= 0 {
			items[idx] = rec
		} else {
			items = append([]T{rec}, items...)
		}
	}

	data, err := json.Marshal(items)
	if err != nil {
		return Change{}, fmt.Errorf("encoding %s: %w", c.key, err)
	}
	return Change{Key: c.key, Value: data, done: func() { c.remember(items) }}, nil
}

// Upsert stages rec and writes it.
func (c *Collection[T]) Upsert(ctx context.Context, rec T) error {
	ch, err := c.Stage(ctx, rec)
	if err != nil {
		return err
	}
	return Apply(ctx, c.kv, ch)
}

// Value stages a plain JSON value under key.
func Value(key string, v any) (Change, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Change{}, fmt.Errorf("encoding %s: %w", key, err)
	}
	return Change{Key: key, Value: data}, nil
}

// Apply writes all changes in one KV batch. Either every change lands or none.
func Apply(ctx context.Context, kv storage.KV, changes ...Change) error {
	if len(changes) == 0 {
		return nil
	}
	batch := make(map[string][]byte, len(changes))
	for _, ch := range changes {
		batch[ch.Key] = ch.Value
	}

	if err := kv.SetMany(ctx, batch); err != nil {
		return err
	}

	for _, ch := range changes {
		if ch.done != nil {
			ch.done()
		}
	}
	return nil
}
