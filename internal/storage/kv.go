package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested key or record does not exist.
var ErrNotFound = errors.New("not found")

// Keys under which spark keeps its state.
const (
	KeyTokens         = "tokens"
	KeyPages          = "built-pages"
	KeySiteConfig     = "site-config"
	KeyPageRegistry   = "page-registry"
	KeyCredential     = "github-publish-token"
	keyArtifactPrefix = "published-page-"
)

// ArtifactKey is the key of the rendered files for one page.
func ArtifactKey(pageID string) string {
	return keyArtifactPrefix + pageID
}

// KV is the persistence substrate: opaque values under string keys.
// SetMany writes all entries or none.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetMany(ctx context.Context, entries map[string][]byte) error
	Close() error
}

// GetJSON decodes the value under key into v. It returns ErrNotFound when the
// key is absent.
func GetJSON(ctx context.Context, kv KV, key string, v any) error {
	data, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, kv KV, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return kv.Set(ctx, key, data)
}
