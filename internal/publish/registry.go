package publish

import (
	"log/slog"

	"github.com/pewpi-infinity/spark/internal/records"
	"github.com/pewpi-infinity/spark/internal/storage"
)

// RegistryEntry indexes one published page without loading the page itself.
type RegistryEntry struct {
	ID          string   `json:"id"`
	TokenID     string   `json:"tokenId"`
	Title       string   `json:"title"`
	Slug        string   `json:"slug"`
	URL         string   `json:"url"`
	Features    []string `json:"features"`
	CreatedAt   int64    `json:"createdAt"`
	CommitRef   string   `json:"commitRef"`
	PublishedAt int64    `json:"publishedAt"`
	Status      string   `json:"status"`
}

// Registry is the published page index, newest first.
type Registry = records.Collection[RegistryEntry]

func NewRegistry(kv storage.KV, logger *slog.Logger) *Registry {
	return records.New(kv, storage.KeyPageRegistry,
		func(e RegistryEntry) string { return e.ID },
		records.WithLogger[RegistryEntry](logger),
	)
}
