package records

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pewpi-infinity/spark/internal/model"
	"github.com/pewpi-infinity/spark/internal/storage"
)

// Tokens is the token store.
type Tokens = Collection[model.Token]

// Pages is the page store.
type Pages = Collection[model.BuildPage]

// NewTokens returns the token store over kv. Legacy single-page links are
// normalised on read.
func NewTokens(kv storage.KV, logger *slog.Logger) *Tokens {
	return New(kv, storage.KeyTokens,
		func(t model.Token) string { return t.ID },
		WithNormalize(func(t model.Token) model.Token { return t.Normalize() }),
		WithLogger[model.Token](logger),
	)
}

// NewPages returns the page store over kv.
func NewPages(kv storage.KV, logger *slog.Logger) *Pages {
	return New(kv, storage.KeyPages,
		func(p model.BuildPage) string { return p.ID },
		WithLogger[model.BuildPage](logger),
	)
}

// Store groups the token and page collections over one KV and serialises
// read-modify-write cycles across every collection built on it.
type Store struct {
	kv     storage.KV
	Tokens *Tokens
	Pages  *Pages

	mu sync.Mutex
}

func NewStore(kv storage.KV, logger *slog.Logger) *Store {
	return &Store{kv: kv, Tokens: NewTokens(kv, logger), Pages: NewPages(kv, logger)}
}

// KV is the underlying key-value store.
func (s *Store) KV() storage.KV { return s.kv }

// Update runs fn under the store lock and writes the changes it returns in
// one batch. Nothing is written when fn fails.
func (s *Store) Update(ctx context.Context, fn func(ctx context.Context) ([]Change, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	changes, err := fn(ctx)
	if err != nil {
		return err
	}
	return Apply(ctx, s.kv, changes...)
}
