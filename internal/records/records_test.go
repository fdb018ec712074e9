package records

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/pewpi-infinity/spark/internal/model"
	"github.com/pewpi-infinity/spark/internal/storage"
)

type item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// failingKV wraps a KV and fails reads or writes on demand.
type failingKV struct {
	storage.KV
	failGet bool
	failSet bool
}

var errBroken = errors.New("broken storage")

func (f *failingKV) Get(ctx context.Context, key string) ([]byte, error) {
	if f.failGet {
		return nil, errBroken
	}
	return f.KV.Get(ctx, key)
}

func (f *failingKV) Set(ctx context.Context, key string, value []byte) error {
	if f.failSet {
		return errBroken
	}
	return f.KV.Set(ctx, key, value)
}

func (f *failingKV) SetMany(ctx context.Context, entries map[string][]byte) error {
	if f.failSet {
		return errBroken
	}
	return f.KV.SetMany(ctx, entries)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newItems(kv storage.KV) *Collection[item] {
	return New(kv, "items", func(i item) string { return i.ID }, WithLogger[item](quietLogger()))
}

func TestUpsertInsertsAtHeadAndReplacesInPlace(t *testing.T) {
	ctx := context.Background()
	c := newItems(storage.NewMemory())

	for _, id := range []string{"a", "b", "c"} {
		if err := c.Upsert(ctx, item{ID: id}); err != nil {
			t.Fatalf("Upsert(%s): %v", id, err)
		}
	}
	if err := c.Upsert(ctx, item{ID: "b", Name: "updated"}); err != nil {
		t.Fatalf("Upsert(b): %v", err)
	}

	got := c.List(ctx)
	want := []string{"c", "b", "a"}
	if len(got) != len(want) {
		t.Fatalf("List len = %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("List[%d] = %s, want %s", i, got[i].ID, id)
		}
	}
	if got[1].Name != "updated" {
		t.Errorf("b not replaced in place: %+v", got[1])
	}
}

func TestListEmptyWhenMissing(t *testing.T) {
	c := newItems(storage.NewMemory())
	got := c.List(context.Background())
	if got == nil || len(got) != 0 {
		t.Errorf("List = %v, want empty non-nil", got)
	}
}

func TestListFallsBackToLastKnown(t *testing.T) {
	ctx := context.Background()
	kv := &failingKV{KV: storage.NewMemory()}
	c := newItems(kv)

	if err := c.Upsert(ctx, item{ID: "a"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	kv.failGet = true
	got := c.List(ctx)
	if len(got) != 1 || got[0].ID != "a" {
		t.Errorf("List on read failure = %v, want last known [a]", got)
	}
}

func TestListEmptyOnReadFailureWithoutHistory(t *testing.T) {
	kv := &failingKV{KV: storage.NewMemory(), failGet: true}
	c := newItems(kv)
	if got := c.List(context.Background()); len(got) != 0 {
		t.Errorf("List = %v, want empty", got)
	}
}

func TestUpsertFailsOnReadFailure(t *testing.T) {
	kv := &failingKV{KV: storage.NewMemory(), failGet: true}
	c := newItems(kv)
	if err := c.Upsert(context.Background(), item{ID: "a"}); err == nil {
		t.Error("expected Upsert to fail when the current list cannot be read")
	}
}

func TestGetNotFound(t *testing.T) {
	c := newItems(storage.NewMemory())
	_, err := c.Get(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get err = %v, want ErrNotFound", err)
	}
}

func TestApplyIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	kv := &failingKV{KV: storage.NewMemory()}
	a := New(kv, "a", func(i item) string { return i.ID })
	b := New(kv, "b", func(i item) string { return i.ID })

	chA, err := a.Stage(ctx, item{ID: "1"})
	if err != nil {
		t.Fatalf("Stage a: %v", err)
	}
	chB, err := b.Stage(ctx, item{ID: "2"})
	if err != nil {
		t.Fatalf("Stage b: %v", err)
	}

	kv.failSet = true
	if err := Apply(ctx, kv, chA, chB); err == nil {
		t.Fatal("expected Apply to fail")
	}
	kv.failSet = false
	if len(a.List(ctx)) != 0 || len(b.List(ctx)) != 0 {
		t.Fatal("failed Apply left partial state")
	}

	if err := Apply(ctx, kv, chA, chB); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(a.List(ctx)) != 1 || len(b.List(ctx)) != 1 {
		t.Error("Apply did not write both collections")
	}
}

func TestValueChange(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	ch, err := Value("single", map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if err := Apply(ctx, kv, ch); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	var got map[string]string
	if err := storage.GetJSON(ctx, kv, "single", &got); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if got["k"] != "v" {
		t.Errorf("got %v", got)
	}
}

func TestTokensNormalizeLegacyPageID(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	legacy := `[{"id":"INF-1","query":"q","content":"c","timestamp":1,"promoted":true,"pageId":"PAGE-1"}]`
	if err := kv.Set(ctx, storage.KeyTokens, []byte(legacy)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	tokens := NewTokens(kv, quietLogger())
	tok, err := tokens.Get(ctx, "INF-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(tok.PageIDs) != 1 || tok.PageIDs[0] != "PAGE-1" {
		t.Errorf("PageIDs = %v, want [PAGE-1]", tok.PageIDs)
	}
}

func TestPagesRejectIllegalState(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	bad := `[{"id":"PAGE-1","tokenId":"INF-1","title":"t","content":"c","features":{},"timestamp":1,"tags":[],"published":true,"publishStatus":"published"}]`
	kv.Set(ctx, storage.KeyPages, []byte(bad))

	pages := NewPages(kv, quietLogger())
	if got := pages.List(ctx); len(got) != 0 {
		t.Errorf("List = %v, want empty for undecodable store", got)
	}
	if err := pages.Upsert(ctx, model.BuildPage{ID: "PAGE-2"}); err == nil {
		t.Error("expected Upsert to refuse overwriting an undecodable store")
	}
}

func TestStoreUpdateWritesTokenAndPageTogether(t *testing.T) {
	ctx := context.Background()
	kv := &failingKV{KV: storage.NewMemory()}
	s := NewStore(kv, quietLogger())

	tok := model.Token{ID: "INF-1", Query: "q"}
	page := model.BuildPage{ID: "PAGE-1", TokenID: "INF-1", Tags: []string{}}

	update := func(ctx context.Context) ([]Change, error) {
		tc, err := s.Tokens.Stage(ctx, tok.WithPage(page.ID))
		if err != nil {
			return nil, err
		}
		pc, err := s.Pages.Stage(ctx, page)
		if err != nil {
			return nil, err
		}
		return []Change{tc, pc}, nil
	}

	kv.failSet = true
	if err := s.Update(ctx, update); err == nil {
		t.Fatal("expected Update to fail")
	}
	kv.failSet = false
	if len(s.Tokens.List(ctx)) != 0 || len(s.Pages.List(ctx)) != 0 {
		t.Fatal("failed Update left partial state")
	}

	if err := s.Update(ctx, update); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := s.Tokens.Get(ctx, "INF-1")
	if err != nil {
		t.Fatalf("Get token: %v", err)
	}
	if !got.Promoted || !got.OwnsPage("PAGE-1") {
		t.Errorf("token = %+v", got)
	}
	if _, err := s.Pages.Get(ctx, "PAGE-1"); err != nil {
		t.Errorf("Get page: %v", err)
	}
}

func TestStoreUpdateSkipsWriteOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore(storage.NewMemory(), quietLogger())
	want := errors.New("nope")
	err := s.Update(ctx, func(context.Context) ([]Change, error) { return nil, want })
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}

func TestStageMany(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	c := newItems(kv)
	c.Upsert(ctx, item{ID: "a"})

	ch, err := c.Stage(ctx, item{ID: "a", Name: "x"}, item{ID: "b"}, item{ID: "c"})
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if err := Apply(ctx, kv, ch); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got := c.List(ctx)
	if len(got) != 3 || got[0].ID != "c" || got[1].ID != "b" || got[2].Name != "x" {
		t.Errorf("List = %+v", got)
	}
}
