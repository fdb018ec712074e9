package storage

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestParseMigrationVersion(t *testing.T) {
	tests := []struct {
		name    string
		want    int
		wantErr bool
	}{
		{"001_kv.sql", 1, false},
		{"012_more.sql", 12, false},
		{"kv.sql", 0, true},
		{"000_zero.sql", 0, true},
		{"x1_kv.sql", 0, true},
	}
	for _, tt := range tests {
		got, err := parseMigrationVersion(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseMigrationVersion(%q) err = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseMigrationVersion(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestLoadMigrationsNumericOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/10_c.sql": {Data: []byte("SELECT 1")},
		"migrations/9_b.sql":  {Data: []byte("SELECT 1")},
		"migrations/1_a.sql":  {Data: []byte("SELECT 1")},
	}
	ms, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	var got []int
	for _, m := range ms {
		got = append(got, m.version)
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 9 || got[2] != 10 {
		t.Errorf("versions = %v, want [1 9 10]", got)
	}

	fsys["migrations/009_dup.sql"] = &fstest.MapFile{Data: []byte("SELECT 1")}
	if _, err := loadMigrations(fsys); err == nil {
		t.Error("expected an error for a duplicate version")
	}
}

func TestMigrateAppliesOnlyNew(t *testing.T) {
	s := openTestStore(t)
	extra := fstest.MapFS{
		"migrations/001_kv.sql":    {Data: []byte("THIS IS NOT SQL")},
		"migrations/002_notes.sql": {Data: []byte("CREATE TABLE notes (id TEXT PRIMARY KEY)")},
	}
	if err := s.migrate(context.Background(), extra); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 2 || versions[1] != 2 {
		t.Errorf("versions = %v, want [1 2]", versions)
	}

	bad := fstest.MapFS{"migrations/003_bad.sql": {Data: []byte("CREATE TABLE")}}
	if err := s.migrate(context.Background(), bad); err == nil {
		t.Error("expected an error for a broken migration")
	}
	if versions, _ := s.AppliedMigrations(); len(versions) != 2 {
		t.Errorf("failed migration was recorded: %v", versions)
	}
}

// testKV exercises the KV contract shared by every backend.
func testKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	if _, err := kv.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) err = %v, want ErrNotFound", err)
	}

	if err := kv.Set(ctx, "a", []byte("1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := kv.Set(ctx, "a", []byte("2")); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, err := kv.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "2" {
		t.Errorf("Get(a) = %q, want %q", got, "2")
	}

	batch := map[string][]byte{"a": []byte("3"), "b": []byte("4")}
	if err := kv.SetMany(ctx, batch); err != nil {
		t.Fatalf("SetMany: %v", err)
	}
	for k, want := range map[string]string{"a": "3", "b": "4"} {
		got, err := kv.Get(ctx, k)
		if err != nil {
			t.Fatalf("Get(%s): %v", k, err)
		}
		if string(got) != want {
			t.Errorf("Get(%s) = %q, want %q", k, got, want)
		}
	}

	type doc struct {
		Name string `json:"name"`
	}
	if err := SetJSON(ctx, kv, "doc", doc{Name: "x"}); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	var d doc
	if err := GetJSON(ctx, kv, "doc", &d); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if d.Name != "x" {
		t.Errorf("GetJSON name = %q, want x", d.Name)
	}
	if err := GetJSON(ctx, kv, "nope", &d); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetJSON(nope) err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteKV(t *testing.T) {
	testKV(t, openTestStore(t))
}

func TestSQLitePersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s1.Set(ctx, KeySiteConfig, []byte(`{"siteName":"x"}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.Get(ctx, KeySiteConfig)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(got) != `{"siteName":"x"}` {
		t.Errorf("got %q", got)
	}
}

func TestMemoryKV(t *testing.T) {
	testKV(t, NewMemory())
}

func TestMemoryCopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	buf := []byte("abc")
	m.Set(ctx, "k", buf)
	buf[0] = 'z'

	got, _ := m.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("stored value mutated through caller slice: %q", got)
	}
}

func TestArtifactKey(t *testing.T) {
	if got := ArtifactKey("PAGE-1"); got != "published-page-PAGE-1" {
		t.Errorf("ArtifactKey = %q", got)
	}
}
