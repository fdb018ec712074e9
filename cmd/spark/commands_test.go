package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/pewpi-infinity/spark/internal/config"
	"github.com/pewpi-infinity/spark/internal/publish"
	"github.com/pewpi-infinity/spark/internal/site"
	"github.com/pewpi-infinity/spark/internal/storage"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

func (ts *testServer) body(t *testing.T, i int) map[string]any {
	t.Helper()
	if i >= len(ts.requests) {
		t.Fatalf("expected request %d, got %d requests", i, len(ts.requests))
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(ts.requests[i].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	return body
}

// runCLI executes the root command against ts and returns its stdout.
func runCLI(t *testing.T, ts *testServer, args ...string) (string, error) {
	t.Helper()
	oldClient, oldColor := newAPIClient, noColor
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	noColor = true

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		newAPIClient, noColor = oldClient, oldColor
		rootCmd.SetOut(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

var ctx = context.Background()

func TestSearchCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /search": `{"token":{"id":"INF-1700000000000-ABC123XYZ","query":"history of jazz","content":"Jazz began...","timestamp":1700000000000,"promoted":false},
			"result":{"query":"history of jazz","content":"Jazz began in New Orleans.","analysis":"","tags":["music","history"]}}`,
	})

	out, err := runCLI(t, ts, "search", "--mode", "brief", "history", "of", "jazz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "INF-1700000000000-ABC123XYZ") || !strings.Contains(out, "music, history") {
		t.Errorf("output = %q", out)
	}

	r := ts.requests[0]
	if r.Method != "POST" || r.Path != "/search" || r.Auth != "Bearer test-token" {
		t.Errorf("request = %+v", r)
	}
	body := ts.body(t, 0)
	if body["query"] != "history of jazz" || body["mode"] != "brief" {
		t.Errorf("body = %v", body)
	}
}

func TestPromoteCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /tokens/INF-1/promote": `{"id":"PAGE-1","tokenId":"INF-1","title":"Jazz","content":"c","structure":"business",
			"features":{"video":true,"files":true},"timestamp":1,"tags":[],"published":false,"publishStatus":"draft"}`,
	})

	if _, err := runCLI(t, ts, "promote", "INF-1"); err == nil || !strings.Contains(err.Error(), "--structure") {
		t.Fatalf("missing structure err = %v", err)
	}
	if len(ts.requests) != 0 {
		t.Fatalf("request sent without a structure")
	}

	out, err := runCLI(t, ts, "promote", "INF-1", "--structure", "business", "--title", "Jazz", "--toggle", "video", "--toggle", "files")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "PAGE-1") || !strings.Contains(out, "draft") {
		t.Errorf("output = %q", out)
	}

	body := ts.body(t, 0)
	toggles, _ := body["toggle"].([]any)
	if body["structure"] != "business" || body["title"] != "Jazz" || len(toggles) != 2 {
		t.Errorf("body = %v", body)
	}
}

func TestExpandCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /tokens/INF-1/expand": `{"id":"PAGE-2","tokenId":"INF-1","title":"bebop era","content":"c","structure":"blank",
			"features":{},"timestamp":1,"tags":[],"published":false,"publishStatus":"draft"}`,
	})

	out, err := runCLI(t, ts, "expand", "INF-1", "bebop", "era", "--structure", "blank", "--mode", "brief")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "PAGE-2") {
		t.Errorf("output = %q", out)
	}

	if r := ts.requests[0]; r.Path != "/tokens/INF-1/expand" {
		t.Errorf("path = %s", r.Path)
	}
	body := ts.body(t, 0)
	if body["query"] != "bebop era" || body["structure"] != "blank" || body["mode"] != "brief" {
		t.Errorf("body = %v", body)
	}
}

func TestFindCommandQuery(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /find": `[{"type":"page","score":7,"timestamp":1,"page":{"id":"PAGE-1","tokenId":"INF-1","title":"Quantum","content":"","features":{},"timestamp":1,"tags":["quantum"],"published":true,"publishStatus":"published","url":"https://u.github.io/r/pages/quantum/","publishedAt":2}}]`,
	})

	out, err := runCLI(t, ts, "find", "--type", "pages", "--from", "2024-01-01", "--track", "quantum")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "PAGE-1") || !strings.Contains(out, "pages/quantum/") {
		t.Errorf("output = %q", out)
	}

	from, _ := parseBound("2024-01-01", false)
	path := ts.requests[0].Path
	for _, want := range []string{"q=quantum", "type=pages", "track=true", "from=" + strconv.FormatInt(from, 10)} {
		if !strings.Contains(path, want) {
			t.Errorf("path %q missing %q", path, want)
		}
	}
}

func TestFindCommandRejectsBadType(t *testing.T) {
	ts := newTestServer(t, nil)
	if _, err := runCLI(t, ts, "find", "--type", "bogus"); err == nil {
		t.Fatal("expected error for unknown type")
	}
	if len(ts.requests) != 0 {
		t.Error("request sent for an invalid type")
	}
}

func TestParseBound(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local)
	tests := []struct {
		in      string
		upper   bool
		want    int64
		wantErr bool
	}{
		{"2024-03-01", false, day.UnixMilli(), false},
		{"2024-03-01", true, day.AddDate(0, 0, 1).UnixMilli() - 1, false},
		{"2024-03-01T12:00:00Z", true, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli(), false},
		{"yesterday", false, 0, true},
	}
	for _, tt := range tests {
		got, err := parseBound(tt.in, tt.upper)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseBound(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseBound(%q, %v) = %d, want %d", tt.in, tt.upper, got, tt.want)
		}
	}
}

func TestVerifyCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /pages/PAGE-1/verify": `{"id":"PAGE-1","tokenId":"INF-1","title":"Jazz","content":"","features":{},"timestamp":1,"tags":[],
			"published":true,"publishStatus":"published","url":"https://u.github.io/r/pages/jazz/","publishedAt":2}`,
		"POST /pages/verify": `[]`,
	})

	if _, err := runCLI(t, ts, "verify"); err == nil {
		t.Error("expected error without a page id or --all")
	}

	out, err := runCLI(t, ts, "verify", "PAGE-1")
	if err != nil {
		t.Fatalf("verify PAGE-1: %v", err)
	}
	if !strings.Contains(out, "published") {
		t.Errorf("output = %q", out)
	}

	out, err = runCLI(t, ts, "verify", "--all")
	if err != nil {
		t.Fatalf("verify --all: %v", err)
	}
	if !strings.Contains(out, "No pages awaiting build") {
		t.Errorf("output = %q", out)
	}

	if _, err := runCLI(t, ts, "verify", "--all", "PAGE-1"); err == nil {
		t.Error("expected error for both a page id and --all")
	}
}

func TestCredentialSetFromStdin(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"PUT /credential": `{"status":"stored"}`,
	})

	rootCmd.SetIn(strings.NewReader("ghp_from_stdin\n"))
	if _, err := runCLI(t, ts, "credential", "set"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ts.body(t, 0)["token"]; got != "ghp_from_stdin" {
		t.Errorf("token = %v", got)
	}
}

func TestParseSitePatch(t *testing.T) {
	p, err := parseSitePatch([]string{"site_name=My Site", "repo_name=notes"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.SiteName == nil || *p.SiteName != "My Site" || p.RepoName == nil || *p.RepoName != "notes" {
		t.Errorf("patch = %+v", p)
	}
	if p.GitHubUser != nil || p.OwnerName != nil || p.PagesRoot != nil {
		t.Errorf("unset fields touched: %+v", p)
	}

	for _, bad := range []string{"site_name", "color=red"} {
		if _, err := parseSitePatch([]string{bad}); err == nil {
			t.Errorf("parseSitePatch(%q) expected error", bad)
		}
	}
}

func TestWriteFiles(t *testing.T) {
	dir := t.TempDir()
	files := []publish.File{
		{Name: "index.html", Path: "pages/jazz/index.html", Content: "<html></html>"},
		{Name: "page.json", Path: "/pages/jazz/page.json", Content: "{}"},
	}
	if err := writeFiles(dir, files); err != nil {
		t.Fatalf("writeFiles: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "pages", "jazz", "index.html"))
	if err != nil || string(got) != "<html></html>" {
		t.Errorf("index.html = %q, %v", got, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "pages", "jazz", "page.json")); err != nil {
		t.Errorf("page.json: %v", err)
	}

	if err := writeFiles(dir, []publish.File{{Path: "../escape.html"}}); err == nil {
		t.Error("expected error for a path outside dir")
	}
}

func TestFetchUnreachable(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	err := ts.client().fetch(ctx, http.MethodGet, "/health", nil, nil)
	if !isUnreachable(err) {
		t.Fatalf("err = %v, want an unreachable error", err)
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestFetchServerError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantMsg  string
		wantType string
	}{
		{"envelope", 409, `{"error":{"message":"page has not been published","type":"conflict_error"}}`, "server returned 409: page has not been published", "conflict_error"},
		{"plain body", 502, "bad gateway\n", "server returned 502: bad gateway", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			client := &apiClient{baseURL: srv.URL, token: "t", httpClient: srv.Client()}
			var out any
			err := client.fetch(ctx, http.MethodPost, "/pages/PAGE-1/verify", nil, &out)
			var se *serverError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want *serverError", err)
			}
			if err.Error() != tt.wantMsg || se.Type != tt.wantType {
				t.Errorf("err = %q (type %q), want %q (type %q)", err.Error(), se.Type, tt.wantMsg, tt.wantType)
			}
			if isUnreachable(err) {
				t.Error("server error reported as unreachable")
			}
		})
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestCountLabel(t *testing.T) {
	tests := []struct {
		count, limit int
		want         string
	}{
		{5, 100, "5"},
		{0, 100, "0"},
		{100, 100, "100+"},
		{150, 100, "150+"},
	}
	for _, tt := range tests {
		got := countLabel(tt.count, tt.limit)
		if got != tt.want {
			t.Errorf("countLabel(%d, %d) = %q, want %q", tt.count, tt.limit, got, tt.want)
		}
	}
}

func TestOpenStorage(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name string
		cfg  config.Config
	}{
		{"memory", config.Config{Storage: config.StorageConfig{Backend: "memory"}}},
		{"sqlite", config.Config{Storage: config.StorageConfig{Backend: "sqlite", DataDir: t.TempDir()}}},
		{"redis", config.Config{Storage: config.StorageConfig{Backend: "redis"}, Redis: config.RedisConfig{Addr: mr.Addr(), Prefix: "t:"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv, err := openStorage(tt.cfg)
			if err != nil {
				t.Fatalf("openStorage: %v", err)
			}
			defer kv.Close()
			if err := kv.Set(ctx, "k", []byte("v")); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if got, err := kv.Get(ctx, "k"); err != nil || string(got) != "v" {
				t.Errorf("Get = %q, %v", got, err)
			}
		})
	}
}

func TestNewGenerator(t *testing.T) {
	for backend, want := range map[string]string{"stub": "stub", "openai": "openai"} {
		cfg := config.Config{Generator: config.GeneratorConfig{Backend: backend}}
		cfg.OpenAI.APIKey = "sk-test"
		gen, err := newGenerator(ctx, cfg, &bytes.Buffer{})
		if err != nil {
			t.Fatalf("%s: %v", backend, err)
		}
		if gen.Name() != want {
			t.Errorf("%s: Name = %q", backend, gen.Name())
		}
	}
}

func TestNewStrategy(t *testing.T) {
	sites := site.NewStore(storage.NewMemory(), nil)
	cfg := config.Config{}

	auto := newStrategy(cfg, sites)
	if auto.Name() != "auto" {
		t.Fatalf("unset strategy = %q, want auto", auto.Name())
	}
	if got := publish.Resolve(ctx, auto).Name(); got != "local" {
		t.Errorf("auto without credential = %q, want local", got)
	}
	if err := sites.SetCredential(ctx, "ghp_x"); err != nil {
		t.Fatal(err)
	}
	if got := publish.Resolve(ctx, auto).Name(); got != "github" {
		t.Errorf("auto with credential = %q, want github", got)
	}

	for _, name := range []string{"github", "export", "local"} {
		cfg.Publish.Strategy = name
		cfg.Publish.ExportDir = t.TempDir()
		if got := newStrategy(cfg, sites).Name(); got != name {
			t.Errorf("strategy %s = %q", name, got)
		}
	}
}

func TestNewAppPicksUpLaterCredential(t *testing.T) {
	gen, _ := newGenerator(ctx, config.Config{Generator: config.GeneratorConfig{Backend: "stub"}}, &bytes.Buffer{})
	a, err := newApp(ctx, config.Config{}, storage.NewMemory(), gen)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.publisher.Close()

	if got := a.publisher.Active(ctx).Name(); got != "local" {
		t.Errorf("active = %q, want local before a credential is stored", got)
	}
	if err := a.sites.SetCredential(ctx, "ghp_new"); err != nil {
		t.Fatal(err)
	}
	if got := a.publisher.Active(ctx).Name(); got != "github" {
		t.Errorf("active = %q, want github once a credential is stored", got)
	}
}

func TestNewAppSeedsCredential(t *testing.T) {
	kv := storage.NewMemory()
	gen, _ := newGenerator(ctx, config.Config{Generator: config.GeneratorConfig{Backend: "stub"}}, &bytes.Buffer{})

	cfg := config.Config{}
	cfg.GitHub.Token = "ghp_config"
	a, err := newApp(ctx, cfg, kv, gen)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.publisher.Close()

	if tok, _ := a.sites.Credential(ctx); tok != "ghp_config" {
		t.Errorf("credential = %q, want ghp_config", tok)
	}
	if got := a.publisher.Active(ctx).Name(); got != "github" {
		t.Errorf("strategy = %q, want github", got)
	}

	// A stored credential is never replaced by config.
	cfg.GitHub.Token = "ghp_other"
	b, err := newApp(ctx, cfg, kv, gen)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer b.publisher.Close()
	if tok, _ := b.sites.Credential(ctx); tok != "ghp_config" {
		t.Errorf("credential = %q, want ghp_config kept", tok)
	}
}
