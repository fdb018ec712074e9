package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pewpi-infinity/spark/internal/api"
	"github.com/pewpi-infinity/spark/internal/config"
	"github.com/pewpi-infinity/spark/internal/generator"
	"github.com/pewpi-infinity/spark/internal/metrics"
	"github.com/pewpi-infinity/spark/internal/ollama"
	"github.com/pewpi-infinity/spark/internal/publish"
	"github.com/pewpi-infinity/spark/internal/records"
	"github.com/pewpi-infinity/spark/internal/site"
	"github.com/pewpi-infinity/spark/internal/storage"
	"github.com/pewpi-infinity/spark/internal/workflow"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the spark server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running spark server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show spark system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the sample tokens and pages into empty stores",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		kv, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer kv.Close()

		wf := workflow.New(workflow.Options{Store: records.NewStore(kv, slog.Default())})
		seeded, err := wf.Seed(cmd.Context())
		if err != nil {
			return err
		}
		if !seeded {
			printWarning("Stores already hold data; nothing seeded")
			return nil
		}
		printSuccess("Seeded %d tokens and %d pages", len(wf.Tokens(cmd.Context())), len(wf.Pages(cmd.Context())))
		return nil
	},
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openStorage opens the KV backend named by storage.backend.
func openStorage(cfg config.Config) (storage.KV, error) {
	switch cfg.Storage.Backend {
	case "redis":
		kv, err := storage.NewRedis(storage.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
		return kv, nil
	case "memory":
		return storage.NewMemory(), nil
	default:
		kv, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
		return kv, nil
	}
}

// newGenerator builds the content generator named by generator.backend. The
// ollama backend pulls its model first, reporting progress to w.
func newGenerator(ctx context.Context, cfg config.Config, w io.Writer) (generator.Generator, error) {
	switch cfg.Generator.Backend {
	case "openai":
		return generator.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model), nil
	case "stub":
		return generator.Stub{}, nil
	default:
		client := ollama.New(cfg.Ollama.BaseURL)
		if err := ollama.EnsureReady(ctx, client, cfg.Ollama.Model, w); err != nil {
			return nil, err
		}
		return generator.NewOllama(client, cfg.Ollama.Model), nil
	}
}

// newStrategy picks the delivery strategy. With publish.strategy unset the
// choice between github and local follows the stored credential on every
// publish.
func newStrategy(cfg config.Config, sites *site.Store) publish.Strategy {
	switch cfg.Publish.Strategy {
	case "":
		return publish.NewAuto(sites, publish.NewGitHub(sites, cfg.GitHub.APIURL, cfg.GitHub.Branch))
	case "github":
		return publish.NewGitHub(sites, cfg.GitHub.APIURL, cfg.GitHub.Branch)
	case "export":
		return publish.NewExport(cfg.Publish.ExportDir)
	default:
		return publish.Local{}
	}
}

// seedCredential copies github.token into storage when none is stored yet.
func seedCredential(ctx context.Context, cfg config.Config, sites *site.Store) error {
	if cfg.GitHub.Token == "" || sites.HasCredential(ctx) {
		return nil
	}
	if err := sites.SetCredential(ctx, cfg.GitHub.Token); err != nil {
		return err
	}
	slog.Info("stored GitHub credential from config")
	return nil
}

// app is the wired set of services behind the API.
type app struct {
	workflow  *workflow.Workflow
	publisher *publish.Publisher
	sites     *site.Store
	verifier  *publish.GitHub
	metrics   *metrics.Metrics
}

func newApp(ctx context.Context, cfg config.Config, kv storage.KV, gen generator.Generator) (*app, error) {
	logger := slog.Default()
	m := metrics.New()
	store := records.NewStore(kv, logger)
	sites := site.NewStore(kv, logger)

	if err := seedCredential(ctx, cfg, sites); err != nil {
		return nil, err
	}

	strategy := newStrategy(cfg, sites)
	if err := strategy.Ready(ctx); err != nil {
		slog.Warn("publish strategy not ready", "strategy", publish.Resolve(ctx, strategy).Name(), "error", err)
	}

	return &app{
		workflow: workflow.New(workflow.Options{
			Store:     store,
			Generator: gen,
			Metrics:   m,
			Logger:    logger,
		}),
		publisher: publish.New(publish.Options{
			Store:        store,
			Site:         sites,
			Strategy:     strategy,
			Prober:       publish.NewHTTPProber(cfg.Publish.ProbeTimeout),
			RecheckDelay: cfg.Publish.RecheckDelay,
			Metrics:      m,
			Logger:       logger,
		}),
		sites:    sites,
		verifier: publish.NewGitHub(sites, cfg.GitHub.APIURL, cfg.GitHub.Branch),
		metrics:  m,
	}, nil
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "spark version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)})))

	apiToken, err := config.GetAPIToken()
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	pid := pidFileIn(cfg.Storage.DataDir)
	if err := pid.claim(cfg.Server.Port); err != nil {
		return err
	}
	defer pid.release()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gen, err := newGenerator(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}

	kv, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := kv.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	a, err := newApp(ctx, cfg, kv, gen)
	if err != nil {
		return err
	}
	defer a.publisher.Close()

	handler := api.NewHandler(api.Deps{
		Workflow:  a.workflow,
		Publisher: a.publisher,
		Site:      a.sites,
		Verifier:  a.verifier,
		Metrics:   a.metrics,
		Token:     apiToken,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if startWithMCP {
		stdio := server.NewStdioServer(api.NewMCPServer(api.MCPDeps{
			Workflow:  a.workflow,
			Publisher: a.publisher,
			Site:      a.sites,
		}))
		go func() {
			if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server stopped", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("spark listening",
			"addr", srv.Addr,
			"storage", cfg.Storage.Backend,
			"generator", gen.Name(),
			"strategy", a.publisher.Strategy().Name(),
			"active", a.publisher.Active(ctx).Name(),
		)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "shutting down...")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pf := pidFileIn(cfg.Storage.DataDir)
	pid, err := pf.read()
	if errors.Is(err, os.ErrNotExist) {
		printError("spark is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}
	if err != nil {
		return err
	}

	// FindProcess always succeeds on unix; Signal reports a dead process.
	proc, _ := os.FindProcess(pid)
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		printWarning("spark (PID %d) is gone; removing stale PID file", pid)
		return errors.Join(fmt.Errorf("signalling PID %d: %w", pid, err), pf.remove())
	}

	printSuccess("Sent stop signal to spark (PID %d)", pid)
	return nil
}

type healthResponse struct {
	Status          string `json:"status"`
	Strategy        string `json:"strategy"`
	PendingRechecks int    `json:"pendingRechecks"`
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	client.httpClient.Timeout = 2 * time.Second

	var health healthResponse
	err = client.fetch(ctx, http.MethodGet, "/health", nil, &health)
	running := err == nil
	switch {
	case isUnreachable(err):
		printStatus("Server", "stopped")
	case err != nil:
		printStatus("Server", "error (%v)", err)
	default:
		printStatus("Server", "running at %s", client.baseURL)
		printStatus("Strategy", "%s", health.Strategy)
		printStatus("Rechecks", "%d pending", health.PendingRechecks)
	}

	printStatus("Storage", "%s", cfg.Storage.Backend)
	printStatus("Generator", "%s", generatorLabel(cfg))

	if running {
		for _, list := range []struct{ label, path string }{
			{"Tokens", "/tokens?limit=100"},
			{"Pages", "/pages?limit=100"},
		} {
			var items []json.RawMessage
			if client.fetch(ctx, http.MethodGet, list.path, nil, &items) == nil {
				printStatus(list.label, "%s", countLabel(len(items), 100))
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func generatorLabel(cfg config.Config) string {
	switch cfg.Generator.Backend {
	case "openai":
		return "openai (" + cfg.OpenAI.Model + ")"
	case "ollama":
		return "ollama (" + cfg.Ollama.Model + ")"
	default:
		return cfg.Generator.Backend
	}
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
