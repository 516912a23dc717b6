// Command server runs the DataGem chat backend.
//
// Configuration is read from a YAML file (-config, DATAGEM_CONFIG,
// ./config.yaml or /etc/datagem/config.yaml) and overridden by
// environment variables:
//
//	GEMINI_API_KEYS     - Comma separated upstream API keys, in rotation order
//	DATAGEM_API_KEYS    - Same as GEMINI_API_KEYS, takes precedence
//	DATAGEM_BACKEND_URL - OpenAI-compatible backend (default: Gemini)
//	DATAGEM_MODEL       - Model name (default: gemini-2.5-flash)
//	DATAGEM_PORT        - Listen port (default: 8000)
//	DATABASE_URL        - sqlite:///./datagem.db (default), postgres://..., or memory
//	DATAGEM_SANDBOX     - Sandbox type: local, remote or kubernetes (default: local)
//	DATAGEM_SANDBOX_URL - sandbox-server URL for the remote sandbox
//	DATAGEM_SEARCH_URL  - SearXNG URL for google_search (default: placeholder results)
//	DATAGEM_MCP         - Serve the tool catalog over MCP at /mcp (default: false)
//	DATAGEM_DEBUG       - Debug categories, e.g. engine,sandbox or all
//	DATAGEM_LOG_LEVEL   - DEBUG, INFO, WARN, ERROR or TRACE (default: INFO)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	"sigs.k8s.io/controller-runtime/pkg/client"
	k8sconfig "sigs.k8s.io/controller-runtime/pkg/client/config"

	"github.com/rhuss/datagem/pkg/api"
	"github.com/rhuss/datagem/pkg/config"
	"github.com/rhuss/datagem/pkg/credential"
	"github.com/rhuss/datagem/pkg/debug"
	"github.com/rhuss/datagem/pkg/engine"
	"github.com/rhuss/datagem/pkg/observability"
	"github.com/rhuss/datagem/pkg/provider/gemini"
	"github.com/rhuss/datagem/pkg/sandbox"
	"github.com/rhuss/datagem/pkg/sandbox/kubernetes"
	"github.com/rhuss/datagem/pkg/sandbox/remote"
	"github.com/rhuss/datagem/pkg/storage"
	"github.com/rhuss/datagem/pkg/storage/memory"
	"github.com/rhuss/datagem/pkg/storage/postgres"
	"github.com/rhuss/datagem/pkg/storage/sqlite"
	"github.com/rhuss/datagem/pkg/tools"
	"github.com/rhuss/datagem/pkg/tools/builtins/websearch"
	transporthttp "github.com/rhuss/datagem/pkg/transport/http"
	mcpserver "github.com/rhuss/datagem/pkg/transport/mcp"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	debug.Init(debug.Options{})

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prov, err := gemini.New(gemini.Config{
		BaseURL: cfg.Engine.BackendURL,
		Timeout: cfg.Engine.Timeout,
	})
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}
	defer prov.Close()

	pool, err := credential.New(cfg.Engine.APIKeys)
	if err != nil {
		return err
	}

	runner, err := newRunner(cfg.Sandbox)
	if err != nil {
		return fmt.Errorf("creating sandbox: %w", err)
	}

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	var extra []tools.Provider
	if cfg.Search.Enabled {
		search, err := websearch.New(websearch.Config{
			Backend:    cfg.Search.Backend,
			URL:        cfg.Search.URL,
			MaxResults: cfg.Search.MaxResults,
		})
		if err != nil {
			return fmt.Errorf("creating search tool: %w", err)
		}
		extra = append(extra, search)
	}

	eng, err := engine.New(prov, pool, runner, store, engine.Config{
		Model:           cfg.Engine.Model,
		SystemPrompt:    cfg.Engine.SystemPrompt,
		Temperature:     cfg.Engine.Temperature,
		MaxOutputTokens: cfg.Engine.MaxOutputTokens,
		MaxToolCalls:    cfg.Engine.MaxToolCalls,
		QuotaRetries:    quotaRetries(cfg.Engine.QuotaRetries),
		HistoryLimit:    cfg.Engine.HistoryLimit,
		SandboxTimeout:  cfg.Sandbox.Timeout,
		Tools:           extra,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	backends := transporthttp.Backends{
		Pool:    pool,
		Store:   store,
		Catalog: eng.Tools,
	}
	if cfg.Observability.Metrics.Enabled {
		backends.Metrics = observability.Handler()
	}
	if cfg.MCP.Enabled {
		backends.MCP = mcpserver.NewHandler(mcpserver.NewServer(eng.Registry(nil), version))
	}

	srv := transporthttp.NewServer(eng, backends,
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodySize),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithValidation(api.ValidationConfig{
			MaxMessageSize: api.DefaultValidationConfig().MaxMessageSize,
			MaxDatasetRows: cfg.Server.MaxDatasetRows,
		}),
	)

	slog.Info("datagem starting",
		"version", version,
		"port", cfg.Server.Port,
		"model", cfg.Engine.Model,
		"keys", pool.Len(),
		"sandbox", cfg.Sandbox.Type,
		"storage", cfg.Storage.Type,
		"mcp", cfg.MCP.Enabled,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		// Fail fast if the store is unreachable at startup.
		if err := store.HealthCheck(gctx); err != nil {
			return fmt.Errorf("store health check: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// quotaRetries maps the configured retry count to engine.Config, where
// zero selects the default and a negative value disables retries.
func quotaRetries(n int) int {
	if n == 0 {
		return -1
	}
	return n
}

// newRunner builds the sandbox runner selected by cfg.Type.
func newRunner(cfg config.SandboxConfig) (sandbox.Runner, error) {
	switch cfg.Type {
	case "remote":
		return remote.NewClient(remote.StaticAcquirer{URL: cfg.RemoteURL}, cfg.Timeout), nil
	case "kubernetes":
		restCfg, err := k8sconfig.GetConfig()
		if err != nil {
			return nil, fmt.Errorf("loading kubeconfig: %w", err)
		}
		scheme, err := kubernetes.NewScheme()
		if err != nil {
			return nil, err
		}
		c, err := client.New(restCfg, client.Options{Scheme: scheme})
		if err != nil {
			return nil, fmt.Errorf("creating kubernetes client: %w", err)
		}
		acq, err := kubernetes.NewClaimAcquirer(c, kubernetes.Config{
			Template:     cfg.Kubernetes.Template,
			Namespace:    cfg.Kubernetes.Namespace,
			ReadyTimeout: cfg.Kubernetes.ReadyTimeout,
			Port:         cfg.Kubernetes.Port,
		})
		if err != nil {
			return nil, err
		}
		return remote.NewClient(acq, cfg.Timeout), nil
	default:
		return sandbox.New(sandbox.Config{
			Interpreter: cfg.Interpreter,
			Timeout:     cfg.Timeout,
			Limits: sandbox.Limits{
				CPUSeconds:     cfg.CPUSeconds,
				MemoryMB:       cfg.MemoryMB,
				IsolateNetwork: cfg.IsolateNetwork,
				MaxOutputBytes: cfg.MaxOutputBytes,
			},
		}), nil
	}
}

// openStore opens the chat history store selected by cfg.Type.
func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case storage.BackendMemory:
		slog.Info("storage enabled", "type", "memory", "max_size", cfg.MaxSize)
		return memory.New(cfg.MaxSize), nil
	case storage.BackendPostgres:
		slog.Info("storage enabled", "type", "postgres")
		return postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
	default:
		slog.Info("storage enabled", "type", "sqlite", "path", cfg.SQLite.Path)
		return sqlite.Open(ctx, cfg.SQLite.Path)
	}
}
