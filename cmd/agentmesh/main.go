// Command agentmesh runs one agent of the platform.
//
// Usage:
//
//	agentmesh facade
//	agentmesh orchestrator
//	agentmesh discovery
//	agentmesh analysis
//	agentmesh relationship
//
// Configuration comes from the environment (AGENTMESH_* variables, .env
// honored); each role has a conventional default port.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"golang.org/x/sync/errgroup"

	"github.com/thehivegroup-ai/agentmesh/pkg/a2a/client"
	"github.com/thehivegroup-ai/agentmesh/pkg/a2a/server"
	"github.com/thehivegroup-ai/agentmesh/pkg/checkpoint"
	"github.com/thehivegroup-ai/agentmesh/pkg/config"
	"github.com/thehivegroup-ai/agentmesh/pkg/executor"
	"github.com/thehivegroup-ai/agentmesh/pkg/facade"
	"github.com/thehivegroup-ai/agentmesh/pkg/llm"
	"github.com/thehivegroup-ai/agentmesh/pkg/logger"
	"github.com/thehivegroup-ai/agentmesh/pkg/orchestrator"
	"github.com/thehivegroup-ai/agentmesh/pkg/progress"
	"github.com/thehivegroup-ai/agentmesh/pkg/task"
	"github.com/thehivegroup-ai/agentmesh/pkg/worker"
)

// CLI defines the command-line interface.
type CLI struct {
	Version      VersionCmd `cmd:"" help:"Show version information."`
	Facade       WorkerCmd  `cmd:"" name:"facade" help:"Run the client-facing facade."`
	Orchestrator WorkerCmd  `cmd:"" name:"orchestrator" help:"Run the orchestrator agent."`
	Discovery    WorkerCmd  `cmd:"" name:"discovery" help:"Run the repository discovery worker."`
	Analysis     WorkerCmd  `cmd:"" name:"analysis" help:"Run the repository analysis worker."`
	Relationship WorkerCmd  `cmd:"" name:"relationship" help:"Run the relationship mapping worker."`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(*CLI) error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("agentmesh %s\n", version)
	return nil
}

// WorkerCmd runs the agent named by the selected command.
type WorkerCmd struct{}

func (c *WorkerCmd) Run(cli *CLI, kctx *kong.Context) error {
	role := config.Role(kctx.Selected().Name)
	cfg, err := config.Load(role)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	return runAgent(cfg)
}

func main() {
	cli := &CLI{}
	kctx := kong.Parse(cli,
		kong.Name("agentmesh"),
		kong.Description("Distributed multi-agent repository intelligence platform."),
		kong.UsageOnError(),
	)

	output := os.Stderr
	var closeLog func()
	if cli.LogFile != "" {
		file, closer, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			os.Exit(1)
		}
		output = file
		closeLog = closer
	}
	logger.Init(logger.ParseLevel(cli.LogLevel), output, cli.LogFormat)
	if closeLog != nil {
		defer closeLog()
	}

	if err := kctx.Run(cli); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// runAgent starts the process for its role and blocks until SIGINT or
// SIGTERM.
func runAgent(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.GetLogger().With("role", string(cfg.Role))

	switch cfg.Role {
	case config.RoleFacade:
		return runFacade(ctx, cfg, log)
	case config.RoleOrchestrator:
		return runOrchestrator(ctx, cfg, log)
	case config.RoleDiscovery, config.RoleAnalysis, config.RoleRelationship:
		return runWorker(ctx, cfg, log)
	default:
		return fmt.Errorf("unknown role %q", cfg.Role)
	}
}

// openDatabase opens the configured durable store, or returns nil when
// the process runs purely in memory.
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	if cfg.Database.Driver == "" {
		return nil, nil
	}
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return db, nil
}

// runWorker serves one of the catalog workers over the A2A transport.
func runWorker(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	catalog, err := worker.LoadCatalog(cfg.CatalogPath, log)
	if err != nil {
		return err
	}
	if cfg.CatalogPath != "" {
		if err := catalog.WatchFile(ctx, cfg.CatalogPath); err != nil {
			log.Warn("catalog watch unavailable", "path", cfg.CatalogPath, "error", err)
		}
	}

	var w worker.Worker
	switch cfg.Role {
	case config.RoleDiscovery:
		w = worker.NewDiscovery(catalog)
	case config.RoleAnalysis:
		w = worker.NewAnalysis(catalog)
	case config.RoleRelationship:
		w = worker.NewRelationship(catalog)
	}

	tasks, cleanup, err := newTaskManager(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()
	tasks.StartJanitor(ctx, cfg.TaskRetention, time.Minute)

	exec := executor.New(w, tasks, log)
	defer exec.Close()

	srv := server.New(server.Config{Addr: cfg.ListenAddr()}, w.Card(cfg.BaseURL), exec, log)
	return serveUntilDone(ctx, log, srv.Start, srv.Shutdown)
}

// newTaskManager builds the task store for a worker, durable when a
// database is configured.
func newTaskManager(cfg *config.Config, log *slog.Logger) (*task.Manager, func(), error) {
	if cfg.Database.Driver == "" {
		return task.NewManager(task.NewMemoryStore(), log), func() {}, nil
	}
	store, err := task.OpenSQLStore(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	return task.NewManager(store, log), func() { store.Close() }, nil
}

// runOrchestrator serves the orchestrator: an A2A agent whose executor
// is the LLM-driven supervision loop.
func runOrchestrator(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	provider := llm.NewOpenAIProvider(llm.OpenAIConfig{
		BaseURL:    cfg.LLM.BaseURL,
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
	})

	newClient := func(baseURL string) *client.Client {
		return client.New(baseURL,
			client.WithTimeout(cfg.Timeout),
			client.WithRetry(cfg.MaxRetries, cfg.RetryDelay),
			client.WithPool(cfg.MaxSockets, cfg.KeepAlive),
			client.WithCardCacheTTL(cfg.AgentCardCacheTTL),
			client.WithLogger(log),
		)
	}
	discovery := newClient(cfg.Workers.DiscoveryURL)
	defer discovery.Close()
	analysis := newClient(cfg.Workers.AnalysisURL)
	defer analysis.Close()
	relationship := newClient(cfg.Workers.RelationshipURL)
	defer relationship.Close()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	var checkpoints *checkpoint.Manager
	if db != nil {
		storage, err := checkpoint.NewSQLStorage(db, cfg.Database.Driver)
		if err != nil {
			return err
		}
		checkpoints = checkpoint.NewManager(storage, log)
	} else {
		checkpoints = checkpoint.NewManager(checkpoint.NewMemoryStorage(), log)
	}

	bus := progress.NewBus(log)
	orch := orchestrator.New(provider, discovery, analysis, relationship, bus, checkpoints, nil,
		orchestrator.Config{
			PollInterval: cfg.PollInterval,
			StaleAfter:   cfg.StaleAfter,
		}, log)

	if err := orch.DiscoverWorkers(ctx); err != nil {
		return err
	}

	// The orchestrator is itself an A2A agent: message/send runs a
	// query session.
	tasks, cleanup, err := newTaskManager(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()
	tasks.StartJanitor(ctx, cfg.TaskRetention, time.Minute)

	exec := executor.New(newOrchestratorWorker(orch), tasks, log)
	defer exec.Close()

	card := orchestratorCard(cfg.BaseURL)
	srv := server.New(server.Config{Addr: cfg.ListenAddr()}, card, exec, log)
	return serveUntilDone(ctx, log, srv.Start, srv.Shutdown)
}

// runFacade serves the client-facing API. The orchestration runs
// in-process so progress events reach WebSocket clients directly.
func runFacade(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	provider := llm.NewOpenAIProvider(llm.OpenAIConfig{
		BaseURL:    cfg.LLM.BaseURL,
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
	})

	newClient := func(baseURL string) *client.Client {
		return client.New(baseURL,
			client.WithTimeout(cfg.Timeout),
			client.WithRetry(cfg.MaxRetries, cfg.RetryDelay),
			client.WithPool(cfg.MaxSockets, cfg.KeepAlive),
			client.WithCardCacheTTL(cfg.AgentCardCacheTTL),
			client.WithLogger(log),
		)
	}
	discovery := newClient(cfg.Workers.DiscoveryURL)
	defer discovery.Close()
	analysis := newClient(cfg.Workers.AnalysisURL)
	defer analysis.Close()
	relationship := newClient(cfg.Workers.RelationshipURL)
	defer relationship.Close()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	var conversations facade.ConversationStore
	if db != nil {
		conversations, err = facade.NewSQLConversationStore(db, cfg.Database.Driver)
		if err != nil {
			return err
		}
	} else {
		conversations = facade.NewMemoryConversationStore()
	}

	bus := progress.NewBus(log)
	orch := orchestrator.New(provider, discovery, analysis, relationship, bus,
		checkpoint.NewManager(checkpoint.NewMemoryStorage(), log), conversations,
		orchestrator.Config{
			PollInterval: cfg.PollInterval,
			StaleAfter:   cfg.StaleAfter,
		}, log)

	if err := orch.DiscoverWorkers(ctx); err != nil {
		return err
	}

	srv := facade.New(orch, conversations, bus, log)
	return serveUntilDone(ctx, log, func() error { return srv.Start(cfg.ListenAddr()) }, srv.Shutdown)
}

// serveUntilDone runs start until ctx is canceled, then shuts down with
// a grace period.
func serveUntilDone(ctx context.Context, log *slog.Logger, start func() error, shutdown func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
