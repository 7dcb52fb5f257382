package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coderpwh1024/multi-agent-system/internal/agent/domain"
	"github.com/coderpwh1024/multi-agent-system/internal/agent/ports"
	"github.com/coderpwh1024/multi-agent-system/internal/audit"
	"github.com/coderpwh1024/multi-agent-system/internal/config"
	"github.com/coderpwh1024/multi-agent-system/internal/llm"
	"github.com/coderpwh1024/multi-agent-system/internal/logging"
	"github.com/coderpwh1024/multi-agent-system/internal/observability"
	"github.com/coderpwh1024/multi-agent-system/internal/parser"
	serverApp "github.com/coderpwh1024/multi-agent-system/internal/server/app"
	serverHTTP "github.com/coderpwh1024/multi-agent-system/internal/server/http"
	"github.com/coderpwh1024/multi-agent-system/internal/statestore"
	"github.com/coderpwh1024/multi-agent-system/internal/toolregistry"
	"github.com/coderpwh1024/multi-agent-system/internal/tools/builtin"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "agentd",
	Short: "agentd runs autonomous agent tasks over HTTP with live step streaming",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./agentd.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	observability.SetDefault(observability.NewLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	}))
	logger := logging.NewComponentLogger("Main")
	logger.Info("starting agentd: addr=%s model=%s maxConcurrent=%d",
		cfg.Server.Addr(), cfg.LLM.Model, cfg.Agent.MaxConcurrentAgents)

	metrics, err := observability.NewMetricsCollector(observability.MetricsConfig{
		Enabled: cfg.Metrics.Enabled,
	})
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	store, err := buildStateStore(cfg.Store)
	if err != nil {
		return err
	}

	var auditStore *audit.Store
	var auditSink domain.AuditSink
	var auditDB *sql.DB
	if cfg.Audit.Enabled {
		auditStore, err = audit.Open(cfg.Audit.Path)
		if err != nil {
			return fmt.Errorf("open audit store: %w", err)
		}
		defer func() { _ = auditStore.Close() }()
		auditSink = auditStore
		auditDB = auditStore.DB()
	}

	registry, err := buildRegistry(auditDB)
	if err != nil {
		return fmt.Errorf("build tool registry: %w", err)
	}

	client := llm.NewOpenAIClient(cfg.LLM.Model, llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Timeout: cfg.LLM.Timeout,
	})

	engine := domain.NewEngine(domain.EngineConfig{
		LLM:           client,
		Parser:        parser.New(),
		Registry:      registry,
		Store:         store,
		Audit:         auditSink,
		Metrics:       metrics,
		Logger:        logging.NewComponentLogger("Engine"),
		MaxIterations: cfg.Agent.MaxIterations,
		Temperature:   cfg.Agent.Temperature,
		MaxTokens:     cfg.Agent.MaxTokens,
	})

	coordinator := serverApp.NewCoordinator(engine, store, serverApp.CoordinatorConfig{
		TaskTimeout:         cfg.Agent.TaskTimeout,
		MaxConcurrentAgents: cfg.Agent.MaxConcurrentAgents,
	})

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = metrics.Handler()
	}
	srv := serverHTTP.NewServer(coordinator, metricsHandler, serverHTTP.ServerConfig{
		Addr:            cfg.Server.Addr(),
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func buildStateStore(cfg config.StoreConfig) (domain.StateStore, error) {
	switch cfg.Backend {
	case "file":
		return statestore.NewFileStore(cfg.Dir)
	default:
		return statestore.NewMemoryStore(), nil
	}
}

// buildRegistry assembles the builtin tool set. The search and HTTP tools are
// wrapped with a result cache; the database tool shares the audit database
// when one is open.
func buildRegistry(db *sql.DB) (*toolregistry.Registry, error) {
	cacheConfig := toolregistry.CacheConfig{MaxSize: 256, TTL: 5 * time.Minute}

	tools := []ports.Tool{
		toolregistry.Cached(builtin.NewSearch(), cacheConfig),
		builtin.NewCache(1024),
		toolregistry.Cached(builtin.NewHTTPRequest(), cacheConfig),
		builtin.NewCalculator(),
		builtin.NewTextAnalysis(),
	}
	if db != nil {
		tools = append(tools, builtin.NewDatabaseQuery(db))
	}
	return toolregistry.New(tools...)
}
