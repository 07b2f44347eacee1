// Command pipelineforge-server runs the generation orchestrator, the
// registry gateway, the learning store, and the ambient HTTP entrypoint
// as one long-running process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pipelineforge/pipelineforge/internal/config"
	"github.com/pipelineforge/pipelineforge/internal/hostclient"
	"github.com/pipelineforge/pipelineforge/internal/pipeline"
	"github.com/pipelineforge/pipelineforge/internal/server"
	"github.com/pipelineforge/pipelineforge/pkg/analyzer"
	"github.com/pipelineforge/pipelineforge/pkg/committer"
	"github.com/pipelineforge/pipelineforge/pkg/fixer"
	"github.com/pipelineforge/pipelineforge/pkg/fixer/postprocess"
	"github.com/pipelineforge/pipelineforge/pkg/generator"
	"github.com/pipelineforge/pipelineforge/pkg/imageseeder"
	"github.com/pipelineforge/pipelineforge/pkg/learning"
	"github.com/pipelineforge/pipelineforge/pkg/llm"
	"github.com/pipelineforge/pipelineforge/pkg/progress"
	"github.com/pipelineforge/pipelineforge/pkg/registry"
	"github.com/pipelineforge/pipelineforge/pkg/supervisor"
	"github.com/pipelineforge/pipelineforge/pkg/templatestore"
	"github.com/pipelineforge/pipelineforge/pkg/templatestore/vectorclient"
	"github.com/pipelineforge/pipelineforge/pkg/validator"
	"github.com/pipelineforge/pipelineforge/pkg/validator/remotelint"
)

const privateRegistryVar = "BASE_REGISTRY"

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pipelineforge-server: %v\n", err)
		os.Exit(1)
	}

	logger := buildZapLogger(cfg.Logging)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("pipelineforge-server: exiting", zap.Error(err))
	}
}

func buildZapLogger(cfg config.LoggingConfig) *zap.Logger {
	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if level, err := zapcore.ParseLevel(cfg.Level); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}
	logger, err := zapCfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func buildLogrusLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

func run(cfg *config.Config, logger *zap.Logger) error {
	hosts := map[string]hostclient.Client{
		"github.com": hostclient.NewGitHubClient(cfg.Hosts.GitHub.BaseURL, cfg.Hosts.GitHub.Token),
		"gitlab.com": hostclient.NewGitLabClient(cfg.Hosts.GitLab.BaseURL, cfg.Hosts.GitLab.Token),
	}
	primaryHost := hosts["github.com"]

	analyzerComponent := analyzer.New(hosts)

	store, err := buildTemplateStore(cfg.TemplateStore)
	if err != nil {
		return fmt.Errorf("building template store: %w", err)
	}

	llmRegistry := llm.NewRegistry(cfg.LLM, buildLogrusLogger(cfg.Logging))

	gatewayOpts, err := buildGatewayOptions()
	if err != nil {
		logger.Warn("pipelineforge-server: registry lock unavailable, proceeding without it", zap.Error(err))
	}
	gateway := registry.NewGateway(registry.Config{
		Host:           cfg.Registry.URL,
		RepositoryPath: cfg.Registry.Namespace,
		Username:       cfg.Registry.Username,
		Password:       cfg.Registry.Password,
		SeedTool:       cfg.Registry.SeedTool,
		ExistsTimeout:  cfg.Registry.ExistsTimeout,
		SeedTimeout:    cfg.Registry.SeedTimeout,
		InsecureTLS:    cfg.Registry.InsecureTLS,
	}, logger, gatewayOpts...)

	var lintClient remotelint.Client
	if endpoint := os.Getenv("LINT_ENDPOINT"); endpoint != "" {
		lintClient = remotelint.NewHTTPClient(endpoint)
	}
	validatorCfg := validator.DefaultConfig()
	validatorCfg.PrivateRegistryHost = cfg.Registry.URL
	validatorComponent := validator.New(validatorCfg, gateway, lintClient, logger)

	seeder := imageseeder.New(gateway, logger)

	postprocessRules := postprocess.DefaultRules(postprocess.Config{
		PrivateRegistryVar:  privateRegistryVar,
		RepositoryPath:      cfg.Registry.Namespace,
		PublicHosts:         validatorCfg.DisallowedPublicHosts,
		ClusterHost:         cfg.Registry.URL,
		ClientHost:          cfg.Registry.ClientHost,
		NonCriticalPrefixes: []string{"lint", "scan"},
	})

	generatorComponent := generator.New(analyzerComponent, store, llmRegistry, validatorComponent, seeder, generator.Config{
		SystemPromptPath:   "config/system_prompt.txt",
		PrivateRegistryVar: privateRegistryVar,
		MaxFixAttempts:     cfg.Generator.MaxFixAttempts,
		StrictFixPolicy:    cfg.Generator.StrictFixPolicy,
		PostprocessRules:   postprocessRules,
	}, logger)

	committerComponent := committer.New(committer.DefaultConfig(), primaryHost, logger)

	progressStore := progress.New(cfg.Generator.MaxProgressEvents, 0)

	learningStore, err := buildLearningStore(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("building learning store: %w", err)
	}

	activeLLMClient, err := llmRegistry.Instance("")
	if err != nil {
		return fmt.Errorf("resolving active LLM provider: %w", err)
	}
	standaloneFixer := fixer.New(validatorComponent, activeLLMClient, cfg.LLM.Model, cfg.Generator.MaxFixAttempts, cfg.Generator.StrictFixPolicy, postprocessRules, logger)

	supervisorComponent := buildSupervisor(primaryHost, standaloneFixer, committerComponent, learningStore, progressStore, cfg.Generator, logger)

	orchestrator := pipeline.New(generatorComponent, committerComponent, supervisorComponent, logger)

	addr := withColonPrefix(cfg.Server.WebhookPort)
	metricsAddr := withColonPrefix(cfg.Server.MetricsPort)

	httpServer := server.New(server.Config{
		Addr:        addr,
		MetricsAddr: metricsAddr,
	}, orchestrator, progressStore, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return httpServer.Run(ctx)
}

func withColonPrefix(port string) string {
	if port == "" || port[0] == ':' {
		return port
	}
	return ":" + port
}

// buildSupervisor builds a *supervisor.Supervisor, passing a true nil
// learningClient interface (not a nil *learning.Store wrapped in one) when
// no database is configured, since a non-nil interface holding a nil
// pointer would make the supervisor's "learning == nil" skip never fire.
func buildSupervisor(host hostclient.Client, f *fixer.Fixer, c *committer.Committer, learningStore *learning.Store, progressStore *progress.Store, genCfg config.GeneratorConfig, logger *zap.Logger) *supervisor.Supervisor {
	supCfg := supervisor.Config{
		PollInterval:     genCfg.MonitorInterval,
		DiscoveryTimeout: genCfg.DiscoveryTimeout,
		MaxAttempts:      genCfg.MaxFixAttempts,
	}
	if learningStore == nil {
		return supervisor.New(host, f, c, nil, progressStore, supCfg, logger)
	}
	return supervisor.New(host, f, c, learningStore, progressStore, supCfg, logger)
}

func buildTemplateStore(cfg config.TemplateStoreConfig) (*templatestore.Store, error) {
	var client vectorclient.Client
	switch cfg.Backend {
	case "http":
		client = vectorclient.NewHTTPClient(vectorclient.Config{BaseURL: cfg.BaseURL, Timeout: cfg.Timeout})
	case "memory", "":
		client = vectorclient.NewMemory()
	default:
		return nil, fmt.Errorf("unsupported template store backend: %s", cfg.Backend)
	}
	return templatestore.New(client), nil
}

func buildGatewayOptions() ([]registry.Option, error) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	return []registry.Option{registry.WithRedisLock(redis.NewClient(opts))}, nil
}

func buildLearningStore(cfg config.DatabaseConfig, logger *zap.Logger) (*learning.Store, error) {
	if cfg.DSN == "" {
		logger.Warn("pipelineforge-server: no database DSN configured, learning store disabled")
		return nil, nil
	}
	db, err := sqlx.Connect("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	if err := learning.Migrate(db.DB); err != nil {
		return nil, fmt.Errorf("migrating: %w", err)
	}
	return learning.New(db, logger), nil
}
