package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kubesage/kubesage/internal/agent"
	"github.com/kubesage/kubesage/internal/audit"
	"github.com/kubesage/kubesage/internal/config"
	"github.com/kubesage/kubesage/internal/kube"
	"github.com/kubesage/kubesage/internal/llm"
	"github.com/kubesage/kubesage/internal/memory"
	"github.com/kubesage/kubesage/internal/session"
	"github.com/kubesage/kubesage/internal/sweeper"
	"github.com/kubesage/kubesage/internal/telemetry"
	"github.com/kubesage/kubesage/internal/tools"
)

// app wires the full service graph: cluster access, tool dispatch, the
// model client, sessions, and telemetry.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	provider   *kube.KubeconfigProvider
	dispatcher *kube.Dispatcher
	registry   *tools.Registry
	conv       *agent.Conversation
	metrics    *telemetry.Metrics
	auditor    audit.Emitter
	sweeper    *sweeper.Sweeper

	pgStore   *session.PostgresStore
	fileAudit *audit.FileEmitter
	s3Audit   *audit.S3Emitter
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return telemetry.NewLogger(os.Stderr, level)
}

// newApp builds the service graph from configuration. kubeconfigPath
// overrides the configured upload path when non-empty, for commands
// that read an existing kubeconfig instead of accepting uploads.
func newApp(ctx context.Context, kubeconfigPath string) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  newLogger(),
		metrics: telemetry.NewMetrics(),
	}

	path := cfg.KubeconfigPath()
	if kubeconfigPath != "" {
		path = kubeconfigPath
	}
	a.provider = kube.NewKubeconfigProvider(path)

	mapping, err := kube.LoadMapping()
	if err != nil {
		return nil, fmt.Errorf("load resource mapping: %w", err)
	}
	a.dispatcher, err = kube.NewDispatcher(mapping, a.provider, kube.WithDispatcherLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("build dispatcher: %w", err)
	}

	a.registry = tools.NewRegistry()
	tools.RegisterKubernetesQuery(a.registry, a.dispatcher)

	if err := a.buildAudit(ctx); err != nil {
		return nil, err
	}

	sessions, err := a.buildSessions(ctx)
	if err != nil {
		return nil, err
	}

	client, model := llm.NewClientForModel(cfg.Agent.Model)
	ag := agent.New(client, a.registry, agent.Config{
		Model:       model,
		MaxRounds:   cfg.Agent.MaxRounds,
		MaxTokens:   cfg.Agent.MaxTokens,
		TokenBudget: cfg.Agent.TokenBudget,
		Temperature: cfg.Agent.Temperature,
	},
		agent.WithLogger(a.logger),
		agent.WithMetrics(a.metrics),
		agent.WithAuditEmitter(a.auditor),
	)
	a.conv = agent.NewConversation(ag, sessions)

	return a, nil
}

func (a *app) buildAudit(ctx context.Context) error {
	var emitters audit.MultiEmitter

	if a.cfg.Audit.FilePath != "" {
		fe, err := audit.NewFileEmitter(a.cfg.Audit.FilePath, a.logger)
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		a.fileAudit = fe
		emitters = append(emitters, fe)
	}

	if a.cfg.Audit.S3Bucket != "" {
		client, err := audit.NewS3Client(ctx)
		if err != nil {
			return fmt.Errorf("build s3 audit client: %w", err)
		}
		a.s3Audit = audit.NewS3Emitter(client, a.cfg.Audit.S3Bucket, a.cfg.Audit.S3Prefix, a.cfg.Audit.BatchSize, a.logger)
		emitters = append(emitters, a.s3Audit)
	}

	if len(emitters) == 0 {
		a.auditor = audit.NoopEmitter{}
	} else {
		a.auditor = emitters
	}
	return nil
}

func (a *app) buildSessions(ctx context.Context) (*session.Manager, error) {
	switch a.cfg.Session.Store {
	case "postgres":
		pg, err := session.NewPostgresStore(ctx, a.cfg.PostgresDSN())
		if err != nil {
			return nil, err
		}
		a.pgStore = pg
		if a.cfg.Memory.Strategy != string(memory.StrategyFull) {
			a.logger.Warn("postgres sessions keep full history; memory strategy ignored",
				"strategy", a.cfg.Memory.Strategy)
		}
		mgr := session.NewManager(pg, pg)
		sw, err := sweeper.New("@every 10m", sweeper.PostgresExpirer{Store: pg, Expiry: time.Duration(a.cfg.Session.Expiry)}, mgr, a.logger)
		if err != nil {
			return nil, err
		}
		a.sweeper = sw
		return mgr, nil

	default:
		store := session.NewMemoryStore(time.Duration(a.cfg.Session.Expiry))
		mem := memory.ForStrategy(memory.Strategy(a.cfg.Memory.Strategy), a.cfg.Memory.MaxMessages)
		mgr := session.NewManager(store, mem)
		sw, err := sweeper.New("@every 10m", sweeper.MemoryExpirer{Store: store}, mgr, a.logger)
		if err != nil {
			return nil, err
		}
		a.sweeper = sw
		return mgr, nil
	}
}

// Close flushes audit sinks and releases connections.
func (a *app) Close(ctx context.Context) {
	if a.sweeper != nil {
		a.sweeper.Stop()
	}
	if a.s3Audit != nil {
		a.s3Audit.Flush(ctx)
	}
	if a.fileAudit != nil {
		_ = a.fileAudit.Close()
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
}
