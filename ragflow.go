// Package ragflow provides a top-level convenience entry point for building
// a fully wired retrieval engine from configuration.
//
// Usage:
//
//	import "github.com/BaSui01/ragflow"
//
//	svc, err := ragflow.New(config.DefaultConfig())
//	svc, err := ragflow.New(cfg, ragflow.WithStore(myStore), ragflow.WithLogger(myLogger))
//
// New assembles the logger, LLM client, knowledge store, registrar and
// optional query cache, then hands everything to [engine.NewService].
// Collaborators can be swapped individually via options, which is also the
// way tests inject mock backends.
package ragflow

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/engine"
	"github.com/BaSui01/ragflow/internal/cache"
	"github.com/BaSui01/ragflow/internal/metrics"
	"github.com/BaSui01/ragflow/internal/telemetry"
	"github.com/BaSui01/ragflow/llm"
	"github.com/BaSui01/ragflow/pattern"
	"github.com/BaSui01/ragflow/store"
)

type options struct {
	store      store.KnowledgeStore
	client     *llm.Client
	registrar  store.Registrar
	logger     *zap.Logger
	registerer prometheus.Registerer
}

// Option overrides one collaborator assembled by [New].
type Option func(*options)

// WithStore sets a pre-built knowledge store instead of opening one
// from the database configuration.
func WithStore(s store.KnowledgeStore) Option {
	return func(o *options) { o.store = s }
}

// WithClient sets a pre-built LLM client instead of constructing an
// OpenAI-compatible one from the LLM configuration.
func WithClient(c *llm.Client) Option {
	return func(o *options) { o.client = c }
}

// WithRegistrar sets the knowledge resource registrar.
func WithRegistrar(r store.Registrar) Option {
	return func(o *options) { o.registrar = r }
}

// WithLogger sets a custom zap logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPrometheus enables Prometheus metrics on the given registerer.
func WithPrometheus(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// New builds a ready-to-use [engine.Service] from configuration.
// Backends that hold connections or exporters register themselves as
// closers on the service; call [engine.Service.Close] on shutdown.
func New(cfg *config.Config, opts ...Option) (*engine.Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = buildLogger(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
	}

	var engineOpts []engine.Option

	// 先装配遥测：引擎构造时取到的全局 tracer 才会产出真实 span
	if cfg.Telemetry.Enabled {
		providers, err := telemetry.Init(context.Background(), cfg.Telemetry, logger)
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
		engineOpts = append(engineOpts, engine.WithCloser(providers.Shutdown))
	}

	client := o.client
	if client == nil {
		client = buildClient(cfg, logger)
	}

	knowledgeStore := o.store
	if knowledgeStore == nil {
		switch cfg.Database.Driver {
		case "mongo", "mongodb":
			ms, err := store.NewMongoStore(cfg.Mongo, logger)
			if err != nil {
				return nil, fmt.Errorf("init knowledge store: %w", err)
			}
			knowledgeStore = ms
			engineOpts = append(engineOpts, engine.WithCloser(ms.Close))
		default:
			db, err := store.Open(cfg.Database)
			if err != nil {
				return nil, fmt.Errorf("open database: %w", err)
			}
			knowledgeStore, err = store.NewGormStore(db, logger)
			if err != nil {
				return nil, fmt.Errorf("init knowledge store: %w", err)
			}
		}
	}

	registrar := o.registrar
	if registrar == nil {
		registrar = store.NewLoggingRegistrar(logger)
	}

	deps := pattern.Deps{
		Store:     knowledgeStore,
		Client:    client,
		Registrar: registrar,
		Config:    cfg.Engine,
		Logger:    logger,
	}

	if cfg.Engine.CacheEnabled {
		manager, err := cache.NewManager(cache.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DefaultTTL:   cfg.Engine.CacheTTL,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init query cache: %w", err)
		}
		qc := cache.NewQueryCache(manager, cfg.Engine.CacheTTL, logger)
		engineOpts = append(engineOpts,
			engine.WithQueryCache(qc),
			engine.WithCloser(func(context.Context) error { return manager.Close() }))
	}
	if o.registerer != nil {
		collector := metrics.NewCollector("ragflow", o.registerer, logger)
		engineOpts = append(engineOpts, engine.WithCollector(collector))
	}

	return engine.NewService(deps, engineOpts...), nil
}

// buildClient 从 LLM 配置组装 OpenAI 兼容客户端，
// 按需挂上 Cohere 兼容的重排提供者。
func buildClient(cfg *config.Config, logger *zap.Logger) *llm.Client {
	provider := llm.NewOpenAIProvider(llm.OpenAIConfig{
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Model:      cfg.LLM.Model,
		EmbedModel: cfg.Engine.EmbeddingModel,
		Timeout:    cfg.LLM.Timeout,
	})

	var reranker llm.RerankProvider
	if cfg.Engine.RerankEnabled {
		reranker = llm.NewCohereReranker(llm.CohereRerankConfig{
			APIKey:  cfg.LLM.RerankAPIKey,
			BaseURL: cfg.LLM.RerankBaseURL,
			Model:   cfg.LLM.RerankModel,
			Timeout: cfg.LLM.Timeout,
		})
	}

	tokenizer := llm.NewTiktokenTokenizer(cfg.LLM.Model, logger)
	chunker := llm.NewChunker(llm.ChunkerConfig{
		Strategy:     llm.ChunkRecursive,
		ChunkSize:    cfg.Engine.ChunkSize,
		ChunkOverlap: cfg.Engine.ChunkOverlap,
	}, tokenizer, logger)

	return llm.NewClient(provider, provider, reranker, chunker, llm.ClientConfig{
		EmbedModel: cfg.Engine.EmbeddingModel,
		RateLimit:  cfg.LLM.RateLimit,
		RateBurst:  cfg.LLM.RateBurst,
	}, logger)
}

// buildLogger 从日志配置构建 zap logger。
func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	if len(cfg.OutputPaths) > 0 {
		zcfg.OutputPaths = cfg.OutputPaths
	}
	zcfg.DisableCaller = !cfg.EnableCaller
	zcfg.DisableStacktrace = !cfg.EnableStacktrace
	return zcfg.Build()
}
