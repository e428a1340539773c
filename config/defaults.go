package config

import (
	"fmt"
	"time"
)

// DefaultConfig 返回完整默认配置
func DefaultConfig() *Config {
	return &Config{
		Engine:    DefaultEngineConfig(),
		LLM:       DefaultLLMConfig(),
		Database:  DefaultDatabaseConfig(),
		Mongo:     DefaultMongoConfig(),
		Redis:     DefaultRedisConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultEngineConfig 返回默认引擎配置（生产级）
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultMode:          "simple",
		ChunkSize:            512, // 400-800 tokens 最佳
		ChunkOverlap:         102, // 20% overlap
		TopK:                 5,
		EmbeddingModel:       "text-embedding-3-large",
		RerankEnabled:        false,
		SimilarityThreshold:  0.3,
		MaxContextLength:     4000,
		EnableSelfReflection: true,
		EnableQualityCheck:   true,
		EnablePlanning:       true,
		EnableMultiAgent:     true,
		QualityThreshold:     0.5,
		ReflectionThreshold:  0.6,
		CacheEnabled:         false,
		CacheTTL:             10 * time.Minute,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:  "openai",
		BaseURL:   "",
		Model:     "gpt-4o-mini",
		Timeout:   30 * time.Second,
		RateLimit: 0,
		RateBurst: 1,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		DSN:             "file:ragflow.db",
		Host:            "localhost",
		Port:            5432,
		User:            "ragflow",
		Name:            "ragflow",
		SSLMode:         "disable",
		MaxOpenConns:    100,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
	}
}

// DefaultMongoConfig 返回默认 Mongo 配置
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:            "mongodb://localhost:27017",
		Database:       "ragflow",
		Collection:     "knowledge_items",
		ConnectTimeout: 10 * time.Second,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "ragflow",
		SampleRate:   1.0,
	}
}

// =============================================================================
// ✅ 配置校验
// =============================================================================

// ValidateConfig 校验配置的基本约束。
// 只校验引擎本身依赖的不变式，后端连通性在各自构造函数中检查。
func ValidateConfig(cfg *Config) error {
	e := &cfg.Engine

	if e.ChunkSize <= 0 {
		return fmt.Errorf("engine.chunk_size must be positive, got %d", e.ChunkSize)
	}
	if e.ChunkOverlap < 0 || e.ChunkOverlap >= e.ChunkSize {
		return fmt.Errorf("engine.chunk_overlap must be in [0, chunk_size), got %d", e.ChunkOverlap)
	}
	if e.TopK <= 0 {
		return fmt.Errorf("engine.top_k must be positive, got %d", e.TopK)
	}
	if e.SimilarityThreshold < 0 || e.SimilarityThreshold > 1 {
		return fmt.Errorf("engine.similarity_threshold must be in [0,1], got %f", e.SimilarityThreshold)
	}
	if e.QualityThreshold < 0 || e.QualityThreshold > 1 {
		return fmt.Errorf("engine.quality_threshold must be in [0,1], got %f", e.QualityThreshold)
	}
	if e.ReflectionThreshold < 0 || e.ReflectionThreshold > 1 {
		return fmt.Errorf("engine.reflection_threshold must be in [0,1], got %f", e.ReflectionThreshold)
	}
	if e.MaxContextLength <= 0 {
		return fmt.Errorf("engine.max_context_length must be positive, got %d", e.MaxContextLength)
	}

	switch cfg.Database.Driver {
	case "postgres", "mysql", "sqlite", "mongo", "mongodb", "":
	default:
		return fmt.Errorf("database.driver must be postgres, mysql, sqlite or mongo, got %q", cfg.Database.Driver)
	}

	return nil
}
