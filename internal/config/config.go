package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Warehouse     WarehouseConfig
	AI            AIConfig
	Memory        MemoryConfig
	Pipeline      PipelineConfig
	Archive       ArchiveConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// WarehouseConfig describes the financial data store the pipeline queries.
// Driver selects the database/sql driver: "duckdb" or "postgres".
type WarehouseConfig struct {
	Driver           string
	DSN              string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxIdleTime  time.Duration
	ConnMaxLifetime  time.Duration
	SchemaSampleRows int
	MaxResultRows    int
}

type AIConfig struct {
	BaseURL        string
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	Temperature    float64
	TopP           float64
	MaxTokens      int
	Timeout        time.Duration
}

// MemoryConfig holds the context-memory tuning knobs. SimilarityThreshold and
// OverlapThreshold are empirical tuning choices, not derived values.
type MemoryConfig struct {
	WindowSize          int
	SemanticEnabled     bool
	SemanticMatches     int
	SimilarityThreshold float64
	OverlapThreshold    float64
	EmbeddingDimension  int
}

type PipelineConfig struct {
	MaxGenerationRetries int
	MaxRepairAttempts    int
	ResultSampleRows     int
}

type ArchiveConfig struct {
	Enabled          bool
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("LEDGERCHAT_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid LEDGERCHAT_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "LEDGERCHAT_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "LEDGERCHAT_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "LEDGERCHAT_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "LEDGERCHAT_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "LEDGERCHAT_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "LEDGERCHAT_WAREHOUSE_DRIVER", &cfg.Warehouse.Driver); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "LEDGERCHAT_WAREHOUSE_DSN", &cfg.Warehouse.DSN); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "LEDGERCHAT_WAREHOUSE_MAX_OPEN_CONNS", &cfg.Warehouse.MaxOpenConns); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "LEDGERCHAT_WAREHOUSE_MAX_IDLE_CONNS", &cfg.Warehouse.MaxIdleConns); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "LEDGERCHAT_WAREHOUSE_CONN_MAX_IDLE_TIME", &cfg.Warehouse.ConnMaxIdleTime); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "LEDGERCHAT_WAREHOUSE_CONN_MAX_LIFETIME", &cfg.Warehouse.ConnMaxLifetime); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "LEDGERCHAT_WAREHOUSE_SCHEMA_SAMPLE_ROWS", &cfg.Warehouse.SchemaSampleRows); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "LEDGERCHAT_WAREHOUSE_MAX_RESULT_ROWS", &cfg.Warehouse.MaxResultRows); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "LEDGERCHAT_AI_BASE_URL", &cfg.AI.BaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "LEDGERCHAT_AI_API_KEY", &cfg.AI.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "LEDGERCHAT_AI_CHAT_MODEL", &cfg.AI.ChatModel); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "LEDGERCHAT_AI_EMBEDDING_MODEL", &cfg.AI.EmbeddingModel); err != nil {
		return Config{}, err
	}
	if err := applyFloat(lookup, "LEDGERCHAT_AI_TEMPERATURE", &cfg.AI.Temperature); err != nil {
		return Config{}, err
	}
	if err := applyFloat(lookup, "LEDGERCHAT_AI_TOP_P", &cfg.AI.TopP); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "LEDGERCHAT_AI_MAX_TOKENS", &cfg.AI.MaxTokens); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "LEDGERCHAT_AI_TIMEOUT", &cfg.AI.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "LEDGERCHAT_MEMORY_WINDOW_SIZE", &cfg.Memory.WindowSize); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "LEDGERCHAT_MEMORY_SEMANTIC_ENABLED", &cfg.Memory.SemanticEnabled); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "LEDGERCHAT_MEMORY_SEMANTIC_MATCHES", &cfg.Memory.SemanticMatches); err != nil {
		return Config{}, err
	}
	if err := applyFloat(lookup, "LEDGERCHAT_MEMORY_SIMILARITY_THRESHOLD", &cfg.Memory.SimilarityThreshold); err != nil {
		return Config{}, err
	}
	if err := applyFloat(lookup, "LEDGERCHAT_MEMORY_OVERLAP_THRESHOLD", &cfg.Memory.OverlapThreshold); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "LEDGERCHAT_MEMORY_EMBEDDING_DIMENSION", &cfg.Memory.EmbeddingDimension); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "LEDGERCHAT_PIPELINE_MAX_GENERATION_RETRIES", &cfg.Pipeline.MaxGenerationRetries); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "LEDGERCHAT_PIPELINE_MAX_REPAIR_ATTEMPTS", &cfg.Pipeline.MaxRepairAttempts); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "LEDGERCHAT_PIPELINE_RESULT_SAMPLE_ROWS", &cfg.Pipeline.ResultSampleRows); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "LEDGERCHAT_ARCHIVE_ENABLED", &cfg.Archive.Enabled); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "LEDGERCHAT_ARCHIVE_ENDPOINT", &cfg.Archive.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "LEDGERCHAT_ARCHIVE_REGION", &cfg.Archive.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "LEDGERCHAT_ARCHIVE_BUCKET", &cfg.Archive.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "LEDGERCHAT_ARCHIVE_ACCESS_KEY", &cfg.Archive.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "LEDGERCHAT_ARCHIVE_SECRET_KEY", &cfg.Archive.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "LEDGERCHAT_ARCHIVE_USE_SSL", &cfg.Archive.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "LEDGERCHAT_ARCHIVE_PREFIX", &cfg.Archive.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "LEDGERCHAT_ARCHIVE_AUTO_CREATE_BUCKET", &cfg.Archive.AutoCreateBucket); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "LEDGERCHAT_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "LEDGERCHAT_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "LEDGERCHAT_AUTH_REQUIRED", &cfg.Auth.Required); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "LEDGERCHAT_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys); err != nil {
		return Config{}, err
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if !isValidDriver(cfg.Warehouse.Driver) {
		return Config{}, fmt.Errorf("invalid LEDGERCHAT_WAREHOUSE_DRIVER: %q", cfg.Warehouse.Driver)
	}
	if cfg.Memory.WindowSize <= 0 {
		return Config{}, fmt.Errorf("memory window size must be positive")
	}
	if cfg.Pipeline.MaxRepairAttempts <= 0 {
		return Config{}, fmt.Errorf("max repair attempts must be positive")
	}
	return cfg, nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "ledgerchat-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Warehouse: WarehouseConfig{
			Driver:           "duckdb",
			DSN:              "ledgerchat.duckdb",
			MaxOpenConns:     5,
			MaxIdleConns:     5,
			ConnMaxIdleTime:  5 * time.Minute,
			ConnMaxLifetime:  30 * time.Minute,
			SchemaSampleRows: 3,
			MaxResultRows:    1000,
		},
		AI: AIConfig{
			BaseURL:        "https://api.openai.com",
			ChatModel:      "gpt-4o",
			EmbeddingModel: "text-embedding-ada-002",
			Temperature:    0.5,
			TopP:           0.9,
			MaxTokens:      2048,
			Timeout:        60 * time.Second,
		},
		Memory: MemoryConfig{
			WindowSize:          15,
			SemanticEnabled:     true,
			SemanticMatches:     3,
			SimilarityThreshold: 0.5,
			OverlapThreshold:    0.6,
			EmbeddingDimension:  1536,
		},
		Pipeline: PipelineConfig{
			MaxGenerationRetries: 3,
			MaxRepairAttempts:    3,
			ResultSampleRows:     10,
		},
		Archive: ArchiveConfig{
			Enabled:          false,
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "ledgerchat",
			UseSSL:           false,
			AutoCreateBucket: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Memory.SemanticEnabled = false
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.Archive.UseSSL = true
		cfg.Archive.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func isValidDriver(driver string) bool {
	switch driver {
	case "duckdb", "postgres":
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
