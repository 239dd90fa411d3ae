package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"
)

const (
	ProbeErrorFail   = "fail"
	ProbeErrorReload = "reload"
	ProbeErrorSkip   = "skip"
)

type Config struct {
	Port           int               `json:"port"`
	LogConfig      logger.LogConfig  `json:"log_config"`
	Database       DatabaseConfig    `json:"database"`
	VectorStore    VectorStoreConfig `json:"vector_store"`
	Catalog        CatalogConfig     `json:"catalog"`
	AI             AIConfig          `json:"ai"`
	Chunker        ChunkerConfig     `json:"chunker"`
	Corpus         CorpusConfig      `json:"corpus"`
	Bootstrap      BootstrapConfig   `json:"bootstrap"`
	EmbedCache     EmbedCacheConfig  `json:"embed_cache"`
	CORSAllowlist  []string          `json:"cors_allowlist"`
	UploadMaxBytes int64             `json:"upload_max_bytes"`
	RateLimit      RateLimitConfig   `json:"rate_limit"`
}

// RateLimitConfig spaces out generation calls per client. Zero disables it.
type RateLimitConfig struct {
	ChatWindowMs int `json:"chat_window_ms"`
}

// DatabaseConfig points at the optional postgres instance used by the
// pgvector store, the postgres catalog and the embedding cache.
type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

func (c DatabaseConfig) Enabled() bool {
	return c.DSN != "" || c.Host != ""
}

type VectorStoreConfig struct {
	Type      string      `json:"type"`
	TableName string      `json:"table_name"`
	Dimension int         `json:"dimension"`
	Data      interface{} `json:"data"`
}

type CatalogConfig struct {
	Type string `json:"type"`
}

type ModelConfig struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type AIConfig struct {
	Generators []ModelConfig `json:"generators"`
	Embedders  []ModelConfig `json:"embedders"`
	Timeout    int           `json:"timeout"`
	BatchSize  int           `json:"batch_size"`
}

type ChunkerConfig struct {
	ChunkSize    int `json:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap"`
}

type CorpusConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type BootstrapConfig struct {
	LoadOnStart  bool   `json:"load_on_start"`
	Cron         string `json:"cron"`
	OnProbeError string `json:"on_probe_error"`
}

type EmbedCacheConfig struct {
	LRUSize     int    `json:"lru_size"`
	LRUTTL      int    `json:"lru_ttl"`
	DB          bool   `json:"db"`
	MaxAgeDays  int    `json:"max_age_days"`
	CleanupCron string `json:"cleanup_cron"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyEnv(&cfg)
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) normalize() error {
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.UploadMaxBytes <= 0 {
		cfg.UploadMaxBytes = 10 * 1024 * 1024
	}
	cfg.VectorStore.Type = strings.ToLower(strings.TrimSpace(cfg.VectorStore.Type))
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "embedded"
	}
	if cfg.VectorStore.TableName == "" {
		cfg.VectorStore.TableName = "rag_documents"
	}
	if cfg.VectorStore.Dimension <= 0 {
		cfg.VectorStore.Dimension = 1536
	}
	if cfg.VectorStore.Type == "pgvector" && !cfg.Database.Enabled() {
		return fmt.Errorf("database is required for pgvector store")
	}
	if cfg.Catalog.Type == "" {
		cfg.Catalog.Type = "memory"
	}
	switch cfg.Catalog.Type {
	case "memory":
	case "postgres":
		if !cfg.Database.Enabled() {
			return fmt.Errorf("database is required for postgres catalog")
		}
	default:
		return fmt.Errorf("catalog.type must be memory or postgres")
	}
	if len(cfg.AI.Embedders) == 0 {
		return fmt.Errorf("ai.embedders is required")
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 60
	}
	if cfg.AI.BatchSize <= 0 {
		cfg.AI.BatchSize = 64
	}
	if cfg.Chunker.ChunkSize <= 0 {
		cfg.Chunker.ChunkSize = 1000
		if cfg.Chunker.ChunkOverlap == 0 {
			cfg.Chunker.ChunkOverlap = 100
		}
	}
	if cfg.Chunker.ChunkOverlap < 0 || cfg.Chunker.ChunkOverlap >= cfg.Chunker.ChunkSize {
		return fmt.Errorf("chunker.chunk_overlap must be in [0, chunk_size)")
	}
	if cfg.Corpus.Type == "" {
		cfg.Corpus.Type = "local"
	}
	switch cfg.Bootstrap.OnProbeError {
	case "":
		cfg.Bootstrap.OnProbeError = ProbeErrorFail
	case ProbeErrorFail, ProbeErrorReload, ProbeErrorSkip:
	default:
		return fmt.Errorf("bootstrap.on_probe_error must be fail, reload or skip")
	}
	if cfg.EmbedCache.DB && !cfg.Database.Enabled() {
		return fmt.Errorf("database is required for embed_cache.db")
	}
	if cfg.EmbedCache.MaxAgeDays <= 0 {
		cfg.EmbedCache.MaxAgeDays = 30
	}
	if cfg.EmbedCache.CleanupCron == "" {
		cfg.EmbedCache.CleanupCron = "0 3 * * *"
	}
	if cfg.RateLimit.ChatWindowMs < 0 {
		cfg.RateLimit.ChatWindowMs = 0
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.VectorStore.Type = strings.ToLower(strings.TrimSpace(cfg.VectorStore.Type))
	cfg.Corpus.Type = strings.ToLower(strings.TrimSpace(cfg.Corpus.Type))
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("AI_API_KEY"); v != "" {
		for i := range cfg.AI.Generators {
			cfg.AI.Generators[i].Data = withDefault(cfg.AI.Generators[i].Data, "api_key", v)
		}
		for i := range cfg.AI.Embedders {
			cfg.AI.Embedders[i].Data = withDefault(cfg.AI.Embedders[i].Data, "api_key", v)
		}
	}
	if v := os.Getenv("MILVUS_API_KEY"); v != "" && cfg.VectorStore.Type == "milvus" {
		cfg.VectorStore.Data = withDefault(cfg.VectorStore.Data, "api_key", v)
	}
	if cfg.Corpus.Type == "s3" {
		if v := os.Getenv("S3_SECRET_ID"); v != "" {
			cfg.Corpus.Data = withDefault(cfg.Corpus.Data, "secret_id", v)
		}
		if v := os.Getenv("S3_SECRET_KEY"); v != "" {
			cfg.Corpus.Data = withDefault(cfg.Corpus.Data, "secret_key", v)
		}
	}
}

// withDefault sets key on a JSON object section unless the file already
// provides a non-empty value.
func withDefault(data interface{}, key, value string) interface{} {
	m, ok := data.(map[string]interface{})
	if !ok || m == nil {
		m = map[string]interface{}{}
	}
	if cur, ok := m[key].(string); ok && strings.TrimSpace(cur) != "" {
		return m
	}
	m[key] = value
	return m
}
