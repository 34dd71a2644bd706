package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the search service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains process-wide settings
type GeneralConfig struct {
	LogLevel          string `mapstructure:"log_level"`
	SimilarityMeasure string `mapstructure:"similarity_measure"`
}

func (g GeneralConfig) Validate() error {
	switch g.SimilarityMeasure {
	case "cosine", "dot":
		return nil
	default:
		return fmt.Errorf("general.similarity_measure must be cosine or dot, got %q", g.SimilarityMeasure)
	}
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address        string   `mapstructure:"address"`
	JWTSecret      string   `mapstructure:"jwt_secret"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LLMConfig selects the chat and embedding backend
type LLMConfig struct {
	Provider       string        `mapstructure:"provider"`
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	ChatModel      string        `mapstructure:"chat_model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	Temperature    float64       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

func (l LLMConfig) Validate() error {
	switch l.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("llm.provider must be openai or gemini, got %q", l.Provider)
	}
	if strings.TrimSpace(l.ChatModel) == "" {
		return fmt.Errorf("llm.chat_model required")
	}
	if strings.TrimSpace(l.EmbeddingModel) == "" {
		return fmt.Errorf("llm.embedding_model required")
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0,2]")
	}
	return nil
}

// SearchConfig configures the web search backend
type SearchConfig struct {
	Provider      string        `mapstructure:"provider"`
	SearxNGURL    string        `mapstructure:"searxng_url"`
	BraveAPIKey   string        `mapstructure:"brave_api_key"`
	SerperAPIKey  string        `mapstructure:"serper_api_key"`
	Language      string        `mapstructure:"language"`
	MaxResults    int           `mapstructure:"max_results"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
}

func (s SearchConfig) Validate() error {
	switch s.Provider {
	case "searxng":
		if strings.TrimSpace(s.SearxNGURL) == "" {
			return fmt.Errorf("search.searxng_url required for searxng provider")
		}
	case "brave":
		if strings.TrimSpace(s.BraveAPIKey) == "" {
			return fmt.Errorf("search.brave_api_key required for brave provider")
		}
	case "serper":
		if strings.TrimSpace(s.SerperAPIKey) == "" {
			return fmt.Errorf("search.serper_api_key required for serper provider")
		}
	default:
		return fmt.Errorf("unsupported search.provider %q", s.Provider)
	}
	return nil
}

// FetchConfig configures page fetching and chunking
type FetchConfig struct {
	Renderer     string        `mapstructure:"renderer"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxBytes     int64         `mapstructure:"max_bytes"`
	Concurrency  int           `mapstructure:"concurrency"`
	ChunkSize    int           `mapstructure:"chunk_size"`
	ChunkOverlap int           `mapstructure:"chunk_overlap"`
	UserAgent    string        `mapstructure:"user_agent"`
}

func (f FetchConfig) Normalize() FetchConfig {
	if f.Concurrency <= 0 {
		f.Concurrency = 8
	}
	if f.ChunkSize <= 0 {
		f.ChunkSize = 1000
	}
	if f.ChunkOverlap < 0 || f.ChunkOverlap >= f.ChunkSize {
		f.ChunkOverlap = f.ChunkSize / 5
	}
	return f
}

func (f FetchConfig) Validate() error {
	switch f.Renderer {
	case "http", "chromedp":
		return nil
	default:
		return fmt.Errorf("fetch.renderer must be http or chromedp, got %q", f.Renderer)
	}
}

// PipelineConfig holds the ranking and fan-out knobs of a run
type PipelineConfig struct {
	SearchTopK            int     `mapstructure:"search_top_k"`
	SearchSimilarityFloor float64 `mapstructure:"search_similarity_floor"`
	FetchSimilarityFloor  float64 `mapstructure:"fetch_similarity_floor"`
	GroupCap              int     `mapstructure:"group_cap"`
	ExtractConcurrency    int     `mapstructure:"extract_concurrency"`
	EventBuffer           int     `mapstructure:"event_buffer"`
}

func (p PipelineConfig) Normalize() PipelineConfig {
	if p.GroupCap <= 0 {
		p.GroupCap = 10
	}
	if p.ExtractConcurrency <= 0 {
		p.ExtractConcurrency = 8
	}
	if p.EventBuffer <= 0 {
		p.EventBuffer = 64
	}
	return p
}

// StorageConfig contains storage backends
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	// EmbeddingCacheSize bounds the in-process vector LRU shared by all runs.
	EmbeddingCacheSize int `mapstructure:"embedding_cache_size"`
}

// RedisConfig contains Redis connection settings. Empty host disables the embedding cache.
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	EmbeddingTTL time.Duration `mapstructure:"embedding_ttl"`
}

func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

func (r RedisConfig) Addr() string {
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return r.Host + ":" + port
}

// PostgresConfig contains Postgres connection settings. Empty url and host select in-memory history.
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.URL) != "" || strings.TrimSpace(p.Host) != ""
}

func (p PostgresConfig) Validate() error {
	if !p.Enabled() || strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN returns the connection string, building it from parts when url is empty.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// TelemetryConfig configures tracing export
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && strings.TrimSpace(t.ServiceName) == "" {
		return fmt.Errorf("telemetry.service_name required when telemetry is enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.similarity_measure", "cosine")
	v.SetDefault("server.address", ":3001")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.chat_model", "gpt-4o-mini")
	v.SetDefault("llm.embedding_model", "text-embedding-3-small")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 8192)
	v.SetDefault("llm.timeout", 120*time.Second)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("search.provider", "searxng")
	v.SetDefault("search.searxng_url", "http://localhost:8080")
	v.SetDefault("search.max_results", 10)
	v.SetDefault("search.timeout", 15*time.Second)
	v.SetDefault("search.rate_per_second", 5.0)
	v.SetDefault("fetch.renderer", "http")
	v.SetDefault("fetch.timeout", 20*time.Second)
	v.SetDefault("fetch.max_bytes", 5<<20)
	v.SetDefault("fetch.concurrency", 8)
	v.SetDefault("fetch.chunk_size", 1000)
	v.SetDefault("fetch.chunk_overlap", 200)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (compatible; mindsearch/1.0)")
	v.SetDefault("pipeline.search_top_k", 5)
	v.SetDefault("pipeline.search_similarity_floor", 0.5)
	v.SetDefault("pipeline.fetch_similarity_floor", 0.5)
	v.SetDefault("pipeline.group_cap", 10)
	v.SetDefault("pipeline.extract_concurrency", 8)
	v.SetDefault("pipeline.event_buffer", 64)
	v.SetDefault("storage.redis.embedding_ttl", 24*time.Hour)
	v.SetDefault("storage.embedding_cache_size", 4096)
	v.SetDefault("telemetry.service_name", "mindsearch")
}

// Load reads configuration from path (or the default search paths when empty),
// applies MINDSEARCH_* environment overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)
		v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("MINDSEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// no file found on the search path: run on defaults and environment
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Fetch = cfg.Fetch.Normalize()
	cfg.Pipeline = cfg.Pipeline.Normalize()

	validators := []func() error{
		cfg.General.Validate,
		cfg.LLM.Validate,
		cfg.Search.Validate,
		cfg.Fetch.Validate,
		cfg.Storage.Postgres.Validate,
		cfg.Telemetry.Validate,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// LoadConfig loads config from file and panics on failure
func LoadConfig(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	return cfg
}
