package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig controls where repositories and snapshots live
type StorageConfig struct {
	RootDir     string `yaml:"root_dir"`
	Backend     string `yaml:"backend"` // file | milvus
	SizeLimitMB int64  `yaml:"size_limit_mb"`
}

// EmbedderConfig selects and tunes the embedding backend
type EmbedderConfig struct {
	Type       string `yaml:"type"` // openai | ollama
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
	// Workers bounds concurrent single-item embedding calls
	Workers int `yaml:"workers"`
}

// GeneratorConfig holds the default provider and sampling parameters
type GeneratorConfig struct {
	Provider    string  `yaml:"provider"`
	Temperature float32 `yaml:"temperature"`
	TopP        float32 `yaml:"top_p"`
}

// GoogleConfig holds Google Cloud related configuration
type GoogleConfig struct {
	APIKey          string `yaml:"api_key"`
	CredentialsFile string `yaml:"credentials_file"`
	ProjectID       string `yaml:"project_id"`
	Location        string `yaml:"location"`
	Model           string `yaml:"model"`
}

// OpenAIConfig is shared by OpenAI and OpenRouter, both speak the same protocol
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// OllamaConfig holds the local model server settings
type OllamaConfig struct {
	Host           string `yaml:"host"`
	EmbeddingModel string `yaml:"embedding_model"`
	Model          string `yaml:"model"`
	NumCtx         int    `yaml:"num_ctx"`
}

// BedrockConfig holds AWS Bedrock settings; credentials come from the AWS default chain
type BedrockConfig struct {
	Region string `yaml:"region"`
	Model  string `yaml:"model"`
}

// RetrieverConfig holds retriever configuration
type RetrieverConfig struct {
	TopK int `yaml:"top_k"`
}

// MilvusConfig holds the optional remote snapshot store settings
type MilvusConfig struct {
	Address string `yaml:"address"`
}

// RedisConfig is used for distributed build locks and API rate limiting
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

// LockConfig selects the per-repository build lock
type LockConfig struct {
	Backend string `yaml:"backend"` // local | redis
}

// RateLimitConfig bounds requests per client per minute
type RateLimitConfig struct {
	Backend           string `yaml:"backend"` // memory | redis
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// TextSplitterConfig holds text splitter configuration
type TextSplitterConfig struct {
	SplitBy      string `yaml:"split_by"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
}

// FileFiltersConfig holds file filters configuration
type FileFiltersConfig struct {
	ExcludedDirs  []string `yaml:"excluded_dirs"`
	ExcludedFiles []string `yaml:"excluded_files"`
}

// TimeoutConfig bounds every network wait
type TimeoutConfig struct {
	Clone    time.Duration `yaml:"clone"`
	HTTP     time.Duration `yaml:"http"`
	Generate time.Duration `yaml:"generate"`
}

// LanguageConfig maps language codes to the names used in prompts
type LanguageConfig struct {
	Default   string            `yaml:"default"`
	Supported map[string]string `yaml:"supported"`
}

// Config holds the overall application configuration.
// It is built once at startup and shared read-only.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Storage      StorageConfig      `yaml:"storage"`
	Embedder     EmbedderConfig     `yaml:"embedder"`
	Generator    GeneratorConfig    `yaml:"generator"`
	Google       GoogleConfig       `yaml:"google"`
	OpenAI       OpenAIConfig       `yaml:"openai"`
	OpenRouter   OpenAIConfig       `yaml:"openrouter"`
	Ollama       OllamaConfig       `yaml:"ollama"`
	Bedrock      BedrockConfig      `yaml:"bedrock"`
	Retriever    RetrieverConfig    `yaml:"retriever"`
	Milvus       MilvusConfig       `yaml:"milvus"`
	Redis        RedisConfig        `yaml:"redis"`
	Lock         LockConfig         `yaml:"lock"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Logging      LoggingConfig      `yaml:"logging"`
	TextSplitter TextSplitterConfig `yaml:"text_splitter"`
	FileFilters  FileFiltersConfig  `yaml:"file_filters"`
	Timeouts     TimeoutConfig      `yaml:"timeouts"`
	Languages    LanguageConfig     `yaml:"languages"`
	// SystemProxy is passed to git clone as http(s)_proxy when set
	SystemProxy string `yaml:"system_proxy"`
}

// LoadConfig loads configuration from a YAML file. A missing file is not
// an error: defaults and environment overrides still apply.
func LoadConfig(configPath string) (*Config, error) {
	cfg := &Config{}

	if configPath == "" {
		configPath = os.Getenv("REPOCHAT_CONFIG")
	}

	if configPath != "" {
		log.Printf("Loading configuration from: %s", configPath)
		yamlFile, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Printf("Config file %s not found, using defaults", configPath)
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		default:
			if err := yaml.Unmarshal(yamlFile, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", configPath, err)
			}
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Println("Configuration loaded successfully")
	return cfg, nil
}

// Default returns a configuration with every default applied and no file or
// environment input.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate rejects combinations that would fail later in less obvious ways.
func (c *Config) Validate() error {
	if c.TextSplitter.ChunkOverlap >= c.TextSplitter.ChunkSize {
		return fmt.Errorf("text_splitter.chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.TextSplitter.ChunkOverlap, c.TextSplitter.ChunkSize)
	}
	switch c.Embedder.Type {
	case "openai", "ollama":
	default:
		return fmt.Errorf("embedder.type %q is not supported", c.Embedder.Type)
	}
	switch c.Storage.Backend {
	case "file", "milvus":
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	switch c.Lock.Backend {
	case "local", "redis":
	default:
		return fmt.Errorf("lock.backend %q is not supported", c.Lock.Backend)
	}
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("rate_limit.backend %q is not supported", c.RateLimit.Backend)
	}
	return nil
}

// UsesRedis reports whether any component needs the redis client.
func (c *Config) UsesRedis() bool {
	return c.Lock.Backend == "redis" || c.RateLimit.Backend == "redis"
}

// IsOllamaEmbedder reports whether the local embedding backend is active.
func (c *Config) IsOllamaEmbedder() bool {
	return c.Embedder.Type == "ollama"
}

// ReposDir is where cloned repositories are kept.
func (c *Config) ReposDir() string {
	return filepath.Join(c.Storage.RootDir, "repos")
}

// DatabasesDir is where index snapshots are kept.
func (c *Config) DatabasesDir() string {
	return filepath.Join(c.Storage.RootDir, "databases")
}

// LanguageName resolves a language code to the name used in prompts.
func (c *Config) LanguageName(code string) string {
	if code == "" {
		code = c.Languages.Default
	}
	if name, ok := c.Languages.Supported[code]; ok {
		return name
	}
	return "English"
}

func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		env    string
		target *string
	}{
		{"SERVER_PORT", &cfg.Server.Port},
		{"GOOGLE_API_KEY", &cfg.Google.APIKey},
		{"GOOGLE_APPLICATION_CREDENTIALS", &cfg.Google.CredentialsFile},
		{"GOOGLE_CLOUD_PROJECT", &cfg.Google.ProjectID},
		{"GOOGLE_CLOUD_LOCATION", &cfg.Google.Location},
		{"OPENAI_API_KEY", &cfg.OpenAI.APIKey},
		{"OPENAI_BASE_URL", &cfg.OpenAI.BaseURL},
		{"OPENROUTER_API_KEY", &cfg.OpenRouter.APIKey},
		{"OLLAMA_HOST", &cfg.Ollama.Host},
		{"AWS_REGION", &cfg.Bedrock.Region},
		{"REDIS_ADDR", &cfg.Redis.Addr},
		{"MILVUS_ADDRESS", &cfg.Milvus.Address},
		{"SYSTEM_PROXY", &cfg.SystemProxy},
		{"REPOCHAT_ROOT", &cfg.Storage.RootDir},
		{"EMBEDDER_TYPE", &cfg.Embedder.Type},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.env)); v != "" {
			*o.target = v
		}
	}
}

func applyDefaults(cfg *Config) {
	setString(&cfg.Server.Port, "8001")
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}

	setString(&cfg.Storage.RootDir, defaultRootDir())
	setString(&cfg.Storage.Backend, "file")
	setInt64(&cfg.Storage.SizeLimitMB, 50000)

	setString(&cfg.Embedder.Type, "openai")
	if cfg.Embedder.Type == "ollama" {
		setString(&cfg.Embedder.Model, cfg.Ollama.EmbeddingModel)
		setString(&cfg.Embedder.Model, "nomic-embed-text")
	} else {
		setString(&cfg.Embedder.Model, "text-embedding-3-small")
		setInt(&cfg.Embedder.Dimensions, 256)
	}
	setInt(&cfg.Embedder.BatchSize, 500)
	setInt(&cfg.Embedder.Workers, 4)

	setString(&cfg.Generator.Provider, "google")
	setFloat(&cfg.Generator.Temperature, 0.7)
	setFloat(&cfg.Generator.TopP, 0.8)

	setString(&cfg.Google.Location, "us-central1")
	setString(&cfg.Google.Model, "gemini-2.5-flash")

	setString(&cfg.OpenAI.BaseURL, "https://api.openai.com/v1")
	setString(&cfg.OpenAI.Model, "gpt-4o")
	setString(&cfg.OpenRouter.BaseURL, "https://openrouter.ai/api/v1")
	setString(&cfg.OpenRouter.Model, "openai/gpt-4o")

	setString(&cfg.Ollama.Host, "http://localhost:11434")
	setString(&cfg.Ollama.EmbeddingModel, "nomic-embed-text")
	setString(&cfg.Ollama.Model, "qwen3:1.7b")
	setInt(&cfg.Ollama.NumCtx, 32000)

	setString(&cfg.Bedrock.Region, "us-east-1")
	setString(&cfg.Bedrock.Model, "anthropic.claude-3-sonnet-20240229-v1:0")

	setInt(&cfg.Retriever.TopK, 20)

	setString(&cfg.Milvus.Address, "localhost:19530")

	setString(&cfg.Redis.Addr, "localhost:6379")
	if cfg.Redis.LockTTL == 0 {
		cfg.Redis.LockTTL = 15 * time.Minute
	}
	setString(&cfg.Lock.Backend, "local")
	setString(&cfg.RateLimit.Backend, "memory")
	setInt(&cfg.RateLimit.RequestsPerMinute, 60)

	setString(&cfg.Logging.Level, "info")

	setString(&cfg.TextSplitter.SplitBy, "word")
	setInt(&cfg.TextSplitter.ChunkSize, 350)
	setInt(&cfg.TextSplitter.ChunkOverlap, 100)

	if cfg.Timeouts.Clone == 0 {
		cfg.Timeouts.Clone = 10 * time.Minute
	}
	if cfg.Timeouts.HTTP == 0 {
		cfg.Timeouts.HTTP = 30 * time.Second
	}
	if cfg.Timeouts.Generate == 0 {
		cfg.Timeouts.Generate = 5 * time.Minute
	}

	setString(&cfg.Languages.Default, "en")
	if len(cfg.Languages.Supported) == 0 {
		cfg.Languages.Supported = map[string]string{
			"en": "English",
			"ja": "Japanese (日本語)",
			"zh": "Mandarin Chinese (中文)",
			"es": "Spanish (Español)",
			"kr": "Korean (한국어)",
			"vi": "Vietnamese (Tiếng Việt)",
		}
	}
}

func defaultRootDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".adalflow")
	}
	return filepath.Join(homeDir, ".adalflow")
}

func setString(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if *dst == 0 {
		*dst = v
	}
}

func setInt64(dst *int64, v int64) {
	if *dst == 0 {
		*dst = v
	}
}

func setFloat(dst *float32, v float32) {
	if *dst == 0 {
		*dst = v
	}
}
