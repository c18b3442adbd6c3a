// Package config provides configuration loading and structs for the mensetsu server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/mensetsu/internal/models"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Vector     VectorConfig     `yaml:"vector"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Indexing   IndexingConfig   `yaml:"indexing"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Generation GenerationConfig `yaml:"generation"`
	Auth       AuthConfig       `yaml:"auth"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Watch      WatchConfig      `yaml:"watch"`
	Resources  ResourcesConfig  `yaml:"resources"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StorageConfig holds paths for the record database, resume blobs, and the local vector index.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	BlobDir         string `yaml:"blob_dir"`
	VectorIndexPath string `yaml:"vector_index_path"`
}

// EmbeddingConfig selects and configures the embedder.
type EmbeddingConfig struct {
	Provider   string      `yaml:"provider"` // gemini, openai, onnx, mock
	Model      string      `yaml:"model"`
	Dimensions int         `yaml:"dimensions"`
	BaseURL    string      `yaml:"base_url"`
	APIKey     string      `yaml:"-"`
	ModelPath  string      `yaml:"model_path"`
	MaxTokens  int         `yaml:"max_tokens"`
	CacheSize  int         `yaml:"cache_size"`
	Retry      RetryConfig `yaml:"retry"`
}

// RetryConfig holds per-call retry and rate limit settings for remote embedders.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	InitialDelay      time.Duration `yaml:"initial_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// VectorConfig selects the vector index backend.
type VectorConfig struct {
	Type   string       `yaml:"type"` // memory, qdrant
	Qdrant QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig holds Qdrant gRPC connection settings.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
	UseTLS     bool   `yaml:"use_tls"`
	APIKey     string `yaml:"-"`
}

// ResourcesConfig points at a vector index of learning resources searched for each
// missing skill of an analysis. An empty Type disables the lookup. Entries carry a
// title, url or text payload and must be embedded with the configured embedder.
type ResourcesConfig struct {
	Type      string       `yaml:"type"` // memory, qdrant
	IndexPath string       `yaml:"index_path"`
	Qdrant    QdrantConfig `yaml:"qdrant"`
	TopK      int          `yaml:"top_k"`
}

// Enabled reports whether a resource index is configured.
func (r *ResourcesConfig) Enabled() bool {
	return r.Type != ""
}

// ChunkProfile is a chunk window size and overlap, in characters.
type ChunkProfile struct {
	MaxLength int `yaml:"max_length"`
	Overlap   int `yaml:"overlap"`
}

// ChunkingConfig holds named chunk profiles and the one in use.
type ChunkingConfig struct {
	Profile  string                  `yaml:"profile"`
	Profiles map[string]ChunkProfile `yaml:"profiles"`
}

// Active returns the selected profile.
func (c *ChunkingConfig) Active() (ChunkProfile, error) {
	p, ok := c.Profiles[c.Profile]
	if !ok {
		return ChunkProfile{}, fmt.Errorf("%w: unknown chunking profile %q", models.ErrConfig, c.Profile)
	}
	return p, nil
}

// IndexingConfig holds indexing pipeline settings.
type IndexingConfig struct {
	Timeout          time.Duration `yaml:"timeout"`
	CleanupOnFailure *bool         `yaml:"cleanup_on_failure"`
	MaxFileSize      int64         `yaml:"max_file_size"`
}

// CleanupOnFailureOrDefault returns whether partial vectors are removed after a failed
// indexing attempt; defaults to true when unset.
func (c *IndexingConfig) CleanupOnFailureOrDefault() bool {
	if c.CleanupOnFailure != nil {
		return *c.CleanupOnFailure
	}
	return true
}

// RetrievalConfig holds question answering settings.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// GenerationConfig selects and configures the answer generator.
type GenerationConfig struct {
	Provider    string  `yaml:"provider"` // gemini, static
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	APIKey      string  `yaml:"-"`
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret string        `yaml:"-"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// TracingConfig holds OpenTelemetry export settings. An empty endpoint disables export.
type TracingConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	Insecure     bool    `yaml:"insecure"`
	ServiceName  string  `yaml:"service_name"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

// WatchConfig holds inbox directory watch settings.
type WatchConfig struct {
	Directories []string      `yaml:"directories"`
	OwnerID     string        `yaml:"owner_id"`
	Recursive   *bool         `yaml:"recursive"`
	Debounce    time.Duration `yaml:"debounce"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, applies defaults and environment
// overrides, and expands paths. A .env file next to the config is loaded first.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	if err := LoadDotEnv(filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}
	finish(&cfg, configDir)
	return &cfg, nil
}

// Default returns the configuration used when no config file exists. Relative paths resolve
// against dir.
func Default(dir string) (*Config, error) {
	if err := LoadDotEnv(filepath.Join(dir, ".env")); err != nil {
		return nil, err
	}
	var cfg Config
	finish(&cfg, dir)
	return &cfg, nil
}

func finish(cfg *Config, configDir string) {
	ApplyDefaults(cfg)
	ApplyEnv(cfg)

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BlobDir = expandPath(cfg.Storage.BlobDir, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Resources.IndexPath != "" {
		cfg.Resources.IndexPath = expandPath(cfg.Resources.IndexPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}
}

// LoadDotEnv loads KEY=value pairs from path into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv copies secrets and deployment overrides from the environment into cfg.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		if cfg.Embedding.Provider == "gemini" {
			cfg.Embedding.APIKey = v
		}
		cfg.Generation.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Embedding.Provider == "openai" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("MENSETSU_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		cfg.Vector.Qdrant.APIKey = v
		cfg.Resources.Qdrant.APIKey = v
	}
	if v := os.Getenv("MENSETSU_OTLP_ENDPOINT"); v != "" {
		cfg.Tracing.OTLPEndpoint = v
	}
}

// Validate reports configuration that would make the pipeline unusable.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Chunking.Active(); err != nil {
		errs = append(errs, err)
	}
	for name, p := range c.Chunking.Profiles {
		if p.MaxLength <= 0 || p.Overlap < 0 || p.Overlap >= p.MaxLength {
			errs = append(errs, fmt.Errorf("%w: chunking profile %q: overlap %d must be in [0, %d)", models.ErrConfig, name, p.Overlap, p.MaxLength))
		}
	}
	switch c.Embedding.Provider {
	case "gemini", "openai", "onnx", "mock":
	default:
		errs = append(errs, fmt.Errorf("%w: unknown embedding provider %q", models.ErrConfig, c.Embedding.Provider))
	}
	switch c.Vector.Type {
	case "memory", "qdrant":
	default:
		errs = append(errs, fmt.Errorf("%w: unknown vector index type %q", models.ErrConfig, c.Vector.Type))
	}
	switch c.Resources.Type {
	case "", "memory", "qdrant":
	default:
		errs = append(errs, fmt.Errorf("%w: unknown resources index type %q", models.ErrConfig, c.Resources.Type))
	}
	if c.Resources.Type == "memory" && c.Resources.IndexPath == "" {
		errs = append(errs, fmt.Errorf("%w: resources index_path is required for a memory index", models.ErrConfig))
	}
	switch c.Generation.Provider {
	case "gemini", "static":
	default:
		errs = append(errs, fmt.Errorf("%w: unknown generation provider %q", models.ErrConfig, c.Generation.Provider))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, fmt.Errorf("%w: retrieval top_k must be positive", models.ErrConfig))
	}
	return errors.Join(errs...)
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
