package config

import "time"

// Chunk profiles shipped by default.
const (
	ProfileStandard = "standard"
	ProfileLong     = "long"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 3 * time.Minute
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = ".mensetsu/records.db"
	}
	if cfg.Storage.BlobDir == "" {
		cfg.Storage.BlobDir = ".mensetsu/blobs"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = ".mensetsu/vectors.idx"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "gemini"
	}
	if cfg.Embedding.Provider == "onnx" && cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Retry.MaxAttempts == 0 {
		cfg.Embedding.Retry.MaxAttempts = 3
	}
	if cfg.Embedding.Retry.InitialDelay == 0 {
		cfg.Embedding.Retry.InitialDelay = 500 * time.Millisecond
	}
	if cfg.Embedding.Retry.MaxDelay == 0 {
		cfg.Embedding.Retry.MaxDelay = 10 * time.Second
	}
	if cfg.Vector.Type == "" {
		cfg.Vector.Type = "memory"
	}
	if cfg.Vector.Qdrant.Host == "" {
		cfg.Vector.Qdrant.Host = "localhost"
	}
	if cfg.Vector.Qdrant.Port == 0 {
		cfg.Vector.Qdrant.Port = 6334
	}
	if cfg.Vector.Qdrant.Collection == "" {
		cfg.Vector.Qdrant.Collection = "resumes"
	}
	if cfg.Resources.TopK == 0 {
		cfg.Resources.TopK = 7
	}
	if cfg.Resources.Type == "qdrant" {
		if cfg.Resources.Qdrant.Host == "" {
			cfg.Resources.Qdrant.Host = cfg.Vector.Qdrant.Host
		}
		if cfg.Resources.Qdrant.Port == 0 {
			cfg.Resources.Qdrant.Port = cfg.Vector.Qdrant.Port
		}
		if cfg.Resources.Qdrant.Collection == "" {
			cfg.Resources.Qdrant.Collection = "learning-resources"
		}
	}
	if cfg.Chunking.Profiles == nil {
		cfg.Chunking.Profiles = map[string]ChunkProfile{}
	}
	if _, ok := cfg.Chunking.Profiles[ProfileStandard]; !ok {
		cfg.Chunking.Profiles[ProfileStandard] = ChunkProfile{MaxLength: 1000, Overlap: 100}
	}
	if _, ok := cfg.Chunking.Profiles[ProfileLong]; !ok {
		cfg.Chunking.Profiles[ProfileLong] = ChunkProfile{MaxLength: 2000, Overlap: 100}
	}
	if cfg.Chunking.Profile == "" {
		cfg.Chunking.Profile = ProfileStandard
	}
	if cfg.Indexing.Timeout == 0 {
		cfg.Indexing.Timeout = 2 * time.Minute
	}
	if cfg.Indexing.MaxFileSize == 0 {
		cfg.Indexing.MaxFileSize = 10 << 20
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 7
	}
	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = "gemini"
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "gemini-1.5-flash"
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "mensetsu"
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = 24 * time.Hour
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "mensetsu"
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = 1.0
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
