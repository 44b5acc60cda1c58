// Package config loads and validates the process-wide settings every core
// component depends on. There is no global singleton: Load builds one
// immutable *Config that callers pass explicitly to every constructor (the
// teacher's own config package reaches for a mutable package-level
// instance; this one does not).
package config

import (
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/localrag/localrag/pkg/ragerrors"
)

// VectorStoreType selects which VectorStore backend a Factory builds.
type VectorStoreType string

const (
	VectorStoreChroma VectorStoreType = "chroma"
	VectorStoreQdrant VectorStoreType = "qdrant"
)

// LogLevel mirrors the five levels recognized by LOG_LEVEL.
type LogLevel string

const (
	LogDebug    LogLevel = "DEBUG"
	LogInfo     LogLevel = "INFO"
	LogWarning  LogLevel = "WARNING"
	LogError    LogLevel = "ERROR"
	LogCritical LogLevel = "CRITICAL"
)

// Config is the complete, validated set of settings for a single process.
// Every field corresponds to one environment key. Once returned by Load it
// is never mutated — Reload builds a fresh Config and a Handle swaps to it
// atomically wherever a long-running caller holds one.
type Config struct {
	OllamaBaseURL         string
	OllamaLLMModel        string
	OllamaEmbeddingModel  string
	OllamaVisionModel     string
	OllamaMultimodalModel string

	VectorStoreType  VectorStoreType
	ChromaPersistDir string
	QdrantHost       string
	QdrantPort       int
	QdrantAPIKey     string

	ChunkSize    int
	ChunkOverlap int

	MaxImageSizeMB           float64
	ImageCaptionAutoGenerate bool

	MultimodalTextWeight  float64
	MultimodalImageWeight float64

	LogLevel LogLevel
}

func defaults() Config {
	return Config{
		OllamaBaseURL:            "http://localhost:11434",
		OllamaLLMModel:           "gpt-oss",
		OllamaEmbeddingModel:     "nomic-embed-text",
		OllamaVisionModel:        "llava",
		OllamaMultimodalModel:    "gemma3",
		VectorStoreType:          VectorStoreChroma,
		ChromaPersistDir:         "./chroma_db",
		QdrantHost:               "localhost",
		QdrantPort:               6333,
		QdrantAPIKey:             "",
		ChunkSize:                1000,
		ChunkOverlap:             200,
		MaxImageSizeMB:           10,
		ImageCaptionAutoGenerate: true,
		MultimodalTextWeight:     0.5,
		MultimodalImageWeight:    0.5,
		LogLevel:                 LogInfo,
	}
}

// Load reads an optional .env file (priority .env.local then .env, the
// real process environment always wins), applies defaults for unset keys,
// and validates the result. A validation failure returns *ragerrors.Error
// with Kind ragerrors.ConfigInvalid and the process must not proceed.
func Load() (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := defaults()

	if v, ok := os.LookupEnv("OLLAMA_BASE_URL"); ok {
		cfg.OllamaBaseURL = v
	}
	if v, ok := os.LookupEnv("OLLAMA_LLM_MODEL"); ok {
		cfg.OllamaLLMModel = v
	}
	if v, ok := os.LookupEnv("OLLAMA_EMBEDDING_MODEL"); ok {
		cfg.OllamaEmbeddingModel = v
	}
	if v, ok := os.LookupEnv("OLLAMA_VISION_MODEL"); ok {
		cfg.OllamaVisionModel = v
	}
	if v, ok := os.LookupEnv("OLLAMA_MULTIMODAL_LLM_MODEL"); ok {
		cfg.OllamaMultimodalModel = v
	}
	if v, ok := os.LookupEnv("VECTOR_DB_TYPE"); ok {
		cfg.VectorStoreType = VectorStoreType(v)
	}
	if v, ok := os.LookupEnv("CHROMA_PERSIST_DIRECTORY"); ok {
		cfg.ChromaPersistDir = v
	}
	if v, ok := os.LookupEnv("QDRANT_HOST"); ok {
		cfg.QdrantHost = v
	}
	if v, ok := os.LookupEnv("QDRANT_PORT"); ok {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, ragerrors.New(ragerrors.ConfigInvalid, "config.Load", "QDRANT_PORT must be an integer", err)
		}
		cfg.QdrantPort = p
	}
	if v, ok := os.LookupEnv("QDRANT_API_KEY"); ok {
		cfg.QdrantAPIKey = v
	}
	if v, ok := os.LookupEnv("CHUNK_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, ragerrors.New(ragerrors.ConfigInvalid, "config.Load", "CHUNK_SIZE must be an integer", err)
		}
		cfg.ChunkSize = n
	}
	if v, ok := os.LookupEnv("CHUNK_OVERLAP"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, ragerrors.New(ragerrors.ConfigInvalid, "config.Load", "CHUNK_OVERLAP must be an integer", err)
		}
		cfg.ChunkOverlap = n
	}
	if v, ok := os.LookupEnv("MAX_IMAGE_SIZE_MB"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, ragerrors.New(ragerrors.ConfigInvalid, "config.Load", "MAX_IMAGE_SIZE_MB must be a number", err)
		}
		cfg.MaxImageSizeMB = f
	}
	if v, ok := os.LookupEnv("IMAGE_CAPTION_AUTO_GENERATE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, ragerrors.New(ragerrors.ConfigInvalid, "config.Load", "IMAGE_CAPTION_AUTO_GENERATE must be true/false", err)
		}
		cfg.ImageCaptionAutoGenerate = b
	}
	if v, ok := os.LookupEnv("MULTIMODAL_SEARCH_TEXT_WEIGHT"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, ragerrors.New(ragerrors.ConfigInvalid, "config.Load", "MULTIMODAL_SEARCH_TEXT_WEIGHT must be a number", err)
		}
		cfg.MultimodalTextWeight = f
	}
	if v, ok := os.LookupEnv("MULTIMODAL_SEARCH_IMAGE_WEIGHT"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, ragerrors.New(ragerrors.ConfigInvalid, "config.Load", "MULTIMODAL_SEARCH_IMAGE_WEIGHT must be a number", err)
		}
		cfg.MultimodalImageWeight = f
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.LogLevel = LogLevel(strings.ToUpper(v))
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) validate() error {
	if !strings.HasPrefix(c.OllamaBaseURL, "http://") && !strings.HasPrefix(c.OllamaBaseURL, "https://") {
		return ragerrors.New(ragerrors.ConfigInvalid, "config.validate", "OLLAMA_BASE_URL must start with http:// or https://", nil)
	}
	switch c.VectorStoreType {
	case VectorStoreChroma, VectorStoreQdrant:
	default:
		return ragerrors.New(ragerrors.ConfigInvalid, "config.validate", "VECTOR_DB_TYPE must be chroma or qdrant", nil)
	}
	if c.ChunkSize < 100 || c.ChunkSize > 10000 {
		return ragerrors.New(ragerrors.ConfigInvalid, "config.validate", "CHUNK_SIZE must be in [100, 10000]", nil)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return ragerrors.New(ragerrors.ConfigInvalid, "config.validate", "CHUNK_OVERLAP must be >= 0 and strictly less than CHUNK_SIZE", nil)
	}
	if c.MaxImageSizeMB <= 0 {
		return ragerrors.New(ragerrors.ConfigInvalid, "config.validate", "MAX_IMAGE_SIZE_MB must be > 0", nil)
	}
	if c.MultimodalTextWeight < 0 || c.MultimodalTextWeight > 1 {
		return ragerrors.New(ragerrors.ConfigInvalid, "config.validate", "MULTIMODAL_SEARCH_TEXT_WEIGHT must be in [0,1]", nil)
	}
	if c.MultimodalImageWeight < 0 || c.MultimodalImageWeight > 1 {
		return ragerrors.New(ragerrors.ConfigInvalid, "config.validate", "MULTIMODAL_SEARCH_IMAGE_WEIGHT must be in [0,1]", nil)
	}
	switch c.LogLevel {
	case LogDebug, LogInfo, LogWarning, LogError, LogCritical:
	default:
		return ragerrors.New(ragerrors.ConfigInvalid, "config.validate", "LOG_LEVEL must be one of DEBUG/INFO/WARNING/ERROR/CRITICAL", nil)
	}
	return nil
}

// Handle holds a hot-reloadable Config for long-running processes. The
// zero Handle is not usable; construct one with NewHandle. Readers call
// Current(); Reload swaps the pointer atomically so in-flight reads never
// observe a half-updated Config.
type Handle struct {
	ptr atomic.Pointer[Config]
}

// NewHandle wraps an already-loaded Config for hot-reload.
func NewHandle(cfg *Config) *Handle {
	h := &Handle{}
	h.ptr.Store(cfg)
	return h
}

// Current returns the Config in effect right now.
func (h *Handle) Current() *Config {
	return h.ptr.Load()
}

// Reload re-reads the environment/.env file, validates, and — only on
// success — atomically swaps the Handle to the new Config. On failure the
// previous Config remains current and the error is returned.
func (h *Handle) Reload() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	h.ptr.Store(cfg)
	return nil
}
