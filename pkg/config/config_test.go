package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/localrag/localrag/pkg/ragerrors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:11434", cfg.OllamaBaseURL)
	require.Equal(t, 1000, cfg.ChunkSize)
	require.Equal(t, 200, cfg.ChunkOverlap)
	require.Equal(t, VectorStoreChroma, cfg.VectorStoreType)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "https://models.internal")
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("CHUNK_OVERLAP", "50")
	t.Setenv("VECTOR_DB_TYPE", "qdrant")
	t.Setenv("QDRANT_PORT", "7000")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://models.internal", cfg.OllamaBaseURL)
	require.Equal(t, 500, cfg.ChunkSize)
	require.Equal(t, 50, cfg.ChunkOverlap)
	require.Equal(t, VectorStoreQdrant, cfg.VectorStoreType)
	require.Equal(t, 7000, cfg.QdrantPort)
}

func TestLoadRejectsInvalidBaseURL(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "ftp://nope")
	_, err := Load()
	require.True(t, ragerrors.Is(err, ragerrors.ConfigInvalid))
}

func TestLoadRejectsOverlapNotLessThanChunkSize(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "200")
	t.Setenv("CHUNK_OVERLAP", "200")
	_, err := Load()
	require.True(t, ragerrors.Is(err, ragerrors.ConfigInvalid))
}

func TestLoadRejectsUnknownVectorStoreType(t *testing.T) {
	t.Setenv("VECTOR_DB_TYPE", "pinecone")
	_, err := Load()
	require.True(t, ragerrors.Is(err, ragerrors.ConfigInvalid))
}

func TestHandleReloadSwapsAtomically(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	h := NewHandle(cfg)

	t.Setenv("OLLAMA_LLM_MODEL", "mistral")
	require.NoError(t, h.Reload())
	require.Equal(t, "mistral", h.Current().OllamaLLMModel)
}

func TestHandleReloadKeepsPreviousConfigOnFailure(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	h := NewHandle(cfg)

	t.Setenv("CHUNK_SIZE", "not-an-int")
	require.Error(t, h.Reload(), "expected reload to fail on invalid CHUNK_SIZE")
	require.Equal(t, cfg.ChunkSize, h.Current().ChunkSize, "expected Current() to retain prior config after failed reload")
}
