// Package appwire constructs the fully-wired set of components a running
// process needs (store, embedder, vision loader, DocumentService, RAG
// engines) from a single *config.Config, so cmd/localrag and
// cmd/localrag-mcp share one construction path instead of each
// duplicating it — the same facade-over-config idea pkg/docservice
// itself follows, one layer up.
package appwire

import (
	"context"
	"fmt"

	"github.com/localrag/localrag/pkg/chunking"
	"github.com/localrag/localrag/pkg/config"
	"github.com/localrag/localrag/pkg/docservice"
	"github.com/localrag/localrag/pkg/embedding"
	"github.com/localrag/localrag/pkg/ollamaclient"
	"github.com/localrag/localrag/pkg/rag"
	"github.com/localrag/localrag/pkg/ragerrors"
	"github.com/localrag/localrag/pkg/retrieval"
	"github.com/localrag/localrag/pkg/vectorstore"
	"github.com/localrag/localrag/pkg/vectorstore/storefactory"
	"github.com/localrag/localrag/pkg/vision"
)

// App bundles every component a cmd entrypoint drives directly.
type App struct {
	Config   *config.Config
	Store    vectorstore.Store
	Docs     *docservice.DocumentService
	RAG      *rag.RAGEngine
	// Multimodal is nil if the configured multimodal model isn't
	// installed on the LLM backend — callers must check before using
	// it and fall back to text-only operations.
	Multimodal *rag.MultimodalEngine
}

// Build wires every component from cfg. It calls Store.Init, so callers
// must call Close on the returned App when done.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	ollama := ollamaclient.New(cfg.OllamaBaseURL)
	textEmbedder := embedding.NewOllamaTextEmbedder(ollama, cfg.OllamaEmbeddingModel)

	dim, err := textEmbedder.Dimension(ctx)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(cfg, dim)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		store.Close()
		return nil, err
	}

	captioner := vision.NewOllamaVisionCaptioner(ollama, cfg.OllamaVisionModel, textEmbedder)
	imageLoader := vision.NewImageLoader(captioner, cfg.MaxImageSizeMB, cfg.ImageCaptionAutoGenerate)

	chunker, err := chunking.New(chunking.Config{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap})
	if err != nil {
		store.Close()
		return nil, err
	}

	docs := docservice.New(store, chunker, textEmbedder, imageLoader)
	retriever := retrieval.New(textEmbedder, store)

	ragEngine := rag.NewRAGEngine(retriever, ollama, cfg.OllamaLLMModel, rag.EngineConfig{})

	var multimodal *rag.MultimodalEngine
	mm, err := rag.NewMultimodalEngine(ctx, retriever, ollama, cfg.OllamaMultimodalModel, rag.MultimodalConfig{
		WeightText:  cfg.MultimodalTextWeight,
		WeightImage: cfg.MultimodalImageWeight,
	})
	if err == nil {
		multimodal = mm
	} else if ragerrors.Is(err, ragerrors.VisionModelMissing) {
		multimodal = nil
	} else {
		store.Close()
		return nil, err
	}

	return &App{
		Config:     cfg,
		Store:      store,
		Docs:       docs,
		RAG:        ragEngine,
		Multimodal: multimodal,
	}, nil
}

// Close releases the store's backend connection.
func (a *App) Close() error {
	return a.Store.Close()
}

func buildStore(cfg *config.Config, dimension int) (vectorstore.Store, error) {
	sfCfg := storefactory.Config{
		PersistDir: cfg.ChromaPersistDir,
		Host:       cfg.QdrantHost,
		Port:       cfg.QdrantPort,
		APIKey:     cfg.QdrantAPIKey,
		Dimension:  dimension,
	}

	switch cfg.VectorStoreType {
	case config.VectorStoreChroma:
		sfCfg.Type = storefactory.BackendChromem
	case config.VectorStoreQdrant:
		sfCfg.Type = storefactory.BackendQdrant
	default:
		return nil, ragerrors.New(ragerrors.ConfigInvalid, "appwire.buildStore", fmt.Sprintf("unknown vector store type %q", cfg.VectorStoreType), nil)
	}

	return storefactory.New(sfCfg)
}
