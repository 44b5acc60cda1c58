// Package retrieval turns a natural-language query into ranked
// SearchHits by embedding the query and delegating to a VectorStore
// (spec §4.5).
package retrieval

import (
	"context"
	"strings"

	"github.com/localrag/localrag/pkg/docmodel"
	"github.com/localrag/localrag/pkg/embedding"
	"github.com/localrag/localrag/pkg/ragerrors"
	"github.com/localrag/localrag/pkg/vectorstore"
)

// Retriever embeds a query and searches a VectorStore for the top-k
// matches: chunks in the text collection, images in the image
// collection, or both through RetrieveMultimodal.
type Retriever struct {
	embedder embedding.TextEmbedder
	store    vectorstore.Store
}

// New builds a Retriever over embedder and store.
func New(embedder embedding.TextEmbedder, store vectorstore.Store) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Retrieve embeds query and returns the top-k hits from store's
// documents collection, optionally narrowed by filter. An empty query
// (after trimming) returns QueryEmpty; any embedder or store failure is
// wrapped as RetrievalFailed.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, filter map[string]any) ([]docmodel.SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ragerrors.New(ragerrors.QueryEmpty, "Retriever.Retrieve", "query must not be empty", nil)
	}

	qvec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.RetrievalFailed, "Retriever.Retrieve", err)
	}

	hits, err := r.store.Search(ctx, qvec, k, filter)
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.RetrievalFailed, "Retriever.Retrieve", err)
	}
	return hits, nil
}

// RetrieveImages is Retrieve against the images collection, used by
// DocumentService.searchImages.
func (r *Retriever) RetrieveImages(ctx context.Context, query string, k int, filter map[string]any) ([]docmodel.SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ragerrors.New(ragerrors.QueryEmpty, "Retriever.RetrieveImages", "query must not be empty", nil)
	}

	qvec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.RetrievalFailed, "Retriever.RetrieveImages", err)
	}

	hits, err := r.store.SearchImages(ctx, qvec, k, filter)
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.RetrievalFailed, "Retriever.RetrieveImages", err)
	}
	return hits, nil
}

// RetrieveMultimodal is Retrieve fused across both collections (spec
// §4.6), used by MultimodalEngine.
func (r *Retriever) RetrieveMultimodal(ctx context.Context, query string, k int, weightText, weightImage float64) ([]docmodel.SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ragerrors.New(ragerrors.QueryEmpty, "Retriever.RetrieveMultimodal", "query must not be empty", nil)
	}

	qvec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.RetrievalFailed, "Retriever.RetrieveMultimodal", err)
	}

	hits, err := r.store.SearchMultimodal(ctx, qvec, k, weightText, weightImage)
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.RetrievalFailed, "Retriever.RetrieveMultimodal", err)
	}
	return hits, nil
}
