package embedding

import (
	"context"
	"strings"
	"sync"

	"github.com/localrag/localrag/pkg/ollamaclient"
	"github.com/localrag/localrag/pkg/ragerrors"
)

// OllamaTextEmbedder embeds text via a local Ollama-compatible server's
// /api/embed endpoint.
//
// Ollama's embedding runner is documented upstream to be unsafe for
// concurrent calls (it aborts mid-decode), so every call from every
// OllamaTextEmbedder instance serializes on a single package-level mutex —
// the teacher's embedders package carries the same global mutex for the
// same reason.
type OllamaTextEmbedder struct {
	client *ollamaclient.Client
	model  string

	dimOnce sync.Once
	dim     int
	dimErr  error
}

var embedMu sync.Mutex

// NewOllamaTextEmbedder builds an embedder that talks to client using the
// given model name.
func NewOllamaTextEmbedder(client *ollamaclient.Client, model string) *OllamaTextEmbedder {
	return &OllamaTextEmbedder{client: client, model: model}
}

// EmbedQuery embeds a single query string.
func (e *OllamaTextEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedPassages(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedPassages embeds a batch of passages in one request.
func (e *OllamaTextEmbedder) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ragerrors.New(ragerrors.EmbeddingInputInvalid, "OllamaTextEmbedder.EmbedPassages", "no texts given", nil)
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, ragerrors.New(ragerrors.EmbeddingInputInvalid, "OllamaTextEmbedder.EmbedPassages", "empty string in batch", nil)
		}
	}

	embedMu.Lock()
	defer embedMu.Unlock()

	vecs, err := e.client.Embed(ctx, e.model, texts)
	if err != nil {
		return nil, ragerrors.New(ragerrors.EmbeddingUnavailable, "OllamaTextEmbedder.EmbedPassages", "embedding backend unreachable or errored", err)
	}
	return vecs, nil
}

// Dimension returns the embedding length, probed once via a sentinel
// embedding call and cached for the lifetime of this embedder.
func (e *OllamaTextEmbedder) Dimension(ctx context.Context) (int, error) {
	e.dimOnce.Do(func() {
		vec, err := e.EmbedQuery(ctx, "dimension probe")
		if err != nil {
			e.dimErr = err
			return
		}
		e.dim = len(vec)
	})
	return e.dim, e.dimErr
}
