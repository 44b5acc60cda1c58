package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/localrag/localrag/pkg/ollamaclient"
	"github.com/localrag/localrag/pkg/ragerrors"
)

func newTestEmbedder(t *testing.T, vecLen int) (*OllamaTextEmbedder, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input any `json:"input"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		var n int
		switch v := req.Input.(type) {
		case string:
			n = 1
		case []any:
			n = len(v)
		}
		vecs := make([][]float32, n)
		for i := range vecs {
			vecs[i] = make([]float32, vecLen)
			for j := range vecs[i] {
				vecs[i][j] = float32(i + j)
			}
		}
		json.NewEncoder(w).Encode(struct {
			Embeddings [][]float32 `json:"embeddings"`
		}{Embeddings: vecs})
	}))

	client := ollamaclient.New(srv.URL)
	return NewOllamaTextEmbedder(client, "nomic-embed-text"), srv.Close
}

func TestEmbedQueryReturnsVector(t *testing.T) {
	e, closeSrv := newTestEmbedder(t, 8)
	defer closeSrv()

	vec, err := e.EmbedQuery(context.Background(), "hello world")
	require.NoError(t, err)
	require.Len(t, vec, 8)
}

func TestEmbedPassagesRejectsEmptyBatch(t *testing.T) {
	e, closeSrv := newTestEmbedder(t, 8)
	defer closeSrv()

	_, err := e.EmbedPassages(context.Background(), nil)
	require.True(t, ragerrors.Is(err, ragerrors.EmbeddingInputInvalid), "expected EmbeddingInputInvalid, got %v", err)
}

func TestEmbedPassagesRejectsEmptyString(t *testing.T) {
	e, closeSrv := newTestEmbedder(t, 8)
	defer closeSrv()

	_, err := e.EmbedPassages(context.Background(), []string{"fine", "   "})
	require.True(t, ragerrors.Is(err, ragerrors.EmbeddingInputInvalid), "expected EmbeddingInputInvalid, got %v", err)
}

func TestDimensionIsCachedAfterFirstProbe(t *testing.T) {
	e, closeSrv := newTestEmbedder(t, 16)
	defer closeSrv()

	d1, err := e.Dimension(context.Background())
	require.NoError(t, err)
	closeSrv() // server gone — second call must use the cached value
	d2, err := e.Dimension(context.Background())
	require.NoError(t, err, "unexpected error on cached dimension")
	require.Equal(t, 16, d1)
	require.Equal(t, 16, d2)
}

func TestEmbedUnavailableWhenBackendUnreachable(t *testing.T) {
	client := ollamaclient.New("http://127.0.0.1:1") // nothing listening
	e := NewOllamaTextEmbedder(client, "nomic-embed-text")

	_, err := e.EmbedQuery(context.Background(), "hello")
	require.True(t, ragerrors.Is(err, ragerrors.EmbeddingUnavailable), "expected EmbeddingUnavailable, got %v", err)
}
