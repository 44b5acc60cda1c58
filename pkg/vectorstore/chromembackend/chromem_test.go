package chromembackend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/localrag/localrag/pkg/docmodel"
	"github.com/localrag/localrag/pkg/ragerrors"
	"github.com/localrag/localrag/pkg/vectorstore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(Config{PersistDir: t.TempDir(), Dimension: 4})
	require.NoError(t, s.Init(context.Background()))
	return s
}

func TestUpsertChunksRejectsLengthMismatch(t *testing.T) {
	s := newTestStore(t)
	err := s.UpsertChunks(context.Background(), []docmodel.Chunk{{ID: "c1"}}, nil)
	require.True(t, ragerrors.Is(err, ragerrors.LengthMismatch), "expected LengthMismatch, got %v", err)
}

func TestUpsertChunksRejectsDimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	err := s.UpsertChunks(context.Background(),
		[]docmodel.Chunk{{ID: "c1", DocumentID: "d1"}},
		[][]float32{{1, 2}})
	require.True(t, ragerrors.Is(err, ragerrors.DimensionMismatch), "expected DimensionMismatch, got %v", err)
}

func TestUpsertAndSearchRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chunk := docmodel.Chunk{
		ID: "doc-1_chunk_0000", DocumentID: "doc-1", Index: 0, Start: 0, End: 5,
		Content: "hello",
		Metadata: map[string]any{
			"document_name": "doc-1.txt", "source": "doc-1.txt", "doc_type": "txt",
		},
	}
	require.NoError(t, s.UpsertChunks(ctx, []docmodel.Chunk{chunk}, [][]float32{{1, 0, 0, 0}}))

	hits, err := s.Search(ctx, []float32{1, 0, 0, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "doc-1", hits[0].Chunk.DocumentID)
	require.Equal(t, "hello", hits[0].Chunk.Content)
}

func TestDeleteRequiresExactlyOnePredicate(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Delete(context.Background(), vectorstore.DeleteSelector{})
	require.True(t, ragerrors.Is(err, ragerrors.MissingDeletePredicate), "expected MissingDeletePredicate, got %v", err)
}

func TestDeleteByDocumentIDRemovesAllItsChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chunks := []docmodel.Chunk{
		{ID: "doc-1_chunk_0000", DocumentID: "doc-1", Index: 0},
		{ID: "doc-1_chunk_0001", DocumentID: "doc-1", Index: 1},
	}
	vecs := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}
	require.NoError(t, s.UpsertChunks(ctx, chunks, vecs))

	removed, err := s.Delete(ctx, vectorstore.DeleteSelector{DocumentID: "doc-1"})
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	detail, err := s.GetDocumentByID(ctx, "doc-1")
	require.NoError(t, err)
	require.Nil(t, detail, "expected nil detail after delete")
}

func TestListDocumentsAggregatesByDocumentID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chunks := []docmodel.Chunk{
		{ID: "doc-1_chunk_0000", DocumentID: "doc-1", Index: 0, Start: 0, End: 10,
			Metadata: map[string]any{"document_name": "doc-1.txt", "source": "doc-1.txt", "doc_type": "txt"}},
		{ID: "doc-1_chunk_0001", DocumentID: "doc-1", Index: 1, Start: 10, End: 20,
			Metadata: map[string]any{"document_name": "doc-1.txt", "source": "doc-1.txt", "doc_type": "txt"}},
	}
	vecs := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}
	require.NoError(t, s.UpsertChunks(ctx, chunks, vecs))

	docs, err := s.ListDocuments(ctx, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, 2, docs[0].ChunkCount)
}

func TestUpsertImagesAndGetImageByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	img := docmodel.ImageDoc{
		ID: "abcd1234abcd1234", Path: "/tmp/a.png", FileName: "a.png", Type: "png",
		Caption: "a cat", CreatedAt: time.Now(),
	}
	require.NoError(t, s.UpsertImages(ctx, []docmodel.ImageDoc{img}, [][]float32{{0, 0, 1, 0}}))

	got, err := s.GetImageByID(ctx, "abcd1234abcd1234")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "a cat", got.Caption)

	removed, err := s.RemoveImage(ctx, "abcd1234abcd1234")
	require.NoError(t, err)
	require.True(t, removed, "expected image to be removed")
}

func TestClearDropsBothCollections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertChunks(ctx, []docmodel.Chunk{{ID: "c1", DocumentID: "d1"}}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, s.Clear(ctx))

	textCount, imageCount, err := s.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, textCount)
	require.Zero(t, imageCount)
}

func TestOpsFailAfterClose(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())
	_, err := s.Search(context.Background(), []float32{1, 0, 0, 0}, 5, nil)
	require.True(t, ragerrors.Is(err, ragerrors.StoreClosed), "expected StoreClosed, got %v", err)
}

func TestSearchMultimodalMergesAndWeighsBothCollections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chunk := docmodel.Chunk{ID: "doc-1_chunk_0000", DocumentID: "doc-1", Content: "text hit",
		Metadata: map[string]any{"document_name": "doc-1.txt", "source": "doc-1.txt", "doc_type": "txt"}}
	require.NoError(t, s.UpsertChunks(ctx, []docmodel.Chunk{chunk}, [][]float32{{1, 0, 0, 0}}))
	img := docmodel.ImageDoc{ID: "img0000000000001", Path: "/tmp/a.png", FileName: "a.png", Caption: "image hit", CreatedAt: time.Now()}
	require.NoError(t, s.UpsertImages(ctx, []docmodel.ImageDoc{img}, [][]float32{{1, 0, 0, 0}}))

	hits, err := s.SearchMultimodal(ctx, []float32{1, 0, 0, 0}, 5, 0.5, 0.5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for i, h := range hits {
		require.Equal(t, i+1, h.Rank)
		require.LessOrEqual(t, h.Score, 0.5+1e-9)
	}
}
