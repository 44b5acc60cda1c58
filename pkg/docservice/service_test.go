package docservice

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/localrag/localrag/pkg/chunking"
	"github.com/localrag/localrag/pkg/docmodel"
	"github.com/localrag/localrag/pkg/ragerrors"
	"github.com/localrag/localrag/pkg/vectorstore"
	"github.com/localrag/localrag/pkg/vision"
)

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}
func (fakeEmbedder) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}
func (fakeEmbedder) Dimension(ctx context.Context) (int, error) { return 3, nil }

// fakeStore is an in-memory vectorstore.Store sufficient to exercise
// DocumentService without a real backend.
type fakeStore struct {
	docs   map[string][]docmodel.Chunk
	images map[string]docmodel.ImageDoc
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string][]docmodel.Chunk{}, images: map[string]docmodel.ImageDoc{}}
}

func (s *fakeStore) Init(ctx context.Context) error { return nil }

func (s *fakeStore) UpsertChunks(ctx context.Context, chunks []docmodel.Chunk, vecs [][]float32) error {
	if len(chunks) != len(vecs) {
		return ragerrors.New(ragerrors.LengthMismatch, "fakeStore.UpsertChunks", "", nil)
	}
	for _, c := range chunks {
		s.docs[c.DocumentID] = append(s.docs[c.DocumentID], c)
	}
	return nil
}

func (s *fakeStore) UpsertImages(ctx context.Context, imgs []docmodel.ImageDoc, vecs [][]float32) error {
	for _, img := range imgs {
		s.images[img.ID] = img
	}
	return nil
}

func (s *fakeStore) Search(ctx context.Context, qvec []float32, k int, filter map[string]any) ([]docmodel.SearchHit, error) {
	var hits []docmodel.SearchHit
	for docID, chunks := range s.docs {
		for _, c := range chunks {
			hit, _ := docmodel.NewSearchHit(c, 0.9, len(hits)+1, docID, docID, nil, docmodel.ResultTypeText)
			hits = append(hits, hit)
		}
	}
	if len(hits) > k && k > 0 {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *fakeStore) SearchImages(ctx context.Context, qvec []float32, k int, filter map[string]any) ([]docmodel.SearchHit, error) {
	var hits []docmodel.SearchHit
	for _, img := range s.images {
		hit, _ := docmodel.NewSearchHit(docmodel.Chunk{}, 0.9, len(hits)+1, img.FileName, img.Path, nil, docmodel.ResultTypeImage)
		hit.Caption = img.Caption
		hit.ImagePath = img.Path
		hits = append(hits, hit)
	}
	return hits, nil
}

func (s *fakeStore) Delete(ctx context.Context, sel vectorstore.DeleteSelector) (int, error) {
	if err := sel.Validate(); err != nil {
		return 0, err
	}
	chunks, ok := s.docs[sel.DocumentID]
	if !ok {
		return 0, nil
	}
	delete(s.docs, sel.DocumentID)
	return len(chunks), nil
}

func (s *fakeStore) RemoveImage(ctx context.Context, imageID string) (bool, error) {
	if _, ok := s.images[imageID]; !ok {
		return false, nil
	}
	delete(s.images, imageID)
	return true, nil
}

func (s *fakeStore) ListDocuments(ctx context.Context, limit int) ([]vectorstore.DocumentSummary, error) {
	var out []vectorstore.DocumentSummary
	for docID, chunks := range s.docs {
		out = append(out, vectorstore.DocumentSummary{DocumentID: docID, ChunkCount: len(chunks)})
	}
	return out, nil
}

func (s *fakeStore) ListImages(ctx context.Context, limit int) ([]docmodel.ImageDoc, error) {
	var out []docmodel.ImageDoc
	for _, img := range s.images {
		out = append(out, img)
	}
	return out, nil
}

func (s *fakeStore) GetDocumentByID(ctx context.Context, docID string) (*vectorstore.DocumentDetail, error) {
	chunks, ok := s.docs[docID]
	if !ok {
		return nil, nil
	}
	return &vectorstore.DocumentDetail{
		DocumentSummary: vectorstore.DocumentSummary{DocumentID: docID, ChunkCount: len(chunks)},
		Chunks:          chunks,
	}, nil
}

func (s *fakeStore) GetImageByID(ctx context.Context, imageID string) (*docmodel.ImageDoc, error) {
	if img, ok := s.images[imageID]; ok {
		return &img, nil
	}
	return nil, nil
}

func (s *fakeStore) Clear(ctx context.Context) error {
	s.docs = map[string][]docmodel.Chunk{}
	s.images = map[string]docmodel.ImageDoc{}
	return nil
}

func (s *fakeStore) Count(ctx context.Context) (int, int, error) {
	return len(s.docs), len(s.images), nil
}

func (s *fakeStore) SearchMultimodal(ctx context.Context, qvec []float32, k int, weightText, weightImage float64) ([]docmodel.SearchHit, error) {
	return nil, nil
}

func (s *fakeStore) Close() error { return nil }

type fakeCaptioner struct{ caption string }

func (c fakeCaptioner) Caption(ctx context.Context, imagePath, prompt string, maxTokens int) (string, error) {
	return c.caption, nil
}
func (c fakeCaptioner) EmbedImage(ctx context.Context, imagePath string) ([]float32, string, error) {
	return []float32{1, 0, 0}, c.caption, nil
}

func newService(t *testing.T) (*DocumentService, *fakeStore) {
	t.Helper()
	chunker, err := chunking.New(chunking.Config{Size: 100, Overlap: 20})
	require.NoError(t, err)
	store := newFakeStore()
	loader := vision.NewImageLoader(fakeCaptioner{caption: "a solid red square"}, 10, true)
	return New(store, chunker, fakeEmbedder{}, loader), store
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestAddFileIngestsTextAndChunksAreSearchable(t *testing.T) {
	svc, _ := newService(t)
	path := writeTempFile(t, "doc.txt", "Python is a language. It has simple syntax. It is popular and widely used in data science.")

	result, err := svc.AddFile(context.Background(), path, "", nil)
	require.NoError(t, err)
	require.Equal(t, ItemDocument, result.ItemType)
	require.NotZero(t, result.ChunksCount, "expected at least one chunk")

	hits, err := svc.SearchDocuments(context.Background(), "Python", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestAddFileRejectsDirectory(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.AddFile(context.Background(), t.TempDir(), "", nil)
	require.True(t, ragerrors.Is(err, ragerrors.UnsupportedFileType), "expected UnsupportedFileType, got %v", err)
}

func TestAddFileRejectsEmptyFile(t *testing.T) {
	svc, _ := newService(t)
	path := writeTempFile(t, "empty.txt", "   \n  ")
	_, err := svc.AddFile(context.Background(), path, "", nil)
	require.True(t, ragerrors.Is(err, ragerrors.FileEmpty), "expected FileEmpty, got %v", err)
}

func TestAddFileRoutesImageExtensionToImagePipeline(t *testing.T) {
	svc, store := newService(t)
	path := writeTempFile(t, "cat.png", "not-a-real-png-but-fine-for-this-test")

	result, err := svc.AddFile(context.Background(), path, "a custom caption", []string{"pets", "red"})
	require.NoError(t, err)
	require.Equal(t, ItemImage, result.ItemType)
	img, ok := store.images[result.DocumentID]
	require.True(t, ok, "expected image to be stored under id %q", result.DocumentID)
	require.Equal(t, "a custom caption", img.Caption, "expected caption override to take effect")
	require.Equal(t, "pets,red", img.Metadata["custom_tags"])
}

func TestRemoveDocumentDeletesByID(t *testing.T) {
	svc, _ := newService(t)
	path := writeTempFile(t, "doc.txt", "Python is a language. It has simple syntax. It is popular and widely used.")
	added, err := svc.AddFile(context.Background(), path, "", nil)
	require.NoError(t, err)

	result, err := svc.RemoveDocument(context.Background(), added.DocumentID, ItemDocument)
	require.NoError(t, err)
	require.Equal(t, added.ChunksCount, result.DeletedChunks)

	list, err := svc.ListDocuments(context.Background(), 0, false)
	require.NoError(t, err)
	require.Empty(t, list.Documents, "expected document to be gone")
}

func TestRemoveDocumentExplicitTypeFailsWhenNotFound(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.RemoveDocument(context.Background(), "nope", ItemDocument)
	require.True(t, ragerrors.Is(err, ragerrors.NotFound), "expected NotFound, got %v", err)
}

func TestRemoveDocumentAutoTriesDocumentThenImage(t *testing.T) {
	svc, _ := newService(t)
	path := writeTempFile(t, "cat.png", "not-a-real-png")
	added, err := svc.AddFile(context.Background(), path, "", nil)
	require.NoError(t, err)

	result, err := svc.RemoveDocument(context.Background(), added.DocumentID, ItemAuto)
	require.NoError(t, err)
	require.Equal(t, ItemImage, result.ItemType, "expected auto-deletion to fall through to image")
}

func TestClearDocumentsClearsOnlySelectedCollections(t *testing.T) {
	svc, store := newService(t)
	textPath := writeTempFile(t, "doc.txt", "Python is a language. It has simple syntax and is popular.")
	imgPath := writeTempFile(t, "cat.png", "not-a-real-png")
	_, err := svc.AddFile(context.Background(), textPath, "", nil)
	require.NoError(t, err)
	_, err = svc.AddFile(context.Background(), imgPath, "", nil)
	require.NoError(t, err)

	_, _, err = svc.ClearDocuments(context.Background(), true, false)
	require.NoError(t, err)
	require.Empty(t, store.docs, "expected documents cleared")
	require.Len(t, store.images, 1, "expected images untouched")
}
