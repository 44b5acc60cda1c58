package rag

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/localrag/localrag/pkg/docmodel"
	"github.com/localrag/localrag/pkg/ragerrors"
	"github.com/localrag/localrag/pkg/retrieval"
	"github.com/localrag/localrag/pkg/vectorstore"
)

type fakeVisionChatModel struct {
	fakeChatModel
	models []string
}

func (f *fakeVisionChatModel) ListModels(ctx context.Context) ([]string, error) {
	return f.models, nil
}

type fakeMultimodalStore struct {
	vectorstore.Store
	hits []docmodel.SearchHit
}

func (f fakeMultimodalStore) SearchMultimodal(ctx context.Context, qvec []float32, k int, weightText, weightImage float64) ([]docmodel.SearchHit, error) {
	return f.hits, nil
}

func newMultimodalEngine(t *testing.T, hits []docmodel.SearchHit, llm *fakeVisionChatModel) *MultimodalEngine {
	t.Helper()
	r := retrieval.New(fakeEmbedder{}, fakeMultimodalStore{hits: hits})
	e, err := NewMultimodalEngine(context.Background(), r, llm, "llava", MultimodalConfig{MaxHistory: 4})
	require.NoError(t, err, "unexpected error constructing engine")
	return e
}

func TestNewMultimodalEngineRejectsMissingModel(t *testing.T) {
	r := retrieval.New(fakeEmbedder{}, fakeMultimodalStore{})
	llm := &fakeVisionChatModel{models: []string{"gemma3:latest"}}
	_, err := NewMultimodalEngine(context.Background(), r, llm, "llava", MultimodalConfig{})
	require.True(t, ragerrors.Is(err, ragerrors.VisionModelMissing), "expected VisionModelMissing, got %v", err)
}

func TestNewMultimodalEngineAcceptsBaseNameMatch(t *testing.T) {
	r := retrieval.New(fakeEmbedder{}, fakeMultimodalStore{})
	llm := &fakeVisionChatModel{models: []string{"llava:13b"}}
	_, err := NewMultimodalEngine(context.Background(), r, llm, "llava", MultimodalConfig{})
	require.NoError(t, err)
}

func TestBuildPromptRendersTextAndImageHitsWithJapaneseLabels(t *testing.T) {
	e := newMultimodalEngine(t, nil, &fakeVisionChatModel{models: []string{"llava"}, fakeChatModel: fakeChatModel{content: "ok"}})

	hits := []docmodel.SearchHit{
		{ResultType: docmodel.ResultTypeText, DocumentName: "a.txt", Chunk: docmodel.Chunk{Content: "some text"}},
		{ResultType: docmodel.ResultTypeImage, DocumentName: "cat.png", Caption: "a cat"},
	}
	prompt := e.buildPrompt(hits, "what is this?", nil)

	require.Contains(t, prompt, "[テキスト 1] a.txt")
	require.Contains(t, prompt, "[画像 2] cat.png")
	require.Contains(t, prompt, "説明: a cat")
}

func TestResolveImagePathsUnionsUserAndRetrievedExistingPaths(t *testing.T) {
	e := newMultimodalEngine(t, nil, &fakeVisionChatModel{models: []string{"llava"}})

	dir := t.TempDir()
	userPath := filepath.Join(dir, "user.png")
	hitPath := filepath.Join(dir, "hit.png")
	missingPath := filepath.Join(dir, "missing.png")
	require.NoError(t, os.WriteFile(userPath, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(hitPath, []byte("x"), 0o644))

	hits := []docmodel.SearchHit{
		{ResultType: docmodel.ResultTypeImage, ImagePath: hitPath},
		{ResultType: docmodel.ResultTypeImage, ImagePath: missingPath},
	}
	paths := e.resolveImagePaths([]string{userPath, missingPath}, hits)

	require.Len(t, paths, 2)
	found := map[string]bool{}
	for _, p := range paths {
		found[p] = true
	}
	require.True(t, found[userPath])
	require.True(t, found[hitPath])
	require.False(t, found[missingPath], "expected missing path to be dropped")
}

func TestQueryWithImagesReturnsAnswerAndSources(t *testing.T) {
	hits := []docmodel.SearchHit{
		{ResultType: docmodel.ResultTypeText, DocumentName: "a.txt", Source: "a.txt", Score: 0.9},
	}
	e := newMultimodalEngine(t, hits, &fakeVisionChatModel{models: []string{"llava"}, fakeChatModel: fakeChatModel{content: "an answer"}})

	answer, err := e.QueryWithImages(context.Background(), "what is this", nil, 3, nil, true)
	require.NoError(t, err)
	require.Equal(t, "an answer", answer.Answer)
	require.Len(t, answer.Sources, 1)
}

func TestChatMultimodalRejectsEmptyMessage(t *testing.T) {
	e := newMultimodalEngine(t, nil, &fakeVisionChatModel{models: []string{"llava"}})
	_, err := e.ChatMultimodal(context.Background(), "", nil, 3, false)
	require.True(t, ragerrors.Is(err, ragerrors.QuestionEmpty), "expected QuestionEmpty, got %v", err)
}
