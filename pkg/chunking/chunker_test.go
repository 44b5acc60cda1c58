package chunking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/localrag/localrag/pkg/docmodel"
	"github.com/localrag/localrag/pkg/ragerrors"
)

func TestNewRejectsNonPositiveSize(t *testing.T) {
	_, err := New(Config{Size: 0, Overlap: 0})
	require.True(t, ragerrors.Is(err, ragerrors.ConfigInvalid), "expected ConfigInvalid, got %v", err)
}

func TestNewRejectsOverlapNotLessThanSize(t *testing.T) {
	_, err := New(Config{Size: 100, Overlap: 100})
	require.True(t, ragerrors.Is(err, ragerrors.ConfigInvalid), "expected ConfigInvalid, got %v", err)
}

func TestSplitEmptyContentYieldsNoChunks(t *testing.T) {
	c, err := New(Config{Size: 100, Overlap: 20})
	require.NoError(t, err)
	chunks, err := c.Split(docmodel.Document{Path: "doc-1", Content: ""})
	require.NoError(t, err)
	require.Empty(t, chunks)
}

func TestSplitShortContentYieldsOneChunkEqualToInput(t *testing.T) {
	c, err := New(Config{Size: 100, Overlap: 20})
	require.NoError(t, err)
	content := "a short document."
	chunks, err := c.Split(docmodel.Document{Path: "doc-1", Content: content})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, content, chunks[0].Content)
	require.Equal(t, "doc-1_chunk_0000", chunks[0].ID)
}

// TestSplitProducesExpectedCountForLongDocument mirrors the end-to-end
// ingestion scenario: a long text with CHUNK_SIZE=100, CHUNK_OVERLAP=20
// should yield at least 4 chunks.
func TestSplitProducesExpectedCountForLongDocument(t *testing.T) {
	c, err := New(Config{Size: 100, Overlap: 20})
	require.NoError(t, err)

	paragraph := "The quick brown fox jumps over the lazy dog. This sentence is here to pad out the paragraph so it exceeds the configured chunk size by a comfortable margin.\n\n"
	content := strings.Repeat(paragraph, 4)

	doc := docmodel.Document{Path: "doc-2", Content: content}
	chunks, err := c.Split(doc)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 4)
	for i, chunk := range chunks {
		require.Equal(t, i, chunk.Index, "chunk %d", i)
		require.Equal(t, "doc-2", chunk.DocumentID)
	}
}

func TestSplitRetainsOverlapBetweenConsecutiveChunks(t *testing.T) {
	c, err := New(Config{Size: 50, Overlap: 15})
	require.NoError(t, err)

	content := strings.Repeat("word ", 60) // 300 chars, no separators that help much beyond spaces
	chunks, err := c.Split(docmodel.Document{Path: "doc-3", Content: content})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2, "expected at least 2 chunks to exercise overlap")

	for i := 1; i < len(chunks); i++ {
		prevRunes := []rune(chunks[i-1].Content)
		currRunes := []rune(chunks[i].Content)
		overlapLen := 15
		if len(prevRunes) < overlapLen {
			overlapLen = len(prevRunes)
		}
		suffix := string(prevRunes[len(prevRunes)-overlapLen:])
		require.True(t, strings.HasPrefix(string(currRunes), suffix),
			"expected chunk %d to be prefixed by last %d runes of chunk %d", i, overlapLen, i-1)
	}
}

func TestSplitNeverExceedsSizeWithoutOverlapOnHardSlice(t *testing.T) {
	c, err := New(Config{Size: 10, Overlap: 0})
	require.NoError(t, err)
	content := strings.Repeat("x", 55) // no separators at all, forces hard slice
	chunks, err := c.Split(docmodel.Document{Path: "doc-4", Content: content})
	require.NoError(t, err)
	for _, chunk := range chunks {
		require.LessOrEqual(t, len([]rune(chunk.Content)), 10, "expected hard-sliced chunk <= 10 runes")
	}
	joined := strings.Join(chunkContents(chunks), "")
	require.Equal(t, content, joined, "expected rejoined hard-sliced chunks to equal original content")
}

func chunkContents(chunks []docmodel.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}
