package ragerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(RetrievalFailed, "Retriever.Retrieve", cause)

	require.ErrorIs(t, err, cause, "expected wrapped cause to satisfy errors.Is")
	got, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, RetrievalFailed, got)
}

func TestErrorIsMatchesByKind(t *testing.T) {
	err := New(QueryEmpty, "Retriever.Retrieve", "query was blank", nil)
	require.True(t, Is(err, QueryEmpty), "expected Is to match same kind")
	require.False(t, Is(err, QuestionEmpty), "expected Is to reject different kind")
}

func TestErrorMessageIncludesAllParts(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := New(EmbeddingUnavailable, "TextEmbedder.EmbedQuery", "backend unreachable", cause)
	msg := err.Error()
	for _, want := range []string{string(EmbeddingUnavailable), "TextEmbedder.EmbedQuery", "backend unreachable", "dial tcp"} {
		require.Contains(t, msg, want)
	}
}

func TestBatchResultSuccess(t *testing.T) {
	ok := BatchResult{Added: 1, Skipped: 3, Errors: []error{fmt.Errorf("x")}}
	require.True(t, ok.Success(), "expected success with at least one added item")

	fail := BatchResult{Added: 0, Skipped: 2}
	require.False(t, fail.Success(), "expected failure with zero added items")
}
