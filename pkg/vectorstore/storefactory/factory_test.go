package storefactory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/localrag/localrag/pkg/ragerrors"
	"github.com/localrag/localrag/pkg/vectorstore/chromembackend"
	"github.com/localrag/localrag/pkg/vectorstore/qdrantbackend"
)

func TestNewDefaultsToChromemBackend(t *testing.T) {
	store, err := New(Config{PersistDir: t.TempDir(), Dimension: 4})
	require.NoError(t, err)
	require.IsType(t, &chromembackend.Store{}, store)
}

func TestNewBuildsQdrantBackend(t *testing.T) {
	store, err := New(Config{Type: BackendQdrant, Host: "localhost", Dimension: 4})
	require.NoError(t, err)
	require.IsType(t, &qdrantbackend.Store{}, store)
}

func TestNewRejectsNonPositiveDimension(t *testing.T) {
	_, err := New(Config{PersistDir: t.TempDir()})
	require.True(t, ragerrors.Is(err, ragerrors.ConfigInvalid), "expected ConfigInvalid, got %v", err)
}

func TestNewRejectsMissingChromemPersistDir(t *testing.T) {
	_, err := New(Config{Type: BackendChromem, Dimension: 4})
	require.True(t, ragerrors.Is(err, ragerrors.ConfigInvalid), "expected ConfigInvalid, got %v", err)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	_, err := New(Config{Type: "not-a-backend", Dimension: 4})
	require.True(t, ragerrors.Is(err, ragerrors.ConfigInvalid), "expected ConfigInvalid, got %v", err)
}

func TestBuiltChromemStoreInitializes(t *testing.T) {
	store, err := New(Config{PersistDir: t.TempDir(), Dimension: 4})
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))
	defer store.Close()
}
