// Package vectorstore defines the backend-agnostic persistence contract
// for chunk and image vectors (spec §4.4) and the two-collection
// multimodal fusion built on top of it (§4.6). Two backends implement
// Store: an embedded chromem-go store and a remote Qdrant store.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/localrag/localrag/pkg/docmodel"
	"github.com/localrag/localrag/pkg/ragerrors"
)

// Collection names are fixed — backends that can't natively separate
// collections must emulate them (ID prefix or a "collection" metadata
// field), never expose this as a configurable name.
const (
	CollectionDocuments = "documents"
	CollectionImages    = "images"
)

// DocumentSummary aggregates one distinct document-id's chunks.
type DocumentSummary struct {
	DocumentID string
	Name       string
	Source     string
	DocType    string
	ChunkCount int
	TotalSize  int
}

// DocumentDetail is a DocumentSummary plus its chunks, ordered by index.
type DocumentDetail struct {
	DocumentSummary
	Chunks []docmodel.Chunk
}

// DeleteSelector names exactly one delete predicate. Validate enforces
// that exactly one of DocumentID, ChunkIDs, Where is set.
type DeleteSelector struct {
	DocumentID string
	ChunkIDs   []string
	Where      map[string]any
}

// Validate returns MissingDeletePredicate unless exactly one condition
// is set.
func (s DeleteSelector) Validate() error {
	count := 0
	if s.DocumentID != "" {
		count++
	}
	if len(s.ChunkIDs) > 0 {
		count++
	}
	if len(s.Where) > 0 {
		count++
	}
	if count != 1 {
		return ragerrors.New(ragerrors.MissingDeletePredicate, "DeleteSelector.Validate",
			fmt.Sprintf("exactly one of document-id, chunk-ids, where must be set, got %d", count), nil)
	}
	return nil
}

// Store is the backend-agnostic vector persistence contract (spec §4.4).
// All ops accept a context and may block on disk or network I/O.
type Store interface {
	// Init opens/creates persistent resources and both collections with
	// a fixed dimension and cosine distance. Idempotent.
	Init(ctx context.Context) error

	// UpsertChunks inserts or overwrites chunks by chunk-id. chunks and
	// vecs must be equal length or this returns LengthMismatch.
	UpsertChunks(ctx context.Context, chunks []docmodel.Chunk, vecs [][]float32) error

	// UpsertImages inserts or overwrites images by image-id. imgs and
	// vecs must be equal length or this returns LengthMismatch.
	UpsertImages(ctx context.Context, imgs []docmodel.ImageDoc, vecs [][]float32) error

	// Search returns the top-k chunks from the documents collection by
	// cosine similarity, optionally filtered. An empty result is legal.
	Search(ctx context.Context, qvec []float32, k int, filter map[string]any) ([]docmodel.SearchHit, error)

	// SearchImages is Search against the images collection,
	// reconstructing SearchHit with ResultType image.
	SearchImages(ctx context.Context, qvec []float32, k int, filter map[string]any) ([]docmodel.SearchHit, error)

	// Delete removes all chunks matching sel, returning the count
	// removed. sel must Validate successfully.
	Delete(ctx context.Context, sel DeleteSelector) (int, error)

	// RemoveImage deletes an image by id, reporting whether it existed.
	RemoveImage(ctx context.Context, imageID string) (bool, error)

	// ListDocuments returns one summary per distinct document-id. limit
	// <= 0 means unbounded.
	ListDocuments(ctx context.Context, limit int) ([]DocumentSummary, error)

	// ListImages returns reconstructed ImageDocs (without image bytes).
	// limit <= 0 means unbounded.
	ListImages(ctx context.Context, limit int) ([]docmodel.ImageDoc, error)

	// GetDocumentByID returns aggregated metadata plus chunks ordered by
	// index, or nil if absent.
	GetDocumentByID(ctx context.Context, docID string) (*DocumentDetail, error)

	// GetImageByID returns the image or nil if absent.
	GetImageByID(ctx context.Context, imageID string) (*docmodel.ImageDoc, error)

	// Clear drops and recreates both collections, preserving dimension
	// and distance.
	Clear(ctx context.Context) error

	// Count returns the number of entries in each collection.
	Count(ctx context.Context) (textCount, imageCount int, err error)

	// SearchMultimodal is the two-collection weighted fusion of §4.6.
	SearchMultimodal(ctx context.Context, qvec []float32, k int, weightText, weightImage float64) ([]docmodel.SearchHit, error)

	// Close releases resources. After Close, all ops return StoreClosed.
	Close() error
}
