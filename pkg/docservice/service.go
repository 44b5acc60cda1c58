// Package docservice implements DocumentService (spec §4.9), the single
// facade both the CLI and the MCP server call into for ingestion,
// listing, removal, search and clearing. Keeping one facade between two
// outer shells avoids the service-importing-handlers-importing-service
// cycle a split design invites.
package docservice

import (
	"context"
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/localrag/localrag/pkg/chunking"
	"github.com/localrag/localrag/pkg/docmodel"
	"github.com/localrag/localrag/pkg/embedding"
	"github.com/localrag/localrag/pkg/ragerrors"
	"github.com/localrag/localrag/pkg/retrieval"
	"github.com/localrag/localrag/pkg/vectorstore"
	"github.com/localrag/localrag/pkg/vision"
)

// imageExtensions is the fixed routing table that decides whether addFile
// takes the image or the text path (spec §4.9's "File dispatch"). Kept
// separate from vision.ImageLoader's own extension check, which is the
// authority once a path is already known to be an image.
var imageExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true,
	"bmp": true, "webp": true, "tiff": true, "tif": true,
}

// ItemType selects which collection removeDocument targets.
type ItemType string

const (
	ItemAuto     ItemType = "auto"
	ItemDocument ItemType = "document"
	ItemImage    ItemType = "image"
)

// AddResult summarizes one addFile call.
type AddResult struct {
	ItemType    ItemType
	DocumentID  string
	ChunksCount int
}

// RemoveResult summarizes one removeDocument call.
type RemoveResult struct {
	ItemType      ItemType
	DeletedChunks int
}

// ListResult is the combined output of listDocuments.
type ListResult struct {
	Documents []vectorstore.DocumentSummary
	Images    []docmodel.ImageDoc
}

// DocumentService wires together chunking, embedding, image loading and
// the vector store behind the single operation set spec §4.9 names.
type DocumentService struct {
	store     vectorstore.Store
	chunker   chunking.Chunker
	embedder  embedding.TextEmbedder
	images    *vision.ImageLoader
	retriever *retrieval.Retriever
}

// New builds a DocumentService. store must already be Init'd by the
// caller (construction here does not call Init, matching the rest of the
// corpus's explicit-lifecycle convention).
func New(store vectorstore.Store, chunker chunking.Chunker, embedder embedding.TextEmbedder, images *vision.ImageLoader) *DocumentService {
	return &DocumentService{
		store:     store,
		chunker:   chunker,
		embedder:  embedder,
		images:    images,
		retriever: retrieval.New(embedder, store),
	}
}

// AddFile ingests path, routing to the image or text pipeline by
// extension. Directory inputs are rejected (spec §4.9). caption, if
// non-empty, overrides the auto-generated image caption; tags, if
// non-empty, are serialized into a custom_tags metadata field.
func (s *DocumentService) AddFile(ctx context.Context, path string, caption string, tags []string) (AddResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return AddResult{}, ragerrors.New(ragerrors.UnsupportedFileType, "DocumentService.AddFile", "cannot stat path", err)
	}
	if info.IsDir() {
		return AddResult{}, ragerrors.New(ragerrors.UnsupportedFileType, "DocumentService.AddFile", "directory inputs are not supported, pass a file", nil)
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if imageExtensions[ext] {
		return s.addImage(ctx, path, caption, tags)
	}
	return s.addText(ctx, path, tags)
}

func (s *DocumentService) addImage(ctx context.Context, path, caption string, tags []string) (AddResult, error) {
	doc, err := s.images.Load(ctx, path)
	if err != nil {
		return AddResult{}, err
	}
	if caption != "" {
		doc.Caption = caption
	}
	if len(tags) > 0 {
		if doc.Metadata == nil {
			doc.Metadata = map[string]any{}
		}
		doc.Metadata["custom_tags"] = strings.Join(tags, ",")
	}

	vec, err := s.embedder.EmbedQuery(ctx, doc.Caption)
	if err != nil {
		return AddResult{}, ragerrors.Wrap(ragerrors.EmbeddingUnavailable, "DocumentService.addImage", err)
	}

	if err := s.store.UpsertImages(ctx, []docmodel.ImageDoc{doc}, [][]float32{vec}); err != nil {
		return AddResult{}, err
	}

	return AddResult{ItemType: ItemImage, DocumentID: doc.ID, ChunksCount: 1}, nil
}

func (s *DocumentService) addText(ctx context.Context, path string, tags []string) (AddResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return AddResult{}, ragerrors.New(ragerrors.UnsupportedFileType, "DocumentService.addText", "cannot read file", err)
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return AddResult{}, ragerrors.New(ragerrors.FileEmpty, "DocumentService.addText", "file has no content", nil)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	hash := md5.Sum([]byte(abs))
	documentID := uuid.NewMD5(uuid.Nil, hash[:]).String()

	doc := docmodel.Document{
		Path:      documentID,
		Name:      filepath.Base(path),
		Content:   string(content),
		Type:      docTypeFor(path),
		Source:    abs,
		CreatedAt: time.Now(),
	}
	if len(tags) > 0 {
		doc.Metadata = map[string]any{"custom_tags": strings.Join(tags, ",")}
	}

	chunks, err := s.chunker.Split(doc)
	if err != nil {
		return AddResult{}, err
	}
	if len(chunks) == 0 {
		return AddResult{}, ragerrors.New(ragerrors.FileEmpty, "DocumentService.addText", "chunking produced no chunks", nil)
	}

	vecs, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return AddResult{}, err
	}

	if err := s.store.UpsertChunks(ctx, chunks, vecs); err != nil {
		return AddResult{}, err
	}

	return AddResult{ItemType: ItemDocument, DocumentID: doc.Path, ChunksCount: len(chunks)}, nil
}

// embedChunks embeds each chunk concurrently, all-or-nothing: a single
// embedding failure aborts the whole ingest rather than persisting a
// partially-embedded document (spec §5's "internal parallelism" clause
// leaves batch-embedding concurrency up to the implementation; an
// all-or-nothing contract is the right one here because a document with
// some chunks embedded and some not is a silently broken document, not a
// recoverable partial result).
func (s *DocumentService) embedChunks(ctx context.Context, chunks []docmodel.Chunk) ([][]float32, error) {
	vecs := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range chunks {
		i, c := i, c
		g.Go(func() error {
			vec, err := s.embedder.EmbedQuery(gctx, c.Content)
			if err != nil {
				return err
			}
			vecs[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, ragerrors.Wrap(ragerrors.EmbeddingUnavailable, "DocumentService.embedChunks", err)
	}
	return vecs, nil
}

// ListDocuments returns document summaries and, if includeImages,
// reconstructed image entries.
func (s *DocumentService) ListDocuments(ctx context.Context, limit int, includeImages bool) (ListResult, error) {
	docs, err := s.store.ListDocuments(ctx, limit)
	if err != nil {
		return ListResult{}, err
	}
	result := ListResult{Documents: docs}
	if includeImages {
		images, err := s.store.ListImages(ctx, limit)
		if err != nil {
			return ListResult{}, err
		}
		result.Images = images
	}
	return result, nil
}

// GetDocumentByID returns aggregated metadata plus ordered chunks, or nil
// if absent.
func (s *DocumentService) GetDocumentByID(ctx context.Context, id string) (*vectorstore.DocumentDetail, error) {
	return s.store.GetDocumentByID(ctx, id)
}

// RemoveDocument deletes itemId under itemType. ItemAuto tries the
// document collection first, then images; ItemDocument/ItemImage fail
// directly if the id isn't found in that collection (spec §4.9's
// "Auto-deletion" clause).
func (s *DocumentService) RemoveDocument(ctx context.Context, itemID string, itemType ItemType) (RemoveResult, error) {
	switch itemType {
	case ItemDocument:
		n, err := s.removeDocumentChunks(ctx, itemID)
		if err != nil {
			return RemoveResult{}, err
		}
		if n == 0 {
			return RemoveResult{}, ragerrors.New(ragerrors.NotFound, "DocumentService.RemoveDocument", fmt.Sprintf("document %q not found", itemID), nil)
		}
		return RemoveResult{ItemType: ItemDocument, DeletedChunks: n}, nil

	case ItemImage:
		existed, err := s.store.RemoveImage(ctx, itemID)
		if err != nil {
			return RemoveResult{}, err
		}
		if !existed {
			return RemoveResult{}, ragerrors.New(ragerrors.NotFound, "DocumentService.RemoveDocument", fmt.Sprintf("image %q not found", itemID), nil)
		}
		return RemoveResult{ItemType: ItemImage, DeletedChunks: 1}, nil

	case ItemAuto, "":
		if n, err := s.removeDocumentChunks(ctx, itemID); err != nil {
			return RemoveResult{}, err
		} else if n > 0 {
			return RemoveResult{ItemType: ItemDocument, DeletedChunks: n}, nil
		}
		existed, err := s.store.RemoveImage(ctx, itemID)
		if err != nil {
			return RemoveResult{}, err
		}
		if existed {
			return RemoveResult{ItemType: ItemImage, DeletedChunks: 1}, nil
		}
		return RemoveResult{}, ragerrors.New(ragerrors.NotFound, "DocumentService.RemoveDocument", fmt.Sprintf("%q not found as a document or image", itemID), nil)

	default:
		return RemoveResult{}, ragerrors.New(ragerrors.EmbeddingInputInvalid, "DocumentService.RemoveDocument", fmt.Sprintf("unknown item type %q", itemType), nil)
	}
}

func (s *DocumentService) removeDocumentChunks(ctx context.Context, documentID string) (int, error) {
	return s.store.Delete(ctx, vectorstore.DeleteSelector{DocumentID: documentID})
}

// SearchDocuments retrieves the top-k text chunks matching q.
func (s *DocumentService) SearchDocuments(ctx context.Context, q string, k int) ([]docmodel.SearchHit, error) {
	return s.retriever.Retrieve(ctx, q, k, nil)
}

// SearchImages retrieves the top-k images matching q.
func (s *DocumentService) SearchImages(ctx context.Context, q string, k int) ([]docmodel.SearchHit, error) {
	return s.retriever.RetrieveImages(ctx, q, k, nil)
}

// ClearDocuments empties the selected collections. When both flags are
// set it takes the store's fast drop-and-recreate path; otherwise it
// deletes per-item, since Store has no partial-collection clear.
func (s *DocumentService) ClearDocuments(ctx context.Context, clearText, clearImages bool) (deletedDocs, deletedImages int, err error) {
	if !clearText && !clearImages {
		return 0, 0, nil
	}
	if clearText && clearImages {
		textCount, imageCount, err := s.store.Count(ctx)
		if err != nil {
			return 0, 0, err
		}
		if err := s.store.Clear(ctx); err != nil {
			return 0, 0, err
		}
		return textCount, imageCount, nil
	}

	if clearText {
		docs, err := s.store.ListDocuments(ctx, 0)
		if err != nil {
			return 0, 0, err
		}
		for _, d := range docs {
			n, err := s.removeDocumentChunks(ctx, d.DocumentID)
			if err != nil {
				return deletedDocs, 0, err
			}
			deletedDocs += n
		}
	}
	if clearImages {
		images, err := s.store.ListImages(ctx, 0)
		if err != nil {
			return deletedDocs, 0, err
		}
		for _, img := range images {
			if _, err := s.store.RemoveImage(ctx, img.ID); err != nil {
				return deletedDocs, deletedImages, err
			}
			deletedImages++
		}
	}
	return deletedDocs, deletedImages, nil
}

func docTypeFor(path string) docmodel.DocType {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "md", "markdown":
		return docmodel.DocTypeMarkdown
	case "pdf":
		return docmodel.DocTypePDF
	default:
		return docmodel.DocTypeText
	}
}
