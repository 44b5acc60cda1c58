// Package chromembackend implements vectorstore.Store on top of
// chromem-go, a pure-Go embedded vector database with optional gzip-gob
// file persistence. It needs no external service — the whole store
// lives in one process, per spec §4.4's "embedded backend" contract.
package chromembackend

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/localrag/localrag/pkg/docmodel"
	"github.com/localrag/localrag/pkg/ragerrors"
	"github.com/localrag/localrag/pkg/vectorstore"
	"github.com/localrag/localrag/pkg/vectorstore/storemeta"
)

// Config configures the embedded store.
type Config struct {
	// PersistDir is the on-disk data directory. Empty means in-memory
	// only (nothing survives process restart).
	PersistDir string
	// Dimension is the fixed vector width both collections are created
	// with (resolved by probing the configured TextEmbedder beforehand).
	Dimension int
}

// Store implements vectorstore.Store against chromem-go.
//
// chromem-go's public surface has no "enumerate all documents" call, so
// ListDocuments/ListImages/GetByID are served from an in-process index
// (chunk/image records keyed by id) that this Store maintains alongside
// the vector collections and persists to a sibling gob file — chromem
// owns the vectors, this index owns the aggregation views spec §4.4
// requires.
type Store struct {
	mu sync.RWMutex

	cfg Config
	db  *chromem.DB

	documents *chromem.Collection
	images    *chromem.Collection

	chunkIndex map[string]docmodel.Chunk    // chunk-id -> chunk
	imageIndex map[string]docmodel.ImageDoc // image-id -> image

	closed bool
}

// New constructs a Store. Call Init before use.
func New(cfg Config) *Store {
	return &Store{
		cfg:        cfg,
		chunkIndex: make(map[string]docmodel.Chunk),
		imageIndex: make(map[string]docmodel.ImageDoc),
	}
}

func (s *Store) vectorsPath() string {
	return filepath.Join(s.cfg.PersistDir, "vectors.gob.gz")
}

func (s *Store) indexPath() string {
	return filepath.Join(s.cfg.PersistDir, "index.gob")
}

// Init implements vectorstore.Store.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.PersistDir != "" {
		if err := os.MkdirAll(s.cfg.PersistDir, 0o755); err != nil {
			return ragerrors.New(ragerrors.ConfigInvalid, "chromembackend.Init", "cannot create persist directory", err)
		}
	}

	var db *chromem.DB
	if s.cfg.PersistDir != "" {
		if _, err := os.Stat(s.vectorsPath()); err == nil {
			loaded, err := chromem.NewPersistentDB(s.vectorsPath(), true)
			if err != nil {
				return ragerrors.New(ragerrors.ConfigInvalid, "chromembackend.Init", "cannot load persisted vector database", err)
			}
			db = loaded
		}
	}
	if db == nil {
		db = chromem.NewDB()
	}
	s.db = db

	identityEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("chromembackend: embedding function invoked, vectors must be pre-computed")
	}

	documents, err := s.db.GetOrCreateCollection(vectorstore.CollectionDocuments, nil, identityEmbed)
	if err != nil {
		return ragerrors.New(ragerrors.ConfigInvalid, "chromembackend.Init", "cannot create documents collection", err)
	}
	images, err := s.db.GetOrCreateCollection(vectorstore.CollectionImages, nil, identityEmbed)
	if err != nil {
		return ragerrors.New(ragerrors.ConfigInvalid, "chromembackend.Init", "cannot create images collection", err)
	}
	s.documents = documents
	s.images = images

	if s.cfg.PersistDir != "" {
		if err := s.loadIndex(); err != nil {
			return ragerrors.New(ragerrors.ConfigInvalid, "chromembackend.Init", "cannot load document index", err)
		}
	}

	return nil
}

func (s *Store) loadIndex() error {
	f, err := os.Open(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	var snapshot struct {
		Chunks map[string]docmodel.Chunk
		Images map[string]docmodel.ImageDoc
	}
	if err := gob.NewDecoder(f).Decode(&snapshot); err != nil {
		return err
	}
	if snapshot.Chunks != nil {
		s.chunkIndex = snapshot.Chunks
	}
	if snapshot.Images != nil {
		s.imageIndex = snapshot.Images
	}
	return nil
}

// persistIndex must be called with s.mu held.
func (s *Store) persistIndex() error {
	if s.cfg.PersistDir == "" {
		return nil
	}
	f, err := os.Create(s.indexPath())
	if err != nil {
		return err
	}
	defer f.Close()

	snapshot := struct {
		Chunks map[string]docmodel.Chunk
		Images map[string]docmodel.ImageDoc
	}{Chunks: s.chunkIndex, Images: s.imageIndex}
	return gob.NewEncoder(f).Encode(snapshot)
}

// persistVectors must be called with s.mu held.
func (s *Store) persistVectors() error {
	if s.cfg.PersistDir == "" {
		return nil
	}
	//nolint:staticcheck // chromem-go's Export is the only persistence API it offers
	return s.db.Export(s.vectorsPath(), true, "")
}

// checkDimension enforces the fixed vector width the store was created
// with, matching spec §4.4's "fixed vector dimension" contract. A
// Dimension of 0 (not configured) skips the check.
func (s *Store) checkDimension(vec []float32) error {
	if s.cfg.Dimension > 0 && len(vec) != s.cfg.Dimension {
		return ragerrors.New(ragerrors.DimensionMismatch, "Store.checkDimension",
			fmt.Sprintf("vector has dimension %d, store was created with %d", len(vec), s.cfg.Dimension), nil)
	}
	return nil
}

func (s *Store) requireOpen(op string) error {
	if s.closed {
		return ragerrors.New(ragerrors.StoreClosed, op, "store is closed", nil)
	}
	return nil
}

// UpsertChunks implements vectorstore.Store.
func (s *Store) UpsertChunks(ctx context.Context, chunks []docmodel.Chunk, vecs [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOpen("Store.UpsertChunks"); err != nil {
		return err
	}
	if len(chunks) != len(vecs) {
		return ragerrors.New(ragerrors.LengthMismatch, "Store.UpsertChunks",
			fmt.Sprintf("chunks (%d) and vectors (%d) must be equal length", len(chunks), len(vecs)), nil)
	}
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for i, c := range chunks {
		if err := s.checkDimension(vecs[i]); err != nil {
			return err
		}
		docs = append(docs, chromem.Document{
			ID:        c.ID,
			Content:   c.Content,
			Metadata:  stringifyMetadata(storemeta.ChunkMetadata(c)),
			Embedding: vecs[i],
		})
		s.chunkIndex[c.ID] = c
	}
	if err := s.documents.AddDocuments(ctx, docs, 1); err != nil {
		return ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.UpsertChunks", err)
	}

	if err := s.persistVectors(); err != nil {
		return ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.UpsertChunks", err)
	}
	return s.persistIndex()
}

// UpsertImages implements vectorstore.Store.
func (s *Store) UpsertImages(ctx context.Context, imgs []docmodel.ImageDoc, vecs [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOpen("Store.UpsertImages"); err != nil {
		return err
	}
	if len(imgs) != len(vecs) {
		return ragerrors.New(ragerrors.LengthMismatch, "Store.UpsertImages",
			fmt.Sprintf("images (%d) and vectors (%d) must be equal length", len(imgs), len(vecs)), nil)
	}
	if len(imgs) == 0 {
		return nil
	}

	docs := make([]chromem.Document, 0, len(imgs))
	for i, img := range imgs {
		if err := s.checkDimension(vecs[i]); err != nil {
			return err
		}
		docs = append(docs, chromem.Document{
			ID:        img.ID,
			Content:   img.Caption,
			Metadata:  stringifyMetadata(storemeta.ImageMetadata(img)),
			Embedding: vecs[i],
		})
		s.imageIndex[img.ID] = img
	}
	if err := s.images.AddDocuments(ctx, docs, 1); err != nil {
		return ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.UpsertImages", err)
	}

	if err := s.persistVectors(); err != nil {
		return ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.UpsertImages", err)
	}
	return s.persistIndex()
}

// Search implements vectorstore.Store.
func (s *Store) Search(ctx context.Context, qvec []float32, k int, filter map[string]any) ([]docmodel.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireOpen("Store.Search"); err != nil {
		return nil, err
	}
	return s.searchCollection(ctx, s.documents, qvec, k, filter, docmodel.ResultTypeText)
}

// SearchImages implements vectorstore.Store.
func (s *Store) SearchImages(ctx context.Context, qvec []float32, k int, filter map[string]any) ([]docmodel.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireOpen("Store.SearchImages"); err != nil {
		return nil, err
	}
	return s.searchCollection(ctx, s.images, qvec, k, filter, docmodel.ResultTypeImage)
}

func (s *Store) searchCollection(ctx context.Context, col *chromem.Collection, qvec []float32, k int, filter map[string]any, resultType docmodel.ResultType) ([]docmodel.SearchHit, error) {
	if col.Count() == 0 {
		return nil, nil
	}
	limit := k
	if limit > col.Count() {
		limit = col.Count()
	}
	if limit <= 0 {
		return nil, nil
	}

	where := stringifyFilter(filter)
	results, err := col.QueryEmbedding(ctx, qvec, limit, where, nil)
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.searchCollection", err)
	}

	hits := make([]docmodel.SearchHit, 0, len(results))
	for i, r := range results {
		meta := anyMetadata(r.Metadata)
		score := float64(r.Similarity)
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}

		if resultType == docmodel.ResultTypeImage {
			img := storemeta.ImageFromMetadata(meta)
			hit, err := docmodel.NewSearchHit(docmodel.Chunk{}, score, i+1, img.FileName, img.Path, meta, resultType)
			if err != nil {
				continue
			}
			hit.ImagePath = img.Path
			hit.Caption = img.Caption
			hits = append(hits, hit)
			continue
		}

		chunk := storemeta.ChunkFromMetadata(meta)
		chunk.Content = r.Content
		documentName, _ := meta["document_name"].(string)
		source, _ := meta["source"].(string)
		hit, err := docmodel.NewSearchHit(chunk, score, i+1, documentName, source, meta, resultType)
		if err != nil {
			continue
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Delete implements vectorstore.Store.
func (s *Store) Delete(ctx context.Context, sel vectorstore.DeleteSelector) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOpen("Store.Delete"); err != nil {
		return 0, err
	}
	if err := sel.Validate(); err != nil {
		return 0, err
	}

	var ids []string
	switch {
	case sel.DocumentID != "":
		for id, c := range s.chunkIndex {
			if c.DocumentID == sel.DocumentID {
				ids = append(ids, id)
			}
		}
	case len(sel.ChunkIDs) > 0:
		ids = sel.ChunkIDs
	case len(sel.Where) > 0:
		for id, c := range s.chunkIndex {
			if matchesWhere(c.Metadata, sel.Where) {
				ids = append(ids, id)
			}
		}
	}

	removed := 0
	for _, id := range ids {
		if _, ok := s.chunkIndex[id]; !ok {
			continue
		}
		if err := s.documents.Delete(ctx, nil, nil, id); err != nil {
			return removed, ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.Delete", err)
		}
		delete(s.chunkIndex, id)
		removed++
	}

	if removed > 0 {
		if err := s.persistVectors(); err != nil {
			return removed, ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.Delete", err)
		}
		if err := s.persistIndex(); err != nil {
			return removed, ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.Delete", err)
		}
	}
	return removed, nil
}

func matchesWhere(meta map[string]any, where map[string]any) bool {
	for k, v := range where {
		if fmt.Sprint(meta[k]) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

// RemoveImage implements vectorstore.Store.
func (s *Store) RemoveImage(ctx context.Context, imageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOpen("Store.RemoveImage"); err != nil {
		return false, err
	}
	if _, ok := s.imageIndex[imageID]; !ok {
		return false, nil
	}
	if err := s.images.Delete(ctx, nil, nil, imageID); err != nil {
		return false, ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.RemoveImage", err)
	}
	delete(s.imageIndex, imageID)

	if err := s.persistVectors(); err != nil {
		return true, ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.RemoveImage", err)
	}
	return true, s.persistIndex()
}

// ListDocuments implements vectorstore.Store.
func (s *Store) ListDocuments(ctx context.Context, limit int) ([]vectorstore.DocumentSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireOpen("Store.ListDocuments"); err != nil {
		return nil, err
	}

	byDoc := make(map[string]*vectorstore.DocumentSummary)
	var order []string
	for _, c := range s.chunkIndex {
		sum, ok := byDoc[c.DocumentID]
		if !ok {
			name, _ := c.Metadata["document_name"].(string)
			source, _ := c.Metadata["source"].(string)
			docType, _ := c.Metadata["doc_type"].(string)
			sum = &vectorstore.DocumentSummary{DocumentID: c.DocumentID, Name: name, Source: source, DocType: docType}
			byDoc[c.DocumentID] = sum
			order = append(order, c.DocumentID)
		}
		sum.ChunkCount++
		sum.TotalSize += c.Size()
	}

	sort.Strings(order)
	out := make([]vectorstore.DocumentSummary, 0, len(order))
	for _, id := range order {
		out = append(out, *byDoc[id])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ListImages implements vectorstore.Store.
func (s *Store) ListImages(ctx context.Context, limit int) ([]docmodel.ImageDoc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireOpen("Store.ListImages"); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(s.imageIndex))
	for id := range s.imageIndex {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]docmodel.ImageDoc, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.imageIndex[id])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// GetDocumentByID implements vectorstore.Store.
func (s *Store) GetDocumentByID(ctx context.Context, docID string) (*vectorstore.DocumentDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireOpen("Store.GetDocumentByID"); err != nil {
		return nil, err
	}

	var chunks []docmodel.Chunk
	for _, c := range s.chunkIndex {
		if c.DocumentID == docID {
			chunks = append(chunks, c)
		}
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })

	name, _ := chunks[0].Metadata["document_name"].(string)
	source, _ := chunks[0].Metadata["source"].(string)
	docType, _ := chunks[0].Metadata["doc_type"].(string)
	totalSize := 0
	for _, c := range chunks {
		totalSize += c.Size()
	}

	return &vectorstore.DocumentDetail{
		DocumentSummary: vectorstore.DocumentSummary{
			DocumentID: docID, Name: name, Source: source, DocType: docType,
			ChunkCount: len(chunks), TotalSize: totalSize,
		},
		Chunks: chunks,
	}, nil
}

// GetImageByID implements vectorstore.Store.
func (s *Store) GetImageByID(ctx context.Context, imageID string) (*docmodel.ImageDoc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireOpen("Store.GetImageByID"); err != nil {
		return nil, err
	}
	img, ok := s.imageIndex[imageID]
	if !ok {
		return nil, nil
	}
	return &img, nil
}

// Clear implements vectorstore.Store.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOpen("Store.Clear"); err != nil {
		return err
	}

	if err := s.db.DeleteCollection(vectorstore.CollectionDocuments); err != nil {
		return ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.Clear", err)
	}
	if err := s.db.DeleteCollection(vectorstore.CollectionImages); err != nil {
		return ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.Clear", err)
	}

	identityEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("chromembackend: embedding function invoked, vectors must be pre-computed")
	}
	documents, err := s.db.GetOrCreateCollection(vectorstore.CollectionDocuments, nil, identityEmbed)
	if err != nil {
		return ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.Clear", err)
	}
	images, err := s.db.GetOrCreateCollection(vectorstore.CollectionImages, nil, identityEmbed)
	if err != nil {
		return ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.Clear", err)
	}
	s.documents = documents
	s.images = images
	s.chunkIndex = make(map[string]docmodel.Chunk)
	s.imageIndex = make(map[string]docmodel.ImageDoc)

	if err := s.persistVectors(); err != nil {
		return ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.Clear", err)
	}
	return s.persistIndex()
}

// Count implements vectorstore.Store.
func (s *Store) Count(ctx context.Context) (textCount, imageCount int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireOpen("Store.Count"); err != nil {
		return 0, 0, err
	}
	return s.documents.Count(), s.images.Count(), nil
}

// SearchMultimodal implements vectorstore.Store (spec §4.6).
func (s *Store) SearchMultimodal(ctx context.Context, qvec []float32, k int, weightText, weightImage float64) ([]docmodel.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireOpen("Store.SearchMultimodal"); err != nil {
		return nil, err
	}

	var textHits, imageHits []docmodel.SearchHit
	var textErr, imageErr error

	var g sync.WaitGroup
	g.Add(2)
	go func() {
		defer g.Done()
		textHits, textErr = s.searchCollection(ctx, s.documents, qvec, k, nil, docmodel.ResultTypeText)
	}()
	go func() {
		defer g.Done()
		imageHits, imageErr = s.searchCollection(ctx, s.images, qvec, k, nil, docmodel.ResultTypeImage)
	}()
	g.Wait()

	// Degrade gracefully: only fail the call outright if BOTH collection
	// searches failed. A single-sided failure still returns the hits
	// that succeeded.
	if textErr != nil && imageErr != nil {
		return nil, ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.SearchMultimodal", textErr)
	}

	merged := make([]docmodel.SearchHit, 0, len(textHits)+len(imageHits))
	for _, h := range textHits {
		h.Score *= weightText
		merged = append(merged, h)
	}
	for _, h := range imageHits {
		h.Score *= weightImage
		merged = append(merged, h)
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > k {
		merged = merged[:k]
	}
	for i := range merged {
		merged[i].Rank = i + 1
	}
	return merged, nil
}

// Close implements vectorstore.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.persistVectors(); err != nil {
		return err
	}
	return s.persistIndex()
}

func stringifyMetadata(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func anyMetadata(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
