// Package qdrantbackend implements vectorstore.Store against a remote
// Qdrant server over its native gRPC protocol — the "remote backend" of
// spec §4.4, for deployments that want the index out of process.
package qdrantbackend

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"github.com/localrag/localrag/pkg/docmodel"
	"github.com/localrag/localrag/pkg/ragerrors"
	"github.com/localrag/localrag/pkg/vectorstore"
	"github.com/localrag/localrag/pkg/vectorstore/storemeta"
)

// Config configures the remote store.
type Config struct {
	Host      string
	Port      int // gRPC port, default 6334
	APIKey    string
	UseTLS    bool
	Dimension int // fixed vector width both collections are created with
}

// Store implements vectorstore.Store against Qdrant.
type Store struct {
	mu     sync.RWMutex
	client *qdrant.Client
	cfg    Config
	closed bool
}

// New builds a Store. Call Init before use.
func New(cfg Config) (*Store, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, ragerrors.New(ragerrors.ConfigInvalid, "qdrantbackend.New",
			fmt.Sprintf("cannot create qdrant client for %s:%d (is Qdrant running?)", cfg.Host, cfg.Port), err)
	}
	return &Store{client: client, cfg: cfg}, nil
}

// Init implements vectorstore.Store: creates both collections with the
// fixed dimension and cosine distance if they don't already exist.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range []string{vectorstore.CollectionDocuments, vectorstore.CollectionImages} {
		if err := s.ensureCollection(ctx, name); err != nil {
			return ragerrors.New(ragerrors.ConfigInvalid, "Store.Init", "cannot create collection "+name, err)
		}
	}
	return nil
}

func (s *Store) ensureCollection(ctx context.Context, name string) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	dim := s.cfg.Dimension
	if dim <= 0 {
		dim = 1 // placeholder width; the collection is not resized later, so vectors of any other width are rejected
	}
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func (s *Store) requireOpen(op string) error {
	if s.closed {
		return ragerrors.New(ragerrors.StoreClosed, op, "store is closed", nil)
	}
	return nil
}

func (s *Store) checkDimension(vec []float32) error {
	if s.cfg.Dimension > 0 && len(vec) != s.cfg.Dimension {
		return ragerrors.New(ragerrors.DimensionMismatch, "Store.checkDimension",
			fmt.Sprintf("vector has dimension %d, store was created with %d", len(vec), s.cfg.Dimension), nil)
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

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, c := range chunks {
		if err := s.checkDimension(vecs[i]); err != nil {
			return err
		}
		payload, err := toPayload(storemeta.ChunkMetadata(c), c.Content)
		if err != nil {
			return ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.UpsertChunks", err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(c.ID),
			Vectors: qdrant.NewVectors(vecs[i]...),
			Payload: payload,
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: vectorstore.CollectionDocuments,
		Points:         points,
	})
	if err != nil {
		return ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.UpsertChunks", err)
	}
	return nil
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

	points := make([]*qdrant.PointStruct, 0, len(imgs))
	for i, img := range imgs {
		if err := s.checkDimension(vecs[i]); err != nil {
			return err
		}
		payload, err := toPayload(storemeta.ImageMetadata(img), img.Caption)
		if err != nil {
			return ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.UpsertImages", err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(img.ID),
			Vectors: qdrant.NewVectors(vecs[i]...),
			Payload: payload,
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: vectorstore.CollectionImages,
		Points:         points,
	})
	if err != nil {
		return ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.UpsertImages", err)
	}
	return nil
}

// Search implements vectorstore.Store.
func (s *Store) Search(ctx context.Context, qvec []float32, k int, filter map[string]any) ([]docmodel.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireOpen("Store.Search"); err != nil {
		return nil, err
	}
	return s.search(ctx, vectorstore.CollectionDocuments, qvec, k, filter, docmodel.ResultTypeText)
}

// SearchImages implements vectorstore.Store.
func (s *Store) SearchImages(ctx context.Context, qvec []float32, k int, filter map[string]any) ([]docmodel.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireOpen("Store.SearchImages"); err != nil {
		return nil, err
	}
	return s.search(ctx, vectorstore.CollectionImages, qvec, k, filter, docmodel.ResultTypeImage)
}

func (s *Store) search(ctx context.Context, collection string, qvec []float32, k int, filter map[string]any, resultType docmodel.ResultType) ([]docmodel.SearchHit, error) {
	req := &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         qvec,
		Limit:          uint64(k),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	}
	if len(filter) > 0 {
		req.Filter = buildFilter(filter)
	}

	result, err := s.client.GetPointsClient().Search(ctx, req)
	if err != nil {
		if isNotFoundCollection(err) {
			return nil, nil
		}
		return nil, ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.search", err)
	}

	hits := make([]docmodel.SearchHit, 0, len(result.Result))
	for i, point := range result.Result {
		meta := fromPayload(point.Payload)
		score := float64(point.Score)

		if resultType == docmodel.ResultTypeImage {
			img := storemeta.ImageFromMetadata(meta)
			hit, err := docmodel.NewSearchHit(docmodel.Chunk{}, clamp(score), i+1, img.FileName, img.Path, meta, resultType)
			if err != nil {
				continue
			}
			hit.ImagePath = img.Path
			hit.Caption = img.Caption
			hits = append(hits, hit)
			continue
		}

		chunk := storemeta.ChunkFromMetadata(meta)
		if content, ok := meta["content"].(string); ok {
			chunk.Content = content
		}
		documentName, _ := meta["document_name"].(string)
		source, _ := meta["source"].(string)
		hit, err := docmodel.NewSearchHit(chunk, clamp(score), i+1, documentName, source, meta, resultType)
		if err != nil {
			continue
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func isNotFoundCollection(err error) bool {
	return strings.Contains(err.Error(), "doesn't exist") || strings.Contains(err.Error(), "not found")
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

	var selector *qdrant.PointsSelector
	switch {
	case sel.DocumentID != "":
		selector = &qdrant.PointsSelector{PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
			Filter: buildFilter(map[string]any{"document_id": sel.DocumentID}),
		}}
	case len(sel.ChunkIDs) > 0:
		ids := make([]*qdrant.PointId, 0, len(sel.ChunkIDs))
		for _, id := range sel.ChunkIDs {
			ids = append(ids, qdrant.NewID(id))
		}
		selector = &qdrant.PointsSelector{PointsSelectorOneOf: &qdrant.PointsSelector_Points{
			Points: &qdrant.PointsIdsList{Ids: ids},
		}}
	case len(sel.Where) > 0:
		selector = &qdrant.PointsSelector{PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
			Filter: buildFilter(sel.Where),
		}}
	}

	// Count matching points first so we can report how many were removed
	// (Qdrant's delete response doesn't return a count).
	before, err := s.countMatching(ctx, vectorstore.CollectionDocuments, selector)
	if err != nil {
		return 0, ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.Delete", err)
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: vectorstore.CollectionDocuments,
		Points:         selector,
	})
	if err != nil {
		return 0, ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.Delete", err)
	}
	return before, nil
}

func (s *Store) countMatching(ctx context.Context, collection string, selector *qdrant.PointsSelector) (int, error) {
	var filter *qdrant.Filter
	if selector != nil {
		if f, ok := selector.PointsSelectorOneOf.(*qdrant.PointsSelector_Filter); ok {
			filter = f.Filter
		}
	}
	exact := true
	resp, err := s.client.GetPointsClient().Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Filter:         filter,
		Exact:          &exact,
	})
	if err != nil {
		return 0, err
	}
	return int(resp.GetResult().GetCount()), nil
}

// RemoveImage implements vectorstore.Store.
func (s *Store) RemoveImage(ctx context.Context, imageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOpen("Store.RemoveImage"); err != nil {
		return false, err
	}

	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: vectorstore.CollectionImages,
		Ids:            []*qdrant.PointId{qdrant.NewID(imageID)},
	})
	if err != nil || len(points) == 0 {
		return false, nil
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: vectorstore.CollectionImages,
		Points: &qdrant.PointsSelector{PointsSelectorOneOf: &qdrant.PointsSelector_Points{
			Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{qdrant.NewID(imageID)}},
		}},
	})
	if err != nil {
		return false, ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.RemoveImage", err)
	}
	return true, nil
}

// ListDocuments implements vectorstore.Store.
func (s *Store) ListDocuments(ctx context.Context, limit int) ([]vectorstore.DocumentSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireOpen("Store.ListDocuments"); err != nil {
		return nil, err
	}

	points, err := s.scrollAll(ctx, vectorstore.CollectionDocuments)
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.ListDocuments", err)
	}

	byDoc := make(map[string]*vectorstore.DocumentSummary)
	var order []string
	for _, p := range points {
		meta := fromPayload(p.Payload)
		chunk := storemeta.ChunkFromMetadata(meta)
		sum, ok := byDoc[chunk.DocumentID]
		if !ok {
			name, _ := meta["document_name"].(string)
			source, _ := meta["source"].(string)
			docType, _ := meta["doc_type"].(string)
			sum = &vectorstore.DocumentSummary{DocumentID: chunk.DocumentID, Name: name, Source: source, DocType: docType}
			byDoc[chunk.DocumentID] = sum
			order = append(order, chunk.DocumentID)
		}
		sum.ChunkCount++
		sum.TotalSize += chunk.Size()
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

	points, err := s.scrollAll(ctx, vectorstore.CollectionImages)
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.ListImages", err)
	}

	out := make([]docmodel.ImageDoc, 0, len(points))
	for _, p := range points {
		out = append(out, storemeta.ImageFromMetadata(fromPayload(p.Payload)))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) scrollAll(ctx context.Context, collection string) ([]*qdrant.RetrievedPoint, error) {
	withPayload := qdrant.NewWithPayload(true)
	resp, err := s.client.GetPointsClient().Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		WithPayload:    withPayload,
		Limit:          uint32Ptr(10000),
	})
	if err != nil {
		if isNotFoundCollection(err) {
			return nil, nil
		}
		return nil, err
	}
	return resp.GetResult(), nil
}

// GetDocumentByID implements vectorstore.Store.
func (s *Store) GetDocumentByID(ctx context.Context, docID string) (*vectorstore.DocumentDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireOpen("Store.GetDocumentByID"); err != nil {
		return nil, err
	}

	withPayload := qdrant.NewWithPayload(true)
	resp, err := s.client.GetPointsClient().Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: vectorstore.CollectionDocuments,
		Filter:         buildFilter(map[string]any{"document_id": docID}),
		WithPayload:    withPayload,
		Limit:          uint32Ptr(10000),
	})
	if err != nil {
		if isNotFoundCollection(err) {
			return nil, nil
		}
		return nil, ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.GetDocumentByID", err)
	}

	points := resp.GetResult()
	if len(points) == 0 {
		return nil, nil
	}

	chunks := make([]docmodel.Chunk, 0, len(points))
	totalSize := 0
	var name, source, docType string
	for _, p := range points {
		meta := fromPayload(p.Payload)
		chunk := storemeta.ChunkFromMetadata(meta)
		if content, ok := meta["content"].(string); ok {
			chunk.Content = content
		}
		chunks = append(chunks, chunk)
		totalSize += chunk.Size()
		name, _ = meta["document_name"].(string)
		source, _ = meta["source"].(string)
		docType, _ = meta["doc_type"].(string)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })

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

	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: vectorstore.CollectionImages,
		Ids:            []*qdrant.PointId{qdrant.NewID(imageID)},
	})
	if err != nil || len(points) == 0 {
		return nil, nil
	}
	img := storemeta.ImageFromMetadata(fromPayload(points[0].Payload))
	return &img, nil
}

// Clear implements vectorstore.Store.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOpen("Store.Clear"); err != nil {
		return err
	}

	for _, name := range []string{vectorstore.CollectionDocuments, vectorstore.CollectionImages} {
		if err := s.client.DeleteCollection(ctx, name); err != nil {
			return ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.Clear", err)
		}
		if err := s.ensureCollection(ctx, name); err != nil {
			return ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.Clear", err)
		}
	}
	return nil
}

// Count implements vectorstore.Store.
func (s *Store) Count(ctx context.Context) (textCount, imageCount int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireOpen("Store.Count"); err != nil {
		return 0, 0, err
	}

	exact := true
	textResp, err := s.client.GetPointsClient().Count(ctx, &qdrant.CountPoints{CollectionName: vectorstore.CollectionDocuments, Exact: &exact})
	if err != nil {
		return 0, 0, ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.Count", err)
	}
	imageResp, err := s.client.GetPointsClient().Count(ctx, &qdrant.CountPoints{CollectionName: vectorstore.CollectionImages, Exact: &exact})
	if err != nil {
		return 0, 0, ragerrors.Wrap(ragerrors.RetrievalFailed, "Store.Count", err)
	}
	return int(textResp.GetResult().GetCount()), int(imageResp.GetResult().GetCount()), nil
}

// SearchMultimodal implements vectorstore.Store (spec §4.6): issues both
// single-collection searches concurrently.
func (s *Store) SearchMultimodal(ctx context.Context, qvec []float32, k int, weightText, weightImage float64) ([]docmodel.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireOpen("Store.SearchMultimodal"); err != nil {
		return nil, err
	}

	var textHits, imageHits []docmodel.SearchHit
	var textErr, imageErr error
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		textHits, textErr = s.search(ctx, vectorstore.CollectionDocuments, qvec, k, nil, docmodel.ResultTypeText)
	}()
	go func() {
		defer wg.Done()
		imageHits, imageErr = s.search(ctx, vectorstore.CollectionImages, qvec, k, nil, docmodel.ResultTypeImage)
	}()
	wg.Wait()

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
	return s.client.Close()
}

func buildFilter(filter map[string]any) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for key, value := range filter {
		cond := matchCondition(key, value)
		if cond == nil {
			continue
		}
		conditions = append(conditions, cond)
	}
	return &qdrant.Filter{Must: conditions}
}

// matchCondition builds an equality condition on key for value, picking
// the Match variant that fits value's Go type. Qdrant's Match has no
// exact-value kind for floats, so a float is matched via a Range with
// equal lower and upper bounds instead.
func matchCondition(key string, value any) *qdrant.Condition {
	field := &qdrant.FieldCondition{Key: key}
	switch v := value.(type) {
	case string:
		field.Match = &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}}
	case bool:
		field.Match = &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: v}}
	case int:
		field.Match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: int64(v)}}
	case int32:
		field.Match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: int64(v)}}
	case int64:
		field.Match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: v}}
	case float32:
		f := float64(v)
		field.Range = &qdrant.Range{Gte: &f, Lte: &f}
	case float64:
		field.Range = &qdrant.Range{Gte: &v, Lte: &v}
	default:
		return nil
	}
	return &qdrant.Condition{ConditionOneOf: &qdrant.Condition_Field{Field: field}}
}

// toPayload converts a metadata map (plus the chunk/caption content,
// kept under the "content" key so it round-trips with the vector) into
// Qdrant's native typed Value payload.
func toPayload(meta map[string]any, content string) (map[string]*qdrant.Value, error) {
	payload := make(map[string]*qdrant.Value, len(meta)+1)
	for key, value := range meta {
		val, err := qdrant.NewValue(value)
		if err != nil {
			return nil, fmt.Errorf("metadata key %q: %w", key, err)
		}
		payload[key] = val
	}
	val, err := qdrant.NewValue(content)
	if err != nil {
		return nil, err
	}
	payload["content"] = val
	return payload, nil
}

func fromPayload(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for key, value := range payload {
		switch v := value.Kind.(type) {
		case *qdrant.Value_StringValue:
			out[key] = v.StringValue
		case *qdrant.Value_IntegerValue:
			out[key] = int(v.IntegerValue)
		case *qdrant.Value_DoubleValue:
			out[key] = v.DoubleValue
		case *qdrant.Value_BoolValue:
			out[key] = v.BoolValue
		default:
			out[key] = fmt.Sprint(value)
		}
	}
	return out
}

func uint32Ptr(v uint32) *uint32 { return &v }
