package storemeta

import (
	"strconv"
	"time"

	"github.com/localrag/localrag/pkg/docmodel"
)

// Fixed persisted metadata keys (spec §6's persisted-state table).
const (
	metaDocumentID   = "document_id"
	metaDocumentName = "document_name"
	metaSource       = "source"
	metaDocType      = "doc_type"
	metaChunkID      = "chunk_id"
	metaChunkIndex   = "chunk_index"
	metaStartChar    = "start_char"
	metaEndChar      = "end_char"
	metaSize         = "size"

	metaImageID        = "id"
	metaImageFilePath  = "file_path"
	metaImageFileName  = "file_name"
	metaImageType      = "image_type"
	metaImageCaption   = "caption"
	metaImageCreatedAt = "created_at"
)

// ChunkMetadata builds the full persisted-metadata record for a chunk,
// combining its structural fields with whatever the chunker (or a
// caller-supplied tag set) put in c.Metadata. Caller-supplied nested
// values (e.g. tag lists) are expected to already carry a "custom_"
// prefix per spec §6.
func ChunkMetadata(c docmodel.Chunk) map[string]any {
	m := map[string]any{
		metaDocumentID: c.DocumentID,
		metaChunkID:    c.ID,
		metaChunkIndex: c.Index,
		metaStartChar:  c.Start,
		metaEndChar:    c.End,
		metaSize:       c.Size(),
	}
	for k, v := range c.Metadata {
		m[k] = v
	}
	return m
}

// ImageMetadata builds the full persisted-metadata record for an image.
func ImageMetadata(img docmodel.ImageDoc) map[string]any {
	m := map[string]any{
		metaImageID:        img.ID,
		metaImageFilePath:  img.Path,
		metaImageFileName:  img.FileName,
		metaImageType:      img.Type,
		metaImageCaption:   img.Caption,
		metaImageCreatedAt: img.CreatedAt.Format(time.RFC3339),
	}
	for k, v := range img.Metadata {
		m[k] = v
	}
	return m
}

// ChunkFromMetadata reconstructs a Chunk's structural fields from a
// persisted metadata map. Content is populated separately by the
// backend (chunk content is stored as the document body, not metadata).
func ChunkFromMetadata(meta map[string]any) docmodel.Chunk {
	return docmodel.Chunk{
		ID:         stringField(meta, metaChunkID),
		DocumentID: stringField(meta, metaDocumentID),
		Index:      intField(meta, metaChunkIndex),
		Start:      intField(meta, metaStartChar),
		End:        intField(meta, metaEndChar),
		Metadata:   meta,
	}
}

// ImageFromMetadata reconstructs an ImageDoc from a persisted metadata
// map (without image bytes — those are never stored).
func ImageFromMetadata(meta map[string]any) docmodel.ImageDoc {
	createdAt, _ := time.Parse(time.RFC3339, stringField(meta, metaImageCreatedAt))
	return docmodel.ImageDoc{
		ID:        stringField(meta, metaImageID),
		Path:      stringField(meta, metaImageFilePath),
		FileName:  stringField(meta, metaImageFileName),
		Type:      stringField(meta, metaImageType),
		Caption:   stringField(meta, metaImageCaption),
		Metadata:  meta,
		CreatedAt: createdAt,
	}
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func intField(m map[string]any, key string) int {
	v, ok := m[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}
