// Package chunking splits Document content into overlapping Chunks using
// a recursive-separator strategy: coarse boundaries (paragraphs) are
// preferred, falling back to progressively finer ones down to a hard
// character slice when nothing else fits within the target size.
package chunking

import (
	"strings"

	"github.com/localrag/localrag/pkg/docmodel"
	"github.com/localrag/localrag/pkg/ragerrors"
)

// defaultSeparators is the ordered cascade from coarsest to finest.
// "" means: no natural boundary left, hard-slice by character.
var defaultSeparators = []string{"\n\n", "\n", "。", ".", " ", ""}

// Chunker splits a Document's content into Chunks, measured in
// characters, not tokens.
type Chunker interface {
	Split(doc docmodel.Document) ([]docmodel.Chunk, error)
}

// Config parameterizes a RecursiveChunker. Size and Overlap are expected
// to already be validated (e.g. by config.Load) but New re-validates
// them defensively since a Chunker may be constructed directly in tests.
type Config struct {
	Size       int
	Overlap    int
	Separators []string // nil uses defaultSeparators
}

// RecursiveChunker implements the recursive-separator algorithm.
type RecursiveChunker struct {
	size       int
	overlap    int
	separators []string
}

// New builds a RecursiveChunker. Returns ragerrors.ConfigInvalid if Size
// isn't positive or Overlap isn't strictly less than Size.
func New(cfg Config) (*RecursiveChunker, error) {
	if cfg.Size <= 0 {
		return nil, ragerrors.New(ragerrors.ConfigInvalid, "chunking.New", "chunk size must be positive", nil)
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.Size {
		return nil, ragerrors.New(ragerrors.ConfigInvalid, "chunking.New", "overlap must be >= 0 and strictly less than chunk size", nil)
	}
	seps := cfg.Separators
	if seps == nil {
		seps = defaultSeparators
	}
	return &RecursiveChunker{size: cfg.Size, overlap: cfg.Overlap, separators: seps}, nil
}

// Split implements Chunker.
func (c *RecursiveChunker) Split(doc docmodel.Document) ([]docmodel.Chunk, error) {
	if doc.Content == "" {
		return nil, nil
	}

	pieces := splitRecursive(doc.Content, 0, c.size, c.separators)
	if len(pieces) == 0 {
		return nil, nil
	}

	chunks := make([]docmodel.Chunk, 0, len(pieces))
	cursor := 0
	var prevEmitted string

	for i, piece := range pieces {
		content := piece
		if i > 0 && c.overlap > 0 {
			content = lastNRunes(prevEmitted, c.overlap) + piece
		}

		byteStart, byteEnd := locate(doc.Content, content, cursor)
		cursor = byteEnd
		// Chunk offsets are counted in characters (runes), not bytes.
		start := runeLen(doc.Content[:byteStart])
		end := start + runeLen(content)

		chunks = append(chunks, docmodel.Chunk{
			Content:    content,
			ID:         docmodel.NewChunkID(doc.Path, i),
			DocumentID: doc.Path,
			Index:      i,
			Start:      start,
			End:        end,
			Metadata: map[string]any{
				"document_name": doc.Name,
				"source":        doc.Source,
				"doc_type":      string(doc.Type),
				"size":          len([]rune(content)),
			},
		})
		prevEmitted = content
	}

	return chunks, nil
}

// locate finds content in source starting the search at cursor
// (first-match policy), working in byte offsets. On a miss it returns
// [cursor, cursor+len(content))
// as a best-effort position — offsets on a chunk are advisory, never a
// correctness dependency.
func locate(source, content string, cursor int) (start, end int) {
	if cursor > len(source) {
		cursor = len(source)
	}
	if idx := strings.Index(source[cursor:], content); idx >= 0 {
		start = cursor + idx
		return start, start + len(content)
	}
	return cursor, cursor + len(content)
}

// splitRecursive packs text into pieces no longer than size, preferring
// the coarsest separator that works and falling back to progressively
// finer ones; seps[len(seps)-1] is always "" (hard character slice).
func splitRecursive(text string, sepIdx int, size int, seps []string) []string {
	if runeLen(text) <= size {
		if text == "" {
			return nil
		}
		return []string{text}
	}
	if sepIdx >= len(seps) {
		return hardSlice(text, size)
	}

	sep := seps[sepIdx]
	if sep == "" {
		return hardSlice(text, size)
	}

	parts := strings.Split(text, sep)
	var pieces []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			pieces = append(pieces, current.String())
			current.Reset()
		}
	}

	for i, part := range parts {
		toAdd := part
		if i > 0 {
			toAdd = sep + part
		}
		if runeLen(current.String())+runeLen(toAdd) <= size {
			current.WriteString(toAdd)
			continue
		}

		flush()
		if runeLen(part) > size {
			pieces = append(pieces, splitRecursive(part, sepIdx+1, size, seps)...)
		} else {
			current.WriteString(part)
		}
	}
	flush()

	return pieces
}

// hardSlice cuts text into size-rune pieces, preserving character
// boundaries (never splitting a multi-byte rune).
func hardSlice(text string, size int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	var out []string
	for i := 0; i < len(runes); i += size {
		j := i + size
		if j > len(runes) {
			j = len(runes)
		}
		out = append(out, string(runes[i:j]))
	}
	return out
}

func runeLen(s string) int {
	return len([]rune(s))
}

// lastNRunes returns the last n runes of s (or all of s if shorter).
func lastNRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
