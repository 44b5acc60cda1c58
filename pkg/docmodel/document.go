// Package docmodel defines the in-memory entities shared by the
// ingestion, retrieval and RAG layers: documents and their chunks,
// images, search hits, and chat history.
package docmodel

import (
	"fmt"
	"time"
)

// DocType tags the kind of source artifact a Document was read from.
type DocType string

const (
	DocTypeText     DocType = "txt"
	DocTypeMarkdown DocType = "md"
	DocTypePDF      DocType = "pdf"
)

// Document is a source artifact before splitting. It is never mutated
// after creation and is never persisted directly — only its Chunks are.
type Document struct {
	Path      string
	Name      string
	Content   string
	Type      DocType
	Source    string
	CreatedAt time.Time
	Metadata  map[string]any
}

// Size returns the character count of the document's content.
func (d Document) Size() int {
	return len([]rune(d.Content))
}

// Chunk is a persisted unit of retrieval for text.
//
// Invariants: End > Start, and Size() == End-Start == the character
// (rune) count of Content at the time the chunk was created. Start/End on a chunk reconstructed
// from a store are advisory only — the splitter's first-match offset
// search can mis-locate content that repeats in the source, so no
// caller should build correctness-critical logic on them.
type Chunk struct {
	Content    string
	ID         string
	DocumentID string
	Index      int
	Start      int
	End        int
	Metadata   map[string]any
}

// Size returns End-Start, the chunk's character length.
func (c Chunk) Size() int {
	return c.End - c.Start
}

// NewChunkID builds the chunk-id format `<doc-id>_chunk_<4-digit-index>`.
func NewChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%04d", documentID, index)
}

// ImageDoc is a persisted unit of retrieval for images.
//
// Invariant: Caption is never empty — callers that disable
// auto-captioning must fall back to "Image: <filename>".
type ImageDoc struct {
	ID         string
	Path       string
	FileName   string
	Type       string
	Caption    string
	Metadata   map[string]any
	CreatedAt  time.Time
	Base64Data string // only populated when inline transport was requested
}

// ResultType distinguishes the modality a SearchHit was retrieved from.
type ResultType string

const (
	ResultTypeText  ResultType = "text"
	ResultTypeImage ResultType = "image"
)

// SearchHit is a single ranked retrieval result. Score is always in
// [0,1]; Rank is 1-based and assigned after sorting.
type SearchHit struct {
	Chunk        Chunk
	Score        float64
	DocumentName string
	Source       string
	Rank         int
	Metadata     map[string]any
	ResultType   ResultType

	// Populated only for ResultTypeImage hits.
	ImagePath string
	Caption   string
}

// NewSearchHit validates and constructs a SearchHit, clamping nothing —
// callers that compute an out-of-range score have a bug, not this
// constructor's job to paper over.
func NewSearchHit(chunk Chunk, score float64, rank int, documentName, source string, metadata map[string]any, resultType ResultType) (SearchHit, error) {
	if score < 0 || score > 1 {
		return SearchHit{}, fmt.Errorf("docmodel: score %v out of [0,1] range", score)
	}
	return SearchHit{
		Chunk:        chunk,
		Score:        score,
		DocumentName: documentName,
		Source:       source,
		Rank:         rank,
		Metadata:     metadata,
		ResultType:   resultType,
	}, nil
}

// ChatRole identifies the speaker of a ChatTurn.
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
	RoleSystem    ChatRole = "system"
)

// ChatTurn is a single role-tagged message in a ChatLog.
type ChatTurn struct {
	Role      ChatRole
	Content   string
	Timestamp time.Time
}

// ChatLog is an ordered sequence of ChatTurns with an optional max
// length. It is owned by a single engine instance and is NOT safe for
// concurrent mutation — a concurrent server must pin one ChatLog per
// session (or construct a fresh one per session) rather than share an
// instance across goroutines.
type ChatLog struct {
	turns      []ChatTurn
	maxHistory int
}

// NewChatLog creates an empty log. maxHistory <= 0 means unbounded.
func NewChatLog(maxHistory int) *ChatLog {
	return &ChatLog{maxHistory: maxHistory}
}

// Append adds a turn, then evicts the oldest turns if the log exceeds
// its configured maximum. Eviction always happens after the append, so
// the most recent maxHistory turns are what remain.
func (l *ChatLog) Append(turn ChatTurn) {
	l.turns = append(l.turns, turn)
	if l.maxHistory > 0 && len(l.turns) > l.maxHistory {
		l.turns = l.turns[len(l.turns)-l.maxHistory:]
	}
}

// Turns returns the current turns in order, oldest first.
func (l *ChatLog) Turns() []ChatTurn {
	out := make([]ChatTurn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Len returns the number of turns currently retained.
func (l *ChatLog) Len() int {
	return len(l.turns)
}

// Clear drops all turns.
func (l *ChatLog) Clear() {
	l.turns = nil
}
