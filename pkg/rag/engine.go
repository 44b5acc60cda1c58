// Package rag implements the text-only and multimodal question-answering
// engines (spec §4.7, §4.8): retrieve context, assemble a prompt, call
// the chat LLM, and optionally track history across turns.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/localrag/localrag/pkg/docmodel"
	"github.com/localrag/localrag/pkg/ollamaclient"
	"github.com/localrag/localrag/pkg/ragerrors"
	"github.com/localrag/localrag/pkg/retrieval"
)

const defaultSystemPreamble = "Answer the question using only the information in the numbered context below. " +
	"If the context is insufficient to answer, say so plainly instead of guessing."

const defaultQATemplate = "Context:\n{context}\n\nQuestion: {question}\n\nAnswer:"

// ChatModel is the chat-completion capability RAGEngine and
// MultimodalEngine depend on, satisfied by *ollamaclient.Client. Taking
// the interface rather than the concrete client lets tests substitute a
// fake instead of talking to a real model server.
type ChatModel interface {
	Chat(ctx context.Context, model string, messages []ollamaclient.ChatMessage) (string, error)
}

// Source is one deduplicated citation surfaced alongside an Answer.
type Source struct {
	Name   string
	Source string
	Score  float64
}

// Answer is the result of RAGEngine.Query / RAGEngine.Chat.
type Answer struct {
	Answer        string
	ContextCount  int
	Sources       []Source
	HistoryLength int
}

// EngineConfig configures prompt assembly and history retention.
type EngineConfig struct {
	SystemPreamble string
	QATemplate     string // must contain {context} and {question}
	MaxHistory     int    // <= 0 means unbounded
}

func (c *EngineConfig) setDefaults() {
	if c.SystemPreamble == "" {
		c.SystemPreamble = defaultSystemPreamble
	}
	if c.QATemplate == "" {
		c.QATemplate = defaultQATemplate
	}
}

// RAGEngine answers questions over a single text VectorStore collection,
// optionally tracking a ChatLog across calls. It is not safe for
// concurrent calls on the same instance (spec §9): a concurrent server
// must construct one engine (or at least one ChatLog) per session.
type RAGEngine struct {
	retriever *retrieval.Retriever
	llm       ChatModel
	model     string
	cfg       EngineConfig
	history   *docmodel.ChatLog
}

// NewRAGEngine builds an engine. cfg's zero values fall back to the
// default preamble/template and unbounded history.
func NewRAGEngine(retriever *retrieval.Retriever, llm ChatModel, model string, cfg EngineConfig) *RAGEngine {
	cfg.setDefaults()
	return &RAGEngine{
		retriever: retriever,
		llm:       llm,
		model:     model,
		cfg:       cfg,
		history:   docmodel.NewChatLog(cfg.MaxHistory),
	}
}

// Query answers question with no chat history involved.
func (e *RAGEngine) Query(ctx context.Context, question string, k int, filter map[string]any, includeSources bool) (Answer, error) {
	if strings.TrimSpace(question) == "" {
		return Answer{}, ragerrors.New(ragerrors.QuestionEmpty, "RAGEngine.Query", "question must not be empty", nil)
	}

	hits, err := e.retriever.Retrieve(ctx, question, k, filter)
	if err != nil {
		return Answer{}, err
	}

	prompt := e.buildPrompt(hits, question, nil)
	content, err := e.generate(ctx, prompt)
	if err != nil {
		return Answer{}, err
	}

	answer := Answer{Answer: content, ContextCount: len(hits)}
	if includeSources {
		answer.Sources = dedupeSources(hits)
	}
	return answer, nil
}

// Chat answers message, appending the exchange to the engine's
// ChatLog. Per spec §4.7 the user turn is appended before
// retrieval/generation; if generation fails, the user turn remains in
// the log but no assistant turn is appended, so a caller can retry.
func (e *RAGEngine) Chat(ctx context.Context, message string, k int, filter map[string]any, includeSources bool) (Answer, error) {
	if strings.TrimSpace(message) == "" {
		return Answer{}, ragerrors.New(ragerrors.QuestionEmpty, "RAGEngine.Chat", "message must not be empty", nil)
	}

	priorTurns := e.history.Turns()
	e.history.Append(docmodel.ChatTurn{Role: docmodel.RoleUser, Content: message})

	hits, err := e.retriever.Retrieve(ctx, message, k, filter)
	if err != nil {
		return Answer{}, err
	}

	prompt := e.buildPrompt(hits, message, priorTurns)
	content, err := e.generate(ctx, prompt)
	if err != nil {
		return Answer{}, err
	}

	e.history.Append(docmodel.ChatTurn{Role: docmodel.RoleAssistant, Content: content})

	answer := Answer{Answer: content, ContextCount: len(hits), HistoryLength: e.history.Len()}
	if includeSources {
		answer.Sources = dedupeSources(hits)
	}
	return answer, nil
}

// buildPrompt renders the system preamble, optional prior-turn history,
// numbered context blocks, and the Q&A template.
func (e *RAGEngine) buildPrompt(hits []docmodel.SearchHit, question string, priorTurns []docmodel.ChatTurn) string {
	var b strings.Builder
	b.WriteString(e.cfg.SystemPreamble)
	b.WriteString("\n\n")

	if len(priorTurns) > 0 {
		for _, t := range priorTurns {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
		}
		b.WriteString("\n")
	}

	var context strings.Builder
	for i, hit := range hits {
		fmt.Fprintf(&context, "[%d] %s\n%s\n\n", i+1, hit.DocumentName, hit.Chunk.Content)
	}

	qa := strings.ReplaceAll(e.cfg.QATemplate, "{context}", strings.TrimRight(context.String(), "\n"))
	qa = strings.ReplaceAll(qa, "{question}", question)
	b.WriteString(qa)
	return b.String()
}

func (e *RAGEngine) generate(ctx context.Context, prompt string) (string, error) {
	content, err := e.llm.Chat(ctx, e.model, []ollamaclient.ChatMessage{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return "", ragerrors.Wrap(ragerrors.GenerationFailed, "RAGEngine.generate", err)
	}
	return content, nil
}

// dedupeSources keeps the first occurrence of each distinct
// hit.Source, preserving order.
func dedupeSources(hits []docmodel.SearchHit) []Source {
	seen := make(map[string]bool, len(hits))
	out := make([]Source, 0, len(hits))
	for _, h := range hits {
		if seen[h.Source] {
			continue
		}
		seen[h.Source] = true
		out = append(out, Source{Name: h.DocumentName, Source: h.Source, Score: h.Score})
	}
	return out
}

// HistoryLength reports the current number of retained chat turns.
func (e *RAGEngine) HistoryLength() int {
	return e.history.Len()
}

// ClearHistory drops all retained chat turns.
func (e *RAGEngine) ClearHistory() {
	e.history.Clear()
}
