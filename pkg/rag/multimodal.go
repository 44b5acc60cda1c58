package rag

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/localrag/localrag/pkg/docmodel"
	"github.com/localrag/localrag/pkg/ollamaclient"
	"github.com/localrag/localrag/pkg/ragerrors"
	"github.com/localrag/localrag/pkg/retrieval"
)

const defaultMultimodalPreamble = "Answer the question using the numbered context below, which mixes text " +
	"passages and described images. If the context is insufficient, say so plainly instead of guessing."

// MultimodalConfig configures a MultimodalEngine.
type MultimodalConfig struct {
	SystemPreamble string
	WeightText     float64 // defaults to 0.5
	WeightImage    float64 // defaults to 0.5
	MaxHistory     int
}

func (c *MultimodalConfig) setDefaults() {
	if c.SystemPreamble == "" {
		c.SystemPreamble = defaultMultimodalPreamble
	}
	if c.WeightText == 0 && c.WeightImage == 0 {
		c.WeightText, c.WeightImage = 0.5, 0.5
	}
}

// VisionChatModel is ChatModel plus the model-listing capability
// MultimodalEngine needs at construction to verify its vision model is
// actually installed.
type VisionChatModel interface {
	ChatModel
	ListModels(ctx context.Context) ([]string, error)
}

// MultimodalEngine answers questions over the fused text+image
// collections (spec §4.8), sending retrieved and user-supplied images to
// a vision-capable chat model alongside the assembled prompt text.
type MultimodalEngine struct {
	retriever *retrieval.Retriever
	llm       VisionChatModel
	model     string
	cfg       MultimodalConfig
	history   *docmodel.ChatLog
}

// NewMultimodalEngine builds an engine, verifying at construction that
// model is installed on llm (spec §4.8's "Verification" clause). Missing
// model returns VisionModelMissing.
func NewMultimodalEngine(ctx context.Context, retriever *retrieval.Retriever, llm VisionChatModel, model string, cfg MultimodalConfig) (*MultimodalEngine, error) {
	cfg.setDefaults()

	installed, err := llm.ListModels(ctx)
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.VisionModelMissing, "NewMultimodalEngine", err)
	}
	if !ollamaclient.HasModel(installed, model) {
		return nil, ragerrors.New(ragerrors.VisionModelMissing, "NewMultimodalEngine",
			fmt.Sprintf("vision model %q is not installed (pull it before starting)", model), nil)
	}

	return &MultimodalEngine{
		retriever: retriever,
		llm:       llm,
		model:     model,
		cfg:       cfg,
		history:   docmodel.NewChatLog(cfg.MaxHistory),
	}, nil
}

// QueryWithImages answers query using fused text+image retrieval plus
// any userImagePaths, with no chat-log mutation. priorTurns, if
// non-nil, are rendered into the prompt but not persisted — callers
// managing their own history outside the engine use this; callers that
// want the engine to track history use ChatMultimodal instead.
func (e *MultimodalEngine) QueryWithImages(ctx context.Context, query string, userImagePaths []string, k int, priorTurns []docmodel.ChatTurn, includeSources bool) (Answer, error) {
	if strings.TrimSpace(query) == "" {
		return Answer{}, ragerrors.New(ragerrors.QuestionEmpty, "MultimodalEngine.QueryWithImages", "query must not be empty", nil)
	}

	hits, err := e.retriever.RetrieveMultimodal(ctx, query, k, e.cfg.WeightText, e.cfg.WeightImage)
	if err != nil {
		return Answer{}, err
	}

	prompt := e.buildPrompt(hits, query, priorTurns)
	imagePaths := e.resolveImagePaths(userImagePaths, hits)

	content, err := e.generate(ctx, prompt, imagePaths)
	if err != nil {
		return Answer{}, err
	}

	answer := Answer{Answer: content, ContextCount: len(hits)}
	if includeSources {
		answer.Sources = dedupeSources(hits)
	}
	return answer, nil
}

// ChatMultimodal is QueryWithImages with the engine's own ChatLog
// consulted for history and updated with the exchange, following the
// same append-before-generation / no-assistant-turn-on-failure contract
// as RAGEngine.Chat.
func (e *MultimodalEngine) ChatMultimodal(ctx context.Context, message string, userImagePaths []string, k int, includeSources bool) (Answer, error) {
	if strings.TrimSpace(message) == "" {
		return Answer{}, ragerrors.New(ragerrors.QuestionEmpty, "MultimodalEngine.ChatMultimodal", "message must not be empty", nil)
	}

	priorTurns := e.history.Turns()
	e.history.Append(docmodel.ChatTurn{Role: docmodel.RoleUser, Content: message})

	hits, err := e.retriever.RetrieveMultimodal(ctx, message, k, e.cfg.WeightText, e.cfg.WeightImage)
	if err != nil {
		return Answer{}, err
	}

	prompt := e.buildPrompt(hits, message, priorTurns)
	imagePaths := e.resolveImagePaths(userImagePaths, hits)

	content, err := e.generate(ctx, prompt, imagePaths)
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

// buildPrompt renders text hits as "[テキスト i] <name>\n<content>" and
// image hits as "[画像 i] <name>\n説明: <caption>" (spec §4.8).
func (e *MultimodalEngine) buildPrompt(hits []docmodel.SearchHit, question string, priorTurns []docmodel.ChatTurn) string {
	var b strings.Builder
	b.WriteString(e.cfg.SystemPreamble)
	b.WriteString("\n\n")

	if len(priorTurns) > 0 {
		for _, t := range priorTurns {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
		}
		b.WriteString("\n")
	}

	b.WriteString("Context:\n")
	for i, hit := range hits {
		if hit.ResultType == docmodel.ResultTypeImage {
			fmt.Fprintf(&b, "[画像 %d] %s\n説明: %s\n\n", i+1, hit.DocumentName, hit.Caption)
		} else {
			fmt.Fprintf(&b, "[テキスト %d] %s\n%s\n\n", i+1, hit.DocumentName, hit.Chunk.Content)
		}
	}

	fmt.Fprintf(&b, "Question: %s\n\nAnswer:", question)
	return b.String()
}

// resolveImagePaths is the union of user-supplied paths and retrieved
// image-hit paths, restricted to files that exist on disk. Missing
// paths are logged and silently dropped (spec §4.8).
func (e *MultimodalEngine) resolveImagePaths(userImagePaths []string, hits []docmodel.SearchHit) []string {
	seen := make(map[string]bool)
	var out []string

	add := func(path, origin string) {
		if path == "" || seen[path] {
			return
		}
		if _, err := os.Stat(path); err != nil {
			slog.Warn("dropping missing image path", "path", path, "origin", origin)
			return
		}
		seen[path] = true
		out = append(out, path)
	}

	for _, p := range userImagePaths {
		add(p, "user")
	}
	for _, hit := range hits {
		if hit.ResultType == docmodel.ResultTypeImage {
			add(hit.ImagePath, "retrieval")
		}
	}
	return out
}

func (e *MultimodalEngine) generate(ctx context.Context, prompt string, imagePaths []string) (string, error) {
	content, err := e.llm.Chat(ctx, e.model, []ollamaclient.ChatMessage{
		{Role: "user", Content: prompt, Images: imagePaths},
	})
	if err != nil {
		return "", ragerrors.Wrap(ragerrors.GenerationFailed, "MultimodalEngine.generate", err)
	}
	return content, nil
}

// HistoryLength reports the current number of retained chat turns.
func (e *MultimodalEngine) HistoryLength() int {
	return e.history.Len()
}

// ClearHistory drops all retained chat turns.
func (e *MultimodalEngine) ClearHistory() {
	e.history.Clear()
}
