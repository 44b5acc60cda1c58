// Command localrag is the CLI front end for the local multimodal RAG
// service: ingest files, search text and images, and ask questions over
// what has been ingested. It is a thin shell over pkg/docservice and
// pkg/rag — every operation it exposes is one call into those packages.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/localrag/localrag/pkg/appwire"
	"github.com/localrag/localrag/pkg/config"
	"github.com/localrag/localrag/pkg/docmodel"
	"github.com/localrag/localrag/pkg/docservice"
	"github.com/localrag/localrag/pkg/logger"
	"github.com/localrag/localrag/pkg/rag"
	"github.com/localrag/localrag/pkg/ragerrors"
)

// CLI is the full command surface (spec §4.9's operation set, one
// subcommand per DocumentService method, plus query/chat over RAGEngine).
type CLI struct {
	Add          AddCmd          `cmd:"" help:"Ingest a text or image file."`
	List         ListCmd         `cmd:"" help:"List ingested documents and images."`
	Remove       RemoveCmd       `cmd:"" help:"Remove a document or image by id."`
	Search       SearchCmd       `cmd:"" help:"Search ingested text."`
	SearchImages SearchImagesCmd `cmd:"" name:"search-images" help:"Search ingested images."`
	Clear        ClearCmd        `cmd:"" help:"Clear ingested documents and/or images."`
	Query        QueryCmd        `cmd:"" help:"Ask a single question over ingested content."`
	Chat         ChatCmd         `cmd:"" help:"Start an interactive chat session."`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		printErr(err)
		os.Exit(1)
	}

	level, _ := logger.ParseLevel(string(cfg.LogLevel))
	logger.Init(level, os.Stderr)

	app, err := appwire.Build(ctx, cfg)
	if err != nil {
		printErr(err)
		os.Exit(1)
	}
	defer app.Close()

	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name("localrag"),
		kong.Description("Local multimodal retrieval-augmented generation over your own files."),
		kong.UsageOnError(),
	)

	err = kctx.Run(app)
	if err != nil {
		if ctx.Err() != nil {
			os.Exit(130)
		}
		printErr(err)
		os.Exit(1)
	}
}

// printErr prints a red "✗ <kind>: <message>" line, adding a
// remediation hint for the two kinds spec §7 calls out as needing one.
func printErr(err error) {
	const red = "\033[31m"
	const reset = "\033[0m"

	kind, ok := ragerrors.KindOf(err)
	if !ok {
		fmt.Fprintf(os.Stderr, "%s✗ %v%s\n", red, err, reset)
		return
	}

	fmt.Fprintf(os.Stderr, "%s✗ %s: %v%s\n", red, kind, err, reset)
	switch kind {
	case ragerrors.EmbeddingUnavailable:
		fmt.Fprintln(os.Stderr, "  hint: is the embedding model pulled and the LLM backend running?")
	case ragerrors.VisionModelMissing:
		fmt.Fprintln(os.Stderr, "  hint: pull the configured vision/multimodal model, e.g. `ollama pull llava`")
	}
}

// AddCmd ingests one file.
type AddCmd struct {
	Path    string   `arg:"" help:"Path to the file to ingest." type:"path"`
	Caption string   `help:"Override the auto-generated caption (images only)."`
	Tags    []string `help:"Tags to attach, comma-separated." sep:","`
}

func (c *AddCmd) Run(app *appwire.App) error {
	result, err := app.Docs.AddFile(context.Background(), c.Path, c.Caption, c.Tags)
	if err != nil {
		return err
	}
	fmt.Printf("added %s as %s (%d chunk(s))\n", result.DocumentID, result.ItemType, result.ChunksCount)
	return nil
}

// ListCmd lists ingested documents and, optionally, images.
type ListCmd struct {
	Limit         int  `help:"Maximum entries to return (0 = unbounded)."`
	IncludeImages bool `name:"include-images" help:"Also list ingested images."`
}

func (c *ListCmd) Run(app *appwire.App) error {
	result, err := app.Docs.ListDocuments(context.Background(), c.Limit, c.IncludeImages)
	if err != nil {
		return err
	}
	for _, d := range result.Documents {
		fmt.Printf("document  %s  %q  chunks=%d  size=%d\n", d.DocumentID, d.Name, d.ChunkCount, d.TotalSize)
	}
	for _, img := range result.Images {
		fmt.Printf("image     %s  %q  %s\n", img.ID, img.FileName, img.Caption)
	}
	return nil
}

// RemoveCmd removes one document or image by id.
type RemoveCmd struct {
	ItemID string `arg:"" help:"Document or image id to remove."`
	Type   string `enum:"document,image,auto" default:"auto" help:"Item type (document, image, or auto)."`
}

func (c *RemoveCmd) Run(app *appwire.App) error {
	result, err := app.Docs.RemoveDocument(context.Background(), c.ItemID, docservice.ItemType(c.Type))
	if err != nil {
		return err
	}
	fmt.Printf("removed %s (%s), %d chunk(s) deleted\n", c.ItemID, result.ItemType, result.DeletedChunks)
	return nil
}

// SearchCmd searches the text collection.
type SearchCmd struct {
	Query string `arg:"" help:"Search query."`
	K     int    `default:"5" help:"Number of results to return."`
}

func (c *SearchCmd) Run(app *appwire.App) error {
	hits, err := app.Docs.SearchDocuments(context.Background(), c.Query, c.K)
	if err != nil {
		return err
	}
	printHits(hits)
	return nil
}

// SearchImagesCmd searches the image collection.
type SearchImagesCmd struct {
	Query string `arg:"" help:"Search query."`
	K     int    `default:"5" help:"Number of results to return."`
}

func (c *SearchImagesCmd) Run(app *appwire.App) error {
	hits, err := app.Docs.SearchImages(context.Background(), c.Query, c.K)
	if err != nil {
		return err
	}
	printHits(hits)
	return nil
}

// ClearCmd clears the text and/or image collections. With neither flag
// given it clears both, matching the intuitive "start over" reading of
// a bare `localrag clear`.
type ClearCmd struct {
	Text   bool `help:"Clear the text collection."`
	Images bool `help:"Clear the image collection."`
}

func (c *ClearCmd) Run(app *appwire.App) error {
	text, images := c.Text, c.Images
	if !text && !images {
		text, images = true, true
	}
	docs, imgs, err := app.Docs.ClearDocuments(context.Background(), text, images)
	if err != nil {
		return err
	}
	fmt.Printf("cleared %d document chunk(s), %d image(s)\n", docs, imgs)
	return nil
}

// QueryCmd asks a single question with no retained chat history.
type QueryCmd struct {
	Question string `arg:"" help:"Question to ask."`
	K        int    `default:"5" help:"Number of context chunks to retrieve."`
	Sources  bool   `help:"Print source citations."`
}

func (c *QueryCmd) Run(app *appwire.App) error {
	answer, err := app.RAG.Query(context.Background(), c.Question, c.K, nil, c.Sources)
	if err != nil {
		return err
	}
	printAnswer(answer.Answer, answer.Sources)
	return nil
}

// ChatCmd starts an interactive chat loop, reading one question per
// line from stdin until EOF or interrupt.
type ChatCmd struct {
	K       int  `default:"5" help:"Number of context chunks to retrieve per turn."`
	Sources bool `help:"Print source citations each turn."`
}

func (c *ChatCmd) Run(app *appwire.App) error {
	fmt.Println("chat started, Ctrl+D to exit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		answer, err := app.RAG.Chat(context.Background(), line, c.K, nil, c.Sources)
		if err != nil {
			printErr(err)
			continue
		}
		printAnswer(answer.Answer, answer.Sources)
	}
}

func printAnswer(text string, sources []rag.Source) {
	fmt.Println(text)
	for _, s := range sources {
		fmt.Printf("  source: %s (%s) score=%.3f\n", s.Name, s.Source, s.Score)
	}
}

func printHits(hits []docmodel.SearchHit) {
	for _, h := range hits {
		if h.ResultType == docmodel.ResultTypeImage {
			fmt.Printf("%.3f  image  %s  %s\n", h.Score, h.DocumentName, h.Caption)
			continue
		}
		fmt.Printf("%.3f  text   %s  %q\n", h.Score, h.DocumentName, truncate(h.Chunk.Content, 120))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
