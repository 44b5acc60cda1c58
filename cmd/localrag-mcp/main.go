// Command localrag-mcp exposes the local multimodal RAG service as an
// MCP (Model Context Protocol) tool/resource server. Like cmd/localrag
// it is a thin shell: every tool handler is one call into
// pkg/docservice, and every handler returns a JSON object instead of
// raising an error out of the handler.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/localrag/localrag/pkg/appwire"
	"github.com/localrag/localrag/pkg/config"
	"github.com/localrag/localrag/pkg/docservice"
	"github.com/localrag/localrag/pkg/logger"
	"github.com/localrag/localrag/pkg/ragerrors"
)

// CLI holds the transport flags. There are no subcommands — the server
// offers one fixed tool surface regardless of how it's reached.
type CLI struct {
	Transport string `enum:"stdio,http" default:"stdio" help:"Transport to serve on (stdio or http)."`
	Addr      string `default:":8090" help:"Address to listen on for the http transport."`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("localrag-mcp"),
		kong.Description("MCP server front end for the local multimodal RAG service."),
		kong.UsageOnError(),
	)

	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "localrag-mcp: %v\n", err)
		os.Exit(1)
	}

	// slog always goes to stderr here, even over the stdio transport,
	// since stdout is reserved for the JSON-RPC stream.
	level, _ := logger.ParseLevel(string(cfg.LogLevel))
	logger.Init(level, os.Stderr)

	app, err := appwire.Build(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "localrag-mcp: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	mcpServer := server.NewMCPServer("localrag", "1.0.0")
	h := &handlers{app: app}
	registerTools(mcpServer, h)
	registerResources(mcpServer, h)

	switch cli.Transport {
	case "http":
		mux := http.NewServeMux()
		mux.Handle("/mcp", server.NewStreamableHTTPServer(mcpServer, server.WithStateful(true)))
		fmt.Printf("localrag-mcp listening on http://%s/mcp\n", cli.Addr)
		if err := http.ListenAndServe(cli.Addr, mux); err != nil {
			fmt.Fprintf(os.Stderr, "localrag-mcp: %v\n", err)
			os.Exit(1)
		}
	default:
		if err := server.ServeStdio(mcpServer); err != nil {
			fmt.Fprintf(os.Stderr, "localrag-mcp: %v\n", err)
			os.Exit(1)
		}
	}
}

// handlers holds the single App every tool/resource handler calls into.
type handlers struct {
	app *appwire.App
}

func registerTools(s *server.MCPServer, h *handlers) {
	s.AddTool(mcp.NewTool("add_document",
		mcp.WithDescription("Ingest a text or image file into the store."),
		mcp.WithString("file_path", mcp.Required(), mcp.Description("Path to the file to ingest.")),
		mcp.WithString("caption", mcp.Description("Override the auto-generated caption (images only).")),
		mcp.WithArray("tags", mcp.Description("Tags to attach to the document.")),
	), h.addDocument)

	s.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List ingested documents and, optionally, images."),
		mcp.WithNumber("limit", mcp.Description("Maximum entries to return (0 = unbounded).")),
		mcp.WithBoolean("include_images", mcp.Description("Also list ingested images.")),
	), h.listDocuments)

	s.AddTool(mcp.NewTool("search",
		mcp.WithDescription("Search the ingested text collection."),
		mcp.WithString("query", mcp.Required()),
		mcp.WithNumber("top_k", mcp.Description("Number of results to return.")),
	), h.search)

	s.AddTool(mcp.NewTool("search_images",
		mcp.WithDescription("Search the ingested image collection."),
		mcp.WithString("query", mcp.Required()),
		mcp.WithNumber("top_k", mcp.Description("Number of results to return.")),
	), h.searchImages)

	s.AddTool(mcp.NewTool("remove_document",
		mcp.WithDescription("Remove a document or image by id."),
		mcp.WithString("item_id", mcp.Required()),
		mcp.WithString("item_type", mcp.Description("document, image, or auto (default auto).")),
	), h.removeDocument)

	s.AddTool(mcp.NewTool("clear_documents",
		mcp.WithDescription("Clear the text and/or image collections."),
		mcp.WithBoolean("clear_text", mcp.Description("Clear the text collection (default true).")),
		mcp.WithBoolean("clear_images", mcp.Description("Clear the image collection (default true).")),
	), h.clearDocuments)
}

func registerResources(s *server.MCPServer, h *handlers) {
	s.AddResource(mcp.NewResource("resource://documents/list", "documents",
		mcp.WithResourceDescription("All ingested documents and images."),
		mcp.WithMIMEType("application/json"),
	), h.documentsList)

	s.AddResourceTemplate(mcp.NewResourceTemplate("resource://documents/{id}", "document",
		mcp.WithTemplateDescription("A single document's chunks and metadata."),
		mcp.WithTemplateMIMEType("application/json"),
	), h.documentByID)
}

// stringSlice reads a []any argument (the shape json.Unmarshal gives a
// string array) as a []string, skipping any non-string element.
func stringSlice(req mcp.CallToolRequest, key string) []string {
	raw, ok := req.GetArguments()[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// boolArg reads a boolean argument out of the raw arguments map,
// falling back to def when absent or of the wrong JSON type.
func boolArg(req mcp.CallToolRequest, key string, def bool) bool {
	if v, ok := req.GetArguments()[key].(bool); ok {
		return v
	}
	return def
}

// jsonResult marshals v to a tool result. Marshal errors are a
// programming bug, not a caller-facing failure, so they still surface
// as an error result rather than silently returning empty text.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// errResult builds the {success:false, error:<kind>} shape spec §7
// requires every tool response to fall back to instead of raising out
// of the handler.
func errResult(err error) (*mcp.CallToolResult, error) {
	kind, ok := ragerrors.KindOf(err)
	if !ok {
		return jsonResult(map[string]any{"success": false, "error": "internal", "message": err.Error()})
	}
	return jsonResult(map[string]any{"success": false, "error": string(kind), "message": err.Error()})
}

func (h *handlers) addDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("file_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	caption := req.GetString("caption", "")
	tags := stringSlice(req, "tags")

	result, err := h.app.Docs.AddFile(ctx, path, caption, tags)
	if err != nil {
		return errResult(err)
	}
	return jsonResult(map[string]any{
		"success":      true,
		"message":      fmt.Sprintf("added %s as %s", result.DocumentID, result.ItemType),
		"document_id":  result.DocumentID,
		"item_type":    string(result.ItemType),
		"chunks_count": result.ChunksCount,
	})
}

func (h *handlers) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := int(req.GetFloat("limit", 0))
	includeImages := boolArg(req, "include_images", false)

	result, err := h.app.Docs.ListDocuments(ctx, limit, includeImages)
	if err != nil {
		return errResult(err)
	}
	return jsonResult(map[string]any{
		"success":   true,
		"documents": result.Documents,
		"images":    result.Images,
	})
}

func (h *handlers) search(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	topK := int(req.GetFloat("top_k", 5))

	hits, err := h.app.Docs.SearchDocuments(ctx, query, topK)
	if err != nil {
		return errResult(err)
	}
	return jsonResult(map[string]any{"success": true, "results": hits})
}

func (h *handlers) searchImages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	topK := int(req.GetFloat("top_k", 5))

	hits, err := h.app.Docs.SearchImages(ctx, query, topK)
	if err != nil {
		return errResult(err)
	}
	return jsonResult(map[string]any{"success": true, "results": hits})
}

func (h *handlers) removeDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	itemID, err := req.RequireString("item_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	itemType := docservice.ItemType(req.GetString("item_type", string(docservice.ItemAuto)))

	result, err := h.app.Docs.RemoveDocument(ctx, itemID, itemType)
	if err != nil {
		return errResult(err)
	}
	return jsonResult(map[string]any{
		"success":        true,
		"message":        fmt.Sprintf("removed %s (%s)", itemID, result.ItemType),
		"item_type":      string(result.ItemType),
		"deleted_chunks": result.DeletedChunks,
	})
}

func (h *handlers) clearDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	clearText := boolArg(req, "clear_text", true)
	clearImages := boolArg(req, "clear_images", true)

	deletedDocs, deletedImages, err := h.app.Docs.ClearDocuments(ctx, clearText, clearImages)
	if err != nil {
		return errResult(err)
	}
	return jsonResult(map[string]any{
		"success":           true,
		"message":           "cleared",
		"deleted_documents": deletedDocs,
		"deleted_images":    deletedImages,
	})
}

func (h *handlers) documentsList(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	result, err := h.app.Docs.ListDocuments(ctx, 0, true)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(b)},
	}, nil
}

func (h *handlers) documentByID(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id := strings.TrimPrefix(req.Params.URI, "resource://documents/")

	detail, err := h.app.Docs.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, ragerrors.New(ragerrors.NotFound, "localrag-mcp.documentByID", fmt.Sprintf("no document with id %q", id), nil)
	}
	b, err := json.Marshal(detail)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(b)},
	}, nil
}
