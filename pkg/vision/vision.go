// Package vision captions images with a vision-capable LLM and, via
// caption-then-embed, turns them into vectors in the same embedding
// space as text. It also validates and loads image files into ImageDocs.
package vision

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/localrag/localrag/pkg/docmodel"
	"github.com/localrag/localrag/pkg/embedding"
	"github.com/localrag/localrag/pkg/ollamaclient"
	"github.com/localrag/localrag/pkg/ragerrors"
)

const defaultCaptionPrompt = "Describe this image in detail: objects, colors, setting, and any visible text."

// VisionCaptioner produces a natural-language caption for an image and,
// via EmbedImage, the image's vector.
//
// EmbedImage is caption-then-embed, not a true image embedding: a
// structured caption is generated by a vision LLM, then that caption
// text is run through the ordinary TextEmbedder. This is what puts the
// "images" and "documents" collections in the same vector space and is
// the reason a text query can ever match an image — do not change this
// silently.
type VisionCaptioner interface {
	Caption(ctx context.Context, imagePath string, prompt string, maxTokens int) (string, error)
	EmbedImage(ctx context.Context, imagePath string) ([]float32, string, error)
}

// OllamaVisionCaptioner implements VisionCaptioner against a local
// Ollama-compatible vision model, delegating the embed half of
// caption-then-embed to an injected embedding.TextEmbedder.
type OllamaVisionCaptioner struct {
	client   *ollamaclient.Client
	model    string
	embedder embedding.TextEmbedder
}

// NewOllamaVisionCaptioner builds a captioner using model for captioning
// and embedder for the text-embedding half of caption-then-embed.
func NewOllamaVisionCaptioner(client *ollamaclient.Client, model string, embedder embedding.TextEmbedder) *OllamaVisionCaptioner {
	return &OllamaVisionCaptioner{client: client, model: model, embedder: embedder}
}

// Caption asks the vision model to describe the image at imagePath. An
// empty prompt falls back to a default structured-description prompt.
func (c *OllamaVisionCaptioner) Caption(ctx context.Context, imagePath string, prompt string, maxTokens int) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", ragerrors.New(ragerrors.ImageInvalid, "OllamaVisionCaptioner.Caption", "cannot read image file", err)
	}

	if prompt == "" {
		prompt = defaultCaptionPrompt
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	content, err := c.client.Chat(ctx, c.model, []ollamaclient.ChatMessage{
		{Role: "user", Content: prompt, Images: []string{encoded}},
	})
	if err != nil {
		return "", ragerrors.New(ragerrors.VisionModelMissing, "OllamaVisionCaptioner.Caption", "vision model unavailable or not installed", err)
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return "", ragerrors.New(ragerrors.CaptionEmpty, "OllamaVisionCaptioner.Caption", "vision model returned blank caption", nil)
	}
	return content, nil
}

// EmbedImage captions imagePath then embeds the caption, returning both
// the vector and the caption text (callers generally want to persist the
// caption alongside the vector).
func (c *OllamaVisionCaptioner) EmbedImage(ctx context.Context, imagePath string) ([]float32, string, error) {
	caption, err := c.Caption(ctx, imagePath, "", 0)
	if err != nil {
		return nil, "", err
	}
	vec, err := c.embedder.EmbedQuery(ctx, caption)
	if err != nil {
		return nil, "", ragerrors.Wrap(ragerrors.EmbeddingUnavailable, "OllamaVisionCaptioner.EmbedImage", err)
	}
	return vec, caption, nil
}

var supportedImageExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true,
	"bmp": true, "webp": true, "tiff": true, "tif": true,
}

// ImageLoader validates an image file (extension, size) and materializes
// an ImageDoc, auto-captioning via a VisionCaptioner unless disabled.
type ImageLoader struct {
	captioner   VisionCaptioner
	maxSizeMB   float64
	autoCaption bool
}

// NewImageLoader builds a loader. captioner may be nil only if
// autoCaption is false (auto-captioning with no captioner configured is
// a construction error the caller should catch at startup, not here).
func NewImageLoader(captioner VisionCaptioner, maxSizeMB float64, autoCaption bool) *ImageLoader {
	return &ImageLoader{captioner: captioner, maxSizeMB: maxSizeMB, autoCaption: autoCaption}
}

// Load validates path and builds an ImageDoc. Caption is auto-generated
// unless auto-captioning is disabled, in which case it falls back to
// "Image: <filename>" per the caption-never-empty invariant.
func (l *ImageLoader) Load(ctx context.Context, path string) (docmodel.ImageDoc, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if !supportedImageExtensions[ext] {
		return docmodel.ImageDoc{}, ragerrors.New(ragerrors.UnsupportedFileType, "ImageLoader.Load", fmt.Sprintf("unsupported image extension %q", ext), nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		return docmodel.ImageDoc{}, ragerrors.New(ragerrors.ImageInvalid, "ImageLoader.Load", "cannot stat image file", err)
	}
	sizeMB := float64(info.Size()) / (1024 * 1024)
	if sizeMB > l.maxSizeMB {
		return docmodel.ImageDoc{}, ragerrors.New(ragerrors.ImageTooLarge, "ImageLoader.Load", fmt.Sprintf("image is %.2fMB, exceeds limit of %.2fMB", sizeMB, l.maxSizeMB), nil)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	created := time.Now()
	caption := fmt.Sprintf("Image: %s", filepath.Base(path))
	if l.autoCaption {
		if l.captioner == nil {
			return docmodel.ImageDoc{}, ragerrors.New(ragerrors.VisionModelMissing, "ImageLoader.Load", "auto-caption enabled but no captioner configured", nil)
		}
		c, err := l.captioner.Caption(ctx, path, "", 0)
		if err != nil {
			return docmodel.ImageDoc{}, err
		}
		caption = c
	}

	return docmodel.ImageDoc{
		ID:       imageID(abs, created),
		Path:     abs,
		FileName: filepath.Base(path),
		Type:     ext,
		Caption:  caption,
		Metadata: map[string]any{
			"file_size_mb":  sizeMB,
			"absolute_path": abs,
		},
		CreatedAt: created,
	}, nil
}

// imageID derives the 16-hex-char stable id of an ImageDoc from its
// absolute path and creation time.
func imageID(absPath string, createdAt time.Time) string {
	sum := sha256.Sum256([]byte(absPath + "|" + createdAt.Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])[:16]
}
