// Package generator produces SEO metadata for a single image via Gemini.
// The model call is treated as a black box: image bytes plus length
// constraints in, {title, description, keywords} or an error out.
package generator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/phambaophuc/image-seo/internal/config"
	"github.com/phambaophuc/image-seo/internal/models"
)

type Generator interface {
	Generate(ctx context.Context, data []byte, mimeType string, c models.GenerationConstraints) (*models.ImageMetadata, error)
}

type GeminiGenerator struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

func NewGeminiGenerator(ctx context.Context, cfg config.GeminiConfig, logger *zap.Logger) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is not configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiGenerator{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  logger,
	}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, data []byte, mimeType string, c models.GenerationConstraints) (*models.ImageMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}},
			{Text: BuildPrompt(c)},
		},
	}}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	duration := time.Since(start)

	if err != nil {
		g.logger.Warn("gemini call failed",
			zap.Duration("duration", duration),
			zap.Error(err))
		if ctx.Err() == context.DeadlineExceeded {
			return nil, context.DeadlineExceeded
		}
		return nil, fmt.Errorf("metadata generation failed: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("empty response from gemini")
	}

	metadata, err := ParseMetadata(resp.Text(), c)
	if err != nil {
		g.logger.Warn("gemini response unparseable",
			zap.Duration("duration", duration),
			zap.Error(err))
		return nil, err
	}

	g.logger.Debug("metadata generated",
		zap.Duration("duration", duration),
		zap.Int("title_len", len(metadata.Title)),
		zap.Int("keywords", len(metadata.Keywords)))

	return metadata, nil
}
