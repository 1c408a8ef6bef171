package translate

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/lisan/server/domain/repositories"
)

const geminiModel = "gemini-2.0-flash"

// GeminiTranslator is an alternative Translator backed by the Gemini API.
// Selected when a client configures without a MiniMax key but the server has
// GEMINI_API_KEY set.
type GeminiTranslator struct {
	client *genai.Client
	logger *zap.Logger
	model  string
}

var _ repositories.Translator = (*GeminiTranslator)(nil)

// NewGeminiTranslator creates a Gemini-backed translator.
func NewGeminiTranslator(ctx context.Context, apiKey string, logger *zap.Logger) (*GeminiTranslator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiTranslator{
		client: client,
		logger: logger,
		model:  geminiModel,
	}, nil
}

// Translate performs a single non-streaming generation call.
func (g *GeminiTranslator) Translate(ctx context.Context, text, targetLanguage string, hotWords []string, style repositories.TranslationStyle) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(systemPrompt, genai.RoleUser),
		genai.NewContentFromText(buildPrompt(text, targetLanguage, hotWords, style), genai.RoleUser),
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0.2)),
	}

	response, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini translation failed: %w", err)
	}
	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var out strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		out.WriteString(part.Text)
	}

	translated := strings.TrimSpace(out.String())
	if translated == "" {
		g.logger.Warn("gemini returned empty translation, falling back to original text")
		return text, nil
	}
	return translated, nil
}
