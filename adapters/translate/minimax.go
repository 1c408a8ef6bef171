// Package translate contains remote machine-translation adapters.
package translate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/lisan/server/domain/repositories"
)

const (
	defaultMiniMaxURL   = "https://api.minimaxi.com/v1/text/chatcompletion_v2"
	defaultMiniMaxModel = "abab6.5s-chat"

	// requestTimeout caps a single translation round-trip, below the
	// scheduler's per-phase budget so the HTTP layer gives up first.
	requestTimeout = 30 * time.Second
)

// MiniMaxTranslator translates text through the MiniMax chat-completion API
// with a streaming response.
type MiniMaxTranslator struct {
	apiKey string
	url    string
	model  string
	client *http.Client
	logger *zap.Logger
}

var _ repositories.Translator = (*MiniMaxTranslator)(nil)

// NewMiniMaxTranslator creates a translator for the given API key.
func NewMiniMaxTranslator(apiKey string, logger *zap.Logger) (*MiniMaxTranslator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("minimax API key is required")
	}
	return &MiniMaxTranslator{
		apiKey: apiKey,
		url:    defaultMiniMaxURL,
		model:  defaultMiniMaxModel,
		client: &http.Client{Timeout: requestTimeout},
		logger: logger,
	}, nil
}

// SetEndpoint overrides the API endpoint. Used by tests.
func (m *MiniMaxTranslator) SetEndpoint(url string) {
	m.url = url
}

type chatMessage struct {
	Role    string `json:"role"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatStreamEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Translate sends the prompt and accumulates the streamed completion. An
// empty completion falls back to the original text so the pipeline keeps
// moving; the caller treats whitespace-only output as failure.
func (m *MiniMaxTranslator) Translate(ctx context.Context, text, targetLanguage string, hotWords []string, style repositories.TranslationStyle) (string, error) {
	payload := chatRequest{
		Model: m.model,
		Messages: []chatMessage{
			{Role: "system", Name: "MiniMax AI", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(text, targetLanguage, hotWords, style)},
		},
		Stream: true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal translation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create translation request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	m.logger.Info("starting translation request",
		zap.String("targetLanguage", targetLanguage),
		zap.Int("textLength", len(text)))

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("translation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("translation API returned %d: %s", resp.StatusCode, string(errBody))
	}

	translated, err := m.readStream(resp.Body)
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(translated) == "" {
		m.logger.Warn("no translation content received, falling back to original text")
		return text, nil
	}
	return strings.TrimSpace(translated), nil
}

// readStream accumulates delta content from the SSE response until the
// provider reports completion. Undecodable lines are skipped.
func (m *MiniMaxTranslator) readStream(body io.Reader) (string, error) {
	var out strings.Builder

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var event chatStreamEvent
		if err := json.Unmarshal([]byte(line[len("data: "):]), &event); err != nil {
			m.logger.Debug("skipping undecodable stream line", zap.Error(err))
			continue
		}
		if len(event.Choices) == 0 {
			continue
		}

		out.WriteString(event.Choices[0].Delta.Content)
		if event.Choices[0].FinishReason == "stop" {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("translation stream read failed: %w", err)
	}

	return out.String(), nil
}
