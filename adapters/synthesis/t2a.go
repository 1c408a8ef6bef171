// Package synthesis implements the streaming text-to-speech protocol client.
// It drives one stateful provider session per text input: connect and wait
// for the session acknowledgement, start a task, stream the text, then
// receive audio chunks until the provider signals completion.
package synthesis

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/lisan/server/domain/repositories"
)

const (
	defaultEndpoint = "wss://api.minimaxi.com/ws/v1/t2a_v2"
	defaultModel    = "speech-01-turbo"
	defaultVoiceID  = "male-qn-qingse"
	defaultFormat   = "mp3"

	// handshakeTimeout bounds the connect and task_start acknowledgements.
	handshakeTimeout = 10 * time.Second

	// interChunkTimeout is how long the receive loop waits for the next
	// provider message before treating the stream as implicitly complete.
	// The provider does not reliably emit an explicit completion event, so
	// this fallback exists alongside the authoritative task_finished path.
	interChunkTimeout = 2 * time.Second
)

// Config holds provider session parameters for one client.
type Config struct {
	APIKey        string // required
	Endpoint      string
	Model         string
	VoiceID       string
	LanguageBoost string
	SampleRate    int
	Bitrate       int
	Format        string
}

// Client is a synthesis protocol client. A client value is safe to reuse
// across sessions, but each session (one Synthesize call) must finish before
// the next begins; instances are never shared between concurrent tasks.
type Client struct {
	apiKey        string
	endpoint      string
	model         string
	voiceID       string
	languageBoost string
	sampleRate    int
	bitrate       int
	format        string
	logger        *zap.Logger

	conn      *websocket.Conn
	sessionID string
}

var _ repositories.SpeechSynthesizer = (*Client)(nil)

// NewClient creates a synthesis client. The API key is required; every other
// field falls back to the provider defaults.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("synthesis API key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = defaultVoiceID
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 32000
	}
	if cfg.Bitrate == 0 {
		cfg.Bitrate = 128000
	}
	if cfg.Format == "" {
		cfg.Format = defaultFormat
	}

	return &Client{
		apiKey:        cfg.APIKey,
		endpoint:      cfg.Endpoint,
		model:         cfg.Model,
		voiceID:       cfg.VoiceID,
		languageBoost: cfg.LanguageBoost,
		sampleRate:    cfg.SampleRate,
		bitrate:       cfg.Bitrate,
		format:        cfg.Format,
		logger:        logger,
	}, nil
}

// providerMessage is the envelope for every message the provider sends.
type providerMessage struct {
	Event     string `json:"event"`
	SessionID string `json:"session_id"`
	Data      struct {
		Audio string `json:"audio"`
	} `json:"data"`
	ExtraInfo struct {
		AudioFormat string `json:"audio_format"`
	} `json:"extra_info"`
}

// Synthesize runs one full session: connect, start, stream, teardown. Chunks
// reach onChunk as they arrive; the last chunk is re-delivered with
// isFinal=true so receivers relying solely on the final flag keep the tail
// bytes.
func (c *Client) Synthesize(ctx context.Context, text string, onChunk repositories.ChunkFunc) (*repositories.SynthesisResult, error) {
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	defer c.teardown()

	if err := c.startTask(ctx); err != nil {
		return nil, err
	}

	return c.stream(ctx, text, onChunk)
}

// connect opens the channel and waits for the provider-issued session
// acknowledgement.
func (c *Client) connect(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.apiKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.endpoint, header)
	if err != nil {
		return fmt.Errorf("synthesis dial failed: %w", err)
	}
	c.conn = conn

	msg, err := c.readMessage(ctx, handshakeTimeout)
	if err != nil {
		c.teardown()
		return fmt.Errorf("synthesis connect acknowledgement: %w", err)
	}
	if msg.Event != "connected_success" {
		c.teardown()
		return fmt.Errorf("synthesis connect rejected: event %q", msg.Event)
	}

	c.sessionID = msg.SessionID
	c.logger.Info("synthesis session connected", zap.String("sessionID", c.sessionID))
	return nil
}

// startTask sends the task-start directive and waits for its acknowledgement.
func (c *Client) startTask(ctx context.Context) error {
	start := map[string]interface{}{
		"event": "task_start",
		"model": c.model,
		"voice_setting": map[string]interface{}{
			"voice_id": c.voiceID,
			"speed":    1,
			"vol":      1,
			"pitch":    0,
		},
		"audio_setting": map[string]interface{}{
			"sample_rate": c.sampleRate,
			"bitrate":     c.bitrate,
			"format":      c.format,
			"channel":     1,
		},
	}
	if c.languageBoost != "" {
		start["language_boost"] = c.languageBoost
	}

	if err := c.writeJSON(ctx, start); err != nil {
		return fmt.Errorf("synthesis task start: %w", err)
	}

	msg, err := c.readMessage(ctx, handshakeTimeout)
	if err != nil {
		return fmt.Errorf("synthesis task start acknowledgement: %w", err)
	}
	if msg.Event != "task_started" {
		return fmt.Errorf("synthesis task start rejected: event %q", msg.Event)
	}
	return nil
}

// stream sends the text plus end-of-input directive, then receives chunks
// until completion, failure, or the inter-chunk timeout.
func (c *Client) stream(ctx context.Context, text string, onChunk repositories.ChunkFunc) (*repositories.SynthesisResult, error) {
	if err := c.writeJSON(ctx, map[string]interface{}{"event": "task_continue", "text": text}); err != nil {
		return nil, fmt.Errorf("synthesis send text: %w", err)
	}
	if err := c.writeJSON(ctx, map[string]interface{}{"event": "task_finish"}); err != nil {
		return nil, fmt.Errorf("synthesis end of input: %w", err)
	}

	var (
		lastChunk  []byte
		format     = c.format
		chunks     int
		totalBytes int
	)

	finalize := func() *repositories.SynthesisResult {
		if onChunk != nil {
			if len(lastChunk) > 0 {
				onChunk(lastChunk, true, format)
			} else {
				onChunk(nil, true, format)
			}
		}
		return &repositories.SynthesisResult{AudioBytes: totalBytes, Chunks: chunks, Format: format}
	}

	for {
		msg, err := c.readMessage(ctx, interChunkTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("synthesis stream: %w", ctx.Err())
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// No more chunks arriving; assume the stream completed.
				c.logger.Info("synthesis stream timed out, assuming complete",
					zap.String("sessionID", c.sessionID),
					zap.Int("chunks", chunks))
				return finalize(), nil
			}
			return nil, fmt.Errorf("synthesis stream: %w", err)
		}

		if msg.Data.Audio != "" {
			audio, err := decodeAudio(msg.Data.Audio)
			if err != nil {
				c.logger.Warn("dropping undecodable audio chunk",
					zap.String("sessionID", c.sessionID),
					zap.Error(err))
				continue
			}
			if msg.ExtraInfo.AudioFormat != "" {
				format = msg.ExtraInfo.AudioFormat
			}

			chunks++
			totalBytes += len(audio)
			if len(audio) > 0 {
				lastChunk = audio
			}

			c.logger.Debug("synthesis chunk received",
				zap.Int("chunk", chunks),
				zap.Int("bytes", len(audio)))

			if onChunk != nil {
				onChunk(audio, false, format)
			}
		}

		switch msg.Event {
		case "task_finished":
			c.logger.Info("synthesis stream completed",
				zap.String("sessionID", c.sessionID),
				zap.Int("chunks", chunks),
				zap.Int("bytes", totalBytes))
			return finalize(), nil
		case "task_failed":
			return nil, fmt.Errorf("synthesis task failed: session %s", c.sessionID)
		}
	}
}

// readMessage reads one provider message, bounded by both the given timeout
// and the context deadline, whichever expires first.
func (c *Client) readMessage(ctx context.Context, timeout time.Duration) (*providerMessage, error) {
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	_, payload, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var msg providerMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("malformed provider message: %w", err)
	}
	return &msg, nil
}

func (c *Client) writeJSON(ctx context.Context, v interface{}) error {
	deadline := time.Now().Add(handshakeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// teardown politely ends the task and closes the channel, swallowing errors,
// then resets session state so the client is safe to reuse.
func (c *Client) teardown() {
	if c.conn == nil {
		return
	}
	c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = c.conn.WriteJSON(map[string]interface{}{"event": "task_finish"})
	_ = c.conn.Close()
	c.conn = nil
	c.sessionID = ""
}

// decodeAudio decodes a provider audio payload, trying hex first and falling
// back to base64.
func decodeAudio(encoded string) ([]byte, error) {
	if b, err := hex.DecodeString(encoded); err == nil {
		return b, nil
	}
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("audio payload is neither hex nor base64: %w", err)
	}
	return b, nil
}
