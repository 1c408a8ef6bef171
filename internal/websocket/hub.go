// Package websocket multiplexes the translation pipeline over one duplex
// connection per client.
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/lisan/server/adapters/synthesis"
	"github.com/satriahrh/lisan/server/adapters/translate"
	"github.com/satriahrh/lisan/server/domain/repositories"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// TranslatorFactory builds a translator for one configured session.
type TranslatorFactory func(req ConfigureRequest) (repositories.Translator, error)

// SynthesizerFactory builds a synthesis client for one task.
type SynthesizerFactory func(req ConfigureRequest) (repositories.SpeechSynthesizer, error)

// Config wires the hub's collaborators. The factories default to the real
// provider adapters and exist so tests can substitute fakes.
type Config struct {
	Recognizer repositories.SpeechRecognizer
	Sessions   repositories.SessionRecorder

	// GeminiAPIKey enables the server-side translator fallback for clients
	// that configure without a MiniMax key.
	GeminiAPIKey string

	// SynthesisEndpoint overrides the provider websocket URL.
	SynthesisEndpoint string

	NewTranslator  TranslatorFactory
	NewSynthesizer SynthesizerFactory
}

// Hub maintains the set of active clients.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	recognizer     repositories.SpeechRecognizer
	sessions       repositories.SessionRecorder
	newTranslator  TranslatorFactory
	newSynthesizer SynthesizerFactory

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg Config, logger *zap.Logger) *Hub {
	h := &Hub{
		clients:        make(map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		recognizer:     cfg.Recognizer,
		sessions:       cfg.Sessions,
		newTranslator:  cfg.NewTranslator,
		newSynthesizer: cfg.NewSynthesizer,
		logger:         logger,
	}
	if h.newTranslator == nil {
		h.newTranslator = defaultTranslatorFactory(cfg.GeminiAPIKey, logger)
	}
	if h.newSynthesizer == nil {
		h.newSynthesizer = defaultSynthesizerFactory(cfg.SynthesisEndpoint, logger)
	}
	return h
}

// defaultTranslatorFactory picks MiniMax when the client supplied a key,
// otherwise falls back to the server's Gemini key.
func defaultTranslatorFactory(geminiKey string, logger *zap.Logger) TranslatorFactory {
	return func(req ConfigureRequest) (repositories.Translator, error) {
		if req.MiniMaxAPIKey != "" {
			return translate.NewMiniMaxTranslator(req.MiniMaxAPIKey, logger)
		}
		if geminiKey != "" {
			return translate.NewGeminiTranslator(context.Background(), geminiKey, logger)
		}
		return nil, fmt.Errorf("missing required fields: minimax_api_key")
	}
}

func defaultSynthesizerFactory(endpoint string, logger *zap.Logger) SynthesizerFactory {
	return func(req ConfigureRequest) (repositories.SpeechSynthesizer, error) {
		return synthesis.NewClient(synthesis.Config{
			APIKey:   req.T2AAPIKey,
			Endpoint: endpoint,
			VoiceID:  req.VoiceID,
		}, logger)
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.clientID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("clientID", client.clientID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.clientID]; ok {
				delete(h.clients, client.clientID)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("clientID", client.clientID))
		}
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Client ID for this connection
	clientID string

	// Logger
	logger *zap.Logger

	// Per-connection pipeline state, nil until configure.
	session *session
}

// HandleWebSocket handles websocket requests from a pre-authenticated client.
func HandleWebSocket(hub *Hub, c echo.Context, clientID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan WriteData, 256),
		clientID: clientID,
		logger:   logger.With(zap.String("clientID", clientID)),
	}

	client.hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection into the session.
func (c *Client) readPump() {
	defer func() {
		c.teardown()
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the session to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
