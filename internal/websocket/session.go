package websocket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/lisan/server/domain/entities"
	"github.com/satriahrh/lisan/server/domain/repositories"
	"github.com/satriahrh/lisan/server/internal/scheduler"
	"github.com/satriahrh/lisan/server/internal/segmenter"
)

const (
	// utteranceQueueSize bounds utterances awaiting recognition. Overflow
	// drops the oldest pending utterance rather than stalling the reader.
	utteranceQueueSize = 8

	// transcribeTimeout bounds one recognition call.
	transcribeTimeout = 30 * time.Second

	// chunkPacing spaces non-final audio chunks so a slow client is not
	// flooded by a fast synthesis stream.
	chunkPacing = 10 * time.Millisecond

	persistTimeout = 5 * time.Second
)

// session holds the pipeline owned by one configured connection. All fields
// are mutated only from the owning client's readPump goroutine; the
// utterance-processing goroutine communicates through the channel.
type session struct {
	config ConfigureRequest
	style  repositories.TranslationStyle

	seg   *segmenter.Segmenter
	sched *scheduler.Scheduler

	utterances chan *entities.Utterance

	// ctx cancels in-flight recognition at teardown; done closes when the
	// recognition goroutine has exited, so teardown can join it before the
	// hub closes the send channel.
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	recording      bool
	chunksReceived int
	utteranceCount int

	// Incremented on the recognition goroutine, read at teardown.
	tasksEnqueued atomic.Int64

	record *entities.SessionRecord
}

// processMessage dispatches one inbound control message.
func (c *Client) processMessage(message []byte) {
	var envelope Envelope
	if err := json.Unmarshal(message, &envelope); err != nil {
		c.logger.Error("Failed to parse message", zap.Error(err))
		c.sendEvent(EventError, ErrorEvent{Error: "invalid message format"})
		return
	}

	switch envelope.Type {
	case MessageConfigure:
		c.handleConfigure(envelope.Data)
	case MessageStartRecording:
		c.handleStartRecording()
	case MessageStopRecording:
		c.handleStopRecording()
	case MessageAudioData:
		c.handleAudioData(envelope.Data)
	case MessageGetStatus:
		c.handleGetStatus()
	case MessageClearAllTasks:
		c.handleClearAllTasks()
	case "":
		c.sendEvent(EventError, ErrorEvent{Error: "message missing type field"})
	default:
		c.logger.Warn("Unknown message type", zap.String("type", envelope.Type))
		c.sendEvent(EventError, ErrorEvent{Error: "unknown message type: " + envelope.Type})
	}
}

// handleConfigure builds the per-session pipeline. Reconfiguring tears down
// the previous pipeline first.
func (c *Client) handleConfigure(data json.RawMessage) {
	var req ConfigureRequest
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			c.sendEvent(EventError, ErrorEvent{Error: "invalid configure payload"})
			return
		}
	}
	if err := req.Validate(); err != nil {
		c.sendEvent(EventError, ErrorEvent{Error: err.Error()})
		return
	}

	translator, err := c.hub.newTranslator(req)
	if err != nil {
		c.sendEvent(EventError, ErrorEvent{Error: err.Error()})
		return
	}

	// Validate the synthesis configuration up front; workers build a fresh
	// client per task.
	if _, err := c.hub.newSynthesizer(req); err != nil {
		c.sendEvent(EventError, ErrorEvent{Error: err.Error()})
		return
	}

	c.teardown()

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		config:     req,
		style:      repositories.ParseTranslationStyle(req.TranslationStyle),
		seg:        segmenter.New(segmenter.Config{}, c.logger),
		utterances: make(chan *entities.Utterance, utteranceQueueSize),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	sched, err := scheduler.New(scheduler.Config{
		Translator: translator,
		NewSynthesizer: func() (repositories.SpeechSynthesizer, error) {
			return c.hub.newSynthesizer(req)
		},
		Callbacks: scheduler.Callbacks{
			OnTranslation: c.onTranslation,
			OnAudioChunk:  c.onAudioChunk,
			OnError:       c.onTaskError,
		},
	}, c.logger)
	if err != nil {
		c.sendEvent(EventError, ErrorEvent{Error: err.Error()})
		return
	}
	s.sched = sched
	s.sched.Start()

	s.record = entities.NewSessionRecord(c.clientID)
	s.record.MarkConfigured(req.TargetLanguage, req.SourceLanguage, req.VoiceID, req.TranslationStyle)
	c.persistSession(s, false)

	c.session = s
	go c.processUtterances(s)

	c.logger.Info("Session configured",
		zap.String("targetLanguage", req.TargetLanguage),
		zap.String("voiceID", req.VoiceID),
		zap.Int("hotWords", len(req.HotWords)))

	c.sendEvent(EventConfigured, ConfiguredEvent{Status: "ready"})
}

func (c *Client) handleStartRecording() {
	s := c.session
	if s == nil {
		c.sendEvent(EventError, ErrorEvent{Error: "not configured"})
		return
	}
	s.recording = true
	c.logger.Info("Recording started")
	c.sendEvent(EventRecordingStarted, nil)
}

// handleStopRecording flushes the segmenter so a trailing utterance without
// closing silence is still processed.
func (c *Client) handleStopRecording() {
	s := c.session
	if s == nil {
		c.sendEvent(EventError, ErrorEvent{Error: "not configured"})
		return
	}
	s.recording = false
	if utterance := s.seg.ForceFlush(); utterance != nil {
		c.enqueueUtterance(s, utterance)
	}
	c.logger.Info("Recording stopped")
	c.sendEvent(EventRecordingStopped, nil)
}

func (c *Client) handleAudioData(data json.RawMessage) {
	s := c.session
	if s == nil {
		c.sendEvent(EventError, ErrorEvent{Error: "not configured"})
		return
	}
	if !s.recording {
		c.sendEvent(EventError, ErrorEvent{Error: "not recording"})
		return
	}

	var req AudioDataRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Audio == "" {
		c.sendEvent(EventError, ErrorEvent{Error: "invalid audio payload"})
		return
	}

	pcm, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		c.sendEvent(EventError, ErrorEvent{Error: "invalid audio encoding"})
		return
	}

	s.chunksReceived++
	for _, utterance := range s.seg.AddAudio(pcm) {
		c.enqueueUtterance(s, utterance)
	}
}

func (c *Client) handleGetStatus() {
	status := StatusEvent{Connected: true}
	if s := c.session; s != nil {
		status.Configured = true
		status.Recording = s.recording
		audio := AudioStats{
			Stats:          s.seg.Stats(),
			ChunksReceived: s.chunksReceived,
			Utterances:     s.utteranceCount,
		}
		queue := s.sched.Stats()
		status.AudioStats = &audio
		status.QueueStats = &queue
	}
	c.sendEvent(EventStatus, status)
}

// handleClearAllTasks resets in-flight audio and drains the scheduler without
// deconfiguring the session.
func (c *Client) handleClearAllTasks() {
	s := c.session
	if s == nil {
		c.sendEvent(EventError, ErrorEvent{Error: "not configured"})
		return
	}
	s.seg.Reset()
	cleared := s.sched.DrainAll()
	c.logger.Info("All tasks cleared", zap.Int("cleared", cleared))
	c.sendEvent(EventAllTasksCleared, ClearedEvent{Cleared: cleared})
}

// enqueueUtterance hands a finished utterance to the recognition goroutine,
// dropping it when the queue is saturated.
func (c *Client) enqueueUtterance(s *session, utterance *entities.Utterance) {
	s.utteranceCount++
	select {
	case s.utterances <- utterance:
	default:
		c.logger.Warn("Utterance queue full, dropping utterance",
			zap.Float64("durationSeconds", utterance.Duration().Seconds()))
	}
}

// processUtterances runs recognition off the read loop and feeds transcripts
// into the scheduler. One goroutine per configured session; exits when the
// session is torn down.
func (c *Client) processUtterances(s *session) {
	defer close(s.done)

	for utterance := range s.utterances {
		ctx, cancel := context.WithTimeout(s.ctx, transcribeTimeout)
		transcript, err := c.hub.recognizer.Transcribe(ctx, utterance.Samples, utterance.SampleRate, s.config.SourceLanguage)
		cancel()
		if s.ctx.Err() != nil {
			// Teardown in progress; drain the channel without emitting.
			continue
		}
		if err != nil {
			c.logger.Error("Transcription failed", zap.Error(err))
			c.sendEvent(EventTranscriptionError, ErrorEvent{Error: "transcription failed"})
			continue
		}
		if transcript == nil || strings.TrimSpace(transcript.Text) == "" {
			c.logger.Debug("Utterance produced no transcript",
				zap.Float64("durationSeconds", utterance.Duration().Seconds()))
			continue
		}

		c.sendEvent(EventTranscription, TranscriptionEvent{
			Text:       transcript.Text,
			Language:   transcript.Language,
			Confidence: transcript.Confidence,
		})

		taskID := s.sched.Enqueue(transcript.Text, s.config.TargetLanguage, s.config.HotWords, s.style, 0)
		s.tasksEnqueued.Add(1)
		c.logger.Info("Task enqueued for utterance",
			zap.String("taskId", taskID),
			zap.Int("transcriptLength", len(transcript.Text)))
	}
}

// Scheduler callbacks run on worker goroutines; the send channel serializes
// delivery.

func (c *Client) onTranslation(result scheduler.TranslationResult) {
	c.sendEvent(EventTranslation, result)
}

func (c *Client) onAudioChunk(taskID string, chunk []byte, isFinal bool, format string) {
	c.sendEvent(EventAudioChunk, AudioChunkEvent{
		TaskID:  taskID,
		Audio:   base64.StdEncoding.EncodeToString(chunk),
		Format:  format,
		Size:    len(chunk),
		IsFinal: isFinal,
	})
	if !isFinal {
		time.Sleep(chunkPacing)
	}
}

func (c *Client) onTaskError(taskID, message string) {
	c.sendEvent(EventTranslationError, TaskErrorEvent{TaskID: taskID, Error: message})
}

// sendEvent frames and queues one outbound event. A saturated send channel
// means the client stopped draining; the connection is closed so the pumps
// unwind.
func (c *Client) sendEvent(eventType string, payload interface{}) {
	frame, err := encodeEvent(eventType, payload)
	if err != nil {
		c.logger.Error("Failed to encode event", zap.String("event", eventType), zap.Error(err))
		return
	}

	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: frame}:
	default:
		c.logger.Error("Send buffer full, closing connection", zap.String("event", eventType))
		c.conn.Close()
	}
}

// teardown releases the configured pipeline. Safe to call repeatedly; every
// step is best-effort.
func (c *Client) teardown() {
	s := c.session
	if s == nil {
		return
	}
	c.session = nil

	s.recording = false
	s.cancel()
	close(s.utterances)
	// Join the recognition goroutine before the hub may close the send
	// channel; a late transcript must never enqueue into a stopped
	// scheduler or send on a closed channel.
	<-s.done
	s.sched.Stop()
	s.seg.Reset()

	if s.record != nil {
		s.record.MarkDisconnected()
		c.persistSession(s, true)
	}
	c.logger.Info("Session torn down")
}

// persistSession writes the audit record. Failures are logged, never fatal.
func (c *Client) persistSession(s *session, update bool) {
	if c.hub.sessions == nil || s.record == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	s.record.Utterances = s.utteranceCount
	s.record.TasksEnqueued = int(s.tasksEnqueued.Load())

	var err error
	if update {
		err = c.hub.sessions.Update(ctx, s.record)
	} else {
		err = c.hub.sessions.Create(ctx, s.record)
	}
	if err != nil {
		c.logger.Warn("Failed to persist session record", zap.Error(err))
	}
}
