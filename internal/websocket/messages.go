package websocket

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/satriahrh/lisan/server/internal/scheduler"
	"github.com/satriahrh/lisan/server/internal/segmenter"
)

// Control message types accepted from the client.
const (
	MessageConfigure      = "configure"
	MessageStartRecording = "start_recording"
	MessageStopRecording  = "stop_recording"
	MessageAudioData      = "audio_data"
	MessageGetStatus      = "get_status"
	MessageClearAllTasks  = "clear_all_tasks"
)

// Event types emitted to the client.
const (
	EventConfigured         = "configured"
	EventRecordingStarted   = "recording_started"
	EventRecordingStopped   = "recording_stopped"
	EventStatus             = "status"
	EventAllTasksCleared    = "all_tasks_cleared"
	EventTranscription      = "transcription"
	EventTranslation        = "translation"
	EventAudioChunk         = "audio_chunk"
	EventTranslationError   = "translation_error"
	EventTranscriptionError = "transcription_error"
	EventError              = "error"
)

// Envelope is the outer frame of every control message and event.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ConfigureRequest carries per-session pipeline settings. Provider keys are
// used for the lifetime of the session and never persisted.
type ConfigureRequest struct {
	MiniMaxAPIKey    string   `json:"minimax_api_key"`
	T2AAPIKey        string   `json:"t2a_api_key"`
	VoiceID          string   `json:"voice_id"`
	TargetLanguage   string   `json:"target_language"`
	SourceLanguage   string   `json:"source_language,omitempty"`
	HotWords         []string `json:"hot_words,omitempty"`
	TranslationStyle string   `json:"translation_style,omitempty"`
}

// Validate checks the fields every configuration needs. Translator key
// requirements depend on server-side fallbacks, so the hub checks those.
func (r *ConfigureRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.T2AAPIKey) == "" {
		missing = append(missing, "t2a_api_key")
	}
	if strings.TrimSpace(r.VoiceID) == "" {
		missing = append(missing, "voice_id")
	}
	if strings.TrimSpace(r.TargetLanguage) == "" {
		missing = append(missing, "target_language")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// AudioDataRequest carries one chunk of base64-encoded 16-bit PCM.
type AudioDataRequest struct {
	Audio string `json:"audio"`
}

// ConfiguredEvent acknowledges a successful configure.
type ConfiguredEvent struct {
	Status string `json:"status"`
}

// TranscriptionEvent forwards a raw ASR transcript as soon as it exists.
type TranscriptionEvent struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// AudioChunkEvent delivers one synthesized chunk, tagged with its task so the
// client can reassemble interleaved streams.
type AudioChunkEvent struct {
	TaskID  string `json:"task_id"`
	Audio   string `json:"audio"`
	Format  string `json:"format"`
	Size    int    `json:"size"`
	IsFinal bool   `json:"is_final"`
}

// AudioStats augments segmenter state with session counters.
type AudioStats struct {
	segmenter.Stats
	ChunksReceived int `json:"chunks_received"`
	Utterances     int `json:"utterances"`
}

// StatusEvent is the reply to get_status.
type StatusEvent struct {
	Connected  bool             `json:"connected"`
	Configured bool             `json:"configured"`
	Recording  bool             `json:"recording"`
	AudioStats *AudioStats      `json:"audio_stats,omitempty"`
	QueueStats *scheduler.Stats `json:"queue_stats,omitempty"`
}

// ClearedEvent is the reply to clear_all_tasks.
type ClearedEvent struct {
	Cleared int `json:"cleared"`
}

// TaskErrorEvent reports a per-task failure without ending the session.
type TaskErrorEvent struct {
	TaskID string `json:"task_id"`
	Error  string `json:"error"`
}

// ErrorEvent reports a session-level problem.
type ErrorEvent struct {
	Error string `json:"error"`
}

// encodeEvent frames a payload into the outbound envelope.
func encodeEvent(eventType string, payload interface{}) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
		}
		data = raw
	}
	return json.Marshal(Envelope{Type: eventType, Data: data})
}
