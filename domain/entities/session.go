package entities

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SessionRecord is the audit trail for one client connection. It carries
// lifecycle metadata only; transcripts and audio are never persisted.
type SessionRecord struct {
	ID               primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ClientID         string             `json:"client_id" bson:"client_id"`
	ConnectedAt      time.Time          `json:"connected_at" bson:"connected_at"`
	ConfiguredAt     *time.Time         `json:"configured_at,omitempty" bson:"configured_at,omitempty"`
	DisconnectedAt   *time.Time         `json:"disconnected_at,omitempty" bson:"disconnected_at,omitempty"`
	TargetLanguage   string             `json:"target_language" bson:"target_language"`
	SourceLanguage   string             `json:"source_language" bson:"source_language"`
	VoiceID          string             `json:"voice_id" bson:"voice_id"`
	TranslationStyle string             `json:"translation_style" bson:"translation_style"`
	Utterances       int                `json:"utterances" bson:"utterances"`
	TasksEnqueued    int                `json:"tasks_enqueued" bson:"tasks_enqueued"`
}

// NewSessionRecord creates a record for a freshly connected client.
func NewSessionRecord(clientID string) *SessionRecord {
	return &SessionRecord{
		ClientID:    clientID,
		ConnectedAt: time.Now(),
	}
}

// MarkConfigured stamps the record with the client's active configuration.
func (r *SessionRecord) MarkConfigured(targetLanguage, sourceLanguage, voiceID, style string) {
	now := time.Now()
	r.ConfiguredAt = &now
	r.TargetLanguage = targetLanguage
	r.SourceLanguage = sourceLanguage
	r.VoiceID = voiceID
	r.TranslationStyle = style
}

// MarkDisconnected stamps the record with the disconnect time.
func (r *SessionRecord) MarkDisconnected() {
	now := time.Now()
	r.DisconnectedAt = &now
}
