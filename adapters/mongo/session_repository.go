package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/satriahrh/lisan/server/domain/entities"
	"github.com/satriahrh/lisan/server/domain/repositories"
)

// SessionRecorder persists connection audit records.
type SessionRecorder struct {
	collection *mongo.Collection
}

// NewSessionRecorder creates a MongoDB-backed session recorder.
func NewSessionRecorder(db *mongo.Database) repositories.SessionRecorder {
	return &SessionRecorder{
		collection: db.Collection("sessions"),
	}
}

// Create implements repositories.SessionRecorder.
func (r *SessionRecorder) Create(ctx context.Context, record *entities.SessionRecord) error {
	if record == nil {
		return errors.New("session record cannot be nil")
	}

	result, err := r.collection.InsertOne(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to create session record: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		record.ID = oid
	}
	return nil
}

// Update implements repositories.SessionRecorder.
func (r *SessionRecorder) Update(ctx context.Context, record *entities.SessionRecord) error {
	if record == nil {
		return errors.New("session record cannot be nil")
	}
	if record.ID.IsZero() {
		return errors.New("session record ID cannot be empty")
	}

	update := bson.M{
		"$set": bson.M{
			"configured_at":     record.ConfiguredAt,
			"disconnected_at":   record.DisconnectedAt,
			"target_language":   record.TargetLanguage,
			"source_language":   record.SourceLanguage,
			"voice_id":          record.VoiceID,
			"translation_style": record.TranslationStyle,
			"utterances":        record.Utterances,
			"tasks_enqueued":    record.TasksEnqueued,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": record.ID}, update)
	if err != nil {
		return fmt.Errorf("failed to update session record: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("session record %s not found", record.ID.Hex())
	}
	return nil
}
