package adapters

import (
	"context"
	"testing"

	"github.com/satriahrh/lisan/server/domain/entities"
)

func TestMemorySessionRecorderCreateAndUpdate(t *testing.T) {
	recorder := NewMemorySessionRecorder()
	ctx := context.Background()

	record := entities.NewSessionRecord("client-1")
	if err := recorder.Create(ctx, record); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if record.ID.IsZero() {
		t.Fatal("Create must assign an ID")
	}
	if recorder.Count() != 1 {
		t.Errorf("Count = %d, want 1", recorder.Count())
	}

	record.MarkConfigured("English", "auto", "voice-1", "business")
	record.Utterances = 4
	if err := recorder.Update(ctx, record); err != nil {
		t.Fatalf("Update: %v", err)
	}

	stored, ok := recorder.Get(record.ID)
	if !ok {
		t.Fatal("record not found after update")
	}
	if stored.TargetLanguage != "English" || stored.Utterances != 4 {
		t.Errorf("stored record = %+v", stored)
	}

	// Stored copy must not alias the caller's value.
	record.Utterances = 99
	stored, _ = recorder.Get(record.ID)
	if stored.Utterances != 4 {
		t.Error("recorder stored a reference instead of a copy")
	}
}

func TestMemorySessionRecorderRejectsInvalid(t *testing.T) {
	recorder := NewMemorySessionRecorder()
	ctx := context.Background()

	if err := recorder.Create(ctx, nil); err == nil {
		t.Error("Create(nil) must fail")
	}
	if err := recorder.Update(ctx, entities.NewSessionRecord("client-1")); err == nil {
		t.Error("Update without ID must fail")
	}
}
