package scheduler

import (
	"time"

	"github.com/google/uuid"

	"github.com/satriahrh/lisan/server/domain/repositories"
)

// TaskState is the lifecycle state of one translate+synthesize task.
type TaskState string

const (
	TaskPending    TaskState = "pending"
	TaskProcessing TaskState = "processing"
	TaskCompleted  TaskState = "completed"
	TaskFailed     TaskState = "failed"
	TaskTimeout    TaskState = "timeout"
)

// Terminal reports whether the state admits no further transitions.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskTimeout:
		return true
	}
	return false
}

// TranslationResult is delivered through the translation callback as soon as
// the translator returns, before synthesis begins.
type TranslationResult struct {
	TaskID         string `json:"task_id"`
	OriginalText   string `json:"original_text"`
	TranslatedText string `json:"translated_text"`
	TargetLanguage string `json:"target_language"`
}

// TaskResult summarizes a completed task. Raw audio is never retained; only
// counts survive.
type TaskResult struct {
	TranslationResult
	AudioBytes  int `json:"audio_size"`
	AudioChunks int `json:"audio_chunks"`
}

// task is the scheduler-private mutable record. All access goes through the
// scheduler's mutex.
type task struct {
	id             string
	text           string
	targetLanguage string
	hotWords       []string
	style          repositories.TranslationStyle
	timeout        time.Duration

	state       TaskState
	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time
	result      *TaskResult
	err         string
	cancelled   bool
}

func newTask(text, targetLanguage string, hotWords []string, style repositories.TranslationStyle, timeout time.Duration) *task {
	return &task{
		id:             uuid.NewString(),
		text:           text,
		targetLanguage: targetLanguage,
		hotWords:       hotWords,
		style:          style,
		timeout:        timeout,
		state:          TaskPending,
		createdAt:      time.Now(),
	}
}

// finish moves the task into a terminal state. Transitions out of a terminal
// state are ignored, which keeps the state machine monotonic even when a
// drain races a worker. Returns whether the transition applied.
func (t *task) finish(state TaskState, errMsg string) bool {
	if t.state.Terminal() {
		return false
	}
	t.state = state
	t.err = errMsg
	t.completedAt = time.Now()
	if t.startedAt.IsZero() {
		t.startedAt = t.completedAt
	}
	return true
}

// TaskSnapshot is the read-only view returned by status queries.
type TaskSnapshot struct {
	ID             string      `json:"id"`
	State          TaskState   `json:"status"`
	Text           string      `json:"text"`
	TargetLanguage string      `json:"target_language"`
	CreatedAt      time.Time   `json:"created_at"`
	StartedAt      *time.Time  `json:"started_at,omitempty"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	Error          string      `json:"error,omitempty"`
	Result         *TaskResult `json:"result,omitempty"`
}

func (t *task) snapshot() *TaskSnapshot {
	snap := &TaskSnapshot{
		ID:             t.id,
		State:          t.state,
		Text:           truncate(t.text, 100),
		TargetLanguage: t.targetLanguage,
		CreatedAt:      t.createdAt,
		Error:          t.err,
	}
	if !t.startedAt.IsZero() {
		started := t.startedAt
		snap.StartedAt = &started
	}
	if !t.completedAt.IsZero() {
		completed := t.completedAt
		snap.CompletedAt = &completed
	}
	if t.result != nil {
		result := *t.result
		snap.Result = &result
	}
	return snap
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
