// Package scheduler runs translate+synthesize tasks on a bounded worker pool.
// One scheduler instance serves one websocket client.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/lisan/server/domain/repositories"
)

const (
	// DefaultMaxConcurrency bounds both the worker count and the pending
	// queue capacity.
	DefaultMaxConcurrency = 3

	// DefaultTaskTimeout is the per-task budget when the client does not
	// configure one.
	DefaultTaskTimeout = 45 * time.Second

	// translationTimeout bounds the translation phase regardless of the
	// task budget.
	translationTimeout = 35 * time.Second

	// synthesisBudgetFraction of the task timeout is granted to synthesis.
	synthesisBudgetFraction = 0.4

	// retentionAge is how long terminal tasks stay queryable. Purging is
	// lazy, on the next enqueue.
	retentionAge = 5 * time.Minute

	pollInterval = 1 * time.Second
)

// Callbacks deliver pipeline results back to the owning connection. They are
// invoked synchronously from worker goroutines, so the translation callback
// for a task always runs before any of its audio chunks.
type Callbacks struct {
	OnTranslation func(result TranslationResult)
	OnAudioChunk  func(taskID string, chunk []byte, isFinal bool, format string)
	OnError       func(taskID, message string)
}

// SynthesizerFactory builds a fresh synthesis client for one task. A new
// instance per task keeps provider sessions strictly single-use.
type SynthesizerFactory func() (repositories.SpeechSynthesizer, error)

// Config carries the scheduler's collaborators and limits.
type Config struct {
	Translator     repositories.Translator
	NewSynthesizer SynthesizerFactory
	MaxConcurrency int
	TaskTimeout    time.Duration
	Callbacks      Callbacks
}

// Stats is a point-in-time view of the queue for status reporting.
type Stats struct {
	Pending        int  `json:"queue_size"`
	Active         int  `json:"processing_tasks"`
	Completed      int  `json:"completed_tasks"`
	Evicted        int  `json:"evicted_tasks"`
	MaxConcurrency int  `json:"max_concurrent"`
	Running        bool `json:"is_running"`
}

// Scheduler owns a bounded FIFO queue of tasks and a fixed pool of workers
// draining it. Overflow evicts the oldest pending task instead of blocking
// the caller.
type Scheduler struct {
	translator     repositories.Translator
	newSynthesizer SynthesizerFactory
	callbacks      Callbacks
	logger         *zap.Logger

	maxConcurrency int
	taskTimeout    time.Duration

	queue chan *task
	done  chan struct{}
	wg    sync.WaitGroup

	mu        sync.Mutex
	active    map[string]*task
	completed map[string]*task
	evicted   int
	running   bool
}

// New creates a stopped scheduler. Call Start to launch the workers.
func New(cfg Config, logger *zap.Logger) (*Scheduler, error) {
	if cfg.Translator == nil {
		return nil, fmt.Errorf("translator is required")
	}
	if cfg.NewSynthesizer == nil {
		return nil, fmt.Errorf("synthesizer factory is required")
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultTaskTimeout
	}

	return &Scheduler{
		translator:     cfg.Translator,
		newSynthesizer: cfg.NewSynthesizer,
		callbacks:      cfg.Callbacks,
		logger:         logger,
		maxConcurrency: cfg.MaxConcurrency,
		taskTimeout:    cfg.TaskTimeout,
		queue:          make(chan *task, cfg.MaxConcurrency),
		done:           make(chan struct{}),
		active:         make(map[string]*task),
		completed:      make(map[string]*task),
	}, nil
}

// Start launches the worker pool. Starting twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	for i := 0; i < s.maxConcurrency; i++ {
		s.wg.Add(1)
		go s.worker(fmt.Sprintf("worker-%d", i))
	}
	s.logger.Info("scheduler started", zap.Int("workers", s.maxConcurrency))
}

// Stop signals the workers and waits for in-flight tasks to settle.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Enqueue admits a task and returns its id. The call never blocks: when the
// queue is full the oldest pending task is evicted and failed with a queue
// overflow error.
func (s *Scheduler) Enqueue(text, targetLanguage string, hotWords []string, style repositories.TranslationStyle, timeout time.Duration) string {
	if timeout <= 0 {
		timeout = s.taskTimeout
	}
	t := newTask(text, targetLanguage, hotWords, style, timeout)

	s.purgeExpired()

	for {
		select {
		case s.queue <- t:
			s.logger.Debug("task enqueued",
				zap.String("taskId", t.id),
				zap.Int("queueSize", len(s.queue)))
			return t.id
		default:
		}

		select {
		case oldest := <-s.queue:
			s.mu.Lock()
			oldest.finish(TaskFailed, "queue overflow")
			s.completed[oldest.id] = oldest
			s.evicted++
			s.mu.Unlock()
			s.logger.Warn("queue overflow, evicted oldest pending task",
				zap.String("evictedTaskId", oldest.id))
			if s.callbacks.OnError != nil {
				s.callbacks.OnError(oldest.id, "queue overflow")
			}
		default:
			// A worker drained the queue between the two selects.
		}
	}
}

// TaskStatus returns a snapshot of an active or retained terminal task.
// Pending tasks are not addressable until a worker picks them up.
func (s *Scheduler) TaskStatus(id string) (*TaskSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.active[id]; ok {
		return t.snapshot(), true
	}
	if t, ok := s.completed[id]; ok {
		return t.snapshot(), true
	}
	return nil, false
}

// Stats reports current queue occupancy.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Pending:        len(s.queue),
		Active:         len(s.active),
		Completed:      len(s.completed),
		Evicted:        s.evicted,
		MaxConcurrency: s.maxConcurrency,
		Running:        s.running,
	}
}

// DrainAll clears pending tasks, fails active ones, and drops retained
// results. Active provider calls are not interrupted; their completions are
// observed and discarded.
func (s *Scheduler) DrainAll() int {
	cleared := 0
	for {
		select {
		case t := <-s.queue:
			s.mu.Lock()
			t.cancelled = true
			t.finish(TaskFailed, "task cleared by user")
			s.mu.Unlock()
			cleared++
		default:
			s.mu.Lock()
			for _, t := range s.active {
				t.cancelled = true
				if t.finish(TaskFailed, "task cancelled by user") {
					cleared++
				}
			}
			s.completed = make(map[string]*task)
			s.mu.Unlock()
			s.logger.Info("all tasks cleared", zap.Int("count", cleared))
			return cleared
		}
	}
}

func (s *Scheduler) worker(name string) {
	defer s.wg.Done()
	logger := s.logger.With(zap.String("worker", name))
	logger.Debug("worker started")

	for {
		select {
		case <-s.done:
			logger.Debug("worker stopped")
			return
		case t := <-s.queue:
			s.dispatch(t, logger)
		case <-time.After(pollInterval):
		}
	}
}

// dispatch applies the pre-flight checks and runs the pipeline for one task.
func (s *Scheduler) dispatch(t *task, logger *zap.Logger) {
	s.mu.Lock()
	if t.state.Terminal() {
		// Drained or evicted while queued.
		s.completed[t.id] = t
		s.mu.Unlock()
		return
	}
	if age := time.Since(t.createdAt); age > t.timeout {
		t.finish(TaskTimeout, fmt.Sprintf("task timed out after %s in queue", t.timeout))
		s.completed[t.id] = t
		s.mu.Unlock()
		logger.Warn("task expired before processing",
			zap.String("taskId", t.id),
			zap.Duration("age", age))
		s.reportError(t)
		return
	}
	t.state = TaskProcessing
	t.startedAt = time.Now()
	s.active[t.id] = t
	s.mu.Unlock()

	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("task processing panicked", zap.Any("panic", r))
				s.mu.Lock()
				t.finish(TaskFailed, fmt.Sprintf("internal error: %v", r))
				s.mu.Unlock()
			}
		}()
		s.process(t, logger)
	}()

	s.mu.Lock()
	delete(s.active, t.id)
	t.finish(TaskCompleted, "")
	s.completed[t.id] = t
	s.mu.Unlock()

	s.reportError(t)
}

// process runs translation then synthesis. It records terminal failures on
// the task and returns; dispatch owns the bookkeeping.
func (s *Scheduler) process(t *task, logger *zap.Logger) {
	logger = logger.With(zap.String("taskId", t.id))

	tctx, cancel := context.WithTimeout(context.Background(), translationTimeout)
	translated, err := s.translator.Translate(tctx, t.text, t.targetLanguage, t.hotWords, t.style)
	cancel()
	if err != nil {
		s.failTask(t, err, translationTimeout, "translation")
		logger.Error("translation failed", zap.Error(err))
		return
	}
	if strings.TrimSpace(translated) == "" {
		s.mu.Lock()
		t.finish(TaskFailed, "translation returned empty result")
		s.mu.Unlock()
		logger.Error("translation returned empty result")
		return
	}

	result := TranslationResult{
		TaskID:         t.id,
		OriginalText:   t.text,
		TranslatedText: translated,
		TargetLanguage: t.targetLanguage,
	}

	s.mu.Lock()
	cancelled := t.state.Terminal()
	s.mu.Unlock()
	if cancelled {
		logger.Debug("task cancelled during translation, discarding result")
		return
	}

	if s.callbacks.OnTranslation != nil {
		s.callbacks.OnTranslation(result)
	}
	logger.Info("translation completed",
		zap.String("targetLanguage", t.targetLanguage),
		zap.Int("translatedLength", len(translated)))

	synthesizer, err := s.newSynthesizer()
	if err != nil {
		s.mu.Lock()
		t.finish(TaskFailed, fmt.Sprintf("synthesis setup failed: %v", err))
		s.mu.Unlock()
		logger.Error("synthesizer construction failed", zap.Error(err))
		return
	}

	synthesisBudget := time.Duration(float64(t.timeout) * synthesisBudgetFraction)
	sctx, cancel := context.WithTimeout(context.Background(), synthesisBudget)
	defer cancel()

	synthesis, err := synthesizer.Synthesize(sctx, translated, func(chunk []byte, isFinal bool, format string) {
		if s.callbacks.OnAudioChunk != nil {
			s.callbacks.OnAudioChunk(t.id, chunk, isFinal, format)
		}
	})
	if err != nil {
		s.failTask(t, err, synthesisBudget, "synthesis")
		logger.Error("synthesis failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	if !t.state.Terminal() {
		t.result = &TaskResult{
			TranslationResult: result,
			AudioBytes:        synthesis.AudioBytes,
			AudioChunks:       synthesis.Chunks,
		}
	}
	s.mu.Unlock()

	logger.Info("task completed",
		zap.Int("audioBytes", synthesis.AudioBytes),
		zap.Int("audioChunks", synthesis.Chunks))
}

// failTask records a phase failure, distinguishing deadline overruns from
// other errors. Timeout messages carry the task's configured budget alongside
// the phase budget that expired.
func (s *Scheduler) failTask(t *task, err error, budget time.Duration, phase string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if errors.Is(err, context.DeadlineExceeded) {
		t.finish(TaskTimeout, fmt.Sprintf("task timeout after %s: %s exceeded its %s budget", t.timeout, phase, budget))
		return
	}
	t.finish(TaskFailed, fmt.Sprintf("%s failed: %v", phase, err))
}

// reportError fires the error callback for tasks that ended in FAILED or
// TIMEOUT, outside the scheduler lock.
func (s *Scheduler) reportError(t *task) {
	s.mu.Lock()
	state, msg, cancelled := t.state, t.err, t.cancelled
	s.mu.Unlock()

	if cancelled || (state != TaskFailed && state != TaskTimeout) {
		return
	}
	if msg == "" {
		msg = "task failed"
	}
	if s.callbacks.OnError != nil {
		s.callbacks.OnError(t.id, msg)
	}
}

// purgeExpired drops terminal tasks older than the retention window.
func (s *Scheduler) purgeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-retentionAge)
	for id, t := range s.completed {
		if t.createdAt.Before(cutoff) {
			delete(s.completed, id)
		}
	}
}
