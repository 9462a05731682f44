package leads

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/hrconsult-assistant/internal/conversation"
	"github.com/wolfman30/hrconsult-assistant/internal/observability/metrics"
	"github.com/wolfman30/hrconsult-assistant/pkg/logging"
)

const defaultCaptureTimeout = 30 * time.Second

type leadExtractor interface {
	Extract(ctx context.Context, history []conversation.ChatMessage) (*Extracted, error)
}

type captureJob struct {
	sessionID string
	history   []conversation.ChatMessage
}

// CaptureWorker runs extraction and persistence off the chat path. Results are
// logged and counted, never returned to the caller.
type CaptureWorker struct {
	extractor leadExtractor
	persister *Persister
	metrics   *metrics.ChatMetrics
	logger    *logging.Logger
	workers   int
	timeout   time.Duration

	jobs    chan captureJob
	stopped chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
}

func NewCaptureWorker(extractor leadExtractor, persister *Persister, workers, queueSize int, m *metrics.ChatMetrics, logger *logging.Logger) *CaptureWorker {
	if extractor == nil || persister == nil {
		panic("leads: extractor and persister required")
	}
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CaptureWorker{
		extractor: extractor,
		persister: persister,
		metrics:   m,
		logger:    logger.Component("lead-capture"),
		workers:   workers,
		timeout:   defaultCaptureTimeout,
		jobs:      make(chan captureJob, queueSize),
		stopped:   make(chan struct{}),
	}
}

// Start launches the worker goroutines. Cancelling ctx behaves like Stop:
// intake closes and already queued jobs still run, each under its own
// timeout rather than the cancelled ctx.
func (w *CaptureWorker) Start(ctx context.Context) {
	jobCtx := context.WithoutCancel(ctx)
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.run(jobCtx, i+1)
	}
	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-w.stopped:
		}
	}()
}

// Stop stops accepting jobs, drains the queue and waits for workers to exit.
func (w *CaptureWorker) Stop() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
		close(w.stopped)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// Notify queues a transcript for lead capture. It never blocks: a full queue
// drops the job.
func (w *CaptureWorker) Notify(sessionID string, history []conversation.ChatMessage) {
	if w.persister.Processed(sessionID) {
		return
	}
	job := captureJob{sessionID: sessionID, history: append([]conversation.ChatMessage(nil), history...)}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	select {
	case w.jobs <- job:
	default:
		w.logger.Warn("lead capture queue full, dropping job", "session_id", sessionID)
		w.metrics.ObserveLeadCapture("dropped")
	}
}

func (w *CaptureWorker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("lead capture worker started", "worker_id", workerID)
	for job := range w.jobs {
		w.Process(ctx, job.sessionID, job.history)
	}
}

// Process extracts and persists one transcript synchronously.
func (w *CaptureWorker) Process(ctx context.Context, sessionID string, history []conversation.ChatMessage) Outcome {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if w.persister.Processed(sessionID) {
		w.metrics.ObserveLeadCapture(string(OutcomeSkipped))
		return OutcomeSkipped
	}

	extracted, err := w.extractor.Extract(ctx, history)
	if err != nil {
		if errors.Is(err, ErrExtractionFailure) {
			w.logger.Warn("lead extraction returned unusable output", "session_id", sessionID, "error", err)
		} else {
			w.logger.Error("lead extraction failed", "session_id", sessionID, "error", err)
		}
		w.metrics.ObserveLeadCapture("extraction_failed")
		return OutcomeSkipped
	}

	outcome, err := w.persister.Persist(ctx, sessionID, extracted)
	if err != nil {
		w.logger.Error("lead persistence failed", "session_id", sessionID, "error", err)
	}
	w.metrics.ObserveLeadCapture(string(outcome))
	return outcome
}
