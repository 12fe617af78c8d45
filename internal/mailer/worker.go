package mailer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/notes-garden/internal/pkg/metrics"
)

var (
	// ErrQueueFull is returned by Enqueue when the buffer has no room.
	ErrQueueFull = errors.New("mail queue is full")
	// ErrWorkerStopped is returned by Enqueue after Stop.
	ErrWorkerStopped = errors.New("mail worker stopped")
)

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// WorkerConfig contains worker configuration.
type WorkerConfig struct {
	QueueSize         int
	NumWorkers        int
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	SendTimeout       time.Duration
}

// DefaultWorkerConfig returns default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		QueueSize:         256,
		NumWorkers:        2,
		MaxAttempts:       3,
		InitialBackoff:    time.Second,
		MaxBackoff:        time.Minute,
		BackoffMultiplier: 2.0,
		SendTimeout:       30 * time.Second,
	}
}

// Worker sends queued messages in the background, retrying transient failures.
// The queue lives in memory: messages still queued when the process dies are lost.
type Worker struct {
	config WorkerConfig
	sender Sender
	queue  chan Message

	mu      sync.RWMutex
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a worker. Call Start to begin sending.
func NewWorker(config WorkerConfig, sender Sender) *Worker {
	defaults := DefaultWorkerConfig()
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.NumWorkers <= 0 {
		config.NumWorkers = defaults.NumWorkers
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff < config.InitialBackoff {
		config.MaxBackoff = max(defaults.MaxBackoff, config.InitialBackoff)
	}
	if config.BackoffMultiplier < 1 {
		config.BackoffMultiplier = defaults.BackoffMultiplier
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = defaults.SendTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		config: config,
		sender: sender,
		queue:  make(chan Message, config.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches worker goroutines.
func (w *Worker) Start() {
	slog.Info("starting mail worker",
		"workers", w.config.NumWorkers,
		"queue_size", w.config.QueueSize,
		"max_attempts", w.config.MaxAttempts,
	)

	for i := 0; i < w.config.NumWorkers; i++ {
		w.wg.Add(1)
		go w.run(i)
	}
}

// Enqueue schedules msg without blocking.
func (w *Worker) Enqueue(msg Message) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return ErrWorkerStopped
	}
	select {
	case w.queue <- msg:
		return nil
	default:
		metrics.MailsSent.WithLabelValues("dropped").Inc()
		return ErrQueueFull
	}
}

// Stop refuses new messages and drains the queue. When ctx ends first,
// pending retries and sends are abandoned and ctx.Err() is returned.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.queue)
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.cancel()
		slog.Info("mail worker stopped")
		return nil
	case <-ctx.Done():
		w.cancel()
		<-done
		return ctx.Err()
	}
}

func (w *Worker) run(workerID int) {
	defer w.wg.Done()

	for msg := range w.queue {
		w.process(workerID, msg)
	}
}

func (w *Worker) process(workerID int, msg Message) {
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(w.ctx, w.config.SendTimeout)
		err := w.sender.Send(ctx, msg)
		cancel()

		if err == nil {
			metrics.MailsSent.WithLabelValues("sent").Inc()
			slog.Debug("mail sent", "worker", workerID, "attempt", attempt)
			return
		}

		if !IsRetryable(err) || attempt >= w.config.MaxAttempts || w.ctx.Err() != nil {
			metrics.MailsSent.WithLabelValues("failed").Inc()
			slog.Error("mail delivery failed",
				"worker", workerID,
				"attempt", attempt,
				"subject", msg.Subject,
				"error", err,
			)
			return
		}

		wait := backoff(attempt, w.config.InitialBackoff, w.config.MaxBackoff, w.config.BackoffMultiplier)
		metrics.MailsSent.WithLabelValues("retry").Inc()
		slog.Warn("mail send failed, retrying",
			"worker", workerID,
			"attempt", attempt,
			"max_attempts", w.config.MaxAttempts,
			"backoff", wait,
			"error", err,
		)

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-w.ctx.Done():
			timer.Stop()
			metrics.MailsSent.WithLabelValues("failed").Inc()
			return
		}
	}
}
