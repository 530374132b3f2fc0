package history

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/synthd/internal/supervisor"
)

// DefaultBuffer is the recorder queue length when none is given.
const DefaultBuffer = 128

// writeTimeout bounds a single insert.
const writeTimeout = 5 * time.Second

// Logger is the logging interface the recorder needs.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder writes supervisor updates to a Repository on its own goroutine.
// Record never blocks, so it can be registered directly with
// Supervisor.OnUpdate. When the queue is full the update is dropped and
// counted.
type Recorder struct {
	repo   Repository
	logger Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	done   chan struct{}

	recorded atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64
}

// NewRecorder starts a recorder. buffer <= 0 uses DefaultBuffer; a nil
// logger discards.
func NewRecorder(repo Repository, buffer int, logger Logger) *Recorder {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = noopLogger{}
	}

	r := &Recorder{
		repo:   repo,
		logger: logger,
		queue:  make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Record queues u for writing.
func (r *Recorder) Record(u supervisor.Update) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return
	}

	select {
	case r.queue <- FromUpdate(u):
	default:
		r.dropped.Add(1)
		r.logger.Warn("lifecycle journal full, dropping update",
			"kind", u.Kind, "status", u.Status, "session", u.Session)
	}
}

// Close stops accepting updates, writes what is queued and returns once the
// writer has finished.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	<-r.done
}

// RecorderStats are cumulative recorder totals.
type RecorderStats struct {
	Recorded uint64 `json:"recorded"`
	Dropped  uint64 `json:"dropped"`
	Failed   uint64 `json:"failed"`
}

// Stats returns the recorder's totals.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Recorded: r.recorded.Load(),
		Dropped:  r.dropped.Load(),
		Failed:   r.failed.Load(),
	}
}

func (r *Recorder) run() {
	defer close(r.done)

	for e := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := r.repo.Create(ctx, &e)
		cancel()

		if err != nil {
			r.failed.Add(1)
			r.logger.Error("recording lifecycle event", "error", err, "kind", e.Kind, "status", e.Status)
			continue
		}
		r.recorded.Add(1)
	}
}
