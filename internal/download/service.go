package download

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// defaultConcurrency bounds simultaneous map transfers.
const defaultConcurrency = 4

// readChunkSize is the worker's per-read buffer size.
const readChunkSize = 32 * 1024

// TaskSource resolves task ids back into full task descriptors. The
// retry driver uses it to rebuild Failed tasks with SkipIfExists
// disabled, since the prior artifact of the same name is known-bad.
type TaskSource interface {
	TasksFor(ctx context.Context, ids []int64, skipIfExists bool) ([]Task, error)
}

// Options configures the download service.
type Options struct {
	// Concurrency bounds simultaneous transfers (default 4).
	Concurrency int
	// Client is the shared HTTP client. Timeouts for hung connections
	// are its concern, not the engine's.
	Client *http.Client
	// NotifyInterval overrides the progress broadcast throttle.
	NotifyInterval time.Duration
}

// Service is the dispatcher: it accepts batches, spawns workers under
// the concurrency limiter and owns the batch's cancellation signal.
type Service struct {
	store    *Store
	source   TaskSource
	client   *http.Client
	notifier *Notifier
	logger   zerolog.Logger
	limit    int64

	// onComplete is invoked after a task's file hit disk, outside any
	// store lock.
	onComplete func(id int64, path string)

	mu      sync.Mutex
	cancel  context.CancelFunc
	batchID string

	running atomic.Int32
	wg      sync.WaitGroup
}

// NewService creates a download service.
func NewService(source TaskSource, hub Broadcaster, logger zerolog.Logger, opts Options) *Service {
	limit := opts.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}

	return &Service{
		store:    NewStore(),
		source:   source,
		client:   client,
		notifier: NewNotifier(hub, opts.NotifyInterval),
		logger:   logger.With().Str("component", "download").Logger(),
		limit:    int64(limit),
	}
}

// SetOnComplete registers a hook called for every task that reaches
// Complete, with the task id and destination path.
func (s *Service) SetOnComplete(fn func(id int64, path string)) {
	s.onComplete = fn
}

// Submit accepts a batch of tasks and returns immediately; completion is
// observed through Snapshot. An empty batch is a no-op. The batch gets a
// fresh cancellation signal; any prior signal is discarded, so
// cancelling an old, finished batch has no effect on the new one.
func (s *Service) Submit(tasks []Task) {
	s.submit(tasks, true)
}

func (s *Service) submit(tasks []Task, fresh bool) {
	if len(tasks) == 0 {
		s.logger.Debug().Msg("empty batch submitted, ignoring")
		return
	}

	ctx, gen := s.beginBatch(tasks, fresh)

	s.logger.Info().
		Str("batch", s.currentBatchID()).
		Int("count", len(tasks)).
		Msg("batch submitted")

	s.notifier.Started(s.store.Snapshot())

	sem := semaphore.NewWeighted(s.limit)
	var remaining atomic.Int32
	remaining.Store(int32(len(tasks)))

	for _, task := range tasks {
		s.running.Add(1)
		s.wg.Add(1)
		go func(t Task) {
			defer s.wg.Done()
			defer s.running.Add(-1)

			if err := sem.Acquire(ctx, 1); err != nil {
				// Cancelled while waiting for a slot; the task never
				// left Pending.
				s.finish(gen, t, Status{State: StateCancelled})
			} else {
				s.runTask(ctx, gen, t)
				sem.Release(1)
			}

			if remaining.Add(-1) == 0 {
				snap := s.store.Snapshot()
				s.notifier.Finished(snap)
				s.logger.Info().
					Int("completed", snap.Counters.Completed).
					Int("failed", snap.Counters.Failed).
					Int("skipped", snap.Counters.Skipped).
					Int("cancelled", snap.Counters.Cancelled).
					Msg("batch finished")
			}
		}(task)
	}
}

// beginBatch installs a fresh cancellation scope and, for a full
// submission, re-initializes the store. It returns the store generation
// the batch's workers must tag their writes with: a later Submit bumps
// the generation, so workers of the replaced batch cannot land writes in
// the new batch's entries even though the catalog ids overlap.
func (s *Service) beginBatch(tasks []Task, fresh bool) (context.Context, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.batchID = uuid.NewString()

	gen := s.store.Generation()
	if fresh {
		gen = s.store.Init(tasks)
	}
	return ctx, gen
}

func (s *Service) currentBatchID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchID
}

// Cancel raises the current batch's cancellation signal. It is
// idempotent and does not wait for workers to observe it.
func (s *Service) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.logger.Info().Msg("batch cancellation requested")
	}
}

// RetryFailed resubmits exactly the tasks whose last status is Failed,
// with SkipIfExists disabled. Tasks in any other state are untouched.
// A retry while the previous batch is still running is refused, and a
// retry with nothing failed is a no-op.
func (s *Service) RetryFailed(ctx context.Context) error {
	if s.running.Load() > 0 {
		s.logger.Warn().Msg("retry requested while batch still running, ignoring")
		return nil
	}

	snap := s.store.Snapshot()
	failed := make([]int64, 0, snap.Counters.Failed)
	for _, id := range snap.Order {
		if snap.Statuses[id].State == StateFailed {
			failed = append(failed, id)
		}
	}
	if len(failed) == 0 {
		return nil
	}

	tasks, err := s.source.TasksFor(ctx, failed, false)
	if err != nil {
		return fmt.Errorf("resolve failed tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil
	}

	ids := make([]int64, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	reset := s.store.ResetForRetry(ids)

	s.logger.Info().Int("count", len(reset)).Msg("retrying failed tasks")
	s.submit(tasks, false)
	return nil
}

// Snapshot returns the current batch state for rendering.
func (s *Service) Snapshot() Snapshot {
	return s.store.Snapshot()
}

// Clear empties the status store after the batch view is dismissed.
func (s *Service) Clear() {
	s.store.Clear()
}

// Wait blocks until every spawned worker has finished. Intended for
// tests and shutdown.
func (s *Service) Wait() {
	s.wg.Wait()
}

// runTask executes one task: cancellation check, skip-existing check,
// streamed fetch with throttled progress, then a single write to disk.
func (s *Service) runTask(ctx context.Context, gen uint64, t Task) {
	if ctx.Err() != nil {
		s.finish(gen, t, Status{State: StateCancelled})
		return
	}

	if t.SkipIfExists {
		if _, err := os.Stat(t.Destination); err == nil {
			s.finish(gen, t, Status{State: StateSkipped})
			return
		}
	}

	s.store.SetStatus(gen, t.ID, Status{State: StateDownloading})
	s.notifier.Progress(s.store.Snapshot())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		s.finish(gen, t, Status{State: StateFailed, Reason: err.Error()})
		return
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			s.finish(gen, t, Status{State: StateCancelled})
		} else {
			s.finish(gen, t, Status{State: StateFailed, Reason: err.Error()})
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.finish(gen, t, Status{State: StateFailed, Reason: fmt.Sprintf("HTTP %d", resp.StatusCode)})
		return
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}

	// The whole body is buffered in memory and written in one shot, so
	// the destination is never left half-written on cancellation or a
	// late chunk error.
	buf := bytes.NewBuffer(make([]byte, 0, total))
	chunk := make([]byte, readChunkSize)
	var done int64

	for {
		select {
		case <-ctx.Done():
			s.finish(gen, t, Status{State: StateCancelled})
			return
		default:
		}

		n, readErr := resp.Body.Read(chunk)
		if n > 0 {
			done += int64(n)
			buf.Write(chunk[:n])
			s.store.SetStatus(gen, t.ID, Status{State: StateDownloading, BytesDone: done, TotalBytes: total})
			s.notifier.Progress(s.store.Snapshot())
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				s.finish(gen, t, Status{State: StateCancelled})
			} else {
				s.finish(gen, t, Status{State: StateFailed, Reason: readErr.Error()})
			}
			return
		}
	}

	if err := os.WriteFile(t.Destination, buf.Bytes(), 0o644); err != nil {
		s.logger.Error().Err(err).Str("path", t.Destination).Msg("failed to write file")
		s.finish(gen, t, Status{State: StateFailed, Reason: "Write failed"})
		return
	}

	s.finish(gen, t, Status{State: StateComplete})
}

// finish records a terminal status and notifies the consumer
// immediately. The store refuses the write if the generation is stale or
// the task already reached a terminal state, in which case no
// notification is sent and the onComplete hook does not fire.
func (s *Service) finish(gen uint64, t Task, status Status) {
	if !s.store.SetStatus(gen, t.ID, status) {
		return
	}

	switch status.State {
	case StateComplete:
		s.logger.Debug().Int64("id", t.ID).Str("path", t.Destination).Msg("task complete")
		if s.onComplete != nil {
			s.onComplete(t.ID, t.Destination)
		}
	case StateFailed:
		s.logger.Warn().Int64("id", t.ID).Str("url", t.URL).Str("reason", status.Reason).Msg("task failed")
	case StateSkipped:
		s.logger.Debug().Int64("id", t.ID).Msg("task skipped, destination exists")
	case StateCancelled:
		s.logger.Debug().Int64("id", t.ID).Msg("task cancelled")
	}

	s.notifier.Terminal(s.store.Snapshot())
}
