package queue

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Dispatcher attempts to deliver a single queue entry and reports
// whether it succeeded. The queue package knows nothing about
// transport or contacts; the caller (internal/messaging) supplies this.
type Dispatcher func(ctx context.Context, e *Entry) (delivered bool, err error)

// RetryWorkerConfig configures the background retry loop.
type RetryWorkerConfig struct {
	// RetryInterval is how often the periodic phase re-checks for due
	// entries. Bounds [1, 1440] minutes are enforced by the settings
	// layer before this is constructed.
	RetryInterval time.Duration
	Dispatch      Dispatcher
	Queue         *Queue
	Logger        *log.Logger
	// Now returns the current time in epoch milliseconds. Overridable
	// in tests; defaults to time.Now if nil.
	Now func() int64
	// OnDelivered runs after a dispatched entry is removed from the
	// queue on success. The queue package has no notion of chats or
	// contacts, so reconciling chat.has_pending_messages (and, for a
	// delivered ping, chat.is_active) is left to the caller.
	OnDelivered func(targetUID, messageType string)
}

// RetryWorker runs the drain-then-periodic retry loop described by the
// queue's processing rules, mirroring the teacher's two-phase
// background worker shape.
type RetryWorker struct {
	cfg    RetryWorkerConfig
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRetryWorker constructs a worker from cfg. RetryInterval must be
// positive.
func NewRetryWorker(cfg RetryWorkerConfig) *RetryWorker {
	if cfg.Now == nil {
		cfg.Now = func() int64 { return time.Now().UnixMilli() }
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &RetryWorker{cfg: cfg}
}

// Start runs the one-time drain synchronously, then launches the
// periodic phase in the background. Callers invoke Start once
// connectivity has been established.
func (w *RetryWorker) Start(ctx context.Context) {
	w.drain(ctx)

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go w.periodicLoop(loopCtx)
}

// Stop halts the periodic phase and waits for it to exit.
func (w *RetryWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// drain processes every pending entry immediately, regardless of
// next_retry_at, as the one-time phase run after connectivity is
// established.
func (w *RetryWorker) drain(ctx context.Context) {
	entries, err := w.cfg.Queue.FetchAllPending()
	if err != nil {
		w.cfg.Logger.Error("queue drain: fetch pending failed", "err", err)
		return
	}
	w.cfg.Logger.Info("queue drain starting", "entries", len(entries))
	for _, e := range entries {
		w.process(ctx, e)
	}
}

func (w *RetryWorker) periodicLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *RetryWorker) tick(ctx context.Context) {
	due, err := w.cfg.Queue.FetchDue(w.cfg.Now())
	if err != nil {
		w.cfg.Logger.Error("retry tick: fetch due failed", "err", err)
		return
	}
	for _, e := range due {
		w.process(ctx, e)
	}
}

func (w *RetryWorker) process(ctx context.Context, e *Entry) {
	delivered, err := w.cfg.Dispatch(ctx, e)
	if err != nil || !delivered {
		if markErr := w.cfg.Queue.MarkFailed(e.ID, w.cfg.Now()); markErr != nil {
			w.cfg.Logger.Error("mark failed error", "id", e.ID, "err", markErr)
		}
		return
	}
	if markErr := w.cfg.Queue.MarkDelivered(e.ID); markErr != nil {
		w.cfg.Logger.Error("mark delivered error", "id", e.ID, "err", markErr)
		return
	}
	if w.cfg.OnDelivered != nil {
		w.cfg.OnDelivered(e.TargetUID, e.MessageType)
	}
}
