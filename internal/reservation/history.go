package reservation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stage-inventory-api/internal/models"
	"stage-inventory-api/internal/store"
)

const defaultHistoryTimeout = 10 * time.Second

// Recorder appends equipment history without blocking the caller.
//
// Each Record call writes in its own goroutine with a bounded timeout. A
// failed write is logged and counted, never returned: the equipment mutation
// that produced the entry has already committed and stays committed.
type Recorder struct {
	store   store.HistoryStore
	logger  *zap.Logger
	metrics *Metrics
	timeout time.Duration
	now     func() time.Time

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// RecorderOptions tunes a Recorder. Zero values pick defaults.
type RecorderOptions struct {
	Timeout time.Duration
	Now     func() time.Time
	Logger  *zap.Logger
	Metrics *Metrics
}

// NewRecorder returns a Recorder writing to hs
func NewRecorder(hs store.HistoryStore, opts RecorderOptions) *Recorder {
	r := &Recorder{
		store:   hs,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		timeout: opts.Timeout,
		now:     opts.Now,
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.timeout <= 0 {
		r.timeout = defaultHistoryTimeout
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Record schedules entry for writing and returns immediately.
// Missing ids and dates are filled in before the write starts.
func (r *Recorder) Record(ctx context.Context, entry models.HistoryEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Date.IsZero() {
		entry.Date = r.now().UTC()
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.fail(entry, errRecorderClosed)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	// The write outlives the request that triggered it.
	base := context.WithoutCancel(ctx)
	go func() {
		defer r.wg.Done()
		writeCtx, cancel := context.WithTimeout(base, r.timeout)
		defer cancel()
		if err := r.store.AppendHistory(writeCtx, entry); err != nil {
			r.fail(entry, err)
		}
	}()
}

func (r *Recorder) fail(entry models.HistoryEntry, err error) {
	r.metrics.incHistoryFailure()
	r.logger.Warn("history write failed",
		zap.String("equipment_id", entry.EquipmentID),
		zap.String("action", string(entry.Action)),
		zap.String("entry_id", entry.ID),
		zap.Error(err),
	)
}

// Wait blocks until every scheduled write has finished
func (r *Recorder) Wait() {
	r.wg.Wait()
}

// Close stops accepting entries and waits for outstanding writes or ctx
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListHistory returns entries for one item, newest first
func (r *Recorder) ListHistory(ctx context.Context, equipmentID string, filter store.HistoryFilter) ([]models.HistoryEntry, error) {
	return r.store.ListHistory(ctx, equipmentID, filter)
}
