package services

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/aaandroiddd/Waboku.gg-sub004/internal/models"
)

// BatchStats counts what a BatchWriter has committed so far.
type BatchStats struct {
	Commits   int
	Committed map[models.OperationKind]int
}

// BatchWriter splits an operation stream into commits of at most ceiling
// operations. A writer belongs to one run; it is never shared.
// After a failed commit every further call returns the same *BatchCommitError.
type BatchWriter struct {
	committer ICommitter
	ceiling   int
	limiter   *rate.Limiter
	onCommit  func(ctx context.Context, ops []models.Operation)

	buf   []models.Operation
	stats BatchStats
	err   error
}

// BatchOption configures a BatchWriter.
type BatchOption func(*BatchWriter)

// WithCommitLimiter throttles commits. A nil limiter disables throttling.
func WithCommitLimiter(l *rate.Limiter) BatchOption {
	return func(w *BatchWriter) { w.limiter = l }
}

// WithOnCommit registers a callback invoked with the operations of every commit,
// including those a partially failed commit had already applied.
func WithOnCommit(fn func(ctx context.Context, ops []models.Operation)) BatchOption {
	return func(w *BatchWriter) { w.onCommit = fn }
}

// NewBatchWriter creates a writer with an empty buffer.
func NewBatchWriter(c ICommitter, ceiling int, opts ...BatchOption) *BatchWriter {
	if ceiling < 1 {
		ceiling = 1
	}
	w := &BatchWriter{
		committer: c,
		ceiling:   ceiling,
		buf:       make([]models.Operation, 0, ceiling),
		stats:     BatchStats{Committed: make(map[models.OperationKind]int)},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Add appends op to the current buffer and commits it once it reaches the ceiling.
func (w *BatchWriter) Add(ctx context.Context, op models.Operation) error {
	if w.err != nil {
		return w.err
	}
	w.buf = append(w.buf, op)
	if len(w.buf) >= w.ceiling {
		return w.commit(ctx)
	}
	return nil
}

// Flush commits whatever is left in the buffer.
func (w *BatchWriter) Flush(ctx context.Context) error {
	if w.err != nil {
		return w.err
	}
	if len(w.buf) == 0 {
		return nil
	}
	return w.commit(ctx)
}

// Stats returns a copy of the commit counters.
func (w *BatchWriter) Stats() BatchStats {
	out := BatchStats{Commits: w.stats.Commits, Committed: make(map[models.OperationKind]int, len(w.stats.Committed))}
	for k, v := range w.stats.Committed {
		out.Committed[k] = v
	}
	return out
}

// Pending returns the number of buffered, uncommitted operations.
func (w *BatchWriter) Pending() int {
	return len(w.buf)
}

func (w *BatchWriter) commit(ctx context.Context) error {
	batch := w.buf
	batchNo := w.stats.Commits + 1

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			w.err = &BatchCommitError{Batch: batchNo, Ops: len(batch), Err: fmt.Errorf("commit throttle: %w", err)}
			return w.err
		}
	}

	if err := w.committer.Commit(ctx, batch); err != nil {
		// Writes that landed before the failure still count.
		var partial *models.PartialCommitError
		if errors.As(err, &partial) && len(partial.Applied) > 0 {
			w.applied(ctx, partial.Applied)
		}
		w.err = &BatchCommitError{Batch: batchNo, Ops: len(batch), Err: err}
		return w.err
	}

	w.stats.Commits++
	w.applied(ctx, batch)
	w.buf = make([]models.Operation, 0, w.ceiling)
	return nil
}

func (w *BatchWriter) applied(ctx context.Context, ops []models.Operation) {
	for _, op := range ops {
		w.stats.Committed[op.Kind]++
	}
	if w.onCommit != nil {
		w.onCommit(ctx, ops)
	}
}
