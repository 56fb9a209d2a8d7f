// Package worker implements the per-sink writer loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlkit/internal/crawler"
	"github.com/JakeFAU/crawlkit/internal/metrics"
)

// Worker drains one sink queue into its sink. The first record it sees fixes the column
// order for every later write.
type Worker struct {
	name   string
	queue  crawler.Queue
	sink   crawler.Sink
	logger *zap.Logger

	mu     sync.Mutex
	fields []string

	written atomic.Int64
	failed  atomic.Int64
}

// New constructs a Worker.
func New(name string, queue crawler.Queue, sink crawler.Sink, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		name:   name,
		queue:  queue,
		sink:   sink,
		logger: logger.With(zap.String("sink", name)),
	}
}

// Name returns the sink name the worker writes to.
func (w *Worker) Name() string {
	return w.name
}

// Run blocks until it dequeues the shutdown marker, the queue is closed, or ctx ends.
// Write failures are logged and skipped.
func (w *Worker) Run(ctx context.Context) {
	metrics.IncActiveWriters()
	defer metrics.DecActiveWriters()
	w.logger.Info("writer started")
	for {
		entry, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Warn("dequeue failed, stopping writer", zap.Error(err))
			}
			break
		}
		if entry.Done {
			break
		}
		if err := w.write(ctx, entry.Record); err != nil {
			w.failed.Add(1)
			metrics.ObserveSinkWrite(w.name, "error")
			w.logger.Error("write failed", zap.Error(err), zap.Stringer("record", entry.Record))
			continue
		}
		w.written.Add(1)
		metrics.ObserveSinkWrite(w.name, "ok")
	}
	w.logger.Info("writer stopped",
		zap.Int64("written", w.written.Load()),
		zap.Int64("failed", w.failed.Load()),
	)
}

func (w *Worker) write(ctx context.Context, record *crawler.Record) (err error) {
	if record == nil || record.Len() == 0 {
		return fmt.Errorf("%w: empty record", crawler.ErrSink)
	}
	fields := w.lockFields(record)
	values, err := record.Project(fields)
	if err != nil {
		return fmt.Errorf("%w: %v", crawler.ErrSink, err)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: sink panicked: %v", crawler.ErrSink, r)
		}
	}()
	if err := w.sink.Write(ctx, fields, values); err != nil {
		if errors.Is(err, crawler.ErrSink) {
			return err
		}
		return fmt.Errorf("%w: %w", crawler.ErrSink, err)
	}
	return nil
}

func (w *Worker) lockFields(record *crawler.Record) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fields == nil {
		w.fields = record.Keys()
		w.logger.Info("fields locked", zap.Strings("fields", w.fields))
	}
	return w.fields
}

// Fields returns the locked column order, or nil before the first record.
func (w *Worker) Fields() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.fields...)
}

// Written returns the number of successful writes.
func (w *Worker) Written() int64 {
	return w.written.Load()
}

// Failed returns the number of failed writes.
func (w *Worker) Failed() int64 {
	return w.failed.Load()
}
