package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlkit/internal/crawler"
	"github.com/JakeFAU/crawlkit/internal/queue/memory"
)

type write struct {
	fields []string
	values []string
}

type fakeSink struct {
	mu     sync.Mutex
	writes []write
	failOn map[string]bool
	panics bool
}

func (s *fakeSink) Write(_ context.Context, fields, values []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panics {
		panic("driver exploded")
	}
	if len(values) > 0 && s.failOn[values[0]] {
		return errors.New("insert rejected")
	}
	s.writes = append(s.writes, write{fields: fields, values: values})
	return nil
}

func (s *fakeSink) Close() error { return nil }

func (s *fakeSink) snapshot() []write {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]write(nil), s.writes...)
}

func runWorker(t *testing.T, w *Worker) <-chan struct{} {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(context.Background())
	}()
	return done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorkerWritesInOrderWithLockedFields(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(10)
	sink := &fakeSink{}
	w := New("text", q, sink, zap.NewNop())
	done := runWorker(t, w)

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, crawler.Entry{Record: crawler.NewRecord("a", "1", "b", "2")}))
	require.NoError(t, q.Enqueue(ctx, crawler.Entry{Record: crawler.NewRecord("b", "4", "a", "3", "c", "extra")}))
	require.NoError(t, q.Enqueue(ctx, crawler.Entry{Done: true}))
	waitDone(t, done)

	got := sink.snapshot()
	require.Len(t, got, 2)
	require.Equal(t, []string{"a", "b"}, got[0].fields)
	require.Equal(t, []string{"1", "2"}, got[0].values)
	require.Equal(t, []string{"a", "b"}, got[1].fields)
	require.Equal(t, []string{"3", "4"}, got[1].values)
	require.Equal(t, []string{"a", "b"}, w.Fields())
	require.EqualValues(t, 2, w.Written())
}

func TestWorkerContinuesAfterSinkErrors(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(10)
	sink := &fakeSink{failOn: map[string]bool{"bad": true}}
	w := New("database", q, sink, zap.NewNop())
	done := runWorker(t, w)

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, crawler.Entry{Record: crawler.NewRecord("x", "bad")}))
	require.NoError(t, q.Enqueue(ctx, crawler.Entry{Record: crawler.NewRecord("y", "missing x")}))
	require.NoError(t, q.Enqueue(ctx, crawler.Entry{Record: crawler.NewRecord("x", "good")}))
	require.NoError(t, q.Enqueue(ctx, crawler.Entry{Done: true}))
	waitDone(t, done)

	got := sink.snapshot()
	require.Len(t, got, 1)
	require.Equal(t, []string{"good"}, got[0].values)
	require.EqualValues(t, 2, w.Failed())
}

func TestWorkerRecoversSinkPanic(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(10)
	w := New("kafka", q, &fakeSink{panics: true}, nil)
	done := runWorker(t, w)

	require.NoError(t, q.Enqueue(context.Background(), crawler.Entry{Record: crawler.NewRecord("x", "1")}))
	require.NoError(t, q.Enqueue(context.Background(), crawler.Entry{Done: true}))
	waitDone(t, done)
	require.EqualValues(t, 1, w.Failed())
}

func TestWorkerStopsOnMarkerLeavingLaterEntries(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(10)
	sink := &fakeSink{}
	w := New("text", q, sink, nil)

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, crawler.Entry{Done: true}))
	require.NoError(t, q.Enqueue(ctx, crawler.Entry{Done: true}))
	done := runWorker(t, w)
	waitDone(t, done)
	require.Equal(t, 1, q.Len(), "the extra marker stays queued")
	require.Empty(t, sink.snapshot())
	require.Nil(t, w.Fields())
}

func TestWorkerStopsWhenQueueClosed(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	w := New("text", q, &fakeSink{}, nil)
	done := runWorker(t, w)
	q.Close()
	waitDone(t, done)
}
