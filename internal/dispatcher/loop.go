package dispatcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlkit/internal/crawler"
	"github.com/JakeFAU/crawlkit/internal/metrics"
)

// Crawl drains the frontier: each item is fetched, parsed, and every record it yields is
// pushed to all sink queues. It returns when the frontier is empty.
func (e *Engine) Crawl(ctx context.Context) error {
	if st := e.State(); st != StatePrepared {
		return fmt.Errorf("crawl: engine is %s", st)
	}
	e.setState(StateRunning)
	e.logger.Info("crawl started", zap.Int("frontier", e.frontier.Len()))
	for {
		item, ok := e.frontier.Pop()
		if !ok {
			break
		}
		result, ok := e.fetcher.Fetch(ctx, item)
		if !ok {
			e.count(func(s *Stats) { s.Failed++ })
			continue
		}
		e.count(func(s *Stats) { s.Fetched++ })
		e.parse(ctx, result)
	}
	st := e.Stats()
	e.logger.Info("crawl complete",
		zap.Int("fetched", st.Fetched),
		zap.Int("failed", st.Failed),
		zap.Int("records", st.Records),
		zap.Int("parse_errors", st.ParseErrors),
	)
	return nil
}

func (e *Engine) parse(ctx context.Context, result crawler.FetchResult) {
	defer func() {
		if r := recover(); r != nil {
			e.parseFailed(result, fmt.Errorf("%w: panic: %v", crawler.ErrParse, r))
		}
	}()
	for record, err := range e.spider.Parse(ctx, result) {
		if err != nil {
			e.parseFailed(result, fmt.Errorf("%w: %w", crawler.ErrParse, err))
			return
		}
		if record == nil || record.Len() == 0 {
			continue
		}
		e.dispatch(record)
	}
}

func (e *Engine) dispatch(record *crawler.Record) {
	for _, s := range e.sinks {
		if err := s.queue.Enqueue(e.writeCtx, crawler.Entry{Record: record}); err != nil {
			e.logger.Error("queueing record failed", zap.String("sink", s.name), zap.Error(err))
			continue
		}
		metrics.ObserveRecordQueued(s.name)
	}
	e.count(func(s *Stats) { s.Records++ })
}

func (e *Engine) parseFailed(result crawler.FetchResult, err error) {
	e.count(func(s *Stats) { s.ParseErrors++ })
	metrics.ObserveParseError(e.spider.Name)
	e.logger.Error("parse failed", zap.Stringer("item", result.Item), zap.Error(err))
	e.recordError(fmt.Sprintf("parse %s: %v", result.Item, err))
	e.dump(result)
}

// dump saves the page that failed to parse. The sequence number advances even when the
// write fails.
func (e *Engine) dump(result crawler.FetchResult) {
	e.mu.Lock()
	e.dumpSeq++
	seq := e.dumpSeq
	e.mu.Unlock()

	path := filepath.Join(e.settings.RunDir, fmt.Sprintf("%s_%d.dmp", e.spider.Name, seq))
	if err := os.WriteFile(path, []byte(result.PageSource), 0o640); err != nil {
		e.logger.Error("saving failed page failed", zap.String("path", path), zap.Error(err))
		return
	}
	e.logger.Info("failed page saved", zap.String("path", path))
}

func (e *Engine) recordError(entry string) {
	e.errs.Add(entry)
	metrics.ObserveErrorRecorded(e.spider.Name)
}

func (e *Engine) count(fn func(*Stats)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.stats)
}
