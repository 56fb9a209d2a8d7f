// Package dispatcher drives a spider through its lifecycle: it opens the sinks and their
// writer workers, runs the prepare hook, drains the frontier through fetch and parse, and
// releases everything in reverse order.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlkit/internal/crawler"
	"github.com/JakeFAU/crawlkit/internal/queue/memory"
	"github.com/JakeFAU/crawlkit/internal/worker"
)

// Number of error log entries included in the failure notification.
const notifyEntries = 5

// SinkFactory opens one named sink during Init.
type SinkFactory struct {
	Name string
	Open func(ctx context.Context) (crawler.Sink, error)
}

// Options configures an Engine.
type Options struct {
	Spider crawler.Spider
	// Settings are the run-wide defaults; the spider's overrides are layered on top.
	Settings crawler.Settings
	// Sinks are opened in order and closed in reverse order.
	Sinks       []SinkFactory
	OpenSession func(ctx context.Context) (crawler.HTTPSession, error)
	// OpenBrowser is called only when rendering is enabled.
	OpenBrowser func(ctx context.Context) (crawler.Browser, error)
	// Notifier receives the failure summary when mail is enabled.
	Notifier crawler.Notifier
	Logger   *zap.Logger
}

type activeSink struct {
	name   string
	sink   crawler.Sink
	queue  *memory.Queue
	worker *worker.Worker
	done   chan struct{}
}

// Engine runs one spider from start to finish. It is not reusable.
type Engine struct {
	opts     Options
	spider   crawler.Spider
	settings crawler.Settings
	runID    string
	logger   *zap.Logger

	mu      sync.Mutex
	state   State
	closing bool

	frontier *crawler.Frontier
	errs     *crawler.ErrorLog
	fetcher  *crawler.Fetcher
	session  crawler.HTTPSession
	browser  crawler.Browser
	sinks    []*activeSink

	// writeCtx outlives cancellation of the run context so queued records still drain.
	writeCtx context.Context

	dumpSeq int
	stats   Stats
}

// Stats summarizes a run.
type Stats struct {
	Fetched     int
	Failed      int
	Records     int
	ParseErrors int
}

// New builds an engine in the Created state.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := uuid.NewString()
	return &Engine{
		opts:     opts,
		spider:   opts.Spider,
		settings: opts.Settings.WithSpider(opts.Spider),
		runID:    runID,
		logger:   logger.Named("engine").With(zap.String("spider", opts.Spider.Name), zap.String("run_id", runID)),
		state:    StateCreated,
		frontier: crawler.NewFrontier(opts.Spider.Seeds...),
		errs:     &crawler.ErrorLog{},
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s
}

// RunID identifies this run in log lines.
func (e *Engine) RunID() string {
	return e.runID
}

// Settings returns the resolved settings for the run.
func (e *Engine) Settings() crawler.Settings {
	return e.settings
}

// Frontier returns the pending work pool.
func (e *Engine) Frontier() *crawler.Frontier {
	return e.frontier
}

// Errors returns the run's error log.
func (e *Engine) Errors() *crawler.ErrorLog {
	return e.errs
}

// Stats returns counters for the run so far.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Run executes Init, Prepare, the dispatch loop and Close. Only start-up failures are
// returned; everything after Init is logged and recorded in the error log.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Init(ctx); err != nil {
		return err
	}
	if err := e.Prepare(ctx); err != nil {
		e.logger.Error("prepare failed", zap.Error(err))
	}
	if err := e.Crawl(ctx); err != nil {
		e.logger.Error("crawl failed", zap.Error(err))
	}
	if err := e.Close(ctx); err != nil {
		e.logger.Warn("shutdown finished with errors", zap.Error(err))
	}
	return nil
}

// Init validates the settings and opens every resource: sinks and their writers, the HTTP
// session and, when rendering is enabled, the browser. A failure releases whatever was
// already opened and is returned as ErrConfiguration.
func (e *Engine) Init(ctx context.Context) error {
	if st := e.State(); st != StateCreated {
		return fmt.Errorf("init: engine is %s", st)
	}
	if err := e.validate(); err != nil {
		e.logger.Error("invalid configuration", zap.Error(err))
		return err
	}
	e.logger.Info("starting crawler", zap.Int("seeds", e.frontier.Len()))
	e.writeCtx = context.WithoutCancel(ctx)

	if err := e.open(ctx); err != nil {
		e.logger.Error("start-up failed, releasing resources", zap.Error(err))
		_ = e.release(ctx)
		e.setState(StateTerminated)
		return err
	}
	e.fetcher = crawler.NewFetcher(e.spider.Name, e.session, e.browser, e.settings, e.errs, e.logger.Named("fetcher"))
	e.setState(StateInitialized)
	e.logger.Info("initialization complete", zap.Int("sinks", len(e.sinks)), zap.Bool("render", e.settings.Render))
	return nil
}

func (e *Engine) validate() error {
	if strings.TrimSpace(e.spider.Name) == "" {
		return fmt.Errorf("%w: spider name is required", crawler.ErrConfiguration)
	}
	if e.spider.Parse == nil {
		return fmt.Errorf("%w: spider %s has no parse step", crawler.ErrConfiguration, e.spider.Name)
	}
	if e.opts.OpenSession == nil {
		return fmt.Errorf("%w: no http session factory", crawler.ErrConfiguration)
	}
	if e.settings.Render && e.opts.OpenBrowser == nil {
		return fmt.Errorf("%w: rendering enabled without a browser factory", crawler.ErrConfiguration)
	}
	if e.settings.MailEnabled && e.opts.Notifier == nil {
		return fmt.Errorf("%w: mail enabled without a notifier", crawler.ErrConfiguration)
	}
	seen := make(map[string]struct{}, len(e.opts.Sinks))
	for _, f := range e.opts.Sinks {
		if f.Name == "" || f.Open == nil {
			return fmt.Errorf("%w: sink factory needs a name and an open function", crawler.ErrConfiguration)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%w: duplicate sink %q", crawler.ErrConfiguration, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return e.settings.Validate()
}

func (e *Engine) open(ctx context.Context) error {
	for _, f := range e.opts.Sinks {
		sink, err := f.Open(ctx)
		if err != nil {
			return fmt.Errorf("%w: open %s sink: %w", crawler.ErrConfiguration, f.Name, err)
		}
		e.sinks = append(e.sinks, &activeSink{name: f.Name, sink: sink})
		e.logger.Info("sink opened", zap.String("sink", f.Name))
	}
	for _, s := range e.sinks {
		s.queue = memory.NewQueue(e.settings.QueueCapacity)
		s.worker = worker.New(s.name, s.queue, s.sink, e.logger.Named("writer"))
		s.done = make(chan struct{})
		go func(s *activeSink) {
			defer close(s.done)
			s.worker.Run(e.writeCtx)
		}(s)
	}

	session, err := e.opts.OpenSession(ctx)
	if err != nil {
		return fmt.Errorf("%w: open http session: %w", crawler.ErrConfiguration, err)
	}
	e.session = session
	e.logger.Info("http session opened")

	if e.settings.Render {
		browser, err := e.opts.OpenBrowser(ctx)
		if err != nil {
			return fmt.Errorf("%w: open browser: %w", crawler.ErrConfiguration, err)
		}
		e.browser = browser
		e.logger.Info("browser opened")
	}
	return nil
}

// Prepare runs the spider's prepare hook and then copies the browser's cookies into the
// HTTP session. A hook failure is logged and recorded; it does not stop the run.
func (e *Engine) Prepare(ctx context.Context) error {
	if st := e.State(); st != StateInitialized {
		return fmt.Errorf("prepare: engine is %s", st)
	}
	if e.spider.Prepare != nil {
		if err := e.runPrepare(ctx); err != nil {
			e.logger.Error("prepare hook failed", zap.Error(err))
			e.recordError(fmt.Sprintf("prepare: %v", err))
		}
	}
	if e.browser != nil {
		e.importCookies(ctx)
	}
	e.setState(StatePrepared)
	e.logger.Info("prepare complete", zap.Int("frontier", e.frontier.Len()))
	return nil
}

func (e *Engine) runPrepare(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("prepare hook panicked: %v", r)
		}
	}()
	return e.spider.Prepare(ctx, &session{engine: e})
}

func (e *Engine) importCookies(ctx context.Context) {
	cookies, err := e.browser.Cookies(ctx)
	if err != nil {
		e.logger.Warn("reading browser cookies failed", zap.Error(err))
		return
	}
	if len(cookies) == 0 {
		return
	}
	if err := e.session.SetCookies(cookies); err != nil {
		e.logger.Warn("importing browser cookies failed", zap.Error(err))
		return
	}
	e.logger.Info("browser cookies imported", zap.Int("count", len(cookies)))
}

// Close stops the writers, closes the session, the browser and the sinks, and sends the
// failure summary. Each step is attempted even when an earlier one fails. Later calls are
// no-ops.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateCreated || e.state == StateTerminated || e.closing {
		e.mu.Unlock()
		return nil
	}
	e.closing = true
	e.mu.Unlock()

	err := e.release(ctx)
	e.notify(ctx)
	e.setState(StateTerminated)
	e.logger.Info("crawler finished",
		zap.Int("visited", e.frontier.VisitedCount()),
		zap.Int("errors", e.errs.Len()),
	)
	return err
}

func (e *Engine) release(ctx context.Context) error {
	var errs []error
	for i := len(e.sinks) - 1; i >= 0; i-- {
		s := e.sinks[i]
		if s.queue == nil {
			continue
		}
		if err := s.queue.Enqueue(e.writeCtx, crawler.Entry{Done: true}); err != nil {
			e.logger.Warn("signalling writer failed", zap.String("sink", s.name), zap.Error(err))
		}
		<-s.done
		s.queue.Close()
		e.logger.Info("writer exited", zap.String("sink", s.name))
	}
	e.setState(StateClosedStreaming)

	if e.session != nil {
		errs = append(errs, e.closeResource("http session", e.session.Close))
	}
	if e.browser != nil {
		errs = append(errs, e.closeResource("browser", e.browser.Close))
	}
	for i := len(e.sinks) - 1; i >= 0; i-- {
		s := e.sinks[i]
		errs = append(errs, e.closeResource(s.name+" sink", s.sink.Close))
	}
	e.setState(StateClosedExternal)
	return errors.Join(errs...)
}

func (e *Engine) closeResource(name string, closeFn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: close %s panicked: %v", crawler.ErrShutdown, name, r)
		}
		if err != nil {
			e.logger.Error("close failed", zap.String("resource", name), zap.Error(err))
			return
		}
		e.logger.Info("closed", zap.String("resource", name))
	}()
	if cerr := closeFn(); cerr != nil {
		return fmt.Errorf("%w: close %s: %w", crawler.ErrShutdown, name, cerr)
	}
	return nil
}

func (e *Engine) notify(ctx context.Context) {
	if !e.settings.MailEnabled || e.errs.Len() == 0 {
		return
	}
	subject := e.spider.Name + " crawl failed"
	body := subject + ":\n" + strings.Join(e.errs.First(notifyEntries), "\n")
	if err := e.opts.Notifier.Send(ctx, e.settings.MailReceivers, subject, body); err != nil {
		e.logger.Error("sending failure notification failed", zap.Error(err))
		return
	}
	e.logger.Info("failure notification sent", zap.Strings("to", e.settings.MailReceivers))
}
