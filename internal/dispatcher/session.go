package dispatcher

import (
	"context"
	"fmt"

	"github.com/JakeFAU/crawlkit/internal/crawler"
)

// session is the handle a prepare hook uses to fetch pages and shape the run.
type session struct {
	engine *Engine
}

var _ crawler.Session = (*session)(nil)

func (s *session) Request(ctx context.Context, rawURL string, opts ...crawler.RequestOption) (string, error) {
	page, ok := s.engine.fetcher.Request(ctx, rawURL, opts...)
	if !ok {
		return "", fmt.Errorf("%w: %s", crawler.ErrNoResult, rawURL)
	}
	return page, nil
}

func (s *session) Push(items ...crawler.WorkItem) {
	s.engine.frontier.Push(items...)
}

func (s *session) SetRender(enabled bool) error {
	return s.engine.fetcher.SetRender(enabled)
}

func (s *session) SetMethod(method string) error {
	return s.engine.fetcher.SetMethod(method)
}

func (s *session) Frontier() *crawler.Frontier {
	return s.engine.frontier
}
