package crawler

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// HTTPRequest is one static request attempt.
type HTTPRequest struct {
	Method   string
	URL      string
	Headers  http.Header
	Query    url.Values
	Body     string
	Timeout  time.Duration
	Encoding string
}

// HTTPResponse is the decoded outcome of one attempt.
type HTTPResponse struct {
	URL        string
	StatusCode int
	Body       string
}

// HTTPSession performs single-attempt requests that share one cookie jar.
type HTTPSession interface {
	Do(ctx context.Context, request HTTPRequest) (HTTPResponse, error)
	SetCookies(cookies []*http.Cookie) error
	Close() error
}

// Browser drives one long-lived rendering session.
type Browser interface {
	Navigate(ctx context.Context, rawURL string) error
	PageSource(ctx context.Context) (string, error)
	Cookies(ctx context.Context) ([]*http.Cookie, error)
	Close() error
}

// Sink persists one projected record per call.
type Sink interface {
	Write(ctx context.Context, fields []string, values []string) error
	Close() error
}

// Notifier delivers the end-of-run summary.
type Notifier interface {
	Send(ctx context.Context, recipients []string, subject, body string) error
}

// Session is the handle passed to a spider's prepare step.
type Session interface {
	// Request fetches one page with the current mode. It returns ErrNoResult when every attempt failed.
	Request(ctx context.Context, rawURL string, opts ...RequestOption) (string, error)
	// Push schedules more work.
	Push(items ...WorkItem)
	// SetRender switches bare-URL fetches between the browser and the HTTP session.
	SetRender(enabled bool) error
	// SetMethod changes the default static method.
	SetMethod(method string) error
	// Frontier exposes the pending pool.
	Frontier() *Frontier
}

// RequestOption adjusts a prepare-phase request.
type RequestOption func(*HTTPRequest)

// WithQuery adds query parameters to a static request.
func WithQuery(values url.Values) RequestOption {
	return func(r *HTTPRequest) {
		r.Query = values
	}
}

// WithBody sends body with POST.
func WithBody(body string) RequestOption {
	return func(r *HTTPRequest) {
		r.Method = MethodPost
		r.Body = body
	}
}

// WithMethod overrides the static method for one request.
func WithMethod(method string) RequestOption {
	return func(r *HTTPRequest) {
		r.Method = method
	}
}

// Entry is one sink-queue element: a record, or the shutdown marker.
type Entry struct {
	Record *Record
	Done   bool
}

// Queue is a bounded FIFO of entries shared by one producer and one writer.
type Queue interface {
	Enqueue(ctx context.Context, entry Entry) error
	Dequeue(ctx context.Context) (Entry, error)
	Close()
}
