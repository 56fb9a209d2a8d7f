package crawler

import (
	"context"
	"iter"
	"net/http"
	"time"
)

// HTTP methods accepted for static fetches.
const (
	MethodGet  = http.MethodGet
	MethodPost = http.MethodPost
)

// WorkItem is one unit of crawl work: a bare URL, or a URL plus a pre-encoded request body.
type WorkItem struct {
	URL     string
	Payload *string
}

// URL builds a bare-URL work item.
func URL(rawURL string) WorkItem {
	return WorkItem{URL: rawURL}
}

// Post builds a work item that is always fetched with POST and payload as the body.
func Post(rawURL, payload string) WorkItem {
	return WorkItem{URL: rawURL, Payload: &payload}
}

// URLs converts a list of raw URLs into work items, preserving order.
func URLs(rawURLs ...string) []WorkItem {
	items := make([]WorkItem, 0, len(rawURLs))
	for _, u := range rawURLs {
		items = append(items, URL(u))
	}
	return items
}

// HasPayload reports whether the item carries a request body.
func (w WorkItem) HasPayload() bool {
	return w.Payload != nil
}

// Key identifies the item in the visited set. Pairs are keyed by URL and payload.
func (w WorkItem) Key() string {
	if w.Payload == nil {
		return w.URL
	}
	return w.URL + "\x00" + *w.Payload
}

// String renders the item for log lines.
func (w WorkItem) String() string {
	if w.Payload == nil {
		return w.URL
	}
	return w.URL + " data=" + *w.Payload
}

// FetchResult is a successfully fetched page handed to the parse step.
type FetchResult struct {
	Item       WorkItem
	URL        string
	PageSource string
}

// ParseFunc turns one fetched page into a lazy sequence of records. A non-nil error
// ends the sequence and is reported as a parse failure.
type ParseFunc func(ctx context.Context, result FetchResult) iter.Seq2[*Record, error]

// PrepareFunc runs once before the dispatch loop. It may fetch pages and seed the frontier.
type PrepareFunc func(ctx context.Context, session Session) error

// Spider describes a concrete crawler. Zero-valued optional fields fall back to the
// run-wide settings.
type Spider struct {
	// Name labels log lines, output files and notifications.
	Name string
	// Seeds is the initial frontier. Items are fetched last-in first-out.
	Seeds []WorkItem
	// Table is the relational table records are inserted into.
	Table string

	Render        *bool
	Method        string
	Headers       http.Header
	Encoding      string
	Timeout       time.Duration
	Probe         *Probe
	Headless      *bool
	MailReceivers []string

	Parse   ParseFunc
	Prepare PrepareFunc
}

// Bool returns a pointer to b, for the optional Spider toggles.
func Bool(b bool) *bool {
	return &b
}
