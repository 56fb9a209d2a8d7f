package crawler

import "errors"

// Error classes surfaced by the engine. Callers match them with errors.Is.
var (
	// ErrConfiguration marks an invalid or missing setting. Fatal at startup, never retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransientFetch marks a timeout, transport failure or non-200 response.
	ErrTransientFetch = errors.New("fetch failed")
	// ErrParse marks a failure inside a spider's parse step.
	ErrParse = errors.New("parse failed")
	// ErrSink marks a failure writing one record to a sink.
	ErrSink = errors.New("sink write failed")
	// ErrShutdown marks a failure closing one resource.
	ErrShutdown = errors.New("shutdown failed")
	// ErrNoResult is returned by Session.Request when every attempt failed.
	ErrNoResult = errors.New("no page returned")
	// ErrRendererDisabled indicates a browser fetch was requested without an open browser.
	ErrRendererDisabled = errors.New("renderer disabled")
)
