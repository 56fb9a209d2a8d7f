// Package crawler holds the core crawl types: work items, the LIFO frontier, ordered
// records, readiness probes, run settings and the fetcher that applies the retry and
// rendering policy. The dispatcher package drives these through a run.
package crawler
