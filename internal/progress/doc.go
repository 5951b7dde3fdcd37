// Package progress carries crawl lifecycle events from the controller to
// pluggable sinks. Events are batched on a background goroutine so emitting
// never blocks the work loop.
package progress
