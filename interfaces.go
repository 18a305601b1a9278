package main

import "context"

// browserDriver is the narrow surface the runner drives. Session is
// the real implementation; tests swap in a fake so phase ordering,
// error mapping, and release semantics can be checked without Chrome.
type browserDriver interface {
	// Navigate loads url in the page context.
	Navigate(ctx context.Context, url string) error
	// Upload clicks the trigger element, waits for the file-chooser
	// event, and answers it with the file path. One blocking call.
	Upload(ctx context.Context, trigger, file string) error
	// WaitVisible blocks until the selector is visible.
	WaitVisible(ctx context.Context, sel string) error
	// Settle waits out the post-render delay or ready expression.
	Settle(ctx context.Context) error
	// Capture returns a full-page PNG.
	Capture(ctx context.Context) ([]byte, error)
	// DumpHTML returns the page's current markup, for diagnostics.
	DumpHTML(ctx context.Context) (string, error)
	// Close releases the browser. Safe to call more than once.
	Close() error
}
