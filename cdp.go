package main

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// uploadViaChooser clicks the trigger element with file-chooser
// interception enabled and answers the chooser with file. Chrome
// suppresses the native dialog and instead emits a fileChooserOpened
// event carrying the owning input's backend node id, which is all
// DOM.setFileInputFiles needs. The flow blocks until the chooser event
// arrives or ctx expires.
func uploadViaChooser(ctx context.Context, trigger, file string) error {
	chooser := make(chan *page.EventFileChooserOpened, 1)
	lctx, lcancel := context.WithCancel(ctx)
	defer lcancel()
	chromedp.ListenTarget(lctx, func(ev interface{}) {
		if e, ok := ev.(*page.EventFileChooserOpened); ok {
			select {
			case chooser <- e:
			default:
			}
			lcancel()
		}
	})

	if err := chromedp.Run(ctx, page.SetInterceptFileChooserDialog(true)); err != nil {
		return fmt.Errorf("intercept file chooser: %w", err)
	}
	defer func() {
		// Leave the page in its normal state for any later inspection.
		_ = chromedp.Run(ctx, page.SetInterceptFileChooserDialog(false))
	}()

	if err := chromedp.Run(ctx, chromedp.Click(trigger, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", trigger, err)
	}

	select {
	case ev := <-chooser:
		if err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			return dom.SetFileInputFiles([]string{file}).
				WithBackendNodeID(ev.BackendNodeID).
				Do(ctx)
		})); err != nil {
			return fmt.Errorf("set input files: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("file chooser never opened: %w", ctx.Err())
	}
}

// captureFullPage grabs a PNG of the whole page, not just the viewport.
func captureFullPage(buf *[]byte) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		b, err := page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithCaptureBeyondViewport(true).
			Do(ctx)
		if err != nil {
			return err
		}
		*buf = b
		return nil
	})
}

// pollReady blocks until the page reports expr truthy.
func pollReady(expr string) chromedp.Action {
	return chromedp.Poll(expr, nil, chromedp.WithPollingInterval(100*time.Millisecond))
}
