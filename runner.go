package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Runner drives one verification run: navigate to the entry page, feed
// the deck through the file chooser, wait for the first slide, settle,
// and capture a full-page screenshot.
type Runner struct {
	cfg   Config
	paths FilePaths
	log   *slog.Logger
	out   io.Writer

	// connect acquires the browser for this run. Tests swap it out.
	connect func(ctx context.Context) (browserDriver, error)
}

func newRunner(cfg Config, paths FilePaths, logger *slog.Logger, out io.Writer) *Runner {
	cfg.Attempts = clampAttempts(cfg.Attempts)
	return &Runner{
		cfg:   cfg,
		paths: paths,
		log:   logger,
		out:   out,
		connect: func(ctx context.Context) (browserDriver, error) {
			return newSession(ctx, cfg, logger)
		},
	}
}

// Run performs the verification. The navigate, upload and render-wait
// sequence retries as a unit up to cfg.Attempts times; upload failures
// are terminal because a page that lost the chooser needs a reload
// anyway and repeating still would not make the trigger appear. The
// browser is released exactly once on every path out of here.
func (r *Runner) Run(ctx context.Context) (runErr error) {
	report := newRunReport(r.paths)
	started := time.Now()
	defer func() {
		report.DurationMs = time.Since(started).Milliseconds()
		report.Success = runErr == nil
		if runErr != nil {
			report.Error = runErr.Error()
		}
		if r.cfg.Report {
			if err := writeReport(r.paths.Report, report); err != nil {
				r.log.Warn("report write failed", "path", r.paths.Report, "err", err)
			}
		}
	}()

	entryURL := fileURL(r.paths.Entry)
	if r.cfg.Serve {
		srv := newStaticServer(r.paths.Root, r.log)
		base, err := srv.start()
		if err != nil {
			return failPhase(PhaseNavigate, ErrNavigation, err)
		}
		defer func() {
			if err := srv.close(); err != nil {
				r.log.Warn("static server shutdown", "err", err)
			}
		}()
		rel, err := filepath.Rel(r.paths.Root, r.paths.Entry)
		if err != nil {
			rel = filepath.Base(r.paths.Entry)
		}
		entryURL = base + "/" + filepath.ToSlash(rel)
	}

	t := time.Now()
	drv, err := r.connect(ctx)
	report.addPhase(PhaseLaunch, 0, t, err)
	if err != nil {
		return failPhase(PhaseLaunch, ErrLaunch, err)
	}
	defer func() {
		if err := drv.Close(); err != nil {
			r.log.Warn("browser close", "err", err)
		}
	}()

	attempt := 0
	load := func() error {
		attempt++
		r.log.Info("loading deck", "attempt", attempt, "url", entryURL)

		t := time.Now()
		err := drv.Navigate(ctx, entryURL)
		report.addPhase(PhaseNavigate, attempt, t, err)
		if err != nil {
			return retryable(failPhase(PhaseNavigate, ErrNavigation, err))
		}

		t = time.Now()
		err = drv.Upload(ctx, r.cfg.Trigger, r.paths.Deck)
		report.addPhase(PhaseUpload, attempt, t, err)
		if err != nil {
			return retryable(failPhase(PhaseUpload, ErrUpload, err))
		}

		t = time.Now()
		err = drv.WaitVisible(ctx, r.cfg.Slide)
		report.addPhase(PhaseRender, attempt, t, err)
		if err != nil {
			return retryable(failPhase(PhaseRender, ErrRenderTimeout, err))
		}
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(r.cfg.Attempts-1)), ctx)
	notify := func(err error, next time.Duration) {
		r.log.Warn("attempt failed, retrying", "err", err, "backoff", next)
	}
	if err := backoff.RetryNotify(load, policy, notify); err != nil {
		r.dumpFailureHTML(ctx, drv)
		return err
	}

	t = time.Now()
	err = drv.Settle(ctx)
	report.addPhase(PhaseSettle, 0, t, err)
	if err != nil {
		// The slide appeared but the page never reached a settled state.
		r.dumpFailureHTML(ctx, drv)
		return failPhase(PhaseSettle, ErrRenderTimeout, err)
	}

	t = time.Now()
	buf, err := drv.Capture(ctx)
	if err == nil && len(buf) == 0 {
		err = errors.New("empty screenshot buffer")
	}
	if err == nil {
		err = writeScreenshot(r.paths.Screenshot, buf)
	}
	report.addPhase(PhaseCapture, 0, t, err)
	if err != nil {
		r.dumpFailureHTML(ctx, drv)
		return failPhase(PhaseCapture, ErrCapture, err)
	}
	report.Screenshot = r.paths.Screenshot

	r.log.Info("verification complete", "screenshot", r.paths.Screenshot, "bytes", len(buf))
	fmt.Fprintf(r.out, "Screenshot saved to %s\n", r.paths.Screenshot)
	return nil
}

// retryable gates the backoff loop through IsRetryable: retry-worthy
// failures pass through for another attempt, everything else is marked
// permanent and stops the loop at once.
func retryable(err *PhaseError) error {
	if IsRetryable(err) {
		return err
	}
	return backoff.Permanent(err)
}

func writeScreenshot(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("screenshot dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

// dumpFailureHTML snapshots the page markup next to the screenshot so
// a failed run leaves something to debug. Best effort only.
func (r *Runner) dumpFailureHTML(ctx context.Context, drv browserDriver) {
	if !r.cfg.DumpHTML {
		return
	}
	html, err := drv.DumpHTML(ctx)
	if err != nil {
		r.log.Warn("failure dump failed", "err", err)
		return
	}
	path := filepath.Join(filepath.Dir(r.paths.Screenshot), failureDumpName)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		r.log.Warn("failure dump failed", "err", err)
		return
	}
	if err := os.WriteFile(path, []byte(html), 0644); err != nil {
		r.log.Warn("failure dump failed", "err", err)
		return
	}
	r.log.Info("wrote failure dump", "path", path)
}
