package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// Session owns one browser process (or one attached tab in remote
// mode) and the single page context a run drives. It implements
// browserDriver.
type Session struct {
	cfg Config
	log *slog.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	tmpProfile string // ephemeral user-data-dir, removed on close

	closeOnce sync.Once
	closeErr  error
}

// newSession acquires a browser. With a CDP URL configured it attaches
// to a running Chrome and owns only its own tab; otherwise it launches
// Chrome through an exec allocator. The parent ctx carries the run
// deadline, so a hung launch cannot outlive the run.
func newSession(ctx context.Context, cfg Config, logger *slog.Logger) (*Session, error) {
	s := &Session{cfg: cfg, log: logger}

	if cfg.CDPURL != "" {
		logger.Info("attaching to existing chrome", "cdp", cfg.CDPURL)
		allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, cfg.CDPURL)
		s.allocCancel = allocCancel
		s.ctx, s.cancel = chromedp.NewContext(allocCtx, chromedp.WithErrorf(s.logf))
	} else {
		opts, err := s.allocatorOptions()
		if err != nil {
			return nil, err
		}
		logger.Info("launching chrome", "headless", cfg.Headless, "profile", s.profilePath())
		allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
		s.allocCancel = allocCancel
		s.ctx, s.cancel = chromedp.NewContext(allocCtx, chromedp.WithErrorf(s.logf))
	}

	// First Run starts the browser (or attaches the tab).
	if err := chromedp.Run(s.ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return s, nil
}

func (s *Session) allocatorOptions() ([]chromedp.ExecAllocatorOption, error) {
	dir := s.cfg.ProfileDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "slidecheck-profile-")
		if err != nil {
			return nil, fmt.Errorf("profile dir: %w", err)
		}
		s.tmpProfile = tmp
		dir = tmp
	} else if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("profile dir: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(dir),
		chromedp.WindowSize(s.cfg.WindowWidth, s.cfg.WindowHeight),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("mute-audio", true),
		// The entry page may pull sibling assets over file://.
		chromedp.Flag("allow-file-access-from-files", true),
	)
	if s.cfg.Chrome != "" {
		opts = append(opts, chromedp.ExecPath(s.cfg.Chrome))
	}
	if s.cfg.Headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	return opts, nil
}

func (s *Session) profilePath() string {
	if s.cfg.ProfileDir != "" {
		return s.cfg.ProfileDir
	}
	return s.tmpProfile
}

func (s *Session) logf(format string, args ...interface{}) {
	s.log.Error(fmt.Sprintf(format, args...))
}

// run executes actions against the page under this phase's budget,
// honoring cancellation of the caller's context as well.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	tctx, tcancel := context.WithTimeout(s.ctx, timeout)
	defer tcancel()
	go cancelOnDone(ctx, tcancel)
	return chromedp.Run(tctx, actions...)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.log.Debug("navigate", "url", url)
	return s.run(ctx, s.cfg.NavTimeout, chromedp.Navigate(url))
}

func (s *Session) Upload(ctx context.Context, trigger, file string) error {
	s.log.Debug("upload", "trigger", trigger, "file", file)
	tctx, tcancel := context.WithTimeout(s.ctx, s.cfg.ChooserTimeout)
	defer tcancel()
	go cancelOnDone(ctx, tcancel)
	return uploadViaChooser(tctx, trigger, file)
}

func (s *Session) WaitVisible(ctx context.Context, sel string) error {
	s.log.Debug("wait visible", "selector", sel)
	return s.run(ctx, s.cfg.RenderTimeout, chromedp.WaitVisible(sel, chromedp.ByQuery))
}

func (s *Session) Settle(ctx context.Context) error {
	if s.cfg.ReadyExpr != "" {
		s.log.Debug("polling ready expression", "expr", s.cfg.ReadyExpr)
		return s.run(ctx, s.cfg.ReadyTimeout, pollReady(s.cfg.ReadyExpr))
	}
	s.log.Debug("settling", "delay", s.cfg.SettleDelay)
	return s.run(ctx, s.cfg.SettleDelay+time.Second, chromedp.Sleep(s.cfg.SettleDelay))
}

func (s *Session) Capture(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, s.cfg.CaptureTimeout, captureFullPage(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *Session) DumpHTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, s.cfg.CaptureTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Close releases the browser exactly once. In local mode the launched
// Chrome exits; in remote mode only the tab this session opened is
// closed. Later calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if err := chromedp.Cancel(s.ctx); err != nil {
			s.closeErr = err
		}
		s.cancel()
		s.allocCancel()
		if s.tmpProfile != "" {
			if err := os.RemoveAll(s.tmpProfile); err != nil {
				s.log.Warn("profile cleanup failed", "dir", s.tmpProfile, "err", err)
			}
		}
		s.log.Info("browser released")
	})
	return s.closeErr
}

// cancelOnDone propagates cancellation from the caller's context into
// a phase context that descends from the browser context instead.
func cancelOnDone(ctx context.Context, cancel context.CancelFunc) {
	<-ctx.Done()
	cancel()
}
