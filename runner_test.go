package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/cenkalti/backoff/v4"

	"github.com/itsharex/slidecheck/internal/log"
)

var testPNG = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// fakeDriver scripts per-call results so runner tests cover ordering,
// retry bounds, error mapping and release semantics without Chrome.
type fakeDriver struct {
	navErrs    []error // result for the nth navigate, nil past the end
	uploadErr  error
	renderErrs []error
	settleErr  error
	captureErr error
	dumpErr    error
	png        []byte
	html       string

	navs, uploads, renders, settles, captures, dumps, closes int

	order   []string
	lastURL string
}

func scripted(errs []error, n int) error {
	if n <= len(errs) {
		return errs[n-1]
	}
	return nil
}

func (f *fakeDriver) Navigate(_ context.Context, url string) error {
	f.navs++
	f.lastURL = url
	f.order = append(f.order, PhaseNavigate)
	return scripted(f.navErrs, f.navs)
}

func (f *fakeDriver) Upload(_ context.Context, _, _ string) error {
	f.uploads++
	f.order = append(f.order, PhaseUpload)
	return f.uploadErr
}

func (f *fakeDriver) WaitVisible(_ context.Context, _ string) error {
	f.renders++
	f.order = append(f.order, PhaseRender)
	return scripted(f.renderErrs, f.renders)
}

func (f *fakeDriver) Settle(_ context.Context) error {
	f.settles++
	f.order = append(f.order, PhaseSettle)
	return f.settleErr
}

func (f *fakeDriver) Capture(_ context.Context) ([]byte, error) {
	f.captures++
	f.order = append(f.order, PhaseCapture)
	if f.captureErr != nil {
		return nil, f.captureErr
	}
	return f.png, nil
}

func (f *fakeDriver) DumpHTML(_ context.Context) (string, error) {
	f.dumps++
	if f.dumpErr != nil {
		return "", f.dumpErr
	}
	return f.html, nil
}

func (f *fakeDriver) Close() error {
	f.closes++
	return nil
}

func newTestRunner(t *testing.T, cfg Config, drv *fakeDriver) (*Runner, FilePaths, *bytes.Buffer) {
	t.Helper()
	if cfg.Root == "" {
		cfg.Root = viewerRoot(t)
	}
	if cfg.Entry == "" {
		cfg.Entry = "index.html"
	}
	if cfg.Trigger == "" {
		cfg.Trigger = "#pptx-file"
	}
	if cfg.Slide == "" {
		cfg.Slide = "#slide-1"
	}
	paths, err := resolvePaths(cfg)
	if err != nil {
		t.Fatalf("resolvePaths: %v", err)
	}
	out := &bytes.Buffer{}
	r := newRunner(cfg, paths, log.NewNop(), out)
	r.connect = func(context.Context) (browserDriver, error) { return drv, nil }
	return r, paths, out
}

func TestRun_Success(t *testing.T) {
	drv := &fakeDriver{png: testPNG}
	r, paths, out := newTestRunner(t, Config{Report: true}, drv)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{PhaseNavigate, PhaseUpload, PhaseRender, PhaseSettle, PhaseCapture}
	if !reflect.DeepEqual(drv.order, want) {
		t.Fatalf("phase order = %v, want %v", drv.order, want)
	}
	if drv.closes != 1 {
		t.Fatalf("closes = %d, want 1", drv.closes)
	}
	if !strings.Contains(out.String(), "Screenshot saved to "+paths.Screenshot) {
		t.Fatalf("stdout = %q", out.String())
	}
	data, err := os.ReadFile(paths.Screenshot)
	if err != nil {
		t.Fatalf("screenshot not written: %v", err)
	}
	if !bytes.Equal(data, testPNG) {
		t.Fatal("screenshot content mismatch")
	}

	var rep RunReport
	raw, err := os.ReadFile(paths.Report)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if err := json.Unmarshal(raw, &rep); err != nil {
		t.Fatalf("report does not parse: %v", err)
	}
	if !rep.Success || rep.Screenshot != paths.Screenshot {
		t.Fatalf("report = %+v", rep)
	}
	if len(rep.Phases) != 6 {
		t.Fatalf("report phases = %d, want 6", len(rep.Phases))
	}
}

func TestRun_UploadFailureNotRetried(t *testing.T) {
	drv := &fakeDriver{uploadErr: fmt.Errorf("file chooser never opened")}
	r, paths, out := newTestRunner(t, Config{Attempts: 3}, drv)

	err := r.Run(context.Background())
	if !errors.Is(err, ErrUpload) {
		t.Fatalf("err = %v, want ErrUpload", err)
	}
	var pe *PhaseError
	if !errors.As(err, &pe) || pe.Phase != PhaseUpload {
		t.Fatalf("phase = %v", err)
	}
	if drv.navs != 1 || drv.uploads != 1 || drv.renders != 0 {
		t.Fatalf("counts = nav %d upload %d render %d, want 1 1 0", drv.navs, drv.uploads, drv.renders)
	}
	if _, err := os.Stat(paths.Screenshot); !os.IsNotExist(err) {
		t.Fatal("screenshot must not exist after a failed run")
	}
	if out.Len() != 0 {
		t.Fatalf("stdout should stay empty on failure, got %q", out.String())
	}
	if drv.closes != 1 {
		t.Fatalf("closes = %d, want 1", drv.closes)
	}
}

func TestRun_RenderTimeoutRetriesBounded(t *testing.T) {
	slow := fmt.Errorf("slide never became visible")
	drv := &fakeDriver{renderErrs: []error{slow, slow}}
	r, paths, _ := newTestRunner(t, Config{Attempts: 2}, drv)

	err := r.Run(context.Background())
	if !errors.Is(err, ErrRenderTimeout) {
		t.Fatalf("err = %v, want ErrRenderTimeout", err)
	}
	if drv.navs != 2 || drv.uploads != 2 || drv.renders != 2 {
		t.Fatalf("counts = nav %d upload %d render %d, want 2 2 2", drv.navs, drv.uploads, drv.renders)
	}
	if drv.captures != 0 {
		t.Fatal("capture must not run after render failure")
	}
	if _, err := os.Stat(paths.Screenshot); !os.IsNotExist(err) {
		t.Fatal("screenshot must not exist after a failed run")
	}
	if drv.closes != 1 {
		t.Fatalf("closes = %d, want 1", drv.closes)
	}
}

func TestRun_NavigateRecovers(t *testing.T) {
	drv := &fakeDriver{
		navErrs: []error{fmt.Errorf("net::ERR_CONNECTION_REFUSED")},
		png:     testPNG,
	}
	r, paths, _ := newTestRunner(t, Config{Attempts: 2}, drv)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if drv.navs != 2 || drv.uploads != 1 {
		t.Fatalf("counts = nav %d upload %d, want 2 1", drv.navs, drv.uploads)
	}
	if _, err := os.Stat(paths.Screenshot); err != nil {
		t.Fatalf("screenshot missing: %v", err)
	}
}

func TestRetryable(t *testing.T) {
	var perm *backoff.PermanentError

	err := retryable(failPhase(PhaseUpload, ErrUpload, nil))
	if !errors.As(err, &perm) {
		t.Fatal("non-retryable kinds must come back permanent")
	}
	if !errors.Is(err, ErrUpload) {
		t.Fatal("permanent wrapper must keep the kind reachable")
	}

	err = retryable(failPhase(PhaseNavigate, ErrNavigation, nil))
	if errors.As(err, &perm) {
		t.Fatal("retryable kinds must pass through unwrapped")
	}
	err = retryable(failPhase(PhaseRender, ErrRenderTimeout, nil))
	if errors.As(err, &perm) {
		t.Fatal("retryable kinds must pass through unwrapped")
	}
}

func TestRun_RetryPolicyMatchesClassifier(t *testing.T) {
	boom := fmt.Errorf("boom")
	tests := []struct {
		name     string
		drv      *fakeDriver
		kind     error
		attempts int // loads observed with two attempts allowed
	}{
		{"navigate", &fakeDriver{navErrs: []error{boom, boom}}, ErrNavigation, 2},
		{"upload", &fakeDriver{uploadErr: boom}, ErrUpload, 1},
		{"render", &fakeDriver{renderErrs: []error{boom, boom}}, ErrRenderTimeout, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := newTestRunner(t, Config{Attempts: 2}, tt.drv)
			err := r.Run(context.Background())
			if !errors.Is(err, tt.kind) {
				t.Fatalf("err = %v, want %v", err, tt.kind)
			}
			if tt.drv.navs != tt.attempts {
				t.Fatalf("attempts = %d, want %d", tt.drv.navs, tt.attempts)
			}
			if IsRetryable(err) != (tt.attempts > 1) {
				t.Fatal("loop behavior diverges from IsRetryable")
			}
		})
	}
}

func TestRun_LaunchFailure(t *testing.T) {
	drv := &fakeDriver{}
	r, _, _ := newTestRunner(t, Config{}, drv)
	r.connect = func(context.Context) (browserDriver, error) {
		return nil, fmt.Errorf("exec: chrome not found")
	}

	err := r.Run(context.Background())
	if !errors.Is(err, ErrLaunch) {
		t.Fatalf("err = %v, want ErrLaunch", err)
	}
	if drv.closes != 0 {
		t.Fatal("nothing to close when launch fails")
	}
}

func TestRun_EmptyScreenshot(t *testing.T) {
	drv := &fakeDriver{png: nil}
	r, paths, _ := newTestRunner(t, Config{}, drv)

	err := r.Run(context.Background())
	if !errors.Is(err, ErrCapture) {
		t.Fatalf("err = %v, want ErrCapture", err)
	}
	var pe *PhaseError
	if !errors.As(err, &pe) || pe.Phase != PhaseCapture {
		t.Fatalf("phase = %v", err)
	}
	if _, err := os.Stat(paths.Screenshot); !os.IsNotExist(err) {
		t.Fatal("screenshot must not exist after a failed capture")
	}
}

func TestRun_CaptureError(t *testing.T) {
	drv := &fakeDriver{captureErr: fmt.Errorf("target crashed")}
	r, _, _ := newTestRunner(t, Config{}, drv)

	if err := r.Run(context.Background()); !errors.Is(err, ErrCapture) {
		t.Fatalf("err = %v, want ErrCapture", err)
	}
	if drv.closes != 1 {
		t.Fatalf("closes = %d, want 1", drv.closes)
	}
}

func TestRun_SettleFailureMapsToRenderTimeout(t *testing.T) {
	drv := &fakeDriver{settleErr: fmt.Errorf("poll expression stayed false"), png: testPNG}
	r, _, _ := newTestRunner(t, Config{}, drv)

	err := r.Run(context.Background())
	if !errors.Is(err, ErrRenderTimeout) {
		t.Fatalf("err = %v, want ErrRenderTimeout", err)
	}
	var pe *PhaseError
	if !errors.As(err, &pe) || pe.Phase != PhaseSettle {
		t.Fatalf("phase = %v", err)
	}
	if drv.captures != 0 {
		t.Fatal("capture must not run after settle failure")
	}
}

func TestRun_ReleasesOnEveryPath(t *testing.T) {
	tests := []struct {
		name string
		drv  *fakeDriver
	}{
		{"success", &fakeDriver{png: testPNG}},
		{"upload failure", &fakeDriver{uploadErr: fmt.Errorf("boom")}},
		{"render failure", &fakeDriver{renderErrs: []error{fmt.Errorf("boom")}}},
		{"settle failure", &fakeDriver{settleErr: fmt.Errorf("boom")}},
		{"capture failure", &fakeDriver{captureErr: fmt.Errorf("boom")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := newTestRunner(t, Config{}, tt.drv)
			_ = r.Run(context.Background())
			if tt.drv.closes != 1 {
				t.Fatalf("closes = %d, want 1", tt.drv.closes)
			}
		})
	}
}

func TestRun_FailureReport(t *testing.T) {
	drv := &fakeDriver{uploadErr: fmt.Errorf("file chooser never opened")}
	r, paths, _ := newTestRunner(t, Config{Report: true}, drv)

	if err := r.Run(context.Background()); err == nil {
		t.Fatal("expected failure")
	}

	raw, err := os.ReadFile(paths.Report)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	var rep RunReport
	if err := json.Unmarshal(raw, &rep); err != nil {
		t.Fatalf("report does not parse: %v", err)
	}
	if rep.Success || rep.Error == "" {
		t.Fatalf("report = %+v", rep)
	}
	found := false
	for _, p := range rep.Phases {
		if p.Name == PhaseUpload && p.Status == statusFailed && p.Error != "" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no failed upload phase in %+v", rep.Phases)
	}
}

func TestRun_DumpHTMLOnFailure(t *testing.T) {
	drv := &fakeDriver{
		renderErrs: []error{fmt.Errorf("boom")},
		html:       "<html><body>stuck</body></html>",
	}
	r, paths, _ := newTestRunner(t, Config{DumpHTML: true}, drv)

	if err := r.Run(context.Background()); err == nil {
		t.Fatal("expected failure")
	}
	if drv.dumps != 1 {
		t.Fatalf("dumps = %d, want 1", drv.dumps)
	}
	dump := filepath.Join(filepath.Dir(paths.Screenshot), failureDumpName)
	data, err := os.ReadFile(dump)
	if err != nil {
		t.Fatalf("failure dump not written: %v", err)
	}
	if string(data) != drv.html {
		t.Fatalf("dump content = %q", data)
	}
}

func TestRun_ServeMode(t *testing.T) {
	drv := &fakeDriver{png: testPNG}
	r, _, _ := newTestRunner(t, Config{Serve: true}, drv)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.HasPrefix(drv.lastURL, "http://127.0.0.1:") {
		t.Fatalf("url = %q, want loopback http", drv.lastURL)
	}
	if !strings.HasSuffix(drv.lastURL, "/index.html") {
		t.Fatalf("url = %q, want /index.html suffix", drv.lastURL)
	}
}
