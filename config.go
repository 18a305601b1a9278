package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	defaultEntryName = "index.html"
	defaultDeckName  = "test.pptx"
	outDirName       = "verification"
	screenshotName   = "verification.png"
	reportName       = "report.json"
	failureDumpName  = "failure.html"

	maxAttempts = 5
)

var (
	chromePath = envOr("SLIDECHECK_CHROME", "")
	cdpURL     = os.Getenv("SLIDECHECK_CDP_URL") // empty = launch Chrome ourselves
	profileDir = os.Getenv("SLIDECHECK_PROFILE") // empty = ephemeral temp profile
	headless   = envBool("SLIDECHECK_HEADLESS", true)

	// Contract hooks the page under test must expose.
	entryName  = envOr("SLIDECHECK_ENTRY", defaultEntryName)
	triggerSel = envOr("SLIDECHECK_TRIGGER", "#pptx-file")
	slideSel   = envOr("SLIDECHECK_SLIDE", "#slide-1")

	navTimeout     = envDuration("SLIDECHECK_NAV_TIMEOUT", 15*time.Second)
	chooserTimeout = envDuration("SLIDECHECK_CHOOSER_TIMEOUT", 5*time.Second)
	renderTimeout  = envDuration("SLIDECHECK_RENDER_TIMEOUT", 10*time.Second)
	settleDelay    = envDuration("SLIDECHECK_SETTLE_DELAY", time.Second)
	readyTimeout   = envDuration("SLIDECHECK_READY_TIMEOUT", 5*time.Second)
	captureTimeout = envDuration("SLIDECHECK_CAPTURE_TIMEOUT", 10*time.Second)

	windowWidth  = envInt("SLIDECHECK_WINDOW_WIDTH", 1280)
	windowHeight = envInt("SLIDECHECK_WINDOW_HEIGHT", 720)

	logLevel = envOr("SLIDECHECK_LOG_LEVEL", "info")
	logJSON  = envBool("SLIDECHECK_LOG_JSON", false)
)

// Config carries everything one verification run needs. Assembled once
// in main and immutable after the run starts.
type Config struct {
	Root  string
	Entry string
	Deck  string
	Out   string

	Trigger string
	Slide   string

	Serve     bool
	ReadyExpr string
	DumpHTML  bool
	Report    bool
	Attempts  int

	Chrome     string
	CDPURL     string
	ProfileDir string
	Headless   bool

	WindowWidth  int
	WindowHeight int

	NavTimeout     time.Duration
	ChooserTimeout time.Duration
	RenderTimeout  time.Duration
	SettleDelay    time.Duration
	ReadyTimeout   time.Duration
	CaptureTimeout time.Duration
}

// defaultConfig snapshots the env-seeded package settings.
func defaultConfig() Config {
	return Config{
		Entry:          entryName,
		Trigger:        triggerSel,
		Slide:          slideSel,
		Report:         true,
		Attempts:       1,
		Chrome:         chromePath,
		CDPURL:         cdpURL,
		ProfileDir:     profileDir,
		Headless:       headless,
		WindowWidth:    windowWidth,
		WindowHeight:   windowHeight,
		NavTimeout:     navTimeout,
		ChooserTimeout: chooserTimeout,
		RenderTimeout:  renderTimeout,
		SettleDelay:    settleDelay,
		ReadyTimeout:   readyTimeout,
		CaptureTimeout: captureTimeout,
	}
}

// settleBudget is the time the settle phase may take: the fixed delay,
// or the poll window when a ready expression is configured.
func (c Config) settleBudget() time.Duration {
	if c.ReadyExpr != "" {
		return c.ReadyTimeout
	}
	return c.SettleDelay
}

// runBudget bounds one whole run: every phase budget times the attempt
// count, plus fixed slack for browser startup and file writes. A run
// never outlives this deadline.
func (c Config) runBudget() time.Duration {
	attempt := c.NavTimeout + c.ChooserTimeout + c.RenderTimeout
	total := time.Duration(clampAttempts(c.Attempts))*attempt + c.settleBudget() + c.CaptureTimeout
	return total + 30*time.Second
}

// fileConfig mirrors the optional JSON config file.
type fileConfig struct {
	Chrome            *string `json:"chrome"`
	CDPURL            *string `json:"cdpUrl"`
	ProfileDir        *string `json:"profileDir"`
	Headless          *bool   `json:"headless"`
	Entry             *string `json:"entry"`
	Trigger           *string `json:"trigger"`
	Slide             *string `json:"slide"`
	NavTimeoutSec     *int    `json:"navTimeoutSec"`
	ChooserTimeoutSec *int    `json:"chooserTimeoutSec"`
	RenderTimeoutSec  *int    `json:"renderTimeoutSec"`
	SettleMs          *int    `json:"settleMs"`
	WindowWidth       *int    `json:"windowWidth"`
	WindowHeight      *int    `json:"windowHeight"`
	LogLevel          *string `json:"logLevel"`
	LogJSON           *bool   `json:"logJson"`
}

// loadConfig applies the JSON file named by SLIDECHECK_CONFIG on top of
// the env-seeded settings. No env var, no file, no work.
func loadConfig() error {
	path := os.Getenv("SLIDECHECK_CONFIG")
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if fc.Chrome != nil {
		chromePath = *fc.Chrome
	}
	if fc.CDPURL != nil {
		cdpURL = *fc.CDPURL
	}
	if fc.ProfileDir != nil {
		profileDir = *fc.ProfileDir
	}
	if fc.Headless != nil {
		headless = *fc.Headless
	}
	if fc.Entry != nil {
		entryName = *fc.Entry
	}
	if fc.Trigger != nil {
		triggerSel = *fc.Trigger
	}
	if fc.Slide != nil {
		slideSel = *fc.Slide
	}
	// Non-positive durations and sizes are ignored, same as the env path.
	if fc.NavTimeoutSec != nil && *fc.NavTimeoutSec > 0 {
		navTimeout = time.Duration(*fc.NavTimeoutSec) * time.Second
	}
	if fc.ChooserTimeoutSec != nil && *fc.ChooserTimeoutSec > 0 {
		chooserTimeout = time.Duration(*fc.ChooserTimeoutSec) * time.Second
	}
	if fc.RenderTimeoutSec != nil && *fc.RenderTimeoutSec > 0 {
		renderTimeout = time.Duration(*fc.RenderTimeoutSec) * time.Second
	}
	if fc.SettleMs != nil && *fc.SettleMs > 0 {
		settleDelay = time.Duration(*fc.SettleMs) * time.Millisecond
	}
	if fc.WindowWidth != nil && *fc.WindowWidth > 0 {
		windowWidth = *fc.WindowWidth
	}
	if fc.WindowHeight != nil && *fc.WindowHeight > 0 {
		windowHeight = *fc.WindowHeight
	}
	if fc.LogLevel != nil {
		logLevel = *fc.LogLevel
	}
	if fc.LogJSON != nil {
		logJSON = *fc.LogJSON
	}
	return nil
}

func clampAttempts(n int) int {
	if n < 1 {
		return 1
	}
	if n > maxAttempts {
		return maxAttempts
	}
	return n
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
