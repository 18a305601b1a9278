package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"

	"github.com/itsharex/slidecheck/internal/log"
)

var version = "dev"

func main() {
	os.Exit(run(os.Stdout, os.Stderr, os.Args[1:]))
}

func run(stdout, stderr io.Writer, args []string) int {
	app := kingpin.New("slidecheck", "Verify the slide viewer end to end: load it in headless Chrome, upload a deck, wait for the first slide and capture a screenshot.")
	app.Version(version)
	app.HelpFlag.Short('h')
	app.UsageWriter(stderr)
	app.ErrorWriter(stderr)

	var (
		root     = app.Flag("root", "Directory containing the viewer entry page.").Short('r').Envar("SLIDECHECK_ROOT").Default(".").String()
		deckPath = app.Flag("deck", "Deck to upload. Relative paths resolve against the root.").Short('d').Envar("SLIDECHECK_DECK").String()
		outPath  = app.Flag("out", "Screenshot destination. Relative paths resolve against the root.").Short('o').Envar("SLIDECHECK_OUT").String()
		serve    = app.Flag("serve", "Serve the root over loopback HTTP instead of file://.").Envar("SLIDECHECK_SERVE").Bool()
		attempts = app.Flag("attempts", "Retries of the navigate, upload and render-wait sequence.").Envar("SLIDECHECK_ATTEMPTS").Default("1").Int()
		ready    = app.Flag("ready-expr", "JS expression polled until truthy instead of the fixed settle delay.").Envar("SLIDECHECK_READY_EXPR").String()
		dump     = app.Flag("dump-html", "On failure, write the page markup next to the screenshot.").Envar("SLIDECHECK_DUMP_HTML").Bool()
		noReport = app.Flag("no-report", "Skip writing report.json next to the screenshot.").Bool()
		headful  = app.Flag("headful", "Run Chrome with a visible window.").Bool()
	)
	if _, err := app.Parse(args); err != nil {
		fmt.Fprintf(stderr, "slidecheck: %v\n", err)
		return 2
	}
	if err := loadConfig(); err != nil {
		fmt.Fprintf(stderr, "slidecheck: %v\n", err)
		return 2
	}

	logger := log.NewWithWriter(stderr, log.Config{Level: logLevel, JSON: logJSON})
	slog.SetDefault(logger)

	cfg := defaultConfig()
	cfg.Root = *root
	cfg.Deck = *deckPath
	cfg.Out = *outPath
	cfg.Serve = *serve
	cfg.Attempts = *attempts
	cfg.ReadyExpr = *ready
	cfg.DumpHTML = *dump
	cfg.Report = !*noReport
	if *headful {
		cfg.Headless = false
	}

	paths, err := resolvePaths(cfg)
	if err != nil {
		logger.Error("path resolution failed", "err", err)
		return 1
	}
	warnings, err := preflight(cfg, paths)
	for _, w := range warnings {
		logger.Warn(w)
	}
	if err != nil {
		logger.Error("preflight failed", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.runBudget())
	defer cancel()

	logger.Info("starting verification",
		"version", version,
		"root", paths.Root,
		"entry", paths.Entry,
		"deck", paths.Deck,
		"attempts", clampAttempts(cfg.Attempts))

	if err := newRunner(cfg, paths, logger, stdout).Run(ctx); err != nil {
		logger.Error("verification failed", "err", err)
		return 1
	}
	return 0
}
