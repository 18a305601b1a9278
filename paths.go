package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// FilePaths holds the absolute locations one run works with. Resolved
// once at start, never mutated afterwards.
type FilePaths struct {
	Root       string
	Entry      string
	Deck       string
	Screenshot string
	Report     string
}

// resolvePaths turns the configured root into the absolute path set.
// The entry point must exist up front; the deck is checked by
// preflight and the output directory is created at capture time.
// Relative deck and output overrides are taken relative to the root.
func resolvePaths(cfg Config) (FilePaths, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return FilePaths{}, failPhase(PhaseResolve, ErrPathResolution,
			fmt.Errorf("resolve root %q: %w", cfg.Root, err))
	}

	entry := filepath.Join(root, cfg.Entry)
	if fi, err := os.Stat(entry); err != nil || fi.IsDir() {
		return FilePaths{}, failPhase(PhaseResolve, ErrPathResolution,
			fmt.Errorf("entry point %s not found under root", entry))
	}

	deck := cfg.Deck
	if deck == "" {
		deck = defaultDeckName
	}
	if !filepath.IsAbs(deck) {
		deck = filepath.Join(root, deck)
	}

	out := cfg.Out
	if out == "" {
		out = filepath.Join(outDirName, screenshotName)
	}
	if !filepath.IsAbs(out) {
		out = filepath.Join(root, out)
	}

	return FilePaths{
		Root:       root,
		Entry:      entry,
		Deck:       deck,
		Screenshot: out,
		Report:     filepath.Join(filepath.Dir(out), reportName),
	}, nil
}

// fileURL converts an absolute path to a file-scheme URL.
func fileURL(p string) string {
	return "file://" + filepath.ToSlash(p)
}
