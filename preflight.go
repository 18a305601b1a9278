package main

import (
	"fmt"
	"os"

	"github.com/PuerkitoBio/goquery"

	"github.com/itsharex/slidecheck/internal/deck"
)

// preflight inspects the entry page and the deck before any browser
// starts. Markup findings are warnings only: the upload trigger may be
// injected by script, and the slide node only exists after an upload.
// A missing or unreadable deck is fatal because the upload phase could
// never succeed.
func preflight(cfg Config, paths FilePaths) ([]string, error) {
	var warnings []string

	f, err := os.Open(paths.Entry)
	if err != nil {
		return nil, failPhase(PhaseResolve, ErrPathResolution, fmt.Errorf("entry page: %w", err))
	}
	doc, perr := goquery.NewDocumentFromReader(f)
	f.Close()
	if perr != nil {
		warnings = append(warnings, fmt.Sprintf("entry page did not parse as HTML: %v", perr))
	} else if doc.Find(cfg.Trigger).Length() == 0 {
		warnings = append(warnings, fmt.Sprintf("upload trigger %s not present in static markup", cfg.Trigger))
	}

	if _, err := os.Stat(paths.Deck); err != nil {
		return warnings, failPhase(PhaseUpload, ErrUpload, fmt.Errorf("deck file: %w", err))
	}
	kind, err := deck.DetectFile(paths.Deck)
	if err != nil {
		return warnings, failPhase(PhaseUpload, ErrUpload, fmt.Errorf("deck file: %w", err))
	}
	if kind != deck.KindZip {
		warnings = append(warnings, fmt.Sprintf("deck %s does not look like an OOXML container", paths.Deck))
	}
	return warnings, nil
}
