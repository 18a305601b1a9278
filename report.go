package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	statusOK     = "ok"
	statusFailed = "failed"
)

// PhaseResult records one phase attempt inside a run.
type PhaseResult struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Attempt    int    `json:"attempt,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// RunReport is the machine-readable record of a verification run,
// written next to the screenshot.
type RunReport struct {
	RunID      string        `json:"run_id"`
	Root       string        `json:"root"`
	Deck       string        `json:"deck"`
	Screenshot string        `json:"screenshot,omitempty"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	StartedAt  string        `json:"started_at"`
	DurationMs int64         `json:"duration_ms"`
	Phases     []PhaseResult `json:"phases"`
}

func newRunReport(paths FilePaths) *RunReport {
	return &RunReport{
		RunID:     uuid.New().String(),
		Root:      paths.Root,
		Deck:      paths.Deck,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

func (r *RunReport) addPhase(name string, attempt int, started time.Time, err error) {
	pr := PhaseResult{
		Name:       name,
		Status:     statusOK,
		Attempt:    attempt,
		DurationMs: time.Since(started).Milliseconds(),
	}
	if err != nil {
		pr.Status = statusFailed
		pr.Error = err.Error()
	}
	r.Phases = append(r.Phases, pr)
}

func writeReport(path string, r *RunReport) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("report dir: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
