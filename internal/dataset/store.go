// Package dataset persists captured UI states as screenshot + metadata
// pairs under dataset_root/<task-slug>/. File naming is deterministic:
// zero-padded state index plus a short slug of the triggering action, so
// partial datasets from aborted runs stay loadable and replayable.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// StateRecord is the structured metadata written next to each screenshot.
type StateRecord struct {
	Index       int    `json:"index"`
	URL         string `json:"url"`
	Timestamp   string `json:"timestamp"` // ISO-8601 UTC
	Fingerprint string `json:"fingerprint"`
	Step        string `json:"step"`
	Screenshot  string `json:"screenshot"`
}

// RunSummary is the manifest flushed at run teardown, whatever the
// terminal state of the run was.
type RunSummary struct {
	RunID          string        `json:"run_id"`
	Task           string        `json:"task"`
	TaskSlug       string        `json:"task_slug"`
	Status         string        `json:"status"`
	StartedAt      string        `json:"started_at"`
	FinishedAt     string        `json:"finished_at"`
	ActionsTotal   int           `json:"actions_total"`
	ActionsSkipped []string      `json:"actions_skipped,omitempty"`
	States         []StateRecord `json:"states"`
}

// FileStore writes one task run's artifacts into a dedicated directory.
type FileStore struct {
	taskDir string
	log     *zap.Logger
}

func NewFileStore(datasetRoot, taskSlug string, log *zap.Logger) (*FileStore, error) {
	taskDir := filepath.Join(datasetRoot, taskSlug)
	if err := os.MkdirAll(taskDir, 0o755); err != nil {
		return nil, fmt.Errorf("create task dir %s: %w", taskDir, err)
	}
	return &FileStore{taskDir: taskDir, log: log}, nil
}

// TaskDir returns the directory artifacts are written to.
func (s *FileStore) TaskDir() string {
	return s.taskDir
}

// Persist writes the screenshot and its metadata record. It returns the
// screenshot filename recorded in the metadata.
func (s *FileStore) Persist(index int, actionDesc string, screenshot []byte, record StateRecord) (string, error) {
	base := fmt.Sprintf("%03d_%s", index, Slugify(actionDesc))

	screenshotName := base + ".png"
	if err := os.WriteFile(filepath.Join(s.taskDir, screenshotName), screenshot, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}

	record.Screenshot = screenshotName
	meta, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.taskDir, base+".json"), meta, 0o644); err != nil {
		return "", fmt.Errorf("write metadata: %w", err)
	}

	s.log.Info("captured state persisted",
		zap.Int("index", index),
		zap.String("screenshot", screenshotName),
	)
	return screenshotName, nil
}

// WriteSummary flushes the run manifest. Called exactly once at teardown.
func (s *FileStore) WriteSummary(summary RunSummary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.taskDir, "run_summary.json"), data, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// Timestamp formats t the way every record in the dataset stores time.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
