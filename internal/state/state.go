// Package state decides when the UI has meaningfully changed and records
// each distinct state exactly once. A new state exists iff the URL or the
// content fingerprint differs from the previously recorded pair, so the
// dataset maps 1:1 to real state transitions rather than executed actions.
package state

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nbenliogludev/softlight-agent/internal/browser"
	"github.com/nbenliogludev/softlight-agent/internal/dataset"
	"github.com/nbenliogludev/softlight-agent/internal/fingerprint"
)

// CapturedState is one persisted snapshot. Immutable once recorded;
// ordering by Index is the canonical replay order.
type CapturedState struct {
	Index       int
	URL         string
	Timestamp   time.Time
	Fingerprint fingerprint.Fingerprint
	Action      string
	Screenshot  string
}

// TaskRun is the owning context for one invocation. It is the sole
// writer of its CapturedState sequence.
type TaskRun struct {
	ID        string
	Task      string
	Slug      string
	StartedAt time.Time
	LoggedIn  bool

	states []CapturedState
}

func NewTaskRun(task string) *TaskRun {
	return &TaskRun{
		ID:        uuid.NewString(),
		Task:      task,
		Slug:      dataset.Slugify(task),
		StartedAt: time.Now().UTC(),
	}
}

// States returns a copy of the captured sequence.
func (r *TaskRun) States() []CapturedState {
	out := make([]CapturedState, len(r.states))
	copy(out, r.states)
	return out
}

// Store is the storage collaborator the manager persists through.
type Store interface {
	Persist(index int, actionDesc string, screenshot []byte, record dataset.StateRecord) (string, error)
	WriteSummary(summary dataset.RunSummary) error
	TaskDir() string
}

// Page is the read-side of the driver the manager needs.
type Page interface {
	Snapshot(ctx context.Context) (*browser.PageSnapshot, error)
	Screenshot(ctx context.Context) ([]byte, error)
}

// Manager orchestrates capture for one TaskRun.
type Manager struct {
	run    *TaskRun
	store  Store
	reader *fingerprint.Reader
	log    *zap.Logger

	lastURL string
	lastFP  fingerprint.Fingerprint
}

func NewManager(run *TaskRun, store Store, log *zap.Logger) *Manager {
	return &Manager{
		run:    run,
		store:  store,
		reader: fingerprint.NewReader(log),
		log:    log,
	}
}

// CaptureInitial records the index-1 state unconditionally. It must run
// before any action executes.
func (m *Manager) CaptureInitial(ctx context.Context, page Page) (*CapturedState, error) {
	return m.capture(ctx, page, "initial", true)
}

// MaybeCapture takes a fresh snapshot and records a new state only if the
// (URL, fingerprint) pair differs from the last recorded one. It returns
// nil without error when nothing changed or the snapshot was transiently
// unreadable.
func (m *Manager) MaybeCapture(ctx context.Context, page Page, actionDesc string) (*CapturedState, error) {
	return m.capture(ctx, page, actionDesc, false)
}

func (m *Manager) capture(ctx context.Context, page Page, actionDesc string, force bool) (*CapturedState, error) {
	snap, fp, err := m.reader.Read(ctx, page)
	if err != nil {
		if errors.Is(err, fingerprint.ErrSnapshotUnreadable) {
			m.log.Warn("state capture skipped, snapshot unreadable",
				zap.String("action", actionDesc))
			return nil, nil
		}
		return nil, err
	}

	if !force && snap.URL == m.lastURL && fp == m.lastFP {
		m.log.Debug("no state change detected", zap.String("action", actionDesc))
		return nil, nil
	}

	shot, err := page.Screenshot(ctx)
	if err != nil {
		// A state without its screenshot artifact is useless for the
		// dataset; skip and let a later action re-detect the change.
		m.log.Warn("screenshot failed, state not recorded",
			zap.String("action", actionDesc), zap.Error(err))
		return nil, nil
	}

	st := CapturedState{
		Index:       len(m.run.states) + 1,
		URL:         snap.URL,
		Timestamp:   time.Now().UTC(),
		Fingerprint: fp,
		Action:      actionDesc,
	}

	filename, err := m.store.Persist(st.Index, actionDesc, shot, dataset.StateRecord{
		Index:       st.Index,
		URL:         st.URL,
		Timestamp:   dataset.Timestamp(st.Timestamp),
		Fingerprint: string(st.Fingerprint),
		Step:        actionDesc,
	})
	if err != nil {
		return nil, err
	}
	st.Screenshot = filename

	m.run.states = append(m.run.states, st)
	m.lastURL = snap.URL
	m.lastFP = fp

	m.log.Info("state captured",
		zap.Int("index", st.Index),
		zap.String("url", st.URL),
		zap.String("action", actionDesc),
	)
	return &st, nil
}

// Flush writes the run manifest. Safe to call exactly once at teardown
// regardless of terminal status; already-persisted states stay valid.
func (m *Manager) Flush(status string, actionsTotal int, skipped []string) error {
	return m.store.WriteSummary(dataset.RunSummary{
		RunID:          m.run.ID,
		Task:           m.run.Task,
		TaskSlug:       m.run.Slug,
		Status:         status,
		StartedAt:      dataset.Timestamp(m.run.StartedAt),
		FinishedAt:     dataset.Timestamp(time.Now().UTC()),
		ActionsTotal:   actionsTotal,
		ActionsSkipped: skipped,
		States:         m.toRecords(),
	})
}

func (m *Manager) toRecords() []dataset.StateRecord {
	out := make([]dataset.StateRecord, 0, len(m.run.states))
	for _, st := range m.run.states {
		out = append(out, dataset.StateRecord{
			Index:       st.Index,
			URL:         st.URL,
			Timestamp:   dataset.Timestamp(st.Timestamp),
			Fingerprint: string(st.Fingerprint),
			Step:        st.Action,
			Screenshot:  st.Screenshot,
		})
	}
	return out
}
