package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nbenliogludev/softlight-agent/internal/analyzer"
	"github.com/nbenliogludev/softlight-agent/internal/browser"
	"github.com/nbenliogludev/softlight-agent/internal/dataset"
	"github.com/nbenliogludev/softlight-agent/internal/planner"
	"github.com/nbenliogludev/softlight-agent/internal/state"
)

// fakeDriver is a scriptable in-memory browser: Navigate serves pages
// from a URL map, clicks and keypresses advance to the page registered
// for the element label (or "press:<key>").
type fakeDriver struct {
	mu          sync.Mutex
	urlStr      string
	snap        *browser.PageSnapshot
	pages       map[string]*browser.PageSnapshot
	transitions map[string]*browser.PageSnapshot
	navErr      error

	clicked []string
	pressed []string
	filled  map[int]string
	scrolls int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		snap:        &browser.PageSnapshot{URL: "about:blank", HTML: "<html><body></body></html>"},
		urlStr:      "about:blank",
		pages:       map[string]*browser.PageSnapshot{},
		transitions: map[string]*browser.PageSnapshot{},
		filled:      map[int]string{},
	}
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.navErr != nil {
		return d.navErr
	}
	page, ok := d.pages[url]
	if !ok {
		return errors.New("no page registered for " + url)
	}
	d.snap = page
	d.urlStr = page.URL
	return nil
}

func (d *fakeDriver) advance(key string) {
	if next, ok := d.transitions[key]; ok {
		d.snap = next
		d.urlStr = next.URL
	}
}

func (d *fakeDriver) Click(ctx context.Context, elementID int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, ok := d.snap.ElementByID(elementID)
	if !ok {
		return errors.New("stale element id")
	}
	d.clicked = append(d.clicked, el.Label)
	d.advance(el.Label)
	return nil
}

func (d *fakeDriver) Fill(ctx context.Context, elementID int, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.snap.ElementByID(elementID); !ok {
		return errors.New("stale element id")
	}
	d.filled[elementID] = value
	return nil
}

func (d *fakeDriver) Press(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pressed = append(d.pressed, key)
	d.advance("press:" + key)
	return nil
}

func (d *fakeDriver) Scroll(ctx context.Context, dir browser.ScrollDirection) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scrolls++
	return nil
}

func (d *fakeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte("png"), nil
}

func (d *fakeDriver) Snapshot(ctx context.Context) (*browser.PageSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snap, nil
}

func (d *fakeDriver) URL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.urlStr
}

func (d *fakeDriver) Close() error { return nil }

type memStore struct {
	mu        sync.Mutex
	persisted []dataset.StateRecord
	summary   *dataset.RunSummary
}

func (s *memStore) Persist(index int, actionDesc string, screenshot []byte, record dataset.StateRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.Screenshot = record.Step + ".png"
	s.persisted = append(s.persisted, record)
	return record.Screenshot, nil
}

func (s *memStore) WriteSummary(summary dataset.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = &summary
	return nil
}

func (s *memStore) TaskDir() string { return "mem" }

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.persisted)
}

func newTestExecutor(t *testing.T, task string, d *fakeDriver, opts Options) (*Executor, *state.TaskRun, *memStore) {
	log := zaptest.NewLogger(t)
	run := state.NewTaskRun(task)
	store := &memStore{}
	manager := state.NewManager(run, store, log)
	exec := New(d, analyzer.New(log), manager, run, opts, log)
	return exec, run, store
}

func page(url, marker string, els ...browser.Element) *browser.PageSnapshot {
	return &browser.PageSnapshot{
		URL:      url,
		HTML:     "<html><body><h1>" + marker + "</h1></body></html>",
		Tree:     marker,
		Elements: els,
	}
}

func TestRunCreateProjectFlow(t *testing.T) {
	d := newFakeDriver()

	home := page("https://linear.app", "Home",
		browser.Element{ID: 1, Role: "link", Label: "Projects", Visible: true, InHeader: true},
	)
	projects := page("https://linear.app/projects", "Projects list",
		browser.Element{ID: 1, Role: "link", Label: "Projects", Visible: true, InHeader: true},
		browser.Element{ID: 2, Role: "button", Label: "Create project", Visible: true},
	)
	modal := page("https://linear.app/projects", "Projects list with dialog",
		browser.Element{ID: 2, Role: "button", Label: "Create project", Visible: true},
		browser.Element{ID: 3, Role: "input", Kind: "text", Label: "Name", Visible: true, InModal: true},
		browser.Element{ID: 4, Role: "button", Label: "Create", Visible: true, InModal: true},
	)
	created := page("https://linear.app/project/my-project", "Project created")

	d.pages["https://linear.app"] = home
	d.transitions["Projects"] = projects
	d.transitions["Create project"] = modal
	d.transitions["Create"] = created

	exec, run, store := newTestExecutor(t, "create a project in linear", d, Options{})

	result, err := exec.Run(context.Background(), []planner.Action{
		{Type: planner.ActionNavigate, URL: "https://linear.app"},
		{Type: planner.ActionClickByText, Text: "Projects"},
		{Type: planner.ActionClickByText, Text: "Create project"},
		{Type: planner.ActionWaitForModal},
		{Type: planner.ActionFill, FieldHint: "Name", Value: "My Project"},
		{Type: planner.ActionClickSubmit},
		{Type: planner.ActionCaptureState},
	})

	require.NoError(t, err)
	assert.Equal(t, string(StateCompleted), result.Status)
	assert.Empty(t, result.Skipped)
	assert.Equal(t, StateCompleted, exec.State())

	// The modal submit button was chosen over the identically plausible
	// background button.
	assert.Equal(t, []string{"Projects", "Create project", "Create"}, d.clicked)
	assert.Equal(t, "My Project", d.filled[3])

	// blank, home, projects, modal, created
	states := run.States()
	require.Len(t, states, 5)
	for i, st := range states {
		assert.Equal(t, i+1, st.Index)
	}
	assert.Equal(t, "https://linear.app/project/my-project", states[4].URL)

	require.NotNil(t, store.summary)
	assert.Equal(t, string(StateCompleted), store.summary.Status)
	assert.Len(t, store.summary.States, 5)
}

func TestRunSearchFlowPressesEnterInsteadOfClicking(t *testing.T) {
	d := newFakeDriver()

	ytHome := page("https://www.youtube.com", "YouTube home",
		browser.Element{ID: 1, Role: "input", Kind: "search", Label: "Search", Visible: true, InHeader: true},
		browser.Element{ID: 2, Role: "link", Label: "Trending", Visible: true},
	)
	results := page("https://www.youtube.com/results?search_query=lo-fi+beats", "Results",
		browser.Element{ID: 1, Role: "input", Kind: "search", Label: "Search", Visible: true, InHeader: true},
		browser.Element{ID: 2, Role: "link", Label: "lofi hip hop radio", Visible: true},
	)

	d.pages["https://www.youtube.com"] = ytHome
	d.transitions["press:Enter"] = results

	exec, run, _ := newTestExecutor(t, "search on youtube for lo-fi beats", d, Options{})

	result, err := exec.Run(context.Background(), []planner.Action{
		{Type: planner.ActionNavigate, URL: "https://www.youtube.com"},
		{Type: planner.ActionCaptureState},
		{Type: planner.ActionFill, FieldHint: "q", Value: "lo-fi beats"},
		{Type: planner.ActionClickSubmit},
		{Type: planner.ActionCaptureState},
	})

	require.NoError(t, err)
	assert.Equal(t, string(StateCompleted), result.Status)

	// The search flow never hunts for a button.
	assert.Empty(t, d.clicked)
	assert.Equal(t, []string{"Enter"}, d.pressed)
	assert.Equal(t, "lo-fi beats", d.filled[1])

	// blank, home, results
	require.Len(t, run.States(), 3)
	assert.Contains(t, run.States()[2].URL, "search_query")
}

func TestRunPausesOnLoginWallUntilUnblocked(t *testing.T) {
	d := newFakeDriver()
	login := page("https://app.example.com/login", "Welcome back",
		browser.Element{ID: 1, Role: "input", Kind: "email", Label: "Email", Visible: true},
		browser.Element{ID: 2, Role: "input", Kind: "password", Label: "Password", Visible: true},
		browser.Element{ID: 3, Role: "button", Label: "Sign in", Visible: true},
	)
	d.pages["https://app.example.com"] = login

	exec, run, store := newTestExecutor(t, "open the dashboard", d, Options{
		LoginPollInterval: time.Hour, // only Unblock can resume
	})

	done := make(chan struct{})
	var result *Result
	var runErr error
	go func() {
		defer close(done)
		result, runErr = exec.Run(context.Background(), []planner.Action{
			{Type: planner.ActionNavigate, URL: "https://app.example.com"},
		})
	}()

	select {
	case reason := <-exec.Paused():
		assert.Contains(t, reason, "login required")
	case <-time.After(5 * time.Second):
		t.Fatal("executor never paused")
	}

	// Only the initial state exists; nothing is captured while paused.
	assert.Equal(t, StatePaused, exec.State())
	assert.Equal(t, 1, store.count())

	exec.Unblock()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("executor never resumed")
	}

	require.NoError(t, runErr)
	assert.Equal(t, string(StateCompleted), result.Status)
	assert.True(t, run.LoggedIn)
	assert.Equal(t, 2, store.count()) // login page captured after resume
}

func TestRunSkipsUnresolvableActionAndContinues(t *testing.T) {
	d := newFakeDriver()
	home := page("https://example.com", "Home",
		browser.Element{ID: 1, Role: "link", Label: "Docs", Visible: true},
	)
	docs := page("https://example.com/docs", "Docs",
		browser.Element{ID: 1, Role: "link", Label: "Docs", Visible: true},
	)
	d.pages["https://example.com"] = home
	d.transitions["Docs"] = docs

	exec, _, store := newTestExecutor(t, "read the docs", d, Options{})

	result, err := exec.Run(context.Background(), []planner.Action{
		{Type: planner.ActionNavigate, URL: "https://example.com"},
		{Type: planner.ActionClickByText, Text: "Nonexistent widget"},
		{Type: planner.ActionClickByText, Text: "Docs"},
	})

	require.NoError(t, err)
	assert.Equal(t, string(StateCompleted), result.Status)
	assert.Equal(t, []string{"click-by-text Nonexistent widget"}, result.Skipped)

	require.Len(t, result.Steps, 3)
	assert.Equal(t, StepOK, result.Steps[0].Status)
	assert.Equal(t, StepSkipped, result.Steps[1].Status)
	assert.Equal(t, StepOK, result.Steps[2].Status)

	// The run still reached the final page.
	assert.Equal(t, []string{"Docs"}, d.clicked)
	require.NotNil(t, store.summary)
	assert.Equal(t, result.Skipped, store.summary.ActionsSkipped)
}

func TestRunAbortsOnFatalNavigationError(t *testing.T) {
	d := newFakeDriver()
	d.navErr = errors.New("net::ERR_NAME_NOT_RESOLVED")

	exec, _, store := newTestExecutor(t, "open the dashboard", d, Options{})

	result, err := exec.Run(context.Background(), []planner.Action{
		{Type: planner.ActionNavigate, URL: "https://unreachable.invalid"},
		{Type: planner.ActionClickByText, Text: "Anything"},
	})

	require.ErrorIs(t, err, ErrFatal)
	assert.Equal(t, string(StateAborted), result.Status)
	assert.Equal(t, StateAborted, exec.State())

	// Execution stopped at the failed navigation.
	require.Len(t, result.Steps, 1)
	assert.Equal(t, StepFailed, result.Steps[0].Status)

	// The manifest is still flushed with everything captured so far.
	require.NotNil(t, store.summary)
	assert.Equal(t, string(StateAborted), store.summary.Status)
	assert.Len(t, store.summary.States, 1) // the initial state
}

func TestRunDismissesConsentBannerBeforeFill(t *testing.T) {
	d := newFakeDriver()

	withBanner := page("https://example.com/signup", "Signup",
		browser.Element{ID: 1, Role: "button", Label: "Accept all", Visible: true, InModal: true},
		browser.Element{ID: 2, Role: "input", Kind: "text", Label: "Full name", Visible: true},
	)
	clean := page("https://example.com/signup", "Signup no banner",
		browser.Element{ID: 2, Role: "input", Kind: "text", Label: "Full name", Visible: true},
	)
	d.pages["https://example.com/signup"] = withBanner
	d.transitions["Accept all"] = clean

	exec, _, _ := newTestExecutor(t, "sign up for an account", d, Options{})

	result, err := exec.Run(context.Background(), []planner.Action{
		{Type: planner.ActionNavigate, URL: "https://example.com/signup"},
		{Type: planner.ActionFill, FieldHint: "Full name", Value: "Ada Lovelace"},
	})

	require.NoError(t, err)
	assert.Equal(t, string(StateCompleted), result.Status)
	assert.Equal(t, []string{"Accept all"}, d.clicked)
	assert.Equal(t, "Ada Lovelace", d.filled[2])
}

func TestRunClosesPausedChannelOnCompletion(t *testing.T) {
	d := newFakeDriver()
	d.pages["https://example.com"] = page("https://example.com", "Home")

	exec, _, _ := newTestExecutor(t, "open the homepage", d, Options{})

	// A listener draining Paused() must observe closure when the run
	// ends, or it would block forever waiting for the next pause.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range exec.Paused() {
		}
	}()

	_, err := exec.Run(context.Background(), []planner.Action{
		{Type: planner.ActionNavigate, URL: "https://example.com"},
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pause listener did not exit after run completion")
	}

	_, open := <-exec.Paused()
	assert.False(t, open)
}

func TestRunRejectsInvalidPlan(t *testing.T) {
	d := newFakeDriver()
	exec, _, _ := newTestExecutor(t, "anything", d, Options{})

	_, err := exec.Run(context.Background(), []planner.Action{{Type: planner.ActionNavigate}})
	assert.Error(t, err)

	_, err = exec.Run(context.Background(), nil)
	assert.Error(t, err)
}
