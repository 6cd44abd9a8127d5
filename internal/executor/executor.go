// Package executor runs a planned action sequence against a live
// browser session. One executor drives one task run sequentially; it
// resolves element-level actions through the analyzer, captures state
// after every action, and turns login walls into an observable pause
// instead of a failure.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nbenliogludev/softlight-agent/internal/analyzer"
	"github.com/nbenliogludev/softlight-agent/internal/browser"
	"github.com/nbenliogludev/softlight-agent/internal/planner"
	"github.com/nbenliogludev/softlight-agent/internal/state"
)

type RunState string

const (
	StateIdle      RunState = "idle"
	StateRunning   RunState = "running"
	StatePaused    RunState = "paused"
	StateCompleted RunState = "completed"
	StateAborted   RunState = "aborted"
)

type Options struct {
	// LoginPollInterval is how often the page is re-read during a login
	// pause to see whether the operator has finished.
	LoginPollInterval time.Duration
	// ModalTimeout bounds wait_for_modal.
	ModalTimeout time.Duration
	// WaitDuration is the fixed settle time for the wait action.
	WaitDuration time.Duration
}

func (o *Options) withDefaults() {
	if o.LoginPollInterval <= 0 {
		o.LoginPollInterval = 2 * time.Second
	}
	if o.ModalTimeout <= 0 {
		o.ModalTimeout = 5 * time.Second
	}
	if o.WaitDuration <= 0 {
		o.WaitDuration = 1500 * time.Millisecond
	}
}

type Executor struct {
	driver   browser.Driver
	analyzer *analyzer.Analyzer
	states   *state.Manager
	run      *state.TaskRun
	log      *zap.Logger
	opts     Options

	runState RunState
	paused   chan string
	unblock  chan struct{}

	justSubmitted bool
	steps         []StepOutcome
}

func New(driver browser.Driver, an *analyzer.Analyzer, states *state.Manager, run *state.TaskRun, opts Options, log *zap.Logger) *Executor {
	opts.withDefaults()
	return &Executor{
		driver:   driver,
		analyzer: an,
		states:   states,
		run:      run,
		log:      log,
		opts:     opts,
		runState: StateIdle,
		paused:   make(chan string, 1),
		unblock:  make(chan struct{}, 1),
	}
}

// Paused emits a reason each time execution pauses for manual login.
// The channel is buffered; a listener is optional. It is closed when
// Run returns, so range loops over it terminate with the run.
func (e *Executor) Paused() <-chan string { return e.paused }

// Unblock resumes a paused run once the operator has logged in. Safe to
// call at any time; a signal with no pause in progress is dropped at the
// next pause check.
func (e *Executor) Unblock() {
	select {
	case e.unblock <- struct{}{}:
	default:
	}
}

func (e *Executor) State() RunState { return e.runState }

// Run executes the sequence to completion or abort. Fatal driver errors
// abort the run and are returned; every other per-action failure is
// recorded as a skipped step. The run manifest is flushed before return
// in all cases.
func (e *Executor) Run(ctx context.Context, actions []planner.Action) (*Result, error) {
	if err := planner.ValidateSequence(actions); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	task := analyzer.NewTaskContext(e.run.Task)
	e.runState = StateRunning

	// Closing the pause channel lets listeners like an operator prompt
	// loop exit once the run is over.
	defer close(e.paused)

	var skipped []string
	status := string(StateCompleted)
	defer func() {
		if err := e.states.Flush(status, len(actions), skipped); err != nil {
			e.log.Error("run summary flush failed", zap.Error(err))
		}
	}()

	// The index-1 state is recorded unconditionally before anything
	// runs; it has no prior state to compare against.
	if _, err := e.states.CaptureInitial(ctx, e.driver); err != nil {
		e.log.Error("initial state capture failed", zap.Error(err))
	}

	var fatal error
	for i, act := range actions {
		if fatal != nil {
			break
		}
		desc := act.Describe()
		e.log.Info("executing action",
			zap.Int("step", i+1),
			zap.String("action", desc),
		)

		err := e.execute(ctx, task, act)
		switch {
		case err == nil:
			e.record(i+1, desc, StepOK, "")
		case errors.Is(err, ErrFatal) || ctx.Err() != nil:
			e.record(i+1, desc, StepFailed, err.Error())
			e.log.Error("fatal driver failure, aborting run",
				zap.String("action", desc), zap.Error(err))
			status = string(StateAborted)
			fatal = err
		default:
			e.record(i+1, desc, StepSkipped, err.Error())
			skipped = append(skipped, desc)
			e.log.Warn("action skipped", zap.String("action", desc), zap.Error(err))
		}

		if ctx.Err() == nil {
			if capErr := e.capture(ctx, desc); capErr != nil {
				e.log.Error("state capture failed", zap.Error(capErr))
			}
		}
	}

	if fatal != nil {
		e.runState = StateAborted
	} else {
		e.runState = StateCompleted
	}

	res := &Result{
		Status:       status,
		ActionsTotal: len(actions),
		Skipped:      skipped,
		Steps:        e.steps,
		StatesCount:  len(e.run.States()),
		LoggedIn:     e.run.LoggedIn,
	}
	return res, fatal
}

func (e *Executor) record(index int, desc string, st StepStatus, detail string) {
	e.steps = append(e.steps, StepOutcome{Index: index, Action: desc, Status: st, Detail: detail})
}

func (e *Executor) capture(ctx context.Context, desc string) error {
	_, err := e.states.MaybeCapture(ctx, e.driver, desc)
	return err
}

func (e *Executor) execute(ctx context.Context, task analyzer.TaskContext, act planner.Action) error {
	submitted := false
	defer func() { e.justSubmitted = submitted }()

	switch act.Type {
	case planner.ActionNavigate:
		return e.navigate(ctx, act.URL)

	case planner.ActionClickByText:
		res, err := e.resolve(ctx, task, analyzer.Hint{
			Kind: analyzer.HintClick,
			Text: act.Text,
			Role: act.RoleHint,
		})
		if err != nil {
			return err
		}
		return e.driver.Click(ctx, res.Element.ID)

	case planner.ActionFill:
		e.dismissConsent(ctx)
		res, err := e.resolve(ctx, task, analyzer.Hint{
			Kind: analyzer.HintInput,
			Text: act.FieldHint,
		})
		if err != nil {
			return err
		}
		if err := e.driver.Fill(ctx, res.Element.ID, act.Value); err != nil {
			return err
		}
		if res.PressEnter {
			// Search boxes submit on Enter; there is often no button.
			if err := e.driver.Press(ctx, "Enter"); err != nil {
				return err
			}
			submitted = true
		}
		return nil

	case planner.ActionClickSubmit:
		if e.justSubmitted {
			// The preceding fill already submitted via Enter.
			e.log.Debug("submit already performed, skipping")
			return nil
		}
		res, err := e.resolve(ctx, task, analyzer.Hint{Kind: analyzer.HintSubmit, Text: "submit"})
		if err != nil {
			return err
		}
		if res.PressEnter {
			if err := e.driver.Click(ctx, res.Element.ID); err != nil {
				return err
			}
			return e.driver.Press(ctx, "Enter")
		}
		return e.driver.Click(ctx, res.Element.ID)

	case planner.ActionPressKey:
		return e.driver.Press(ctx, act.Key)

	case planner.ActionScroll:
		dir := browser.ScrollDown
		if act.Direction == "up" {
			dir = browser.ScrollUp
		}
		return e.driver.Scroll(ctx, dir)

	case planner.ActionWait:
		return sleep(ctx, e.opts.WaitDuration)

	case planner.ActionWaitForModal:
		return e.waitForModal(ctx)

	case planner.ActionCaptureState:
		// The post-action capture pass records the state; the action
		// exists so plans can mark explicit capture points.
		return nil
	}
	return fmt.Errorf("unhandled action type %q", act.Type)
}

// navigate performs the one action class whose driver errors are fatal:
// a session that cannot reach its page has nothing left to capture.
func (e *Executor) navigate(ctx context.Context, url string) error {
	if err := e.driver.Navigate(ctx, url); err != nil {
		return fmt.Errorf("%w: navigate %s: %v", ErrFatal, url, err)
	}

	snap, err := e.driver.Snapshot(ctx)
	if err != nil {
		// Auth detection is best effort; the page itself loaded.
		e.log.Warn("post-navigation snapshot failed", zap.Error(err))
		return nil
	}
	if AuthRequired(snap, e.driver.URL()) && !e.run.LoggedIn {
		return e.awaitLogin(ctx)
	}
	return nil
}

// awaitLogin suspends execution until the operator completes login. The
// pause is observable through Paused(); resumption happens when either
// the page stops looking like a login wall (polled at a fixed interval)
// or Unblock is called. The context deadline bounds the wait. No states
// are captured while paused.
func (e *Executor) awaitLogin(ctx context.Context) error {
	e.runState = StatePaused
	defer func() { e.runState = StateRunning }()

	select {
	case e.paused <- "login required at " + e.driver.URL():
	default:
	}
	e.log.Info("login required, pausing for manual intervention",
		zap.String("url", e.driver.URL()))

	ticker := time.NewTicker(e.opts.LoginPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: login wait cancelled: %v", ErrFatal, ctx.Err())
		case <-e.unblock:
			e.run.LoggedIn = true
			e.log.Info("operator unblocked login pause")
			return nil
		case <-ticker.C:
			snap, err := e.driver.Snapshot(ctx)
			if err != nil {
				continue
			}
			if !AuthRequired(snap, e.driver.URL()) {
				e.run.LoggedIn = true
				e.log.Info("login completed, resuming")
				return nil
			}
		}
	}
}

// resolve asks the analyzer for an element, retrying once after an
// extra scroll pass before giving up on the action.
func (e *Executor) resolve(ctx context.Context, task analyzer.TaskContext, hint analyzer.Hint) (*analyzer.Resolution, error) {
	res, err := e.analyzer.Resolve(ctx, task, hint, e.driver)
	if errors.Is(err, analyzer.ErrNotFound) {
		if scrollErr := e.driver.Scroll(ctx, browser.ScrollDown); scrollErr != nil {
			return nil, err
		}
		res, err = e.analyzer.Resolve(ctx, task, hint, e.driver)
	}
	return res, err
}

// dismissConsent clears a cookie banner if one is up. Failures are
// ignored; the subsequent fill will surface any real problem.
func (e *Executor) dismissConsent(ctx context.Context) {
	snap, err := e.driver.Snapshot(ctx)
	if err != nil {
		return
	}
	el, ok := consentButton(snap)
	if !ok {
		return
	}
	if err := e.driver.Click(ctx, el.ID); err != nil {
		e.log.Debug("consent dismissal click failed", zap.Error(err))
		return
	}
	e.log.Info("dismissed consent banner", zap.String("label", el.Label))
}

func (e *Executor) waitForModal(ctx context.Context) error {
	deadline := time.Now().Add(e.opts.ModalTimeout)
	for {
		snap, err := e.driver.Snapshot(ctx)
		if err == nil && analyzer.ModalVisible(snap) {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New("no modal appeared within timeout")
		}
		if err := sleep(ctx, 250*time.Millisecond); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
