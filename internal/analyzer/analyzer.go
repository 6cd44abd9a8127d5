// Package analyzer resolves abstract actions ("click the submit button
// for this task") into concrete interactive elements on an arbitrary,
// unknown page. Enumeration comes from the driver snapshot; relevance is
// a fixed ordered list of weighted scoring factors; disambiguation policy
// (modal focus, search-box handling, header demotion, scroll-and-rescan)
// is applied on top.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/nbenliogludev/softlight-agent/internal/browser"
)

// ErrNotFound reports that no matching element exists after scrolling
// exhaustion. Not fatal: the caller decides whether to skip or abort.
var ErrNotFound = errors.New("analyzer: no matching element")

// maxScrollPasses bounds the scroll-and-rescan loop so resolution always
// makes forward progress.
const maxScrollPasses = 4

type HintKind string

const (
	HintClick  HintKind = "click"
	HintInput  HintKind = "input"
	HintSubmit HintKind = "submit"
)

// Hint describes the abstract action being resolved.
type Hint struct {
	Kind HintKind
	Text string // visible text for clicks, field hint for inputs
	Role string // optional role narrowing: button, link, input
}

// Resolution is a successful resolve: the chosen element plus how to
// act on it. PressEnter means "fill (or focus) the element and press
// Enter" instead of hunting for a submit button; many search UIs have
// none.
type Resolution struct {
	Element    browser.Element
	Score      float64
	PressEnter bool
}

// LivePage is the slice of the driver the analyzer needs. Scrolling is
// the analyzer's only side effect and it is idempotent: repeated
// resolutions converge to the same scroll position once the target is
// in view.
type LivePage interface {
	Snapshot(ctx context.Context) (*browser.PageSnapshot, error)
	Scroll(ctx context.Context, dir browser.ScrollDirection) error
}

type Analyzer struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Analyzer {
	return &Analyzer{log: log}
}

// Resolve finds the best-matching element for the hint, scrolling and
// re-scanning a bounded number of times when candidates are below the
// fold or not yet rendered.
func (a *Analyzer) Resolve(ctx context.Context, task TaskContext, hint Hint, page LivePage) (*Resolution, error) {
	for pass := 0; ; pass++ {
		snap, err := page.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("analyzer snapshot: %w", err)
		}

		res := a.resolveSnapshot(task, hint, snap)
		if res != nil && res.Element.Visible {
			a.log.Debug("resolved element",
				zap.Int("id", res.Element.ID),
				zap.String("label", res.Element.Label),
				zap.Float64("score", res.Score),
				zap.Int("scroll_passes", pass),
			)
			return res, nil
		}

		if pass >= maxScrollPasses {
			if res != nil {
				// Matched but never entered the viewport; the driver
				// scrolls the element into view before interacting.
				return res, nil
			}
			return nil, ErrNotFound
		}

		if err := page.Scroll(ctx, browser.ScrollDown); err != nil {
			return nil, fmt.Errorf("analyzer scroll: %w", err)
		}
	}
}

// resolveSnapshot applies scoring and the disambiguation policy to a
// single snapshot. Returns nil when no candidate survives.
func (a *Analyzer) resolveSnapshot(task TaskContext, hint Hint, snap *browser.PageSnapshot) *Resolution {
	candidates := a.scoreCandidates(task, hint, snap)

	// (a) An open modal is the user's current focus; everything outside
	// it is presumed stale.
	if modal := filterCandidates(candidates, func(c scored) bool { return c.el.InModal }); len(modal) > 0 {
		candidates = modal
	}

	// (b) Search contexts fill the search input and press Enter rather
	// than hunting for a submit button.
	if searchContext(task, hint) {
		if el, ok := findSearchInput(snap, candidates); ok {
			return &Resolution{Element: el, Score: scoreElement(el, task, hint), PressEnter: true}
		}
	}

	// (c) Header-level controls (global search, nav) are rarely the
	// task-relevant action; demote them unless nothing else matched.
	if body := filterCandidates(candidates, func(c scored) bool { return !c.el.InHeader }); len(body) > 0 {
		candidates = body
	}

	if len(candidates) == 0 {
		// A submit hint with no button anywhere still succeeds on a
		// page whose only submission affordance is its search box.
		if hint.Kind == HintSubmit {
			if el, ok := findSearchInput(snap, nil); ok {
				return &Resolution{Element: el, PressEnter: true}
			}
		}
		return nil
	}

	best := pickBest(candidates)
	return &Resolution{Element: best.el, Score: best.score}
}

type scored struct {
	el    browser.Element
	score float64
}

func (a *Analyzer) scoreCandidates(task TaskContext, hint Hint, snap *browser.PageSnapshot) []scored {
	var out []scored
	for _, el := range snap.Elements {
		if !roleMatches(el, hint) {
			continue
		}
		score := scoreElement(el, task, hint)
		if score <= 0 {
			continue
		}
		out = append(out, scored{el: el, score: score})
	}
	return out
}

func roleMatches(el browser.Element, hint Hint) bool {
	if hint.Role != "" {
		return el.Role == hint.Role
	}
	switch hint.Kind {
	case HintInput:
		return el.Role == "input"
	case HintSubmit:
		return el.Role == "button" || el.Kind == "submit"
	default:
		return true
	}
}

func filterCandidates(in []scored, keep func(scored) bool) []scored {
	var out []scored
	for _, c := range in {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// pickBest returns the highest score; ties go to document order.
func pickBest(candidates []scored) scored {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	return candidates[0]
}

func searchContext(task TaskContext, hint Hint) bool {
	if hint.Kind == HintClick {
		return false
	}
	return task.IsSearch() || isSearchHint(hint.Text)
}

func isSearchHint(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	return lower == "q" || lower == "query" || strings.Contains(lower, "search")
}

// findSearchInput prefers a search-kind input among the candidates, then
// falls back to any search input in the snapshot.
func findSearchInput(snap *browser.PageSnapshot, candidates []scored) (browser.Element, bool) {
	for _, c := range candidates {
		if c.el.Kind == "search" {
			return c.el, true
		}
	}
	for _, el := range snap.Elements {
		if el.Kind == "search" {
			return el, true
		}
	}
	return browser.Element{}, false
}

// ModalVisible reports whether the snapshot shows an open dialog.
func ModalVisible(snap *browser.PageSnapshot) bool {
	if strings.Contains(snap.Tree, "=== ACTIVE DIALOG ===") {
		return true
	}
	for _, el := range snap.Elements {
		if el.InModal {
			return true
		}
	}
	return false
}
