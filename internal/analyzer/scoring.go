package analyzer

import (
	"strings"

	"github.com/nbenliogludev/softlight-agent/internal/browser"
)

// TaskContext carries the semantic intent of the originating
// natural-language request: the raw task plus the action and object
// keywords derived from it once, up front.
type TaskContext struct {
	Task           string
	ActionKeywords []string
	ObjectKeywords []string
}

var actionPatterns = map[string][]string{
	"create": {"create", "new", "add"},
	"save":   {"save", "update", "edit"},
	"submit": {"submit", "confirm", "send"},
	"delete": {"delete", "remove"},
	"cancel": {"cancel", "close"},
}

var commonObjects = []string{
	"project", "issue", "task", "page", "item", "note", "card", "document", "repository",
}

func NewTaskContext(task string) TaskContext {
	lower := strings.ToLower(task)

	tc := TaskContext{Task: lower}
	for _, keywords := range actionPatterns {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				tc.ActionKeywords = append(tc.ActionKeywords, keywords...)
				break
			}
		}
	}
	for _, obj := range commonObjects {
		if strings.Contains(lower, obj) {
			tc.ObjectKeywords = append(tc.ObjectKeywords, obj)
		}
	}
	return tc
}

// IsSearch reports whether the task is a search flow.
func (t TaskContext) IsSearch() bool {
	return strings.Contains(t.Task, "search")
}

// scoringFactor is one named, independently testable relevance rule.
// Factors are evaluated in order and their weights summed; the order in
// the slice mirrors their intended precedence (text match highest,
// semantic task keywords next, positional/role priors last).
type scoringFactor struct {
	name   string
	weight float64
	match  func(el browser.Element, task TaskContext, hint Hint) bool
}

var scoringFactors = []scoringFactor{
	{
		name:   "exact-text",
		weight: 30,
		match: func(el browser.Element, _ TaskContext, hint Hint) bool {
			return hint.Text != "" && strings.EqualFold(strings.TrimSpace(el.Label), strings.TrimSpace(hint.Text))
		},
	},
	{
		name:   "partial-text",
		weight: 15,
		match: func(el browser.Element, _ TaskContext, hint Hint) bool {
			if hint.Text == "" {
				return false
			}
			label := strings.ToLower(el.Label)
			text := strings.ToLower(hint.Text)
			return label != "" && (strings.Contains(label, text) || strings.Contains(text, label))
		},
	},
	{
		name:   "action-keyword",
		weight: 10,
		match: func(el browser.Element, task TaskContext, _ Hint) bool {
			return containsAny(strings.ToLower(el.Label), task.ActionKeywords)
		},
	},
	{
		name:   "object-keyword",
		weight: 5,
		match: func(el browser.Element, task TaskContext, _ Hint) bool {
			return containsAny(strings.ToLower(el.Label), task.ObjectKeywords)
		},
	},
	{
		name:   "combined-keyword",
		weight: 15,
		match: func(el browser.Element, task TaskContext, _ Hint) bool {
			label := strings.ToLower(el.Label)
			return containsAny(label, task.ActionKeywords) && containsAny(label, task.ObjectKeywords)
		},
	},
	{
		// Modals represent the user's current focus; out-of-modal
		// elements are presumed stale while one is open.
		name:   "modal-containment",
		weight: 25,
		match: func(el browser.Element, _ TaskContext, _ Hint) bool {
			return el.InModal
		},
	},
	{
		name:   "create-over-add",
		weight: 10,
		match: func(el browser.Element, task TaskContext, _ Hint) bool {
			label := strings.ToLower(el.Label)
			return strings.Contains(task.Task, "create") &&
				strings.Contains(label, "create") && !strings.Contains(label, "add")
		},
	},
	{
		name:   "add-penalty",
		weight: -5,
		match: func(el browser.Element, task TaskContext, _ Hint) bool {
			label := strings.ToLower(el.Label)
			return strings.Contains(task.Task, "create") &&
				strings.Contains(label, "add") && !strings.Contains(label, "create")
		},
	},
	{
		name:   "submit-shape-prior",
		weight: 3,
		match: func(el browser.Element, _ TaskContext, hint Hint) bool {
			return hint.Kind == HintSubmit && (el.Kind == "submit" || el.Role == "button")
		},
	},
}

// scoreElement sums the matching factor weights.
func scoreElement(el browser.Element, task TaskContext, hint Hint) float64 {
	var score float64
	for _, f := range scoringFactors {
		if f.match(el, task, hint) {
			score += f.weight
		}
	}
	return score
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
