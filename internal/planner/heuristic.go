package planner

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// HeuristicPlanner is the bounded built-in fallback used when the LLM
// planner is unavailable. It keys canned plans off coarse task keywords;
// it will never be as good as the model, just good enough to keep a run
// producing data.
type HeuristicPlanner struct {
	log *zap.Logger
}

func NewHeuristicPlanner(log *zap.Logger) *HeuristicPlanner {
	return &HeuristicPlanner{log: log}
}

func (p *HeuristicPlanner) Plan(ctx context.Context, task string) ([]Action, error) {
	lower := strings.ToLower(task)

	var actions []Action
	switch {
	case strings.Contains(lower, "search"):
		actions = searchPlan(lower)
	case strings.Contains(lower, "create") && strings.Contains(lower, "project"):
		actions = createPlan(inferSiteURL(lower), "Projects", "name", "My Project")
	case strings.Contains(lower, "create") && strings.Contains(lower, "issue"):
		actions = createPlan(inferSiteURL(lower), "Issues", "title", "New Issue")
	default:
		actions = []Action{
			{Type: ActionNavigate, URL: inferSiteURL(lower)},
			{Type: ActionCaptureState},
		}
	}

	p.log.Info("heuristic plan generated",
		zap.String("task", task),
		zap.Int("actions", len(actions)),
	)
	return actions, nil
}

func searchPlan(lowerTask string) []Action {
	query := "example query"
	if idx := strings.LastIndex(lowerTask, " for "); idx >= 0 {
		if q := strings.TrimSpace(lowerTask[idx+5:]); len(q) > 2 {
			query = q
		}
	}
	return []Action{
		{Type: ActionNavigate, URL: inferSiteURL(lowerTask)},
		{Type: ActionCaptureState},
		{Type: ActionFill, FieldHint: "q", Value: query},
		{Type: ActionClickSubmit},
		{Type: ActionCaptureState},
	}
}

func createPlan(url, section, fieldHint, value string) []Action {
	return []Action{
		{Type: ActionNavigate, URL: url},
		{Type: ActionClickByText, Text: section},
		{Type: ActionClickByText, Text: "Create"},
		{Type: ActionWaitForModal},
		{Type: ActionFill, FieldHint: fieldHint, Value: value},
		{Type: ActionClickSubmit},
		{Type: ActionCaptureState},
	}
}

var knownSites = []struct {
	keyword string
	url     string
}{
	{"youtube", "https://www.youtube.com"},
	{"google", "https://www.google.com"},
	{"linear", "https://linear.app"},
	{"notion", "https://notion.so"},
	{"github", "https://github.com"},
}

func inferSiteURL(lowerTask string) string {
	for _, site := range knownSites {
		if strings.Contains(lowerTask, site.keyword) {
			return site.url
		}
	}
	return "https://www.google.com"
}
