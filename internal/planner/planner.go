// Package planner turns a natural-language task into an ordered sequence
// of abstract UI actions. The LLM-backed planner is the normal path; a
// keyword-driven heuristic fallback covers PlanningUnavailable.
package planner

import (
	"context"
	"errors"
)

// ErrPlanningUnavailable reports that no usable plan could be produced
// by the primary planner. Callers fall back to the heuristic planner.
var ErrPlanningUnavailable = errors.New("planner: planning unavailable")

type Planner interface {
	Plan(ctx context.Context, task string) ([]Action, error)
}
