package planner

import (
	"fmt"
	"strings"
)

type ActionType string

const (
	ActionNavigate     ActionType = "navigate"
	ActionClickByText  ActionType = "click_by_text"
	ActionFill         ActionType = "fill"
	ActionPressKey     ActionType = "press_key"
	ActionScroll       ActionType = "scroll"
	ActionWait         ActionType = "wait"
	ActionWaitForModal ActionType = "wait_for_modal"
	ActionClickSubmit  ActionType = "click_submit"
	ActionCaptureState ActionType = "capture_state"
)

// Action is one planner-produced, UI-agnostic instruction. It is a closed
// tagged variant: Type selects which of the remaining fields are
// meaningful, Validate enforces it, and the executor never mutates one.
type Action struct {
	Type      ActionType `json:"type"`
	URL       string     `json:"url,omitempty"`        // navigate
	Text      string     `json:"text,omitempty"`       // click_by_text
	RoleHint  string     `json:"role_hint,omitempty"`  // click_by_text
	FieldHint string     `json:"field_hint,omitempty"` // fill
	Value     string     `json:"value,omitempty"`      // fill
	Key       string     `json:"key,omitempty"`        // press_key
	Direction string     `json:"direction,omitempty"`  // scroll
}

// Validate rejects malformed variants at the planner boundary so
// ambiguity never propagates downstream.
func (a Action) Validate() error {
	switch a.Type {
	case ActionNavigate:
		if a.URL == "" {
			return fmt.Errorf("navigate action requires url")
		}
	case ActionClickByText:
		if a.Text == "" {
			return fmt.Errorf("click_by_text action requires text")
		}
	case ActionFill:
		if a.FieldHint == "" {
			return fmt.Errorf("fill action requires field_hint")
		}
	case ActionPressKey:
		if a.Key == "" {
			return fmt.Errorf("press_key action requires key")
		}
	case ActionScroll:
		if a.Direction != "" && a.Direction != "down" && a.Direction != "up" {
			return fmt.Errorf("scroll direction must be up or down, got %q", a.Direction)
		}
	case ActionWait, ActionWaitForModal, ActionClickSubmit, ActionCaptureState:
		// no payload
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	return nil
}

// Describe returns the short textual description recorded with each
// captured state and used for artifact naming.
func (a Action) Describe() string {
	base := strings.ReplaceAll(string(a.Type), "_", "-")
	switch a.Type {
	case ActionNavigate:
		return base + " " + a.URL
	case ActionClickByText:
		return base + " " + a.Text
	case ActionFill:
		return base + " " + a.FieldHint
	case ActionPressKey:
		return base + " " + a.Key
	default:
		return base
	}
}

// normalizeType maps the aliases LLMs commonly emit onto the closed set.
func normalizeType(raw string) ActionType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "navigate", "goto", "go_to", "open":
		return ActionNavigate
	case "click_by_text", "click", "click_text":
		return ActionClickByText
	case "fill", "fill_inputs", "type", "input":
		return ActionFill
	case "press_key", "press", "key":
		return ActionPressKey
	case "scroll", "scroll_down", "scroll_up":
		return ActionScroll
	case "wait", "sleep":
		return ActionWait
	case "wait_for_modal", "wait_modal":
		return ActionWaitForModal
	case "click_submit", "submit":
		return ActionClickSubmit
	case "capture_state", "capture", "screenshot":
		return ActionCaptureState
	default:
		return ActionType(raw)
	}
}

// ValidateSequence checks a whole plan: non-empty and every action
// well-formed.
func ValidateSequence(actions []Action) error {
	if len(actions) == 0 {
		return fmt.Errorf("empty action sequence")
	}
	for i, a := range actions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("action %d: %w", i+1, err)
		}
	}
	return nil
}
