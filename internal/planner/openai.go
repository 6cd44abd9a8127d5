package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const plannerSystemPrompt = `
You are an expert UI automation planner. Break a user task into a short
sequence of SIMPLE, ROBUST browser actions.

Before generating actions, decompose the task into sub-goals and think
through the page flow: after a search you are on a results page and must
click a result; after opening a form you must fill it and submit; each
page or section transition needs its own action. If the task mentions a
category (project, issue, task, page), navigate to that section first.

AVAILABLE ACTION TYPES:
1. navigate: {"type": "navigate", "url": "https://..."} - extract or infer the site URL.
2. click_by_text: {"type": "click_by_text", "text": "Projects"} - click any element by
   its visible text. Use the exact text a user would see.
3. wait_for_modal: {"type": "wait_for_modal"} - after clicking buttons that open dialogs
   (Create, New, Add, Edit).
4. fill: {"type": "fill", "field_hint": "name", "value": "MyApp"} - fill one input.
   Use purpose-describing hints: "q" or "search" for search boxes, "name", "title",
   "email" for form fields.
5. click_submit: {"type": "click_submit"} - click a submit/save/create/confirm button,
   OR press Enter when the last filled field was a search box (search UIs often have
   no visible submit button).
6. press_key: {"type": "press_key", "key": "Enter"}
7. scroll: {"type": "scroll", "direction": "down"}
8. capture_state: {"type": "capture_state"} - always include at the end.

RULES:
- Do not invent UI elements; use common button texts (Submit, Save, Create, Search).
- Do not skip page transitions (searching without clicking a result).
- Simple tasks take 3-4 actions, navigation tasks 5-6, complex tasks 6-8.

Return ONLY a JSON object {"actions": [...]}, no markdown, no explanation.
`

// OpenAIPlanner is the LLM-backed Planner collaborator.
type OpenAIPlanner struct {
	client      *openai.Client
	model       string
	temperature float32
	log         *zap.Logger
}

func NewOpenAIPlanner(model string, temperature float32, log *zap.Logger) (*OpenAIPlanner, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set: %w", ErrPlanningUnavailable)
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIPlanner{
		client:      openai.NewClient(apiKey),
		model:       model,
		temperature: temperature,
		log:         log,
	}, nil
}

// Plan asks the model for an action sequence and validates it strictly.
// Any malformed response surfaces as ErrPlanningUnavailable rather than
// a partially-usable plan.
func (p *OpenAIPlanner) Plan(ctx context.Context, task string) ([]Action, error) {
	userMsg := fmt.Sprintf("User task:\n%s\n\nProduce the action sequence.", task)

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: plannerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userMsg},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: p.temperature,
	})
	if err != nil {
		p.log.Warn("planner request failed", zap.Error(err))
		return nil, fmt.Errorf("openai planner: %v: %w", err, ErrPlanningUnavailable)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("planner returned no choices: %w", ErrPlanningUnavailable)
	}

	actions, err := ParsePlanResponse(resp.Choices[0].Message.Content)
	if err != nil {
		p.log.Warn("planner response rejected", zap.Error(err))
		return nil, fmt.Errorf("parse plan: %v: %w", err, ErrPlanningUnavailable)
	}

	p.log.Info("plan generated", zap.Int("actions", len(actions)))
	return actions, nil
}

// ParsePlanResponse decodes the model output into validated actions.
// Exported so the boundary validation is testable without a live client.
func ParsePlanResponse(content string) ([]Action, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.Trim(content, "`")

	var wrapper struct {
		Actions []Action `json:"actions"`
		Plan    []Action `json:"plan"`
		Steps   []Action `json:"steps"`
	}
	if err := json.Unmarshal([]byte(content), &wrapper); err != nil {
		return nil, fmt.Errorf("decode plan JSON: %w", err)
	}

	actions := wrapper.Actions
	if len(actions) == 0 {
		actions = wrapper.Plan
	}
	if len(actions) == 0 {
		actions = wrapper.Steps
	}

	for i := range actions {
		actions[i].Type = normalizeType(string(actions[i].Type))
	}
	if err := ValidateSequence(actions); err != nil {
		return nil, err
	}
	return actions, nil
}
