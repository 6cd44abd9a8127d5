package executor

type StepStatus string

const (
	StepOK      StepStatus = "ok"
	StepSkipped StepStatus = "skipped"
	StepFailed  StepStatus = "failed"
)

// StepOutcome is the per-action record kept for the end-of-run summary.
type StepOutcome struct {
	Index  int
	Action string
	Status StepStatus
	Detail string
}

// Result is what a finished (or aborted) run reports back.
type Result struct {
	Status       string
	ActionsTotal int
	Skipped      []string
	Steps        []StepOutcome
	StatesCount  int
	LoggedIn     bool
}
