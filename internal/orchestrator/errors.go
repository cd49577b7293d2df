package orchestrator

import "errors"

var (
	ErrInvalidPhase  = errors.New("operation not allowed in the current phase")
	ErrBlankGoal     = errors.New("goal is blank")
	ErrTaskNotFound  = errors.New("task not found")
	ErrNotEditable   = errors.New("task cannot be edited now")
	ErrNotRetryable  = errors.New("only failed or completed tasks can be retried")
	ErrInvalidTask   = errors.New("invalid task")
	ErrEmptyPlan     = errors.New("plan has no tasks")
	ErrUnknownAgent  = errors.New("unknown agent")
	ErrMalformedPlan = errors.New("saved plan is malformed")
	ErrNoSavedPlan   = errors.New("no saved plan")
	ErrNoStore       = errors.New("no plan store configured")
)
