package models

import (
	"time"
)

// TaskStatus is the lifecycle state of a single task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusBlocked    TaskStatus = "blocked"
	StatusInProgress TaskStatus = "in-progress"
	StatusCompleted  TaskStatus = "completed"
	StatusError      TaskStatus = "error"
)

// Valid reports whether s is one of the five known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusBlocked, StatusInProgress, StatusCompleted, StatusError:
		return true
	}
	return false
}

type Task struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Agent        string     `json:"agent"`
	Status       TaskStatus `json:"status"`
	Dependencies []string   `json:"dependencies"`
	Error        string     `json:"error,omitempty"`
}

// Clone returns a copy that shares no slices with t.
func (t Task) Clone() Task {
	c := t
	if t.Dependencies != nil {
		c.Dependencies = append([]string{}, t.Dependencies...)
	}
	return c
}

// CloneTasks deep-copies a task list.
func CloneTasks(in []Task) []Task {
	if in == nil {
		return nil
	}
	out := make([]Task, len(in))
	for i, t := range in {
		out[i] = t.Clone()
	}
	return out
}

type LogType string

const (
	LogSystem      LogType = "system"
	LogThought     LogType = "thought"
	LogAction      LogType = "action"
	LogObservation LogType = "observation"
	LogError       LogType = "error"
	LogUser        LogType = "user"
	LogFinalReport LogType = "final_report"
)

// Speaker names used for entries that do not belong to a task's agent.
const (
	AgentSystem = "System"
	AgentUser   = "User"
)

type LogEntry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Agent       string    `json:"agent"`
	Type        LogType   `json:"type"`
	Content     string    `json:"content"`
	IsStreaming bool      `json:"is_streaming"`
	// TaskID is set on entries streamed by a task so concurrent streams never
	// write into each other's content.
	TaskID string `json:"task_id,omitempty"`
}

// Phase is the mission-level lifecycle state.
type Phase string

const (
	PhaseIdle             Phase = "IDLE"
	PhasePlanning         Phase = "PLANNING"
	PhaseAwaitingApproval Phase = "AWAITING_APPROVAL"
	PhaseExecuting        Phase = "EXECUTING"
	PhaseFinalizing       Phase = "FINALIZING"
	PhaseFinished         Phase = "FINISHED"
	PhaseError            Phase = "ERROR"
)

// Mission is a point-in-time view of the state owned by the orchestrator.
type Mission struct {
	ID          string     `json:"id"`
	Goal        string     `json:"goal"`
	Phase       Phase      `json:"phase"`
	Tasks       []Task     `json:"tasks"`
	Log         []LogEntry `json:"log"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	FinalReport string     `json:"final_report,omitempty"`
}

// Elapsed returns how long the mission has been executing, measured up to now
// or to FinishedAt once set.
func (m Mission) Elapsed(now time.Time) time.Duration {
	if m.StartedAt == nil {
		return 0
	}
	end := now
	if m.FinishedAt != nil {
		end = *m.FinishedAt
	}
	return end.Sub(*m.StartedAt)
}

// Plan is the persisted {goal, tasks} pair.
type Plan struct {
	Goal  string `json:"goal"`
	Tasks []Task `json:"tasks"`
}
