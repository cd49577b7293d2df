package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/example/mission-control/internal/models"
	"github.com/example/mission-control/internal/providers/llm"
)

// ErrUnparseablePlan is returned when the model reply holds no task list.
var ErrUnparseablePlan = errors.New("planner returned an unparseable task list")

// LLMPlanner uses an LLM provider to produce a structured plan.
type LLMPlanner struct {
	Client llm.Client
	Roles  *Registry
}

type llmTask struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Agent        string   `json:"agent"`
	Dependencies []string `json:"dependencies"`
}

func (p *LLMPlanner) Plan(ctx context.Context, goal string) ([]models.Task, error) {
	raw, err := p.Client.GeneratePlan(ctx, buildPlanPrompt(goal, p.Roles.Names()))
	if err != nil {
		return nil, fmt.Errorf("generate plan: %w", err)
	}
	steps, err := parsePlan(raw)
	if err != nil {
		return nil, err
	}
	out := make([]models.Task, 0, len(steps))
	for i, s := range steps {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			id = fmt.Sprintf("task-%d", i+1)
		}
		deps := s.Dependencies
		if deps == nil {
			deps = []string{}
		}
		out = append(out, models.Task{
			ID:           id,
			Title:        strings.TrimSpace(s.Title),
			Description:  strings.TrimSpace(s.Description),
			Agent:        strings.TrimSpace(s.Agent),
			Dependencies: deps,
		})
	}
	return out, nil
}

func parsePlan(raw string) ([]llmTask, error) {
	text := normalizeJSONText(raw)
	if text == "" {
		return nil, ErrUnparseablePlan
	}
	var steps []llmTask
	if err := json.Unmarshal([]byte(text), &steps); err == nil && len(steps) > 0 {
		return steps, nil
	}
	// wrapper object {"tasks": [...]}
	var wrapper struct {
		Tasks []llmTask `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(text), &wrapper); err == nil && len(wrapper.Tasks) > 0 {
		return wrapper.Tasks, nil
	}
	if arr := extractJSONArray(text); arr != "" && arr != text {
		if err := json.Unmarshal([]byte(arr), &steps); err == nil && len(steps) > 0 {
			return steps, nil
		}
	}
	return nil, ErrUnparseablePlan
}

func buildPlanPrompt(goal string, roles []string) string {
	return fmt.Sprintf(`You are a master project planner for a team of specialized AI agents.
Available agents: %s.
Break the user's goal into a short sequence of tasks and assign each to the most suitable agent.
Output ONLY a JSON array, no prose, no code fences.

Schema for each task: {"id": "task-N", "title": "...", "description": "...", "agent": one of the available agents, "dependencies": ["task-K", ...]}

Rules:
- ids are unique; dependencies only reference ids in the same array.
- Use dependencies to express order; a task may only depend on earlier tasks.
- Tasks with no prerequisites have an empty dependencies array.

User goal: %q`, strings.Join(roles, ", "), goal)
}

func extractJSONArray(s string) string {
	// crude extractor for the first top-level JSON array in a string
	start := strings.Index(s, "[")
	if start == -1 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func normalizeJSONText(s string) string {
	t := strings.TrimSpace(s)
	// Strip code fences like ```json ... ```
	if strings.HasPrefix(t, "```") {
		t = strings.TrimPrefix(t, "```")
		if idx := strings.IndexByte(t, '\n'); idx != -1 {
			t = t[idx+1:]
		}
		if j := strings.LastIndex(t, "```"); j != -1 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}
	if !strings.HasPrefix(t, "[") && !strings.HasPrefix(t, "{") {
		if arr := extractJSONArray(t); arr != "" {
			return arr
		}
	}
	return t
}
