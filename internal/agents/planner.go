package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/mission-control/internal/models"
)

// Planner turns a goal into a dependency-annotated task list. Statuses on the
// returned tasks are ignored; the orchestrator derives them.
type Planner interface {
	Plan(ctx context.Context, goal string) ([]models.Task, error)
}

// MockPlanner is a rule-based planner for offline use.
type MockPlanner struct {
	Roles *Registry
}

func (m *MockPlanner) Plan(ctx context.Context, goal string) ([]models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g := strings.TrimSpace(goal)
	if g == "" {
		return nil, fmt.Errorf("empty goal")
	}
	lower := strings.ToLower(g)
	// Short creative asks need a single writer.
	if len(strings.Fields(g)) <= 5 {
		return []models.Task{{
			ID: "task-1", Title: g, Description: "Complete the request directly: " + g,
			Agent: "Protocol Scribe", Dependencies: []string{},
		}}, nil
	}
	build := models.Task{ID: "task-2", Title: "Draft the deliverable", Description: "Write the deliverable for: " + g, Agent: "Protocol Scribe", Dependencies: []string{"task-1"}}
	if strings.Contains(lower, "code") || strings.Contains(lower, "component") || strings.Contains(lower, "function") {
		build = models.Task{ID: "task-2", Title: "Implement the solution", Description: "Write the code for: " + g, Agent: "Synth-Code Engineer", Dependencies: []string{"task-1"}}
	}
	return []models.Task{
		{ID: "task-1", Title: "Gather background", Description: "Research the facts and constraints behind: " + g, Agent: "Data Archaeologist", Dependencies: []string{}},
		build,
		{ID: "task-3", Title: "Verify the result", Description: "Review the deliverable against the goal and list corrections.", Agent: "Chief Verifier", Dependencies: []string{"task-2"}},
	}, nil
}
