package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/mission-control/internal/models"
	"github.com/example/mission-control/internal/providers/llm"
)

// Finalizer synthesizes the deliverable from the mission log.
type Finalizer interface {
	Finalize(ctx context.Context, goal string, log []models.LogEntry) (string, error)
}

type LLMFinalizer struct {
	Client llm.Client
}

func (f *LLMFinalizer) Finalize(ctx context.Context, goal string, log []models.LogEntry) (string, error) {
	prompt := fmt.Sprintf(`You are the Final Output Generator.
The original goal was: %q.
Based on the entire execution log below, synthesize all the information and produce the final, complete deliverable.
The output must be a polished document, code, or report that directly fulfills the goal. Do not add commentary of your own.

Execution Log:
%s`, goal, JoinLog(log))
	out, err := f.Client.GenerateText(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate final output: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("generate final output: empty response")
	}
	return out, nil
}

// JoinLog renders every entry in full, separated by "---" lines.
func JoinLog(log []models.LogEntry) string {
	parts := make([]string, 0, len(log))
	for _, l := range log {
		parts = append(parts, fmt.Sprintf("%s (%s): %s", l.Agent, l.Type, l.Content))
	}
	return strings.Join(parts, "\n---\n")
}

// MockFinalizer stitches the agents' streamed output into a report.
type MockFinalizer struct{}

func (MockFinalizer) Finalize(ctx context.Context, goal string, log []models.LogEntry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", goal)
	for _, l := range log {
		if l.TaskID == "" || strings.TrimSpace(l.Content) == "" {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", l.Agent, strings.TrimSpace(l.Content))
	}
	return strings.TrimSpace(b.String()), nil
}
