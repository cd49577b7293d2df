package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/mission-control/internal/models"
	"github.com/example/mission-control/internal/providers/llm"
	"github.com/example/mission-control/internal/tools"
)

// Delta is one element of an execution stream. A Delta with Err set is
// always the last one sent before the channel closes.
type Delta struct {
	Text string
	Err  error
}

type ExecutionRequest struct {
	Task models.Task
	Goal string
	// Log is the mission log at the moment the task started.
	Log []models.LogEntry
}

// Executor runs one task and streams its textual output. The returned
// channel is closed when the task is done; a closed channel without an Err
// delta means success.
type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) (<-chan Delta, error)
}

// Stream runs produce on its own goroutine and exposes its output as a
// Delta channel. emit fails with ctx.Err() once ctx is done so producers
// stop promptly when nobody is listening.
func Stream(ctx context.Context, produce func(emit func(string) error) error) <-chan Delta {
	ch := make(chan Delta, 16)
	go func() {
		defer close(ch)
		emit := func(s string) error {
			if s == "" {
				return nil
			}
			select {
			case ch <- Delta{Text: s}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := produce(emit); err != nil {
			select {
			case ch <- Delta{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return ch
}

// LLMExecutor streams a task through an LLM. Research roles get the text of
// any URLs cited in the task prepended as reference material.
type LLMExecutor struct {
	Client         llm.Client
	Roles          *Registry
	References     *tools.Collector
	ContextEntries int
}

func (e *LLMExecutor) Execute(ctx context.Context, req ExecutionRequest) (<-chan Delta, error) {
	role, ok := e.Roles.Lookup(req.Task.Agent)
	if !ok {
		return nil, fmt.Errorf("unknown agent %q", req.Task.Agent)
	}
	return Stream(ctx, func(emit func(string) error) error {
		var refs []tools.Reference
		if role.Has(CapResearch) && e.References != nil {
			refs = e.References.Collect(ctx, req.Task.Title+"\n"+req.Task.Description)
		}
		prompt := buildExecutePrompt(role, req, refs, e.ContextEntries)
		return e.Client.GenerateTextStream(ctx, prompt, emit)
	}), nil
}

// SummarizeLog renders the last n entries, each cut to 100 characters.
func SummarizeLog(log []models.LogEntry, n int) string {
	if n <= 0 {
		n = 5
	}
	if len(log) > n {
		log = log[len(log)-n:]
	}
	var b strings.Builder
	for _, l := range log {
		content, cut := tools.Truncate(l.Content, 100)
		if cut {
			content += "..."
		}
		fmt.Fprintf(&b, "%s (%s): %s\n", l.Agent, l.Type, content)
	}
	return b.String()
}

func buildExecutePrompt(role Role, req ExecutionRequest, refs []tools.Reference, n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s. %s\n", role.Name, role.Guidance)
	fmt.Fprintf(&b, "The overall project goal is: %q.\n", req.Goal)
	fmt.Fprintf(&b, "Your current task is: %q - %s\n", req.Task.Title, req.Task.Description)
	fmt.Fprintf(&b, "Previous actions summary for context:\n%s\n", SummarizeLog(req.Log, n))
	if len(refs) > 0 {
		b.WriteString("Reference material:\n")
		for _, r := range refs {
			if r.Err != "" {
				fmt.Fprintf(&b, "- %s: unavailable (%s)\n", r.URL, r.Err)
				continue
			}
			fmt.Fprintf(&b, "- %s (%s):\n%s\n", r.URL, r.Kind, r.Text)
		}
		b.WriteString("\n")
	}
	b.WriteString(`Execute your task now. Stream your work in markdown using this structure:
**Thinking:** your step-by-step plan.
**Action:** the concrete action you perform; wrap code in fenced blocks with a language identifier.
**Observation:** the result of the action.
Keep the output concise and focused on the current task.`)
	return b.String()
}

// MockExecutor streams a short canned transcript per task.
type MockExecutor struct{}

func (MockExecutor) Execute(ctx context.Context, req ExecutionRequest) (<-chan Delta, error) {
	return Stream(ctx, func(emit func(string) error) error {
		for _, part := range []string{
			"**Thinking:** planning " + req.Task.Title + ".\n",
			"**Action:** " + req.Task.Description + "\n",
			"**Observation:** done.\n",
		} {
			if err := emit(part); err != nil {
				return err
			}
		}
		return nil
	}), nil
}
