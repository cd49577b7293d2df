package llm

import (
	"context"
	"fmt"
	"strings"
)

// MockClient is used when no real provider is configured. Its replies are
// deterministic so the whole pipeline can run offline.
type MockClient struct{}

func (m *MockClient) GeneratePlan(ctx context.Context, prompt string) (string, error) {
	return `[
  {"id":"task-1","title":"Research the topic","description":"Collect the key facts needed for the goal.","agent":"Data Archaeologist","dependencies":[]},
  {"id":"task-2","title":"Draft the deliverable","description":"Write the deliverable from the research notes.","agent":"Protocol Scribe","dependencies":["task-1"]},
  {"id":"task-3","title":"Review the draft","description":"Check the draft for accuracy and gaps.","agent":"Chief Verifier","dependencies":["task-2"]}
]`, nil
}

func (m *MockClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	return fmt.Sprintf("Mock response (%d prompt bytes).", len(prompt)), nil
}

func (m *MockClient) GenerateTextStream(ctx context.Context, prompt string, onDelta func(chunk string) error) error {
	for _, w := range strings.Fields("**Thinking:** working offline. **Action:** none. **Observation:** mock output.") {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := onDelta(w + " "); err != nil {
			return err
		}
	}
	return nil
}
