package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/mission-control/internal/models"
)

// PlanKey is the fixed record name of the saved mission plan.
const PlanKey = "saved_mission_plan"

var ErrMalformed = errors.New("malformed saved plan")

func EncodePlan(p models.Plan) ([]byte, error) {
	if p.Tasks == nil {
		p.Tasks = []models.Task{}
	}
	return json.Marshal(p)
}

// DecodePlan requires "goal" to be a JSON string and "tasks" a JSON array
// before decoding the tasks themselves.
func DecodePlan(b []byte) (models.Plan, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return models.Plan{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	goal, ok := raw["goal"]
	if !ok || !isKind(goal, '"') {
		return models.Plan{}, fmt.Errorf("%w: goal is not a string", ErrMalformed)
	}
	tasks, ok := raw["tasks"]
	if !ok || !isKind(tasks, '[') {
		return models.Plan{}, fmt.Errorf("%w: tasks is not an array", ErrMalformed)
	}
	var p models.Plan
	if err := json.Unmarshal(goal, &p.Goal); err != nil {
		return models.Plan{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := json.Unmarshal(tasks, &p.Tasks); err != nil {
		return models.Plan{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for i := range p.Tasks {
		if p.Tasks[i].Dependencies == nil {
			p.Tasks[i].Dependencies = []string{}
		}
	}
	return p, nil
}

func isKind(v json.RawMessage, first byte) bool {
	v = bytes.TrimSpace(v)
	return len(v) > 0 && v[0] == first
}
