// Package resolver computes task readiness from the dependency graph and
// lays the graph out into levels for display.
package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/example/mission-control/internal/models"
)

// InitialStatus is the status a freshly planned task starts in.
func InitialStatus(t models.Task) models.TaskStatus {
	if len(t.Dependencies) > 0 {
		return models.StatusBlocked
	}
	return models.StatusPending
}

// Promote returns a copy of tasks in which every blocked task whose
// dependencies are all completed has become pending. The input is not
// modified. Calling Promote on its own output yields the same set.
func Promote(tasks []models.Task) []models.Task {
	out := models.CloneTasks(tasks)
	status := make(map[string]models.TaskStatus, len(out))
	for _, t := range out {
		status[t.ID] = t.Status
	}
	for i := range out {
		if out[i].Status != models.StatusBlocked {
			continue
		}
		if satisfied(out[i], status) {
			out[i].Status = models.StatusPending
		}
	}
	return out
}

func satisfied(t models.Task, status map[string]models.TaskStatus) bool {
	for _, dep := range t.Dependencies {
		if status[dep] != models.StatusCompleted {
			return false
		}
	}
	return true
}

// Demote returns a copy in which every pending task with an unfinished
// dependency is blocked again. It undoes promotions made stale by re-running
// a completed task.
func Demote(tasks []models.Task) []models.Task {
	out := models.CloneTasks(tasks)
	status := make(map[string]models.TaskStatus, len(out))
	for _, t := range out {
		status[t.ID] = t.Status
	}
	for i := range out {
		if out[i].Status == models.StatusPending && !satisfied(out[i], status) {
			out[i].Status = models.StatusBlocked
		}
	}
	return out
}

// Runnable lists the ids of pending tasks in list order.
func Runnable(tasks []models.Task) []string {
	var ids []string
	for _, t := range tasks {
		if t.Status == models.StatusPending {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// AllCompleted reports whether the set is non-empty and fully completed.
func AllCompleted(tasks []models.Task) bool {
	if len(tasks) == 0 {
		return false
	}
	for _, t := range tasks {
		if t.Status != models.StatusCompleted {
			return false
		}
	}
	return true
}

// ValidationError describes a structural defect in a task set.
type ValidationError struct {
	Reason string
	IDs    []string
}

func (e *ValidationError) Error() string {
	if len(e.IDs) == 0 {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, strings.Join(e.IDs, ", "))
}

// Validate checks id presence and uniqueness, dangling and self references,
// and cycles. The first defect found is returned.
func Validate(tasks []models.Task) error {
	seen := make(map[string]bool, len(tasks))
	var dup []string
	for i, t := range tasks {
		if strings.TrimSpace(t.ID) == "" {
			return &ValidationError{Reason: fmt.Sprintf("task %d has no id", i+1)}
		}
		if seen[t.ID] {
			dup = append(dup, t.ID)
		}
		seen[t.ID] = true
	}
	if len(dup) > 0 {
		return &ValidationError{Reason: "duplicate task ids", IDs: dup}
	}
	var dangling []string
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if dep == t.ID {
				return &ValidationError{Reason: "task depends on itself", IDs: []string{t.ID}}
			}
			if !seen[dep] {
				dangling = append(dangling, t.ID+"->"+dep)
			}
		}
	}
	if len(dangling) > 0 {
		return &ValidationError{Reason: "unknown dependency", IDs: dangling}
	}
	if cyc := cycleMembers(tasks); len(cyc) > 0 {
		return &ValidationError{Reason: "dependency cycle", IDs: cyc}
	}
	return nil
}

// cycleMembers runs Kahn's algorithm and returns whatever could not be
// ordered, sorted for stable messages.
func cycleMembers(tasks []models.Task) []string {
	indeg := make(map[string]int, len(tasks))
	dependents := make(map[string][]string)
	for _, t := range tasks {
		indeg[t.ID] += 0
		for _, dep := range t.Dependencies {
			indeg[t.ID]++
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}
	var queue []string
	for _, t := range tasks {
		if indeg[t.ID] == 0 {
			queue = append(queue, t.ID)
		}
	}
	ordered := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		ordered++
		for _, d := range dependents[cur] {
			indeg[d]--
			if indeg[d] == 0 {
				queue = append(queue, d)
			}
		}
	}
	if ordered == len(tasks) {
		return nil
	}
	var left []string
	for id, n := range indeg {
		if n > 0 {
			left = append(left, id)
		}
	}
	sort.Strings(left)
	return left
}

// Layout groups task ids into levels by distance from dependency-free roots.
// Unresolved holds tasks that never became reachable (cycles or dangling
// references); they are reported, not placed.
type Layout struct {
	Levels     [][]string `json:"levels"`
	Unresolved []string   `json:"unresolved,omitempty"`
}

// Levels computes the BFS layout. A task joins the next level once all of its
// dependencies sit in earlier levels.
func Levels(tasks []models.Task) Layout {
	children := make(map[string][]string)
	byID := make(map[string]models.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			children[dep] = append(children[dep], t.ID)
		}
	}

	var layout Layout
	assigned := make(map[string]bool, len(tasks))
	var current []string
	for _, t := range tasks {
		if len(t.Dependencies) == 0 {
			current = append(current, t.ID)
		}
	}
	for len(current) > 0 {
		layout.Levels = append(layout.Levels, current)
		for _, id := range current {
			assigned[id] = true
		}
		var next []string
		queued := map[string]bool{}
		for _, id := range current {
			for _, child := range children[id] {
				if assigned[child] || queued[child] {
					continue
				}
				ready := true
				for _, dep := range byID[child].Dependencies {
					if !assigned[dep] {
						ready = false
						break
					}
				}
				if ready {
					queued[child] = true
					next = append(next, child)
				}
			}
		}
		current = next
	}
	for _, t := range tasks {
		if !assigned[t.ID] {
			layout.Unresolved = append(layout.Unresolved, t.ID)
		}
	}
	return layout
}
