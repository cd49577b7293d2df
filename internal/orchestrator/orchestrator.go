package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/example/mission-control/internal/agents"
	"github.com/example/mission-control/internal/models"
	"github.com/example/mission-control/internal/resolver"
	"github.com/example/mission-control/internal/store"
)

// Orchestrator owns a single mission and drives it from goal to final report.
// Every mutation of mission state happens under mu; gateway calls run on
// goroutines that carry the mission epoch and drop their result when the
// mission was reset underneath them.
type Orchestrator struct {
	Planner   agents.Planner
	Executor  agents.Executor
	Finalizer agents.Finalizer

	roles       *agents.Registry
	store       store.Store
	log         *slog.Logger
	now         func() time.Time
	maxParallel int
	taskTimeout time.Duration

	hub *Hub
	wg  sync.WaitGroup

	mu       sync.Mutex
	mission  models.Mission
	epoch    uint64
	ctx      context.Context
	cancel   context.CancelFunc
	running  map[string]bool
	usedIDs  map[string]bool
	nextID   int
	entryIdx map[string]int
}

type Option func(*Orchestrator)

// WithStore enables SavePlan and LoadPlan.
func WithStore(s store.Store) Option { return func(o *Orchestrator) { o.store = s } }

func WithRoles(r *agents.Registry) Option { return func(o *Orchestrator) { o.roles = r } }

func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.log = l } }

// WithMaxParallel caps concurrently running tasks. 0 means unbounded and 1
// runs tasks strictly one after another.
func WithMaxParallel(n int) Option { return func(o *Orchestrator) { o.maxParallel = n } }

// WithTaskTimeout bounds each task's execution. A timeout fails the task.
func WithTaskTimeout(d time.Duration) Option { return func(o *Orchestrator) { o.taskTimeout = d } }

func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

func New(planner agents.Planner, executor agents.Executor, finalizer agents.Finalizer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		Planner:   planner,
		Executor:  executor,
		Finalizer: finalizer,
		roles:     agents.DefaultRegistry(),
		log:       slog.Default(),
		now:       time.Now,
		hub:       NewHub(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.resetLocked()
	return o
}

// TaskPatch holds the fields an edit may change. Nil fields are left alone.
type TaskPatch struct {
	Title        *string   `json:"title,omitempty"`
	Description  *string   `json:"description,omitempty"`
	Agent        *string   `json:"agent,omitempty"`
	Dependencies *[]string `json:"dependencies,omitempty"`
}

// TaskDraft describes a task added by hand. Blank fields take defaults.
type TaskDraft struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Agent       string `json:"agent"`
}

const (
	defaultTaskTitle       = "New Task"
	defaultTaskDescription = "Define the purpose of this task."
)

// SubmitGoal records the goal and starts planning in the background.
func (o *Orchestrator) SubmitGoal(ctx context.Context, goal string) error {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return ErrBlankGoal
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.requirePhaseLocked("submit goal", models.PhaseIdle); err != nil {
		return err
	}
	o.mission.Goal = goal
	o.appendLocked(models.AgentUser, models.LogUser, goal, "", false)
	o.appendLocked(models.AgentSystem, models.LogSystem, "Objective received. Starting planning phase...", "", false)
	o.setPhaseLocked(ctx, models.PhasePlanning)
	o.goLocked(func(ctx context.Context, epoch uint64) { o.runPlanner(ctx, epoch, goal) })
	o.publishLocked()
	return nil
}

func (o *Orchestrator) runPlanner(ctx context.Context, epoch uint64, goal string) {
	tasks, err := o.Planner.Plan(ctx, goal)

	o.mu.Lock()
	defer o.mu.Unlock()
	if epoch != o.epoch {
		return
	}
	if err == nil {
		tasks, err = o.acceptPlanLocked(tasks)
	}
	if err != nil {
		o.log.WarnContext(ctx, "planning failed", "mission", o.mission.ID, "err", err)
		o.failLocked(ctx, "Error during planning: "+err.Error(), "", "")
		o.publishLocked()
		return
	}
	o.mission.Tasks = tasks
	o.appendLocked(models.AgentSystem, models.LogSystem,
		fmt.Sprintf("Planning complete. %d tasks created. Please review, edit, and approve the plan.", len(tasks)), "", false)
	o.setPhaseLocked(ctx, models.PhaseAwaitingApproval)
	o.publishLocked()
}

// acceptPlanLocked normalizes planner output into a validated task list with
// derived statuses and registers its ids.
func (o *Orchestrator) acceptPlanLocked(tasks []models.Task) ([]models.Task, error) {
	if len(tasks) == 0 {
		return nil, ErrEmptyPlan
	}
	out := make([]models.Task, 0, len(tasks))
	for i, t := range tasks {
		t = t.Clone()
		t.ID = strings.TrimSpace(t.ID)
		t.Title = strings.TrimSpace(t.Title)
		if t.Title == "" {
			return nil, fmt.Errorf("%w: task %d has no title", ErrInvalidTask, i+1)
		}
		role, ok := o.roles.Lookup(t.Agent)
		if !ok {
			return nil, fmt.Errorf("%w: %q on task %s", ErrUnknownAgent, t.Agent, t.ID)
		}
		t.Agent = role.Name
		if t.Dependencies == nil {
			t.Dependencies = []string{}
		}
		t.Status = resolver.InitialStatus(t)
		t.Error = ""
		out = append(out, t)
	}
	if err := resolver.Validate(out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTask, err)
	}
	for _, t := range out {
		o.usedIDs[t.ID] = true
	}
	return out, nil
}

// Approve freezes the plan and starts execution.
func (o *Orchestrator) Approve(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.requirePhaseLocked("approve", models.PhaseAwaitingApproval); err != nil {
		return err
	}
	if len(o.mission.Tasks) == 0 {
		return ErrEmptyPlan
	}
	if err := resolver.Validate(o.mission.Tasks); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTask, err)
	}
	now := o.now()
	o.mission.StartedAt = &now
	o.appendLocked(models.AgentSystem, models.LogSystem, "Plan approved. Starting execution...", "", false)
	o.setPhaseLocked(ctx, models.PhaseExecuting)
	o.tickLocked(ctx)
	o.publishLocked()
	return nil
}

// tickLocked advances execution: finalize when everything is done, otherwise
// start runnable tasks within the parallelism cap.
func (o *Orchestrator) tickLocked(ctx context.Context) {
	if o.mission.Phase != models.PhaseExecuting {
		return
	}
	if resolver.AllCompleted(o.mission.Tasks) {
		o.appendLocked(models.AgentSystem, models.LogSystem, "All tasks completed. Synthesizing final report...", "", false)
		o.setPhaseLocked(ctx, models.PhaseFinalizing)
		o.goLocked(o.runFinalizer)
		return
	}
	o.mission.Tasks = resolver.Promote(o.mission.Tasks)
	for _, id := range resolver.Runnable(o.mission.Tasks) {
		if o.running[id] {
			continue
		}
		if o.maxParallel > 0 && len(o.running) >= o.maxParallel {
			break
		}
		o.startLocked(ctx, id)
	}
	if len(o.running) == 0 {
		o.log.WarnContext(ctx, "execution stalled", "mission", o.mission.ID)
		o.failLocked(ctx, "Execution stalled: the remaining tasks wait on dependencies that cannot complete.", "", "")
	}
}

func (o *Orchestrator) startLocked(ctx context.Context, id string) {
	i := o.indexLocked(id)
	history := append([]models.LogEntry(nil), o.mission.Log...)
	t := &o.mission.Tasks[i]
	t.Status = models.StatusInProgress
	o.appendLocked(models.AgentSystem, models.LogSystem, fmt.Sprintf("Executing task: %q with %s.", t.Title, t.Agent), "", false)
	entryID := o.appendLocked(t.Agent, models.LogThought, "", t.ID, true)
	o.running[id] = true
	o.log.InfoContext(ctx, "task started", "mission", o.mission.ID, "task", id, "agent", t.Agent)

	req := agents.ExecutionRequest{Task: t.Clone(), Goal: o.mission.Goal, Log: history}
	appendToken := o.hub.TokenAppender(o.mission.ID)
	o.goLocked(func(ctx context.Context, epoch uint64) { o.runTask(ctx, epoch, entryID, req, appendToken) })
}

func (o *Orchestrator) runTask(ctx context.Context, epoch uint64, entryID string, req agents.ExecutionRequest, appendToken func(entryID, chunk string)) {
	if o.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.taskTimeout)
		defer cancel()
	}
	stream, err := o.Executor.Execute(ctx, req)
	if err == nil && stream == nil {
		err = errors.New("executor returned no stream")
	}
	if err == nil {
		for d := range stream {
			if d.Err != nil {
				err = d.Err
				continue
			}
			if o.appendChunk(epoch, entryID, d.Text) {
				appendToken(entryID, d.Text)
			}
		}
		// the stream may close without its error delta once ctx is done
		if err == nil {
			err = ctx.Err()
		}
	}
	if o.taskTimeout > 0 && errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("timed out after %s", o.taskTimeout)
	}
	o.finishTask(ctx, epoch, req.Task.ID, entryID, err)
}

func (o *Orchestrator) appendChunk(epoch uint64, entryID, text string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if epoch != o.epoch {
		return false
	}
	idx, ok := o.entryIdx[entryID]
	if !ok {
		return false
	}
	o.mission.Log[idx].Content += text
	return true
}

func (o *Orchestrator) finishTask(ctx context.Context, epoch uint64, taskID, entryID string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if epoch != o.epoch {
		return
	}
	delete(o.running, taskID)
	if idx, ok := o.entryIdx[entryID]; ok {
		o.mission.Log[idx].IsStreaming = false
	}
	o.hub.Flush(o.mission.ID)

	i := o.indexLocked(taskID)
	if i < 0 {
		o.tickLocked(ctx)
		o.publishLocked()
		return
	}
	t := &o.mission.Tasks[i]
	if err != nil {
		t.Status = models.StatusError
		t.Error = err.Error()
		o.log.WarnContext(ctx, "task failed", "mission", o.mission.ID, "task", taskID, "agent", t.Agent, "err", err)
		o.failLocked(ctx, fmt.Sprintf("Task %q failed: %v", t.Title, err), t.Agent, t.ID)
		o.publishLocked()
		return
	}
	t.Status = models.StatusCompleted
	o.log.InfoContext(ctx, "task completed", "mission", o.mission.ID, "task", taskID, "agent", t.Agent)
	o.mission.Tasks = resolver.Promote(o.mission.Tasks)
	// publish the promotion before the tick starts the promoted tasks
	o.publishLocked()
	o.tickLocked(ctx)
	o.publishLocked()
}

func (o *Orchestrator) runFinalizer(ctx context.Context, epoch uint64) {
	o.mu.Lock()
	if epoch != o.epoch {
		o.mu.Unlock()
		return
	}
	goal := o.mission.Goal
	var history []models.LogEntry
	for _, e := range o.mission.Log {
		if e.Type != models.LogUser {
			history = append(history, e)
		}
	}
	o.mu.Unlock()

	report, err := o.Finalizer.Finalize(ctx, goal, history)

	o.mu.Lock()
	defer o.mu.Unlock()
	if epoch != o.epoch || o.mission.Phase != models.PhaseFinalizing {
		return
	}
	if err != nil {
		o.log.WarnContext(ctx, "finalization failed", "mission", o.mission.ID, "err", err)
		o.failLocked(ctx, "Error during finalization: "+err.Error(), "", "")
		o.publishLocked()
		return
	}
	now := o.now()
	o.mission.FinishedAt = &now
	o.mission.FinalReport = report
	o.appendLocked(models.AgentSystem, models.LogFinalReport, report, "", false)
	o.setPhaseLocked(ctx, models.PhaseFinished)
	o.hub.StopTokenAppender(o.mission.ID)
	o.publishLocked()
}

// RetryTask re-queues a failed or completed task.
func (o *Orchestrator) RetryTask(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.requirePhaseLocked("retry", models.PhaseExecuting, models.PhaseError); err != nil {
		return err
	}
	i := o.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	t := &o.mission.Tasks[i]
	if t.Status != models.StatusError && t.Status != models.StatusCompleted {
		return fmt.Errorf("%w: task %s is %s", ErrNotRetryable, id, t.Status)
	}
	rerun := t.Status == models.StatusCompleted
	t.Status = models.StatusPending
	t.Error = ""
	o.appendLocked(models.AgentSystem, models.LogSystem, fmt.Sprintf("Retrying task: %q.", t.Title), "", false)
	if rerun {
		o.mission.Tasks = resolver.Demote(o.mission.Tasks)
	}
	o.resumeLocked(ctx)
	o.publishLocked()
	o.tickLocked(ctx)
	o.publishLocked()
	return nil
}

// EditTask changes a task. Before approval any field may change; afterwards
// only a failed task can be edited, and the edit re-queues it.
func (o *Orchestrator) EditTask(ctx context.Context, id string, patch TaskPatch) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	i := o.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if o.mission.Phase == models.PhaseAwaitingApproval {
		return o.editPlannedLocked(i, patch)
	}
	cur := o.mission.Tasks[i]
	if cur.Status != models.StatusError {
		return fmt.Errorf("%w: task %s is %s", ErrNotEditable, id, cur.Status)
	}
	if patch.Dependencies != nil {
		return fmt.Errorf("%w: dependencies are fixed once the plan is approved", ErrNotEditable)
	}
	t := cur.Clone()
	if err := o.applyPatch(&t, patch); err != nil {
		return err
	}
	t.Status = models.StatusPending
	t.Error = ""
	o.mission.Tasks[i] = t
	o.appendLocked(models.AgentSystem, models.LogSystem, fmt.Sprintf("Task %q updated and queued for retry.", t.Title), "", false)
	o.resumeLocked(ctx)
	o.publishLocked()
	o.tickLocked(ctx)
	o.publishLocked()
	return nil
}

func (o *Orchestrator) editPlannedLocked(i int, patch TaskPatch) error {
	t := o.mission.Tasks[i].Clone()
	if err := o.applyPatch(&t, patch); err != nil {
		return err
	}
	if patch.Dependencies != nil {
		t.Dependencies = dedupe(*patch.Dependencies)
	}
	trial := models.CloneTasks(o.mission.Tasks)
	trial[i] = t
	if err := resolver.Validate(trial); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTask, err)
	}
	trial[i].Status = resolver.InitialStatus(t)
	o.mission.Tasks = trial
	o.publishLocked()
	return nil
}

func (o *Orchestrator) applyPatch(t *models.Task, patch TaskPatch) error {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return fmt.Errorf("%w: title is blank", ErrInvalidTask)
		}
		t.Title = title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Agent != nil {
		role, ok := o.roles.Lookup(*patch.Agent)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownAgent, *patch.Agent)
		}
		t.Agent = role.Name
	}
	return nil
}

// AddTask appends a hand-written task to the plan under review.
func (o *Orchestrator) AddTask(ctx context.Context, draft TaskDraft) (models.Task, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.requirePhaseLocked("add task", models.PhaseAwaitingApproval); err != nil {
		return models.Task{}, err
	}
	t := models.Task{
		Title:        defaultTaskTitle,
		Description:  defaultTaskDescription,
		Agent:        o.roles.Default(),
		Status:       models.StatusPending,
		Dependencies: []string{},
	}
	if s := strings.TrimSpace(draft.Title); s != "" {
		t.Title = s
	}
	if s := strings.TrimSpace(draft.Description); s != "" {
		t.Description = s
	}
	if strings.TrimSpace(draft.Agent) != "" {
		role, ok := o.roles.Lookup(draft.Agent)
		if !ok {
			return models.Task{}, fmt.Errorf("%w: %q", ErrUnknownAgent, draft.Agent)
		}
		t.Agent = role.Name
	}
	t.ID = o.newTaskIDLocked()
	o.mission.Tasks = append(o.mission.Tasks, t)
	o.publishLocked()
	return t.Clone(), nil
}

// DeleteTask removes a task from the plan under review and drops it from
// every other task's dependencies.
func (o *Orchestrator) DeleteTask(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.requirePhaseLocked("delete task", models.PhaseAwaitingApproval); err != nil {
		return err
	}
	i := o.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	rest := make([]models.Task, 0, len(o.mission.Tasks)-1)
	for j, t := range o.mission.Tasks {
		if j == i {
			continue
		}
		t = t.Clone()
		deps := t.Dependencies[:0]
		for _, d := range t.Dependencies {
			if d != id {
				deps = append(deps, d)
			}
		}
		if len(deps) != len(t.Dependencies) {
			t.Dependencies = deps
			t.Status = resolver.InitialStatus(t)
		}
		rest = append(rest, t)
	}
	o.mission.Tasks = rest
	o.publishLocked()
	return nil
}

// Reset abandons the mission from any phase. In-flight gateway calls are
// cancelled and their late results are ignored.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	old := o.mission.ID
	o.resetLocked()
	o.log.Info("mission reset", "previous", old, "mission", o.mission.ID)
	o.publishLocked()
}

func (o *Orchestrator) resetLocked() {
	if o.cancel != nil {
		o.cancel()
	}
	if o.mission.ID != "" {
		o.hub.StopTokenAppender(o.mission.ID)
	}
	o.epoch++
	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.mission = models.Mission{
		ID:    uuid.NewString(),
		Phase: models.PhaseIdle,
		Tasks: []models.Task{},
		Log:   []models.LogEntry{},
	}
	o.running = map[string]bool{}
	o.usedIDs = map[string]bool{}
	o.entryIdx = map[string]int{}
	o.nextID = 0
}

// SavePlan persists the plan under review.
func (o *Orchestrator) SavePlan(ctx context.Context) error {
	if o.store == nil {
		return ErrNoStore
	}
	o.mu.Lock()
	if err := o.requirePhaseLocked("save plan", models.PhaseAwaitingApproval); err != nil {
		o.mu.Unlock()
		return err
	}
	plan := models.Plan{Goal: o.mission.Goal, Tasks: models.CloneTasks(o.mission.Tasks)}
	epoch := o.epoch
	o.mu.Unlock()

	b, err := store.EncodePlan(plan)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	if err := o.store.Put(ctx, store.PlanKey, b); err != nil {
		return fmt.Errorf("save plan: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if epoch == o.epoch {
		o.appendLocked(models.AgentSystem, models.LogSystem, "Mission plan saved.", "", false)
		o.publishLocked()
	}
	return nil
}

// LoadPlan restores the saved plan into an idle mission. A saved plan that
// fails validation is deleted and reported.
func (o *Orchestrator) LoadPlan(ctx context.Context) error {
	if o.store == nil {
		return ErrNoStore
	}
	o.mu.Lock()
	if err := o.requirePhaseLocked("load plan", models.PhaseIdle); err != nil {
		o.mu.Unlock()
		return err
	}
	epoch := o.epoch
	o.mu.Unlock()

	b, err := o.store.Get(ctx, store.PlanKey)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNoSavedPlan
	}
	if err != nil {
		return fmt.Errorf("load plan: %w", err)
	}
	plan, err := store.DecodePlan(b)
	if err == nil {
		err = o.checkSaved(plan)
	}
	if err != nil {
		if derr := o.store.Delete(ctx, store.PlanKey); derr != nil {
			o.log.WarnContext(ctx, "discard saved plan", "err", derr)
		}
		o.mu.Lock()
		defer o.mu.Unlock()
		if epoch == o.epoch {
			o.appendLocked(models.AgentSystem, models.LogError, "Saved plan was malformed and has been discarded: "+err.Error(), "", false)
			o.publishLocked()
		}
		return fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if epoch != o.epoch || o.mission.Phase != models.PhaseIdle {
		return fmt.Errorf("%w: mission changed while loading", ErrInvalidPhase)
	}
	o.mission.Goal = plan.Goal
	o.mission.Tasks = plan.Tasks
	for _, t := range plan.Tasks {
		o.usedIDs[t.ID] = true
	}
	o.appendLocked(models.AgentSystem, models.LogSystem, fmt.Sprintf("Loaded saved plan with %d tasks.", len(plan.Tasks)), "", false)
	o.setPhaseLocked(ctx, models.PhaseAwaitingApproval)
	o.publishLocked()
	return nil
}

// checkSaved accepts only plans this orchestrator could have saved: every
// task titled, assigned to a known role and carrying its pre-approval status.
func (o *Orchestrator) checkSaved(p models.Plan) error {
	if strings.TrimSpace(p.Goal) == "" {
		return errors.New("goal is blank")
	}
	for _, t := range p.Tasks {
		if strings.TrimSpace(t.Title) == "" {
			return fmt.Errorf("task %q has no title", t.ID)
		}
		if _, ok := o.roles.Lookup(t.Agent); !ok {
			return fmt.Errorf("task %q has unknown agent %q", t.ID, t.Agent)
		}
		if t.Status != resolver.InitialStatus(t) {
			return fmt.Errorf("task %q has status %q", t.ID, t.Status)
		}
	}
	return resolver.Validate(p.Tasks)
}

// HasSavedPlan reports whether a plan is stored.
func (o *Orchestrator) HasSavedPlan(ctx context.Context) (bool, error) {
	if o.store == nil {
		return false, nil
	}
	_, err := o.store.Get(ctx, store.PlanKey)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Snapshot returns a deep copy of the mission.
func (o *Orchestrator) Snapshot() models.Mission {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Graph lays the current tasks out by dependency level.
func (o *Orchestrator) Graph() resolver.Layout {
	o.mu.Lock()
	defer o.mu.Unlock()
	return resolver.Levels(o.mission.Tasks)
}

// Roles exposes the registry tasks are assigned from.
func (o *Orchestrator) Roles() *agents.Registry { return o.roles }

// Subscribe returns a channel carrying JSON-encoded Event payloads. The
// caller must call the returned unsubscribe func when done.
func (o *Orchestrator) Subscribe() (<-chan []byte, func()) {
	return o.hub.Subscribe()
}

// Wait blocks until no planner, executor or finalizer call is in flight.
func (o *Orchestrator) Wait() { o.wg.Wait() }

func (o *Orchestrator) snapshotLocked() models.Mission {
	m := o.mission
	m.Tasks = models.CloneTasks(o.mission.Tasks)
	m.Log = append([]models.LogEntry(nil), o.mission.Log...)
	if o.mission.StartedAt != nil {
		t := *o.mission.StartedAt
		m.StartedAt = &t
	}
	if o.mission.FinishedAt != nil {
		t := *o.mission.FinishedAt
		m.FinishedAt = &t
	}
	return m
}

func (o *Orchestrator) publishLocked() {
	o.hub.Publish(Event{Event: "mission", MissionID: o.mission.ID, Payload: o.snapshotLocked()})
}

// goLocked runs fn on a tracked goroutine bound to the current epoch.
func (o *Orchestrator) goLocked(fn func(ctx context.Context, epoch uint64)) {
	ctx, epoch := o.ctx, o.epoch
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn(ctx, epoch)
	}()
}

func (o *Orchestrator) requirePhaseLocked(op string, allowed ...models.Phase) error {
	for _, p := range allowed {
		if o.mission.Phase == p {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidPhase, op, o.mission.Phase)
}

func (o *Orchestrator) setPhaseLocked(ctx context.Context, p models.Phase) {
	if o.mission.Phase == p {
		return
	}
	o.log.InfoContext(ctx, "phase", "mission", o.mission.ID, "from", o.mission.Phase, "to", p)
	o.mission.Phase = p
}

// failLocked records a mission-level failure and moves to ERROR.
func (o *Orchestrator) failLocked(ctx context.Context, msg, agent, taskID string) {
	if agent == "" {
		agent = models.AgentSystem
	}
	o.mission.Error = msg
	o.appendLocked(agent, models.LogError, msg, taskID, false)
	o.setPhaseLocked(ctx, models.PhaseError)
}

// resumeLocked takes the mission out of ERROR once no task is failed.
func (o *Orchestrator) resumeLocked(ctx context.Context) {
	if o.mission.Phase != models.PhaseError {
		return
	}
	for _, t := range o.mission.Tasks {
		if t.Status == models.StatusError {
			return
		}
	}
	o.mission.Error = ""
	o.setPhaseLocked(ctx, models.PhaseExecuting)
}

func (o *Orchestrator) appendLocked(agent string, typ models.LogType, content, taskID string, streaming bool) string {
	e := models.LogEntry{
		ID:          ulid.Make().String(),
		Timestamp:   o.now(),
		Agent:       agent,
		Type:        typ,
		Content:     content,
		IsStreaming: streaming,
		TaskID:      taskID,
	}
	o.entryIdx[e.ID] = len(o.mission.Log)
	o.mission.Log = append(o.mission.Log, e)
	return e.ID
}

func (o *Orchestrator) indexLocked(id string) int {
	for i, t := range o.mission.Tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// newTaskIDLocked issues the next task-N id never used in this mission.
func (o *Orchestrator) newTaskIDLocked() string {
	for {
		o.nextID++
		id := fmt.Sprintf("task-%d", o.nextID)
		if !o.usedIDs[id] {
			o.usedIDs[id] = true
			return id
		}
	}
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
