package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/mission-control/internal/agents"
	"github.com/example/mission-control/internal/models"
	"github.com/example/mission-control/internal/orchestrator"
	"github.com/example/mission-control/internal/store"
)

func newTestServer(t *testing.T, opts ...orchestrator.Option) (*orchestrator.Orchestrator, *httptest.Server) {
	t.Helper()
	roles := agents.DefaultRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]orchestrator.Option{orchestrator.WithRoles(roles), orchestrator.WithLogger(logger)}, opts...)
	orch := orchestrator.New(&agents.MockPlanner{Roles: roles}, agents.MockExecutor{}, agents.MockFinalizer{}, opts...)
	srv := httptest.NewServer(NewServer(orch, logger).Handler())
	t.Cleanup(srv.Close)
	return orch, srv
}

func do(t *testing.T, method, url, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, b
}

func mission(t *testing.T, b []byte) models.Mission {
	t.Helper()
	var m models.Mission
	require.NoError(t, json.Unmarshal(b, &m), string(b))
	return m
}

func TestMissionLifecycleOverHTTP(t *testing.T) {
	orch, srv := newTestServer(t)

	code, body := do(t, http.MethodPost, srv.URL+"/mission/goal", `{"goal":"Generate a React component for a multi-step form"}`)
	require.Equal(t, http.StatusAccepted, code, string(body))
	orch.Wait()

	code, body = do(t, http.MethodGet, srv.URL+"/mission", "")
	require.Equal(t, http.StatusOK, code)
	m := mission(t, body)
	require.Equal(t, models.PhaseAwaitingApproval, m.Phase)
	require.Len(t, m.Tasks, 3)

	code, body = do(t, http.MethodGet, srv.URL+"/mission/graph", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"levels":[["task-1"],["task-2"],["task-3"]]}`, string(body))

	code, body = do(t, http.MethodPatch, srv.URL+"/mission/tasks/task-3", `{"title":"Review the component"}`)
	require.Equal(t, http.StatusOK, code, string(body))
	assert.Equal(t, "Review the component", mission(t, body).Tasks[2].Title)

	code, _ = do(t, http.MethodPost, srv.URL+"/mission/approve", "")
	require.Equal(t, http.StatusAccepted, code)
	orch.Wait()

	_, body = do(t, http.MethodGet, srv.URL+"/mission", "")
	m = mission(t, body)
	assert.Equal(t, models.PhaseFinished, m.Phase)
	assert.NotEmpty(t, m.FinalReport)

	code, body = do(t, http.MethodPost, srv.URL+"/mission/approve", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, string(body), "cannot approve")

	code, _ = do(t, http.MethodPost, srv.URL+"/mission/reset", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.PhaseIdle, orch.Snapshot().Phase)
}

func TestErrorStatuses(t *testing.T) {
	orch, srv := newTestServer(t, orchestrator.WithStore(store.NewMemory()))

	code, _ := do(t, http.MethodPost, srv.URL+"/mission/goal", `{"goal":"  "}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, http.MethodPost, srv.URL+"/mission/goal", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, http.MethodPost, srv.URL+"/mission/load", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, body := do(t, http.MethodGet, srv.URL+"/mission/saved", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"saved":false}`, string(body))

	do(t, http.MethodPost, srv.URL+"/mission/goal", `{"goal":"Write a haiku"}`)
	orch.Wait()

	code, _ = do(t, http.MethodDelete, srv.URL+"/mission/tasks/task-9", "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = do(t, http.MethodPost, srv.URL+"/mission/tasks", `{"agent":"Intern"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, body = do(t, http.MethodPost, srv.URL+"/mission/tasks", `{}`)
	require.Equal(t, http.StatusCreated, code)
	var added models.Task
	require.NoError(t, json.Unmarshal(body, &added))
	assert.Equal(t, "task-2", added.ID)

	code, _ = do(t, http.MethodPatch, srv.URL+"/mission/tasks/task-2", `{"dependencies":["task-2"]}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, http.MethodPost, srv.URL+"/mission/save", "")
	assert.Equal(t, http.StatusOK, code)
	_, body = do(t, http.MethodGet, srv.URL+"/mission/saved", "")
	assert.JSONEq(t, `{"saved":true}`, string(body))
}

func TestPlanStoreMissing(t *testing.T) {
	_, srv := newTestServer(t)
	code, _ := do(t, http.MethodPost, srv.URL+"/mission/load", "")
	assert.Equal(t, http.StatusNotImplemented, code)
}

func TestCatalogEndpoints(t *testing.T) {
	_, srv := newTestServer(t)

	code, body := do(t, http.MethodGet, srv.URL+"/agents", "")
	require.Equal(t, http.StatusOK, code)
	var roles []agents.Role
	require.NoError(t, json.Unmarshal(body, &roles))
	assert.Len(t, roles, 5)

	code, body = do(t, http.MethodGet, srv.URL+"/templates", "")
	require.Equal(t, http.StatusOK, code)
	var templates []agents.Template
	require.NoError(t, json.Unmarshal(body, &templates))
	assert.Equal(t, agents.MissionTemplates, templates)
}

func TestEventsStreamStartsWithSnapshot(t *testing.T) {
	_, srv := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/mission/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	require.True(t, sc.Scan())
	assert.Equal(t, "event: mission", sc.Text())
	require.True(t, sc.Scan())
	data := strings.TrimPrefix(sc.Text(), "data: ")
	var ev orchestrator.Event
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, "mission", ev.Event)
	assert.NotEmpty(t, ev.MissionID)
}
