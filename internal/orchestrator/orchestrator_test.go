package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/core/internal/cache"
	"github.com/flowforge/core/internal/component"
	"github.com/flowforge/core/internal/config"
	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/errorcode"
	"github.com/flowforge/core/internal/eventbus"
	"github.com/flowforge/core/internal/graphcache"
	"github.com/flowforge/core/internal/queue"
	"github.com/flowforge/core/internal/spawn"
	"github.com/flowforge/core/internal/state"
)

// testHarness wires an Orchestrator against the in-memory fakes declared in
// fakes_test.go plus a miniredis-backed cache/queue, matching the teacher's
// own `newBunDBWithMock`-style per-test fixture builder.
type testHarness struct {
	orch       *Orchestrator
	workflows  *fakeWorkflowRepository
	executions *fakeExecutionRepository
	logs       *fakeLogRepository
	pending    *fakePendingTaskRepository
	states     *fakeStateRepository
	registry   *component.Registry
}

func newTestHarness(t *testing.T, workflows ...*domain.Workflow) *testHarness {
	t.Helper()

	s := miniredis.RunT(t)
	redisCache, err := cache.NewRedisCache(config.RedisConfig{URL: "redis://" + s.Addr(), PoolSize: 10})
	require.NoError(t, err)
	t.Cleanup(func() { redisCache.Close() })

	wfRepo := newFakeWorkflowRepository(workflows...)
	execRepo := newFakeExecutionRepository()
	logRepo := newFakeLogRepository()
	pendingRepo := newFakePendingTaskRepository()
	stateRepo := newFakeStateRepository()

	q := queue.New(redisCache.Client())
	registry := component.NewRegistry()

	orch := New(Deps{
		Workflows:    wfRepo,
		Executions:   execRepo,
		Logs:         logRepo,
		PendingTasks: pendingRepo,
		States:       stateRepo,
		Redis:        redisCache,
		Topologies:   graphcache.New(0),
		Components:   registry,
		Queue:        q,
		Bus:          eventbus.New(nil),
		Spawner:      spawn.New(execRepo, wfRepo, q),
		ZombieConfig: config.ZombieConfig{},
	})

	return &testHarness{
		orch:       orch,
		workflows:  wfRepo,
		executions: execRepo,
		logs:       logRepo,
		pending:    pendingRepo,
		states:     stateRepo,
		registry:   registry,
	}
}

// constOutputFactory is a fake Factory that unconditionally returns output
// as this node's result, with no dependency on upstream state.
func constOutputFactory(output interface{}) component.FactoryFunc {
	return func(node *domain.Node) (component.Runner, error) {
		return func(_ context.Context, _ *state.State) (component.Delta, error) {
			return component.Delta{
				"output":       output,
				"node_outputs": map[string]interface{}{node.ID: map[string]interface{}{"output": output}},
			}, nil
		}, nil
	}
}

// doubleSourceFactory reads sourceNode's "output" field and doubles it.
func doubleSourceFactory(sourceNode string) component.FactoryFunc {
	return func(node *domain.Node) (component.Runner, error) {
		return func(_ context.Context, s *state.State) (component.Delta, error) {
			srcOut, _ := s.NodeOutputs[sourceNode].(map[string]interface{})
			val, _ := srcOut["output"].(float64)
			result := val * 2
			return component.Delta{
				"output":       result,
				"node_outputs": map[string]interface{}{node.ID: map[string]interface{}{"output": result}},
			}, nil
		}, nil
	}
}

// alwaysTransientErrorFactory returns a non-terminal coded error every time,
// for exercising retry-exhaustion.
func alwaysTransientErrorFactory() component.FactoryFunc {
	return func(node *domain.Node) (component.Runner, error) {
		return func(_ context.Context, _ *state.State) (component.Delta, error) {
			return nil, errorcode.New(errorcode.ProviderError, fmt.Errorf("node %s: simulated provider failure", node.ID))
		}, nil
	}
}

// TestExecuteNodeJob_LinearSuccess drives spec.md §8 Scenario A: A(entry) ->
// B, where B's output is computed from A's.
func TestExecuteNodeJob_LinearSuccess(t *testing.T) {
	ct := domain.ComponentType("test_const")
	ctDouble := domain.ComponentType("test_double")

	wf := &domain.Workflow{
		ID:   "wf-1",
		Slug: "linear",
		Name: "linear",
		Nodes: []*domain.Node{
			{ID: "A", WorkflowID: "wf-1", ComponentType: ct, IsEntryPoint: true},
			{ID: "B", WorkflowID: "wf-1", ComponentType: ctDouble},
		},
		Edges: []*domain.Edge{
			{ID: "e1", WorkflowID: "wf-1", SourceNodeID: "A", TargetNodeID: "B", EdgeType: domain.EdgeDirect},
		},
	}

	h := newTestHarness(t, wf)
	require.NoError(t, h.registry.Register(ct, constOutputFactory(5.0)))
	require.NoError(t, h.registry.Register(ctDouble, doubleSourceFactory("A")))

	ctx := context.Background()
	exec, err := h.orch.CreateAndStartExecution(ctx, wf.ID, "", nil, "", "", "")
	require.NoError(t, err)

	require.NoError(t, h.orch.StartExecution(ctx, exec.ExecutionID))
	require.NoError(t, h.orch.ExecuteNodeJob(ctx, exec.ExecutionID, "A", 0))
	require.NoError(t, h.orch.ExecuteNodeJob(ctx, exec.ExecutionID, "B", 0))

	final, err := h.executions.FindByID(ctx, exec.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionCompleted, final.Status)

	if len(final.FinalOutput) > 0 {
		var output interface{}
		require.NoError(t, json.Unmarshal(final.FinalOutput, &output))
		assert.Equal(t, 10.0, output)
	}

	logs, err := h.logs.FindByExecution(ctx, exec.ExecutionID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "A", logs[0].NodeID)
	assert.Equal(t, domain.LogSuccess, logs[0].Status)
	assert.Equal(t, "B", logs[1].NodeID)
	assert.Equal(t, domain.LogSuccess, logs[1].Status)

	st, err := h.states.Load(ctx, exec.ExecutionID)
	require.NoError(t, err)
	bOut, _ := st.NodeOutputs["B"].(map[string]interface{})
	assert.Equal(t, 10.0, bOut["output"])
}

// TestExecuteNodeJob_HumanConfirmationResume drives spec.md §8 Scenario C:
// A -> confirm(human_confirmation, interrupt_before=true) -> B. The
// execution suspends with a PendingTask, then resumes once confirmed.
func TestExecuteNodeJob_HumanConfirmationResume(t *testing.T) {
	ctA := domain.ComponentType("test_const")

	wf := &domain.Workflow{
		ID:   "wf-2",
		Slug: "confirm-flow",
		Name: "confirm-flow",
		Nodes: []*domain.Node{
			{ID: "A", WorkflowID: "wf-2", ComponentType: ctA, IsEntryPoint: true},
			{
				ID: "confirm", WorkflowID: "wf-2", ComponentType: domain.ComponentHumanConfirmation,
				InterruptBefore: true,
				ComponentConfig: &domain.ComponentConfig{ComponentType: domain.ComponentHumanConfirmation, SystemPrompt: "Proceed?"},
			},
			{ID: "B", WorkflowID: "wf-2", ComponentType: ctA},
		},
		Edges: []*domain.Edge{
			{ID: "e1", WorkflowID: "wf-2", SourceNodeID: "A", TargetNodeID: "confirm", EdgeType: domain.EdgeDirect},
			{ID: "e2", WorkflowID: "wf-2", SourceNodeID: "confirm", TargetNodeID: "B", EdgeType: domain.EdgeDirect},
		},
	}

	h := newTestHarness(t, wf)
	require.NoError(t, h.registry.Register(ctA, constOutputFactory(1.0)))
	require.NoError(t, h.registry.Register(domain.ComponentHumanConfirmation, component.HumanConfirmationFactory{}))

	ctx := context.Background()
	exec, err := h.orch.CreateAndStartExecution(ctx, wf.ID, "", nil, "", "", "")
	require.NoError(t, err)

	require.NoError(t, h.orch.StartExecution(ctx, exec.ExecutionID))
	require.NoError(t, h.orch.ExecuteNodeJob(ctx, exec.ExecutionID, "A", 0))
	require.NoError(t, h.orch.ExecuteNodeJob(ctx, exec.ExecutionID, "confirm", 0))

	interrupted, err := h.executions.FindByID(ctx, exec.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionInterrupted, interrupted.Status)

	task, err := h.pending.FindByExecution(ctx, exec.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, "confirm", task.NodeID)
	assert.Equal(t, "Proceed?", task.Prompt)

	require.NoError(t, h.orch.ResumeExecution(ctx, exec.ExecutionID, "yes"))
	require.NoError(t, h.orch.ExecuteNodeJob(ctx, exec.ExecutionID, "confirm", 0))

	st, err := h.states.Load(ctx, exec.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, component.RouteConfirmed, st.Route)

	require.NoError(t, h.orch.ExecuteNodeJob(ctx, exec.ExecutionID, "B", 0))

	final, err := h.executions.FindByID(ctx, exec.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionCompleted, final.Status)

	_, err = h.pending.FindByExecution(ctx, exec.ExecutionID)
	assert.Error(t, err, "pending task should be deleted on resume")
}

// TestExecuteNodeJob_RetryExhaustion drives spec.md §8 Scenario E: a node
// with max_retries=2 that always fails transiently produces three attempts
// (retry_count 0, 1, 2), all failed, and the execution ends failed.
func TestExecuteNodeJob_RetryExhaustion(t *testing.T) {
	ct := domain.ComponentType("test_always_fails")

	wf := &domain.Workflow{
		ID:   "wf-3",
		Slug: "retry-exhaustion",
		Name: "retry-exhaustion",
		Nodes: []*domain.Node{
			{
				ID: "X", WorkflowID: "wf-3", ComponentType: ct, IsEntryPoint: true,
				ComponentConfig: &domain.ComponentConfig{ComponentType: ct, MaxRetries: 2},
			},
		},
	}

	h := newTestHarness(t, wf)
	require.NoError(t, h.registry.Register(ct, alwaysTransientErrorFactory()))

	ctx := context.Background()
	exec, err := h.orch.CreateAndStartExecution(ctx, wf.ID, "", nil, "", "", "")
	require.NoError(t, err)

	require.NoError(t, h.orch.StartExecution(ctx, exec.ExecutionID))
	require.NoError(t, h.orch.ExecuteNodeJob(ctx, exec.ExecutionID, "X", 0))
	require.NoError(t, h.orch.ExecuteNodeJob(ctx, exec.ExecutionID, "X", 1))
	require.NoError(t, h.orch.ExecuteNodeJob(ctx, exec.ExecutionID, "X", 2))

	logs, err := h.logs.FindByExecution(ctx, exec.ExecutionID)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	for i, l := range logs {
		assert.Equal(t, i, l.RetryCount)
		assert.Equal(t, domain.LogFailed, l.Status)
		assert.Equal(t, string(errorcode.ProviderError), l.ErrorCode)
	}

	final, err := h.executions.FindByID(ctx, exec.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionFailed, final.Status)
	assert.Contains(t, final.ErrorMessage, string(errorcode.ProviderError))
}
