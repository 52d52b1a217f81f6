package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/state"
)

// fakeWorkflowRepository is an in-memory storage.WorkflowRepository, grounded
// on the teacher's use-case test style of hand-rolled repository fakes rather
// than a mocking library.
type fakeWorkflowRepository struct {
	mu      sync.Mutex
	byID    map[string]*domain.Workflow
	bySlug  map[string]*domain.Workflow
	default_ *domain.Workflow
}

func newFakeWorkflowRepository(workflows ...*domain.Workflow) *fakeWorkflowRepository {
	r := &fakeWorkflowRepository{byID: map[string]*domain.Workflow{}, bySlug: map[string]*domain.Workflow{}}
	for _, w := range workflows {
		r.byID[w.ID] = w
		if w.Slug != "" {
			r.bySlug[w.Slug] = w
		}
		if w.IsDefault {
			r.default_ = w
		}
	}
	return r
}

func (r *fakeWorkflowRepository) FindByID(ctx context.Context, id string) (*domain.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	return w, nil
}

func (r *fakeWorkflowRepository) FindBySlug(ctx context.Context, slug string) (*domain.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.bySlug[slug]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	return w, nil
}

func (r *fakeWorkflowRepository) FindDefault(ctx context.Context) (*domain.Workflow, error) {
	if r.default_ == nil {
		return nil, domain.ErrWorkflowNotFound
	}
	return r.default_, nil
}

func (r *fakeWorkflowRepository) FindActiveTriggerNodes(ctx context.Context, componentType domain.ComponentType) ([]*domain.Workflow, error) {
	return nil, nil
}

func (r *fakeWorkflowRepository) Create(ctx context.Context, w *domain.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[w.ID] = w
	return nil
}

func (r *fakeWorkflowRepository) Update(ctx context.Context, w *domain.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[w.ID] = w
	return nil
}

// fakeExecutionRepository is an in-memory storage.ExecutionRepository.
type fakeExecutionRepository struct {
	mu      sync.Mutex
	byID    map[string]*domain.Execution
	counter int
}

func newFakeExecutionRepository() *fakeExecutionRepository {
	return &fakeExecutionRepository{byID: map[string]*domain.Execution{}}
}

func (r *fakeExecutionRepository) Create(ctx context.Context, e *domain.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ExecutionID == "" {
		r.counter++
		e.ExecutionID = fmt.Sprintf("exec-%d", r.counter)
	}
	r.byID[e.ExecutionID] = e
	return nil
}

func (r *fakeExecutionRepository) Update(ctx context.Context, e *domain.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[e.ExecutionID] = e
	return nil
}

func (r *fakeExecutionRepository) FindByID(ctx context.Context, id string) (*domain.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrExecutionNotFound
	}
	return e, nil
}

func (r *fakeExecutionRepository) FindChildren(ctx context.Context, parentExecutionID string) ([]*domain.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Execution
	for _, e := range r.byID {
		if e.ParentExecutionID == parentExecutionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeExecutionRepository) FindStaleRunning(ctx context.Context, olderThan time.Time) ([]*domain.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Execution
	for _, e := range r.byID {
		if e.Status == domain.ExecutionRunning && e.StartedAt != nil && e.StartedAt.Before(olderThan) {
			out = append(out, e)
		}
	}
	return out, nil
}

// fakeLogRepository is an in-memory storage.ExecutionLogRepository.
type fakeLogRepository struct {
	mu   sync.Mutex
	rows map[string][]*domain.ExecutionLog
}

func newFakeLogRepository() *fakeLogRepository {
	return &fakeLogRepository{rows: map[string][]*domain.ExecutionLog{}}
}

func (r *fakeLogRepository) Create(ctx context.Context, l *domain.ExecutionLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[l.ExecutionID] = append(r.rows[l.ExecutionID], l)
	return nil
}

func (r *fakeLogRepository) FindByExecution(ctx context.Context, executionID string) ([]*domain.ExecutionLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.ExecutionLog{}, r.rows[executionID]...), nil
}

func (r *fakeLogRepository) FindLatestByNode(ctx context.Context, executionID, nodeID string) (*domain.ExecutionLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.ExecutionLog
	for _, l := range r.rows[executionID] {
		if l.NodeID == nodeID {
			latest = l
		}
	}
	return latest, nil
}

func (r *fakeLogRepository) LastLogTimestamp(ctx context.Context, executionID string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := r.rows[executionID]
	if len(rows) == 0 {
		return time.Time{}, nil
	}
	return rows[len(rows)-1].Timestamp, nil
}

// fakePendingTaskRepository is an in-memory storage.PendingTaskRepository.
type fakePendingTaskRepository struct {
	mu        sync.Mutex
	byID      map[string]*domain.PendingTask
	byExec    map[string]string
	idCounter int
}

func newFakePendingTaskRepository() *fakePendingTaskRepository {
	return &fakePendingTaskRepository{byID: map[string]*domain.PendingTask{}, byExec: map[string]string{}}
}

func (r *fakePendingTaskRepository) Create(ctx context.Context, t *domain.PendingTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.TaskID == "" {
		r.idCounter++
		t.TaskID = fmt.Sprintf("task-%d", r.idCounter)
	}
	r.byID[t.TaskID] = t
	r.byExec[t.ExecutionID] = t.TaskID
	return nil
}

func (r *fakePendingTaskRepository) FindByID(ctx context.Context, taskID string) (*domain.PendingTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[taskID]
	if !ok {
		return nil, fmt.Errorf("pending task %s not found", taskID)
	}
	return t, nil
}

func (r *fakePendingTaskRepository) FindByExecution(ctx context.Context, executionID string) (*domain.PendingTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byExec[executionID]
	if !ok {
		return nil, fmt.Errorf("no pending task for execution %s", executionID)
	}
	return r.byID[id], nil
}

func (r *fakePendingTaskRepository) Delete(ctx context.Context, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.byID[taskID]; ok {
		delete(r.byExec, t.ExecutionID)
	}
	delete(r.byID, taskID)
	return nil
}

// fakeStateRepository is an in-memory storage.StateRepository.
type fakeStateRepository struct {
	mu   sync.Mutex
	byID map[string]*state.State
}

func newFakeStateRepository() *fakeStateRepository {
	return &fakeStateRepository{byID: map[string]*state.State{}}
}

func (r *fakeStateRepository) Load(ctx context.Context, executionID string) (*state.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byID[executionID]; ok {
		return s, nil
	}
	return state.New(executionID), nil
}

func (r *fakeStateRepository) Save(ctx context.Context, executionID string, s *state.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[executionID] = s
	return nil
}
