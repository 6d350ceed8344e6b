package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nexuscrm/workflow/internal/domain/models"
	"github.com/nexuscrm/workflow/internal/domain/ports"
	"github.com/nexuscrm/workflow/internal/infrastructure/memory"
	"github.com/nexuscrm/workflow/pkg/constants"
	apperrors "github.com/nexuscrm/workflow/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteTask_RequiresAction(t *testing.T) {
	f := newFixture(t)
	def := f.definition(linearGraph)
	inst := f.start(def.ID, CreateInstanceRequest{AssignedTo: "alice"})

	_, err := f.sm.Tasks.CompleteTask(f.ctx, f.user("alice"), f.tasks(inst.ID)[0].ID, CompleteTaskRequest{})
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.sm.Tasks.CompleteTask(f.ctx, f.user("alice"), "missing", CompleteTaskRequest{Action: "ok"})
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

// pendingSnapshotStore answers GetTask from copies taken while the tasks
// were pending, which is what a caller racing another completion reads.
type pendingSnapshotStore struct {
	*memory.Store
	snapshot map[string]models.WorkflowTask
}

func (s *pendingSnapshotStore) GetTask(ctx context.Context, id string) (*models.WorkflowTask, error) {
	if task, ok := s.snapshot[id]; ok {
		cp := task
		return &cp, nil
	}
	return s.Store.GetTask(ctx, id)
}

func TestCompleteTask_ConcurrentCompletionsOnlyOneWins(t *testing.T) {
	stale := &pendingSnapshotStore{snapshot: map[string]models.WorkflowTask{}}
	f := newFixtureWith(t, func(store *memory.Store) ports.Store {
		stale.Store = store
		return stale
	})
	def := f.definition(linearGraph)
	inst := f.start(def.ID, CreateInstanceRequest{AssignedTo: "alice"})
	task := f.tasks(inst.ID)[0]
	stale.snapshot[task.ID] = *task

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.sm.Tasks.CompleteTask(f.ctx, f.user("alice"), task.ID, CompleteTaskRequest{
				Action:   "approve",
				TaskData: map[string]interface{}{"caller": i},
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, apperrors.KindInvalidState, apperrors.KindOf(err))
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, countAction(f.actions(inst.ID), "TaskCompleted:approve"))
	assert.Equal(t, models.InstanceStatusCompleted, f.instance(inst.ID).Status)
}

func TestCompleteTask_StaleReadDoesNotOverwrite(t *testing.T) {
	stale := &pendingSnapshotStore{snapshot: map[string]models.WorkflowTask{}}
	f := newFixtureWith(t, func(store *memory.Store) ports.Store {
		stale.Store = store
		return stale
	})
	def := f.definition(timeoutGraph)
	inst := f.start(def.ID, CreateInstanceRequest{AssignedTo: "finance"})
	task := f.tasks(inst.ID)[0]
	stale.snapshot[task.ID] = *task
	f.store.SetRoles("bob", "finance")
	f.store.SetRoles("carol", "finance")

	_, err := f.sm.Tasks.CompleteTask(f.ctx, f.user("bob"), task.ID, CompleteTaskRequest{Action: "approve"})
	require.NoError(t, err)

	require.Equal(t, "t2", f.instance(inst.ID).CurrentState, "the instance is still active at the next task")

	_, err = f.sm.Tasks.CompleteTask(f.ctx, f.user("carol"), task.ID, CompleteTaskRequest{Action: "reject"})
	assert.Equal(t, apperrors.KindInvalidState, apperrors.KindOf(err))
	assert.Equal(t, "t2", f.instance(inst.ID).CurrentState)

	stored, err := f.store.GetTask(f.ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", stored.CompletedBy)
	assert.Equal(t, "approve", stored.Action)
	assert.NotContains(t, f.actions(inst.ID), "TaskCompleted:reject")
}

func TestTaskAssigneeFromNodeConfig(t *testing.T) {
	f := newFixture(t)
	def := f.definition(`{
	  "nodes": [
	    {"id": "s1", "type": "start"},
	    {"id": "t1", "name": "Legal review", "type": "task",
	     "config": {"assignTo": "legal", "instructions": "Check the contract"}},
	    {"id": "e1", "type": "end"}
	  ],
	  "connections": [
	    {"sourceNodeId": "s1", "targetNodeId": "t1"},
	    {"sourceNodeId": "t1", "targetNodeId": "e1"}
	  ]
	}`)
	due := f.clock.Add(48 * time.Hour)
	inst := f.start(def.ID, CreateInstanceRequest{AssignedTo: "alice", Priority: models.PriorityHigh, DueDate: &due})

	task := f.tasks(inst.ID)[0]
	assert.Equal(t, "legal", task.AssignedTo)
	assert.Equal(t, "Check the contract", task.Description)
	assert.Equal(t, models.PriorityHigh, task.Priority)
	require.NotNil(t, task.DueDate)
	assert.True(t, due.Equal(*task.DueDate))
}

func TestReassignTask(t *testing.T) {
	f := newFixture(t)
	def := f.definition(linearGraph)
	inst := f.start(def.ID, CreateInstanceRequest{AssignedTo: "alice"})
	task := f.tasks(inst.ID)[0]

	_, err := f.sm.Tasks.ReassignTask(f.ctx, f.user("alice"), task.ID, ReassignTaskRequest{AssignedTo: "bob"})
	assert.Equal(t, apperrors.KindUnauthorized, apperrors.KindOf(err), "the assignee alone may not reassign")

	_, err = f.sm.Tasks.ReassignTask(f.ctx, f.owner, task.ID, ReassignTaskRequest{})
	assert.True(t, apperrors.IsValidation(err))

	f.grant(def.ID, "lead", models.PermissionReassign)
	got, err := f.sm.Tasks.ReassignTask(f.ctx, f.user("lead"), task.ID, ReassignTaskRequest{AssignedTo: "bob", Reason: "vacation"})
	require.NoError(t, err)
	assert.Equal(t, "bob", got.AssignedTo)

	entries, err := f.store.ListHistory(f.ctx, inst.ID)
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, constants.ActionTaskReassigned, last.Action)
	assert.Equal(t, "alice", last.ActionData["from"])
	assert.Equal(t, "bob", last.ActionData["to"])

	_, err = f.sm.Tasks.CompleteTask(f.ctx, f.user("alice"), task.ID, CompleteTaskRequest{Action: "approve"})
	assert.Equal(t, apperrors.KindUnauthorized, apperrors.KindOf(err))
	_, err = f.sm.Tasks.CompleteTask(f.ctx, f.user("bob"), task.ID, CompleteTaskRequest{Action: "approve"})
	require.NoError(t, err)

	_, err = f.sm.Tasks.ReassignTask(f.ctx, f.owner, task.ID, ReassignTaskRequest{AssignedTo: "carol"})
	assert.Equal(t, apperrors.KindInvalidState, apperrors.KindOf(err), "only pending tasks move")
}

func TestPendingAndOverdueTasks(t *testing.T) {
	f := newFixture(t)
	def := f.definition(linearGraph)
	f.store.SetRoles("bob", "finance")

	soon := f.clock.Add(time.Hour)
	later := f.clock.Add(72 * time.Hour)
	mine := f.start(def.ID, CreateInstanceRequest{AssignedTo: "bob", DueDate: &later})
	role := f.start(def.ID, CreateInstanceRequest{AssignedTo: "finance", DueDate: &soon, Priority: models.PriorityUrgent})
	f.start(def.ID, CreateInstanceRequest{AssignedTo: "alice", DueDate: &soon})

	pending, err := f.sm.Tasks.PendingTasks(f.ctx, f.user("bob"))
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, role.ID, pending[0].InstanceID, "earliest due date first")
	assert.Equal(t, mine.ID, pending[1].InstanceID)

	overdue, err := f.sm.Tasks.OverdueTasks(f.ctx, f.user("bob"), f.clock.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, role.ID, overdue[0].InstanceID)

	other, err := f.sm.Tasks.PendingTasks(f.ctx, &models.UserSession{ID: "bob", TenantID: "globex"})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestAllTasksTerminal(t *testing.T) {
	f := newFixture(t)
	def := f.definition(linearGraph)
	inst := f.start(def.ID, CreateInstanceRequest{AssignedTo: "alice"})

	done, err := f.sm.Tasks.AllTasksTerminal(f.ctx, "no-tasks")
	require.NoError(t, err)
	assert.False(t, done)

	done, err = f.sm.Tasks.AllTasksTerminal(f.ctx, inst.ID)
	require.NoError(t, err)
	assert.False(t, done)

	n, err := f.sm.Tasks.CancelPendingTasks(f.ctx, inst.ID, "owner")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	done, err = f.sm.Tasks.AllTasksTerminal(f.ctx, inst.ID)
	require.NoError(t, err)
	assert.True(t, done)
}
