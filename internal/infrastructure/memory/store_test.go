package memory

import (
	"context"
	"testing"
	"time"

	"github.com/nexuscrm/workflow/internal/domain/models"
	apperrors "github.com/nexuscrm/workflow/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_UpdateInstanceCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.CreateInstance(ctx, &models.WorkflowInstance{ID: "i1", Status: models.InstanceStatusActive}))

	first, err := s.GetInstance(ctx, "i1")
	require.NoError(t, err)
	second, err := s.GetInstance(ctx, "i1")
	require.NoError(t, err)

	first.Status = models.InstanceStatusPaused
	require.NoError(t, s.UpdateInstance(ctx, first))
	assert.Equal(t, int64(1), first.Revision)

	second.Status = models.InstanceStatusCancelled
	err = s.UpdateInstance(ctx, second)
	assert.True(t, apperrors.IsConflict(err))

	stored, _ := s.GetInstance(ctx, "i1")
	assert.Equal(t, models.InstanceStatusPaused, stored.Status)
}

func TestStore_UpdateTaskRequiresExpectedStatus(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.CreateTask(ctx, &models.WorkflowTask{ID: "t1", InstanceID: "i1", NodeID: "n1", Status: models.TaskStatusPending}))

	first, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	second, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)

	first.Status = models.TaskStatusCompleted
	first.CompletedBy = "alice"
	require.NoError(t, s.UpdateTask(ctx, first, models.TaskStatusPending))

	second.Status = models.TaskStatusCompleted
	second.CompletedBy = "bob"
	err = s.UpdateTask(ctx, second, models.TaskStatusPending)
	assert.True(t, apperrors.IsInvalidState(err))

	stored, _ := s.GetTask(ctx, "t1")
	assert.Equal(t, "alice", stored.CompletedBy)

	err = s.UpdateTask(ctx, &models.WorkflowTask{ID: "missing"}, models.TaskStatusPending)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestStore_GetMissingReturnsNil(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	def, err := s.GetDefinition(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, def)

	task, err := s.FindTaskByNode(ctx, "i1", "t1")
	assert.NoError(t, err)
	assert.Nil(t, task)
}

func TestStore_CreateTaskUniquePerNode(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.CreateTask(ctx, &models.WorkflowTask{InstanceID: "i1", NodeID: "t1"}))
	err := s.CreateTask(ctx, &models.WorkflowTask{InstanceID: "i1", NodeID: "t1"})
	assert.True(t, apperrors.IsConflict(err))
	require.NoError(t, s.CreateTask(ctx, &models.WorkflowTask{InstanceID: "i2", NodeID: "t1"}))
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	inst := &models.WorkflowInstance{ID: "i1", Context: map[string]interface{}{"a": 1}}
	require.NoError(t, s.CreateInstance(ctx, inst))

	inst.Context["a"] = 2
	got, _ := s.GetInstance(ctx, "i1")
	assert.Equal(t, 1, got.Context["a"])

	got.Context["a"] = 3
	again, _ := s.GetInstance(ctx, "i1")
	assert.Equal(t, 1, again.Context["a"])
}

func TestStore_ListTasksOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Now()
	soon, later := now.Add(time.Hour), now.Add(2*time.Hour)

	tasks := []*models.WorkflowTask{
		{ID: "undated", InstanceID: "a", NodeID: "n", AssignedTo: "u1", Status: models.TaskStatusPending, Priority: models.PriorityUrgent, CreatedAt: now},
		{ID: "later", InstanceID: "b", NodeID: "n", AssignedTo: "u1", Status: models.TaskStatusPending, Priority: models.PriorityUrgent, DueDate: &later, CreatedAt: now},
		{ID: "soon-low", InstanceID: "c", NodeID: "n", AssignedTo: "u1", Status: models.TaskStatusPending, Priority: models.PriorityLow, DueDate: &soon, CreatedAt: now},
		{ID: "soon-high", InstanceID: "d", NodeID: "n", AssignedTo: "u1", Status: models.TaskStatusPending, Priority: models.PriorityHigh, DueDate: &soon, CreatedAt: now},
		{ID: "other-user", InstanceID: "e", NodeID: "n", AssignedTo: "u2", Status: models.TaskStatusPending, CreatedAt: now},
	}
	for _, task := range tasks {
		require.NoError(t, s.CreateTask(ctx, task))
	}

	got, err := s.ListTasks(ctx, models.TaskFilter{Assignees: []string{"u1"}, Status: models.TaskStatusPending})
	require.NoError(t, err)

	var ids []string
	for _, task := range got {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []string{"soon-high", "soon-low", "later", "undated"}, ids)

	overdue, err := s.ListTasks(ctx, models.TaskFilter{Assignees: []string{"u1"}, DueBefore: &later})
	require.NoError(t, err)
	assert.Len(t, overdue, 2)
}

func TestStore_FindPermissionsByUserOrRole(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.CreatePermission(ctx, &models.WorkflowPermission{ID: "p1", DefinitionID: "d1", UserID: "u1", PermissionType: models.PermissionView, IsActive: true}))
	require.NoError(t, s.CreatePermission(ctx, &models.WorkflowPermission{ID: "p2", DefinitionID: "d1", RoleName: "ops", PermissionType: models.PermissionExecute, IsActive: true}))
	require.NoError(t, s.CreatePermission(ctx, &models.WorkflowPermission{ID: "p3", DefinitionID: "d1", UserID: "u1", PermissionType: models.PermissionAdmin, IsActive: false}))
	require.NoError(t, s.CreatePermission(ctx, &models.WorkflowPermission{ID: "p4", DefinitionID: "d2", UserID: "u1", PermissionType: models.PermissionAdmin, IsActive: true}))

	perms, err := s.FindPermissions(ctx, "d1", "u1", []string{"ops"})
	require.NoError(t, err)
	assert.Len(t, perms, 2)

	require.NoError(t, s.DeactivatePermission(ctx, "p2"))
	perms, err = s.FindPermissions(ctx, "d1", "u1", []string{"ops"})
	require.NoError(t, err)
	assert.Len(t, perms, 1)
}

func TestStore_CountActionsScopedByDefinition(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.CreateInstance(ctx, &models.WorkflowInstance{ID: "i1", TenantID: "t", DefinitionID: "d1"}))
	require.NoError(t, s.CreateInstance(ctx, &models.WorkflowInstance{ID: "i2", TenantID: "t", DefinitionID: "d2"}))

	now := time.Now()
	require.NoError(t, s.AppendHistory(ctx, &models.WorkflowHistoryEntry{InstanceID: "i1", Action: "StepExecuted", Timestamp: now}))
	require.NoError(t, s.AppendHistory(ctx, &models.WorkflowHistoryEntry{InstanceID: "i1", Action: "StepExecuted", Timestamp: now}))
	require.NoError(t, s.AppendHistory(ctx, &models.WorkflowHistoryEntry{InstanceID: "i2", Action: "StepExecuted", Timestamp: now}))

	counts, err := s.CountActions(ctx, models.HistoryFilter{TenantID: "t", DefinitionID: "d1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"StepExecuted": 2}, counts)
}
