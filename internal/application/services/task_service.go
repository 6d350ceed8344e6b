package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nexuscrm/workflow/internal/domain/events"
	"github.com/nexuscrm/workflow/internal/domain/models"
	"github.com/nexuscrm/workflow/internal/domain/ports"
	"github.com/nexuscrm/workflow/pkg/constants"
	"github.com/nexuscrm/workflow/pkg/errors"
	"github.com/nexuscrm/workflow/pkg/utils"
)

// TaskService creates, completes and reassigns workflow tasks.
// Completing a task publishes events.TaskCompleted; the engine subscribes to
// it to advance the instance.
type TaskService struct {
	tasks       ports.TaskStore
	instances   ports.InstanceStore
	definitions ports.DefinitionStore
	roles       ports.RoleResolver
	tx          ports.TxRunner
	permissions *PermissionService
	history     *HistoryService
	events      ports.EventPublisher
	metrics     *EngineMetrics
	now         func() time.Time
}

// NewTaskService creates a new TaskService
func NewTaskService(
	tasks ports.TaskStore,
	instances ports.InstanceStore,
	definitions ports.DefinitionStore,
	roles ports.RoleResolver,
	tx ports.TxRunner,
	permissions *PermissionService,
	history *HistoryService,
	eventBus ports.EventPublisher,
	metrics *EngineMetrics,
) *TaskService {
	return &TaskService{
		tasks:       tasks,
		instances:   instances,
		definitions: definitions,
		roles:       roles,
		tx:          tx,
		permissions: permissions,
		history:     history,
		events:      eventBus,
		metrics:     metrics,
		now:         time.Now,
	}
}

// CompleteTaskRequest is the body of a task completion
type CompleteTaskRequest struct {
	Action   string                 `json:"action"`
	Comments string                 `json:"comments"`
	TaskData map[string]interface{} `json:"taskData"`
}

// ReassignTaskRequest is the body of a reassignment
type ReassignTaskRequest struct {
	AssignedTo string `json:"assignedTo"`
	Reason     string `json:"reason"`
}

// CreateTaskForNode materializes the task for a task node. It is idempotent
// per (instance, node): an existing task is returned with created=false.
func (ts *TaskService) CreateTaskForNode(ctx context.Context, inst *models.WorkflowInstance, node *models.WorkflowNode, actorID string) (*models.WorkflowTask, bool, error) {
	existing, err := ts.tasks.FindTaskByNode(ctx, inst.ID, node.ID)
	if err != nil {
		return nil, false, errors.Internal("failed to look up task", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	task := &models.WorkflowTask{
		ID:          utils.GenerateID(),
		TenantID:    inst.TenantID,
		InstanceID:  inst.ID,
		NodeID:      node.ID,
		Name:        node.Name,
		Description: node.Description,
		AssignedTo:  inst.AssignedTo,
		Status:      models.TaskStatusPending,
		Priority:    inst.Priority,
		DueDate:     inst.DueDate,
		CreatedAt:   ts.now(),
	}
	if cfg, ok := node.EffectiveConfig().(models.TaskNodeConfig); ok {
		task.TaskType = cfg.TaskType
		if cfg.AssignTo != "" {
			task.AssignedTo = cfg.AssignTo
		}
		if task.Description == "" {
			task.Description = cfg.Instructions
		}
	}

	if err := ts.tasks.CreateTask(ctx, task); err != nil {
		if errors.IsConflict(err) {
			// Lost an insert race; the unique (instance, node) key kept one row.
			existing, findErr := ts.tasks.FindTaskByNode(ctx, inst.ID, node.ID)
			if findErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, errors.Internal("failed to create task", err)
	}

	if err := ts.history.Append(ctx, HistoryEntry{
		InstanceID: inst.ID,
		Action:     constants.ActionTaskCreated,
		FromState:  node.ID,
		ToState:    node.ID,
		ActorID:    actorID,
		ActionData: map[string]interface{}{"taskId": task.ID, "assignedTo": task.AssignedTo},
	}); err != nil {
		return nil, false, err
	}
	if err := ts.events.Publish(ctx, events.TaskCreated, events.TaskEvent{Task: task, ActorID: actorID}); err != nil {
		return nil, false, err
	}

	log.Printf("📋 Task created: %s (%s) for instance %s, assigned to %s", task.ID, task.Name, inst.ID, task.AssignedTo)
	return task, true, nil
}

// CompleteTask completes a pending task assigned to the caller (directly or
// through one of the caller's roles) and lets the engine advance the instance.
func (ts *TaskService) CompleteTask(ctx context.Context, user *models.UserSession, taskID string, req CompleteTaskRequest) (*models.WorkflowTask, error) {
	if req.Action == "" {
		return nil, errors.NewValidationError("action", "action is required")
	}

	var completed *models.WorkflowTask
	err := ts.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		task, err := ts.loadTask(ctx, user, taskID)
		if err != nil {
			return err
		}

		// Lock the instance row, then re-read the task under that lock.
		inst, err := ts.instances.GetInstance(ctx, task.InstanceID)
		if err != nil {
			return errors.Internal("failed to load instance", err)
		}
		if inst == nil {
			return errors.NewNotFoundError("WorkflowInstance", task.InstanceID)
		}
		task, err = ts.loadTask(ctx, user, taskID)
		if err != nil {
			return err
		}

		isAssignee, err := ts.isAssignee(ctx, user.ID, task.AssignedTo)
		if err != nil {
			return err
		}
		if !isAssignee {
			return errors.NewUnauthorizedError(fmt.Sprintf("task %s is not assigned to %s", task.ID, user.ID))
		}
		if task.Status != models.TaskStatusPending {
			return errors.NewInvalidStateError("task", string(task.Status), "complete")
		}
		if inst.Status != models.InstanceStatusActive {
			return errors.NewInvalidStateError("instance", string(inst.Status), "complete task on")
		}

		now := ts.now()
		task.Status = models.TaskStatusCompleted
		task.CompletedAt = &now
		task.CompletedBy = user.ID
		task.Action = req.Action
		task.Comments = req.Comments
		task.Data = req.TaskData
		if err := ts.tasks.UpdateTask(ctx, task, models.TaskStatusPending); err != nil {
			return errors.Internal("failed to update task", err)
		}

		if err := ts.history.Append(ctx, HistoryEntry{
			InstanceID: task.InstanceID,
			Action:     constants.TaskCompletedAction(req.Action),
			FromState:  task.NodeID,
			ToState:    task.NodeID,
			ActorID:    user.ID,
			Comments:   req.Comments,
			ActionData: map[string]interface{}{"taskId": task.ID, "action": req.Action},
		}); err != nil {
			return err
		}

		completed = task
		return ts.events.Publish(ctx, events.TaskCompleted, events.TaskEvent{Task: task, ActorID: user.ID})
	})
	if err != nil {
		return nil, err
	}

	ts.metrics.TaskCompleted(ctx, req.Action)
	log.Printf("✅ Task completed: %s by %s (%s)", completed.ID, user.ID, req.Action)
	return completed, nil
}

// ReassignTask moves a pending task to a new assignee. Requires Reassign on
// the task's definition.
func (ts *TaskService) ReassignTask(ctx context.Context, user *models.UserSession, taskID string, req ReassignTaskRequest) (*models.WorkflowTask, error) {
	if req.AssignedTo == "" {
		return nil, errors.NewValidationError("assignedTo", "new assignee is required")
	}

	var reassigned *models.WorkflowTask
	err := ts.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		task, err := ts.loadTask(ctx, user, taskID)
		if err != nil {
			return err
		}
		inst, err := ts.instances.GetInstance(ctx, task.InstanceID)
		if err != nil {
			return errors.Internal("failed to load instance", err)
		}
		if inst == nil {
			return errors.NewNotFoundError("WorkflowInstance", task.InstanceID)
		}
		def, err := ts.permissions.loadDefinition(ctx, user, inst.DefinitionID)
		if err != nil {
			return err
		}
		if err := ts.permissions.Authorize(ctx, user, def, models.PermissionReassign); err != nil {
			return err
		}

		reassigned, err = ts.reassign(ctx, task, req.AssignedTo, req.Reason, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reassigned, nil
}

// EscalateTask reassigns a timed-out task on behalf of the system.
func (ts *TaskService) EscalateTask(ctx context.Context, task *models.WorkflowTask, escalateTo string) (*models.WorkflowTask, error) {
	return ts.reassign(ctx, task, escalateTo, "timeout escalation", constants.SystemActorID)
}

func (ts *TaskService) reassign(ctx context.Context, task *models.WorkflowTask, newAssignee, reason, actorID string) (*models.WorkflowTask, error) {
	if task.Status != models.TaskStatusPending {
		return nil, errors.NewInvalidStateError("task", string(task.Status), "reassign")
	}

	previous := task.AssignedTo
	task.AssignedTo = newAssignee
	if err := ts.tasks.UpdateTask(ctx, task, models.TaskStatusPending); err != nil {
		return nil, errors.Internal("failed to update task", err)
	}

	if err := ts.history.Append(ctx, HistoryEntry{
		InstanceID: task.InstanceID,
		Action:     constants.ActionTaskReassigned,
		FromState:  task.NodeID,
		ToState:    task.NodeID,
		ActorID:    actorID,
		Comments:   reason,
		ActionData: map[string]interface{}{"taskId": task.ID, "from": previous, "to": newAssignee},
	}); err != nil {
		return nil, err
	}

	log.Printf("🔀 Task reassigned: %s from %s to %s by %s", task.ID, previous, newAssignee, actorID)
	return task, nil
}

// CancelPendingTasks cancels every pending task of an instance.
func (ts *TaskService) CancelPendingTasks(ctx context.Context, instanceID, actorID string) (int, error) {
	tasks, err := ts.tasks.ListTasksByInstance(ctx, instanceID)
	if err != nil {
		return 0, errors.Internal("failed to list tasks", err)
	}

	cancelled := 0
	for _, task := range tasks {
		if task.Status != models.TaskStatusPending {
			continue
		}
		task.Status = models.TaskStatusCancelled
		if err := ts.tasks.UpdateTask(ctx, task, models.TaskStatusPending); err != nil {
			return cancelled, errors.Internal(fmt.Sprintf("failed to cancel task %s", task.ID), err)
		}
		if err := ts.history.Append(ctx, HistoryEntry{
			InstanceID: instanceID,
			Action:     constants.ActionTaskCancelled,
			FromState:  task.NodeID,
			ToState:    task.NodeID,
			ActorID:    actorID,
			ActionData: map[string]interface{}{"taskId": task.ID},
		}); err != nil {
			return cancelled, err
		}
		cancelled++
	}
	return cancelled, nil
}

// AllTasksTerminal reports whether every task of an instance is Completed or
// Cancelled. An instance with no tasks is not considered finished.
func (ts *TaskService) AllTasksTerminal(ctx context.Context, instanceID string) (bool, error) {
	tasks, err := ts.tasks.ListTasksByInstance(ctx, instanceID)
	if err != nil {
		return false, errors.Internal("failed to list tasks", err)
	}
	if len(tasks) == 0 {
		return false, nil
	}
	for _, task := range tasks {
		if !task.Status.IsTerminal() {
			return false, nil
		}
	}
	return true, nil
}

// PendingTasks lists pending tasks assigned to the caller or the caller's
// roles within the caller's tenant.
func (ts *TaskService) PendingTasks(ctx context.Context, user *models.UserSession) ([]*models.WorkflowTask, error) {
	return ts.listForUser(ctx, user, nil)
}

// OverdueTasks lists the caller's pending tasks with a due date before now.
func (ts *TaskService) OverdueTasks(ctx context.Context, user *models.UserSession, now time.Time) ([]*models.WorkflowTask, error) {
	return ts.listForUser(ctx, user, &now)
}

func (ts *TaskService) listForUser(ctx context.Context, user *models.UserSession, dueBefore *time.Time) ([]*models.WorkflowTask, error) {
	roles, err := ts.roles.ResolveRoles(ctx, user.ID)
	if err != nil {
		return nil, errors.Internal(fmt.Sprintf("failed to resolve roles for %s", user.ID), err)
	}
	tasks, err := ts.tasks.ListTasks(ctx, models.TaskFilter{
		TenantID:  user.TenantID,
		Assignees: append([]string{user.ID}, roles...),
		Status:    models.TaskStatusPending,
		DueBefore: dueBefore,
	})
	if err != nil {
		return nil, errors.Internal("failed to list tasks", err)
	}
	return tasks, nil
}

func (ts *TaskService) loadTask(ctx context.Context, user *models.UserSession, taskID string) (*models.WorkflowTask, error) {
	task, err := ts.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, errors.Internal("failed to load task", err)
	}
	if task == nil || (user.TenantID != "" && task.TenantID != user.TenantID) {
		return nil, errors.NewNotFoundError("WorkflowTask", taskID)
	}
	return task, nil
}

func (ts *TaskService) isAssignee(ctx context.Context, userID, assignedTo string) (bool, error) {
	if assignedTo == userID {
		return true, nil
	}
	roles, err := ts.roles.ResolveRoles(ctx, userID)
	if err != nil {
		return false, errors.Internal(fmt.Sprintf("failed to resolve roles for %s", userID), err)
	}
	return utils.ContainsString(roles, assignedTo), nil
}
