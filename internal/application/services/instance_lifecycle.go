package services

import (
	"context"
	"log"

	"github.com/nexuscrm/workflow/internal/domain"
	"github.com/nexuscrm/workflow/internal/domain/events"
	"github.com/nexuscrm/workflow/internal/domain/models"
	"github.com/nexuscrm/workflow/pkg/constants"
	"github.com/nexuscrm/workflow/pkg/errors"
)

// PauseInstance suspends an Active instance. Requires Execute.
func (e *WorkflowEngine) PauseInstance(ctx context.Context, user *models.UserSession, instanceID, comments string) (*models.WorkflowInstance, error) {
	inst, err := e.transition(ctx, user, instanceID, models.PermissionExecute, domain.TransitionPause, constants.ActionInstancePaused, comments)
	if err != nil {
		return nil, err
	}
	log.Printf("⏸️ WorkflowInstance paused: %s at %s", inst.ID, inst.CurrentState)
	return inst, nil
}

// ResumeInstance reactivates a Paused instance. Requires Execute.
func (e *WorkflowEngine) ResumeInstance(ctx context.Context, user *models.UserSession, instanceID, comments string) (*models.WorkflowInstance, error) {
	inst, err := e.transition(ctx, user, instanceID, models.PermissionExecute, domain.TransitionResume, constants.ActionInstanceResumed, comments)
	if err != nil {
		return nil, err
	}
	log.Printf("▶️ WorkflowInstance resumed: %s at %s", inst.ID, inst.CurrentState)
	return inst, nil
}

// CancelInstance cancels any non-terminal instance and its pending tasks.
// Requires Cancel.
func (e *WorkflowEngine) CancelInstance(ctx context.Context, user *models.UserSession, instanceID, comments string) (*models.WorkflowInstance, error) {
	inst, err := e.transition(ctx, user, instanceID, models.PermissionCancel, domain.TransitionCancel, constants.ActionInstanceCancelled, comments)
	if err != nil {
		return nil, err
	}
	e.metrics.InstanceFinished(ctx, string(inst.Status))
	log.Printf("🛑 WorkflowInstance cancelled: %s by %s", inst.ID, user.ID)
	return inst, nil
}

// transition applies a lifecycle transition without any graph traversal.
func (e *WorkflowEngine) transition(
	ctx context.Context,
	user *models.UserSession,
	instanceID string,
	permType models.PermissionType,
	action domain.InstanceTransition,
	historyAction string,
	comments string,
) (*models.WorkflowInstance, error) {
	var inst *models.WorkflowInstance
	err := e.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		inst, err = e.loadInstance(ctx, user, instanceID)
		if err != nil {
			return err
		}
		if err := e.authorizeInstance(ctx, user, inst, permType); err != nil {
			return err
		}

		from := inst.Status
		next, err := e.stateMachine.Transition(from, action)
		if err != nil {
			return err
		}

		if next == models.InstanceStatusCancelled {
			if _, err := e.tasks.CancelPendingTasks(ctx, inst.ID, user.ID); err != nil {
				return err
			}
			now := e.now()
			inst.CompletedAt = &now
		}

		inst.Status = next
		if err := e.saveInstance(ctx, inst); err != nil {
			return err
		}
		if err := e.history.Append(ctx, HistoryEntry{
			InstanceID: inst.ID,
			Action:     historyAction,
			FromState:  string(from),
			ToState:    string(next),
			ActorID:    user.ID,
			Comments:   comments,
			ActionData: map[string]interface{}{"node": inst.CurrentState},
		}); err != nil {
			return err
		}

		if next == models.InstanceStatusCancelled {
			return e.events.Publish(ctx, events.InstanceCancelled, events.InstanceEvent{Instance: inst, ActorID: user.ID})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// GetInstance returns an instance with its tasks and history. Requires View.
func (e *WorkflowEngine) GetInstance(ctx context.Context, user *models.UserSession, instanceID string) (*models.InstanceDetails, error) {
	inst, err := e.loadInstance(ctx, user, instanceID)
	if err != nil {
		return nil, err
	}
	if err := e.authorizeInstance(ctx, user, inst, models.PermissionView); err != nil {
		return nil, err
	}

	tasks, err := e.tasks.tasks.ListTasksByInstance(ctx, inst.ID)
	if err != nil {
		return nil, errors.Internal("failed to list tasks", err)
	}
	history, err := e.history.Timeline(ctx, inst.ID)
	if err != nil {
		return nil, errors.Internal("failed to load history", err)
	}
	if tasks == nil {
		tasks = []*models.WorkflowTask{}
	}
	if history == nil {
		history = []*models.WorkflowHistoryEntry{}
	}

	return &models.InstanceDetails{Instance: inst, Tasks: tasks, History: history}, nil
}

// ListInstances lists the instances of a definition. Requires View.
func (e *WorkflowEngine) ListInstances(ctx context.Context, user *models.UserSession, definitionID string, statuses []models.InstanceStatus) ([]*models.WorkflowInstance, error) {
	def, err := e.permissions.loadDefinition(ctx, user, definitionID)
	if err != nil {
		return nil, err
	}
	if err := e.permissions.Authorize(ctx, user, def, models.PermissionView); err != nil {
		return nil, err
	}
	return e.instances.ListInstances(ctx, models.InstanceFilter{
		TenantID:     def.TenantID,
		DefinitionID: def.ID,
		Statuses:     statuses,
	})
}
