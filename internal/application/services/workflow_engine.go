package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nexuscrm/workflow/internal/domain"
	"github.com/nexuscrm/workflow/internal/domain/events"
	"github.com/nexuscrm/workflow/internal/domain/models"
	"github.com/nexuscrm/workflow/internal/domain/ports"
	"github.com/nexuscrm/workflow/pkg/constants"
	"github.com/nexuscrm/workflow/pkg/errors"
	"github.com/nexuscrm/workflow/pkg/utils"
)

// WorkflowEngine drives instances through their pinned graph.
//
// Each public call runs in one transaction. Instance writes are
// compare-and-swap on Revision, so a call that races another writer fails
// with a ConflictError instead of overwriting it.
type WorkflowEngine struct {
	definitions  ports.DefinitionStore
	instances    ports.InstanceStore
	tx           ports.TxRunner
	permissions  *PermissionService
	tasks        *TaskService
	history      *HistoryService
	events       ports.EventPublisher
	evaluator    ports.ConditionEvaluator
	stateMachine *domain.InstanceStateMachine
	metrics      *EngineMetrics
	now          func() time.Time
}

// NewWorkflowEngine creates a new WorkflowEngine
func NewWorkflowEngine(
	definitions ports.DefinitionStore,
	instances ports.InstanceStore,
	tx ports.TxRunner,
	permissions *PermissionService,
	tasks *TaskService,
	history *HistoryService,
	eventBus ports.EventPublisher,
	evaluator ports.ConditionEvaluator,
	metrics *EngineMetrics,
) *WorkflowEngine {
	return &WorkflowEngine{
		definitions:  definitions,
		instances:    instances,
		tx:           tx,
		permissions:  permissions,
		tasks:        tasks,
		history:      history,
		events:       eventBus,
		evaluator:    evaluator,
		stateMachine: domain.NewInstanceStateMachine(),
		metrics:      metrics,
		now:          time.Now,
	}
}

// RegisterHandlers subscribes the engine to task completion.
func (e *WorkflowEngine) RegisterHandlers() {
	e.events.Subscribe(events.TaskCompleted, e.handleTaskCompleted)
	log.Printf("✅ WorkflowEngine: registered task completion handler")
}

// CreateInstanceRequest is the body of an instance creation
type CreateInstanceRequest struct {
	DocumentID string                 `json:"documentId"`
	Context    map[string]interface{} `json:"context"`
	AssignedTo string                 `json:"assignedTo"`
	Priority   models.Priority        `json:"priority"`
	DueDate    *time.Time             `json:"dueDate"`
}

// traversal tracks one engine call. failure holds a business failure that
// was persisted (the instance moved to Failed) and must still be reported
// to the caller after the transaction commits.
type traversal struct {
	actorID string
	steps   int
	failure error
}

// CreateInstance starts an instance of an active definition. The graph is
// snapshotted into the instance, the start node becomes currentState, and
// the start node's outgoing transition runs immediately.
func (e *WorkflowEngine) CreateInstance(ctx context.Context, user *models.UserSession, definitionID string, req CreateInstanceRequest) (*models.WorkflowInstance, error) {
	if req.Priority == "" {
		req.Priority = models.PriorityNormal
	}
	if !req.Priority.IsValid() {
		return nil, errors.NewValidationError("priority", fmt.Sprintf("unknown priority '%s'", req.Priority))
	}

	def, err := e.permissions.loadDefinition(ctx, user, definitionID)
	if err != nil {
		return nil, err
	}
	if err := e.permissions.Authorize(ctx, user, def, models.PermissionExecute); err != nil {
		return nil, err
	}
	if !def.IsActive {
		return nil, errors.NewInvalidStateError("definition", "inactive", "start an instance of")
	}
	start, ok := def.Graph.StartNode()
	if !ok {
		return nil, errors.NewValidationFailedError("definition", []string{domain.IssueMissingStartNode})
	}

	id, startedAt := utils.GenerateID(), e.now()
	assignedTo := req.AssignedTo
	if assignedTo == "" {
		assignedTo = user.ID
	}

	var inst *models.WorkflowInstance
	var tr *traversal
	err = e.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		// Rebuilt on every attempt so a retried transaction starts clean.
		inst = &models.WorkflowInstance{
			ID:                id,
			TenantID:          def.TenantID,
			DefinitionID:      def.ID,
			DefinitionVersion: def.Version,
			DocumentID:        req.DocumentID,
			CurrentState:      start.ID,
			Context:           utils.CloneMap(req.Context),
			Status:            models.InstanceStatusActive,
			StartedBy:         user.ID,
			AssignedTo:        assignedTo,
			Priority:          req.Priority,
			DueDate:           req.DueDate,
			StartedAt:         startedAt,
			Graph:             def.Graph.Clone(),
		}
		tr = &traversal{actorID: user.ID}

		if err := e.instances.CreateInstance(ctx, inst); err != nil {
			return errors.Internal("failed to create instance", err)
		}
		if err := e.history.Append(ctx, HistoryEntry{
			InstanceID: inst.ID,
			Action:     constants.ActionInstanceCreated,
			ToState:    start.ID,
			ActorID:    user.ID,
			ActionData: map[string]interface{}{"definitionVersion": inst.DefinitionVersion, "documentId": inst.DocumentID},
		}); err != nil {
			return err
		}
		if err := e.events.Publish(ctx, events.InstanceCreated, events.InstanceEvent{Instance: inst, ActorID: user.ID}); err != nil {
			return err
		}
		return e.executeNode(ctx, inst, start.ID, tr)
	})
	if err != nil {
		return nil, err
	}

	e.metrics.InstanceStarted(ctx)
	log.Printf("✅ WorkflowInstance created: %s for definition %s v%d on document %s", inst.ID, def.ID, def.Version, inst.DocumentID)
	if tr.failure != nil {
		return inst, tr.failure
	}
	return inst, nil
}

// ExecuteStep positions an Active instance at nodeID, merges data into its
// context and executes the node.
func (e *WorkflowEngine) ExecuteStep(ctx context.Context, user *models.UserSession, instanceID, nodeID string, data map[string]interface{}) (*models.WorkflowInstance, error) {
	var inst *models.WorkflowInstance
	tr := &traversal{actorID: user.ID}

	err := e.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		inst, err = e.loadInstance(ctx, user, instanceID)
		if err != nil {
			return err
		}
		if err := e.authorizeInstance(ctx, user, inst, models.PermissionExecute); err != nil {
			return err
		}
		if inst.Status != models.InstanceStatusActive {
			return errors.NewInvalidStateError("instance", string(inst.Status), "execute a step on")
		}
		if _, ok := inst.Graph.Node(nodeID); !ok {
			return errors.NewNotFoundError("WorkflowNode", nodeID)
		}

		inst.Context = utils.MergeMaps(inst.Context, data)
		return e.executeNode(ctx, inst, nodeID, tr)
	})
	if err != nil {
		return nil, err
	}
	if tr.failure != nil {
		return inst, tr.failure
	}
	return inst, nil
}

// AdvanceWorkflow follows the first outgoing connection of finishedNodeID and
// executes its target. A node without outgoing connections leaves the
// instance where it is.
func (e *WorkflowEngine) AdvanceWorkflow(ctx context.Context, inst *models.WorkflowInstance, finishedNodeID, actorID string) error {
	tr := &traversal{actorID: actorID}
	if err := e.advance(ctx, inst, finishedNodeID, tr); err != nil {
		return err
	}
	return tr.failure
}

func (e *WorkflowEngine) advance(ctx context.Context, inst *models.WorkflowInstance, fromNodeID string, tr *traversal) error {
	outgoing := inst.Graph.Outgoing(fromNodeID)
	if len(outgoing) == 0 {
		log.Printf("⚠️ WorkflowInstance %s: node %s has no outgoing connection", inst.ID, fromNodeID)
		return nil
	}
	return e.moveTo(ctx, inst, fromNodeID, outgoing[0].TargetNodeID, tr)
}

func (e *WorkflowEngine) moveTo(ctx context.Context, inst *models.WorkflowInstance, fromNodeID, toNodeID string, tr *traversal) error {
	if err := e.history.Append(ctx, HistoryEntry{
		InstanceID: inst.ID,
		Action:     constants.ActionAdvanced,
		FromState:  fromNodeID,
		ToState:    toNodeID,
		ActorID:    tr.actorID,
	}); err != nil {
		return err
	}
	return e.executeNode(ctx, inst, toNodeID, tr)
}

// executeNode sets currentState to nodeID, persists, and dispatches on the
// node's config. Task nodes stop the traversal.
func (e *WorkflowEngine) executeNode(ctx context.Context, inst *models.WorkflowInstance, nodeID string, tr *traversal) error {
	tr.steps++
	if tr.steps > constants.MaxTraversalSteps {
		return e.failTraversal(ctx, inst, tr, constants.FailReasonTraversalLimit,
			fmt.Sprintf("more than %d node executions in one call", constants.MaxTraversalSteps))
	}

	node, ok := inst.Graph.Node(nodeID)
	if !ok {
		return e.failTraversal(ctx, inst, tr, constants.FailReasonMissingNode,
			fmt.Sprintf("node '%s' is not in the pinned graph", nodeID))
	}

	from := inst.CurrentState
	inst.CurrentState = node.ID
	if err := e.saveInstance(ctx, inst); err != nil {
		return err
	}
	if err := e.history.Append(ctx, HistoryEntry{
		InstanceID: inst.ID,
		Action:     constants.ActionStepExecuted,
		FromState:  from,
		ToState:    node.ID,
		ActorID:    tr.actorID,
		ActionData: map[string]interface{}{"nodeType": string(node.Type)},
	}); err != nil {
		return err
	}

	switch cfg := node.EffectiveConfig().(type) {
	case models.StartNodeConfig:
		return e.advance(ctx, inst, node.ID, tr)
	case models.TaskNodeConfig:
		_, _, err := e.tasks.CreateTaskForNode(ctx, inst, node, tr.actorID)
		return err
	case models.DecisionNodeConfig:
		return e.executeDecision(ctx, inst, node, cfg, tr)
	case models.EndNodeConfig:
		if cfg.Outcome != "" {
			inst.Context = utils.MergeMaps(inst.Context, map[string]interface{}{constants.ContextKeyOutcome: cfg.Outcome})
		}
		return e.completeInstance(ctx, inst, tr.actorID, constants.CompletionTriggerEndNode)
	default:
		return fmt.Errorf("node %s has unsupported type %q", node.ID, node.Type)
	}
}

// executeDecision picks the branch to follow. Conditioned connections are
// tried in declaration order and the first that evaluates to true wins;
// errors and non-boolean results count as false. Without a match the
// configured default target is used, then the first unconditioned
// connection. If nothing applies the instance fails.
func (e *WorkflowEngine) executeDecision(ctx context.Context, inst *models.WorkflowInstance, node *models.WorkflowNode, cfg models.DecisionNodeConfig, tr *traversal) error {
	outgoing := inst.Graph.Outgoing(node.ID)

	target, matchedBy := "", ""
	for _, c := range outgoing {
		if c.Condition == "" {
			continue
		}
		ok, err := e.evaluator.EvaluateCondition(c.Condition, inst.Context)
		if err != nil {
			log.Printf("⚠️ Decision %s on instance %s: condition %q failed: %v", node.ID, inst.ID, c.Condition, err)
			continue
		}
		if ok {
			target, matchedBy = c.TargetNodeID, c.Condition
			break
		}
	}
	if target == "" && cfg.DefaultTarget != "" {
		target, matchedBy = cfg.DefaultTarget, "default"
	}
	if target == "" {
		for _, c := range outgoing {
			if c.Condition == "" {
				target, matchedBy = c.TargetNodeID, "unconditioned"
				break
			}
		}
	}

	if target == "" {
		if err := e.history.Append(ctx, HistoryEntry{
			InstanceID: inst.ID,
			Action:     constants.ActionDecisionUnmatched,
			FromState:  node.ID,
			ToState:    node.ID,
			ActorID:    tr.actorID,
		}); err != nil {
			return err
		}
		return e.failTraversal(ctx, inst, tr, constants.FailReasonDecisionUnmatched,
			fmt.Sprintf("no branch of decision '%s' matched", node.ID))
	}

	if err := e.history.Append(ctx, HistoryEntry{
		InstanceID: inst.ID,
		Action:     constants.ActionDecisionEvaluated,
		FromState:  node.ID,
		ToState:    target,
		ActorID:    tr.actorID,
		ActionData: map[string]interface{}{"matchedBy": matchedBy},
	}); err != nil {
		return err
	}
	return e.moveTo(ctx, inst, node.ID, target, tr)
}

// handleTaskCompleted runs after a task completes, inside the completion's
// transaction: task data is merged into the context, the instance advances
// from the task's node, and if it is still running with every task
// finished it is force-completed.
func (e *WorkflowEngine) handleTaskCompleted(ctx context.Context, payload interface{}) error {
	evt, ok := payload.(events.TaskEvent)
	if !ok || evt.Task == nil {
		return fmt.Errorf("unexpected task.completed payload %T", payload)
	}
	task := evt.Task

	inst, err := e.instances.GetInstance(ctx, task.InstanceID)
	if err != nil {
		return errors.Internal("failed to load instance", err)
	}
	if inst == nil {
		return errors.NewNotFoundError("WorkflowInstance", task.InstanceID)
	}
	if inst.Status.IsTerminal() {
		return nil
	}

	inst.Context = utils.MergeMaps(inst.Context, task.Data)
	inst.Context[constants.ContextKeyLastAction] = task.Action

	tr := &traversal{actorID: evt.ActorID}
	if inst.Status == models.InstanceStatusActive {
		if err := e.advance(ctx, inst, task.NodeID, tr); err != nil {
			return err
		}
	}
	if tr.failure != nil {
		log.Printf("❌ WorkflowInstance %s failed after task %s: %v", inst.ID, task.ID, tr.failure)
		return nil
	}
	if inst.Status.IsTerminal() {
		return nil
	}

	done, err := e.tasks.AllTasksTerminal(ctx, inst.ID)
	if err != nil {
		return err
	}
	if done {
		return e.completeInstance(ctx, inst, evt.ActorID, constants.CompletionTriggerAllTasks)
	}
	// Persist the merged context when nothing else wrote the instance.
	if tr.steps == 0 {
		return e.saveInstance(ctx, inst)
	}
	return nil
}

func (e *WorkflowEngine) completeInstance(ctx context.Context, inst *models.WorkflowInstance, actorID, trigger string) error {
	from := inst.Status
	next, err := e.stateMachine.Transition(inst.Status, domain.TransitionComplete)
	if err != nil {
		return err
	}
	now := e.now()
	inst.Status = next
	inst.CompletedAt = &now
	if err := e.saveInstance(ctx, inst); err != nil {
		return err
	}
	if err := e.history.Append(ctx, HistoryEntry{
		InstanceID: inst.ID,
		Action:     constants.ActionInstanceCompleted,
		FromState:  string(from),
		ToState:    string(next),
		ActorID:    actorID,
		ActionData: map[string]interface{}{"trigger": trigger, "node": inst.CurrentState},
	}); err != nil {
		return err
	}
	if err := e.events.Publish(ctx, events.InstanceCompleted, events.InstanceEvent{Instance: inst, ActorID: actorID}); err != nil {
		return err
	}

	e.metrics.InstanceFinished(ctx, string(next))
	log.Printf("✅ WorkflowInstance completed: %s (%s)", inst.ID, trigger)
	return nil
}

// FailInstance moves a running instance to Failed, cancelling its pending tasks.
func (e *WorkflowEngine) FailInstance(ctx context.Context, inst *models.WorkflowInstance, actorID, reason, detail string) error {
	from := inst.Status
	next, err := e.stateMachine.Transition(inst.Status, domain.TransitionFail)
	if err != nil {
		return err
	}
	if _, err := e.tasks.CancelPendingTasks(ctx, inst.ID, actorID); err != nil {
		return err
	}

	now := e.now()
	inst.Status = next
	inst.CompletedAt = &now
	inst.FailureReason = reason
	if err := e.saveInstance(ctx, inst); err != nil {
		return err
	}
	if err := e.history.Append(ctx, HistoryEntry{
		InstanceID: inst.ID,
		Action:     constants.ActionInstanceFailed,
		FromState:  string(from),
		ToState:    string(next),
		ActorID:    actorID,
		Comments:   detail,
		ActionData: map[string]interface{}{"reason": reason, "node": inst.CurrentState},
	}); err != nil {
		return err
	}
	if err := e.events.Publish(ctx, events.InstanceFailed, events.InstanceEvent{Instance: inst, ActorID: actorID}); err != nil {
		return err
	}

	e.metrics.InstanceFinished(ctx, string(next))
	log.Printf("❌ WorkflowInstance failed: %s - %s (%s)", inst.ID, reason, detail)
	return nil
}

// failTraversal fails the instance and records the failure on the traversal
// so the transaction still commits the Failed status.
func (e *WorkflowEngine) failTraversal(ctx context.Context, inst *models.WorkflowInstance, tr *traversal, reason, detail string) error {
	if err := e.FailInstance(ctx, inst, tr.actorID, reason, detail); err != nil {
		return err
	}
	tr.failure = errors.NewInvalidStateError("instance", string(models.InstanceStatusFailed)+": "+reason, "advance")
	return nil
}

func (e *WorkflowEngine) saveInstance(ctx context.Context, inst *models.WorkflowInstance) error {
	if err := e.instances.UpdateInstance(ctx, inst); err != nil {
		return errors.Internal(fmt.Sprintf("failed to update instance %s", inst.ID), err)
	}
	return nil
}

// loadInstance fetches an instance visible to the caller's tenant.
func (e *WorkflowEngine) loadInstance(ctx context.Context, user *models.UserSession, id string) (*models.WorkflowInstance, error) {
	inst, err := e.instances.GetInstance(ctx, id)
	if err != nil {
		return nil, errors.Internal("failed to load instance", err)
	}
	if inst == nil || (user.TenantID != "" && inst.TenantID != user.TenantID) {
		return nil, errors.NewNotFoundError("WorkflowInstance", id)
	}
	return inst, nil
}

func (e *WorkflowEngine) authorizeInstance(ctx context.Context, user *models.UserSession, inst *models.WorkflowInstance, permType models.PermissionType) error {
	def, err := e.definitions.GetDefinition(ctx, inst.DefinitionID)
	if err != nil {
		return errors.Internal("failed to load definition", err)
	}
	if def == nil {
		return errors.NewNotFoundError("WorkflowDefinition", inst.DefinitionID)
	}
	return e.permissions.Authorize(ctx, user, def, permType)
}
