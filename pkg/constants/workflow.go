package constants

// History actions appended by the engine, task manager and sweep.
const (
	ActionInstanceCreated   = "InstanceCreated"
	ActionStepExecuted      = "StepExecuted"
	ActionAdvanced          = "Advanced"
	ActionDecisionEvaluated = "DecisionEvaluated"
	ActionDecisionUnmatched = "DecisionUnmatched"
	ActionTaskCreated       = "TaskCreated"
	ActionTaskCompleted     = "TaskCompleted"
	ActionTaskReassigned    = "TaskReassigned"
	ActionTaskCancelled     = "TaskCancelled"
	ActionTaskTimedOut      = "TaskTimedOut"
	ActionInstancePaused    = "InstancePaused"
	ActionInstanceResumed   = "InstanceResumed"
	ActionInstanceCancelled = "InstanceCancelled"
	ActionInstanceFailed    = "InstanceFailed"
	ActionInstanceCompleted = "InstanceCompleted"
	ActionDueDateExpired    = "DueDateExpired"
)

// TaskCompletedAction returns the history action for a completed task,
// e.g. "TaskCompleted:approve".
func TaskCompletedAction(action string) string {
	return ActionTaskCompleted + ":" + action
}

// Timeout behaviours for task nodes.
const (
	OnTimeoutEscalate = "escalate"
	OnTimeoutFail     = "fail"
)

// Failure reasons recorded on Failed instances.
const (
	FailReasonDecisionUnmatched = "DecisionUnmatched"
	FailReasonTraversalLimit    = "TraversalLimit"
	FailReasonMissingNode       = "MissingNode"
	FailReasonTaskTimeout       = "TaskTimeout"
)

// Context keys written into instance context by the engine.
const (
	ContextKeyOutcome    = "outcome"
	ContextKeyLastAction = "last_action"
)

// SystemActorID is the actor recorded for sweep-driven transitions.
const SystemActorID = "system"

// MaxTraversalSteps bounds node executions within one engine call.
const MaxTraversalSteps = 256

// Trigger values stored in InstanceCompleted action data.
const (
	CompletionTriggerEndNode  = "end_node"
	CompletionTriggerAllTasks = "all_tasks_terminal"
)
