package events

import "github.com/nexuscrm/workflow/internal/domain/models"

// EventType defines the type of event in the system
type EventType string

const (
	// Instance Events
	InstanceCreated   EventType = "instance.created"
	InstanceCompleted EventType = "instance.completed"
	InstanceCancelled EventType = "instance.cancelled"
	InstanceFailed    EventType = "instance.failed"

	// Task Events
	TaskCreated   EventType = "task.created"
	TaskCompleted EventType = "task.completed"
)

// String returns the string representation of the event type
func (e EventType) String() string {
	return string(e)
}

// InstanceEvent is the payload of instance.* events
type InstanceEvent struct {
	Instance *models.WorkflowInstance
	ActorID  string
}

// TaskEvent is the payload of task.* events
type TaskEvent struct {
	Task    *models.WorkflowTask
	ActorID string
}
