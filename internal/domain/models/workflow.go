package models

import (
	"time"
)

// NodeType is the kind of step a graph node represents
type NodeType string

const (
	NodeTypeStart    NodeType = "start"
	NodeTypeTask     NodeType = "task"
	NodeTypeDecision NodeType = "decision"
	NodeTypeEnd      NodeType = "end"
)

// InstanceStatus is the lifecycle status of a workflow instance
type InstanceStatus string

const (
	InstanceStatusActive    InstanceStatus = "Active"
	InstanceStatusWaiting   InstanceStatus = "Waiting"
	InstanceStatusPaused    InstanceStatus = "Paused"
	InstanceStatusCompleted InstanceStatus = "Completed"
	InstanceStatusCancelled InstanceStatus = "Cancelled"
	InstanceStatusFailed    InstanceStatus = "Failed"
)

// IsTerminal reports whether no further transition is possible.
func (s InstanceStatus) IsTerminal() bool {
	return s == InstanceStatusCompleted || s == InstanceStatusCancelled || s == InstanceStatusFailed
}

// RunningStatuses are the statuses that block definition deletion and are
// visited by the sweep (Paused excluded from the latter).
var RunningStatuses = []InstanceStatus{InstanceStatusActive, InstanceStatusWaiting, InstanceStatusPaused}

// TaskStatus is the status of a workflow task. Transitions never return to Pending.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "Pending"
	TaskStatusCompleted TaskStatus = "Completed"
	TaskStatusCancelled TaskStatus = "Cancelled"
)

// IsTerminal reports whether the task is Completed or Cancelled.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusCancelled
}

// Priority of an instance and the tasks it spawns
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityNormal Priority = "Normal"
	PriorityHigh   Priority = "High"
	PriorityUrgent Priority = "Urgent"
)

var priorityRank = map[Priority]int{
	PriorityLow:    1,
	PriorityNormal: 2,
	PriorityHigh:   3,
	PriorityUrgent: 4,
}

// Rank orders priorities; higher is more urgent. Unknown values rank 0.
func (p Priority) Rank() int {
	return priorityRank[p]
}

// IsValid reports whether p is one of the known priorities.
func (p Priority) IsValid() bool {
	_, ok := priorityRank[p]
	return ok
}

// PermissionType is the granularity of authorization on a definition
type PermissionType string

const (
	PermissionView     PermissionType = "View"
	PermissionEdit     PermissionType = "Edit"
	PermissionDelete   PermissionType = "Delete"
	PermissionExecute  PermissionType = "Execute"
	PermissionCancel   PermissionType = "Cancel"
	PermissionReassign PermissionType = "Reassign"
	PermissionAdmin    PermissionType = "Admin"
)

// IsValid reports whether t is one of the known permission types.
func (t PermissionType) IsValid() bool {
	switch t {
	case PermissionView, PermissionEdit, PermissionDelete, PermissionExecute,
		PermissionCancel, PermissionReassign, PermissionAdmin:
		return true
	}
	return false
}

// WorkflowDefinition is a versioned, tenant-owned process graph
type WorkflowDefinition struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Version     int       `json:"version"`
	Graph       Graph     `json:"graph"`
	Category    string    `json:"category,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	IsActive    bool      `json:"isActive"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// WorkflowInstance is one execution of a definition against a document.
// Graph is the snapshot taken at creation; CurrentState always names a node in it.
type WorkflowInstance struct {
	ID                string                 `json:"id"`
	TenantID          string                 `json:"tenantId"`
	DefinitionID      string                 `json:"definitionId"`
	DefinitionVersion int                    `json:"definitionVersion"`
	DocumentID        string                 `json:"documentId"`
	CurrentState      string                 `json:"currentState"`
	Context           map[string]interface{} `json:"context"`
	Status            InstanceStatus         `json:"status"`
	StartedBy         string                 `json:"startedBy"`
	AssignedTo        string                 `json:"assignedTo"`
	Priority          Priority               `json:"priority"`
	DueDate           *time.Time             `json:"dueDate,omitempty"`
	StartedAt         time.Time              `json:"startedAt"`
	CompletedAt       *time.Time             `json:"completedAt,omitempty"`
	FailureReason     string                 `json:"failureReason,omitempty"`
	Graph             Graph                  `json:"graph"`
	Revision          int64                  `json:"revision"`
}

// WorkflowTask is a unit of assigned work materialized by a task node
type WorkflowTask struct {
	ID          string                 `json:"id"`
	TenantID    string                 `json:"tenantId"`
	InstanceID  string                 `json:"instanceId"`
	NodeID      string                 `json:"nodeId"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	TaskType    string                 `json:"taskType,omitempty"`
	AssignedTo  string                 `json:"assignedTo"`
	Status      TaskStatus             `json:"status"`
	Priority    Priority               `json:"priority"`
	DueDate     *time.Time             `json:"dueDate,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	CompletedAt *time.Time             `json:"completedAt,omitempty"`
	CompletedBy string                 `json:"completedBy,omitempty"`
	Action      string                 `json:"action,omitempty"`
	Comments    string                 `json:"comments,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// IsOverdue reports whether a pending task is past its due date.
func (t *WorkflowTask) IsOverdue(now time.Time) bool {
	return t.Status == TaskStatusPending && t.DueDate != nil && t.DueDate.Before(now)
}

// WorkflowHistoryEntry is one immutable audit record
type WorkflowHistoryEntry struct {
	ID         string                 `json:"id"`
	InstanceID string                 `json:"instanceId"`
	Action     string                 `json:"action"`
	FromState  string                 `json:"fromState,omitempty"`
	ToState    string                 `json:"toState,omitempty"`
	ActorID    string                 `json:"actorId"`
	Timestamp  time.Time              `json:"timestamp"`
	Comments   string                 `json:"comments,omitempty"`
	ActionData map[string]interface{} `json:"actionData,omitempty"`
}

// WorkflowPermission grants a user or a role a permission type on a definition.
// Actions and Conditions are stored and returned but never evaluated.
type WorkflowPermission struct {
	ID             string                 `json:"id"`
	DefinitionID   string                 `json:"definitionId"`
	UserID         string                 `json:"userId,omitempty"`
	RoleName       string                 `json:"roleName,omitempty"`
	PermissionType PermissionType         `json:"permissionType"`
	ExpiresAt      *time.Time             `json:"expiresAt,omitempty"`
	GrantedBy      string                 `json:"grantedBy"`
	GrantedAt      time.Time              `json:"grantedAt"`
	IsActive       bool                   `json:"isActive"`
	Actions        []string               `json:"actions,omitempty"`
	Conditions     map[string]interface{} `json:"conditions,omitempty"`
}

// IsEffective reports whether the grant is active and unexpired at now.
func (p *WorkflowPermission) IsEffective(now time.Time) bool {
	if !p.IsActive {
		return false
	}
	return p.ExpiresAt == nil || p.ExpiresAt.After(now)
}

// InstanceDetails is an instance with its tasks and full timeline
type InstanceDetails struct {
	Instance *WorkflowInstance       `json:"instance"`
	Tasks    []*WorkflowTask         `json:"tasks"`
	History  []*WorkflowHistoryEntry `json:"history"`
}
