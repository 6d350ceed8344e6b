package ports

import (
	"context"

	"github.com/nexuscrm/workflow/internal/domain/models"
)

// DefinitionStore persists workflow definitions.
// Get returns (nil, nil) when the definition does not exist.
type DefinitionStore interface {
	CreateDefinition(ctx context.Context, def *models.WorkflowDefinition) error
	GetDefinition(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	UpdateDefinition(ctx context.Context, def *models.WorkflowDefinition) error
	DeleteDefinition(ctx context.Context, id string) error
	ListDefinitions(ctx context.Context, filter models.DefinitionFilter) ([]*models.WorkflowDefinition, error)
}

// InstanceStore persists workflow instances.
type InstanceStore interface {
	CreateInstance(ctx context.Context, inst *models.WorkflowInstance) error
	// GetInstance returns (nil, nil) when the instance does not exist.
	GetInstance(ctx context.Context, id string) (*models.WorkflowInstance, error)
	// UpdateInstance writes inst only if the stored revision equals
	// inst.Revision, then increments inst.Revision. A lost race returns a
	// ConflictError and leaves the stored row untouched.
	UpdateInstance(ctx context.Context, inst *models.WorkflowInstance) error
	ListInstances(ctx context.Context, filter models.InstanceFilter) ([]*models.WorkflowInstance, error)
	CountInstances(ctx context.Context, definitionID string, statuses []models.InstanceStatus) (int, error)
}

// TaskStore persists workflow tasks.
type TaskStore interface {
	// CreateTask returns a ConflictError when a task already exists for
	// (InstanceID, NodeID).
	CreateTask(ctx context.Context, task *models.WorkflowTask) error
	// GetTask returns (nil, nil) when the task does not exist.
	GetTask(ctx context.Context, id string) (*models.WorkflowTask, error)
	// FindTaskByNode returns (nil, nil) when the node has no task yet.
	FindTaskByNode(ctx context.Context, instanceID, nodeID string) (*models.WorkflowTask, error)
	// UpdateTask writes task only while the stored task is still in status
	// from; otherwise it returns an InvalidStateError and writes nothing.
	UpdateTask(ctx context.Context, task *models.WorkflowTask, from models.TaskStatus) error
	ListTasksByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowTask, error)
	ListTasks(ctx context.Context, filter models.TaskFilter) ([]*models.WorkflowTask, error)
}

// HistoryStore is append-only: there is no update or delete.
type HistoryStore interface {
	AppendHistory(ctx context.Context, entry *models.WorkflowHistoryEntry) error
	ListHistory(ctx context.Context, instanceID string) ([]*models.WorkflowHistoryEntry, error)
	// CountActions aggregates history actions for instances matching filter.
	CountActions(ctx context.Context, filter models.HistoryFilter) (map[string]int, error)
}

// PermissionStore persists permission grants.
type PermissionStore interface {
	CreatePermission(ctx context.Context, perm *models.WorkflowPermission) error
	// GetPermission returns (nil, nil) when the grant does not exist.
	GetPermission(ctx context.Context, id string) (*models.WorkflowPermission, error)
	DeactivatePermission(ctx context.Context, id string) error
	ListPermissions(ctx context.Context, definitionID string) ([]*models.WorkflowPermission, error)
	// FindPermissions returns active grants on definitionID held by userID
	// directly or by any of roles. Expiry is checked by the caller.
	FindPermissions(ctx context.Context, definitionID, userID string, roles []string) ([]*models.WorkflowPermission, error)
}

// Store bundles every persistence port; both the memory and SQL backends satisfy it.
type Store interface {
	DefinitionStore
	InstanceStore
	TaskStore
	HistoryStore
	PermissionStore
	TxRunner
}
