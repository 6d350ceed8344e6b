package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nexuscrm/workflow/internal/domain/models"
	"github.com/nexuscrm/workflow/pkg/constants"
	apperrors "github.com/nexuscrm/workflow/pkg/errors"
)

const taskColumns = "id, tenant_id, instance_id, node_id, name, description, task_type, assigned_to, status, priority, " +
	"due_date, created_at, completed_at, completed_by, action, comments, data"

// Due date ascending with undated last, then most urgent first.
const taskOrder = " ORDER BY due_date IS NULL, due_date, FIELD(priority, 'Urgent', 'High', 'Normal', 'Low'), created_at, id"

// TaskRepository handles database operations for workflow tasks
type TaskRepository struct {
	db *sql.DB
}

// NewTaskRepository creates a new TaskRepository
func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// CreateTask relies on the unique (instance_id, node_id) key to keep one
// task per node; a duplicate maps to a ConflictError.
func (r *TaskRepository) CreateTask(ctx context.Context, task *models.WorkflowTask) error {
	data, err := encodeJSON(task.Data)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", constants.TableTasks, taskColumns, placeholders(17))
	_, err = executor(ctx, r.db).ExecContext(ctx, query,
		task.ID, task.TenantID, task.InstanceID, task.NodeID, task.Name, task.Description, task.TaskType,
		task.AssignedTo, string(task.Status), string(task.Priority), nullTime(task.DueDate), task.CreatedAt.UTC(),
		nullTime(task.CompletedAt), task.CompletedBy, task.Action, task.Comments, data,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return apperrors.NewConflictError("WorkflowTask", "nodeId", task.NodeID)
		}
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

func (r *TaskRepository) GetTask(ctx context.Context, id string) (*models.WorkflowTask, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", taskColumns, constants.TableTasks)
	return r.getOne(ctx, query, id)
}

func (r *TaskRepository) FindTaskByNode(ctx context.Context, instanceID, nodeID string) (*models.WorkflowTask, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE instance_id = ? AND node_id = ?", taskColumns, constants.TableTasks)
	return r.getOne(ctx, query, instanceID, nodeID)
}

func (r *TaskRepository) getOne(ctx context.Context, query string, args ...interface{}) (*models.WorkflowTask, error) {
	task, err := scanTask(executor(ctx, r.db).QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	return task, nil
}

// UpdateTask is conditional on the stored status still being from.
func (r *TaskRepository) UpdateTask(ctx context.Context, task *models.WorkflowTask, from models.TaskStatus) error {
	data, err := encodeJSON(task.Data)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET assigned_to = ?, status = ?, priority = ?, due_date = ?, completed_at = ?, completed_by = ?,
			action = ?, comments = ?, data = ?
		WHERE id = ? AND status = ?
	`, constants.TableTasks)
	result, err := executor(ctx, r.db).ExecContext(ctx, query,
		task.AssignedTo, string(task.Status), string(task.Priority), nullTime(task.DueDate), nullTime(task.CompletedAt),
		task.CompletedBy, task.Action, task.Comments, data, task.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if affected == 0 {
		return apperrors.NewInvalidStateError("task", "not "+string(from), "update")
	}
	return nil
}

func (r *TaskRepository) ListTasksByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowTask, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE instance_id = ? ORDER BY created_at, id", taskColumns, constants.TableTasks)
	return r.list(ctx, query, instanceID)
}

func (r *TaskRepository) ListTasks(ctx context.Context, filter models.TaskFilter) ([]*models.WorkflowTask, error) {
	var where []string
	var args []interface{}
	if filter.TenantID != "" {
		where = append(where, "tenant_id = ?")
		args = append(args, filter.TenantID)
	}
	if len(filter.Assignees) > 0 {
		where = append(where, fmt.Sprintf("assigned_to IN (%s)", placeholders(len(filter.Assignees))))
		for _, a := range filter.Assignees {
			args = append(args, a)
		}
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.DueBefore != nil {
		where = append(where, "due_date IS NOT NULL AND due_date < ?")
		args = append(args, filter.DueBefore.UTC())
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s%s", taskColumns, constants.TableTasks, whereClause(where), taskOrder)
	return r.list(ctx, query, args...)
}

func (r *TaskRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.WorkflowTask, error) {
	rows, err := executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var out []*models.WorkflowTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

func scanTask(row rowScanner) (*models.WorkflowTask, error) {
	var task models.WorkflowTask
	var status, priority string
	var description, comments, data sql.NullString
	var due, completed sql.NullTime
	if err := row.Scan(
		&task.ID, &task.TenantID, &task.InstanceID, &task.NodeID, &task.Name, &description, &task.TaskType,
		&task.AssignedTo, &status, &priority, &due, &task.CreatedAt,
		&completed, &task.CompletedBy, &task.Action, &comments, &data,
	); err != nil {
		return nil, err
	}
	task.Status = models.TaskStatus(status)
	task.Priority = models.Priority(priority)
	task.Description = nullString(description)
	task.Comments = nullString(comments)
	task.DueDate = timePtr(due)
	task.CompletedAt = timePtr(completed)
	if err := decodeJSON(data, &task.Data); err != nil {
		return nil, err
	}
	return &task, nil
}
