package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/nexuscrm/workflow/internal/domain/models"
	"github.com/nexuscrm/workflow/pkg/constants"
	apperrors "github.com/nexuscrm/workflow/pkg/errors"
)

const instanceColumns = "id, tenant_id, definition_id, definition_version, document_id, current_state, context, status, " +
	"started_by, assigned_to, priority, due_date, started_at, completed_at, failure_reason, graph, revision"

// InstanceRepository handles database operations for workflow instances.
// Updates are compare-and-swap on the revision column.
type InstanceRepository struct {
	db *sql.DB
}

// NewInstanceRepository creates a new InstanceRepository
func NewInstanceRepository(db *sql.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

func (r *InstanceRepository) CreateInstance(ctx context.Context, inst *models.WorkflowInstance) error {
	ctxJSON, err := encodeJSON(inst.Context)
	if err != nil {
		return err
	}
	graph, err := encodeJSON(inst.Graph)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", constants.TableInstances, instanceColumns, placeholders(17))
	_, err = executor(ctx, r.db).ExecContext(ctx, query,
		inst.ID, inst.TenantID, inst.DefinitionID, inst.DefinitionVersion, inst.DocumentID, inst.CurrentState, ctxJSON,
		string(inst.Status), inst.StartedBy, inst.AssignedTo, string(inst.Priority), nullTime(inst.DueDate),
		inst.StartedAt.UTC(), nullTime(inst.CompletedAt), inst.FailureReason, graph, inst.Revision,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return apperrors.NewConflictError("WorkflowInstance", "id", inst.ID)
		}
		return fmt.Errorf("failed to insert instance: %w", err)
	}
	return nil
}

// GetInstance locks the row when called inside a transaction so concurrent
// engine calls on one instance serialize.
func (r *InstanceRepository) GetInstance(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", instanceColumns, constants.TableInstances)
	if _, inTx := ctx.Value(txContextKey{}).(*sql.Tx); inTx {
		query += " FOR UPDATE"
	}
	inst, err := scanInstance(executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load instance: %w", err)
	}
	return inst, nil
}

func (r *InstanceRepository) UpdateInstance(ctx context.Context, inst *models.WorkflowInstance) error {
	ctxJSON, err := encodeJSON(inst.Context)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET current_state = ?, context = ?, status = ?, assigned_to = ?, priority = ?, due_date = ?,
			completed_at = ?, failure_reason = ?, revision = revision + 1
		WHERE id = ? AND revision = ?
	`, constants.TableInstances)
	res, err := executor(ctx, r.db).ExecContext(ctx, query,
		inst.CurrentState, ctxJSON, string(inst.Status), inst.AssignedTo, string(inst.Priority), nullTime(inst.DueDate),
		nullTime(inst.CompletedAt), inst.FailureReason, inst.ID, inst.Revision,
	)
	if err != nil {
		return fmt.Errorf("failed to update instance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return apperrors.NewConflictError("WorkflowInstance", "revision", strconv.FormatInt(inst.Revision, 10))
	}
	inst.Revision++
	return nil
}

func (r *InstanceRepository) ListInstances(ctx context.Context, filter models.InstanceFilter) ([]*models.WorkflowInstance, error) {
	where, args := instanceWhere(filter.TenantID, filter.DefinitionID, filter.Statuses)
	if filter.StartedFrom != nil {
		where = append(where, "started_at >= ?")
		args = append(args, filter.StartedFrom.UTC())
	}
	if filter.StartedTo != nil {
		where = append(where, "started_at < ?")
		args = append(args, filter.StartedTo.UTC())
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY started_at, id", instanceColumns, constants.TableInstances, whereClause(where))
	rows, err := executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	var out []*models.WorkflowInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (r *InstanceRepository) CountInstances(ctx context.Context, definitionID string, statuses []models.InstanceStatus) (int, error) {
	where, args := instanceWhere("", definitionID, statuses)
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", constants.TableInstances, whereClause(where))

	var n int
	if err := executor(ctx, r.db).QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count instances: %w", err)
	}
	return n, nil
}

func instanceWhere(tenantID, definitionID string, statuses []models.InstanceStatus) ([]string, []interface{}) {
	var where []string
	var args []interface{}
	if tenantID != "" {
		where = append(where, "tenant_id = ?")
		args = append(args, tenantID)
	}
	if definitionID != "" {
		where = append(where, "definition_id = ?")
		args = append(args, definitionID)
	}
	if len(statuses) > 0 {
		where = append(where, fmt.Sprintf("status IN (%s)", placeholders(len(statuses))))
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}
	return where, args
}

func scanInstance(row rowScanner) (*models.WorkflowInstance, error) {
	var inst models.WorkflowInstance
	var status, priority string
	var ctxJSON, graph sql.NullString
	var due, completed sql.NullTime
	if err := row.Scan(
		&inst.ID, &inst.TenantID, &inst.DefinitionID, &inst.DefinitionVersion, &inst.DocumentID, &inst.CurrentState, &ctxJSON,
		&status, &inst.StartedBy, &inst.AssignedTo, &priority, &due,
		&inst.StartedAt, &completed, &inst.FailureReason, &graph, &inst.Revision,
	); err != nil {
		return nil, err
	}
	inst.Status = models.InstanceStatus(status)
	inst.Priority = models.Priority(priority)
	inst.DueDate = timePtr(due)
	inst.CompletedAt = timePtr(completed)
	if err := decodeJSON(ctxJSON, &inst.Context); err != nil {
		return nil, err
	}
	if inst.Context == nil {
		inst.Context = map[string]interface{}{}
	}
	if err := decodeJSON(graph, &inst.Graph); err != nil {
		return nil, err
	}
	return &inst, nil
}
