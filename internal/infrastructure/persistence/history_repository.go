package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nexuscrm/workflow/internal/domain/models"
	"github.com/nexuscrm/workflow/pkg/constants"
)

const historyColumns = "id, instance_id, action, from_state, to_state, actor_id, timestamp, comments, action_data"

// HistoryRepository is append-only. Entries are read back in insertion
// order via the auto-increment seq column.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a new HistoryRepository
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) AppendHistory(ctx context.Context, entry *models.WorkflowHistoryEntry) error {
	data, err := encodeJSON(entry.ActionData)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", constants.TableHistory, historyColumns, placeholders(9))
	_, err = executor(ctx, r.db).ExecContext(ctx, query,
		entry.ID, entry.InstanceID, entry.Action, entry.FromState, entry.ToState,
		entry.ActorID, entry.Timestamp.UTC(), entry.Comments, data,
	)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func (r *HistoryRepository) ListHistory(ctx context.Context, instanceID string) ([]*models.WorkflowHistoryEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE instance_id = ? ORDER BY seq", historyColumns, constants.TableHistory)
	rows, err := executor(ctx, r.db).QueryContext(ctx, query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var out []*models.WorkflowHistoryEntry
	for rows.Next() {
		var e models.WorkflowHistoryEntry
		var comments, data sql.NullString
		if err := rows.Scan(&e.ID, &e.InstanceID, &e.Action, &e.FromState, &e.ToState,
			&e.ActorID, &e.Timestamp, &comments, &data); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		e.Comments = nullString(comments)
		if err := decodeJSON(data, &e.ActionData); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (r *HistoryRepository) CountActions(ctx context.Context, filter models.HistoryFilter) (map[string]int, error) {
	var where []string
	var args []interface{}
	if filter.TenantID != "" {
		where = append(where, "i.tenant_id = ?")
		args = append(args, filter.TenantID)
	}
	if filter.DefinitionID != "" {
		where = append(where, "i.definition_id = ?")
		args = append(args, filter.DefinitionID)
	}
	if filter.From != nil {
		where = append(where, "h.timestamp >= ?")
		args = append(args, filter.From.UTC())
	}
	if filter.To != nil {
		where = append(where, "h.timestamp < ?")
		args = append(args, filter.To.UTC())
	}

	query := fmt.Sprintf(
		"SELECT h.action, COUNT(*) FROM %s h JOIN %s i ON i.id = h.instance_id%s GROUP BY h.action",
		constants.TableHistory, constants.TableInstances, whereClause(where),
	)
	rows, err := executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count history actions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var action string
		var n int
		if err := rows.Scan(&action, &n); err != nil {
			return nil, fmt.Errorf("failed to scan action count: %w", err)
		}
		out[action] = n
	}
	return out, rows.Err()
}
