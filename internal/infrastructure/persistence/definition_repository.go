package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/nexuscrm/workflow/internal/domain/models"
	"github.com/nexuscrm/workflow/pkg/constants"
	apperrors "github.com/nexuscrm/workflow/pkg/errors"
)

const definitionColumns = "id, tenant_id, name, description, version, graph, category, tags, is_active, created_by, created_at, updated_at"

// DefinitionRepository handles database operations for workflow definitions
type DefinitionRepository struct {
	db *sql.DB
}

// NewDefinitionRepository creates a new DefinitionRepository
func NewDefinitionRepository(db *sql.DB) *DefinitionRepository {
	return &DefinitionRepository{db: db}
}

func (r *DefinitionRepository) CreateDefinition(ctx context.Context, def *models.WorkflowDefinition) error {
	graph, err := encodeJSON(def.Graph)
	if err != nil {
		return err
	}
	tags, err := encodeJSON(def.Tags)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", constants.TableDefinitions, definitionColumns, placeholders(12))
	_, err = executor(ctx, r.db).ExecContext(ctx, query,
		def.ID, def.TenantID, def.Name, def.Description, def.Version, graph,
		def.Category, tags, def.IsActive, def.CreatedBy, def.CreatedAt.UTC(), def.UpdatedAt.UTC(),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return apperrors.NewConflictError("WorkflowDefinition", "id", def.ID)
		}
		return fmt.Errorf("failed to insert definition: %w", err)
	}
	return nil
}

func (r *DefinitionRepository) GetDefinition(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", definitionColumns, constants.TableDefinitions)
	def, err := scanDefinition(executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load definition: %w", err)
	}
	return def, nil
}

func (r *DefinitionRepository) UpdateDefinition(ctx context.Context, def *models.WorkflowDefinition) error {
	graph, err := encodeJSON(def.Graph)
	if err != nil {
		return err
	}
	tags, err := encodeJSON(def.Tags)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET name = ?, description = ?, version = ?, graph = ?, category = ?, tags = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`, constants.TableDefinitions)
	res, err := executor(ctx, r.db).ExecContext(ctx, query,
		def.Name, def.Description, def.Version, graph, def.Category, tags, def.IsActive, def.UpdatedAt.UTC(), def.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update definition: %w", err)
	}
	return requireRow(res, "WorkflowDefinition", def.ID)
}

// DeleteDefinition removes the definition and its grants.
func (r *DefinitionRepository) DeleteDefinition(ctx context.Context, id string) error {
	exec := executor(ctx, r.db)
	if _, err := exec.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE definition_id = ?", constants.TablePermissions), id); err != nil {
		return fmt.Errorf("failed to delete definition permissions: %w", err)
	}
	res, err := exec.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", constants.TableDefinitions), id)
	if err != nil {
		return fmt.Errorf("failed to delete definition: %w", err)
	}
	return requireRow(res, "WorkflowDefinition", id)
}

func (r *DefinitionRepository) ListDefinitions(ctx context.Context, filter models.DefinitionFilter) ([]*models.WorkflowDefinition, error) {
	var where []string
	var args []interface{}
	if filter.TenantID != "" {
		where = append(where, "tenant_id = ?")
		args = append(args, filter.TenantID)
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.Tag != "" {
		where = append(where, "JSON_CONTAINS(tags, JSON_QUOTE(?))")
		args = append(args, filter.Tag)
	}
	if filter.ActiveOnly {
		where = append(where, "is_active = TRUE")
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY created_at, id", definitionColumns, constants.TableDefinitions, whereClause(where))
	rows, err := executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	defer rows.Close()

	var out []*models.WorkflowDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}
		out = append(out, def)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDefinition(row rowScanner) (*models.WorkflowDefinition, error) {
	var def models.WorkflowDefinition
	var description, category, graph, tags sql.NullString
	if err := row.Scan(
		&def.ID, &def.TenantID, &def.Name, &description, &def.Version, &graph,
		&category, &tags, &def.IsActive, &def.CreatedBy, &def.CreatedAt, &def.UpdatedAt,
	); err != nil {
		return nil, err
	}
	def.Description = nullString(description)
	def.Category = nullString(category)
	if err := decodeJSON(graph, &def.Graph); err != nil {
		return nil, err
	}
	if err := decodeJSON(tags, &def.Tags); err != nil {
		return nil, err
	}
	return &def, nil
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

// requireRow maps an UPDATE/DELETE that touched nothing to NotFound.
func requireRow(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return apperrors.NewNotFoundError(resource, id)
	}
	return nil
}
