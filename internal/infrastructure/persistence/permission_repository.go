package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nexuscrm/workflow/internal/domain/models"
	"github.com/nexuscrm/workflow/pkg/constants"
)

const permissionColumns = "id, definition_id, user_id, role_name, permission_type, expires_at, granted_by, granted_at, is_active, actions, conditions"

// PermissionRepository handles database operations for permission grants
type PermissionRepository struct {
	db *sql.DB
}

// NewPermissionRepository creates a new PermissionRepository
func NewPermissionRepository(db *sql.DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

func (r *PermissionRepository) CreatePermission(ctx context.Context, perm *models.WorkflowPermission) error {
	actions, err := encodeJSON(perm.Actions)
	if err != nil {
		return err
	}
	conditions, err := encodeJSON(perm.Conditions)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", constants.TablePermissions, permissionColumns, placeholders(11))
	_, err = executor(ctx, r.db).ExecContext(ctx, query,
		perm.ID, perm.DefinitionID, perm.UserID, perm.RoleName, string(perm.PermissionType), nullTime(perm.ExpiresAt),
		perm.GrantedBy, perm.GrantedAt.UTC(), perm.IsActive, actions, conditions,
	)
	if err != nil {
		return fmt.Errorf("failed to insert permission: %w", err)
	}
	return nil
}

func (r *PermissionRepository) GetPermission(ctx context.Context, id string) (*models.WorkflowPermission, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", permissionColumns, constants.TablePermissions)
	perm, err := scanPermission(executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load permission: %w", err)
	}
	return perm, nil
}

func (r *PermissionRepository) DeactivatePermission(ctx context.Context, id string) error {
	query := fmt.Sprintf("UPDATE %s SET is_active = FALSE WHERE id = ?", constants.TablePermissions)
	if _, err := executor(ctx, r.db).ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to deactivate permission: %w", err)
	}
	return nil
}

func (r *PermissionRepository) ListPermissions(ctx context.Context, definitionID string) ([]*models.WorkflowPermission, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE definition_id = ? ORDER BY granted_at, id", permissionColumns, constants.TablePermissions)
	return r.list(ctx, query, definitionID)
}

func (r *PermissionRepository) FindPermissions(ctx context.Context, definitionID, userID string, roles []string) ([]*models.WorkflowPermission, error) {
	subject := "user_id = ?"
	args := []interface{}{definitionID, userID}
	if len(roles) > 0 {
		subject = fmt.Sprintf("(user_id = ? OR role_name IN (%s))", placeholders(len(roles)))
		for _, role := range roles {
			args = append(args, role)
		}
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE definition_id = ? AND is_active = TRUE AND %s",
		permissionColumns, constants.TablePermissions, subject)
	return r.list(ctx, query, args...)
}

func (r *PermissionRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.WorkflowPermission, error) {
	rows, err := executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var out []*models.WorkflowPermission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		out = append(out, perm)
	}
	return out, rows.Err()
}

func scanPermission(row rowScanner) (*models.WorkflowPermission, error) {
	var p models.WorkflowPermission
	var permType string
	var expires sql.NullTime
	var actions, conditions sql.NullString
	if err := row.Scan(&p.ID, &p.DefinitionID, &p.UserID, &p.RoleName, &permType, &expires,
		&p.GrantedBy, &p.GrantedAt, &p.IsActive, &actions, &conditions); err != nil {
		return nil, err
	}
	p.PermissionType = models.PermissionType(permType)
	p.ExpiresAt = timePtr(expires)
	if err := decodeJSON(actions, &p.Actions); err != nil {
		return nil, err
	}
	if err := decodeJSON(conditions, &p.Conditions); err != nil {
		return nil, err
	}
	return &p, nil
}

// RoleRepository resolves user roles from the wf_user_roles table
type RoleRepository struct {
	db *sql.DB
}

// NewRoleRepository creates a new RoleRepository
func NewRoleRepository(db *sql.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) ResolveRoles(ctx context.Context, userID string) ([]string, error) {
	query := fmt.Sprintf("SELECT role_name FROM %s WHERE user_id = ? ORDER BY role_name", constants.TableUserRoles)
	rows, err := executor(ctx, r.db).QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// AssignRole grants role to userID; assigning twice is a no-op.
func (r *RoleRepository) AssignRole(ctx context.Context, userID, role string) error {
	query := fmt.Sprintf("INSERT IGNORE INTO %s (user_id, role_name) VALUES (?, ?)", constants.TableUserRoles)
	if _, err := executor(ctx, r.db).ExecContext(ctx, query, userID, role); err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

// RevokeRole removes role from userID.
func (r *RoleRepository) RevokeRole(ctx context.Context, userID, role string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE user_id = ? AND role_name = ?", constants.TableUserRoles)
	if _, err := executor(ctx, r.db).ExecContext(ctx, query, userID, role); err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	return nil
}
