package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nexuscrm/workflow/internal/domain/models"
	"github.com/nexuscrm/workflow/internal/domain/ports"
	"github.com/nexuscrm/workflow/pkg/errors"
	"github.com/nexuscrm/workflow/pkg/utils"
)

// PermissionService authorizes operations on workflow definitions.
//
// Evaluation order:
//  1. The definition creator holds implicit Admin
//  2. An active, unexpired grant to the user or to one of the user's current
//     roles whose type is the requested type or Admin
//
// Grant actions and conditions are stored but never evaluated.
type PermissionService struct {
	definitions ports.DefinitionStore
	permissions ports.PermissionStore
	roles       ports.RoleResolver
	now         func() time.Time
}

// NewPermissionService creates a new PermissionService
func NewPermissionService(definitions ports.DefinitionStore, permissions ports.PermissionStore, roles ports.RoleResolver) *PermissionService {
	return &PermissionService{
		definitions: definitions,
		permissions: permissions,
		roles:       roles,
		now:         time.Now,
	}
}

// GrantRequest describes a new grant. At least one of UserID or RoleName is required.
type GrantRequest struct {
	UserID         string                 `json:"userId"`
	RoleName       string                 `json:"roleName"`
	PermissionType models.PermissionType  `json:"permissionType"`
	ExpiresAt      *time.Time             `json:"expiresAt"`
	Actions        []string               `json:"actions"`
	Conditions     map[string]interface{} `json:"conditions"`
}

// HasPermission reports whether userID holds permType on the definition.
// A missing definition yields false.
func (ps *PermissionService) HasPermission(ctx context.Context, userID, definitionID string, permType models.PermissionType) (bool, error) {
	def, err := ps.definitions.GetDefinition(ctx, definitionID)
	if err != nil {
		return false, errors.Internal("failed to load definition", err)
	}
	if def == nil {
		return false, nil
	}
	return ps.hasPermissionOn(ctx, userID, def, permType)
}

// Authorize returns a PermissionError unless user holds permType on def.
func (ps *PermissionService) Authorize(ctx context.Context, user *models.UserSession, def *models.WorkflowDefinition, permType models.PermissionType) error {
	ok, err := ps.hasPermissionOn(ctx, user.ID, def, permType)
	if err != nil {
		return err
	}
	if !ok {
		return &errors.PermissionError{
			Action:   string(permType),
			Resource: "workflow " + def.ID,
			UserID:   user.ID,
		}
	}
	return nil
}

func (ps *PermissionService) hasPermissionOn(ctx context.Context, userID string, def *models.WorkflowDefinition, permType models.PermissionType) (bool, error) {
	if def.CreatedBy != "" && def.CreatedBy == userID {
		return true, nil
	}

	roles, err := ps.roles.ResolveRoles(ctx, userID)
	if err != nil {
		return false, errors.Internal(fmt.Sprintf("failed to resolve roles for %s", userID), err)
	}

	grants, err := ps.permissions.FindPermissions(ctx, def.ID, userID, roles)
	if err != nil {
		return false, errors.Internal("failed to load permissions", err)
	}

	now := ps.now()
	for _, g := range grants {
		if !g.IsEffective(now) {
			continue
		}
		if g.PermissionType == permType || g.PermissionType == models.PermissionAdmin {
			return true, nil
		}
	}
	return false, nil
}

// GrantPermission adds a grant on definitionID. The caller must hold Admin.
func (ps *PermissionService) GrantPermission(ctx context.Context, user *models.UserSession, definitionID string, req GrantRequest) (*models.WorkflowPermission, error) {
	if req.UserID == "" && req.RoleName == "" {
		return nil, errors.NewValidationError("userId", "a user or a role is required")
	}
	if !req.PermissionType.IsValid() {
		return nil, errors.NewValidationError("permissionType", fmt.Sprintf("unknown permission type '%s'", req.PermissionType))
	}

	def, err := ps.loadDefinition(ctx, user, definitionID)
	if err != nil {
		return nil, err
	}
	if err := ps.Authorize(ctx, user, def, models.PermissionAdmin); err != nil {
		return nil, err
	}

	perm := &models.WorkflowPermission{
		ID:             utils.GenerateID(),
		DefinitionID:   def.ID,
		UserID:         req.UserID,
		RoleName:       req.RoleName,
		PermissionType: req.PermissionType,
		ExpiresAt:      req.ExpiresAt,
		GrantedBy:      user.ID,
		GrantedAt:      ps.now(),
		IsActive:       true,
		Actions:        req.Actions,
		Conditions:     req.Conditions,
	}
	if err := ps.permissions.CreatePermission(ctx, perm); err != nil {
		return nil, errors.Internal("failed to create permission", err)
	}

	log.Printf("🔐 Permission %s granted on %s to %s%s by %s", perm.PermissionType, def.ID, perm.UserID, perm.RoleName, user.ID)
	return perm, nil
}

// RevokePermission deactivates a grant. The caller must hold Admin on its definition.
func (ps *PermissionService) RevokePermission(ctx context.Context, user *models.UserSession, permissionID string) error {
	perm, err := ps.permissions.GetPermission(ctx, permissionID)
	if err != nil {
		return errors.Internal("failed to load permission", err)
	}
	if perm == nil {
		return errors.NewNotFoundError("WorkflowPermission", permissionID)
	}

	def, err := ps.loadDefinition(ctx, user, perm.DefinitionID)
	if err != nil {
		return err
	}
	if err := ps.Authorize(ctx, user, def, models.PermissionAdmin); err != nil {
		return err
	}

	if err := ps.permissions.DeactivatePermission(ctx, permissionID); err != nil {
		return errors.Internal("failed to revoke permission", err)
	}
	log.Printf("🔐 Permission %s revoked by %s", permissionID, user.ID)
	return nil
}

// ListPermissions returns every grant on a definition, active or not. Requires Admin.
func (ps *PermissionService) ListPermissions(ctx context.Context, user *models.UserSession, definitionID string) ([]*models.WorkflowPermission, error) {
	def, err := ps.loadDefinition(ctx, user, definitionID)
	if err != nil {
		return nil, err
	}
	if err := ps.Authorize(ctx, user, def, models.PermissionAdmin); err != nil {
		return nil, err
	}
	return ps.permissions.ListPermissions(ctx, def.ID)
}

// loadDefinition fetches a definition visible to the caller's tenant.
func (ps *PermissionService) loadDefinition(ctx context.Context, user *models.UserSession, id string) (*models.WorkflowDefinition, error) {
	def, err := ps.definitions.GetDefinition(ctx, id)
	if err != nil {
		return nil, errors.Internal("failed to load definition", err)
	}
	if def == nil || (user.TenantID != "" && def.TenantID != user.TenantID) {
		return nil, errors.NewNotFoundError("WorkflowDefinition", id)
	}
	return def, nil
}
