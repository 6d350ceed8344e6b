package services

import (
	"testing"
	"time"

	"github.com/nexuscrm/workflow/internal/domain/models"
	apperrors "github.com/nexuscrm/workflow/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasPermission(t *testing.T) {
	f := newFixture(t)
	def := f.definition(linearGraph)
	f.grant(def.ID, "viewer", models.PermissionView)
	f.grant(def.ID, "admin", models.PermissionAdmin)

	tests := []struct {
		name     string
		userID   string
		permType models.PermissionType
		want     bool
	}{
		{"creator holds everything", "owner", models.PermissionDelete, true},
		{"view grant allows view", "viewer", models.PermissionView, true},
		{"view grant does not allow execute", "viewer", models.PermissionExecute, false},
		{"view grant does not allow cancel", "viewer", models.PermissionCancel, false},
		{"view grant does not allow reassign", "viewer", models.PermissionReassign, false},
		{"admin implies execute", "admin", models.PermissionExecute, true},
		{"admin implies delete", "admin", models.PermissionDelete, true},
		{"no grant", "stranger", models.PermissionView, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.sm.Permissions.HasPermission(f.ctx, tt.userID, def.ID, tt.permType)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	ok, err := f.sm.Permissions.HasPermission(f.ctx, "owner", "missing", models.PermissionView)
	require.NoError(t, err)
	assert.False(t, ok, "a missing definition grants nothing")
}

func TestHasPermission_RoleGrant(t *testing.T) {
	f := newFixture(t)
	def := f.definition(linearGraph)
	_, err := f.sm.Permissions.GrantPermission(f.ctx, f.owner, def.ID, GrantRequest{RoleName: "ops", PermissionType: models.PermissionExecute})
	require.NoError(t, err)

	ok, err := f.sm.Permissions.HasPermission(f.ctx, "carol", def.ID, models.PermissionExecute)
	require.NoError(t, err)
	assert.False(t, ok)

	f.store.SetRoles("carol", "ops")
	ok, err = f.sm.Permissions.HasPermission(f.ctx, "carol", def.ID, models.PermissionExecute)
	require.NoError(t, err)
	assert.True(t, ok, "roles are resolved at check time")
}

func TestHasPermission_ExpiredAndRevoked(t *testing.T) {
	f := newFixture(t)
	def := f.definition(linearGraph)

	expires := f.clock.Add(time.Hour)
	_, err := f.sm.Permissions.GrantPermission(f.ctx, f.owner, def.ID, GrantRequest{
		UserID: "temp", PermissionType: models.PermissionView, ExpiresAt: &expires,
	})
	require.NoError(t, err)

	ok, err := f.sm.Permissions.HasPermission(f.ctx, "temp", def.ID, models.PermissionView)
	require.NoError(t, err)
	assert.True(t, ok)

	f.advance(2 * time.Hour)
	ok, err = f.sm.Permissions.HasPermission(f.ctx, "temp", def.ID, models.PermissionView)
	require.NoError(t, err)
	assert.False(t, ok)

	perm, err := f.sm.Permissions.GrantPermission(f.ctx, f.owner, def.ID, GrantRequest{UserID: "bob", PermissionType: models.PermissionView})
	require.NoError(t, err)
	require.NoError(t, f.sm.Permissions.RevokePermission(f.ctx, f.owner, perm.ID))

	ok, err = f.sm.Permissions.HasPermission(f.ctx, "bob", def.ID, models.PermissionView)
	require.NoError(t, err)
	assert.False(t, ok)

	perms, err := f.sm.Permissions.ListPermissions(f.ctx, f.owner, def.ID)
	require.NoError(t, err)
	assert.Len(t, perms, 2, "revoked grants are deactivated, not deleted")
}

func TestGrantPermission_Rules(t *testing.T) {
	f := newFixture(t)
	def := f.definition(linearGraph)
	f.grant(def.ID, "editor", models.PermissionEdit)

	_, err := f.sm.Permissions.GrantPermission(f.ctx, f.user("editor"), def.ID, GrantRequest{UserID: "x", PermissionType: models.PermissionView})
	assert.Equal(t, apperrors.KindUnauthorized, apperrors.KindOf(err), "granting requires Admin")

	_, err = f.sm.Permissions.GrantPermission(f.ctx, f.owner, def.ID, GrantRequest{PermissionType: models.PermissionView})
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.sm.Permissions.GrantPermission(f.ctx, f.owner, def.ID, GrantRequest{UserID: "x", PermissionType: "Launch"})
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.sm.Permissions.ListPermissions(f.ctx, f.user("editor"), def.ID)
	assert.Equal(t, apperrors.KindUnauthorized, apperrors.KindOf(err))

	err = f.sm.Permissions.RevokePermission(f.ctx, f.owner, "missing")
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}
