package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nexuscrm/workflow/internal/application/services"
)

// PermissionHandler serves definition grant endpoints
type PermissionHandler struct {
	svc *services.ServiceManager
}

// NewPermissionHandler creates a new PermissionHandler
func NewPermissionHandler(svc *services.ServiceManager) *PermissionHandler {
	return &PermissionHandler{svc: svc}
}

// ListPermissions handles GET /api/definitions/:id/permissions
func (h *PermissionHandler) ListPermissions(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	HandleGetEnvelope(c, "permissions", func() (interface{}, error) {
		return h.svc.Permissions.ListPermissions(c.Request.Context(), user, c.Param("id"))
	})
}

// GrantPermission handles POST /api/definitions/:id/permissions
func (h *PermissionHandler) GrantPermission(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req services.GrantRequest
	if !BindJSON(c, &req) {
		return
	}

	perm, err := h.svc.Permissions.GrantPermission(c.Request.Context(), user, c.Param("id"), req)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	respondEnvelope(c, http.StatusCreated, "Permission granted", "permission", perm)
}

// RevokePermission handles DELETE /api/permissions/:id
func (h *PermissionHandler) RevokePermission(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	HandleDeleteEnvelope(c, "Permission revoked", func() error {
		return h.svc.Permissions.RevokePermission(c.Request.Context(), user, c.Param("id"))
	})
}
