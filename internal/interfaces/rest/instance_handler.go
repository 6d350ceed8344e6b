package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nexuscrm/workflow/internal/application/services"
	"github.com/nexuscrm/workflow/internal/domain/models"
)

// InstanceHandler serves workflow instance endpoints
type InstanceHandler struct {
	svc *services.ServiceManager
}

// NewInstanceHandler creates a new InstanceHandler
func NewInstanceHandler(svc *services.ServiceManager) *InstanceHandler {
	return &InstanceHandler{svc: svc}
}

// CommentRequest is the optional body of pause, resume and cancel
type CommentRequest struct {
	Comments string `json:"comments"`
}

// StepRequest is the optional body of a manual step
type StepRequest struct {
	Data map[string]interface{} `json:"data"`
}

// CreateInstance handles POST /api/definitions/:id/instances
func (h *InstanceHandler) CreateInstance(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req services.CreateInstanceRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	inst, err := h.svc.Engine.CreateInstance(c.Request.Context(), user, c.Param("id"), req)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	respondEnvelope(c, http.StatusCreated, "Instance started", "instance", inst)
}

// ListInstances handles GET /api/definitions/:id/instances?status=active,paused
func (h *InstanceHandler) ListInstances(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var statuses []models.InstanceStatus
	for _, s := range queryList(c, "status") {
		statuses = append(statuses, models.InstanceStatus(s))
	}
	HandleGetEnvelope(c, "instances", func() (interface{}, error) {
		return h.svc.Engine.ListInstances(c.Request.Context(), user, c.Param("id"), statuses)
	})
}

// GetInstance handles GET /api/instances/:id. The response carries the
// instance, its tasks and its timeline.
func (h *InstanceHandler) GetInstance(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	details, err := h.svc.Engine.GetInstance(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// ExecuteStep handles POST /api/instances/:id/steps/:nodeId
func (h *InstanceHandler) ExecuteStep(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req StepRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	inst, err := h.svc.Engine.ExecuteStep(c.Request.Context(), user, c.Param("id"), c.Param("nodeId"), req.Data)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	respondEnvelope(c, http.StatusOK, "Step executed", "instance", inst)
}

type lifecycleOp func(c *gin.Context, user *models.UserSession, id, comments string) (*models.WorkflowInstance, error)

func (h *InstanceHandler) lifecycle(c *gin.Context, message string, op lifecycleOp) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req CommentRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	inst, err := op(c, user, c.Param("id"), req.Comments)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	respondEnvelope(c, http.StatusOK, message, "instance", inst)
}

// PauseInstance handles POST /api/instances/:id/pause
func (h *InstanceHandler) PauseInstance(c *gin.Context) {
	h.lifecycle(c, "Instance paused", func(c *gin.Context, user *models.UserSession, id, comments string) (*models.WorkflowInstance, error) {
		return h.svc.Engine.PauseInstance(c.Request.Context(), user, id, comments)
	})
}

// ResumeInstance handles POST /api/instances/:id/resume
func (h *InstanceHandler) ResumeInstance(c *gin.Context) {
	h.lifecycle(c, "Instance resumed", func(c *gin.Context, user *models.UserSession, id, comments string) (*models.WorkflowInstance, error) {
		return h.svc.Engine.ResumeInstance(c.Request.Context(), user, id, comments)
	})
}

// CancelInstance handles POST /api/instances/:id/cancel
func (h *InstanceHandler) CancelInstance(c *gin.Context) {
	h.lifecycle(c, "Instance cancelled", func(c *gin.Context, user *models.UserSession, id, comments string) (*models.WorkflowInstance, error) {
		return h.svc.Engine.CancelInstance(c.Request.Context(), user, id, comments)
	})
}
