package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nexuscrm/workflow/internal/application/services"
	"github.com/nexuscrm/workflow/internal/domain/models"
)

// DefinitionHandler serves workflow definition endpoints
type DefinitionHandler struct {
	svc *services.ServiceManager
}

// NewDefinitionHandler creates a new DefinitionHandler
func NewDefinitionHandler(svc *services.ServiceManager) *DefinitionHandler {
	return &DefinitionHandler{svc: svc}
}

// ListDefinitions handles GET /api/definitions?category=&tag=&active=true
func (h *DefinitionHandler) ListDefinitions(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	filter := models.DefinitionFilter{
		Category:   c.Query("category"),
		Tag:        c.Query("tag"),
		ActiveOnly: c.Query("active") == "true",
	}
	HandleGetEnvelope(c, "definitions", func() (interface{}, error) {
		return h.svc.Definitions.ListDefinitions(c.Request.Context(), user, filter)
	})
}

// CreateDefinition handles POST /api/definitions. The validation result is
// returned alongside the saved definition.
func (h *DefinitionHandler) CreateDefinition(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req services.DefinitionRequest
	if !BindJSON(c, &req) {
		return
	}

	def, validation, err := h.svc.Definitions.CreateDefinition(c.Request.Context(), user, req)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":    "Definition created successfully",
		"definition": def,
		"validation": validation,
	})
}

// ValidateDefinition handles POST /api/definitions/validate
func (h *DefinitionHandler) ValidateDefinition(c *gin.Context) {
	var g models.Graph
	if !BindJSON(c, &g) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"validation": h.svc.Definitions.ValidateDefinition(g)})
}

// GetDefinition handles GET /api/definitions/:id
func (h *DefinitionHandler) GetDefinition(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	HandleGetEnvelope(c, "definition", func() (interface{}, error) {
		return h.svc.Definitions.GetDefinition(c.Request.Context(), user, c.Param("id"))
	})
}

// UpdateDefinition handles PUT /api/definitions/:id
func (h *DefinitionHandler) UpdateDefinition(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req services.DefinitionRequest
	if !BindJSON(c, &req) {
		return
	}

	def, validation, err := h.svc.Definitions.UpdateDefinition(c.Request.Context(), user, c.Param("id"), req)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    "Definition updated successfully",
		"definition": def,
		"validation": validation,
	})
}

// DeleteDefinition handles DELETE /api/definitions/:id
func (h *DefinitionHandler) DeleteDefinition(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	HandleDeleteEnvelope(c, "Definition deleted successfully", func() error {
		return h.svc.Definitions.DeleteDefinition(c.Request.Context(), user, c.Param("id"))
	})
}

// ActivateDefinition handles POST /api/definitions/:id/activate
func (h *DefinitionHandler) ActivateDefinition(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	def, err := h.svc.Definitions.ActivateDefinition(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	respondEnvelope(c, http.StatusOK, "Definition activated", "definition", def)
}

// DeactivateDefinition handles POST /api/definitions/:id/deactivate
func (h *DefinitionHandler) DeactivateDefinition(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	def, err := h.svc.Definitions.DeactivateDefinition(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	respondEnvelope(c, http.StatusOK, "Definition deactivated", "definition", def)
}
