package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/nexuscrm/workflow/internal/application/services"
)

// AnalyticsHandler serves workflow analytics
type AnalyticsHandler struct {
	svc *services.ServiceManager
}

// NewAnalyticsHandler creates a new AnalyticsHandler
func NewAnalyticsHandler(svc *services.ServiceManager) *AnalyticsHandler {
	return &AnalyticsHandler{svc: svc}
}

// GetAnalytics handles GET /api/analytics?definition_id=&from=&to=
// from and to are RFC 3339 timestamps bounding [from, to).
func (h *AnalyticsHandler) GetAnalytics(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	from, err := queryTime(c, "from")
	if err != nil {
		RespondAppError(c, err)
		return
	}
	to, err := queryTime(c, "to")
	if err != nil {
		RespondAppError(c, err)
		return
	}

	q := services.AnalyticsQuery{DefinitionID: c.Query("definition_id"), From: from, To: to}
	HandleGetEnvelope(c, "analytics", func() (interface{}, error) {
		return h.svc.History.Analytics(c.Request.Context(), user, q)
	})
}
