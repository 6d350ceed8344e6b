package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexuscrm/workflow/internal/application/services"
)

// TaskHandler serves the task inbox and task actions
type TaskHandler struct {
	svc *services.ServiceManager
	now func() time.Time
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(svc *services.ServiceManager) *TaskHandler {
	return &TaskHandler{svc: svc, now: time.Now}
}

// GetPending handles GET /api/tasks/pending
func (h *TaskHandler) GetPending(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	HandleGetEnvelope(c, "tasks", func() (interface{}, error) {
		return h.svc.Tasks.PendingTasks(c.Request.Context(), user)
	})
}

// GetOverdue handles GET /api/tasks/overdue
func (h *TaskHandler) GetOverdue(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	HandleGetEnvelope(c, "tasks", func() (interface{}, error) {
		return h.svc.Tasks.OverdueTasks(c.Request.Context(), user, h.now())
	})
}

// CompleteTask handles POST /api/tasks/:id/complete
func (h *TaskHandler) CompleteTask(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req services.CompleteTaskRequest
	if !BindJSON(c, &req) {
		return
	}

	task, err := h.svc.Tasks.CompleteTask(c.Request.Context(), user, c.Param("id"), req)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	respondEnvelope(c, http.StatusOK, "Task completed", "task", task)
}

// ReassignTask handles POST /api/tasks/:id/reassign
func (h *TaskHandler) ReassignTask(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req services.ReassignTaskRequest
	if !BindJSON(c, &req) {
		return
	}

	task, err := h.svc.Tasks.ReassignTask(c.Request.Context(), user, c.Param("id"), req)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	respondEnvelope(c, http.StatusOK, "Task reassigned", "task", task)
}
