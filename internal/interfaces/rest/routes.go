package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nexuscrm/workflow/internal/application/services"
	"github.com/nexuscrm/workflow/internal/interfaces/middleware"
)

// RegisterRoutes mounts the health check and the authenticated /api tree.
func RegisterRoutes(router *gin.Engine, svc *services.ServiceManager, tokens middleware.TokenValidator) {
	definitionHandler := NewDefinitionHandler(svc)
	instanceHandler := NewInstanceHandler(svc)
	taskHandler := NewTaskHandler(svc)
	permissionHandler := NewPermissionHandler(svc)
	analyticsHandler := NewAnalyticsHandler(svc)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(middleware.RequireAuth(tokens))
	{
		definitions := api.Group("/definitions")
		{
			definitions.GET("", definitionHandler.ListDefinitions)
			definitions.POST("", definitionHandler.CreateDefinition)
			definitions.POST("/validate", definitionHandler.ValidateDefinition)
			definitions.GET("/:id", definitionHandler.GetDefinition)
			definitions.PUT("/:id", definitionHandler.UpdateDefinition)
			definitions.DELETE("/:id", definitionHandler.DeleteDefinition)
			definitions.POST("/:id/activate", definitionHandler.ActivateDefinition)
			definitions.POST("/:id/deactivate", definitionHandler.DeactivateDefinition)

			definitions.GET("/:id/permissions", permissionHandler.ListPermissions)
			definitions.POST("/:id/permissions", permissionHandler.GrantPermission)

			definitions.GET("/:id/instances", instanceHandler.ListInstances)
			definitions.POST("/:id/instances", instanceHandler.CreateInstance)
		}

		api.DELETE("/permissions/:id", permissionHandler.RevokePermission)

		instances := api.Group("/instances")
		{
			instances.GET("/:id", instanceHandler.GetInstance)
			instances.POST("/:id/steps/:nodeId", instanceHandler.ExecuteStep)
			instances.POST("/:id/pause", instanceHandler.PauseInstance)
			instances.POST("/:id/resume", instanceHandler.ResumeInstance)
			instances.POST("/:id/cancel", instanceHandler.CancelInstance)
		}

		tasks := api.Group("/tasks")
		{
			tasks.GET("/pending", taskHandler.GetPending)
			tasks.GET("/overdue", taskHandler.GetOverdue)
			tasks.POST("/:id/complete", taskHandler.CompleteTask)
			tasks.POST("/:id/reassign", taskHandler.ReassignTask)
		}

		api.GET("/analytics", analyticsHandler.GetAnalytics)
	}
}
