package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nexuscrm/workflow/internal/domain/models"
	"github.com/nexuscrm/workflow/pkg/auth"
	"github.com/nexuscrm/workflow/pkg/constants"
)

// TokenValidator verifies a bearer token and returns its claims
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

func unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, gin.H{
		constants.ResponseError: "Unauthorized",
		constants.FieldMessage:  message,
		constants.FieldCode:     "UNAUTHORIZED",
		constants.FieldData:     nil,
	})
	c.Abort()
}

// RequireAuth validates the bearer token and stores the caller as a
// *models.UserSession under constants.ContextKeyUser. Tokens without a
// tenant are rejected: every engine call is tenant scoped.
func RequireAuth(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(constants.HeaderAuthorization)
		if authHeader == "" {
			unauthorized(c, "No authorization token provided")
			return
		}

		// Format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != constants.BearerPrefix || parts[1] == "" {
			unauthorized(c, "Invalid authorization header format")
			return
		}

		claims, err := tokens.ValidateToken(parts[1])
		if err != nil {
			unauthorized(c, err.Error())
			return
		}
		if claims.User.TenantID == "" {
			unauthorized(c, "token has no tenant")
			return
		}

		c.Set(constants.ContextKeyUser, &models.UserSession{
			ID:       claims.User.ID,
			Name:     claims.User.Name,
			TenantID: claims.User.TenantID,
		})
		c.Next()
	}
}

// Cors allows browser clients from any origin to call the API
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			origin = "*"
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
