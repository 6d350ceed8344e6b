package rest

import (
	stderrors "errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexuscrm/workflow/internal/domain/models"
	"github.com/nexuscrm/workflow/pkg/constants"
	"github.com/nexuscrm/workflow/pkg/errors"
)

// GetUserFromContext returns the session stored by middleware.RequireAuth
func GetUserFromContext(c *gin.Context) *models.UserSession {
	value, exists := c.Get(constants.ContextKeyUser)
	if !exists {
		return nil
	}
	user, _ := value.(*models.UserSession)
	return user
}

// requireUser aborts with 401 when no session is present.
func requireUser(c *gin.Context) (*models.UserSession, bool) {
	user := GetUserFromContext(c)
	if user == nil {
		RespondAppError(c, errors.NewUnauthorizedError("no authenticated user"))
		return nil, false
	}
	return user, true
}

// RespondAppError renders err with the status and code of its AppError,
// plus the engine outcome kind.
func RespondAppError(c *gin.Context, err error) {
	status := errors.GetHTTPStatus(err)
	resp := errors.ToResponse(err)

	if status >= 500 {
		log.Printf("❌ ERROR [%d] %s %s: %s", status, c.Request.Method, c.Request.URL.Path, resp.Message)
	}

	body := gin.H{
		constants.ResponseError: resp.Message,
		constants.FieldMessage:  resp.Message,
		constants.FieldCode:     resp.Code,
		"kind":                  resp.Kind,
		constants.FieldData:     nil,
	}
	if resp.Details != nil {
		body["details"] = resp.Details
	}
	c.JSON(status, body)
}

// BindJSON binds the body into obj, responding 400 on failure.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		RespondAppError(c, errors.NewValidationError("body", err.Error()))
		return false
	}
	return true
}

// bindOptionalJSON is BindJSON for endpoints whose body may be omitted.
// A chunked request with nothing in it counts as omitted too.
func bindOptionalJSON(c *gin.Context, obj interface{}) bool {
	if c.Request.ContentLength == 0 || c.Request.Body == nil || c.Request.Body == http.NoBody {
		return true
	}
	if err := c.ShouldBindJSON(obj); err != nil {
		if stderrors.Is(err, io.EOF) {
			return true
		}
		RespondAppError(c, errors.NewValidationError("body", err.Error()))
		return false
	}
	return true
}

// HandleGetEnvelope responds { key: result }
func HandleGetEnvelope(c *gin.Context, key string, action func() (interface{}, error)) {
	result, err := action()
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{key: result})
}

// respondEnvelope responds { message, key: obj } with the given status
func respondEnvelope(c *gin.Context, status int, message, key string, obj interface{}) {
	response := gin.H{constants.FieldMessage: message}
	if key != "" {
		response[key] = obj
	}
	c.JSON(status, response)
}

// HandleDeleteEnvelope responds { message } once action succeeds
func HandleDeleteEnvelope(c *gin.Context, successMsg string, action func() error) {
	if err := action(); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{constants.FieldMessage: successMsg})
}

// queryTime parses an optional RFC 3339 query parameter.
func queryTime(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, errors.NewValidationError(name, "must be an RFC 3339 timestamp")
	}
	return &t, nil
}

// queryList splits a comma separated query parameter, dropping blanks.
func queryList(c *gin.Context, name string) []string {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
