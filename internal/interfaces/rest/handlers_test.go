package rest_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexuscrm/workflow/internal/application/services"
	"github.com/nexuscrm/workflow/internal/infrastructure/memory"
	"github.com/nexuscrm/workflow/internal/interfaces/rest"
	"github.com/nexuscrm/workflow/pkg/auth"
	"github.com/nexuscrm/workflow/pkg/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const approvalGraph = `{
  "nodes": [
    {"id": "s1", "name": "Start", "type": "start"},
    {"id": "t1", "name": "Review", "type": "task", "config": {"taskType": "approval"}},
    {"id": "e1", "name": "Done", "type": "end"}
  ],
  "connections": [
    {"sourceNodeId": "s1", "targetNodeId": "t1"},
    {"sourceNodeId": "t1", "targetNodeId": "e1"}
  ]
}`

type apiClient struct {
	t      *testing.T
	router *gin.Engine
	tokens *auth.TokenManager
}

func newAPIClient(t *testing.T) *apiClient {
	gin.SetMode(gin.TestMode)
	store := memory.NewStore()
	sm := services.NewServiceManager(store, store, services.SweepConfig{Concurrency: 2})
	tokens := auth.NewTokenManager("test-secret", time.Hour)

	router := gin.New()
	rest.RegisterRoutes(router, sm, tokens)
	return &apiClient{t: t, router: router, tokens: tokens}
}

// do sends a request as userID (anonymous when empty) and decodes the JSON body.
func (a *apiClient) do(method, path, userID, body string) (int, map[string]interface{}) {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		token, err := a.tokens.GenerateToken(auth.UserSession{ID: userID, Name: userID, TenantID: "acme"})
		require.NoError(a.t, err)
		req.Header.Set(constants.HeaderAuthorization, "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func field(t *testing.T, m map[string]interface{}, key string) map[string]interface{} {
	v, ok := m[key].(map[string]interface{})
	require.True(t, ok, "missing object %q in %v", key, m)
	return v
}

// activeDefinition creates and activates a definition owned by "owner".
func (a *apiClient) activeDefinition() string {
	code, body := a.do(http.MethodPost, "/api/definitions", "owner",
		`{"name": "Expense approval", "category": "finance", "graph": `+approvalGraph+`}`)
	require.Equal(a.t, http.StatusCreated, code, body)
	assert.Equal(a.t, true, field(a.t, body, "validation")["isValid"])
	id := field(a.t, body, "definition")["id"].(string)

	code, body = a.do(http.MethodPost, "/api/definitions/"+id+"/activate", "owner", "")
	require.Equal(a.t, http.StatusOK, code, body)
	assert.Equal(a.t, true, field(a.t, body, "definition")["isActive"])
	return id
}

func TestAPI_RequiresAuthentication(t *testing.T) {
	api := newAPIClient(t)

	code, body := api.do(http.MethodGet, "/api/definitions", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "UNAUTHORIZED", body[constants.FieldCode])

	code, _ = api.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestAPI_ApprovalRoundTrip(t *testing.T) {
	api := newAPIClient(t)
	defID := api.activeDefinition()

	code, body := api.do(http.MethodPost, "/api/definitions/"+defID+"/instances", "owner",
		`{"documentId": "exp-42", "assignedTo": "alice", "context": {"amount": 120}}`)
	require.Equal(t, http.StatusCreated, code, body)
	inst := field(t, body, "instance")
	instID := inst["id"].(string)
	assert.Equal(t, "Active", inst["status"])
	assert.Equal(t, "t1", inst["currentState"])

	code, body = api.do(http.MethodGet, "/api/tasks/pending", "alice", "")
	require.Equal(t, http.StatusOK, code)
	tasks := body["tasks"].([]interface{})
	require.Len(t, tasks, 1)
	taskID := tasks[0].(map[string]interface{})["id"].(string)

	code, body = api.do(http.MethodPost, "/api/tasks/"+taskID+"/complete", "bob", `{"action": "approve"}`)
	assert.Equal(t, http.StatusUnauthorized, code, body)
	assert.Equal(t, "Unauthorized", body["kind"])

	code, body = api.do(http.MethodPost, "/api/tasks/"+taskID+"/complete", "alice",
		`{"action": "approve", "comments": "ok", "taskData": {"approved": true}}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "Completed", field(t, body, "task")["status"])

	code, body = api.do(http.MethodGet, "/api/instances/"+instID, "owner", "")
	require.Equal(t, http.StatusOK, code, body)
	got := field(t, body, "instance")
	assert.Equal(t, "Completed", got["status"])
	assert.Equal(t, "e1", got["currentState"])
	assert.Equal(t, true, field(t, got, "context")["approved"])
	assert.NotEmpty(t, body["history"])

	code, body = api.do(http.MethodGet, "/api/analytics?definition_id="+defID, "owner", "")
	require.Equal(t, http.StatusOK, code, body)
	analytics := field(t, body, "analytics")
	assert.Equal(t, float64(1), analytics["totalInstances"])
	assert.Equal(t, float64(1), analytics["completedInstances"])
}

// chunked sends body with an unknown length, as a chunked upload arrives.
func (a *apiClient) chunked(method, path, userID, body string) (int, map[string]interface{}) {
	req := httptest.NewRequest(method, path, io.NopCloser(strings.NewReader(body)))
	require.Equal(a.t, int64(-1), req.ContentLength)
	req.Header.Set("Content-Type", "application/json")
	token, err := a.tokens.GenerateToken(auth.UserSession{ID: userID, Name: userID, TenantID: "acme"})
	require.NoError(a.t, err)
	req.Header.Set(constants.HeaderAuthorization, "Bearer "+token)

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var out map[string]interface{}
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func TestAPI_OptionalBodyWithUnknownLength(t *testing.T) {
	api := newAPIClient(t)
	defID := api.activeDefinition()

	code, body := api.chunked(http.MethodPost, "/api/definitions/"+defID+"/instances", "owner", "")
	require.Equal(t, http.StatusCreated, code, body)
	instID := field(t, body, "instance")["id"].(string)

	code, body = api.chunked(http.MethodPost, "/api/instances/"+instID+"/pause", "owner", `{"comments": "on hold"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "Paused", field(t, body, "instance")["status"])

	code, body = api.chunked(http.MethodPost, "/api/instances/"+instID+"/resume", "owner", `{"comments": `)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "ValidationFailed", body["kind"])
}

func TestAPI_InstanceLifecycle(t *testing.T) {
	api := newAPIClient(t)
	defID := api.activeDefinition()

	code, body := api.do(http.MethodPost, "/api/definitions/"+defID+"/instances", "owner", "")
	require.Equal(t, http.StatusCreated, code, body)
	instID := field(t, body, "instance")["id"].(string)

	code, body = api.do(http.MethodPost, "/api/instances/"+instID+"/pause", "owner", `{"comments": "waiting on finance"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "Paused", field(t, body, "instance")["status"])

	code, body = api.do(http.MethodPost, "/api/instances/"+instID+"/pause", "owner", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "InvalidState", body["kind"])

	code, body = api.do(http.MethodGet, "/api/definitions/"+defID+"/instances?status=Paused", "owner", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Len(t, body["instances"], 1)

	code, body = api.do(http.MethodPost, "/api/instances/"+instID+"/resume", "owner", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "Active", field(t, body, "instance")["status"])

	code, body = api.do(http.MethodPost, "/api/instances/"+instID+"/cancel", "owner", `{"comments": "withdrawn"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "Cancelled", field(t, body, "instance")["status"])

	code, body = api.do(http.MethodGet, "/api/definitions/"+defID+"/instances?status=Active,Paused", "owner", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Empty(t, body["instances"])
}

func TestAPI_Permissions(t *testing.T) {
	api := newAPIClient(t)
	defID := api.activeDefinition()

	code, body := api.do(http.MethodPost, "/api/definitions/"+defID+"/instances", "bob", "")
	assert.Equal(t, http.StatusForbidden, code, body)

	code, body = api.do(http.MethodPost, "/api/definitions/"+defID+"/permissions", "owner",
		`{"userId": "bob", "permissionType": "Execute"}`)
	require.Equal(t, http.StatusCreated, code, body)
	permID := field(t, body, "permission")["id"].(string)

	code, body = api.do(http.MethodPost, "/api/definitions/"+defID+"/instances", "bob", "")
	assert.Equal(t, http.StatusCreated, code, body)

	code, body = api.do(http.MethodGet, "/api/definitions/"+defID+"/permissions", "owner", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Len(t, body["permissions"], 1)

	code, body = api.do(http.MethodDelete, "/api/permissions/"+permID, "owner", "")
	require.Equal(t, http.StatusOK, code, body)

	code, _ = api.do(http.MethodPost, "/api/definitions/"+defID+"/instances", "bob", "")
	assert.Equal(t, http.StatusForbidden, code)
}

func TestAPI_Errors(t *testing.T) {
	api := newAPIClient(t)
	defID := api.activeDefinition()

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantKind   string
	}{
		{"missing definition", http.MethodGet, "/api/definitions/nope", "", http.StatusNotFound, "NotFound"},
		{"malformed body", http.MethodPost, "/api/definitions", `{"name": `, http.StatusBadRequest, "ValidationFailed"},
		{"unknown priority", http.MethodPost, "/api/definitions/" + defID + "/instances", `{"priority": "Whenever"}`, http.StatusBadRequest, "ValidationFailed"},
		{"missing task", http.MethodPost, "/api/tasks/nope/complete", `{"action": "approve"}`, http.StatusNotFound, "NotFound"},
		{"bad analytics window", http.MethodGet, "/api/analytics?from=yesterday", "", http.StatusBadRequest, "ValidationFailed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := api.do(tt.method, tt.path, "owner", tt.body)
			assert.Equal(t, tt.wantStatus, code, body)
			assert.Equal(t, tt.wantKind, body["kind"])
		})
	}
}

func TestAPI_ValidateDefinition(t *testing.T) {
	api := newAPIClient(t)

	code, body := api.do(http.MethodPost, "/api/definitions/validate", "owner", `{"nodes": [], "connections": []}`)
	require.Equal(t, http.StatusOK, code, body)
	validation := field(t, body, "validation")
	assert.Equal(t, false, validation["isValid"])
	assert.NotEmpty(t, validation["errors"])

	code, body = api.do(http.MethodPost, "/api/definitions/validate", "owner", approvalGraph)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, field(t, body, "validation")["isValid"])
}
