package services

import (
	"context"
	"testing"
	"time"

	"github.com/nexuscrm/workflow/internal/domain/models"
	"github.com/nexuscrm/workflow/internal/domain/ports"
	"github.com/nexuscrm/workflow/internal/infrastructure/memory"
	"github.com/stretchr/testify/require"
)

const linearGraph = `{
  "nodes": [
    {"id": "s1", "name": "Start", "type": "start"},
    {"id": "t1", "name": "Review", "type": "task", "config": {"taskType": "approval"}},
    {"id": "e1", "name": "Done", "type": "end", "config": {"outcome": "approved"}}
  ],
  "connections": [
    {"sourceNodeId": "s1", "targetNodeId": "t1"},
    {"sourceNodeId": "t1", "targetNodeId": "e1"}
  ]
}`

// The task has no outgoing connection, so only the all-tasks-finished rule
// can complete the instance.
const singleTaskGraph = `{
  "nodes": [
    {"id": "s1", "name": "Start", "type": "start"},
    {"id": "t1", "name": "Sign", "type": "task"},
    {"id": "e1", "name": "Done", "type": "end"}
  ],
  "connections": [
    {"sourceNodeId": "s1", "targetNodeId": "t1"}
  ]
}`

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *memory.Store
	sm    *ServiceManager
	clock time.Time
	owner *models.UserSession
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, nil)
}

// newFixtureWith lets a test put wrap between the services and the memory
// store; f.store stays the underlying store.
func newFixtureWith(t *testing.T, wrap func(*memory.Store) ports.Store) *fixture {
	store := memory.NewStore()
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: store,
		clock: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		owner: &models.UserSession{ID: "owner", Name: "Owner", TenantID: "acme"},
	}
	var backing ports.Store = store
	if wrap != nil {
		backing = wrap(store)
	}
	f.sm = NewServiceManager(backing, store, SweepConfig{Concurrency: 4})

	now := func() time.Time { return f.clock }
	f.sm.Permissions.now = now
	f.sm.History.now = now
	f.sm.Tasks.now = now
	f.sm.Definitions.now = now
	f.sm.Engine.now = now
	return f
}

func (f *fixture) user(id string) *models.UserSession {
	return &models.UserSession{ID: id, Name: id, TenantID: "acme"}
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

// definition creates and activates a definition owned by f.owner.
func (f *fixture) definition(graphJSON string) *models.WorkflowDefinition {
	g, err := models.ParseGraphJSON([]byte(graphJSON))
	require.NoError(f.t, err)

	def, _, err := f.sm.Definitions.CreateDefinition(f.ctx, f.owner, DefinitionRequest{Name: "Approval", Graph: g})
	require.NoError(f.t, err)
	def, err = f.sm.Definitions.ActivateDefinition(f.ctx, f.owner, def.ID)
	require.NoError(f.t, err)
	return def
}

func (f *fixture) grant(definitionID, userID string, permType models.PermissionType) {
	_, err := f.sm.Permissions.GrantPermission(f.ctx, f.owner, definitionID, GrantRequest{UserID: userID, PermissionType: permType})
	require.NoError(f.t, err)
}

func (f *fixture) start(definitionID string, req CreateInstanceRequest) *models.WorkflowInstance {
	inst, err := f.sm.Engine.CreateInstance(f.ctx, f.owner, definitionID, req)
	require.NoError(f.t, err)
	return inst
}

func (f *fixture) instance(id string) *models.WorkflowInstance {
	inst, err := f.store.GetInstance(f.ctx, id)
	require.NoError(f.t, err)
	require.NotNil(f.t, inst)
	return inst
}

func (f *fixture) tasks(instanceID string) []*models.WorkflowTask {
	tasks, err := f.store.ListTasksByInstance(f.ctx, instanceID)
	require.NoError(f.t, err)
	return tasks
}

func (f *fixture) actions(instanceID string) []string {
	entries, err := f.store.ListHistory(f.ctx, instanceID)
	require.NoError(f.t, err)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}
