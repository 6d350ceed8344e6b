package services

import (
	"testing"

	"github.com/nexuscrm/workflow/internal/domain"
	"github.com/nexuscrm/workflow/internal/domain/models"
	apperrors "github.com/nexuscrm/workflow/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustGraph(t *testing.T, raw string) models.Graph {
	t.Helper()
	g, err := models.ParseGraphJSON([]byte(raw))
	require.NoError(t, err)
	return g
}

func TestCreateDefinition_SavesInvalidGraphs(t *testing.T) {
	f := newFixture(t)
	g := mustGraph(t, `{"nodes": [{"id": "t1", "type": "task"}], "connections": []}`)

	def, result, err := f.sm.Definitions.CreateDefinition(f.ctx, f.owner, DefinitionRequest{Name: "Draft", Graph: g})
	require.NoError(t, err)
	assert.Equal(t, 1, def.Version)
	assert.False(t, def.IsActive)
	assert.Equal(t, "acme", def.TenantID)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Codes(), domain.IssueMissingStartNode)
	assert.Contains(t, result.Codes(), domain.IssueMissingEndNode)

	_, err = f.sm.Definitions.ActivateDefinition(f.ctx, f.owner, def.ID)
	assert.Equal(t, apperrors.KindValidationFailed, apperrors.KindOf(err))

	_, _, err = f.sm.Definitions.CreateDefinition(f.ctx, f.owner, DefinitionRequest{Name: "  "})
	assert.True(t, apperrors.IsValidation(err))
}

func TestUpdateDefinition_BumpsVersion(t *testing.T) {
	f := newFixture(t)
	def := f.definition(linearGraph)

	f.grant(def.ID, "viewer", models.PermissionView)
	_, _, err := f.sm.Definitions.UpdateDefinition(f.ctx, f.user("viewer"), def.ID, DefinitionRequest{Name: "x", Graph: def.Graph})
	assert.Equal(t, apperrors.KindUnauthorized, apperrors.KindOf(err))

	renamed, result, err := f.sm.Definitions.UpdateDefinition(f.ctx, f.owner, def.ID, DefinitionRequest{Name: "Approval v2", Graph: def.Graph})
	require.NoError(t, err)
	assert.Equal(t, 2, renamed.Version)
	assert.True(t, renamed.IsActive)
	assert.True(t, result.IsValid)

	_, err = f.sm.Definitions.DeactivateDefinition(f.ctx, f.owner, def.ID)
	require.NoError(t, err)

	broken := mustGraph(t, `{"nodes": [{"id": "s1", "type": "start"}], "connections": []}`)
	updated, result, err := f.sm.Definitions.UpdateDefinition(f.ctx, f.owner, def.ID, DefinitionRequest{Name: "Approval", Graph: broken})
	require.NoError(t, err, "validation results never block saving an inactive definition")
	assert.Equal(t, 3, updated.Version)
	assert.False(t, result.IsValid)

	stored, err := f.sm.Definitions.GetDefinition(f.ctx, f.owner, def.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Version)
	assert.Len(t, stored.Graph.Nodes, 1)
}

func TestUpdateDefinition_ActiveRefusesInvalidGraph(t *testing.T) {
	f := newFixture(t)
	def := f.definition(linearGraph)

	noEnd := mustGraph(t, `{
	  "nodes": [{"id": "s1", "type": "start"}, {"id": "t1", "type": "task"}],
	  "connections": [{"sourceNodeId": "s1", "targetNodeId": "t1"}]
	}`)
	_, result, err := f.sm.Definitions.UpdateDefinition(f.ctx, f.owner, def.ID, DefinitionRequest{Name: "Approval", Graph: noEnd})
	assert.Equal(t, apperrors.KindValidationFailed, apperrors.KindOf(err))
	assert.Equal(t, []string{domain.IssueMissingEndNode}, result.Codes())

	stored, err := f.sm.Definitions.GetDefinition(f.ctx, f.owner, def.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
	assert.Equal(t, 1, stored.Version)
	assert.Len(t, stored.Graph.Nodes, 3, "the active graph is left as it was")

	inst := f.start(def.ID, CreateInstanceRequest{AssignedTo: "alice"})
	assert.Equal(t, "t1", inst.CurrentState)
	assert.Len(t, inst.Graph.Nodes, 3)
}

func TestValidateDefinition_WarnsOnConditionsThatDoNotCompile(t *testing.T) {
	f := newFixture(t)
	g := mustGraph(t, `{
	  "nodes": [
	    {"id": "s1", "type": "start"},
	    {"id": "d1", "type": "decision"},
	    {"id": "e1", "type": "end"},
	    {"id": "e2", "type": "end"}
	  ],
	  "connections": [
	    {"sourceNodeId": "s1", "targetNodeId": "d1"},
	    {"sourceNodeId": "d1", "targetNodeId": "e1", "condition": "amount >"},
	    {"sourceNodeId": "d1", "targetNodeId": "e2", "condition": "amount <= 100"}
	  ]
	}`)

	result := f.sm.Definitions.ValidateDefinition(g)
	assert.True(t, result.IsValid, "a bad condition is a warning")
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, domain.IssueInvalidCondition, result.Warnings[0].Code)
	assert.Equal(t, "d1", result.Warnings[0].NodeID)

	def, created, err := f.sm.Definitions.CreateDefinition(f.ctx, f.owner, DefinitionRequest{Name: "Routing", Graph: g})
	require.NoError(t, err)
	assert.Equal(t, result, created)
	_, err = f.sm.Definitions.ActivateDefinition(f.ctx, f.owner, def.ID)
	assert.NoError(t, err)
}

func TestDeleteDefinition(t *testing.T) {
	f := newFixture(t)
	def := f.definition(linearGraph)
	inst := f.start(def.ID, CreateInstanceRequest{})

	f.grant(def.ID, "editor", models.PermissionEdit)
	err := f.sm.Definitions.DeleteDefinition(f.ctx, f.user("editor"), def.ID)
	assert.Equal(t, apperrors.KindUnauthorized, apperrors.KindOf(err))

	err = f.sm.Definitions.DeleteDefinition(f.ctx, f.owner, def.ID)
	assert.Equal(t, apperrors.KindInvalidState, apperrors.KindOf(err), "running instances block deletion")

	_, err = f.sm.Engine.CancelInstance(f.ctx, f.owner, inst.ID, "")
	require.NoError(t, err)
	require.NoError(t, f.sm.Definitions.DeleteDefinition(f.ctx, f.owner, def.ID))

	_, err = f.sm.Definitions.GetDefinition(f.ctx, f.owner, def.ID)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestListDefinitions_OnlyViewable(t *testing.T) {
	f := newFixture(t)
	a := f.definition(linearGraph)
	f.definition(linearGraph)
	f.grant(a.ID, "viewer", models.PermissionView)

	mine, err := f.sm.Definitions.ListDefinitions(f.ctx, f.owner, models.DefinitionFilter{})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	theirs, err := f.sm.Definitions.ListDefinitions(f.ctx, f.user("viewer"), models.DefinitionFilter{})
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, a.ID, theirs[0].ID)

	other, err := f.sm.Definitions.ListDefinitions(f.ctx, &models.UserSession{ID: "owner", TenantID: "globex"}, models.DefinitionFilter{})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestDeactivatedDefinitionKeepsRunningInstances(t *testing.T) {
	f := newFixture(t)
	def := f.definition(linearGraph)
	inst := f.start(def.ID, CreateInstanceRequest{AssignedTo: "alice"})

	_, err := f.sm.Definitions.DeactivateDefinition(f.ctx, f.owner, def.ID)
	require.NoError(t, err)

	_, err = f.sm.Tasks.CompleteTask(f.ctx, f.user("alice"), f.tasks(inst.ID)[0].ID, CompleteTaskRequest{Action: "approve"})
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCompleted, f.instance(inst.ID).Status)
}
