package memory

import (
	"github.com/nexuscrm/workflow/internal/domain/models"
	"github.com/nexuscrm/workflow/pkg/utils"
)

func cloneDefinition(d *models.WorkflowDefinition) *models.WorkflowDefinition {
	out := *d
	out.Graph = d.Graph.Clone()
	out.Tags = append([]string(nil), d.Tags...)
	return &out
}

func cloneInstance(i *models.WorkflowInstance) *models.WorkflowInstance {
	out := *i
	out.Context = utils.CloneMap(i.Context)
	out.Graph = i.Graph.Clone()
	out.DueDate = cloneTime(i.DueDate)
	out.CompletedAt = cloneTime(i.CompletedAt)
	return &out
}

func cloneTask(t *models.WorkflowTask) *models.WorkflowTask {
	out := *t
	if t.Data != nil {
		out.Data = utils.CloneMap(t.Data)
	}
	out.DueDate = cloneTime(t.DueDate)
	out.CompletedAt = cloneTime(t.CompletedAt)
	return &out
}

func cloneHistory(e *models.WorkflowHistoryEntry) *models.WorkflowHistoryEntry {
	out := *e
	if e.ActionData != nil {
		out.ActionData = utils.CloneMap(e.ActionData)
	}
	return &out
}

func clonePermission(p *models.WorkflowPermission) *models.WorkflowPermission {
	out := *p
	out.ExpiresAt = cloneTime(p.ExpiresAt)
	out.Actions = append([]string(nil), p.Actions...)
	if p.Conditions != nil {
		out.Conditions = utils.CloneMap(p.Conditions)
	}
	return &out
}

func cloneTime[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
