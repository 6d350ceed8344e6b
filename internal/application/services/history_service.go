package services

import (
	"context"
	"fmt"
	"time"

	"github.com/nexuscrm/workflow/internal/domain/models"
	"github.com/nexuscrm/workflow/internal/domain/ports"
	"github.com/nexuscrm/workflow/pkg/errors"
	"github.com/nexuscrm/workflow/pkg/utils"
)

// HistoryService appends audit entries and derives reporting from them.
// It has no update or delete path.
type HistoryService struct {
	history     ports.HistoryStore
	instances   ports.InstanceStore
	permissions *PermissionService
	now         func() time.Time
}

// NewHistoryService creates a new HistoryService
func NewHistoryService(history ports.HistoryStore, instances ports.InstanceStore, permissions *PermissionService) *HistoryService {
	return &HistoryService{
		history:     history,
		instances:   instances,
		permissions: permissions,
		now:         time.Now,
	}
}

// HistoryEntry is the input to Append
type HistoryEntry struct {
	InstanceID string
	Action     string
	FromState  string
	ToState    string
	ActorID    string
	Comments   string
	ActionData map[string]interface{}
}

// Append records one immutable entry stamped with the current time.
func (hs *HistoryService) Append(ctx context.Context, e HistoryEntry) error {
	entry := &models.WorkflowHistoryEntry{
		ID:         utils.GenerateID(),
		InstanceID: e.InstanceID,
		Action:     e.Action,
		FromState:  e.FromState,
		ToState:    e.ToState,
		ActorID:    e.ActorID,
		Timestamp:  hs.now(),
		Comments:   e.Comments,
		ActionData: e.ActionData,
	}
	if err := hs.history.AppendHistory(ctx, entry); err != nil {
		return errors.Internal(fmt.Sprintf("failed to append history %s for %s", e.Action, e.InstanceID), err)
	}
	return nil
}

// Timeline returns every entry for an instance in append order.
func (hs *HistoryService) Timeline(ctx context.Context, instanceID string) ([]*models.WorkflowHistoryEntry, error) {
	return hs.history.ListHistory(ctx, instanceID)
}

// HasAction reports whether an instance's timeline already contains action.
func (hs *HistoryService) HasAction(ctx context.Context, instanceID, action string) (bool, error) {
	entries, err := hs.history.ListHistory(ctx, instanceID)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Action == action {
			return true, nil
		}
	}
	return false, nil
}

// AnalyticsQuery scopes Analytics. Instances are selected by start time and
// history entries by timestamp, both in [From, To).
type AnalyticsQuery struct {
	DefinitionID string
	From         *time.Time
	To           *time.Time
}

// Analytics is a read-side projection over instances and their history
type Analytics struct {
	TotalInstances        int            `json:"totalInstances"`
	ActiveInstances       int            `json:"activeInstances"`
	CompletedInstances    int            `json:"completedInstances"`
	CancelledInstances    int            `json:"cancelledInstances"`
	FailedInstances       int            `json:"failedInstances"`
	SuccessRate           float64        `json:"successRate"`
	AverageCompletionSecs float64        `json:"averageCompletionSeconds"`
	ActionCounts          map[string]int `json:"actionCounts"`
}

// Analytics aggregates one definition when DefinitionID is set (View
// required), otherwise every definition of the caller's tenant the caller
// may view.
func (hs *HistoryService) Analytics(ctx context.Context, user *models.UserSession, q AnalyticsQuery) (*Analytics, error) {
	definitionIDs, err := hs.viewableDefinitions(ctx, user, q.DefinitionID)
	if err != nil {
		return nil, err
	}

	out := &Analytics{ActionCounts: map[string]int{}}
	var completionTotal time.Duration
	for _, definitionID := range definitionIDs {
		instances, err := hs.instances.ListInstances(ctx, models.InstanceFilter{
			TenantID:     user.TenantID,
			DefinitionID: definitionID,
			StartedFrom:  q.From,
			StartedTo:    q.To,
		})
		if err != nil {
			return nil, errors.Internal("failed to list instances", err)
		}

		out.TotalInstances += len(instances)
		for _, inst := range instances {
			switch inst.Status {
			case models.InstanceStatusCompleted:
				out.CompletedInstances++
				if inst.CompletedAt != nil {
					completionTotal += inst.CompletedAt.Sub(inst.StartedAt)
				}
			case models.InstanceStatusCancelled:
				out.CancelledInstances++
			case models.InstanceStatusFailed:
				out.FailedInstances++
			default:
				out.ActiveInstances++
			}
		}

		counts, err := hs.history.CountActions(ctx, models.HistoryFilter{
			TenantID:     user.TenantID,
			DefinitionID: definitionID,
			From:         q.From,
			To:           q.To,
		})
		if err != nil {
			return nil, errors.Internal("failed to count history actions", err)
		}
		for action, n := range counts {
			out.ActionCounts[action] += n
		}
	}

	if finished := out.CompletedInstances + out.CancelledInstances + out.FailedInstances; finished > 0 {
		out.SuccessRate = float64(out.CompletedInstances) / float64(finished)
	}
	if out.CompletedInstances > 0 {
		out.AverageCompletionSecs = completionTotal.Seconds() / float64(out.CompletedInstances)
	}
	return out, nil
}

// viewableDefinitions returns definitionID after checking View on it, or
// the IDs of every tenant definition the caller may view.
func (hs *HistoryService) viewableDefinitions(ctx context.Context, user *models.UserSession, definitionID string) ([]string, error) {
	if definitionID != "" {
		def, err := hs.permissions.loadDefinition(ctx, user, definitionID)
		if err != nil {
			return nil, err
		}
		if err := hs.permissions.Authorize(ctx, user, def, models.PermissionView); err != nil {
			return nil, err
		}
		return []string{def.ID}, nil
	}

	defs, err := hs.permissions.definitions.ListDefinitions(ctx, models.DefinitionFilter{TenantID: user.TenantID})
	if err != nil {
		return nil, errors.Internal("failed to list definitions", err)
	}
	var ids []string
	for _, def := range defs {
		ok, err := hs.permissions.hasPermissionOn(ctx, user.ID, def, models.PermissionView)
		if err != nil {
			return nil, err
		}
		if ok {
			ids = append(ids, def.ID)
		}
	}
	return ids, nil
}
