package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nexuscrm/workflow/internal/domain"
	"github.com/nexuscrm/workflow/internal/domain/models"
	"github.com/nexuscrm/workflow/internal/domain/ports"
	"github.com/nexuscrm/workflow/pkg/errors"
	"github.com/nexuscrm/workflow/pkg/utils"
)

// DefinitionService manages workflow definitions. Validation results are
// advisory on save; only activation requires an error-free graph.
type DefinitionService struct {
	definitions ports.DefinitionStore
	instances   ports.InstanceStore
	tx          ports.TxRunner
	permissions *PermissionService
	conditions  ports.ConditionEvaluator
	now         func() time.Time
}

// NewDefinitionService creates a new DefinitionService
func NewDefinitionService(
	definitions ports.DefinitionStore,
	instances ports.InstanceStore,
	tx ports.TxRunner,
	permissions *PermissionService,
	conditions ports.ConditionEvaluator,
) *DefinitionService {
	return &DefinitionService{
		definitions: definitions,
		instances:   instances,
		tx:          tx,
		permissions: permissions,
		conditions:  conditions,
		now:         time.Now,
	}
}

// DefinitionRequest is the body of a create or update
type DefinitionRequest struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    string       `json:"category"`
	Tags        []string     `json:"tags"`
	Graph       models.Graph `json:"graph"`
}

// ValidateDefinition validates a graph without touching storage.
// Conditions that do not compile are reported as warnings.
func (ds *DefinitionService) ValidateDefinition(g models.Graph) domain.ValidationResult {
	result := domain.ValidateGraph(g)
	if ds.conditions != nil {
		result.CheckConditions(g, ds.conditions.Validate)
	}
	return result
}

// CreateDefinition stores a new inactive definition at version 1 owned by the caller.
func (ds *DefinitionService) CreateDefinition(ctx context.Context, user *models.UserSession, req DefinitionRequest) (*models.WorkflowDefinition, domain.ValidationResult, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, domain.ValidationResult{}, errors.NewValidationError("name", "name is required")
	}

	now := ds.now()
	def := &models.WorkflowDefinition{
		ID:          utils.GenerateID(),
		TenantID:    user.TenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     1,
		Graph:       req.Graph,
		Category:    req.Category,
		Tags:        req.Tags,
		IsActive:    false,
		CreatedBy:   user.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := ds.definitions.CreateDefinition(ctx, def); err != nil {
		return nil, domain.ValidationResult{}, errors.Internal("failed to create definition", err)
	}

	log.Printf("📝 WorkflowDefinition created: %s (%s) by %s", def.ID, def.Name, user.ID)
	return def, ds.ValidateDefinition(def.Graph), nil
}

// UpdateDefinition replaces a definition's content and bumps its version.
// Running instances keep the graph they were created with. An active
// definition only accepts a graph that could itself be activated. Requires Edit.
func (ds *DefinitionService) UpdateDefinition(ctx context.Context, user *models.UserSession, id string, req DefinitionRequest) (*models.WorkflowDefinition, domain.ValidationResult, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, domain.ValidationResult{}, errors.NewValidationError("name", "name is required")
	}

	def, err := ds.authorized(ctx, user, id, models.PermissionEdit)
	if err != nil {
		return nil, domain.ValidationResult{}, err
	}

	result := ds.ValidateDefinition(req.Graph)
	if def.IsActive && !result.IsValid {
		return nil, result, errors.NewValidationFailedError("definition", result.Codes())
	}

	def.Name = req.Name
	def.Description = req.Description
	def.Category = req.Category
	def.Tags = req.Tags
	def.Graph = req.Graph
	def.Version++
	def.UpdatedAt = ds.now()
	if err := ds.definitions.UpdateDefinition(ctx, def); err != nil {
		return nil, domain.ValidationResult{}, errors.Internal("failed to update definition", err)
	}

	log.Printf("📝 WorkflowDefinition updated: %s now at version %d", def.ID, def.Version)
	return def, result, nil
}

// ActivateDefinition allows new instances. Refused when the graph has errors. Requires Edit.
func (ds *DefinitionService) ActivateDefinition(ctx context.Context, user *models.UserSession, id string) (*models.WorkflowDefinition, error) {
	def, err := ds.authorized(ctx, user, id, models.PermissionEdit)
	if err != nil {
		return nil, err
	}
	if result := ds.ValidateDefinition(def.Graph); !result.IsValid {
		return nil, errors.NewValidationFailedError("definition", result.Codes())
	}
	return ds.setActive(ctx, def, true)
}

// DeactivateDefinition stops new instances; running ones continue. Requires Edit.
func (ds *DefinitionService) DeactivateDefinition(ctx context.Context, user *models.UserSession, id string) (*models.WorkflowDefinition, error) {
	def, err := ds.authorized(ctx, user, id, models.PermissionEdit)
	if err != nil {
		return nil, err
	}
	return ds.setActive(ctx, def, false)
}

func (ds *DefinitionService) setActive(ctx context.Context, def *models.WorkflowDefinition, active bool) (*models.WorkflowDefinition, error) {
	if def.IsActive == active {
		return def, nil
	}
	def.IsActive = active
	def.UpdatedAt = ds.now()
	if err := ds.definitions.UpdateDefinition(ctx, def); err != nil {
		return nil, errors.Internal("failed to update definition", err)
	}
	log.Printf("🔁 WorkflowDefinition %s active=%t", def.ID, active)
	return def, nil
}

// DeleteDefinition removes a definition with no running instances. Requires Delete.
func (ds *DefinitionService) DeleteDefinition(ctx context.Context, user *models.UserSession, id string) error {
	return ds.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		def, err := ds.authorized(ctx, user, id, models.PermissionDelete)
		if err != nil {
			return err
		}

		running, err := ds.instances.CountInstances(ctx, def.ID, models.RunningStatuses)
		if err != nil {
			return errors.Internal("failed to count instances", err)
		}
		if running > 0 {
			return errors.NewInvalidStateError("definition", fmt.Sprintf("%d running instances", running), "delete")
		}

		if err := ds.definitions.DeleteDefinition(ctx, def.ID); err != nil {
			return errors.Internal("failed to delete definition", err)
		}
		log.Printf("🗑️ WorkflowDefinition deleted: %s by %s", def.ID, user.ID)
		return nil
	})
}

// GetDefinition returns a definition. Requires View.
func (ds *DefinitionService) GetDefinition(ctx context.Context, user *models.UserSession, id string) (*models.WorkflowDefinition, error) {
	return ds.authorized(ctx, user, id, models.PermissionView)
}

// ListDefinitions lists the tenant's definitions the caller may view.
func (ds *DefinitionService) ListDefinitions(ctx context.Context, user *models.UserSession, filter models.DefinitionFilter) ([]*models.WorkflowDefinition, error) {
	filter.TenantID = user.TenantID
	defs, err := ds.definitions.ListDefinitions(ctx, filter)
	if err != nil {
		return nil, errors.Internal("failed to list definitions", err)
	}

	visible := make([]*models.WorkflowDefinition, 0, len(defs))
	for _, def := range defs {
		ok, err := ds.permissions.hasPermissionOn(ctx, user.ID, def, models.PermissionView)
		if err != nil {
			return nil, err
		}
		if ok {
			visible = append(visible, def)
		}
	}
	return visible, nil
}

func (ds *DefinitionService) authorized(ctx context.Context, user *models.UserSession, id string, permType models.PermissionType) (*models.WorkflowDefinition, error) {
	def, err := ds.permissions.loadDefinition(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if err := ds.permissions.Authorize(ctx, user, def, permType); err != nil {
		return nil, err
	}
	return def, nil
}
