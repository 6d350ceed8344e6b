// Package memory is an in-process implementation of every storage port.
// It backs the server's "memory" driver and the service tests.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/nexuscrm/workflow/internal/domain/models"
	"github.com/nexuscrm/workflow/internal/domain/ports"
	apperrors "github.com/nexuscrm/workflow/pkg/errors"
	"github.com/nexuscrm/workflow/pkg/utils"
)

var _ ports.Store = (*Store)(nil)
var _ ports.RoleResolver = (*Store)(nil)

// Store keeps every entity in maps guarded by one RWMutex. Values are copied
// on the way in and out so callers never share memory with the store.
type Store struct {
	mu          sync.RWMutex
	definitions map[string]*models.WorkflowDefinition
	instances   map[string]*models.WorkflowInstance
	tasks       map[string]*models.WorkflowTask
	taskByNode  map[string]string
	history     map[string][]*models.WorkflowHistoryEntry
	permissions map[string]*models.WorkflowPermission
	roles       map[string][]string
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		definitions: make(map[string]*models.WorkflowDefinition),
		instances:   make(map[string]*models.WorkflowInstance),
		tasks:       make(map[string]*models.WorkflowTask),
		taskByNode:  make(map[string]string),
		history:     make(map[string][]*models.WorkflowHistoryEntry),
		permissions: make(map[string]*models.WorkflowPermission),
		roles:       make(map[string][]string),
	}
}

// RunInTransaction calls fn directly. Each store call is atomic on its own,
// but writes made before fn fails are not rolled back.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// ==================== Definitions ====================

func (s *Store) CreateDefinition(ctx context.Context, def *models.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if def.ID == "" {
		def.ID = utils.GenerateID()
	}
	if _, exists := s.definitions[def.ID]; exists {
		return apperrors.NewConflictError("WorkflowDefinition", "id", def.ID)
	}
	s.definitions[def.ID] = cloneDefinition(def)
	return nil
}

func (s *Store) GetDefinition(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.definitions[id]
	if !ok {
		return nil, nil
	}
	return cloneDefinition(def), nil
}

func (s *Store) UpdateDefinition(ctx context.Context, def *models.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.definitions[def.ID]; !ok {
		return apperrors.NewNotFoundError("WorkflowDefinition", def.ID)
	}
	s.definitions[def.ID] = cloneDefinition(def)
	return nil
}

func (s *Store) DeleteDefinition(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.definitions[id]; !ok {
		return apperrors.NewNotFoundError("WorkflowDefinition", id)
	}
	delete(s.definitions, id)
	for pid, p := range s.permissions {
		if p.DefinitionID == id {
			delete(s.permissions, pid)
		}
	}
	return nil
}

func (s *Store) ListDefinitions(ctx context.Context, filter models.DefinitionFilter) ([]*models.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.WorkflowDefinition
	for _, def := range s.definitions {
		if filter.TenantID != "" && def.TenantID != filter.TenantID {
			continue
		}
		if filter.Category != "" && def.Category != filter.Category {
			continue
		}
		if filter.Tag != "" && !utils.ContainsString(def.Tags, filter.Tag) {
			continue
		}
		if filter.ActiveOnly && !def.IsActive {
			continue
		}
		out = append(out, cloneDefinition(def))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ==================== Instances ====================

func (s *Store) CreateInstance(ctx context.Context, inst *models.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst.ID == "" {
		inst.ID = utils.GenerateID()
	}
	if _, exists := s.instances[inst.ID]; exists {
		return apperrors.NewConflictError("WorkflowInstance", "id", inst.ID)
	}
	s.instances[inst.ID] = cloneInstance(inst)
	return nil
}

func (s *Store) GetInstance(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[id]
	if !ok {
		return nil, nil
	}
	return cloneInstance(inst), nil
}

func (s *Store) UpdateInstance(ctx context.Context, inst *models.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.instances[inst.ID]
	if !ok {
		return apperrors.NewNotFoundError("WorkflowInstance", inst.ID)
	}
	if current.Revision != inst.Revision {
		return apperrors.NewConflictError("WorkflowInstance", "revision", strconv.FormatInt(inst.Revision, 10))
	}
	inst.Revision++
	s.instances[inst.ID] = cloneInstance(inst)
	return nil
}

func (s *Store) ListInstances(ctx context.Context, filter models.InstanceFilter) ([]*models.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.WorkflowInstance
	for _, inst := range s.instances {
		if instanceMatches(inst, filter) {
			out = append(out, cloneInstance(inst))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CountInstances(ctx context.Context, definitionID string, statuses []models.InstanceStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	filter := models.InstanceFilter{DefinitionID: definitionID, Statuses: statuses}
	for _, inst := range s.instances {
		if instanceMatches(inst, filter) {
			count++
		}
	}
	return count, nil
}

func instanceMatches(inst *models.WorkflowInstance, f models.InstanceFilter) bool {
	if f.TenantID != "" && inst.TenantID != f.TenantID {
		return false
	}
	if f.DefinitionID != "" && inst.DefinitionID != f.DefinitionID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if inst.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.StartedFrom != nil && inst.StartedAt.Before(*f.StartedFrom) {
		return false
	}
	if f.StartedTo != nil && !inst.StartedAt.Before(*f.StartedTo) {
		return false
	}
	return true
}

// ==================== Tasks ====================

func nodeKey(instanceID, nodeID string) string {
	return instanceID + "/" + nodeID
}

func (s *Store) CreateTask(ctx context.Context, task *models.WorkflowTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := nodeKey(task.InstanceID, task.NodeID)
	if _, exists := s.taskByNode[key]; exists {
		return apperrors.NewConflictError("WorkflowTask", "node_id", task.NodeID)
	}
	if task.ID == "" {
		task.ID = utils.GenerateID()
	}
	s.tasks[task.ID] = cloneTask(task)
	s.taskByNode[key] = task.ID
	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*models.WorkflowTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	return cloneTask(task), nil
}

func (s *Store) FindTaskByNode(ctx context.Context, instanceID, nodeID string) (*models.WorkflowTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.taskByNode[nodeKey(instanceID, nodeID)]
	if !ok {
		return nil, nil
	}
	return cloneTask(s.tasks[id]), nil
}

func (s *Store) UpdateTask(ctx context.Context, task *models.WorkflowTask, from models.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tasks[task.ID]
	if !ok {
		return apperrors.NewNotFoundError("WorkflowTask", task.ID)
	}
	if current.Status != from {
		return apperrors.NewInvalidStateError("task", string(current.Status), "update")
	}
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

func (s *Store) ListTasksByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.WorkflowTask
	for _, task := range s.tasks {
		if task.InstanceID == instanceID {
			out = append(out, cloneTask(task))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ListTasks(ctx context.Context, filter models.TaskFilter) ([]*models.WorkflowTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.WorkflowTask
	for _, task := range s.tasks {
		if filter.TenantID != "" && task.TenantID != filter.TenantID {
			continue
		}
		if len(filter.Assignees) > 0 && !utils.ContainsString(filter.Assignees, task.AssignedTo) {
			continue
		}
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		if filter.DueBefore != nil && (task.DueDate == nil || !task.DueDate.Before(*filter.DueBefore)) {
			continue
		}
		out = append(out, cloneTask(task))
	}
	SortTasks(out)
	return out, nil
}

// SortTasks orders tasks by due date (undated last), then priority with the
// most urgent first, then creation time.
func SortTasks(tasks []*models.WorkflowTask) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		switch {
		case a.DueDate == nil && b.DueDate != nil:
			return false
		case a.DueDate != nil && b.DueDate == nil:
			return true
		case a.DueDate != nil && b.DueDate != nil && !a.DueDate.Equal(*b.DueDate):
			return a.DueDate.Before(*b.DueDate)
		}
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

// ==================== History ====================

func (s *Store) AppendHistory(ctx context.Context, entry *models.WorkflowHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = utils.GenerateID()
	}
	s.history[entry.InstanceID] = append(s.history[entry.InstanceID], cloneHistory(entry))
	return nil
}

func (s *Store) ListHistory(ctx context.Context, instanceID string) ([]*models.WorkflowHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.history[instanceID]
	out := make([]*models.WorkflowHistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, cloneHistory(e))
	}
	return out, nil
}

func (s *Store) CountActions(ctx context.Context, filter models.HistoryFilter) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for instanceID, entries := range s.history {
		inst, ok := s.instances[instanceID]
		if !ok {
			continue
		}
		if filter.TenantID != "" && inst.TenantID != filter.TenantID {
			continue
		}
		if filter.DefinitionID != "" && inst.DefinitionID != filter.DefinitionID {
			continue
		}
		for _, e := range entries {
			if inRange(e.Timestamp, filter.From, filter.To) {
				counts[e.Action]++
			}
		}
	}
	return counts, nil
}

func inRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && !t.Before(*to) {
		return false
	}
	return true
}

// ==================== Permissions ====================

func (s *Store) CreatePermission(ctx context.Context, perm *models.WorkflowPermission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if perm.ID == "" {
		perm.ID = utils.GenerateID()
	}
	s.permissions[perm.ID] = clonePermission(perm)
	return nil
}

func (s *Store) GetPermission(ctx context.Context, id string) (*models.WorkflowPermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	perm, ok := s.permissions[id]
	if !ok {
		return nil, nil
	}
	return clonePermission(perm), nil
}

func (s *Store) DeactivatePermission(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	perm, ok := s.permissions[id]
	if !ok {
		return apperrors.NewNotFoundError("WorkflowPermission", id)
	}
	perm.IsActive = false
	return nil
}

func (s *Store) ListPermissions(ctx context.Context, definitionID string) ([]*models.WorkflowPermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.WorkflowPermission
	for _, perm := range s.permissions {
		if perm.DefinitionID == definitionID {
			out = append(out, clonePermission(perm))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GrantedAt.Before(out[j].GrantedAt) })
	return out, nil
}

func (s *Store) FindPermissions(ctx context.Context, definitionID, userID string, roles []string) ([]*models.WorkflowPermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.WorkflowPermission
	for _, perm := range s.permissions {
		if perm.DefinitionID != definitionID || !perm.IsActive {
			continue
		}
		if (perm.UserID != "" && perm.UserID == userID) ||
			(perm.RoleName != "" && utils.ContainsString(roles, perm.RoleName)) {
			out = append(out, clonePermission(perm))
		}
	}
	return out, nil
}

// ==================== Roles ====================

// SetRoles replaces the roles held by userID.
func (s *Store) SetRoles(userID string, roles ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[userID] = append([]string(nil), roles...)
}

// ResolveRoles implements ports.RoleResolver.
func (s *Store) ResolveRoles(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.roles[userID]...), nil
}
