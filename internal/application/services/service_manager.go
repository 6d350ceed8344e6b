package services

import (
	"time"

	"github.com/nexuscrm/workflow/internal/domain/ports"
	"github.com/nexuscrm/workflow/pkg/expression"
)

// ServiceManager orchestrates all services with dependency injection
type ServiceManager struct {
	store ports.Store

	EventBus    *EventBus
	Metrics     *EngineMetrics
	Permissions *PermissionService
	History     *HistoryService
	Tasks       *TaskService
	Definitions *DefinitionService
	Engine      *WorkflowEngine
	Sweep       *SweepService
}

// NewServiceManager creates a new service manager with all dependencies wired
func NewServiceManager(store ports.Store, roles ports.RoleResolver, sweepCfg SweepConfig) *ServiceManager {
	sm := &ServiceManager{
		store: store,
	}

	// Initialize services in dependency order
	sm.EventBus = NewEventBus()
	sm.Metrics = NewEngineMetrics()
	sm.Permissions = NewPermissionService(store, store, roles)
	sm.History = NewHistoryService(store, store, sm.Permissions)
	sm.Tasks = NewTaskService(store, store, store, roles, store, sm.Permissions, sm.History, sm.EventBus, sm.Metrics)
	conditions := expression.NewEngine()
	sm.Definitions = NewDefinitionService(store, store, store, sm.Permissions, conditions)
	sm.Engine = NewWorkflowEngine(store, store, store, sm.Permissions, sm.Tasks, sm.History, sm.EventBus, conditions, sm.Metrics)
	sm.Sweep = NewSweepService(store, store, store, sm.Engine, sm.Tasks, sm.History, sm.Metrics, sweepCfg)

	// The engine advances instances when tasks complete
	sm.Engine.RegisterHandlers()

	return sm
}

// NewSweepScheduler creates a cron scheduler for this manager's sweep.
func (sm *ServiceManager) NewSweepScheduler(spec string, timeout time.Duration) *SweepScheduler {
	return NewSweepScheduler(sm.Sweep, spec, timeout)
}
