package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nexuscrm/workflow/internal/domain/models"
	"github.com/nexuscrm/workflow/internal/domain/ports"
	"github.com/nexuscrm/workflow/pkg/constants"
	"github.com/nexuscrm/workflow/pkg/errors"
)

// SweepConfig bounds the periodic sweep
type SweepConfig struct {
	Concurrency   int
	RatePerSecond float64
}

// SweepReport summarises one ProcessPendingSteps run
type SweepReport struct {
	Scanned   int `json:"scanned"`
	Expired   int `json:"expired"`
	Escalated int `json:"escalated"`
	Failed    int `json:"failed"`
	Errors    int `json:"errors"`
}

// SweepService applies time-based transitions to running instances.
type SweepService struct {
	instances   ports.InstanceStore
	tasks       ports.TaskStore
	tx          ports.TxRunner
	engine      *WorkflowEngine
	taskService *TaskService
	history     *HistoryService
	metrics     *EngineMetrics
	limiter     *rate.Limiter
	concurrency int
}

// NewSweepService creates a new SweepService
func NewSweepService(
	instances ports.InstanceStore,
	tasks ports.TaskStore,
	tx ports.TxRunner,
	engine *WorkflowEngine,
	taskService *TaskService,
	history *HistoryService,
	metrics *EngineMetrics,
	cfg SweepConfig,
) *SweepService {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &SweepService{
		instances:   instances,
		tasks:       tasks,
		tx:          tx,
		engine:      engine,
		taskService: taskService,
		history:     history,
		metrics:     metrics,
		limiter:     rate.NewLimiter(limit, cfg.Concurrency),
		concurrency: cfg.Concurrency,
	}
}

// ProcessPendingSteps visits every Active or Waiting instance once. For each it
// records due-date expiry (once per instance) and handles task timeouts by
// escalating or failing. Per-instance errors are counted, not returned; the
// error result is reserved for listing failures and cancellation.
func (s *SweepService) ProcessPendingSteps(ctx context.Context, now time.Time) (*SweepReport, error) {
	running, err := s.instances.ListInstances(ctx, models.InstanceFilter{
		Statuses: []models.InstanceStatus{models.InstanceStatusActive, models.InstanceStatusWaiting},
	})
	if err != nil {
		return nil, errors.Internal("failed to list running instances", err)
	}

	report := &SweepReport{Scanned: len(running)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, inst := range running {
		inst := inst
		g.Go(func() error {
			if err := s.limiter.Wait(gctx); err != nil {
				return err
			}
			outcome, err := s.processInstance(gctx, inst.ID, now)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Errors++
				log.Printf("⚠️ Sweep: instance %s: %v", inst.ID, err)
				return nil
			}
			report.Expired += outcome.Expired
			report.Escalated += outcome.Escalated
			report.Failed += outcome.Failed
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	s.metrics.SweepProcessed(ctx, report.Scanned)
	if report.Expired+report.Escalated+report.Failed+report.Errors > 0 {
		log.Printf("🧹 Sweep: scanned=%d expired=%d escalated=%d failed=%d errors=%d",
			report.Scanned, report.Expired, report.Escalated, report.Failed, report.Errors)
	}
	return report, nil
}

// processInstance reloads the instance inside a transaction so it sees the
// latest revision, then applies due-date and timeout rules.
func (s *SweepService) processInstance(ctx context.Context, instanceID string, now time.Time) (SweepReport, error) {
	var outcome SweepReport
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		outcome = SweepReport{}
		inst, err := s.instances.GetInstance(ctx, instanceID)
		if err != nil {
			return err
		}
		if inst == nil || inst.Status.IsTerminal() || inst.Status == models.InstanceStatusPaused {
			return nil
		}

		if inst.DueDate != nil && inst.DueDate.Before(now) {
			seen, err := s.history.HasAction(ctx, inst.ID, constants.ActionDueDateExpired)
			if err != nil {
				return err
			}
			if !seen {
				if err := s.history.Append(ctx, HistoryEntry{
					InstanceID: inst.ID,
					Action:     constants.ActionDueDateExpired,
					FromState:  inst.CurrentState,
					ToState:    inst.CurrentState,
					ActorID:    constants.SystemActorID,
					ActionData: map[string]interface{}{"dueDate": inst.DueDate.Format(time.RFC3339)},
				}); err != nil {
					return err
				}
				outcome.Expired++
			}
		}

		tasks, err := s.tasks.ListTasksByInstance(ctx, inst.ID)
		if err != nil {
			return err
		}
		for _, task := range tasks {
			if task.Status != models.TaskStatusPending {
				continue
			}
			node, ok := inst.Graph.Node(task.NodeID)
			if !ok {
				continue
			}
			cfg, ok := node.EffectiveConfig().(models.TaskNodeConfig)
			if !ok {
				continue
			}
			timeout, ok := cfg.TimeoutDuration()
			if !ok || !task.CreatedAt.Add(timeout).Before(now) {
				continue
			}

			if cfg.OnTimeout == constants.OnTimeoutEscalate {
				if task.AssignedTo == cfg.EscalateTo {
					continue
				}
				if err := s.recordTimeout(ctx, task, cfg.OnTimeout); err != nil {
					return err
				}
				if _, err := s.taskService.EscalateTask(ctx, task, cfg.EscalateTo); err != nil {
					return err
				}
				outcome.Escalated++
				continue
			}

			if err := s.recordTimeout(ctx, task, constants.OnTimeoutFail); err != nil {
				return err
			}
			if err := s.engine.FailInstance(ctx, inst, constants.SystemActorID, constants.FailReasonTaskTimeout,
				fmt.Sprintf("task %s exceeded its %s timeout", task.ID, cfg.Timeout)); err != nil {
				return err
			}
			outcome.Failed++
			break
		}
		return nil
	})
	return outcome, err
}

func (s *SweepService) recordTimeout(ctx context.Context, task *models.WorkflowTask, onTimeout string) error {
	return s.history.Append(ctx, HistoryEntry{
		InstanceID: task.InstanceID,
		Action:     constants.ActionTaskTimedOut,
		FromState:  task.NodeID,
		ToState:    task.NodeID,
		ActorID:    constants.SystemActorID,
		ActionData: map[string]interface{}{"taskId": task.ID, "onTimeout": onTimeout},
	})
}

// SweepScheduler runs the sweep on a cron schedule.
type SweepScheduler struct {
	sweep   *SweepService
	cron    *cron.Cron
	spec    string
	timeout time.Duration
	mu      sync.Mutex
	running bool
}

// NewSweepScheduler creates a scheduler for spec (standard 5-field cron or a
// descriptor such as "@every 1m"). Each run is bounded by timeout.
func NewSweepScheduler(sweep *SweepService, spec string, timeout time.Duration) *SweepScheduler {
	return &SweepScheduler{
		sweep:   sweep,
		cron:    cron.New(),
		spec:    spec,
		timeout: timeout,
	}
}

// Start registers the sweep job and starts the cron loop.
func (s *SweepScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	if _, err := s.cron.AddFunc(s.spec, s.runOnce); err != nil {
		return errors.Internal(fmt.Sprintf("invalid sweep schedule %q", s.spec), err)
	}
	s.cron.Start()
	s.running = true
	log.Printf("⏰ Sweep scheduler started (%s)", s.spec)
	return nil
}

// Stop stops the cron loop and waits for a running sweep to finish.
func (s *SweepScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	log.Println("⏰ Sweep scheduler stopped")
}

func (s *SweepScheduler) runOnce() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("🔥 Panic in sweep: %v", r)
		}
	}()

	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if _, err := s.sweep.ProcessPendingSteps(ctx, time.Now()); err != nil {
		log.Printf("❌ Sweep failed: %v", err)
	}
}
