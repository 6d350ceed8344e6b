package services

import (
	"testing"
	"time"

	"github.com/nexuscrm/workflow/internal/domain/models"
	"github.com/nexuscrm/workflow/pkg/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const timeoutGraph = `{
  "nodes": [
    {"id": "s1", "type": "start"},
    {"id": "t1", "name": "Triage", "type": "task",
     "config": {"timeout": "2h", "onTimeout": "escalate", "escalateTo": "supervisor"}},
    {"id": "t2", "name": "Sign", "type": "task",
     "config": {"timeout": "1h", "onTimeout": "fail"}},
    {"id": "e1", "type": "end"}
  ],
  "connections": [
    {"sourceNodeId": "s1", "targetNodeId": "t1"},
    {"sourceNodeId": "t1", "targetNodeId": "t2"},
    {"sourceNodeId": "t2", "targetNodeId": "e1"}
  ]
}`

func countAction(actions []string, action string) int {
	n := 0
	for _, a := range actions {
		if a == action {
			n++
		}
	}
	return n
}

func TestSweep_DueDateRecordedOnce(t *testing.T) {
	f := newFixture(t)
	def := f.definition(linearGraph)
	due := f.clock.Add(time.Hour)
	inst := f.start(def.ID, CreateInstanceRequest{DueDate: &due})

	report, err := f.sm.Sweep.ProcessPendingSteps(f.ctx, f.clock)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Expired)

	for i := 0; i < 2; i++ {
		report, err = f.sm.Sweep.ProcessPendingSteps(f.ctx, f.clock.Add(2*time.Hour))
		require.NoError(t, err)
	}
	assert.Equal(t, 0, report.Expired, "second sweep finds the entry already written")
	assert.Equal(t, 1, countAction(f.actions(inst.ID), constants.ActionDueDateExpired))
	assert.Equal(t, models.InstanceStatusActive, f.instance(inst.ID).Status)
}

func TestSweep_EscalatesOnce(t *testing.T) {
	f := newFixture(t)
	def := f.definition(timeoutGraph)
	inst := f.start(def.ID, CreateInstanceRequest{AssignedTo: "alice"})

	report, err := f.sm.Sweep.ProcessPendingSteps(f.ctx, f.clock.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Escalated, "not yet timed out")

	later := f.clock.Add(3 * time.Hour)
	report, err = f.sm.Sweep.ProcessPendingSteps(f.ctx, later)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Escalated)
	assert.Equal(t, "supervisor", f.tasks(inst.ID)[0].AssignedTo)

	report, err = f.sm.Sweep.ProcessPendingSteps(f.ctx, later)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Escalated)

	actions := f.actions(inst.ID)
	assert.Equal(t, 1, countAction(actions, constants.ActionTaskTimedOut))
	assert.Equal(t, 1, countAction(actions, constants.ActionTaskReassigned))
	assert.Equal(t, models.InstanceStatusActive, f.instance(inst.ID).Status)
}

func TestSweep_FailsOnTimeout(t *testing.T) {
	f := newFixture(t)
	def := f.definition(timeoutGraph)
	inst := f.start(def.ID, CreateInstanceRequest{AssignedTo: "alice"})

	_, err := f.sm.Tasks.CompleteTask(f.ctx, f.user("alice"), f.tasks(inst.ID)[0].ID, CompleteTaskRequest{Action: "triaged"})
	require.NoError(t, err)
	require.Equal(t, "t2", f.instance(inst.ID).CurrentState)

	report, err := f.sm.Sweep.ProcessPendingSteps(f.ctx, f.clock.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	got := f.instance(inst.ID)
	assert.Equal(t, models.InstanceStatusFailed, got.Status)
	assert.Equal(t, constants.FailReasonTaskTimeout, got.FailureReason)
	for _, task := range f.tasks(inst.ID) {
		assert.True(t, task.Status.IsTerminal())
	}

	report, err = f.sm.Sweep.ProcessPendingSteps(f.ctx, f.clock.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scanned, "terminal instances are not swept")
}

func TestSweep_SkipsPaused(t *testing.T) {
	f := newFixture(t)
	def := f.definition(timeoutGraph)
	inst := f.start(def.ID, CreateInstanceRequest{AssignedTo: "alice"})
	_, err := f.sm.Engine.PauseInstance(f.ctx, f.owner, inst.ID, "")
	require.NoError(t, err)

	report, err := f.sm.Sweep.ProcessPendingSteps(f.ctx, f.clock.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scanned)
	assert.Equal(t, "alice", f.tasks(inst.ID)[0].AssignedTo)
}

func TestSweepScheduler_RejectsBadSpec(t *testing.T) {
	f := newFixture(t)
	scheduler := f.sm.NewSweepScheduler("not a cron spec", time.Minute)
	assert.Error(t, scheduler.Start())

	ok := f.sm.NewSweepScheduler("@every 1h", time.Minute)
	require.NoError(t, ok.Start())
	ok.Stop()
}
