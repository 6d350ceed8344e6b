package domain

import (
	"testing"

	"github.com/nexuscrm/workflow/internal/domain/models"
	apperrors "github.com/nexuscrm/workflow/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestInstanceStateMachine_Transitions(t *testing.T) {
	sm := NewInstanceStateMachine()

	tests := []struct {
		name        string
		from        models.InstanceStatus
		action      InstanceTransition
		expectedTo  models.InstanceStatus
		shouldError bool
	}{
		// Valid transitions
		{"Active -> Paused via pause", models.InstanceStatusActive, TransitionPause, models.InstanceStatusPaused, false},
		{"Active -> Completed via complete", models.InstanceStatusActive, TransitionComplete, models.InstanceStatusCompleted, false},
		{"Active -> Cancelled via cancel", models.InstanceStatusActive, TransitionCancel, models.InstanceStatusCancelled, false},
		{"Active -> Failed via fail", models.InstanceStatusActive, TransitionFail, models.InstanceStatusFailed, false},
		{"Paused -> Active via resume", models.InstanceStatusPaused, TransitionResume, models.InstanceStatusActive, false},
		{"Paused -> Cancelled via cancel", models.InstanceStatusPaused, TransitionCancel, models.InstanceStatusCancelled, false},
		{"Waiting -> Cancelled via cancel", models.InstanceStatusWaiting, TransitionCancel, models.InstanceStatusCancelled, false},

		// Invalid transitions
		{"Paused -> Paused via pause", models.InstanceStatusPaused, TransitionPause, models.InstanceStatusPaused, true},
		{"Active -> resume", models.InstanceStatusActive, TransitionResume, models.InstanceStatusActive, true},
		{"Paused -> complete", models.InstanceStatusPaused, TransitionComplete, models.InstanceStatusPaused, true},
		{"Completed is terminal", models.InstanceStatusCompleted, TransitionCancel, models.InstanceStatusCompleted, true},
		{"Cancelled is terminal", models.InstanceStatusCancelled, TransitionResume, models.InstanceStatusCancelled, true},
		{"Failed is terminal", models.InstanceStatusFailed, TransitionPause, models.InstanceStatusFailed, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := sm.Transition(tc.from, tc.action)

			if tc.shouldError {
				assert.True(t, apperrors.IsInvalidState(err))
				assert.Equal(t, tc.from, next, "State should not change on invalid transition")
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.expectedTo, next)
			}
		})
	}
}

func TestInstanceStateMachine_TerminalStatesHaveNoTransitions(t *testing.T) {
	sm := NewInstanceStateMachine()

	for _, s := range []models.InstanceStatus{models.InstanceStatusCompleted, models.InstanceStatusCancelled, models.InstanceStatusFailed} {
		assert.True(t, s.IsTerminal())
		assert.Empty(t, sm.ValidTransitions(s))
	}
}

func TestInstanceStateMachine_ValidTransitionsFromActive(t *testing.T) {
	sm := NewInstanceStateMachine()

	assert.Equal(t,
		[]InstanceTransition{TransitionCancel, TransitionComplete, TransitionFail, TransitionPause},
		sm.ValidTransitions(models.InstanceStatusActive))
	assert.True(t, sm.CanTransition(models.InstanceStatusPaused, TransitionResume))
	assert.False(t, sm.CanTransition(models.InstanceStatusActive, TransitionResume))
}
