package domain

import (
	"sort"

	"github.com/nexuscrm/workflow/internal/domain/models"
	apperrors "github.com/nexuscrm/workflow/pkg/errors"
)

// InstanceTransition is an action that can change instance status
type InstanceTransition string

const (
	TransitionPause    InstanceTransition = "pause"
	TransitionResume   InstanceTransition = "resume"
	TransitionComplete InstanceTransition = "complete"
	TransitionCancel   InstanceTransition = "cancel"
	TransitionFail     InstanceTransition = "fail"
)

// InstanceStateMachine enforces valid status transitions for workflow instances.
// Invalid transitions return an InvalidStateError.
type InstanceStateMachine struct {
	// transitions maps (current status, transition) -> next status
	transitions map[stateTransitionKey]models.InstanceStatus
}

type stateTransitionKey struct {
	state      models.InstanceStatus
	transition InstanceTransition
}

// NewInstanceStateMachine creates a state machine with the instance lifecycle rules.
//
//	          CreateInstance
//	                │
//	                ▼
//	┌──Resume──► [Active] ──Complete──► [Completed]
//	│             │   │ \
//	│          Pause  │  Fail──► [Failed]
//	│             ▼   │
//	└───────── [Paused]
//	              │   │
//	           Cancel Cancel
//	              ▼   ▼
//	           [Cancelled]
//
// Waiting is never entered by the engine but is honoured if a store holds it:
// it may be cancelled, completed or failed.
func NewInstanceStateMachine() *InstanceStateMachine {
	sm := &InstanceStateMachine{
		transitions: make(map[stateTransitionKey]models.InstanceStatus),
	}

	sm.addTransition(models.InstanceStatusActive, TransitionPause, models.InstanceStatusPaused)
	sm.addTransition(models.InstanceStatusActive, TransitionComplete, models.InstanceStatusCompleted)
	sm.addTransition(models.InstanceStatusActive, TransitionCancel, models.InstanceStatusCancelled)
	sm.addTransition(models.InstanceStatusActive, TransitionFail, models.InstanceStatusFailed)
	sm.addTransition(models.InstanceStatusPaused, TransitionResume, models.InstanceStatusActive)
	sm.addTransition(models.InstanceStatusPaused, TransitionCancel, models.InstanceStatusCancelled)
	sm.addTransition(models.InstanceStatusWaiting, TransitionCancel, models.InstanceStatusCancelled)
	sm.addTransition(models.InstanceStatusWaiting, TransitionComplete, models.InstanceStatusCompleted)
	sm.addTransition(models.InstanceStatusWaiting, TransitionFail, models.InstanceStatusFailed)

	return sm
}

func (sm *InstanceStateMachine) addTransition(from models.InstanceStatus, via InstanceTransition, to models.InstanceStatus) {
	sm.transitions[stateTransitionKey{state: from, transition: via}] = to
}

// Transition returns the next status, or the current one and an
// InvalidStateError when the transition is not allowed.
func (sm *InstanceStateMachine) Transition(current models.InstanceStatus, action InstanceTransition) (models.InstanceStatus, error) {
	next, ok := sm.transitions[stateTransitionKey{state: current, transition: action}]
	if !ok {
		return current, apperrors.NewInvalidStateError("instance", string(current), string(action))
	}
	return next, nil
}

// CanTransition checks if a transition is valid without performing it.
func (sm *InstanceStateMachine) CanTransition(current models.InstanceStatus, action InstanceTransition) bool {
	_, ok := sm.transitions[stateTransitionKey{state: current, transition: action}]
	return ok
}

// ValidTransitions returns all valid transitions from the given status, sorted.
func (sm *InstanceStateMachine) ValidTransitions(state models.InstanceStatus) []InstanceTransition {
	var result []InstanceTransition
	for key := range sm.transitions {
		if key.state == state {
			result = append(result, key.transition)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}
