package call

import (
	"sync"
	"time"
)

// PhaseChange represents a phase transition event.
type PhaseChange struct {
	FromPhase Phase
	ToPhase   Phase
	Timestamp time.Time
	Reason    string
}

// PhaseListener observes call phase changes.
type PhaseListener interface {
	OnPhaseChange(event PhaseChange)
}

// stateMachine implements the finite state machine for the call phase.
type stateMachine struct {
	currentPhase Phase
	mu           sync.RWMutex

	phaseChangeListeners []PhaseListener
}

func newStateMachine() *stateMachine {
	return &stateMachine{currentPhase: PhaseIdle}
}

// Phase returns the current phase.
func (sm *stateMachine) Phase() Phase {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.currentPhase
}

// transitionValid checks if a phase transition is valid (must be called with lock held).
func (sm *stateMachine) transitionValid(from, to Phase) bool {
	validTransitions := map[Phase][]Phase{
		PhaseIdle:         {PhaseRegistering},
		PhaseRegistering:  {PhaseRegistered, PhaseIdle},
		PhaseRegistered:   {PhaseOutgoing, PhaseIncoming},
		PhaseIncoming:     {PhaseActive, PhaseRegistered},
		PhaseOutgoing:     {PhaseActive, PhaseRegistered},
		PhaseActive:       {PhaseTransferring, PhaseTerminating},
		PhaseTransferring: {PhaseActive, PhaseTerminating},
		PhaseTerminating:  {PhaseRegistered},
	}

	allowedPhases, exists := validTransitions[from]
	if !exists {
		return false
	}

	for _, allowed := range allowedPhases {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves to a new phase with validation.
func (sm *stateMachine) Transition(phase Phase, reason string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.transitionValid(sm.currentPhase, phase) {
		return &InvalidTransitionError{
			From: sm.currentPhase,
			To:   phase,
		}
	}

	oldPhase := sm.currentPhase
	sm.currentPhase = phase

	event := PhaseChange{
		FromPhase: oldPhase,
		ToPhase:   phase,
		Timestamp: time.Now(),
		Reason:    reason,
	}

	// Notify listeners (release lock during notification to avoid deadlocks)
	listeners := make([]PhaseListener, len(sm.phaseChangeListeners))
	copy(listeners, sm.phaseChangeListeners)
	sm.mu.Unlock()

	for _, listener := range listeners {
		listener.OnPhaseChange(event)
	}

	sm.mu.Lock()
	return nil
}

// AddListener registers a listener for phase change events.
func (sm *stateMachine) AddListener(listener PhaseListener) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.phaseChangeListeners = append(sm.phaseChangeListeners, listener)
}

// InvalidTransitionError represents an invalid phase transition attempt
type InvalidTransitionError struct {
	From Phase
	To   Phase
}

func (e *InvalidTransitionError) Error() string {
	return "invalid phase transition from " + e.From.String() + " to " + e.To.String()
}
