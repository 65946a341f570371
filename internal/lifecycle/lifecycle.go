// Package lifecycle holds the pure session and module state machines. The
// transition functions are total over their tables: any pair not listed
// returns a *TransitionError, never a silent no-op.
package lifecycle

import "fmt"

// Session statuses.
const (
	StatusCurriculumGenerating = "curriculum_generating"
	StatusInProgress           = "in_progress"
	StatusInRemediation        = "in_remediation"
	StatusEvaluating           = "evaluating"
	StatusPassed               = "passed"
	StatusFailed               = "failed"
	StatusExhausted            = "exhausted"
	StatusAbandoned            = "abandoned"
)

// Session events.
const (
	EventCurriculumReady     = "curriculum_ready"
	EventAllModulesScored    = "all_modules_scored"
	EventEvaluationPassed    = "evaluation_passed"
	EventEvaluationFailed    = "evaluation_failed"
	EventEvaluationExhausted = "evaluation_exhausted"
	EventRemediationStarted  = "remediation_started"
	EventSessionAbandoned    = "session_abandoned"
)

// Module statuses.
const (
	ModuleStatusLocked            = "locked"
	ModuleStatusContentGenerating = "content_generating"
	ModuleStatusLearning          = "learning"
	ModuleStatusScenarioActive    = "scenario_active"
	ModuleStatusQuizActive        = "quiz_active"
	ModuleStatusScored            = "scored"
)

// Module events.
const (
	ModuleEventOpened          = "module_opened"
	ModuleEventContentReady    = "module_content_ready"
	ModuleEventScenarioStarted = "scenario_started"
	ModuleEventScenariosDone   = "scenarios_done"
	ModuleEventQuizCompleted   = "quiz_completed"
)

// TransitionError signals a (state, event) pair outside the transition table.
type TransitionError struct {
	From  string
	Event string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition: event %q from status %q", e.Event, e.From)
}

var sessionTransitions = map[string]map[string]string{
	EventCurriculumReady: {
		StatusCurriculumGenerating: StatusInProgress,
	},
	EventAllModulesScored: {
		StatusInProgress:    StatusEvaluating,
		StatusInRemediation: StatusEvaluating,
	},
	EventEvaluationPassed: {
		StatusEvaluating: StatusPassed,
	},
	EventEvaluationFailed: {
		StatusEvaluating: StatusFailed,
	},
	EventEvaluationExhausted: {
		StatusEvaluating: StatusExhausted,
	},
	EventRemediationStarted: {
		StatusFailed: StatusInRemediation,
	},
	EventSessionAbandoned: {
		StatusInProgress:    StatusAbandoned,
		StatusInRemediation: StatusAbandoned,
	},
}

var moduleTransitions = map[string]map[string]string{
	ModuleEventOpened: {
		ModuleStatusLocked: ModuleStatusContentGenerating,
	},
	ModuleEventContentReady: {
		ModuleStatusContentGenerating: ModuleStatusLearning,
	},
	ModuleEventScenarioStarted: {
		ModuleStatusLearning: ModuleStatusScenarioActive,
	},
	ModuleEventScenariosDone: {
		ModuleStatusLearning:       ModuleStatusQuizActive,
		ModuleStatusScenarioActive: ModuleStatusQuizActive,
	},
	ModuleEventQuizCompleted: {
		ModuleStatusQuizActive: ModuleStatusScored,
	},
}

// Transition applies a session event to a status and returns the target
// status.
func Transition(from, event string) (string, error) {
	targets, ok := sessionTransitions[event]
	if !ok {
		return "", &TransitionError{From: from, Event: event}
	}
	to, ok := targets[from]
	if !ok {
		return "", &TransitionError{From: from, Event: event}
	}
	return to, nil
}

// TransitionModule applies a module event to a module status.
func TransitionModule(from, event string) (string, error) {
	targets, ok := moduleTransitions[event]
	if !ok {
		return "", &TransitionError{From: from, Event: event}
	}
	to, ok := targets[from]
	if !ok {
		return "", &TransitionError{From: from, Event: event}
	}
	return to, nil
}

// IsTerminal reports whether a session status has no outgoing transitions
// other than evidence generation and dispatch.
func IsTerminal(status string) bool {
	switch status {
	case StatusPassed, StatusExhausted, StatusAbandoned:
		return true
	default:
		return false
	}
}

// IncrementsAttempt reports whether an event carries an attempt-number
// increment. The state machine stays pure; the session service applies the
// increment inside the same versioned write as the transition.
func IncrementsAttempt(event string) bool {
	return event == EventRemediationStarted
}

// SessionStatuses lists every session status, for validation and tests.
func SessionStatuses() []string {
	return []string{
		StatusCurriculumGenerating,
		StatusInProgress,
		StatusInRemediation,
		StatusEvaluating,
		StatusPassed,
		StatusFailed,
		StatusExhausted,
		StatusAbandoned,
	}
}

// SessionEvents lists every session event.
func SessionEvents() []string {
	return []string{
		EventCurriculumReady,
		EventAllModulesScored,
		EventEvaluationPassed,
		EventEvaluationFailed,
		EventEvaluationExhausted,
		EventRemediationStarted,
		EventSessionAbandoned,
	}
}
