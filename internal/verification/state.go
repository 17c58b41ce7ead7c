package verification

// State is a step of one verification attempt.
type State int

const (
	StateIdle State = iota
	StateFetchingMethods
	StateInterrupted
	StateMethodsPresented
	StateDispatched
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetchingMethods:
		return "fetching_methods"
	case StateInterrupted:
		return "interrupted"
	case StateMethodsPresented:
		return "methods_presented"
	case StateDispatched:
		return "dispatched"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Outcome is how a verification attempt ended.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeCancelled
	OutcomeClosed
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeClosed:
		return "closed"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the terminal state of an attempt. ProcessID is set on success.
// Retryable marks failures the caller may offer to retry.
type Result struct {
	Outcome   Outcome
	ProcessID string
	Err       error
	Retryable bool
}
