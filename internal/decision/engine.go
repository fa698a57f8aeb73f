package decision

// PollState is a step of the poll cycle.
type PollState string

const (
	Idle          PollState = "IDLE"
	Announce      PollState = "ANNOUNCE"
	AwaitInterval PollState = "AWAIT_INTERVAL"
	FetchStatus   PollState = "FETCH_STATUS"
	Authenticate  PollState = "AUTHENTICATE"
	ExtractStatus PollState = "EXTRACT_STATUS"
	FetchAlarms   PollState = "FETCH_ALARMS"
	ExtractAlarms PollState = "EXTRACT_ALARMS"
	Publish       PollState = "PUBLISH"
	Fatal         PollState = "FATAL"
)

// Engine holds the cycle state. It performs no I/O: the caller does the
// work for State() and reports whether it succeeded to Evaluate.
// Not safe for concurrent use; one driver owns it.
type Engine struct {
	state PollState

	// set once the status page has been retried after a login
	retried bool
}

func NewEngine() *Engine {
	return &Engine{state: Idle}
}

func (e *Engine) State() PollState { return e.state }

// Retried reports whether the current cycle has already logged in again.
func (e *Engine) Retried() bool { return e.retried }

// Evaluate advances past the current state. ok is the outcome of the
// work done in it; only FetchStatus and Authenticate branch on it.
func (e *Engine) Evaluate(ok bool) PollState {
	switch e.state {

	case Idle, Publish:
		e.state = Announce

	case Announce:
		e.state = AwaitInterval

	case AwaitInterval:
		e.retried = false
		e.state = FetchStatus

	case FetchStatus:
		switch {
		case ok:
			e.state = ExtractStatus
		case !e.retried:
			e.state = Authenticate
		default:
			// second failure after a fresh login: extract degrades to defaults
			e.state = ExtractStatus
		}

	case Authenticate:
		if ok {
			e.retried = true
			e.state = FetchStatus
		} else {
			e.state = Fatal
		}

	case ExtractStatus:
		e.state = FetchAlarms

	case FetchAlarms:
		// alarm page failures never escalate
		e.state = ExtractAlarms

	case ExtractAlarms:
		e.state = Publish

	case Fatal:
	}

	return e.state
}
