package feeder

// State is the feeding state of a Feeder.
type State int

const (
	// StateIdle waits for the consumer to ask for data.
	StateIdle State = iota
	// StateFeeding pushes frames until told the consumer has enough.
	StateFeeding
	// StateStopped is terminal.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFeeding:
		return "feeding"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Reason records why a Feeder stopped.
type Reason int

const (
	ReasonNone Reason = iota
	// ReasonLimit means the frame limit was reached.
	ReasonLimit
	// ReasonCancelled means the run context was cancelled.
	ReasonCancelled
	// ReasonExternal means Stop was called, typically after a bus error or EOS.
	ReasonExternal
	// ReasonPushFailed means the sink rejected a frame.
	ReasonPushFailed
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonLimit:
		return "limit"
	case ReasonCancelled:
		return "cancelled"
	case ReasonExternal:
		return "external"
	case ReasonPushFailed:
		return "push failed"
	default:
		return "unknown"
	}
}

// endsStream reports whether stopping for r should signal end-of-stream downstream.
func (r Reason) endsStream() bool {
	return r == ReasonLimit || r == ReasonCancelled
}
