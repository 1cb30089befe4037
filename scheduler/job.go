package scheduler

import "time"

// State is a job's lifecycle state.
type State int

const (
	// StatePending means the job has not been dispatched yet.
	StatePending State = iota
	// StateRunning means the worker process is in flight.
	StateRunning
	// StateSucceeded means the job resolved with no failed sessions.
	StateSucceeded
	// StateFailed means the job resolved with at least one failure signal.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Job tracks one subject from dispatch through classification. The
// coordinator goroutine owns all fields; everything handed to other
// goroutines goes out as copies inside Events.
type Job struct {
	SubjectID string
	// Sessions the worker will process: the run's session filter when set,
	// otherwise the sessions discovered under the subject directory.
	Sessions []string

	LogPath    string
	MarkerPath string

	State          State
	FailedSessions []string
	StartedAt      time.Time
	FinishedAt     time.Time
	// ExitErr is the worker's exit error, retained for the record even when
	// the exit policy ignores it.
	ExitErr error
}

// EventType distinguishes monitor notifications.
type EventType int

const (
	// EventDispatched fires when a worker process is launched.
	EventDispatched EventType = iota
	// EventResolved fires when a job reaches a terminal state.
	EventResolved
)

// Event is a monitor notification. All fields are copies taken while the
// coordinator owned the job, so receivers never race with it.
type Event struct {
	Type           EventType
	Index          int
	SubjectID      string
	State          State
	FailedSessions []string
	// Outstanding is the number of jobs in flight after this event.
	Outstanding int
	// Resolved is the number of jobs in a terminal state after this event.
	Resolved int
	Total    int
}
