package batch

// Status is the lifecycle state of a step or job execution.
type Status string

const (
	StatusStarting  Status = "STARTING"
	StatusStarted   Status = "STARTED"
	StatusCompleted Status = "COMPLETED"
	StatusStopped   Status = "STOPPED"
	StatusFailed    Status = "FAILED"
)

// IsTerminal reports whether no further transitions can happen.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusStopped, StatusFailed:
		return true
	default:
		return false
	}
}
