package controller

// ProcessState is the position of a process in its lifecycle: it is queued or admitted when it
// arrives, queued processes are eventually admitted, and admitted processes are eventually
// reclaimed. Reclaimed is terminal.
type ProcessState uint32

const (
	StateUnknown ProcessState = iota
	StateQueued
	StateAdmitted
	StateReclaimed
)

var processStateMapping = map[ProcessState]string{
	StateUnknown:   "Unknown",
	StateQueued:    "Queued",
	StateAdmitted:  "Admitted",
	StateReclaimed: "Reclaimed",
}

func (s ProcessState) String() string {
	return processStateMapping[s]
}
