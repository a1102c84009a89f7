package segment

// Status indicates whether a segment table entry is occupied by a running process or available
// for reuse
type Status uint32

const (
	// StatusFull indicates the entry is owned by a live process
	StatusFull Status = iota + 1
	// StatusFree indicates the entry's process has finished and its range may be granted again
	StatusFree
)

var statusMapping = map[Status]string{
	StatusFull: "Full",
	StatusFree: "Free",
}

func (s Status) String() string {
	return statusMapping[s]
}
