package segment

import (
	"fmt"

	"github.com/vkngwrapper/segsim/memutils"
)

// Entry is a single row of the segment table
type Entry struct {
	// Owner is the process occupying the range, or the last process to occupy it if the
	// entry is free
	Owner ProcessID
	// Range is the address range the entry covers
	Range AddressRange
	// UsedBytes is the owning process's usage while the entry is full, and the reusable
	// capacity of the region once it is free
	UsedBytes uint64
	Status    Status
}

func (e Entry) IsFree() bool { return e.Status == StatusFree }

func (e Entry) String() string {
	return fmt.Sprintf("%d | %s | %s | %d Bytes | %s",
		e.Owner,
		memutils.FormatAddress(e.Range.Base()),
		memutils.FormatAddress(e.Range.Limit()),
		e.UsedBytes,
		e.Status)
}

// tableEntry is the table's internal row: the public Entry plus the live process that owns it
type tableEntry struct {
	Entry
	process *Process
}
