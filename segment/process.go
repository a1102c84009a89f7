package segment

import (
	"golang.org/x/exp/slices"
)

// ProcessID identifies a process requesting memory from the simulator
type ProcessID uint64

// Process is a requester's identity, the number of bytes it asked for, and the address ranges
// it has been granted so far. Ranges are only ever appended.
type Process struct {
	id             ProcessID
	requestedBytes uint64
	ranges         []AddressRange
}

// NewProcess creates a Process that has not yet been granted any memory
func NewProcess(id ProcessID, requestedBytes uint64) *Process {
	return &Process{
		id:             id,
		requestedBytes: requestedBytes,
	}
}

func (p *Process) ID() ProcessID { return p.id }

// RequestedBytes is the size the process asked for when it arrived
func (p *Process) RequestedBytes() uint64 { return p.requestedBytes }

// Ranges returns a copy of the address ranges granted to this process, in grant order
func (p *Process) Ranges() []AddressRange {
	return slices.Clone(p.ranges)
}

// UsedBytes is the combined size of every range granted to this process. This can differ from
// RequestedBytes when the process was placed into a reused region.
func (p *Process) UsedBytes() uint64 {
	var total uint64
	for _, r := range p.ranges {
		total += r.Size()
	}
	return total
}

// Extent returns the range from the base of the first granted range to the limit of the last
// one. The boolean is false if nothing has been granted yet.
func (p *Process) Extent() (AddressRange, bool) {
	if len(p.ranges) == 0 {
		return AddressRange{}, false
	}

	return NewAddressRange(p.ranges[0].Base(), p.ranges[len(p.ranges)-1].Limit()), true
}

func (p *Process) grant(r AddressRange) {
	p.ranges = append(p.ranges, r)
}
