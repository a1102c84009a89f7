package segment

// Fit is returned from Table.FindFit and describes the free region the table selected for a
// request. It can be passed to Table.AdmitIntoFit to commit the placement.
type Fit struct {
	// Range is the full address range of the selected region. The process admitted into it
	// is granted all of it.
	Range AddressRange
	// EntryIndex is the index of the free entry that will be replaced by the admitted process
	EntryIndex int
	// AvailableBytes is the capacity of the selected region. Under FitCapacityAtMost this
	// may be smaller than the request.
	AvailableBytes uint64
	// Coalesced is true if the region was produced by merging two adjacent free entries
	Coalesced bool
}
