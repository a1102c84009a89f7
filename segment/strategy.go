package segment

import "github.com/cockroachdb/errors"

// FitComparison selects how a single free entry's capacity is tested against a request
type FitComparison uint32

const (
	// FitCapacityAtLeast accepts a free entry only if its capacity covers the whole request.
	// This is the default.
	FitCapacityAtLeast FitComparison = iota
	// FitCapacityAtMost accepts a free entry whose capacity is less than or equal to the request,
	// reproducing the classic simulator's comparison. Processes placed this way may use fewer
	// bytes than they asked for, and UsedMemory may exceed the controller's total memory.
	FitCapacityAtMost
)

var fitComparisonMapping = map[FitComparison]string{
	FitCapacityAtLeast: "at-least",
	FitCapacityAtMost:  "at-most",
}

func (c FitComparison) String() string {
	return fitComparisonMapping[c]
}

func (c FitComparison) accepts(capacity, required uint64) bool {
	if c == FitCapacityAtMost {
		return capacity <= required
	}
	return capacity >= required
}

// ScanMode selects what FindFit does when the entry it is examining can be neither used
// directly nor coalesced with its successor
type ScanMode uint32

const (
	// ScanStopAtGap ends the search at the first free entry that is too small and cannot be
	// merged with its successor into a large-enough region. This is the default.
	ScanStopAtGap ScanMode = iota
	// ScanExhaustive keeps scanning later entries in address order until a fit is found
	ScanExhaustive
)

var scanModeMapping = map[ScanMode]string{
	ScanStopAtGap:  "stop-at-gap",
	ScanExhaustive: "exhaustive",
}

func (m ScanMode) String() string {
	return scanModeMapping[m]
}

// FitPolicy combines the capacity comparison and scan mode used by Table.FindFit. The zero
// value is the default policy.
type FitPolicy struct {
	Comparison FitComparison
	Scan       ScanMode
}

func (p FitPolicy) String() string {
	return p.Comparison.String() + "/" + p.Scan.String()
}

// ParseFitComparison converts the name produced by FitComparison.String back into a value
func ParseFitComparison(name string) (FitComparison, error) {
	for comparison, str := range fitComparisonMapping {
		if str == name {
			return comparison, nil
		}
	}

	return 0, errors.Newf("unknown fit comparison %q: expected at-least or at-most", name)
}

// ParseScanMode converts the name produced by ScanMode.String back into a value
func ParseScanMode(name string) (ScanMode, error) {
	for mode, str := range scanModeMapping {
		if str == name {
			return mode, nil
		}
	}

	return 0, errors.Newf("unknown scan mode %q: expected stop-at-gap or exhaustive", name)
}
