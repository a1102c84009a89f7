package segment

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/hashicorp/go-multierror"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/segsim/memutils"
	"golang.org/x/exp/slices"
)

// Table is the ordered list of segment entries for one simulated memory region. Entries are
// kept in ascending base-address order and never overlap. Free entries remain in the table as
// reusable regions until they are granted again or merged into a neighbor.
//
// Table is not safe for concurrent use.
type Table struct {
	entries   []tableEntry
	owners    *swiss.Map[ProcessID, *Process]
	usedBytes uint64

	policy FitPolicy
	oracle CompletionOracle
}

var _ memutils.Validatable = &Table{}

// NewTable creates an empty Table that will place requests according to policy and decide
// which processes have finished by consulting oracle.
func NewTable(policy FitPolicy, oracle CompletionOracle) *Table {
	if oracle == nil {
		panic("a segment table requires a completion oracle")
	}

	return &Table{
		owners: swiss.NewMap[ProcessID, *Process](16),
		policy: policy,
		oracle: oracle,
	}
}

// Policy returns the FitPolicy used by FindFit
func (t *Table) Policy() FitPolicy { return t.policy }

// Len returns the number of entries in the table, live or free
func (t *Table) Len() int { return len(t.entries) }

// UsedMemory returns the sum of the used bytes of every live entry
func (t *Table) UsedMemory() uint64 { return t.usedBytes }

// HasLiveProcess returns true if any entry is owned by a running process
func (t *Table) HasLiveProcess() bool { return t.owners.Count() > 0 }

// LiveCount returns the number of running processes
func (t *Table) LiveCount() int { return t.owners.Count() }

// TailIsFree returns true if the highest entry in the table is a free region. New processes
// should be placed into that region rather than past it.
func (t *Table) TailIsFree() bool {
	return len(t.entries) > 0 && t.entries[len(t.entries)-1].Status == StatusFree
}

// Owner retrieves a live process by ID
func (t *Table) Owner(id ProcessID) (*Process, bool) {
	return t.owners.Get(id)
}

// Snapshot returns a copy of every entry in address order
func (t *Table) Snapshot() []Entry {
	snapshot := make([]Entry, 0, len(t.entries))
	for _, entry := range t.entries {
		snapshot = append(snapshot, entry.Entry)
	}
	return snapshot
}

// VisitAllRegions calls the provided callback once for each entry in address order, stopping at
// the first error
func (t *Table) VisitAllRegions(handleEntry func(entry Entry) error) error {
	for _, entry := range t.entries {
		err := handleEntry(entry.Entry)
		if err != nil {
			return err
		}
	}

	return nil
}

// FindFit searches the table in address order for a free region that can hold required bytes.
//
// A free entry that passes the policy's capacity comparison is returned as-is. Otherwise, if the
// following entry is also free and the two capacities together cover the request, the two entries
// are merged into one free entry spanning [first.Base, second.Limit) and that merged region is
// returned. Merging happens during the search, so the table has one fewer entry afterward even if
// the caller never commits the fit.
//
// When an entry can be neither used nor merged, ScanStopAtGap ends the search there and
// ScanExhaustive moves on to the next entry.
func (t *Table) FindFit(required uint64) (Fit, bool) {
	for index := 0; index < len(t.entries); index++ {
		entry := t.entries[index]
		if entry.Status == StatusFull {
			continue
		}

		if t.policy.Comparison.accepts(entry.UsedBytes, required) {
			return Fit{
				Range:          entry.Range,
				EntryIndex:     index,
				AvailableBytes: entry.UsedBytes,
			}, true
		}

		nextIndex := index + 1
		if nextIndex >= len(t.entries) || t.entries[nextIndex].Status == StatusFull {
			if t.policy.Scan == ScanStopAtGap {
				return Fit{}, false
			}
			continue
		}

		if entry.UsedBytes+t.entries[nextIndex].UsedBytes >= required {
			return t.coalesce(index), true
		}

		if t.policy.Scan == ScanStopAtGap {
			return Fit{}, false
		}
	}

	return Fit{}, false
}

// coalesce merges the free entry at index with the free entry that follows it
func (t *Table) coalesce(index int) Fit {
	first := &t.entries[index]
	second := t.entries[index+1]

	first.Range = NewAddressRange(first.Range.Base(), second.Range.Limit())
	first.UsedBytes += second.UsedBytes
	t.entries = slices.Delete(t.entries, index+1, index+2)

	memutils.DebugValidate(t)

	return Fit{
		Range:          first.Range,
		EntryIndex:     index,
		AvailableBytes: first.UsedBytes,
		Coalesced:      true,
	}
}

// AdmitIntoFit grants the fit's whole range to process and replaces the free entry the fit was
// taken from with a live entry for the process. The fit must have come from FindFit with no
// other table mutation in between.
func (t *Table) AdmitIntoFit(process *Process, fit Fit) Entry {
	if fit.EntryIndex < 0 || fit.EntryIndex >= len(t.entries) {
		panic(cerrors.AssertionFailedf("fit refers to entry %d, but the table has %d entries", fit.EntryIndex, len(t.entries)))
	}

	target := t.entries[fit.EntryIndex]
	if target.Status != StatusFree || target.Range != fit.Range {
		panic(cerrors.AssertionFailedf("fit for %s no longer matches entry %d (%s)", fit.Range, fit.EntryIndex, target.Entry))
	}

	t.checkNotLive(process)

	process.grant(fit.Range)
	entry := t.liveEntry(process)
	t.entries[fit.EntryIndex] = entry
	t.trackLive(entry)

	memutils.DebugValidate(t)
	return entry.Entry
}

// AppendNew grants process the range [base, limit) and adds a live entry for it after every
// existing entry. base must not be lower than the limit of the current last entry.
func (t *Table) AppendNew(process *Process, base, limit uint64) Entry {
	newRange := NewAddressRange(base, limit)
	if len(t.entries) > 0 {
		last := t.entries[len(t.entries)-1]
		if base < last.Range.Limit() {
			panic(cerrors.AssertionFailedf("cannot append %s below the end of the last entry %s", newRange, last.Range))
		}
	}

	t.checkNotLive(process)

	process.grant(newRange)
	entry := t.liveEntry(process)
	t.entries = append(t.entries, entry)
	t.trackLive(entry)

	memutils.DebugValidate(t)
	return entry.Entry
}

// ReclaimFinished asks the completion oracle about every live entry and flips the finished ones
// to free. The freed entries stay in the table as reusable regions and are returned in address
// order.
func (t *Table) ReclaimFinished() []Entry {
	var freed []Entry

	for index := range t.entries {
		entry := &t.entries[index]
		if entry.Status != StatusFull || !t.oracle.Finished(entry.process) {
			continue
		}

		entry.Status = StatusFree
		entry.process = nil
		t.usedBytes -= entry.UsedBytes
		t.owners.Delete(entry.Owner)

		freed = append(freed, entry.Entry)
	}

	memutils.DebugValidate(t)
	return freed
}

func (t *Table) checkNotLive(process *Process) {
	if _, live := t.owners.Get(process.ID()); live {
		panic(cerrors.AssertionFailedf("process %d already owns a live entry", process.ID()))
	}
}

func (t *Table) liveEntry(process *Process) tableEntry {
	extent, _ := process.Extent()

	return tableEntry{
		Entry: Entry{
			Owner:     process.ID(),
			Range:     extent,
			UsedBytes: process.UsedBytes(),
			Status:    StatusFull,
		},
		process: process,
	}
}

func (t *Table) trackLive(entry tableEntry) {
	t.owners.Put(entry.Owner, entry.process)
	t.usedBytes += entry.UsedBytes
}

// Validate performs internal consistency checks on the table: entries must be ordered and
// non-overlapping, live entries must agree with their processes, and the cached usage totals
// must match a recount. Every violation found is reported.
func (t *Table) Validate() error {
	var result *multierror.Error
	var usedBytes uint64
	var liveCount int

	for index, entry := range t.entries {
		if entry.Range.Limit() < entry.Range.Base() {
			result = multierror.Append(result, errors.Errorf("entry %d has an inverted range %d-%d", index, entry.Range.Base(), entry.Range.Limit()))
		}

		if index > 0 {
			previous := t.entries[index-1]
			if previous.Range.Limit() > entry.Range.Base() {
				result = multierror.Append(result, errors.Errorf("entry %d at %s overlaps or precedes the previous entry at %s", index, entry.Range, previous.Range))
			}
		}

		switch entry.Status {
		case StatusFull:
			liveCount++
			usedBytes += entry.UsedBytes

			if entry.process == nil {
				result = multierror.Append(result, errors.Errorf("entry %d is full but has no process", index))
				continue
			}

			if entry.process.ID() != entry.Owner {
				result = multierror.Append(result, errors.Errorf("entry %d is owned by process %d but holds process %d", index, entry.Owner, entry.process.ID()))
			}

			if entry.process.UsedBytes() != entry.UsedBytes {
				result = multierror.Append(result, errors.Errorf("entry %d records %d used bytes, but process %d uses %d", index, entry.UsedBytes, entry.Owner, entry.process.UsedBytes()))
			}

			indexed, ok := t.owners.Get(entry.Owner)
			if !ok || indexed != entry.process {
				result = multierror.Append(result, errors.Errorf("live process %d at entry %d is missing from the owner index", entry.Owner, index))
			}
		case StatusFree:
			if entry.process != nil {
				result = multierror.Append(result, errors.Errorf("entry %d is free but still holds process %d", index, entry.process.ID()))
			}
		default:
			result = multierror.Append(result, errors.Errorf("entry %d has unknown status %d", index, entry.Status))
		}
	}

	if usedBytes != t.usedBytes {
		result = multierror.Append(result, errors.Errorf("the table's used memory is %d, but live entries add up to %d", t.usedBytes, usedBytes))
	}

	if liveCount != t.owners.Count() {
		result = multierror.Append(result, errors.Errorf("the owner index holds %d processes, but there are %d live entries", t.owners.Count(), liveCount))
	}

	return result.ErrorOrNil()
}

// AddStatistics sums this table's entry statistics into the provided memutils.Statistics object
func (t *Table) AddStatistics(stats *memutils.Statistics) {
	stats.SegmentCount += len(t.entries)
	stats.LiveCount += t.owners.Count()
	stats.LiveBytes += t.usedBytes

	for _, entry := range t.entries {
		stats.SegmentBytes += entry.Range.Size()
	}
}

// AddDetailedStatistics sums this table's entry statistics into the provided
// memutils.DetailedStatistics object
func (t *Table) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.SegmentCount += len(t.entries)

	for _, entry := range t.entries {
		stats.SegmentBytes += entry.Range.Size()

		if entry.Status == StatusFull {
			stats.AddLiveRegion(entry.UsedBytes)
		} else {
			stats.AddFreeRegion(entry.UsedBytes)
		}
	}
}

// WriteJSON populates a json object with the table's totals and one object per entry
func (t *Table) WriteJSON(json jwriter.ObjectState) {
	var freeCount int
	var freeBytes uint64
	for _, entry := range t.entries {
		if entry.Status == StatusFree {
			freeCount++
			freeBytes += entry.UsedBytes
		}
	}

	json.Name("Policy").String(t.policy.String())
	json.Name("Entries").Int(len(t.entries))
	json.Name("LiveProcesses").Int(t.owners.Count())
	memutils.WriteUint(json.Name("UsedBytes"), t.usedBytes)
	json.Name("FreeRegions").Int(freeCount)
	memutils.WriteUint(json.Name("FreeBytes"), freeBytes)

	arrayState := json.Name("Segments").Array()
	defer arrayState.End()

	for _, entry := range t.entries {
		obj := arrayState.Object()
		memutils.WriteUint(obj.Name("Owner"), uint64(entry.Owner))
		obj.Name("Base").String(memutils.FormatAddress(entry.Range.Base()))
		obj.Name("Limit").String(memutils.FormatAddress(entry.Range.Limit()))
		memutils.WriteUint(obj.Name("UsedBytes"), entry.UsedBytes)
		obj.Name("Status").String(entry.Status.String())
		obj.End()
	}
}
