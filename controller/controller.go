package controller

import (
	"context"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/hashicorp/go-multierror"
	"github.com/vkngwrapper/segsim/controller/internal/utils"
	"github.com/vkngwrapper/segsim/memutils"
	"github.com/vkngwrapper/segsim/segment"
	"golang.org/x/exp/slog"
)

// Controller drives a segment table: it decides whether each arriving process extends the table
// at the tail address or reuses a free region, queues the processes that cannot be placed, and
// retries the queue after reclaiming finished processes.
//
// Reclamation never happens in the background. It runs at the start of every admission attempt
// and every queue drain, and whenever ReclaimFinished is called directly.
type Controller struct {
	mutex  utils.OptionalMutex
	logger *slog.Logger

	totalMemory uint64
	tailAddress uint64

	table     *segment.Table
	queue     waitQueue
	reclaimed *swiss.Map[segment.ProcessID, struct{}]

	callbacks callbacks
	counters  Counters
}

var _ memutils.Validatable = &Controller{}

// RequestAdmission attempts to place a new process requesting requestedBytes bytes. It returns
// the process's new entry and true if the process was placed, or false if it was pushed onto the
// wait queue instead. Being queued is not an error.
//
// An error is returned, and nothing is queued, if requestedBytes is zero or id is already queued,
// running, or reclaimed.
func (c *Controller) RequestAdmission(id segment.ProcessID, requestedBytes uint64) (segment.Entry, bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if requestedBytes == 0 {
		return segment.Entry{}, false, errors.Wrapf(memutils.ErrInvalidRequest, "process %d requested zero bytes", id)
	}

	state := c.state(id)
	if state != StateUnknown {
		return segment.Entry{}, false, errors.Wrapf(memutils.ErrInvalidRequest, "process %d is already %s", id, state)
	}

	process := segment.NewProcess(id, requestedBytes)
	entry, admitted := c.admit(process, false)
	if admitted {
		memutils.DebugValidate(validateFunc(c.validate))
		return entry, true, nil
	}

	c.queue.PushBack(process)
	c.counters.Queued++
	c.logger.LogAttrs(context.Background(), slog.LevelDebug, "Controller::RequestAdmission queued",
		slog.Uint64("pid", uint64(id)),
		slog.Uint64("RequestedBytes", requestedBytes),
		slog.Uint64("UsedMemory", c.table.UsedMemory()),
		slog.Int("QueueLength", c.queue.Len()))
	c.callbacks.Queued(process)

	memutils.DebugValidate(validateFunc(c.validate))
	return segment.Entry{}, false, nil
}

// DrainQueue reclaims finished processes and then retries queued processes oldest-first. Each
// admitted process is removed from the queue. The first process that still cannot be placed is
// moved to the back of the queue and the drain stops. Returns true if the queue is empty
// afterward.
func (c *Controller) DrainQueue() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.reclaimFinished()

	for {
		process := c.queue.PopFront()
		if process == nil {
			memutils.DebugValidate(validateFunc(c.validate))
			return true
		}

		_, admitted := c.admit(process, true)
		if !admitted {
			c.queue.PushBack(process)
			memutils.DebugValidate(validateFunc(c.validate))
			return false
		}

		c.counters.AdmittedFromQueue++
	}
}

// ReclaimFinished sweeps the table for finished processes and frees their entries, returning the
// freed entries in address order. Queued processes are never affected.
func (c *Controller) ReclaimFinished() []segment.Entry {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.reclaimFinished()
}

func (c *Controller) reclaimFinished() []segment.Entry {
	freed := c.table.ReclaimFinished()
	if len(freed) == 0 {
		return freed
	}

	var freedBytes uint64
	for _, entry := range freed {
		freedBytes += entry.UsedBytes
		c.reclaimed.Put(entry.Owner, struct{}{})
		c.callbacks.Reclaimed(entry)
	}
	c.counters.Reclaimed += uint64(len(freed))

	c.logger.LogAttrs(context.Background(), slog.LevelDebug, "Controller::reclaimFinished",
		slog.Int("Count", len(freed)),
		slog.Uint64("FreedBytes", freedBytes),
		slog.Int("LiveProcesses", c.table.LiveCount()))

	return freed
}

// admit reclaims finished processes and then tries to place process, first by tail growth and
// then by reusing a free region
func (c *Controller) admit(process *segment.Process, fromQueue bool) (segment.Entry, bool) {
	c.reclaimFinished()

	requested := process.RequestedBytes()
	if c.underCeiling(requested) && c.tailHasRoom(requested) && !c.table.TailIsFree() {
		base := c.tailAddress
		entry := c.table.AppendNew(process, base, base+requested)
		c.tailAddress = base + requested + 1
		c.counters.AdmittedByGrowth++

		c.logAdmission(entry, AdmissionTailGrowth, fromQueue)
		c.callbacks.Admitted(entry, AdmissionTailGrowth, fromQueue)
		return entry, true
	}

	fit, ok := c.table.FindFit(requested)
	if !ok {
		return segment.Entry{}, false
	}

	// A region at least as large as the request is granted whole, so it must still fit under
	// the ceiling. A merge performed by FindFit stays in the table either way.
	if c.table.Policy().Comparison == segment.FitCapacityAtLeast && !c.underCeiling(fit.Range.Size()) {
		c.logger.LogAttrs(context.Background(), slog.LevelDebug, "Controller::admit fit exceeds ceiling",
			slog.Uint64("pid", uint64(process.ID())),
			slog.String("Range", fit.Range.String()),
			slog.Uint64("UsedMemory", c.table.UsedMemory()))
		return segment.Entry{}, false
	}

	if fit.Coalesced {
		c.counters.Coalesced++
	}

	entry := c.table.AdmitIntoFit(process, fit)
	if fit.Range.Limit() >= c.tailAddress {
		c.tailAddress = addressAfter(fit.Range.Limit())
	}
	c.counters.AdmittedByReuse++

	c.logAdmission(entry, AdmissionReuse, fromQueue)
	c.callbacks.Admitted(entry, AdmissionReuse, fromQueue)
	return entry, true
}

// underCeiling returns true if requested more bytes fit under the total memory ceiling
func (c *Controller) underCeiling(requested uint64) bool {
	used := c.table.UsedMemory()
	return used <= c.totalMemory && requested <= c.totalMemory-used
}

// tailHasRoom returns true if a region of requested bytes at the tail address, plus the gap byte
// after it, stays inside the address space
func (c *Controller) tailHasRoom(requested uint64) bool {
	return requested < math.MaxUint64-c.tailAddress
}

func addressAfter(limit uint64) uint64 {
	if limit == math.MaxUint64 {
		return limit
	}
	return limit + 1
}

func (c *Controller) logAdmission(entry segment.Entry, source AdmissionSource, fromQueue bool) {
	c.logger.LogAttrs(context.Background(), slog.LevelDebug, "Controller::admit",
		slog.Uint64("pid", uint64(entry.Owner)),
		slog.String("Source", source.String()),
		slog.Bool("FromQueue", fromQueue),
		slog.String("Range", entry.Range.String()),
		slog.Uint64("UsedMemory", c.table.UsedMemory()),
		slog.String("TailAddress", memutils.FormatAddress(c.tailAddress)))
}

// UsedMemory returns the number of bytes used by running processes
func (c *Controller) UsedMemory() uint64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.table.UsedMemory()
}

// HasLiveProcess returns true while any admitted process has not been reclaimed
func (c *Controller) HasLiveProcess() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.table.HasLiveProcess()
}

// Snapshot returns a copy of the segment table in address order
func (c *Controller) Snapshot() []segment.Entry {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.table.Snapshot()
}

// TotalMemory returns the memory ceiling the controller was created with
func (c *Controller) TotalMemory() uint64 {
	return c.totalMemory
}

// TailAddress returns the base address the next tail growth will use
func (c *Controller) TailAddress() uint64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.tailAddress
}

// FitPolicy returns the policy the segment table uses to match free regions
func (c *Controller) FitPolicy() segment.FitPolicy {
	return c.table.Policy()
}

// QueueLength returns the number of processes waiting for memory
func (c *Controller) QueueLength() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.queue.Len()
}

// Queued returns the IDs of the queued processes, oldest first
func (c *Controller) Queued() []segment.ProcessID {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.queuedIDs()
}

func (c *Controller) queuedIDs() []segment.ProcessID {
	processes := c.queue.Processes()
	ids := make([]segment.ProcessID, 0, len(processes))
	for _, process := range processes {
		ids = append(ids, process.ID())
	}
	return ids
}

// State reports where the process with the provided ID is in its lifecycle
func (c *Controller) State(id segment.ProcessID) ProcessState {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.state(id)
}

func (c *Controller) state(id segment.ProcessID) ProcessState {
	if c.queue.Contains(id) {
		return StateQueued
	}

	if _, live := c.table.Owner(id); live {
		return StateAdmitted
	}

	if _, reclaimed := c.reclaimed.Get(id); reclaimed {
		return StateReclaimed
	}

	return StateUnknown
}

// Validate performs internal consistency checks on the controller and its segment table
func (c *Controller) Validate() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.validate()
}

// validateFunc lets methods that already hold the mutex hand validate to memutils.DebugValidate
type validateFunc func() error

func (f validateFunc) Validate() error {
	return f()
}

func (c *Controller) validate() error {
	var result *multierror.Error

	err := c.table.Validate()
	if err != nil {
		result = multierror.Append(result, err)
	}

	err = c.queue.Validate()
	if err != nil {
		result = multierror.Append(result, err)
	}

	_ = c.table.VisitAllRegions(func(entry segment.Entry) error {
		if entry.Range.Limit() >= c.tailAddress {
			result = multierror.Append(result, errors.Newf("entry for process %d at %s reaches the tail address %s", entry.Owner, entry.Range, memutils.FormatAddress(c.tailAddress)))
		}
		return nil
	})

	for _, process := range c.queue.Processes() {
		if _, live := c.table.Owner(process.ID()); live {
			result = multierror.Append(result, errors.Newf("process %d is both queued and running", process.ID()))
		}

		if len(process.Ranges()) != 0 {
			result = multierror.Append(result, errors.Newf("queued process %d has already been granted memory", process.ID()))
		}
	}

	return result.ErrorOrNil()
}
