package controller

import "github.com/vkngwrapper/segsim/segment"

// AdmissionSource identifies how an admitted process was placed
type AdmissionSource uint32

const (
	// AdmissionTailGrowth indicates the process was placed in a new entry at the tail address
	AdmissionTailGrowth AdmissionSource = iota + 1
	// AdmissionReuse indicates the process was placed into a free region found by the table
	AdmissionReuse
)

var admissionSourceMapping = map[AdmissionSource]string{
	AdmissionTailGrowth: "TailGrowth",
	AdmissionReuse:      "Reuse",
}

func (s AdmissionSource) String() string {
	return admissionSourceMapping[s]
}

type AdmittedCallback func(
	controller *Controller,
	entry segment.Entry,
	source AdmissionSource,
	fromQueue bool,
	userData any,
)

type QueuedCallback func(
	controller *Controller,
	id segment.ProcessID,
	requestedBytes uint64,
	userData any,
)

type ReclaimedCallback func(
	controller *Controller,
	entry segment.Entry,
	userData any,
)

type CallbackOptions struct {
	Admitted  AdmittedCallback
	Queued    QueuedCallback
	Reclaimed ReclaimedCallback
	UserData  any
}

type callbacks struct {
	Callbacks  *CallbackOptions
	Controller *Controller
}

func (c *callbacks) Admitted(entry segment.Entry, source AdmissionSource, fromQueue bool) {
	if c.Callbacks != nil && c.Callbacks.Admitted != nil {
		c.Callbacks.Admitted(c.Controller, entry, source, fromQueue, c.Callbacks.UserData)
	}
}

func (c *callbacks) Queued(process *segment.Process) {
	if c.Callbacks != nil && c.Callbacks.Queued != nil {
		c.Callbacks.Queued(c.Controller, process.ID(), process.RequestedBytes(), c.Callbacks.UserData)
	}
}

func (c *callbacks) Reclaimed(entry segment.Entry) {
	if c.Callbacks != nil && c.Callbacks.Reclaimed != nil {
		c.Callbacks.Reclaimed(c.Controller, entry, c.Callbacks.UserData)
	}
}
