package segment

import (
	"github.com/dolthub/swiss"
	"golang.org/x/exp/rand"
)

// CompletionOracle decides, each time the table sweeps for finished processes, whether a live
// process has completed
type CompletionOracle interface {
	Finished(process *Process) bool
}

// OracleFunc adapts a plain function to the CompletionOracle interface
type OracleFunc func(process *Process) bool

func (f OracleFunc) Finished(process *Process) bool {
	return f(process)
}

// randomOracleRange is the upper bound of the value drawn for each completion check
const randomOracleRange int = 1500

// RandomOracle reports a process as finished when a value drawn uniformly from [1, 1500] is
// even, so every live process finishes on each sweep with probability one half
type RandomOracle struct {
	rng *rand.Rand
}

// NewRandomOracle creates a RandomOracle whose draws are fully determined by seed
func NewRandomOracle(seed uint64) *RandomOracle {
	return &RandomOracle{
		rng: rand.New(rand.NewSource(seed)),
	}
}

func (o *RandomOracle) Finished(process *Process) bool {
	return (o.rng.Intn(randomOracleRange)+1)%2 == 0
}

// ScheduleOracle reports exactly the processes it has been told to finish. Each scheduled
// completion is consumed by the first sweep that checks the process.
type ScheduleOracle struct {
	pending *swiss.Map[ProcessID, struct{}]
}

func NewScheduleOracle() *ScheduleOracle {
	return &ScheduleOracle{
		pending: swiss.NewMap[ProcessID, struct{}](16),
	}
}

// Finish schedules the provided processes to be reported finished on the next sweep that
// examines them. Scheduling a process that is queued rather than live has no effect until it
// is admitted.
func (o *ScheduleOracle) Finish(ids ...ProcessID) {
	for _, id := range ids {
		o.pending.Put(id, struct{}{})
	}
}

// Pending returns the number of scheduled completions that have not been consumed yet
func (o *ScheduleOracle) Pending() int {
	return o.pending.Count()
}

func (o *ScheduleOracle) Finished(process *Process) bool {
	return o.pending.Delete(process.ID())
}
