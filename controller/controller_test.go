package controller_test

import (
	"encoding/json"
	"math"
	"os"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/segsim/controller"
	"github.com/vkngwrapper/segsim/memutils"
	"github.com/vkngwrapper/segsim/segment"
	"golang.org/x/exp/slog"
)

var allowRanges = cmp.AllowUnexported(segment.AddressRange{})

func newController(t *testing.T, totalMemory uint64, options controller.CreateOptions) *controller.Controller {
	logger := slog.New(slog.HandlerOptions{Level: slog.LevelDebug}.NewTextHandler(os.Stdout))

	c, err := controller.New(logger, totalMemory, options)
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	return c
}

func admit(t *testing.T, c *controller.Controller, id segment.ProcessID, requestedBytes uint64) segment.Entry {
	entry, admitted, err := c.RequestAdmission(id, requestedBytes)
	require.NoError(t, err)
	require.True(t, admitted, "process %d should have been admitted", id)
	require.NoError(t, c.Validate())
	return entry
}

func queue(t *testing.T, c *controller.Controller, id segment.ProcessID, requestedBytes uint64) {
	entry, admitted, err := c.RequestAdmission(id, requestedBytes)
	require.NoError(t, err)
	require.False(t, admitted, "process %d should have been queued", id)
	require.Equal(t, segment.Entry{}, entry)
	require.NoError(t, c.Validate())
}

func TestNewRejectsZeroMemory(t *testing.T) {
	_, err := controller.New(nil, 0, controller.CreateOptions{})
	require.ErrorIs(t, err, memutils.ErrInvalidConfiguration)
}

func TestNewDefaults(t *testing.T) {
	c, err := controller.New(nil, 100, controller.CreateOptions{})
	require.NoError(t, err)

	require.Equal(t, uint64(100), c.TotalMemory())
	require.Zero(t, c.TailAddress())
	require.Zero(t, c.UsedMemory())
	require.False(t, c.HasLiveProcess())
	require.Empty(t, c.Snapshot())
	require.Equal(t, segment.FitPolicy{}, c.FitPolicy())
}

func TestAdmitThenQueue(t *testing.T) {
	oracle := segment.NewScheduleOracle()
	c := newController(t, 100, controller.CreateOptions{Oracle: oracle})

	entry := admit(t, c, 1, 40)
	require.Equal(t, segment.NewAddressRange(0, 40), entry.Range)
	require.Equal(t, uint64(40), c.UsedMemory())
	require.Equal(t, uint64(41), c.TailAddress())

	queue(t, c, 2, 70)
	require.Equal(t, []segment.ProcessID{2}, c.Queued())
	require.Equal(t, controller.StateQueued, c.State(2))
	require.Equal(t, controller.StateAdmitted, c.State(1))
	require.Equal(t, uint64(40), c.UsedMemory())
	require.Len(t, c.Snapshot(), 1)
}

func TestDrainLeavesUnplaceableProcessQueued(t *testing.T) {
	oracle := segment.NewScheduleOracle()
	c := newController(t, 100, controller.CreateOptions{Oracle: oracle})

	admit(t, c, 1, 40)
	queue(t, c, 2, 70)

	oracle.Finish(1)
	require.False(t, c.DrainQueue())
	require.NoError(t, c.Validate())

	require.Equal(t, []segment.ProcessID{2}, c.Queued())
	require.Equal(t, controller.StateReclaimed, c.State(1))
	require.Zero(t, c.UsedMemory())
	require.False(t, c.HasLiveProcess())

	diff := cmp.Diff([]segment.Entry{
		{
			Owner:     1,
			Range:     segment.NewAddressRange(0, 40),
			UsedBytes: 40,
			Status:    segment.StatusFree,
		},
	}, c.Snapshot(), allowRanges)
	require.Empty(t, diff)
}

func TestCoalescingAdmission(t *testing.T) {
	oracle := segment.NewScheduleOracle()
	c := newController(t, 100, controller.CreateOptions{Oracle: oracle})

	admit(t, c, 1, 30)
	admit(t, c, 2, 45)
	admit(t, c, 3, 20)
	require.Equal(t, uint64(98), c.TailAddress())

	oracle.Finish(1, 2, 3)
	require.Len(t, c.ReclaimFinished(), 3)
	require.Zero(t, c.UsedMemory())

	// The last entry is free, so growth is blocked and the two free regions at the front are merged
	coalesced := admit(t, c, 4, 70)
	require.Equal(t, segment.NewAddressRange(0, 76), coalesced.Range)
	require.Equal(t, uint64(76), coalesced.UsedBytes)
	require.Equal(t, uint64(76), c.UsedMemory())

	diff := cmp.Diff([]segment.Entry{
		{Owner: 4, Range: segment.NewAddressRange(0, 76), UsedBytes: 76, Status: segment.StatusFull},
		{Owner: 3, Range: segment.NewAddressRange(77, 97), UsedBytes: 20, Status: segment.StatusFree},
	}, c.Snapshot(), allowRanges)
	require.Empty(t, diff)

	require.Equal(t, uint64(98), c.TailAddress())

	counters := c.Counters()
	require.Equal(t, uint64(3), counters.AdmittedByGrowth)
	require.Equal(t, uint64(1), counters.AdmittedByReuse)
	require.Equal(t, uint64(1), counters.Coalesced)
	require.Equal(t, uint64(3), counters.Reclaimed)
	require.Equal(t, uint64(4), counters.Admitted())
}

func TestReuseAboveCeilingIsQueued(t *testing.T) {
	oracle := segment.NewScheduleOracle()
	c := newController(t, 100, controller.CreateOptions{Oracle: oracle})

	admit(t, c, 1, 30)
	admit(t, c, 2, 45)
	admit(t, c, 3, 25)
	require.Equal(t, uint64(100), c.UsedMemory())

	oracle.Finish(1, 2)
	require.Len(t, c.ReclaimFinished(), 2)

	grown := admit(t, c, 4, 60)
	require.Equal(t, segment.NewAddressRange(103, 163), grown.Range)
	require.Equal(t, uint64(85), c.UsedMemory())

	// The merged region at the front holds 70 bytes, but granting all 76 of its bytes would pass
	// the ceiling
	queue(t, c, 5, 70)
	require.Equal(t, uint64(85), c.UsedMemory())
	require.LessOrEqual(t, c.UsedMemory(), c.TotalMemory())

	diff := cmp.Diff([]segment.Entry{
		{Owner: 1, Range: segment.NewAddressRange(0, 76), UsedBytes: 75, Status: segment.StatusFree},
		{Owner: 3, Range: segment.NewAddressRange(77, 102), UsedBytes: 25, Status: segment.StatusFull},
		{Owner: 4, Range: segment.NewAddressRange(103, 163), UsedBytes: 60, Status: segment.StatusFull},
	}, c.Snapshot(), allowRanges)
	require.Empty(t, diff)

	counters := c.Counters()
	require.Zero(t, counters.AdmittedByReuse)
	require.Zero(t, counters.Coalesced)
	require.Equal(t, uint64(1), counters.Queued)

	// 25 live bytes plus the 76 byte region is still one byte over
	oracle.Finish(4)
	require.False(t, c.DrainQueue())
	require.Equal(t, []segment.ProcessID{5}, c.Queued())

	oracle.Finish(3)
	require.True(t, c.DrainQueue())
	require.Equal(t, controller.StateAdmitted, c.State(5))
	require.Equal(t, uint64(76), c.UsedMemory())
	require.NoError(t, c.Validate())
}

func TestUsedMemoryStaysUnderCeiling(t *testing.T) {
	policies := []segment.FitPolicy{
		{Comparison: segment.FitCapacityAtLeast, Scan: segment.ScanStopAtGap},
		{Comparison: segment.FitCapacityAtLeast, Scan: segment.ScanExhaustive},
	}

	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			c := newController(t, 200, controller.CreateOptions{FitPolicy: policy, Seed: 11})

			for id := segment.ProcessID(1); id <= 300; id++ {
				_, _, err := c.RequestAdmission(id, uint64(id*37)%90+1)
				require.NoError(t, err)
				require.LessOrEqual(t, c.UsedMemory(), c.TotalMemory())

				c.DrainQueue()
				require.LessOrEqual(t, c.UsedMemory(), c.TotalMemory())
				require.NoError(t, c.Validate())
			}
		})
	}
}

func TestTailGrowthNearAddressSpaceEnd(t *testing.T) {
	c := newController(t, math.MaxUint64, controller.CreateOptions{Oracle: segment.NewScheduleOracle()})

	admit(t, c, 1, 10)
	require.Equal(t, uint64(11), c.TailAddress())

	// The region would end past the last address, so the process waits instead
	require.NotPanics(t, func() {
		queue(t, c, 2, math.MaxUint64-10)
	})

	entry := admit(t, c, 3, math.MaxUint64-12)
	require.Equal(t, segment.NewAddressRange(11, math.MaxUint64-1), entry.Range)
	require.Equal(t, uint64(math.MaxUint64), c.TailAddress())

	require.NotPanics(t, func() {
		queue(t, c, 4, 1)
	})
	require.Equal(t, []segment.ProcessID{2, 4}, c.Queued())
	require.LessOrEqual(t, c.UsedMemory(), c.TotalMemory())
}

func TestTailGrowthUsesPreviousTail(t *testing.T) {
	c := newController(t, 1000, controller.CreateOptions{Oracle: segment.NewScheduleOracle()})

	sizes := []uint64{1, 17, 250, 3, 99}
	for index, size := range sizes {
		tail := c.TailAddress()
		entry := admit(t, c, segment.ProcessID(index+1), size)

		require.Equal(t, tail, entry.Range.Base())
		require.Equal(t, size, entry.Range.Size())
		require.Equal(t, tail+size+1, c.TailAddress())
		require.LessOrEqual(t, c.UsedMemory(), c.TotalMemory())
	}
}

func TestFreeTailBlocksGrowth(t *testing.T) {
	oracle := segment.NewScheduleOracle()
	c := newController(t, 100, controller.CreateOptions{Oracle: oracle})

	admit(t, c, 1, 20)
	admit(t, c, 2, 30)
	oracle.Finish(2)

	// Process 2's region is the last entry, so it is reused instead of growing the table
	entry := admit(t, c, 3, 10)
	require.Equal(t, segment.NewAddressRange(21, 51), entry.Range)
	require.Equal(t, uint64(30), entry.UsedBytes)
	require.Equal(t, uint64(52), c.TailAddress())
	require.Len(t, c.Snapshot(), 2)
}

func TestReclaimNeverTouchesQueuedProcesses(t *testing.T) {
	oracle := segment.NewScheduleOracle()
	c := newController(t, 50, controller.CreateOptions{Oracle: oracle})

	admit(t, c, 1, 50)
	queue(t, c, 2, 10)
	queue(t, c, 3, 10)

	oracle.Finish(2, 3)
	require.Empty(t, c.ReclaimFinished())
	require.Equal(t, []segment.ProcessID{2, 3}, c.Queued())
	require.Equal(t, 2, oracle.Pending())
	require.NoError(t, c.Validate())
}

func TestDrainQueueIsFirstInFirstOut(t *testing.T) {
	oracle := segment.NewScheduleOracle()
	var order []segment.ProcessID

	c := newController(t, 60, controller.CreateOptions{
		Oracle: oracle,
		Callbacks: &controller.CallbackOptions{
			Admitted: func(c *controller.Controller, entry segment.Entry, source controller.AdmissionSource, fromQueue bool, userData any) {
				if fromQueue {
					order = append(order, entry.Owner)
				}
			},
		},
	})

	admit(t, c, 1, 20)
	admit(t, c, 5, 20)
	admit(t, c, 6, 20)
	queue(t, c, 2, 5)
	queue(t, c, 3, 10)
	queue(t, c, 4, 15)

	oracle.Finish(1, 5, 6)
	require.True(t, c.DrainQueue())
	require.NoError(t, c.Validate())

	require.Equal(t, []segment.ProcessID{2, 3, 4}, order)
	require.Zero(t, c.QueueLength())
	require.Equal(t, uint64(3), c.Counters().AdmittedFromQueue)
}

func TestDrainQueueRotatesFailedProcess(t *testing.T) {
	oracle := segment.NewScheduleOracle()
	c := newController(t, 50, controller.CreateOptions{Oracle: oracle})

	admit(t, c, 1, 50)
	queue(t, c, 2, 60)
	queue(t, c, 3, 10)

	// Nothing finished and the front process is too large, so it moves behind process 3
	require.False(t, c.DrainQueue())
	require.Equal(t, []segment.ProcessID{3, 2}, c.Queued())

	oracle.Finish(1)
	require.False(t, c.DrainQueue())
	require.Equal(t, []segment.ProcessID{2}, c.Queued())
	require.Equal(t, controller.StateAdmitted, c.State(3))
	require.NoError(t, c.Validate())
}

func TestDrainEmptyQueue(t *testing.T) {
	c := newController(t, 10, controller.CreateOptions{Oracle: segment.NewScheduleOracle()})
	require.True(t, c.DrainQueue())
}

func TestRequestAdmissionRejectsBadInput(t *testing.T) {
	oracle := segment.NewScheduleOracle()
	c := newController(t, 20, controller.CreateOptions{Oracle: oracle})

	_, _, err := c.RequestAdmission(1, 0)
	require.ErrorIs(t, err, memutils.ErrInvalidRequest)

	admit(t, c, 1, 20)
	_, _, err = c.RequestAdmission(1, 5)
	require.ErrorIs(t, err, memutils.ErrInvalidRequest)

	queue(t, c, 2, 5)
	_, _, err = c.RequestAdmission(2, 5)
	require.ErrorIs(t, err, memutils.ErrInvalidRequest)

	oracle.Finish(1)
	require.Len(t, c.ReclaimFinished(), 1)
	_, _, err = c.RequestAdmission(1, 5)
	require.ErrorIs(t, err, memutils.ErrInvalidRequest)

	require.Equal(t, []segment.ProcessID{2}, c.Queued())
	require.Equal(t, controller.StateUnknown, c.State(99))
	require.NoError(t, c.Validate())
}

func TestCallbacks(t *testing.T) {
	type event struct {
		kind string
		id   segment.ProcessID
	}

	oracle := segment.NewScheduleOracle()
	var events []event
	var sources []controller.AdmissionSource

	c := newController(t, 30, controller.CreateOptions{
		Oracle: oracle,
		Callbacks: &controller.CallbackOptions{
			Admitted: func(c *controller.Controller, entry segment.Entry, source controller.AdmissionSource, fromQueue bool, userData any) {
				events = append(events, event{kind: userData.(string) + "admitted", id: entry.Owner})
				sources = append(sources, source)
			},
			Queued: func(c *controller.Controller, id segment.ProcessID, requestedBytes uint64, userData any) {
				events = append(events, event{kind: userData.(string) + "queued", id: id})
			},
			Reclaimed: func(c *controller.Controller, entry segment.Entry, userData any) {
				events = append(events, event{kind: userData.(string) + "reclaimed", id: entry.Owner})
			},
			UserData: "test-",
		},
	})

	admit(t, c, 1, 30)
	queue(t, c, 2, 30)
	oracle.Finish(1)
	require.True(t, c.DrainQueue())

	require.Equal(t, []event{
		{kind: "test-admitted", id: 1},
		{kind: "test-queued", id: 2},
		{kind: "test-reclaimed", id: 1},
		{kind: "test-admitted", id: 2},
	}, events)
	require.Equal(t, []controller.AdmissionSource{controller.AdmissionTailGrowth, controller.AdmissionReuse}, sources)
}

func TestBuildStatsString(t *testing.T) {
	oracle := segment.NewScheduleOracle()
	c := newController(t, 100, controller.CreateOptions{Oracle: oracle})

	admit(t, c, 1, 40)
	admit(t, c, 2, 20)
	queue(t, c, 3, 90)
	oracle.Finish(1)
	require.Len(t, c.ReclaimFinished(), 1)

	var stats struct {
		Controller struct {
			TotalMemory int
			TailAddress string
			FitPolicy   string
			QueueLength int
		}
		Total struct {
			SegmentCount int
			LiveCount    int
			LiveBytes    int
			FreeCount    int
			FreeBytes    int
		}
		Counters struct {
			AdmittedByGrowth int
			Queued           int
			Reclaimed        int
		}
		SegmentTable *struct {
			Entries  int
			Segments []struct {
				Owner  int
				Status string
			}
		}
		Queue []struct {
			Owner          int
			RequestedBytes int
		}
	}

	require.NoError(t, json.Unmarshal([]byte(c.BuildStatsString(false)), &stats))
	require.Equal(t, 100, stats.Controller.TotalMemory)
	require.Equal(t, "0x3e", stats.Controller.TailAddress)
	require.Equal(t, "at-least/stop-at-gap", stats.Controller.FitPolicy)
	require.Equal(t, 1, stats.Controller.QueueLength)
	require.Equal(t, 2, stats.Total.SegmentCount)
	require.Equal(t, 1, stats.Total.LiveCount)
	require.Equal(t, 20, stats.Total.LiveBytes)
	require.Equal(t, 1, stats.Total.FreeCount)
	require.Equal(t, 40, stats.Total.FreeBytes)
	require.Equal(t, 2, stats.Counters.AdmittedByGrowth)
	require.Equal(t, 1, stats.Counters.Queued)
	require.Equal(t, 1, stats.Counters.Reclaimed)
	require.Nil(t, stats.SegmentTable)
	require.Empty(t, stats.Queue)

	require.NoError(t, json.Unmarshal([]byte(c.BuildStatsString(true)), &stats))
	require.NotNil(t, stats.SegmentTable)
	require.Equal(t, 2, stats.SegmentTable.Entries)
	require.Len(t, stats.SegmentTable.Segments, 2)
	require.Equal(t, "Free", stats.SegmentTable.Segments[0].Status)
	require.Equal(t, 2, stats.SegmentTable.Segments[1].Owner)
	require.Len(t, stats.Queue, 1)
	require.Equal(t, 3, stats.Queue[0].Owner)
	require.Equal(t, 90, stats.Queue[0].RequestedBytes)
}

func TestBuildStatsStringLargeValues(t *testing.T) {
	c := newController(t, math.MaxUint64, controller.CreateOptions{Oracle: segment.NewScheduleOracle()})
	admit(t, c, 1, math.MaxUint64-1)

	var stats struct {
		Controller struct {
			TotalMemory uint64
			TailAddress string
		}
		Total struct {
			LiveBytes   uint64
			LiveSizeMax uint64
		}
		SegmentTable struct {
			UsedBytes uint64
			Segments  []struct {
				UsedBytes uint64
			}
		}
	}

	require.NoError(t, json.Unmarshal([]byte(c.BuildStatsString(true)), &stats))
	require.Equal(t, uint64(math.MaxUint64), stats.Controller.TotalMemory)
	require.Equal(t, "0xffffffffffffffff", stats.Controller.TailAddress)
	require.Equal(t, uint64(math.MaxUint64-1), stats.Total.LiveBytes)
	require.Equal(t, uint64(math.MaxUint64-1), stats.Total.LiveSizeMax)
	require.Equal(t, uint64(math.MaxUint64-1), stats.SegmentTable.UsedBytes)
	require.Len(t, stats.SegmentTable.Segments, 1)
	require.Equal(t, uint64(math.MaxUint64-1), stats.SegmentTable.Segments[0].UsedBytes)
}

func TestCalculateStatistics(t *testing.T) {
	oracle := segment.NewScheduleOracle()
	c := newController(t, 100, controller.CreateOptions{Oracle: oracle})

	admit(t, c, 1, 10)
	admit(t, c, 2, 30)
	admit(t, c, 3, 5)
	oracle.Finish(2)
	c.ReclaimFinished()

	var stats memutils.DetailedStatistics
	c.CalculateStatistics(&stats)

	require.Equal(t, 3, stats.SegmentCount)
	require.Equal(t, 2, stats.LiveCount)
	require.Equal(t, uint64(15), stats.LiveBytes)
	require.Equal(t, uint64(5), stats.LiveSizeMin)
	require.Equal(t, uint64(10), stats.LiveSizeMax)
	require.Equal(t, 1, stats.FreeCount)
	require.Equal(t, uint64(30), stats.FreeBytes)
}

func TestConcurrentRequests(t *testing.T) {
	c := newController(t, 4096, controller.CreateOptions{Seed: 7})

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			for index := 0; index < 50; index++ {
				id := segment.ProcessID(worker*1000 + index + 1)
				_, _, err := c.RequestAdmission(id, uint64(index%64+1))
				require.NoError(t, err)

				if index%5 == 0 {
					c.DrainQueue()
				}
			}
		}(worker)
	}
	wg.Wait()

	require.NoError(t, c.Validate())
	require.LessOrEqual(t, c.Counters().Admitted()+uint64(c.QueueLength()), uint64(400))
}

func TestValidateWhileRequesting(t *testing.T) {
	c := newController(t, 1024, controller.CreateOptions{Seed: 3})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()

		for index := 0; index < 200; index++ {
			_, _, err := c.RequestAdmission(segment.ProcessID(index+1), uint64(index%32+1))
			require.NoError(t, err)
			c.DrainQueue()
		}
	}()
	go func() {
		defer wg.Done()

		for index := 0; index < 200; index++ {
			require.NoError(t, c.Validate())
		}
	}()
	wg.Wait()

	require.NoError(t, c.Validate())
}

func TestCreateFlagsString(t *testing.T) {
	require.Equal(t, "", controller.CreateFlags(0).String())
	require.Equal(t, "CreateExternallySynchronized", controller.CreateExternallySynchronized.String())
	require.Equal(t, "Queued", controller.StateQueued.String())
	require.Equal(t, "Reuse", controller.AdmissionReuse.String())
}
