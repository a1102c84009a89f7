package controller

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/segsim/memutils"
	"golang.org/x/exp/slog"
)

// Counters tracks placement decisions over the lifetime of a controller
type Counters struct {
	// AdmittedByGrowth is the number of processes placed at the tail address
	AdmittedByGrowth uint64
	// AdmittedByReuse is the number of processes placed into a free region
	AdmittedByReuse uint64
	// AdmittedFromQueue is the number of admitted processes that had been queued first. These
	// are also counted in AdmittedByGrowth or AdmittedByReuse.
	AdmittedFromQueue uint64
	// Queued is the number of arrivals that had to wait. Failed retries are not counted again.
	Queued uint64
	// Reclaimed is the number of processes that finished and had their entries freed
	Reclaimed uint64
	// Coalesced is the number of reuse placements that merged two free regions
	Coalesced uint64
}

// Admitted returns the total number of placements
func (c Counters) Admitted() uint64 {
	return c.AdmittedByGrowth + c.AdmittedByReuse
}

// Counters returns a copy of the controller's placement counters
func (c *Controller) Counters() Counters {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.counters
}

// CalculateStatistics clears the provided DetailedStatistics object and populates it with
// the current contents of the segment table
func (c *Controller) CalculateStatistics(stats *memutils.DetailedStatistics) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	stats.Clear()
	c.table.AddDetailedStatistics(stats)
}

// BuildStatsString produces a JSON document describing the controller's totals and counters.
// If detailedMap is true, every entry in the segment table is written as well.
func (c *Controller) BuildStatsString(detailedMap bool) string {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var stats memutils.DetailedStatistics
	stats.Clear()
	c.table.AddDetailedStatistics(&stats)

	writer := jwriter.NewWriter()
	objState := writer.Object()

	controllerObj := objState.Name("Controller").Object()
	memutils.WriteUint(controllerObj.Name("TotalMemory"), c.totalMemory)
	controllerObj.Name("TailAddress").String(memutils.FormatAddress(c.tailAddress))
	controllerObj.Name("FitPolicy").String(c.table.Policy().String())
	controllerObj.Name("QueueLength").Int(c.queue.Len())
	controllerObj.End()

	totalObj := objState.Name("Total").Object()
	printStatistics(totalObj, &stats)
	totalObj.End()

	countersObj := objState.Name("Counters").Object()
	memutils.WriteUint(countersObj.Name("AdmittedByGrowth"), c.counters.AdmittedByGrowth)
	memutils.WriteUint(countersObj.Name("AdmittedByReuse"), c.counters.AdmittedByReuse)
	memutils.WriteUint(countersObj.Name("AdmittedFromQueue"), c.counters.AdmittedFromQueue)
	memutils.WriteUint(countersObj.Name("Queued"), c.counters.Queued)
	memutils.WriteUint(countersObj.Name("Reclaimed"), c.counters.Reclaimed)
	memutils.WriteUint(countersObj.Name("Coalesced"), c.counters.Coalesced)
	countersObj.End()

	if detailedMap {
		tableObj := objState.Name("SegmentTable").Object()
		c.table.WriteJSON(tableObj)
		tableObj.End()

		queueArray := objState.Name("Queue").Array()
		for _, process := range c.queue.Processes() {
			processObj := queueArray.Object()
			memutils.WriteUint(processObj.Name("Owner"), uint64(process.ID()))
			memutils.WriteUint(processObj.Name("RequestedBytes"), process.RequestedBytes())
			processObj.End()
		}
		queueArray.End()
	}

	objState.End()

	if writer.Error() != nil {
		c.logger.Error("failed to write controller stats", slog.Any("error", writer.Error()))
		return ""
	}

	return string(writer.Bytes())
}

func printStatistics(json jwriter.ObjectState, stats *memutils.DetailedStatistics) {
	json.Name("SegmentCount").Int(stats.SegmentCount)
	memutils.WriteUint(json.Name("SegmentBytes"), stats.SegmentBytes)
	json.Name("LiveCount").Int(stats.LiveCount)
	memutils.WriteUint(json.Name("LiveBytes"), stats.LiveBytes)
	json.Name("FreeCount").Int(stats.FreeCount)
	memutils.WriteUint(json.Name("FreeBytes"), stats.FreeBytes)

	if stats.LiveCount > 0 {
		memutils.WriteUint(json.Name("LiveSizeMin"), stats.LiveSizeMin)
		memutils.WriteUint(json.Name("LiveSizeMax"), stats.LiveSizeMax)
	}

	if stats.FreeCount > 0 {
		memutils.WriteUint(json.Name("FreeSizeMin"), stats.FreeSizeMin)
		memutils.WriteUint(json.Name("FreeSizeMax"), stats.FreeSizeMax)
	}
}
