package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vkngwrapper/segsim/controller"
	"github.com/vkngwrapper/segsim/memutils"
)

// Source is the read-only view of a controller that the collector polls. *controller.Controller
// satisfies it.
type Source interface {
	TotalMemory() uint64
	UsedMemory() uint64
	TailAddress() uint64
	QueueLength() int
	Counters() controller.Counters
	CalculateStatistics(stats *memutils.DetailedStatistics)
}

var _ Source = &controller.Controller{}

const (
	descTotalBytes = iota
	descUsedBytes
	descFreeBytes
	descSegments
	descLiveProcesses
	descFreeRegions
	descQueueLength
	descTailAddress
	descAdmitted
	descAdmittedFromQueue
	descQueued
	descReclaimed
	descCoalesced
)

var (
	descriptors = []*prometheus.Desc{
		descTotalBytes: prometheus.NewDesc(
			"segsim_total_bytes",
			"Memory ceiling for tail growth.",
			nil,
			nil,
		),
		descUsedBytes: prometheus.NewDesc(
			"segsim_used_bytes",
			"Bytes held by running processes.",
			nil,
			nil,
		),
		descFreeBytes: prometheus.NewDesc(
			"segsim_free_region_bytes",
			"Capacity of the free regions in the segment table.",
			nil,
			nil,
		),
		descSegments: prometheus.NewDesc(
			"segsim_segments",
			"Number of entries in the segment table.",
			[]string{
				"status",
			},
			nil,
		),
		descLiveProcesses: prometheus.NewDesc(
			"segsim_live_processes",
			"Number of running processes.",
			nil,
			nil,
		),
		descFreeRegions: prometheus.NewDesc(
			"segsim_free_regions",
			"Number of free regions in the segment table.",
			nil,
			nil,
		),
		descQueueLength: prometheus.NewDesc(
			"segsim_queue_length",
			"Number of processes waiting for memory.",
			nil,
			nil,
		),
		descTailAddress: prometheus.NewDesc(
			"segsim_tail_address",
			"Base address of the next tail growth.",
			nil,
			nil,
		),
		descAdmitted: prometheus.NewDesc(
			"segsim_admitted_total",
			"Number of processes placed, by placement source.",
			[]string{
				"source",
			},
			nil,
		),
		descAdmittedFromQueue: prometheus.NewDesc(
			"segsim_admitted_from_queue_total",
			"Number of placed processes that had been queued first.",
			nil,
			nil,
		),
		descQueued: prometheus.NewDesc(
			"segsim_queued_total",
			"Number of arriving processes that had to wait.",
			nil,
			nil,
		),
		descReclaimed: prometheus.NewDesc(
			"segsim_reclaimed_total",
			"Number of finished processes whose memory was freed.",
			nil,
			nil,
		),
		descCoalesced: prometheus.NewDesc(
			"segsim_coalesced_total",
			"Number of placements that merged two free regions.",
			nil,
			nil,
		),
	}
)

// Collector exports a controller's occupancy and placement counters as prometheus metrics
type Collector struct {
	source Source
}

var _ prometheus.Collector = &Collector{}

func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range descriptors {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var stats memutils.DetailedStatistics
	c.source.CalculateStatistics(&stats)
	counters := c.source.Counters()

	gauge := func(desc int, value float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(descriptors[desc], prometheus.GaugeValue, value, labels...)
	}
	counter := func(desc int, value uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(descriptors[desc], prometheus.CounterValue, float64(value), labels...)
	}

	gauge(descTotalBytes, float64(c.source.TotalMemory()))
	gauge(descUsedBytes, float64(c.source.UsedMemory()))
	gauge(descFreeBytes, float64(stats.FreeBytes))
	gauge(descSegments, float64(stats.LiveCount), "full")
	gauge(descSegments, float64(stats.FreeCount), "free")
	gauge(descLiveProcesses, float64(stats.LiveCount))
	gauge(descFreeRegions, float64(stats.FreeCount))
	gauge(descQueueLength, float64(c.source.QueueLength()))
	gauge(descTailAddress, float64(c.source.TailAddress()))

	counter(descAdmitted, counters.AdmittedByGrowth, "tail_growth")
	counter(descAdmitted, counters.AdmittedByReuse, "reuse")
	counter(descAdmittedFromQueue, counters.AdmittedFromQueue)
	counter(descQueued, counters.Queued)
	counter(descReclaimed, counters.Reclaimed)
	counter(descCoalesced, counters.Coalesced)
}
