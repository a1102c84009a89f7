package simulation

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vkngwrapper/segsim/controller"
	"github.com/vkngwrapper/segsim/metrics"
	"github.com/vkngwrapper/segsim/segment"
	"golang.org/x/exp/rand"
	"golang.org/x/exp/slog"
)

// RequestSizeFunc chooses how many bytes an arriving process requests
type RequestSizeFunc func(id segment.ProcessID) uint64

// Result records what happened during a run
type Result struct {
	// Ticks is the number of reclaim-and-drain ticks that ran after the arrivals
	Ticks int
	// Admitted lists processes in the order they were placed
	Admitted []segment.ProcessID
	// Queued lists the processes that could not be placed when they arrived, in arrival order
	Queued []segment.ProcessID
	// Reclaimed lists processes in the order they finished
	Reclaimed []segment.ProcessID
	// Stalled lists the processes still queued when the run stopped
	Stalled []segment.ProcessID
	// Final is the segment table at the end of the run
	Final []segment.Entry
	// Stats is the controller's JSON stats document at the end of the run
	Stats string
}

type runOptions struct {
	oracle      segment.CompletionOracle
	requestSize RequestSizeFunc
	detailed    bool
	registerer  prometheus.Registerer
}

type Option func(o *runOptions)

// WithOracle replaces the seeded RandomOracle with the provided completion oracle
func WithOracle(oracle segment.CompletionOracle) Option {
	return func(o *runOptions) {
		o.oracle = oracle
	}
}

// WithRequestSize replaces the seeded uniform request sizes with the provided function
func WithRequestSize(requestSize RequestSizeFunc) Option {
	return func(o *runOptions) {
		o.requestSize = requestSize
	}
}

// WithDetailedStats includes every segment table entry in Result.Stats
func WithDetailedStats() Option {
	return func(o *runOptions) {
		o.detailed = true
	}
}

// WithRegisterer registers a metrics.Collector for the run's controller with registerer
func WithRegisterer(registerer prometheus.Registerer) Option {
	return func(o *runOptions) {
		o.registerer = registerer
	}
}

// Run creates a controller for cfg, submits cfg.Processes arrivals, and then ticks until every
// process has been admitted and reclaimed. Each tick reclaims finished processes and drains the
// wait queue. The run stops early, reporting the remaining queue as stalled, when cfg.MaxTicks
// is reached or ctx is cancelled. A cancelled run returns its partial result along with the
// context's error.
func Run(ctx context.Context, logger *slog.Logger, cfg Config, opts ...Option) (Result, error) {
	var result Result

	err := cfg.Validate()
	if err != nil {
		return result, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	var options runOptions
	for _, opt := range opts {
		opt(&options)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	requestSize := options.requestSize
	if requestSize == nil {
		rng := rand.New(rand.NewSource(seed + 1))
		requestSize = func(id segment.ProcessID) uint64 {
			return rng.Uint64n(cfg.TotalMemory) + 1
		}
	}

	ctrl, err := controller.New(logger, cfg.TotalMemory, controller.CreateOptions{
		FitPolicy: cfg.FitPolicy,
		Oracle:    options.oracle,
		Seed:      seed,
		Callbacks: &controller.CallbackOptions{
			Admitted: func(c *controller.Controller, entry segment.Entry, source controller.AdmissionSource, fromQueue bool, userData any) {
				result.Admitted = append(result.Admitted, entry.Owner)
			},
			Queued: func(c *controller.Controller, id segment.ProcessID, requestedBytes uint64, userData any) {
				result.Queued = append(result.Queued, id)
			},
			Reclaimed: func(c *controller.Controller, entry segment.Entry, userData any) {
				result.Reclaimed = append(result.Reclaimed, entry.Owner)
			},
		},
	})
	if err != nil {
		return result, err
	}

	if options.registerer != nil {
		err = options.registerer.Register(metrics.NewCollector(ctrl))
		if err != nil {
			return result, errors.Wrap(err, "failed to register controller metrics")
		}
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "simulation starting",
		slog.Uint64("TotalMemory", cfg.TotalMemory),
		slog.Int("Processes", cfg.Processes),
		slog.Uint64("Seed", seed),
		slog.String("FitPolicy", cfg.FitPolicy.String()))

	for index := 0; index < cfg.Processes; index++ {
		id := cfg.FirstPID + segment.ProcessID(index)
		_, _, err = ctrl.RequestAdmission(id, requestSize(id))
		if err != nil {
			return result, errors.Wrapf(err, "failed to submit process %d", id)
		}
	}

	for ctrl.QueueLength() > 0 || ctrl.HasLiveProcess() {
		err = ctx.Err()
		if err != nil {
			err = errors.Wrapf(err, "simulation cancelled after %d ticks", result.Ticks)
			break
		}

		if result.Ticks >= cfg.MaxTicks {
			logger.LogAttrs(ctx, slog.LevelWarn, "simulation reached the tick limit",
				slog.Int("MaxTicks", cfg.MaxTicks),
				slog.Int("QueueLength", ctrl.QueueLength()))
			break
		}

		result.Ticks++
		ctrl.ReclaimFinished()
		ctrl.DrainQueue()
	}

	result.Stalled = ctrl.Queued()
	result.Final = ctrl.Snapshot()
	result.Stats = ctrl.BuildStatsString(options.detailed)

	logger.LogAttrs(ctx, slog.LevelInfo, "simulation finished",
		slog.Int("Ticks", result.Ticks),
		slog.Int("Admitted", len(result.Admitted)),
		slog.Int("Reclaimed", len(result.Reclaimed)),
		slog.Int("Stalled", len(result.Stalled)))

	return result, err
}
