package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli"
	"github.com/vkngwrapper/segsim/metrics"
	"github.com/vkngwrapper/segsim/segment"
	"github.com/vkngwrapper/segsim/simulation"
	"golang.org/x/exp/slog"
)

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

var runCommand = cli.Command{
	Name:  "run",
	Usage: "admits a batch of processes and ticks until every one has finished",
	Description: `Processes that are still queued when the tick limit is reached are listed as stalled.
   A stall is a normal outcome: growth is blocked while the last segment is free, so small
   memory sizes stall often. The command still exits zero.`,
	ArgsUsage: "run [flags]",
	Flags: []cli.Flag{
		cli.Uint64Flag{
			Name:  memoryFlag,
			Usage: "Required unless set in --config: total memory in bytes",
		},
		cli.IntFlag{
			Name:  processesFlag,
			Usage: "Required unless set in --config: number of arriving processes",
		},
		cli.StringFlag{
			Name:  configFlag,
			Usage: "Optional: TOML file with simulation settings. Flags override the file.",
		},
		cli.Uint64Flag{
			Name:  seedFlag,
			Usage: "Optional: seed for request sizes and completions. 0 uses the current time.",
		},
		cli.Uint64Flag{
			Name:  firstPIDFlag,
			Value: uint64(simulation.DefaultFirstPID),
			Usage: "Optional: ID of the first arriving process",
		},
		cli.StringFlag{
			Name:  fitFlag,
			Value: segment.FitCapacityAtLeast.String(),
			Usage: "Optional: free region comparison, at-least or at-most",
		},
		cli.StringFlag{
			Name:  scanFlag,
			Value: segment.ScanStopAtGap.String(),
			Usage: "Optional: free region scan, stop-at-gap or exhaustive",
		},
		cli.IntFlag{
			Name:  maxTicksFlag,
			Value: simulation.DefaultMaxTicks,
			Usage: "Optional: tick limit before queued processes are reported as stalled",
		},
		cli.StringFlag{
			Name:  logLevelFlag,
			Value: "info",
			Usage: "Optional: debug, info, warn, or error",
		},
		cli.BoolFlag{
			Name:  statsFlag,
			Usage: "Optional: print the controller's JSON stats when the run ends",
		},
		cli.BoolFlag{
			Name:  detailedFlag,
			Usage: "Optional: include every segment table entry in --stats output",
		},
		cli.BoolFlag{
			Name:  metricsFlag,
			Usage: "Optional: print the controller's prometheus metrics when the run ends",
		},
	},
	Action: func(cli *cli.Context) error {
		level, ok := logLevels[cli.String(logLevelFlag)]
		if !ok {
			return errors.Newf("unknown log level %q", cli.String(logLevelFlag))
		}
		logger := slog.New(slog.HandlerOptions{Level: level}.NewTextHandler(os.Stderr))

		cfg, err := buildConfig(cli)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		var opts []simulation.Option
		if cli.Bool(detailedFlag) {
			opts = append(opts, simulation.WithDetailedStats())
		}

		registry := prometheus.NewRegistry()
		if cli.Bool(metricsFlag) {
			opts = append(opts, simulation.WithRegisterer(registry))
		}

		result, err := simulation.Run(ctx, logger, cfg, opts...)
		if err != nil {
			return err
		}

		out := cli.App.Writer
		printResult(out, result)

		if len(result.Stalled) > 0 {
			logger.Warn("processes never found memory", slog.Int("Stalled", len(result.Stalled)))
		}

		if cli.Bool(statsFlag) {
			fmt.Fprintln(out, result.Stats)
		}

		if cli.Bool(metricsFlag) {
			return metrics.WriteText(out, registry)
		}

		return nil
	},
}

// buildConfig layers the config file, if any, over the defaults and then the flags the user set
// over the file
func buildConfig(cli *cli.Context) (simulation.Config, error) {
	cfg := simulation.DefaultConfig()
	cfg.FirstPID = segment.ProcessID(cli.Uint64(firstPIDFlag))
	cfg.MaxTicks = cli.Int(maxTicksFlag)

	var err error
	if cli.IsSet(configFlag) {
		cfg, err = simulation.LoadConfig(cli.String(configFlag), cfg)
		if err != nil {
			return cfg, err
		}
	}

	if cli.IsSet(memoryFlag) {
		cfg.TotalMemory = cli.Uint64(memoryFlag)
	}
	if cli.IsSet(processesFlag) {
		cfg.Processes = cli.Int(processesFlag)
	}
	if cli.IsSet(seedFlag) {
		cfg.Seed = cli.Uint64(seedFlag)
	}
	if cli.IsSet(firstPIDFlag) {
		cfg.FirstPID = segment.ProcessID(cli.Uint64(firstPIDFlag))
	}
	if cli.IsSet(maxTicksFlag) {
		cfg.MaxTicks = cli.Int(maxTicksFlag)
	}

	if cli.IsSet(fitFlag) || !cli.IsSet(configFlag) {
		cfg.FitPolicy.Comparison, err = segment.ParseFitComparison(cli.String(fitFlag))
		if err != nil {
			return cfg, err
		}
	}

	if cli.IsSet(scanFlag) || !cli.IsSet(configFlag) {
		cfg.FitPolicy.Scan, err = segment.ParseScanMode(cli.String(scanFlag))
		if err != nil {
			return cfg, err
		}
	}

	return cfg, cfg.Validate()
}

func printResult(out io.Writer, result simulation.Result) {
	fmt.Fprintf(out, "ticks: %d admitted: %d queued on arrival: %d reclaimed: %d stalled: %d\n",
		result.Ticks, len(result.Admitted), len(result.Queued), len(result.Reclaimed), len(result.Stalled))

	fmt.Fprintln(out, "PID | Base | Limit | Used | Status")
	for _, entry := range result.Final {
		fmt.Fprintln(out, entry.String())
	}

	for _, id := range result.Stalled {
		fmt.Fprintf(out, "stalled: %d\n", id)
	}
}
