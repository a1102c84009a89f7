package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

const (
	memoryFlag    = "memory"
	processesFlag = "processes"
	configFlag    = "config"
	seedFlag      = "seed"
	firstPIDFlag  = "first-pid"
	fitFlag       = "fit"
	scanFlag      = "scan"
	maxTicksFlag  = "max-ticks"
	logLevelFlag  = "log-level"
	statsFlag     = "stats"
	detailedFlag  = "detailed"
	metricsFlag   = "metrics"

	usage = `segsim simulates dynamic-partition memory allocation with a first-fit segment table`
)

func main() {
	app := cli.NewApp()
	app.Name = "segsim"
	app.Commands = []cli.Command{
		runCommand,
	}
	app.Usage = usage

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
