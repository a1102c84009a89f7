package simulation

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml"
	"github.com/vkngwrapper/segsim/memutils"
	"github.com/vkngwrapper/segsim/segment"
)

const (
	DefaultFirstPID segment.ProcessID = 101
	DefaultMaxTicks int               = 1000
)

// Config describes one simulation run
type Config struct {
	// TotalMemory is the controller's memory ceiling, in bytes
	TotalMemory uint64
	// Processes is the number of processes that arrive before the first tick
	Processes int
	// FirstPID is the ID given to the first arriving process. Later arrivals count up from it.
	FirstPID segment.ProcessID
	// Seed seeds request sizes and the default completion oracle. Zero uses the current time.
	Seed uint64
	// MaxTicks bounds the number of reclaim-and-drain ticks. Processes still queued when it is
	// reached are reported as stalled.
	MaxTicks int
	// FitPolicy selects how the controller matches free regions to requests
	FitPolicy segment.FitPolicy
}

// DefaultConfig returns a Config with every optional field set. TotalMemory and Processes must
// still be provided.
func DefaultConfig() Config {
	return Config{
		FirstPID: DefaultFirstPID,
		MaxTicks: DefaultMaxTicks,
	}
}

// Validate returns ErrInvalidConfiguration for configs that cannot be run
func (c Config) Validate() error {
	err := memutils.CheckPositive(c.TotalMemory, "total memory")
	if err != nil {
		return err
	}

	if c.Processes <= 0 {
		return errors.Wrapf(memutils.ErrInvalidConfiguration, "process count must be greater than zero, but was %d", c.Processes)
	}

	if c.MaxTicks <= 0 {
		return errors.Wrapf(memutils.ErrInvalidConfiguration, "max ticks must be greater than zero, but was %d", c.MaxTicks)
	}

	return nil
}

type fileConfig struct {
	TotalMemory *uint64 `toml:"total_memory"`
	Processes   *int    `toml:"processes"`
	FirstPID    *uint64 `toml:"first_pid"`
	Seed        *uint64 `toml:"seed"`
	MaxTicks    *int    `toml:"max_ticks"`
	Fit         *string `toml:"fit"`
	Scan        *string `toml:"scan"`
}

// ParseConfig overlays the settings present in a TOML document onto base. Keys missing from the
// document keep the value they have in base.
func ParseConfig(data []byte, base Config) (Config, error) {
	var file fileConfig
	err := toml.Unmarshal(data, &file)
	if err != nil {
		return base, errors.Wrap(err, "failed to parse simulation config")
	}

	config := base
	if file.TotalMemory != nil {
		config.TotalMemory = *file.TotalMemory
	}
	if file.Processes != nil {
		config.Processes = *file.Processes
	}
	if file.FirstPID != nil {
		config.FirstPID = segment.ProcessID(*file.FirstPID)
	}
	if file.Seed != nil {
		config.Seed = *file.Seed
	}
	if file.MaxTicks != nil {
		config.MaxTicks = *file.MaxTicks
	}

	if file.Fit != nil {
		config.FitPolicy.Comparison, err = segment.ParseFitComparison(*file.Fit)
		if err != nil {
			return base, err
		}
	}

	if file.Scan != nil {
		config.FitPolicy.Scan, err = segment.ParseScanMode(*file.Scan)
		if err != nil {
			return base, err
		}
	}

	return config, nil
}

// LoadConfig reads a TOML config file and overlays it onto base
func LoadConfig(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, errors.Wrapf(err, "failed to read simulation config %s", path)
	}

	return ParseConfig(data, base)
}
