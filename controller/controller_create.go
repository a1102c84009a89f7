package controller

import (
	"strings"
	"time"

	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/segsim/controller/internal/utils"
	"github.com/vkngwrapper/segsim/memutils"
	"github.com/vkngwrapper/segsim/segment"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific controller behaviors to activate or deactivate
type CreateFlags int32

const (
	// CreateExternallySynchronized ensures that the controller will not be synchronized
	// internally. The consumer must guarantee it is used from only one goroutine at a time or
	// is synchronized by some other mechanism.
	CreateExternallySynchronized CreateFlags = 1 << iota
)

var createFlagsMapping = map[CreateFlags]string{
	CreateExternallySynchronized: "CreateExternallySynchronized",
}

func (f CreateFlags) String() string {
	var names []string
	for flag, name := range createFlagsMapping {
		if f&flag != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, "|")
}

// CreateOptions contains optional settings when creating a controller. It is valid to leave
// every field blank.
type CreateOptions struct {
	// Flags indicates specific controller behaviors to activate or deactivate
	Flags CreateFlags
	// FitPolicy selects how free regions are matched to requests. The zero value accepts only
	// regions at least as large as the request and stops scanning at the first gap.
	FitPolicy segment.FitPolicy
	// Oracle decides when live processes finish. If nil, a RandomOracle seeded from Seed is used.
	Oracle segment.CompletionOracle
	// Seed seeds the default RandomOracle. It is ignored when Oracle is provided. A zero seed
	// is replaced with the current time.
	Seed uint64
	// Callbacks is an optional set of callbacks that are executed as processes are admitted,
	// queued, and reclaimed. Callbacks run while the controller is locked and must not call
	// back into it.
	Callbacks *CallbackOptions
}

// New creates a new Controller that simulates a memory region of totalMemory bytes
//
// logger - receives debug records for every placement decision. If nil, slog.Default is used.
//
// totalMemory - the ceiling on used memory for tail growth. It must be greater than zero.
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, totalMemory uint64, options CreateOptions) (*Controller, error) {
	err := memutils.CheckPositive(totalMemory, "total memory")
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	oracle := options.Oracle
	if oracle == nil {
		seed := options.Seed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		oracle = segment.NewRandomOracle(seed)
	}

	controller := &Controller{
		mutex:       utils.OptionalMutex{UseMutex: options.Flags&CreateExternallySynchronized == 0},
		logger:      logger,
		totalMemory: totalMemory,
		table:       segment.NewTable(options.FitPolicy, oracle),
		reclaimed:   swiss.NewMap[segment.ProcessID, struct{}](16),
	}
	controller.callbacks = callbacks{
		Callbacks:  options.Callbacks,
		Controller: controller,
	}
	controller.queue.Init()

	logger.Debug("Controller::New",
		slog.Uint64("TotalMemory", totalMemory),
		slog.String("FitPolicy", options.FitPolicy.String()),
		slog.String("Flags", options.Flags.String()))

	return controller, nil
}
