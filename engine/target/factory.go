package target

import (
	"context"
	"fmt"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/config"
	"github.com/Carmen-Shannon/oxy-xr/engine/result"
)

var (
	_ Target = &surfaceTarget{}
	_ Target = &headlessTarget{}
)

func incompatible(format string, args ...any) error {
	return result.Errorf(result.IncompatibleDisplay, format, args...)
}

// New creates a target for mode and runs InitPre on it.
//
// The auto mode tries a direct target when a Leaser is configured, then a window, then
// headless, and returns the first that initializes.
//
// Parameters:
//   - ctx: cancels initialization
//   - mode: which backend to create
//   - options: functional options applied to every backend tried
//
// Returns:
//   - Target: an initialized target in StatePreGPUInitialized
//   - error: the last initialization error
func New(ctx context.Context, mode config.TargetMode, options ...TargetBuilderOption) (Target, error) {
	log := common.ComponentLogger("target")

	var candidates []func(...TargetBuilderOption) Target
	switch mode {
	case config.TargetWindow:
		candidates = append(candidates, NewWindowed)
	case config.TargetHeadless:
		candidates = append(candidates, NewHeadless)
	case config.TargetDirect:
		candidates = append(candidates, NewDirect)
	case config.TargetAuto, "":
		opts := defaultOptions()
		for _, option := range options {
			option(opts)
		}
		if opts.leaser != nil {
			candidates = append(candidates, NewDirect)
		}
		candidates = append(candidates, NewWindowed, NewHeadless)
	default:
		return nil, fmt.Errorf("unknown target mode %q", mode)
	}

	var lastErr error
	for _, create := range candidates {
		t := create(options...)
		err := t.InitPre(ctx)
		if err == nil {
			log.Info("selected target", "backend", t.Name(), "mode", mode)
			return t, nil
		}
		log.Warn("target unavailable", "backend", t.Name(), "error", err)
		t.Destroy()
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}
