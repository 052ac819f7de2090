package steprunner

import (
	"fmt"
	"sort"
	"sync"

	"github.com/arnavsurve/sheetflow/pkg/types"
)

type StepFactory func(ctx types.ExecutionContext) (Step, error)

// registry stores each step type's factory function. NewStep calls the appropriate factory to yield a new
// Step instance for a stored config.
var (
	registryMu sync.RWMutex
	registry   = map[types.StepType]StepFactory{}
)

// RegisterStepFactory is called in each step implementation's init() function to register its factory with
// the registry. Adding a new operation type only requires a new implementation that registers itself here.
func RegisterStepFactory(stepType types.StepType, factory StepFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[stepType] = factory
}

// NewStep returns a Step for the config's 'type' field, calling the corresponding factory from the registry.
func NewStep(ctx types.ExecutionContext) (Step, error) {
	registryMu.RLock()
	factory, ok := registry[ctx.Step.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no step registered for type: %q", ctx.Step.Type)
	}

	if ctx.Logger == nil {
		ctx.Logger = types.NopLogger()
	}
	return factory(ctx)
}

// RegisteredTypes lists the step types that can currently be built.
func RegisteredTypes() []types.StepType {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]types.StepType, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
