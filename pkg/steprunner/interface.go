package steprunner

import (
	"context"

	"github.com/arnavsurve/sheetflow/pkg/types"
)

// Step wraps one remote operation. A step knows nothing about the workflow it
// belongs to; it only sees the input file and the context passed to Execute.
type Step interface {
	ID() string
	Type() types.StepType
	Name() string
	Config() types.StepConfig
	Status() types.StepStatus
	Result() *types.StepResult

	// Validate checks the step's own configuration without any I/O.
	Validate() types.ValidationResult

	// Execute runs the remote operation against input. It never returns an
	// error: failures are reported through the result's status and message.
	Execute(ctx context.Context, input *types.File) *types.StepResult
}
