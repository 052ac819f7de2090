package runners

import (
	"context"
	"fmt"

	"github.com/arnavsurve/sheetflow/pkg/steprunner"
	"github.com/arnavsurve/sheetflow/pkg/types"
)

const jsonGenerationEndpoint = "/generate-json"

var jsonOrients = map[string]bool{
	"records": true,
	"columns": true,
	"index":   true,
	"split":   true,
	"values":  true,
}

type JSONGenerationStep struct {
	*steprunner.Base
}

func init() {
	steprunner.RegisterStepFactory(types.StepJSONGeneration, func(ctx types.ExecutionContext) (steprunner.Step, error) {
		return &JSONGenerationStep{Base: steprunner.NewBase(ctx)}, nil
	})
}

func (s *JSONGenerationStep) Validate() types.ValidationResult {
	cfg := s.Config()
	var v steprunner.Validation

	for _, key := range steprunner.ForeignBlocks(cfg) {
		v.Add(fmt.Sprintf("json-generation step %q must not define '%s'", cfg.ID, key))
	}

	// The 'json' block is optional; all of its settings have defaults.
	if cfg.JSONGeneration != nil && cfg.JSONGeneration.Orient != "" && !jsonOrients[cfg.JSONGeneration.Orient] {
		v.Add(fmt.Sprintf("json-generation step %q: unsupported orient %q", cfg.ID, cfg.JSONGeneration.Orient))
	}

	return v.Result()
}

func (s *JSONGenerationStep) Execute(ctx context.Context, input *types.File) *types.StepResult {
	return s.Run(ctx, input, func(input *types.File) (steprunner.Request, error) {
		cfg := s.Config()
		opts := types.JSONGenerationConfig{Orient: "records"}
		if cfg.JSONGeneration != nil {
			opts.PrettyPrint = cfg.JSONGeneration.PrettyPrint
			if cfg.JSONGeneration.Orient != "" {
				opts.Orient = cfg.JSONGeneration.Orient
			}
		}

		fields := map[string]string{
			"pretty_print": steprunner.BoolField(opts.PrettyPrint),
			"orient":       opts.Orient,
		}
		if cfg.OutputFilename != "" {
			fields["output_filename"] = cfg.OutputFilename
		}

		return steprunner.Request{
			Endpoint:        jsonGenerationEndpoint,
			Fields:          fields,
			DefaultFileName: steprunner.SwapExt(input, ".json"),
			RequireDownload: true,
		}, nil
	})
}
