package runners

import (
	"context"
	"fmt"
	"strings"

	"github.com/arnavsurve/sheetflow/pkg/steprunner"
	"github.com/arnavsurve/sheetflow/pkg/types"
)

const normalizationEndpoint = "/normalize"

var normalizationOperations = map[string]bool{
	"trim":                 true,
	"lowercase":            true,
	"uppercase":            true,
	"title_case":           true,
	"remove_special_chars": true,
	"normalize_whitespace": true,
	"normalize_dates":      true,
	"normalize_numbers":    true,
}

type NormalizationStep struct {
	*steprunner.Base
}

func init() {
	steprunner.RegisterStepFactory(types.StepNormalization, func(ctx types.ExecutionContext) (steprunner.Step, error) {
		return &NormalizationStep{Base: steprunner.NewBase(ctx)}, nil
	})
}

func (s *NormalizationStep) Validate() types.ValidationResult {
	cfg := s.Config()
	var v steprunner.Validation

	for _, key := range steprunner.ForeignBlocks(cfg) {
		v.Add(fmt.Sprintf("normalization step %q must not define '%s'", cfg.ID, key))
	}

	if cfg.Normalization == nil || len(cfg.Normalization.Operations) == 0 {
		v.Add(fmt.Sprintf("normalization step %q must define at least one operation in 'normalization.operations'", cfg.ID))
		return v.Result()
	}
	for _, op := range cfg.Normalization.Operations {
		if !normalizationOperations[op] {
			v.Add(fmt.Sprintf("normalization step %q: unknown operation %q", cfg.ID, op))
		}
	}
	for i, col := range cfg.Normalization.Columns {
		if strings.TrimSpace(col) == "" {
			v.Add(fmt.Sprintf("normalization step %q: column %d is empty", cfg.ID, i))
		}
	}

	return v.Result()
}

func (s *NormalizationStep) Execute(ctx context.Context, input *types.File) *types.StepResult {
	return s.Run(ctx, input, func(input *types.File) (steprunner.Request, error) {
		cfg := s.Config()
		if cfg.Normalization == nil {
			return steprunner.Request{}, fmt.Errorf("normalization step %q has no 'normalization' config", cfg.ID)
		}

		fields := map[string]string{
			"operations": steprunner.JSONField(cfg.Normalization.Operations),
		}
		if len(cfg.Normalization.Columns) > 0 {
			fields["columns"] = steprunner.JSONField(cfg.Normalization.Columns)
		}
		if cfg.OutputFilename != "" {
			fields["output_filename"] = cfg.OutputFilename
		}

		return steprunner.Request{
			Endpoint:        normalizationEndpoint,
			Fields:          fields,
			DefaultFileName: steprunner.PrefixedName("normalized", input),
			RequireDownload: true,
		}, nil
	})
}
