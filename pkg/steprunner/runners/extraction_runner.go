package runners

import (
	"context"
	"fmt"
	"strings"

	"github.com/arnavsurve/sheetflow/pkg/steprunner"
	"github.com/arnavsurve/sheetflow/pkg/types"
)

const extractionEndpoint = "/extract-columns"

type ExtractionStep struct {
	*steprunner.Base
}

func init() {
	steprunner.RegisterStepFactory(types.StepExtraction, func(ctx types.ExecutionContext) (steprunner.Step, error) {
		return &ExtractionStep{Base: steprunner.NewBase(ctx)}, nil
	})
}

func (s *ExtractionStep) Validate() types.ValidationResult {
	cfg := s.Config()
	var v steprunner.Validation

	for _, key := range steprunner.ForeignBlocks(cfg) {
		v.Add(fmt.Sprintf("extraction step %q must not define '%s'", cfg.ID, key))
	}

	if cfg.Extraction == nil || len(cfg.Extraction.Columns) == 0 {
		v.Add(fmt.Sprintf("extraction step %q must define at least one column in 'extraction.columns'", cfg.ID))
		return v.Result()
	}
	for i, col := range cfg.Extraction.Columns {
		if strings.TrimSpace(col) == "" {
			v.Add(fmt.Sprintf("extraction step %q: column %d is empty", cfg.ID, i))
		}
	}

	return v.Result()
}

func (s *ExtractionStep) Execute(ctx context.Context, input *types.File) *types.StepResult {
	return s.Run(ctx, input, func(input *types.File) (steprunner.Request, error) {
		cfg := s.Config()
		if cfg.Extraction == nil {
			return steprunner.Request{}, fmt.Errorf("extraction step %q has no 'extraction' config", cfg.ID)
		}

		fields := map[string]string{
			"columns":           steprunner.JSONField(cfg.Extraction.Columns),
			"remove_duplicates": steprunner.BoolField(cfg.Extraction.RemoveDuplicates),
		}
		if cfg.OutputFilename != "" {
			fields["output_filename"] = cfg.OutputFilename
		}

		// Extraction answers with inline stats; the download_url is optional.
		return steprunner.Request{
			Endpoint:        extractionEndpoint,
			Fields:          fields,
			DefaultFileName: steprunner.PrefixedName("extracted", input),
		}, nil
	})
}
