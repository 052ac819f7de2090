package runners

import (
	"context"
	"fmt"
	"strings"

	"github.com/arnavsurve/sheetflow/pkg/steprunner"
	"github.com/arnavsurve/sheetflow/pkg/types"
)

const searchEndpoint = "/search"

var searchOperators = map[string]bool{
	"equals":       true,
	"not_equals":   true,
	"contains":     true,
	"not_contains": true,
	"starts_with":  true,
	"ends_with":    true,
	"greater_than": true,
	"less_than":    true,
	"is_empty":     true,
	"is_not_empty": true,
}

type SearchStep struct {
	*steprunner.Base
}

func init() {
	steprunner.RegisterStepFactory(types.StepSearch, func(ctx types.ExecutionContext) (steprunner.Step, error) {
		return &SearchStep{Base: steprunner.NewBase(ctx)}, nil
	})
}

func (s *SearchStep) Validate() types.ValidationResult {
	cfg := s.Config()
	var v steprunner.Validation

	for _, key := range steprunner.ForeignBlocks(cfg) {
		v.Add(fmt.Sprintf("search step %q must not define '%s'", cfg.ID, key))
	}

	if cfg.Search == nil || len(cfg.Search.Conditions) == 0 {
		v.Add(fmt.Sprintf("search step %q must define at least one condition in 'search.conditions'", cfg.ID))
		return v.Result()
	}

	switch cfg.Search.Logic {
	case "", types.LogicAnd, types.LogicOr:
	default:
		v.Add(fmt.Sprintf("search step %q: logic must be AND or OR, got %q", cfg.ID, cfg.Search.Logic))
	}

	for i, cond := range cfg.Search.Conditions {
		if strings.TrimSpace(cond.Column) == "" {
			v.Add(fmt.Sprintf("search step %q: condition %d is missing 'column'", cfg.ID, i))
		}
		if cond.Operator == "" {
			v.Add(fmt.Sprintf("search step %q: condition %d is missing 'operator'", cfg.ID, i))
		} else if !searchOperators[cond.Operator] {
			v.Add(fmt.Sprintf("search step %q: condition %d has unknown operator %q", cfg.ID, i, cond.Operator))
		}
	}

	return v.Result()
}

func (s *SearchStep) Execute(ctx context.Context, input *types.File) *types.StepResult {
	return s.Run(ctx, input, func(input *types.File) (steprunner.Request, error) {
		cfg := s.Config()
		if cfg.Search == nil {
			return steprunner.Request{}, fmt.Errorf("search step %q has no 'search' config", cfg.ID)
		}

		logic := cfg.Search.Logic
		if logic == "" {
			logic = types.LogicAnd
		}

		fields := map[string]string{
			"conditions": steprunner.JSONField(cfg.Search.Conditions),
			"logic":      string(logic),
		}
		if cfg.OutputFilename != "" {
			fields["output_filename"] = cfg.OutputFilename
		}

		return steprunner.Request{
			Endpoint:        searchEndpoint,
			Fields:          fields,
			DefaultFileName: steprunner.PrefixedName("filtered", input),
			RequireDownload: true,
		}, nil
	})
}
