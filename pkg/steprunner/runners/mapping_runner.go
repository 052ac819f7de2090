package runners

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/arnavsurve/sheetflow/pkg/steprunner"
	"github.com/arnavsurve/sheetflow/pkg/types"
)

const mappingEndpoint = "/map-columns"

type MappingStep struct {
	*steprunner.Base
}

func init() {
	steprunner.RegisterStepFactory(types.StepMapping, func(ctx types.ExecutionContext) (steprunner.Step, error) {
		return &MappingStep{Base: steprunner.NewBase(ctx)}, nil
	})
}

func (s *MappingStep) Validate() types.ValidationResult {
	cfg := s.Config()
	var v steprunner.Validation

	for _, key := range steprunner.ForeignBlocks(cfg) {
		v.Add(fmt.Sprintf("mapping step %q must not define '%s'", cfg.ID, key))
	}

	if cfg.Mapping == nil || len(cfg.Mapping.Columns) == 0 {
		v.Add(fmt.Sprintf("mapping step %q must define at least one entry in 'mapping.columns'", cfg.ID))
		return v.Result()
	}

	sources := make([]string, 0, len(cfg.Mapping.Columns))
	for src := range cfg.Mapping.Columns {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	targets := make(map[string]string, len(sources))
	for _, src := range sources {
		dst := cfg.Mapping.Columns[src]
		if strings.TrimSpace(src) == "" {
			v.Add(fmt.Sprintf("mapping step %q: source column name is empty", cfg.ID))
			continue
		}
		if strings.TrimSpace(dst) == "" {
			v.Add(fmt.Sprintf("mapping step %q: target for column %q is empty", cfg.ID, src))
			continue
		}
		if prev, dup := targets[dst]; dup {
			v.Add(fmt.Sprintf("mapping step %q: columns %q and %q both map to %q", cfg.ID, prev, src, dst))
			continue
		}
		targets[dst] = src
	}

	return v.Result()
}

func (s *MappingStep) Execute(ctx context.Context, input *types.File) *types.StepResult {
	return s.Run(ctx, input, func(input *types.File) (steprunner.Request, error) {
		cfg := s.Config()
		if cfg.Mapping == nil {
			return steprunner.Request{}, fmt.Errorf("mapping step %q has no 'mapping' config", cfg.ID)
		}

		fields := map[string]string{
			"mapping":       steprunner.JSONField(cfg.Mapping.Columns),
			"keep_unmapped": steprunner.BoolField(cfg.Mapping.KeepUnmapped),
		}
		if cfg.OutputFilename != "" {
			fields["output_filename"] = cfg.OutputFilename
		}

		return steprunner.Request{
			Endpoint:        mappingEndpoint,
			Fields:          fields,
			DefaultFileName: steprunner.PrefixedName("mapped", input),
			RequireDownload: true,
		}, nil
	})
}
