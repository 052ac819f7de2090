package runners

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/arnavsurve/sheetflow/pkg/steprunner"
	"github.com/arnavsurve/sheetflow/pkg/types"
)

const sqlGenerationEndpoint = "/generate-sql"

var sqlDatabaseTypes = map[string]bool{
	"mysql":      true,
	"postgresql": true,
	"sqlite":     true,
	"sqlserver":  true,
}

type SQLGenerationStep struct {
	*steprunner.Base
}

func init() {
	steprunner.RegisterStepFactory(types.StepSQLGeneration, func(ctx types.ExecutionContext) (steprunner.Step, error) {
		return &SQLGenerationStep{Base: steprunner.NewBase(ctx)}, nil
	})
}

func (s *SQLGenerationStep) Validate() types.ValidationResult {
	cfg := s.Config()
	var v steprunner.Validation

	for _, key := range steprunner.ForeignBlocks(cfg) {
		v.Add(fmt.Sprintf("sql-generation step %q must not define '%s'", cfg.ID, key))
	}

	if cfg.SQLGeneration == nil {
		v.Add(fmt.Sprintf("sql-generation step %q must define 'sql'", cfg.ID))
		return v.Result()
	}

	sql := cfg.SQLGeneration
	if strings.TrimSpace(sql.TableName) == "" {
		v.Add(fmt.Sprintf("sql-generation step %q: 'sql.table_name' is required", cfg.ID))
	}
	if sql.DatabaseType == "" {
		v.Add(fmt.Sprintf("sql-generation step %q: 'sql.database_type' is required", cfg.ID))
	} else if !sqlDatabaseTypes[sql.DatabaseType] {
		v.Add(fmt.Sprintf("sql-generation step %q: unsupported database type %q", cfg.ID, sql.DatabaseType))
	}
	if sql.BatchSize < 0 {
		v.Add(fmt.Sprintf("sql-generation step %q: 'sql.batch_size' must not be negative", cfg.ID))
	}

	return v.Result()
}

func (s *SQLGenerationStep) Execute(ctx context.Context, input *types.File) *types.StepResult {
	return s.Run(ctx, input, func(input *types.File) (steprunner.Request, error) {
		cfg := s.Config()
		if cfg.SQLGeneration == nil {
			return steprunner.Request{}, fmt.Errorf("sql-generation step %q has no 'sql' config", cfg.ID)
		}
		sql := cfg.SQLGeneration

		fields := map[string]string{
			"table_name":           sql.TableName,
			"database_type":        sql.DatabaseType,
			"include_create_table": steprunner.BoolField(sql.IncludeCreateTable),
		}
		if sql.BatchSize > 0 {
			fields["batch_size"] = strconv.Itoa(sql.BatchSize)
		}
		if cfg.OutputFilename != "" {
			fields["output_filename"] = cfg.OutputFilename
		}

		return steprunner.Request{
			Endpoint:        sqlGenerationEndpoint,
			Fields:          fields,
			DefaultFileName: sql.TableName + ".sql",
			RequireDownload: true,
		}, nil
	})
}
